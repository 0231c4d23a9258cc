package sink

import (
	"context"
	"sort"
	"time"

	"github.com/spirit-labs/strata/compress"
	"github.com/spirit-labs/strata/format"
	log "github.com/spirit-labs/strata/logger"
	"github.com/spirit-labs/strata/metrics"
	"github.com/spirit-labs/strata/objstore"
	"github.com/spirit-labs/strata/record"
)

// partitionWriter buffers the records of one topic partition. Records fan out over one open file per
// partitioner path, but sealing is all or nothing across the paths - the committed offset for the
// partition must never run ahead of a record still sitting in an open file, and with content based
// partitioning any path can hold offsets below another path's highest.
//
// Sealing happens in two steps. seal closes every open file and stages the encoded bytes with their
// final object keys, then storeSealed uploads the staged files and reports the offset the partition is
// now committed up to. If an upload fails the staged files are kept and storeSealed is retried later,
// new records meanwhile buffer into fresh files. Staged batches upload oldest first so the committed
// offset only ever moves forward
type partitionWriter struct {
	tp             TopicPartition
	conf           *Conf
	formatType     format.Type
	compression    compress.CompressionType
	files          map[string]*fileWriter
	sealed         []*sealedBatch
	runStartOffset int64
	lastAccepted   int64
}

// fileWriter is one open file - the records buffered for one write key since the last seal
type fileWriter struct {
	path        string
	writer      format.Writer
	numRecords  int
	startOffset int64
	lastOffset  int64
	createdAt   time.Time
}

// sealedBatch holds the files produced by one seal. lastOffset is the highest offset across the batch,
// the partition is committed up to it once every file in the batch is stored
type sealedBatch struct {
	files      []*sealedFile
	lastOffset int64
}

type sealedFile struct {
	key    string
	data   []byte
	stored bool
}

func newPartitionWriter(tp TopicPartition, committedOffset int64, conf *Conf, formatType format.Type,
	compression compress.CompressionType) *partitionWriter {
	return &partitionWriter{
		tp:             tp,
		conf:           conf,
		formatType:     formatType,
		compression:    compression,
		files:          map[string]*fileWriter{},
		runStartOffset: -1,
		lastAccepted:   committedOffset,
	}
}

// empty returns true if the writer holds no records, open or staged
func (w *partitionWriter) empty() bool {
	return len(w.files) == 0 && len(w.sealed) == 0
}

func (w *partitionWriter) append(filePath string, rec *record.Record, offset int64, now time.Time) error {
	fw, ok := w.files[filePath]
	if !ok {
		writer, err := format.NewWriter(w.formatType, w.compression)
		if err != nil {
			return err
		}
		fw = &fileWriter{
			path:        filePath,
			writer:      writer,
			startOffset: offset,
			createdAt:   now,
		}
		w.files[filePath] = fw
		metrics.SinkOpenFiles.WithLabelValues(w.tp.Topic).Inc()
	}
	if err := fw.writer.Write(rec); err != nil {
		return err
	}
	fw.numRecords++
	fw.lastOffset = offset
	if w.runStartOffset == -1 {
		w.runStartOffset = offset
	}
	w.lastAccepted = offset
	return nil
}

// sealRequired returns true if any open file has tripped a rotation threshold
func (w *partitionWriter) sealRequired(now time.Time) bool {
	for _, fw := range w.files {
		if fw.numRecords >= w.conf.MaxRecordsPerFile {
			return true
		}
		if w.conf.MaxFileSize > 0 && fw.writer.Size() >= w.conf.MaxFileSize {
			return true
		}
	}
	return w.ageExceeded(now)
}

// ageExceeded returns true if any open file has been open longer than the configured open time
func (w *partitionWriter) ageExceeded(now time.Time) bool {
	if w.conf.MaxFileOpenTime <= 0 {
		return false
	}
	for _, fw := range w.files {
		if now.Sub(fw.createdAt) >= w.conf.MaxFileOpenTime {
			return true
		}
	}
	return false
}

// seal closes every open file and stages the encoded output for upload. Files are staged in path order
// so repeated seals of the same records produce the same objects
func (w *partitionWriter) seal() error {
	if len(w.files) == 0 {
		return nil
	}
	paths := make([]string, 0, len(w.files))
	for p := range w.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	batch := &sealedBatch{lastOffset: w.lastAccepted}
	for _, p := range paths {
		fw := w.files[p]
		data, err := fw.writer.Close()
		if err != nil {
			return err
		}
		delete(w.files, p)
		metrics.SinkOpenFiles.WithLabelValues(w.tp.Topic).Dec()
		key := objectKey(w.conf.DataPrefix, fw.path, w.tp, fw.startOffset, fw.lastOffset, w.formatType,
			w.compression)
		batch.files = append(batch.files, &sealedFile{key: key, data: data})
		log.Debugf("sink %s: sealed %s with %d records, offsets %d to %d", w.conf.TopicName, key,
			fw.numRecords, fw.startOffset, fw.lastOffset)
	}
	w.sealed = append(w.sealed, batch)
	return nil
}

// storeSealed uploads staged batches oldest first and returns the offset the partition is committed up
// to after the uploads, or -1 if no batch completed. On failure the remaining files stay staged - a
// retry overwrites any file the store accepted without telling us, which is harmless as the key and
// contents are the same
func (w *partitionWriter) storeSealed(objStore objstore.Client, bucket string) (int64, error) {
	committed := int64(-1)
	for len(w.sealed) > 0 {
		batch := w.sealed[0]
		for _, sf := range batch.files {
			if sf.stored {
				continue
			}
			start := time.Now()
			if err := objStore.Put(context.Background(), bucket, sf.key, sf.data); err != nil {
				metrics.SinkCommitFailures.WithLabelValues(w.tp.Topic).Inc()
				return committed, err
			}
			sf.stored = true
			metrics.SinkCommitDuration.WithLabelValues(w.tp.Topic).Observe(time.Since(start).Seconds())
			metrics.SinkFilesCommitted.WithLabelValues(w.tp.Topic).Inc()
			metrics.SinkBytesCommitted.WithLabelValues(w.tp.Topic).Add(float64(len(sf.data)))
			log.Debugf("sink %s: stored %s (%d bytes)", w.conf.TopicName, sf.key, len(sf.data))
		}
		w.sealed = w.sealed[1:]
		committed = batch.lastOffset
	}
	if w.empty() {
		w.runStartOffset = -1
	}
	return committed, nil
}

// discard drops every buffered record and staged file and returns the keys of staged files that may
// have reached the store, so the caller can delete them
func (w *partitionWriter) discard() []string {
	for p, fw := range w.files {
		if _, err := fw.writer.Close(); err != nil {
			log.Debugf("sink %s: error closing discarded file for path %s: %v", w.conf.TopicName, p, err)
		}
		delete(w.files, p)
		metrics.SinkOpenFiles.WithLabelValues(w.tp.Topic).Dec()
	}
	var keys []string
	for _, batch := range w.sealed {
		for _, sf := range batch.files {
			keys = append(keys, sf.key)
		}
	}
	w.sealed = nil
	w.runStartOffset = -1
	return keys
}
