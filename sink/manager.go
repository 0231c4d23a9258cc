package sink

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/spirit-labs/strata/compress"
	"github.com/spirit-labs/strata/format"
	log "github.com/spirit-labs/strata/logger"
	"github.com/spirit-labs/strata/metrics"
	"github.com/spirit-labs/strata/objstore"
	"github.com/spirit-labs/strata/record"
)

/*
Manager owns the partition writers for one sink and answers the commit protocol. Records are routed to
their partition's writer, rotation thresholds decide when a writer's files are sealed and stored, and
the committed offset for a partition only advances once its sealed files are all in the object store.

The object store is the source of truth for committed offsets. The in memory ledger is a cache - Open
rebuilds it by listing the topic's objects and taking the highest end offset encoded in their keys for
each partition, so a crash between a file reaching the store and the ledger advancing costs nothing
more than re-processing the overlap.

Callers are expected to serialize Open, Write, PreCommit and the flush calls for one manager, which is
how the consumer drives it. The lock makes stray concurrent access safe but storage writes happen under
it, deliberately - PreCommit answers must not get ahead of storage state.
*/
type Manager struct {
	lock        sync.Mutex
	started     bool
	conf        Conf
	objStore    objstore.Client
	formatType  format.Type
	compression compress.CompressionType
	writers     map[TopicPartition]*partitionWriter
	committed   map[TopicPartition]int64
}

func NewManager(conf Conf, objStore objstore.Client) (*Manager, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &Manager{
		conf:        conf,
		objStore:    objStore,
		formatType:  format.FromString(conf.FileFormat),
		compression: compress.FromString(conf.Compression),
		writers:     map[TopicPartition]*partitionWriter{},
		committed:   map[TopicPartition]int64{},
	}, nil
}

func (m *Manager) Start() error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.started {
		return nil
	}
	m.started = true
	return nil
}

// Stop seals and stores everything buffered if flush on shutdown is enabled, then discards whatever is
// left. Failures are logged, not returned - the sink is going away and undelivered records will be
// redelivered to whoever picks the partitions up next
func (m *Manager) Stop() error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if !m.started {
		return nil
	}
	if m.conf.FlushOnShutdown {
		if err := m.maybeCommitWriters(true); err != nil {
			log.Warnf("sink %s: failed to flush writers on shutdown: %v", m.conf.TopicName, err)
		}
	}
	for _, tp := range m.sortedWriterPartitions() {
		m.discardPartition(tp)
	}
	m.started = false
	return nil
}

// Open recovers the committed offset for each partition from the object store and returns the offset
// consumption must resume at - one past the recovered offset, or -1 if the store holds nothing for the
// partition and the consumer should fall back to its configured start position. Recovery parses offset
// ranges out of object keys and never reads bodies. It is read only, so calling Open again without
// intervening writes returns the same offsets.
//
// A just stored object can be missing from a listing until the store catches up. Recovery treats a
// missing object the same as no object, and never moves the ledger backwards below what this manager
// has itself stored - at worst the resume offset is conservative and some records are re-processed
func (m *Manager) Open(tps []TopicPartition) (map[TopicPartition]int64, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if !m.started {
		return nil, errors.New("writer manager is not started")
	}
	requested := map[TopicPartition]struct{}{}
	topicPartitions := map[string][]TopicPartition{}
	for _, tp := range tps {
		requested[tp] = struct{}{}
		topicPartitions[tp.Topic] = append(topicPartitions[tp.Topic], tp)
	}
	topics := make([]string, 0, len(topicPartitions))
	for topic := range topicPartitions {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	recovered := map[TopicPartition]int64{}
	for _, topic := range topics {
		prefix := topicListPrefix(m.conf.DataPrefix, topic)
		infos, err := m.objStore.ListObjectsWithPrefix(context.Background(), m.conf.BucketName, prefix, -1)
		if err != nil {
			return nil, NewError(KindStorage,
				fmt.Sprintf("failed to list objects with prefix %s during offset recovery", prefix), err,
				SortTopicPartitions(topicPartitions[topic])...)
		}
		for _, info := range infos {
			tp, _, end, ok := parseObjectKey(info.Key)
			if !ok {
				continue
			}
			if _, ok := requested[tp]; !ok {
				continue
			}
			if cur, exists := recovered[tp]; !exists || end > cur {
				recovered[tp] = end
			}
		}
	}
	resumeOffsets := make(map[TopicPartition]int64, len(tps))
	for _, tp := range tps {
		if end, ok := recovered[tp]; ok {
			if cur, exists := m.committed[tp]; !exists || end > cur {
				m.committed[tp] = end
			}
		}
		if committedOffset, exists := m.committed[tp]; exists {
			resumeOffsets[tp] = committedOffset + 1
		} else {
			resumeOffsets[tp] = -1
		}
		log.Debugf("sink %s: opened partition %s, resume offset %d", m.conf.TopicName, tp, resumeOffsets[tp])
	}
	return resumeOffsets, nil
}

// Write appends one record to the file for its write key, creating the file if needed, then seals and
// stores the partition's files if a rotation threshold tripped.
//
// Offsets already buffered or committed are dropped silently - the consumer replays overlapping
// batches after transient failures and after restarts, and re-appending would corrupt the files. An
// offset below the buffered range that is not covered by the committed offset means the stream went
// backwards, which makes everything buffered for the partition suspect - that is an ordering error and
// the partition must be rolled back
func (m *Manager) Write(key WriteKey, rec *record.Record, offset int64) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if !m.started {
		return errors.New("writer manager is not started")
	}
	tp := key.TP
	committedOffset := m.committedOffset(tp)
	if offset <= committedOffset {
		log.Debugf("sink %s: dropping record at offset %d for partition %s - committed up to %d",
			m.conf.TopicName, offset, tp, committedOffset)
		return nil
	}
	w, ok := m.writers[tp]
	if !ok {
		w = newPartitionWriter(tp, committedOffset, &m.conf, m.formatType, m.compression)
		m.writers[tp] = w
	}
	if offset <= w.lastAccepted {
		if w.runStartOffset != -1 && offset >= w.runStartOffset {
			log.Debugf("sink %s: dropping redelivered record at offset %d for partition %s - already "+
				"buffered (%d to %d)", m.conf.TopicName, offset, tp, w.runStartOffset, w.lastAccepted)
			return nil
		}
		return NewError(KindOrdering,
			fmt.Sprintf("record offset %d for partition %s is behind the buffered range starting at %d",
				offset, tp, w.runStartOffset), nil, tp)
	}
	now := time.Now()
	if err := w.append(key.Path, rec, offset, now); err != nil {
		return NewError(KindFormat,
			fmt.Sprintf("failed to write record at offset %d for partition %s", offset, tp), err, tp)
	}
	metrics.SinkRecordsWritten.WithLabelValues(tp.Topic).Inc()
	if w.sealRequired(now) {
		return m.sealAndStoreWriter(w)
	}
	return nil
}

// RecommitPending retries any sealed files still waiting to reach the store and rotates files that
// have been open longer than the configured open time. Called before each batch so partitions keep
// flushing even when no new records arrive for them
func (m *Manager) RecommitPending() error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if !m.started {
		return errors.New("writer manager is not started")
	}
	return m.maybeCommitWriters(false)
}

// CommitAllWritersIfFlushRequired runs the same retry and rotation check as RecommitPending. Called
// when a poll delivers no records, so idle partitions still flush on time
func (m *Manager) CommitAllWritersIfFlushRequired() error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if !m.started {
		return errors.New("writer manager is not started")
	}
	return m.maybeCommitWriters(false)
}

// Flush seals and stores everything currently buffered regardless of thresholds
func (m *Manager) Flush() error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if !m.started {
		return errors.New("writer manager is not started")
	}
	return m.maybeCommitWriters(true)
}

// PreCommit clamps the offsets the caller wants to commit to what is durably stored. The returned map
// has an entry for every requested partition, -1 when nothing has been committed for it. It never
// returns an offset above the requested one, and never above the committed ledger
func (m *Manager) PreCommit(offsets map[TopicPartition]int64) map[TopicPartition]int64 {
	m.lock.Lock()
	defer m.lock.Unlock()
	safe := make(map[TopicPartition]int64, len(offsets))
	for tp, requested := range offsets {
		committedOffset := m.committedOffset(tp)
		if requested < committedOffset {
			safe[tp] = requested
		} else {
			safe[tp] = committedOffset
		}
	}
	return safe
}

// CleanUp rolls the partition back - every buffered record and staged file is discarded and any staged
// object that may have reached the store is deleted, so replay from the committed offset starts clean.
// The committed offset itself is untouched. Deletion failures are logged and the objects abandoned,
// replayed data supersedes them
func (m *Manager) CleanUp(tp TopicPartition) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if _, ok := m.writers[tp]; !ok {
		return
	}
	metrics.SinkRollbacks.WithLabelValues(tp.Topic).Inc()
	m.discardPartition(tp)
	log.Debugf("sink %s: rolled back partition %s, committed offset remains %d", m.conf.TopicName, tp,
		m.committedOffset(tp))
}

// ClosePartitions seals and stores the writers of partitions being revoked, then forgets them. On a
// flush failure the partition is discarded instead - its records will be redelivered to the next owner,
// which re-derives the committed offset from the store. Errors are logged, not returned
func (m *Manager) ClosePartitions(tps []TopicPartition) {
	m.lock.Lock()
	defer m.lock.Unlock()
	sorted := SortTopicPartitions(append([]TopicPartition{}, tps...))
	for _, tp := range sorted {
		w, ok := m.writers[tp]
		if !ok {
			continue
		}
		if err := m.sealAndStoreWriter(w); err != nil {
			log.Warnf("sink %s: failed to flush partition %s on close: %v", m.conf.TopicName, tp, err)
			m.discardPartition(tp)
			continue
		}
		delete(m.writers, tp)
	}
}

// CommittedOffset returns the highest offset durably committed for the partition, or -1
func (m *Manager) CommittedOffset(tp TopicPartition) int64 {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.committedOffset(tp)
}

func (m *Manager) committedOffset(tp TopicPartition) int64 {
	committedOffset, ok := m.committed[tp]
	if !ok {
		return -1
	}
	return committedOffset
}

func (m *Manager) sealAndStoreWriter(w *partitionWriter) error {
	if err := w.seal(); err != nil {
		return NewError(KindFormat, fmt.Sprintf("failed to seal files for partition %s", w.tp), err, w.tp)
	}
	return m.storeSealedWriter(w)
}

func (m *Manager) storeSealedWriter(w *partitionWriter) error {
	committedOffset, err := w.storeSealed(m.objStore, m.conf.BucketName)
	if committedOffset > m.committedOffset(w.tp) {
		m.committed[w.tp] = committedOffset
	}
	if err != nil {
		return NewError(KindStorage, fmt.Sprintf("failed to store files for partition %s", w.tp), err, w.tp)
	}
	return nil
}

func (m *Manager) maybeCommitWriters(force bool) error {
	now := time.Now()
	for _, tp := range m.sortedWriterPartitions() {
		w := m.writers[tp]
		if len(w.sealed) > 0 {
			if err := m.storeSealedWriter(w); err != nil {
				return err
			}
		}
		if force || w.ageExceeded(now) {
			if err := m.sealAndStoreWriter(w); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Manager) discardPartition(tp TopicPartition) {
	w, ok := m.writers[tp]
	if !ok {
		return
	}
	delete(m.writers, tp)
	keys := w.discard()
	if len(keys) == 0 {
		return
	}
	if err := m.objStore.DeleteAll(context.Background(), m.conf.BucketName, keys); err != nil {
		log.Warnf("sink %s: failed to delete %d uncommitted objects for partition %s: %v",
			m.conf.TopicName, len(keys), tp, err)
	}
}

func (m *Manager) sortedWriterPartitions() []TopicPartition {
	tps := make([]TopicPartition, 0, len(m.writers))
	for tp := range m.writers {
		tps = append(tps, tp)
	}
	return SortTopicPartitions(tps)
}
