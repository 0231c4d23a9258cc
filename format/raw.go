package format

import (
	"bytes"

	"github.com/spirit-labs/strata/compress"
	"github.com/spirit-labs/strata/record"
)

func newRawWriter(compression compress.CompressionType) *rawWriter {
	return &rawWriter{compression: compression}
}

// rawWriter concatenates message values verbatim, no separator and no framing
type rawWriter struct {
	compression compress.CompressionType
	buf         bytes.Buffer
	closed      bool
	closedData  []byte
}

func (r *rawWriter) Write(rec *record.Record) error {
	if r.closed {
		return ErrWriterClosed
	}
	r.buf.Write(rec.Raw)
	return nil
}

func (r *rawWriter) Size() int64 {
	return int64(r.buf.Len())
}

func (r *rawWriter) Close() ([]byte, error) {
	if r.closed {
		return r.closedData, nil
	}
	r.closed = true
	if r.buf.Len() == 0 {
		return nil, nil
	}
	data, err := maybeCompress(r.compression, r.buf.Bytes())
	if err != nil {
		return nil, err
	}
	r.closedData = data
	return data, nil
}
