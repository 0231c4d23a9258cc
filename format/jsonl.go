package format

import (
	"bytes"

	"github.com/spirit-labs/strata/compress"
	"github.com/spirit-labs/strata/record"
	"github.com/tidwall/gjson"
)

func newJSONLinesWriter(compression compress.CompressionType) *jsonLinesWriter {
	return &jsonLinesWriter{compression: compression}
}

// jsonLinesWriter writes one JSON document per line. Records whose shape varies from record to record are
// fine, the JSON is written as it arrived
type jsonLinesWriter struct {
	compression compress.CompressionType
	buf         bytes.Buffer
	closed      bool
	closedData  []byte
}

func (j *jsonLinesWriter) Write(rec *record.Record) error {
	if j.closed {
		return ErrWriterClosed
	}
	raw := rec.Raw
	if bytes.IndexByte(raw, '\n') != -1 {
		// JSON spanning multiple lines would corrupt the line oriented output so compact it first
		raw = []byte(gjson.GetBytes(raw, "@ugly").Raw)
	}
	j.buf.Write(raw)
	j.buf.WriteByte('\n')
	return nil
}

func (j *jsonLinesWriter) Size() int64 {
	return int64(j.buf.Len())
}

func (j *jsonLinesWriter) Close() ([]byte, error) {
	if j.closed {
		return j.closedData, nil
	}
	j.closed = true
	if j.buf.Len() == 0 {
		return nil, nil
	}
	data, err := maybeCompress(j.compression, j.buf.Bytes())
	if err != nil {
		return nil, err
	}
	j.closedData = data
	return data, nil
}

func maybeCompress(compression compress.CompressionType, data []byte) ([]byte, error) {
	if compression == compress.CompressionTypeNone {
		return data, nil
	}
	return compress.Compress(compression, nil, data)
}
