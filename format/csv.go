package format

import (
	"bytes"
	"encoding/base64"
	"encoding/csv"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spirit-labs/strata/compress"
	"github.com/spirit-labs/strata/record"
)

func newCSVWriter(compression compress.CompressionType) *csvWriter {
	w := &csvWriter{compression: compression}
	w.csvw = csv.NewWriter(&w.buf)
	return w
}

// csvWriter writes one record per row. The schema is fixed by the first record and a header row holding the
// field names is written before the first data row. Bytes values are base64 encoded
type csvWriter struct {
	compression compress.CompressionType
	schema      *record.Schema
	buf         bytes.Buffer
	csvw        *csv.Writer
	row         []string
	closed      bool
	closedData  []byte
}

func (c *csvWriter) Write(rec *record.Record) error {
	if c.closed {
		return ErrWriterClosed
	}
	if c.schema == nil {
		header := make([]string, rec.Schema.NumFields())
		for i, f := range rec.Schema.Fields() {
			header[i] = f.Name
		}
		if err := c.csvw.Write(header); err != nil {
			return err
		}
		c.schema = rec.Schema
		c.row = make([]string, rec.Schema.NumFields())
	} else if !c.schema.Equal(rec.Schema) {
		return errors.Errorf("record schema %s does not match file schema %s", rec.Schema.String(), c.schema.String())
	}
	for i, f := range c.schema.Fields() {
		c.row[i] = renderCSVValue(f.Type, rec.Values[i])
	}
	if err := c.csvw.Write(c.row); err != nil {
		return err
	}
	c.csvw.Flush()
	return c.csvw.Error()
}

func renderCSVValue(fieldType record.FieldType, value any) string {
	switch fieldType {
	case record.TypeBool:
		return strconv.FormatBool(value.(bool))
	case record.TypeInt:
		return strconv.FormatInt(value.(int64), 10)
	case record.TypeFloat:
		return strconv.FormatFloat(value.(float64), 'g', -1, 64)
	case record.TypeString:
		return value.(string)
	case record.TypeBytes:
		return base64.StdEncoding.EncodeToString(value.([]byte))
	default:
		panic("unknown field type")
	}
}

func (c *csvWriter) Size() int64 {
	return int64(c.buf.Len())
}

func (c *csvWriter) Close() ([]byte, error) {
	if c.closed {
		return c.closedData, nil
	}
	c.closed = true
	if c.buf.Len() == 0 {
		return nil, nil
	}
	data, err := maybeCompress(c.compression, c.buf.Bytes())
	if err != nil {
		return nil, err
	}
	c.closedData = data
	return data, nil
}
