package format

import (
	"bytes"

	"github.com/apache/arrow/go/v11/arrow"
	"github.com/apache/arrow/go/v11/arrow/array"
	"github.com/apache/arrow/go/v11/arrow/memory"
	"github.com/apache/arrow/go/v11/parquet"
	pqcompress "github.com/apache/arrow/go/v11/parquet/compress"
	"github.com/apache/arrow/go/v11/parquet/pqarrow"
	"github.com/pkg/errors"
	"github.com/spirit-labs/strata/compress"
	"github.com/spirit-labs/strata/record"
)

func newParquetWriter(compression compress.CompressionType) *parquetWriter {
	return &parquetWriter{compression: compression}
}

// parquetWriter buffers records in arrow builders and encodes them as a single row group parquet file when
// closed. The schema is fixed by the first record. Size is an estimate based on the width of the buffered
// values since the encoded size is not known until the file is written
type parquetWriter struct {
	compression compress.CompressionType
	schema      *record.Schema
	arrowSchema *arrow.Schema
	builder     *array.RecordBuilder
	sizeEst     int64
	closed      bool
	closedData  []byte
}

func (p *parquetWriter) Write(rec *record.Record) error {
	if p.closed {
		return ErrWriterClosed
	}
	if p.schema == nil {
		arrowSchema, err := toArrowSchema(rec.Schema)
		if err != nil {
			return err
		}
		p.schema = rec.Schema
		p.arrowSchema = arrowSchema
		p.builder = array.NewRecordBuilder(memory.NewGoAllocator(), arrowSchema)
	} else if !p.schema.Equal(rec.Schema) {
		return errors.Errorf("record schema %s does not match file schema %s", rec.Schema.String(), p.schema.String())
	}
	for i, f := range p.schema.Fields() {
		appendArrowValue(p.builder.Field(i), f.Type, rec.Values[i])
	}
	p.sizeEst += approxRowSize(p.schema, rec.Values)
	return nil
}

func toArrowSchema(schema *record.Schema) (*arrow.Schema, error) {
	fields := make([]arrow.Field, schema.NumFields())
	for i, f := range schema.Fields() {
		var dt arrow.DataType
		switch f.Type {
		case record.TypeBool:
			dt = arrow.FixedWidthTypes.Boolean
		case record.TypeInt:
			dt = arrow.PrimitiveTypes.Int64
		case record.TypeFloat:
			dt = arrow.PrimitiveTypes.Float64
		case record.TypeString:
			dt = arrow.BinaryTypes.String
		case record.TypeBytes:
			dt = arrow.BinaryTypes.Binary
		default:
			return nil, errors.Errorf("field %s has type %d which cannot be written as parquet", f.Name, f.Type)
		}
		fields[i] = arrow.Field{Name: f.Name, Type: dt}
	}
	return arrow.NewSchema(fields, nil), nil
}

func appendArrowValue(builder array.Builder, fieldType record.FieldType, value any) {
	switch fieldType {
	case record.TypeBool:
		builder.(*array.BooleanBuilder).Append(value.(bool))
	case record.TypeInt:
		builder.(*array.Int64Builder).Append(value.(int64))
	case record.TypeFloat:
		builder.(*array.Float64Builder).Append(value.(float64))
	case record.TypeString:
		builder.(*array.StringBuilder).Append(value.(string))
	case record.TypeBytes:
		builder.(*array.BinaryBuilder).Append(value.([]byte))
	default:
		panic("unknown field type")
	}
}

func approxRowSize(schema *record.Schema, values []any) int64 {
	size := int64(0)
	for i, f := range schema.Fields() {
		switch f.Type {
		case record.TypeBool:
			size++
		case record.TypeInt, record.TypeFloat:
			size += 8
		case record.TypeString:
			size += int64(len(values[i].(string)))
		case record.TypeBytes:
			size += int64(len(values[i].([]byte)))
		}
	}
	return size
}

func (p *parquetWriter) Size() int64 {
	return p.sizeEst
}

func (p *parquetWriter) Close() ([]byte, error) {
	if p.closed {
		return p.closedData, nil
	}
	p.closed = true
	if p.builder == nil {
		return nil, nil
	}
	defer p.builder.Release()
	rec := p.builder.NewRecord()
	defer rec.Release()
	var buf bytes.Buffer
	props := parquet.NewWriterProperties(parquet.WithCompression(parquetCodec(p.compression)))
	fw, err := pqarrow.NewFileWriter(p.arrowSchema, &buf, props, pqarrow.DefaultWriterProps())
	if err != nil {
		return nil, err
	}
	if err := fw.Write(rec); err != nil {
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}
	p.closedData = buf.Bytes()
	return p.closedData, nil
}

func parquetCodec(compression compress.CompressionType) pqcompress.Compression {
	switch compression {
	case compress.CompressionTypeNone:
		return pqcompress.Codecs.Uncompressed
	case compress.CompressionTypeGzip:
		return pqcompress.Codecs.Gzip
	case compress.CompressionTypeSnappy:
		return pqcompress.Codecs.Snappy
	case compress.CompressionTypeZstd:
		return pqcompress.Codecs.Zstd
	default:
		panic("compression type not supported with parquet")
	}
}
