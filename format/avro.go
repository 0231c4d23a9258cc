package format

import (
	"bytes"
	"encoding/json"

	lru "github.com/hashicorp/golang-lru"
	"github.com/linkedin/goavro/v2"
	"github.com/pkg/errors"
	"github.com/spirit-labs/strata/compress"
	"github.com/spirit-labs/strata/record"
)

// Compiling an avro codec is relatively expensive and the partition writers for a topic will typically all
// carry the same schema, so compiled codecs are cached and shared
const codecCacheMaxEntries = 128

var codecCache *lru.Cache

func init() {
	cache, err := lru.New(codecCacheMaxEntries)
	if err != nil {
		panic(err)
	}
	codecCache = cache
}

func newAvroWriter(compression compress.CompressionType) *avroWriter {
	return &avroWriter{compression: compression}
}

// avroWriter writes records to an avro object container file. The schema is fixed by the first record and
// compression is handled by the container file codec
type avroWriter struct {
	compression compress.CompressionType
	schema      *record.Schema
	buf         bytes.Buffer
	ocfw        *goavro.OCFWriter
	closed      bool
	closedData  []byte
}

func (a *avroWriter) Write(rec *record.Record) error {
	if a.closed {
		return ErrWriterClosed
	}
	if a.schema == nil {
		if err := a.createOCFWriter(rec.Schema); err != nil {
			return err
		}
		a.schema = rec.Schema
	} else if !a.schema.Equal(rec.Schema) {
		return errors.Errorf("record schema %s does not match file schema %s", rec.Schema.String(), a.schema.String())
	}
	datum := make(map[string]interface{}, a.schema.NumFields())
	for i, f := range a.schema.Fields() {
		datum[f.Name] = rec.Values[i]
	}
	return a.ocfw.Append([]interface{}{datum})
}

func (a *avroWriter) createOCFWriter(schema *record.Schema) error {
	schemaJSON, err := avroSchemaJSON(schema)
	if err != nil {
		return err
	}
	codec, err := codecForSchema(schemaJSON)
	if err != nil {
		return err
	}
	ocfw, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               &a.buf,
		Codec:           codec,
		CompressionName: avroCompressionName(a.compression),
	})
	if err != nil {
		return err
	}
	a.ocfw = ocfw
	return nil
}

func codecForSchema(schemaJSON string) (*goavro.Codec, error) {
	if cached, ok := codecCache.Get(schemaJSON); ok {
		return cached.(*goavro.Codec), nil
	}
	codec, err := goavro.NewCodec(schemaJSON)
	if err != nil {
		return nil, err
	}
	codecCache.Add(schemaJSON, codec)
	return codec, nil
}

type avroField struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type avroRecordSchema struct {
	Type   string      `json:"type"`
	Name   string      `json:"name"`
	Fields []avroField `json:"fields"`
}

func avroSchemaJSON(schema *record.Schema) (string, error) {
	fields := make([]avroField, schema.NumFields())
	for i, f := range schema.Fields() {
		var avroType string
		switch f.Type {
		case record.TypeBool:
			avroType = "boolean"
		case record.TypeInt:
			avroType = "long"
		case record.TypeFloat:
			avroType = "double"
		case record.TypeString:
			avroType = "string"
		case record.TypeBytes:
			avroType = "bytes"
		default:
			return "", errors.Errorf("field %s has type %d which cannot be written as avro", f.Name, f.Type)
		}
		fields[i] = avroField{Name: f.Name, Type: avroType}
	}
	encoded, err := json.Marshal(avroRecordSchema{Type: "record", Name: "StrataRecord", Fields: fields})
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

func avroCompressionName(compression compress.CompressionType) string {
	switch compression {
	case compress.CompressionTypeNone:
		return goavro.CompressionNullLabel
	case compress.CompressionTypeGzip:
		// avro container files have no gzip codec, deflate is the nearest equivalent
		return goavro.CompressionDeflateLabel
	case compress.CompressionTypeSnappy:
		return goavro.CompressionSnappyLabel
	default:
		panic("compression type not supported with avro")
	}
}

func (a *avroWriter) Size() int64 {
	return int64(a.buf.Len())
}

func (a *avroWriter) Close() ([]byte, error) {
	if a.closed {
		return a.closedData, nil
	}
	a.closed = true
	if a.ocfw == nil {
		return nil, nil
	}
	a.closedData = a.buf.Bytes()
	return a.closedData, nil
}
