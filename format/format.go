package format

import (
	"github.com/pkg/errors"
	"github.com/spirit-labs/strata/compress"
	"github.com/spirit-labs/strata/record"
)

type Type byte

const (
	TypeUnknown Type = 0
	TypeCSV     Type = 1
	TypeJSON    Type = 2
	TypeParquet Type = 3
	TypeAvro    Type = 4
	TypeRaw     Type = 5
)

func FromString(str string) Type {
	switch str {
	case "csv":
		return TypeCSV
	case "json":
		return TypeJSON
	case "parquet":
		return TypeParquet
	case "avro":
		return TypeAvro
	case "raw":
		return TypeRaw
	default:
		return TypeUnknown
	}
}

func (t Type) String() string {
	switch t {
	case TypeCSV:
		return "csv"
	case TypeJSON:
		return "json"
	case TypeParquet:
		return "parquet"
	case TypeAvro:
		return "avro"
	case TypeRaw:
		return "raw"
	case TypeUnknown:
		return "unknown"
	default:
		panic("unknown format type")
	}
}

// FileExtension returns the filename extension for files in this format
func (t Type) FileExtension() string {
	switch t {
	case TypeCSV:
		return "csv"
	case TypeJSON:
		return "json"
	case TypeParquet:
		return "parquet"
	case TypeAvro:
		return "avro"
	case TypeRaw:
		return "bin"
	default:
		panic("unknown format type")
	}
}

// UsesInternalCompression returns true if files in this format carry compression inside the file itself.
// For such formats the encoded output must not be compressed again after the writer is closed
func (t Type) UsesInternalCompression() bool {
	return t == TypeParquet || t == TypeAvro
}

// Schemaless returns true if the format does not fix a schema from the first record and tolerates records
// whose shape varies
func (t Type) Schemaless() bool {
	return t == TypeJSON || t == TypeRaw
}

// CheckCompression returns an error if the compression type cannot be used with the format. Parquet and avro
// files embed their own compression and the codecs they support are fixed by their specs
func CheckCompression(t Type, compression compress.CompressionType) error {
	switch t {
	case TypeParquet:
		if compression == compress.CompressionTypeLz4 {
			return errors.Errorf("lz4 compression is not supported with parquet format")
		}
	case TypeAvro:
		if compression == compress.CompressionTypeLz4 || compression == compress.CompressionTypeZstd {
			return errors.Errorf("%s compression is not supported with avro format", compression.String())
		}
	}
	return nil
}

// ErrWriterClosed is returned when a record is written to a writer that has already been closed
var ErrWriterClosed = errors.New("format: writer is already closed")

// Writer encodes records into an in memory buffer in some output format. Writers are not safe for concurrent
// use. For formats with fixed schemas the schema is taken from the first record written and subsequent
// records must match it exactly
type Writer interface {
	// Write appends a record to the buffer
	Write(rec *record.Record) error

	// Size returns the number of bytes buffered so far. For formats that encode at close time this is an
	// estimate based on the size of the buffered values
	Size() int64

	// Close finalizes the output and returns the encoded bytes. Closing an already closed writer is a no-op
	// and returns the same bytes again. Closing a writer with no records returns nil bytes
	Close() ([]byte, error)
}

func NewWriter(formatType Type, compression compress.CompressionType) (Writer, error) {
	if err := CheckCompression(formatType, compression); err != nil {
		return nil, err
	}
	switch formatType {
	case TypeCSV:
		return newCSVWriter(compression), nil
	case TypeJSON:
		return newJSONLinesWriter(compression), nil
	case TypeParquet:
		return newParquetWriter(compression), nil
	case TypeAvro:
		return newAvroWriter(compression), nil
	case TypeRaw:
		return newRawWriter(compression), nil
	default:
		return nil, errors.Errorf("unexpected format type: %d", formatType)
	}
}
