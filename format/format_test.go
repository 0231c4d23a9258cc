package format

import (
	"testing"
	"time"

	"github.com/spirit-labs/strata/compress"
	"github.com/spirit-labs/strata/record"
	"github.com/stretchr/testify/require"
)

func TestTypeStrings(t *testing.T) {
	for _, ft := range []Type{TypeCSV, TypeJSON, TypeParquet, TypeAvro, TypeRaw} {
		require.Equal(t, ft, FromString(ft.String()))
	}
	require.Equal(t, TypeUnknown, FromString("orc"))
	require.Equal(t, TypeUnknown, FromString(""))
}

func TestFileExtensions(t *testing.T) {
	require.Equal(t, "csv", TypeCSV.FileExtension())
	require.Equal(t, "json", TypeJSON.FileExtension())
	require.Equal(t, "parquet", TypeParquet.FileExtension())
	require.Equal(t, "avro", TypeAvro.FileExtension())
	require.Equal(t, "bin", TypeRaw.FileExtension())
}

func TestCheckCompression(t *testing.T) {
	require.NoError(t, CheckCompression(TypeJSON, compress.CompressionTypeLz4))
	require.NoError(t, CheckCompression(TypeCSV, compress.CompressionTypeZstd))
	require.NoError(t, CheckCompression(TypeParquet, compress.CompressionTypeZstd))
	require.NoError(t, CheckCompression(TypeAvro, compress.CompressionTypeSnappy))
	require.Error(t, CheckCompression(TypeParquet, compress.CompressionTypeLz4))
	require.Error(t, CheckCompression(TypeAvro, compress.CompressionTypeLz4))
	require.Error(t, CheckCompression(TypeAvro, compress.CompressionTypeZstd))
}

func TestNewWriterUnknownFormat(t *testing.T) {
	_, err := NewWriter(TypeUnknown, compress.CompressionTypeNone)
	require.Error(t, err)
}

func TestNewWriterRejectsIncompatibleCompression(t *testing.T) {
	_, err := NewWriter(TypeAvro, compress.CompressionTypeZstd)
	require.Error(t, err)
	_, err = NewWriter(TypeParquet, compress.CompressionTypeLz4)
	require.Error(t, err)
}

func TestWriterCloseSemantics(t *testing.T) {
	for _, ft := range []Type{TypeCSV, TypeJSON, TypeParquet, TypeAvro, TypeRaw} {
		t.Run(ft.String(), func(t *testing.T) {
			w, err := NewWriter(ft, compress.CompressionTypeNone)
			require.NoError(t, err)
			rec := testRecord(t, ft)
			require.NoError(t, w.Write(rec))
			data, err := w.Close()
			require.NoError(t, err)
			require.NotNil(t, data)
			// closing again is a no-op and returns the same data
			data2, err := w.Close()
			require.NoError(t, err)
			require.Equal(t, data, data2)
			// writing after close is a usage error
			err = w.Write(rec)
			require.ErrorIs(t, err, ErrWriterClosed)
		})
	}
}

func TestWriterCloseEmpty(t *testing.T) {
	for _, ft := range []Type{TypeCSV, TypeJSON, TypeParquet, TypeAvro, TypeRaw} {
		t.Run(ft.String(), func(t *testing.T) {
			w, err := NewWriter(ft, compress.CompressionTypeNone)
			require.NoError(t, err)
			data, err := w.Close()
			require.NoError(t, err)
			require.Nil(t, data)
		})
	}
}

func testRecord(t *testing.T, ft Type) *record.Record {
	t.Helper()
	if ft == TypeRaw {
		return record.FromBytes([]byte("some bytes"), time.Now())
	}
	rec, err := record.FromJSON([]byte(`{"id":1,"name":"x"}`), time.Now())
	require.NoError(t, err)
	return rec
}
