package format

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/apache/arrow/go/v11/arrow/array"
	"github.com/apache/arrow/go/v11/arrow/memory"
	"github.com/apache/arrow/go/v11/parquet"
	"github.com/apache/arrow/go/v11/parquet/pqarrow"
	"github.com/spirit-labs/strata/compress"
	"github.com/spirit-labs/strata/record"
	"github.com/stretchr/testify/require"
)

func TestParquetWriteAndReadBack(t *testing.T) {
	testParquetWriteAndReadBack(t, compress.CompressionTypeNone)
}

func TestParquetWriteAndReadBackSnappy(t *testing.T) {
	testParquetWriteAndReadBack(t, compress.CompressionTypeSnappy)
}

func testParquetWriteAndReadBack(t *testing.T, compression compress.CompressionType) {
	w, err := NewWriter(TypeParquet, compression)
	require.NoError(t, err)
	numRows := 10
	for i := 0; i < numRows; i++ {
		rec, err := record.FromJSON([]byte(fmt.Sprintf(`{"id":%d,"name":"cust-%d","score":%d.5,"active":%t}`,
			i, i, i, i%2 == 0)), time.Now())
		require.NoError(t, err)
		require.NoError(t, w.Write(rec))
	}
	require.Greater(t, w.Size(), int64(0))
	data, err := w.Close()
	require.NoError(t, err)
	require.NotNil(t, data)

	mem := memory.NewGoAllocator()
	table, err := pqarrow.ReadTable(context.Background(), bytes.NewReader(data), parquet.NewReaderProperties(mem),
		pqarrow.ArrowReadProperties{}, mem)
	require.NoError(t, err)
	defer table.Release()
	require.Equal(t, int64(numRows), table.NumRows())
	require.Equal(t, int64(4), table.NumCols())
	// columns are in field name order
	require.Equal(t, "active", table.Schema().Field(0).Name)
	require.Equal(t, "id", table.Schema().Field(1).Name)
	require.Equal(t, "name", table.Schema().Field(2).Name)
	require.Equal(t, "score", table.Schema().Field(3).Name)
	activeCol := table.Column(0).Data().Chunks()[0].(*array.Boolean)
	idCol := table.Column(1).Data().Chunks()[0].(*array.Int64)
	nameCol := table.Column(2).Data().Chunks()[0].(*array.String)
	scoreCol := table.Column(3).Data().Chunks()[0].(*array.Float64)
	for i := 0; i < numRows; i++ {
		require.Equal(t, i%2 == 0, activeCol.Value(i))
		require.Equal(t, int64(i), idCol.Value(i))
		require.Equal(t, fmt.Sprintf("cust-%d", i), nameCol.Value(i))
		require.Equal(t, float64(i)+0.5, scoreCol.Value(i))
	}
}

func TestParquetWriterSchemaMismatch(t *testing.T) {
	w, err := NewWriter(TypeParquet, compress.CompressionTypeNone)
	require.NoError(t, err)
	rec1, err := record.FromJSON([]byte(`{"a":1,"b":"x"}`), time.Now())
	require.NoError(t, err)
	require.NoError(t, w.Write(rec1))
	rec2, err := record.FromJSON([]byte(`{"a":1}`), time.Now())
	require.NoError(t, err)
	require.Error(t, w.Write(rec2))
	// the writer is still usable with the original schema
	require.NoError(t, w.Write(rec1))
	data, err := w.Close()
	require.NoError(t, err)
	require.NotNil(t, data)
}
