package readstate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arrayfs/fragread/internal/bookkeeping"
	"github.com/arrayfs/fragread/internal/ioengine"
	"github.com/arrayfs/fragread/internal/schema"
	"github.com/arrayfs/fragread/internal/testfixture"
)

func denseFixtureSchema() *schema.Schema {
	return &schema.Schema{
		NumDims:      1,
		CoordType:    schema.Int64,
		CellOrder:    schema.RowMajor,
		Dense:        true,
		Domain:       [][2]float64{{0, 15}},
		TileExtent:   []float64{4},
		TileCapacity: 4,
		Attributes: []schema.Attribute{
			{Name: "value", CellSize: 4},
		},
	}
}

// TestDenseFullReadIsIdempotentOnConcatenation drains a small dense
// fragment in one buffer large enough to hold everything, then again
// with a buffer so small it forces many resumed Read calls, and checks
// the concatenation of every batch is byte-identical either way.
func TestDenseFullReadIsIdempotentOnConcatenation(t *testing.T) {
	dir := t.TempDir()
	sch := denseFixtureSchema()
	values := []uint32{10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23, 24, 25}
	require.NoError(t, testfixture.Dense(dir, sch, values, false))

	bk, err := bookkeeping.Load(dir + "/" + bookkeeping.FileName)
	require.NoError(t, err)
	engine := ioengine.New(ioengine.Positional)

	full := drainAll(t, sch, bk, dir, engine, 4096)
	chunked := drainAll(t, sch, bk, dir, engine, 5) // one cell at a time (cellSize 4 < 5 < 8)

	require.Equal(t, full, chunked)
	require.Len(t, full, len(values)*4)
}

// drainAll fully reads the "value" attribute over the whole domain
// using a buffer sized bufSize bytes, resuming across overflow, and
// returns the concatenation of every batch's bytes.
func drainAll(t *testing.T, sch *schema.Schema, bk *bookkeeping.Bookkeeping, dir string, engine ioengine.Engine, bufSize int) []byte {
	t.Helper()
	rs, err := New(sch, bk, dir, engine, []string{"value"}, []int64{0, 15}, nil)
	require.NoError(t, err)

	var out []byte
	for {
		buf := &Buffer{Data: make([]byte, bufSize)}
		require.NoError(t, rs.Read(map[string]*Buffer{"value": buf}))
		out = append(out, buf.Data[:buf.FixedLen()]...)
		if rs.Done() {
			break
		}
	}
	return out
}

func TestDenseReadRespectsMonotoneCursor(t *testing.T) {
	dir := t.TempDir()
	sch := denseFixtureSchema()
	values := make([]uint32, 16)
	for i := range values {
		values[i] = uint32(i)
	}
	require.NoError(t, testfixture.Dense(dir, sch, values, false))
	bk, err := bookkeeping.Load(dir + "/" + bookkeeping.FileName)
	require.NoError(t, err)
	engine := ioengine.New(ioengine.Positional)

	rs, err := New(sch, bk, dir, engine, []string{"value"}, []int64{0, 15}, nil)
	require.NoError(t, err)

	buf := &Buffer{Data: make([]byte, 8)} // room for 2 of the tile's 4 cells
	require.NoError(t, rs.Read(map[string]*Buffer{"value": buf}))
	require.True(t, buf.Overflow, "2 cells remain in this tile alone, let alone the other 3 tiles")
	require.Equal(t, 8, buf.FixedLen())
	require.False(t, rs.Done())

	buf2 := &Buffer{Data: make([]byte, 8)}
	require.NoError(t, rs.Read(map[string]*Buffer{"value": buf2}))
	require.NotEqual(t, buf.Data, buf2.Data, "resumed read must not repeat already-copied cells")
}

func sparseFixtureSchema() *schema.Schema {
	return &schema.Schema{
		NumDims:           1,
		CoordType:         schema.Int64,
		CellOrder:         schema.RowMajor,
		Dense:             false,
		Domain:            [][2]float64{{0, 999}},
		TileCapacity:      4,
		CoordsCompression: schema.NoCompression,
		Attributes: []schema.Attribute{
			{Name: "value", CellSize: 4},
		},
	}
}

func TestSparseReadResolvesCoordinatesAndValues(t *testing.T) {
	dir := t.TempDir()
	sch := sparseFixtureSchema()
	cells := []testfixture.SparseCell{
		{Coords: []float64{1}, Value: 100},
		{Coords: []float64{5}, Value: 500},
		{Coords: []float64{9}, Value: 900},
		{Coords: []float64{20}, Value: 2000},
	}
	require.NoError(t, testfixture.Sparse(dir, sch, cells, false))

	bk, err := bookkeeping.Load(dir + "/" + bookkeeping.FileName)
	require.NoError(t, err)
	engine := ioengine.New(ioengine.Positional)

	rs, err := New(sch, bk, dir, engine, []string{"value", CoordsAttrName}, nil, []float64{0, 10})
	require.NoError(t, err)

	buffers := map[string]*Buffer{
		"value":       {Data: make([]byte, 256)},
		CoordsAttrName: {Data: make([]byte, 256)},
	}
	require.NoError(t, rs.Read(buffers))
	require.True(t, rs.Done())

	// cells 1, 5, 9 qualify (coordinate <= 10); 20 does not.
	require.Equal(t, 12, buffers["value"].FixedLen())
	require.Equal(t, 24, buffers[CoordsAttrName].FixedLen())
}
