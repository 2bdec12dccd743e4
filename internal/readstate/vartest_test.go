package readstate

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arrayfs/fragread/internal/bookkeeping"
	"github.com/arrayfs/fragread/internal/ioengine"
	"github.com/arrayfs/fragread/internal/schema"
	"github.com/arrayfs/fragread/internal/testfixture"
)

func denseVarFixtureSchema() *schema.Schema {
	return &schema.Schema{
		NumDims:      2,
		CoordType:    schema.Int64,
		CellOrder:    schema.RowMajor,
		Dense:        true,
		Domain:       [][2]float64{{0, 1}, {0, 1}},
		TileExtent:   []float64{2, 2},
		TileCapacity: 4,
		Attributes: []schema.Attribute{
			{Name: "value", CellSize: 8, VarSize: true},
		},
	}
}

// decodeUint64s reinterprets a buffer's fixed half as a []uint64 offset table.
func decodeUint64s(data []byte, n int) []uint64 {
	out := make([]uint64, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint64(data[i*8 : i*8+8])
	}
	return out
}

// TestDenseVarReadRebasesOffsetsWithinOneTile drains a single 2x2 tile
// of a variable-size string attribute over its whole domain with ample
// buffers, and checks the rebased offsets and payload come out
// byte-identical to the source cells concatenated in storage order.
func TestDenseVarReadRebasesOffsetsWithinOneTile(t *testing.T) {
	dir := t.TempDir()
	sch := denseVarFixtureSchema()
	values := [][]byte{[]byte("a"), []byte("bb"), []byte("ccc"), []byte("dddd")}
	require.NoError(t, testfixture.DenseVar(dir, sch, values, false))

	bk, err := bookkeeping.Load(dir + "/" + bookkeeping.FileName)
	require.NoError(t, err)
	engine := ioengine.New(ioengine.Positional)

	rs, err := New(sch, bk, dir, engine, []string{"value"}, []int64{0, 1, 0, 1}, nil)
	require.NoError(t, err)

	buf := &Buffer{Data: make([]byte, 256), Var: make([]byte, 256)}
	require.NoError(t, rs.Read(map[string]*Buffer{"value": buf}))
	require.True(t, rs.Done())
	require.False(t, buf.Overflow)

	offsets := decodeUint64s(buf.Data[:buf.FixedLen()], 4)
	require.Equal(t, []uint64{0, 1, 3, 6}, offsets)
	require.Equal(t, "abbcccdddd", string(buf.Var[:buf.VarLen()]))
}

// TestDenseVarReadResumesAcrossOverflowWithRebasedOffsets exercises the
// same fixture with a variable-payload buffer too small to hold every
// cell, forcing an overflow-and-resume, and checks the second call's
// offsets are rebased against its own call-local payload start.
func TestDenseVarReadResumesAcrossOverflowWithRebasedOffsets(t *testing.T) {
	dir := t.TempDir()
	sch := denseVarFixtureSchema()
	values := [][]byte{[]byte("a"), []byte("bb"), []byte("ccc"), []byte("dddd")}
	require.NoError(t, testfixture.DenseVar(dir, sch, values, false))

	bk, err := bookkeeping.Load(dir + "/" + bookkeeping.FileName)
	require.NoError(t, err)
	engine := ioengine.New(ioengine.Positional)

	rs, err := New(sch, bk, dir, engine, []string{"value"}, []int64{0, 1, 0, 1}, nil)
	require.NoError(t, err)

	buf1 := &Buffer{Data: make([]byte, 256), Var: make([]byte, 5)}
	require.NoError(t, rs.Read(map[string]*Buffer{"value": buf1}))
	require.True(t, buf1.Overflow)
	require.False(t, rs.Done())
	offsets1 := decodeUint64s(buf1.Data[:buf1.FixedLen()], 2)
	require.Equal(t, []uint64{0, 1}, offsets1)
	require.Equal(t, "abb", string(buf1.Var[:buf1.VarLen()]))

	buf2 := &Buffer{Data: make([]byte, 256), Var: make([]byte, 16)}
	require.NoError(t, rs.Read(map[string]*Buffer{"value": buf2}))
	require.True(t, rs.Done())
	require.False(t, buf2.Overflow)
	offsets2 := decodeUint64s(buf2.Data[:buf2.FixedLen()], 2)
	require.Equal(t, []uint64{0, 3}, offsets2)
	require.Equal(t, "cccdddd", string(buf2.Var[:buf2.VarLen()]))
}

func denseGzipFixtureSchema() *schema.Schema {
	return &schema.Schema{
		NumDims:      2,
		CoordType:    schema.Int64,
		CellOrder:    schema.RowMajor,
		Dense:        true,
		Domain:       [][2]float64{{0, 3}, {0, 3}},
		TileExtent:   []float64{2, 2},
		TileCapacity: 4,
		Attributes: []schema.Attribute{
			{Name: "value", CellSize: 4, Compression: schema.GzipCompression},
		},
	}
}

// TestDenseGzipReadMatchesUncompressedOutput checks that a query
// against gzip-compressed tiles decodes to the same bytes as the
// identical query against uncompressed tiles: S6 is S1 with every
// tile gzipped on disk.
func TestDenseGzipReadMatchesUncompressedOutput(t *testing.T) {
	// values[i] is the global row-major cell value of the i-th cell in
	// storage (tile-by-tile, tile-local row-major) order.
	values := []uint32{
		0, 1, 4, 5, // tile (0,0): rows 0-1, cols 0-1
		2, 3, 6, 7, // tile (0,1): rows 0-1, cols 2-3
		8, 9, 12, 13, // tile (1,0): rows 2-3, cols 0-1
		10, 11, 14, 15, // tile (1,1): rows 2-3, cols 2-3
	}

	readOne := func(compress bool) []byte {
		dir := t.TempDir()
		sch := denseGzipFixtureSchema()
		if !compress {
			sch.Attributes[0].Compression = schema.NoCompression
		}
		require.NoError(t, testfixture.Dense(dir, sch, values, compress))

		bk, err := bookkeeping.Load(dir + "/" + bookkeeping.FileName)
		require.NoError(t, err)
		engine := ioengine.New(ioengine.Positional)

		rs, err := New(sch, bk, dir, engine, []string{"value"}, []int64{0, 1, 0, 1}, nil)
		require.NoError(t, err)

		buf := &Buffer{Data: make([]byte, 256)}
		require.NoError(t, rs.Read(map[string]*Buffer{"value": buf}))
		require.True(t, rs.Done())
		require.False(t, buf.Overflow)
		require.Equal(t, 16, buf.FixedLen())
		out := make([]byte, buf.FixedLen())
		copy(out, buf.Data[:buf.FixedLen()])
		return out
	}

	plain := readOne(false)
	gzipped := readOne(true)
	require.Equal(t, plain, gzipped)

	got := decodeUint32s(plain)
	require.Equal(t, []uint32{0, 1, 4, 5}, got)
}

func decodeUint32s(data []byte) []uint32 {
	out := make([]uint32, len(data)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(data[i*4 : i*4+4])
	}
	return out
}

// TestDenseReadRejectsChecksumMismatch checks that a tile whose bytes
// no longer match its recorded Fletcher-32 checksum is reported as an
// error rather than silently returned.
func TestDenseReadRejectsChecksumMismatch(t *testing.T) {
	dir := t.TempDir()
	sch := denseFixtureSchema()
	values := []uint32{10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23, 24, 25}
	require.NoError(t, testfixture.Dense(dir, sch, values, false))

	bk, err := bookkeeping.Load(dir + "/" + bookkeeping.FileName)
	require.NoError(t, err)
	bk.TileChecksums["value"][0] ^= 0xffffffff

	engine := ioengine.New(ioengine.Positional)
	rs, err := New(sch, bk, dir, engine, []string{"value"}, []int64{0, 15}, nil)
	require.NoError(t, err)

	buf := &Buffer{Data: make([]byte, 4096)}
	err = rs.Read(map[string]*Buffer{"value": buf})
	require.Error(t, err)
}

// TestSparseGzipReadMatchesUncompressedOutput checks that a sparse
// fragment written with both its value and coordinates tiles
// gzip-compressed decodes to the same bytes as the uncompressed
// fixture used by TestSparseReadResolvesCoordinatesAndValues.
func TestSparseGzipReadMatchesUncompressedOutput(t *testing.T) {
	dir := t.TempDir()
	sch := sparseFixtureSchema()
	sch.Attributes[0].Compression = schema.GzipCompression
	sch.CoordsCompression = schema.GzipCompression
	cells := []testfixture.SparseCell{
		{Coords: []float64{1}, Value: 100},
		{Coords: []float64{5}, Value: 500},
		{Coords: []float64{9}, Value: 900},
		{Coords: []float64{20}, Value: 2000},
	}
	require.NoError(t, testfixture.Sparse(dir, sch, cells, true))

	bk, err := bookkeeping.Load(dir + "/" + bookkeeping.FileName)
	require.NoError(t, err)
	engine := ioengine.New(ioengine.Positional)

	rs, err := New(sch, bk, dir, engine, []string{"value", CoordsAttrName}, nil, []float64{0, 10})
	require.NoError(t, err)

	buffers := map[string]*Buffer{
		"value":        {Data: make([]byte, 256)},
		CoordsAttrName: {Data: make([]byte, 256)},
	}
	require.NoError(t, rs.Read(buffers))
	require.True(t, rs.Done())

	require.Equal(t, 12, buffers["value"].FixedLen())
	require.Equal(t, 24, buffers[CoordsAttrName].FixedLen())
	got := decodeUint32s(buffers["value"].Data[:buffers["value"].FixedLen()])
	require.Equal(t, []uint32{100, 500, 900}, got)
}

// TestDenseReadViaMappedIOMatchesPositional checks the memory-mapped
// I/O backend reads the same bytes as the positional backend.
func TestDenseReadViaMappedIOMatchesPositional(t *testing.T) {
	dir := t.TempDir()
	sch := denseFixtureSchema()
	values := []uint32{10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23, 24, 25}
	require.NoError(t, testfixture.Dense(dir, sch, values, false))

	bk, err := bookkeeping.Load(dir + "/" + bookkeeping.FileName)
	require.NoError(t, err)

	positional := drainAll(t, sch, bk, dir, ioengine.New(ioengine.Positional), 4096)
	mapped := drainAll(t, sch, bk, dir, ioengine.New(ioengine.Mapped), 4096)

	require.Equal(t, positional, mapped)
}
