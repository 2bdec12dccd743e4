// Package schema implements the read path's Schema Oracle: a pure,
// read-only source of truth for dimension count, coordinate element
// type, per-attribute cell size, tile geometry and cell ordering.
//
// Every other package in fragread (locator, cellpos, readstate) asks
// the Schema Oracle instead of hard-coding tile math, so the four
// coordinate element types share one code path, collapsing what would
// otherwise be a per-type method explosion into decode-once-at-the-edge,
// operate-on-float64 dispatch.
package schema

import "fmt"

// CoordType identifies the on-disk element type of dimension coordinates.
type CoordType int

const (
	Int32 CoordType = iota
	Int64
	Float32
	Float64
)

// Size returns the on-disk width in bytes of one coordinate value.
func (t CoordType) Size() int {
	switch t {
	case Int32, Float32:
		return 4
	case Int64, Float64:
		return 8
	default:
		return 0
	}
}

func (t CoordType) String() string {
	switch t {
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return "unknown"
	}
}

// IsInteger reports whether the type is one of the integer coordinate
// types. Dense fragments require integer coordinates; dense domains
// never use floating-point coordinate types.
func (t CoordType) IsInteger() bool {
	return t == Int32 || t == Int64
}

// CellOrder is the schema-declared traversal order of cells within a tile.
type CellOrder int

const (
	RowMajor CellOrder = iota
	ColumnMajor
	HilbertOrder
)

func (o CellOrder) String() string {
	switch o {
	case RowMajor:
		return "row-major"
	case ColumnMajor:
		return "column-major"
	case HilbertOrder:
		return "hilbert"
	default:
		return "unknown"
	}
}

// CompressionKind identifies the codec used to persist a tile on disk.
type CompressionKind int

const (
	NoCompression CompressionKind = iota
	GzipCompression
	LZ4Compression
)

// Attribute describes one fixed- or variable-size attribute of the array.
type Attribute struct {
	Name        string
	CellSize    uint32 // bytes per cell for fixed attrs; offset-entry size (8) for var attrs
	VarSize     bool
	Compression CompressionKind
}

// Schema is the pure, read-only oracle over dimension count, coordinate
// element type, tile geometry, and cell order.
// It never touches disk; bookkeeping and the fragment directory supply
// the concrete numbers it reasons about.
type Schema struct {
	NumDims      int
	CoordType    CoordType
	CellOrder    CellOrder
	Dense        bool
	Domain       [][2]float64 // per-dimension [lo, hi], inclusive
	TileExtent   []float64    // per-dimension tile extent (dense only, nil for sparse)
	TileCapacity uint64       // cells per tile (= product of TileExtent for dense, or fixed capacity for sparse)
	Attributes   []Attribute

	// CoordsCompression is the compression kind of the reserved
	// coordinates tile (sparse fragments only; dense fragments store
	// no coordinates file, positions being implicit in tile layout).
	CoordsCompression CompressionKind
}

// Validate checks the schema for internal consistency.
func (s *Schema) Validate() error {
	if s.NumDims <= 0 {
		return fmt.Errorf("schema: NumDims must be positive, got %d", s.NumDims)
	}
	if len(s.Domain) != s.NumDims {
		return fmt.Errorf("schema: Domain has %d entries, want %d", len(s.Domain), s.NumDims)
	}
	if s.Dense {
		if !s.CoordType.IsInteger() {
			return fmt.Errorf("schema: dense fragment requires integer coordinates, got %s", s.CoordType)
		}
		if len(s.TileExtent) != s.NumDims {
			return fmt.Errorf("schema: dense TileExtent has %d entries, want %d", len(s.TileExtent), s.NumDims)
		}
	}
	if s.TileCapacity == 0 {
		return fmt.Errorf("schema: TileCapacity must be positive")
	}
	return nil
}

// CellNumPerTile returns the number of cells a full tile holds.
func (s *Schema) CellNumPerTile() uint64 {
	return s.TileCapacity
}

// AttributeByName returns the attribute descriptor, or false if unknown.
func (s *Schema) AttributeByName(name string) (Attribute, bool) {
	for _, a := range s.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

// NumTilesInDim returns how many tiles span dimension d of the domain.
// Dense fragments only; sparse fragments have no tile-space geometry.
func (s *Schema) NumTilesInDim(d int) uint64 {
	lo, hi := s.Domain[d][0], s.Domain[d][1]
	span := hi - lo + 1
	ext := s.TileExtent[d]
	n := span / ext
	if span-n*ext > 0 {
		n++
	}
	if n < 1 {
		n = 1
	}
	return uint64(n)
}

// TileDomain returns, per dimension, the inclusive [lo, hi] range of
// valid tile indices for the whole fragment.
func (s *Schema) TileDomain() [][2]int64 {
	td := make([][2]int64, s.NumDims)
	for d := 0; d < s.NumDims; d++ {
		td[d] = [2]int64{0, int64(s.NumTilesInDim(d)) - 1}
	}
	return td
}
