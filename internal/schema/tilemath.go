package schema

// OverlapKind classifies how a tile intersects a query range.
type OverlapKind int

const (
	OverlapNone OverlapKind = iota
	OverlapFull
	OverlapPartialNonContig
	OverlapPartialContig
)

func (k OverlapKind) String() string {
	switch k {
	case OverlapNone:
		return "NONE"
	case OverlapFull:
		return "FULL"
	case OverlapPartialContig:
		return "PARTIAL_CONTIG"
	case OverlapPartialNonContig:
		return "PARTIAL_NON_CONTIG"
	default:
		return "UNKNOWN"
	}
}

// TilePos flattens dense tile-space coordinates into a linear tile index,
// walking dimensions in the schema's cell order. Row-major and Hilbert
// both iterate with the last dimension varying fastest when flattened
// into a linear tile index; column-major iterates with the first
// dimension fastest.
func (s *Schema) TilePos(tileCoords []int64) uint64 {
	td := s.TileDomain()
	var pos uint64 = 0
	if s.CellOrder == ColumnMajor {
		mult := uint64(1)
		for d := 0; d < s.NumDims; d++ {
			n := uint64(tileCoords[d] - td[d][0])
			pos += n * mult
			mult *= uint64(td[d][1]-td[d][0]) + 1
		}
		return pos
	}
	// RowMajor and HilbertOrder tile enumeration both use row-major
	// linearization of tile space; Hilbert only reorders *cells within*
	// a tile, not the tile grid itself.
	mult := uint64(1)
	for d := s.NumDims - 1; d >= 0; d-- {
		n := uint64(tileCoords[d] - td[d][0])
		pos += n * mult
		mult *= uint64(td[d][1]-td[d][0]) + 1
	}
	return pos
}

// NextTileCoords advances coords to the next tile in the schema's tile
// order, clipped to tileDomain. Returns false once the domain is exhausted.
func (s *Schema) NextTileCoords(tileDomain [][2]int64, coords []int64) bool {
	if s.CellOrder == ColumnMajor {
		for d := 0; d < s.NumDims; d++ {
			coords[d]++
			if coords[d] <= tileDomain[d][1] {
				return true
			}
			coords[d] = tileDomain[d][0]
		}
		return false
	}
	for d := s.NumDims - 1; d >= 0; d-- {
		coords[d]++
		if coords[d] <= tileDomain[d][1] {
			return true
		}
		coords[d] = tileDomain[d][0]
	}
	return false
}

// CellPos returns the intra-tile linear cell position of tile-local
// coordinates (each in [0, TileExtent[d])), per the schema's cell order.
func (s *Schema) CellPos(localCoords []int64) uint64 {
	if s.CellOrder == HilbertOrder {
		return s.HilbertID(localCoords)
	}
	var pos uint64
	if s.CellOrder == ColumnMajor {
		mult := uint64(1)
		for d := 0; d < s.NumDims; d++ {
			pos += uint64(localCoords[d]) * mult
			mult *= uint64(s.TileExtent[d])
		}
		return pos
	}
	mult := uint64(1)
	for d := s.NumDims - 1; d >= 0; d-- {
		pos += uint64(localCoords[d]) * mult
		mult *= uint64(s.TileExtent[d])
	}
	return pos
}

// CellNumInTileSlab returns the number of cells in one "slab" of a full
// tile: a contiguous run along the fastest-varying dimension.
func (s *Schema) CellNumInTileSlab() uint64 {
	if s.NumDims == 0 {
		return 0
	}
	if s.CellOrder == ColumnMajor {
		return uint64(s.TileExtent[0])
	}
	return uint64(s.TileExtent[s.NumDims-1])
}

// CellNumInRangeSlab returns the number of cells in one slab of the
// overlap range (a [lo0,hi0,lo1,hi1,...] flat box of tile-local coords).
func (s *Schema) CellNumInRangeSlab(overlapRange []int64) uint64 {
	if s.NumDims == 0 {
		return 0
	}
	d := s.NumDims - 1
	if s.CellOrder == ColumnMajor {
		d = 0
	}
	return uint64(overlapRange[2*d+1]-overlapRange[2*d]) + 1
}

// ComputeTileRangeOverlap clips a query range (flat [lo,hi] pairs in
// global cell coordinates) against one dense tile's cell-coordinate
// extent (given by the tile's global origin and TileExtent), and
// classifies the overlap. The returned overlap range is expressed in
// tile-local coordinates (flat [lo,hi] pairs, each in [0, TileExtent[d])).
func (s *Schema) ComputeTileRangeOverlap(queryRange []int64, tileOrigin []int64) ([]int64, OverlapKind) {
	overlapRange := make([]int64, 2*s.NumDims)
	full := true
	any := true
	for d := 0; d < s.NumDims; d++ {
		tileLo := tileOrigin[d]
		tileHi := tileOrigin[d] + int64(s.TileExtent[d]) - 1

		lo := queryRange[2*d]
		hi := queryRange[2*d+1]

		ovLo := maxI64(lo, tileLo)
		ovHi := minI64(hi, tileHi)
		if ovLo > ovHi {
			any = false
			break
		}
		if ovLo > tileLo || ovHi < tileHi {
			full = false
		}
		overlapRange[2*d] = ovLo - tileOrigin[d]
		overlapRange[2*d+1] = ovHi - tileOrigin[d]
	}

	if !any {
		return overlapRange, OverlapNone
	}
	if full {
		return overlapRange, OverlapFull
	}
	if s.isContiguous(overlapRange) {
		return overlapRange, OverlapPartialContig
	}
	return overlapRange, OverlapPartialNonContig
}

// isContiguous reports whether a tile-local overlap range forms one
// contiguous run of cells under the schema's cell order: every
// dimension but the slowest-varying one must span the tile's full
// extent.
func (s *Schema) isContiguous(overlapRange []int64) bool {
	if s.CellOrder == HilbertOrder {
		// A Hilbert-ordered overlap is contiguous only in the
		// degenerate single-cell case; the resolver handles that
		// directly rather than asking for contiguity here.
		return false
	}
	slowest := 0
	if s.CellOrder == RowMajor {
		slowest = 0
	} else {
		slowest = s.NumDims - 1
	}
	for d := 0; d < s.NumDims; d++ {
		if d == slowest {
			continue
		}
		if overlapRange[2*d] != 0 || overlapRange[2*d+1] != int64(s.TileExtent[d])-1 {
			return false
		}
	}
	return true
}

// ComputeMBRRangeOverlap classifies how a sparse tile's MBR (a flat
// [lo,hi] box in global cell coordinates) relates to the query range.
// It never returns PARTIAL_CONTIG/PARTIAL_NON_CONTIG distinctions --
// that refinement requires the actual coordinates and is the Cell-
// Position Resolver's job -- but it does distinguish NONE, FULL (the
// MBR, and therefore every cell in the tile, lies inside the query)
// and a generic "partial" reported as PARTIAL_NON_CONTIG pending
// resolution.
func (s *Schema) ComputeMBRRangeOverlap(queryRange, mbr []float64) OverlapKind {
	full := true
	for d := 0; d < s.NumDims; d++ {
		qLo, qHi := queryRange[2*d], queryRange[2*d+1]
		mLo, mHi := mbr[2*d], mbr[2*d+1]
		if mHi < qLo || mLo > qHi {
			return OverlapNone
		}
		if mLo < qLo || mHi > qHi {
			full = false
		}
	}
	if full {
		return OverlapFull
	}
	return OverlapPartialNonContig
}

// Less implements the fragment's cell-order comparator over decoded
// (float64) coordinate tuples: lexicographic with the first dimension
// most significant for row-major, the last dimension most significant
// for column-major, or Hilbert-index order for HilbertOrder. Shared by
// the Tile Locator's sparse binary searches and the Cell-Position
// Resolver so both packages agree on one definition of "order".
func (s *Schema) Less(a, b []float64) bool {
	if s.CellOrder == HilbertOrder {
		return s.HilbertID(ToInt64Tuple(a)) < s.HilbertID(ToInt64Tuple(b))
	}
	if s.CellOrder == ColumnMajor {
		for d := s.NumDims - 1; d >= 0; d-- {
			if a[d] != b[d] {
				return a[d] < b[d]
			}
		}
		return false
	}
	for d := 0; d < s.NumDims; d++ {
		if a[d] != b[d] {
			return a[d] < b[d]
		}
	}
	return false
}

func maxI64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func minI64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
