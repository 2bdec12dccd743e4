package schema

import "testing"

func rowMajorSchema(numDims int, extent []float64) *Schema {
	domain := make([][2]float64, numDims)
	for d := range domain {
		domain[d] = [2]float64{0, 9}
	}
	capacity := uint64(1)
	for _, e := range extent {
		capacity *= uint64(e)
	}
	return &Schema{
		NumDims:      numDims,
		CoordType:    Int64,
		CellOrder:    RowMajor,
		Dense:        true,
		Domain:       domain,
		TileExtent:   extent,
		TileCapacity: capacity,
	}
}

func TestTilePosRoundTrip(t *testing.T) {
	s := rowMajorSchema(2, []float64{5, 5})
	td := s.TileDomain()
	if td[0] != [2]int64{0, 1} || td[1] != [2]int64{0, 1} {
		t.Fatalf("unexpected tile domain: %v", td)
	}

	seen := map[uint64]bool{}
	coords := []int64{0, 0}
	for {
		pos := s.TilePos(coords)
		if seen[pos] {
			t.Fatalf("tile position %d repeated", pos)
		}
		seen[pos] = true
		if !s.NextTileCoords(td, coords) {
			break
		}
	}
	if len(seen) != 4 {
		t.Fatalf("expected 4 distinct tile positions, got %d", len(seen))
	}
}

func TestComputeTileRangeOverlap(t *testing.T) {
	s := rowMajorSchema(2, []float64{4, 4})

	tests := []struct {
		name       string
		query      []int64
		origin     []int64
		wantKind   OverlapKind
	}{
		{"full", []int64{0, 9, 0, 9}, []int64{0, 0}, OverlapFull},
		{"none", []int64{10, 10, 0, 3}, []int64{0, 0}, OverlapNone},
		{"partial contig", []int64{0, 1, 0, 3}, []int64{0, 0}, OverlapPartialContig},
		{"partial non contig", []int64{1, 2, 0, 1}, []int64{0, 0}, OverlapPartialNonContig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, kind := s.ComputeTileRangeOverlap(tt.query, tt.origin)
			if kind != tt.wantKind {
				t.Errorf("got %s, want %s", kind, tt.wantKind)
			}
		})
	}
}

func TestCellPosColumnMajor(t *testing.T) {
	s := rowMajorSchema(2, []float64{3, 3})
	s.CellOrder = ColumnMajor

	// column-major: first dim varies fastest
	if got := s.CellPos([]int64{0, 0}); got != 0 {
		t.Errorf("got %d, want 0", got)
	}
	if got := s.CellPos([]int64{1, 0}); got != 1 {
		t.Errorf("got %d, want 1", got)
	}
	if got := s.CellPos([]int64{0, 1}); got != 3 {
		t.Errorf("got %d, want 3", got)
	}
}

func TestLessRowMajor(t *testing.T) {
	s := rowMajorSchema(2, []float64{4, 4})
	if !s.Less([]float64{0, 1}, []float64{0, 2}) {
		t.Error("expected (0,1) < (0,2)")
	}
	if !s.Less([]float64{0, 9}, []float64{1, 0}) {
		t.Error("expected (0,9) < (1,0) under row-major")
	}
	if s.Less([]float64{1, 0}, []float64{1, 0}) {
		t.Error("expected equal tuples to not be Less")
	}
}

func TestHilbertIDDistinctOnSmallGrid(t *testing.T) {
	s := rowMajorSchema(2, []float64{4, 4})
	s.CellOrder = HilbertOrder

	// Hilbert IDs must be distinct for every cell in a small grid.
	seen := map[uint64]bool{}
	for x := int64(0); x < 4; x++ {
		for y := int64(0); y < 4; y++ {
			id := s.HilbertID([]int64{x, y})
			if seen[id] {
				t.Fatalf("duplicate hilbert id %d for (%d,%d)", id, x, y)
			}
			seen[id] = true
		}
	}
}
