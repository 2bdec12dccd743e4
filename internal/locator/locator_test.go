package locator

import (
	"testing"

	"github.com/arrayfs/fragread/internal/bookkeeping"
	"github.com/arrayfs/fragread/internal/schema"
)

func denseSchema() *schema.Schema {
	return &schema.Schema{
		NumDims:      2,
		CoordType:    schema.Int64,
		CellOrder:    schema.RowMajor,
		Dense:        true,
		Domain:       [][2]float64{{0, 7}, {0, 7}},
		TileExtent:   []float64{4, 4},
		TileCapacity: 16,
	}
}

func TestNewDenseExhaustsAfterEveryOverlappingTile(t *testing.T) {
	sch := denseSchema()
	bk := &bookkeeping.Bookkeeping{}
	loc := NewDense(sch, bk, []int64{0, 7, 0, 7})

	count := 0
	for {
		ot, err := loc.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if ot.Overlap == schema.OverlapNone {
			break
		}
		count++
		if ot.Overlap != schema.OverlapFull {
			t.Errorf("expected FULL overlap for whole-domain query, got %s", ot.Overlap)
		}
		if count > 10 {
			t.Fatal("locator did not terminate")
		}
	}
	if count != 4 {
		t.Errorf("expected 4 tiles for a 2x2 tile grid, got %d", count)
	}
}

func TestNewDenseEmptyQueryIsImmediatelyExhausted(t *testing.T) {
	sch := denseSchema()
	bk := &bookkeeping.Bookkeeping{}
	loc := NewDense(sch, bk, []int64{20, 30, 0, 7})

	ot, err := loc.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if ot.Overlap != schema.OverlapNone {
		t.Errorf("expected NONE for out-of-domain query, got %s", ot.Overlap)
	}
}

func TestNewSparseInvertedQueryIsImmediatelyExhausted(t *testing.T) {
	sch := sparseSchema()
	bk := &bookkeeping.Bookkeeping{
		TileNum: 1,
		MBRs:    []bookkeeping.Box{{0, 999}},
		BoundingCoords: []bookkeeping.BoundingCoords{
			{Start: []float64{0}, End: []float64{999}},
		},
	}

	fetchCalls := 0
	fetch := func(pos uint64) ([]float64, error) {
		fetchCalls++
		return nil, nil
	}

	loc := NewSparse(sch, bk, []float64{30, 20}, fetch)
	ot, err := loc.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if ot.Overlap != schema.OverlapNone {
		t.Errorf("expected NONE for inverted query range, got %s", ot.Overlap)
	}
	if fetchCalls != 0 {
		t.Errorf("inverted query should never need to fetch coordinates, got %d calls", fetchCalls)
	}
}

func sparseSchema() *schema.Schema {
	return &schema.Schema{
		NumDims:      1,
		CoordType:    schema.Int64,
		CellOrder:    schema.RowMajor,
		Dense:        false,
		Domain:       [][2]float64{{0, 999}},
		TileCapacity: 4,
	}
}

func TestNewSparseBinarySearchSkipsNonOverlapping(t *testing.T) {
	sch := sparseSchema()
	bk := &bookkeeping.Bookkeeping{
		TileNum: 3,
		MBRs: []bookkeeping.Box{
			{0, 9},
			{20, 29},
			{100, 109},
		},
		BoundingCoords: []bookkeeping.BoundingCoords{
			{Start: []float64{0}, End: []float64{9}},
			{Start: []float64{20}, End: []float64{29}},
			{Start: []float64{100}, End: []float64{109}},
		},
	}

	fetchCalls := 0
	fetch := func(pos uint64) ([]float64, error) {
		fetchCalls++
		return nil, nil
	}

	loc := NewSparse(sch, bk, []float64{20, 29}, fetch)
	ot, err := loc.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if ot.Pos != 1 {
		t.Errorf("expected tile 1 to overlap, got tile %d", ot.Pos)
	}
	if ot.Overlap != schema.OverlapFull {
		t.Errorf("expected FULL overlap, got %s", ot.Overlap)
	}

	ot, err = loc.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if ot.Overlap != schema.OverlapNone {
		t.Errorf("expected only one overlapping tile, got another: %+v", ot)
	}
	if fetchCalls != 0 {
		t.Errorf("FULL overlap should never need to fetch coordinates, got %d calls", fetchCalls)
	}
}
