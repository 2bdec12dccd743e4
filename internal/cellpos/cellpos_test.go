package cellpos

import (
	"reflect"
	"testing"

	"github.com/arrayfs/fragread/internal/schema"
)

func sparseSchema2D() *schema.Schema {
	return &schema.Schema{
		NumDims:      2,
		CoordType:    schema.Int64,
		CellOrder:    schema.RowMajor,
		Dense:        false,
		Domain:       [][2]float64{{0, 99}, {0, 99}},
		TileCapacity: 8,
	}
}

func TestResolveUnaryHit(t *testing.T) {
	sch := sparseSchema2D()
	coords := []float64{0, 0, 0, 5, 1, 2, 2, 0}
	got := Resolve(sch, []float64{1, 1, 2, 2}, coords)
	want := []Range{{Start: 2, End: 2}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestResolveUnaryMiss(t *testing.T) {
	sch := sparseSchema2D()
	coords := []float64{0, 0, 0, 5, 1, 2, 2, 0}
	got := Resolve(sch, []float64{9, 9, 9, 9}, coords)
	if got != nil {
		t.Errorf("expected no match, got %v", got)
	}
}

func TestResolveContiguousRun(t *testing.T) {
	sch := sparseSchema2D()
	// Cells sorted row-major: (0,0) (0,5) (0,8) (1,2) (1,9) (2,0)
	coords := []float64{0, 0, 0, 5, 0, 8, 1, 2, 1, 9, 2, 0}
	// Query selects row 0 entirely and row 1 entirely (dim1 spans full
	// domain for both, dim0 in [0,1]): should be one contiguous run.
	got := Resolve(sch, []float64{0, 1, 0, 99}, coords)
	want := []Range{{Start: 0, End: 4}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestResolveNonContiguousRun(t *testing.T) {
	sch := sparseSchema2D()
	coords := []float64{0, 0, 0, 5, 0, 8, 1, 2, 1, 9, 2, 0}
	// Selects only cells with dim1 in [0,5]: (0,0) and (0,5) qualify
	// directly, (1,2) also qualifies -- not contiguous with the first two.
	got := Resolve(sch, []float64{0, 1, 0, 5}, coords)
	want := []Range{{Start: 0, End: 1}, {Start: 3, End: 3}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestResolveEmptyTile(t *testing.T) {
	sch := sparseSchema2D()
	got := Resolve(sch, []float64{0, 1, 0, 1}, nil)
	if got != nil {
		t.Errorf("expected nil for empty tile, got %v", got)
	}
}
