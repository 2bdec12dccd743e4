package fragment

import (
	"context"
	"fmt"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/arrayfs/fragread/internal/readstate"
	"github.com/arrayfs/fragread/internal/schema"
)

// MultiFragmentReader merges a query across several fragments of the
// same array, oldest first, the way an array's read path reconciles
// overlapping writes: a cell written by more than one fragment takes
// the value from the most recent (last in Fragments) fragment that
// wrote it. A single fragment's read state never needs to consult its
// siblings; this type is the thin layer above it that does.
type MultiFragmentReader struct {
	Fragments []*Fragment
	sch       *schema.Schema
}

// NewMultiFragmentReader builds a merging reader over fragments, oldest
// to newest. Every fragment must share the same schema shape (dimension
// count and coordinate type); NewMultiFragmentReader does not re-derive
// a schema from the fragments themselves (schema parsing is out of
// scope, as for Open).
func NewMultiFragmentReader(sch *schema.Schema, fragments ...*Fragment) (*MultiFragmentReader, error) {
	if len(fragments) == 0 {
		return nil, fmt.Errorf("fragment: NewMultiFragmentReader needs at least one fragment")
	}
	return &MultiFragmentReader{Fragments: fragments, sch: sch}, nil
}

// cell pairs a decoded coordinate tuple with one attribute's raw bytes,
// tagged with the fragment index that produced it so later fragments
// can be preferred during dedup.
type cell struct {
	coords []float64
	value  []byte
	frag   int
}

// ReadMerged runs queryRange against every fragment concurrently,
// drains each fragment's result for attrName (plus coordinates) fully
// into memory, then merges by cell order, keeping the newest
// fragment's value for any coordinate more than one fragment wrote.
//
// Unlike Fragment.NewReadState, this drains each fragment's matching
// cells to completion rather than supporting overflow-resumable
// partial reads: merging across fragments requires comparing every
// candidate cell, so there is no way to return a partial prefix
// without first collecting the whole candidate set.
func (m *MultiFragmentReader) ReadMerged(ctx context.Context, attrName string, queryRange []float64) ([]float64, []byte, error) {
	if attrName == readstate.CoordsAttrName {
		return nil, nil, fmt.Errorf("fragment: %q is implicit in ReadMerged's output, not a requestable attribute", attrName)
	}
	attr, ok := m.sch.AttributeByName(attrName)
	if !ok {
		return nil, nil, fmt.Errorf("fragment: %w: %q", ErrNoSuchAttr, attrName)
	}
	if attr.VarSize {
		return nil, nil, fmt.Errorf("fragment: ReadMerged supports fixed-size attributes only; %q is variable-size", attrName)
	}

	perFragment := make([][]cell, len(m.Fragments))

	g, _ := errgroup.WithContext(ctx)
	for i, f := range m.Fragments {
		i, f := i, f
		g.Go(func() error {
			cells, err := m.drainFragment(f, i, attrName, attr, queryRange)
			if err != nil {
				return fmt.Errorf("fragment %d: %w", i, err)
			}
			perFragment[i] = cells
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	merged := m.dedup(perFragment)
	sort.Slice(merged, func(i, j int) bool { return m.sch.Less(merged[i].coords, merged[j].coords) })

	coordsOut := make([]float64, 0, len(merged)*m.sch.NumDims)
	valuesOut := make([]byte, 0, len(merged)*int(attr.CellSize))
	for _, c := range merged {
		coordsOut = append(coordsOut, c.coords...)
		valuesOut = append(valuesOut, c.value...)
	}
	return coordsOut, valuesOut, nil
}

func (m *MultiFragmentReader) drainFragment(f *Fragment, idx int, attrName string, attr schema.Attribute, queryRange []float64) ([]cell, error) {
	rs, err := f.NewReadState(queryRange, WithAttributes(attrName, readstate.CoordsAttrName))
	if err != nil {
		return nil, err
	}

	const batchCells = 4096
	cellSize := int(attr.CellSize)
	coordSize := f.sch.NumDims * f.sch.CoordType.Size()

	var out []cell
	for {
		buffers := map[string]*readstate.Buffer{
			attrName:                 {Data: make([]byte, batchCells*cellSize)},
			readstate.CoordsAttrName: {Data: make([]byte, batchCells*coordSize)},
		}
		if err := rs.Read(buffers); err != nil {
			return nil, err
		}

		valBuf := buffers[attrName]
		coordBuf := buffers[readstate.CoordsAttrName]
		n := valBuf.FixedLen() / cellSize
		decoded, err := f.sch.DecodeCoords(coordBuf.Data[:coordBuf.FixedLen()], n)
		if err != nil {
			return nil, err
		}
		for i := 0; i < n; i++ {
			out = append(out, cell{
				coords: append([]float64(nil), decoded[i*f.sch.NumDims:(i+1)*f.sch.NumDims]...),
				value:  append([]byte(nil), valBuf.Data[i*cellSize:(i+1)*cellSize]...),
				frag:   idx,
			})
		}

		if n == 0 || rs.Done() {
			break
		}
	}
	return out, nil
}

// dedup keeps, for every distinct coordinate tuple, the cell from the
// highest fragment index (the newest fragment) that produced it.
func (m *MultiFragmentReader) dedup(perFragment [][]cell) []cell {
	latest := make(map[string]cell)
	for _, cells := range perFragment {
		for _, c := range cells {
			key := coordKey(c.coords)
			if existing, ok := latest[key]; !ok || c.frag > existing.frag {
				latest[key] = c
			}
		}
	}
	out := make([]cell, 0, len(latest))
	for _, c := range latest {
		out = append(out, c)
	}
	return out
}

func coordKey(coords []float64) string {
	b := make([]byte, 0, len(coords)*8)
	for _, c := range coords {
		v := math.Float64bits(c)
		b = append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24),
			byte(v>>32), byte(v>>40), byte(v>>48), byte(v>>56))
	}
	return string(b)
}
