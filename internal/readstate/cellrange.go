package readstate

import (
	"sort"

	"github.com/arrayfs/fragread/internal/cellpos"
	"github.com/arrayfs/fragread/internal/schema"
)

// cellRangesForDense enumerates the qualifying cells of a dense tile's
// overlap rectangle as maximal contiguous runs in the tile's storage
// order. A FULL overlap degenerates to one run spanning the whole
// tile. Under row- or column-major order, PARTIAL_CONTIG and
// PARTIAL_NON_CONTIG both produce one run per row (or column) slab the
// overlap rectangle spans, sorted by start; for PARTIAL_CONTIG those
// runs are adjacent in storage order and are not merged. Collapsing all three into one enumeration keeps the Copy
// Engine's per-attribute loop free of overlap-kind-specific branching.
func cellRangesForDense(sch *schema.Schema, overlap schema.OverlapKind, overlapRange []int64, cellNum uint64) []cellpos.Range {
	if overlap == schema.OverlapFull {
		return []cellpos.Range{{Start: 0, End: cellNum - 1}}
	}

	ndims := sch.NumDims
	fastest := ndims - 1
	if sch.CellOrder == schema.ColumnMajor {
		fastest = 0
	}

	var dimsToIter []int
	for d := 0; d < ndims; d++ {
		if d != fastest {
			dimsToIter = append(dimsToIter, d)
		}
	}

	coords := make([]int64, ndims)
	var runs []cellpos.Range

	var walk func(idx int)
	walk = func(idx int) {
		if idx == len(dimsToIter) {
			start := append([]int64(nil), coords...)
			start[fastest] = overlapRange[2*fastest]
			startPos := sch.CellPos(start)
			length := uint64(overlapRange[2*fastest+1] - overlapRange[2*fastest] + 1)
			runs = append(runs, cellpos.Range{Start: startPos, End: startPos + length - 1})
			return
		}
		d := dimsToIter[idx]
		for v := overlapRange[2*d]; v <= overlapRange[2*d+1]; v++ {
			coords[d] = v
			walk(idx + 1)
		}
	}

	if sch.CellOrder == schema.HilbertOrder {
		return hilbertCellRanges(sch, overlapRange)
	}

	walk(0)
	sort.Slice(runs, func(i, j int) bool { return runs[i].Start < runs[j].Start })
	return runs
}

// hilbertCellRanges handles dense Hilbert-ordered tiles, where a
// rectangular overlap has no guaranteed contiguity in storage order: it
// enumerates every cell in the box, computes its Hilbert position, and
// run-length-encodes the sorted positions.
func hilbertCellRanges(sch *schema.Schema, overlapRange []int64) []cellpos.Range {
	ndims := sch.NumDims
	var positions []uint64
	coords := make([]int64, ndims)

	var rec func(d int)
	rec = func(d int) {
		if d == ndims {
			positions = append(positions, sch.CellPos(append([]int64(nil), coords...)))
			return
		}
		for v := overlapRange[2*d]; v <= overlapRange[2*d+1]; v++ {
			coords[d] = v
			rec(d + 1)
		}
	}
	rec(0)
	sort.Slice(positions, func(i, j int) bool { return positions[i] < positions[j] })

	var runs []cellpos.Range
	for i, p := range positions {
		if i > 0 && p == positions[i-1]+1 {
			runs[len(runs)-1].End = p
			continue
		}
		runs = append(runs, cellpos.Range{Start: p, End: p})
	}
	return runs
}
