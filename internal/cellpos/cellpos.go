// Package cellpos implements the Cell-Position Resolver: given a sparse
// tile's resident coordinates and a query range, it produces the
// ordered list of intra-tile cell positions that qualify, as inclusive
// (start, end) runs in the tile's storage order.
//
// It assumes what every sparse tile's on-disk layout guarantees: cells
// within one tile are stored sorted in the fragment's cell order, which
// is what makes the binary-search sub-cases below correct instead of a
// linear scan everywhere.
package cellpos

import (
	"sort"

	"github.com/arrayfs/fragread/internal/schema"
)

// Range is an inclusive intra-tile cell-position run.
type Range struct {
	Start, End uint64
}

// Resolve returns the qualifying cell-position ranges for one tile.
// coords holds cellNum tuples of NumDims float64 values, in the tile's
// on-disk storage order. queryRange is a flat [lo0,hi0,lo1,hi1,...] box
// in global cell coordinates.
func Resolve(sch *schema.Schema, queryRange []float64, coords []float64) []Range {
	ndims := sch.NumDims
	cellNum := len(coords) / ndims
	if cellNum == 0 {
		return nil
	}

	cellAt := func(i int) []float64 { return coords[i*ndims : (i+1)*ndims] }
	inRange := func(c []float64) bool {
		for d := 0; d < ndims; d++ {
			if c[d] < queryRange[2*d] || c[d] > queryRange[2*d+1] {
				return false
			}
		}
		return true
	}

	if sch.CellOrder == schema.HilbertOrder {
		if isUnary(queryRange, ndims) {
			point := make([]float64, ndims)
			for d := 0; d < ndims; d++ {
				point[d] = queryRange[2*d]
			}
			target := sch.HilbertID(toInt64(point))
			idx := sort.Search(cellNum, func(i int) bool {
				return sch.HilbertID(toInt64(cellAt(i))) >= target
			})
			if idx < cellNum && sch.HilbertID(toInt64(cellAt(idx))) == target && sameTuple(cellAt(idx), point) {
				return []Range{{Start: uint64(idx), End: uint64(idx)}}
			}
			return nil
		}
		return scanRuns(cellNum, func(i int) bool { return inRange(cellAt(i)) })
	}

	less := sch.Less

	if isUnary(queryRange, ndims) {
		point := make([]float64, ndims)
		for d := 0; d < ndims; d++ {
			point[d] = queryRange[2*d]
		}
		idx := sort.Search(cellNum, func(i int) bool { return !less(cellAt(i), point) })
		if idx < cellNum && sameTuple(cellAt(idx), point) {
			return []Range{{Start: uint64(idx), End: uint64(idx)}}
		}
		return nil
	}

	lo, hi := make([]float64, ndims), make([]float64, ndims)
	for d := 0; d < ndims; d++ {
		lo[d] = queryRange[2*d]
		hi[d] = queryRange[2*d+1]
	}

	start := sort.Search(cellNum, func(i int) bool { return !less(cellAt(i), lo) })
	end := sort.Search(cellNum, func(i int) bool { return less(hi, cellAt(i)) }) - 1

	if start > end || start >= cellNum || end < 0 {
		return nil
	}

	if isContiguousQuery(sch, queryRange) {
		return []Range{{Start: uint64(start), End: uint64(end)}}
	}

	// partial_non_contig: scan the bounding [start,end] window and
	// run-length-encode the cells that actually qualify.
	runs := scanRuns(end-start+1, func(i int) bool { return inRange(cellAt(start + i)) })
	for i := range runs {
		runs[i].Start += uint64(start)
		runs[i].End += uint64(start)
	}
	return runs
}

// isUnary reports whether the query range names exactly one point.
func isUnary(queryRange []float64, ndims int) bool {
	for d := 0; d < ndims; d++ {
		if queryRange[2*d] != queryRange[2*d+1] {
			return false
		}
	}
	return true
}

// isContiguousQuery reports whether, restricted to this tile, the query
// range spans every dimension's full domain extent except the
// slowest-varying one -- the condition under which a run of qualifying
// cells is guaranteed contiguous in storage order without scanning.
func isContiguousQuery(sch *schema.Schema, queryRange []float64) bool {
	slowest := 0
	if sch.CellOrder == schema.ColumnMajor {
		slowest = sch.NumDims - 1
	}
	for d := 0; d < sch.NumDims; d++ {
		if d == slowest {
			continue
		}
		domLo, domHi := sch.Domain[d][0], sch.Domain[d][1]
		if queryRange[2*d] > domLo || queryRange[2*d+1] < domHi {
			return false
		}
	}
	return true
}

func sameTuple(a, b []float64) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func toInt64(coords []float64) []int64 {
	out := make([]int64, len(coords))
	for i, c := range coords {
		out[i] = int64(c)
	}
	return out
}

// scanRuns run-length-encodes the indices in [0,n) for which test
// returns true, into maximal contiguous (start,end) ranges.
func scanRuns(n int, test func(i int) bool) []Range {
	var runs []Range
	inRun := false
	var start int
	for i := 0; i < n; i++ {
		ok := test(i)
		switch {
		case ok && !inRun:
			inRun = true
			start = i
		case !ok && inRun:
			inRun = false
			runs = append(runs, Range{Start: uint64(start), End: uint64(i - 1)})
		}
	}
	if inRun {
		runs = append(runs, Range{Start: uint64(start), End: uint64(n - 1)})
	}
	return runs
}
