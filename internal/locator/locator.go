// Package locator implements the Tile Locator: the sequence of tiles
// overlapping a query range, for both dense and sparse fragments.
package locator

import (
	"fmt"

	"github.com/google/btree"

	"github.com/arrayfs/fragread/internal/bookkeeping"
	"github.com/arrayfs/fragread/internal/cellpos"
	"github.com/arrayfs/fragread/internal/schema"
)

// OverlappingTile describes one tile intersected with the query range,
// matching the "Overlapping Tile" value a Tile Locator computes.
type OverlappingTile struct {
	Pos               uint64
	Coords            []int64 // dense only: the tile's coordinates in tile space
	OverlapRange      []int64 // dense only: tile-local [lo,hi] flat box
	Overlap           schema.OverlapKind
	CellNum           uint64
	CellPosRanges     []cellpos.Range // sparse partial only
	CoordsTileFetched bool            // sparse only
}

// CoordsFetcher fetches and decodes a sparse tile's resident
// coordinates (cellNum tuples of NumDims float64 values, in storage
// order). Supplied by the caller (internal/readstate) since retrieving
// the bytes requires the I/O Layer and Codec, which this package has no
// reason to depend on directly.
type CoordsFetcher func(tilePos uint64) ([]float64, error)

// Locator yields the sequence of overlapping tiles for one query range
// against one fragment.
type Locator struct {
	sch   *schema.Schema
	bk    *bookkeeping.Bookkeeping
	dense bool

	queryRangeF []float64
	queryRangeI []int64

	// dense state
	tileDomain        [][2]int64
	rangeInTileDomain [][2]int64
	started           bool
	exhausted         bool
	lastCoords        []int64

	// sparse state
	bounds             *btree.BTreeG[boundEntry]
	searchLo, searchHi int64
	lastPos            int64
	fetchCoords        CoordsFetcher
	coordsCache        map[uint64][]float64
}

// boundEntry is one tile's bounding-coordinates range, the element type
// stored in the sparse locator's ordered index.
type boundEntry struct {
	pos        uint64
	start, end []float64
}

// NewDense creates a Locator for a dense fragment.
func NewDense(sch *schema.Schema, bk *bookkeeping.Bookkeeping, queryRange []int64) *Locator {
	l := &Locator{
		sch:         sch,
		bk:          bk,
		dense:       true,
		queryRangeI: queryRange,
		tileDomain:  sch.TileDomain(),
	}

	l.rangeInTileDomain = make([][2]int64, sch.NumDims)
	empty := false
	for d := 0; d < sch.NumDims; d++ {
		domLo := int64(sch.Domain[d][0])
		ext := int64(sch.TileExtent[d])
		qLo, qHi := queryRange[2*d], queryRange[2*d+1]

		tLo := (qLo - domLo) / ext
		if (qLo-domLo)%ext != 0 && qLo < domLo {
			tLo--
		}
		tHi := (qHi - domLo) / ext

		if tLo < l.tileDomain[d][0] {
			tLo = l.tileDomain[d][0]
		}
		if tHi > l.tileDomain[d][1] {
			tHi = l.tileDomain[d][1]
		}
		if tLo > tHi {
			empty = true
		}
		l.rangeInTileDomain[d] = [2]int64{tLo, tHi}
	}
	if empty {
		l.exhausted = true
	}
	return l
}

// NewSparse creates a Locator for a sparse fragment.
func NewSparse(sch *schema.Schema, bk *bookkeeping.Bookkeeping, queryRange []float64, fetch CoordsFetcher) *Locator {
	l := &Locator{
		sch:         sch,
		bk:          bk,
		dense:       false,
		queryRangeF: queryRange,
		fetchCoords: fetch,
		coordsCache: make(map[uint64][]float64),
	}

	n := int(bk.TileNum)
	if n == 0 {
		l.exhausted = true
		return l
	}
	for d := 0; d < sch.NumDims; d++ {
		if queryRange[2*d] > queryRange[2*d+1] {
			l.exhausted = true
			return l
		}
	}

	qLo := make([]float64, sch.NumDims)
	qHi := make([]float64, sch.NumDims)
	for d := 0; d < sch.NumDims; d++ {
		qLo[d] = queryRange[2*d]
		qHi[d] = queryRange[2*d+1]
	}

	l.bounds = buildBoundIndex(sch, bk.BoundingCoords)
	lo := searchBound(sch, l.bounds, qLo, true)
	hi := searchBound(sch, l.bounds, qHi, false)

	if hi < lo {
		l.exhausted = true
		return l
	}
	l.searchLo, l.searchHi = int64(lo), int64(hi)
	return l
}

// buildBoundIndex loads a fragment's per-tile bounding-coordinates table
// into an ordered tree keyed by each tile's starting coordinate, so
// tile_search_range lookups (searchBound below) are tree descents rather
// than a hand-rolled binary search over a plain slice.
func buildBoundIndex(sch *schema.Schema, bc []bookkeeping.BoundingCoords) *btree.BTreeG[boundEntry] {
	less := func(a, b boundEntry) bool { return sch.Less(a.start, b.start) }
	tr := btree.NewG[boundEntry](32, less)
	for i, b := range bc {
		tr.ReplaceOrInsert(boundEntry{pos: uint64(i), start: b.Start, end: b.End})
	}
	return tr
}

// searchBound performs the search tile_search_range needs (find
// the tile whose bounding range contains probe, or the nearest boundary
// tile when none does) as two tree descents: DescendLessOrEqual finds
// the tile starting at-or-before probe; if probe falls past that tile's
// end, probe sits in the gap before the next tile, so AscendGreaterOrEqual
// locates it. lowerBound selects which side of the gap to report.
func searchBound(sch *schema.Schema, tr *btree.BTreeG[boundEntry], probe []float64, lowerBound bool) int {
	var candidate boundEntry
	found := false
	tr.DescendLessOrEqual(boundEntry{start: probe}, func(e boundEntry) bool {
		candidate = e
		found = true
		return false
	})
	if found && !sch.Less(candidate.end, probe) {
		return int(candidate.pos)
	}
	if lowerBound {
		var next boundEntry
		hasNext := false
		tr.AscendGreaterOrEqual(boundEntry{start: probe}, func(e boundEntry) bool {
			next = e
			hasNext = true
			return false
		})
		if !hasNext {
			return tr.Len()
		}
		return int(next.pos)
	}
	if !found {
		return -1
	}
	return int(candidate.pos)
}

// Next returns the next overlapping tile, or a NONE sentinel once the
// sequence is exhausted (callers should stop reading on NONE; calling
// Next again after NONE keeps returning NONE).
func (l *Locator) Next() (*OverlappingTile, error) {
	if l.dense {
		return l.nextDense()
	}
	return l.nextSparse()
}

func (l *Locator) nextDense() (*OverlappingTile, error) {
	if l.exhausted {
		return &OverlappingTile{Overlap: schema.OverlapNone}, nil
	}

	var coords []int64
	if !l.started {
		coords = make([]int64, l.sch.NumDims)
		for d := range coords {
			coords[d] = l.rangeInTileDomain[d][0]
		}
		l.started = true
	} else {
		coords = append([]int64(nil), l.lastCoords...)
		if !l.sch.NextTileCoords(l.rangeInTileDomain, coords) {
			l.exhausted = true
			return &OverlappingTile{Overlap: schema.OverlapNone}, nil
		}
	}
	l.lastCoords = coords

	pos := l.sch.TilePos(coords)
	tileOrigin := make([]int64, l.sch.NumDims)
	for d := 0; d < l.sch.NumDims; d++ {
		tileOrigin[d] = int64(l.sch.Domain[d][0]) + coords[d]*int64(l.sch.TileExtent[d])
	}

	overlapRange, kind := l.sch.ComputeTileRangeOverlap(l.queryRangeI, tileOrigin)

	return &OverlappingTile{
		Pos:          pos,
		Coords:       coords,
		OverlapRange: overlapRange,
		Overlap:      kind,
		CellNum:      l.sch.CellNumPerTile(),
	}, nil
}

func (l *Locator) nextSparse() (*OverlappingTile, error) {
	if l.exhausted {
		return &OverlappingTile{Overlap: schema.OverlapNone}, nil
	}

	pos := l.searchLo
	if l.started {
		pos = l.lastPos + 1
	}
	l.started = true

	var kind schema.OverlapKind
	for ; pos <= l.searchHi; pos++ {
		if int(pos) >= len(l.bk.MBRs) {
			break
		}
		kind = l.sch.ComputeMBRRangeOverlap(l.queryRangeF, l.bk.MBRs[pos])
		if kind != schema.OverlapNone {
			break
		}
	}
	if pos > l.searchHi {
		l.exhausted = true
		return &OverlappingTile{Overlap: schema.OverlapNone}, nil
	}
	l.lastPos = pos

	cellNum := l.bk.CellNum(uint64(pos), l.sch.TileCapacity)
	tile := &OverlappingTile{
		Pos:     uint64(pos),
		Overlap: kind,
		CellNum: cellNum,
	}

	if kind == schema.OverlapFull {
		return tile, nil
	}

	coords, err := l.coordsFor(uint64(pos))
	if err != nil {
		return nil, fmt.Errorf("locator: fetching coordinates tile %d: %w", pos, err)
	}
	tile.CoordsTileFetched = true

	ranges := cellpos.Resolve(l.sch, l.queryRangeF, coords)
	tile.CellPosRanges = ranges

	switch {
	case len(ranges) == 0:
		// No cell qualifies: the tile keeps its MBR classification with an
		// empty range list, which the Copy Engine steps past without I/O.
	case len(ranges) == 1:
		tile.Overlap = schema.OverlapPartialContig
	default:
		tile.Overlap = schema.OverlapPartialNonContig
	}
	return tile, nil
}

// coordsFor returns a sparse tile's decoded coordinates, fetching and
// caching them on first use (invariant: the coordinates tile is fetched
// at most once per overlap, shared between cell-position resolution and
// coordinate-attribute emission).
func (l *Locator) coordsFor(pos uint64) ([]float64, error) {
	if c, ok := l.coordsCache[pos]; ok {
		return c, nil
	}
	c, err := l.fetchCoords(pos)
	if err != nil {
		return nil, err
	}
	l.coordsCache[pos] = c
	return c, nil
}
