// Package readstate implements the Copy Engine: the per-call state
// machine that walks the Tile Locator's output, resolves qualifying
// cell-position runs, fetches and decompresses tile bytes through the
// I/O Layer and Codec, and emits them into caller-supplied output
// buffers -- stopping and resuming cleanly whenever a buffer fills.
package readstate

import (
	"fmt"
	"os"

	"github.com/arrayfs/fragread/internal/bookkeeping"
	"github.com/arrayfs/fragread/internal/cellpos"
	"github.com/arrayfs/fragread/internal/ioengine"
	"github.com/arrayfs/fragread/internal/locator"
	"github.com/arrayfs/fragread/internal/schema"
)

// attrCursor tracks one attribute's position in the shared
// overlapping-tiles list: which tile it's copying from, which
// cell-position range within that tile, and how far into that range
// it has already copied. Each attribute advances independently --
// fixed attributes, variable attributes and the coordinates attribute
// all hit buffer capacity at different rates.
type attrCursor struct {
	tileIdx    int
	rangeIdx   int
	cellOffset uint64
	exhausted  bool

	tiles    map[uint64]TileStorage // fixed bytes (or var offsets tile), by tile pos
	varTiles map[uint64]TileStorage // variable payload bytes, by tile pos
	offsets  map[uint64][]uint64    // decoded + rebased var offsets (with trailing sentinel), by tile pos
}

func newAttrCursor() *attrCursor {
	return &attrCursor{
		tiles:    make(map[uint64]TileStorage),
		varTiles: make(map[uint64]TileStorage),
		offsets:  make(map[uint64][]uint64),
	}
}

// ReadState is one resumable read against one fragment, covering
// whichever attribute names (and optionally the reserved coordinates
// attribute, CoordsAttrName) the caller asked for.
type ReadState struct {
	sch    *schema.Schema
	bk     *bookkeeping.Bookkeeping
	dir    string
	engine ioengine.Engine
	dense  bool

	loc         *locator.Locator
	overlapping []*locator.OverlappingTile

	cursors map[string]*attrCursor
}

// New builds a ReadState over the requested attribute names (plus
// CoordsAttrName, to retrieve a sparse fragment's coordinates) and a
// query range in global cell coordinates: integer bounds
// (queryRangeDense) for a dense fragment, or float64 bounds
// (queryRangeSparse) for a sparse one. Exactly one of the two ranges applies, per sch.Dense.
func New(
	sch *schema.Schema,
	bk *bookkeeping.Bookkeeping,
	dir string,
	engine ioengine.Engine,
	attrNames []string,
	queryRangeDense []int64,
	queryRangeSparse []float64,
) (*ReadState, error) {
	if err := sch.Validate(); err != nil {
		return nil, fmt.Errorf("readstate: invalid schema: %w", err)
	}

	rs := &ReadState{
		sch:     sch,
		bk:      bk,
		dir:     dir,
		engine:  engine,
		dense:   sch.Dense,
		cursors: make(map[string]*attrCursor),
	}
	for _, name := range attrNames {
		rs.cursors[name] = newAttrCursor()
	}

	if sch.Dense {
		rs.loc = locator.NewDense(sch, bk, queryRangeDense)
	} else {
		rs.loc = locator.NewSparse(sch, bk, queryRangeSparse, rs.fetchCoords)
	}
	return rs, nil
}

// fetchCoords is the locator.CoordsFetcher the sparse Locator calls to
// resolve cell positions for a partially-overlapping tile. When
// CoordsAttrName was requested, it shares that attribute's tile cache,
// so a tile's coordinates are fetched from disk at most once for both
// consumers. Otherwise it fetches through a temporary cursor that is not
// registered, so Done and compaction see only requested attributes.
func (rs *ReadState) fetchCoords(pos uint64) ([]float64, error) {
	cur := rs.cursors[CoordsAttrName]
	if cur == nil {
		cur = newAttrCursor()
	}
	cellNum := rs.bk.CellNum(pos, rs.sch.TileCapacity)
	ts, err := rs.fetchAttrTile(CoordsAttrName, cur, pos, cellNum)
	if err != nil {
		return nil, err
	}
	return rs.sch.DecodeCoords(ts.Bytes(), int(cellNum))
}

// Read drains as many qualifying cells as fit into each named buffer,
// advancing every attribute's cursor independently. Call it again with
// fresh Buffers (same capacities or different) to resume past whatever
// cell made a buffer overflow last time.
func (rs *ReadState) Read(buffers map[string]*Buffer) error {
	for name, buf := range buffers {
		buf.reset()
		cur := rs.cursors[name]
		if cur == nil {
			return fmt.Errorf("readstate: %q was not requested when this read state was created", name)
		}
		if cur.exhausted {
			continue
		}
		if err := rs.drainAttr(name, cur, buf); err != nil {
			return fmt.Errorf("readstate: draining %q: %w", name, err)
		}
	}
	rs.compact()
	return nil
}

// Done reports whether every requested attribute has reached the end
// of the query's overlapping tiles.
func (rs *ReadState) Done() bool {
	for _, cur := range rs.cursors {
		if !cur.exhausted {
			return false
		}
	}
	return true
}

func (rs *ReadState) drainAttr(name string, cur *attrCursor, buf *Buffer) error {
	isCoords := name == CoordsAttrName
	var attr schema.Attribute
	if !isCoords {
		a, ok := rs.sch.AttributeByName(name)
		if !ok {
			return fmt.Errorf("unknown attribute %q", name)
		}
		attr = a
	}

	// An empty on-disk attribute file holds no cells: zero bytes, no error.
	if fi, err := os.Stat(fixedFilePath(rs.dir, name)); err == nil && fi.Size() == 0 {
		cur.exhausted = true
		return nil
	}

	for {
		ot, err := rs.tileAt(cur.tileIdx)
		if err != nil {
			return err
		}
		if ot.Overlap == schema.OverlapNone {
			cur.exhausted = true
			return nil
		}

		ranges, err := rs.cellRanges(ot)
		if err != nil {
			return err
		}
		if cur.rangeIdx >= len(ranges) {
			cur.tileIdx++
			cur.rangeIdx = 0
			cur.cellOffset = 0
			continue
		}

		rng := ranges[cur.rangeIdx]
		start := rng.Start + cur.cellOffset
		if start > rng.End {
			cur.rangeIdx++
			cur.cellOffset = 0
			continue
		}
		avail := rng.End - start + 1

		copied, overflow, err := rs.copyRun(name, attr, isCoords, cur, ot, start, avail, buf)
		if err != nil {
			return err
		}
		cur.cellOffset += copied
		if overflow {
			buf.Overflow = true
			return nil
		}
		if start+copied > rng.End {
			cur.rangeIdx++
			cur.cellOffset = 0
		}
	}
}

// tileAt returns the idx-th entry of the shared overlapping-tiles
// list, pulling from the Tile Locator as needed to grow it. Tile
// position and overlap classification are the same for every
// attribute, so the list -- and the Locator driving it -- is shared;
// only the fetched, decompressed bytes are per-attribute.
func (rs *ReadState) tileAt(idx int) (*locator.OverlappingTile, error) {
	for idx >= len(rs.overlapping) {
		ot, err := rs.loc.Next()
		if err != nil {
			return nil, fmt.Errorf("advancing tile locator: %w", err)
		}
		rs.overlapping = append(rs.overlapping, ot)
		if ot.Overlap == schema.OverlapNone {
			break
		}
	}
	return rs.overlapping[idx], nil
}

func (rs *ReadState) cellRanges(ot *locator.OverlappingTile) ([]cellpos.Range, error) {
	switch {
	case rs.dense:
		return cellRangesForDense(rs.sch, ot.Overlap, ot.OverlapRange, ot.CellNum), nil
	case ot.Overlap == schema.OverlapFull:
		return []cellpos.Range{{Start: 0, End: ot.CellNum - 1}}, nil
	default:
		return ot.CellPosRanges, nil
	}
}

// compact drops tiles from the front of the shared overlapping list
// once every attribute's cursor has moved past them, releasing any
// per-attribute fetched bytes cached for the dropped positions. This
// keeps a long resumed read from holding every tile it has ever
// touched in memory.
func (rs *ReadState) compact() {
	if len(rs.overlapping) == 0 || len(rs.cursors) == 0 {
		return
	}
	minIdx := len(rs.overlapping)
	for _, cur := range rs.cursors {
		if cur.tileIdx < minIdx {
			minIdx = cur.tileIdx
		}
	}
	if minIdx <= 0 {
		return
	}
	for i := 0; i < minIdx && i < len(rs.overlapping); i++ {
		pos := rs.overlapping[i].Pos
		for _, cur := range rs.cursors {
			if ts, ok := cur.tiles[pos]; ok {
				ts.Release()
				delete(cur.tiles, pos)
			}
			if ts, ok := cur.varTiles[pos]; ok {
				ts.Release()
				delete(cur.varTiles, pos)
			}
			delete(cur.offsets, pos)
		}
	}
	rs.overlapping = rs.overlapping[minIdx:]
	for _, cur := range rs.cursors {
		cur.tileIdx -= minIdx
	}
}
