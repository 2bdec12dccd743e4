package readstate

import (
	"encoding/binary"
	"fmt"

	"github.com/arrayfs/fragread/internal/codec"
	"github.com/arrayfs/fragread/internal/fraglog"
	"github.com/arrayfs/fragread/internal/locator"
	"github.com/arrayfs/fragread/internal/schema"
)

// verifyChecksum checks a fetched tile's decompressed bytes against
// its recorded Fletcher-32 checksum, if bookkeeping carries one for
// this attribute and tile position. Most fragments carry none, in
// which case this is a no-op.
func (rs *ReadState) verifyChecksum(name string, pos uint64, data []byte) error {
	sums := rs.bk.TileChecksums[name]
	if int(pos) >= len(sums) {
		return nil
	}
	if !codec.VerifyFletcher32(data, sums[pos]) {
		fraglog.Warnf("readstate: fletcher-32 mismatch for %q tile %d", name, pos)
		return fmt.Errorf("readstate: corrupt tile %d for %q: checksum mismatch", pos, name)
	}
	return nil
}

// fetchAttrTile returns the decoded bytes of a fixed-size attribute's
// tile (or, for CoordsAttrName, the tile's decoded coordinate bytes),
// fetching and caching on first use so a tile already fetched for one
// purpose (e.g. the coordinates tile, needed by the Tile Locator to
// resolve cell positions) is never fetched twice.
func (rs *ReadState) fetchAttrTile(name string, cur *attrCursor, pos uint64, cellNum uint64) (TileStorage, error) {
	if ts, ok := cur.tiles[pos]; ok {
		return ts, nil
	}

	var cellSize uint64
	var compression schema.CompressionKind
	var path string
	var offsets []uint64

	if name == CoordsAttrName {
		cellSize = uint64(rs.sch.NumDims * rs.sch.CoordType.Size())
		compression = rs.sch.CoordsCompression
		path = fixedFilePath(rs.dir, CoordsAttrName)
		offsets = rs.bk.TileOffsets[CoordsAttrName]
	} else {
		attr, ok := rs.sch.AttributeByName(name)
		if !ok {
			return TileStorage{}, fmt.Errorf("readstate: unknown attribute %q", name)
		}
		if attr.VarSize {
			return TileStorage{}, fmt.Errorf("readstate: %q is variable-size; use fetchVarAttrTile", name)
		}
		cellSize = uint64(attr.CellSize)
		compression = attr.Compression
		path = fixedFilePath(rs.dir, name)
		offsets = rs.bk.TileOffsets[name]
	}

	ts, err := fetchFixed(rs.engine, path, compression, rs.sch.TileCapacity, cellSize, pos, cellNum, offsets)
	if err != nil {
		return TileStorage{}, fmt.Errorf("readstate: fetching %q tile %d: %w", name, pos, err)
	}
	if err := rs.verifyChecksum(name, pos, ts.Bytes()); err != nil {
		return TileStorage{}, err
	}
	cur.tiles[pos] = ts
	return ts, nil
}

// fetchVarAttrTile returns a variable-size attribute's tile-local cell
// offsets (rebased, with a trailing end-of-payload sentinel appended)
// and its decompressed payload bytes, fetching and caching both on
// first use.
func (rs *ReadState) fetchVarAttrTile(name string, cur *attrCursor, pos uint64, cellNum uint64) ([]uint64, TileStorage, error) {
	if offs, ok := cur.offsets[pos]; ok {
		return offs, cur.varTiles[pos], nil
	}

	attr, ok := rs.sch.AttributeByName(name)
	if !ok {
		return nil, TileStorage{}, fmt.Errorf("readstate: unknown attribute %q", name)
	}
	if !attr.VarSize {
		return nil, TileStorage{}, fmt.Errorf("readstate: %q is fixed-size; use fetchAttrTile", name)
	}

	fixedPath := fixedFilePath(rs.dir, name)
	varPath := varFilePath(rs.dir, name)

	offsetsTile, offsets, payload, err := fetchVar(
		rs.engine,
		fixedPath, varPath,
		attr.Compression,
		rs.sch.TileCapacity,
		pos, cellNum,
		rs.bk.TileOffsets[name],
		rs.bk.TileVarOffsets[name],
		rs.bk.TileVarSizes[name],
	)
	if err != nil {
		return nil, TileStorage{}, fmt.Errorf("readstate: fetching var %q tile %d: %w", name, pos, err)
	}
	if err := rs.verifyChecksum(name, pos, payload.Bytes()); err != nil {
		return nil, TileStorage{}, err
	}

	cur.tiles[pos] = offsetsTile
	cur.varTiles[pos] = payload
	offsets = append(offsets, uint64(len(payload.Bytes())))
	cur.offsets[pos] = offsets
	return offsets, payload, nil
}

// copyRun copies up to avail qualifying cells starting at cell-position
// start within tile ot into buf, bounded by whatever buffer capacity
// remains. It returns how many cells were actually copied and whether
// it stopped early because a buffer filled up.
func (rs *ReadState) copyRun(
	name string,
	attr schema.Attribute,
	isCoords bool,
	cur *attrCursor,
	ot *locator.OverlappingTile,
	start, avail uint64,
	buf *Buffer,
) (uint64, bool, error) {
	pos := ot.Pos

	if isCoords || !attr.VarSize {
		cellSize := uint64(attr.CellSize)
		if isCoords {
			cellSize = uint64(rs.sch.NumDims * rs.sch.CoordType.Size())
		}
		ts, err := rs.fetchAttrTile(name, cur, pos, ot.CellNum)
		if err != nil {
			return 0, false, err
		}
		data := ts.Bytes()

		remainingCap := uint64(buf.fixedCap() - buf.fixedLen)
		maxCells := remainingCap / cellSize
		copyCells := avail
		overflow := false
		if maxCells < copyCells {
			copyCells = maxCells
			overflow = true
		}
		if copyCells > 0 {
			srcStart := start * cellSize
			n := copyCells * cellSize
			copy(buf.Data[buf.fixedLen:uint64(buf.fixedLen)+n], data[srcStart:srcStart+n])
			buf.fixedLen += int(n)
		}
		return copyCells, overflow, nil
	}

	offsets, payload, err := rs.fetchVarAttrTile(name, cur, pos, ot.CellNum)
	if err != nil {
		return 0, false, err
	}
	payloadBytes := payload.Bytes()

	var copied uint64
	for i := uint64(0); i < avail; i++ {
		cellIdx := start + i
		cellLen := offsets[cellIdx+1] - offsets[cellIdx]

		if buf.fixedCap()-buf.fixedLen < 8 || uint64(buf.varCap()-buf.varLen) < cellLen {
			return copied, true, nil
		}

		binary.LittleEndian.PutUint64(buf.Data[buf.fixedLen:buf.fixedLen+8], uint64(buf.varLen))
		buf.fixedLen += 8

		copy(buf.Var[buf.varLen:uint64(buf.varLen)+cellLen], payloadBytes[offsets[cellIdx]:offsets[cellIdx+1]])
		buf.varLen += int(cellLen)

		copied++
	}
	return copied, false, nil
}
