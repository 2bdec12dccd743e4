package readstate

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/arrayfs/fragread/internal/codec"
	"github.com/arrayfs/fragread/internal/fraglog"
	"github.com/arrayfs/fragread/internal/ioengine"
	"github.com/arrayfs/fragread/internal/schema"
)

const (
	// CoordsAttrName is the reserved attribute name used for the
	// coordinates tile, treated as attribute number "attribute_num"
	// matching the on-disk tile layout.
	CoordsAttrName = "__coords"
)

func fixedFilePath(dir, attr string) string {
	return filepath.Join(dir, attr+".tdb")
}

func varFilePath(dir, attr string) string {
	return filepath.Join(dir, attr+"_var.tdb")
}

// fetchFixed implements get_tile_from_disk_cmp_none and
// get_tile_from_disk_cmp_gzip (and their memory-mapped twins) for a
// fixed-size attribute's tile, including an offsets-tile fetch when
// called for a variable attribute's fixed half.
func fetchFixed(
	engine ioengine.Engine,
	path string,
	compression schema.CompressionKind,
	capacity uint64,
	cellSize uint64,
	pos uint64,
	cellNum uint64,
	compressedTileOffsets []uint64,
) (TileStorage, error) {
	tileSize := cellNum * cellSize

	if compression == schema.NoCompression {
		fileOffset := int64(pos * capacity * cellSize)
		if engine.Backend() == ioengine.Mapped {
			region, err := engine.Map(path, fileOffset, int(tileSize))
			if err != nil {
				return TileStorage{}, err
			}
			return Mapped(region), nil
		}
		buf := make([]byte, tileSize)
		if err := engine.Read(path, fileOffset, buf); err != nil {
			return TileStorage{}, err
		}
		return Owned(buf), nil
	}

	compressedSize, fileOffset, err := onDiskSegment(path, compressedTileOffsets, pos)
	if err != nil {
		return TileStorage{}, err
	}

	var src []byte
	if engine.Backend() == ioengine.Mapped {
		region, err := engine.Map(path, fileOffset, int(compressedSize))
		if err != nil {
			return TileStorage{}, err
		}
		defer region.Close()
		src = region.Data
	} else {
		src = make([]byte, compressedSize)
		if err := engine.Read(path, fileOffset, src); err != nil {
			return TileStorage{}, err
		}
	}

	dst := make([]byte, tileSize)
	n, err := codec.Decode(compression, src, dst)
	if err != nil {
		return TileStorage{}, fmt.Errorf("readstate: decoding tile %d at %s: %w", pos, path, err)
	}
	if uint64(n) != tileSize {
		fraglog.Warnf("readstate: decompressed size mismatch for tile %d at %s: got %d want %d", pos, path, n, tileSize)
		return TileStorage{}, fmt.Errorf("readstate: decompressed size mismatch for tile %d at %s: got %d, want %d", pos, path, n, tileSize)
	}
	return Owned(dst), nil
}

// onDiskSegment computes [offset, length) of the pos-th tile's on-disk
// (possibly compressed) bytes from bookkeeping's offset table, falling
// back to the file's length for the last tile.
func onDiskSegment(path string, offsets []uint64, pos uint64) (length uint64, offset int64, err error) {
	if int(pos) >= len(offsets) {
		return 0, 0, fmt.Errorf("readstate: no recorded offset for tile %d in %s", pos, path)
	}
	start := offsets[pos]
	var end uint64
	if int(pos)+1 < len(offsets) {
		end = offsets[pos+1]
	} else {
		fi, statErr := os.Stat(path)
		if statErr != nil {
			return 0, 0, fmt.Errorf("readstate: stat %s: %w", path, statErr)
		}
		end = uint64(fi.Size())
	}
	if end < start {
		return 0, 0, fmt.Errorf("readstate: corrupt tile offsets for %s at tile %d", path, pos)
	}
	return end - start, int64(start), nil
}

// decodeOffsets reinterprets a fetched offsets tile as a typed []uint64
// view and shifts every entry to be tile-local, the first step of
// rebasing variable offsets twice.
func decodeOffsets(raw []byte, cellNum uint64) []uint64 {
	out := make([]uint64, cellNum)
	for i := range out {
		out[i] = binary.LittleEndian.Uint64(raw[i*8 : i*8+8])
	}
	if len(out) == 0 {
		return out
	}
	base := out[0]
	for i := range out {
		out[i] -= base
	}
	return out
}

// fetchVar implements get_tile_from_disk_var_cmp_none and
// get_tile_from_disk_var_cmp_gzip: fetch the offsets tile, then the
// variable payload segment it points into.
func fetchVar(
	engine ioengine.Engine,
	fixedPath, varPath string,
	compression schema.CompressionKind,
	capacity uint64,
	pos uint64,
	cellNum uint64,
	fixedTileOffsets []uint64,
	varSegmentOffsets []uint64,
	varDecompressedSizes []uint64,
) (offsetsTile TileStorage, offsets []uint64, payload TileStorage, err error) {
	offsetsTile, err = fetchFixed(engine, fixedPath, compression, capacity, 8, pos, cellNum, fixedTileOffsets)
	if err != nil {
		return TileStorage{}, nil, TileStorage{}, err
	}
	offsets = decodeOffsets(offsetsTile.Bytes(), cellNum)

	compressedLen, fileOffset, err := onDiskSegment(varPath, varSegmentOffsets, pos)
	if err != nil {
		return TileStorage{}, nil, TileStorage{}, err
	}

	decompressedLen := compressedLen
	if compression != schema.NoCompression {
		if int(pos) >= len(varDecompressedSizes) {
			return TileStorage{}, nil, TileStorage{}, fmt.Errorf("readstate: no recorded var size for tile %d in %s", pos, varPath)
		}
		decompressedLen = varDecompressedSizes[pos]
	}

	if compression == schema.NoCompression {
		if engine.Backend() == ioengine.Mapped {
			region, err := engine.Map(varPath, fileOffset, int(decompressedLen))
			if err != nil {
				return TileStorage{}, nil, TileStorage{}, err
			}
			return offsetsTile, offsets, Mapped(region), nil
		}
		buf := make([]byte, decompressedLen)
		if err := engine.Read(varPath, fileOffset, buf); err != nil {
			return TileStorage{}, nil, TileStorage{}, err
		}
		return offsetsTile, offsets, Owned(buf), nil
	}

	var src []byte
	if engine.Backend() == ioengine.Mapped {
		region, err := engine.Map(varPath, fileOffset, int(compressedLen))
		if err != nil {
			return TileStorage{}, nil, TileStorage{}, err
		}
		defer region.Close()
		src = region.Data
	} else {
		src = make([]byte, compressedLen)
		if err := engine.Read(varPath, fileOffset, src); err != nil {
			return TileStorage{}, nil, TileStorage{}, err
		}
	}

	dst := make([]byte, decompressedLen)
	n, err := codec.Decode(compression, src, dst)
	if err != nil {
		return TileStorage{}, nil, TileStorage{}, fmt.Errorf("readstate: decoding var tile %d at %s: %w", pos, varPath, err)
	}
	if uint64(n) != decompressedLen {
		return TileStorage{}, nil, TileStorage{}, fmt.Errorf("readstate: var decompressed size mismatch for tile %d: got %d, want %d", pos, n, decompressedLen)
	}
	return offsetsTile, offsets, Owned(dst), nil
}
