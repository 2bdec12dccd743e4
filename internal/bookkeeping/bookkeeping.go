// Package bookkeeping implements the per-fragment metadata contract:
// tile counts, per-tile MBRs and bounding coordinates for sparse
// fragments, per-attribute per-tile file offsets for compressed
// attributes, and per-tile variable-segment offsets for every
// variable-size attribute.
//
// The on-disk encoding is a single CBOR-encoded map per fragment
// directory, via github.com/fxamacker/cbor/v2.
package bookkeeping

import (
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// FileName is the bookkeeping file's name within a fragment directory.
const FileName = "__bookkeeping.cbor"

// Box is a flat [lo0, hi0, lo1, hi1, ...] bounding rectangle in global
// cell coordinates, decoded to float64 regardless of the schema's
// coordinate element type (see internal/schema.DecodeCoords).
type Box []float64

// BoundingCoords records a sparse tile's first and last cell
// coordinates in the fragment's cell order, used by the Tile Locator
// to binary-search tile_search_range without scanning every tile.
type BoundingCoords struct {
	Start []float64
	End   []float64
}

// Bookkeeping holds one fragment's read-time metadata.
type Bookkeeping struct {
	TileNum         uint64                     `cbor:"tile_num"`
	LastTileCellNum uint64                     `cbor:"last_tile_cell_num"`
	MBRs            []Box                      `cbor:"mbrs,omitempty"`
	BoundingCoords  []BoundingCoords           `cbor:"bounding_coords,omitempty"`
	TileOffsets     map[string][]uint64        `cbor:"tile_offsets,omitempty"`
	TileVarOffsets  map[string][]uint64        `cbor:"tile_var_offsets,omitempty"`
	TileVarSizes    map[string][]uint64        `cbor:"tile_var_sizes,omitempty"`
	FullTileSizes   map[string]uint64          `cbor:"full_tile_sizes,omitempty"`
	// TileChecksums holds an optional per-tile Fletcher-32 checksum of
	// an attribute's decompressed bytes, keyed by attribute name. A
	// nil or short entry for an attribute means no checksum is
	// recorded for it (or for that particular tile); the Copy Engine
	// only verifies tiles bookkeeping actually covers.
	TileChecksums map[string][]uint32 `cbor:"tile_checksums,omitempty"`
}

// CellNum returns the number of cells tile i holds: full capacity for
// every tile but the last, which may be short.
func (b *Bookkeeping) CellNum(i uint64, capacity uint64) uint64 {
	if i == b.TileNum-1 {
		return b.LastTileCellNum
	}
	return capacity
}

// Load reads and decodes a fragment's bookkeeping file.
func Load(path string) (*Bookkeeping, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("bookkeeping: reading %s: %w", path, err)
	}
	var bk Bookkeeping
	if err := cbor.Unmarshal(raw, &bk); err != nil {
		return nil, fmt.Errorf("bookkeeping: decoding %s: %w", path, err)
	}
	return &bk, nil
}

// Save encodes and writes a fragment's bookkeeping file. Used only by
// the test-fixture generator; the write path proper is out of scope here.
func Save(path string, bk *Bookkeeping) error {
	raw, err := cbor.Marshal(bk)
	if err != nil {
		return fmt.Errorf("bookkeeping: encoding: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("bookkeeping: writing %s: %w", path, err)
	}
	return nil
}
