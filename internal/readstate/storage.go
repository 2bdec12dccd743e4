package readstate

import "github.com/arrayfs/fragread/internal/ioengine"

// TileStorage is a tagged variant distinguishing an owned allocation
// from a memory-mapped region, so a tile buffer is released correctly
// regardless of where its bytes came from. Go's garbage collector makes
// releasing an owned buffer a no-op, but the mapped case still needs an
// explicit unmap, so the tag is kept to dispatch that correctly.
type TileStorage struct {
	owned  []byte
	region *ioengine.Region
}

// Owned wraps a plain allocation.
func Owned(buf []byte) TileStorage {
	return TileStorage{owned: buf}
}

// Mapped wraps a live memory-mapped region.
func Mapped(r *ioengine.Region) TileStorage {
	return TileStorage{region: r}
}

// Bytes returns the tile's bytes regardless of provenance.
func (t TileStorage) Bytes() []byte {
	if t.region != nil {
		return t.region.Data
	}
	return t.owned
}

// IsMapped reports whether this storage is a live memory mapping.
func (t TileStorage) IsMapped() bool {
	return t.region != nil
}

// Release unmaps a mapped region; it is a no-op for an owned buffer.
func (t TileStorage) Release() error {
	if t.region != nil {
		return t.region.Close()
	}
	return nil
}
