// Package ioengine implements the read path's I/O Layer: two
// interchangeable backends for pulling tile bytes off disk, selectable
// per Fragment rather than at build time (Go doesn't need a build tag
// for a 20-line interface switch, and the test suite wants to exercise
// both without two build configurations).
//
//   - Positional: an ordinary positional read via os.File.ReadAt.
//   - Mapped: a private, page-aligned memory mapping via
//     golang.org/x/sys/unix, returning a pointer inside the mapped
//     region adjusted by the unaligned remainder.
//
// Files are opened read-only per fetch and closed immediately -- both
// backends follow that discipline, the mapped backend because the
// mapping stays valid after the descriptor that created it is closed.
package ioengine

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/arrayfs/fragread/internal/fraglog"
)

// Backend selects which I/O strategy an Engine uses.
type Backend int

const (
	Positional Backend = iota
	Mapped
)

// Engine is the I/O Layer contract: fetch bytes, or map them.
type Engine interface {
	// Read places exactly len(dst) bytes from path at offset into dst.
	Read(path string, offset int64, dst []byte) error

	// Map returns length bytes from path at offset as a slice backed by
	// a private memory mapping. The caller must call Region.Close when
	// done to release the mapping.
	Map(path string, offset int64, length int) (*Region, error)

	Backend() Backend
}

// Region is a live memory mapping plus the page-aligned slice view a
// caller asked for. The mapping itself may span more than Data to
// satisfy page alignment; Close unmaps the whole thing.
type Region struct {
	raw  []byte // the full page-aligned mmap, length a multiple of the page size
	Data []byte // raw[remainder : remainder+length], the bytes the caller asked for
}

// Close releases the underlying mapping. Safe to call on a nil Region.
func (r *Region) Close() error {
	if r == nil || r.raw == nil {
		return nil
	}
	err := unix.Munmap(r.raw)
	r.raw = nil
	r.Data = nil
	return err
}

type engine struct {
	backend Backend
}

// New creates an Engine using the requested backend.
func New(b Backend) Engine {
	return &engine{backend: b}
}

func (e *engine) Backend() Backend { return e.backend }

func (e *engine) Read(path string, offset int64, dst []byte) error {
	if len(dst) == 0 {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		fraglog.Warnf("ioengine: open %s: %v", path, err)
		return fmt.Errorf("ioengine: open %s: %w", path, err)
	}
	defer f.Close()

	n, err := f.ReadAt(dst, offset)
	if err != nil {
		fraglog.Warnf("ioengine: read %s at %d: %v", path, offset, err)
		return fmt.Errorf("ioengine: read %s at offset %d: %w", path, offset, err)
	}
	if n != len(dst) {
		fraglog.Warnf("ioengine: short read on %s: got %d want %d", path, n, len(dst))
		return fmt.Errorf("ioengine: short read on %s: got %d bytes, want %d", path, n, len(dst))
	}
	return nil
}

func (e *engine) Map(path string, offset int64, length int) (*Region, error) {
	if length == 0 {
		return &Region{}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		fraglog.Warnf("ioengine: open %s for mmap: %v", path, err)
		return nil, fmt.Errorf("ioengine: open %s for mmap: %w", path, err)
	}
	defer f.Close()

	pageSize := int64(unix.Getpagesize())
	aligned := (offset / pageSize) * pageSize
	remainder := int(offset - aligned)
	mapLen := remainder + length

	raw, err := unix.Mmap(int(f.Fd()), aligned, mapLen, unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		fraglog.Warnf("ioengine: mmap %s at %d len %d: %v", path, aligned, mapLen, err)
		return nil, fmt.Errorf("ioengine: mmap %s at offset %d len %d: %w", path, aligned, mapLen, err)
	}

	return &Region{
		raw:  raw,
		Data: raw[remainder : remainder+length],
	}, nil
}
