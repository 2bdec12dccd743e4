// Package fragment is the public entry point of the read path: open a
// fragment directory, then start one or more resumable reads against a
// query range.
package fragment

import (
	"fmt"
	"path/filepath"

	"github.com/arrayfs/fragread/internal/bookkeeping"
	"github.com/arrayfs/fragread/internal/ioengine"
	"github.com/arrayfs/fragread/internal/readstate"
	"github.com/arrayfs/fragread/internal/schema"
)

// Fragment is one opened fragment: its schema, its bookkeeping
// metadata, and the I/O backend reads against it will use. Opening a
// Fragment touches only the bookkeeping file; attribute and
// coordinate files are opened lazily, per tile, by the read state.
type Fragment struct {
	dir    string
	sch    *schema.Schema
	bk     *bookkeeping.Bookkeeping
	engine ioengine.Engine
}

// Open validates the given schema and loads the fragment's bookkeeping
// metadata from dir. The caller supplies the schema explicitly -- array-schema definition
// and on-disk schema encoding live outside the read path, so fragread
// has no on-disk schema format of its own to parse.
func Open(dir string, sch *schema.Schema, opts ...Option) (*Fragment, error) {
	if err := sch.Validate(); err != nil {
		return nil, fmt.Errorf("fragment: %w", err)
	}

	o := defaultOpenOptions()
	for _, opt := range opts {
		opt(o)
	}

	bk, err := bookkeeping.Load(filepath.Join(dir, bookkeeping.FileName))
	if err != nil {
		return nil, fmt.Errorf("fragment: opening %s: %w", dir, err)
	}

	return &Fragment{
		dir:    dir,
		sch:    sch,
		bk:     bk,
		engine: ioengine.New(o.backend),
	}, nil
}

// Schema returns the fragment's schema oracle.
func (f *Fragment) Schema() *schema.Schema { return f.sch }

// Dense reports whether this is a dense fragment.
func (f *Fragment) Dense() bool { return f.sch.Dense }

// allAttrNames returns every attribute name in the schema, plus the
// reserved coordinates attribute for a sparse fragment.
func (f *Fragment) allAttrNames() []string {
	names := make([]string, 0, len(f.sch.Attributes)+1)
	for _, a := range f.sch.Attributes {
		names = append(names, a.Name)
	}
	if !f.sch.Dense {
		names = append(names, readstate.CoordsAttrName)
	}
	return names
}

// NewReadState starts a resumable read against queryRange: a flat
// [lo,hi] box per dimension, in global cell coordinates. For a dense
// fragment the bounds are truncated to integers (dense domains are
// always integer-coordinate); for sparse they are used as given. A
// range inverted in any dimension (lo > hi) is not an error: the Tile
// Locator degrades it to its NONE sentinel on the first lookup, so the
// returned ReadState simply yields zero-sized reads.
func (f *Fragment) NewReadState(queryRange []float64, opts ...ReadOption) (*readstate.ReadState, error) {
	if len(queryRange) != 2*f.sch.NumDims {
		return nil, fmt.Errorf("fragment: %w: got %d values, want %d", ErrBadDimension, len(queryRange), 2*f.sch.NumDims)
	}

	ro := &readOptions{attrs: f.allAttrNames()}
	for _, opt := range opts {
		opt(ro)
	}

	var dense []int64
	var sparse []float64
	if f.sch.Dense {
		dense = schema.ToInt64Tuple(queryRange)
	} else {
		sparse = queryRange
	}

	return readstate.New(f.sch, f.bk, f.dir, f.engine, ro.attrs, dense, sparse)
}
