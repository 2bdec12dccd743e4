package fragment

import (
	"go.uber.org/zap"

	"github.com/arrayfs/fragread/internal/fraglog"
	"github.com/arrayfs/fragread/internal/ioengine"
)

// Option configures Open.
type Option func(*openOptions)

type openOptions struct {
	backend ioengine.Backend
}

func defaultOpenOptions() *openOptions {
	return &openOptions{backend: ioengine.Positional}
}

// WithMappedIO selects the memory-mapped I/O backend instead of the
// default positional-read backend for every tile fetch against this
// fragment.
func WithMappedIO() Option {
	return func(o *openOptions) { o.backend = ioengine.Mapped }
}

// WithLogger installs a zap logger for warning-level I/O and
// corruption events package-wide. Nop by default.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *openOptions) {
		fraglog.SetLogger(l)
	}
}

// ReadOption configures a single Fragment.NewReadState call.
type ReadOption func(*readOptions)

type readOptions struct {
	attrs []string
}

// WithAttributes restricts a read to the named attributes. A sparse
// fragment's coordinates are read only if readstate.CoordsAttrName is
// among names. Defaults to every attribute in the schema, plus
// readstate.CoordsAttrName for a sparse fragment.
func WithAttributes(names ...string) ReadOption {
	return func(o *readOptions) { o.attrs = names }
}
