package fragment

import "errors"

// Common errors.
var (
	ErrNotFragment  = errors.New("not a fragment directory")
	ErrNoSuchAttr   = errors.New("no such attribute")
	ErrClosed       = errors.New("fragment is closed")
	ErrBadDimension = errors.New("query range dimensionality does not match schema")
)
