package cloak

import "errors"

var (
	// ErrDetached is returned when a fragment's text node was removed or
	// changed after enumeration.
	ErrDetached = errors.New("fragment detached from document")
)
