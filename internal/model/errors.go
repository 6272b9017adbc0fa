package model

import "errors"

var (
	// ErrUnknownRunState is returned when a wire state name is not recognized.
	ErrUnknownRunState = errors.New("unknown run state")

	// ErrInvalidThreshold is returned when a threshold lies outside [0, 1].
	ErrInvalidThreshold = errors.New("threshold must be between 0 and 1")
)
