package settings

import "errors"

var (
	// ErrNotFound is returned by Open when the database does not exist and
	// creation was not requested.
	ErrNotFound = errors.New("settings database not found")

	// ErrCorrupt is returned when a stored value cannot be decoded.
	ErrCorrupt = errors.New("stored setting is corrupt")
)
