package page

import "errors"

var (
	// ErrNoBody is returned when content is appended to a document
	// without a <body> element.
	ErrNoBody = errors.New("document has no body")
)
