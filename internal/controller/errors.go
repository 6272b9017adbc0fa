package controller

import "errors"

var (
	// ErrUnexpectedReply is returned when the orchestrator answers with a
	// message of the wrong kind.
	ErrUnexpectedReply = errors.New("unexpected reply")

	// ErrRejected is returned when the request was delivered but refused,
	// e.g. because the active tab has no page attached.
	ErrRejected = errors.New("request rejected")
)
