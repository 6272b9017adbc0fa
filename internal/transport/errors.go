package transport

import "errors"

var (
	// ErrUnknownKind is returned when an envelope carries a type outside the
	// closed set of message kinds.
	ErrUnknownKind = errors.New("unknown message kind")

	// ErrMalformed is returned when an envelope is not valid JSON or does not
	// match the shape of its kind.
	ErrMalformed = errors.New("malformed message")

	// ErrNilMessage is returned when encoding a nil message.
	ErrNilMessage = errors.New("nil message")

	// ErrNoRecipient is returned when no endpoint is attached at the
	// destination address.
	ErrNoRecipient = errors.New("no recipient")

	// ErrAddressInUse is returned when attaching a second endpoint at an
	// address.
	ErrAddressInUse = errors.New("address already in use")

	// ErrClosed is returned by operations on a closed endpoint or client.
	ErrClosed = errors.New("endpoint closed")

	// ErrNoReply is returned by Request when the handler produced no reply.
	ErrNoReply = errors.New("no reply")
)
