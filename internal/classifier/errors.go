package classifier

import "errors"

var (
	// ErrClassifierUnavailable is returned when a backend cannot serve
	// requests, because its preflight failed or its circuit is open.
	ErrClassifierUnavailable = errors.New("classifier unavailable")

	// ErrMissingModelFiles is returned by preflight when required model
	// assets are absent.
	ErrMissingModelFiles = errors.New("missing local model assets")

	// ErrUnknownBackend is returned for an unrecognized backend name.
	ErrUnknownBackend = errors.New("unknown classifier backend")

	// ErrUnknownFallback is returned for an unrecognized fallback policy.
	ErrUnknownFallback = errors.New("unknown fallback policy")

	// ErrEmptyDataset is returned when a training set has no usable rows.
	ErrEmptyDataset = errors.New("training dataset is empty")

	// ErrUnexpectedResponse is returned when a remote backend answers with
	// a body that cannot be decoded.
	ErrUnexpectedResponse = errors.New("unexpected classifier response")
)
