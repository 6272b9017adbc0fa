package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrNoTarget is returned when `toxguard scan` gets no URL or path.
	ErrNoTarget = errors.New("no target specified: provide one or more URLs or file paths")

	// ErrInvalidThreshold is returned when the threshold lies outside [0, 1].
	ErrInvalidThreshold = errors.New("invalid threshold: must be between 0 and 1")

	// ErrUnknownBackend is returned for a classifier backend that does not
	// exist.
	ErrUnknownBackend = errors.New("unknown classifier backend: use keyword, http, bayes or genai")

	// ErrMissingEndpoint is returned when the http backend has no endpoint.
	ErrMissingEndpoint = errors.New("the http backend requires an endpoint")

	// ErrMissingModelDir is returned when the bayes backend has no model
	// directory.
	ErrMissingModelDir = errors.New("the bayes backend requires a model directory")

	// ErrUnknownFallback is returned for a fallback policy other than
	// keyword or fail.
	ErrUnknownFallback = errors.New("unknown fallback policy: use keyword or fail")

	// ErrInvalidCacheSize is returned when the cache size is negative.
	ErrInvalidCacheSize = errors.New("invalid cache size: must be non-negative")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrInvalidBatchPause is returned when the batch pause is negative.
	ErrInvalidBatchPause = errors.New("invalid batch pause: must be non-negative")

	// ErrInvalidConcurrency is returned when the concurrency is not positive.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrConflictingReportFormats is returned when both --json and
	// --markdown are specified.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")
)
