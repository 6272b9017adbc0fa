package fetch

import "errors"

var (
	// ErrUnsupportedScheme is returned when no loader serves a target's
	// scheme.
	ErrUnsupportedScheme = errors.New("unsupported scheme")

	// ErrHTTPStatus is returned for non-2xx responses.
	ErrHTTPStatus = errors.New("unexpected HTTP status")

	// ErrNotHTML is returned when a response is not an HTML document.
	ErrNotHTML = errors.New("response is not HTML")

	// ErrInvalidProxyAddress is returned when a SOCKS5 proxy address is not
	// in host:port form.
	ErrInvalidProxyAddress = errors.New("invalid proxy address format: expected host:port")

	// ErrTorNotRunning is returned when the embedded Tor daemon is used
	// before it was started.
	ErrTorNotRunning = errors.New("embedded Tor daemon is not running")
)
