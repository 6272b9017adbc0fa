package browser

import "errors"

var (
	// ErrNoSuchTab is returned for operations on a closed or unknown tab.
	ErrNoSuchTab = errors.New("no such tab")

	// ErrNoScan is returned by WaitScan when a tab has no scan to wait for.
	ErrNoScan = errors.New("no scan for tab")
)
