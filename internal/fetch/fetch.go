package fetch

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/nao1215/toxguard/internal/page"
)

// Loader turns a target into a parsed page.
type Loader interface {
	Load(ctx context.Context, target string) (*page.Document, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, target string) (*page.Document, error)

// Load implements Loader.
func (f LoaderFunc) Load(ctx context.Context, target string) (*page.Document, error) {
	return f(ctx, target)
}

// Router picks a loader by target: plain paths and file:// URLs go to
// File, .onion hosts to Onion when set, other http(s) URLs to Web.
type Router struct {
	File  Loader
	Web   Loader
	Onion Loader
}

// Load implements Loader.
func (r *Router) Load(ctx context.Context, target string) (*page.Document, error) {
	loader, err := r.pick(target)
	if err != nil {
		return nil, err
	}
	return loader.Load(ctx, target)
}

func (r *Router) pick(target string) (Loader, error) {
	u, err := url.Parse(target)
	if err != nil || u.Scheme == "" || isWindowsDrive(u.Scheme) {
		return orUnsupported(r.File, "file")
	}
	switch strings.ToLower(u.Scheme) {
	case "file":
		return orUnsupported(r.File, "file")
	case "http", "https":
		if IsOnion(u.Hostname()) && r.Onion != nil {
			return r.Onion, nil
		}
		return orUnsupported(r.Web, u.Scheme)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, u.Scheme)
}

func orUnsupported(l Loader, scheme string) (Loader, error) {
	if l == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, scheme)
	}
	return l, nil
}

func isWindowsDrive(scheme string) bool {
	return len(scheme) == 1
}

// IsOnion reports whether host is a Tor hidden service name.
func IsOnion(host string) bool {
	return strings.HasSuffix(strings.ToLower(strings.TrimSuffix(host, ".")), ".onion")
}

// FileURL converts a local path into an absolute file:// URL.
func FileURL(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
}
