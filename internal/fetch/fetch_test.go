package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/toxguard/internal/page"
)

func TestHTTPLoader(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/page":
			if r.Header.Get("User-Agent") != DefaultUserAgent {
				http.Error(w, "bad agent", http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(`<html><head><title>Hello</title></head><body><p>some text</p></body></html>`))
		case "/moved":
			http.Redirect(w, r, "/page", http.StatusFound)
		case "/json":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	loader, err := NewHTTPLoader(WithTimeout(5 * time.Second))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Run("parses an HTML page", func(t *testing.T) {
		t.Parallel()
		doc, err := loader.Load(context.Background(), srv.URL+"/page")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if doc.Title() != "Hello" {
			t.Errorf("expected title Hello, got %q", doc.Title())
		}
	})

	t.Run("uses the final url after redirects", func(t *testing.T) {
		t.Parallel()
		doc, err := loader.Load(context.Background(), srv.URL+"/moved")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if doc.URL() != srv.URL+"/page" {
			t.Errorf("expected final url, got %s", doc.URL())
		}
	})

	t.Run("rejects error statuses", func(t *testing.T) {
		t.Parallel()
		if _, err := loader.Load(context.Background(), srv.URL+"/missing"); !errors.Is(err, ErrHTTPStatus) {
			t.Errorf("expected ErrHTTPStatus, got %v", err)
		}
	})

	t.Run("rejects non html responses", func(t *testing.T) {
		t.Parallel()
		if _, err := loader.Load(context.Background(), srv.URL+"/json"); !errors.Is(err, ErrNotHTML) {
			t.Errorf("expected ErrNotHTML, got %v", err)
		}
	})
}

func TestNewHTTPLoader(t *testing.T) {
	t.Parallel()

	t.Run("accepts a valid SOCKS5 address", func(t *testing.T) {
		t.Parallel()
		if _, err := NewHTTPLoader(WithSOCKS5("127.0.0.1:9050")); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("rejects malformed SOCKS5 addresses", func(t *testing.T) {
		t.Parallel()
		for _, addr := range []string{"127.0.0.1", ":9050", "localhost:0", "localhost:70000", "host:port"} {
			if _, err := NewHTTPLoader(WithSOCKS5(addr)); !errors.Is(err, ErrInvalidProxyAddress) {
				t.Errorf("%s: expected ErrInvalidProxyAddress, got %v", addr, err)
			}
		}
	})
}

func TestFileLoader(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "page.html")
	if err := os.WriteFile(path, []byte(`<title>Local</title><p>hello there</p>`), 0o600); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Run("loads a plain path as a file url", func(t *testing.T) {
		t.Parallel()
		doc, err := FileLoader{}.Load(context.Background(), path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.HasPrefix(doc.URL(), "file://") || doc.Title() != "Local" {
			t.Errorf("unexpected document %s %q", doc.URL(), doc.Title())
		}
	})

	t.Run("loads a file url", func(t *testing.T) {
		t.Parallel()
		u, err := FileURL(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		doc, err := FileLoader{}.Load(context.Background(), u)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if doc.URL() != u {
			t.Errorf("expected %s, got %s", u, doc.URL())
		}
	})

	t.Run("fails on a missing file", func(t *testing.T) {
		t.Parallel()
		if _, err := (FileLoader{}).Load(context.Background(), filepath.Join(dir, "nope.html")); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("expected not exist, got %v", err)
		}
	})
}

func TestRouter(t *testing.T) {
	t.Parallel()

	tagged := func(name string) Loader {
		return LoaderFunc(func(_ context.Context, target string) (*page.Document, error) {
			return page.ParseString("<title>"+name+"</title>", target)
		})
	}
	r := &Router{File: tagged("file"), Web: tagged("web"), Onion: tagged("onion")}

	tests := []struct {
		target string
		want   string
	}{
		{"page.html", "file"},
		{"/tmp/page.html", "file"},
		{"file:///tmp/page.html", "file"},
		{"https://example.com", "web"},
		{"http://example.com/a", "web"},
		{"http://abcdefghijklmnop.onion/", "onion"},
	}
	for _, tt := range tests {
		doc, err := r.Load(context.Background(), tt.target)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.target, err)
		}
		if doc.Title() != tt.want {
			t.Errorf("%s: expected %s loader, got %s", tt.target, tt.want, doc.Title())
		}
	}

	if _, err := r.Load(context.Background(), "ftp://example.com"); !errors.Is(err, ErrUnsupportedScheme) {
		t.Errorf("expected ErrUnsupportedScheme, got %v", err)
	}

	webOnly := &Router{Web: tagged("web")}
	if doc, err := webOnly.Load(context.Background(), "http://abc.onion"); err != nil || doc.Title() != "web" {
		t.Errorf("expected onion targets to fall back to web, got %v", err)
	}
	if _, err := webOnly.Load(context.Background(), "page.html"); !errors.Is(err, ErrUnsupportedScheme) {
		t.Errorf("expected ErrUnsupportedScheme without a file loader, got %v", err)
	}
}

func TestIsOnion(t *testing.T) {
	t.Parallel()

	for host, want := range map[string]bool{
		"abc.onion":     true,
		"ABC.ONION":     true,
		"abc.onion.":    true,
		"example.com":   false,
		"onion.example": false,
	} {
		if got := IsOnion(host); got != want {
			t.Errorf("IsOnion(%q) = %v, want %v", host, got, want)
		}
	}
}

func TestEmbeddedTor(t *testing.T) {
	t.Parallel()

	e := NewEmbeddedTor(WithTorStartupTimeout(time.Minute))
	if e.startupTimeout != time.Minute {
		t.Errorf("expected timeout 1m, got %v", e.startupTimeout)
	}
	if e.IsRunning() || e.SocksAddr() != "" {
		t.Error("expected a stopped daemon")
	}
	if err := e.Stop(); err != nil {
		t.Errorf("expected stop on a stopped daemon to succeed, got %v", err)
	}
	if _, err := e.Loader(); !errors.Is(err, ErrTorNotRunning) {
		t.Errorf("expected ErrTorNotRunning, got %v", err)
	}
}

func TestRodLoaderOptions(t *testing.T) {
	t.Parallel()

	l := NewRodLoader(WithControlURL("ws://127.0.0.1:9222"), WithNavigationTimeout(time.Second), WithSettleTime(0))
	if l.controlURL != "ws://127.0.0.1:9222" || l.timeout != time.Second || l.settle != 0 {
		t.Errorf("unexpected loader %+v", l)
	}
	if err := l.Close(); err != nil {
		t.Errorf("expected close without a browser to succeed, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Load(ctx, "https://example.com"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context canceled, got %v", err)
	}
}
