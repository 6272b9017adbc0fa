package fetch

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/nao1215/toxguard/internal/page"
)

// FileLoader reads pages from the local file system. Targets are plain
// paths or file:// URLs; the document URL is always a file:// URL.
type FileLoader struct{}

// Load implements Loader.
func (FileLoader) Load(ctx context.Context, target string) (*page.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := target
	if strings.HasPrefix(strings.ToLower(target), "file:") {
		u, err := url.Parse(target)
		if err != nil {
			return nil, fmt.Errorf("invalid file URL %s: %w", target, err)
		}
		path = filepath.FromSlash(u.Path)
	}

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	docURL, err := FileURL(path)
	if err != nil {
		return nil, err
	}
	doc, err := page.Parse(f, docURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return doc, nil
}
