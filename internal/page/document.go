package page

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document is a parsed, mutable HTML page.
//
// Every read of the tree goes through View and every write through Edit or
// AppendHTML, so the scan engine, the cloak manager and the navigator can
// share one document across goroutines. Observers registered with Observe
// are notified after content is appended from outside (the equivalent of a
// DOM mutation observer); edits made through Edit are not reported, so the
// cloak manager's own mutations never trigger a rescan.
type Document struct {
	mu   sync.Mutex
	root *html.Node
	url  string

	obsMu     sync.Mutex
	observers map[int]func()
	nextObs   int
}

// Parse reads an HTML document from r. The url is informational and is
// used by the orchestrator to decide whether the page may be scanned.
func Parse(r io.Reader, url string) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	return &Document{
		root:      root,
		url:       url,
		observers: make(map[int]func()),
	}, nil
}

// ParseString is Parse over an in-memory string.
func ParseString(s, url string) (*Document, error) {
	return Parse(strings.NewReader(s), url)
}

// URL returns the address the document was loaded from.
func (d *Document) URL() string {
	return d.url
}

// View runs fn with the document locked for reading.
// fn must not retain root or any node beyond the call unless the node is
// only used as an opaque handle and re-validated later.
func (d *Document) View(fn func(root *html.Node)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d.root)
}

// Edit runs fn with the document locked for writing.
func (d *Document) Edit(fn func(root *html.Node) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return fn(d.root)
}

// AppendHTML parses fragment in the context of <body> and appends the
// resulting nodes to the body, then notifies observers.
func (d *Document) AppendHTML(fragment string) error {
	err := d.Edit(func(root *html.Node) error {
		body := Body(root)
		if body == nil {
			return ErrNoBody
		}
		ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
		nodes, err := html.ParseFragment(strings.NewReader(fragment), ctx)
		if err != nil {
			return fmt.Errorf("failed to parse fragment: %w", err)
		}
		for _, n := range nodes {
			body.AppendChild(n)
		}
		return nil
	})
	if err != nil {
		return err
	}
	d.notify()
	return nil
}

// Observe registers fn to be called after external content changes.
// The returned function removes the observer.
func (d *Document) Observe(fn func()) (cancel func()) {
	d.obsMu.Lock()
	defer d.obsMu.Unlock()
	id := d.nextObs
	d.nextObs++
	d.observers[id] = fn
	return func() {
		d.obsMu.Lock()
		defer d.obsMu.Unlock()
		delete(d.observers, id)
	}
}

func (d *Document) notify() {
	d.obsMu.Lock()
	fns := make([]func(), 0, len(d.observers))
	for _, fn := range d.observers {
		fns = append(fns, fn)
	}
	d.obsMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Title returns the trimmed text of the first <title> element.
func (d *Document) Title() string {
	var title string
	d.View(func(root *html.Node) {
		if n := Find(root, func(n *html.Node) bool { return IsElement(n, "title") }); n != nil {
			title = strings.TrimSpace(TextContent(n))
		}
	})
	return title
}

// Render writes the current document as HTML.
func (d *Document) Render(w io.Writer) error {
	var err error
	d.View(func(root *html.Node) {
		err = html.Render(w, root)
	})
	return err
}

// String renders the document, returning "" on failure.
func (d *Document) String() string {
	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		return ""
	}
	return buf.String()
}
