package locator

import (
	"strings"
	"unicode/utf8"

	"github.com/nao1215/toxguard/internal/page"
	"golang.org/x/net/html"
)

const (
	// ProcessedAttr marks elements the cloak manager produced. Text under a
	// marked element is never enumerated again.
	ProcessedAttr = "data-tg-processed"

	// DefaultMaxTextLength is the number of runes kept in Fragment.Clipped.
	DefaultMaxTextLength = 1024
)

// nonContentTags are elements whose text is never page content.
var nonContentTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"iframe":   true,
	"canvas":   true,
	"svg":      true,
	"object":   true,
	"embed":    true,
	"video":    true,
	"audio":    true,
	"template": true,
	"textarea": true,
}

// Fragment is one candidate text node captured by Locate.
//
// Node is an opaque handle: it may be detached or rewritten by the time the
// fragment is processed, so callers must check Valid before mutating it.
type Fragment struct {
	Node    *html.Node
	Raw     string
	Clipped string
	Index   int
}

// Valid reports whether the fragment still points at the same attached
// text node with unchanged text. It must be called with the document
// locked.
func (f Fragment) Valid(root *html.Node) bool {
	n := f.Node
	if n == nil || n.Type != html.TextNode || n.Data != f.Raw {
		return false
	}
	if !page.IsAttached(root, n) {
		return false
	}
	return !insideProcessed(n)
}

// Options tunes enumeration.
type Options struct {
	// MaxTextLength caps Fragment.Clipped in runes. Zero uses the default.
	MaxTextLength int
}

// Locate enumerates candidate text fragments of doc in document order.
//
// A text node is kept when its text is not whitespace only, its container
// is rendered, its container is not a non-content element, and it is not
// inside a cloaked wrapper. The result is a snapshot; later mutations of
// the document do not change it.
func Locate(doc *page.Document, opts Options) []Fragment {
	var out []Fragment
	doc.View(func(root *html.Node) {
		out = LocateNode(root, opts)
	})
	return out
}

// LocateNode is Locate over an already locked tree.
func LocateNode(root *html.Node, opts Options) []Fragment {
	maxLen := opts.MaxTextLength
	if maxLen <= 0 {
		maxLen = DefaultMaxTextLength
	}

	pres := page.NewPresentation(root)
	var out []Fragment
	page.Walk(root, func(n *html.Node) bool {
		if n.Type == html.ElementNode {
			if nonContentTags[n.Data] {
				return false
			}
			if _, ok := page.Attr(n, ProcessedAttr); ok {
				return false
			}
			return true
		}
		if n.Type != html.TextNode {
			return true
		}
		if strings.TrimSpace(n.Data) == "" {
			return true
		}
		if n.Parent == nil || n.Parent.Type != html.ElementNode {
			return true
		}
		if !pres.Visible(n) {
			return true
		}
		out = append(out, Fragment{
			Node:    n,
			Raw:     n.Data,
			Clipped: Clip(n.Data, maxLen),
			Index:   len(out),
		})
		return true
	})
	return out
}

// Clip returns the first max runes of s.
func Clip(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

func insideProcessed(n *html.Node) bool {
	return page.Closest(n, func(e *html.Node) bool {
		_, ok := page.Attr(e, ProcessedAttr)
		return ok
	}) != nil
}
