package cloak

import (
	"log/slog"
	"strconv"
	"sync"

	"github.com/nao1215/toxguard/internal/locator"
	"github.com/nao1215/toxguard/internal/model"
	"github.com/nao1215/toxguard/internal/page"
	"golang.org/x/net/html"
)

// Markup produced by the manager.
const (
	WrapperClass  = "toxic-wrapper"
	BannerClass   = "toxic-banner"
	HiddenClass   = "toxic-hidden"
	RevealedClass = "toxic-revealed"
	BadgeClass    = "toxic-badge"

	// CurrentClass marks the wrapper the navigator is focused on.
	CurrentClass = "toxic-current"

	IDAttr    = "data-tg-id"
	HrefAttr  = "data-tg-href"
	ScoreAttr = "data-tg-score"

	BannerText = "toxic content – click to reveal"
	BadgeText  = "revealed"
)

// State is the visibility of a cloaked fragment.
type State int

const (
	// StateHidden shows the banner instead of the text.
	StateHidden State = iota
	// StateRevealed shows the text and a badge.
	StateRevealed
)

// String returns "hidden" or "revealed".
func (s State) String() string {
	if s == StateRevealed {
		return "revealed"
	}
	return "hidden"
}

// Wrapper is one cloaked fragment.
type Wrapper struct {
	ID       string
	State    State
	Original string
	Verdict  model.Verdict

	node   *html.Node
	hidden *html.Node
	banner *html.Node
	link   *html.Node
}

// Manager performs every structural mutation the scanner makes on a page:
// cloaking fragments, revealing them and reverting all of them.
//
// A link that contains at least one hidden wrapper is suppressed by moving
// its href aside; suppression is reference counted so the link comes back
// only once every wrapper inside it is revealed or cleared.
type Manager struct {
	doc    *page.Document
	logger *slog.Logger

	mu       sync.Mutex
	wrappers map[string]*Wrapper
	links    map[*html.Node]int
	nextID   uint64
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// New creates a manager for doc.
func New(doc *page.Document, opts ...Option) *Manager {
	m := &Manager{
		doc:      doc,
		wrappers: make(map[string]*Wrapper),
		links:    make(map[*html.Node]int),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// Cloak replaces the fragment's text node with a wrapper holding a banner
// and the hidden original text. It returns ErrDetached when the fragment no
// longer matches the document.
func (m *Manager) Cloak(frag locator.Fragment, verdict model.Verdict) (*Wrapper, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var w *Wrapper
	err := m.doc.Edit(func(root *html.Node) error {
		if !frag.Valid(root) {
			return ErrDetached
		}
		m.nextID++
		w = &Wrapper{
			ID:       "tg-" + strconv.FormatUint(m.nextID, 10),
			State:    StateHidden,
			Original: frag.Raw,
			Verdict:  verdict,
		}
		m.build(w, frag.Node)
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.wrappers[w.ID] = w
	m.logger.Debug("fragment cloaked", "id", w.ID, "score", verdict.Score, "label", verdict.TopLabel())
	return w, nil
}

// build must run inside a document edit.
func (m *Manager) build(w *Wrapper, text *html.Node) {
	parent := text.Parent

	w.node = page.Element("span",
		"class", WrapperClass,
		locator.ProcessedAttr, "1",
		IDAttr, w.ID,
		ScoreAttr, strconv.FormatFloat(w.Verdict.Score, 'f', 3, 64),
	)
	w.banner = page.Element("span",
		"class", BannerClass,
		"role", "button",
		"tabindex", "0",
	)
	w.banner.AppendChild(page.Text(BannerText))
	w.hidden = page.Element("span", "class", HiddenClass)

	parent.InsertBefore(w.node, text)
	parent.RemoveChild(text)
	w.hidden.AppendChild(text)
	w.node.AppendChild(w.banner)
	w.node.AppendChild(w.hidden)

	w.link = page.Closest(parent, isLink)
	if w.link != nil {
		m.suppress(w.link)
	}
}

// Reveal shows the original text of wrapper id. Revealing twice is a
// no-op; the second call returns false.
func (m *Manager) Reveal(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.wrappers[id]
	if !ok || w.State == StateRevealed {
		return false
	}

	_ = m.doc.Edit(func(*html.Node) error { //nolint:errcheck // edit never fails
		page.AddClass(w.hidden, RevealedClass)
		if w.banner.Parent != nil {
			w.banner.Parent.RemoveChild(w.banner)
		}
		badge := page.Element("span", "class", BadgeClass)
		badge.AppendChild(page.Text(BadgeText))
		w.node.AppendChild(badge)
		if w.link != nil {
			m.release(w.link)
		}
		return nil
	})
	w.State = StateRevealed

	m.logger.Debug("fragment revealed", "id", id)
	return true
}

// ClearAll reverts every wrapper in the document to its plain text and
// restores suppressed links. Wrappers found in the markup but unknown to
// the manager are reverted too. It returns the number of wrappers removed.
func (m *Manager) ClearAll() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	_ = m.doc.Edit(func(root *html.Node) error { //nolint:errcheck // edit never fails
		for _, n := range page.FindAll(root, isWrapper) {
			if n.Parent == nil {
				continue
			}
			text := originalText(n)
			n.Parent.InsertBefore(page.Text(text), n)
			n.Parent.RemoveChild(n)
			removed++
		}
		for _, n := range page.FindAll(root, isSuppressedLink) {
			restoreLink(n)
		}
		return nil
	})

	m.wrappers = make(map[string]*Wrapper)
	m.links = make(map[*html.Node]int)
	if removed > 0 {
		m.logger.Debug("wrappers cleared", "count", removed)
	}
	return removed
}

// Count returns the number of wrappers currently tracked.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.wrappers)
}

// Get returns a copy of wrapper id.
func (m *Manager) Get(id string) (Wrapper, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.wrappers[id]
	if !ok {
		return Wrapper{}, false
	}
	return *w, true
}

// Wrappers returns copies of the tracked wrappers still attached to the
// document, in document order.
func (m *Manager) Wrappers() []Wrapper {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Wrapper
	m.doc.View(func(root *html.Node) {
		for _, n := range page.FindAll(root, isWrapper) {
			if w, ok := m.wrappers[page.GetAttr(n, IDAttr)]; ok {
				out = append(out, *w)
			}
		}
	})
	return out
}

// Unrevealed returns the hidden wrappers in document order.
func (m *Manager) Unrevealed() []Wrapper {
	var out []Wrapper
	for _, w := range m.Wrappers() {
		if w.State == StateHidden {
			out = append(out, w)
		}
	}
	return out
}

// Highlight marks wrapper id as the current one and clears the mark from
// every other wrapper.
func (m *Manager) Highlight(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	target, ok := m.wrappers[id]
	if !ok {
		return false
	}
	_ = m.doc.Edit(func(root *html.Node) error { //nolint:errcheck // edit never fails
		for _, n := range page.FindAll(root, isWrapper) {
			page.RemoveClass(n, CurrentClass)
		}
		page.AddClass(target.node, CurrentClass)
		return nil
	})
	return true
}

func (m *Manager) suppress(link *html.Node) {
	if m.links[link] == 0 {
		if href, ok := page.Attr(link, "href"); ok {
			page.SetAttr(link, HrefAttr, href)
			page.RemoveAttr(link, "href")
		}
		page.SetAttr(link, "aria-disabled", "true")
	}
	m.links[link]++
}

func (m *Manager) release(link *html.Node) {
	m.links[link]--
	if m.links[link] > 0 {
		return
	}
	delete(m.links, link)
	restoreLink(link)
}

func restoreLink(link *html.Node) {
	if href, ok := page.Attr(link, HrefAttr); ok {
		page.SetAttr(link, "href", href)
		page.RemoveAttr(link, HrefAttr)
	}
	page.RemoveAttr(link, "aria-disabled")
}

// originalText returns the text held in the hidden span of a wrapper.
func originalText(wrapper *html.Node) string {
	for c := wrapper.FirstChild; c != nil; c = c.NextSibling {
		if page.HasClass(c, HiddenClass) {
			return page.TextContent(c)
		}
	}
	return ""
}

func isWrapper(n *html.Node) bool {
	return page.HasClass(n, WrapperClass)
}

func isLink(n *html.Node) bool {
	if n.Data != "a" {
		return false
	}
	_, hasHref := page.Attr(n, "href")
	_, hasSaved := page.Attr(n, HrefAttr)
	return hasHref || hasSaved
}

func isSuppressedLink(n *html.Node) bool {
	if n.Type != html.ElementNode || n.Data != "a" {
		return false
	}
	_, ok := page.Attr(n, HrefAttr)
	return ok
}
