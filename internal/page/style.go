package page

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/html"
)

// Presentation answers visibility questions about a parsed document.
//
// It understands the subset of CSS that decides whether text is shown:
// inline style attributes, the hidden attribute, user agent defaults and
// rules from <style> elements whose selectors are a tag, a class, an id,
// a tag with classes, or the universal selector. Rules with combinators,
// attribute selectors or pseudo classes are ignored.
type Presentation struct {
	rules []styleRule
	cache map[*html.Node]computed
}

type styleRule struct {
	sel   simpleSelector
	decls map[string]string
	order int
}

type simpleSelector struct {
	tag     string
	id      string
	classes []string
}

type computed struct {
	displayNone bool
	// visibility is inherited, so the parent value is kept here
	hidden bool
}

var (
	cssComment      = regexp.MustCompile(`(?s)/\*.*?\*/`)
	simpleSelectorR = regexp.MustCompile(`^([a-zA-Z][a-zA-Z0-9-]*|\*)?((?:[.#][a-zA-Z_-][a-zA-Z0-9_-]*)*)$`)
	selectorPartR   = regexp.MustCompile(`[.#][a-zA-Z_-][a-zA-Z0-9_-]*`)
)

// defaultHidden lists elements the user agent never renders.
var defaultHidden = map[string]bool{
	"head":     true,
	"title":    true,
	"meta":     true,
	"link":     true,
	"base":     true,
	"script":   true,
	"style":    true,
	"template": true,
}

// NewPresentation collects the style sheets of the tree rooted at root.
// It must be called while the document is locked.
func NewPresentation(root *html.Node) *Presentation {
	p := &Presentation{cache: make(map[*html.Node]computed)}
	order := 0
	Walk(root, func(n *html.Node) bool {
		if IsElement(n, "style") {
			for _, r := range parseStyleSheet(TextContent(n)) {
				r.order = order
				order++
				p.rules = append(p.rules, r)
			}
			return false
		}
		return true
	})
	return p
}

// Visible reports whether n would be rendered. Text nodes take the
// visibility of their parent element.
func (p *Presentation) Visible(n *html.Node) bool {
	if n == nil {
		return false
	}
	if n.Type != html.ElementNode {
		n = n.Parent
	}
	for c := n; c != nil; c = c.Parent {
		if c.Type == html.ElementNode && p.compute(c).displayNone {
			return false
		}
	}
	if n == nil || n.Type != html.ElementNode {
		return true
	}
	return !p.compute(n).hidden
}

func (p *Presentation) compute(n *html.Node) computed {
	if c, ok := p.cache[n]; ok {
		return c
	}

	var inherited bool
	if n.Parent != nil && n.Parent.Type == html.ElementNode {
		inherited = p.compute(n.Parent).hidden
	}

	decls := p.declarations(n)
	c := computed{hidden: inherited}
	if defaultHidden[n.Data] {
		c.displayNone = true
	}
	if _, ok := Attr(n, "hidden"); ok {
		c.displayNone = true
	}
	if v, ok := decls["display"]; ok {
		c.displayNone = v == "none"
	}
	if v, ok := decls["visibility"]; ok {
		switch v {
		case "hidden", "collapse":
			c.hidden = true
		case "visible":
			c.hidden = false
		}
	}

	p.cache[n] = c
	return c
}

// declarations returns the cascaded display/visibility declarations of n.
// Sheet rules apply in specificity then source order; inline style wins.
func (p *Presentation) declarations(n *html.Node) map[string]string {
	var matched []styleRule
	for _, r := range p.rules {
		if r.sel.matches(n) {
			matched = append(matched, r)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		si, sj := matched[i].sel.specificity(), matched[j].sel.specificity()
		if si != sj {
			return si < sj
		}
		return matched[i].order < matched[j].order
	})

	out := make(map[string]string)
	for _, r := range matched {
		for k, v := range r.decls {
			out[k] = v
		}
	}
	for k, v := range parseDeclarations(GetAttr(n, "style")) {
		out[k] = v
	}
	return out
}

func (s simpleSelector) matches(n *html.Node) bool {
	if s.tag != "" && s.tag != "*" && s.tag != n.Data {
		return false
	}
	if s.id != "" && GetAttr(n, "id") != s.id {
		return false
	}
	for _, c := range s.classes {
		if !HasClass(n, c) {
			return false
		}
	}
	return true
}

func (s simpleSelector) specificity() int {
	spec := 0
	if s.id != "" {
		spec += 100
	}
	spec += 10 * len(s.classes)
	if s.tag != "" && s.tag != "*" {
		spec++
	}
	return spec
}

// parseStyleSheet extracts the supported rules from a sheet. At-rule
// blocks such as @media are skipped entirely.
func parseStyleSheet(css string) []styleRule {
	css = cssComment.ReplaceAllString(css, "")

	var rules []styleRule
	for i := 0; i < len(css); {
		open := strings.IndexByte(css[i:], '{')
		if open < 0 {
			break
		}
		prelude := strings.TrimSpace(css[i : i+open])
		end := matchingBrace(css, i+open)
		if end <= i+open {
			break
		}
		body := css[i+open+1 : end]
		i = end + 1

		if strings.HasPrefix(prelude, "@") {
			continue
		}
		decls := parseDeclarations(body)
		if _, ok := decls["display"]; !ok {
			if _, ok := decls["visibility"]; !ok {
				continue
			}
		}
		for _, part := range strings.Split(prelude, ",") {
			sel, ok := parseSelector(strings.TrimSpace(part))
			if !ok {
				continue
			}
			rules = append(rules, styleRule{sel: sel, decls: decls})
		}
	}
	return rules
}

// matchingBrace returns the index of the brace closing the one at open,
// or len(s)-1 for unbalanced input.
func matchingBrace(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return len(s) - 1
}

func parseSelector(s string) (simpleSelector, bool) {
	m := simpleSelectorR.FindStringSubmatch(s)
	if m == nil || s == "" {
		return simpleSelector{}, false
	}
	sel := simpleSelector{tag: strings.ToLower(m[1])}
	for _, part := range selectorPartR.FindAllString(m[2], -1) {
		if part[0] == '#' {
			sel.id = part[1:]
		} else {
			sel.classes = append(sel.classes, part[1:])
		}
	}
	return sel, true
}

// parseDeclarations reads the display and visibility properties from a
// declaration block.
func parseDeclarations(block string) map[string]string {
	out := make(map[string]string)
	for _, decl := range strings.Split(block, ";") {
		key, val, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		if key != "display" && key != "visibility" {
			continue
		}
		val = strings.ToLower(strings.TrimSpace(val))
		val = strings.TrimSpace(strings.TrimSuffix(val, "!important"))
		out[key] = val
	}
	return out
}
