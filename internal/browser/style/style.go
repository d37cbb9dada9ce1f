// internal/browser/style/style.go
package style

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/xkilldash9x/scalpel-locator/internal/browser/dom"
	"github.com/xkilldash9x/scalpel-locator/internal/browser/parser"
	"golang.org/x/net/html"
)

// DefaultUserAgentCSS holds the user-agent rules that affect rendering.
// Only display matters here, so everything else a browser ships is omitted.
const DefaultUserAgentCSS = `
[hidden], head, script, style, template, title, meta, link, base, noscript,
datalist, input[type="hidden"] { display: none; }
html, body, div, p, h1, h2, h3, h4, h5, h6, ul, ol, form, header, footer,
section, article, nav, main, aside, fieldset, legend, details, dialog { display: block; }
li { display: list-item; }
table { display: table; }
tr { display: table-row; }
td, th { display: table-cell; }
input, button, textarea, select, img { display: inline-block; }
`

// -- Cascade --

type StyleOrigin int

const (
	OriginUserAgent StyleOrigin = iota
	OriginAuthor
	OriginInline
)

type declarationWithContext struct {
	decl        parser.Declaration
	specificity [3]int
	origin      StyleOrigin
	order       int
}

// priority orders origins and importance per the CSS cascade.
func (d declarationWithContext) priority() int {
	switch d.origin {
	case OriginUserAgent:
		if d.decl.Important {
			return 5
		}
		return 1
	case OriginAuthor:
		if d.decl.Important {
			return 4
		}
		return 2
	case OriginInline:
		if d.decl.Important {
			return 4
		}
		return 3
	}
	return 0
}

// Engine computes the rendering-relevant subset of CSS for a layout-less DOM.
// It is safe for concurrent use; parsed author sheets are cached by text.
type Engine struct {
	userAgentSheets []parser.StyleSheet

	mu    sync.Mutex
	cache map[string]parser.StyleSheet
}

// NewEngine creates a style engine with the default user-agent sheet.
func NewEngine() *Engine {
	return &Engine{
		userAgentSheets: []parser.StyleSheet{parser.NewParser(DefaultUserAgentCSS).Parse()},
		cache:           make(map[string]parser.StyleSheet),
	}
}

// AuthorSheets parses every <style> element under root, in document order.
func (se *Engine) AuthorSheets(root *html.Node) []parser.StyleSheet {
	var sheets []parser.StyleSheet
	for _, el := range dom.FindAll(root, func(n *html.Node) bool { return dom.TagName(n) == "style" }) {
		text := dom.TextContent(el)
		se.mu.Lock()
		sheet, ok := se.cache[text]
		if !ok {
			sheet = parser.NewParser(text).Parse()
			se.cache[text] = sheet
		}
		se.mu.Unlock()
		sheets = append(sheets, sheet)
	}
	return sheets
}

// CalculateStyles runs the cascade for node and returns its specified values.
// Inheritance is not applied here.
func (se *Engine) CalculateStyles(node *html.Node, authorSheets []parser.StyleSheet) map[parser.Property]parser.Value {
	var decls []declarationWithContext
	order := 0
	collect := func(sheets []parser.StyleSheet, origin StyleOrigin) {
		for _, sheet := range sheets {
			for _, rule := range sheet.Rules {
				for _, group := range rule.SelectorGroups {
					matched, ok := Matches(node, group)
					if !ok {
						continue
					}
					a, b, c := matched.CalculateSpecificity()
					for _, d := range rule.Declarations {
						decls = append(decls, declarationWithContext{decl: d, specificity: [3]int{a, b, c}, origin: origin, order: order})
						order++
					}
					break
				}
			}
		}
	}
	collect(se.userAgentSheets, OriginUserAgent)
	collect(authorSheets, OriginAuthor)
	if inline, ok := dom.Attr(node, "style"); ok {
		for _, d := range parser.ParseInlineStyle(inline) {
			decls = append(decls, declarationWithContext{decl: d, specificity: [3]int{1, 0, 0}, origin: OriginInline, order: order})
			order++
		}
	}

	sort.SliceStable(decls, func(i, j int) bool {
		di, dj := decls[i], decls[j]
		if pi, pj := di.priority(), dj.priority(); pi != pj {
			return pi < pj
		}
		for k := 0; k < 3; k++ {
			if di.specificity[k] != dj.specificity[k] {
				return di.specificity[k] < dj.specificity[k]
			}
		}
		return di.order < dj.order
	})

	styles := make(map[parser.Property]parser.Value, len(decls))
	for _, d := range decls {
		styles[d.decl.Property] = parser.Value(strings.ToLower(strings.TrimSpace(string(d.decl.Value))))
	}
	return styles
}

// -- Selector matching --

// Matches reports whether node matches any complex selector of group and
// returns the one that matched.
func Matches(node *html.Node, group parser.SelectorGroup) (*parser.ComplexSelector, bool) {
	if !dom.IsElement(node) {
		return nil, false
	}
	for i := range group {
		if n := len(group[i].Selectors); n > 0 && matchFrom(node, group[i], n-1) {
			return &group[i], true
		}
	}
	return nil, false
}

func matchFrom(node *html.Node, cs parser.ComplexSelector, index int) bool {
	if !dom.IsElement(node) || index < 0 {
		return false
	}
	step := cs.Selectors[index]
	if !matchesSimple(node, step.SimpleSelector) {
		return false
	}
	if index == 0 {
		return true
	}
	switch step.Combinator {
	case parser.CombinatorDescendant:
		for p := node.Parent; p != nil; p = p.Parent {
			if matchFrom(p, cs, index-1) {
				return true
			}
		}
	case parser.CombinatorChild:
		return matchFrom(node.Parent, cs, index-1)
	case parser.CombinatorAdjacentSibling:
		return matchFrom(prevElementSibling(node), cs, index-1)
	case parser.CombinatorGeneralSibling:
		for s := prevElementSibling(node); s != nil; s = prevElementSibling(s) {
			if matchFrom(s, cs, index-1) {
				return true
			}
		}
	}
	return false
}

func prevElementSibling(node *html.Node) *html.Node {
	for s := node.PrevSibling; s != nil; s = s.PrevSibling {
		if s.Type == html.ElementNode {
			return s
		}
	}
	return nil
}

func matchesSimple(node *html.Node, sel parser.SimpleSelector) bool {
	if sel.TagName != "" && sel.TagName != "*" && dom.TagName(node) != sel.TagName {
		return false
	}
	if sel.ID != "" && dom.AttrOr(node, "id") != sel.ID {
		return false
	}
	if len(sel.Classes) > 0 {
		have := strings.Fields(dom.AttrOr(node, "class"))
		for _, want := range sel.Classes {
			if !containsWord(have, want) {
				return false
			}
		}
	}
	for _, attr := range sel.Attributes {
		if !matchesAttribute(node, attr) {
			return false
		}
	}
	return true
}

func containsWord(words []string, w string) bool {
	for _, x := range words {
		if x == w {
			return true
		}
	}
	return false
}

func matchesAttribute(node *html.Node, sel parser.AttributeSelector) bool {
	actual, found := dom.Attr(node, sel.Name)
	if !found {
		return false
	}
	switch sel.Operator {
	case "":
		return true
	case "=":
		return actual == sel.Value
	case "~=":
		return containsWord(strings.Fields(actual), sel.Value)
	case "|=":
		return actual == sel.Value || strings.HasPrefix(actual, sel.Value+"-")
	case "^=":
		return sel.Value != "" && strings.HasPrefix(actual, sel.Value)
	case "$=":
		return sel.Value != "" && strings.HasSuffix(actual, sel.Value)
	case "*=":
		return sel.Value != "" && strings.Contains(actual, sel.Value)
	}
	return false
}

// -- Computed view --

// Computed is the rendering-relevant computed style of one element.
type Computed struct {
	Display    string
	Visibility string
	Width      string
	Height     string
}

// Snapshot memoizes computed styles for one document state. Build a new one
// whenever the DOM may have changed.
type Snapshot struct {
	engine *Engine
	sheets []parser.StyleSheet
	cache  map[*html.Node]Computed
	boxes  map[*html.Node]bool
}

// Snapshot captures the author sheets under root.
func (se *Engine) Snapshot(root *html.Node) *Snapshot {
	return &Snapshot{
		engine: se,
		sheets: se.AuthorSheets(root),
		cache:  make(map[*html.Node]Computed),
		boxes:  make(map[*html.Node]bool),
	}
}

// Compute returns the computed style of an element. Visibility inherits.
func (s *Snapshot) Compute(node *html.Node) Computed {
	if c, ok := s.cache[node]; ok {
		return c
	}
	styles := s.engine.CalculateStyles(node, s.sheets)
	c := Computed{
		Display:    string(styles["display"]),
		Visibility: string(styles["visibility"]),
		Width:      string(styles["width"]),
		Height:     string(styles["height"]),
	}
	if c.Display == "" {
		c.Display = "inline"
	}
	if c.Visibility == "" || c.Visibility == "inherit" {
		c.Visibility = "visible"
		if p := node.Parent; dom.IsElement(p) {
			c.Visibility = s.Compute(p).Visibility
		}
	}
	s.cache[node] = c
	return c
}

// IsRendered reports that neither node nor any ancestor is display:none.
func (s *Snapshot) IsRendered(node *html.Node) bool {
	for n := node; n != nil; n = n.Parent {
		if dom.IsElement(n) && s.Compute(n).Display == "none" {
			return false
		}
	}
	return node != nil
}

// IsVisible reports a rendered element that is not visibility-hidden and has
// a non-empty box.
func (s *Snapshot) IsVisible(node *html.Node) bool {
	if !dom.IsElement(node) || !s.IsRendered(node) {
		return false
	}
	switch s.Compute(node).Visibility {
	case "hidden", "collapse":
		return false
	}
	return s.HasBox(node)
}

// HasBox estimates whether a rendered element would have a non-zero
// bounding box. Replaced and form elements always do unless sized to zero;
// other elements need non-blank text or a child with a box.
func (s *Snapshot) HasBox(node *html.Node) bool {
	if b, ok := s.boxes[node]; ok {
		return b
	}
	b := s.hasBox(node)
	s.boxes[node] = b
	return b
}

func (s *Snapshot) hasBox(node *html.Node) bool {
	c := s.Compute(node)
	if c.Display == "none" {
		return false
	}
	if isZeroLength(c.Width) || isZeroLength(c.Height) {
		return false
	}
	switch dom.TagName(node) {
	case "img", "input", "button", "select", "textarea", "video", "canvas", "iframe",
		"svg", "object", "embed", "hr", "progress", "meter", "audio":
		return true
	}
	if isPositiveLength(c.Width) && isPositiveLength(c.Height) {
		return true
	}
	for ch := node.FirstChild; ch != nil; ch = ch.NextSibling {
		switch ch.Type {
		case html.TextNode:
			if strings.TrimSpace(ch.Data) != "" {
				return true
			}
		case html.ElementNode:
			if s.HasBox(ch) {
				return true
			}
		}
	}
	return false
}

func isZeroLength(v string) bool {
	n, ok := parseLength(v)
	return ok && n == 0
}

func isPositiveLength(v string) bool {
	n, ok := parseLength(v)
	return ok && n > 0
}

// parseLength reads the numeric part of a length such as "0", "12px" or "1.5em".
func parseLength(v string) (float64, bool) {
	v = strings.TrimSpace(v)
	if v == "" || v == "auto" {
		return 0, false
	}
	end := 0
	for end < len(v) && (v[end] == '.' || v[end] == '-' || v[end] == '+' || (v[end] >= '0' && v[end] <= '9')) {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.ParseFloat(v[:end], 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
