// internal/locator/aria/aria.go
package aria

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/xkilldash9x/scalpel-locator/api/schemas"
	"github.com/xkilldash9x/scalpel-locator/internal/browser/dom"
	"github.com/xkilldash9x/scalpel-locator/internal/browser/style"
)

// Resolver computes accessible names, roles and states against one
// document snapshot. It never takes the document tree lock, so it may be
// used from inside Document.View.
type Resolver struct {
	// Doc supplies live form state. It may be nil, in which case markup
	// attributes are used.
	Doc *dom.Document
	// Style decides visibility for the row rule. A nil snapshot treats every
	// element as visible.
	Style *style.Snapshot
}

// NewResolver returns a resolver bound to doc and its style snapshot.
func NewResolver(doc *dom.Document, snap *style.Snapshot) *Resolver {
	return &Resolver{Doc: doc, Style: snap}
}

// -- Accessible name --

// nameSource is one step of the accessible name computation.
type nameSource func(r *Resolver, n *html.Node) string

// nameSources are tried in order; the first non-empty result is the name.
var nameSources = []nameSource{
	(*Resolver).ariaLabel,
	(*Resolver).labelledBy,
	(*Resolver).forLabel,
	(*Resolver).ancestorLabel,
	(*Resolver).rowName,
	(*Resolver).ownText,
	func(_ *Resolver, n *html.Node) string { return strings.TrimSpace(dom.AttrOr(n, "placeholder")) },
	func(_ *Resolver, n *html.Node) string { return strings.TrimSpace(dom.AttrOr(n, "title")) },
}

// labelSources are the subset of name sources that count as a label.
var labelSources = []nameSource{
	(*Resolver).ariaLabel,
	(*Resolver).labelledBy,
	(*Resolver).forLabel,
	(*Resolver).ancestorLabel,
}

// AccessibleName returns the normalized accessible name of n, or "".
func (r *Resolver) AccessibleName(n *html.Node) string {
	return r.firstOf(nameSources, n)
}

// LabelText returns the text n is labelled with through aria-label,
// aria-labelledby or an associated <label>.
func (r *Resolver) LabelText(n *html.Node) string {
	return r.firstOf(labelSources, n)
}

func (r *Resolver) firstOf(sources []nameSource, n *html.Node) string {
	if !dom.IsElement(n) {
		return ""
	}
	for _, src := range sources {
		if name := dom.NormalizeWhitespace(src(r, n)); name != "" {
			return name
		}
	}
	return ""
}

// HasAnyAccessibleName reports whether any name source yields text.
func (r *Resolver) HasAnyAccessibleName(n *html.Node) bool {
	return r.AccessibleName(n) != ""
}

// MatchesAccessibleName matches the accessible name against p. The empty
// literal with exact set matches elements that have no name at all.
func (r *Resolver) MatchesAccessibleName(n *html.Node, p schemas.TextPattern, exact bool) bool {
	if p.IsEmpty() && exact {
		return !r.HasAnyAccessibleName(n)
	}
	return MatchText(r.AccessibleName(n), p, exact)
}

// MatchesLabel reports whether any label of n matches p, with the same
// empty pattern rule as MatchesAccessibleName.
func (r *Resolver) MatchesLabel(n *html.Node, p schemas.TextPattern, exact bool) bool {
	if p.IsEmpty() && exact {
		return !r.HasAnyAccessibleName(n)
	}
	for _, text := range r.Labels(n) {
		if MatchText(text, p, exact) {
			return true
		}
	}
	return false
}

// Labels returns every non-empty label of n: aria-label, the joined
// aria-labelledby targets, each <label for> and the enclosing <label>.
func (r *Resolver) Labels(n *html.Node) []string {
	if !dom.IsElement(n) {
		return nil
	}
	var out []string
	add := func(s string) {
		if s = dom.NormalizeWhitespace(s); s != "" {
			out = append(out, s)
		}
	}
	add(r.ariaLabel(n))
	add(r.labelledBy(n))
	for _, l := range r.forLabels(n) {
		add(labelText(l))
	}
	add(r.ancestorLabel(n))
	return out
}

// MatchesText matches the text content of n, ignoring aria attributes.
// Button-like inputs contribute their value.
func (r *Resolver) MatchesText(n *html.Node, p schemas.TextPattern, exact bool) bool {
	return MatchText(ElementText(n), p, exact)
}

// ElementText returns the normalized text of n as the text queries see it.
func ElementText(n *html.Node) string {
	if dom.TagName(n) == "input" {
		switch dom.InputType(n) {
		case "button", "submit", "reset":
			return dom.NormalizeWhitespace(dom.AttrOr(n, "value"))
		}
	}
	return dom.NormalizeWhitespace(dom.TextContent(n))
}

// MatchText applies a text pattern to s. Regular expressions are searched;
// literals compare whitespace-normalized text, by equality when exact and by
// substring otherwise.
func MatchText(s string, p schemas.TextPattern, exact bool) bool {
	if p.IsRegexp() {
		return p.Regexp.MatchString(s)
	}
	s = dom.NormalizeWhitespace(s)
	want := dom.NormalizeWhitespace(p.Text)
	if exact {
		return s == want
	}
	return strings.Contains(s, want)
}

func (r *Resolver) ariaLabel(n *html.Node) string {
	return dom.AttrOr(n, "aria-label")
}

func (r *Resolver) labelledBy(n *html.Node) string {
	ids := strings.Fields(dom.AttrOr(n, "aria-labelledby"))
	if len(ids) == 0 {
		return ""
	}
	root := dom.RootOf(n)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		if el := dom.ElementByID(root, id); el != nil {
			if t := dom.NormalizeWhitespace(dom.TextContent(el)); t != "" {
				parts = append(parts, t)
			}
		}
	}
	return strings.Join(parts, " ")
}

func (r *Resolver) forLabel(n *html.Node) string {
	labels := r.forLabels(n)
	parts := make([]string, 0, len(labels))
	for _, l := range labels {
		if t := labelText(l); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

func (r *Resolver) forLabels(n *html.Node) []*html.Node {
	id := dom.AttrOr(n, "id")
	if id == "" {
		return nil
	}
	return dom.FindAll(dom.RootOf(n), func(x *html.Node) bool {
		return dom.TagName(x) == "label" && dom.AttrOr(x, "for") == id
	})
}

func (r *Resolver) ancestorLabel(n *html.Node) string {
	label := dom.ClosestAncestor(n, func(p *html.Node) bool { return dom.TagName(p) == "label" })
	if label == nil {
		return ""
	}
	return labelText(label)
}

// labelText is the text of a label without the contents of embedded
// selects and textareas.
func labelText(label *html.Node) string {
	var b strings.Builder
	dom.Walk(label, func(x *html.Node) bool {
		switch {
		case x.Type == html.TextNode:
			b.WriteString(x.Data)
			b.WriteString(" ")
		case dom.TagName(x) == "select", dom.TagName(x) == "textarea", dom.TagName(x) == "script", dom.TagName(x) == "style":
			return false
		}
		return true
	})
	return dom.NormalizeWhitespace(b.String())
}

// rowName joins the names of the cells of a row.
func (r *Resolver) rowName(n *html.Node) string {
	if !MatchesRole(n, "row") && dom.TagName(n) != "tr" {
		return ""
	}
	var parts []string
	for _, cell := range dom.Children(n) {
		if !isCell(cell) || r.skipped(cell) {
			continue
		}
		name := dom.NormalizeWhitespace(dom.AttrOr(cell, "aria-label"))
		if name == "" {
			name = r.VisibleText(cell)
		}
		if name != "" {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, " ")
}

func isCell(n *html.Node) bool {
	switch dom.TagName(n) {
	case "td", "th":
		return true
	}
	switch ExplicitRole(n) {
	case "cell", "gridcell", "columnheader", "rowheader":
		return true
	}
	return false
}

func (r *Resolver) ownText(n *html.Node) string {
	switch dom.TagName(n) {
	case "input":
		switch dom.InputType(n) {
		case "button", "submit", "reset":
			if v, ok := dom.Attr(n, "value"); ok {
				return v
			}
			switch dom.InputType(n) {
			case "submit":
				return "Submit"
			case "reset":
				return "Reset"
			}
			return ""
		case "image":
			return dom.AttrOr(n, "alt")
		}
		return ""
	case "img", "area":
		return dom.AttrOr(n, "alt")
	case "select", "textarea":
		return ""
	}
	return dom.TextContent(n)
}

// VisibleText returns the normalized text of n, skipping subtrees that are
// display:none or visibility:hidden.
func (r *Resolver) VisibleText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(x *html.Node) {
		for c := x.FirstChild; c != nil; c = c.NextSibling {
			switch c.Type {
			case html.TextNode:
				b.WriteString(c.Data)
				b.WriteString(" ")
			case html.ElementNode:
				if !r.skipped(c) {
					walk(c)
				}
			}
		}
	}
	walk(n)
	return dom.NormalizeWhitespace(b.String())
}

func (r *Resolver) skipped(n *html.Node) bool {
	switch dom.TagName(n) {
	case "script", "style", "template":
		return true
	}
	if r.Style == nil {
		return false
	}
	c := r.Style.Compute(n)
	return c.Display == "none" || c.Visibility == "hidden" || c.Visibility == "collapse"
}

// -- States --

// IsChecked reports the checked state of native checkboxes and radios, or
// aria-checked="true" on anything else.
func (r *Resolver) IsChecked(n *html.Node) bool {
	if dom.TagName(n) == "input" {
		switch dom.InputType(n) {
		case "checkbox", "radio":
			if r.Doc != nil {
				return r.Doc.Checked(n)
			}
			return dom.HasAttr(n, "checked")
		}
	}
	return ariaTrue(n, "aria-checked")
}

// IsDisabled combines native disabledness with aria-disabled on the element
// or an ancestor.
func (r *Resolver) IsDisabled(n *html.Node) bool {
	if dom.IsDisabled(n) {
		return true
	}
	for cur := n; dom.IsElement(cur); cur = cur.Parent {
		if ariaTrue(cur, "aria-disabled") {
			return true
		}
	}
	return false
}

// IsSelected reports option selection or aria-selected="true".
func (r *Resolver) IsSelected(n *html.Node) bool {
	if dom.TagName(n) == "option" {
		if r.Doc != nil {
			return r.Doc.Selected(n)
		}
		return dom.HasAttr(n, "selected")
	}
	return ariaTrue(n, "aria-selected")
}

// IsExpanded reports aria-expanded="true" or an open <details>.
func (r *Resolver) IsExpanded(n *html.Node) bool {
	if dom.TagName(n) == "details" {
		return dom.HasAttr(n, "open")
	}
	return ariaTrue(n, "aria-expanded")
}

// IsPressed reports aria-pressed="true".
func (r *Resolver) IsPressed(n *html.Node) bool {
	return ariaTrue(n, "aria-pressed")
}

// Level returns the heading level from aria-level or the tag, or 0.
func (r *Resolver) Level(n *html.Node) int {
	if v, ok := dom.Attr(n, "aria-level"); ok {
		if lvl, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && lvl > 0 {
			return lvl
		}
	}
	switch tag := dom.TagName(n); tag {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		return int(tag[1] - '0')
	}
	return 0
}

// State returns the named boolean state of n.
func (r *Resolver) State(n *html.Node, state schemas.StateName) bool {
	switch state {
	case schemas.StateChecked:
		return r.IsChecked(n)
	case schemas.StateDisabled:
		return r.IsDisabled(n)
	case schemas.StateSelected:
		return r.IsSelected(n)
	case schemas.StateExpanded:
		return r.IsExpanded(n)
	case schemas.StatePressed:
		return r.IsPressed(n)
	}
	return false
}

// IsHiddenFromTree reports aria-hidden="true" on n or an ancestor.
func IsHiddenFromTree(n *html.Node) bool {
	for cur := n; dom.IsElement(cur); cur = cur.Parent {
		if ariaTrue(cur, "aria-hidden") {
			return true
		}
	}
	return false
}

func ariaTrue(n *html.Node, attr string) bool {
	return strings.EqualFold(strings.TrimSpace(dom.AttrOr(n, attr)), "true")
}
