// internal/locator/query/filters.go
package query

import (
	"golang.org/x/net/html"

	"github.com/xkilldash9x/scalpel-locator/api/schemas"
	"github.com/xkilldash9x/scalpel-locator/internal/browser/dom"
	"github.com/xkilldash9x/scalpel-locator/internal/locator/aria"
)

// ApplyFilters narrows nodes by each filter in order. Position filters yield
// zero or one element; out of range positions yield none.
func ApplyFilters(r *aria.Resolver, nodes []*html.Node, filters []schemas.FilterSpec) []*html.Node {
	for _, f := range filters {
		if len(nodes) == 0 {
			return nodes
		}
		nodes = applyFilter(r, nodes, f)
	}
	return nodes
}

func applyFilter(r *aria.Resolver, nodes []*html.Node, f schemas.FilterSpec) []*html.Node {
	if f.Kind == schemas.FilterPosition {
		idx := f.Index
		if f.Last {
			idx = -1
		}
		if idx < 0 {
			idx += len(nodes)
		}
		if idx < 0 || idx >= len(nodes) {
			return nil
		}
		return []*html.Node{nodes[idx]}
	}
	pred := predicate(r, f)
	out := make([]*html.Node, 0, len(nodes))
	for _, n := range nodes {
		if pred(n) {
			out = append(out, n)
		}
	}
	return out
}

func predicate(r *aria.Resolver, f schemas.FilterSpec) func(*html.Node) bool {
	switch f.Kind {
	case schemas.FilterHasText:
		return func(n *html.Node) bool { return r.MatchesText(n, f.Pattern, f.Exact) }
	case schemas.FilterHasNotText:
		return func(n *html.Node) bool { return !r.MatchesText(n, f.Pattern, f.Exact) }
	case schemas.FilterAccessibleName:
		return func(n *html.Node) bool { return r.MatchesAccessibleName(n, f.Pattern, f.Exact) }
	case schemas.FilterLabel:
		return func(n *html.Node) bool { return r.MatchesLabel(n, f.Pattern, f.Exact) }
	case schemas.FilterRole:
		return func(n *html.Node) bool { return aria.MatchesRole(n, f.Name) }
	case schemas.FilterState:
		if f.State == schemas.StateLevel {
			return func(n *html.Node) bool { return r.Level(n) == f.Level }
		}
		return func(n *html.Node) bool { return r.State(n, f.State) == f.Want }
	case schemas.FilterVisible:
		return func(n *html.Node) bool {
			if aria.IsHiddenFromTree(n) {
				return false
			}
			return r.Style == nil || r.Style.IsVisible(n)
		}
	case schemas.FilterAttribute:
		return func(n *html.Node) bool {
			v, ok := dom.Attr(n, f.Name)
			return ok && aria.MatchText(v, f.Pattern, f.Exact)
		}
	case schemas.FilterText:
		return func(n *html.Node) bool { return innermostText(r, n, f) }
	}
	return func(*html.Node) bool { return false }
}

// innermostText matches n when its text matches and no descendant element's
// text does.
func innermostText(r *aria.Resolver, n *html.Node, f schemas.FilterSpec) bool {
	if !r.MatchesText(n, f.Pattern, f.Exact) {
		return false
	}
	inner := dom.FindFirst(n, func(c *html.Node) bool {
		switch dom.TagName(c) {
		case "script", "style", "template", "noscript":
			return false
		}
		return r.MatchesText(c, f.Pattern, f.Exact)
	})
	return inner == nil
}
