// browser/dom/node.go
package dom

import (
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// Tree helpers in this file never lock. They are safe to call from inside
// Document.View or from code that otherwise owns the tree.

// IsElement reports whether n is an element node.
func IsElement(n *html.Node) bool { return n != nil && n.Type == html.ElementNode }

// TagName returns the lowercase tag name of an element, or "" for other nodes.
func TagName(n *html.Node) string {
	if !IsElement(n) {
		return ""
	}
	return strings.ToLower(n.Data)
}

// Attr returns the value of the named attribute and whether it is present.
func Attr(n *html.Node, name string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, name) {
			return a.Val, true
		}
	}
	return "", false
}

// AttrOr returns the attribute value or "" when absent.
func AttrOr(n *html.Node, name string) string {
	v, _ := Attr(n, name)
	return v
}

// HasAttr reports whether the attribute is present, regardless of value.
func HasAttr(n *html.Node, name string) bool {
	_, ok := Attr(n, name)
	return ok
}

// InputType returns the normalized type of an <input>, defaulting to "text".
func InputType(n *html.Node) string {
	if TagName(n) != "input" {
		return ""
	}
	t := strings.ToLower(strings.TrimSpace(AttrOr(n, "type")))
	if t == "" {
		return "text"
	}
	return t
}

// TextContent concatenates all descendant text, like Node.textContent.
func TextContent(n *html.Node) string {
	if n == nil {
		return ""
	}
	if n.Type == html.TextNode {
		return n.Data
	}
	return htmlquery.InnerText(n)
}

// NormalizeWhitespace collapses runs of whitespace into single spaces and trims.
func NormalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Children returns the element children of n in document order.
func Children(n *html.Node) []*html.Node {
	var out []*html.Node
	if n == nil {
		return out
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, c)
		}
	}
	return out
}

// Walk visits n and its descendants in document order. Returning false from
// fn skips the subtree of the current node.
func Walk(n *html.Node, fn func(*html.Node) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		Walk(c, fn)
	}
}

// FindAll returns every descendant element of n (excluding n) that satisfies pred.
func FindAll(n *html.Node, pred func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	if n == nil {
		return out
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		Walk(c, func(x *html.Node) bool {
			if x.Type == html.ElementNode && pred(x) {
				out = append(out, x)
			}
			return true
		})
	}
	return out
}

// FindFirst returns the first descendant element of n satisfying pred.
func FindFirst(n *html.Node, pred func(*html.Node) bool) *html.Node {
	var found *html.Node
	if n == nil {
		return nil
	}
	for c := n.FirstChild; c != nil && found == nil; c = c.NextSibling {
		Walk(c, func(x *html.Node) bool {
			if found != nil {
				return false
			}
			if x.Type == html.ElementNode && pred(x) {
				found = x
				return false
			}
			return true
		})
	}
	return found
}

// ElementByID finds the first element under root whose id attribute equals id.
func ElementByID(root *html.Node, id string) *html.Node {
	if id == "" {
		return nil
	}
	return FindFirst(root, func(n *html.Node) bool { return AttrOr(n, "id") == id })
}

// ClosestAncestor returns the nearest strict ancestor element satisfying pred.
func ClosestAncestor(n *html.Node, pred func(*html.Node) bool) *html.Node {
	if n == nil {
		return nil
	}
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && pred(p) {
			return p
		}
	}
	return nil
}

// IsAncestor reports whether anc is a strict ancestor of n.
func IsAncestor(anc, n *html.Node) bool {
	if anc == nil || n == nil {
		return false
	}
	for p := n.Parent; p != nil; p = p.Parent {
		if p == anc {
			return true
		}
	}
	return false
}

// RootOf returns the topmost ancestor of n.
func RootOf(n *html.Node) *html.Node {
	for n != nil && n.Parent != nil {
		n = n.Parent
	}
	return n
}

// Describe renders a short human readable tag for log lines, e.g. <input#email.wide>.
func Describe(n *html.Node) string {
	if !IsElement(n) {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString("<")
	b.WriteString(TagName(n))
	if id := AttrOr(n, "id"); id != "" {
		b.WriteString("#")
		b.WriteString(id)
	}
	for _, cls := range strings.Fields(AttrOr(n, "class")) {
		b.WriteString(".")
		b.WriteString(cls)
	}
	b.WriteString(">")
	return b.String()
}
