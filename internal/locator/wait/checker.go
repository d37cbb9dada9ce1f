// internal/locator/wait/checker.go
package wait

import (
	"golang.org/x/net/html"

	"github.com/xkilldash9x/scalpel-locator/internal/browser/dom"
	"github.com/xkilldash9x/scalpel-locator/internal/browser/style"
)

// Checker inspects the current state of a single element. Every method takes
// a fresh look at the document and never blocks beyond the tree lock.
type Checker struct {
	doc    *dom.Document
	styles *style.Engine
}

// NewChecker builds a checker over doc. A nil style engine gets the default
// user-agent sheet.
func NewChecker(doc *dom.Document, styles *style.Engine) *Checker {
	if styles == nil {
		styles = style.NewEngine()
	}
	return &Checker{doc: doc, styles: styles}
}

// Document returns the document the checker inspects.
func (c *Checker) Document() *dom.Document { return c.doc }

// IsAttached reports whether n is still part of the document.
func (c *Checker) IsAttached(n *html.Node) bool {
	return n != nil && c.doc.Contains(n)
}

// IsVisible reports an attached element that is rendered, not
// visibility-hidden and has a box.
func (c *Checker) IsVisible(n *html.Node) bool {
	var visible bool
	c.doc.View(func(root *html.Node) {
		if n == nil || dom.RootOf(n) != root {
			return
		}
		visible = c.styles.Snapshot(root).IsVisible(n)
	})
	return visible
}

// IsEnabled reports an attached element that is not natively disabled.
func (c *Checker) IsEnabled(n *html.Node) bool {
	var enabled bool
	c.doc.View(func(root *html.Node) {
		if n == nil || dom.RootOf(n) != root {
			return
		}
		enabled = !dom.IsDisabled(n)
	})
	return enabled
}

// IsEditable reports an enabled form control or contenteditable element.
func (c *Checker) IsEditable(n *html.Node) bool {
	var editable bool
	c.doc.View(func(root *html.Node) {
		if n == nil || dom.RootOf(n) != root || dom.IsDisabled(n) {
			return
		}
		switch dom.TagName(n) {
		case "input", "textarea", "select":
			editable = true
		default:
			editable = dom.IsContentEditable(n)
		}
	})
	return editable
}

// IsClickable reports a visible, enabled element. Occlusion is deliberately
// not tested so that elements outside the scrolled viewport stay clickable.
func (c *Checker) IsClickable(n *html.Node) bool {
	return c.IsVisible(n) && c.IsEnabled(n)
}
