// browser/dom/document.go
package dom

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document is a live, mutable HTML document. The tree lock guards structure
// (Parse, mutations, View) and a separate state lock guards per-node runtime
// state such as form values, expando properties and listeners, so state can
// be read and written from inside View and from event listeners.
type Document struct {
	logger *zap.Logger

	treeMu sync.RWMutex
	root   *html.Node

	stateMu  sync.Mutex
	state    map[*html.Node]*nodeState
	active   *html.Node
	scrolled []*html.Node
	nextID   uint64
}

// Parse reads an HTML document.
func Parse(r io.Reader, logger *zap.Logger) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	return NewDocument(root, logger), nil
}

// ParseString is Parse over a string.
func ParseString(s string, logger *zap.Logger) (*Document, error) {
	return Parse(strings.NewReader(s), logger)
}

// NewDocument wraps an already parsed tree.
func NewDocument(root *html.Node, logger *zap.Logger) *Document {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Document{
		logger: logger.Named("dom"),
		root:   root,
		state:  make(map[*html.Node]*nodeState),
	}
}

// Root returns the document node. Callers walking the tree concurrently with
// mutations should do so inside View.
func (d *Document) Root() *html.Node {
	d.treeMu.RLock()
	defer d.treeMu.RUnlock()
	return d.root
}

// View runs fn with the tree read-locked. fn must not call mutating Document
// methods or Dispatch.
func (d *Document) View(fn func(root *html.Node)) {
	d.treeMu.RLock()
	defer d.treeMu.RUnlock()
	fn(d.root)
}

// Update runs fn with the tree write-locked.
func (d *Document) Update(fn func(root *html.Node)) {
	d.treeMu.Lock()
	defer d.treeMu.Unlock()
	fn(d.root)
}

// Body returns the <body> element, if any.
func (d *Document) Body() *html.Node {
	d.treeMu.RLock()
	defer d.treeMu.RUnlock()
	return FindFirst(d.root, func(n *html.Node) bool { return n.DataAtom == atom.Body })
}

// Contains reports whether n is still attached to this document.
func (d *Document) Contains(n *html.Node) bool {
	if n == nil {
		return false
	}
	d.treeMu.RLock()
	defer d.treeMu.RUnlock()
	return RootOf(n) == d.root
}

// ElementByID is the locked variant of the package level helper.
func (d *Document) ElementByID(id string) *html.Node {
	d.treeMu.RLock()
	defer d.treeMu.RUnlock()
	return ElementByID(d.root, id)
}

// HTML renders the whole document.
func (d *Document) HTML() (string, error) {
	d.treeMu.RLock()
	defer d.treeMu.RUnlock()
	var buf bytes.Buffer
	if err := html.Render(&buf, d.root); err != nil {
		return "", fmt.Errorf("failed to render document: %w", err)
	}
	return buf.String(), nil
}

// -- Mutations --

// SetAttribute sets or replaces an attribute on n.
func (d *Document) SetAttribute(n *html.Node, name, value string) {
	d.treeMu.Lock()
	defer d.treeMu.Unlock()
	for i, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, name) {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: strings.ToLower(name), Val: value})
}

// RemoveAttribute deletes an attribute from n if present.
func (d *Document) RemoveAttribute(n *html.Node, name string) {
	d.treeMu.Lock()
	defer d.treeMu.Unlock()
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		if !(a.Namespace == "" && strings.EqualFold(a.Key, name)) {
			kept = append(kept, a)
		}
	}
	n.Attr = kept
}

// AppendHTML parses markup in the context of parent and appends the result.
func (d *Document) AppendHTML(parent *html.Node, markup string) ([]*html.Node, error) {
	nodes, err := html.ParseFragment(strings.NewReader(markup), parent)
	if err != nil {
		return nil, fmt.Errorf("failed to parse fragment: %w", err)
	}
	d.treeMu.Lock()
	defer d.treeMu.Unlock()
	for _, n := range nodes {
		parent.AppendChild(n)
	}
	return nodes, nil
}

// SetInnerHTML replaces the children of n with parsed markup.
func (d *Document) SetInnerHTML(n *html.Node, markup string) error {
	nodes, err := html.ParseFragment(strings.NewReader(markup), n)
	if err != nil {
		return fmt.Errorf("failed to parse fragment: %w", err)
	}
	d.treeMu.Lock()
	defer d.treeMu.Unlock()
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	for _, c := range nodes {
		n.AppendChild(c)
	}
	return nil
}

// SetTextContent replaces the children of n with a single text node.
func (d *Document) SetTextContent(n *html.Node, text string) {
	d.treeMu.Lock()
	defer d.treeMu.Unlock()
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	if text != "" {
		n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
}

// Remove detaches n from its parent. Runtime state of the detached subtree is
// dropped.
func (d *Document) Remove(n *html.Node) {
	d.treeMu.Lock()
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
	d.treeMu.Unlock()

	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	Walk(n, func(x *html.Node) bool {
		delete(d.state, x)
		if d.active == x {
			d.active = nil
		}
		return true
	})
}

// -- Page context primitives --

// ScrollHistory bounds how many scrolled elements a document remembers.
const ScrollHistory = 16

// ScrollIntoViewIfNeeded records that n was scrolled into view. There is no
// viewport, so the call only has observable effect through ScrolledElements.
// Repeated scrolls of the same element are recorded once.
func (d *Document) ScrollIntoViewIfNeeded(n *html.Node) {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	if k := len(d.scrolled); k > 0 && d.scrolled[k-1] == n {
		return
	}
	if len(d.scrolled) == ScrollHistory {
		d.scrolled = append(d.scrolled[:0], d.scrolled[1:]...)
	}
	d.scrolled = append(d.scrolled, n)
}

// ScrolledElements returns the most recently scrolled elements, oldest first.
func (d *Document) ScrolledElements() []*html.Node {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	return append([]*html.Node(nil), d.scrolled...)
}

// ActiveElement returns the focused element, or nil.
func (d *Document) ActiveElement() *html.Node {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	return d.active
}

// Focus moves focus to n, blurring the previously focused element.
func (d *Document) Focus(n *html.Node) error {
	d.stateMu.Lock()
	prev := d.active
	d.active = n
	d.stateMu.Unlock()

	if prev == n {
		return nil
	}
	if prev != nil {
		if _, err := d.Dispatch(prev, &Event{Type: "blur"}); err != nil {
			return err
		}
	}
	_, err := d.Dispatch(n, &Event{Type: "focus"})
	return err
}

// Blur removes focus from n if it is the active element.
func (d *Document) Blur(n *html.Node) error {
	d.stateMu.Lock()
	if d.active == n {
		d.active = nil
	}
	d.stateMu.Unlock()
	_, err := d.Dispatch(n, &Event{Type: "blur"})
	return err
}
