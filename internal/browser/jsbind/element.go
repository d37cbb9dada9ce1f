// internal/browser/jsbind/element.go
package jsbind

import (
	"bytes"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/dop251/goja"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/scalpel-locator/internal/browser/dom"
)

// install defines the element surface on e.Object.
func (e *Element) install() {
	b, n, obj := e.bridge, e.Node, e.Object
	str := func(s string) goja.Value { return b.vm.ToValue(s) }

	b.accessor(obj, "nodeType", func() goja.Value { return b.vm.ToValue(int(nodeType(n))) }, nil)
	b.accessor(obj, "nodeName", func() goja.Value { return str(strings.ToUpper(n.Data)) }, nil)
	b.accessor(obj, "tagName", func() goja.Value {
		if !dom.IsElement(n) {
			return goja.Undefined()
		}
		return str(strings.ToUpper(n.Data))
	}, nil)
	b.accessor(obj, "id", func() goja.Value { return str(e.attr("id")) },
		func(v goja.Value) { b.doc.SetAttribute(n, "id", v.String()) })
	b.accessor(obj, "className", func() goja.Value { return str(e.attr("class")) },
		func(v goja.Value) { b.doc.SetAttribute(n, "class", v.String()) })

	// -- Content --

	b.accessor(obj, "textContent", func() goja.Value {
		var text string
		b.doc.View(func(*html.Node) { text = dom.TextContent(n) })
		return str(text)
	}, func(v goja.Value) { b.doc.SetTextContent(n, v.String()) })
	b.accessor(obj, "innerText", func() goja.Value {
		var text string
		b.doc.View(func(*html.Node) { text = dom.NormalizeWhitespace(dom.TextContent(n)) })
		return str(text)
	}, func(v goja.Value) { b.doc.SetTextContent(n, v.String()) })
	b.accessor(obj, "innerHTML", func() goja.Value { return str(e.render(false)) },
		func(v goja.Value) {
			if err := b.doc.SetInnerHTML(n, v.String()); err != nil {
				b.throw("failed to set innerHTML: %v", err)
			}
		})
	b.accessor(obj, "outerHTML", func() goja.Value { return str(e.render(true)) }, nil)

	// -- Form state --

	b.accessor(obj, "value", func() goja.Value { return str(b.doc.Value(n)) },
		func(v goja.Value) { b.doc.SetValue(n, v.String()) })
	b.accessor(obj, "checked", func() goja.Value { return b.vm.ToValue(b.doc.Checked(n)) },
		func(v goja.Value) { b.doc.SetChecked(n, v.ToBoolean()) })
	b.accessor(obj, "disabled", func() goja.Value {
		var disabled bool
		b.doc.View(func(*html.Node) { disabled = dom.IsDisabled(n) })
		return b.vm.ToValue(disabled)
	}, func(v goja.Value) {
		if v.ToBoolean() {
			b.doc.SetAttribute(n, "disabled", "")
		} else {
			b.doc.RemoveAttribute(n, "disabled")
		}
	})
	b.accessor(obj, "isConnected", func() goja.Value { return b.vm.ToValue(b.doc.Contains(n)) }, nil)

	// -- Tree --

	b.accessor(obj, "parentElement", func() goja.Value {
		var parent *html.Node
		b.doc.View(func(*html.Node) {
			if dom.IsElement(n.Parent) {
				parent = n.Parent
			}
		})
		return b.WrapNode(parent)
	}, nil)
	b.accessor(obj, "children", func() goja.Value {
		var children []*html.Node
		b.doc.View(func(*html.Node) { children = dom.Children(n) })
		return b.WrapNodeList(children)
	}, nil)

	// -- Attributes --

	_ = obj.Set("getAttribute", func(call goja.FunctionCall) goja.Value {
		var (
			v  string
			ok bool
		)
		b.doc.View(func(*html.Node) { v, ok = dom.Attr(n, call.Argument(0).String()) })
		if !ok {
			return goja.Null()
		}
		return str(v)
	})
	_ = obj.Set("setAttribute", func(call goja.FunctionCall) goja.Value {
		b.doc.SetAttribute(n, call.Argument(0).String(), call.Argument(1).String())
		return goja.Undefined()
	})
	_ = obj.Set("removeAttribute", func(call goja.FunctionCall) goja.Value {
		b.doc.RemoveAttribute(n, call.Argument(0).String())
		return goja.Undefined()
	})
	_ = obj.Set("hasAttribute", func(call goja.FunctionCall) goja.Value {
		var ok bool
		b.doc.View(func(*html.Node) { ok = dom.HasAttr(n, call.Argument(0).String()) })
		return b.vm.ToValue(ok)
	})

	// -- Queries --

	_ = obj.Set("querySelector", func(call goja.FunctionCall) goja.Value {
		nodes := b.querySelectorAll(n, call.Argument(0).String(), true)
		if len(nodes) == 0 {
			return goja.Null()
		}
		return b.WrapNode(nodes[0])
	})
	_ = obj.Set("querySelectorAll", func(call goja.FunctionCall) goja.Value {
		return b.WrapNodeList(b.querySelectorAll(n, call.Argument(0).String(), false))
	})
	_ = obj.Set("matches", func(call goja.FunctionCall) goja.Value {
		sel := call.Argument(0).String()
		group, err := cascadia.ParseGroup(sel)
		if err != nil {
			b.throw("'%s' is not a valid selector: %v", sel, err)
		}
		var ok bool
		b.doc.View(func(*html.Node) { ok = group.Match(n) })
		return b.vm.ToValue(ok)
	})
	_ = obj.Set("closest", func(call goja.FunctionCall) goja.Value {
		sel := call.Argument(0).String()
		group, err := cascadia.ParseGroup(sel)
		if err != nil {
			b.throw("'%s' is not a valid selector: %v", sel, err)
		}
		var found *html.Node
		b.doc.View(func(*html.Node) {
			for c := n; c != nil; c = c.Parent {
				if dom.IsElement(c) && group.Match(c) {
					found = c
					return
				}
			}
		})
		return b.WrapNode(found)
	})

	// -- Interaction --

	_ = obj.Set("click", func(goja.FunctionCall) goja.Value {
		e.dispatch(dom.NewEvent("click"))
		return goja.Undefined()
	})
	_ = obj.Set("focus", func(goja.FunctionCall) goja.Value {
		if err := b.doc.Focus(n); err != nil {
			b.throw("%v", err)
		}
		return goja.Undefined()
	})
	_ = obj.Set("blur", func(goja.FunctionCall) goja.Value {
		if err := b.doc.Blur(n); err != nil {
			b.throw("%v", err)
		}
		return goja.Undefined()
	})
	_ = obj.Set("remove", func(goja.FunctionCall) goja.Value {
		b.doc.Remove(n)
		return goja.Undefined()
	})
	// dispatchEvent accepts an event type string or an object with a type.
	_ = obj.Set("dispatchEvent", func(call goja.FunctionCall) goja.Value {
		arg := call.Argument(0)
		typ := arg.String()
		if o, ok := arg.(*goja.Object); ok {
			typ = ""
			if t := o.Get("type"); t != nil {
				typ = t.String()
			}
		}
		if typ == "" || typ == "undefined" {
			b.throw("dispatchEvent requires an event type")
		}
		return b.vm.ToValue(e.dispatch(dom.NewEvent(typ)))
	})
}

func (e *Element) dispatch(ev *dom.Event) bool {
	proceed, err := e.bridge.doc.Dispatch(e.Node, ev)
	if err != nil {
		e.bridge.throw("%v", err)
	}
	return proceed
}

func (e *Element) attr(name string) string {
	var v string
	e.bridge.doc.View(func(*html.Node) { v = dom.AttrOr(e.Node, name) })
	return v
}

// render serializes the node, or only its children when outer is false.
func (e *Element) render(outer bool) string {
	var buf bytes.Buffer
	e.bridge.doc.View(func(*html.Node) {
		if outer {
			_ = html.Render(&buf, e.Node)
			return
		}
		for c := e.Node.FirstChild; c != nil; c = c.NextSibling {
			_ = html.Render(&buf, c)
		}
	})
	return buf.String()
}

// nodeType maps html node kinds to DOM nodeType numbers.
func nodeType(n *html.Node) int {
	switch n.Type {
	case html.ElementNode:
		return 1
	case html.TextNode:
		return 3
	case html.CommentNode:
		return 8
	case html.DocumentNode:
		return 9
	case html.DoctypeNode:
		return 10
	}
	return 0
}
