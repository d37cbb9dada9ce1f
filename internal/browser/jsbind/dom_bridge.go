// internal/browser/jsbind/dom_bridge.go
package jsbind

import (
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/dop251/goja"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/scalpel-locator/internal/browser/dom"
)

// wrapperKey is the hidden property holding the Go side of a wrapped node.
const wrapperKey = "__go_node_wrapper__"

// DOMBridge exposes a dom.Document to a goja runtime. It is not safe for
// concurrent use; callers serialize access to the runtime.
type DOMBridge struct {
	vm     *goja.Runtime
	doc    *dom.Document
	logger *zap.Logger

	// identity keeps el === el true across calls.
	identity map[*html.Node]*goja.Object
	document *goja.Object
}

// NewDOMBridge installs window, document and console globals on vm.
func NewDOMBridge(vm *goja.Runtime, doc *dom.Document, logger *zap.Logger) *DOMBridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &DOMBridge{
		vm:       vm,
		doc:      doc,
		logger:   logger.Named("dom_bridge"),
		identity: make(map[*html.Node]*goja.Object),
	}
	b.document = b.newDocument()
	b.initializeRuntime()
	return b
}

func (b *DOMBridge) initializeRuntime() {
	global := b.vm.GlobalObject()
	for name, v := range map[string]goja.Value{"window": global, "self": global, "document": b.document} {
		if err := global.Set(name, v); err != nil {
			b.logger.Error("Failed to set global", zap.String("name", name), zap.Error(err))
		}
	}
	b.initConsole()
}

// VM returns the runtime the bridge is installed on.
func (b *DOMBridge) VM() *goja.Runtime { return b.vm }

// -- Wrapping --

// Element is the Go side of a wrapped DOM node.
type Element struct {
	bridge *DOMBridge
	Node   *html.Node
	Object *goja.Object
}

// WrapNode returns the JS object for node, creating it on first use.
func (b *DOMBridge) WrapNode(node *html.Node) goja.Value {
	if node == nil {
		return goja.Null()
	}
	if obj, ok := b.identity[node]; ok {
		return obj
	}
	e := &Element{bridge: b, Node: node, Object: b.vm.NewObject()}
	b.identity[node] = e.Object
	if err := e.Object.DefineDataProperty(wrapperKey, b.vm.ToValue(e), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_FALSE); err != nil {
		b.logger.Error("Failed to attach node wrapper", zap.Error(err))
	}
	e.install()
	return e.Object
}

// WrapNodeList converts nodes into a JS array.
func (b *DOMBridge) WrapNodeList(nodes []*html.Node) goja.Value {
	values := make([]any, len(nodes))
	for i, n := range nodes {
		values[i] = b.WrapNode(n)
	}
	return b.vm.NewArray(values...)
}

// Unwrap returns the node behind a wrapped JS value.
func (b *DOMBridge) Unwrap(v goja.Value) (*html.Node, bool) {
	if v == nil || goja.IsNull(v) || goja.IsUndefined(v) {
		return nil, false
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil, false
	}
	w := obj.Get(wrapperKey)
	if w == nil || goja.IsUndefined(w) {
		return nil, false
	}
	e, ok := w.Export().(*Element)
	if !ok {
		return nil, false
	}
	return e.Node, true
}

// ToValue converts a Go value for the runtime. Nodes and node slices are
// wrapped; everything else goes through goja.
func (b *DOMBridge) ToValue(v any) goja.Value {
	switch x := v.(type) {
	case *html.Node:
		return b.WrapNode(x)
	case []*html.Node:
		return b.WrapNodeList(x)
	case goja.Value:
		return x
	}
	return b.vm.ToValue(v)
}

// Export converts a JS value back to Go. Wrapped nodes come back as
// *html.Node, arrays as []any and plain objects as map[string]any.
func (b *DOMBridge) Export(v goja.Value) any {
	return b.export(v, 0)
}

const maxExportDepth = 32

func (b *DOMBridge) export(v goja.Value, depth int) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	if n, ok := b.Unwrap(v); ok {
		return n
	}
	obj, ok := v.(*goja.Object)
	if !ok || depth >= maxExportDepth {
		return v.Export()
	}
	if _, isFn := goja.AssertFunction(v); isFn {
		return nil
	}
	switch obj.ClassName() {
	case "Array":
		length := int(obj.Get("length").ToInteger())
		out := make([]any, length)
		for i := 0; i < length; i++ {
			out[i] = b.export(obj.Get(fmt.Sprint(i)), depth+1)
		}
		return out
	case "Object":
		out := make(map[string]any)
		for _, k := range obj.Keys() {
			out[k] = b.export(obj.Get(k), depth+1)
		}
		return out
	}
	return v.Export()
}

// throw raises err as a JS exception.
func (b *DOMBridge) throw(format string, args ...any) {
	panic(b.vm.NewGoError(fmt.Errorf(format, args...)))
}

// -- Document --

func (b *DOMBridge) newDocument() *goja.Object {
	d := b.vm.NewObject()
	_ = d.Set("querySelector", func(call goja.FunctionCall) goja.Value {
		nodes := b.querySelectorAll(b.doc.Root(), call.Argument(0).String(), true)
		if len(nodes) == 0 {
			return goja.Null()
		}
		return b.WrapNode(nodes[0])
	})
	_ = d.Set("querySelectorAll", func(call goja.FunctionCall) goja.Value {
		return b.WrapNodeList(b.querySelectorAll(b.doc.Root(), call.Argument(0).String(), false))
	})
	_ = d.Set("getElementById", func(call goja.FunctionCall) goja.Value {
		return b.WrapNode(b.doc.ElementByID(call.Argument(0).String()))
	})
	b.accessor(d, "body", func() goja.Value { return b.WrapNode(b.doc.Body()) }, nil)
	b.accessor(d, "documentElement", func() goja.Value {
		var root *html.Node
		b.doc.View(func(r *html.Node) {
			root = dom.FindFirst(r, func(n *html.Node) bool { return dom.TagName(n) == "html" })
		})
		return b.WrapNode(root)
	}, nil)
	b.accessor(d, "activeElement", func() goja.Value {
		if n := b.doc.ActiveElement(); n != nil {
			return b.WrapNode(n)
		}
		return b.WrapNode(b.doc.Body())
	}, nil)
	b.accessor(d, "title", func() goja.Value {
		var title string
		b.doc.View(func(r *html.Node) {
			if t := dom.FindFirst(r, func(n *html.Node) bool { return dom.TagName(n) == "title" }); t != nil {
				title = dom.NormalizeWhitespace(dom.TextContent(t))
			}
		})
		return b.vm.ToValue(title)
	}, nil)
	return d
}

// querySelectorAll runs a CSS selector below scope, scope excluded.
func (b *DOMBridge) querySelectorAll(scope *html.Node, selector string, first bool) []*html.Node {
	group, err := cascadia.ParseGroup(selector)
	if err != nil {
		b.throw("'%s' is not a valid selector: %v", selector, err)
	}
	var out []*html.Node
	b.doc.View(func(*html.Node) {
		if first {
			if n := cascadia.Query(scope, group); n != nil {
				out = []*html.Node{n}
			}
			return
		}
		out = cascadia.QueryAll(scope, group)
	})
	return out
}

// accessor defines a non-enumerable getter and optional setter.
func (b *DOMBridge) accessor(obj *goja.Object, name string, get func() goja.Value, set func(goja.Value)) {
	getter := b.vm.ToValue(func(goja.FunctionCall) goja.Value { return get() })
	var setter goja.Value
	if set != nil {
		setter = b.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			set(call.Argument(0))
			return goja.Undefined()
		})
	}
	if err := obj.DefineAccessorProperty(name, getter, setter, goja.FLAG_TRUE, goja.FLAG_FALSE); err != nil {
		b.logger.Error("Failed to define accessor", zap.String("property", name), zap.Error(err))
	}
}

// -- Console --

func (b *DOMBridge) initConsole() {
	console := b.vm.NewObject()
	logFunc := func(level zapcore.Level) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			args := make([]string, len(call.Arguments))
			for i, arg := range call.Arguments {
				args[i] = b.stringify(arg)
			}
			b.logger.Log(level, "[JS Console]", zap.String("message", strings.Join(args, " ")))
			return goja.Undefined()
		}
	}
	_ = console.Set("log", logFunc(zap.InfoLevel))
	_ = console.Set("info", logFunc(zap.InfoLevel))
	_ = console.Set("warn", logFunc(zap.WarnLevel))
	_ = console.Set("error", logFunc(zap.ErrorLevel))
	_ = console.Set("debug", logFunc(zap.DebugLevel))
	_ = b.vm.GlobalObject().Set("console", console)
}

// stringify renders plain objects as JSON and everything else with String.
func (b *DOMBridge) stringify(v goja.Value) string {
	if n, ok := b.Unwrap(v); ok {
		return dom.Describe(n)
	}
	if obj, ok := v.(*goja.Object); ok && obj.ClassName() == "Object" {
		if json := b.vm.Get("JSON"); json != nil {
			if stringify, ok := goja.AssertFunction(json.ToObject(b.vm).Get("stringify")); ok {
				if out, err := stringify(goja.Undefined(), v); err == nil {
					return out.String()
				}
			}
		}
	}
	return v.String()
}
