// internal/browser/jsbind/dom_bridge_test.go
package jsbind_test

import (
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/scalpel-locator/internal/browser/dom"
	"github.com/xkilldash9x/scalpel-locator/internal/browser/jsbind"
)

const page = `<html><head><title> Shop </title></head><body>
<ul id="list"><li class="item">One</li><li class="item">Two</li></ul>
<input id="name" value="ada">
<input type="checkbox" id="agree">
<button id="go" disabled>Go</button>
</body></html>`

func setup(t *testing.T) (*goja.Runtime, *jsbind.DOMBridge, *dom.Document) {
	t.Helper()
	doc, err := dom.ParseString(page, zaptest.NewLogger(t))
	require.NoError(t, err)
	vm := goja.New()
	return vm, jsbind.NewDOMBridge(vm, doc, zaptest.NewLogger(t)), doc
}

func run(t *testing.T, vm *goja.Runtime, script string) goja.Value {
	t.Helper()
	v, err := vm.RunString(script)
	require.NoError(t, err, script)
	return v
}

func TestDocumentGlobals(t *testing.T) {
	vm, _, _ := setup(t)

	tests := []struct {
		script string
		want   any
	}{
		{`document.title`, "Shop"},
		{`document.querySelectorAll('li.item').length`, int64(2)},
		{`document.querySelector('li').textContent`, "One"},
		{`document.querySelector('p') === null`, true},
		{`document.getElementById('name').value`, "ada"},
		{`document.body.tagName`, "BODY"},
		{`window.document === document`, true},
		{`document.querySelector('li') === document.querySelector('li')`, true},
	}
	for _, tt := range tests {
		t.Run(tt.script, func(t *testing.T) {
			assert.Equal(t, tt.want, run(t, vm, tt.script).Export())
		})
	}
}

func TestElementSurface(t *testing.T) {
	vm, _, doc := setup(t)

	t.Run("tree and queries", func(t *testing.T) {
		assert.Equal(t, int64(2), run(t, vm, `document.getElementById('list').children.length`).Export())
		assert.Equal(t, "UL", run(t, vm, `document.querySelector('li').parentElement.tagName`).Export())
		assert.Equal(t, "list", run(t, vm, `document.querySelector('li').closest('ul').id`).Export())
		assert.Equal(t, true, run(t, vm, `document.querySelector('li').matches('.item')`).Export())
		assert.Equal(t, "Two", run(t, vm, `document.getElementById('list').querySelectorAll('li')[1].innerText`).Export())
	})

	t.Run("attributes write through to the document", func(t *testing.T) {
		run(t, vm, `document.getElementById('go').removeAttribute('disabled')`)
		assert.False(t, dom.IsDisabled(doc.ElementByID("go")))
		run(t, vm, `document.getElementById('go').setAttribute('data-x', '1')`)
		assert.Equal(t, "1", dom.AttrOr(doc.ElementByID("go"), "data-x"))
		assert.Nil(t, run(t, vm, `document.getElementById('go').getAttribute('nope')`).Export())
	})

	t.Run("form state", func(t *testing.T) {
		run(t, vm, `document.getElementById('name').value = 'grace'`)
		assert.Equal(t, "grace", doc.Value(doc.ElementByID("name")))
		run(t, vm, `document.getElementById('agree').click()`)
		assert.True(t, doc.Checked(doc.ElementByID("agree")))
	})

	t.Run("content", func(t *testing.T) {
		run(t, vm, `document.getElementById('list').innerHTML = '<li>Three</li>'`)
		assert.Equal(t, "<li>Three</li>", run(t, vm, `document.getElementById('list').innerHTML`).Export())
		assert.Equal(t, `<ul id="list"><li>Three</li></ul>`, run(t, vm, `document.getElementById('list').outerHTML`).Export())
	})

	t.Run("invalid selector throws", func(t *testing.T) {
		_, err := vm.RunString(`document.querySelector('li[[')`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not a valid selector")
	})

	t.Run("dispatchEvent reaches listeners", func(t *testing.T) {
		btn := doc.ElementByID("go")
		var got string
		doc.AddEventListener(btn, "custom", func(ev *dom.Event) error {
			got = ev.Type
			return nil
		})
		assert.Equal(t, true, run(t, vm, `document.getElementById('go').dispatchEvent({type: 'custom'})`).Export())
		assert.Equal(t, "custom", got)
	})
}

func TestExport(t *testing.T) {
	vm, bridge, doc := setup(t)

	t.Run("nodes", func(t *testing.T) {
		got := bridge.Export(run(t, vm, `document.getElementById('name')`))
		assert.Same(t, doc.ElementByID("name"), got)
	})

	t.Run("nested values", func(t *testing.T) {
		got := bridge.Export(run(t, vm, `({n: 1, list: [document.body, 'x'], f: function() {}})`))
		m, ok := got.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, int64(1), m["n"])
		assert.Nil(t, m["f"])
		list, ok := m["list"].([]any)
		require.True(t, ok)
		require.Len(t, list, 2)
		assert.Same(t, doc.Body(), list[0])
		assert.Equal(t, "x", list[1])
	})

	t.Run("round trip through ToValue", func(t *testing.T) {
		li := doc.ElementByID("list").FirstChild
		v := bridge.ToValue([]*html.Node{li})
		n, ok := bridge.Unwrap(v.ToObject(vm).Get("0"))
		require.True(t, ok)
		assert.Same(t, li, n)
		_, ok = bridge.Unwrap(vm.ToValue(3))
		assert.False(t, ok)
	})
}

func TestConsole(t *testing.T) {
	doc, err := dom.ParseString(page, zaptest.NewLogger(t))
	require.NoError(t, err)
	core, logs := observer.New(zapcore.DebugLevel)
	vm := goja.New()
	jsbind.NewDOMBridge(vm, doc, zap.New(core))

	run(t, vm, `console.log('count', 2, {k: 'v'}); console.warn('careful'); console.debug('trace')`)

	entries := logs.FilterMessage("[JS Console]").All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "[JS Console]", entries[0].Message)
	assert.Equal(t, `count 2 {"k":"v"}`, entries[0].ContextMap()["message"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "careful", entries[1].ContextMap()["message"])
	assert.Equal(t, zapcore.DebugLevel, entries[2].Level)
}
