package dom_test

import (
	"errors"
	"testing"

	"github.com/antchfx/htmlquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/scalpel-locator/internal/browser/dom"
)

const formHTML = `<html><body>
<form id="f">
  <label for="email">Email</label><input id="email" value="a@b.c">
  <label><input type="checkbox" id="agree"> <span id="agree-text">I agree</span></label>
  <input type="checkbox" id="news" checked>
  <input type="radio" name="size" id="s" value="s" checked>
  <input type="radio" name="size" id="m" value="m">
  <textarea id="bio">hello</textarea>
  <select id="color"><option>Red</option><option value="g">Green</option></select>
  <select id="tags" multiple><option value="a" selected>A</option><option value="b">B</option><option value="c" selected>C</option></select>
  <fieldset disabled><legend><button id="in-legend">L</button></legend><button id="fs-btn">x</button></fieldset>
</form>
<input type="radio" name="size" id="outside">
<div id="outer"><div id="inner"><button id="btn">Go</button></div></div>
</body></html>`

func newDoc(t *testing.T, markup string) *dom.Document {
	t.Helper()
	doc, err := dom.ParseString(markup, zaptest.NewLogger(t))
	require.NoError(t, err)
	return doc
}

func byID(t *testing.T, doc *dom.Document, id string) *html.Node {
	t.Helper()
	n := doc.ElementByID(id)
	require.NotNil(t, n, "missing #%s", id)
	return n
}

func TestFormState(t *testing.T) {
	doc := newDoc(t, formHTML)

	t.Run("initial values come from markup", func(t *testing.T) {
		assert.Equal(t, "a@b.c", doc.Value(byID(t, doc, "email")))
		assert.Equal(t, "hello", doc.Value(byID(t, doc, "bio")))
		assert.Equal(t, "Red", doc.Value(byID(t, doc, "color")), "first option is selected by default")
		assert.True(t, doc.Checked(byID(t, doc, "news")))
		assert.False(t, doc.Checked(byID(t, doc, "agree")))
		assert.Equal(t, "on", doc.Value(byID(t, doc, "agree")))
	})

	t.Run("value overrides markup", func(t *testing.T) {
		email := byID(t, doc, "email")
		doc.SetValue(email, "x@y.z")
		assert.Equal(t, "x@y.z", doc.Value(email))
		assert.Equal(t, "a@b.c", dom.AttrOr(email, "value"), "attribute is untouched")
	})

	t.Run("select value", func(t *testing.T) {
		sel := byID(t, doc, "color")
		doc.SetValue(sel, "g")
		assert.Equal(t, "g", doc.Value(sel))
		opts := dom.Options(sel)
		assert.False(t, doc.Selected(opts[0]))
		assert.True(t, doc.Selected(opts[1]))
	})

	t.Run("multi select keeps every selected option", func(t *testing.T) {
		sel := byID(t, doc, "tags")
		got := doc.SelectedOptions(sel)
		require.Len(t, got, 2)
		assert.Equal(t, "a", dom.OptionValue(got[0]))
		assert.Equal(t, "c", dom.OptionValue(got[1]))
	})

	t.Run("radio groups are scoped to the form", func(t *testing.T) {
		s, m, outside := byID(t, doc, "s"), byID(t, doc, "m"), byID(t, doc, "outside")
		doc.SetChecked(outside, true)
		doc.SetChecked(m, true)
		assert.False(t, doc.Checked(s))
		assert.True(t, doc.Checked(m))
		assert.True(t, doc.Checked(outside))
	})

	t.Run("fieldset disables descendants except the first legend", func(t *testing.T) {
		assert.True(t, dom.IsDisabled(byID(t, doc, "fs-btn")))
		assert.False(t, dom.IsDisabled(byID(t, doc, "in-legend")))
		assert.False(t, dom.IsDisabled(byID(t, doc, "btn")))
	})
}

func TestDispatch(t *testing.T) {
	t.Run("bubbles to ancestors in order", func(t *testing.T) {
		doc := newDoc(t, formHTML)
		var seen []string
		for _, id := range []string{"btn", "inner", "outer"} {
			node := byID(t, doc, id)
			doc.AddEventListener(node, "click", func(ev *dom.Event) error {
				assert.Equal(t, "btn", dom.AttrOr(ev.Target, "id"), "target is forced to the dispatch node")
				seen = append(seen, dom.AttrOr(ev.CurrentTarget, "id"))
				return nil
			})
		}
		ok, err := doc.Dispatch(byID(t, doc, "btn"), dom.NewEvent("click"))
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []string{"btn", "inner", "outer"}, seen)
	})

	t.Run("stopPropagation halts bubbling", func(t *testing.T) {
		doc := newDoc(t, formHTML)
		var outerHit bool
		doc.AddEventListener(byID(t, doc, "inner"), "click", func(ev *dom.Event) error {
			ev.StopPropagation()
			return nil
		})
		doc.AddEventListener(byID(t, doc, "outer"), "click", func(ev *dom.Event) error {
			outerHit = true
			return nil
		})
		_, err := doc.Dispatch(byID(t, doc, "btn"), dom.NewEvent("click"))
		require.NoError(t, err)
		assert.False(t, outerHit)
	})

	t.Run("non-bubbling events stay on the target", func(t *testing.T) {
		doc := newDoc(t, formHTML)
		var outerHit bool
		doc.AddEventListener(byID(t, doc, "outer"), "focus", func(ev *dom.Event) error {
			outerHit = true
			return nil
		})
		require.NoError(t, doc.Focus(byID(t, doc, "btn")))
		assert.False(t, outerHit)
		assert.Equal(t, byID(t, doc, "btn"), doc.ActiveElement())
	})

	t.Run("listener errors and panics propagate", func(t *testing.T) {
		doc := newDoc(t, formHTML)
		boom := errors.New("boom")
		id := doc.AddEventListener(byID(t, doc, "btn"), "click", func(*dom.Event) error { return boom })
		_, err := doc.Dispatch(byID(t, doc, "btn"), dom.NewEvent("click"))
		assert.ErrorIs(t, err, boom)

		doc.RemoveEventListener(byID(t, doc, "btn"), "click", id)
		doc.AddEventListener(byID(t, doc, "btn"), "click", func(*dom.Event) error { panic("kaput") })
		_, err = doc.Dispatch(byID(t, doc, "btn"), dom.NewEvent("click"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "kaput")
	})

	t.Run("checkbox click toggles and fires input then change", func(t *testing.T) {
		doc := newDoc(t, formHTML)
		box := byID(t, doc, "agree")
		var order []string
		var checkedDuringClick bool
		doc.AddEventListener(box, "click", func(ev *dom.Event) error {
			checkedDuringClick = doc.Checked(box)
			order = append(order, "click")
			return nil
		})
		for _, typ := range []string{"input", "change"} {
			typ := typ
			doc.AddEventListener(box, typ, func(*dom.Event) error {
				order = append(order, typ)
				return nil
			})
		}
		_, err := doc.Dispatch(box, dom.NewEvent("click"))
		require.NoError(t, err)
		assert.True(t, doc.Checked(box))
		assert.True(t, checkedDuringClick)
		assert.Equal(t, []string{"click", "input", "change"}, order)
	})

	t.Run("preventDefault rolls back the toggle", func(t *testing.T) {
		doc := newDoc(t, formHTML)
		box := byID(t, doc, "news")
		doc.AddEventListener(box, "click", func(ev *dom.Event) error {
			ev.PreventDefault()
			return nil
		})
		ok, err := doc.Dispatch(box, dom.NewEvent("click"))
		require.NoError(t, err)
		assert.False(t, ok)
		assert.True(t, doc.Checked(box))
	})

	t.Run("label click activates its control", func(t *testing.T) {
		doc := newDoc(t, formHTML)
		_, err := doc.Dispatch(byID(t, doc, "agree-text"), dom.NewEvent("click"))
		require.NoError(t, err)
		assert.True(t, doc.Checked(byID(t, doc, "agree")))
	})
}

func TestMutationsAndMembership(t *testing.T) {
	doc := newDoc(t, formHTML)
	inner := byID(t, doc, "inner")
	btn := byID(t, doc, "btn")
	doc.SetProperty(btn, "__reactProps$abc", map[string]any{"id": 1})

	assert.True(t, doc.Contains(btn))
	doc.Remove(inner)
	assert.False(t, doc.Contains(btn))
	_, ok := doc.Property(btn, "__reactProps$abc")
	assert.False(t, ok, "state of detached nodes is dropped")

	outer := byID(t, doc, "outer")
	added, err := doc.AppendHTML(outer, `<p class="late">late</p>`)
	require.NoError(t, err)
	require.Len(t, added, 1)
	assert.NotNil(t, htmlquery.FindOne(doc.Root(), "//p[@class='late']"))

	doc.SetAttribute(outer, "data-state", "open")
	assert.Equal(t, "open", dom.AttrOr(outer, "data-state"))
	doc.RemoveAttribute(outer, "data-state")
	assert.False(t, dom.HasAttr(outer, "data-state"))

	require.NoError(t, doc.SetInnerHTML(outer, "<em>x</em>"))
	assert.Equal(t, "x", dom.TextContent(outer))

	doc.ScrollIntoViewIfNeeded(outer)
	assert.Equal(t, []*html.Node{outer}, doc.ScrolledElements())
}

func TestScrollHistoryIsBounded(t *testing.T) {
	doc := newDoc(t, `<div id="a"></div><div id="b"></div>`)
	a, b := byID(t, doc, "a"), byID(t, doc, "b")

	doc.ScrollIntoViewIfNeeded(a)
	doc.ScrollIntoViewIfNeeded(a)
	assert.Equal(t, []*html.Node{a}, doc.ScrolledElements())

	for i := 0; i < 10*dom.ScrollHistory; i++ {
		if i%2 == 0 {
			doc.ScrollIntoViewIfNeeded(b)
		} else {
			doc.ScrollIntoViewIfNeeded(a)
		}
	}
	got := doc.ScrolledElements()
	require.Len(t, got, dom.ScrollHistory)
	assert.Same(t, a, got[len(got)-1])
	assert.Same(t, b, got[len(got)-2])
}

func TestPropertyKeysAreSorted(t *testing.T) {
	doc := newDoc(t, `<div id="x"></div>`)
	x := byID(t, doc, "x")
	doc.SetProperty(x, "b", 1)
	doc.SetProperty(x, "a", 2)
	assert.Equal(t, []string{"a", "b"}, doc.PropertyKeys(x))
}
