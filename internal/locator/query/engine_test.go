package query_test

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/scalpel-locator/api/schemas"
	"github.com/xkilldash9x/scalpel-locator/internal/browser/dom"
	"github.com/xkilldash9x/scalpel-locator/internal/locator/query"
	"github.com/xkilldash9x/scalpel-locator/internal/locator/selector"
)

const fixture = `<html><head><style>.hide{display:none}</style></head><body>
<ul id="fruits"><li id="apple">Apple</li><li id="banana">Banana X</li><li id="cherry">Cherry X</li></ul>
<ul id="veg"><li id="leek">Leek X</li></ul>
<table>
  <tr id="head"><th>名称</th><th>告警ID</th><th>分组名称</th></tr>
  <tr id="r1"><td><input type="checkbox" id="unnamed"></td><td><input type="checkbox" id="named" aria-label="x"></td><td>alpha</td></tr>
</table>
<button id="b1" aria-label="A">B</button>
<button id="b2" class="hide">Hidden</button>
<div data-testid="card" id="card"><p id="greet">Hello <b id="who">world</b></p></div>
</body></html>`

func newEngine(t *testing.T, markup string) (*dom.Document, *query.Engine) {
	t.Helper()
	doc, err := dom.ParseString(markup, zaptest.NewLogger(t))
	require.NoError(t, err)
	return doc, query.NewEngine(doc, selector.NewCompiler(""), nil, zaptest.NewLogger(t))
}

func css(sel string) *schemas.QueryStrategy {
	return &schemas.QueryStrategy{Kind: schemas.KindSelector, Selector: sel}
}

func ids(nodes []*html.Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, dom.AttrOr(n, "id"))
	}
	return out
}

func resolveIDs(t *testing.T, e *query.Engine, target *query.Target) []string {
	t.Helper()
	nodes, err := e.Resolve(context.Background(), target)
	require.NoError(t, err)
	return ids(nodes)
}

func TestResolveIsIdempotent(t *testing.T) {
	_, e := newEngine(t, fixture)
	target := &query.Target{Strategy: css("li, th")}
	first, err := e.Resolve(context.Background(), target)
	require.NoError(t, err)
	second, err := e.Resolve(context.Background(), target)
	require.NoError(t, err)
	require.Len(t, first, 7)
	for i := range first {
		assert.Same(t, first[i], second[i])
	}
}

func TestScoping(t *testing.T) {
	_, e := newEngine(t, fixture)

	t.Run("empty parent never falls back to a global query", func(t *testing.T) {
		child := schemas.QueryStrategy{Kind: schemas.KindSelector, Selector: "li"}.WithParent(css("#missing"))
		assert.Empty(t, resolveIDs(t, e, &query.Target{Strategy: child}))
		assert.Empty(t, resolveIDs(t, e, &query.Target{Strategy: css("li"), Scope: &query.Target{Strategy: css("#missing")}}))
	})

	t.Run("results follow parent order then document order", func(t *testing.T) {
		child := schemas.QueryStrategy{Kind: schemas.KindSelector, Selector: "li"}.WithParent(css("#veg, #fruits"))
		assert.Equal(t, []string{"apple", "banana", "cherry", "leek"}, resolveIDs(t, e, &query.Target{Strategy: child}))
	})

	t.Run("a filtered parent locator scopes by its filtered result", func(t *testing.T) {
		scope := &query.Target{Strategy: css("ul"), Filters: []schemas.FilterSpec{schemas.Nth(1)}}
		assert.Equal(t, []string{"leek"}, resolveIDs(t, e, &query.Target{Strategy: css("li"), Scope: scope}))
	})

	t.Run("xpath children are relative to each parent", func(t *testing.T) {
		child := schemas.QueryStrategy{Kind: schemas.KindSelector, Selector: "//li"}.WithParent(css("#veg"))
		assert.Equal(t, []string{"leek"}, resolveIDs(t, e, &query.Target{Strategy: child}))
	})

	t.Run("elements reached through nested parents are reported once", func(t *testing.T) {
		child := schemas.QueryStrategy{Kind: schemas.KindSelector, Selector: "b"}.WithParent(css("div, p"))
		assert.Equal(t, []string{"who"}, resolveIDs(t, e, &query.Target{Strategy: child}))
	})
}

func TestFilterCompositionOrder(t *testing.T) {
	_, e := newEngine(t, fixture)
	hasX := schemas.HasText(schemas.Text("X"), false)

	tests := []struct {
		name    string
		filters []schemas.FilterSpec
		want    []string
	}{
		{"text then position", []schemas.FilterSpec{hasX, schemas.Nth(0)}, []string{"banana"}},
		{"position then text", []schemas.FilterSpec{schemas.Nth(0), hasX}, []string{}},
		{"last then text", []schemas.FilterSpec{schemas.LastPosition(), hasX}, []string{"leek"}},
		{"negative index", []schemas.FilterSpec{schemas.Nth(-2)}, []string{"cherry"}},
		{"out of range", []schemas.FilterSpec{schemas.Nth(10)}, []string{}},
		{"has not text", []schemas.FilterSpec{schemas.HasNotText(schemas.Text("X"), false)}, []string{"apple"}},
		{"exact text", []schemas.FilterSpec{schemas.HasText(schemas.Text("Banana"), true)}, []string{}},
		{"regexp text", []schemas.FilterSpec{schemas.HasText(schemas.Regexp(regexp.MustCompile(`^(Apple|Leek)`)), false)}, []string{"apple", "leek"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveIDs(t, e, &query.Target{Strategy: css("li"), Filters: tt.filters}))
		})
	}
}

func TestRoleQueries(t *testing.T) {
	_, e := newEngine(t, fixture)
	exact := func(s string) *schemas.TextPattern { p := schemas.Text(s); return &p }

	t.Run("row accessible name", func(t *testing.T) {
		row := &schemas.QueryStrategy{Kind: schemas.KindRole, Role: "row", RoleOpts: schemas.RoleOptions{Name: exact("名称 告警ID 分组名称"), Exact: true}}
		assert.Equal(t, []string{"head"}, resolveIDs(t, e, &query.Target{Strategy: row}))
	})

	t.Run("empty label under a named row", func(t *testing.T) {
		row := &schemas.QueryStrategy{Kind: schemas.KindRole, Role: "row", RoleOpts: schemas.RoleOptions{Name: exact("alpha"), Exact: false}}
		label := schemas.QueryStrategy{Kind: schemas.KindLabel, Pattern: schemas.Text("")}.WithParent(row)
		assert.Equal(t, []string{"unnamed"}, resolveIDs(t, e, &query.Target{Strategy: label}))
	})

	t.Run("aria-label wins over text", func(t *testing.T) {
		byName := func(name string) *query.Target {
			return &query.Target{Strategy: &schemas.QueryStrategy{Kind: schemas.KindRole, Role: "button", RoleOpts: schemas.RoleOptions{Name: exact(name), Exact: true}}}
		}
		assert.Equal(t, []string{"b1"}, resolveIDs(t, e, byName("A")))
		assert.Empty(t, resolveIDs(t, e, byName("B")))
	})

	t.Run("hidden elements need includeHidden", func(t *testing.T) {
		buttons := &schemas.QueryStrategy{Kind: schemas.KindRole, Role: "button"}
		assert.Equal(t, []string{"b1"}, resolveIDs(t, e, &query.Target{Strategy: buttons}))
		all := &schemas.QueryStrategy{Kind: schemas.KindRole, Role: "button", RoleOpts: schemas.RoleOptions{IncludeHidden: true}}
		assert.Equal(t, []string{"b1", "b2"}, resolveIDs(t, e, &query.Target{Strategy: all}))
	})
}

func TestOtherStrategies(t *testing.T) {
	_, e := newEngine(t, fixture)
	tests := []struct {
		name     string
		strategy *schemas.QueryStrategy
		want     []string
	}{
		{"test id", &schemas.QueryStrategy{Kind: schemas.KindTestID, Pattern: schemas.Text("card")}, []string{"card"}},
		{"text innermost", &schemas.QueryStrategy{Kind: schemas.KindText, Pattern: schemas.Text("Hello world"), Exact: true}, []string{"greet"}},
		{"text regexp innermost", &schemas.QueryStrategy{Kind: schemas.KindText, Pattern: schemas.Regexp(regexp.MustCompile(`^wor`))}, []string{"who"}},
		{"label via aria-label", &schemas.QueryStrategy{Kind: schemas.KindLabel, Pattern: schemas.Text("x"), Exact: true}, []string{"named"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveIDs(t, e, &query.Target{Strategy: tt.strategy}))
		})
	}
}

func TestPinnedTargetsAreRevalidated(t *testing.T) {
	doc, e := newEngine(t, fixture)
	cherry := doc.ElementByID("cherry")
	pinned := &query.Target{Pinned: cherry}
	assert.Equal(t, []string{"cherry"}, resolveIDs(t, e, pinned))

	doc.Remove(cherry)
	assert.Empty(t, resolveIDs(t, e, pinned))
}

func TestResolveErrors(t *testing.T) {
	_, e := newEngine(t, fixture)
	_, err := e.Resolve(context.Background(), &query.Target{Strategy: css("li[[")})
	assert.ErrorIs(t, err, schemas.ErrInvalidSelector)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Resolve(ctx, &query.Target{Strategy: css("li")})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDescribe(t *testing.T) {
	scope := &query.Target{Strategy: css("ul"), Filters: []schemas.FilterSpec{schemas.Nth(1)}}
	target := &query.Target{Strategy: css("li"), Scope: scope, Filters: []schemas.FilterSpec{schemas.LastPosition()}}
	assert.Equal(t, "locator('ul') >> nth=1 >> locator('li') >> last", query.Describe(target))
}
