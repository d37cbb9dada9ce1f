package aria_test

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/scalpel-locator/api/schemas"
	"github.com/xkilldash9x/scalpel-locator/internal/browser/dom"
	"github.com/xkilldash9x/scalpel-locator/internal/browser/style"
	"github.com/xkilldash9x/scalpel-locator/internal/locator/aria"
)

const namesHTML = `<html><head><style>.off{display:none}.ghost{visibility:hidden}</style></head><body>
<button id="both" aria-label="A">B</button>
<span id="lbl1">First</span><span id="lbl2">Second</span>
<input id="by-ids" aria-labelledby="lbl1 lbl2 missing">
<label for="email">Email <b>address</b></label><input id="email" placeholder="you@x">
<label>Country <select id="country"><option>France</option></select></label>
<input id="only-ph" placeholder="Search here">
<input id="only-title" title="Tip">
<input type="checkbox" id="bare">
<input type="checkbox" id="empty-label" aria-label="">
<input type="checkbox" id="x-label" aria-label="x">
<input type="submit" id="submit">
<input type="button" id="valued" value="Press">
<img id="pic" alt="Logo">
<table><tr id="row"><th>名称</th><th>告警ID</th><th>分组名称</th></tr>
<tr id="mixed"><td aria-label="Cell A">ignored</td><td>Visible<span class="off">Gone</span></td><td class="ghost">Ghost</td><td>  spaced   out </td></tr></table>
<div role="row" id="aria-row"><span role="cell">one</span><span role="cell">two</span><span>not a cell</span></div>
</body></html>`

func setup(t *testing.T, markup string) (*dom.Document, *aria.Resolver) {
	t.Helper()
	doc, err := dom.ParseString(markup, zaptest.NewLogger(t))
	require.NoError(t, err)
	return doc, aria.NewResolver(doc, style.NewEngine().Snapshot(doc.Root()))
}

func byID(t *testing.T, doc *dom.Document, id string) *html.Node {
	t.Helper()
	n := doc.ElementByID(id)
	require.NotNil(t, n, "missing #%s", id)
	return n
}

func TestAccessibleName(t *testing.T) {
	doc, r := setup(t, namesHTML)
	tests := []struct {
		id   string
		want string
	}{
		{"both", "A"},
		{"by-ids", "First Second"},
		{"email", "Email address"},
		{"country", "Country"},
		{"only-ph", "Search here"},
		{"only-title", "Tip"},
		{"bare", ""},
		{"empty-label", ""},
		{"x-label", "x"},
		{"submit", "Submit"},
		{"valued", "Press"},
		{"pic", "Logo"},
		{"row", "名称 告警ID 分组名称"},
		{"mixed", "Cell A Visible spaced out"},
		{"aria-row", "one two"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, r.AccessibleName(byID(t, doc, tt.id)))
		})
	}
}

func TestMatchesAccessibleName(t *testing.T) {
	doc, r := setup(t, namesHTML)
	both := byID(t, doc, "both")

	t.Run("aria-label wins over text", func(t *testing.T) {
		assert.True(t, r.MatchesAccessibleName(both, schemas.Text("A"), true))
		assert.False(t, r.MatchesAccessibleName(both, schemas.Text("B"), true))
		assert.False(t, r.MatchesAccessibleName(both, schemas.Text("B"), false))
	})

	t.Run("empty exact pattern means no name", func(t *testing.T) {
		assert.True(t, r.MatchesAccessibleName(byID(t, doc, "bare"), schemas.Text(""), true))
		assert.True(t, r.MatchesAccessibleName(byID(t, doc, "empty-label"), schemas.Text(""), true))
		assert.False(t, r.MatchesAccessibleName(byID(t, doc, "x-label"), schemas.Text(""), true))
		assert.False(t, r.MatchesAccessibleName(byID(t, doc, "only-ph"), schemas.Text(""), true))
	})

	t.Run("substring and regexp", func(t *testing.T) {
		row := byID(t, doc, "row")
		assert.True(t, r.MatchesAccessibleName(row, schemas.Text("名称 告警ID 分组名称"), true))
		assert.True(t, r.MatchesAccessibleName(row, schemas.Text("告警"), false))
		assert.False(t, r.MatchesAccessibleName(row, schemas.Text("告警"), true))
		assert.True(t, r.MatchesAccessibleName(row, schemas.Regexp(regexp.MustCompile(`^名称\s`)), true))
	})

	t.Run("literal matching is case sensitive", func(t *testing.T) {
		assert.False(t, r.MatchesAccessibleName(byID(t, doc, "email"), schemas.Text("email"), false))
	})
}

func TestMatchesTextIgnoresAria(t *testing.T) {
	doc, r := setup(t, namesHTML)
	both := byID(t, doc, "both")
	assert.True(t, r.MatchesText(both, schemas.Text("B"), true))
	assert.False(t, r.MatchesText(both, schemas.Text("A"), false))
	assert.True(t, r.MatchesText(byID(t, doc, "valued"), schemas.Text("Press"), true))
}

func TestLabelText(t *testing.T) {
	doc, r := setup(t, namesHTML)
	assert.Equal(t, "Email address", r.LabelText(byID(t, doc, "email")))
	assert.Equal(t, "", r.LabelText(byID(t, doc, "only-ph")), "placeholder is not a label")
	assert.False(t, r.MatchesLabel(byID(t, doc, "only-title"), schemas.Text("Tip"), false), "title is not a label")
}

func TestRoles(t *testing.T) {
	doc, _ := setup(t, `<body>
	<a id="link" href="/x">l</a><a id="anchor">a</a>
	<input id="text"><input id="search" type="search"><input id="num" type="number">
	<input id="combo" list="dl"><select id="single"></select><select id="multi" multiple></select>
	<button id="tab" role="tab">t</button><div id="none" role="none presentation"></div>
	<img id="decor" alt=""><h3 id="h3">h</h3><div id="lvl" role="heading" aria-level="5">x</div>
	<table><tr><th id="colh">c</th><th id="rowh" scope="row">r</th><td id="cell">v</td></tr></table>
	<section id="plain-section"></section><section id="named" aria-label="N"></section>
	</body>`)
	tests := []struct {
		id   string
		role string
	}{
		{"link", "link"},
		{"anchor", ""},
		{"text", "textbox"},
		{"search", "searchbox"},
		{"num", "spinbutton"},
		{"combo", "combobox"},
		{"single", "combobox"},
		{"multi", "listbox"},
		{"tab", "tab"},
		{"none", "presentation"},
		{"decor", "presentation"},
		{"h3", "heading"},
		{"colh", "columnheader"},
		{"rowh", "rowheader"},
		{"cell", "cell"},
		{"plain-section", ""},
		{"named", "region"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			n := byID(t, doc, tt.id)
			assert.Equal(t, tt.role, aria.Role(n))
			if tt.role != "" {
				assert.True(t, aria.MatchesRole(n, tt.role))
			}
		})
	}
	assert.False(t, aria.MatchesRole(byID(t, doc, "tab"), "button"), "explicit role overrides the tag")
	assert.True(t, aria.MatchesRole(byID(t, doc, "none"), "none"))
}

func TestRoleSelector(t *testing.T) {
	assert.Contains(t, aria.RoleSelector("button"), `input[type="submit"]`)
	assert.Equal(t, `tr, [role="row"]`, aria.RoleSelector("row"))
	assert.Equal(t, `[role="widget"]`, aria.RoleSelector("Widget"))
	assert.Equal(t, aria.RoleSelector("presentation"), aria.RoleSelector("none"))
}

func TestStates(t *testing.T) {
	doc, r := setup(t, `<body>
	<input type="checkbox" id="cb" checked><div id="ac" role="checkbox" aria-checked="true"></div>
	<fieldset disabled><input id="fs-in"></fieldset><div aria-disabled="true"><span id="ad">x</span></div>
	<select id="sel"><option id="o1">a</option><option id="o2">b</option></select>
	<details id="det" open></details><button id="exp" aria-expanded="true" aria-pressed="true">e</button>
	<h2 id="h2">h</h2><div id="lv" aria-level="4"></div><div id="hidden" aria-hidden="true"><b id="in-hidden">x</b></div>
	</body>`)

	assert.True(t, r.IsChecked(byID(t, doc, "cb")))
	doc.SetChecked(byID(t, doc, "cb"), false)
	assert.False(t, r.State(byID(t, doc, "cb"), schemas.StateChecked), "live state wins over markup")
	assert.True(t, r.IsChecked(byID(t, doc, "ac")))

	assert.True(t, r.IsDisabled(byID(t, doc, "fs-in")))
	assert.True(t, r.IsDisabled(byID(t, doc, "ad")))
	assert.False(t, r.IsDisabled(byID(t, doc, "exp")))

	assert.True(t, r.IsSelected(byID(t, doc, "o1")))
	assert.False(t, r.IsSelected(byID(t, doc, "o2")))

	assert.True(t, r.IsExpanded(byID(t, doc, "det")))
	assert.True(t, r.State(byID(t, doc, "exp"), schemas.StateExpanded))
	assert.True(t, r.State(byID(t, doc, "exp"), schemas.StatePressed))

	assert.Equal(t, 2, r.Level(byID(t, doc, "h2")))
	assert.Equal(t, 4, r.Level(byID(t, doc, "lv")))
	assert.Equal(t, 0, r.Level(byID(t, doc, "exp")))

	assert.True(t, aria.IsHiddenFromTree(byID(t, doc, "in-hidden")))
	assert.False(t, aria.IsHiddenFromTree(byID(t, doc, "h2")))
}
