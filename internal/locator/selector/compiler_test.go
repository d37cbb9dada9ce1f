package selector

import (
	"errors"
	"regexp"
	"strings"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/scalpel-locator/api/schemas"
	"github.com/xkilldash9x/scalpel-locator/internal/locator/aria"
)

func ptr[T any](v T) *T { return &v }

func roleStrategy(role string, name *schemas.TextPattern, exact bool) *schemas.QueryStrategy {
	return &schemas.QueryStrategy{Kind: schemas.KindRole, Role: role, RoleOpts: schemas.RoleOptions{Name: name, Exact: exact}}
}

func TestCompileStep(t *testing.T) {
	c := NewCompiler("")
	tests := []struct {
		name     string
		strategy *schemas.QueryStrategy
		want     Compiled
	}{
		{
			name:     "raw css",
			strategy: &schemas.QueryStrategy{Kind: schemas.KindSelector, Selector: " div.card > a "},
			want:     Compiled{CSS: "div.card > a"},
		},
		{
			name:     "raw xpath",
			strategy: &schemas.QueryStrategy{Kind: schemas.KindSelector, Selector: "//ul/li"},
			want:     Compiled{XPath: "//ul/li"},
		},
		{
			name:     "xpath engine prefix",
			strategy: &schemas.QueryStrategy{Kind: schemas.KindSelector, Selector: "xpath=li[2]"},
			want:     Compiled{XPath: "li[2]"},
		},
		{
			name:     "role without options only hides invisible elements",
			strategy: roleStrategy("row", nil, false),
			want: Compiled{CSS: `tr, [role="row"]`, PostFilters: []schemas.FilterSpec{
				schemas.HasRole("row"), schemas.VisibleOnly(),
			}},
		},
		{
			name: "role with name and states",
			strategy: &schemas.QueryStrategy{Kind: schemas.KindRole, Role: "Checkbox", RoleOpts: schemas.RoleOptions{
				Name: ptr(schemas.Text("Agree")), Exact: true, Checked: ptr(true), IncludeHidden: true,
			}},
			want: Compiled{CSS: `input[type="checkbox"], [role="checkbox"]`, PostFilters: []schemas.FilterSpec{
				schemas.HasRole("checkbox"),
				schemas.HasAccessibleName(schemas.Text("Agree"), true),
				schemas.HasState(schemas.StateChecked, true),
			}},
		},
		{
			name:     "test id",
			strategy: &schemas.QueryStrategy{Kind: schemas.KindTestID, Pattern: schemas.Text(`say "hi"`)},
			want:     Compiled{CSS: `[data-testid="say \"hi\""]`},
		},
		{
			name:     "placeholder contains",
			strategy: &schemas.QueryStrategy{Kind: schemas.KindPlaceholder, Pattern: schemas.Text("  Search  ")},
			want:     Compiled{XPath: `//*[@placeholder][contains(normalize-space(@placeholder), 'Search')]`},
		},
		{
			name:     "title exact with apostrophe",
			strategy: &schemas.QueryStrategy{Kind: schemas.KindTitle, Pattern: schemas.Text("it's"), Exact: true},
			want:     Compiled{XPath: `//*[@title][normalize-space(@title)="it's"]`},
		},
		{
			name:     "empty label defers to the accessible name filter",
			strategy: &schemas.QueryStrategy{Kind: schemas.KindLabel, Pattern: schemas.Text("")},
			want: Compiled{
				XPath:       "//input[not(@type='hidden')] | //select | //textarea",
				PostFilters: []schemas.FilterSpec{schemas.HasAccessibleName(schemas.Text(""), true)},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.CompileStep(tt.strategy)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got, cmp.Comparer(sameRegexp)); diff != "" {
				t.Errorf("CompileStep mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func sameRegexp(a, b *regexp.Regexp) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.String() == b.String()
}

func TestCompileRegexpUsesPostFilters(t *testing.T) {
	c := NewCompiler("data-qa")
	re := schemas.Regexp(regexp.MustCompile(`^sub`))

	got, err := c.CompileStep(&schemas.QueryStrategy{Kind: schemas.KindTestID, Pattern: re})
	require.NoError(t, err)
	assert.Equal(t, "[data-qa]", got.CSS)
	require.Len(t, got.PostFilters, 1)
	assert.Equal(t, schemas.FilterAttribute, got.PostFilters[0].Kind)
	assert.Equal(t, "data-qa", got.PostFilters[0].Name)

	got, err = c.CompileStep(&schemas.QueryStrategy{Kind: schemas.KindText, Pattern: re})
	require.NoError(t, err)
	require.Len(t, got.PostFilters, 1)
	assert.Equal(t, schemas.FilterText, got.PostFilters[0].Kind)

	got, err = c.CompileStep(&schemas.QueryStrategy{Kind: schemas.KindLabel, Pattern: re})
	require.NoError(t, err)
	assert.Equal(t, schemas.FilterLabel, got.PostFilters[0].Kind)
}

func TestCompileChains(t *testing.T) {
	c := NewCompiler("")

	t.Run("css under css distributes commas", func(t *testing.T) {
		parent := &schemas.QueryStrategy{Kind: schemas.KindSelector, Selector: "ul, ol"}
		child := schemas.QueryStrategy{Kind: schemas.KindSelector, Selector: "li.a, li.b"}.WithParent(parent)
		got, err := c.Compile(child)
		require.NoError(t, err)
		assert.Equal(t, "ul li.a, ul li.b, ol li.a, ol li.b", got.CSS)
		assert.False(t, got.Approximate)
	})

	t.Run("css under xpath joins with a descendant axis", func(t *testing.T) {
		parent := &schemas.QueryStrategy{Kind: schemas.KindSelector, Selector: "//form | //dialog"}
		child := schemas.QueryStrategy{Kind: schemas.KindSelector, Selector: "#go, .btn"}.WithParent(parent)
		got, err := c.Compile(child)
		require.NoError(t, err)
		assert.Equal(t,
			"(//form)//*[@id='go'] | (//form)//*[contains(concat(' ', normalize-space(@class), ' '), ' btn ')] | "+
				"(//dialog)//*[@id='go'] | (//dialog)//*[contains(concat(' ', normalize-space(@class), ' '), ' btn ')]",
			got.XPath)
	})

	t.Run("parent chain is not mutated", func(t *testing.T) {
		parent := &schemas.QueryStrategy{Kind: schemas.KindSelector, Selector: "main"}
		before := *parent
		_ = schemas.QueryStrategy{Kind: schemas.KindText, Pattern: schemas.Text("x")}.WithParent(parent)
		assert.Equal(t, before, *parent)
	})

	t.Run("cyclic chains are rejected", func(t *testing.T) {
		a := &schemas.QueryStrategy{Kind: schemas.KindSelector, Selector: "a"}
		b := &schemas.QueryStrategy{Kind: schemas.KindSelector, Selector: "b", Parent: a}
		a.Parent = b
		_, err := c.Compile(b)
		assert.ErrorIs(t, err, schemas.ErrInvalidStrategy)
	})

	t.Run("invalid selectors are reported", func(t *testing.T) {
		_, err := c.Compile(&schemas.QueryStrategy{Kind: schemas.KindSelector, Selector: "div[["})
		assert.True(t, errors.Is(err, schemas.ErrInvalidSelector))
		_, err = c.Compile(&schemas.QueryStrategy{Kind: schemas.KindSelector, Selector: "//div[@id="})
		assert.ErrorIs(t, err, schemas.ErrInvalidSelector)
	})
}

const rowFixture = `<html><body><table>
<tr><th>名称</th><th>告警ID</th><th>分组名称</th></tr>
<tr><td><input type="checkbox" id="unnamed"></td><td><input type="checkbox" aria-label="x"></td></tr>
</table></body></html>`

// A role query with a name is CSS plus post filters; an empty label is an
// XPath candidate set. Their join must stay a valid expression.
func TestRoleWithNameUnderEmptyLabelIsValidXPath(t *testing.T) {
	c := NewCompiler("")
	row := roleStrategy("row", ptr(schemas.Text("名称 告警ID 分组名称")), true)
	label := schemas.QueryStrategy{Kind: schemas.KindLabel, Pattern: schemas.Text("")}.WithParent(row)

	got, err := c.Compile(label)
	require.NoError(t, err)
	require.True(t, got.IsXPath())
	assert.True(t, got.Approximate, "the row name filter cannot be expressed in the joined expression")
	assert.NotContains(t, got.XPath, "[self::]")
	assert.NotContains(t, got.XPath, "[]")

	_, err = xpath.Compile(got.XPath)
	require.NoError(t, err)

	doc, err := htmlquery.Parse(strings.NewReader(rowFixture))
	require.NoError(t, err)
	nodes, err := htmlquery.QueryAll(doc, got.XPath)
	require.NoError(t, err)
	assert.Len(t, nodes, 2, "both checkboxes are candidates before the name filter")
}

func TestLabelTemplateFindsEverySource(t *testing.T) {
	markup := `<html><body>
	<input id="a" aria-label="Email">
	<label for="b">Email</label><input id="b">
	<label>Email <textarea id="c"></textarea></label>
	<span id="lbl">Email</span><select id="d" aria-labelledby="lbl"></select>
	<input id="e" aria-label="Phone">
	<span id="first">First</span><span id="name">Name</span><input id="f" aria-labelledby="first name">
	<input type="hidden" id="g" aria-label="Email">
	</body></html>`
	doc, err := htmlquery.Parse(strings.NewReader(markup))
	require.NoError(t, err)
	r := aria.NewResolver(nil, nil)

	tests := []struct {
		text  string
		exact bool
		want  []string
	}{
		{"Email", true, []string{"a", "b", "c", "d"}},
		{"First Name", true, []string{"f"}},
		{"First", false, []string{"f"}},
		{"Name", false, []string{"f"}},
		{"First", true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := NewCompiler("").CompileStep(&schemas.QueryStrategy{Kind: schemas.KindLabel, Pattern: schemas.Text(tt.text), Exact: tt.exact})
			require.NoError(t, err)
			require.Len(t, got.PostFilters, 1)
			f := got.PostFilters[0]
			require.Equal(t, schemas.FilterLabel, f.Kind)

			nodes, err := htmlquery.QueryAll(doc, got.XPath)
			require.NoError(t, err)
			var ids []string
			for _, n := range nodes {
				if r.MatchesLabel(n, f.Pattern, f.Exact) {
					ids = append(ids, htmlquery.SelectAttr(n, "id"))
				}
			}
			assert.ElementsMatch(t, tt.want, ids)
		})
	}
}

func TestTextTemplatePrefersInnermost(t *testing.T) {
	markup := `<html><head><title>Hello</title></head><body>
	<div id="outer"><p id="p">Hello <b>world</b></p></div>
	<input type="submit" id="s" value="Hello world">
	<script>var Hello = 1</script>
	</body></html>`
	doc, err := htmlquery.Parse(strings.NewReader(markup))
	require.NoError(t, err)

	tests := []struct {
		text  string
		exact bool
		want  []string
	}{
		{"Hello world", true, []string{"p", "s"}},
		{"world", false, []string{"s"}}, // the <b> has no id
		{"Hello", false, []string{"p", "s"}},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := NewCompiler("").CompileStep(&schemas.QueryStrategy{Kind: schemas.KindText, Pattern: schemas.Text(tt.text), Exact: tt.exact})
			require.NoError(t, err)
			nodes, err := htmlquery.QueryAll(doc, got.XPath)
			require.NoError(t, err)
			var ids []string
			for _, n := range nodes {
				if id := htmlquery.SelectAttr(n, "id"); id != "" {
					ids = append(ids, id)
				}
			}
			assert.ElementsMatch(t, tt.want, ids)
		})
	}
}

var fuzzKinds = []schemas.StrategyKind{
	schemas.KindSelector, schemas.KindRole, schemas.KindText, schemas.KindLabel,
	schemas.KindPlaceholder, schemas.KindTestID, schemas.KindTitle, schemas.KindAltText,
}

var fuzzSelectors = []string{"div", "ul > li", "a.x, b#y", "//tr | //*[@role='row']", "(//p)[2]", "input:not([type])", "[data-x^='a']"}

var fuzzRoles = []string{"row", "button", "checkbox", "textbox", "cell", "heading", "widget"}

// FuzzCompileProducesValidXPath builds random strategy chains and checks the
// joined expression always compiles.
func FuzzCompileProducesValidXPath(f *testing.F) {
	f.Add([]byte("seed"))
	f.Add([]byte{3, 1, 0, 2, 4, 5, 6, 7, 8, 9, 10, 11, 12})
	f.Add([]byte("\x02\x00\x01it's \"both\"\x00\x03"))
	f.Fuzz(func(t *testing.T, data []byte) {
		consumer := fuzz.NewConsumer(data)
		depth, err := consumer.GetInt()
		if err != nil {
			return
		}
		var cur *schemas.QueryStrategy
		for i := 0; i <= pick(depth, 4); i++ {
			k, err := consumer.GetInt()
			if err != nil {
				break
			}
			text, _ := consumer.GetString()
			text = strings.ToValidUTF8(text, "")
			exact, _ := consumer.GetBool()
			step := schemas.QueryStrategy{Kind: fuzzKinds[pick(k, len(fuzzKinds))], Pattern: schemas.Text(text), Exact: exact}
			switch step.Kind {
			case schemas.KindSelector:
				step.Selector = fuzzSelectors[pick(k, len(fuzzSelectors))]
			case schemas.KindRole:
				step.Role = fuzzRoles[pick(k, len(fuzzRoles))]
				if text != "" {
					step.RoleOpts.Name = &step.Pattern
				}
			case schemas.KindTestID:
				step.Pattern = schemas.Text(strings.Map(func(r rune) rune {
					if r < 0x20 || r == 0x7f {
						return -1
					}
					return r
				}, text))
			}
			cur = step.WithParent(cur)
		}
		if cur == nil {
			return
		}
		got, err := NewCompiler("").Compile(cur)
		require.NoError(t, err, "strategy %s", Describe(cur))
		x := got.AsXPath()
		assert.NotContains(t, x, "[self::]")
		assert.NotContains(t, x, "[]")
		_, err = xpath.Compile(x)
		assert.NoError(t, err, x)
	})
}

func pick(k, n int) int { return int(uint(k) % uint(n)) }
