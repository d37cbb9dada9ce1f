package style

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/scalpel-locator/internal/browser/dom"
	"github.com/xkilldash9x/scalpel-locator/internal/browser/parser"
)

func parseHTMLAndFind(t *testing.T, markup, id string) (*html.Node, *html.Node) {
	t.Helper()
	root, err := html.Parse(strings.NewReader(markup))
	require.NoError(t, err)
	node := dom.ElementByID(root, id)
	require.NotNil(t, node, "missing #%s", id)
	return root, node
}

func TestCSSCascade(t *testing.T) {
	markup := `<html><head><style>
		#target { display: flex; }
		p.highlight { display: grid; }
		p { display: table; }
		.imp { display: inline !important; }
	</style></head><body>
	<p id="target" class="highlight">Test</p>
	<p id="inline" class="highlight" style="display: contents">x</p>
	<p id="important" class="imp" style="display: block">x</p>
	<p id="later">x</p>
	</body></html>`

	engine := NewEngine()
	tests := []struct {
		id   string
		want string
	}{
		{"target", "flex"},      // id beats class and tag
		{"inline", "contents"},  // inline beats author rules
		{"important", "inline"}, // !important beats inline
		{"later", "table"},      // author beats user agent
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			root, node := parseHTMLAndFind(t, markup, tt.id)
			snap := engine.Snapshot(root)
			assert.Equal(t, tt.want, snap.Compute(node).Display)
		})
	}
}

func TestSourceOrderBreaksTies(t *testing.T) {
	root, node := parseHTMLAndFind(t, `<style>.a{display:none}</style><style>.a{display:block}</style><div id="x" class="a">t</div>`, "x")
	assert.True(t, NewEngine().Snapshot(root).IsVisible(node))
}

func TestSelectorMatching(t *testing.T) {
	markup := `<div id="wrap"><ul class="nav main"><li id="a" lang="en-US">A</li><li id="b" data-x="prefix-mid-suffix">B</li></ul><h2 id="h"></h2><p id="sib">s</p></div>`
	tests := []struct {
		selector string
		id       string
		want     bool
	}{
		{"#wrap li", "a", true},
		{"div > li", "a", false},
		{"ul.nav.main > li", "b", true},
		{"li + li", "b", true},
		{"li + li", "a", false},
		{"h2 ~ p", "sib", true},
		{"[lang|=en]", "a", true},
		{`[data-x^="prefix"]`, "b", true},
		{`[data-x$="suffix"]`, "b", true},
		{`[data-x*="mid"]`, "b", true},
		{`[data-x*=""]`, "b", false},
		{`[class~="nav"]`, "a", false},
		{"*", "h", true},
	}
	for _, tt := range tests {
		t.Run(tt.selector+"@"+tt.id, func(t *testing.T) {
			_, node := parseHTMLAndFind(t, markup, tt.id)
			group, err := parser.ParseSelector(tt.selector)
			require.NoError(t, err)
			_, ok := Matches(node, group)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestVisibility(t *testing.T) {
	markup := `<html><head><style>
		.gone { display: none }
		.ghost { visibility: hidden }
		.shown { visibility: visible }
		.flat { height: 0 }
		.sized { width: 10px; height: 10px }
	</style></head><body>
	<button id="plain">Go</button>
	<div class="gone"><button id="in-gone">x</button></div>
	<div class="ghost"><span id="ghost-child">x</span><span id="revived" class="shown">y</span></div>
	<div id="empty"></div>
	<div id="whitespace">   </div>
	<div id="nested"><span><b>deep</b></span></div>
	<div id="flat" class="flat">text</div>
	<div id="sized" class="sized"></div>
	<input id="hidden-input" type="hidden">
	<input id="text-input">
	<p id="attr-hidden" hidden>x</p>
	<div id="with-hidden-only-child"><span hidden>x</span></div>
	<span id="collapsed-box" style="display:none">x</span>
	</body></html>`

	tests := []struct {
		id      string
		visible bool
	}{
		{"plain", true},
		{"in-gone", false},
		{"ghost-child", false},
		{"revived", true},
		{"empty", false},
		{"whitespace", false},
		{"nested", true},
		{"flat", false},
		{"sized", true},
		{"hidden-input", false},
		{"text-input", true},
		{"attr-hidden", false},
		{"with-hidden-only-child", false},
		{"collapsed-box", false},
	}
	engine := NewEngine()
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			root, node := parseHTMLAndFind(t, markup, tt.id)
			assert.Equal(t, tt.visible, engine.Snapshot(root).IsVisible(node))
		})
	}

	t.Run("visibility hidden keeps the box", func(t *testing.T) {
		root, node := parseHTMLAndFind(t, markup, "ghost-child")
		snap := engine.Snapshot(root)
		assert.True(t, snap.IsRendered(node))
		assert.True(t, snap.HasBox(node))
	})
}
