// internal/script/script_test.go
package script_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/scalpel-locator/api/schemas"
	"github.com/xkilldash9x/scalpel-locator/internal/browser/dom"
	"github.com/xkilldash9x/scalpel-locator/internal/config"
	"github.com/xkilldash9x/scalpel-locator/internal/locator"
	"github.com/xkilldash9x/scalpel-locator/internal/locator/framework"
	"github.com/xkilldash9x/scalpel-locator/internal/script"
)

const fixture = `<body>
<ul><li>Apple</li><li>Banana</li><li>Cherry</li></ul>
<form>
  <label for="email">Email</label><input id="email">
  <input type="checkbox" id="agree" aria-label="Agree">
  <select id="color"><option value="r">Red</option><option value="g">Green</option></select>
  <button id="go">Submit</button>
</form>
<p id="msg">  Ready   to go </p>
</body>`

func newPage(t *testing.T) *locator.Page {
	t.Helper()
	doc, err := dom.ParseString(fixture, zaptest.NewLogger(t))
	require.NoError(t, err)
	cfg := config.NewDefaultConfig().Locator()
	cfg.DefaultTimeout = 200 * time.Millisecond
	cfg.PollInterval = 10 * time.Millisecond
	cfg.BlurDelay = time.Millisecond
	p, err := locator.NewPage(doc, locator.WithConfig(cfg), locator.WithAdapters())
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

func TestParse(t *testing.T) {
	src := `
name: checkout
timeout: 5000
steps:
  - label: Email
    fill: a@b.c
  - role: checkbox
    name: Agree
    exact: true
    check: true
  - selector: li
    hasText: /an/
    expectCount: 1
  - text: Submit
    within:
      selector: form
    click: true
`
	s, err := script.ParseBytes([]byte(src))
	require.NoError(t, err)
	assert.Equal(t, "checkout", s.Name)
	assert.Equal(t, 5000, s.Timeout)
	require.Len(t, s.Steps, 4)

	actions := make([]string, len(s.Steps))
	for i := range s.Steps {
		actions[i] = s.Steps[i].Action()
	}
	assert.Equal(t, []string{"fill", "check", "expectCount", "click"}, actions)
	require.NotNil(t, s.Steps[3].Within)
	assert.Equal(t, "form", s.Steps[3].Within.Selector)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		msg  string
	}{
		{"empty", ``, "empty script"},
		{"no steps", "name: x\n", "has no steps"},
		{"unknown key", "steps:\n  - selector: a\n    tap: true\n", "failed to parse script"},
		{"two actions", "steps:\n  - selector: a\n    click: true\n    hover: true\n", "step 1: expected exactly one action, got 2"},
		{"no action", "steps:\n  - selector: a\n", "expected exactly one action, got 0"},
		{"two queries", "steps:\n  - selector: a\n    text: b\n    click: true\n", "expected exactly one of"},
		{"name without role", "steps:\n  - text: a\n    name: b\n    click: true\n", "name is only valid with role"},
		{"bad within", "steps:\n  - text: a\n    within: {exact: true}\n    click: true\n", "within:"},
		{"negative timeout", "timeout: -1\nsteps:\n  - selector: a\n    click: true\n", "must not be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := script.Parse(strings.NewReader(tt.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestPattern(t *testing.T) {
	p, err := script.Pattern("/^Ban/")
	require.NoError(t, err)
	require.True(t, p.IsRegexp())
	assert.True(t, p.Regexp.MatchString("Banana"))

	p, err = script.Pattern("/")
	require.NoError(t, err)
	assert.Equal(t, schemas.Text("/"), p)

	_, err = script.Pattern("/(/")
	assert.Error(t, err)
}

func TestRun(t *testing.T) {
	page := newPage(t)
	src := `
name: form
steps:
  - label: Email
    fill: a@b.c
  - role: checkbox
    name: Agree
    check: true
  - selector: "#color"
    select: [Green]
  - selector: li
    hasText: /an/
    expectCount: 1
  - selector: li
    nth: 2
    expectText: Cherry
  - selector: "#msg"
    expectText: Ready to go
  - role: button
    name: Submit
    expectVisible: true
  - selector: "#missing"
    expectHidden: true
`
	s, err := script.ParseBytes([]byte(src))
	require.NoError(t, err)

	results, err := script.Run(context.Background(), page, s, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.Len(t, results, 8)
	for i, r := range results {
		assert.Equal(t, i+1, r.Index)
		assert.Empty(t, r.Error)
		assert.NotEmpty(t, r.Locator)
	}
	assert.Equal(t, schemas.MethodNative, results[0].Method)
	assert.Equal(t, []string{"g"}, results[2].Value)
	assert.Equal(t, schemas.MethodNative, results[2].Method)
	assert.Equal(t, 1, results[3].Value)
	assert.Equal(t, "Ready to go", results[5].Value)

	doc := page.Document()
	assert.Equal(t, "a@b.c", doc.Value(doc.ElementByID("email")))
	assert.True(t, doc.Checked(doc.ElementByID("agree")))
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	page := newPage(t)
	src := `
steps:
  - selector: li
    expectCount: 5
  - selector: button
    click: true
`
	s, err := script.ParseBytes([]byte(src))
	require.NoError(t, err)

	results, err := script.Run(context.Background(), page, s, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, script.ErrExpectation)
	assert.Contains(t, err.Error(), "step 1 (expectCount)")
	require.Len(t, results, 1)
	assert.Equal(t, 3, results[0].Value)
	assert.Contains(t, results[0].Error, "count is 3, want 5")
}

func TestRunActionTimeout(t *testing.T) {
	page := newPage(t)
	s, err := script.ParseBytes([]byte("steps:\n  - selector: \"#nope\"\n    click: true\n"))
	require.NoError(t, err)

	_, err = script.Run(context.Background(), page, s, nil)
	require.Error(t, err)
	assert.True(t, locator.IsTimeout(err))
}

func TestRunScriptTimeout(t *testing.T) {
	page := newPage(t)
	s, err := script.ParseBytes([]byte("timeout: 20\nsteps:\n  - selector: li\n    expectCount: 9\n"))
	require.NoError(t, err)

	start := time.Now()
	_, err = script.Run(context.Background(), page, s, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 150*time.Millisecond)
}

func TestRunReportsAdapterMethod(t *testing.T) {
	doc, err := dom.ParseString(fixture, zaptest.NewLogger(t))
	require.NoError(t, err)
	var changed string
	doc.SetProperty(doc.ElementByID("color"), framework.ReactPropsPrefix+"k", map[string]any{
		"onChange": func(ev *framework.SyntheticEvent) { changed = ev.Value },
	})
	cfg := config.NewDefaultConfig().Locator()
	cfg.DefaultTimeout = 200 * time.Millisecond
	cfg.PollInterval = 10 * time.Millisecond
	cfg.BlurDelay = time.Millisecond
	page, err := locator.NewPage(doc, locator.WithConfig(cfg), locator.WithAdapters(framework.NewReact(nil)))
	require.NoError(t, err)
	t.Cleanup(page.Close)

	s, err := script.ParseBytes([]byte("steps:\n  - selector: \"#color\"\n    select: [Green]\n  - selector: \"#go\"\n    click: true\n"))
	require.NoError(t, err)

	results, err := script.Run(context.Background(), page, s, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "react", results[0].Method)
	assert.Equal(t, []string{"g"}, results[0].Value)
	assert.Equal(t, "g", changed)
	assert.Equal(t, schemas.MethodNative, results[1].Method)
}
