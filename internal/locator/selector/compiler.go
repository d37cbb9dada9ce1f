// internal/locator/selector/compiler.go
package selector

import (
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/xpath"

	"github.com/xkilldash9x/scalpel-locator/api/schemas"
	"github.com/xkilldash9x/scalpel-locator/internal/browser/dom"
	"github.com/xkilldash9x/scalpel-locator/internal/locator/aria"
)

// DefaultTestIDAttribute is the attribute queried by getByTestId.
const DefaultTestIDAttribute = "data-testid"

// Compiled is the executable form of a strategy. Exactly one of CSS and
// XPath is set. PostFilters narrow the query result before any locator
// filters run.
type Compiled struct {
	CSS         string                `json:"css,omitempty"`
	XPath       string                `json:"xpath,omitempty"`
	PostFilters []schemas.FilterSpec `json:"-"`
	// Approximate is set when the joined expression cannot express every
	// step exactly: a parent step had post filters, or CSS had to be
	// degraded during conversion to XPath.
	Approximate bool `json:"approximate,omitempty"`
}

// IsXPath reports whether the compiled form is an XPath expression.
func (c Compiled) IsXPath() bool { return c.XPath != "" }

// Expr returns whichever expression is set.
func (c Compiled) Expr() string {
	if c.IsXPath() {
		return c.XPath
	}
	return c.CSS
}

// AsXPath returns the expression as XPath, converting CSS when needed.
func (c Compiled) AsXPath() string {
	if c.IsXPath() {
		return c.XPath
	}
	return CSSToXPath(c.CSS)
}

// Compiler turns query strategies into CSS or XPath.
type Compiler struct {
	testIDAttribute string
}

// NewCompiler returns a compiler. An empty testIDAttribute means data-testid.
func NewCompiler(testIDAttribute string) *Compiler {
	if strings.TrimSpace(testIDAttribute) == "" {
		testIDAttribute = DefaultTestIDAttribute
	}
	return &Compiler{testIDAttribute: testIDAttribute}
}

// TestIDAttribute returns the attribute used for test id queries.
func (c *Compiler) TestIDAttribute() string { return c.testIDAttribute }

// Compile compiles the whole parent chain of s into one expression. CSS
// steps stay CSS while every step is CSS; any XPath step turns the result
// into XPath joined with descendant axes. PostFilters are those of the last
// step.
func (c *Compiler) Compile(s *schemas.QueryStrategy) (Compiled, error) {
	if err := s.Validate(); err != nil {
		return Compiled{}, err
	}
	var acc Compiled
	for i, step := range s.Chain() {
		next, err := c.CompileStep(step)
		if err != nil {
			return Compiled{}, err
		}
		if i == 0 {
			acc = next
			continue
		}
		approx := acc.Approximate || next.Approximate || len(acc.PostFilters) > 0
		if !acc.IsXPath() && !next.IsXPath() {
			acc = Compiled{CSS: joinCSS(acc.CSS, next.CSS), PostFilters: next.PostFilters, Approximate: approx}
			continue
		}
		parentX, exactP := toXPath(acc)
		childX, exactC := toXPath(next)
		acc = Compiled{
			XPath:       JoinXPath(parentX, childX),
			PostFilters: next.PostFilters,
			Approximate: approx || !exactP || !exactC,
		}
	}
	if err := validate(acc); err != nil {
		return Compiled{}, err
	}
	return acc, nil
}

func toXPath(c Compiled) (string, bool) {
	if c.IsXPath() {
		return c.XPath, true
	}
	return cssToXPath(c.CSS)
}

// joinCSS distributes a descendant combinator over both selector lists.
func joinCSS(parent, child string) string {
	var arms []string
	for _, p := range splitTopLevel(parent, ',') {
		for _, ch := range splitTopLevel(child, ',') {
			arms = append(arms, p+" "+ch)
		}
	}
	return strings.Join(arms, ", ")
}

// CompileStep compiles a single step, ignoring its parent.
func (c *Compiler) CompileStep(s *schemas.QueryStrategy) (Compiled, error) {
	var out Compiled
	switch s.Kind {
	case schemas.KindSelector:
		out = compileRaw(s.Selector)
	case schemas.KindRole:
		out = compileRole(s.Role, s.RoleOpts)
	case schemas.KindText:
		out = compileText(s.Pattern, s.Exact)
	case schemas.KindLabel:
		out = compileLabel(s.Pattern, s.Exact)
	case schemas.KindPlaceholder:
		out = compileAttribute("placeholder", s.Pattern, s.Exact)
	case schemas.KindTitle:
		out = compileAttribute("title", s.Pattern, s.Exact)
	case schemas.KindAltText:
		out = compileAttribute("alt", s.Pattern, s.Exact)
	case schemas.KindTestID:
		out = c.compileTestID(s.Pattern)
	default:
		return Compiled{}, fmt.Errorf("%w: unknown strategy kind %q", schemas.ErrInvalidStrategy, s.Kind)
	}
	if err := validate(out); err != nil {
		return Compiled{}, err
	}
	return out, nil
}

func validate(c Compiled) error {
	if c.IsXPath() {
		if _, err := xpath.Compile(c.XPath); err != nil {
			return fmt.Errorf("%w: xpath %q: %v", schemas.ErrInvalidSelector, c.XPath, err)
		}
		return nil
	}
	if _, err := cascadia.ParseGroup(c.CSS); err != nil {
		return fmt.Errorf("%w: css %q: %v", schemas.ErrInvalidSelector, c.CSS, err)
	}
	return nil
}

// -- Step templates --

// compileRaw passes a raw selector through. Engine prefixes css= and xpath=
// are honoured; otherwise a leading '/', '(' or '..' marks XPath.
func compileRaw(sel string) Compiled {
	sel = strings.TrimSpace(sel)
	switch {
	case strings.HasPrefix(sel, "xpath="):
		return Compiled{XPath: strings.TrimSpace(strings.TrimPrefix(sel, "xpath="))}
	case strings.HasPrefix(sel, "css="):
		return Compiled{CSS: strings.TrimSpace(strings.TrimPrefix(sel, "css="))}
	case strings.HasPrefix(sel, "/"), strings.HasPrefix(sel, "("), strings.HasPrefix(sel, ".."), strings.HasPrefix(sel, "./"):
		return Compiled{XPath: sel}
	}
	return Compiled{CSS: sel}
}

func compileRole(role string, opts schemas.RoleOptions) Compiled {
	out := Compiled{CSS: aria.RoleSelector(role)}
	out.PostFilters = append(out.PostFilters, schemas.HasRole(strings.ToLower(strings.TrimSpace(role))))
	if opts.Name != nil {
		out.PostFilters = append(out.PostFilters, schemas.HasAccessibleName(*opts.Name, opts.Exact))
	}
	states := []struct {
		name schemas.StateName
		want *bool
	}{
		{schemas.StateChecked, opts.Checked},
		{schemas.StateDisabled, opts.Disabled},
		{schemas.StateSelected, opts.Selected},
		{schemas.StateExpanded, opts.Expanded},
		{schemas.StatePressed, opts.Pressed},
	}
	for _, st := range states {
		if st.want != nil {
			out.PostFilters = append(out.PostFilters, schemas.HasState(st.name, *st.want))
		}
	}
	if opts.Level > 0 {
		out.PostFilters = append(out.PostFilters, schemas.HasLevel(opts.Level))
	}
	if !opts.IncludeHidden {
		out.PostFilters = append(out.PostFilters, schemas.VisibleOnly())
	}
	return out
}

const textExclusions = "not(self::html or self::head or self::title or self::script or self::style or self::noscript or self::template)"

// compileText finds the innermost elements containing the text, plus
// button-like inputs by value.
func compileText(p schemas.TextPattern, exact bool) Compiled {
	if p.IsRegexp() || p.IsEmpty() {
		return Compiled{
			XPath:       "//*[" + textExclusions + "]",
			PostFilters: []schemas.FilterSpec{schemas.TextMatch(p, exact)},
		}
	}
	text := matchExpr(".", p.Text, exact)
	value := matchExpr("@value", p.Text, exact)
	return Compiled{XPath: fmt.Sprintf(
		"//*[%s][%s][not(.//*[%s])] | //input[@type='button' or @type='submit' or @type='reset'][%s]",
		textExclusions, text, text, value)}
}

var labelable = []string{"input[not(@type='hidden')]", "select", "textarea"}

// compileLabel covers aria-label, <label for> and an enclosing <label> in
// XPath for each labelable tag. aria-labelledby may join several ids, so
// its arm only selects candidates. The label filter then applies the
// resolver's reading of every source to the whole union.
func compileLabel(p schemas.TextPattern, exact bool) Compiled {
	if p.IsRegexp() || p.IsEmpty() {
		filter := schemas.LabelMatch(p, exact)
		if p.IsEmpty() {
			filter = schemas.HasAccessibleName(p, true)
		}
		return Compiled{
			XPath:       "//input[not(@type='hidden')] | //select | //textarea",
			PostFilters: []schemas.FilterSpec{filter},
		}
	}
	text := matchExpr(".", p.Text, exact)
	arms := make([]string, 0, 4*len(labelable))
	for _, tag := range labelable {
		arms = append(arms,
			fmt.Sprintf("//%s[%s]", tag, matchExpr("@aria-label", p.Text, exact)),
			fmt.Sprintf("//%s[@id=//label[%s]/@for]", tag, text),
			fmt.Sprintf("//label[%s]//%s", text, tag),
			fmt.Sprintf("//%s[@aria-labelledby]", tag),
		)
	}
	return Compiled{
		XPath:       strings.Join(arms, " | "),
		PostFilters: []schemas.FilterSpec{schemas.LabelMatch(p, exact)},
	}
}

func compileAttribute(attr string, p schemas.TextPattern, exact bool) Compiled {
	if p.IsRegexp() {
		return Compiled{
			XPath:       fmt.Sprintf("//*[@%s]", attr),
			PostFilters: []schemas.FilterSpec{schemas.HasAttribute(attr, p, exact)},
		}
	}
	return Compiled{XPath: fmt.Sprintf("//*[@%s][%s]", attr, matchExpr("@"+attr, p.Text, exact))}
}

func (c *Compiler) compileTestID(p schemas.TextPattern) Compiled {
	if p.IsRegexp() {
		return Compiled{
			CSS:         "[" + c.testIDAttribute + "]",
			PostFilters: []schemas.FilterSpec{schemas.HasAttribute(c.testIDAttribute, p, true)},
		}
	}
	return Compiled{CSS: fmt.Sprintf("[%s=%s]", c.testIDAttribute, cssString(p.Text))}
}

// matchExpr renders the XPath test of expr against text: equality of the
// normalized value when exact, containment otherwise.
func matchExpr(expr, text string, exact bool) string {
	lit := dom.QuoteXPath(dom.NormalizeWhitespace(text))
	if exact {
		return fmt.Sprintf("normalize-space(%s)=%s", expr, lit)
	}
	return fmt.Sprintf("contains(normalize-space(%s), %s)", expr, lit)
}

func cssString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\a `, "\r", `\d `, "\f", `\c `)
	return `"` + r.Replace(s) + `"`
}
