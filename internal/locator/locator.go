// internal/locator/locator.go
package locator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/scalpel-locator/api/schemas"
	"github.com/xkilldash9x/scalpel-locator/internal/browser/dom"
	"github.com/xkilldash9x/scalpel-locator/internal/browser/jsexec"
	"github.com/xkilldash9x/scalpel-locator/internal/locator/aria"
	"github.com/xkilldash9x/scalpel-locator/internal/locator/query"
	"github.com/xkilldash9x/scalpel-locator/internal/locator/selector"
)

// Locator is a lazily evaluated handle to zero or more elements. It never
// changes after construction; every chaining method returns a new Locator.
type Locator struct {
	page   *Page
	target *query.Target
}

// String renders the locator in chained selector notation.
func (l *Locator) String() string { return query.Describe(l.target) }

// Selector is an alias of String.
func (l *Locator) Selector() string { return l.String() }

// Page returns the page the locator belongs to.
func (l *Locator) Page() *Page { return l.page }

// Compile returns the CSS or XPath of the locator's strategy chain. Locator
// filters are not part of the expression. A locator scoped under a filtered
// parent compiles relative to that parent and is reported as approximate.
func (l *Locator) Compile() (selector.Compiled, error) {
	if l.target.Strategy == nil {
		return selector.Compiled{}, fmt.Errorf("%s: no query to compile", l)
	}
	c, err := l.page.compiler.Compile(l.target.Strategy)
	if err != nil {
		return selector.Compiled{}, fmt.Errorf("%s: %w", l, err)
	}
	if l.target.Scope != nil {
		c.Approximate = true
	}
	return c, nil
}

// -- Chaining --

// child scopes step under l. Without filters or a pinned element the parent
// stays structural and the strategies merge; otherwise l's filtered result
// becomes the search root.
func (l *Locator) child(step *schemas.QueryStrategy) *Locator {
	t := l.target
	if len(t.Filters) == 0 && t.Pinned == nil && t.Strategy != nil {
		return &Locator{page: l.page, target: &query.Target{
			Strategy: step.WithParent(t.Strategy),
			Scope:    t.Scope,
		}}
	}
	return &Locator{page: l.page, target: &query.Target{Strategy: step, Scope: t}}
}

func (l *Locator) withFilters(filters ...schemas.FilterSpec) *Locator {
	t := *l.target
	t.Filters = append(append([]schemas.FilterSpec(nil), l.target.Filters...), filters...)
	return &Locator{page: l.page, target: &t}
}

func (l *Locator) Locator(sel string) *Locator {
	return l.child(&schemas.QueryStrategy{Kind: schemas.KindSelector, Selector: sel})
}

func (l *Locator) GetByRole(role string, opts *schemas.RoleOptions) *Locator {
	return l.child(roleStrategy(role, opts))
}

func (l *Locator) GetByText(text schemas.TextPattern, exact bool) *Locator {
	return l.child(patternStrategy(schemas.KindText, text, exact))
}

func (l *Locator) GetByLabel(text schemas.TextPattern, exact bool) *Locator {
	return l.child(patternStrategy(schemas.KindLabel, text, exact))
}

func (l *Locator) GetByPlaceholder(text schemas.TextPattern, exact bool) *Locator {
	return l.child(patternStrategy(schemas.KindPlaceholder, text, exact))
}

func (l *Locator) GetByTestID(id schemas.TextPattern) *Locator {
	return l.child(patternStrategy(schemas.KindTestID, id, true))
}

func (l *Locator) GetByTitle(text schemas.TextPattern, exact bool) *Locator {
	return l.child(patternStrategy(schemas.KindTitle, text, exact))
}

func (l *Locator) GetByAltText(text schemas.TextPattern, exact bool) *Locator {
	return l.child(patternStrategy(schemas.KindAltText, text, exact))
}

// FilterOptions narrows a locator. Set fields apply in the order HasText,
// HasNotText, HasAccessibleName, then the position.
type FilterOptions struct {
	HasText           *schemas.TextPattern
	HasNotText        *schemas.TextPattern
	HasAccessibleName *schemas.TextPattern
	Exact             bool
	Position          *int
	Last              bool
}

// Filter returns a locator further narrowed by opts.
func (l *Locator) Filter(opts FilterOptions) *Locator {
	var filters []schemas.FilterSpec
	if opts.HasText != nil {
		filters = append(filters, schemas.HasText(*opts.HasText, opts.Exact))
	}
	if opts.HasNotText != nil {
		filters = append(filters, schemas.HasNotText(*opts.HasNotText, opts.Exact))
	}
	if opts.HasAccessibleName != nil {
		filters = append(filters, schemas.HasAccessibleName(*opts.HasAccessibleName, opts.Exact))
	}
	switch {
	case opts.Last:
		filters = append(filters, schemas.LastPosition())
	case opts.Position != nil:
		filters = append(filters, schemas.Nth(*opts.Position))
	}
	return l.withFilters(filters...)
}

func (l *Locator) First() *Locator { return l.withFilters(schemas.Nth(0)) }

func (l *Locator) Last() *Locator { return l.withFilters(schemas.LastPosition()) }

// Nth picks the element at index; negative indexes count from the end.
func (l *Locator) Nth(index int) *Locator { return l.withFilters(schemas.Nth(index)) }

// -- Resolution --

// resolve runs the target once. A pinned element that left the document
// reports ErrDetached.
func (l *Locator) resolve(ctx context.Context) ([]*html.Node, error) {
	nodes, err := l.page.engine.Resolve(ctx, l.target)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		for t := l.target; t != nil; t = t.Scope {
			if t.Pinned != nil && !l.page.doc.Contains(t.Pinned) {
				return nil, fmt.Errorf("%s: %w", l, schemas.ErrDetached)
			}
		}
	}
	return nodes, nil
}

// Count returns the number of matching elements without waiting.
func (l *Locator) Count(ctx context.Context) (int, error) {
	nodes, err := l.resolve(ctx)
	if err != nil {
		return 0, err
	}
	return len(nodes), nil
}

// All returns one locator per current match, each pinned to its element.
func (l *Locator) All(ctx context.Context) ([]*Locator, error) {
	nodes, err := l.resolve(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*Locator, len(nodes))
	for i, n := range nodes {
		out[i] = &Locator{page: l.page, target: &query.Target{Pinned: n}}
	}
	return out, nil
}

// WaitForOptions selects the awaited state. Zero values mean visible and
// the page default timeout.
type WaitForOptions struct {
	State   schemas.WaitState
	Timeout time.Duration
}

// WaitFor blocks until the first match reaches the state and returns it.
// The element is nil for the hidden and detached states when nothing
// matches.
func (l *Locator) WaitFor(ctx context.Context, opts WaitForOptions) (*html.Node, error) {
	l.page.logger.Debug("Locator:WaitFor", zap.String("selector", l.String()), zap.String("state", string(opts.State)))
	return l.page.waiter.For(ctx, l.String(), l.resolve, opts.State, opts.Timeout)
}

// GetElement waits for the first match to be attached and returns it.
func (l *Locator) GetElement(ctx context.Context) (*html.Node, error) {
	return l.page.waiter.For(ctx, l.String(), l.resolve, schemas.StateAttached, 0)
}

// -- Actions --

func (l *Locator) clickable(ctx context.Context) (*html.Node, error) {
	return l.page.waiter.ForClickable(ctx, l.String(), l.resolve, 0)
}

func (l *Locator) visible(ctx context.Context) (*html.Node, error) {
	return l.page.waiter.For(ctx, l.String(), l.resolve, schemas.StateVisible, 0)
}

func (l *Locator) act(ctx context.Context, name string, await func(context.Context) (*html.Node, error),
	do func(*html.Node) (schemas.ActionResult, error)) (schemas.ActionResult, error) {
	l.page.logger.Debug("Locator:"+name, zap.String("selector", l.String()))
	n, err := await(ctx)
	if err != nil {
		return schemas.ActionResult{}, fmt.Errorf("%s: %w", name, err)
	}
	res, err := do(n)
	if err != nil {
		return res, fmt.Errorf("%s %s: %w", name, l, err)
	}
	return res, nil
}

func (l *Locator) Click(ctx context.Context) (schemas.ActionResult, error) {
	return l.act(ctx, "click", l.clickable, func(n *html.Node) (schemas.ActionResult, error) {
		return l.page.dispatcher.Click(ctx, n)
	})
}

func (l *Locator) Dblclick(ctx context.Context) (schemas.ActionResult, error) {
	return l.act(ctx, "dblclick", l.clickable, func(n *html.Node) (schemas.ActionResult, error) {
		return l.page.dispatcher.Dblclick(ctx, n)
	})
}

func (l *Locator) Hover(ctx context.Context) (schemas.ActionResult, error) {
	return l.act(ctx, "hover", l.visible, func(n *html.Node) (schemas.ActionResult, error) {
		return l.page.dispatcher.Hover(ctx, n)
	})
}

// Fill replaces the value of an editable element and fires input and change.
func (l *Locator) Fill(ctx context.Context, value string) (schemas.ActionResult, error) {
	return l.act(ctx, "fill", l.editable, func(n *html.Node) (schemas.ActionResult, error) {
		return l.page.dispatcher.Fill(ctx, n, value)
	})
}

func (l *Locator) Clear(ctx context.Context) (schemas.ActionResult, error) {
	return l.act(ctx, "clear", l.editable, func(n *html.Node) (schemas.ActionResult, error) {
		return l.page.dispatcher.Clear(ctx, n)
	})
}

func (l *Locator) editable(ctx context.Context) (*html.Node, error) {
	return l.page.waiter.ForEditable(ctx, l.String(), l.resolve, 0)
}

func (l *Locator) Check(ctx context.Context) (schemas.ActionResult, error) {
	return l.SetChecked(ctx, true)
}

func (l *Locator) Uncheck(ctx context.Context) (schemas.ActionResult, error) {
	return l.SetChecked(ctx, false)
}

func (l *Locator) SetChecked(ctx context.Context, checked bool) (schemas.ActionResult, error) {
	name := "uncheck"
	if checked {
		name = "check"
	}
	return l.act(ctx, name, l.clickable, func(n *html.Node) (schemas.ActionResult, error) {
		return l.page.dispatcher.SetChecked(ctx, n, checked)
	})
}

// SelectOption selects options by value or label and returns the values now
// selected along with how the change was dispatched.
func (l *Locator) SelectOption(ctx context.Context, values ...string) ([]string, schemas.ActionResult, error) {
	var selected []string
	res, err := l.act(ctx, "selectOption", l.clickable, func(n *html.Node) (schemas.ActionResult, error) {
		var (
			res schemas.ActionResult
			err error
		)
		selected, res, err = l.page.dispatcher.SelectOption(ctx, n, values)
		return res, err
	})
	return selected, res, err
}

// Press sends one key description such as "Enter" or "Control+a".
func (l *Locator) Press(ctx context.Context, key string) (schemas.ActionResult, error) {
	return l.act(ctx, "press", l.visible, func(n *html.Node) (schemas.ActionResult, error) {
		return l.page.dispatcher.Press(ctx, n, key)
	})
}

// PressSequentially types text one key at a time. A zero delay uses the
// configured typing delay.
func (l *Locator) PressSequentially(ctx context.Context, text string, delay time.Duration) (schemas.ActionResult, error) {
	if delay <= 0 {
		delay = l.page.cfg.TypingDelay
	}
	return l.act(ctx, "pressSequentially", l.visible, func(n *html.Node) (schemas.ActionResult, error) {
		return l.page.dispatcher.PressSequentially(ctx, n, text, delay)
	})
}

func (l *Locator) Focus(ctx context.Context) (schemas.ActionResult, error) {
	return l.act(ctx, "focus", l.GetElement, func(n *html.Node) (schemas.ActionResult, error) {
		return l.page.dispatcher.Focus(ctx, n)
	})
}

func (l *Locator) Blur(ctx context.Context) (schemas.ActionResult, error) {
	return l.act(ctx, "blur", l.GetElement, func(n *html.Node) (schemas.ActionResult, error) {
		return l.page.dispatcher.Blur(ctx, n)
	})
}

// DispatchEvent fires a bubbling, cancelable event of type typ on the first
// attached match.
func (l *Locator) DispatchEvent(ctx context.Context, typ string) (schemas.ActionResult, error) {
	return l.act(ctx, "dispatchEvent", l.GetElement, func(n *html.Node) (schemas.ActionResult, error) {
		return l.page.dispatcher.DispatchEvent(ctx, n, typ)
	})
}

// -- Predicates --

// first resolves once without waiting.
func (l *Locator) first(ctx context.Context) (*html.Node, bool) {
	nodes, err := l.resolve(ctx)
	if err != nil || len(nodes) == 0 {
		return nil, false
	}
	return nodes[0], true
}

func (l *Locator) IsVisible(ctx context.Context) bool {
	n, ok := l.first(ctx)
	return ok && l.page.waiter.Checker().IsVisible(n)
}

// IsHidden is true when nothing matches or the first match is not visible.
func (l *Locator) IsHidden(ctx context.Context) bool {
	n, ok := l.first(ctx)
	return !ok || !l.page.waiter.Checker().IsVisible(n)
}

func (l *Locator) IsEnabled(ctx context.Context) bool {
	n, ok := l.first(ctx)
	return ok && l.page.waiter.Checker().IsEnabled(n)
}

func (l *Locator) IsDisabled(ctx context.Context) bool {
	n, ok := l.first(ctx)
	return ok && !l.page.waiter.Checker().IsEnabled(n)
}

func (l *Locator) IsEditable(ctx context.Context) bool {
	n, ok := l.first(ctx)
	return ok && l.page.waiter.Checker().IsEditable(n)
}

// IsChecked covers native checkboxes and radios and aria-checked.
func (l *Locator) IsChecked(ctx context.Context) bool {
	n, ok := l.first(ctx)
	if !ok {
		return false
	}
	var checked bool
	l.page.doc.View(func(*html.Node) {
		checked = aria.NewResolver(l.page.doc, nil).IsChecked(n)
	})
	return checked
}

// -- Content --

// TextContent returns the raw text of the first attached match.
func (l *Locator) TextContent(ctx context.Context) (string, error) {
	return l.read(ctx, func(_ *html.Node, sel *goquery.Selection) (string, error) {
		return sel.Text(), nil
	})
}

// InnerText returns the rendered text, skipping hidden subtrees.
func (l *Locator) InnerText(ctx context.Context) (string, error) {
	return l.read(ctx, func(root *html.Node, sel *goquery.Selection) (string, error) {
		r := aria.NewResolver(l.page.doc, l.page.engine.Styles().Snapshot(root))
		return r.VisibleText(sel.Get(0)), nil
	})
}

func (l *Locator) InnerHTML(ctx context.Context) (string, error) {
	return l.read(ctx, func(_ *html.Node, sel *goquery.Selection) (string, error) {
		return sel.Html()
	})
}

// GetAttribute returns the attribute value and whether it is present.
func (l *Locator) GetAttribute(ctx context.Context, name string) (string, bool, error) {
	var present bool
	v, err := l.read(ctx, func(_ *html.Node, sel *goquery.Selection) (string, error) {
		v, ok := sel.Attr(name)
		present = ok
		return v, nil
	})
	return v, present, err
}

// InputValue returns the live value of an input, textarea or select.
func (l *Locator) InputValue(ctx context.Context) (string, error) {
	n, err := l.GetElement(ctx)
	if err != nil {
		return "", fmt.Errorf("inputValue: %w", err)
	}
	switch dom.TagName(n) {
	case "input", "textarea", "select":
		return l.page.doc.Value(n), nil
	}
	return "", fmt.Errorf("inputValue %s: %w: not an input, textarea or select", l, schemas.ErrNotEditable)
}

func (l *Locator) read(ctx context.Context, fn func(root *html.Node, sel *goquery.Selection) (string, error)) (string, error) {
	n, err := l.GetElement(ctx)
	if err != nil {
		return "", err
	}
	var out string
	l.page.doc.View(func(root *html.Node) {
		out, err = fn(root, goquery.NewDocumentFromNode(n).Selection)
	})
	return out, err
}

// -- Evaluation --

// Evaluate calls script with the first attached match and arg.
func (l *Locator) Evaluate(ctx context.Context, script string, arg any) (any, error) {
	n, err := l.GetElement(ctx)
	if err != nil {
		return nil, err
	}
	return l.page.js().Invoke(ctx, script, evalArgs(n, arg)...)
}

// EvaluateAll calls script with every current match, without waiting.
func (l *Locator) EvaluateAll(ctx context.Context, script string, arg any) (any, error) {
	nodes, err := l.resolve(ctx)
	if err != nil {
		return nil, err
	}
	return l.page.js().Invoke(ctx, script, evalArgs(nodes, arg)...)
}

// EvaluateHandle is Evaluate but keeps the result inside the runtime.
func (l *Locator) EvaluateHandle(ctx context.Context, script string, arg any) (*jsexec.Handle, error) {
	n, err := l.GetElement(ctx)
	if err != nil {
		return nil, err
	}
	return l.page.js().InvokeHandle(ctx, script, evalArgs(n, arg)...)
}

func evalArgs(target, arg any) []any {
	if arg == nil {
		return []any{target}
	}
	return []any{target, arg}
}

// IsTimeout reports whether err came from an exhausted wait.
func IsTimeout(err error) bool { return errors.Is(err, schemas.ErrTimeout) }
