// internal/locator/action/dispatcher.go
package action

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/scalpel-locator/api/schemas"
	"github.com/xkilldash9x/scalpel-locator/internal/browser/dom"
	"github.com/xkilldash9x/scalpel-locator/internal/locator/framework"
)

// DefaultBlurDelay is how long fill waits before blurring the element.
const DefaultBlurDelay = 10 * time.Millisecond

// Dispatcher performs actions on already resolved elements. Each action
// scrolls the element into view, offers the event to the first framework
// adapter that claims the element and falls back to native events.
type Dispatcher struct {
	doc       *dom.Document
	adapters  []framework.Adapter
	sim       EventSimulator
	blurDelay time.Duration
	logger    *zap.Logger

	pending sync.WaitGroup
}

// Options configure a Dispatcher.
type Options struct {
	Adapters  []framework.Adapter
	Simulator EventSimulator
	BlurDelay time.Duration
	Logger    *zap.Logger
}

func NewDispatcher(doc *dom.Document, opts Options) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sim := opts.Simulator
	if sim == nil {
		sim = NewNativeSimulator(logger)
	}
	blur := opts.BlurDelay
	if blur < 0 {
		blur = 0
	}
	return &Dispatcher{
		doc:       doc,
		adapters:  opts.Adapters,
		sim:       sim,
		blurDelay: blur,
		logger:    logger.Named("action"),
	}
}

// Wait blocks until deferred blur events have fired.
func (d *Dispatcher) Wait() { d.pending.Wait() }

// Adapters returns the registered framework adapters in priority order.
func (d *Dispatcher) Adapters() []framework.Adapter { return d.adapters }

// dispatch runs one action. viaAdapter may be nil for actions no adapter
// takes part in.
func (d *Dispatcher) dispatch(ctx context.Context, action string, n *html.Node,
	viaAdapter func(framework.Adapter) (schemas.ActionResult, error), native func() error) (schemas.ActionResult, error) {
	if err := ctx.Err(); err != nil {
		return schemas.ActionResult{Error: err.Error()}, err
	}
	if !d.doc.Contains(n) {
		err := fmt.Errorf("%s %s: %w", action, dom.Describe(n), schemas.ErrDetached)
		return schemas.ActionResult{Error: err.Error()}, err
	}
	d.doc.ScrollIntoViewIfNeeded(n)

	if viaAdapter != nil {
		if a := framework.Find(d.adapters, d.doc, n); a != nil {
			res, err := viaAdapter(a)
			if err != nil {
				d.logger.Warn("Framework handler failed",
					zap.String("action", action),
					zap.String("adapter", a.Name()),
					zap.String("element", dom.Describe(n)),
					zap.Error(err))
				return res, err
			}
			if res.Success {
				d.logged(action, n, res.Method)
				return res, nil
			}
			d.logger.Debug("Adapter had no handler, falling back to native events",
				zap.String("action", action),
				zap.String("adapter", a.Name()),
				zap.String("reason", res.Error))
		}
	}

	if err := native(); err != nil {
		d.logger.Warn("Native dispatch failed",
			zap.String("action", action),
			zap.String("element", dom.Describe(n)),
			zap.Error(err))
		return schemas.ActionResult{Method: schemas.MethodNative, Error: err.Error()}, err
	}
	d.logged(action, n, schemas.MethodNative)
	return schemas.ActionResult{Success: true, Method: schemas.MethodNative}, nil
}

func (d *Dispatcher) logged(action string, n *html.Node, method string) {
	d.logger.Debug("Action dispatched",
		zap.String("action", action),
		zap.String("element", dom.Describe(n)),
		zap.String("method", method))
}

// -- Pointer actions --

func (d *Dispatcher) Click(ctx context.Context, n *html.Node) (schemas.ActionResult, error) {
	return d.dispatch(ctx, "click", n,
		func(a framework.Adapter) (schemas.ActionResult, error) { return framework.TriggerClick(ctx, a, d.doc, n) },
		func() error { return d.sim.SimulateClick(ctx, d.doc, n) })
}

func (d *Dispatcher) Dblclick(ctx context.Context, n *html.Node) (schemas.ActionResult, error) {
	return d.dispatch(ctx, "dblclick", n,
		func(a framework.Adapter) (schemas.ActionResult, error) { return a.TriggerEvent(ctx, d.doc, n, "dblclick", nil) },
		func() error { return d.sim.SimulateDoubleClick(ctx, d.doc, n) })
}

func (d *Dispatcher) Hover(ctx context.Context, n *html.Node) (schemas.ActionResult, error) {
	return d.dispatch(ctx, "hover", n,
		func(a framework.Adapter) (schemas.ActionResult, error) { return a.TriggerEvent(ctx, d.doc, n, "mouseover", nil) },
		func() error { return d.sim.SimulateHover(ctx, d.doc, n) })
}

// DispatchEvent fires a single event of type typ.
func (d *Dispatcher) DispatchEvent(ctx context.Context, n *html.Node, typ string) (schemas.ActionResult, error) {
	return d.dispatch(ctx, "dispatchEvent", n,
		func(a framework.Adapter) (schemas.ActionResult, error) { return a.TriggerEvent(ctx, d.doc, n, typ, nil) },
		func() error {
			_, err := d.doc.Dispatch(n, dom.NewEvent(typ))
			return err
		})
}

// -- Editing --

// Fill replaces the value of an input, textarea or contenteditable element.
func (d *Dispatcher) Fill(ctx context.Context, n *html.Node, value string) (schemas.ActionResult, error) {
	if !dom.IsTextInput(n) {
		err := fmt.Errorf("filling %s: %w", dom.Describe(n), schemas.ErrNotEditable)
		return schemas.ActionResult{Error: err.Error()}, err
	}
	return d.dispatch(ctx, "fill", n,
		func(a framework.Adapter) (schemas.ActionResult, error) {
			res, err := framework.TriggerInput(ctx, a, d.doc, n, value)
			if err != nil || !res.Success {
				return res, err
			}
			// Without onInput the input step already ran onChange.
			if res.Handler != "onChange" {
				if _, err := framework.TriggerChange(ctx, a, d.doc, n, value); err != nil {
					return schemas.ActionResult{Method: a.Name(), Error: err.Error()}, err
				}
			}
			if err := a.TriggerInteractionEvents(ctx, d.doc, n); err != nil {
				return schemas.ActionResult{Method: a.Name(), Error: err.Error()}, err
			}
			return res, nil
		},
		func() error { return d.nativeFill(n, value) })
}

// Clear empties an editable element.
func (d *Dispatcher) Clear(ctx context.Context, n *html.Node) (schemas.ActionResult, error) {
	return d.Fill(ctx, n, "")
}

func (d *Dispatcher) nativeFill(n *html.Node, value string) error {
	setEditableText(d.doc, n, value)
	d.doc.SetProperty(n, selectAllKey, false)
	input := dom.NewEvent("input")
	input.Data = value
	if _, err := d.doc.Dispatch(n, input); err != nil {
		return err
	}
	if _, err := d.doc.Dispatch(n, dom.NewEvent("change")); err != nil {
		return err
	}
	if err := d.doc.Focus(n); err != nil {
		return err
	}
	d.deferBlur(n)
	return nil
}

// deferBlur blurs n after the blur delay unless focus moved elsewhere.
func (d *Dispatcher) deferBlur(n *html.Node) {
	d.pending.Add(1)
	time.AfterFunc(d.blurDelay, func() {
		defer d.pending.Done()
		if d.doc.ActiveElement() != n {
			return
		}
		if err := d.doc.Blur(n); err != nil {
			d.logger.Warn("Deferred blur failed", zap.String("element", dom.Describe(n)), zap.Error(err))
		}
	})
}

// -- Keyboard --

// Press focuses n and sends one key, such as "Enter" or "Control+a".
func (d *Dispatcher) Press(ctx context.Context, n *html.Node, key string) (schemas.ActionResult, error) {
	if _, err := ParseKey(key); err != nil {
		return schemas.ActionResult{Error: err.Error()}, err
	}
	return d.dispatch(ctx, "press", n, nil, func() error {
		if err := d.doc.Focus(n); err != nil {
			return err
		}
		return d.sim.SimulateKeyPress(ctx, d.doc, n, key)
	})
}

// PressSequentially focuses n and types text one key at a time.
func (d *Dispatcher) PressSequentially(ctx context.Context, n *html.Node, text string, delay time.Duration) (schemas.ActionResult, error) {
	return d.dispatch(ctx, "pressSequentially", n, nil, func() error {
		if err := d.doc.Focus(n); err != nil {
			return err
		}
		return d.sim.SimulateTyping(ctx, d.doc, n, text, delay)
	})
}

// -- Focus --

func (d *Dispatcher) Focus(ctx context.Context, n *html.Node) (schemas.ActionResult, error) {
	return d.dispatch(ctx, "focus", n, nil, func() error { return d.doc.Focus(n) })
}

func (d *Dispatcher) Blur(ctx context.Context, n *html.Node) (schemas.ActionResult, error) {
	return d.dispatch(ctx, "blur", n, nil, func() error { return d.doc.Blur(n) })
}

// -- Checkable controls --

// Check ensures n is checked.
func (d *Dispatcher) Check(ctx context.Context, n *html.Node) (schemas.ActionResult, error) {
	return d.SetChecked(ctx, n, true)
}

// Uncheck ensures n is unchecked.
func (d *Dispatcher) Uncheck(ctx context.Context, n *html.Node) (schemas.ActionResult, error) {
	return d.SetChecked(ctx, n, false)
}

// SetChecked clicks n when its checked state differs from want. Only
// checkbox and radio inputs and elements with a checkbox, radio or switch
// role qualify.
func (d *Dispatcher) SetChecked(ctx context.Context, n *html.Node, want bool) (schemas.ActionResult, error) {
	checked, ok := d.checkedState(n)
	if !ok {
		err := fmt.Errorf("setting checked state of %s: %w", dom.Describe(n), schemas.ErrNotCheckable)
		return schemas.ActionResult{Error: err.Error()}, err
	}
	if checked == want {
		return schemas.ActionResult{Success: true, Method: schemas.MethodNative}, nil
	}
	if !want && isRadio(n) {
		err := fmt.Errorf("cannot uncheck radio button %s: %w", dom.Describe(n), schemas.ErrNotCheckable)
		return schemas.ActionResult{Error: err.Error()}, err
	}
	res, err := d.Click(ctx, n)
	if err != nil {
		return res, err
	}
	if now, _ := d.checkedState(n); now != want {
		err := fmt.Errorf("clicking %s did not change its checked state", dom.Describe(n))
		res.Success, res.Error = false, err.Error()
		return res, err
	}
	return res, nil
}

func (d *Dispatcher) checkedState(n *html.Node) (checked, ok bool) {
	switch dom.InputType(n) {
	case "checkbox", "radio":
		if dom.TagName(n) == "input" {
			return d.doc.Checked(n), true
		}
	}
	switch strings.TrimSpace(dom.AttrOr(n, "role")) {
	case "checkbox", "radio", "switch", "menuitemcheckbox", "menuitemradio":
		return dom.AttrOr(n, "aria-checked") == "true", true
	}
	return false, false
}

func isRadio(n *html.Node) bool {
	if dom.TagName(n) == "input" {
		return dom.InputType(n) == "radio"
	}
	role := strings.TrimSpace(dom.AttrOr(n, "role"))
	return role == "radio" || role == "menuitemradio"
}

// -- Select --

// SelectOption selects the options of a <select> whose value or label
// equals one of values and fires input and change. It returns the values of
// the selected options.
func (d *Dispatcher) SelectOption(ctx context.Context, n *html.Node, values []string) ([]string, schemas.ActionResult, error) {
	if dom.TagName(n) != "select" {
		err := fmt.Errorf("selecting options of %s: %w", dom.Describe(n), schemas.ErrNotSelectable)
		return nil, schemas.ActionResult{Error: err.Error()}, err
	}
	if len(values) > 1 && !dom.IsMultiple(n) {
		err := fmt.Errorf("selecting %d options of single select %s: %w", len(values), dom.Describe(n), schemas.ErrNotSelectable)
		return nil, schemas.ActionResult{Error: err.Error()}, err
	}

	var (
		chosen   []*html.Node
		selected []string
		missing  string
	)
	d.doc.View(func(*html.Node) {
		options := dom.Options(n)
		for _, want := range values {
			opt := matchOption(options, want)
			if opt == nil {
				missing = want
				return
			}
			chosen = append(chosen, opt)
			selected = append(selected, dom.OptionValue(opt))
		}
	})
	if missing != "" {
		err := fmt.Errorf("option %q in %s: %w", missing, dom.Describe(n), schemas.ErrNotFound)
		return nil, schemas.ActionResult{Error: err.Error()}, err
	}

	res, err := d.dispatch(ctx, "selectOption", n,
		func(a framework.Adapter) (schemas.ActionResult, error) {
			value := ""
			if len(selected) > 0 {
				value = selected[0]
			}
			d.doc.SelectOptions(n, chosen)
			return framework.TriggerChange(ctx, a, d.doc, n, value)
		},
		func() error {
			d.doc.SelectOptions(n, chosen)
			if _, err := d.doc.Dispatch(n, dom.NewEvent("input")); err != nil {
				return err
			}
			_, err := d.doc.Dispatch(n, dom.NewEvent("change"))
			return err
		})
	if err != nil {
		return nil, res, err
	}
	return selected, res, nil
}

// matchOption prefers an enabled option whose value matches, then one whose
// label matches.
func matchOption(options []*html.Node, want string) *html.Node {
	for _, opt := range options {
		if !dom.IsOptionDisabled(opt) && dom.OptionValue(opt) == want {
			return opt
		}
	}
	for _, opt := range options {
		if !dom.IsOptionDisabled(opt) && dom.OptionLabel(opt) == want {
			return opt
		}
	}
	return nil
}
