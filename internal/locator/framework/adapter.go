// internal/locator/framework/adapter.go
package framework

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/scalpel-locator/api/schemas"
	"github.com/xkilldash9x/scalpel-locator/internal/browser/dom"
)

// Adapter recognizes elements owned by a UI component runtime and drives
// that runtime's own handlers instead of raw DOM events.
type Adapter interface {
	Name() string
	IsComponentOf(doc *dom.Document, n *html.Node) bool
	// TriggerEvent invokes the component handler for eventType. A missing
	// handler is reported through ActionResult.Success, not as an error;
	// the error return is reserved for a handler that failed.
	TriggerEvent(ctx context.Context, doc *dom.Document, n *html.Node, eventType string, value *string) (schemas.ActionResult, error)
	// TriggerInteractionEvents runs the focus and blur handlers so the
	// component records the element as touched.
	TriggerInteractionEvents(ctx context.Context, doc *dom.Document, n *html.Node) error
}

// TriggerClick is shorthand for a click through a.
func TriggerClick(ctx context.Context, a Adapter, doc *dom.Document, n *html.Node) (schemas.ActionResult, error) {
	return a.TriggerEvent(ctx, doc, n, "click", nil)
}

// TriggerInput sets value and fires the input handler through a.
func TriggerInput(ctx context.Context, a Adapter, doc *dom.Document, n *html.Node, value string) (schemas.ActionResult, error) {
	return a.TriggerEvent(ctx, doc, n, "input", &value)
}

// TriggerChange sets value and fires the change handler through a.
func TriggerChange(ctx context.Context, a Adapter, doc *dom.Document, n *html.Node, value string) (schemas.ActionResult, error) {
	return a.TriggerEvent(ctx, doc, n, "change", &value)
}

// -- Synthetic events --

// SyntheticEvent is the event object handed to component handlers.
type SyntheticEvent struct {
	Type          string
	Target        *html.Node
	CurrentTarget *html.Node
	Bubbles       bool
	Cancelable    bool
	// Value mirrors target.value for input and change events.
	Value string

	defaultPrevented   bool
	propagationStopped bool
}

func newSyntheticEvent(typ string, target *html.Node) *SyntheticEvent {
	return &SyntheticEvent{Type: typ, Target: target, CurrentTarget: target, Bubbles: true, Cancelable: true}
}

func (e *SyntheticEvent) PreventDefault() {
	if e.Cancelable {
		e.defaultPrevented = true
	}
}

func (e *SyntheticEvent) StopPropagation() { e.propagationStopped = true }

func (e *SyntheticEvent) IsDefaultPrevented() bool { return e.defaultPrevented }

func (e *SyntheticEvent) IsPropagationStopped() bool { return e.propagationStopped }

// Handler is a component event handler.
type Handler func(ev *SyntheticEvent) error

// asHandler accepts the handler shapes components are registered with.
func asHandler(v any) (Handler, bool) {
	switch fn := v.(type) {
	case Handler:
		return fn, fn != nil
	case func(*SyntheticEvent) error:
		return fn, fn != nil
	case func(*SyntheticEvent):
		if fn == nil {
			return nil, false
		}
		return func(ev *SyntheticEvent) error { fn(ev); return nil }, true
	case func():
		if fn == nil {
			return nil, false
		}
		return func(*SyntheticEvent) error { fn(); return nil }, true
	}
	return nil, false
}

// call runs h, turning a panic into an error.
func call(h Handler, ev *SyntheticEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h(ev)
}

// handlerProps lists the prop names that may handle a DOM event type, most
// specific first.
func handlerProps(eventType string) []string {
	switch eventType {
	case "dblclick":
		return []string{"onDoubleClick", "onDblclick"}
	case "input":
		return []string{"onInput", "onChange"}
	case "mouseover":
		return []string{"onMouseOver"}
	case "mouseenter":
		return []string{"onMouseEnter"}
	case "keydown":
		return []string{"onKeyDown"}
	case "keyup":
		return []string{"onKeyUp"}
	case "keypress":
		return []string{"onKeyPress"}
	}
	if eventType == "" {
		return nil
	}
	return []string{"on" + strings.ToUpper(eventType[:1]) + eventType[1:]}
}

// -- Registry --

// Factory builds an adapter.
type Factory func(logger *zap.Logger) Adapter

var registry = map[string]Factory{
	"react": func(l *zap.Logger) Adapter { return NewReact(l) },
	"vue":   func(l *zap.Logger) Adapter { return NewVue(l) },
}

// Names lists the registered adapter names.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup builds the named adapters in the given priority order.
func Lookup(logger *zap.Logger, names ...string) ([]Adapter, error) {
	adapters := make([]Adapter, 0, len(names))
	for _, name := range names {
		factory, ok := registry[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("unknown framework adapter %q (known: %s)", name, strings.Join(Names(), ", "))
		}
		adapters = append(adapters, factory(logger))
	}
	return adapters, nil
}

// Find returns the first adapter that claims n, or nil.
func Find(adapters []Adapter, doc *dom.Document, n *html.Node) Adapter {
	for _, a := range adapters {
		if a.IsComponentOf(doc, n) {
			return a
		}
	}
	return nil
}

// runHandlers invokes the first handler found for eventType. A nil handler
// lookup produces an unsuccessful result for the caller to fall back on.
func runHandlers(ctx context.Context, name string, doc *dom.Document, n *html.Node, eventType string, value *string,
	find func(prop string) (Handler, *html.Node)) (schemas.ActionResult, error) {
	if err := ctx.Err(); err != nil {
		return schemas.ActionResult{Method: name, Error: err.Error()}, err
	}
	for _, prop := range handlerProps(eventType) {
		h, owner := find(prop)
		if h == nil {
			continue
		}
		ev := newSyntheticEvent(eventType, n)
		if owner != nil {
			ev.CurrentTarget = owner
		}
		if value != nil {
			doc.SetValue(n, *value)
			ev.Value = *value
		}
		if err := call(h, ev); err != nil {
			return schemas.ActionResult{Method: name, Error: err.Error()},
				fmt.Errorf("%s %s handler on %s: %w", name, prop, dom.Describe(n), err)
		}
		return schemas.ActionResult{Success: true, Method: name, Handler: prop}, nil
	}
	return schemas.ActionResult{Method: name, Error: fmt.Sprintf("no %s handler found", eventType)}, nil
}

// interact runs the focus and blur handlers, ignoring missing ones.
func interact(ctx context.Context, a Adapter, doc *dom.Document, n *html.Node) error {
	for _, typ := range []string{"focus", "blur"} {
		if _, err := a.TriggerEvent(ctx, doc, n, typ, nil); err != nil {
			return err
		}
	}
	return nil
}

// propsWithPrefix returns the first expando property of n whose key starts
// with one of prefixes. Keys are visited in sorted order.
func propsWithPrefix(doc *dom.Document, n *html.Node, prefixes ...string) (string, any, bool) {
	for _, key := range doc.PropertyKeys(n) {
		for _, p := range prefixes {
			if strings.HasPrefix(key, p) {
				v, _ := doc.Property(n, key)
				return key, v, true
			}
		}
	}
	return "", nil, false
}
