// browser/dom/events.go
package dom

import (
	"fmt"

	"github.com/chromedp/cdproto/input"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// Event is a DOM event in flight. Target is always forced by Dispatch.
type Event struct {
	Type          string
	Target        *html.Node
	CurrentTarget *html.Node
	RelatedTarget *html.Node
	Bubbles       bool
	Cancelable    bool
	Detail        int

	// Keyboard fields.
	Key       string
	Code      string
	KeyCode   int64
	Modifiers input.Modifier
	// Data carries the inserted text of input events.
	Data string

	defaultPrevented bool
	stopped          bool
}

// NewEvent returns a bubbling, cancelable event of the given type.
func NewEvent(typ string) *Event {
	return &Event{Type: typ, Bubbles: true, Cancelable: true}
}

// PreventDefault cancels the default action of a cancelable event.
func (e *Event) PreventDefault() {
	if e.Cancelable {
		e.defaultPrevented = true
	}
}

// DefaultPrevented reports whether PreventDefault took effect.
func (e *Event) DefaultPrevented() bool { return e.defaultPrevented }

// StopPropagation keeps the event from reaching further ancestors.
func (e *Event) StopPropagation() { e.stopped = true }

// PropagationStopped reports whether StopPropagation was called.
func (e *Event) PropagationStopped() bool { return e.stopped }

// Listener handles an event. A returned error aborts dispatch and surfaces
// to whoever dispatched the event.
type Listener func(ev *Event) error

// ListenerID identifies a registered listener for removal.
type ListenerID uint64

type listenerEntry struct {
	id ListenerID
	fn Listener
}

// AddEventListener registers fn for events of type typ on n.
func (d *Document) AddEventListener(n *html.Node, typ string, fn Listener) ListenerID {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	d.nextID++
	id := ListenerID(d.nextID)
	st := d.stateOf(n)
	if st.listeners == nil {
		st.listeners = make(map[string][]listenerEntry)
	}
	st.listeners[typ] = append(st.listeners[typ], listenerEntry{id: id, fn: fn})
	return id
}

// RemoveEventListener unregisters a listener previously added to n.
func (d *Document) RemoveEventListener(n *html.Node, typ string, id ListenerID) {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	st, ok := d.state[n]
	if !ok {
		return
	}
	entries := st.listeners[typ]
	for i, e := range entries {
		if e.id == id {
			st.listeners[typ] = append(entries[:i:i], entries[i+1:]...)
			return
		}
	}
}

// HasListeners reports whether n has any listener for typ.
func (d *Document) HasListeners(n *html.Node, typ string) bool {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	st, ok := d.state[n]
	return ok && len(st.listeners[typ]) > 0
}

func (d *Document) listenersFor(n *html.Node, typ string) []listenerEntry {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	st, ok := d.state[n]
	if !ok {
		return nil
	}
	return append([]listenerEntry(nil), st.listeners[typ]...)
}

// Dispatch delivers ev to target and, when it bubbles, to each ancestor.
// It returns false if the default action was prevented. Listeners run
// without any document lock held, so they may mutate the document.
//
// Clicks on checkboxes and radios toggle before listeners run and are rolled
// back if a listener prevents the default. Clicks on labels are forwarded to
// the labelled control.
func (d *Document) Dispatch(target *html.Node, ev *Event) (bool, error) {
	if target == nil {
		return false, fmt.Errorf("dispatching %q: nil target", ev.Type)
	}
	ev.Target = target

	var (
		toggled     bool
		prevChecked bool
		groupPrev   *html.Node
	)
	if ev.Type == "click" {
		toggled, prevChecked, groupPrev = d.preActivate(target)
	}

	path := []*html.Node{target}
	if ev.Bubbles {
		for p := target.Parent; p != nil; p = p.Parent {
			path = append(path, p)
		}
	}

	for _, node := range path {
		ev.CurrentTarget = node
		for _, l := range d.listenersFor(node, ev.Type) {
			if err := invoke(l.fn, ev); err != nil {
				return !ev.defaultPrevented, fmt.Errorf("%s listener on %s: %w", ev.Type, Describe(node), err)
			}
		}
		if ev.stopped {
			break
		}
	}
	ev.CurrentTarget = nil

	if ev.Type != "click" {
		return !ev.defaultPrevented, nil
	}

	if toggled {
		if ev.defaultPrevented {
			d.SetChecked(target, prevChecked)
			if groupPrev != nil {
				d.SetChecked(groupPrev, true)
			}
			return false, nil
		}
		if err := d.fireChange(target); err != nil {
			return true, err
		}
		return true, nil
	}
	if ev.defaultPrevented {
		return false, nil
	}
	if control := d.labelControl(target); control != nil {
		d.logger.Debug("Forwarding label click to control.", zap.String("control", Describe(control)))
		if _, err := d.Dispatch(control, &Event{Type: "click", Bubbles: true, Cancelable: true, Detail: ev.Detail}); err != nil {
			return true, err
		}
	}
	return true, nil
}

// preActivate applies the checkbox/radio toggle ahead of click listeners.
func (d *Document) preActivate(target *html.Node) (toggled, prevChecked bool, groupPrev *html.Node) {
	if IsDisabled(target) {
		return false, false, nil
	}
	switch InputType(target) {
	case "checkbox":
		prevChecked = d.Checked(target)
		d.SetChecked(target, !prevChecked)
		return true, prevChecked, nil
	case "radio":
		prevChecked = d.Checked(target)
		if prevChecked {
			return false, true, nil
		}
		for _, other := range radioGroup(target) {
			if other != target && d.Checked(other) {
				groupPrev = other
			}
		}
		d.SetChecked(target, true)
		return true, false, groupPrev
	}
	return false, false, nil
}

func (d *Document) fireChange(target *html.Node) error {
	if _, err := d.Dispatch(target, &Event{Type: "input", Bubbles: true}); err != nil {
		return err
	}
	_, err := d.Dispatch(target, &Event{Type: "change", Bubbles: true})
	return err
}

// labelControl returns the control activated by a click that reached a
// <label>, or nil when the click target is not inside a label or already
// is (or is inside) the control.
func (d *Document) labelControl(target *html.Node) *html.Node {
	label := target
	if TagName(label) != "label" {
		label = ClosestAncestor(target, func(p *html.Node) bool { return TagName(p) == "label" })
	}
	if label == nil {
		return nil
	}
	var control *html.Node
	d.View(func(root *html.Node) {
		control = LabeledControl(root, label)
	})
	if control == nil || control == target || IsAncestor(control, target) {
		return nil
	}
	if isInteractive(target) && target != label {
		return nil
	}
	return control
}

func isInteractive(n *html.Node) bool {
	switch TagName(n) {
	case "a", "button", "input", "select", "textarea":
		return true
	}
	return false
}

// LabeledControl resolves the control a label is associated with: the
// element named by its for attribute, else its first labelable descendant.
func LabeledControl(root, label *html.Node) *html.Node {
	if id, ok := Attr(label, "for"); ok {
		el := ElementByID(root, id)
		if IsLabelable(el) {
			return el
		}
		return nil
	}
	return FindFirst(label, IsLabelable)
}

// IsLabelable reports whether an element can be associated with a <label>.
func IsLabelable(n *html.Node) bool {
	switch TagName(n) {
	case "button", "meter", "output", "progress", "select", "textarea":
		return true
	case "input":
		return InputType(n) != "hidden"
	}
	return false
}

// invoke runs a listener, turning a panic into an error.
func invoke(fn Listener, ev *Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panicked: %v", r)
		}
	}()
	return fn(ev)
}
