// browser/dom/state.go
package dom

import (
	"sort"
	"strings"

	"golang.org/x/net/html"
)

type nodeState struct {
	value     *string
	checked   *bool
	selected  *bool
	props     map[string]any
	listeners map[string][]listenerEntry
}

// stateOf returns the state record of n, creating it. Caller holds stateMu.
func (d *Document) stateOf(n *html.Node) *nodeState {
	st, ok := d.state[n]
	if !ok {
		st = &nodeState{}
		d.state[n] = st
	}
	return st
}

// -- Expando properties --

// SetProperty attaches an arbitrary runtime property to n, the way UI
// frameworks hang private instance handles off DOM elements.
func (d *Document) SetProperty(n *html.Node, key string, value any) {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	st := d.stateOf(n)
	if st.props == nil {
		st.props = make(map[string]any)
	}
	st.props[key] = value
}

// Property returns a runtime property of n.
func (d *Document) Property(n *html.Node, key string) (any, bool) {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	st, ok := d.state[n]
	if !ok || st.props == nil {
		return nil, false
	}
	v, ok := st.props[key]
	return v, ok
}

// PropertyKeys lists the runtime property keys of n in sorted order.
func (d *Document) PropertyKeys(n *html.Node) []string {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	st, ok := d.state[n]
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(st.props))
	for k := range st.props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// -- Form state --

// Value returns the live value of a form control. Inputs start from their
// value attribute, textareas from their text, selects from the first
// selected option.
func (d *Document) Value(n *html.Node) string {
	if TagName(n) == "select" {
		opts := d.SelectedOptions(n)
		if len(opts) == 0 {
			return ""
		}
		return OptionValue(opts[0])
	}

	d.stateMu.Lock()
	st, ok := d.state[n]
	if ok && st.value != nil {
		v := *st.value
		d.stateMu.Unlock()
		return v
	}
	d.stateMu.Unlock()

	switch TagName(n) {
	case "textarea":
		return TextContent(n)
	case "input":
		if v, ok := Attr(n, "value"); ok {
			return v
		}
		if t := InputType(n); t == "checkbox" || t == "radio" {
			return "on"
		}
		return ""
	case "option":
		return OptionValue(n)
	}
	return AttrOr(n, "value")
}

// SetValue sets the live value of a control. For a <select> the options
// whose value equals v become the selection.
func (d *Document) SetValue(n *html.Node, v string) {
	if TagName(n) == "select" {
		var match []*html.Node
		for _, opt := range Options(n) {
			if OptionValue(opt) == v {
				match = append(match, opt)
				break
			}
		}
		d.SelectOptions(n, match)
		return
	}
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	d.stateOf(n).value = &v
}

// Checked returns the live checkedness of a checkbox or radio input.
func (d *Document) Checked(n *html.Node) bool {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	if st, ok := d.state[n]; ok && st.checked != nil {
		return *st.checked
	}
	return HasAttr(n, "checked")
}

// SetChecked sets checkedness. Checking a radio unchecks the rest of its
// group (same name within the same form, or the same tree when formless).
func (d *Document) SetChecked(n *html.Node, checked bool) {
	var group []*html.Node
	if checked && InputType(n) == "radio" {
		group = radioGroup(n)
	}

	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	for _, other := range group {
		if other != n {
			f := false
			d.stateOf(other).checked = &f
		}
	}
	d.stateOf(n).checked = &checked
}

func radioGroup(n *html.Node) []*html.Node {
	name := AttrOr(n, "name")
	if name == "" {
		return nil
	}
	scope := ClosestAncestor(n, func(p *html.Node) bool { return TagName(p) == "form" })
	inForm := scope != nil
	if scope == nil {
		scope = RootOf(n)
	}
	return FindAll(scope, func(x *html.Node) bool {
		if InputType(x) != "radio" || AttrOr(x, "name") != name {
			return false
		}
		// A formless radio only groups with other formless radios.
		if !inForm {
			return ClosestAncestor(x, func(p *html.Node) bool { return TagName(p) == "form" }) == nil
		}
		return true
	})
}

// Options returns the <option> elements of a select, including those in optgroups.
func Options(sel *html.Node) []*html.Node {
	return FindAll(sel, func(n *html.Node) bool { return TagName(n) == "option" })
}

// OptionValue is the value attribute of an option, or its trimmed text when absent.
func OptionValue(opt *html.Node) string {
	if v, ok := Attr(opt, "value"); ok {
		return v
	}
	return NormalizeWhitespace(TextContent(opt))
}

// OptionLabel is the visible text of an option.
func OptionLabel(opt *html.Node) string {
	if l, ok := Attr(opt, "label"); ok && l != "" {
		return l
	}
	return NormalizeWhitespace(TextContent(opt))
}

// IsOptionDisabled reports whether an option or its optgroup is disabled.
func IsOptionDisabled(opt *html.Node) bool {
	if HasAttr(opt, "disabled") {
		return true
	}
	p := opt.Parent
	return p != nil && TagName(p) == "optgroup" && HasAttr(p, "disabled")
}

// IsMultiple reports whether a select accepts several selected options.
func IsMultiple(sel *html.Node) bool { return HasAttr(sel, "multiple") }

// Selected reports whether an option is currently selected.
func (d *Document) Selected(opt *html.Node) bool {
	sel := ClosestAncestor(opt, func(p *html.Node) bool { return TagName(p) == "select" })
	if sel == nil {
		return d.explicitSelected(opt)
	}
	for _, o := range d.SelectedOptions(sel) {
		if o == opt {
			return true
		}
	}
	return false
}

func (d *Document) explicitSelected(opt *html.Node) bool {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	if st, ok := d.state[opt]; ok && st.selected != nil {
		return *st.selected
	}
	return HasAttr(opt, "selected")
}

// SelectedOptions returns the selected options of a select in document
// order. A single select with nothing explicitly selected reports its first
// enabled option, mirroring browser behavior.
func (d *Document) SelectedOptions(sel *html.Node) []*html.Node {
	opts := Options(sel)
	var out []*html.Node
	for _, o := range opts {
		if d.explicitSelected(o) {
			out = append(out, o)
		}
	}
	if IsMultiple(sel) {
		return out
	}
	if len(out) > 0 {
		// Only the last explicitly selected option wins in a single select.
		return out[len(out)-1:]
	}
	for _, o := range opts {
		if !IsOptionDisabled(o) {
			return []*html.Node{o}
		}
	}
	return nil
}

// SelectOptions makes exactly the given options selected.
func (d *Document) SelectOptions(sel *html.Node, chosen []*html.Node) {
	want := make(map[*html.Node]bool, len(chosen))
	for _, c := range chosen {
		want[c] = true
	}
	opts := Options(sel)

	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	for _, o := range opts {
		v := want[o]
		d.stateOf(o).selected = &v
	}
}

// IsTextInput reports whether n accepts free-form text.
func IsTextInput(n *html.Node) bool {
	switch TagName(n) {
	case "textarea":
		return true
	case "input":
		switch InputType(n) {
		case "hidden", "submit", "button", "reset", "image", "checkbox", "radio", "file", "range", "color":
			return false
		}
		return true
	}
	return IsContentEditable(n)
}

// IsContentEditable reports whether n or an ancestor enables contenteditable.
func IsContentEditable(n *html.Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if !IsElement(cur) {
			continue
		}
		if v, ok := Attr(cur, "contenteditable"); ok {
			v = strings.TrimSpace(strings.ToLower(v))
			return v == "" || v == "true" || v == "plaintext-only"
		}
	}
	return false
}

// IsDisabled reports native disabledness: the attribute on a form control,
// or an enclosing disabled <fieldset> (outside its first <legend>).
func IsDisabled(n *html.Node) bool {
	switch TagName(n) {
	case "button", "input", "select", "textarea", "option", "optgroup", "fieldset":
	default:
		return false
	}
	if HasAttr(n, "disabled") {
		return true
	}
	if TagName(n) == "option" {
		return IsOptionDisabled(n)
	}
	for p := n.Parent; p != nil; p = p.Parent {
		if TagName(p) == "fieldset" && HasAttr(p, "disabled") {
			legend := FindFirst(p, func(x *html.Node) bool { return TagName(x) == "legend" })
			if legend == nil || !(legend == n || IsAncestor(legend, n)) {
				return true
			}
		}
	}
	return false
}
