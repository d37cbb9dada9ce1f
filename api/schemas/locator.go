// Package schemas holds the value types shared by the locator engine: query
// strategies, filters, wait states, action results and sentinel errors.
package schemas

import (
	"errors"
	"fmt"
	"regexp"
)

// -- Query Strategy Schemas --

// StrategyKind identifies how a single query step finds elements.
type StrategyKind string

const (
	KindSelector    StrategyKind = "selector"
	KindRole        StrategyKind = "role"
	KindText        StrategyKind = "text"
	KindLabel       StrategyKind = "label"
	KindPlaceholder StrategyKind = "placeholder"
	KindTestID      StrategyKind = "testId"
	KindTitle       StrategyKind = "title"
	KindAltText     StrategyKind = "altText"
)

// TextPattern is either a literal string or a regular expression.
// The zero value is the empty literal.
type TextPattern struct {
	Text   string
	Regexp *regexp.Regexp
}

// Text builds a literal pattern.
func Text(s string) TextPattern { return TextPattern{Text: s} }

// Regexp builds a regular expression pattern.
func Regexp(re *regexp.Regexp) TextPattern { return TextPattern{Regexp: re} }

// IsRegexp reports whether the pattern is a regular expression.
func (p TextPattern) IsRegexp() bool { return p.Regexp != nil }

// IsEmpty reports whether the pattern is the empty literal.
func (p TextPattern) IsEmpty() bool { return p.Regexp == nil && p.Text == "" }

// String renders the pattern the way it is written in locator descriptions.
func (p TextPattern) String() string {
	if p.Regexp != nil {
		return "/" + p.Regexp.String() + "/"
	}
	return fmt.Sprintf("'%s'", p.Text)
}

// RoleOptions narrows a role query. Name matching is never encoded in the
// compiled selector; it is applied as a post-query filter.
type RoleOptions struct {
	Name          *TextPattern
	Exact         bool
	Checked       *bool
	Disabled      *bool
	Selected      *bool
	Expanded      *bool
	Pressed       *bool
	Level         int
	IncludeHidden bool
}

// QueryStrategy is an immutable description of one query step. Parent, when
// set, scopes the step to the elements the parent resolves to.
type QueryStrategy struct {
	Kind     StrategyKind
	Selector string
	Role     string
	RoleOpts RoleOptions
	Pattern  TextPattern
	Exact    bool
	Parent   *QueryStrategy
}

// WithParent returns a copy of the strategy scoped under parent. The
// receiver is left untouched.
func (s QueryStrategy) WithParent(parent *QueryStrategy) *QueryStrategy {
	s.Parent = parent
	return &s
}

// Chain returns the strategy path from the outermost parent to s.
func (s *QueryStrategy) Chain() []*QueryStrategy {
	var chain []*QueryStrategy
	for cur := s; cur != nil; cur = cur.Parent {
		chain = append(chain, cur)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// Validate checks that the parent chain is acyclic and every step is
// well-formed.
func (s *QueryStrategy) Validate() error {
	seen := make(map[*QueryStrategy]bool)
	for cur := s; cur != nil; cur = cur.Parent {
		if seen[cur] {
			return fmt.Errorf("%w: strategy parent chain is cyclic", ErrInvalidStrategy)
		}
		seen[cur] = true
		switch cur.Kind {
		case KindSelector:
			if cur.Selector == "" {
				return fmt.Errorf("%w: empty selector", ErrInvalidStrategy)
			}
		case KindRole:
			if cur.Role == "" {
				return fmt.Errorf("%w: empty role", ErrInvalidStrategy)
			}
		case KindText, KindLabel, KindPlaceholder, KindTestID, KindTitle, KindAltText:
		default:
			return fmt.Errorf("%w: unknown strategy kind %q", ErrInvalidStrategy, cur.Kind)
		}
	}
	return nil
}

// -- Filter Schemas --

// FilterKind identifies a post-query filter.
type FilterKind string

const (
	FilterPosition       FilterKind = "position"
	FilterHasText        FilterKind = "hasText"
	FilterHasNotText     FilterKind = "hasNotText"
	FilterAccessibleName FilterKind = "accessibleName"
	FilterState          FilterKind = "state"
	FilterVisible        FilterKind = "visible"
	FilterRole           FilterKind = "role"
	FilterText           FilterKind = "text"
	FilterLabel          FilterKind = "label"
	FilterAttribute      FilterKind = "attribute"
)

// StateName names an ARIA or native element state used by state filters.
type StateName string

const (
	StateChecked  StateName = "checked"
	StateDisabled StateName = "disabled"
	StateSelected StateName = "selected"
	StateExpanded StateName = "expanded"
	StatePressed  StateName = "pressed"
	StateLevel    StateName = "level"
)

// FilterSpec maps an element list to a narrower element list.
type FilterSpec struct {
	Kind    FilterKind
	Index   int
	Last    bool
	Pattern TextPattern
	Exact   bool
	State   StateName
	Want    bool
	Level   int
	// Name holds the role of a role filter or the attribute of an attribute filter.
	Name string
}

// Nth keeps the element at index. Negative indexes count from the end.
func Nth(index int) FilterSpec { return FilterSpec{Kind: FilterPosition, Index: index} }

// LastPosition keeps the last element.
func LastPosition() FilterSpec { return FilterSpec{Kind: FilterPosition, Last: true} }

// HasText keeps elements whose text matches.
func HasText(p TextPattern, exact bool) FilterSpec {
	return FilterSpec{Kind: FilterHasText, Pattern: p, Exact: exact}
}

// HasNotText drops elements whose text matches.
func HasNotText(p TextPattern, exact bool) FilterSpec {
	return FilterSpec{Kind: FilterHasNotText, Pattern: p, Exact: exact}
}

// HasAccessibleName keeps elements whose accessible name matches.
func HasAccessibleName(p TextPattern, exact bool) FilterSpec {
	return FilterSpec{Kind: FilterAccessibleName, Pattern: p, Exact: exact}
}

// HasState keeps elements whose state equals want.
func HasState(state StateName, want bool) FilterSpec {
	return FilterSpec{Kind: FilterState, State: state, Want: want}
}

// HasLevel keeps headings (or role=heading) at the given level.
func HasLevel(level int) FilterSpec {
	return FilterSpec{Kind: FilterState, State: StateLevel, Level: level, Want: true}
}

// VisibleOnly drops elements that are not visible.
func VisibleOnly() FilterSpec { return FilterSpec{Kind: FilterVisible} }

// HasRole keeps elements whose explicit or implicit role is role.
func HasRole(role string) FilterSpec { return FilterSpec{Kind: FilterRole, Name: role} }

// TextMatch keeps the innermost elements whose text matches, the way text
// queries do.
func TextMatch(p TextPattern, exact bool) FilterSpec {
	return FilterSpec{Kind: FilterText, Pattern: p, Exact: exact}
}

// LabelMatch keeps form controls whose label text matches.
func LabelMatch(p TextPattern, exact bool) FilterSpec {
	return FilterSpec{Kind: FilterLabel, Pattern: p, Exact: exact}
}

// HasAttribute keeps elements whose attribute value matches.
func HasAttribute(name string, p TextPattern, exact bool) FilterSpec {
	return FilterSpec{Kind: FilterAttribute, Name: name, Pattern: p, Exact: exact}
}

// -- Wait & Action Schemas --

// WaitState is the element state awaited by the wait engine.
type WaitState string

const (
	StateVisible  WaitState = "visible"
	StateHidden   WaitState = "hidden"
	StateAttached WaitState = "attached"
	StateDetached WaitState = "detached"
)

// ParseWaitState validates a user supplied state name.
func ParseWaitState(s string) (WaitState, error) {
	switch WaitState(s) {
	case StateVisible, StateHidden, StateAttached, StateDetached:
		return WaitState(s), nil
	case "":
		return StateVisible, nil
	}
	return "", fmt.Errorf("unknown wait state %q", s)
}

// MethodNative is the dispatch method reported when no framework adapter
// handled the event.
const MethodNative = "native"

// ActionResult reports how an action was dispatched.
type ActionResult struct {
	Success bool   `json:"success"`
	Method  string `json:"method"`
	// Handler names the component handler prop an adapter invoked.
	Handler string `json:"handler,omitempty"`
	Error   string `json:"error,omitempty"`
}

// -- Errors --

var (
	ErrInvalidStrategy = errors.New("invalid query strategy")
	ErrInvalidSelector = errors.New("invalid selector")
	ErrTimeout         = errors.New("timeout exceeded")
	ErrNotFound        = errors.New("no element found")
	ErrDetached        = errors.New("element is detached from the document")
	ErrNotCheckable    = errors.New("element is not a checkbox or radio input")
	ErrNotSelectable   = errors.New("element is not a <select> element")
	ErrNotEditable     = errors.New("element is not editable")
	ErrEvaluation      = errors.New("evaluation failed")
)
