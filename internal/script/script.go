// Package script parses and runs YAML step files against a page.
package script

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/scalpel-locator/api/schemas"
	"github.com/xkilldash9x/scalpel-locator/internal/locator"
)

// ErrExpectation marks a failed expect* step.
var ErrExpectation = errors.New("expectation failed")

// Script is a parsed step file.
type Script struct {
	Name    string `yaml:"name"`
	Timeout int    `yaml:"timeout"` // whole script timeout in ms, 0 for none
	Steps   []Step `yaml:"steps"`
}

// Target names one locator. Exactly one of the query fields is set; Within
// scopes it under another target.
type Target struct {
	Selector    string  `yaml:"selector,omitempty"`
	Role        string  `yaml:"role,omitempty"`
	Name        *string `yaml:"name,omitempty"`
	Text        *string `yaml:"text,omitempty"`
	Label       *string `yaml:"label,omitempty"`
	Placeholder *string `yaml:"placeholder,omitempty"`
	TestID      *string `yaml:"testId,omitempty"`
	Title       *string `yaml:"title,omitempty"`
	AltText     *string `yaml:"altText,omitempty"`
	Exact       bool    `yaml:"exact,omitempty"`

	HasText    *string `yaml:"hasText,omitempty"`
	HasNotText *string `yaml:"hasNotText,omitempty"`
	Nth        *int    `yaml:"nth,omitempty"`
	Last       bool    `yaml:"last,omitempty"`

	Within *Target `yaml:"within,omitempty"`
}

// Step is a target plus exactly one action.
type Step struct {
	Target `yaml:",inline"`

	Click         bool     `yaml:"click,omitempty"`
	Dblclick      bool     `yaml:"dblclick,omitempty"`
	Hover         bool     `yaml:"hover,omitempty"`
	Fill          *string  `yaml:"fill,omitempty"`
	Check         bool     `yaml:"check,omitempty"`
	Uncheck       bool     `yaml:"uncheck,omitempty"`
	Select        []string `yaml:"select,omitempty"`
	Press         string   `yaml:"press,omitempty"`
	Type          *string  `yaml:"type,omitempty"`
	ExpectCount   *int     `yaml:"expectCount,omitempty"`
	ExpectVisible bool     `yaml:"expectVisible,omitempty"`
	ExpectHidden  bool     `yaml:"expectHidden,omitempty"`
	ExpectText    *string  `yaml:"expectText,omitempty"`
}

// Parse decodes and validates a script. Unknown keys are rejected.
func Parse(r io.Reader) (*Script, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var s Script
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty script")
		}
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// ParseBytes is Parse over a byte slice.
func ParseBytes(b []byte) (*Script, error) {
	return Parse(bytes.NewReader(b))
}

// Validate checks every step names one target and one action.
func (s *Script) Validate() error {
	if s.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("script %q has no steps", s.Name)
	}
	for i := range s.Steps {
		if err := s.Steps[i].validate(); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return nil
}

func (st *Step) validate() error {
	if n := len(st.actions()); n != 1 {
		return fmt.Errorf("expected exactly one action, got %d", n)
	}
	return st.Target.validate()
}

func (t *Target) validate() error {
	var kinds []string
	for name, set := range map[string]bool{
		"selector":    t.Selector != "",
		"role":        t.Role != "",
		"text":        t.Text != nil,
		"label":       t.Label != nil,
		"placeholder": t.Placeholder != nil,
		"testId":      t.TestID != nil,
		"title":       t.Title != nil,
		"altText":     t.AltText != nil,
	} {
		if set {
			kinds = append(kinds, name)
		}
	}
	if len(kinds) != 1 {
		return fmt.Errorf("expected exactly one of selector, role, text, label, placeholder, testId, title, altText")
	}
	if t.Name != nil && t.Role == "" {
		return fmt.Errorf("name is only valid with role")
	}
	if t.Within != nil {
		if err := t.Within.validate(); err != nil {
			return fmt.Errorf("within: %w", err)
		}
	}
	return nil
}

// ValidateTarget checks that t names exactly one query.
func ValidateTarget(t *Target) error { return t.validate() }

// actions lists the actions set on the step.
func (st *Step) actions() []string {
	var out []string
	add := func(name string, set bool) {
		if set {
			out = append(out, name)
		}
	}
	add("click", st.Click)
	add("dblclick", st.Dblclick)
	add("hover", st.Hover)
	add("fill", st.Fill != nil)
	add("check", st.Check)
	add("uncheck", st.Uncheck)
	add("select", len(st.Select) > 0)
	add("press", st.Press != "")
	add("type", st.Type != nil)
	add("expectCount", st.ExpectCount != nil)
	add("expectVisible", st.ExpectVisible)
	add("expectHidden", st.ExpectHidden)
	add("expectText", st.ExpectText != nil)
	return out
}

// Action returns the name of the step's action.
func (st *Step) Action() string {
	if a := st.actions(); len(a) == 1 {
		return a[0]
	}
	return ""
}

// -- Locator construction --

// queryRoot is implemented by both *locator.Page and *locator.Locator.
type queryRoot interface {
	Locator(sel string) *locator.Locator
	GetByRole(role string, opts *schemas.RoleOptions) *locator.Locator
	GetByText(text schemas.TextPattern, exact bool) *locator.Locator
	GetByLabel(text schemas.TextPattern, exact bool) *locator.Locator
	GetByPlaceholder(text schemas.TextPattern, exact bool) *locator.Locator
	GetByTestID(id schemas.TextPattern) *locator.Locator
	GetByTitle(text schemas.TextPattern, exact bool) *locator.Locator
	GetByAltText(text schemas.TextPattern, exact bool) *locator.Locator
}

// Build turns the target into a locator on p.
func (t *Target) Build(p *locator.Page) (*locator.Locator, error) {
	var root queryRoot = p
	if t.Within != nil {
		parent, err := t.Within.Build(p)
		if err != nil {
			return nil, err
		}
		root = parent
	}

	var (
		l   *locator.Locator
		err error
	)
	withPattern := func(s *string, fn func(schemas.TextPattern) *locator.Locator) {
		var pat schemas.TextPattern
		if pat, err = Pattern(*s); err == nil {
			l = fn(pat)
		}
	}
	switch {
	case t.Selector != "":
		l = root.Locator(t.Selector)
	case t.Role != "":
		opts := &schemas.RoleOptions{Exact: t.Exact}
		if t.Name != nil {
			var pat schemas.TextPattern
			if pat, err = Pattern(*t.Name); err == nil {
				opts.Name = &pat
			}
		}
		l = root.GetByRole(t.Role, opts)
	case t.Text != nil:
		withPattern(t.Text, func(p schemas.TextPattern) *locator.Locator { return root.GetByText(p, t.Exact) })
	case t.Label != nil:
		withPattern(t.Label, func(p schemas.TextPattern) *locator.Locator { return root.GetByLabel(p, t.Exact) })
	case t.Placeholder != nil:
		withPattern(t.Placeholder, func(p schemas.TextPattern) *locator.Locator { return root.GetByPlaceholder(p, t.Exact) })
	case t.TestID != nil:
		withPattern(t.TestID, func(p schemas.TextPattern) *locator.Locator { return root.GetByTestID(p) })
	case t.Title != nil:
		withPattern(t.Title, func(p schemas.TextPattern) *locator.Locator { return root.GetByTitle(p, t.Exact) })
	case t.AltText != nil:
		withPattern(t.AltText, func(p schemas.TextPattern) *locator.Locator { return root.GetByAltText(p, t.Exact) })
	default:
		return nil, fmt.Errorf("target has no query")
	}
	if err != nil {
		return nil, err
	}

	var f locator.FilterOptions
	if t.HasText != nil {
		pat, err := Pattern(*t.HasText)
		if err != nil {
			return nil, err
		}
		f.HasText = &pat
	}
	if t.HasNotText != nil {
		pat, err := Pattern(*t.HasNotText)
		if err != nil {
			return nil, err
		}
		f.HasNotText = &pat
	}
	f.Position = t.Nth
	f.Last = t.Last
	if f != (locator.FilterOptions{}) {
		l = l.Filter(f)
	}
	return l, nil
}

// Pattern reads "/re/" as a regular expression and anything else as a
// literal.
func Pattern(s string) (schemas.TextPattern, error) {
	if len(s) >= 2 && strings.HasPrefix(s, "/") && strings.HasSuffix(s, "/") {
		re, err := regexp.Compile(s[1 : len(s)-1])
		if err != nil {
			return schemas.TextPattern{}, fmt.Errorf("invalid pattern %s: %w", s, err)
		}
		return schemas.Regexp(re), nil
	}
	return schemas.Text(s), nil
}
