// internal/browser/parser/css.go
package parser

import (
	"errors"
	"fmt"
	"strings"
)

// Property represents a CSS property (e.g., "display").
type Property string

// Value represents a CSS value (e.g., "none").
type Value string

// Declaration is a key-value pair (e.g., display: none).
type Declaration struct {
	Property  Property
	Value     Value
	Important bool
}

// RuleSet represents a set of declarations applied by one or more selector groups.
type RuleSet struct {
	SelectorGroups []SelectorGroup
	Declarations   []Declaration
}

// StyleSheet is the parsed form of a <style> element.
type StyleSheet struct {
	Rules []RuleSet
}

// SelectorGroup represents a comma-separated list of selectors (e.g., "h1, h2 .title").
type SelectorGroup []ComplexSelector

// ComplexSelector represents a sequence of simple selectors joined by combinators (e.g., "div > p").
type ComplexSelector struct {
	Selectors []SimpleSelectorWithCombinator
}

// SimpleSelectorWithCombinator pairs a simple selector with its preceding combinator.
type SimpleSelectorWithCombinator struct {
	Combinator     Combinator
	SimpleSelector SimpleSelector
}

// SimpleSelector is a compound selector: tag, id, classes and attribute tests.
type SimpleSelector struct {
	TagName    string
	ID         string
	Classes    []string
	Attributes []AttributeSelector
}

// AttributeSelector represents `[name]` or `[name<op>value]`.
type AttributeSelector struct {
	Name     string
	Operator string // "", "=", "~=", "|=", "^=", "$=", "*="
	Value    string
}

// Combinator defines the relationship between simple selectors.
type Combinator int

const (
	CombinatorNone            Combinator = iota // first selector of a chain
	CombinatorDescendant                        // ' '
	CombinatorChild                             // >
	CombinatorAdjacentSibling                   // +
	CombinatorGeneralSibling                    // ~
)

// ErrUnsupportedSelector is returned by ParseSelector for syntax outside the
// supported subset (pseudo-classes, namespaces, escapes, ...).
var ErrUnsupportedSelector = errors.New("unsupported selector syntax")

// CalculateSpecificity sums the specificity of each compound in the chain.
func (cs ComplexSelector) CalculateSpecificity() (a, b, c int) {
	for _, s := range cs.Selectors {
		sa, sb, sc := s.SimpleSelector.CalculateSpecificity()
		a, b, c = a+sa, b+sb, c+sc
	}
	return a, b, c
}

// CalculateSpecificity returns the (id, class, type) specificity triple.
func (s SimpleSelector) CalculateSpecificity() (a, b, c int) {
	if s.ID != "" {
		a = 1
	}
	b = len(s.Classes) + len(s.Attributes)
	if s.TagName != "" && s.TagName != "*" {
		c = 1
	}
	return a, b, c
}

// IsValid checks if the selector has at least one component.
func (s SimpleSelector) IsValid() bool {
	return s.TagName != "" || s.ID != "" || len(s.Classes) > 0 || len(s.Attributes) > 0
}

// Parser is a small recursive-descent CSS reader. It is forgiving by
// default and records, rather than fails on, anything it had to skip.
type Parser struct {
	input   string
	pos     int
	skipped bool
}

func NewParser(input string) *Parser {
	return &Parser{input: input}
}

// Parse reads a whole stylesheet. At-rules are skipped along with their
// blocks; rules whose selector cannot be read are dropped.
func (p *Parser) Parse() StyleSheet {
	var sheet StyleSheet
	for {
		p.consumeWhitespace()
		switch {
		case p.eof():
			return sheet
		case p.startsWith("/*"):
			p.skipComment()
			continue
		case p.currentChar() == '@':
			p.skipAtRule()
			continue
		}

		groups := p.parseSelectorGroups()
		if len(groups) == 0 {
			p.skipTo('{')
			if p.currentChar() == '{' {
				p.consumeChar()
				p.skipBlock('{', '}')
			}
			continue
		}
		decls, err := p.parseDeclarations()
		if err != nil || len(decls) == 0 {
			continue
		}
		sheet.Rules = append(sheet.Rules, RuleSet{SelectorGroups: groups, Declarations: decls})
	}
}

// ParseSelector parses a standalone selector list such as "a.x, #y > b" and
// fails with ErrUnsupportedSelector if any part of it had to be skipped.
func ParseSelector(selector string) (SelectorGroup, error) {
	p := NewParser(selector)
	groups := p.parseSelectorGroups()
	p.consumeWhitespace()
	if p.skipped || !p.eof() || len(groups) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedSelector, selector)
	}
	return groups[0], nil
}

// ParseInlineStyle parses the body of a style="" attribute.
func ParseInlineStyle(style string) []Declaration {
	p := NewParser("{" + style + "}")
	decls, _ := p.parseDeclarations()
	return decls
}

func (p *Parser) parseSelectorGroups() []SelectorGroup {
	var group SelectorGroup
	for {
		p.consumeWhitespace()
		if p.eof() || p.currentChar() == '{' {
			break
		}
		if complex := p.parseComplexSelector(); len(complex.Selectors) > 0 {
			group = append(group, complex)
		} else {
			p.skipped = true
		}
		p.consumeWhitespace()
		if p.currentChar() != ',' {
			break
		}
		p.consumeChar()
	}
	if len(group) == 0 {
		return nil
	}
	return []SelectorGroup{group}
}

func (p *Parser) parseComplexSelector() ComplexSelector {
	var complex ComplexSelector
	next := CombinatorNone
	for {
		p.consumeWhitespace()
		if p.eof() || p.currentChar() == '{' || p.currentChar() == ',' {
			if next > CombinatorDescendant {
				// Dangling explicit combinator such as "div >".
				p.skipped = true
			}
			return complex
		}

		simple, err := p.parseSimpleSelector()
		if err != nil {
			p.skipped = true
			p.skipTo(' ', '>', '+', '~', ',', '{')
		} else {
			complex.Selectors = append(complex.Selectors, SimpleSelectorWithCombinator{
				Combinator:     next,
				SimpleSelector: simple,
			})
		}

		p.consumeWhitespace()
		switch p.currentChar() {
		case 0, '{', ',':
			return complex
		case '>':
			next = CombinatorChild
			p.consumeChar()
		case '+':
			next = CombinatorAdjacentSibling
			p.consumeChar()
		case '~':
			next = CombinatorGeneralSibling
			p.consumeChar()
		default:
			next = CombinatorDescendant
		}
	}
}

func (p *Parser) parseSimpleSelector() (SimpleSelector, error) {
	var sel SimpleSelector
	switch ch := p.currentChar(); {
	case ch == '*':
		p.consumeChar()
		sel.TagName = "*"
	case isValidIdentifierStart(ch):
		sel.TagName = strings.ToLower(p.parseIdentifier())
	}

	for !p.eof() {
		switch p.currentChar() {
		case '#':
			p.consumeChar()
			sel.ID = p.parseIdentifier()
			if sel.ID == "" {
				return sel, fmt.Errorf("empty id selector")
			}
		case '.':
			p.consumeChar()
			class := p.parseIdentifier()
			if class == "" {
				return sel, fmt.Errorf("empty class selector")
			}
			sel.Classes = append(sel.Classes, class)
		case '[':
			p.consumeChar()
			attr, err := p.parseAttributeSelector()
			if err != nil {
				return sel, err
			}
			sel.Attributes = append(sel.Attributes, attr)
		case ' ', '\t', '\n', '\r', '>', '+', '~', ',', '{':
			if !sel.IsValid() {
				return sel, fmt.Errorf("invalid simple selector")
			}
			return sel, nil
		default:
			// Pseudo-classes and anything else we do not model.
			return sel, fmt.Errorf("unexpected %q in selector", p.currentChar())
		}
	}
	if !sel.IsValid() {
		return sel, fmt.Errorf("invalid simple selector")
	}
	return sel, nil
}

func (p *Parser) parseAttributeSelector() (AttributeSelector, error) {
	p.consumeWhitespace()
	name := strings.ToLower(p.parseIdentifier())
	p.consumeWhitespace()
	if name == "" || p.eof() {
		return AttributeSelector{}, fmt.Errorf("malformed attribute selector")
	}
	if p.currentChar() == ']' {
		p.consumeChar()
		return AttributeSelector{Name: name}, nil
	}

	var op string
	switch ch := p.currentChar(); ch {
	case '=':
		op = "="
		p.consumeChar()
	case '~', '|', '^', '$', '*':
		p.consumeChar()
		if p.currentChar() != '=' {
			return AttributeSelector{}, fmt.Errorf("unknown attribute operator %q", ch)
		}
		p.consumeChar()
		op = string(ch) + "="
	default:
		return AttributeSelector{}, fmt.Errorf("unknown attribute operator %q", ch)
	}
	p.consumeWhitespace()

	var value string
	if q := p.currentChar(); q == '"' || q == '\'' {
		p.consumeChar()
		end := strings.IndexByte(p.input[p.pos:], q)
		if end < 0 {
			return AttributeSelector{}, fmt.Errorf("unterminated attribute value")
		}
		value = p.input[p.pos : p.pos+end]
		p.pos += end + 1
	} else {
		value = p.parseIdentifier()
	}
	p.consumeWhitespace()
	if p.currentChar() != ']' {
		return AttributeSelector{}, fmt.Errorf("expected ']' to close attribute selector")
	}
	p.consumeChar()
	return AttributeSelector{Name: name, Operator: op, Value: value}, nil
}

func (p *Parser) parseDeclarations() ([]Declaration, error) {
	p.consumeWhitespace()
	if p.currentChar() != '{' {
		return nil, fmt.Errorf("expected '{' at start of declarations")
	}
	p.consumeChar()

	var decls []Declaration
	for {
		p.consumeWhitespace()
		if p.eof() || p.currentChar() == '}' {
			break
		}
		if p.startsWith("/*") {
			p.skipComment()
			continue
		}
		if prop, val, important := p.parseDeclaration(); prop != "" && val != "" {
			decls = append(decls, Declaration{
				Property:  Property(strings.ToLower(prop)),
				Value:     Value(val),
				Important: important,
			})
		}
	}
	if p.currentChar() == '}' {
		p.consumeChar()
	}
	return decls, nil
}

// parseDeclaration reads one `property: value [!important];` pair. A
// malformed pair is skipped up to the next ';' or '}'.
func (p *Parser) parseDeclaration() (prop, val string, important bool) {
	skipPair := func() {
		p.skipTo(';', '}')
		if p.currentChar() == ';' {
			p.consumeChar()
		}
	}
	if !isValidIdentifierStart(p.currentChar()) {
		skipPair()
		return "", "", false
	}
	prop = p.parseIdentifier()
	p.consumeWhitespace()
	if p.currentChar() != ':' {
		skipPair()
		return "", "", false
	}
	p.consumeChar()
	p.consumeWhitespace()

	val = p.parseValue()
	if lower := strings.ToLower(val); strings.HasSuffix(lower, "!important") {
		important = true
		val = strings.TrimSpace(val[:len(val)-len("!important")])
	}
	p.consumeWhitespace()
	if p.currentChar() == ';' {
		p.consumeChar()
	}
	return prop, val, important
}

func (p *Parser) parseValue() string {
	start := p.pos
	for !p.eof() {
		switch ch := p.currentChar(); ch {
		case ';', '}':
			return strings.TrimSpace(p.input[start:p.pos])
		case '"', '\'':
			p.skipQuotedString(ch)
		case '(':
			p.consumeChar()
			p.skipBlock('(', ')')
		default:
			p.pos++
		}
	}
	return strings.TrimSpace(p.input[start:p.pos])
}

// -- Lexer helpers --

func (p *Parser) eof() bool { return p.pos >= len(p.input) }

// currentChar returns 0 at end of input.
func (p *Parser) currentChar() byte {
	if p.eof() {
		return 0
	}
	return p.input[p.pos]
}

func (p *Parser) consumeChar() byte {
	ch := p.currentChar()
	if !p.eof() {
		p.pos++
	}
	return ch
}

func (p *Parser) consumeWhitespace() {
	for !p.eof() && isWhitespace(p.currentChar()) {
		p.pos++
	}
}

func (p *Parser) startsWith(s string) bool {
	return strings.HasPrefix(p.input[p.pos:], s)
}

func (p *Parser) skipComment() {
	p.pos += 2
	if end := strings.Index(p.input[p.pos:], "*/"); end >= 0 {
		p.pos += end + 2
		return
	}
	p.pos = len(p.input)
}

func (p *Parser) skipTo(targets ...byte) {
	for !p.eof() && strings.IndexByte(string(targets), p.currentChar()) < 0 {
		p.pos++
	}
}

// skipBlock consumes input up to and including the close that balances an
// already consumed open.
func (p *Parser) skipBlock(open, close byte) {
	for depth := 1; !p.eof(); {
		switch p.consumeChar() {
		case open:
			depth++
		case close:
			if depth--; depth == 0 {
				return
			}
		}
	}
}

func (p *Parser) skipQuotedString(quote byte) {
	p.consumeChar()
	for !p.eof() {
		switch p.consumeChar() {
		case '\\':
			p.consumeChar()
		case quote:
			return
		}
	}
}

func (p *Parser) skipAtRule() {
	p.consumeChar()
	p.parseIdentifier()
	for !p.eof() {
		switch p.consumeChar() {
		case '{':
			p.skipBlock('{', '}')
			return
		case ';':
			return
		}
	}
}

func (p *Parser) parseIdentifier() string {
	start := p.pos
	for !p.eof() && isValidIdentifierChar(p.currentChar()) {
		p.pos++
	}
	return p.input[start:p.pos]
}

func isWhitespace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' || ch == '\f'
}

func isValidIdentifierStart(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_' || ch == '-' || ch >= 0x80
}

func isValidIdentifierChar(ch byte) bool {
	return isValidIdentifierStart(ch) || (ch >= '0' && ch <= '9')
}
