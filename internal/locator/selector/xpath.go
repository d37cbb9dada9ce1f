// internal/locator/selector/xpath.go
package selector

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/xkilldash9x/scalpel-locator/internal/browser/dom"
	"github.com/xkilldash9x/scalpel-locator/internal/browser/parser"
)

// -- Lexical helpers --

// splitTopLevel splits s on sep where sep is outside quotes, brackets and
// parentheses. Empty parts are dropped.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth := 0
	var quote byte
	start := 0
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case quote != 0:
			if ch == '\\' && sep == ',' {
				i++
			} else if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"':
			quote = ch
		case ch == '(' || ch == '[':
			depth++
		case ch == ')' || ch == ']':
			if depth > 0 {
				depth--
			}
		case ch == sep && depth == 0:
			if part := strings.TrimSpace(s[start:i]); part != "" {
				parts = append(parts, part)
			}
			start = i + 1
		}
	}
	if part := strings.TrimSpace(s[start:]); part != "" {
		parts = append(parts, part)
	}
	return parts
}

// matchingParen returns the index of the ')' closing the '(' at open, or -1.
func matchingParen(s string, open int) int {
	depth := 0
	var quote byte
	for i := open; i < len(s); i++ {
		ch := s[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"':
			quote = ch
		case ch == '(':
			depth++
		case ch == ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// SplitUnion splits an XPath expression into its top-level union arms.
func SplitUnion(xpath string) []string {
	return splitTopLevel(xpath, '|')
}

// JoinXPath scopes child under parent with a descendant join, distributing
// over unions on both sides: (p1)//c1 | (p1)//c2 | (p2)//c1 | ...
func JoinXPath(parent, child string) string {
	parents := SplitUnion(parent)
	children := SplitUnion(child)
	if len(parents) == 0 {
		return strings.Join(children, " | ")
	}
	if len(children) == 0 {
		return strings.Join(parents, " | ")
	}
	arms := make([]string, 0, len(parents)*len(children))
	for _, p := range parents {
		for _, c := range children {
			arms = append(arms, joinArm(p, c))
		}
	}
	return strings.Join(arms, " | ")
}

func joinArm(parent, child string) string {
	switch {
	case strings.HasPrefix(child, "("):
		// (//p)[2] keeps its predicate outside the joined path.
		if end := matchingParen(child, 0); end > 0 {
			return "(" + JoinXPath(parent, child[1:end]) + ")" + child[end+1:]
		}
	case strings.HasPrefix(child, ".//"):
		return "(" + parent + ")" + child[1:]
	case strings.HasPrefix(child, "./"):
		return "(" + parent + ")" + child[1:]
	case strings.HasPrefix(child, "//"):
		return "(" + parent + ")" + child
	case strings.HasPrefix(child, "/"):
		return "(" + parent + ")/" + child
	}
	return "(" + parent + ")//" + child
}

// Relativize rewrites every absolute union arm so it evaluates relative to
// the context node: //a becomes .//a and (//p)[2] becomes (.//p)[2].
func Relativize(xpath string) string {
	arms := SplitUnion(xpath)
	for i, arm := range arms {
		arms[i] = relativizeArm(arm)
	}
	return strings.Join(arms, " | ")
}

func relativizeArm(arm string) string {
	switch {
	case strings.HasPrefix(arm, "("):
		if end := matchingParen(arm, 0); end > 0 {
			return "(" + Relativize(arm[1:end]) + ")" + arm[end+1:]
		}
	case strings.HasPrefix(arm, "/"):
		return "." + arm
	}
	return arm
}

// -- CSS to XPath --

var leadingTag = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9-]*`)

// CSSToXPath converts a selector list into an XPath union. Compound
// selectors and every combinator are converted; arms the CSS parser does not
// support degrade to their leading tag name, or //* when there is none.
func CSSToXPath(css string) string {
	xpath, _ := cssToXPath(css)
	return xpath
}

// cssToXPath also reports whether the conversion was exact.
func cssToXPath(css string) (string, bool) {
	exact := true
	var arms []string
	for _, arm := range splitTopLevel(css, ',') {
		group, err := parser.ParseSelector(arm)
		if err != nil {
			exact = false
			if tag := leadingTag.FindString(arm); tag != "" {
				arms = append(arms, "//"+strings.ToLower(tag))
			} else {
				arms = append(arms, "//*")
			}
			continue
		}
		for _, complex := range group {
			arms = append(arms, complexToXPath(complex))
		}
	}
	if len(arms) == 0 {
		return "//*", false
	}
	return strings.Join(arms, " | "), exact
}

func complexToXPath(cs parser.ComplexSelector) string {
	var b strings.Builder
	for _, step := range cs.Selectors {
		tag, preds := compoundParts(step.SimpleSelector)
		switch step.Combinator {
		case parser.CombinatorChild:
			b.WriteString("/" + tag + preds)
		case parser.CombinatorAdjacentSibling:
			b.WriteString("/following-sibling::*[1]")
			if tag != "*" {
				b.WriteString("[self::" + tag + "]")
			}
			b.WriteString(preds)
		case parser.CombinatorGeneralSibling:
			b.WriteString("/following-sibling::" + tag + preds)
		default:
			b.WriteString("//" + tag + preds)
		}
	}
	return b.String()
}

func compoundParts(s parser.SimpleSelector) (string, string) {
	tag := s.TagName
	if tag == "" {
		tag = "*"
	}
	var preds strings.Builder
	if s.ID != "" {
		fmt.Fprintf(&preds, "[@id=%s]", dom.QuoteXPath(s.ID))
	}
	for _, c := range s.Classes {
		fmt.Fprintf(&preds, "[contains(concat(' ', normalize-space(@class), ' '), %s)]", dom.QuoteXPath(" "+c+" "))
	}
	for _, a := range s.Attributes {
		preds.WriteString(attributePredicate(a))
	}
	return tag, preds.String()
}

func attributePredicate(a parser.AttributeSelector) string {
	name := "@" + a.Name
	lit := dom.QuoteXPath(a.Value)
	switch a.Operator {
	case "":
		return "[" + name + "]"
	case "=":
		return fmt.Sprintf("[%s=%s]", name, lit)
	case "~=":
		return fmt.Sprintf("[contains(concat(' ', normalize-space(%s), ' '), %s)]", name, dom.QuoteXPath(" "+a.Value+" "))
	case "|=":
		return fmt.Sprintf("[%s=%s or starts-with(%s, %s)]", name, lit, name, dom.QuoteXPath(a.Value+"-"))
	}
	if a.Value == "" {
		// Substring operators never match an empty value.
		return "[" + name + " and false()]"
	}
	switch a.Operator {
	case "^=":
		return fmt.Sprintf("[starts-with(%s, %s)]", name, lit)
	case "$=":
		n := utf8.RuneCountInString(a.Value)
		return fmt.Sprintf("[substring(%s, string-length(%s) - %d) = %s]", name, name, n-1, lit)
	case "*=":
		return fmt.Sprintf("[contains(%s, %s)]", name, lit)
	}
	return "[" + name + "]"
}
