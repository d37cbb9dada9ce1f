// internal/locator/aria/roles.go
package aria

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/xkilldash9x/scalpel-locator/internal/browser/dom"
)

// roleSelectors maps a role to a CSS selector that matches every element
// which may carry the role, explicitly or implicitly. The selector is a
// superset; MatchesRole makes the final decision.
var roleSelectors = map[string]string{
	"alert":         `[role="alert"]`,
	"alertdialog":   `[role="alertdialog"]`,
	"article":       `article, [role="article"]`,
	"banner":        `header, [role="banner"]`,
	"button":        `button, input[type="button"], input[type="submit"], input[type="reset"], input[type="image"], [role="button"]`,
	"cell":          `td, [role="cell"]`,
	"checkbox":      `input[type="checkbox"], [role="checkbox"]`,
	"columnheader":  `th, [role="columnheader"]`,
	"combobox":      `select, input[list], [role="combobox"]`,
	"complementary": `aside, [role="complementary"]`,
	"contentinfo":   `footer, [role="contentinfo"]`,
	"dialog":        `dialog, [role="dialog"]`,
	"form":          `form, [role="form"]`,
	"grid":          `[role="grid"]`,
	"gridcell":      `[role="gridcell"]`,
	"group":         `details, fieldset, optgroup, [role="group"]`,
	"heading":       `h1, h2, h3, h4, h5, h6, [role="heading"]`,
	"img":           `img, [role="img"]`,
	"link":          `a[href], area[href], [role="link"]`,
	"list":          `ul, ol, menu, [role="list"]`,
	"listbox":       `select, datalist, [role="listbox"]`,
	"listitem":      `li, [role="listitem"]`,
	"main":          `main, [role="main"]`,
	"menu":          `[role="menu"]`,
	"menubar":       `[role="menubar"]`,
	"menuitem":      `[role="menuitem"]`,
	"meter":         `meter, [role="meter"]`,
	"navigation":    `nav, [role="navigation"]`,
	"option":        `option, [role="option"]`,
	"paragraph":     `p, [role="paragraph"]`,
	"presentation":  `img[alt=""], [role="presentation"], [role="none"]`,
	"progressbar":   `progress, [role="progressbar"]`,
	"radio":         `input[type="radio"], [role="radio"]`,
	"region":        `section, [role="region"]`,
	"row":           `tr, [role="row"]`,
	"rowgroup":      `thead, tbody, tfoot, [role="rowgroup"]`,
	"rowheader":     `th, [role="rowheader"]`,
	"searchbox":     `input[type="search"], [role="searchbox"]`,
	"separator":     `hr, [role="separator"]`,
	"slider":        `input[type="range"], [role="slider"]`,
	"spinbutton":    `input[type="number"], [role="spinbutton"]`,
	"status":        `output, [role="status"]`,
	"switch":        `[role="switch"]`,
	"tab":           `[role="tab"]`,
	"table":         `table, [role="table"]`,
	"tablist":       `[role="tablist"]`,
	"tabpanel":      `[role="tabpanel"]`,
	"textbox":       `input:not([type]), input[type="text"], input[type="email"], input[type="tel"], input[type="url"], textarea, [role="textbox"]`,
	"tree":          `[role="tree"]`,
	"treeitem":      `[role="treeitem"]`,
}

// RoleSelector returns the candidate CSS selector for role. Unknown roles
// only match explicit role attributes.
func RoleSelector(role string) string {
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "none" {
		role = "presentation"
	}
	if sel, ok := roleSelectors[role]; ok {
		return sel
	}
	return `[role="` + strings.ReplaceAll(role, `"`, `\"`) + `"]`
}

// ExplicitRole returns the first token of the role attribute, lowercased.
func ExplicitRole(n *html.Node) string {
	for _, tok := range strings.Fields(dom.AttrOr(n, "role")) {
		tok = strings.ToLower(tok)
		if tok == "none" {
			return "presentation"
		}
		return tok
	}
	return ""
}

// ImplicitRole returns the role an element carries without a role attribute.
func ImplicitRole(n *html.Node) string {
	tag := dom.TagName(n)
	switch tag {
	case "a", "area":
		if dom.HasAttr(n, "href") {
			return "link"
		}
	case "button":
		return "button"
	case "input":
		return inputRole(n)
	case "textarea":
		return "textbox"
	case "select":
		if dom.IsMultiple(n) || sizeAbove1(n) {
			return "listbox"
		}
		return "combobox"
	case "datalist":
		return "listbox"
	case "option":
		return "option"
	case "tr":
		return "row"
	case "td":
		return "cell"
	case "th":
		if strings.EqualFold(dom.AttrOr(n, "scope"), "row") {
			return "rowheader"
		}
		return "columnheader"
	case "table":
		return "table"
	case "thead", "tbody", "tfoot":
		return "rowgroup"
	case "h1", "h2", "h3", "h4", "h5", "h6":
		return "heading"
	case "img":
		if alt, ok := dom.Attr(n, "alt"); ok && alt == "" {
			return "presentation"
		}
		return "img"
	case "ul", "ol", "menu":
		return "list"
	case "li":
		return "listitem"
	case "nav":
		return "navigation"
	case "main":
		return "main"
	case "aside":
		return "complementary"
	case "header":
		return "banner"
	case "footer":
		return "contentinfo"
	case "section":
		if dom.HasAttr(n, "aria-label") || dom.HasAttr(n, "aria-labelledby") {
			return "region"
		}
	case "form":
		return "form"
	case "article":
		return "article"
	case "dialog":
		return "dialog"
	case "details", "fieldset", "optgroup":
		return "group"
	case "progress":
		return "progressbar"
	case "meter":
		return "meter"
	case "output":
		return "status"
	case "hr":
		return "separator"
	case "p":
		return "paragraph"
	}
	return ""
}

func inputRole(n *html.Node) string {
	switch dom.InputType(n) {
	case "button", "submit", "reset", "image":
		return "button"
	case "checkbox":
		return "checkbox"
	case "radio":
		return "radio"
	case "range":
		return "slider"
	case "number":
		return "spinbutton"
	case "search":
		if dom.HasAttr(n, "list") {
			return "combobox"
		}
		return "searchbox"
	case "text", "email", "tel", "url":
		if dom.HasAttr(n, "list") {
			return "combobox"
		}
		return "textbox"
	}
	return ""
}

func sizeAbove1(n *html.Node) bool {
	size := strings.TrimSpace(dom.AttrOr(n, "size"))
	return size != "" && size != "0" && size != "1"
}

// Role returns the explicit role of n, falling back to its implicit role.
func Role(n *html.Node) string {
	if r := ExplicitRole(n); r != "" {
		return r
	}
	return ImplicitRole(n)
}

// MatchesRole reports whether n carries role. An explicit role attribute
// overrides the implicit one.
func MatchesRole(n *html.Node, role string) bool {
	if !dom.IsElement(n) {
		return false
	}
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "none" {
		role = "presentation"
	}
	return role != "" && Role(n) == role
}
