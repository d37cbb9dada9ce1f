// browser/dom/xpath.go
package dom

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// GenerateUniqueXPath builds an XPath that selects exactly node, anchored on
// the nearest ancestor-or-self with an id. It is used to describe locators
// pinned to a concrete element.
func GenerateUniqueXPath(node *html.Node) string {
	if node == nil {
		return ""
	}

	var path []string
	anchored := false
	for n := node; n != nil && n.Type != html.DocumentNode; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		tag := strings.ToLower(n.Data)
		if tag == "" {
			continue
		}

		if id := AttrOr(n, "id"); id != "" && isUniqueID(n, id) {
			path = append(path, fmt.Sprintf(`//*[@id=%s]`, QuoteXPath(id)))
			anchored = true
			break
		}

		index := 1
		for prev := n.PrevSibling; prev != nil; prev = prev.PrevSibling {
			if prev.Type == html.ElementNode && strings.ToLower(prev.Data) == tag {
				index++
			}
		}
		path = append(path, fmt.Sprintf("%s[%d]", tag, index))
	}

	if len(path) == 0 {
		return "/"
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}

	xpath := strings.Join(path, "/")
	if !anchored {
		xpath = "/" + xpath
	}
	return xpath
}

// isUniqueID guards against documents that reuse an id; such an anchor
// would select more than one element.
func isUniqueID(n *html.Node, id string) bool {
	count := 0
	Walk(RootOf(n), func(x *html.Node) bool {
		if x.Type == html.ElementNode && AttrOr(x, "id") == id {
			count++
		}
		return count < 2
	})
	return count == 1
}

// QuoteXPath renders s as an XPath 1.0 string literal, falling back to
// concat() when s holds both quote kinds.
func QuoteXPath(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	return "concat('" + strings.Join(parts, `', "'", '`) + "')"
}
