// internal/locator/selector/describe.go
package selector

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/scalpel-locator/api/schemas"
)

// Describe renders the parent chain of s in the chained locator notation,
// for example getByRole('row', { name: 'x', exact: true }) >> getByLabel('').
func Describe(s *schemas.QueryStrategy) string {
	if s == nil {
		return ""
	}
	chain := s.Chain()
	parts := make([]string, 0, len(chain))
	for _, step := range chain {
		parts = append(parts, DescribeStep(step))
	}
	return strings.Join(parts, " >> ")
}

// DescribeStep renders a single step without its parent.
func DescribeStep(s *schemas.QueryStrategy) string {
	switch s.Kind {
	case schemas.KindSelector:
		return fmt.Sprintf("locator('%s')", s.Selector)
	case schemas.KindRole:
		return describeRole(s.Role, s.RoleOpts)
	case schemas.KindText:
		return describePattern("getByText", s.Pattern, s.Exact)
	case schemas.KindLabel:
		return describePattern("getByLabel", s.Pattern, s.Exact)
	case schemas.KindPlaceholder:
		return describePattern("getByPlaceholder", s.Pattern, s.Exact)
	case schemas.KindTitle:
		return describePattern("getByTitle", s.Pattern, s.Exact)
	case schemas.KindAltText:
		return describePattern("getByAltText", s.Pattern, s.Exact)
	case schemas.KindTestID:
		return fmt.Sprintf("getByTestId(%s)", s.Pattern)
	}
	return string(s.Kind)
}

func describePattern(fn string, p schemas.TextPattern, exact bool) string {
	if exact && !p.IsRegexp() {
		return fmt.Sprintf("%s(%s, { exact: true })", fn, p)
	}
	return fmt.Sprintf("%s(%s)", fn, p)
}

func describeRole(role string, o schemas.RoleOptions) string {
	var opts []string
	if o.Name != nil {
		opts = append(opts, "name: "+o.Name.String())
		if o.Exact {
			opts = append(opts, "exact: true")
		}
	}
	for _, b := range []struct {
		key string
		val *bool
	}{{"checked", o.Checked}, {"disabled", o.Disabled}, {"selected", o.Selected}, {"expanded", o.Expanded}, {"pressed", o.Pressed}} {
		if b.val != nil {
			opts = append(opts, fmt.Sprintf("%s: %t", b.key, *b.val))
		}
	}
	if o.Level > 0 {
		opts = append(opts, fmt.Sprintf("level: %d", o.Level))
	}
	if o.IncludeHidden {
		opts = append(opts, "includeHidden: true")
	}
	if len(opts) == 0 {
		return fmt.Sprintf("getByRole('%s')", role)
	}
	return fmt.Sprintf("getByRole('%s', { %s })", role, strings.Join(opts, ", "))
}

// DescribeFilter renders a locator filter. Internal post filters render
// as "".
func DescribeFilter(f schemas.FilterSpec) string {
	exact := ""
	if f.Exact && !f.Pattern.IsRegexp() {
		exact = ", exact: true"
	}
	switch f.Kind {
	case schemas.FilterPosition:
		if f.Last {
			return "last"
		}
		return fmt.Sprintf("nth=%d", f.Index)
	case schemas.FilterHasText:
		return fmt.Sprintf("filter({ hasText: %s%s })", f.Pattern, exact)
	case schemas.FilterHasNotText:
		return fmt.Sprintf("filter({ hasNotText: %s%s })", f.Pattern, exact)
	case schemas.FilterAccessibleName:
		return fmt.Sprintf("filter({ hasAccessibleName: %s%s })", f.Pattern, exact)
	case schemas.FilterVisible:
		return "visible=true"
	}
	return ""
}
