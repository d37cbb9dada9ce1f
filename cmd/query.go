// -- cmd/query.go --
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/scalpel-locator/api/schemas"
	"github.com/xkilldash9x/scalpel-locator/internal/browser/dom"
	"github.com/xkilldash9x/scalpel-locator/internal/locator"
	"github.com/xkilldash9x/scalpel-locator/internal/observability"
)

// Match is one element reported by the query command.
type Match struct {
	Index   int    `json:"index"`
	Element string `json:"element"`
	XPath   string `json:"xpath"`
	Text    string `json:"text,omitempty"`
	Visible bool   `json:"visible"`
}

// QueryResult is the query command's output.
type QueryResult struct {
	Locator string  `json:"locator"`
	Count   int     `json:"count"`
	Matches []Match `json:"matches"`
}

func newQueryCmd() *cobra.Command {
	var (
		flags targetFlags
		wait  bool
	)
	cmd := &cobra.Command{
		Use:   "query <file.html|->",
		Short: "Lists the elements a locator matches in an HTML document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromContext(cmd.Context())
			if err != nil {
				return err
			}
			logger := observability.GetLogger()

			t, err := flags.target(cmd)
			if err != nil {
				return err
			}
			doc, err := loadDocument(cmd, args[0], logger)
			if err != nil {
				return err
			}
			page, err := newPage(doc, cfg, logger)
			if err != nil {
				return err
			}
			defer page.Close()

			l, err := t.Build(page)
			if err != nil {
				return err
			}
			if wait {
				if _, err := l.WaitFor(cmd.Context(), locator.WaitForOptions{State: schemas.StateVisible}); err != nil {
					return err
				}
			}

			res, err := runQuery(cmd, l)
			if err != nil {
				return err
			}
			logger.Debug("Query resolved.", zap.String("locator", res.Locator), zap.Int("count", res.Count))

			if isJSON(cfg) {
				return writeJSON(cmd, res)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d match(es)\n", res.Locator, res.Count)
			for _, m := range res.Matches {
				fmt.Fprintf(out, "%d\t%s\t%s\n", m.Index, m.Element, m.XPath)
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait until the locator is visible before listing")
	return cmd
}

func runQuery(cmd *cobra.Command, l *locator.Locator) (*QueryResult, error) {
	ctx := cmd.Context()
	matches, err := l.All(ctx)
	if err != nil {
		return nil, err
	}
	res := &QueryResult{Locator: l.String(), Count: len(matches), Matches: []Match{}}
	for i, m := range matches {
		n, err := m.GetElement(ctx)
		if err != nil {
			return nil, err
		}
		match := Match{Index: i, Visible: m.IsVisible(ctx)}
		l.Page().Document().View(func(*html.Node) {
			match.Element = dom.Describe(n)
			match.XPath = dom.GenerateUniqueXPath(n)
			match.Text = dom.NormalizeWhitespace(dom.TextContent(n))
		})
		res.Matches = append(res.Matches, match)
	}
	return res, nil
}
