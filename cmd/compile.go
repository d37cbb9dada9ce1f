// -- cmd/compile.go --
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/scalpel-locator/internal/browser/dom"
	"github.com/xkilldash9x/scalpel-locator/internal/observability"
)

// CompileResult is the compile command's output.
type CompileResult struct {
	Locator     string `json:"locator"`
	CSS         string `json:"css,omitempty"`
	XPath       string `json:"xpath"`
	Approximate bool   `json:"approximate,omitempty"`
	PostFilters int    `json:"post_filters,omitempty"`
}

func newCompileCmd() *cobra.Command {
	var flags targetFlags
	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Prints the CSS or XPath a locator compiles to",
		Args:  cobra.NoArgs,
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
			doc, err := dom.ParseString("", logger)
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
			c, err := l.Compile()
			if err != nil {
				return err
			}
			res := CompileResult{
				Locator:     l.String(),
				CSS:         c.CSS,
				XPath:       c.AsXPath(),
				Approximate: c.Approximate,
				PostFilters: len(c.PostFilters),
			}

			if isJSON(cfg) {
				return writeJSON(cmd, res)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "locator: %s\n", res.Locator)
			if res.CSS != "" {
				fmt.Fprintf(out, "css:     %s\n", res.CSS)
			}
			fmt.Fprintf(out, "xpath:   %s\n", res.XPath)
			if res.Approximate {
				fmt.Fprintln(out, "note:    expression is approximate")
			}
			if res.PostFilters > 0 {
				fmt.Fprintf(out, "note:    %d post filter(s) run after the query\n", res.PostFilters)
			}
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}
