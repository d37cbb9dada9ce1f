// -- cmd/helpers.go --
package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-locator/internal/browser/dom"
	"github.com/xkilldash9x/scalpel-locator/internal/config"
	"github.com/xkilldash9x/scalpel-locator/internal/locator"
	"github.com/xkilldash9x/scalpel-locator/internal/script"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// targetFlags holds the locator flags shared by query and compile.
type targetFlags struct {
	selector    string
	role        string
	name        string
	text        string
	label       string
	placeholder string
	testID      string
	title       string
	altText     string
	exact       bool
	within      string
	hasText     string
	hasNotText  string
	nth         int
	last        bool
}

func (f *targetFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&f.selector, "selector", "s", "", "CSS selector or XPath expression")
	fs.StringVar(&f.role, "role", "", "ARIA role")
	fs.StringVar(&f.name, "name", "", "Accessible name, used with --role")
	fs.StringVar(&f.text, "text", "", "Element text")
	fs.StringVar(&f.label, "label", "", "Label text of a form control")
	fs.StringVar(&f.placeholder, "placeholder", "", "Placeholder text")
	fs.StringVar(&f.testID, "test-id", "", "Test id attribute value")
	fs.StringVar(&f.title, "title", "", "Title attribute")
	fs.StringVar(&f.altText, "alt-text", "", "Alt text")
	fs.BoolVar(&f.exact, "exact", false, "Match text exactly (case-sensitive, whole string)")
	fs.StringVar(&f.within, "within", "", "CSS selector or XPath the query is scoped under")
	fs.StringVar(&f.hasText, "has-text", "", "Keep matches containing this text")
	fs.StringVar(&f.hasNotText, "has-not-text", "", "Drop matches containing this text")
	fs.IntVar(&f.nth, "nth", -1, "Keep only the match at this zero-based index, negative counts from the end")
	fs.BoolVar(&f.last, "last", false, "Keep only the last match")
}

// target converts the flags into a script target. Patterns written as /re/
// are regular expressions.
func (f *targetFlags) target(cmd *cobra.Command) (*script.Target, error) {
	t := &script.Target{
		Selector: f.selector,
		Role:     f.role,
		Exact:    f.exact,
		Last:     f.last,
	}
	opt := func(flag, value string) *string {
		if cmd.Flags().Changed(flag) {
			return &value
		}
		return nil
	}
	t.Name = opt("name", f.name)
	t.Text = opt("text", f.text)
	t.Label = opt("label", f.label)
	t.Placeholder = opt("placeholder", f.placeholder)
	t.TestID = opt("test-id", f.testID)
	t.Title = opt("title", f.title)
	t.AltText = opt("alt-text", f.altText)
	t.HasText = opt("has-text", f.hasText)
	t.HasNotText = opt("has-not-text", f.hasNotText)
	if cmd.Flags().Changed("nth") {
		nth := f.nth
		t.Nth = &nth
	}
	if f.within != "" {
		t.Within = &script.Target{Selector: f.within}
	}
	if err := script.ValidateTarget(t); err != nil {
		return nil, err
	}
	return t, nil
}

// loadDocument parses an HTML file, or stdin when path is "-". Files ending
// in .gz, .br or .zz are decompressed first.
func loadDocument(cmd *cobra.Command, path string, logger *zap.Logger) (*dom.Document, error) {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open document: %w", err)
		}
		defer f.Close()
		r = f
	}
	dr, err := dom.Decompress(r, dom.EncodingFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	defer dr.Close()
	doc, err := dom.Parse(dr, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return doc, nil
}

// newPage builds a page over doc from the locator configuration.
func newPage(doc *dom.Document, cfg *config.Config, logger *zap.Logger) (*locator.Page, error) {
	return locator.NewPage(doc, locator.WithConfig(cfg.Locator()), locator.WithLogger(logger))
}

func isJSON(cfg *config.Config) bool {
	return strings.EqualFold(cfg.CLI().OutputFormat, "json")
}

// writeJSON prints v indented to the command's output.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
