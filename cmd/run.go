// -- cmd/run.go --
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/scalpel-locator/internal/browser/dom"
	"github.com/xkilldash9x/scalpel-locator/internal/config"
	"github.com/xkilldash9x/scalpel-locator/internal/observability"
	"github.com/xkilldash9x/scalpel-locator/internal/script"
)

// RunReport is the outcome of one script over one document.
type RunReport struct {
	Document string              `json:"document"`
	Script   string              `json:"script"`
	Passed   bool                `json:"passed"`
	Error    string              `json:"error,omitempty"`
	Steps    []script.StepResult `json:"steps"`
	Duration time.Duration       `json:"duration"`
	Output   string              `json:"output,omitempty"`
}

func newRunCmd() *cobra.Command {
	var (
		outDir      string
		junitPath   string
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "run <script.yaml> <file.html>...",
		Short: "Runs a step script against one or more HTML documents",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromContext(cmd.Context())
			if err != nil {
				return err
			}
			logger := observability.GetLogger()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open script: %w", err)
			}
			s, err := script.Parse(f)
			f.Close()
			if err != nil {
				return err
			}

			if outDir != "" {
				if err := os.MkdirAll(outDir, 0o755); err != nil {
					return fmt.Errorf("failed to create output directory: %w", err)
				}
			}

			docs := args[1:]
			reports := make([]RunReport, len(docs))
			g, ctx := errgroup.WithContext(cmd.Context())
			if concurrency > 0 {
				g.SetLimit(concurrency)
			}
			for i, path := range docs {
				i, path := i, path
				g.Go(func() error {
					rep, err := runDocument(ctx, cmd, cfg, s, path, outDir, logger)
					reports[i] = rep
					return err
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			if junitPath != "" {
				if err := writeJUnit(junitPath, s.Name, reports); err != nil {
					return err
				}
			}

			failed := 0
			for _, r := range reports {
				if !r.Passed {
					failed++
				}
			}
			if isJSON(cfg) {
				if err := writeJSON(cmd, reports); err != nil {
					return err
				}
			} else {
				printReports(cmd, reports)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d document(s) failed", failed, len(reports))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "", "Directory the final DOM of each document is written to")
	cmd.Flags().StringVar(&junitPath, "junit", "", "Write a JUnit XML report to this file")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "j", 4, "Documents processed in parallel (0 for unlimited)")
	return cmd
}

// runDocument runs s over one document. Script failures are reported in the
// result; only failures to load or write the document are returned.
func runDocument(ctx context.Context, cmd *cobra.Command, cfg *config.Config, s *script.Script, path, outDir string, logger *zap.Logger) (RunReport, error) {
	rep := RunReport{Document: path, Script: s.Name}
	log := logger.With(zap.String("document", path))

	doc, err := loadDocument(cmd, path, log)
	if err != nil {
		return rep, err
	}
	page, err := newPage(doc, cfg, log)
	if err != nil {
		return rep, err
	}

	start := time.Now()
	steps, runErr := script.Run(ctx, page, s, log)
	page.Close()
	rep.Duration = time.Since(start)
	rep.Steps = steps
	rep.Passed = runErr == nil
	if runErr != nil {
		rep.Error = runErr.Error()
	}
	log.Info("Script finished.", zap.Bool("passed", rep.Passed), zap.Duration("duration", rep.Duration))

	if outDir != "" {
		markup, err := doc.HTML()
		if err != nil {
			return rep, err
		}
		name := filepath.Base(path)
		if dom.EncodingFromPath(name) != "identity" {
			name = strings.TrimSuffix(name, filepath.Ext(name))
		}
		rep.Output = filepath.Join(outDir, name)
		if err := os.WriteFile(rep.Output, []byte(markup), 0o644); err != nil {
			return rep, fmt.Errorf("failed to write %s: %w", rep.Output, err)
		}
	}
	return rep, nil
}

func printReports(cmd *cobra.Command, reports []RunReport) {
	out := cmd.OutOrStdout()
	for _, r := range reports {
		status := "PASS"
		if !r.Passed {
			status = "FAIL"
		}
		fmt.Fprintf(out, "%s %s (%s, %s)\n", status, r.Document, r.Script, r.Duration.Round(time.Millisecond))
		for _, st := range r.Steps {
			mark := "ok"
			if st.Error != "" {
				mark = "error: " + st.Error
			}
			fmt.Fprintf(out, "  %d. %s %s: %s\n", st.Index, st.Action, st.Locator, mark)
		}
	}
}
