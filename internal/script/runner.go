// internal/script/runner.go
package script

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/scalpel-locator/api/schemas"
	"github.com/xkilldash9x/scalpel-locator/internal/browser/dom"
	"github.com/xkilldash9x/scalpel-locator/internal/locator"
)

// StepResult is the outcome of one step.
type StepResult struct {
	Index    int           `json:"index"`
	Action   string        `json:"action"`
	Locator  string        `json:"locator"`
	Method   string        `json:"method,omitempty"`
	Value    any           `json:"value,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Run executes the steps in order and stops at the first failure. The
// results cover every step attempted.
func Run(ctx context.Context, page *locator.Page, s *Script, logger *zap.Logger) ([]StepResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("script").With(zap.String("script", s.Name))
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.Timeout)*time.Millisecond)
		defer cancel()
	}

	results := make([]StepResult, 0, len(s.Steps))
	for i := range s.Steps {
		st := &s.Steps[i]
		res := StepResult{Index: i + 1, Action: st.Action()}
		start := time.Now()
		err := runStep(ctx, page, st, &res)
		res.Duration = time.Since(start)
		if err != nil {
			res.Error = err.Error()
			results = append(results, res)
			logger.Warn("Step failed.", zap.Int("step", res.Index), zap.String("action", res.Action), zap.Error(err))
			return results, fmt.Errorf("step %d (%s): %w", res.Index, res.Action, err)
		}
		logger.Debug("Step completed.",
			zap.Int("step", res.Index),
			zap.String("action", res.Action),
			zap.String("locator", res.Locator),
			zap.Duration("duration", res.Duration))
		results = append(results, res)
	}
	return results, nil
}

func runStep(ctx context.Context, page *locator.Page, st *Step, res *StepResult) error {
	l, err := st.Build(page)
	if err != nil {
		return err
	}
	res.Locator = l.String()

	var ar schemas.ActionResult
	switch {
	case st.Click:
		ar, err = l.Click(ctx)
	case st.Dblclick:
		ar, err = l.Dblclick(ctx)
	case st.Hover:
		ar, err = l.Hover(ctx)
	case st.Fill != nil:
		ar, err = l.Fill(ctx, *st.Fill)
	case st.Check:
		ar, err = l.Check(ctx)
	case st.Uncheck:
		ar, err = l.Uncheck(ctx)
	case len(st.Select) > 0:
		var selected []string
		selected, ar, err = l.SelectOption(ctx, st.Select...)
		res.Value = selected
	case st.Press != "":
		ar, err = l.Press(ctx, st.Press)
	case st.Type != nil:
		ar, err = l.PressSequentially(ctx, *st.Type, 0)
	case st.ExpectVisible:
		_, err = l.WaitFor(ctx, locator.WaitForOptions{State: schemas.StateVisible})
	case st.ExpectHidden:
		_, err = l.WaitFor(ctx, locator.WaitForOptions{State: schemas.StateHidden})
	case st.ExpectCount != nil:
		want := *st.ExpectCount
		var got int
		err = poll(ctx, page, func() (bool, error) {
			var cerr error
			got, cerr = l.Count(ctx)
			return got == want, cerr
		})
		res.Value = got
		if err != nil {
			err = expectation(err, "count is %d, want %d", got, want)
		}
	case st.ExpectText != nil:
		pat, perr := Pattern(*st.ExpectText)
		if perr != nil {
			return perr
		}
		var got string
		err = poll(ctx, page, func() (bool, error) {
			if n, cerr := l.Count(ctx); cerr != nil || n == 0 {
				return false, cerr
			}
			text, terr := l.TextContent(ctx)
			if terr != nil {
				return false, terr
			}
			got = dom.NormalizeWhitespace(text)
			return textMatches(pat, got), nil
		})
		res.Value = got
		if err != nil {
			err = expectation(err, "text is %q, want %s", got, *st.ExpectText)
		}
	default:
		return fmt.Errorf("step has no action")
	}
	if err != nil {
		return err
	}
	res.Method = ar.Method
	return nil
}

// poll re-evaluates check until it reports done, the page timeout elapses or
// ctx ends. The timeout surfaces as schemas.ErrTimeout.
func poll(ctx context.Context, page *locator.Page, check func() (bool, error)) error {
	pollCtx, cancel := context.WithTimeout(ctx, page.DefaultTimeout())
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(page.PollInterval()), 1)
	for limiter.Wait(pollCtx) == nil {
		if done, err := check(); err != nil || done {
			return err
		}
	}
	<-pollCtx.Done()
	if err := ctx.Err(); err != nil {
		return err
	}
	// One last look at the deadline.
	if done, err := check(); err != nil || done {
		return err
	}
	return schemas.ErrTimeout
}

func expectation(err error, format string, args ...any) error {
	if errors.Is(err, schemas.ErrTimeout) {
		return fmt.Errorf("%w: "+format, append([]any{ErrExpectation}, args...)...)
	}
	return err
}

// textMatches compares a literal against the whole normalized text and a
// regular expression anywhere in it.
func textMatches(p schemas.TextPattern, s string) bool {
	if p.IsRegexp() {
		return p.Regexp.MatchString(s)
	}
	return s == dom.NormalizeWhitespace(p.Text)
}
