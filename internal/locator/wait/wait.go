// internal/locator/wait/wait.go
package wait

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/scalpel-locator/api/schemas"
)

const (
	DefaultTimeout  = 30 * time.Second
	DefaultInterval = 100 * time.Millisecond
)

// Resolver returns the current matches of a locator. Returning an error that
// wraps schemas.ErrDetached tells the waiter the target can no longer appear.
type Resolver func(ctx context.Context) ([]*html.Node, error)

// TimeoutError is returned when the awaited condition did not hold before the
// deadline.
type TimeoutError struct {
	Description string
	State       string
	Timeout     time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("waiting for %s to be %s: timeout %dms exceeded",
		e.Description, e.State, e.Timeout.Milliseconds())
}

// Unwrap lets callers match with errors.Is(err, schemas.ErrTimeout).
func (e *TimeoutError) Unwrap() error { return schemas.ErrTimeout }

// Waiter polls a resolver at a fixed interval until a condition holds.
type Waiter struct {
	checker  *Checker
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger
}

// NewWaiter creates a waiter. Zero durations fall back to the defaults.
func NewWaiter(checker *Checker, interval, timeout time.Duration, logger *zap.Logger) *Waiter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Waiter{checker: checker, interval: interval, timeout: timeout, logger: logger.Named("wait")}
}

// Checker returns the state checker the waiter polls with.
func (w *Waiter) Checker() *Checker { return w.checker }

// Timeout returns the timeout used when a call passes zero.
func (w *Waiter) Timeout() time.Duration { return w.timeout }

// For waits until the first match of resolve reaches state. It returns that
// element, or nil for the hidden and detached states when nothing matches.
func (w *Waiter) For(ctx context.Context, desc string, resolve Resolver, state schemas.WaitState, timeout time.Duration) (*html.Node, error) {
	var accept func([]*html.Node) (*html.Node, bool)
	switch state {
	case schemas.StateAttached:
		accept = func(nodes []*html.Node) (*html.Node, bool) {
			if len(nodes) == 0 {
				return nil, false
			}
			return nodes[0], true
		}
	case schemas.StateDetached:
		accept = func(nodes []*html.Node) (*html.Node, bool) { return nil, len(nodes) == 0 }
	case schemas.StateHidden:
		accept = func(nodes []*html.Node) (*html.Node, bool) {
			if len(nodes) == 0 {
				return nil, true
			}
			return nodes[0], !w.checker.IsVisible(nodes[0])
		}
	case schemas.StateVisible, "":
		state = schemas.StateVisible
		accept = w.firstWhere(w.checker.IsVisible)
	default:
		return nil, fmt.Errorf("unknown wait state %q", state)
	}
	return w.poll(ctx, desc, string(state), resolve, timeout, accept)
}

// ForClickable waits for a visible and enabled first match.
func (w *Waiter) ForClickable(ctx context.Context, desc string, resolve Resolver, timeout time.Duration) (*html.Node, error) {
	return w.poll(ctx, desc, "visible and enabled", resolve, timeout, w.firstWhere(w.checker.IsClickable))
}

// ForEditable waits for a visible, enabled and editable first match.
func (w *Waiter) ForEditable(ctx context.Context, desc string, resolve Resolver, timeout time.Duration) (*html.Node, error) {
	return w.poll(ctx, desc, "editable", resolve, timeout, w.firstWhere(func(n *html.Node) bool {
		return w.checker.IsVisible(n) && w.checker.IsEditable(n)
	}))
}

func (w *Waiter) firstWhere(pred func(*html.Node) bool) func([]*html.Node) (*html.Node, bool) {
	return func(nodes []*html.Node) (*html.Node, bool) {
		if len(nodes) == 0 || !pred(nodes[0]) {
			return nil, false
		}
		return nodes[0], true
	}
}

func (w *Waiter) poll(ctx context.Context, desc, state string, resolve Resolver, timeout time.Duration,
	accept func([]*html.Node) (*html.Node, bool)) (*html.Node, error) {
	if timeout <= 0 {
		timeout = w.timeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(w.interval), 1)
	polls := 0
	for {
		if err := limiter.Wait(waitCtx); err != nil {
			// The limiter refuses a wait that would overrun the deadline;
			// sit out the remainder and take one last look.
			<-waitCtx.Done()
			break
		}
		polls++
		n, done, err := w.check(waitCtx, resolve, accept)
		if done {
			w.logger.Debug("Wait condition met",
				zap.String("locator", desc),
				zap.String("state", state),
				zap.Int("polls", polls),
				zap.Error(err))
			return n, err
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n, done, err := w.check(ctx, resolve, accept); done {
		return n, err
	}
	w.logger.Debug("Wait timed out",
		zap.String("locator", desc),
		zap.String("state", state),
		zap.Duration("timeout", timeout),
		zap.Int("polls", polls))
	return nil, &TimeoutError{Description: desc, State: state, Timeout: timeout}
}

// check runs one resolution. done is set when polling must stop, either
// because the condition holds or because of a terminal error.
func (w *Waiter) check(ctx context.Context, resolve Resolver,
	accept func([]*html.Node) (*html.Node, bool)) (*html.Node, bool, error) {
	nodes, err := resolve(ctx)
	switch {
	case err == nil:
	case errors.Is(err, schemas.ErrDetached):
		if n, ok := accept(nil); ok {
			return n, true, nil
		}
		return nil, true, err
	case ctx.Err() != nil:
		return nil, false, nil
	default:
		return nil, true, err
	}
	n, ok := accept(nodes)
	return n, ok, nil
}
