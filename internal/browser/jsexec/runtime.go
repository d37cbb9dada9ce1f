// internal/browser/jsexec/runtime.go
package jsexec

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-locator/api/schemas"
	"github.com/xkilldash9x/scalpel-locator/internal/browser/dom"
	"github.com/xkilldash9x/scalpel-locator/internal/browser/jsbind"
)

// DefaultTimeout bounds a script when the context carries no deadline.
const DefaultTimeout = 30 * time.Second

// EvaluationError is raised when a page function throws or rejects.
type EvaluationError struct {
	Message string
	Cause   error
}

func (e *EvaluationError) Error() string {
	return "Evaluation failed: " + e.Message
}

func (e *EvaluationError) Is(target error) bool { return target == schemas.ErrEvaluation }

func (e *EvaluationError) Unwrap() error { return e.Cause }

// Runtime runs page functions against a document. One VM serves every
// call; calls are serialized.
type Runtime struct {
	vm        *goja.Runtime
	bridge    *jsbind.DOMBridge
	logger    *zap.Logger
	execMutex sync.Mutex

	handles map[string]goja.Value
}

// NewRuntime creates a VM with the DOM bindings for doc installed.
func NewRuntime(doc *dom.Document, logger *zap.Logger) *Runtime {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("jsexec")
	vm := goja.New()
	vm.SetFieldNameMapper(goja.UncapFieldNameMapper())
	return &Runtime{
		vm:      vm,
		bridge:  jsbind.NewDOMBridge(vm, doc, log),
		logger:  log,
		handles: make(map[string]goja.Value),
	}
}

// Bridge returns the DOM bindings of the runtime.
func (r *Runtime) Bridge() *jsbind.DOMBridge { return r.bridge }

// Invoke evaluates script. A script evaluating to a function is called with
// args; anything else is returned as is. Promises are awaited. The result is
// exported with nodes as *html.Node.
func (r *Runtime) Invoke(ctx context.Context, script string, args ...any) (any, error) {
	r.execMutex.Lock()
	defer r.execMutex.Unlock()

	v, err := r.invoke(ctx, script, args)
	if err != nil {
		return nil, err
	}
	return r.bridge.Export(v), nil
}

// Handle refers to a value kept alive inside the runtime.
type Handle struct {
	ID string
	rt *Runtime
}

// InvokeHandle is Invoke but keeps the result in the runtime and returns a
// handle to it.
func (r *Runtime) InvokeHandle(ctx context.Context, script string, args ...any) (*Handle, error) {
	r.execMutex.Lock()
	defer r.execMutex.Unlock()

	v, err := r.invoke(ctx, script, args)
	if err != nil {
		return nil, err
	}
	h := &Handle{ID: uuid.NewString(), rt: r}
	r.handles[h.ID] = v
	r.logger.Debug("Created handle", zap.String("handle", h.ID))
	return h, nil
}

// Value exports the value behind the handle. Disposed handles export nil.
func (h *Handle) Value() any {
	h.rt.execMutex.Lock()
	defer h.rt.execMutex.Unlock()
	v, ok := h.rt.handles[h.ID]
	if !ok {
		return nil
	}
	return h.rt.bridge.Export(v)
}

// Dispose releases the value. Later calls are no-ops.
func (h *Handle) Dispose() {
	h.rt.execMutex.Lock()
	defer h.rt.execMutex.Unlock()
	delete(h.rt.handles, h.ID)
}

func (r *Runtime) invoke(ctx context.Context, script string, args []any) (goja.Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	// The interrupt must not outlive this call.
	var fired sync.WaitGroup
	fired.Add(1)
	stop := context.AfterFunc(ctx, func() {
		defer fired.Done()
		r.vm.Interrupt(ctx.Err())
	})
	defer func() {
		if stop() {
			fired.Done()
		}
		fired.Wait()
		r.vm.ClearInterrupt()
	}()

	result, err := r.run(script, args)
	if err != nil {
		return nil, r.classify(ctx, err)
	}

	if p, ok := result.Export().(*goja.Promise); ok {
		switch p.State() {
		case goja.PromiseStateFulfilled:
			return p.Result(), nil
		case goja.PromiseStateRejected:
			return nil, &EvaluationError{Message: r.message(p.Result())}
		default:
			return nil, &EvaluationError{Message: "promise did not settle"}
		}
	}
	return result, nil
}

func (r *Runtime) run(script string, args []any) (goja.Value, error) {
	body := strings.TrimRight(strings.TrimSpace(script), "; \t\n")
	prog, err := goja.Compile("", "("+body+"\n)", false)
	if err != nil {
		return nil, err
	}
	val, err := r.vm.RunProgram(prog)
	if err != nil {
		return nil, err
	}
	fn, ok := goja.AssertFunction(val)
	if !ok {
		if len(args) > 0 {
			r.logger.Debug("Arguments ignored for a non-function script.")
		}
		return val, nil
	}
	gojaArgs := make([]goja.Value, len(args))
	for i, arg := range args {
		gojaArgs[i] = r.toValue(arg)
	}
	return fn(goja.Undefined(), gojaArgs...)
}

func (r *Runtime) toValue(arg any) goja.Value {
	if h, ok := arg.(*Handle); ok {
		if v, ok := r.handles[h.ID]; ok {
			return v
		}
		return goja.Undefined()
	}
	return r.bridge.ToValue(arg)
}

// classify turns VM failures into context or evaluation errors.
func (r *Runtime) classify(ctx context.Context, err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("javascript execution interrupted: %w", ctxErr)
		}
		return fmt.Errorf("javascript execution interrupted: %w", err)
	}
	var exc *goja.Exception
	if errors.As(err, &exc) {
		return &EvaluationError{Message: r.message(exc.Value()), Cause: err}
	}
	var syntax *goja.CompilerSyntaxError
	if errors.As(err, &syntax) {
		return &EvaluationError{Message: syntax.Error(), Cause: err}
	}
	return &EvaluationError{Message: err.Error(), Cause: err}
}

// message prefers the message property of a thrown error object.
func (r *Runtime) message(v goja.Value) string {
	if v == nil {
		return "undefined"
	}
	if obj, ok := v.(*goja.Object); ok {
		if m := obj.Get("message"); m != nil && !goja.IsUndefined(m) {
			return m.String()
		}
	}
	return v.String()
}
