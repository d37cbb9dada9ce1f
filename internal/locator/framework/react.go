// internal/locator/framework/react.go
package framework

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/scalpel-locator/api/schemas"
	"github.com/xkilldash9x/scalpel-locator/internal/browser/dom"
)

// React internal keys carry a per-root random suffix, so they are matched
// by prefix.
const (
	ReactFiberPrefix    = "__reactFiber$"
	ReactInstancePrefix = "__reactInternalInstance$"
	ReactPropsPrefix    = "__reactProps$"
)

// Fiber is the slice of a React fiber node the adapter reads.
type Fiber struct {
	Type          string
	MemoizedProps map[string]any
	PendingProps  map[string]any
	Return        *Fiber
	StateNode     *html.Node
}

// React dispatches through the props of the fiber attached to an element.
type React struct {
	logger *zap.Logger
}

func NewReact(logger *zap.Logger) *React {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &React{logger: logger.Named("react")}
}

func (r *React) Name() string { return "react" }

func (r *React) IsComponentOf(doc *dom.Document, n *html.Node) bool {
	_, _, ok := propsWithPrefix(doc, n, ReactFiberPrefix, ReactInstancePrefix, ReactPropsPrefix)
	return ok
}

func (r *React) TriggerEvent(ctx context.Context, doc *dom.Document, n *html.Node, eventType string, value *string) (schemas.ActionResult, error) {
	res, err := runHandlers(ctx, r.Name(), doc, n, eventType, value, func(prop string) (Handler, *html.Node) {
		return r.findHandler(doc, n, prop)
	})
	if !res.Success && err == nil {
		r.logger.Debug("No React handler found", zap.String("event", eventType), zap.String("element", dom.Describe(n)))
	}
	return res, err
}

func (r *React) TriggerInteractionEvents(ctx context.Context, doc *dom.Document, n *html.Node) error {
	return interact(ctx, r, doc, n)
}

// findHandler looks in the props record first, then walks the fiber: its
// memoized props, its pending props, then each ancestor fiber in turn.
func (r *React) findHandler(doc *dom.Document, n *html.Node, prop string) (Handler, *html.Node) {
	if _, v, ok := propsWithPrefix(doc, n, ReactPropsPrefix); ok {
		if props, ok := v.(map[string]any); ok {
			if h, ok := asHandler(props[prop]); ok {
				return h, n
			}
		}
	}
	_, v, ok := propsWithPrefix(doc, n, ReactFiberPrefix, ReactInstancePrefix)
	if !ok {
		return nil, nil
	}
	fiber, ok := v.(*Fiber)
	if !ok {
		return nil, nil
	}
	for f := fiber; f != nil; f = f.Return {
		for _, props := range []map[string]any{f.MemoizedProps, f.PendingProps} {
			if h, ok := asHandler(props[prop]); ok {
				owner := f.StateNode
				if owner == nil {
					owner = n
				}
				return h, owner
			}
		}
	}
	return nil, nil
}
