// internal/locator/framework/vue.go
package framework

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/scalpel-locator/api/schemas"
	"github.com/xkilldash9x/scalpel-locator/internal/browser/dom"
)

const (
	// VueComponentKey holds the owning component instance in Vue 3.
	VueComponentKey = "__vueParentComponent"
	// VueNodeKey holds the element's own vnode in Vue 3.
	VueNodeKey = "__vnode"
	// VueLegacyKey holds the component instance in Vue 2.
	VueLegacyKey = "__vue__"
)

// VNode carries the props a Vue 3 template bound on an element.
type VNode struct {
	Props map[string]any
}

// VueComponent is the slice of a component instance the adapter reads.
// VNode holds Vue 3 props such as onClick; Listeners holds Vue 2
// $listeners keyed by bare event name.
type VueComponent struct {
	Name      string
	VNode     *VNode
	Listeners map[string]any
	Parent    *VueComponent
}

// Vue dispatches through vnode props and component listeners.
type Vue struct {
	logger *zap.Logger
}

func NewVue(logger *zap.Logger) *Vue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Vue{logger: logger.Named("vue")}
}

func (v *Vue) Name() string { return "vue" }

func (v *Vue) IsComponentOf(doc *dom.Document, n *html.Node) bool {
	for _, key := range []string{VueComponentKey, VueNodeKey, VueLegacyKey} {
		if _, ok := doc.Property(n, key); ok {
			return true
		}
	}
	return false
}

func (v *Vue) TriggerEvent(ctx context.Context, doc *dom.Document, n *html.Node, eventType string, value *string) (schemas.ActionResult, error) {
	res, err := runHandlers(ctx, v.Name(), doc, n, eventType, value, func(prop string) (Handler, *html.Node) {
		return v.findHandler(doc, n, prop, eventType)
	})
	if !res.Success && err == nil && eventType == "input" {
		// v-model on a component listens for the model update instead.
		alt, altErr := runHandlers(ctx, v.Name(), doc, n, "update:modelValue", value, func(string) (Handler, *html.Node) {
			return v.findHandler(doc, n, "onUpdate:modelValue", "update:modelValue")
		})
		if alt.Success || altErr != nil {
			res, err = alt, altErr
		}
	}
	if !res.Success && err == nil {
		v.logger.Debug("No Vue handler found", zap.String("event", eventType), zap.String("element", dom.Describe(n)))
	}
	return res, err
}

func (v *Vue) TriggerInteractionEvents(ctx context.Context, doc *dom.Document, n *html.Node) error {
	return interact(ctx, v, doc, n)
}

// findHandler checks the element's vnode props, then walks the owning
// component chain for a vnode prop or a legacy listener named listener.
func (v *Vue) findHandler(doc *dom.Document, n *html.Node, prop, listener string) (Handler, *html.Node) {
	if raw, ok := doc.Property(n, VueNodeKey); ok {
		if vn, ok := raw.(*VNode); ok && vn != nil {
			if h, ok := asHandler(vn.Props[prop]); ok {
				return h, n
			}
		}
	}
	for _, key := range []string{VueComponentKey, VueLegacyKey} {
		raw, ok := doc.Property(n, key)
		if !ok {
			continue
		}
		c, ok := raw.(*VueComponent)
		if !ok {
			continue
		}
		for ; c != nil; c = c.Parent {
			if c.VNode != nil {
				if h, ok := asHandler(c.VNode.Props[prop]); ok {
					return h, n
				}
			}
			if h, ok := asHandler(c.Listeners[listener]); ok {
				return h, n
			}
		}
	}
	return nil, nil
}
