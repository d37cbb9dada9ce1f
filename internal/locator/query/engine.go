// internal/locator/query/engine.go
package query

import (
	"context"
	"fmt"
	"sort"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/scalpel-locator/api/schemas"
	"github.com/xkilldash9x/scalpel-locator/internal/browser/dom"
	"github.com/xkilldash9x/scalpel-locator/internal/browser/style"
	"github.com/xkilldash9x/scalpel-locator/internal/locator/aria"
	"github.com/xkilldash9x/scalpel-locator/internal/locator/selector"
)

// Target is everything needed to resolve a locator. Strategy carries its own
// structural parent chain; Scope is the parent locator when that locator has
// filters of its own, so its filtered result becomes the search root.
type Target struct {
	Strategy *schemas.QueryStrategy
	Filters  []schemas.FilterSpec
	Scope    *Target
	// Pinned short-circuits the query to one concrete element, which is still
	// checked for document membership on every resolution.
	Pinned *html.Node
}

// Engine runs targets against a live document. Nothing is cached between
// calls; every Resolve sees the current DOM.
type Engine struct {
	doc      *dom.Document
	compiler *selector.Compiler
	styles   *style.Engine
	logger   *zap.Logger
}

// NewEngine wires a query engine. A nil logger is replaced with a no-op one.
func NewEngine(doc *dom.Document, compiler *selector.Compiler, styles *style.Engine, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if compiler == nil {
		compiler = selector.NewCompiler("")
	}
	if styles == nil {
		styles = style.NewEngine()
	}
	return &Engine{doc: doc, compiler: compiler, styles: styles, logger: logger.Named("query")}
}

// Document returns the document the engine queries.
func (e *Engine) Document() *dom.Document { return e.doc }

// Compiler returns the selector compiler in use.
func (e *Engine) Compiler() *selector.Compiler { return e.compiler }

// Styles returns the style engine used for visibility checks.
func (e *Engine) Styles() *style.Engine { return e.styles }

// Resolve returns the elements t matches, in document order per search
// root. An empty scope yields an empty result without a global query.
func (e *Engine) Resolve(ctx context.Context, t *Target) ([]*html.Node, error) {
	var (
		out []*html.Node
		err error
	)
	e.doc.View(func(root *html.Node) {
		r := &run{
			engine:   e,
			root:     root,
			resolver: aria.NewResolver(e.doc, e.styles.Snapshot(root)),
		}
		out, err = r.resolve(ctx, t)
	})
	if err != nil {
		return nil, err
	}
	e.logger.Debug("Resolved target",
		zap.String("selector", Describe(t)),
		zap.Int("count", len(out)))
	return out, nil
}

// run holds per-resolution state. It lives only inside Document.View.
type run struct {
	engine   *Engine
	root     *html.Node
	resolver *aria.Resolver
	order    map[*html.Node]int
}

func (r *run) resolve(ctx context.Context, t *Target) ([]*html.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if t.Pinned != nil {
		if dom.RootOf(t.Pinned) != r.root {
			return nil, nil
		}
		return ApplyFilters(r.resolver, []*html.Node{t.Pinned}, t.Filters), nil
	}

	var bases []*html.Node
	scoped := t.Scope != nil
	if scoped {
		var err error
		bases, err = r.resolve(ctx, t.Scope)
		if err != nil {
			return nil, err
		}
		if len(bases) == 0 {
			return nil, nil
		}
	}

	if t.Strategy == nil {
		if !scoped {
			return nil, fmt.Errorf("%w: target has neither strategy nor scope", schemas.ErrInvalidStrategy)
		}
		return ApplyFilters(r.resolver, bases, t.Filters), nil
	}
	if err := t.Strategy.Validate(); err != nil {
		return nil, err
	}

	nodes := bases
	for _, step := range t.Strategy.Chain() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		compiled, err := r.engine.compiler.CompileStep(step)
		if err != nil {
			return nil, err
		}
		var found []*html.Node
		if !scoped {
			found, err = r.query(r.root, compiled, false)
			if err != nil {
				return nil, err
			}
			scoped = true
		} else {
			if len(nodes) == 0 {
				return nil, nil
			}
			seen := make(map[*html.Node]bool)
			for _, base := range nodes {
				matches, err := r.query(base, compiled, true)
				if err != nil {
					return nil, err
				}
				for _, m := range matches {
					if !seen[m] {
						seen[m] = true
						found = append(found, m)
					}
				}
			}
		}
		nodes = ApplyFilters(r.resolver, found, compiled.PostFilters)
	}
	return ApplyFilters(r.resolver, nodes, t.Filters), nil
}

// query runs one compiled step from ctxNode. Scoped XPath is relativized so
// that absolute arms search below ctxNode.
func (r *run) query(ctxNode *html.Node, c selector.Compiled, scoped bool) ([]*html.Node, error) {
	if !c.IsXPath() {
		group, err := cascadia.ParseGroup(c.CSS)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", schemas.ErrInvalidSelector, err)
		}
		return cascadia.QueryAll(ctxNode, group), nil
	}
	expr := c.XPath
	if scoped {
		expr = selector.Relativize(expr)
	}
	nodes, err := htmlquery.QueryAll(ctxNode, expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", schemas.ErrInvalidSelector, err)
	}
	elems := nodes[:0]
	seen := make(map[*html.Node]bool, len(nodes))
	for _, n := range nodes {
		if dom.IsElement(n) && !seen[n] {
			seen[n] = true
			elems = append(elems, n)
		}
	}
	r.sortDocumentOrder(elems)
	return elems, nil
}

func (r *run) sortDocumentOrder(nodes []*html.Node) {
	if len(nodes) < 2 {
		return
	}
	if r.order == nil {
		r.order = make(map[*html.Node]int)
		i := 0
		dom.Walk(r.root, func(n *html.Node) bool {
			r.order[n] = i
			i++
			return true
		})
	}
	sort.SliceStable(nodes, func(i, j int) bool { return r.order[nodes[i]] < r.order[nodes[j]] })
}

// Describe renders a target in the chained locator notation.
func Describe(t *Target) string {
	if t == nil {
		return ""
	}
	var s string
	if t.Scope != nil {
		s = Describe(t.Scope)
	}
	var own string
	switch {
	case t.Pinned != nil:
		own = "locator('" + dom.GenerateUniqueXPath(t.Pinned) + "')"
	case t.Strategy != nil:
		own = selector.Describe(t.Strategy)
	}
	s = joinDescription(s, own)
	for _, f := range t.Filters {
		s = joinDescription(s, selector.DescribeFilter(f))
	}
	return s
}

func joinDescription(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + " >> " + b
}
