// internal/locator/page.go
package locator

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-locator/api/schemas"
	"github.com/xkilldash9x/scalpel-locator/internal/browser/dom"
	"github.com/xkilldash9x/scalpel-locator/internal/browser/jsexec"
	"github.com/xkilldash9x/scalpel-locator/internal/browser/style"
	"github.com/xkilldash9x/scalpel-locator/internal/config"
	"github.com/xkilldash9x/scalpel-locator/internal/locator/action"
	"github.com/xkilldash9x/scalpel-locator/internal/locator/framework"
	"github.com/xkilldash9x/scalpel-locator/internal/locator/query"
	"github.com/xkilldash9x/scalpel-locator/internal/locator/selector"
	"github.com/xkilldash9x/scalpel-locator/internal/locator/wait"
)

// Page is the root of every locator chain over one document. Its
// collaborators are fixed at construction.
type Page struct {
	doc        *dom.Document
	cfg        config.LocatorConfig
	compiler   *selector.Compiler
	engine     *query.Engine
	waiter     *wait.Waiter
	dispatcher *action.Dispatcher
	logger     *zap.Logger

	runtimeOnce sync.Once
	runtime     *jsexec.Runtime
}

type pageOptions struct {
	logger    *zap.Logger
	cfg       config.LocatorConfig
	adapters  []framework.Adapter
	hasAdapt  bool
	simulator action.EventSimulator
}

// Option configures a Page.
type Option func(*pageOptions)

// WithLogger sets the logger every component derives its named logger from.
func WithLogger(logger *zap.Logger) Option {
	return func(o *pageOptions) { o.logger = logger }
}

// WithConfig replaces the locator configuration. Adapters named in it are
// looked up unless WithAdapters is also given.
func WithConfig(cfg config.LocatorConfig) Option {
	return func(o *pageOptions) { o.cfg = cfg }
}

// WithAdapters installs framework adapters in priority order. An empty list
// disables framework dispatch.
func WithAdapters(adapters ...framework.Adapter) Option {
	return func(o *pageOptions) {
		o.adapters = adapters
		o.hasAdapt = true
	}
}

// WithSimulator replaces the native event simulator.
func WithSimulator(sim action.EventSimulator) Option {
	return func(o *pageOptions) { o.simulator = sim }
}

// WithTestIDAttribute changes the attribute GetByTestID matches.
func WithTestIDAttribute(attr string) Option {
	return func(o *pageOptions) { o.cfg.TestIDAttribute = attr }
}

// NewPage wires the query, wait and action engines over doc.
func NewPage(doc *dom.Document, opts ...Option) (*Page, error) {
	if doc == nil {
		return nil, fmt.Errorf("page requires a document")
	}
	o := &pageOptions{cfg: config.NewDefaultConfig().Locator()}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid locator configuration: %w", err)
	}

	adapters := o.adapters
	if !o.hasAdapt {
		var err error
		adapters, err = framework.Lookup(o.logger, o.cfg.Adapters...)
		if err != nil {
			return nil, err
		}
	}

	styles := style.NewEngine()
	compiler := selector.NewCompiler(o.cfg.TestIDAttribute)
	p := &Page{
		doc:      doc,
		cfg:      o.cfg,
		compiler: compiler,
		engine:   query.NewEngine(doc, compiler, styles, o.logger),
		waiter:   wait.NewWaiter(wait.NewChecker(doc, styles), o.cfg.PollInterval, o.cfg.DefaultTimeout, o.logger),
		dispatcher: action.NewDispatcher(doc, action.Options{
			Adapters:  adapters,
			Simulator: o.simulator,
			BlurDelay: o.cfg.BlurDelay,
			Logger:    o.logger,
		}),
		logger: o.logger.Named("locator"),
	}
	return p, nil
}

// Document returns the document the page queries.
func (p *Page) Document() *dom.Document { return p.doc }

// DefaultTimeout is the bound of waiting operations.
func (p *Page) DefaultTimeout() time.Duration { return p.cfg.DefaultTimeout }

// PollInterval is how often waiting operations re-resolve.
func (p *Page) PollInterval() time.Duration { return p.cfg.PollInterval }

// Close waits for deferred events scheduled by earlier actions.
func (p *Page) Close() {
	p.dispatcher.Wait()
}

func (p *Page) js() *jsexec.Runtime {
	p.runtimeOnce.Do(func() {
		p.runtime = jsexec.NewRuntime(p.doc, p.logger)
	})
	return p.runtime
}

// -- Roots --

func (p *Page) root(s *schemas.QueryStrategy) *Locator {
	return &Locator{page: p, target: &query.Target{Strategy: s}}
}

// Locator finds elements matching a CSS selector or XPath expression.
func (p *Page) Locator(sel string) *Locator {
	return p.root(&schemas.QueryStrategy{Kind: schemas.KindSelector, Selector: sel})
}

// GetByRole finds elements by ARIA role, optionally narrowed by name and
// state.
func (p *Page) GetByRole(role string, opts *schemas.RoleOptions) *Locator {
	return p.root(roleStrategy(role, opts))
}

// GetByText finds elements whose own text matches.
func (p *Page) GetByText(text schemas.TextPattern, exact bool) *Locator {
	return p.root(patternStrategy(schemas.KindText, text, exact))
}

// GetByLabel finds form controls by their label. An empty exact label
// matches controls that have no accessible name.
func (p *Page) GetByLabel(text schemas.TextPattern, exact bool) *Locator {
	return p.root(patternStrategy(schemas.KindLabel, text, exact))
}

func (p *Page) GetByPlaceholder(text schemas.TextPattern, exact bool) *Locator {
	return p.root(patternStrategy(schemas.KindPlaceholder, text, exact))
}

// GetByTestID matches the configured test id attribute exactly.
func (p *Page) GetByTestID(id schemas.TextPattern) *Locator {
	return p.root(patternStrategy(schemas.KindTestID, id, true))
}

func (p *Page) GetByTitle(text schemas.TextPattern, exact bool) *Locator {
	return p.root(patternStrategy(schemas.KindTitle, text, exact))
}

func (p *Page) GetByAltText(text schemas.TextPattern, exact bool) *Locator {
	return p.root(patternStrategy(schemas.KindAltText, text, exact))
}

func roleStrategy(role string, opts *schemas.RoleOptions) *schemas.QueryStrategy {
	s := &schemas.QueryStrategy{Kind: schemas.KindRole, Role: role}
	if opts != nil {
		s.RoleOpts = *opts
	}
	return s
}

func patternStrategy(kind schemas.StrategyKind, p schemas.TextPattern, exact bool) *schemas.QueryStrategy {
	return &schemas.QueryStrategy{Kind: kind, Pattern: p, Exact: exact}
}
