package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nao1215/toxguard/internal/cloak"
	"github.com/nao1215/toxguard/internal/model"
	"github.com/nao1215/toxguard/internal/page"
	"github.com/nao1215/toxguard/internal/pipeline"
	"github.com/nao1215/toxguard/internal/transport"
)

// DefaultRescanDelay is the quiet period after a page mutation before the
// new content is scanned.
const DefaultRescanDelay = 500 * time.Millisecond

// Executor runs inside one tab. It owns the page document, the cloak
// manager and the scan engine, and serves the tab's bus endpoint.
type Executor struct {
	doc        *page.Document
	cloak      *cloak.Manager
	engine     *pipeline.Engine
	logger     *slog.Logger
	nav        navigator
	rescanWait time.Duration
	engineOpts []pipeline.Option

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	tabID      int
	ep         *transport.Endpoint
	timer      *time.Timer
	unobserve  func()
	closed     bool
	rescanning sync.WaitGroup
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(x *Executor) {
		x.logger = logger
	}
}

// WithEngineOptions passes options to the scan engine.
func WithEngineOptions(opts ...pipeline.Option) Option {
	return func(x *Executor) {
		x.engineOpts = append(x.engineOpts, opts...)
	}
}

// WithRescanDelay sets the mutation debounce. Zero disables rescans on
// mutation.
func WithRescanDelay(d time.Duration) Option {
	return func(x *Executor) {
		if d >= 0 {
			x.rescanWait = d
		}
	}
}

// New creates an executor for doc.
func New(doc *page.Document, classifier pipeline.Classifier, opts ...Option) *Executor {
	x := &Executor{
		doc:        doc,
		rescanWait: DefaultRescanDelay,
	}
	for _, opt := range opts {
		opt(x)
	}
	if x.logger == nil {
		x.logger = slog.Default()
	}
	x.ctx, x.cancel = context.WithCancel(context.Background())
	x.cloak = cloak.New(doc, cloak.WithLogger(x.logger))
	x.nav = navigator{cloak: x.cloak}

	engineOpts := append([]pipeline.Option{pipeline.WithLogger(x.logger)}, x.engineOpts...)
	x.engine = pipeline.NewEngine(doc, x.cloak, classifier, pipeline.ReporterFunc(x.report), engineOpts...)
	return x
}

// Attach serves the executor at addr on bus and performs the handshake
// with the orchestrator to learn the tab id.
func (x *Executor) Attach(ctx context.Context, bus *transport.Bus, addr transport.Address) error {
	ep, err := bus.Attach(addr, x)
	if err != nil {
		return fmt.Errorf("failed to attach executor: %w", err)
	}

	reply, err := ep.Request(ctx, transport.OrchestratorAddress, transport.Hello{})
	if err != nil {
		ep.Close()
		return fmt.Errorf("handshake failed: %w", err)
	}
	hello, ok := reply.(transport.HelloReply)
	if !ok {
		ep.Close()
		return fmt.Errorf("handshake failed: unexpected reply %s", reply.Kind())
	}

	x.mu.Lock()
	x.ep = ep
	x.tabID = hello.TabID
	if x.rescanWait > 0 {
		x.unobserve = x.doc.Observe(x.mutated)
	}
	x.mu.Unlock()

	x.logger.Debug("executor attached", "tab", hello.TabID)
	return nil
}

// TabID returns the id learned in the handshake, 0 before Attach.
func (x *Executor) TabID() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.tabID
}

// Document returns the page document.
func (x *Executor) Document() *page.Document {
	return x.doc
}

// Cloak returns the cloak manager of the page.
func (x *Executor) Cloak() *cloak.Manager {
	return x.cloak
}

// Engine returns the scan engine of the page.
func (x *Executor) Engine() *pipeline.Engine {
	return x.engine
}

// Summary builds a scan summary from the latest progress and the wrappers
// on the page.
func (x *Executor) Summary(startedAt time.Time) *model.ScanSummary {
	s := model.NewSummary(x.doc.URL(), x.TabID(), startedAt, x.engine.Last())
	for _, w := range x.cloak.Wrappers() {
		s.AddMatch(w.ID, w.Verdict.TopLabel(), w.Verdict.Score, w.Original, w.State == cloak.StateRevealed)
	}
	return s
}

// Close stops the mutation observer, aborts the running scan and detaches
// from the bus.
func (x *Executor) Close(ctx context.Context) error {
	x.mu.Lock()
	if x.closed {
		x.mu.Unlock()
		return nil
	}
	x.closed = true
	if x.unobserve != nil {
		x.unobserve()
	}
	if x.timer != nil && x.timer.Stop() {
		x.rescanning.Done()
	}
	ep := x.ep
	x.mu.Unlock()

	x.rescanning.Wait()
	x.cancel()
	err := x.engine.Shutdown(ctx)
	if ep != nil {
		ep.Close()
	}
	return err
}

// report forwards engine progress to the orchestrator.
func (x *Executor) report(p model.Progress) {
	x.mu.Lock()
	ep, tab := x.ep, x.tabID
	x.mu.Unlock()
	if ep == nil {
		return
	}
	if err := ep.Post(transport.OrchestratorAddress, transport.ScanProgress{TabID: tab, Progress: p}); err != nil {
		x.logger.Debug("progress not delivered", "tab", tab, "run_id", p.RunID, "error", err)
	}
}

// mutated is the document observer. It restarts the rescan timer.
func (x *Executor) mutated() {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return
	}
	if x.timer != nil && x.timer.Stop() {
		x.rescanning.Done()
	}
	x.rescanning.Add(1)
	x.timer = time.AfterFunc(x.rescanWait, x.rescan)
}

// rescan scans content added since the last run. A busy engine retries
// after another delay.
func (x *Executor) rescan() {
	defer x.rescanning.Done()

	if _, ok := x.engine.Rescan(x.ctx); ok {
		return
	}
	if x.engine.State().IsActive() {
		x.mutated()
	}
}
