package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nao1215/toxguard/internal/cloak"
	"github.com/nao1215/toxguard/internal/locator"
	"github.com/nao1215/toxguard/internal/model"
	"github.com/nao1215/toxguard/internal/page"
)

// Engine defaults.
const (
	// DefaultBatchSize is the number of fragments classified per call.
	DefaultBatchSize = 16

	// DefaultBatchPause is the pause between batches that lets the page
	// stay responsive.
	DefaultBatchPause = 8 * time.Millisecond

	// DefaultMinTextLength is the minimum trimmed length, in runes, of a
	// fragment worth classifying.
	DefaultMinTextLength = 6
)

// Classifier is the part of the classifier adapter the engine uses.
type Classifier interface {
	// Ready fails when the classifier cannot serve a run.
	Ready(ctx context.Context) error

	// ClassifyBatch returns one verdict per text; nil entries are omitted
	// items and count as non-toxic.
	ClassifyBatch(ctx context.Context, texts []string) ([]*model.Verdict, error)
}

// Reporter receives progress snapshots. Report must not block and must not
// call back into the engine.
type Reporter interface {
	Report(p model.Progress)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(model.Progress)

// Report implements Reporter.
func (f ReporterFunc) Report(p model.Progress) {
	f(p)
}

// RunCounter hands out run ids. Sharing one counter between the engines of
// a tab keeps run ids monotonic across page loads.
type RunCounter struct {
	n atomic.Uint64
}

// Next returns the next run id, starting at 1.
func (c *RunCounter) Next() uint64 {
	return c.n.Add(1)
}

// Advance makes sure the next id handed out is at least minID.
func (c *RunCounter) Advance(minID uint64) {
	for {
		cur := c.n.Load()
		if minID == 0 || cur+1 >= minID {
			return
		}
		if c.n.CompareAndSwap(cur, minID-1) {
			return
		}
	}
}

// Engine runs scans over one page document.
//
// At most one run is active at a time. A run moves through
// start -> running -> finishing and ends in done, aborted or error; every
// snapshot is handed to the Reporter. Cancellation is cooperative: the
// batch being classified finishes, its verdicts are discarded, and the run
// ends as aborted at the next checkpoint.
type Engine struct {
	doc        *page.Document
	cloak      *cloak.Manager
	classifier Classifier
	reporter   Reporter
	logger     *slog.Logger
	counter    *RunCounter

	batchSize int
	pause     time.Duration
	maxLen    int
	minLen    int

	mu      sync.Mutex
	run     *run
	last    model.Progress
	pending *pendingStart
	wg      sync.WaitGroup
}

// run is the mutable state of one scan.
type run struct {
	id          uint64
	ctx         context.Context
	incremental bool
	state       model.RunState
	aborted     bool
	abort       chan struct{}
	done        chan struct{}

	total int
	seen  int
	hits  int
}

type pendingStart struct {
	ctx         context.Context
	incremental bool
	minID       uint64
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithBatchSize sets the number of fragments per classifier call.
func WithBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithBatchPause sets the pause between batches. Zero disables it.
func WithBatchPause(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.pause = d
		}
	}
}

// WithMaxTextLength sets the clip length passed to the locator.
func WithMaxTextLength(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxLen = n
		}
	}
}

// WithMinTextLength sets the minimum fragment length.
func WithMinTextLength(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.minLen = n
		}
	}
}

// WithRunCounter shares a run id counter with other engines.
func WithRunCounter(c *RunCounter) Option {
	return func(e *Engine) {
		if c != nil {
			e.counter = c
		}
	}
}

// NewEngine creates an engine for doc. All mutations of doc go through cm.
func NewEngine(doc *page.Document, cm *cloak.Manager, classifier Classifier, reporter Reporter, opts ...Option) *Engine {
	e := &Engine{
		doc:        doc,
		cloak:      cm,
		classifier: classifier,
		reporter:   reporter,
		batchSize:  DefaultBatchSize,
		pause:      DefaultBatchPause,
		maxLen:     locator.DefaultMaxTextLength,
		minLen:     DefaultMinTextLength,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.counter == nil {
		e.counter = &RunCounter{}
	}
	return e
}

// Start begins a full scan: previous wrappers are cleared and the whole
// page is enumerated again. It returns the new run id and true, or false
// when a run is already active.
//
// A start that arrives while the active run is aborted and still draining
// is remembered and begins as soon as that run terminates.
func (e *Engine) Start(ctx context.Context) (uint64, bool) {
	return e.begin(ctx, false, 0)
}

// StartFrom is Start with a lower bound on the run id. The orchestrator
// passes the id it expects so that it can tell a run it abandoned before
// hearing from it apart from the next one.
func (e *Engine) StartFrom(ctx context.Context, minID uint64) (uint64, bool) {
	return e.begin(ctx, false, minID)
}

// Rescan begins an incremental scan that keeps existing wrappers and only
// classifies text added since, e.g. after dynamic content was appended.
// The hit count of the run includes the wrappers already on the page.
func (e *Engine) Rescan(ctx context.Context) (uint64, bool) {
	return e.begin(ctx, true, 0)
}

func (e *Engine) begin(ctx context.Context, incremental bool, minID uint64) (uint64, bool) {
	e.mu.Lock()
	if e.run != nil && e.run.state.IsActive() {
		if e.run.aborted {
			// a full start supersedes a queued rescan
			if e.pending == nil || !incremental {
				e.pending = &pendingStart{ctx: ctx, incremental: incremental, minID: minID}
			}
			e.logger.Debug("start queued behind aborted run", "run_id", e.run.id)
		} else {
			e.logger.Debug("start ignored, run in progress", "run_id", e.run.id)
		}
		e.mu.Unlock()
		return 0, false
	}
	r := e.reserve(ctx, incremental, minID)
	e.mu.Unlock()

	e.setup(r)
	return r.id, true
}

// reserve must be called with e.mu held.
func (e *Engine) reserve(ctx context.Context, incremental bool, minID uint64) *run {
	e.counter.Advance(minID)
	r := &run{
		id:          e.counter.Next(),
		ctx:         ctx,
		incremental: incremental,
		state:       model.RunStateStarting,
		abort:       make(chan struct{}),
		done:        make(chan struct{}),
	}
	e.run = r
	e.wg.Add(1)
	return r
}

// setup prepares the run and hands it to the pump. It runs without e.mu.
func (e *Engine) setup(r *run) {
	if err := e.classifier.Ready(r.ctx); err != nil {
		e.logger.Error("scan setup failed", "run_id", r.id, "error", err)
		e.finish(r, model.RunStateError, err.Error())
		return
	}

	if r.incremental {
		r.hits = e.cloak.Count()
	} else {
		e.cloak.ClearAll()
	}
	frags := locator.Locate(e.doc, locator.Options{MaxTextLength: e.maxLen})
	r.total = len(frags)

	e.logger.Info("scan started",
		"run_id", r.id,
		"total", r.total,
		"incremental", r.incremental,
	)

	e.mu.Lock()
	aborted := r.aborted
	e.mu.Unlock()
	if aborted {
		e.finish(r, model.RunStateAborted, "")
		return
	}

	e.emit(r, model.RunStateStarting, "")
	if r.total == 0 {
		e.finish(r, model.RunStateDone, "")
		return
	}

	e.setState(r, model.RunStateRunning)
	go e.pump(r, frags)
}

// Cancel aborts run runID. It returns false when runID is not the active
// run, which makes late cancels from a previous page harmless.
func (e *Engine) Cancel(runID uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	r := e.run
	if r == nil || r.id != runID || !r.state.IsActive() || r.aborted {
		return false
	}
	r.aborted = true
	close(r.abort)
	e.logger.Info("scan cancelled", "run_id", runID)
	return true
}

// RunID returns the id of the latest run, or 0 before the first one.
func (e *Engine) RunID() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.run == nil {
		return 0
	}
	return e.run.id
}

// State returns the state of the latest run.
func (e *Engine) State() model.RunState {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.run == nil {
		return model.RunStateIdle
	}
	return e.run.state
}

// Last returns the most recent progress snapshot.
func (e *Engine) Last() model.Progress {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// Wait blocks until no run is active, including runs queued behind an
// aborted one.
func (e *Engine) Wait(ctx context.Context) error {
	for {
		e.mu.Lock()
		r := e.run
		e.mu.Unlock()
		if r == nil {
			return nil
		}
		select {
		case <-r.done:
		case <-ctx.Done():
			return ctx.Err()
		}
		e.mu.Lock()
		same := e.run == r
		e.mu.Unlock()
		if same {
			return nil
		}
	}
}

// Shutdown aborts the active run, drops any queued start and waits for the
// pump goroutine to exit.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.pending = nil
	r := e.run
	e.mu.Unlock()
	if r != nil {
		e.Cancel(r.id)
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// current reports whether r is the latest run and still wants results.
func (e *Engine) current(r *run) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.run == r && !r.aborted && r.ctx.Err() == nil
}

func (e *Engine) setState(r *run, s model.RunState) {
	e.mu.Lock()
	r.state = s
	e.mu.Unlock()
}

// emit reports a non-terminal snapshot.
func (e *Engine) emit(r *run, s model.RunState, note string) {
	p := model.Progress{
		RunID: r.id,
		State: s,
		Total: r.total,
		Done:  r.seen,
		Hits:  r.hits,
		Note:  note,
	}
	e.mu.Lock()
	e.last = p
	e.mu.Unlock()
	e.reporter.Report(p)
}

// finish moves r into a terminal state, reports it, and starts a queued
// run if there is one. The terminal snapshot is reported before any other
// start can be accepted, so a tab never sees a new start before the
// previous run ended.
func (e *Engine) finish(r *run, s model.RunState, errMsg string) {
	p := model.Progress{
		RunID: r.id,
		State: s,
		Total: r.total,
		Done:  r.seen,
		Hits:  r.hits,
		Error: errMsg,
	}

	e.mu.Lock()
	r.state = s
	e.last = p
	e.reporter.Report(p)

	var next *run
	if e.pending != nil {
		next = e.reserve(e.pending.ctx, e.pending.incremental, e.pending.minID)
		e.pending = nil
	}
	close(r.done)
	e.mu.Unlock()

	e.logger.Info("scan finished",
		"run_id", r.id,
		"state", s.String(),
		"done", r.seen,
		"total", r.total,
		"hits", r.hits,
	)
	e.wg.Done()

	if next != nil {
		e.setup(next)
	}
}
