package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/nao1215/toxguard/internal/executor"
	"github.com/nao1215/toxguard/internal/fetch"
	"github.com/nao1215/toxguard/internal/model"
	"github.com/nao1215/toxguard/internal/orchestrator"
	"github.com/nao1215/toxguard/internal/page"
	"github.com/nao1215/toxguard/internal/pipeline"
	"github.com/nao1215/toxguard/internal/transport"
)

// Badge is the indicator shown for a tab.
type Badge struct {
	Text  string
	Color string
}

// Tab is one open page.
type Tab struct {
	ID      int
	URL     string
	Badge   Badge
	last    model.Progress
	exec    *executor.Executor
	counter *pipeline.RunCounter
}

// Host plays the browser: it owns tabs, loads pages into them, runs a page
// executor per tab and fires the navigation triggers of the orchestrator.
type Host struct {
	bus        *transport.Bus
	orch       *orchestrator.Orchestrator
	loader     fetch.Loader
	classifier pipeline.Classifier
	logger     *slog.Logger
	execOpts   []executor.Option
	orchOpts   []orchestrator.Option
	onScanned  ScanHook

	listener *transport.Endpoint

	mu      sync.Mutex
	tabs    map[int]*Tab
	nextID  int
	active  int
	changed chan struct{}
}

// Option configures a Host.
type Option func(*Host)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Host) {
		h.logger = logger
	}
}

// WithExecutorOptions passes options to every tab executor.
func WithExecutorOptions(opts ...executor.Option) Option {
	return func(h *Host) {
		h.execOpts = append(h.execOpts, opts...)
	}
}

// WithOrchestratorOptions passes options to the orchestrator.
func WithOrchestratorOptions(opts ...orchestrator.Option) Option {
	return func(h *Host) {
		h.orchOpts = append(h.orchOpts, opts...)
	}
}

// ScanHook receives the summary and the cloaked document of a page scanned
// by ScanOne, before its tab is closed.
type ScanHook func(s *model.ScanSummary, doc *page.Document)

// WithScanHook sets a hook called for every page scanned by ScanOne.
func WithScanHook(fn ScanHook) Option {
	return func(h *Host) {
		h.onScanned = fn
	}
}

// New creates a host with its orchestrator attached to bus.
func New(bus *transport.Bus, loader fetch.Loader, classifier pipeline.Classifier, opts ...Option) (*Host, error) {
	h := &Host{
		bus:        bus,
		loader:     loader,
		classifier: classifier,
		tabs:       make(map[int]*Tab),
		changed:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}

	orchOpts := append([]orchestrator.Option{
		orchestrator.WithLogger(h.logger),
		orchestrator.WithIndicator(h),
	}, h.orchOpts...)
	h.orch = orchestrator.New(h, orchOpts...)
	if err := h.orch.Attach(bus); err != nil {
		return nil, err
	}

	listener, err := bus.Attach(transport.ControllerAddress("host"), transport.HandlerFunc(h.onBroadcast))
	if err != nil {
		h.orch.Close()
		return nil, err
	}
	listener.Subscribe()
	h.listener = listener
	return h, nil
}

// Orchestrator returns the host's orchestrator.
func (h *Host) Orchestrator() *orchestrator.Orchestrator {
	return h.orch
}

// Bus returns the message bus.
func (h *Host) Bus() *transport.Bus {
	return h.bus
}

// OpenTab opens a new tab, makes it active and loads target into it.
func (h *Host) OpenTab(ctx context.Context, target string) (int, error) {
	h.mu.Lock()
	h.nextID++
	tab := &Tab{ID: h.nextID, counter: &pipeline.RunCounter{}}
	h.tabs[tab.ID] = tab
	h.active = tab.ID
	h.mu.Unlock()

	h.logger.Debug("tab opened", "tab", tab.ID)
	if err := h.load(ctx, tab.ID, target); err != nil {
		return tab.ID, err
	}
	return tab.ID, nil
}

// Navigate loads target into an existing tab, replacing its page.
func (h *Host) Navigate(ctx context.Context, id int, target string) error {
	if _, ok := h.tab(id); !ok {
		return fmt.Errorf("%w: %d", ErrNoSuchTab, id)
	}
	h.orch.BeforeNavigate(id, target, 0)
	return h.load(ctx, id, target)
}

// PushState changes the URL of a tab without loading a new document, as a
// single page application does.
func (h *Host) PushState(id int, rawURL string) error {
	h.mu.Lock()
	tab, ok := h.tabs[id]
	if ok {
		tab.URL = rawURL
	}
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrNoSuchTab, id)
	}
	h.orch.HistoryStateUpdated(id, rawURL, 0)
	return nil
}

// Activate focuses a tab.
func (h *Host) Activate(id int) error {
	h.mu.Lock()
	_, ok := h.tabs[id]
	if ok {
		h.active = id
	}
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrNoSuchTab, id)
	}
	h.orch.Activated(id)
	return nil
}

// ContextMenuScan is the "scan this page" menu entry of tab id.
func (h *Host) ContextMenuScan(id int) {
	h.orch.ContextMenuScan(id)
}

// CloseTab closes a tab and shuts its executor down.
func (h *Host) CloseTab(ctx context.Context, id int) error {
	h.mu.Lock()
	tab, ok := h.tabs[id]
	delete(h.tabs, id)
	if h.active == id {
		h.active = 0
	}
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrNoSuchTab, id)
	}

	var err error
	if tab.exec != nil {
		err = tab.exec.Close(ctx)
	}
	h.orch.Removed(id)
	return err
}

// Executor returns the page executor of tab id.
func (h *Host) Executor(id int) (*executor.Executor, bool) {
	tab, ok := h.tab(id)
	if !ok || tab.exec == nil {
		return nil, false
	}
	return tab.exec, true
}

// Badge returns the badge of tab id.
func (h *Host) Badge(id int) Badge {
	h.mu.Lock()
	defer h.mu.Unlock()
	if tab, ok := h.tabs[id]; ok {
		return tab.Badge
	}
	return Badge{}
}

// Tabs returns the ids of the open tabs in ascending order.
func (h *Host) Tabs() []int {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]int, 0, len(h.tabs))
	for id := range h.tabs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// ActiveTab implements orchestrator.Tabs.
func (h *Host) ActiveTab() (int, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.active, h.active != 0
}

// TabURL implements orchestrator.Tabs.
func (h *Host) TabURL(id int) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	tab, ok := h.tabs[id]
	if !ok {
		return "", false
	}
	return tab.URL, true
}

// SetBadge implements orchestrator.Indicator.
func (h *Host) SetBadge(id int, text, color string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if tab, ok := h.tabs[id]; ok {
		tab.Badge = Badge{Text: text, Color: color}
	}
}

// WaitScan blocks until the latest scan of tab id reached a terminal state
// and returns its final progress. It returns ErrNoScan when no scan is in
// progress and none has finished.
func (h *Host) WaitScan(ctx context.Context, id int) (model.Progress, error) {
	for {
		h.mu.Lock()
		changed := h.changed
		var seen model.Progress
		if tab, ok := h.tabs[id]; ok {
			seen = tab.last
		}
		h.mu.Unlock()

		st, ok := h.orch.Status(id)
		switch {
		case !ok:
			return model.Progress{}, fmt.Errorf("%w: tab %d", ErrNoScan, id)
		case !st.InProgress && st.Last != nil && st.Last.State.IsTerminal():
			// the broadcast follows the badge update
			if seen.RunID == st.Last.RunID && seen.State == st.Last.State {
				return *st.Last, nil
			}
		case !st.InProgress:
			return model.Progress{}, fmt.Errorf("%w: tab %d", ErrNoScan, id)
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return model.Progress{}, ctx.Err()
		}
	}
}

// Close shuts every tab and the orchestrator down.
func (h *Host) Close(ctx context.Context) error {
	var errs []error
	for _, id := range h.Tabs() {
		if err := h.CloseTab(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	h.listener.Close()
	h.orch.Close()
	return errors.Join(errs...)
}

// load replaces the page of tab id: the old executor is shut down, the new
// page is loaded and attached, and the orchestrator is told the load
// completed.
func (h *Host) load(ctx context.Context, id int, target string) error {
	h.orch.Loading(id)

	tab, ok := h.tab(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrNoSuchTab, id)
	}
	if tab.exec != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := tab.exec.Close(shutdownCtx)
		cancel()
		if err != nil {
			h.logger.Warn("previous page did not shut down", "tab", id, "error", err)
		}
		h.setExecutor(id, nil, target)
	}

	doc, err := h.loader.Load(ctx, target)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", target, err)
	}

	opts := append([]executor.Option{executor.WithLogger(h.logger)}, h.execOpts...)
	opts = append(opts, executor.WithEngineOptions(pipeline.WithRunCounter(tab.counter)))
	x := executor.New(doc, h.classifier, opts...)
	if err := x.Attach(ctx, h.bus, transport.TabAddress(id)); err != nil {
		_ = x.Close(ctx) //nolint:errcheck // attach already failed
		return err
	}
	h.setExecutor(id, x, doc.URL())

	h.logger.Info("page loaded", "tab", id, "url", doc.URL())
	h.orch.Completed(id, doc.URL(), 0)
	return nil
}

func (h *Host) setExecutor(id int, x *executor.Executor, rawURL string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if tab, ok := h.tabs[id]; ok {
		tab.exec = x
		tab.URL = rawURL
	}
}

func (h *Host) tab(id int) (*Tab, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	tab, ok := h.tabs[id]
	if !ok {
		return nil, false
	}
	c := *tab
	return &c, true
}

// onBroadcast wakes WaitScan callers whenever the orchestrator publishes
// progress.
func (h *Host) onBroadcast(_ context.Context, _ transport.Address, msg transport.Message) transport.Message {
	if b, ok := msg.(transport.ScanProgressBroadcast); ok {
		h.mu.Lock()
		if tab, ok := h.tabs[b.TabID]; ok {
			tab.last = b.Data
		}
		close(h.changed)
		h.changed = make(chan struct{})
		h.mu.Unlock()
	}
	return nil
}
