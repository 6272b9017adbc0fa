package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/toxguard/internal/model"
	"github.com/nao1215/toxguard/internal/transport"
)

const (
	// DefaultCooldown is how long after a finished scan the same URL is not
	// scanned again automatically.
	DefaultCooldown = 2 * time.Second

	// DefaultRelayTimeout bounds navigation requests relayed to a tab.
	DefaultRelayTimeout = 5 * time.Second

	// BadgeColor is the background of the hit count badge.
	BadgeColor = "#ef4444"
)

// allowedSchemes are the URL schemes scanned automatically.
var allowedSchemes = map[string]bool{
	"http":  true,
	"https": true,
	"file":  true,
}

// CanScan reports whether url has a scheme that is scanned automatically.
func CanScan(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return false
	}
	return allowedSchemes[strings.ToLower(u.Scheme)]
}

// Tabs is the host's view of its tabs.
type Tabs interface {
	// ActiveTab returns the focused tab.
	ActiveTab() (id int, ok bool)
	// TabURL returns the URL loaded in tab id.
	TabURL(id int) (string, bool)
}

// Indicator shows the per-tab hit count badge.
type Indicator interface {
	SetBadge(tab int, text, color string)
}

// Orchestrator decides when tabs are scanned and keeps their status. It
// reacts to host navigation triggers and to messages on the bus.
type Orchestrator struct {
	tabs         Tabs
	indicator    Indicator
	store        *StatusStore
	logger       *slog.Logger
	now          func() time.Time
	cooldown     time.Duration
	relayTimeout time.Duration

	ep *transport.Endpoint
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithIndicator sets the badge indicator.
func WithIndicator(i Indicator) Option {
	return func(o *Orchestrator) {
		o.indicator = i
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithCooldown sets the same-URL debounce window.
func WithCooldown(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.cooldown = d
		}
	}
}

// WithRelayTimeout sets the timeout of requests relayed to tabs.
func WithRelayTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.relayTimeout = d
		}
	}
}

// New creates an orchestrator. It does nothing until Attach is called.
func New(tabs Tabs, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		tabs:         tabs,
		store:        NewStatusStore(),
		now:          time.Now,
		cooldown:     DefaultCooldown,
		relayTimeout: DefaultRelayTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// Attach connects the orchestrator to bus at transport.OrchestratorAddress.
func (o *Orchestrator) Attach(bus *transport.Bus) error {
	ep, err := bus.Attach(transport.OrchestratorAddress, o)
	if err != nil {
		return fmt.Errorf("failed to attach orchestrator: %w", err)
	}
	o.ep = ep
	return nil
}

// Close detaches the orchestrator from the bus.
func (o *Orchestrator) Close() {
	if o.ep != nil {
		o.ep.Close()
	}
}

// Status returns a copy of the status of tab.
func (o *Orchestrator) Status(tab int) (*model.Status, bool) {
	return o.store.Get(tab)
}

// Store returns the status store.
func (o *Orchestrator) Store() *StatusStore {
	return o.store
}

// BeforeNavigate is called when a tab starts navigating. Only the top frame
// (frameID 0) matters: a running scan is cancelled and the badge cleared.
func (o *Orchestrator) BeforeNavigate(tab int, _ string, frameID int) {
	if frameID != 0 {
		return
	}
	o.abandon(tab)
	o.badge(tab, "")
}

// Loading is called when a tab starts loading a new document.
func (o *Orchestrator) Loading(tab int) {
	if o.abandon(tab) {
		o.badge(tab, "")
	}
}

// Completed is called when the top frame of a tab finished loading.
func (o *Orchestrator) Completed(tab int, rawURL string, frameID int) {
	if frameID != 0 {
		return
	}
	o.maybeStart(tab, rawURL, false)
}

// HistoryStateUpdated is called on same-document navigations.
func (o *Orchestrator) HistoryStateUpdated(tab int, rawURL string, frameID int) {
	if frameID != 0 {
		return
	}
	o.maybeStart(tab, rawURL, false)
}

// Activated is called when the user switches to tab.
func (o *Orchestrator) Activated(tab int) {
	if rawURL, ok := o.tabs.TabURL(tab); ok {
		o.maybeStart(tab, rawURL, false)
	}
}

// ContextMenuScan is the "scan this page" menu action.
func (o *Orchestrator) ContextMenuScan(tab int) {
	if rawURL, ok := o.tabs.TabURL(tab); ok {
		o.maybeStart(tab, rawURL, false)
	}
}

// Removed is called when tab is closed.
func (o *Orchestrator) Removed(tab int) {
	o.store.Delete(tab)
}

// maybeStart sends RUN_SCAN to tab unless a scan is in progress or, for
// automatic triggers, the scheme is not scanned or the URL was scanned
// less than the cooldown ago. It reports whether a scan was requested.
func (o *Orchestrator) maybeStart(tab int, rawURL string, manual bool) bool {
	if !manual && !CanScan(rawURL) {
		return false
	}

	now := o.now()
	start := false
	var minID uint64
	o.store.update(tab, true, func(e *entry) {
		st := &e.status
		if st.InProgress {
			return
		}
		if !manual && st.URL == rawURL && !st.LastScanAt.IsZero() && now.Sub(st.LastScanAt) < o.cooldown {
			return
		}
		st.URL = rawURL
		st.InProgress = true
		minID = max(st.LastRunID, e.requested) + 1
		e.requested = minID
		e.awaitingStart = true
		e.dropping = false
		start = true
	})
	if !start {
		o.logger.Debug("scan not started", "tab", tab, "manual", manual)
		return false
	}

	if err := o.post(tab, transport.RunScan{MinRunID: minID}); err != nil {
		o.store.update(tab, false, func(e *entry) {
			e.status.InProgress = false
			e.awaitingStart = false
		})
		return false
	}
	o.logger.Info("scan requested", "tab", tab, "url", rawURL, "manual", manual)
	return true
}

// abandon cancels the in-progress run of tab and makes its late progress
// stale. It reports whether a run was in progress.
//
// A run that has not reported progress yet is known only by the id its
// RUN_SCAN asked for. Everything the tab reports is then dropped until the
// next RUN_SCAN, which asks for an id above the abandoned one.
func (o *Orchestrator) abandon(tab int) bool {
	var (
		cancel bool
		runID  uint64
	)
	o.store.update(tab, false, func(e *entry) {
		if !e.status.InProgress {
			return
		}
		cancel = true
		runID = e.status.LastRunID
		if e.awaitingStart {
			runID = e.requested
			e.awaitingStart = false
			e.dropping = true
		}
		e.status.InProgress = false
		e.floor = runID + 1
	})
	if cancel {
		_ = o.post(tab, transport.CancelScan{RunID: runID}) //nolint:errcheck // tab may be gone
	}
	return cancel
}

// applyProgress records p for tab and rebroadcasts it. Progress from a run
// older than the latest seen or below the stale floor is dropped.
func (o *Orchestrator) applyProgress(tab int, p model.Progress) bool {
	now := o.now()
	accepted := false
	o.store.update(tab, true, func(e *entry) {
		if e.dropping || p.RunID < e.floor || p.RunID < e.status.LastRunID {
			return
		}
		accepted = true
		e.awaitingStart = false
		e.status.LastRunID = p.RunID
		e.status.InProgress = p.State.IsActive()
		if p.State.IsTerminal() {
			e.status.LastScanAt = now
		}
		last := p
		e.status.Last = &last
	})
	if !accepted {
		o.logger.Debug("stale progress dropped", "tab", tab, "run_id", p.RunID, "state", p.State.String())
		return false
	}

	if p.State == model.RunStateDone {
		text := ""
		if p.Hits > 0 {
			text = strconv.Itoa(p.Hits)
		}
		o.badge(tab, text)
	}

	if o.ep != nil {
		if _, err := o.ep.Broadcast(transport.ScanProgressBroadcast{TabID: tab, Data: p}); err != nil {
			o.logger.Debug("broadcast failed", "tab", tab, "error", err)
		}
	}
	return true
}

func (o *Orchestrator) badge(tab int, text string) {
	if o.indicator == nil {
		return
	}
	color := ""
	if text != "" {
		color = BadgeColor
	}
	o.indicator.SetBadge(tab, text, color)
}

// post sends msg to tab. Failures mean the tab is gone and are only logged.
func (o *Orchestrator) post(tab int, msg transport.Message) error {
	if o.ep == nil {
		return transport.ErrNoRecipient
	}
	if err := o.ep.Post(transport.TabAddress(tab), msg); err != nil {
		o.logger.Debug("send to tab failed", "tab", tab, "kind", string(msg.Kind()), "error", err)
		return err
	}
	return nil
}

// relay forwards a navigation request from a controller to the active tab
// and returns the tab's reply.
func (o *Orchestrator) relay(ctx context.Context, msg transport.Message) (transport.Message, error) {
	tab, ok := o.tabs.ActiveTab()
	if !ok {
		return nil, transport.ErrNoRecipient
	}
	ctx, cancel := context.WithTimeout(ctx, o.relayTimeout)
	defer cancel()
	return o.ep.Request(ctx, transport.TabAddress(tab), msg)
}
