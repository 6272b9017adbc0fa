package controller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nao1215/toxguard/internal/model"
	"github.com/nao1215/toxguard/internal/transport"
)

const (
	// DefaultRequestTimeout bounds one request to the orchestrator.
	DefaultRequestTimeout = 5 * time.Second

	// StateReady is shown before the active tab has any progress.
	StateReady = "ready"

	// StateStarting is shown between a run request and its first progress.
	StateStarting = "starting…"

	// NoPageNote is shown when there is no scannable active tab.
	NoPageNote = "Open a normal web page."
)

// Controller reads the orchestrator's view of the active tab and issues
// scan and navigation requests. It keeps no state of its own beyond the
// last rendered view.
type Controller struct {
	conn    transport.Conn
	timeout time.Duration
	logger  *slog.Logger

	mu   sync.Mutex
	view View
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithRequestTimeout bounds every request.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// New creates a controller that talks to the orchestrator through conn.
func New(conn transport.Conn, opts ...Option) *Controller {
	c := &Controller{
		conn:    conn,
		timeout: DefaultRequestTimeout,
		view:    View{State: StateReady, Match: -1},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// View returns the last rendered view.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

// Refresh asks the orchestrator for the status of the active tab.
func (c *Controller) Refresh(ctx context.Context) (View, error) {
	reply, err := c.request(ctx, transport.GetStatusForActiveTab{})
	if err != nil {
		return c.View(), err
	}
	st, ok := reply.(transport.StatusReply)
	if !ok {
		return c.View(), fmt.Errorf("%w: %s", ErrUnexpectedReply, reply.Kind())
	}
	if !st.OK {
		return c.View(), nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if st.TabID != c.view.TabID {
		c.view.Match, c.view.Matches = -1, 0
	}
	c.view.TabID = st.TabID
	c.view.Status = st.Status
	c.view.State = stateOf(st.Status)
	c.view.Note = ""
	if st.TabID == 0 {
		c.view.Note = NoPageNote
	}
	return c.view, nil
}

// Run asks the orchestrator to scan the active tab.
func (c *Controller) Run(ctx context.Context) (View, error) {
	if _, err := c.request(ctx, transport.RunScanActiveTab{}); err != nil {
		return c.View(), err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.view.State = StateStarting
	return c.view, nil
}

// Cancel asks the orchestrator to cancel the scan of the active tab.
func (c *Controller) Cancel(ctx context.Context) error {
	_, err := c.request(ctx, transport.CancelActiveScan{})
	return err
}

// Next focuses the next match on the active tab.
func (c *Controller) Next(ctx context.Context) (View, error) {
	return c.navigate(ctx, transport.NextToxic{})
}

// Prev focuses the previous match on the active tab.
func (c *Controller) Prev(ctx context.Context) (View, error) {
	return c.navigate(ctx, transport.PrevToxic{})
}

// Goto focuses match index on the active tab.
func (c *Controller) Goto(ctx context.Context, index int) (View, error) {
	return c.navigate(ctx, transport.GotoToxic{Index: index})
}

// Ensure refreshes the match count without moving the focus.
func (c *Controller) Ensure(ctx context.Context) (View, error) {
	return c.navigate(ctx, transport.EnsureToxicList{})
}

// Reveal uncovers the match with wrapper id on the active tab.
func (c *Controller) Reveal(ctx context.Context, id string) error {
	reply, err := c.request(ctx, transport.RevealToxic{ID: id})
	if err != nil {
		return err
	}
	if ack, ok := reply.(transport.Ack); ok && !ack.OK {
		return fmt.Errorf("%w: %s", ErrRejected, ack.Error)
	}
	return nil
}

// Observe handles a broadcast. Progress broadcasts trigger a refresh; the
// returned flag reports whether the view may have changed.
func (c *Controller) Observe(ctx context.Context, msg transport.Message) (View, bool, error) {
	if _, ok := msg.(transport.ScanProgressBroadcast); !ok {
		return c.View(), false, nil
	}
	v, err := c.Refresh(ctx)
	return v, err == nil, err
}

func (c *Controller) navigate(ctx context.Context, msg transport.Message) (View, error) {
	reply, err := c.request(ctx, msg)
	if err != nil {
		return c.View(), err
	}
	list, ok := reply.(transport.ToxicListReply)
	if !ok {
		return c.View(), fmt.Errorf("%w: %s", ErrUnexpectedReply, reply.Kind())
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !list.OK {
		c.view.Match, c.view.Matches = -1, 0
		return c.view, fmt.Errorf("%w: %s", ErrRejected, msg.Kind())
	}
	c.view.Match, c.view.Matches = list.Index, list.Total
	return c.view, nil
}

func (c *Controller) request(ctx context.Context, msg transport.Message) (transport.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	reply, err := c.conn.Request(ctx, msg)
	if err != nil {
		c.logger.Debug("controller request failed", "kind", string(msg.Kind()), "error", err)
		return nil, fmt.Errorf("%s: %w", msg.Kind(), err)
	}
	return reply, nil
}

func stateOf(st *model.Status) string {
	if st == nil || st.Last == nil {
		return StateReady
	}
	return st.Last.State.String()
}
