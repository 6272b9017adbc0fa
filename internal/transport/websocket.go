package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// DefaultRequestTimeout bounds a request relayed from a websocket client.
const DefaultRequestTimeout = 10 * time.Second

// broadcastBuffer is the number of broadcasts a Client queues before it
// starts dropping them.
const broadcastBuffer = 64

// frame wraps an envelope on the websocket. Requests and their replies share
// a non-zero ID; broadcasts have none.
type frame struct {
	ID    uint64          `json:"id,omitempty"`
	Error string          `json:"error,omitempty"`
	Body  json.RawMessage `json:"body,omitempty"`
}

// Server exposes a bus endpoint to out-of-process controllers. Each
// websocket connection becomes a controller endpoint that is subscribed to
// broadcasts and relays its requests to the orchestrator.
type Server struct {
	bus      *Bus
	to       Address
	logger   *slog.Logger
	timeout  time.Duration
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
	wg    sync.WaitGroup
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets a custom logger.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithRequestTimeout sets the timeout of relayed requests.
func WithRequestTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewServer creates a websocket server relaying requests to the
// orchestrator on bus.
func NewServer(bus *Bus, opts ...ServerOption) *Server {
	s := &Server{
		bus:     bus,
		to:      OrchestratorAddress,
		timeout: DefaultRequestTimeout,
		conns:   make(map[*websocket.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// ServeHTTP upgrades the connection and serves it until the peer leaves.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	s.track(conn)
	defer s.untrack(conn)

	var writeMu sync.Mutex
	write := func(f frame) error {
		data, err := json.Marshal(f)
		if err != nil {
			return err
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteMessage(websocket.TextMessage, data)
	}

	addr := ControllerAddress(uuid.NewString())
	ep, err := s.bus.Attach(addr, HandlerFunc(func(_ context.Context, _ Address, msg Message) Message {
		body, err := Encode(msg)
		if err != nil {
			return nil
		}
		if err := write(frame{Body: body}); err != nil {
			s.logger.Debug("broadcast write failed", "client", string(addr), "error", err)
		}
		return nil
	}))
	if err != nil {
		s.logger.Warn("failed to attach websocket client", "error", err)
		return
	}
	defer ep.Close()
	ep.Subscribe()

	s.logger.Info("controller connected", "client", string(addr))
	defer s.logger.Info("controller disconnected", "client", string(addr))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req frame
		if err := json.Unmarshal(data, &req); err != nil || req.ID == 0 {
			s.logger.Debug("ignoring malformed frame", "client", string(addr))
			continue
		}
		if err := write(s.relay(r.Context(), ep, req)); err != nil {
			return
		}
	}
}

func (s *Server) relay(ctx context.Context, ep *Endpoint, req frame) frame {
	msg, err := Decode(req.Body)
	if err != nil {
		return frame{ID: req.ID, Error: err.Error()}
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	reply, err := ep.Request(ctx, s.to, msg)
	if err != nil {
		return frame{ID: req.ID, Error: err.Error()}
	}
	body, err := Encode(reply)
	if err != nil {
		return frame{ID: req.ID, Error: err.Error()}
	}
	return frame{ID: req.ID, Body: body}
}

func (s *Server) track(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
}

func (s *Server) untrack(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	_ = conn.Close() //nolint:errcheck // connection is being discarded
	s.wg.Done()
}

// Close disconnects every client and waits for their handlers to return.
func (s *Server) Close() {
	s.mu.Lock()
	for conn := range s.conns {
		_ = conn.Close() //nolint:errcheck // best effort shutdown
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Client is the controller side of a Server connection.
type Client struct {
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]chan frame
	err     error

	broadcasts chan Message
	done       chan struct{}
	closeOnce  sync.Once
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientLogger sets a custom logger.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// Dial connects to a Server at url (ws:// or wss://).
func Dial(ctx context.Context, url string, opts ...ClientOption) (*Client, error) {
	dialer := websocket.Dialer{HandshakeTimeout: DefaultRequestTimeout}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close() //nolint:errcheck // handshake body is unused
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", url, err)
	}

	c := &Client{
		conn:       conn,
		pending:    make(map[uint64]chan frame),
		broadcasts: make(chan Message, broadcastBuffer),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	go c.readLoop()
	return c, nil
}

// Request sends msg to the orchestrator and waits for the reply.
func (c *Client) Request(ctx context.Context, msg Message) (Message, error) {
	body, err := Encode(msg)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return nil, err
	}
	c.nextID++
	id := c.nextID
	ch := make(chan frame, 1)
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	data, err := json.Marshal(frame{ID: id, Body: body})
	if err != nil {
		return nil, err
	}
	c.writeMu.Lock()
	err = c.conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to send %s: %w", msg.Kind(), err)
	}

	select {
	case f := <-ch:
		if f.Error != "" {
			return nil, errors.New(f.Error)
		}
		return Decode(f.Body)
	case <-c.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Broadcasts returns the channel of broadcasts from the server. It is
// closed when the connection ends.
func (c *Client) Broadcasts() <-chan Message {
	return c.broadcasts
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close ends the connection and waits for the read loop to exit.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.conn.WriteMessage(websocket.CloseMessage, //nolint:errcheck // peer may be gone
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	<-c.done
	return err
}

func (c *Client) readLoop() {
	defer func() {
		c.mu.Lock()
		if c.err == nil {
			c.err = ErrClosed
		}
		c.mu.Unlock()
		close(c.broadcasts)
		close(c.done)
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.logger.Debug("ignoring malformed frame", "error", err)
			continue
		}
		if f.ID == 0 {
			c.deliverBroadcast(f)
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[f.ID]
		c.mu.Unlock()
		if ok {
			ch <- f
		}
	}
}

func (c *Client) deliverBroadcast(f frame) {
	msg, err := Decode(f.Body)
	if err != nil {
		c.logger.Debug("ignoring broadcast", "error", err)
		return
	}
	select {
	case c.broadcasts <- msg:
	default:
		c.logger.Debug("broadcast dropped, consumer is slow", "kind", string(msg.Kind()))
	}
}
