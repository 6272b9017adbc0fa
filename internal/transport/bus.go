package transport

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
)

// Address names an endpoint on a Bus.
type Address string

// OrchestratorAddress is where the orchestrator attaches.
const OrchestratorAddress Address = "orchestrator"

// TabAddress returns the address of the page executor of tab id.
func TabAddress(id int) Address {
	return Address(fmt.Sprintf("tab:%d", id))
}

// ParseTabAddress returns the tab id of a TabAddress.
func ParseTabAddress(addr Address) (int, bool) {
	rest, ok := strings.CutPrefix(string(addr), "tab:")
	if !ok {
		return 0, false
	}
	id, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return id, true
}

// ControllerAddress returns the address of controller id.
func ControllerAddress(id string) Address {
	return Address("controller:" + id)
}

// Handler processes messages delivered to an endpoint. Handle runs on the
// endpoint's mailbox goroutine, one message at a time. The returned message
// is the reply to a Request; it is ignored for posts and broadcasts.
type Handler interface {
	Handle(ctx context.Context, from Address, msg Message) Message
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, from Address, msg Message) Message

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, from Address, msg Message) Message {
	return f(ctx, from, msg)
}

// Bus routes encoded messages between in-process endpoints. Every message
// goes through Encode and Decode so in-process and websocket peers see the
// same wire format.
type Bus struct {
	logger *slog.Logger

	mu        sync.RWMutex
	endpoints map[Address]*Endpoint
	listeners map[Address]struct{}
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) BusOption {
	return func(b *Bus) {
		b.logger = logger
	}
}

// NewBus creates an empty bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		endpoints: make(map[Address]*Endpoint),
		listeners: make(map[Address]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b
}

// Attach creates an endpoint at addr and starts its mailbox goroutine. A nil
// handler drops every delivered message.
func (b *Bus) Attach(addr Address, h Handler) (*Endpoint, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.endpoints[addr]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAddressInUse, addr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Endpoint{
		bus:     b,
		addr:    addr,
		handler: h,
		ctx:     ctx,
		cancel:  cancel,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	b.endpoints[addr] = e
	go e.loop()
	return e, nil
}

// Attached reports whether an endpoint is attached at addr.
func (b *Bus) Attached(addr Address) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.endpoints[addr]
	return ok
}

func (b *Bus) lookup(addr Address) (*Endpoint, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.endpoints[addr]
	return e, ok
}

func (b *Bus) detach(e *Endpoint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.endpoints[e.addr] == e {
		delete(b.endpoints, e.addr)
		delete(b.listeners, e.addr)
	}
}

func (b *Bus) subscribers(except Address) []*Endpoint {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*Endpoint, 0, len(b.listeners))
	for addr := range b.listeners {
		if addr == except {
			continue
		}
		if e, ok := b.endpoints[addr]; ok {
			out = append(out, e)
		}
	}
	return out
}

// delivery is one queued message.
type delivery struct {
	from  Address
	data  []byte
	reply chan result
}

type result struct {
	data []byte
	err  error
}

// Endpoint is one actor on the bus: an address with a FIFO mailbox that is
// drained by a single goroutine.
type Endpoint struct {
	bus     *Bus
	addr    Address
	handler Handler

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	queue  []delivery
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

// Address returns the endpoint's address.
func (e *Endpoint) Address() Address {
	return e.addr
}

// Post sends msg to addr without waiting for it to be handled. It returns
// ErrNoRecipient when nothing is attached at addr.
func (e *Endpoint) Post(to Address, msg Message) error {
	data, err := Encode(msg)
	if err != nil {
		return err
	}
	return e.send(to, delivery{from: e.addr, data: data})
}

// Request sends msg to addr and waits for the handler's reply.
func (e *Endpoint) Request(ctx context.Context, to Address, msg Message) (Message, error) {
	data, err := Encode(msg)
	if err != nil {
		return nil, err
	}
	reply := make(chan result, 1)
	if err := e.send(to, delivery{from: e.addr, data: data, reply: reply}); err != nil {
		return nil, err
	}

	select {
	case res := <-reply:
		if res.err != nil {
			return nil, res.err
		}
		return Decode(res.data)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Broadcast posts msg to every subscribed endpoint except e and returns the
// number of endpoints reached.
func (e *Endpoint) Broadcast(msg Message) (int, error) {
	data, err := Encode(msg)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, sub := range e.bus.subscribers(e.addr) {
		if sub.enqueue(delivery{from: e.addr, data: data}) == nil {
			n++
		}
	}
	return n, nil
}

// Subscribe registers e as a broadcast listener until the returned function
// is called or e is closed.
func (e *Endpoint) Subscribe() (cancel func()) {
	e.bus.mu.Lock()
	if e.bus.endpoints[e.addr] == e {
		e.bus.listeners[e.addr] = struct{}{}
	}
	e.bus.mu.Unlock()
	return func() {
		e.bus.mu.Lock()
		defer e.bus.mu.Unlock()
		if e.bus.endpoints[e.addr] == e {
			delete(e.bus.listeners, e.addr)
		}
	}
}

// To returns a Conn that sends requests from e to addr.
func (e *Endpoint) To(addr Address) Conn {
	return route{from: e, to: addr}
}

// Close detaches the endpoint, fails queued requests with ErrClosed and
// waits for the mailbox goroutine to exit. It must not be called from the
// endpoint's own handler.
func (e *Endpoint) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		<-e.done
		return
	}
	e.closed = true
	e.mu.Unlock()

	e.bus.detach(e)
	e.cancel()
	e.signal()
	<-e.done
}

func (e *Endpoint) send(to Address, d delivery) error {
	target, ok := e.bus.lookup(to)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoRecipient, to)
	}
	if err := target.enqueue(d); err != nil {
		return fmt.Errorf("%w: %s", ErrNoRecipient, to)
	}
	return nil
}

func (e *Endpoint) enqueue(d delivery) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.queue = append(e.queue, d)
	e.mu.Unlock()
	e.signal()
	return nil
}

func (e *Endpoint) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Endpoint) loop() {
	defer close(e.done)
	for {
		d, ok := e.next()
		if !ok {
			return
		}
		e.dispatch(d)
	}
}

// next blocks until a delivery is queued or the endpoint is closed.
func (e *Endpoint) next() (delivery, bool) {
	for {
		e.mu.Lock()
		if e.closed {
			pending := e.queue
			e.queue = nil
			e.mu.Unlock()
			for _, d := range pending {
				if d.reply != nil {
					d.reply <- result{err: ErrClosed}
				}
			}
			return delivery{}, false
		}
		if len(e.queue) > 0 {
			d := e.queue[0]
			e.queue[0] = delivery{}
			e.queue = e.queue[1:]
			e.mu.Unlock()
			return d, true
		}
		e.mu.Unlock()
		<-e.wake
	}
}

func (e *Endpoint) dispatch(d delivery) {
	msg, err := Decode(d.data)
	if err != nil {
		e.bus.logger.Debug("dropping message", "to", string(e.addr), "from", string(d.from), "error", err)
		if d.reply != nil {
			d.reply <- result{err: err}
		}
		return
	}

	var reply Message
	if e.handler != nil {
		reply = e.handler.Handle(e.ctx, d.from, msg)
	}
	if d.reply == nil {
		return
	}
	if reply == nil {
		d.reply <- result{err: ErrNoReply}
		return
	}
	data, err := Encode(reply)
	d.reply <- result{data: data, err: err}
}

// Conn is a request channel to one peer. Controllers use it so they work
// the same in-process and over a websocket.
type Conn interface {
	Request(ctx context.Context, msg Message) (Message, error)
}

type route struct {
	from *Endpoint
	to   Address
}

func (r route) Request(ctx context.Context, msg Message) (Message, error) {
	return r.from.Request(ctx, r.to, msg)
}
