package transport

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/nao1215/toxguard/internal/model"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestCodec(t *testing.T) {
	t.Parallel()

	t.Run("encodes a flat envelope", func(t *testing.T) {
		t.Parallel()
		data, err := Encode(ScanProgress{TabID: 3, Progress: model.Progress{
			RunID: 7, State: model.RunStateRunning, Total: 20, Done: 16, Hits: 2,
		}})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := `{"type":"SCAN_PROGRESS","tabId":3,"runId":7,"state":"running","total":20,"done":16,"hits":2}`
		if string(data) != want {
			t.Errorf("expected %s, got %s", want, data)
		}
	})

	t.Run("encodes an empty payload", func(t *testing.T) {
		t.Parallel()
		data, err := Encode(RunScan{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(data) != `{"type":"RUN_SCAN"}` {
			t.Errorf("unexpected envelope %s", data)
		}
	})

	t.Run("decodes every kind back to its type", func(t *testing.T) {
		t.Parallel()
		msgs := []Message{
			Hello{},
			HelloReply{TabID: 4},
			RunScan{MinRunID: 3},
			CancelScan{RunID: 9},
			ScanProgressBroadcast{TabID: 1, Data: model.Progress{RunID: 2, State: model.RunStateDone, Hits: 1}},
			StatusReply{OK: true, TabID: 1, Status: &model.Status{URL: "https://example.com", LastRunID: 2}},
			GotoToxic{Index: 2},
			ToxicListReply{OK: true, Index: -1},
			RevealToxic{ID: "tg-1"},
			Ack{OK: false, Error: "boom"},
		}
		for _, msg := range msgs {
			data, err := Encode(msg)
			if err != nil {
				t.Fatalf("encode %s: %v", msg.Kind(), err)
			}
			got, err := Decode(data)
			if err != nil {
				t.Fatalf("decode %s: %v", msg.Kind(), err)
			}
			if diff := cmp.Diff(msg, got); diff != "" {
				t.Errorf("%s mismatch (-want +got):\n%s", msg.Kind(), diff)
			}
		}
	})

	t.Run("rejects unknown kinds", func(t *testing.T) {
		t.Parallel()
		_, err := Decode([]byte(`{"type":"SELF_DESTRUCT"}`))
		if !errors.Is(err, ErrUnknownKind) {
			t.Errorf("expected ErrUnknownKind, got %v", err)
		}
	})

	t.Run("rejects malformed envelopes", func(t *testing.T) {
		t.Parallel()
		for _, in := range []string{`not json`, `{"type":"CANCEL_SCAN","runId":"seven"}`} {
			if _, err := Decode([]byte(in)); !errors.Is(err, ErrMalformed) {
				t.Errorf("%s: expected ErrMalformed, got %v", in, err)
			}
		}
	})

	t.Run("rejects nil messages", func(t *testing.T) {
		t.Parallel()
		if _, err := Encode(nil); !errors.Is(err, ErrNilMessage) {
			t.Errorf("expected ErrNilMessage, got %v", err)
		}
	})
}

// collector records messages delivered to an endpoint.
type collector struct {
	mu   sync.Mutex
	msgs []Message
	got  chan struct{}
}

func newCollector() *collector {
	return &collector{got: make(chan struct{}, 64)}
}

func (c *collector) Handle(_ context.Context, _ Address, msg Message) Message {
	c.mu.Lock()
	c.msgs = append(c.msgs, msg)
	c.mu.Unlock()
	c.got <- struct{}{}
	return nil
}

func (c *collector) wait(t *testing.T, n int) []Message {
	t.Helper()
	for range n {
		select {
		case <-c.got:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for %d messages", n)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.msgs...)
}

func attach(t *testing.T, b *Bus, addr Address, h Handler) *Endpoint {
	t.Helper()
	ep, err := b.Attach(addr, h)
	if err != nil {
		t.Fatalf("failed to attach %s: %v", addr, err)
	}
	t.Cleanup(ep.Close)
	return ep
}

func TestBus(t *testing.T) {
	t.Parallel()

	t.Run("delivers posts in order", func(t *testing.T) {
		t.Parallel()
		b := NewBus()
		col := newCollector()
		attach(t, b, OrchestratorAddress, col)
		tab := attach(t, b, TabAddress(1), nil)

		for i := range 5 {
			if err := tab.Post(OrchestratorAddress, CancelScan{RunID: uint64(i)}); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}
		got := col.wait(t, 5)
		for i, msg := range got {
			if msg.(CancelScan).RunID != uint64(i) {
				t.Errorf("message %d out of order: %+v", i, msg)
			}
		}
	})

	t.Run("returns the handler reply to a request", func(t *testing.T) {
		t.Parallel()
		b := NewBus()
		attach(t, b, OrchestratorAddress, HandlerFunc(func(_ context.Context, from Address, msg Message) Message {
			if _, ok := msg.(Hello); ok && from == TabAddress(7) {
				return HelloReply{TabID: 7}
			}
			return nil
		}))
		tab := attach(t, b, TabAddress(7), nil)

		reply, err := tab.Request(context.Background(), OrchestratorAddress, Hello{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if diff := cmp.Diff(HelloReply{TabID: 7}, reply); diff != "" {
			t.Errorf("reply mismatch (-want +got):\n%s", diff)
		}

		if _, err := tab.Request(context.Background(), OrchestratorAddress, RunScan{}); !errors.Is(err, ErrNoReply) {
			t.Errorf("expected ErrNoReply, got %v", err)
		}
	})

	t.Run("reports missing recipients", func(t *testing.T) {
		t.Parallel()
		b := NewBus()
		tab := attach(t, b, TabAddress(1), nil)
		if err := tab.Post(TabAddress(2), RunScan{}); !errors.Is(err, ErrNoRecipient) {
			t.Errorf("expected ErrNoRecipient, got %v", err)
		}

		gone, err := b.Attach(TabAddress(3), nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		gone.Close()
		if err := tab.Post(TabAddress(3), RunScan{}); !errors.Is(err, ErrNoRecipient) {
			t.Errorf("expected ErrNoRecipient after close, got %v", err)
		}
		if b.Attached(TabAddress(3)) {
			t.Error("expected closed endpoint to be detached")
		}
	})

	t.Run("refuses a second endpoint at an address", func(t *testing.T) {
		t.Parallel()
		b := NewBus()
		attach(t, b, OrchestratorAddress, nil)
		if _, err := b.Attach(OrchestratorAddress, nil); !errors.Is(err, ErrAddressInUse) {
			t.Errorf("expected ErrAddressInUse, got %v", err)
		}
	})

	t.Run("broadcasts to subscribers only", func(t *testing.T) {
		t.Parallel()
		b := NewBus()
		orch := attach(t, b, OrchestratorAddress, nil)
		listening := newCollector()
		ep := attach(t, b, ControllerAddress("a"), listening)
		ep.Subscribe()
		deaf := newCollector()
		attach(t, b, ControllerAddress("b"), deaf)

		n, err := orch.Broadcast(ScanProgressBroadcast{TabID: 1})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != 1 {
			t.Errorf("expected 1 listener, got %d", n)
		}
		listening.wait(t, 1)
		if len(deaf.got) != 0 {
			t.Error("expected unsubscribed endpoint to receive nothing")
		}
	})

	t.Run("stops broadcasting after unsubscribe", func(t *testing.T) {
		t.Parallel()
		b := NewBus()
		orch := attach(t, b, OrchestratorAddress, nil)
		ep := attach(t, b, ControllerAddress("a"), nil)
		cancel := ep.Subscribe()
		cancel()
		if n, _ := orch.Broadcast(RunScan{}); n != 0 {
			t.Errorf("expected no listeners, got %d", n)
		}
	})

	t.Run("routes requests through a conn", func(t *testing.T) {
		t.Parallel()
		b := NewBus()
		attach(t, b, OrchestratorAddress, HandlerFunc(func(context.Context, Address, Message) Message {
			return Ack{OK: true}
		}))
		ctrl := attach(t, b, ControllerAddress("x"), nil)

		reply, err := ctrl.To(OrchestratorAddress).Request(context.Background(), CancelActiveScan{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if reply != (Ack{OK: true}) {
			t.Errorf("unexpected reply %+v", reply)
		}
	})

	t.Run("gives up on a request when the context ends", func(t *testing.T) {
		t.Parallel()
		b := NewBus()
		release := make(chan struct{})
		attach(t, b, OrchestratorAddress, HandlerFunc(func(context.Context, Address, Message) Message {
			<-release
			return Ack{OK: true}
		}))
		t.Cleanup(func() { close(release) })
		tab := attach(t, b, TabAddress(1), nil)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		if _, err := tab.Request(ctx, OrchestratorAddress, Hello{}); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
	})
}

func TestWebsocket(t *testing.T) {
	t.Parallel()

	b := NewBus()
	orch := attach(t, b, OrchestratorAddress, HandlerFunc(func(_ context.Context, _ Address, msg Message) Message {
		switch msg.(type) {
		case GetStatusForActiveTab:
			return StatusReply{OK: true, TabID: 2, Status: &model.Status{URL: "https://example.com"}}
		case RunScanActiveTab:
			return Ack{OK: true}
		}
		return nil
	}))

	srv := NewServer(b)
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	url := "ws" + strings.TrimPrefix(ts.URL, "http")

	dial := func(t *testing.T) *Client {
		t.Helper()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c, err := Dial(ctx, url)
		if err != nil {
			t.Fatalf("failed to dial: %v", err)
		}
		t.Cleanup(func() { _ = c.Close() })
		return c
	}

	t.Run("relays requests to the orchestrator", func(t *testing.T) {
		c := dial(t)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		reply, err := c.Request(ctx, GetStatusForActiveTab{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := StatusReply{OK: true, TabID: 2, Status: &model.Status{URL: "https://example.com"}}
		if diff := cmp.Diff(want, reply); diff != "" {
			t.Errorf("reply mismatch (-want +got):\n%s", diff)
		}

		if _, err := c.Request(ctx, NextToxic{}); err == nil || !strings.Contains(err.Error(), ErrNoReply.Error()) {
			t.Errorf("expected no reply error, got %v", err)
		}
	})

	t.Run("forwards broadcasts to clients", func(t *testing.T) {
		c := dial(t)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		// a round trip guarantees the server side endpoint is subscribed
		if _, err := c.Request(ctx, RunScanActiveTab{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		progress := model.Progress{RunID: 1, State: model.RunStateDone, Total: 3, Done: 3, Hits: 1}
		if _, err := orch.Broadcast(ScanProgressBroadcast{TabID: 2, Data: progress}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		select {
		case msg := <-c.Broadcasts():
			if diff := cmp.Diff(ScanProgressBroadcast{TabID: 2, Data: progress}, msg); diff != "" {
				t.Errorf("broadcast mismatch (-want +got):\n%s", diff)
			}
		case <-ctx.Done():
			t.Fatal("timed out waiting for broadcast")
		}
	})

	t.Run("fails requests after close", func(t *testing.T) {
		c := dial(t)
		if err := c.Close(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := c.Request(context.Background(), Hello{}); !errors.Is(err, ErrClosed) {
			t.Errorf("expected ErrClosed, got %v", err)
		}
	})
}
