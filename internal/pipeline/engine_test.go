package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/nao1215/toxguard/internal/cloak"
	"github.com/nao1215/toxguard/internal/model"
	"github.com/nao1215/toxguard/internal/page"
	"go.uber.org/goleak"
	"golang.org/x/net/html"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeClassifier marks texts containing "toxic" as toxic unless classify
// is overridden.
type fakeClassifier struct {
	ready    func(ctx context.Context) error
	classify func(ctx context.Context, texts []string) ([]*model.Verdict, error)
}

func (f *fakeClassifier) Ready(ctx context.Context) error {
	if f.ready == nil {
		return nil
	}
	return f.ready(ctx)
}

func (f *fakeClassifier) ClassifyBatch(ctx context.Context, texts []string) ([]*model.Verdict, error) {
	if f.classify != nil {
		return f.classify(ctx, texts)
	}
	return byWord(texts), nil
}

func byWord(texts []string) []*model.Verdict {
	out := make([]*model.Verdict, len(texts))
	for i, t := range texts {
		score := 0.1
		if strings.Contains(t, "toxic") {
			score = 0.9
		}
		v := model.NewVerdict([]model.LabelScore{{Label: "toxic", Score: score}}, 0.5)
		out[i] = &v
	}
	return out
}

// gate blocks classification until released.
type gate struct {
	entered chan struct{}
	release chan struct{}
}

func newGate() *gate {
	return &gate{entered: make(chan struct{}, 16), release: make(chan struct{})}
}

func (g *gate) classify(_ context.Context, texts []string) ([]*model.Verdict, error) {
	g.entered <- struct{}{}
	<-g.release
	return byWord(texts), nil
}

type recordingReporter struct {
	mu       sync.Mutex
	progress []model.Progress
}

func (r *recordingReporter) Report(p model.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, p)
}

func (r *recordingReporter) all() []model.Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Progress(nil), r.progress...)
}

func (r *recordingReporter) states() []string {
	var out []string
	for _, p := range r.all() {
		out = append(out, fmt.Sprintf("%d:%s", p.RunID, p.State))
	}
	return out
}

func paragraphs(clean, toxic int) string {
	var b strings.Builder
	for i := range clean {
		fmt.Fprintf(&b, "<p>paragraph number %d is clean</p>", i)
	}
	for i := range toxic {
		fmt.Fprintf(&b, "<p>paragraph number %d is toxic</p>", i)
	}
	return b.String()
}

type fixture struct {
	doc      *page.Document
	cloak    *cloak.Manager
	reporter *recordingReporter
	engine   *Engine
}

func newFixture(t *testing.T, src string, c Classifier, opts ...Option) *fixture {
	t.Helper()
	doc, err := page.ParseString(src, "https://example.com")
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	cm := cloak.New(doc)
	rep := &recordingReporter{}
	opts = append([]Option{WithBatchPause(0)}, opts...)
	e := NewEngine(doc, cm, c, rep, opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.Shutdown(ctx); err != nil {
			t.Errorf("shutdown failed: %v", err)
		}
	})
	return &fixture{doc: doc, cloak: cm, reporter: rep, engine: e}
}

func wait(t *testing.T, e *Engine) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Wait(ctx); err != nil {
		t.Fatalf("wait failed: %v", err)
	}
}

func countWrappers(doc *page.Document) int {
	n := 0
	doc.View(func(root *html.Node) {
		n = len(page.FindAll(root, func(x *html.Node) bool { return page.HasClass(x, cloak.WrapperClass) }))
	})
	return n
}

func TestEngineProgressSequence(t *testing.T) {
	t.Parallel()

	t.Run("reports start, running, finishing and done for 20 clean fragments", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, paragraphs(20, 0), &fakeClassifier{}, WithBatchPause(time.Millisecond))

		id, ok := f.engine.Start(context.Background())
		if !ok || id != 1 {
			t.Fatalf("expected run 1 to start, got %d %v", id, ok)
		}
		wait(t, f.engine)

		want := []model.Progress{
			{RunID: 1, State: model.RunStateStarting, Total: 20, Done: 0},
			{RunID: 1, State: model.RunStateRunning, Total: 20, Done: 16},
			{RunID: 1, State: model.RunStateFinishing, Total: 20, Done: 20},
			{RunID: 1, State: model.RunStateDone, Total: 20, Done: 20},
		}
		if diff := cmp.Diff(want, f.reporter.all()); diff != "" {
			t.Errorf("progress mismatch (-want +got):\n%s", diff)
		}
		if f.engine.State() != model.RunStateDone {
			t.Errorf("expected done state, got %s", f.engine.State())
		}
	})

	t.Run("reports done immediately for an empty page", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, `<html><body><script>var x = "not content";</script></body></html>`, &fakeClassifier{})

		f.engine.Start(context.Background())
		wait(t, f.engine)

		want := []model.Progress{
			{RunID: 1, State: model.RunStateStarting},
			{RunID: 1, State: model.RunStateDone},
		}
		if diff := cmp.Diff(want, f.reporter.all()); diff != "" {
			t.Errorf("progress mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("cloaks toxic fragments and counts hits", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, paragraphs(5, 3), &fakeClassifier{})

		f.engine.Start(context.Background())
		wait(t, f.engine)

		last := f.engine.Last()
		if last.State != model.RunStateDone || last.Hits != 3 || last.Done != 8 {
			t.Errorf("unexpected final progress %+v", last)
		}
		if got := countWrappers(f.doc); got != 3 {
			t.Errorf("expected 3 wrappers, got %d", got)
		}
	})

	t.Run("counts short and single word fragments as done", func(t *testing.T) {
		t.Parallel()
		var mu sync.Mutex
		var classified []string
		c := &fakeClassifier{classify: func(_ context.Context, texts []string) ([]*model.Verdict, error) {
			mu.Lock()
			classified = append(classified, texts...)
			mu.Unlock()
			return byWord(texts), nil
		}}
		f := newFixture(t, `<p>hi</p><p>supercalifragilistic</p><p>two words here</p>`, c)

		f.engine.Start(context.Background())
		wait(t, f.engine)

		if diff := cmp.Diff([]string{"two words here"}, classified); diff != "" {
			t.Errorf("classified texts mismatch (-want +got):\n%s", diff)
		}
		if last := f.engine.Last(); last.Done != 3 || last.Total != 3 {
			t.Errorf("expected 3/3 done, got %+v", last)
		}
	})
}

func TestEngineFailures(t *testing.T) {
	t.Parallel()

	t.Run("treats a failed batch as non-toxic and continues", func(t *testing.T) {
		t.Parallel()
		var mu sync.Mutex
		calls := 0
		c := &fakeClassifier{classify: func(_ context.Context, texts []string) ([]*model.Verdict, error) {
			mu.Lock()
			defer mu.Unlock()
			calls++
			if calls == 1 {
				return nil, errors.New("backend hiccup")
			}
			return byWord(texts), nil
		}}
		f := newFixture(t, paragraphs(0, 20), c)

		f.engine.Start(context.Background())
		wait(t, f.engine)

		last := f.engine.Last()
		if last.State != model.RunStateDone || last.Done != 20 || last.Hits != 4 {
			t.Errorf("expected done with 4 hits from the second batch, got %+v", last)
		}
	})

	t.Run("ends in error when the classifier is unavailable", func(t *testing.T) {
		t.Parallel()
		c := &fakeClassifier{ready: func(context.Context) error { return errors.New("model files missing") }}
		f := newFixture(t, paragraphs(3, 0), c)

		f.engine.Start(context.Background())
		wait(t, f.engine)

		got := f.reporter.all()
		if len(got) != 1 || got[0].State != model.RunStateError || got[0].Error != "model files missing" {
			t.Errorf("expected a single error progress, got %+v", got)
		}
		if _, ok := f.engine.Start(context.Background()); !ok {
			t.Error("expected engine to accept a new start after an error")
		}
		wait(t, f.engine)
	})
}

func TestEngineRunGuards(t *testing.T) {
	t.Parallel()

	t.Run("ignores a second start while running", func(t *testing.T) {
		t.Parallel()
		g := newGate()
		f := newFixture(t, paragraphs(3, 0), &fakeClassifier{classify: g.classify})

		if _, ok := f.engine.Start(context.Background()); !ok {
			t.Fatal("expected first start to succeed")
		}
		<-g.entered
		if _, ok := f.engine.Start(context.Background()); ok {
			t.Error("expected second start to be ignored")
		}
		close(g.release)
		wait(t, f.engine)

		starts := 0
		for _, p := range f.reporter.all() {
			if p.State == model.RunStateStarting {
				starts++
			}
		}
		if starts != 1 {
			t.Errorf("expected one start message, got %d", starts)
		}
	})

	t.Run("ignores a stale cancel", func(t *testing.T) {
		t.Parallel()
		g := newGate()
		f := newFixture(t, paragraphs(3, 0), &fakeClassifier{classify: g.classify})

		id, _ := f.engine.Start(context.Background())
		<-g.entered
		if f.engine.Cancel(id + 1) {
			t.Error("expected cancel for an unknown run to be ignored")
		}
		if f.engine.Cancel(id - 1) {
			t.Error("expected cancel for an old run to be ignored")
		}
		close(g.release)
		wait(t, f.engine)

		if f.engine.State() != model.RunStateDone {
			t.Errorf("expected done, got %s", f.engine.State())
		}
	})

	t.Run("aborts the current run and discards its results", func(t *testing.T) {
		t.Parallel()
		g := newGate()
		f := newFixture(t, paragraphs(0, 20), &fakeClassifier{classify: g.classify})

		id, _ := f.engine.Start(context.Background())
		<-g.entered
		if !f.engine.Cancel(id) {
			t.Fatal("expected cancel to succeed")
		}
		if f.engine.Cancel(id) {
			t.Error("expected second cancel to be a no-op")
		}
		close(g.release)
		wait(t, f.engine)

		if f.engine.State() != model.RunStateAborted {
			t.Errorf("expected aborted, got %s", f.engine.State())
		}
		if got := countWrappers(f.doc); got != 0 {
			t.Errorf("expected no wrappers after abort, got %d", got)
		}
		want := []string{"1:start", "1:aborted"}
		if diff := cmp.Diff(want, f.reporter.states()); diff != "" {
			t.Errorf("states mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("queues a start behind an aborted run", func(t *testing.T) {
		t.Parallel()
		g := newGate()
		f := newFixture(t, paragraphs(2, 1), &fakeClassifier{classify: g.classify})

		id, _ := f.engine.Start(context.Background())
		<-g.entered
		f.engine.Cancel(id)
		if _, ok := f.engine.Start(context.Background()); ok {
			t.Error("expected start to be queued, not started")
		}
		close(g.release)
		wait(t, f.engine)

		want := []string{"1:start", "1:aborted", "2:start", "2:finishing", "2:done"}
		if diff := cmp.Diff(want, f.reporter.states()); diff != "" {
			t.Errorf("states mismatch (-want +got):\n%s", diff)
		}
		if got := countWrappers(f.doc); got != 1 {
			t.Errorf("expected 1 wrapper, got %d", got)
		}
	})

	t.Run("aborts when the run context ends", func(t *testing.T) {
		t.Parallel()
		g := newGate()
		f := newFixture(t, paragraphs(20, 0), &fakeClassifier{classify: g.classify})

		ctx, cancel := context.WithCancel(context.Background())
		f.engine.Start(ctx)
		<-g.entered
		cancel()
		close(g.release)
		wait(t, f.engine)

		if f.engine.State() != model.RunStateAborted {
			t.Errorf("expected aborted, got %s", f.engine.State())
		}
	})
}

func TestEngineRescan(t *testing.T) {
	t.Parallel()

	t.Run("full starts do not accumulate wrappers", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, paragraphs(4, 2), &fakeClassifier{})

		for range 3 {
			f.engine.Start(context.Background())
			wait(t, f.engine)
			if hits, got := f.engine.Last().Hits, countWrappers(f.doc); hits != got || got != 2 {
				t.Errorf("expected 2 wrappers matching hits, got %d wrappers and %d hits", got, hits)
			}
		}
		if f.engine.RunID() != 3 {
			t.Errorf("expected run id 3, got %d", f.engine.RunID())
		}
	})

	t.Run("incremental rescan keeps existing wrappers", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, paragraphs(1, 1), &fakeClassifier{})

		f.engine.Start(context.Background())
		wait(t, f.engine)
		w := f.cloak.Wrappers()
		if len(w) != 1 {
			t.Fatalf("expected 1 wrapper, got %d", len(w))
		}
		f.cloak.Reveal(w[0].ID)

		if err := f.doc.AppendHTML(`<p>appended content is toxic</p><p>appended content is fine</p>`); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		f.engine.Rescan(context.Background())
		wait(t, f.engine)

		last := f.engine.Last()
		if last.Hits != 2 || last.Total != 3 {
			t.Errorf("expected 2 hits over 3 fragments, got %+v", last)
		}
		got, _ := f.cloak.Get(w[0].ID)
		if got.State != cloak.StateRevealed {
			t.Error("expected revealed wrapper to survive the rescan")
		}
	})

	t.Run("shares run ids through a counter", func(t *testing.T) {
		t.Parallel()
		counter := &RunCounter{}
		a := newFixture(t, paragraphs(1, 0), &fakeClassifier{}, WithRunCounter(counter))
		b := newFixture(t, paragraphs(1, 0), &fakeClassifier{}, WithRunCounter(counter))

		a.engine.Start(context.Background())
		wait(t, a.engine)
		id, _ := b.engine.Start(context.Background())
		wait(t, b.engine)
		if id != 2 {
			t.Errorf("expected run id 2, got %d", id)
		}
	})

	t.Run("skips run ids below the requested minimum", func(t *testing.T) {
		t.Parallel()
		counter := &RunCounter{}
		f := newFixture(t, paragraphs(1, 0), &fakeClassifier{}, WithRunCounter(counter))

		id, ok := f.engine.StartFrom(context.Background(), 4)
		wait(t, f.engine)
		if !ok || id != 4 {
			t.Fatalf("expected run id 4, got %d (started %v)", id, ok)
		}
		id, _ = f.engine.StartFrom(context.Background(), 2)
		wait(t, f.engine)
		if id != 5 {
			t.Errorf("expected a lower minimum to keep counting, got %d", id)
		}
	})
}

func TestRunCounterAdvance(t *testing.T) {
	t.Parallel()

	var c RunCounter
	c.Advance(0)
	if got := c.Next(); got != 1 {
		t.Errorf("expected 1, got %d", got)
	}
	c.Advance(10)
	if got := c.Next(); got != 10 {
		t.Errorf("expected 10, got %d", got)
	}
	c.Advance(3)
	if got := c.Next(); got != 11 {
		t.Errorf("expected 11, got %d", got)
	}
}
