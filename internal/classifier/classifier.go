package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/nao1215/toxguard/internal/model"
)

// Backend produces label scores for a batch of texts.
//
// The returned slice is aligned with texts by index. A backend may return
// fewer entries than texts or a nil entry; both mean the item was omitted
// and is treated as non-toxic by the adapter.
type Backend interface {
	// Name identifies the backend in logs and cache keys.
	Name() string

	// Classify scores texts. An error fails the whole batch.
	Classify(ctx context.Context, texts []string) ([][]model.LabelScore, error)
}

// Preflighter is implemented by backends that need local assets or a
// reachable service before they can classify.
type Preflighter interface {
	Preflight(ctx context.Context) error
}

// Adapter turns backend label scores into verdicts using a live threshold.
// It is safe for concurrent use by several scan engines.
type Adapter struct {
	backend   Backend
	logger    *slog.Logger
	threshold atomic.Uint64

	readyMu sync.Mutex
	ready   bool
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) AdapterOption {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// WithThreshold sets the initial threshold. Invalid values are ignored.
func WithThreshold(t float64) AdapterOption {
	return func(a *Adapter) {
		if model.ValidateThreshold(t) == nil {
			a.threshold.Store(math.Float64bits(t))
		}
	}
}

// NewAdapter wraps backend.
func NewAdapter(backend Backend, opts ...AdapterOption) *Adapter {
	a := &Adapter{backend: backend}
	a.threshold.Store(math.Float64bits(model.DefaultThreshold))
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a
}

// Name returns the backend name.
func (a *Adapter) Name() string {
	return a.backend.Name()
}

// Threshold returns the current threshold.
func (a *Adapter) Threshold() float64 {
	return math.Float64frombits(a.threshold.Load())
}

// SetThreshold changes the threshold for subsequent batches.
func (a *Adapter) SetThreshold(t float64) error {
	if err := model.ValidateThreshold(t); err != nil {
		return err
	}
	a.threshold.Store(math.Float64bits(t))
	a.logger.Debug("threshold updated", "threshold", t)
	return nil
}

// SetKeywords replaces the keyword list when the backend matches keywords.
// It reports whether the backend accepted the list.
func (a *Adapter) SetKeywords(words []string) bool {
	k, ok := a.backend.(interface{ SetKeywords([]string) })
	if !ok {
		return false
	}
	k.SetKeywords(words)
	return true
}

// Ready runs the backend preflight until it succeeds once.
func (a *Adapter) Ready(ctx context.Context) error {
	a.readyMu.Lock()
	defer a.readyMu.Unlock()
	if a.ready {
		return nil
	}
	if p, ok := a.backend.(Preflighter); ok {
		if err := p.Preflight(ctx); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrClassifierUnavailable, a.backend.Name(), err)
		}
	}
	a.ready = true
	return nil
}

// ClassifyBatch classifies texts and returns one verdict per text. A nil
// entry marks an item the backend omitted.
func (a *Adapter) ClassifyBatch(ctx context.Context, texts []string) ([]*model.Verdict, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	labels, err := a.backend.Classify(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to classify batch with %s: %w", a.backend.Name(), err)
	}

	threshold := a.Threshold()
	out := make([]*model.Verdict, len(texts))
	for i := range texts {
		if i >= len(labels) || labels[i] == nil {
			continue
		}
		v := model.NewVerdict(labels[i], threshold)
		out[i] = &v
	}
	if len(labels) != len(texts) {
		a.logger.Debug("backend returned misaligned batch",
			"backend", a.backend.Name(),
			"expected", len(texts),
			"got", len(labels),
		)
	}
	return out, nil
}
