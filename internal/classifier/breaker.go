package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/toxguard/internal/model"
	"github.com/sony/gobreaker"
)

const (
	// DefaultBreakerFailures is the number of consecutive failed batches
	// that opens the circuit.
	DefaultBreakerFailures = 5

	// DefaultBreakerCooldown is how long an open circuit rejects batches
	// before letting a probe through.
	DefaultBreakerCooldown = 30 * time.Second
)

// Breaker stops calling a failing backend for a while. Batches rejected by
// an open circuit fail fast with ErrClassifierUnavailable, which the scan
// engine counts as non-toxic.
type Breaker struct {
	next Backend
	cb   *gobreaker.CircuitBreaker
}

// NewBreaker wraps next in a circuit breaker.
func NewBreaker(next Backend, failures uint32, cooldown time.Duration, logger *slog.Logger) *Breaker {
	if failures == 0 {
		failures = DefaultBreakerFailures
	}
	if cooldown <= 0 {
		cooldown = DefaultBreakerCooldown
	}
	if logger == nil {
		logger = slog.Default()
	}

	settings := gobreaker.Settings{
		Name:        next.Name(),
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("classifier circuit changed",
				"backend", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			// a cancelled scan is not a backend failure
			return err == nil || errors.Is(err, context.Canceled)
		},
	}
	return &Breaker{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

// Name implements Backend.
func (b *Breaker) Name() string {
	return b.next.Name()
}

// State returns the circuit state name: closed, half-open or open.
func (b *Breaker) State() string {
	return b.cb.State().String()
}

// Classify implements Backend.
func (b *Breaker) Classify(ctx context.Context, texts []string) ([][]model.LabelScore, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Classify(ctx, texts)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %w", ErrClassifierUnavailable, err)
		}
		return nil, err
	}
	labels, _ := res.([][]model.LabelScore)
	return labels, nil
}

// Preflight forwards to the wrapped backend.
func (b *Breaker) Preflight(ctx context.Context) error {
	if p, ok := b.next.(Preflighter); ok {
		return p.Preflight(ctx)
	}
	return nil
}

// SetKeywords forwards to the wrapped backend when it supports keywords.
func (b *Breaker) SetKeywords(words []string) {
	if k, ok := b.next.(interface{ SetKeywords([]string) }); ok {
		k.SetKeywords(words)
	}
}
