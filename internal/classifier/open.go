package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Backend names accepted by Open.
const (
	BackendKeyword = "keyword"
	BackendHTTP    = "http"
	BackendBayes   = "bayes"
	BackendGenAI   = "genai"
)

// FallbackPolicy decides what happens when the configured backend is not
// usable at startup.
type FallbackPolicy string

const (
	// FallbackKeyword switches to keyword matching.
	FallbackKeyword FallbackPolicy = "keyword"

	// FallbackFail keeps the backend; every scan then ends in the error
	// state until the backend becomes ready.
	FallbackFail FallbackPolicy = "fail"
)

// ParseFallbackPolicy validates a policy name. An empty name yields
// FallbackKeyword.
func ParseFallbackPolicy(s string) (FallbackPolicy, error) {
	switch FallbackPolicy(s) {
	case "", FallbackKeyword:
		return FallbackKeyword, nil
	case FallbackFail:
		return FallbackFail, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFallback, s)
	}
}

// Options selects and configures a backend.
type Options struct {
	Backend    string
	Endpoint   string
	APIToken   string
	ModelDir   string
	GenAIKey   string
	GenAIModel string
	Keywords   []string
	Fallback   FallbackPolicy

	// Threshold is used as is, so 0 flags every fragment. Out of range
	// values keep model.DefaultThreshold.
	Threshold float64
	CacheSize  int

	// BreakerFailures and BreakerCooldown tune the circuit breaker placed
	// in front of remote backends.
	BreakerFailures uint32
	BreakerCooldown time.Duration

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Open builds the adapter described by opts and runs the backend
// preflight, applying the fallback policy when it fails.
func Open(ctx context.Context, opts Options) (*Adapter, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	backend, err := buildBackend(ctx, opts, logger)
	if errors.Is(err, ErrUnknownBackend) {
		return nil, err
	}
	if err == nil {
		if p, ok := backend.(Preflighter); ok {
			err = p.Preflight(ctx)
		}
	}

	if err != nil {
		if opts.Fallback == FallbackFail {
			if backend == nil {
				return nil, fmt.Errorf("%w: %w", ErrClassifierUnavailable, err)
			}
			logger.Warn("classifier not ready", "backend", backend.Name(), "error", err)
			return newAdapter(backend, opts, logger), nil
		}
		logger.Warn("classifier not ready, falling back to keywords",
			"backend", opts.Backend,
			"error", err,
		)
		backend = NewKeyword(opts.Keywords)
	}

	logger.Debug("classifier opened", "backend", backend.Name())
	return newAdapter(backend, opts, logger), nil
}

func newAdapter(b Backend, opts Options, logger *slog.Logger) *Adapter {
	return NewAdapter(b, WithLogger(logger), WithThreshold(opts.Threshold))
}

func buildBackend(ctx context.Context, opts Options, logger *slog.Logger) (Backend, error) {
	switch opts.Backend {
	case "", BackendKeyword:
		return NewKeyword(opts.Keywords), nil

	case BackendHTTP:
		var httpOpts []HTTPOption
		if opts.APIToken != "" {
			httpOpts = append(httpOpts, WithAPIToken(opts.APIToken))
		}
		if opts.HTTPClient != nil {
			httpOpts = append(httpOpts, WithHTTPClient(opts.HTTPClient))
		}
		remote := NewBreaker(NewHTTP(opts.Endpoint, httpOpts...), opts.BreakerFailures, opts.BreakerCooldown, logger)
		return NewCache(remote, opts.CacheSize), nil

	case BackendBayes:
		return NewCache(NewBayes(opts.ModelDir), opts.CacheSize), nil

	case BackendGenAI:
		embedder, err := NewGeminiEmbedder(ctx, opts.GenAIKey, opts.GenAIModel)
		if err != nil {
			return nil, err
		}
		remote := NewBreaker(NewGenAI(embedder, nil), opts.BreakerFailures, opts.BreakerCooldown, logger)
		return NewCache(remote, opts.CacheSize), nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}
