package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nao1215/toxguard/internal/model"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the number of pages scanned at once by a
// BatchProcessor.
const DefaultConcurrency = 4

// ScanFunc scans one target and returns its summary. It must always
// return a summary; failures are recorded in ScanSummary.Error.
type ScanFunc func(ctx context.Context, target string, index int) *model.ScanSummary

// BatchProcessor scans several pages concurrently, each in its own tab.
// It uses errgroup to manage goroutines and respect the concurrency limit.
type BatchProcessor struct {
	scan        ScanFunc
	concurrency int
	logger      *slog.Logger

	// results stores completed summaries in target order.
	results []*model.ScanSummary
	mu      sync.Mutex
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent scans.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a BatchProcessor that calls scan per target.
func NewBatchProcessor(scan ScanFunc, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		scan:        scan,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(bp)
	}
	if bp.logger == nil {
		bp.logger = slog.Default()
	}
	return bp
}

// ProcessBatch scans all targets and returns their summaries in target
// order. Entries for targets skipped because of cancellation are nil.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, targets []string) ([]*model.ScanSummary, error) {
	bp.logger.Info("starting batch processing",
		"total_targets", len(targets),
		"concurrency", bp.concurrency,
	)
	startTime := time.Now()

	bp.mu.Lock()
	bp.results = make([]*model.ScanSummary, len(targets))
	bp.mu.Unlock()

	err := bp.ProcessBatchWithCallback(ctx, targets, func(s *model.ScanSummary, i int) {
		bp.mu.Lock()
		bp.results[i] = s
		bp.mu.Unlock()
	})

	bp.logger.Info("batch processing complete",
		"total_targets", len(targets),
		"elapsed", time.Since(startTime),
	)

	bp.mu.Lock()
	defer bp.mu.Unlock()
	return bp.results, err
}

// ProcessBatchWithCallback scans targets and calls callback for each
// finished scan. The callback runs on the scanning goroutine and must be
// safe for concurrent use.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	targets []string,
	callback func(summary *model.ScanSummary, index int),
) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, target := range targets {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			bp.logger.Info("scanning target",
				"target", target,
				"index", i+1,
				"total", len(targets),
			)

			summary := bp.scan(ctx, target, i)
			if summary.Error != "" {
				// the error is kept in the summary so the other scans continue
				bp.logger.Warn("scan failed", "target", target, "error", summary.Error)
			}
			callback(summary, i)
			return nil
		})
	}

	return g.Wait()
}
