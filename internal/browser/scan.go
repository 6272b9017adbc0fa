package browser

import (
	"context"
	"time"

	"github.com/nao1215/toxguard/internal/model"
	"github.com/nao1215/toxguard/internal/pipeline"
)

// ScanOne opens target in a new tab, waits for its automatic scan and
// closes the tab again. Failures are recorded in the summary.
func (h *Host) ScanOne(ctx context.Context, target string) *model.ScanSummary {
	startedAt := time.Now()
	id, err := h.OpenTab(ctx, target)
	defer func() {
		if err := h.CloseTab(context.WithoutCancel(ctx), id); err != nil {
			h.logger.Debug("tab close failed", "tab", id, "error", err)
		}
	}()
	if err != nil {
		return failed(target, id, startedAt, err)
	}

	if _, err := h.WaitScan(ctx, id); err != nil {
		return failed(target, id, startedAt, err)
	}
	x, ok := h.Executor(id)
	if !ok {
		return failed(target, id, startedAt, ErrNoSuchTab)
	}
	s := x.Summary(startedAt)
	if h.onScanned != nil {
		h.onScanned(s, x.Document())
	}
	return s
}

// ScanAll scans targets concurrently, one tab each, and returns their
// summaries in target order.
func (h *Host) ScanAll(ctx context.Context, targets []string, opts ...pipeline.BatchOption) ([]*model.ScanSummary, error) {
	opts = append([]pipeline.BatchOption{pipeline.WithBatchLogger(h.logger)}, opts...)
	bp := pipeline.NewBatchProcessor(func(ctx context.Context, target string, _ int) *model.ScanSummary {
		return h.ScanOne(ctx, target)
	}, opts...)
	return bp.ProcessBatch(ctx, targets)
}

func failed(target string, id int, startedAt time.Time, err error) *model.ScanSummary {
	s := model.NewSummary(target, id, startedAt, model.Progress{State: model.RunStateError})
	s.Error = err.Error()
	return s
}
