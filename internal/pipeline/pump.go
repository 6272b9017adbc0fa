package pipeline

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/nao1215/toxguard/internal/locator"
	"github.com/nao1215/toxguard/internal/model"
	"golang.org/x/net/html"
)

// pump drains the fragment queue batch by batch until it is empty or the
// run is cancelled. It is the only goroutine that advances r.seen and
// r.hits, so progress for a run is emitted in order.
func (e *Engine) pump(r *run, queue []locator.Fragment) {
	for len(queue) > 0 {
		var batch []locator.Fragment
		var skipped int
		batch, skipped, queue = e.drain(queue)
		r.seen += skipped

		if len(batch) > 0 {
			e.classifyAndApply(r, batch)
			r.seen += len(batch)
		}

		if !e.current(r) {
			e.finish(r, model.RunStateAborted, "")
			return
		}

		if len(queue) == 0 {
			e.setState(r, model.RunStateFinishing)
			e.emit(r, model.RunStateFinishing, "")
			break
		}
		e.emit(r, model.RunStateRunning, "")

		if !e.sleep(r) {
			e.finish(r, model.RunStateAborted, "")
			return
		}
	}

	e.finish(r, model.RunStateDone, "")
}

// drain takes up to batchSize eligible fragments from the head of queue.
// Ineligible fragments are consumed and counted as skipped.
func (e *Engine) drain(queue []locator.Fragment) (batch []locator.Fragment, skipped int, rest []locator.Fragment) {
	i := 0
	for i < len(queue) && len(batch) < e.batchSize {
		f := queue[i]
		i++
		if !e.eligible(f) {
			skipped++
			continue
		}
		batch = append(batch, f)
	}
	return batch, skipped, queue[i:]
}

// eligible rejects fragments that are too short, a single word, or no
// longer attached to the page.
func (e *Engine) eligible(f locator.Fragment) bool {
	text := strings.TrimSpace(f.Clipped)
	if utf8.RuneCountInString(text) < e.minLen {
		return false
	}
	if len(strings.Fields(text)) < 2 {
		return false
	}
	valid := false
	e.doc.View(func(root *html.Node) {
		valid = f.Valid(root)
	})
	return valid
}

// classifyAndApply classifies one batch and cloaks the toxic fragments if
// the run still wants results. A failed batch counts as non-toxic.
func (e *Engine) classifyAndApply(r *run, batch []locator.Fragment) {
	texts := make([]string, len(batch))
	for i, f := range batch {
		texts[i] = strings.TrimSpace(f.Clipped)
	}

	verdicts, err := e.classifier.ClassifyBatch(r.ctx, texts)
	if err != nil {
		e.logger.Warn("batch classification failed",
			"run_id", r.id,
			"size", len(batch),
			"error", err,
		)
		return
	}

	for i, f := range batch {
		if i >= len(verdicts) || verdicts[i] == nil || !verdicts[i].Toxic {
			continue
		}
		if !e.current(r) {
			return
		}
		if _, err := e.cloak.Cloak(f, *verdicts[i]); err != nil {
			e.logger.Debug("fragment skipped", "run_id", r.id, "index", f.Index, "error", err)
			continue
		}
		r.hits++
	}
}

// sleep pauses between batches. It returns false if the run was cancelled
// while waiting.
func (e *Engine) sleep(r *run) bool {
	if e.pause <= 0 {
		return e.current(r)
	}
	t := time.NewTimer(e.pause)
	defer t.Stop()
	select {
	case <-t.C:
		return e.current(r)
	case <-r.abort:
		return false
	case <-r.ctx.Done():
		return false
	}
}
