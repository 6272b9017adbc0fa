package report

import (
	"io"
	"time"

	"github.com/nao1215/toxguard/internal/model"
)

// Report is the result of one `toxguard scan` invocation.
type Report struct {
	// Version is the toxguard version that produced the report.
	Version string `json:"version"`

	// Generated is when the report was built.
	Generated time.Time `json:"generated"`

	// Threshold is the toxicity threshold the pages were scanned with.
	Threshold float64 `json:"threshold"`

	// Backend is the classifier backend actually in use.
	Backend string `json:"backend"`

	// Pages holds one summary per target, in target order.
	Pages []*model.ScanSummary `json:"pages"`
}

// New builds a report over pages.
func New(version string, threshold float64, backend string, pages []*model.ScanSummary) *Report {
	return &Report{
		Version:   version,
		Generated: time.Now(),
		Threshold: threshold,
		Backend:   backend,
		Pages:     pages,
	}
}

// Totals aggregates the pages of a report.
type Totals struct {
	Pages     int `json:"pages"`
	Done      int `json:"done"`
	Aborted   int `json:"aborted"`
	Failed    int `json:"failed"`
	Fragments int `json:"fragments"`
	Hits      int `json:"hits"`
}

// Totals counts pages per terminal state and sums fragments and hits.
func (r *Report) Totals() Totals {
	t := Totals{Pages: len(r.Pages)}
	for _, p := range r.Pages {
		if p == nil {
			continue
		}
		switch p.State {
		case model.RunStateDone:
			t.Done++
		case model.RunStateAborted:
			t.Aborted++
		case model.RunStateError:
			t.Failed++
		}
		t.Fragments += p.Total
		t.Hits += p.Hits
	}
	return t
}

// Writer writes a report in one format.
type Writer interface {
	Write(r *Report) (int, error)
}

// MultiWriter writes to multiple Writers in order and stops on the first
// error.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write implements Writer.
func (m *MultiWriter) Write(r *Report) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(r)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}
