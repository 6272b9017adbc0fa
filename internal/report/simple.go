package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/toxguard/internal/model"
)

// SimpleWriter outputs a plain text report for the terminal.
type SimpleWriter struct {
	baseWriter

	// showMatches lists every cloaked fragment under its page.
	showMatches bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithMatches lists the cloaked fragments of every page.
func WithMatches(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showMatches = show
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write implements Writer.
func (w *SimpleWriter) Write(r *Report) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, r)
	for _, p := range r.Pages {
		if p != nil {
			w.writePage(&sb, p)
		}
	}
	w.writeFooter(&sb, r)

	return io.WriteString(w.output, sb.String())
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, r *Report) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                          TOXGUARD REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Generated:  %s\n", r.Generated.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(sb, "Classifier: %s\n", r.Backend)
	fmt.Fprintf(sb, "Threshold:  %.2f\n\n", r.Threshold)
}

func (w *SimpleWriter) writePage(sb *strings.Builder, p *model.ScanSummary) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	fmt.Fprintf(sb, "%s\n", p.URL)
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")

	fmt.Fprintf(sb, "  State:     %s\n", strings.ToUpper(p.State.String()))
	if p.Error != "" {
		fmt.Fprintf(sb, "  Error:     %s\n", p.Error)
	}
	fmt.Fprintf(sb, "  Fragments: %d/%d\n", p.Done, p.Total)
	fmt.Fprintf(sb, "  Hits:      %d\n", p.Hits)
	fmt.Fprintf(sb, "  Duration:  %s\n", p.Duration.Round(time.Millisecond))

	if w.showMatches && len(p.Matches) > 0 {
		sb.WriteString("\n")
		for _, m := range p.Matches {
			fmt.Fprintf(sb, "  [%s] %.2f %s\n", m.ID, m.Score, m.Excerpt)
		}
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeFooter(sb *strings.Builder, r *Report) {
	t := r.Totals()
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	fmt.Fprintf(sb, "%d page(s): %d done, %d aborted, %d failed\n", t.Pages, t.Done, t.Aborted, t.Failed)
	fmt.Fprintf(sb, "%d fragment(s) scanned, %d cloaked\n", t.Fragments, t.Hits)
}
