package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"github.com/nao1215/toxguard/internal/model"
)

// MarkdownWriter outputs reports in Markdown format, built with
// nao1215/markdown.
type MarkdownWriter struct {
	baseWriter

	showMatches bool
}

// MarkdownWriterOption configures a MarkdownWriter.
type MarkdownWriterOption func(*MarkdownWriter)

// WithMarkdownMatches adds a table of cloaked fragments under every page.
func WithMarkdownMatches(show bool) MarkdownWriterOption {
	return func(w *MarkdownWriter) {
		w.showMatches = show
	}
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer, opts ...MarkdownWriterOption) *MarkdownWriter {
	w := &MarkdownWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write implements Writer.
func (w *MarkdownWriter) Write(r *Report) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, r)
	w.writeSummary(md, r)
	w.writePages(md, r)
	w.writeFooter(md, r)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, r *Report) {
	md.H1("Toxguard Report")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Generated", r.Generated.Format("2006-01-02 15:04:05 MST")},
			{"Classifier", "`" + r.Backend + "`"},
			{"Threshold", strconv.FormatFloat(r.Threshold, 'f', 2, 64)},
		},
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, r *Report) {
	t := r.Totals()

	md.H2("Summary")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Count"},
		Rows: [][]string{
			{"Pages", strconv.Itoa(t.Pages)},
			{"✅ Done", strconv.Itoa(t.Done)},
			{"⏹️ Aborted", strconv.Itoa(t.Aborted)},
			{"❌ Failed", strconv.Itoa(t.Failed)},
			{"Fragments", strconv.Itoa(t.Fragments)},
			{"**Cloaked**", "**" + strconv.Itoa(t.Hits) + "**"},
		},
	})
	md.PlainText("")

	if t.Hits > 0 {
		w.writePieChart(md, r)
	}

	switch {
	case t.Failed > 0:
		md.Warningf("%d page(s) could not be scanned.", t.Failed)
	case t.Hits > 0:
		md.Importantf("%d fragment(s) scored at or above the threshold and were cloaked.", t.Hits)
	default:
		md.Tip("No toxic content detected.")
	}
	md.PlainText("")
}

// writePieChart shows how the cloaked fragments spread over the pages.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, r *Report) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Cloaked Fragments per Page"),
		piechart.WithShowData(true),
	)
	for _, p := range r.Pages {
		if p != nil && p.Hits > 0 {
			chart.LabelAndIntValue(p.URL, uint64(p.Hits))
		}
	}
	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writePages(md *markdown.Markdown, r *Report) {
	md.H2("Pages")
	md.PlainText("")

	rows := make([][]string, 0, len(r.Pages))
	for _, p := range r.Pages {
		if p == nil {
			continue
		}
		rows = append(rows, []string{
			p.URL,
			stateText(p),
			fmt.Sprintf("%d/%d", p.Done, p.Total),
			strconv.Itoa(p.Hits),
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"URL", "State", "Fragments", "Cloaked"},
		Rows:   rows,
	})
	md.PlainText("")

	if !w.showMatches {
		return
	}
	for _, p := range r.Pages {
		if p == nil || len(p.Matches) == 0 {
			continue
		}
		w.writeMatches(md, p)
	}
}

func (w *MarkdownWriter) writeMatches(md *markdown.Markdown, p *model.ScanSummary) {
	md.H3(p.URL)
	md.PlainText("")

	rows := make([][]string, len(p.Matches))
	for i, m := range p.Matches {
		label := m.Label
		if label == "" {
			label = "-"
		}
		rows[i] = []string{
			"`" + m.ID + "`",
			label,
			strconv.FormatFloat(m.Score, 'f', 2, 64),
			m.Excerpt,
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"ID", "Label", "Score", "Excerpt"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown, r *Report) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [toxguard %s](https://github.com/nao1215/toxguard)*", r.Version)
}

func stateText(p *model.ScanSummary) string {
	switch p.State {
	case model.RunStateDone:
		return "✅ done"
	case model.RunStateAborted:
		return "⏹️ aborted"
	case model.RunStateError:
		if p.Error != "" {
			return "❌ error: " + p.Error
		}
		return "❌ error"
	default:
		return p.State.String()
	}
}
