package report

import (
	"bytes"
	"fmt"
	"io"

	"github.com/charmbracelet/glamour"
)

// DefaultWordWrap is the width the pretty writer wraps at.
const DefaultWordWrap = 100

// PrettyWriter renders the markdown report for the terminal with glamour.
type PrettyWriter struct {
	baseWriter

	style    string
	wordWrap int
	markdown []MarkdownWriterOption
}

// PrettyWriterOption configures a PrettyWriter.
type PrettyWriterOption func(*PrettyWriter)

// WithStyle selects a glamour style such as "dark", "light" or "notty".
// The default picks one from the terminal background.
func WithStyle(style string) PrettyWriterOption {
	return func(w *PrettyWriter) {
		w.style = style
	}
}

// WithWordWrap sets the wrap width.
func WithWordWrap(width int) PrettyWriterOption {
	return func(w *PrettyWriter) {
		if width > 0 {
			w.wordWrap = width
		}
	}
}

// WithMarkdownOptions configures the underlying markdown report.
func WithMarkdownOptions(opts ...MarkdownWriterOption) PrettyWriterOption {
	return func(w *PrettyWriter) {
		w.markdown = append(w.markdown, opts...)
	}
}

// NewPrettyWriter creates a PrettyWriter that outputs to the given writer.
func NewPrettyWriter(output io.Writer, opts ...PrettyWriterOption) *PrettyWriter {
	w := &PrettyWriter{
		baseWriter: newBaseWriter(output),
		wordWrap:   DefaultWordWrap,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write implements Writer.
func (w *PrettyWriter) Write(r *Report) (int, error) {
	var buf bytes.Buffer
	if _, err := NewMarkdownWriter(&buf, w.markdown...).Write(r); err != nil {
		return 0, err
	}

	styleOpt := glamour.WithAutoStyle()
	if w.style != "" {
		styleOpt = glamour.WithStandardStyle(w.style)
	}
	renderer, err := glamour.NewTermRenderer(styleOpt, glamour.WithWordWrap(w.wordWrap))
	if err != nil {
		return 0, fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	out, err := renderer.Render(buf.String())
	if err != nil {
		return 0, fmt.Errorf("failed to render report: %w", err)
	}
	return io.WriteString(w.output, out)
}
