package model

import (
	"time"
	"unicode/utf8"
)

// excerptLength bounds the text kept for each match in a summary.
const excerptLength = 60

// ScanSummary is a human-readable result of one scanned page.
// It is produced by the CLI once a run reaches a terminal state and is
// consumed by the report writers.
type ScanSummary struct {
	// URL is the scanned page.
	URL string `json:"url"`

	// UnitID identifies the tab the page was loaded into.
	UnitID int `json:"unit_id"`

	// DateScanned is when the run was started.
	DateScanned time.Time `json:"date_scanned"`

	// Duration is the wall time of the run.
	Duration time.Duration `json:"duration"`

	// RunID is the id of the final run on the page.
	RunID uint64 `json:"run_id"`

	// State is the terminal state of the run.
	State RunState `json:"state"`

	// Total is the number of fragments enumerated.
	Total int `json:"total"`

	// Done is the number of fragments processed.
	Done int `json:"done"`

	// Hits is the number of cloaked fragments.
	Hits int `json:"hits"`

	// Matches lists the cloaked fragments in document order.
	Matches []Match `json:"matches,omitempty"`

	// Error contains the failure descriptor of an errored run.
	Error string `json:"error,omitempty"`
}

// Match describes one cloaked fragment.
type Match struct {
	// ID is the wrapper id assigned in the page.
	ID string `json:"id"`

	// Label is the top classifier label.
	Label string `json:"label,omitempty"`

	// Score is the verdict score.
	Score float64 `json:"score"`

	// Excerpt is the beginning of the original text.
	Excerpt string `json:"excerpt"`

	// Revealed is true once the user asked to see the text.
	Revealed bool `json:"revealed"`
}

// NewSummary builds a summary from the final progress of a run.
func NewSummary(url string, unitID int, startedAt time.Time, last Progress) *ScanSummary {
	return &ScanSummary{
		URL:         url,
		UnitID:      unitID,
		DateScanned: startedAt,
		Duration:    time.Since(startedAt),
		RunID:       last.RunID,
		State:       last.State,
		Total:       last.Total,
		Done:        last.Done,
		Hits:        last.Hits,
		Error:       last.Error,
	}
}

// AddMatch appends a match, shortening its text to an excerpt.
func (s *ScanSummary) AddMatch(id, label string, score float64, text string, revealed bool) {
	s.Matches = append(s.Matches, Match{
		ID:       id,
		Label:    label,
		Score:    score,
		Excerpt:  Excerpt(text, excerptLength),
		Revealed: revealed,
	})
}

// Excerpt shortens s to at most n runes, marking the cut with "...".
func Excerpt(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}
