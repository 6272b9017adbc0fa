package model

import (
	"math"
	"time"
)

// Progress is a snapshot of one run, emitted by the scan engine after each
// state change and after every batch.
type Progress struct {
	RunID uint64   `json:"runId"`
	State RunState `json:"state"`
	Total int      `json:"total"`
	Done  int      `json:"done"`
	Hits  int      `json:"hits"`
	Note  string   `json:"note,omitempty"`
	Error string   `json:"error,omitempty"`
}

// Percent returns the completion percentage in [0, 100].
func (p Progress) Percent() int {
	return Percent(p.Done, p.Total)
}

// Percent computes done/total as a rounded percentage clamped to 100.
// A zero total yields 0.
func Percent(done, total int) int {
	if total <= 0 {
		return 0
	}
	pct := int(math.Round(float64(done) / float64(total) * 100))
	if pct > 100 {
		return 100
	}
	if pct < 0 {
		return 0
	}
	return pct
}

// Status is the orchestrator's view of one unit (tab).
type Status struct {
	// URL is the last URL a scan was requested for.
	URL string `json:"url"`

	// InProgress is true from the start request until a terminal progress.
	InProgress bool `json:"inProgress"`

	// LastRunID is the run id of the most recent progress message.
	LastRunID uint64 `json:"lastRunId"`

	// LastScanAt is set when a run reaches a terminal state.
	LastScanAt time.Time `json:"lastScanAt,omitzero"`

	// Last is the most recent progress snapshot, nil before the first one.
	Last *Progress `json:"last,omitempty"`
}

// Clone returns a deep copy safe to hand to other goroutines.
func (s *Status) Clone() *Status {
	if s == nil {
		return nil
	}
	c := *s
	if s.Last != nil {
		last := *s.Last
		c.Last = &last
	}
	return &c
}
