package controller

import (
	"fmt"

	"github.com/nao1215/toxguard/internal/model"
)

// View is what the popup shows for the active tab.
type View struct {
	// TabID is the active tab, 0 when there is none.
	TabID int

	// Status is the orchestrator's status of the tab, nil before its first
	// scan request.
	Status *model.Status

	// State is the displayed run state.
	State string

	// Note is a hint shown below the counters.
	Note string

	// Match is the focused match, -1 when none is focused.
	Match int

	// Matches is the number of matches known from the last navigation.
	Matches int
}

func (v View) last() model.Progress {
	if v.Status == nil || v.Status.Last == nil {
		return model.Progress{}
	}
	return *v.Status.Last
}

// Percent is the completion of the latest run.
func (v View) Percent() int {
	return v.last().Percent()
}

// Counts renders "done/total · pct%".
func (v View) Counts() string {
	p := v.last()
	return fmt.Sprintf("%d/%d · %d%%", p.Done, p.Total, p.Percent())
}

// Hits renders "N hits".
func (v View) Hits() string {
	return fmt.Sprintf("%d hits", v.last().Hits)
}

// Position renders the focused match as "i/n", or "-/n" without focus.
func (v View) Position() string {
	if v.Match < 0 {
		return fmt.Sprintf("-/%d", v.Matches)
	}
	return fmt.Sprintf("%d/%d", v.Match+1, v.Matches)
}

// InProgress reports whether the tab has a scan in flight.
func (v View) InProgress() bool {
	return v.Status != nil && v.Status.InProgress
}

// Error is the error descriptor of a failed run.
func (v View) Error() string {
	return v.last().Error
}
