package model

import (
	"math"
	"sort"
)

// DefaultThreshold is the toxicity threshold used when none is configured.
const DefaultThreshold = 0.5

// LabelScore is one label returned by a classifier, e.g. "toxic" or
// "insult", with its probability in [0, 1].
type LabelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Verdict is the classifier's decision for one text fragment.
type Verdict struct {
	// Toxic is true when any label score reaches the threshold.
	Toxic bool `json:"toxic"`

	// Score is the highest label score, clamped to [0, 1].
	Score float64 `json:"score"`

	// Labels holds every label the classifier returned, highest first.
	Labels []LabelScore `json:"labels,omitempty"`
}

// NewVerdict folds a set of label scores into a verdict.
// An empty label set yields a non-toxic verdict with score 0.
func NewVerdict(labels []LabelScore, threshold float64) Verdict {
	sorted := make([]LabelScore, 0, len(labels))
	best := 0.0
	for _, l := range labels {
		s := clamp01(l.Score)
		sorted = append(sorted, LabelScore{Label: l.Label, Score: s})
		if s > best {
			best = s
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	return Verdict{
		Toxic:  len(sorted) > 0 && best >= threshold,
		Score:  best,
		Labels: sorted,
	}
}

// TopLabel returns the highest scoring label, or "" when there are none.
func (v Verdict) TopLabel() string {
	if len(v.Labels) == 0 {
		return ""
	}
	return v.Labels[0].Label
}

// ValidateThreshold checks that t is a usable threshold.
func ValidateThreshold(t float64) error {
	if math.IsNaN(t) || t < 0 || t > 1 {
		return ErrInvalidThreshold
	}
	return nil
}

func clamp01(f float64) float64 {
	switch {
	case math.IsNaN(f), f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
