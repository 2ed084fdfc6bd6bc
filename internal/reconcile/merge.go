package reconcile

import (
	"time"

	"github.com/GaryRPCondon/training-platform-app-sub002/internal/domain"
)

// Confidence buckets a merge candidate for the sync flow: high auto-merges,
// anything lower is parked for manual review.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Source-aware tolerances. Precise-timestamp pairs must agree tightly on
// distance and duration; date-only pairs only have distance to go on, so the
// distance bar is looser but it is the only signal.
const (
	preciseHighDistancePct   = 0.005
	preciseHighDurationPct   = 0.01
	preciseMediumDistancePct = 0.03
	preciseMediumDurationPct = 0.08

	dateOnlyHighDistancePct   = 0.05
	dateOnlyMediumDistancePct = 0.10

	// candidateMinScore gates out pairs that are clearly unrelated so they
	// never reach the review queue.
	candidateMinScore = 60.0
)

// MergeCandidate pairs a newly synced activity with an existing record
// suspected of describing the same run.
type MergeCandidate struct {
	Activity   domain.Activity // the incoming record
	Existing   domain.Activity // the stored record it likely duplicates
	Score      PairScore
	Confidence Confidence
}

// FindMergeCandidate scans the athlete's existing activities for a duplicate
// of the incoming record and returns the best-scoring candidate, or nil when
// nothing qualifies. Same-source records and records that already carry both
// external ids are never candidates.
//
// The original engine returned the first qualifying match in scan order; this
// implementation deliberately keeps scanning and returns the highest score
// instead (see DESIGN.md).
func FindMergeCandidate(incoming domain.Activity, existing []domain.Activity) *MergeCandidate {
	var best *MergeCandidate

	for i := range existing {
		candidate := existing[i]
		if candidate.Source == incoming.Source {
			continue
		}
		if candidate.FullyMerged() {
			continue
		}

		score := ScoreActivityPair(incoming, candidate)
		// The 24h gate only applies when temporal precision is unavailable;
		// precise pairs are governed by the capped time penalty alone.
		if score.DateOnly && score.TimeDiffMinutes > dateOnlyWindow.Minutes() {
			continue
		}
		if score.Score < candidateMinScore {
			continue
		}

		match := &MergeCandidate{
			Activity:   incoming,
			Existing:   candidate,
			Score:      score,
			Confidence: classify(score, bothDurationsKnown(incoming, candidate)),
		}
		if best == nil || match.Score.Score > best.Score.Score {
			best = match
		}
	}

	return best
}

// ShouldAutoMerge reports whether the candidate is safe to merge without
// review.
func ShouldAutoMerge(c *MergeCandidate) bool {
	return c != nil && c.Confidence == ConfidenceHigh
}

func classify(score PairScore, durationsKnown bool) Confidence {
	if score.DateOnly {
		switch {
		case score.DistanceDiffPercent <= dateOnlyHighDistancePct:
			return ConfidenceHigh
		case score.DistanceDiffPercent <= dateOnlyMediumDistancePct:
			return ConfidenceMedium
		}
		return ConfidenceLow
	}

	durationHigh := !durationsKnown || score.DurationDiffPercent <= preciseHighDurationPct
	durationMedium := !durationsKnown || score.DurationDiffPercent <= preciseMediumDurationPct

	switch {
	case score.DistanceDiffPercent <= preciseHighDistancePct && durationHigh:
		return ConfidenceHigh
	case score.DistanceDiffPercent <= preciseMediumDistancePct && durationMedium:
		return ConfidenceMedium
	}
	return ConfidenceLow
}

func bothDurationsKnown(a, b domain.Activity) bool {
	return a.Duration() > 0 && b.Duration() > 0
}

// RecentWindow is the lookback applied when loading existing activities to
// scan for duplicates during a sync pass.
const RecentWindow = 14 * 24 * time.Hour
