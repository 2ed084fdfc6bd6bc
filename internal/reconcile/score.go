// Package reconcile scores similarity between activity records and decides
// whether two differently-sourced records describe the same real-world run.
package reconcile

import (
	"math"
	"time"

	"github.com/GaryRPCondon/training-platform-app-sub002/internal/domain"
)

const (
	// timePenaltyPerMinute is deliberately soft: cross-platform timestamps
	// can carry timezone skew of several hours without being a mismatch.
	timePenaltyPerMinute = 0.1
	timePenaltyCap       = 20.0

	distancePenaltyWeight = 20.0
	durationPenaltyWeight = 10.0

	// dateOnlyWindow is the temporal gate when either record carries a
	// date-only timestamp (midnight artifact of coarse imports).
	dateOnlyWindow = 24 * time.Hour
)

// PairScore is the activity-to-activity similarity result: a 0-100 score plus
// the per-dimension deltas the classifier thresholds against.
type PairScore struct {
	Score               float64
	TimeDiffMinutes     float64
	DistanceDiffPercent float64 // fraction, 0.05 == 5%
	DurationDiffPercent float64 // fraction; zero when either side omits duration
	DateOnly            bool
}

// ScoreActivityPair computes the similarity between two activity records.
// Zero-distance pairs (strength work, yoga) force the distance delta to zero
// rather than dividing by zero; they are equivalent on that dimension.
func ScoreActivityPair(a, b domain.Activity) PairScore {
	result := PairScore{
		TimeDiffMinutes: math.Abs(a.StartTime.Sub(b.StartTime).Minutes()),
		DateOnly:        a.DateOnly() || b.DateOnly(),
	}

	distA, distB := a.Distance(), b.Distance()
	switch {
	case distA == 0 && distB == 0:
		result.DistanceDiffPercent = 0
	case distA == 0 || distB == 0:
		result.DistanceDiffPercent = 1
	default:
		result.DistanceDiffPercent = math.Abs(distA-distB) / math.Max(distA, distB)
	}

	durA, durB := a.Duration(), b.Duration()
	if durA > 0 && durB > 0 {
		result.DurationDiffPercent = math.Abs(float64(durA-durB)) / math.Max(float64(durA), float64(durB))
	}

	score := 100.0
	score -= math.Min(result.TimeDiffMinutes*timePenaltyPerMinute, timePenaltyCap)
	score -= result.DistanceDiffPercent * distancePenaltyWeight
	if durA > 0 && durB > 0 {
		score -= result.DurationDiffPercent * durationPenaltyWeight
	}

	result.Score = math.Max(score, 0)
	return result
}

const (
	workoutSameDayBase      = 0.5
	workoutExactTypeBonus   = 0.3
	workoutFamilyTypeBonus  = 0.15
	workoutDistanceBonusHi  = 0.2
	workoutDistanceBonusLo  = 0.1
	workoutDurationBonus    = 0.1
	workoutDistanceTightPct = 0.10
	workoutDistanceLoosePct = 0.20
	workoutDurationPct      = 0.15
)

// ScoreActivityWorkout computes the 0-1 confidence that a completed activity
// satisfies a planned workout. Same calendar day is a hard prerequisite; the
// activity's type must already be normalized through the type mapper.
func ScoreActivityWorkout(activity domain.Activity, normalized domain.WorkoutType, workout domain.PlannedWorkout) float64 {
	if !sameCalendarDay(activity.StartTime, workout.ScheduledDate) {
		return 0
	}

	score := workoutSameDayBase

	switch {
	case normalized == workout.WorkoutType:
		score += workoutExactTypeBonus
	case normalized.RunningFamily() && workout.WorkoutType.RunningFamily():
		score += workoutFamilyTypeBonus
	}

	if target := workout.TargetDistance(); target > 0 && activity.Distance() > 0 {
		diff := math.Abs(activity.Distance()-target) / target
		switch {
		case diff <= workoutDistanceTightPct:
			score += workoutDistanceBonusHi
		case diff <= workoutDistanceLoosePct:
			score += workoutDistanceBonusLo
		}
	}

	if target := workout.TargetDuration(); target > 0 && activity.Duration() > 0 {
		diff := math.Abs(float64(activity.Duration()-target)) / float64(target)
		if diff <= workoutDurationPct {
			score += workoutDurationBonus
		}
	}

	return math.Min(math.Max(score, 0), 1)
}

func sameCalendarDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
