// Package normalize maps raw platform sport types onto the canonical workout
// vocabulary used for matching.
package normalize

import (
	"strings"

	"github.com/GaryRPCondon/training-platform-app-sub002/internal/domain"
)

// Metadata carries source-specific hints that refine the mapping, e.g.
// Strava's workout_type field distinguishing races and long runs.
type Metadata struct {
	Source      domain.ActivitySource
	SubType     string
	IsRace      bool
	IsLongRun   bool
	IsTreadmill bool
}

var rawTypeTable = map[string]domain.WorkoutType{
	"run":               domain.WorkoutEasyRun,
	"running":           domain.WorkoutEasyRun,
	"trail_run":         domain.WorkoutEasyRun,
	"trail running":     domain.WorkoutEasyRun,
	"treadmill_running": domain.WorkoutEasyRun,
	"virtualrun":        domain.WorkoutEasyRun,
	"track_running":     domain.WorkoutIntervals,
	"race":              domain.WorkoutRace,
	"ride":              domain.WorkoutCrossTraining,
	"cycling":           domain.WorkoutCrossTraining,
	"virtualride":       domain.WorkoutCrossTraining,
	"swim":              domain.WorkoutCrossTraining,
	"lap_swimming":      domain.WorkoutCrossTraining,
	"walk":              domain.WorkoutRecovery,
	"walking":           domain.WorkoutRecovery,
	"hike":              domain.WorkoutCrossTraining,
	"hiking":            domain.WorkoutCrossTraining,
	"strength_training": domain.WorkoutCrossTraining,
	"weighttraining":    domain.WorkoutCrossTraining,
	"yoga":              domain.WorkoutCrossTraining,
	"elliptical":        domain.WorkoutCrossTraining,
	"rowing":            domain.WorkoutCrossTraining,
}

// ActivityType maps a raw source type plus metadata onto the canonical
// vocabulary. Unknown types normalize to cross training rather than failing;
// matching then relies on distance and duration alone.
func ActivityType(rawType string, meta Metadata) domain.WorkoutType {
	key := strings.ToLower(strings.TrimSpace(rawType))

	// Stored activities already carry the canonical type; normalization is
	// idempotent so callers may pass either form.
	if _, ok := domain.KnownWorkoutTypes[domain.WorkoutType(key)]; ok {
		return domain.WorkoutType(key)
	}

	canonical, ok := rawTypeTable[key]
	if !ok {
		canonical = domain.WorkoutCrossTraining
	}

	if canonical.RunningFamily() {
		switch {
		case meta.IsRace:
			return domain.WorkoutRace
		case meta.IsLongRun:
			return domain.WorkoutLongRun
		}
	}

	if meta.SubType != "" {
		if sub, ok := rawTypeTable[strings.ToLower(strings.TrimSpace(meta.SubType))]; ok {
			return sub
		}
	}

	return canonical
}
