package normalize

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/GaryRPCondon/training-platform-app-sub002/internal/domain"
)

func TestActivityTypeMapsKnownRawTypes(t *testing.T) {
	cases := map[string]domain.WorkoutType{
		"Running":           domain.WorkoutEasyRun,
		"trail_run":         domain.WorkoutEasyRun,
		"track_running":     domain.WorkoutIntervals,
		"Ride":              domain.WorkoutCrossTraining,
		"lap_swimming":      domain.WorkoutCrossTraining,
		"walking":           domain.WorkoutRecovery,
		"strength_training": domain.WorkoutCrossTraining,
	}
	for raw, want := range cases {
		require.Equal(t, want, ActivityType(raw, Metadata{}), "raw type %q", raw)
	}
}

func TestActivityTypeIdempotentOnCanonicalTypes(t *testing.T) {
	for canonical := range domain.KnownWorkoutTypes {
		require.Equal(t, canonical, ActivityType(string(canonical), Metadata{}), "canonical type %q", canonical)
	}
}

func TestActivityTypeUnknownFallsBackToCrossTraining(t *testing.T) {
	require.Equal(t, domain.WorkoutCrossTraining, ActivityType("kitesurfing", Metadata{}))
}

func TestActivityTypeRaceFlagOverridesRunningTypes(t *testing.T) {
	require.Equal(t, domain.WorkoutRace, ActivityType("run", Metadata{Source: domain.SourceStrava, IsRace: true}))
	// The race flag only applies within the running family.
	require.Equal(t, domain.WorkoutCrossTraining, ActivityType("ride", Metadata{IsRace: true}))
}

func TestActivityTypeLongRunFlag(t *testing.T) {
	require.Equal(t, domain.WorkoutLongRun, ActivityType("running", Metadata{IsLongRun: true}))
}

func TestActivityTypeSubTypeRefinesMapping(t *testing.T) {
	require.Equal(t, domain.WorkoutRace, ActivityType("run", Metadata{SubType: "race"}))
}
