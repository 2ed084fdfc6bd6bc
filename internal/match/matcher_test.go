package match

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/GaryRPCondon/training-platform-app-sub002/internal/domain"
)

type stubRepo struct {
	activities []domain.Activity
	workouts   []domain.PlannedWorkout
	linked     []Link
	unlinked   []string
}

func (r *stubRepo) UnlinkedActivities(_ context.Context, _ string, _, _ time.Time) ([]domain.Activity, error) {
	return r.activities, nil
}

func (r *stubRepo) UnlinkedWorkouts(_ context.Context, _ string, _, _ time.Time) ([]domain.PlannedWorkout, error) {
	return r.workouts, nil
}

func (r *stubRepo) GetActivity(_ context.Context, _ string, id string) (*domain.Activity, error) {
	for i := range r.activities {
		if r.activities[i].ID == id {
			return &r.activities[i], nil
		}
	}
	return nil, nil
}

func (r *stubRepo) GetWorkout(_ context.Context, _ string, id string) (*domain.PlannedWorkout, error) {
	for i := range r.workouts {
		if r.workouts[i].ID == id {
			return &r.workouts[i], nil
		}
	}
	return nil, nil
}

func (r *stubRepo) LinkWorkout(_ context.Context, _ string, link Link) error {
	r.linked = append(r.linked, link)
	return nil
}

func (r *stubRepo) UnlinkWorkout(_ context.Context, _ string, workoutID string) error {
	r.unlinked = append(r.unlinked, workoutID)
	return nil
}

func runActivity(id string, start time.Time, distance float64, duration int) domain.Activity {
	a := domain.Activity{
		ID:           id,
		AthleteID:    "athlete-1",
		Source:       domain.SourceGarmin,
		ActivityType: "running",
		StartTime:    start,
	}
	if distance > 0 {
		a.DistanceMeters = &distance
	}
	if duration > 0 {
		a.DurationSeconds = &duration
	}
	return a
}

func plannedWorkout(id string, day time.Time, wtype domain.WorkoutType, distance float64, duration int) domain.PlannedWorkout {
	w := domain.PlannedWorkout{
		ID:            id,
		AthleteID:     "athlete-1",
		ScheduledDate: day,
		WorkoutType:   wtype,
		Completion:    domain.CompletionPending,
	}
	if distance > 0 {
		w.DistanceMeters = &distance
	}
	if duration > 0 {
		w.DurationSeconds = &duration
	}
	return w
}

func TestMatchSingleCandidateUsesTimeMethod(t *testing.T) {
	day := time.Date(2024, time.July, 8, 0, 0, 0, 0, time.UTC)
	repo := &stubRepo{
		activities: []domain.Activity{runActivity("act-1", day.Add(7*time.Hour), 10100, 2710)},
		workouts:   []domain.PlannedWorkout{plannedWorkout("wk-1", day, domain.WorkoutEasyRun, 10000, 2700)},
	}

	links, err := NewMatcher(repo).MatchActivitiesToWorkouts(context.Background(), "athlete-1", day, day.AddDate(0, 0, 7))
	require.NoError(t, err)
	require.Len(t, links, 1)
	require.Equal(t, "wk-1", links[0].WorkoutID)
	require.Equal(t, domain.MatchMethodAutoTime, links[0].Method)
	require.Equal(t, domain.CompletionCompleted, links[0].Completion)
}

func TestMatchMultipleCandidatesPicksBestAboveHigherBar(t *testing.T) {
	day := time.Date(2024, time.July, 9, 0, 0, 0, 0, time.UTC)
	repo := &stubRepo{
		activities: []domain.Activity{runActivity("act-1", day.Add(6*time.Hour), 16000, 5400)},
		workouts: []domain.PlannedWorkout{
			plannedWorkout("wk-short", day, domain.WorkoutRecovery, 5000, 1800),
			plannedWorkout("wk-long", day, domain.WorkoutLongRun, 16000, 5400),
		},
	}

	links, err := NewMatcher(repo).MatchActivitiesToWorkouts(context.Background(), "athlete-1", day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, links, 1)
	require.Equal(t, "wk-long", links[0].WorkoutID)
	require.Equal(t, domain.MatchMethodAutoDistance, links[0].Method)
	require.Greater(t, links[0].Confidence, multiCandidateThreshold)
}

func TestMatchStoredCanonicalTypeKeepsTypeBonus(t *testing.T) {
	day := time.Date(2024, time.July, 9, 0, 0, 0, 0, time.UTC)
	activity := runActivity("act-1", day.Add(6*time.Hour), 8200, 2400)
	// Ingested activities carry the canonical type, not the raw platform one.
	activity.ActivityType = string(domain.WorkoutIntervals)
	repo := &stubRepo{
		activities: []domain.Activity{activity},
		workouts: []domain.PlannedWorkout{
			plannedWorkout("wk-intervals", day, domain.WorkoutIntervals, 8000, 2400),
			plannedWorkout("wk-easy", day, domain.WorkoutEasyRun, 14000, 4500),
		},
	}

	links, err := NewMatcher(repo).MatchActivitiesToWorkouts(context.Background(), "athlete-1", day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, links, 1)
	require.Equal(t, "wk-intervals", links[0].WorkoutID)
	require.Equal(t, domain.MatchMethodAutoDistance, links[0].Method)
	require.Greater(t, links[0].Confidence, 0.8)
}

func TestMatchedWorkoutLeavesThePool(t *testing.T) {
	day := time.Date(2024, time.July, 10, 0, 0, 0, 0, time.UTC)
	repo := &stubRepo{
		activities: []domain.Activity{
			runActivity("act-1", day.Add(6*time.Hour), 10000, 2700),
			runActivity("act-2", day.Add(18*time.Hour), 10000, 2700),
		},
		workouts: []domain.PlannedWorkout{plannedWorkout("wk-1", day, domain.WorkoutEasyRun, 10000, 2700)},
	}

	links, err := NewMatcher(repo).MatchActivitiesToWorkouts(context.Background(), "athlete-1", day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, links, 1)
	require.Equal(t, "act-1", links[0].ActivityID)
}

func TestMatchLowScoreIsRejected(t *testing.T) {
	day := time.Date(2024, time.July, 11, 0, 0, 0, 0, time.UTC)
	repo := &stubRepo{
		// Strength session against a distance workout: same day only.
		activities: []domain.Activity{
			func() domain.Activity {
				a := runActivity("act-1", day.Add(6*time.Hour), 0, 3600)
				a.ActivityType = "strength_training"
				return a
			}(),
		},
		workouts: []domain.PlannedWorkout{plannedWorkout("wk-1", day, domain.WorkoutTempo, 12000, 3000)},
	}

	links, err := NewMatcher(repo).MatchActivitiesToWorkouts(context.Background(), "athlete-1", day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Empty(t, links)
}

func TestCompletionClassification(t *testing.T) {
	day := time.Date(2024, time.July, 12, 0, 0, 0, 0, time.UTC)
	workout := plannedWorkout("wk-1", day, domain.WorkoutEasyRun, 10000, 3000)

	cases := []struct {
		name     string
		distance float64
		duration int
		want     domain.CompletionStatus
	}{
		{"both within 20%", 9000, 2800, domain.CompletionCompleted},
		{"distance within 50% only", 6000, 6500, domain.CompletionPartial},
		{"far off both", 2000, 9000, domain.CompletionSkipped},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			activity := runActivity("act-1", day.Add(7*time.Hour), tc.distance, tc.duration)
			require.Equal(t, tc.want, classifyCompletion(activity, workout))
		})
	}
}

func TestManualLinkBypassesScoring(t *testing.T) {
	day := time.Date(2024, time.July, 13, 0, 0, 0, 0, time.UTC)
	repo := &stubRepo{
		// Different day: auto matching would never pair these.
		activities: []domain.Activity{runActivity("act-1", day.AddDate(0, 0, 3), 8000, 2400)},
		workouts:   []domain.PlannedWorkout{plannedWorkout("wk-1", day, domain.WorkoutEasyRun, 8000, 2400)},
	}

	link, err := NewMatcher(repo).ManualLink(context.Background(), "athlete-1", "act-1", "wk-1")
	require.NoError(t, err)
	require.Equal(t, 1.0, link.Confidence)
	require.Equal(t, domain.MatchMethodManual, link.Method)
	require.Len(t, repo.linked, 1)
}

func TestManualLinkUnknownWorkout(t *testing.T) {
	repo := &stubRepo{
		activities: []domain.Activity{runActivity("act-1", time.Now(), 8000, 2400)},
	}

	_, err := NewMatcher(repo).ManualLink(context.Background(), "athlete-1", "act-1", "missing")
	require.ErrorIs(t, err, ErrWorkoutNotFound)
}

func TestUnlinkResetsRelationship(t *testing.T) {
	day := time.Date(2024, time.July, 14, 0, 0, 0, 0, time.UTC)
	repo := &stubRepo{
		workouts: []domain.PlannedWorkout{plannedWorkout("wk-1", day, domain.WorkoutEasyRun, 8000, 2400)},
	}

	err := NewMatcher(repo).Unlink(context.Background(), "athlete-1", "wk-1")
	require.NoError(t, err)
	require.Equal(t, []string{"wk-1"}, repo.unlinked)
}

func TestUnlinkUnknownWorkout(t *testing.T) {
	repo := &stubRepo{}
	err := NewMatcher(repo).Unlink(context.Background(), "athlete-1", "missing")
	require.ErrorIs(t, err, ErrWorkoutNotFound)
}
