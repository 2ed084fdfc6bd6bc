// Package match links completed activities to the planned workouts they
// satisfy and maintains the bidirectional relationship between the two.
package match

import (
	"context"
	"errors"
	"log"
	"math"
	"time"

	"github.com/GaryRPCondon/training-platform-app-sub002/internal/domain"
	"github.com/GaryRPCondon/training-platform-app-sub002/internal/normalize"
	"github.com/GaryRPCondon/training-platform-app-sub002/internal/observability"
	"github.com/GaryRPCondon/training-platform-app-sub002/internal/reconcile"
)

const (
	// singleCandidateThreshold applies when exactly one workout is planned
	// on the activity's day.
	singleCandidateThreshold = 0.6
	// multiCandidateThreshold is the higher bar when several workouts share
	// the day and the pick is ambiguous.
	multiCandidateThreshold = 0.75

	completedTolerance = 0.20
	partialTolerance   = 0.50
)

var (
	// ErrActivityNotFound is returned when the referenced activity does not exist.
	ErrActivityNotFound = errors.New("activity not found")
	// ErrWorkoutNotFound is returned when the referenced workout does not exist.
	ErrWorkoutNotFound = errors.New("planned workout not found")
)

// Link captures one accepted activity/workout pairing.
type Link struct {
	ActivityID string
	WorkoutID  string
	Confidence float64
	Method     domain.MatchMethod
	Completion domain.CompletionStatus
}

// Repository is the persistence surface the matcher needs. LinkWorkout and
// UnlinkWorkout are the only mutation paths for the relationship; both sides
// of the foreign-key pair are written in one transaction so they can never
// drift one-sided.
type Repository interface {
	UnlinkedActivities(ctx context.Context, athleteID string, start, end time.Time) ([]domain.Activity, error)
	UnlinkedWorkouts(ctx context.Context, athleteID string, start, end time.Time) ([]domain.PlannedWorkout, error)
	GetActivity(ctx context.Context, athleteID, activityID string) (*domain.Activity, error)
	GetWorkout(ctx context.Context, athleteID, workoutID string) (*domain.PlannedWorkout, error)
	LinkWorkout(ctx context.Context, athleteID string, link Link) error
	UnlinkWorkout(ctx context.Context, athleteID, workoutID string) error
}

// Matcher pairs unlinked activities with unlinked workouts.
type Matcher struct {
	repo   Repository
	logger *log.Logger
}

// NewMatcher constructs a Matcher.
func NewMatcher(repo Repository) *Matcher {
	return &Matcher{
		repo:   repo,
		logger: log.New(log.Writer(), "[match] ", log.LstdFlags),
	}
}

// MatchActivitiesToWorkouts links unlinked activities in the date range to
// same-day workouts. A workout leaves the candidate pool as soon as it is
// matched, so no workout is double-booked within one pass.
func (m *Matcher) MatchActivitiesToWorkouts(ctx context.Context, athleteID string, start, end time.Time) ([]Link, error) {
	activities, err := m.repo.UnlinkedActivities(ctx, athleteID, start, end)
	if err != nil {
		return nil, err
	}
	workouts, err := m.repo.UnlinkedWorkouts(ctx, athleteID, start, end)
	if err != nil {
		return nil, err
	}

	pool := make([]domain.PlannedWorkout, len(workouts))
	copy(pool, workouts)

	links := make([]Link, 0)
	for _, activity := range activities {
		link, picked := m.pickWorkout(activity, pool)
		if !picked {
			continue
		}

		if err := m.repo.LinkWorkout(ctx, athleteID, link); err != nil {
			return links, err
		}
		links = append(links, link)
		pool = removeWorkout(pool, link.WorkoutID)
		m.logger.Printf("linked activity=%s workout=%s method=%s confidence=%.2f", link.ActivityID, link.WorkoutID, link.Method, link.Confidence)
		observability.RecordWorkoutMatched(string(link.Method))
	}

	return links, nil
}

func (m *Matcher) pickWorkout(activity domain.Activity, pool []domain.PlannedWorkout) (Link, bool) {
	normalized := normalize.ActivityType(activity.ActivityType, normalize.Metadata{Source: activity.Source})

	var sameDay []domain.PlannedWorkout
	for _, w := range pool {
		if sameCalendarDay(activity.StartTime, w.ScheduledDate) {
			sameDay = append(sameDay, w)
		}
	}
	if len(sameDay) == 0 {
		return Link{}, false
	}

	if len(sameDay) == 1 {
		workout := sameDay[0]
		score := reconcile.ScoreActivityWorkout(activity, normalized, workout)
		if score <= singleCandidateThreshold {
			return Link{}, false
		}
		return Link{
			ActivityID: activity.ID,
			WorkoutID:  workout.ID,
			Confidence: score,
			Method:     domain.MatchMethodAutoTime,
			Completion: classifyCompletion(activity, workout),
		}, true
	}

	bestScore := 0.0
	var best *domain.PlannedWorkout
	for i := range sameDay {
		score := reconcile.ScoreActivityWorkout(activity, normalized, sameDay[i])
		if score > bestScore {
			bestScore = score
			best = &sameDay[i]
		}
	}
	if best == nil || bestScore <= multiCandidateThreshold {
		return Link{}, false
	}
	return Link{
		ActivityID: activity.ID,
		WorkoutID:  best.ID,
		Confidence: bestScore,
		Method:     domain.MatchMethodAutoDistance,
		Completion: classifyCompletion(activity, *best),
	}, true
}

// ManualLink bypasses scoring entirely: the athlete says these belong
// together, so confidence is 1.0 and the method is recorded as manual.
func (m *Matcher) ManualLink(ctx context.Context, athleteID, activityID, workoutID string) (Link, error) {
	activity, err := m.repo.GetActivity(ctx, athleteID, activityID)
	if err != nil {
		return Link{}, err
	}
	if activity == nil {
		return Link{}, ErrActivityNotFound
	}
	workout, err := m.repo.GetWorkout(ctx, athleteID, workoutID)
	if err != nil {
		return Link{}, err
	}
	if workout == nil {
		return Link{}, ErrWorkoutNotFound
	}

	link := Link{
		ActivityID: activityID,
		WorkoutID:  workoutID,
		Confidence: 1.0,
		Method:     domain.MatchMethodManual,
		Completion: classifyCompletion(*activity, *workout),
	}
	if err := m.repo.LinkWorkout(ctx, athleteID, link); err != nil {
		return Link{}, err
	}
	observability.RecordWorkoutMatched(string(domain.MatchMethodManual))
	return link, nil
}

// Unlink clears both sides of the relationship and resets the workout's
// completion status to pending. Callers must unlink before re-matching so a
// re-run never sees stale links.
func (m *Matcher) Unlink(ctx context.Context, athleteID, workoutID string) error {
	workout, err := m.repo.GetWorkout(ctx, athleteID, workoutID)
	if err != nil {
		return err
	}
	if workout == nil {
		return ErrWorkoutNotFound
	}
	return m.repo.UnlinkWorkout(ctx, athleteID, workoutID)
}

// classifyCompletion compares actuals against targets: both dimensions within
// 20% reads as completed, either within 50% as partial, anything worse as
// skipped. A dimension without a target (or without an actual) cannot fail.
func classifyCompletion(activity domain.Activity, workout domain.PlannedWorkout) domain.CompletionStatus {
	distDiff, distKnown := relativeDiff(activity.Distance(), workout.TargetDistance())
	durDiff, durKnown := relativeDiff(float64(activity.Duration()), float64(workout.TargetDuration()))

	within := func(diff float64, known bool, tolerance float64) bool {
		return !known || diff <= tolerance
	}

	if within(distDiff, distKnown, completedTolerance) && within(durDiff, durKnown, completedTolerance) {
		return domain.CompletionCompleted
	}
	if (distKnown && distDiff <= partialTolerance) || (durKnown && durDiff <= partialTolerance) {
		return domain.CompletionPartial
	}
	return domain.CompletionSkipped
}

func relativeDiff(actual, target float64) (float64, bool) {
	if target <= 0 || actual <= 0 {
		return 0, false
	}
	return math.Abs(actual-target) / target, true
}

func removeWorkout(pool []domain.PlannedWorkout, id string) []domain.PlannedWorkout {
	out := pool[:0]
	for _, w := range pool {
		if w.ID != id {
			out = append(out, w)
		}
	}
	return out
}

func sameCalendarDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
