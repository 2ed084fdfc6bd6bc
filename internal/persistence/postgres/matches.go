package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/GaryRPCondon/training-platform-app-sub002/internal/domain"
	"github.com/GaryRPCondon/training-platform-app-sub002/internal/match"
)

// MatchRepository backs the workout matcher. Link and unlink write both sides
// of the activity/workout pair in one transaction so the bidirectional
// reference can never drift.
type MatchRepository struct {
	pool *pgxpool.Pool
}

// NewMatchRepository constructs a MatchRepository.
func NewMatchRepository(pool *pgxpool.Pool) *MatchRepository {
	return &MatchRepository{pool: pool}
}

var _ match.Repository = (*MatchRepository)(nil)

// UnlinkedActivities returns activities in [start, end) that have no workout
// link yet. Rows pending merge review are excluded: matching them now could
// link a record about to be absorbed.
func (r *MatchRepository) UnlinkedActivities(ctx context.Context, athleteID string, start, end time.Time) ([]domain.Activity, error) {
	query := `SELECT ` + activityColumns + ` FROM activities
        WHERE athlete_id=$1 AND start_time >= $2 AND start_time < $3
          AND planned_workout_id IS NULL AND merge_status <> $4
        ORDER BY start_time`

	tx, err := beginAthleteTx(ctx, r.pool, athleteID)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, query, athleteID, start, end, domain.MergeStatusPendingReview)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.Activity
	for rows.Next() {
		activity, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, activity)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return results, nil
}

// UnlinkedWorkouts returns planned workouts scheduled in [start, end) with no
// completed activity yet.
func (r *MatchRepository) UnlinkedWorkouts(ctx context.Context, athleteID string, start, end time.Time) ([]domain.PlannedWorkout, error) {
	query := `SELECT ` + workoutColumns + ` FROM planned_workouts
        WHERE athlete_id=$1 AND scheduled_date >= $2 AND scheduled_date < $3
          AND completed_activity_id IS NULL
        ORDER BY scheduled_date`

	tx, err := beginAthleteTx(ctx, r.pool, athleteID)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, query, athleteID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.PlannedWorkout
	for rows.Next() {
		w, err := scanWorkout(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return results, nil
}

// GetActivity returns one activity or nil.
func (r *MatchRepository) GetActivity(ctx context.Context, athleteID, activityID string) (*domain.Activity, error) {
	return NewActivityRepository(r.pool).Get(ctx, athleteID, activityID)
}

// GetWorkout returns one planned workout or nil.
func (r *MatchRepository) GetWorkout(ctx context.Context, athleteID, workoutID string) (*domain.PlannedWorkout, error) {
	return NewPlanRepository(r.pool).GetWorkout(ctx, athleteID, workoutID)
}

// LinkWorkout writes both sides of the pair. Completion fields change on the
// workout without a version bump; only content edits version a workout.
func (r *MatchRepository) LinkWorkout(ctx context.Context, athleteID string, link match.Link) error {
	tx, err := beginAthleteTx(ctx, r.pool, athleteID)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	tag, err := tx.Exec(ctx, `UPDATE activities
        SET planned_workout_id=$3, match_confidence=$4, match_method=$5, updated_at=$6
        WHERE athlete_id=$1 AND activity_id=$2`,
		athleteID, link.ActivityID, link.WorkoutID, link.Confidence, link.Method, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("activity %s not found", link.ActivityID)
	}

	tag, err = tx.Exec(ctx, `UPDATE planned_workouts
        SET completed_activity_id=$3, completion_status=$4, match_confidence=$5, match_method=$6, updated_at=$7
        WHERE athlete_id=$1 AND workout_id=$2`,
		athleteID, link.WorkoutID, link.ActivityID, link.Completion, link.Confidence, link.Method, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("workout %s not found", link.WorkoutID)
	}

	return tx.Commit(ctx)
}

// UnlinkWorkout clears both sides and resets the workout to pending.
func (r *MatchRepository) UnlinkWorkout(ctx context.Context, athleteID, workoutID string) error {
	tx, err := beginAthleteTx(ctx, r.pool, athleteID)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	if _, err := tx.Exec(ctx, `UPDATE activities
        SET planned_workout_id=NULL, match_confidence=NULL, match_method='', updated_at=$3
        WHERE athlete_id=$1 AND planned_workout_id=$2`,
		athleteID, workoutID, now); err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `UPDATE planned_workouts
        SET completed_activity_id=NULL, completion_status=$3, match_confidence=NULL, match_method='', updated_at=$4
        WHERE athlete_id=$1 AND workout_id=$2`,
		athleteID, workoutID, domain.CompletionPending, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("workout %s not found", workoutID)
	}

	return tx.Commit(ctx)
}
