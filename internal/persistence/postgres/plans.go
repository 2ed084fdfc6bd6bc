package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/GaryRPCondon/training-platform-app-sub002/internal/domain"
	"github.com/GaryRPCondon/training-platform-app-sub002/internal/events"
	"github.com/GaryRPCondon/training-platform-app-sub002/internal/persistence"
	"github.com/GaryRPCondon/training-platform-app-sub002/internal/plan"
)

const workoutColumns = `workout_id, athlete_id, plan_id, week_number, day_of_week, scheduled_date,
        workout_type, description, distance_meters, duration_seconds, intensity_target, structured,
        completion_status, completed_activity_id, match_confidence, match_method,
        version, calendar_sync, created_at, updated_at`

// PlanRepository provides Postgres-backed persistence for training plans and
// their workouts. It implements both the snapshot loader and the workout
// store used by the operations engine.
type PlanRepository struct {
	pool *pgxpool.Pool
}

// NewPlanRepository constructs a PlanRepository.
func NewPlanRepository(pool *pgxpool.Pool) *PlanRepository {
	return &PlanRepository{pool: pool}
}

func scanWorkout(row pgx.Row) (domain.PlannedWorkout, error) {
	var w domain.PlannedWorkout
	err := row.Scan(&w.ID, &w.AthleteID, &w.PlanID, &w.WeekNumber, &w.Day, &w.ScheduledDate,
		&w.WorkoutType, &w.Description, &w.DistanceMeters, &w.DurationSeconds, &w.IntensityTarget, &w.Structured,
		&w.Completion, &w.CompletedActivityID, &w.MatchConfidence, &w.MatchMethod,
		&w.Version, &w.CalendarSync, &w.CreatedAt, &w.UpdatedAt)
	return w, err
}

// GetPlan returns the plan header row.
func (r *PlanRepository) GetPlan(ctx context.Context, athleteID, planID string) (*domain.TrainingPlan, error) {
	tx, err := beginAthleteTx(ctx, r.pool, athleteID)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	const query = `SELECT plan_id, athlete_id, name, status, start_date, end_date, vdot, created_at, updated_at
        FROM training_plans WHERE athlete_id=$1 AND plan_id=$2`
	var p domain.TrainingPlan
	err = tx.QueryRow(ctx, query, athleteID, planID).Scan(
		&p.ID, &p.AthleteID, &p.Name, &p.Status, &p.StartDate, &p.EndDate, &p.VDOT, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if err := tx.Commit(ctx); err != nil {
				return nil, err
			}
			return nil, persistence.ErrPlanNotFound
		}
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPlans returns all plans for an athlete, newest first.
func (r *PlanRepository) ListPlans(ctx context.Context, athleteID string) ([]domain.TrainingPlan, error) {
	tx, err := beginAthleteTx(ctx, r.pool, athleteID)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	const query = `SELECT plan_id, athlete_id, name, status, start_date, end_date, vdot, created_at, updated_at
        FROM training_plans WHERE athlete_id=$1 ORDER BY created_at DESC`
	rows, err := tx.Query(ctx, query, athleteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []domain.TrainingPlan
	for rows.Next() {
		var p domain.TrainingPlan
		if err := rows.Scan(&p.ID, &p.AthleteID, &p.Name, &p.Status, &p.StartDate, &p.EndDate, &p.VDOT, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return plans, nil
}

// LoadSnapshot assembles the full in-memory view the operations engine works
// over: plan header, week metadata, every workout, and athlete constraints.
func (r *PlanRepository) LoadSnapshot(ctx context.Context, athleteID, planID string) (domain.PlanSnapshot, error) {
	tx, err := beginAthleteTx(ctx, r.pool, athleteID)
	if err != nil {
		return domain.PlanSnapshot{}, err
	}
	defer tx.Rollback(ctx)

	var snap domain.PlanSnapshot
	const planQuery = `SELECT plan_id, athlete_id, name, status, start_date, end_date, vdot, created_at, updated_at
        FROM training_plans WHERE athlete_id=$1 AND plan_id=$2`
	err = tx.QueryRow(ctx, planQuery, athleteID, planID).Scan(
		&snap.Plan.ID, &snap.Plan.AthleteID, &snap.Plan.Name, &snap.Plan.Status,
		&snap.Plan.StartDate, &snap.Plan.EndDate, &snap.Plan.VDOT, &snap.Plan.CreatedAt, &snap.Plan.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PlanSnapshot{}, persistence.ErrPlanNotFound
		}
		return domain.PlanSnapshot{}, err
	}

	const weeksQuery = `SELECT week_number, phase_name, weekly_volume_km
        FROM plan_weeks WHERE athlete_id=$1 AND plan_id=$2 ORDER BY week_number`
	weekRows, err := tx.Query(ctx, weeksQuery, athleteID, planID)
	if err != nil {
		return domain.PlanSnapshot{}, err
	}
	defer weekRows.Close()

	weekIndex := make(map[int]int)
	for weekRows.Next() {
		var week domain.WeekSnapshot
		if err := weekRows.Scan(&week.WeekNumber, &week.PhaseName, &week.WeeklyVolumeKM); err != nil {
			return domain.PlanSnapshot{}, err
		}
		weekIndex[week.WeekNumber] = len(snap.Weeks)
		snap.Weeks = append(snap.Weeks, week)
	}
	if err := weekRows.Err(); err != nil {
		return domain.PlanSnapshot{}, err
	}

	workoutQuery := `SELECT ` + workoutColumns + ` FROM planned_workouts
        WHERE athlete_id=$1 AND plan_id=$2 ORDER BY week_number, day_of_week`
	workoutRows, err := tx.Query(ctx, workoutQuery, athleteID, planID)
	if err != nil {
		return domain.PlanSnapshot{}, err
	}
	defer workoutRows.Close()

	for workoutRows.Next() {
		w, err := scanWorkout(workoutRows)
		if err != nil {
			return domain.PlanSnapshot{}, err
		}
		idx, ok := weekIndex[w.WeekNumber]
		if !ok {
			return domain.PlanSnapshot{}, fmt.Errorf("workout %s references unknown week %d", w.ID, w.WeekNumber)
		}
		snap.Weeks[idx].Workouts = append(snap.Weeks[idx].Workouts, w)
	}
	if err := workoutRows.Err(); err != nil {
		return domain.PlanSnapshot{}, err
	}

	const constraintsQuery = `SELECT constraint_text FROM athlete_constraints WHERE athlete_id=$1 ORDER BY created_at`
	constraintRows, err := tx.Query(ctx, constraintsQuery, athleteID)
	if err != nil {
		return domain.PlanSnapshot{}, err
	}
	defer constraintRows.Close()

	for constraintRows.Next() {
		var c string
		if err := constraintRows.Scan(&c); err != nil {
			return domain.PlanSnapshot{}, err
		}
		snap.AthleteConstraints = append(snap.AthleteConstraints, c)
	}
	if err := constraintRows.Err(); err != nil {
		return domain.PlanSnapshot{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.PlanSnapshot{}, err
	}
	return snap, nil
}

// GetWorkout returns one planned workout by id.
func (r *PlanRepository) GetWorkout(ctx context.Context, athleteID, workoutID string) (*domain.PlannedWorkout, error) {
	tx, err := beginAthleteTx(ctx, r.pool, athleteID)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	query := `SELECT ` + workoutColumns + ` FROM planned_workouts WHERE athlete_id=$1 AND workout_id=$2`
	w, err := scanWorkout(tx.QueryRow(ctx, query, athleteID, workoutID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tx.Commit(ctx)
		}
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &w, nil
}

// UpdateWorkout writes the workout back with a version precondition. A zero
// row count means another writer got there first and the caller's snapshot is
// stale; the calendar event rides in the same transaction.
func (r *PlanRepository) UpdateWorkout(ctx context.Context, athleteID string, workout domain.PlannedWorkout, expectedVersion int) error {
	tx, err := beginAthleteTx(ctx, r.pool, athleteID)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const stmt = `UPDATE planned_workouts SET
            week_number=$3, day_of_week=$4, scheduled_date=$5,
            workout_type=$6, description=$7, distance_meters=$8, duration_seconds=$9,
            intensity_target=$10, structured=$11,
            completion_status=$12, completed_activity_id=$13, match_confidence=$14, match_method=$15,
            version=$16, calendar_sync=$17, updated_at=$18
        WHERE athlete_id=$1 AND workout_id=$2 AND version=$19`

	now := time.Now().UTC()
	tag, err := tx.Exec(ctx, stmt,
		athleteID, workout.ID,
		workout.WeekNumber, workout.Day, workout.ScheduledDate,
		workout.WorkoutType, workout.Description, workout.DistanceMeters, workout.DurationSeconds,
		workout.IntensityTarget, workout.Structured,
		workout.Completion, workout.CompletedActivityID, workout.MatchConfidence, workout.MatchMethod,
		workout.Version, workout.CalendarSync, now,
		expectedVersion,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return plan.ErrStaleWrite
	}

	payload := events.WorkoutUpdated{
		WorkoutID:     workout.ID,
		PlanID:        workout.PlanID,
		AthleteID:     athleteID,
		WeekNumber:    workout.WeekNumber,
		Day:           workout.Day,
		WorkoutType:   string(workout.WorkoutType),
		Version:       workout.Version,
		ScheduledDate: workout.ScheduledDate,
		OccurredAt:    now,
	}
	dedupe := fmt.Sprintf("%s:workout.updated:%d", workout.ID, workout.Version)
	if err := insertOutbox(ctx, tx, athleteID, "workout", workout.ID, "workout.updated", dedupe, payload); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// RecordPlanModified bumps the plan's updated_at and emits the aggregated
// modification event after a successful operations apply.
func (r *PlanRepository) RecordPlanModified(ctx context.Context, athleteID, planID string, operations, workoutsModified int) error {
	tx, err := beginAthleteTx(ctx, r.pool, athleteID)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	if _, err := tx.Exec(ctx, `UPDATE training_plans SET updated_at=$3 WHERE athlete_id=$1 AND plan_id=$2`, athleteID, planID, now); err != nil {
		return err
	}

	payload := events.PlanModified{
		PlanID:           planID,
		AthleteID:        athleteID,
		OperationsCount:  operations,
		WorkoutsModified: workoutsModified,
		OccurredAt:       now,
	}
	dedupe := fmt.Sprintf("%s:plan.modified:%d", planID, now.UnixNano())
	if err := insertOutbox(ctx, tx, athleteID, "plan", planID, "plan.modified", dedupe, payload); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
