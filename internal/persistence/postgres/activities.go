// Package postgres provides pgx-backed repositories for the training platform.
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
	"github.com/GaryRPCondon/training-platform-app-sub002/internal/observability"
)

const activityColumns = `activity_id, athlete_id, source, garmin_id, strava_id, start_time, activity_type,
        distance_meters, duration_seconds, planned_workout_id, match_confidence, match_method,
        merge_status, merge_confidence, merge_peer_id, created_at, updated_at`

// ActivityRepository provides Postgres-backed persistence for activities and
// their merge lifecycle.
type ActivityRepository struct {
	pool *pgxpool.Pool
}

// NewActivityRepository constructs an ActivityRepository.
func NewActivityRepository(pool *pgxpool.Pool) *ActivityRepository {
	return &ActivityRepository{pool: pool}
}

func scanActivity(row pgx.Row) (domain.Activity, error) {
	var a domain.Activity
	err := row.Scan(&a.ID, &a.AthleteID, &a.Source, &a.GarminID, &a.StravaID, &a.StartTime, &a.ActivityType,
		&a.DistanceMeters, &a.DurationSeconds, &a.PlannedWorkoutID, &a.MatchConfidence, &a.MatchMethod,
		&a.MergeStatus, &a.MergeConfidence, &a.MergePeerID, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func beginAthleteTx(ctx context.Context, pool *pgxpool.Pool, athleteID string) (pgx.Tx, error) {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, "SELECT set_config('app.athlete_id', $1, true)", athleteID); err != nil {
		tx.Rollback(ctx)
		return nil, err
	}
	return tx, nil
}

// FindBySourceID checks whether an activity with the given external id is
// already stored, making bridge re-deliveries idempotent.
func (r *ActivityRepository) FindBySourceID(ctx context.Context, athleteID string, source domain.ActivitySource, sourceID string) (*domain.Activity, error) {
	if sourceID == "" {
		return nil, nil
	}

	column := "garmin_id"
	if source == domain.SourceStrava {
		column = "strava_id"
	}
	query := fmt.Sprintf(`SELECT %s FROM activities WHERE athlete_id=$1 AND %s=$2`, activityColumns, column)

	tx, err := beginAthleteTx(ctx, r.pool, athleteID)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	activity, err := scanActivity(tx.QueryRow(ctx, query, athleteID, sourceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tx.Commit(ctx)
		}
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &activity, nil
}

// Create persists the activity and records the ingested event in one
// transaction.
func (r *ActivityRepository) Create(ctx context.Context, activity domain.Activity) error {
	tx, err := beginAthleteTx(ctx, r.pool, activity.AthleteID)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const stmt = `INSERT INTO activities (` + activityColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`

	if _, err := tx.Exec(ctx, stmt,
		activity.ID, activity.AthleteID, activity.Source, activity.GarminID, activity.StravaID,
		activity.StartTime, activity.ActivityType, activity.DistanceMeters, activity.DurationSeconds,
		activity.PlannedWorkoutID, activity.MatchConfidence, activity.MatchMethod,
		activity.MergeStatus, activity.MergeConfidence, activity.MergePeerID,
		activity.CreatedAt, activity.UpdatedAt,
	); err != nil {
		return err
	}

	payload := events.ActivityIngested{
		ActivityID:   activity.ID,
		AthleteID:    activity.AthleteID,
		Source:       string(activity.Source),
		ActivityType: activity.ActivityType,
		StartTime:    activity.StartTime,
		OccurredAt:   activity.CreatedAt,
	}
	dedupe := fmt.Sprintf("%s:activity.ingested", activity.ID)
	if err := insertOutbox(ctx, tx, activity.AthleteID, "activity", activity.ID, "activity.ingested", dedupe, payload); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	observability.RecordActivityIngested(string(activity.Source))
	return nil
}

// Get retrieves an activity by id, nil when absent.
func (r *ActivityRepository) Get(ctx context.Context, athleteID, activityID string) (*domain.Activity, error) {
	tx, err := beginAthleteTx(ctx, r.pool, athleteID)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	query := `SELECT ` + activityColumns + ` FROM activities WHERE athlete_id=$1 AND activity_id=$2`
	activity, err := scanActivity(tx.QueryRow(ctx, query, athleteID, activityID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tx.Commit(ctx)
		}
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &activity, nil
}

// ListByAthlete returns activities newest first with keyset pagination.
func (r *ActivityRepository) ListByAthlete(ctx context.Context, athleteID string, cursor *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error) {
	args := []interface{}{athleteID, limit}
	query := `SELECT ` + activityColumns + ` FROM activities WHERE athlete_id=$1`

	if cursor != nil {
		query += ` AND (start_time, activity_id) < ($3, $4)`
		args = append(args, cursor.StartTime, cursor.ID)
	}
	query += ` ORDER BY start_time DESC, activity_id DESC LIMIT $2`

	tx, err := beginAthleteTx(ctx, r.pool, athleteID)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	results := make([]domain.Activity, 0, limit)
	for rows.Next() {
		activity, err := scanActivity(rows)
		if err != nil {
			return nil, nil, err
		}
		results = append(results, activity)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}

	var next *domain.Cursor
	if len(results) == limit {
		last := results[len(results)-1]
		next = &domain.Cursor{StartTime: last.StartTime, ID: last.ID}
	}
	return results, next, nil
}

// RecentForMergeScan returns stored activities inside the recent window that
// are still eligible merge peers. Fully merged rows are filtered here rather
// than in Go so the scan stays bounded.
func (r *ActivityRepository) RecentForMergeScan(ctx context.Context, athleteID string, since time.Time) ([]domain.Activity, error) {
	query := `SELECT ` + activityColumns + ` FROM activities
        WHERE athlete_id=$1 AND start_time >= $2
          AND NOT (garmin_id IS NOT NULL AND garmin_id <> '' AND strava_id IS NOT NULL AND strava_id <> '')
        ORDER BY start_time DESC`

	tx, err := beginAthleteTx(ctx, r.pool, athleteID)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, query, athleteID, since)
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

// RecordMerge overwrites the surviving row with the combined record, deletes
// the absorbed row when one was stored, and emits the merged event, all in
// one transaction. absorbedID is nil when the absorbed side never reached the
// table (auto-merge at ingest).
func (r *ActivityRepository) RecordMerge(ctx context.Context, merged domain.Activity, absorbedID *string, score float64, automatic bool) error {
	tx, err := beginAthleteTx(ctx, r.pool, merged.AthleteID)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const stmt = `UPDATE activities SET
            source=$3, garmin_id=$4, strava_id=$5, start_time=$6, activity_type=$7,
            distance_meters=$8, duration_seconds=$9, planned_workout_id=$10,
            match_confidence=$11, match_method=$12,
            merge_status=$13, merge_confidence=$14, merge_peer_id=$15, updated_at=$16
        WHERE athlete_id=$1 AND activity_id=$2`

	tag, err := tx.Exec(ctx, stmt,
		merged.AthleteID, merged.ID,
		merged.Source, merged.GarminID, merged.StravaID, merged.StartTime, merged.ActivityType,
		merged.DistanceMeters, merged.DurationSeconds, merged.PlannedWorkoutID,
		merged.MatchConfidence, merged.MatchMethod,
		merged.MergeStatus, merged.MergeConfidence, merged.MergePeerID, merged.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("merge target %s not found", merged.ID)
	}

	absorbed := ""
	if absorbedID != nil {
		absorbed = *absorbedID
		if _, err := tx.Exec(ctx, `DELETE FROM activities WHERE athlete_id=$1 AND activity_id=$2`, merged.AthleteID, absorbed); err != nil {
			return err
		}
	}

	payload := events.ActivityMerged{
		ActivityID: merged.ID,
		AbsorbedID: absorbed,
		AthleteID:  merged.AthleteID,
		Score:      score,
		Confidence: score,
		Automatic:  automatic,
		OccurredAt: merged.UpdatedAt,
	}
	dedupe := fmt.Sprintf("%s:activity.merged:%d", merged.ID, merged.UpdatedAt.UnixNano())
	if err := insertOutbox(ctx, tx, merged.AthleteID, "activity", merged.ID, "activity.merged", dedupe, payload); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// PendingMerges lists activities awaiting manual merge review, oldest first.
func (r *ActivityRepository) PendingMerges(ctx context.Context, athleteID string) ([]domain.Activity, error) {
	query := `SELECT ` + activityColumns + ` FROM activities
        WHERE athlete_id=$1 AND merge_status=$2 ORDER BY created_at ASC`

	tx, err := beginAthleteTx(ctx, r.pool, athleteID)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, query, athleteID, domain.MergeStatusPendingReview)
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

// ApproveMerge resolves a pending review by absorbing the flagged row into
// its peer. Returns false without error when the row is no longer pending,
// which makes retries of the same approval harmless.
func (r *ActivityRepository) ApproveMerge(ctx context.Context, athleteID, activityID string) (bool, error) {
	tx, err := beginAthleteTx(ctx, r.pool, athleteID)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	query := `SELECT ` + activityColumns + ` FROM activities
        WHERE athlete_id=$1 AND activity_id=$2 FOR UPDATE`
	pending, err := scanActivity(tx.QueryRow(ctx, query, athleteID, activityID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, tx.Commit(ctx)
		}
		return false, err
	}
	if pending.MergeStatus != domain.MergeStatusPendingReview || pending.MergePeerID == nil {
		return false, tx.Commit(ctx)
	}

	peer, err := scanActivity(tx.QueryRow(ctx, query, athleteID, *pending.MergePeerID))
	if err != nil {
		return false, err
	}

	now := time.Now().UTC()
	merged := domain.MergeActivities(peer, pending)
	merged.UpdatedAt = now

	const stmt = `UPDATE activities SET
            source=$3, garmin_id=$4, strava_id=$5, start_time=$6, activity_type=$7,
            distance_meters=$8, duration_seconds=$9, planned_workout_id=$10,
            match_confidence=$11, match_method=$12,
            merge_status=$13, merge_confidence=$14, merge_peer_id=$15, updated_at=$16
        WHERE athlete_id=$1 AND activity_id=$2`
	if _, err := tx.Exec(ctx, stmt,
		merged.AthleteID, merged.ID,
		merged.Source, merged.GarminID, merged.StravaID, merged.StartTime, merged.ActivityType,
		merged.DistanceMeters, merged.DurationSeconds, merged.PlannedWorkoutID,
		merged.MatchConfidence, merged.MatchMethod,
		merged.MergeStatus, merged.MergeConfidence, merged.MergePeerID, merged.UpdatedAt,
	); err != nil {
		return false, err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM activities WHERE athlete_id=$1 AND activity_id=$2`, athleteID, pending.ID); err != nil {
		return false, err
	}

	score := 0.0
	if pending.MergeConfidence != nil {
		score = *pending.MergeConfidence
	}
	payload := events.ActivityMerged{
		ActivityID: merged.ID,
		AbsorbedID: pending.ID,
		AthleteID:  athleteID,
		Score:      score,
		Confidence: score,
		Automatic:  false,
		OccurredAt: now,
	}
	dedupe := fmt.Sprintf("%s:activity.merged:%d", merged.ID, now.UnixNano())
	if err := insertOutbox(ctx, tx, athleteID, "activity", merged.ID, "activity.merged", dedupe, payload); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// RejectMerge clears the pending flag so both records remain separate.
// Returns false when nothing was pending, so repeats are no-ops.
func (r *ActivityRepository) RejectMerge(ctx context.Context, athleteID, activityID string) (bool, error) {
	tx, err := beginAthleteTx(ctx, r.pool, athleteID)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	const stmt = `UPDATE activities
        SET merge_status='', merge_confidence=NULL, merge_peer_id=NULL, updated_at=NOW()
        WHERE athlete_id=$1 AND activity_id=$2 AND merge_status=$3`
	tag, err := tx.Exec(ctx, stmt, athleteID, activityID, domain.MergeStatusPendingReview)
	if err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
