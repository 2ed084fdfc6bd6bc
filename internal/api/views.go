package api

import (
	"errors"
	"strings"
	"time"

	"github.com/GaryRPCondon/training-platform-app-sub002/internal/domain"
	"github.com/GaryRPCondon/training-platform-app-sub002/internal/plan"
)

// CreateActivityRequest is the payload for POST /v1/activities. Manual
// entries carry no external ids and never enter merge detection.
type CreateActivityRequest struct {
	ActivityType    string    `json:"activity_type"`
	StartTime       time.Time `json:"start_time"`
	DistanceMeters  *float64  `json:"distance_meters,omitempty"`
	DurationSeconds *int      `json:"duration_seconds,omitempty"`
}

// Validate ensures request correctness.
func (r CreateActivityRequest) Validate() error {
	if strings.TrimSpace(r.ActivityType) == "" {
		return errors.New("activity_type is required")
	}
	if r.StartTime.IsZero() {
		return errors.New("start_time is required")
	}
	if r.DistanceMeters != nil && *r.DistanceMeters < 0 {
		return errors.New("distance_meters must be >= 0")
	}
	if r.DurationSeconds != nil && *r.DurationSeconds < 0 {
		return errors.New("duration_seconds must be >= 0")
	}
	return nil
}

// SyncRequest is the optional payload for POST /v1/sync.
type SyncRequest struct {
	Since time.Time `json:"since,omitempty"`
}

// SyncStatusResponse reports whether a sync run currently holds the lock.
type SyncStatusResponse struct {
	InProgress bool       `json:"in_progress"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
}

// MatchRunRequest is the optional payload for POST /v1/matches/run. Zero
// times default to the past week through tomorrow.
type MatchRunRequest struct {
	Start time.Time `json:"start,omitempty"`
	End   time.Time `json:"end,omitempty"`
}

// MatchRunResponse lists the links accepted by one matching pass.
type MatchRunResponse struct {
	Links []LinkResponse `json:"links"`
}

// ActivityView exposes full details about an activity.
type ActivityView struct {
	ActivityID      string    `json:"activity_id"`
	AthleteID       string    `json:"athlete_id"`
	Source          string    `json:"source"`
	GarminID        *string   `json:"garmin_id,omitempty"`
	StravaID        *string   `json:"strava_id,omitempty"`
	StartTime       time.Time `json:"start_time"`
	ActivityType    string    `json:"activity_type"`
	DistanceMeters  *float64  `json:"distance_meters,omitempty"`
	DurationSeconds *int      `json:"duration_seconds,omitempty"`
	WorkoutID       *string   `json:"planned_workout_id,omitempty"`
	MatchConfidence *float64  `json:"match_confidence,omitempty"`
	MatchMethod     string    `json:"match_method,omitempty"`
	MergeStatus     string    `json:"merge_status,omitempty"`
	MergeConfidence *float64  `json:"merge_confidence,omitempty"`
	MergePeerID     *string   `json:"merge_peer_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ListActivitiesResponse packages list results.
type ListActivitiesResponse struct {
	Items      []ActivityView `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// PendingMergesResponse lists activities awaiting a merge decision.
type PendingMergesResponse struct {
	Items []ActivityView `json:"items"`
}

// MergeDecisionResponse reports the result of an approve or reject call.
// Applied is false when the activity was no longer pending, which callers
// treat as an idempotent success.
type MergeDecisionResponse struct {
	ActivityID string `json:"activity_id"`
	Action     string `json:"action"`
	Applied    bool   `json:"applied"`
}

// PlanView exposes a training plan header.
type PlanView struct {
	PlanID    string    `json:"plan_id"`
	AthleteID string    `json:"athlete_id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
	VDOT      *float64  `json:"vdot,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListPlansResponse packages plan list results.
type ListPlansResponse struct {
	Items []PlanView `json:"items"`
}

// WorkoutView exposes one planned workout inside a snapshot.
type WorkoutView struct {
	WorkoutID       string                    `json:"workout_id"`
	WeekNumber      int                       `json:"week_number"`
	Day             int                       `json:"day_of_week"`
	ScheduledDate   time.Time                 `json:"scheduled_date"`
	WorkoutType     string                    `json:"workout_type"`
	Description     string                    `json:"description,omitempty"`
	DistanceMeters  *float64                  `json:"distance_meters,omitempty"`
	DurationSeconds *int                      `json:"duration_seconds,omitempty"`
	IntensityTarget string                    `json:"intensity_target,omitempty"`
	Structured      *domain.StructuredWorkout `json:"structured,omitempty"`
	Completion      string                    `json:"completion_status"`
	ActivityID      *string                   `json:"completed_activity_id,omitempty"`
	Version         int                       `json:"version"`
	CalendarSync    string                    `json:"calendar_sync,omitempty"`
}

// WeekView is one plan week inside a snapshot response.
type WeekView struct {
	WeekNumber     int           `json:"week_number"`
	PhaseName      string        `json:"phase_name,omitempty"`
	WeeklyVolumeKM float64       `json:"weekly_volume_km"`
	Workouts       []WorkoutView `json:"workouts"`
}

// SnapshotView is the full plan snapshot returned by GET /v1/plans/{id}.
type SnapshotView struct {
	Plan        PlanView   `json:"plan"`
	Weeks       []WeekView `json:"weeks"`
	Constraints []string   `json:"athlete_constraints,omitempty"`
}

// OperationsRequest is the payload for the validate, preview and apply
// endpoints.
type OperationsRequest struct {
	Operations []plan.Operation `json:"operations"`
}

// PreviewResponse pairs per-operation previews with the validation result.
type PreviewResponse struct {
	Validation plan.ValidationResult `json:"validation"`
	Previews   []plan.PreviewItem    `json:"previews"`
}

// RefineRequest is the payload for POST /v1/plans/{id}/refine.
type RefineRequest struct {
	Request string `json:"request"`
}

// LinkRequest is the payload for POST /v1/workouts/{id}/link.
type LinkRequest struct {
	ActivityID string `json:"activity_id"`
}

// LinkResponse reports the accepted pairing.
type LinkResponse struct {
	WorkoutID  string  `json:"workout_id"`
	ActivityID string  `json:"activity_id"`
	Confidence float64 `json:"confidence"`
	Method     string  `json:"method"`
	Completion string  `json:"completion_status"`
}

func toActivityView(a domain.Activity) ActivityView {
	return ActivityView{
		ActivityID:      a.ID,
		AthleteID:       a.AthleteID,
		Source:          string(a.Source),
		GarminID:        a.GarminID,
		StravaID:        a.StravaID,
		StartTime:       a.StartTime,
		ActivityType:    a.ActivityType,
		DistanceMeters:  a.DistanceMeters,
		DurationSeconds: a.DurationSeconds,
		WorkoutID:       a.PlannedWorkoutID,
		MatchConfidence: a.MatchConfidence,
		MatchMethod:     string(a.MatchMethod),
		MergeStatus:     string(a.MergeStatus),
		MergeConfidence: a.MergeConfidence,
		MergePeerID:     a.MergePeerID,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

func toPlanView(p domain.TrainingPlan) PlanView {
	return PlanView{
		PlanID:    p.ID,
		AthleteID: p.AthleteID,
		Name:      p.Name,
		Status:    string(p.Status),
		StartDate: p.StartDate,
		EndDate:   p.EndDate,
		VDOT:      p.VDOT,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func toWorkoutView(w domain.PlannedWorkout) WorkoutView {
	return WorkoutView{
		WorkoutID:       w.ID,
		WeekNumber:      w.WeekNumber,
		Day:             w.Day,
		ScheduledDate:   w.ScheduledDate,
		WorkoutType:     string(w.WorkoutType),
		Description:     w.Description,
		DistanceMeters:  w.DistanceMeters,
		DurationSeconds: w.DurationSeconds,
		IntensityTarget: w.IntensityTarget,
		Structured:      w.Structured,
		Completion:      string(w.Completion),
		ActivityID:      w.CompletedActivityID,
		Version:         w.Version,
		CalendarSync:    string(w.CalendarSync),
	}
}

func toSnapshotView(snap domain.PlanSnapshot) SnapshotView {
	weeks := make([]WeekView, 0, len(snap.Weeks))
	for _, week := range snap.Weeks {
		workouts := make([]WorkoutView, 0, len(week.Workouts))
		for _, w := range week.Workouts {
			workouts = append(workouts, toWorkoutView(w))
		}
		weeks = append(weeks, WeekView{
			WeekNumber:     week.WeekNumber,
			PhaseName:      week.PhaseName,
			WeeklyVolumeKM: week.WeeklyVolumeKM,
			Workouts:       workouts,
		})
	}
	return SnapshotView{
		Plan:        toPlanView(snap.Plan),
		Weeks:       weeks,
		Constraints: snap.AthleteConstraints,
	}
}
