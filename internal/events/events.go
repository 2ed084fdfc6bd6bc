// Package events defines the payloads published to downstream consumers,
// calendar sync and the athlete-facing feed included.
package events

import "time"

// ActivityIngested is emitted when a bridge activity is accepted and stored.
type ActivityIngested struct {
	ActivityID   string    `json:"activity_id"`
	AthleteID    string    `json:"athlete_id"`
	Source       string    `json:"source"`
	ActivityType string    `json:"activity_type"`
	StartTime    time.Time `json:"start_time"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// ActivityMerged is emitted when two platform records of the same session are
// combined into one.
type ActivityMerged struct {
	ActivityID string    `json:"activity_id"`
	AbsorbedID string    `json:"absorbed_id"`
	AthleteID  string    `json:"athlete_id"`
	Confidence float64   `json:"confidence"`
	Score      float64   `json:"score"`
	Automatic  bool      `json:"automatic"`
	OccurredAt time.Time `json:"occurred_at"`
}

// WorkoutUpdated is emitted whenever a planned workout's content changes, so
// the calendar sync worker can re-push the entry.
type WorkoutUpdated struct {
	WorkoutID     string    `json:"workout_id"`
	PlanID        string    `json:"plan_id"`
	AthleteID     string    `json:"athlete_id"`
	WeekNumber    int       `json:"week_number"`
	Day           int       `json:"day"`
	WorkoutType   string    `json:"workout_type"`
	Version       int       `json:"version"`
	ScheduledDate time.Time `json:"scheduled_date"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// PlanModified is emitted once per successful operations apply.
type PlanModified struct {
	PlanID           string    `json:"plan_id"`
	AthleteID        string    `json:"athlete_id"`
	OperationsCount  int       `json:"operations_count"`
	WorkoutsModified int       `json:"workouts_modified"`
	OccurredAt       time.Time `json:"occurred_at"`
}
