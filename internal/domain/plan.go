package domain

import "time"

// PlanStatus is the lifecycle state of a training plan. At most one plan per
// athlete is active at a time; the activation routine enforces that outside
// the operations engine.
type PlanStatus string

const (
	PlanDraft          PlanStatus = "draft"
	PlanDraftGenerated PlanStatus = "draft_generated"
	PlanActive         PlanStatus = "active"
	PlanCompleted      PlanStatus = "completed"
	PlanPaused         PlanStatus = "paused"
)

// TrainingPlan is the named container of weeks and workouts.
type TrainingPlan struct {
	ID        string
	AthleteID string
	Name      string
	Status    PlanStatus
	StartDate time.Time
	EndDate   time.Time
	VDOT      *float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// WeekSnapshot is one plan week inside a loaded snapshot.
type WeekSnapshot struct {
	WeekNumber     int
	PhaseName      string
	WeeklyVolumeKM float64
	Workouts       []PlannedWorkout
}

// PlanSnapshot is the in-memory view the operations engine and the prompt
// builders work over. It is assembled once per request by the context loader;
// the engine never reads the live store while resolving what to change.
type PlanSnapshot struct {
	Plan               TrainingPlan
	Weeks              []WeekSnapshot
	AthleteConstraints []string
}

// TotalWeeks returns the number of weeks in the snapshot.
func (s PlanSnapshot) TotalWeeks() int {
	return len(s.Weeks)
}

// Week returns the snapshot week with the given 1-indexed number.
func (s PlanSnapshot) Week(number int) (*WeekSnapshot, bool) {
	for i := range s.Weeks {
		if s.Weeks[i].WeekNumber == number {
			return &s.Weeks[i], true
		}
	}
	return nil, false
}

// WorkoutAt resolves a week/day pair to a workout within the snapshot.
func (s PlanSnapshot) WorkoutAt(week, day int) (*PlannedWorkout, bool) {
	w, ok := s.Week(week)
	if !ok {
		return nil, false
	}
	for i := range w.Workouts {
		if w.Workouts[i].Day == day {
			return &w.Workouts[i], true
		}
	}
	return nil, false
}
