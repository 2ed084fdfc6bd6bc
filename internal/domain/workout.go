package domain

import "time"

// WorkoutType enumerates the planned session kinds the engine understands.
type WorkoutType string

const (
	WorkoutEasyRun       WorkoutType = "easy_run"
	WorkoutLongRun       WorkoutType = "long_run"
	WorkoutTempo         WorkoutType = "tempo"
	WorkoutIntervals     WorkoutType = "intervals"
	WorkoutSpeed         WorkoutType = "speed"
	WorkoutRest          WorkoutType = "rest"
	WorkoutRecovery      WorkoutType = "recovery"
	WorkoutRace          WorkoutType = "race"
	WorkoutCrossTraining WorkoutType = "cross_training"
)

// KnownWorkoutTypes lists every type accepted by operation validation.
var KnownWorkoutTypes = map[WorkoutType]struct{}{
	WorkoutEasyRun:       {},
	WorkoutLongRun:       {},
	WorkoutTempo:         {},
	WorkoutIntervals:     {},
	WorkoutSpeed:         {},
	WorkoutRest:          {},
	WorkoutRecovery:      {},
	WorkoutRace:          {},
	WorkoutCrossTraining: {},
}

// HardType reports whether the type counts as a hard session for the
// adjacent-hard-days conflict warning.
func (t WorkoutType) HardType() bool {
	switch t {
	case WorkoutTempo, WorkoutIntervals, WorkoutSpeed, WorkoutRace, WorkoutLongRun:
		return true
	}
	return false
}

// RunningFamily reports whether the type is a running variant, used for the
// same-family partial credit when scoring an activity against a workout.
func (t WorkoutType) RunningFamily() bool {
	switch t {
	case WorkoutEasyRun, WorkoutLongRun, WorkoutTempo, WorkoutIntervals, WorkoutSpeed, WorkoutRecovery, WorkoutRace:
		return true
	}
	return false
}

// CompletionStatus tracks whether a planned workout was performed.
type CompletionStatus string

const (
	CompletionPending   CompletionStatus = "pending"
	CompletionCompleted CompletionStatus = "completed"
	CompletionPartial   CompletionStatus = "partial"
	CompletionSkipped   CompletionStatus = "skipped"
)

// CalendarSyncStatus tracks whether the workout's pushed calendar entry is
// current. Any field mutation flips a synced workout to stale.
type CalendarSyncStatus string

const (
	CalendarNotPushed CalendarSyncStatus = ""
	CalendarSynced    CalendarSyncStatus = "synced"
	CalendarStale     CalendarSyncStatus = "stale"
)

// IntervalRep is one repetition inside a structured main set.
type IntervalRep struct {
	Repeat         int     `json:"repeat"`
	DistanceMeters float64 `json:"distance_meters,omitempty"`
	DurationSec    int     `json:"duration_sec,omitempty"`
	TargetPace     string  `json:"target_pace,omitempty"`
	RecoverySec    int     `json:"recovery_sec,omitempty"`
}

// StructuredWorkout is the optional per-type breakdown of a session. Simple
// sessions carry only pace guidance and notes; quality sessions add
// warmup/main-set/cooldown. The shape is validated at the boundary keyed by
// workout type rather than trusted as arbitrary JSON deeper in the engine.
type StructuredWorkout struct {
	WarmupMeters   float64       `json:"warmup_meters,omitempty"`
	MainSet        []IntervalRep `json:"main_set,omitempty"`
	CooldownMeters float64       `json:"cooldown_meters,omitempty"`
	PaceGuidance   string        `json:"pace_guidance,omitempty"`
	Notes          string        `json:"notes,omitempty"`
}

// PlannedWorkout is one scheduled training session inside a plan week.
type PlannedWorkout struct {
	ID            string
	AthleteID     string
	PlanID        string
	WeekNumber    int
	Day           int // 1..7, Monday-first
	ScheduledDate time.Time

	WorkoutType     WorkoutType
	Description     string
	DistanceMeters  *float64
	DurationSeconds *int
	IntensityTarget string
	Structured      *StructuredWorkout

	Completion          CompletionStatus
	CompletedActivityID *string
	MatchConfidence     *float64
	MatchMethod         MatchMethod

	// Version increments by exactly one on every field edit. Linking a
	// completed activity updates completion fields without bumping it.
	Version      int
	CalendarSync CalendarSyncStatus

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TargetDistance returns the distance target in meters, nil treated as zero.
func (w PlannedWorkout) TargetDistance() float64 {
	if w.DistanceMeters == nil {
		return 0
	}
	return *w.DistanceMeters
}

// TargetDuration returns the duration target in seconds, nil treated as zero.
func (w PlannedWorkout) TargetDuration() int {
	if w.DurationSeconds == nil {
		return 0
	}
	return *w.DurationSeconds
}
