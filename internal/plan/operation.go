// Package plan implements the deterministic operations engine that applies
// discrete, validated edits to a training plan without regenerating it.
package plan

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// OpType tags one operation variant.
type OpType string

const (
	OpSwapDays              OpType = "swap_days"
	OpMoveWorkoutType       OpType = "move_workout_type"
	OpRescheduleWorkout     OpType = "reschedule_workout"
	OpChangeWorkoutType     OpType = "change_workout_type"
	OpChangeWorkoutDistance OpType = "change_workout_distance"
	OpScaleWorkoutDistance  OpType = "scale_workout_distance"
	OpChangeIntensity       OpType = "change_intensity"
	OpRemoveWorkoutType     OpType = "remove_workout_type"
	OpScaleWeekVolume       OpType = "scale_week_volume"
	OpScalePhaseVolume      OpType = "scale_phase_volume"
	// OpRequestFallback is a sentinel, not an edit: the request cannot be
	// expressed as operations and a full regeneration is required.
	OpRequestFallback OpType = "request_fallback"
)

// WeekSelector is either every week of the plan or an explicit list. The wire
// form is the literal string "all" or a JSON array of week numbers.
type WeekSelector struct {
	All   bool
	Weeks []int
}

// AllWeeks selects every week.
func AllWeeks() WeekSelector { return WeekSelector{All: true} }

// SpecificWeeks selects the listed week numbers.
func SpecificWeeks(weeks ...int) WeekSelector { return WeekSelector{Weeks: weeks} }

// Resolve expands the selector against the plan's week numbers.
func (s WeekSelector) Resolve(available []int) []int {
	if s.All {
		out := make([]int, len(available))
		copy(out, available)
		return out
	}
	return s.Weeks
}

// IsZero reports whether the selector was never set.
func (s WeekSelector) IsZero() bool { return !s.All && len(s.Weeks) == 0 }

// UnmarshalJSON accepts "all" or [1,2,3].
func (s *WeekSelector) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == `"all"` {
		*s = WeekSelector{All: true}
		return nil
	}
	var weeks []int
	if err := json.Unmarshal(data, &weeks); err != nil {
		return fmt.Errorf(`week selector must be "all" or an array of week numbers: %w`, err)
	}
	*s = WeekSelector{Weeks: weeks}
	return nil
}

// MarshalJSON emits "all" or the explicit list.
func (s WeekSelector) MarshalJSON() ([]byte, error) {
	if s.All {
		return json.Marshal("all")
	}
	return json.Marshal(s.Weeks)
}

var workoutRefPattern = regexp.MustCompile(`^W(\d+):D(\d+)$`)

// WorkoutRef is the stable human-readable index of one workout, W<week>:D<day>.
type WorkoutRef struct {
	Week int
	Day  int
}

// ParseWorkoutRef parses a W#:D# index string.
func ParseWorkoutRef(ref string) (WorkoutRef, error) {
	m := workoutRefPattern.FindStringSubmatch(strings.TrimSpace(ref))
	if m == nil {
		return WorkoutRef{}, fmt.Errorf("invalid workout index %q, expected W<week>:D<day>", ref)
	}
	week, _ := strconv.Atoi(m[1])
	day, _ := strconv.Atoi(m[2])
	return WorkoutRef{Week: week, Day: day}, nil
}

// String renders the canonical index form.
func (r WorkoutRef) String() string {
	return fmt.Sprintf("W%d:D%d", r.Week, r.Day)
}

// UnmarshalJSON parses the index string form.
func (r *WorkoutRef) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseWorkoutRef(raw)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// MarshalJSON renders the index string form.
func (r WorkoutRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// Operation is one deterministic edit. Only the fields relevant to its Type
// are set; Validate enforces that per variant.
type Operation struct {
	Type OpType `json:"type"`

	Weeks WeekSelector `json:"weeks,omitempty"`
	DayA  int          `json:"day_a,omitempty"`
	DayB  int          `json:"day_b,omitempty"`
	ToDay int          `json:"to_day,omitempty"`

	Workout WorkoutRef `json:"workout,omitempty"`

	WorkoutType     string `json:"workout_type,omitempty"`
	ReplacementType string `json:"replacement_type,omitempty"`
	NewType         string `json:"new_type,omitempty"`
	NewIntensity    string `json:"new_intensity,omitempty"`
	Phase           string `json:"phase,omitempty"`

	NewDistanceMeters *float64   `json:"new_distance_meters,omitempty"`
	Factor            *float64   `json:"factor,omitempty"`
	NewDate           *time.Time `json:"new_date,omitempty"`

	// Reason accompanies request_fallback so the caller can log why the
	// deterministic path was abandoned.
	Reason string `json:"reason,omitempty"`
}

// ErrUnknownOperation is returned for an unrecognized operation type.
var ErrUnknownOperation = errors.New("unknown operation type")

// Describe renders a short human-readable summary for UI display.
func Describe(op Operation) string {
	switch op.Type {
	case OpSwapDays:
		return fmt.Sprintf("Swap day %d and day %d in %s", op.DayA, op.DayB, describeWeeks(op.Weeks))
	case OpMoveWorkoutType:
		return fmt.Sprintf("Move the %s to day %d in %s", op.WorkoutType, op.ToDay, describeWeeks(op.Weeks))
	case OpRescheduleWorkout:
		if op.NewDate != nil {
			return fmt.Sprintf("Reschedule %s to %s", op.Workout, op.NewDate.Format("2006-01-02"))
		}
		return fmt.Sprintf("Reschedule %s", op.Workout)
	case OpChangeWorkoutType:
		return fmt.Sprintf("Change %s to a %s", op.Workout, op.NewType)
	case OpChangeWorkoutDistance:
		if op.NewDistanceMeters != nil {
			return fmt.Sprintf("Set %s distance to %.1f km", op.Workout, *op.NewDistanceMeters/1000)
		}
		return fmt.Sprintf("Change %s distance", op.Workout)
	case OpScaleWorkoutDistance:
		if op.Factor != nil {
			return fmt.Sprintf("Scale %s distance by %.0f%%", op.Workout, *op.Factor*100)
		}
		return fmt.Sprintf("Scale %s distance", op.Workout)
	case OpChangeIntensity:
		return fmt.Sprintf("Set %s intensity to %s", op.Workout, op.NewIntensity)
	case OpRemoveWorkoutType:
		return fmt.Sprintf("Replace every %s with %s in %s", op.WorkoutType, op.ReplacementType, describeWeeks(op.Weeks))
	case OpScaleWeekVolume:
		if op.Factor != nil {
			return fmt.Sprintf("Scale volume by %.0f%% in %s", *op.Factor*100, describeWeeks(op.Weeks))
		}
		return fmt.Sprintf("Scale volume in %s", describeWeeks(op.Weeks))
	case OpScalePhaseVolume:
		if op.Factor != nil {
			return fmt.Sprintf("Scale the %s phase volume by %.0f%%", op.Phase, *op.Factor*100)
		}
		return fmt.Sprintf("Scale the %s phase volume", op.Phase)
	case OpRequestFallback:
		if op.Reason != "" {
			return "Regenerate the plan: " + op.Reason
		}
		return "Regenerate the plan"
	}
	return "Unknown operation"
}

func describeWeeks(s WeekSelector) string {
	if s.All {
		return "all weeks"
	}
	if len(s.Weeks) == 1 {
		return fmt.Sprintf("week %d", s.Weeks[0])
	}
	parts := make([]string, len(s.Weeks))
	for i, w := range s.Weeks {
		parts[i] = strconv.Itoa(w)
	}
	return "weeks " + strings.Join(parts, ", ")
}
