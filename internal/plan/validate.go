package plan

import (
	"fmt"
	"strings"

	"github.com/GaryRPCondon/training-platform-app-sub002/internal/domain"
)

const (
	minDay      = 1
	maxDay      = 7
	minFactor   = 0.0
	maxFactor   = 3.0
	swingFactor = 0.5 // volume changes beyond ±50% draw a warning
)

// ValidationResult lists every problem found in a batch. Errors block the
// write; warnings are surfaced but do not.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// validateParams checks one operation's parameters against the snapshot
// without resolving it. All errors are collected so the UI can highlight
// every problem at once.
func validateParams(index int, op Operation, snap domain.PlanSnapshot) []string {
	var errs []string
	fail := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Sprintf("operation %d (%s): %s", index+1, op.Type, fmt.Sprintf(format, args...)))
	}

	checkWeeks := func(sel WeekSelector) {
		if sel.IsZero() {
			fail("week selector is required")
			return
		}
		for _, week := range sel.Weeks {
			if week < 1 || week > snap.TotalWeeks() {
				fail("week %d out of range [1, %d]", week, snap.TotalWeeks())
			}
		}
	}
	checkDay := func(name string, day int) {
		if day < minDay || day > maxDay {
			fail("%s %d out of range [%d, %d]", name, day, minDay, maxDay)
		}
	}
	checkRef := func(ref WorkoutRef) {
		if ref.Week < 1 || ref.Week > snap.TotalWeeks() {
			fail("workout index %s: week out of range [1, %d]", ref, snap.TotalWeeks())
			return
		}
		checkDay("day", ref.Day)
		if ref.Day >= minDay && ref.Day <= maxDay {
			if _, ok := snap.WorkoutAt(ref.Week, ref.Day); !ok {
				fail("workout index %s does not resolve to an existing workout", ref)
			}
		}
	}
	checkFactor := func() {
		if op.Factor == nil {
			fail("factor is required")
			return
		}
		if *op.Factor < minFactor || *op.Factor > maxFactor {
			fail("factor %.2f out of range [%.0f, %.0f]", *op.Factor, minFactor, maxFactor)
		}
	}
	checkType := func(name, value string) {
		if value == "" {
			fail("%s is required", name)
			return
		}
		if _, ok := domain.KnownWorkoutTypes[domain.WorkoutType(value)]; !ok {
			fail("%s %q is not a known workout type", name, value)
		}
	}

	switch op.Type {
	case OpSwapDays:
		checkWeeks(op.Weeks)
		checkDay("day_a", op.DayA)
		checkDay("day_b", op.DayB)
		if op.DayA == op.DayB {
			fail("day_a and day_b must differ")
		}
	case OpMoveWorkoutType:
		checkWeeks(op.Weeks)
		checkDay("to_day", op.ToDay)
		checkType("workout_type", op.WorkoutType)
	case OpRescheduleWorkout:
		checkRef(op.Workout)
		if op.NewDate == nil || op.NewDate.IsZero() {
			fail("new_date is required")
		}
	case OpChangeWorkoutType:
		checkRef(op.Workout)
		checkType("new_type", op.NewType)
	case OpChangeWorkoutDistance:
		checkRef(op.Workout)
		if op.NewDistanceMeters == nil {
			fail("new_distance_meters is required")
		} else if *op.NewDistanceMeters < 0 {
			fail("new_distance_meters must not be negative")
		}
	case OpScaleWorkoutDistance:
		checkRef(op.Workout)
		checkFactor()
	case OpChangeIntensity:
		checkRef(op.Workout)
		if op.NewIntensity == "" {
			fail("new_intensity is required")
		}
	case OpRemoveWorkoutType:
		checkWeeks(op.Weeks)
		checkType("workout_type", op.WorkoutType)
		checkType("replacement_type", op.ReplacementType)
	case OpScaleWeekVolume:
		checkWeeks(op.Weeks)
		checkFactor()
	case OpScalePhaseVolume:
		if op.Phase == "" {
			fail("phase is required")
		} else if !phaseExists(snap, op.Phase) {
			fail("phase %q not present in plan", op.Phase)
		}
		checkFactor()
	case OpRequestFallback:
		// Always valid; the engine short-circuits on it.
	default:
		fail("unrecognized operation type")
	}

	return errs
}

// hardDayConflicts scans a post-apply snapshot for hard sessions on adjacent
// days. Reported as warnings, not errors: chat-driven refinement may stack
// hard days on purpose.
func hardDayConflicts(snap domain.PlanSnapshot) []string {
	var warnings []string
	for _, week := range snap.Weeks {
		byDay := make(map[int]domain.WorkoutType, len(week.Workouts))
		for _, w := range week.Workouts {
			byDay[w.Day] = w.WorkoutType
		}
		for day := minDay; day < maxDay; day++ {
			a, okA := byDay[day]
			b, okB := byDay[day+1]
			if okA && okB && a.HardType() && b.HardType() {
				warnings = append(warnings, fmt.Sprintf(
					"week %d: %s on day %d directly follows %s on day %d",
					week.WeekNumber, b, day+1, a, day))
			}
		}
	}
	return warnings
}

func volumeSwingWarning(index int, op Operation) (string, bool) {
	if op.Factor == nil {
		return "", false
	}
	if *op.Factor >= 1-swingFactor && *op.Factor <= 1+swingFactor {
		return "", false
	}
	return fmt.Sprintf("operation %d (%s): factor %.2f is a large volume swing", index+1, op.Type, *op.Factor), true
}

func phaseExists(snap domain.PlanSnapshot, phase string) bool {
	for _, week := range snap.Weeks {
		if strings.EqualFold(week.PhaseName, phase) {
			return true
		}
	}
	return false
}
