package plan

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/GaryRPCondon/training-platform-app-sub002/internal/domain"
	"github.com/GaryRPCondon/training-platform-app-sub002/internal/observability"
)

// ErrStaleWrite is surfaced when a workout update's version precondition
// fails, meaning another request modified the plan after this snapshot was
// loaded. The caller must reload and re-submit.
var ErrStaleWrite = errors.New("workout was modified by a concurrent request")

// Store is the write surface for applying resolved changes. UpdateWorkout
// must persist the full mutable state of the workout and carry a
// `WHERE version = expectedVersion` precondition, returning ErrStaleWrite
// when it does not hold.
type Store interface {
	UpdateWorkout(ctx context.Context, athleteID string, workout domain.PlannedWorkout, expectedVersion int) error
}

// WorkoutChange identifies one workout a resolved operation touches.
type WorkoutChange struct {
	WorkoutID string     `json:"workout_id"`
	Ref       WorkoutRef `json:"index"`
	Summary   string     `json:"summary"`
}

// PreviewItem is the per-operation affected-workout list shown before apply.
type PreviewItem struct {
	Description string          `json:"description"`
	Affected    []WorkoutChange `json:"affected_workouts"`
	Skipped     []string        `json:"skipped,omitempty"`
}

// ApplyResult reports what an apply call actually did. A partially failed
// write is reported honestly rather than rolled back: OperationsApplied and
// WorkoutsModified count what reached the store before the failure.
type ApplyResult struct {
	Success           bool     `json:"success"`
	FallbackRequested bool     `json:"fallback_requested"`
	FallbackReason    string   `json:"fallback_reason,omitempty"`
	OperationsApplied int      `json:"operations_applied"`
	WorkoutsModified  int      `json:"workouts_modified"`
	Errors            []string `json:"errors,omitempty"`
	Warnings          []string `json:"warnings,omitempty"`
}

// Engine resolves operation batches against a plan snapshot and writes the
// result through a Store.
type Engine struct {
	store Store
}

// NewEngine constructs an Engine.
func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

// resolution is the outcome of walking a batch over a snapshot copy.
// Operations are resolved in array order and each sees the already
// transformed state left by its predecessors.
type resolution struct {
	snapshot domain.PlanSnapshot
	// touched maps workout id to its original version; order preserves
	// first-touch sequence, which is also write order.
	touched  map[string]int
	order    []string
	perOp    [][]string
	previews []PreviewItem
	warnings []string
	fallback *Operation
}

func resolve(ops []Operation, snap domain.PlanSnapshot) *resolution {
	res := &resolution{
		snapshot: cloneSnapshot(snap),
		touched:  make(map[string]int),
	}

	for i := range ops {
		op := ops[i]
		if op.Type == OpRequestFallback {
			res.fallback = &op
			res.perOp = append(res.perOp, nil)
			res.previews = append(res.previews, PreviewItem{Description: Describe(op)})
			continue
		}

		item := PreviewItem{Description: Describe(op)}
		var ids []string
		mark := func(w *domain.PlannedWorkout, summary string) {
			if _, seen := res.touched[w.ID]; !seen {
				res.touched[w.ID] = w.Version
				res.order = append(res.order, w.ID)
			}
			ids = append(ids, w.ID)
			item.Affected = append(item.Affected, WorkoutChange{
				WorkoutID: w.ID,
				Ref:       WorkoutRef{Week: w.WeekNumber, Day: w.Day},
				Summary:   summary,
			})
		}
		skip := func(format string, args ...interface{}) {
			msg := fmt.Sprintf(format, args...)
			item.Skipped = append(item.Skipped, msg)
			res.warnings = append(res.warnings, fmt.Sprintf("operation %d (%s): %s", i+1, op.Type, msg))
		}

		res.resolveOne(op, mark, skip)

		if warning, ok := volumeSwingWarning(i, op); ok {
			res.warnings = append(res.warnings, warning)
		}
		res.perOp = append(res.perOp, dedupe(ids))
		res.previews = append(res.previews, item)
	}

	return res
}

func (r *resolution) resolveOne(op Operation, mark func(*domain.PlannedWorkout, string), skip func(string, ...interface{})) {
	snap := &r.snapshot

	weekNumbers := func(sel WeekSelector) []int {
		available := make([]int, 0, len(snap.Weeks))
		for _, w := range snap.Weeks {
			available = append(available, w.WeekNumber)
		}
		return sel.Resolve(available)
	}

	switch op.Type {
	case OpSwapDays:
		for _, week := range weekNumbers(op.Weeks) {
			a, okA := snap.WorkoutAt(week, op.DayA)
			b, okB := snap.WorkoutAt(week, op.DayB)
			if !okA || !okB {
				skip("week %d is missing day %d or day %d", week, op.DayA, op.DayB)
				continue
			}
			swapContent(a, b)
			mark(a, fmt.Sprintf("now holds the %s from day %d", a.WorkoutType, op.DayB))
			mark(b, fmt.Sprintf("now holds the %s from day %d", b.WorkoutType, op.DayA))
		}

	case OpMoveWorkoutType:
		for _, week := range weekNumbers(op.Weeks) {
			source := findByType(snap, week, domain.WorkoutType(op.WorkoutType))
			if source == nil {
				skip("week %d has no %s", week, op.WorkoutType)
				continue
			}
			if source.Day == op.ToDay {
				skip("week %d: %s already on day %d", week, op.WorkoutType, op.ToDay)
				continue
			}
			dest, ok := snap.WorkoutAt(week, op.ToDay)
			if !ok {
				skip("week %d has no workout slot on day %d", week, op.ToDay)
				continue
			}
			// Displaced content does not vanish: it takes the vacated slot.
			swapContent(source, dest)
			mark(dest, fmt.Sprintf("now holds the %s", op.WorkoutType))
			mark(source, fmt.Sprintf("now holds the displaced %s", source.WorkoutType))
		}

	case OpRescheduleWorkout:
		w, _ := snap.WorkoutAt(op.Workout.Week, op.Workout.Day)
		w.ScheduledDate = op.NewDate.UTC()
		mark(w, "rescheduled to "+op.NewDate.Format("2006-01-02"))

	case OpChangeWorkoutType:
		w, _ := snap.WorkoutAt(op.Workout.Week, op.Workout.Day)
		w.WorkoutType = domain.WorkoutType(op.NewType)
		w.Structured = nil
		mark(w, "type changed to "+op.NewType)

	case OpChangeWorkoutDistance:
		w, _ := snap.WorkoutAt(op.Workout.Week, op.Workout.Day)
		distance := math.Round(*op.NewDistanceMeters)
		w.DistanceMeters = &distance
		mark(w, fmt.Sprintf("distance set to %.0f m", distance))

	case OpScaleWorkoutDistance:
		w, _ := snap.WorkoutAt(op.Workout.Week, op.Workout.Day)
		if w.DistanceMeters == nil {
			skip("%s has no distance target to scale", op.Workout)
			return
		}
		scaled := math.Round(*w.DistanceMeters * *op.Factor)
		w.DistanceMeters = &scaled
		mark(w, fmt.Sprintf("distance scaled to %.0f m", scaled))

	case OpChangeIntensity:
		w, _ := snap.WorkoutAt(op.Workout.Week, op.Workout.Day)
		w.IntensityTarget = op.NewIntensity
		mark(w, "intensity set to "+op.NewIntensity)

	case OpRemoveWorkoutType:
		replaced := false
		for _, week := range weekNumbers(op.Weeks) {
			ws, ok := snap.Week(week)
			if !ok {
				continue
			}
			for j := range ws.Workouts {
				w := &ws.Workouts[j]
				if w.WorkoutType != domain.WorkoutType(op.WorkoutType) {
					continue
				}
				w.WorkoutType = domain.WorkoutType(op.ReplacementType)
				w.Structured = nil
				mark(w, fmt.Sprintf("%s replaced with %s", op.WorkoutType, op.ReplacementType))
				replaced = true
			}
		}
		if !replaced {
			skip("no %s found in the selected weeks", op.WorkoutType)
		}

	case OpScaleWeekVolume:
		r.scaleVolume(weekNumbers(op.Weeks), *op.Factor, mark, skip)

	case OpScalePhaseVolume:
		var weeks []int
		for _, week := range snap.Weeks {
			if strings.EqualFold(week.PhaseName, op.Phase) {
				weeks = append(weeks, week.WeekNumber)
			}
		}
		r.scaleVolume(weeks, *op.Factor, mark, skip)
	}
}

func (r *resolution) scaleVolume(weeks []int, factor float64, mark func(*domain.PlannedWorkout, string), skip func(string, ...interface{})) {
	for _, week := range weeks {
		ws, ok := r.snapshot.Week(week)
		if !ok {
			continue
		}
		scaledAny := false
		for j := range ws.Workouts {
			w := &ws.Workouts[j]
			if w.WorkoutType == domain.WorkoutRest || w.DistanceMeters == nil {
				continue
			}
			scaled := math.Round(*w.DistanceMeters * factor)
			w.DistanceMeters = &scaled
			mark(w, fmt.Sprintf("distance scaled to %.0f m", scaled))
			scaledAny = true
		}
		if !scaledAny {
			skip("week %d has no distance workouts to scale", week)
		}
	}
}

// ValidateOperations checks the whole batch against the snapshot, returning
// every error found plus post-apply conflict warnings.
func (e *Engine) ValidateOperations(ops []Operation, snap domain.PlanSnapshot) ValidationResult {
	result := ValidationResult{Errors: []string{}, Warnings: []string{}}
	for i, op := range ops {
		result.Errors = append(result.Errors, validateParams(i, op, snap)...)
	}
	result.Valid = len(result.Errors) == 0
	if !result.Valid {
		return result
	}

	res := resolve(ops, snap)
	result.Warnings = append(result.Warnings, res.warnings...)
	result.Warnings = append(result.Warnings, hardDayConflicts(res.snapshot)...)
	return result
}

// PreviewOperations returns the per-operation affected-workout lists without
// writing anything. The batch must validate first.
func (e *Engine) PreviewOperations(ops []Operation, snap domain.PlanSnapshot) ([]PreviewItem, ValidationResult) {
	validation := e.ValidateOperations(ops, snap)
	if !validation.Valid {
		return nil, validation
	}
	return resolve(ops, snap).previews, validation
}

// ApplyOperations validates, resolves, and writes the batch. Validation is
// all-or-nothing: a batch with any invalid operation writes nothing. A
// request_fallback anywhere in the batch short-circuits before any write.
// Write failures mid-batch are reported honestly via OperationsApplied and
// WorkoutsModified rather than rolled back.
func (e *Engine) ApplyOperations(ctx context.Context, athleteID string, ops []Operation, snap domain.PlanSnapshot) ApplyResult {
	validation := e.ValidateOperations(ops, snap)
	if !validation.Valid {
		return ApplyResult{Errors: validation.Errors, Warnings: validation.Warnings}
	}

	res := resolve(ops, snap)
	if res.fallback != nil {
		return ApplyResult{
			FallbackRequested: true,
			FallbackReason:    res.fallback.Reason,
			Warnings:          validation.Warnings,
		}
	}

	written := make(map[string]struct{}, len(res.order))
	now := time.Now().UTC()

	for _, id := range res.order {
		workout := findWorkout(&res.snapshot, id)
		expected := res.touched[id]

		workout.Version = expected + 1
		workout.UpdatedAt = now
		if workout.CalendarSync == domain.CalendarSynced {
			workout.CalendarSync = domain.CalendarStale
		}

		if err := e.store.UpdateWorkout(ctx, athleteID, *workout, expected); err != nil {
			applied := countApplied(res.perOp, written)
			return ApplyResult{
				OperationsApplied: applied,
				WorkoutsModified:  len(written),
				Errors:            []string{fmt.Sprintf("write failed for workout %s: %v", id, err)},
				Warnings:          validation.Warnings,
			}
		}
		written[id] = struct{}{}
	}

	for _, op := range ops {
		observability.RecordOperationApplied(string(op.Type))
	}
	observability.RecordPlanModified(now)

	return ApplyResult{
		Success:           true,
		OperationsApplied: len(ops),
		WorkoutsModified:  len(written),
		Warnings:          validation.Warnings,
	}
}

// countApplied counts the operations whose every touched workout reached the
// store before the failure.
func countApplied(perOp [][]string, written map[string]struct{}) int {
	applied := 0
	for _, ids := range perOp {
		done := true
		for _, id := range ids {
			if _, ok := written[id]; !ok {
				done = false
				break
			}
		}
		if done && len(ids) > 0 {
			applied++
		}
	}
	return applied
}

func swapContent(a, b *domain.PlannedWorkout) {
	a.WorkoutType, b.WorkoutType = b.WorkoutType, a.WorkoutType
	a.Description, b.Description = b.Description, a.Description
	a.DistanceMeters, b.DistanceMeters = b.DistanceMeters, a.DistanceMeters
	a.DurationSeconds, b.DurationSeconds = b.DurationSeconds, a.DurationSeconds
	a.IntensityTarget, b.IntensityTarget = b.IntensityTarget, a.IntensityTarget
	a.Structured, b.Structured = b.Structured, a.Structured
}

func findByType(snap *domain.PlanSnapshot, week int, wtype domain.WorkoutType) *domain.PlannedWorkout {
	ws, ok := snap.Week(week)
	if !ok {
		return nil
	}
	for i := range ws.Workouts {
		if ws.Workouts[i].WorkoutType == wtype {
			return &ws.Workouts[i]
		}
	}
	return nil
}

func findWorkout(snap *domain.PlanSnapshot, id string) *domain.PlannedWorkout {
	for i := range snap.Weeks {
		for j := range snap.Weeks[i].Workouts {
			if snap.Weeks[i].Workouts[j].ID == id {
				return &snap.Weeks[i].Workouts[j]
			}
		}
	}
	return nil
}

func cloneSnapshot(snap domain.PlanSnapshot) domain.PlanSnapshot {
	out := snap
	out.Weeks = make([]domain.WeekSnapshot, len(snap.Weeks))
	for i, week := range snap.Weeks {
		cloned := week
		cloned.Workouts = make([]domain.PlannedWorkout, len(week.Workouts))
		for j, w := range week.Workouts {
			if w.Structured != nil {
				structured := *w.Structured
				structured.MainSet = append([]domain.IntervalRep(nil), w.Structured.MainSet...)
				w.Structured = &structured
			}
			cloned.Workouts[j] = w
		}
		out.Weeks[i] = cloned
	}
	return out
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
