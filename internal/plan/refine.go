package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/GaryRPCondon/training-platform-app-sub002/internal/domain"
	"github.com/GaryRPCondon/training-platform-app-sub002/internal/llm"
	"github.com/GaryRPCondon/training-platform-app-sub002/internal/observability"
)

// RefineState tracks where a modification request sits in its lifecycle.
type RefineState string

const (
	StateReceived            RefineState = "received"
	StateContextLoaded       RefineState = "context_loaded"
	StateOperationsGenerated RefineState = "operations_generated"
	StateFallbackRequested   RefineState = "fallback_requested"
	StateValidated           RefineState = "validated"
	StateValidationFailed    RefineState = "validation_failed"
	StatePreviewed           RefineState = "previewed"
	StateApplied             RefineState = "applied"
)

// SnapshotLoader assembles the in-memory plan view a request works over.
type SnapshotLoader interface {
	LoadSnapshot(ctx context.Context, athleteID, planID string) (domain.PlanSnapshot, error)
}

// ModificationRecorder persists the aggregated record of a successful apply,
// including its downstream event. A nil recorder skips the step.
type ModificationRecorder interface {
	RecordPlanModified(ctx context.Context, athleteID, planID string, operations, workoutsModified int) error
}

// RefineOutcome is the result of one chat-driven modification request up to
// the preview step. Apply is a separate call: the user confirms first, and a
// failed apply must be re-submitted with a fresh snapshot since the old one
// may be stale.
type RefineOutcome struct {
	State      RefineState      `json:"state"`
	Operations []Operation      `json:"operations,omitempty"`
	Validation ValidationResult `json:"validation"`
	Previews   []PreviewItem    `json:"previews,omitempty"`
	// FallbackReason is set when the request is too complex for the
	// deterministic engine. Not an error: the caller switches strategy to
	// full regeneration.
	FallbackReason string `json:"fallback_reason,omitempty"`
}

// Refiner drives the request state machine:
// received -> context-loaded -> operations-generated | fallback-requested ->
// validated -> previewed. Apply happens on user confirmation.
type Refiner struct {
	loader   SnapshotLoader
	provider llm.Provider
	engine   *Engine
	recorder ModificationRecorder
	logger   *log.Logger
}

// NewRefiner constructs a Refiner. The recorder may be nil.
func NewRefiner(loader SnapshotLoader, provider llm.Provider, engine *Engine, recorder ModificationRecorder) *Refiner {
	return &Refiner{
		loader:   loader,
		provider: provider,
		engine:   engine,
		recorder: recorder,
		logger:   log.New(log.Writer(), "[refine] ", log.LstdFlags),
	}
}

const refineSystemPrompt = `You translate a runner's change request into edit operations on their training plan.
Respond with a single apply_operations tool call. If the request cannot be expressed
with the available operations, emit one request_fallback operation explaining why.`

var operationsToolSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "operations": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "type": {"type": "string", "enum": ["swap_days","move_workout_type","reschedule_workout","change_workout_type","change_workout_distance","scale_workout_distance","change_intensity","remove_workout_type","scale_week_volume","scale_phase_volume","request_fallback"]},
          "weeks": {},
          "day_a": {"type": "integer"},
          "day_b": {"type": "integer"},
          "to_day": {"type": "integer"},
          "workout": {"type": "string"},
          "workout_type": {"type": "string"},
          "replacement_type": {"type": "string"},
          "new_type": {"type": "string"},
          "new_intensity": {"type": "string"},
          "phase": {"type": "string"},
          "new_distance_meters": {"type": "number"},
          "factor": {"type": "number"},
          "new_date": {"type": "string", "format": "date-time"},
          "reason": {"type": "string"}
        },
        "required": ["type"]
      }
    }
  },
  "required": ["operations"]
}`)

// Refine runs the request through generation, validation and preview. It
// never writes; Apply is invoked separately after user confirmation.
func (r *Refiner) Refine(ctx context.Context, athleteID, planID, request string) (RefineOutcome, error) {
	snap, err := r.loader.LoadSnapshot(ctx, athleteID, planID)
	if err != nil {
		return RefineOutcome{State: StateReceived}, err
	}

	ops, err := r.generateOperations(ctx, snap, request)
	if err != nil {
		return RefineOutcome{State: StateContextLoaded}, err
	}

	for _, op := range ops {
		if op.Type == OpRequestFallback {
			observability.RecordFallback()
			r.logger.Printf("fallback requested for plan=%s: %s", planID, op.Reason)
			return RefineOutcome{
				State:          StateFallbackRequested,
				Operations:     ops,
				FallbackReason: op.Reason,
			}, nil
		}
	}

	validation := r.engine.ValidateOperations(ops, snap)
	if !validation.Valid {
		return RefineOutcome{
			State:      StateValidationFailed,
			Operations: ops,
			Validation: validation,
		}, nil
	}

	previews, _ := r.engine.PreviewOperations(ops, snap)
	return RefineOutcome{
		State:      StatePreviewed,
		Operations: ops,
		Validation: validation,
		Previews:   previews,
	}, nil
}

// Apply loads a fresh snapshot and applies the confirmed operations. The
// snapshot is reloaded rather than reused: the preview round-trip leaves
// time for the plan to move underneath the request.
func (r *Refiner) Apply(ctx context.Context, athleteID, planID string, ops []Operation) (ApplyResult, error) {
	snap, err := r.loader.LoadSnapshot(ctx, athleteID, planID)
	if err != nil {
		return ApplyResult{}, err
	}

	result := r.engine.ApplyOperations(ctx, athleteID, ops, snap)
	if result.Success && r.recorder != nil {
		if err := r.recorder.RecordPlanModified(ctx, athleteID, planID, result.OperationsApplied, result.WorkoutsModified); err != nil {
			// The workout writes already landed; the aggregated record is
			// best-effort on top of them.
			r.logger.Printf("record modification for plan=%s: %v", planID, err)
		}
	}
	return result, nil
}

func (r *Refiner) generateOperations(ctx context.Context, snap domain.PlanSnapshot, request string) ([]Operation, error) {
	prompt := buildRefinePrompt(snap, request)

	resp, err := r.provider.Generate(ctx, llm.Request{
		System: refineSystemPrompt,
		Prompt: prompt,
		Tools: []llm.Tool{{
			Name:        "apply_operations",
			Description: "Apply a batch of deterministic edits to the training plan",
			Parameters:  operationsToolSchema,
		}},
	})
	if err != nil {
		return nil, err
	}

	for _, call := range resp.ToolCalls {
		if call.Name != "apply_operations" {
			continue
		}
		var args struct {
			Operations []Operation `json:"operations"`
		}
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			return nil, fmt.Errorf("malformed apply_operations arguments: %w", err)
		}
		return args.Operations, nil
	}

	// No structured call: treat the whole request as beyond the engine.
	reason := strings.TrimSpace(resp.Text)
	if reason == "" {
		reason = "model produced no operations"
	}
	return []Operation{{Type: OpRequestFallback, Reason: reason}}, nil
}

func buildRefinePrompt(snap domain.PlanSnapshot, request string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Plan %q, %d weeks, status %s.\n", snap.Plan.Name, snap.TotalWeeks(), snap.Plan.Status)
	for _, week := range snap.Weeks {
		fmt.Fprintf(&b, "Week %d (%s, %.0f km):\n", week.WeekNumber, week.PhaseName, week.WeeklyVolumeKM)
		for _, w := range week.Workouts {
			fmt.Fprintf(&b, "  W%d:D%d %s", week.WeekNumber, w.Day, w.WorkoutType)
			if w.DistanceMeters != nil {
				fmt.Fprintf(&b, " %.1f km", *w.DistanceMeters/1000)
			}
			if w.IntensityTarget != "" {
				fmt.Fprintf(&b, " @ %s", w.IntensityTarget)
			}
			b.WriteString("\n")
		}
	}
	if len(snap.AthleteConstraints) > 0 {
		b.WriteString("Constraints: " + strings.Join(snap.AthleteConstraints, "; ") + "\n")
	}
	b.WriteString("\nRequest: " + request + "\n")
	return b.String()
}
