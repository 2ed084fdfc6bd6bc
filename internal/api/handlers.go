// Package api exposes the HTTP surface of the training-plan backend.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/GaryRPCondon/training-platform-app-sub002/internal/auth"
	"github.com/GaryRPCondon/training-platform-app-sub002/internal/domain"
	"github.com/GaryRPCondon/training-platform-app-sub002/internal/match"
	"github.com/GaryRPCondon/training-platform-app-sub002/internal/normalize"
	"github.com/GaryRPCondon/training-platform-app-sub002/internal/persistence"
	"github.com/GaryRPCondon/training-platform-app-sub002/internal/plan"
	syncpkg "github.com/GaryRPCondon/training-platform-app-sub002/internal/sync"
)

// ActivityStore is the activity persistence surface the handlers need.
type ActivityStore interface {
	Get(ctx context.Context, athleteID, activityID string) (*domain.Activity, error)
	Create(ctx context.Context, activity domain.Activity) error
	ListByAthlete(ctx context.Context, athleteID string, cursor *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error)
	PendingMerges(ctx context.Context, athleteID string) ([]domain.Activity, error)
	ApproveMerge(ctx context.Context, athleteID, activityID string) (bool, error)
	RejectMerge(ctx context.Context, athleteID, activityID string) (bool, error)
}

// PlanStore reads plans and assembles snapshots for the plan endpoints.
type PlanStore interface {
	ListPlans(ctx context.Context, athleteID string) ([]domain.TrainingPlan, error)
	GetPlan(ctx context.Context, athleteID, planID string) (*domain.TrainingPlan, error)
	LoadSnapshot(ctx context.Context, athleteID, planID string) (domain.PlanSnapshot, error)
}

// SyncRunner triggers a bridge pull plus ingest pass for one athlete.
type SyncRunner interface {
	SyncFromBridges(ctx context.Context, athleteID string, since time.Time) (syncpkg.Report, error)
}

// Linker manages the activity/workout relationship, including the batch
// matching pass.
type Linker interface {
	MatchActivitiesToWorkouts(ctx context.Context, athleteID string, start, end time.Time) ([]match.Link, error)
	ManualLink(ctx context.Context, athleteID, activityID, workoutID string) (match.Link, error)
	Unlink(ctx context.Context, athleteID, workoutID string) error
}

// LockStatusStore reports whether a sync run currently holds the athlete's
// lock.
type LockStatusStore interface {
	Status(ctx context.Context, athleteID string) (bool, time.Time, error)
}

// Refiner drives chat-driven plan modification.
type Refiner interface {
	Refine(ctx context.Context, athleteID, planID, request string) (plan.RefineOutcome, error)
	Apply(ctx context.Context, athleteID, planID string, ops []plan.Operation) (plan.ApplyResult, error)
}

// Handler coordinates HTTP requests with the domain services.
type Handler struct {
	activities ActivityStore
	plans      PlanStore
	engine     *plan.Engine
	refiner    Refiner
	linker     Linker
	syncer     SyncRunner
	locks      LockStatusStore
}

// NewHandler builds a Handler.
func NewHandler(activities ActivityStore, plans PlanStore, engine *plan.Engine, refiner Refiner, linker Linker, syncer SyncRunner, locks LockStatusStore) *Handler {
	return &Handler{
		activities: activities,
		plans:      plans,
		engine:     engine,
		refiner:    refiner,
		linker:     linker,
		syncer:     syncer,
		locks:      locks,
	}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/activities", h.activityCollection)
	mux.HandleFunc("/v1/activities/", h.activityByID)
	mux.HandleFunc("/v1/sync", h.runSync)
	mux.HandleFunc("/v1/sync/status", h.syncStatus)
	mux.HandleFunc("/v1/matches/run", h.runMatching)
	mux.HandleFunc("/v1/merges/pending", h.pendingMerges)
	mux.HandleFunc("/v1/merges/", h.mergeDecision)
	mux.HandleFunc("/v1/plans", h.listPlans)
	mux.HandleFunc("/v1/plans/", h.planByID)
	mux.HandleFunc("/v1/workouts/", h.workoutLink)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) activityCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listActivities(w, r)
	case http.MethodPost:
		h.createActivity(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeActivitiesRead, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			if parsed > 100 {
				parsed = 100
			}
			limit = parsed
		}
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	activities, next, err := h.activities.ListByAthlete(r.Context(), claims.AthleteID, cursor, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]ActivityView, 0, len(activities))
	for _, activity := range activities {
		items = append(items, toActivityView(activity))
	}
	writeJSON(w, http.StatusOK, ListActivitiesResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	})
}

func (h *Handler) createActivity(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireScope(w, r, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	var req CreateActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	now := time.Now().UTC()
	activity := domain.Activity{
		ID:              uuid.NewString(),
		AthleteID:       claims.AthleteID,
		Source:          domain.SourceManual,
		StartTime:       req.StartTime.UTC(),
		ActivityType:    string(normalize.ActivityType(req.ActivityType, normalize.Metadata{Source: domain.SourceManual})),
		DistanceMeters:  req.DistanceMeters,
		DurationSeconds: req.DurationSeconds,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := h.activities.Create(r.Context(), activity); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, toActivityView(activity))
}

func (h *Handler) activityByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/activities/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing activity id")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := requireScope(w, r, auth.ScopeActivitiesRead, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	activity, err := h.activities.Get(r.Context(), claims.AthleteID, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	if activity == nil {
		writeError(w, http.StatusNotFound, "not_found", "activity not found")
		return
	}
	writeJSON(w, http.StatusOK, toActivityView(*activity))
}

func (h *Handler) runSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeSyncRun)
	if !ok {
		return
	}

	var req SyncRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
			return
		}
	}
	since := req.Since
	if since.IsZero() {
		since = time.Now().UTC().AddDate(0, 0, -7)
	}

	report, err := h.syncer.SyncFromBridges(r.Context(), claims.AthleteID, since)
	if err != nil {
		if errors.Is(err, syncpkg.ErrSyncInProgress) {
			writeError(w, http.StatusConflict, "sync_in_progress", "a sync run is already in progress for this athlete")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) syncStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeSyncRun, auth.ScopeActivitiesRead)
	if !ok {
		return
	}

	held, acquiredAt, err := h.locks.Status(r.Context(), claims.AthleteID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	resp := SyncStatusResponse{InProgress: held}
	if held {
		resp.StartedAt = &acquiredAt
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) runMatching(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	var req MatchRunRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
			return
		}
	}
	start, end := req.Start, req.End
	if start.IsZero() {
		start = time.Now().UTC().AddDate(0, 0, -7)
	}
	if end.IsZero() {
		end = time.Now().UTC().AddDate(0, 0, 1)
	}
	if end.Before(start) {
		writeError(w, http.StatusBadRequest, "validation_failed", "end must not precede start")
		return
	}

	links, err := h.linker.MatchActivitiesToWorkouts(r.Context(), claims.AthleteID, start, end)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	items := make([]LinkResponse, 0, len(links))
	for _, link := range links {
		items = append(items, LinkResponse{
			WorkoutID:  link.WorkoutID,
			ActivityID: link.ActivityID,
			Confidence: link.Confidence,
			Method:     string(link.Method),
			Completion: string(link.Completion),
		})
	}
	writeJSON(w, http.StatusOK, MatchRunResponse{Links: items})
}

func (h *Handler) pendingMerges(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeActivitiesRead, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	pending, err := h.activities.PendingMerges(r.Context(), claims.AthleteID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	items := make([]ActivityView, 0, len(pending))
	for _, activity := range pending {
		items = append(items, toActivityView(activity))
	}
	writeJSON(w, http.StatusOK, PendingMergesResponse{Items: items})
}

func (h *Handler) mergeDecision(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/merges/")
	id, action, found := strings.Cut(rest, "/")
	if !found || id == "" || (action != "approve" && action != "reject") {
		writeError(w, http.StatusNotFound, "not_found", "unknown merge action")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	var applied bool
	var err error
	if action == "approve" {
		applied, err = h.activities.ApproveMerge(r.Context(), claims.AthleteID, id)
	} else {
		applied, err = h.activities.RejectMerge(r.Context(), claims.AthleteID, id)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	// Re-deciding an already resolved merge is a no-op, not an error.
	writeJSON(w, http.StatusOK, MergeDecisionResponse{ActivityID: id, Action: action, Applied: applied})
}

func (h *Handler) listPlans(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopePlansRead, auth.ScopePlansWrite)
	if !ok {
		return
	}

	plans, err := h.plans.ListPlans(r.Context(), claims.AthleteID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	items := make([]PlanView, 0, len(plans))
	for _, p := range plans {
		items = append(items, toPlanView(p))
	}
	writeJSON(w, http.StatusOK, ListPlansResponse{Items: items})
}

func (h *Handler) planByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/plans/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing plan id")
		return
	}

	switch action {
	case "":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
			return
		}
		h.getPlanSnapshot(w, r, id)
	case "operations/validate":
		h.planOperations(w, r, id, opModeValidate)
	case "operations/preview":
		h.planOperations(w, r, id, opModePreview)
	case "operations/apply":
		h.planOperations(w, r, id, opModeApply)
	case "refine":
		h.refinePlan(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "not_found", "unknown plan action")
	}
}

func (h *Handler) getPlanSnapshot(w http.ResponseWriter, r *http.Request, planID string) {
	claims, ok := requireScope(w, r, auth.ScopePlansRead, auth.ScopePlansWrite)
	if !ok {
		return
	}

	snap, err := h.plans.LoadSnapshot(r.Context(), claims.AthleteID, planID)
	if err != nil {
		if errors.Is(err, persistence.ErrPlanNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "plan not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toSnapshotView(snap))
}

type opMode int

const (
	opModeValidate opMode = iota
	opModePreview
	opModeApply
)

func (h *Handler) planOperations(w http.ResponseWriter, r *http.Request, planID string, mode opMode) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopePlansWrite)
	if !ok {
		return
	}

	var req OperationsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if len(req.Operations) == 0 {
		writeError(w, http.StatusBadRequest, "validation_failed", "operations must not be empty")
		return
	}

	// Apply re-loads its own snapshot inside the refiner so the write path
	// always works from fresh versions.
	if mode == opModeApply {
		result, err := h.refiner.Apply(r.Context(), claims.AthleteID, planID, req.Operations)
		if err != nil {
			if errors.Is(err, persistence.ErrPlanNotFound) {
				writeError(w, http.StatusNotFound, "not_found", "plan not found")
				return
			}
			if errors.Is(err, plan.ErrStaleWrite) {
				writeError(w, http.StatusConflict, "stale_write", "plan changed concurrently, retry with a fresh snapshot")
				return
			}
			writeError(w, http.StatusInternalServerError, "server_error", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	snap, err := h.plans.LoadSnapshot(r.Context(), claims.AthleteID, planID)
	if err != nil {
		if errors.Is(err, persistence.ErrPlanNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "plan not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	if mode == opModeValidate {
		writeJSON(w, http.StatusOK, h.engine.ValidateOperations(req.Operations, snap))
		return
	}
	previews, validation := h.engine.PreviewOperations(req.Operations, snap)
	writeJSON(w, http.StatusOK, PreviewResponse{Validation: validation, Previews: previews})
}

func (h *Handler) refinePlan(w http.ResponseWriter, r *http.Request, planID string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopePlansWrite)
	if !ok {
		return
	}

	var req RefineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if strings.TrimSpace(req.Request) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "request text is required")
		return
	}

	outcome, err := h.refiner.Refine(r.Context(), claims.AthleteID, planID, req.Request)
	if err != nil {
		if errors.Is(err, persistence.ErrPlanNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "plan not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (h *Handler) workoutLink(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/workouts/")
	id, action, found := strings.Cut(rest, "/")
	if !found || id == "" || (action != "link" && action != "unlink") {
		writeError(w, http.StatusNotFound, "not_found", "unknown workout action")
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeActivitiesWrite)
	if !ok {
		return
	}

	if action == "unlink" {
		if err := h.linker.Unlink(r.Context(), claims.AthleteID, id); err != nil {
			if errors.Is(err, match.ErrWorkoutNotFound) {
				writeError(w, http.StatusNotFound, "not_found", "planned workout not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "server_error", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"workout_id": id, "status": "unlinked"})
		return
	}

	var req LinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if strings.TrimSpace(req.ActivityID) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "activity_id is required")
		return
	}

	link, err := h.linker.ManualLink(r.Context(), claims.AthleteID, req.ActivityID, id)
	if err != nil {
		if errors.Is(err, match.ErrActivityNotFound) || errors.Is(err, match.ErrWorkoutNotFound) {
			writeError(w, http.StatusNotFound, "not_found", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, LinkResponse{
		WorkoutID:  link.WorkoutID,
		ActivityID: link.ActivityID,
		Confidence: link.Confidence,
		Method:     string(link.Method),
		Completion: string(link.Completion),
	})
}

// requireScope extracts claims and checks that at least one of the given
// scopes is granted, writing the error response itself when not.
func requireScope(w http.ResponseWriter, r *http.Request, scopes ...string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	for _, scope := range scopes {
		if claims.HasScope(scope) {
			return claims, true
		}
	}
	writeError(w, http.StatusForbidden, "forbidden", "scope "+scopes[0]+" required")
	return nil, false
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
