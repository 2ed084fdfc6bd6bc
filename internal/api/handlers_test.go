package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/GaryRPCondon/training-platform-app-sub002/internal/auth"
	"github.com/GaryRPCondon/training-platform-app-sub002/internal/domain"
	"github.com/GaryRPCondon/training-platform-app-sub002/internal/match"
	"github.com/GaryRPCondon/training-platform-app-sub002/internal/persistence"
	"github.com/GaryRPCondon/training-platform-app-sub002/internal/plan"
	syncpkg "github.com/GaryRPCondon/training-platform-app-sub002/internal/sync"
)

type stubActivities struct {
	activities   map[string]*domain.Activity
	listed       []domain.Activity
	created      []domain.Activity
	pending      []domain.Activity
	approveOK    bool
	rejectOK     bool
	lastDecision string
}

func (s *stubActivities) Get(_ context.Context, _, activityID string) (*domain.Activity, error) {
	return s.activities[activityID], nil
}

func (s *stubActivities) Create(_ context.Context, activity domain.Activity) error {
	s.created = append(s.created, activity)
	return nil
}

func (s *stubActivities) ListByAthlete(_ context.Context, _ string, _ *domain.Cursor, _ int) ([]domain.Activity, *domain.Cursor, error) {
	return s.listed, nil, nil
}

func (s *stubActivities) PendingMerges(_ context.Context, _ string) ([]domain.Activity, error) {
	return s.pending, nil
}

func (s *stubActivities) ApproveMerge(_ context.Context, _, activityID string) (bool, error) {
	s.lastDecision = "approve:" + activityID
	return s.approveOK, nil
}

func (s *stubActivities) RejectMerge(_ context.Context, _, activityID string) (bool, error) {
	s.lastDecision = "reject:" + activityID
	return s.rejectOK, nil
}

type stubPlans struct {
	plans    []domain.TrainingPlan
	snapshot domain.PlanSnapshot
	loadErr  error
}

func (s *stubPlans) ListPlans(_ context.Context, _ string) ([]domain.TrainingPlan, error) {
	return s.plans, nil
}

func (s *stubPlans) GetPlan(_ context.Context, _, planID string) (*domain.TrainingPlan, error) {
	for i := range s.plans {
		if s.plans[i].ID == planID {
			return &s.plans[i], nil
		}
	}
	return nil, persistence.ErrPlanNotFound
}

func (s *stubPlans) LoadSnapshot(_ context.Context, _, _ string) (domain.PlanSnapshot, error) {
	if s.loadErr != nil {
		return domain.PlanSnapshot{}, s.loadErr
	}
	return s.snapshot, nil
}

type stubSyncRunner struct {
	report syncpkg.Report
	err    error
	since  time.Time
}

func (s *stubSyncRunner) SyncFromBridges(_ context.Context, _ string, since time.Time) (syncpkg.Report, error) {
	s.since = since
	return s.report, s.err
}

type stubLinker struct {
	link      match.Link
	linkErr   error
	unlinkErr error
	unlinked  string
	batch     []match.Link
	batchSpan [2]time.Time
}

func (s *stubLinker) MatchActivitiesToWorkouts(_ context.Context, _ string, start, end time.Time) ([]match.Link, error) {
	s.batchSpan = [2]time.Time{start, end}
	return s.batch, nil
}

func (s *stubLinker) ManualLink(_ context.Context, _, activityID, workoutID string) (match.Link, error) {
	if s.linkErr != nil {
		return match.Link{}, s.linkErr
	}
	link := s.link
	link.ActivityID = activityID
	link.WorkoutID = workoutID
	return link, nil
}

func (s *stubLinker) Unlink(_ context.Context, _, workoutID string) error {
	s.unlinked = workoutID
	return s.unlinkErr
}

type stubRefiner struct {
	outcome  plan.RefineOutcome
	applied  plan.ApplyResult
	applyErr error
	request  string
	applyOps []plan.Operation
}

func (s *stubRefiner) Refine(_ context.Context, _, _, request string) (plan.RefineOutcome, error) {
	s.request = request
	return s.outcome, nil
}

func (s *stubRefiner) Apply(_ context.Context, _, _ string, ops []plan.Operation) (plan.ApplyResult, error) {
	s.applyOps = ops
	if s.applyErr != nil {
		return plan.ApplyResult{}, s.applyErr
	}
	return s.applied, nil
}

type stubLockStatus struct {
	held       bool
	acquiredAt time.Time
}

func (s *stubLockStatus) Status(_ context.Context, _ string) (bool, time.Time, error) {
	return s.held, s.acquiredAt, nil
}

type handlerFixture struct {
	handler    *Handler
	activities *stubActivities
	plans      *stubPlans
	syncer     *stubSyncRunner
	linker     *stubLinker
	refiner    *stubRefiner
	locks      *stubLockStatus
}

func newFixture() *handlerFixture {
	f := &handlerFixture{
		activities: &stubActivities{activities: map[string]*domain.Activity{}},
		plans:      &stubPlans{},
		syncer:     &stubSyncRunner{},
		linker:     &stubLinker{},
		refiner:    &stubRefiner{},
		locks:      &stubLockStatus{},
	}
	f.handler = NewHandler(f.activities, f.plans, plan.NewEngine(nil), f.refiner, f.linker, f.syncer, f.locks)
	return f
}

func (f *handlerFixture) serve(req *http.Request) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	f.handler.RegisterRoutes(mux)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func authedRequest(method, target string, body interface{}, scopes ...string) *http.Request {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)

	scopeSet := make(map[string]struct{}, len(scopes))
	for _, scope := range scopes {
		scopeSet[scope] = struct{}{}
	}
	claims := &auth.Claims{
		Subject:   "tester",
		AthleteID: "athlete-1",
		Scopes:    scopeSet,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	return req.WithContext(auth.WithClaims(req.Context(), claims))
}

func TestListActivitiesReturnsItems(t *testing.T) {
	f := newFixture()
	f.activities.listed = []domain.Activity{
		{ID: "a-1", AthleteID: "athlete-1", Source: domain.SourceGarmin, ActivityType: "easy_run"},
		{ID: "a-2", AthleteID: "athlete-1", Source: domain.SourceStrava, ActivityType: "long_run"},
	}

	rr := f.serve(authedRequest(http.MethodGet, "/v1/activities", nil, auth.ScopeActivitiesRead))

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp ListActivitiesResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 2)
	require.Equal(t, "a-1", resp.Items[0].ActivityID)
	require.Empty(t, resp.NextCursor)
}

func TestListActivitiesRequiresScope(t *testing.T) {
	f := newFixture()

	rr := f.serve(authedRequest(http.MethodGet, "/v1/activities", nil, auth.ScopePlansRead))

	require.Equal(t, http.StatusForbidden, rr.Code)
	var errResp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &errResp))
	require.Equal(t, "forbidden", errResp["type"])
}

func TestListActivitiesRejectsAnonymous(t *testing.T) {
	f := newFixture()

	rr := f.serve(httptest.NewRequest(http.MethodGet, "/v1/activities", nil))

	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestCreateManualActivityNormalizesType(t *testing.T) {
	f := newFixture()
	distance := 8000.0
	body := CreateActivityRequest{
		ActivityType:   "Running",
		StartTime:      time.Date(2026, time.March, 2, 7, 30, 0, 0, time.UTC),
		DistanceMeters: &distance,
	}

	rr := f.serve(authedRequest(http.MethodPost, "/v1/activities", body, auth.ScopeActivitiesWrite))

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	require.Len(t, f.activities.created, 1)
	created := f.activities.created[0]
	require.Equal(t, domain.SourceManual, created.Source)
	require.Equal(t, "easy_run", created.ActivityType)
	require.Equal(t, "athlete-1", created.AthleteID)
	require.NotEmpty(t, created.ID)
}

func TestCreateActivityValidatesBody(t *testing.T) {
	f := newFixture()

	rr := f.serve(authedRequest(http.MethodPost, "/v1/activities", CreateActivityRequest{ActivityType: "run"}, auth.ScopeActivitiesWrite))

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Empty(t, f.activities.created)
}

func TestGetActivityNotFound(t *testing.T) {
	f := newFixture()

	rr := f.serve(authedRequest(http.MethodGet, "/v1/activities/missing", nil, auth.ScopeActivitiesRead))

	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRunSyncReturnsReport(t *testing.T) {
	f := newFixture()
	f.syncer.report = syncpkg.Report{Received: 3, Ingested: 2, Duplicates: 1}

	rr := f.serve(authedRequest(http.MethodPost, "/v1/sync", SyncRequest{Since: time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)}, auth.ScopeSyncRun))

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var report syncpkg.Report
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	require.Equal(t, 2, report.Ingested)
	require.Equal(t, 2026, f.syncer.since.Year())
}

func TestRunSyncConflictWhileLocked(t *testing.T) {
	f := newFixture()
	f.syncer.err = syncpkg.ErrSyncInProgress

	rr := f.serve(authedRequest(http.MethodPost, "/v1/sync", nil, auth.ScopeSyncRun))

	require.Equal(t, http.StatusConflict, rr.Code)
	var errResp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &errResp))
	require.Equal(t, "sync_in_progress", errResp["type"])
}

func TestSyncStatusReportsHeldLock(t *testing.T) {
	f := newFixture()
	f.locks.held = true
	f.locks.acquiredAt = time.Date(2026, time.March, 2, 8, 0, 0, 0, time.UTC)

	rr := f.serve(authedRequest(http.MethodGet, "/v1/sync/status", nil, auth.ScopeSyncRun))

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp SyncStatusResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.True(t, resp.InProgress)
	require.NotNil(t, resp.StartedAt)
}

func TestSyncStatusIdle(t *testing.T) {
	f := newFixture()

	rr := f.serve(authedRequest(http.MethodGet, "/v1/sync/status", nil, auth.ScopeActivitiesRead))

	require.Equal(t, http.StatusOK, rr.Code)
	var resp SyncStatusResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.False(t, resp.InProgress)
	require.Nil(t, resp.StartedAt)
}

func TestRunMatchingReturnsLinks(t *testing.T) {
	f := newFixture()
	f.linker.batch = []match.Link{
		{ActivityID: "a-1", WorkoutID: "w-1", Confidence: 0.9, Method: domain.MatchMethodAutoTime, Completion: domain.CompletionCompleted},
	}
	body := MatchRunRequest{
		Start: time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, time.March, 8, 0, 0, 0, 0, time.UTC),
	}

	rr := f.serve(authedRequest(http.MethodPost, "/v1/matches/run", body, auth.ScopeActivitiesWrite))

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp MatchRunResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Links, 1)
	require.Equal(t, "w-1", resp.Links[0].WorkoutID)
	require.Equal(t, body.Start, f.linker.batchSpan[0])
}

func TestRunMatchingRejectsInvertedRange(t *testing.T) {
	f := newFixture()
	body := MatchRunRequest{
		Start: time.Date(2026, time.March, 8, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
	}

	rr := f.serve(authedRequest(http.MethodPost, "/v1/matches/run", body, auth.ScopeActivitiesWrite))

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestMergeApproveReportsApplied(t *testing.T) {
	f := newFixture()
	f.activities.approveOK = true

	rr := f.serve(authedRequest(http.MethodPost, "/v1/merges/a-1/approve", nil, auth.ScopeActivitiesWrite))

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp MergeDecisionResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.True(t, resp.Applied)
	require.Equal(t, "approve:a-1", f.activities.lastDecision)
}

func TestMergeRejectAlreadyResolvedIsOK(t *testing.T) {
	f := newFixture()
	f.activities.rejectOK = false

	rr := f.serve(authedRequest(http.MethodPost, "/v1/merges/a-1/reject", nil, auth.ScopeActivitiesWrite))

	require.Equal(t, http.StatusOK, rr.Code)
	var resp MergeDecisionResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.False(t, resp.Applied)
}

func TestGetPlanSnapshotNotFound(t *testing.T) {
	f := newFixture()
	f.plans.loadErr = persistence.ErrPlanNotFound

	rr := f.serve(authedRequest(http.MethodGet, "/v1/plans/missing", nil, auth.ScopePlansRead))

	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGetPlanSnapshotRendersWeeks(t *testing.T) {
	f := newFixture()
	f.plans.snapshot = domain.PlanSnapshot{
		Plan: domain.TrainingPlan{ID: "p-1", AthleteID: "athlete-1", Name: "Spring marathon", Status: domain.PlanActive},
		Weeks: []domain.WeekSnapshot{
			{WeekNumber: 1, PhaseName: "base", WeeklyVolumeKM: 40, Workouts: []domain.PlannedWorkout{
				{ID: "w-1", WeekNumber: 1, Day: 2, WorkoutType: domain.WorkoutTempo, Version: 1, Completion: domain.CompletionPending},
			}},
		},
	}

	rr := f.serve(authedRequest(http.MethodGet, "/v1/plans/p-1", nil, auth.ScopePlansRead))

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp SnapshotView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "p-1", resp.Plan.PlanID)
	require.Len(t, resp.Weeks, 1)
	require.Equal(t, "tempo", resp.Weeks[0].Workouts[0].WorkoutType)
}

func TestValidateOperationsReportsErrors(t *testing.T) {
	f := newFixture()
	f.plans.snapshot = domain.PlanSnapshot{
		Plan: domain.TrainingPlan{ID: "p-1"},
		Weeks: []domain.WeekSnapshot{
			{WeekNumber: 1, Workouts: []domain.PlannedWorkout{
				{ID: "w-1", WeekNumber: 1, Day: 2, WorkoutType: domain.WorkoutTempo},
			}},
		},
	}
	body := OperationsRequest{Operations: []plan.Operation{
		{Type: plan.OpChangeWorkoutType, Workout: plan.WorkoutRef{Week: 9, Day: 1}, NewType: "tempo"},
	}}

	rr := f.serve(authedRequest(http.MethodPost, "/v1/plans/p-1/operations/validate", body, auth.ScopePlansWrite))

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var result plan.ValidationResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	require.False(t, result.Valid)
	require.NotEmpty(t, result.Errors)
}

func TestApplyOperationsStaleWriteConflict(t *testing.T) {
	f := newFixture()
	f.refiner.applyErr = plan.ErrStaleWrite
	body := OperationsRequest{Operations: []plan.Operation{
		{Type: plan.OpChangeIntensity, Workout: plan.WorkoutRef{Week: 1, Day: 2}, NewIntensity: "easy"},
	}}

	rr := f.serve(authedRequest(http.MethodPost, "/v1/plans/p-1/operations/apply", body, auth.ScopePlansWrite))

	require.Equal(t, http.StatusConflict, rr.Code)
	var errResp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &errResp))
	require.Equal(t, "stale_write", errResp["type"])
}

func TestApplyOperationsDelegatesToRefiner(t *testing.T) {
	f := newFixture()
	f.refiner.applied = plan.ApplyResult{Success: true, OperationsApplied: 1, WorkoutsModified: 1}
	body := OperationsRequest{Operations: []plan.Operation{
		{Type: plan.OpChangeIntensity, Workout: plan.WorkoutRef{Week: 1, Day: 2}, NewIntensity: "easy"},
	}}

	rr := f.serve(authedRequest(http.MethodPost, "/v1/plans/p-1/operations/apply", body, auth.ScopePlansWrite))

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Len(t, f.refiner.applyOps, 1)
	var result plan.ApplyResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	require.True(t, result.Success)
}

func TestRefineRequiresText(t *testing.T) {
	f := newFixture()

	rr := f.serve(authedRequest(http.MethodPost, "/v1/plans/p-1/refine", RefineRequest{Request: "  "}, auth.ScopePlansWrite))

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRefineReturnsOutcome(t *testing.T) {
	f := newFixture()
	f.refiner.outcome = plan.RefineOutcome{State: plan.StatePreviewed}

	rr := f.serve(authedRequest(http.MethodPost, "/v1/plans/p-1/refine", RefineRequest{Request: "make week 2 easier"}, auth.ScopePlansWrite))

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, "make week 2 easier", f.refiner.request)
	var outcome plan.RefineOutcome
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &outcome))
	require.Equal(t, plan.StatePreviewed, outcome.State)
}

func TestManualLinkReturnsPairing(t *testing.T) {
	f := newFixture()
	f.linker.link = match.Link{Confidence: 1, Method: domain.MatchMethodManual, Completion: domain.CompletionCompleted}

	rr := f.serve(authedRequest(http.MethodPost, "/v1/workouts/w-1/link", LinkRequest{ActivityID: "a-1"}, auth.ScopeActivitiesWrite))

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp LinkResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "w-1", resp.WorkoutID)
	require.Equal(t, "a-1", resp.ActivityID)
	require.Equal(t, "manual", resp.Method)
}

func TestManualLinkUnknownActivity(t *testing.T) {
	f := newFixture()
	f.linker.linkErr = match.ErrActivityNotFound

	rr := f.serve(authedRequest(http.MethodPost, "/v1/workouts/w-1/link", LinkRequest{ActivityID: "missing"}, auth.ScopeActivitiesWrite))

	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestUnlinkWorkout(t *testing.T) {
	f := newFixture()

	rr := f.serve(authedRequest(http.MethodPost, "/v1/workouts/w-1/unlink", nil, auth.ScopeActivitiesWrite))

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Equal(t, "w-1", f.linker.unlinked)
}
