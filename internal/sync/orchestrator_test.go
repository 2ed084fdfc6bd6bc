package sync

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/GaryRPCondon/training-platform-app-sub002/internal/domain"
)

type stubActivityStore struct {
	stored  []domain.Activity
	merges  []mergeCall
	recent  []domain.Activity
	created []domain.Activity
}

type mergeCall struct {
	merged     domain.Activity
	absorbedID *string
	score      float64
	automatic  bool
}

func (s *stubActivityStore) FindBySourceID(_ context.Context, _ string, source domain.ActivitySource, sourceID string) (*domain.Activity, error) {
	for i := range s.stored {
		a := s.stored[i]
		if source == domain.SourceGarmin && a.GarminID != nil && *a.GarminID == sourceID {
			return &a, nil
		}
		if source == domain.SourceStrava && a.StravaID != nil && *a.StravaID == sourceID {
			return &a, nil
		}
	}
	return nil, nil
}

func (s *stubActivityStore) Create(_ context.Context, activity domain.Activity) error {
	s.created = append(s.created, activity)
	s.stored = append(s.stored, activity)
	return nil
}

func (s *stubActivityStore) RecentForMergeScan(context.Context, string, time.Time) ([]domain.Activity, error) {
	return s.recent, nil
}

func (s *stubActivityStore) RecordMerge(_ context.Context, merged domain.Activity, absorbedID *string, score float64, automatic bool) error {
	s.merges = append(s.merges, mergeCall{merged: merged, absorbedID: absorbedID, score: score, automatic: automatic})
	return nil
}

type stubLockStore struct {
	held     map[string]string
	acquires int
	releases int
	tokens   int
}

func newStubLockStore() *stubLockStore {
	return &stubLockStore{held: make(map[string]string)}
}

func (s *stubLockStore) Acquire(_ context.Context, athleteID string) (string, bool, error) {
	s.acquires++
	if _, live := s.held[athleteID]; live {
		return "", false, nil
	}
	s.tokens++
	token := fmt.Sprintf("token-%d", s.tokens)
	s.held[athleteID] = token
	return token, true, nil
}

func (s *stubLockStore) Release(_ context.Context, athleteID, token string) error {
	s.releases++
	if s.held[athleteID] == token {
		delete(s.held, athleteID)
	}
	return nil
}

func ptr[T any](v T) *T { return &v }

func garminIncoming(id string, start time.Time, meters float64, seconds int) IncomingActivity {
	return IncomingActivity{
		Source:          domain.SourceGarmin,
		SourceID:        id,
		StartTime:       start,
		RawType:         "running",
		DistanceMeters:  ptr(meters),
		DurationSeconds: ptr(seconds),
	}
}

func TestSyncIngestsNewActivity(t *testing.T) {
	store := &stubActivityStore{}
	orch := NewOrchestrator(store, newStubLockStore(), nil)

	start := time.Date(2025, 6, 2, 7, 30, 0, 0, time.UTC)
	report, err := orch.SyncActivities(context.Background(), "athlete-1", []IncomingActivity{
		garminIncoming("g-1", start, 10000, 3000),
	})
	require.NoError(t, err)

	require.Equal(t, 1, report.Ingested)
	require.Zero(t, report.Duplicates)
	require.Len(t, store.created, 1)
	require.Equal(t, "easy_run", store.created[0].ActivityType)
	require.NotNil(t, store.created[0].GarminID)
	require.Equal(t, "g-1", *store.created[0].GarminID)
}

func TestSyncSkipsKnownSourceID(t *testing.T) {
	start := time.Date(2025, 6, 2, 7, 30, 0, 0, time.UTC)
	store := &stubActivityStore{stored: []domain.Activity{{
		ID:        "a-1",
		AthleteID: "athlete-1",
		Source:    domain.SourceGarmin,
		GarminID:  ptr("g-1"),
		StartTime: start,
	}}}
	orch := NewOrchestrator(store, newStubLockStore(), nil)

	report, err := orch.SyncActivities(context.Background(), "athlete-1", []IncomingActivity{
		garminIncoming("g-1", start, 10000, 3000),
	})
	require.NoError(t, err)

	require.Equal(t, 1, report.Duplicates)
	require.Zero(t, report.Ingested)
	require.Empty(t, store.created)
}

func TestSyncAutoMergesHighConfidencePair(t *testing.T) {
	start := time.Date(2025, 6, 2, 7, 30, 0, 0, time.UTC)
	existing := domain.Activity{
		ID:              "a-strava",
		AthleteID:       "athlete-1",
		Source:          domain.SourceStrava,
		StravaID:        ptr("s-1"),
		StartTime:       start.Add(time.Minute),
		ActivityType:    "easy_run",
		DistanceMeters:  ptr(10020.0),
		DurationSeconds: ptr(3010),
	}
	store := &stubActivityStore{recent: []domain.Activity{existing}}
	orch := NewOrchestrator(store, newStubLockStore(), nil)

	report, err := orch.SyncActivities(context.Background(), "athlete-1", []IncomingActivity{
		garminIncoming("g-1", start, 10000, 3000),
	})
	require.NoError(t, err)

	require.Equal(t, 1, report.AutoMerged)
	require.Zero(t, report.PendingReview)
	require.Empty(t, store.created)
	require.Len(t, store.merges, 1)

	merged := store.merges[0].merged
	require.Equal(t, "a-strava", merged.ID, "the stored row survives")
	require.Equal(t, domain.SourceMerged, merged.Source)
	require.True(t, merged.FullyMerged())
	require.True(t, store.merges[0].automatic)
	require.Nil(t, store.merges[0].absorbedID, "incoming side was never stored")
}

func TestSyncFlagsMediumConfidenceForReview(t *testing.T) {
	start := time.Date(2025, 6, 2, 7, 30, 0, 0, time.UTC)
	existing := domain.Activity{
		ID:              "a-strava",
		AthleteID:       "athlete-1",
		Source:          domain.SourceStrava,
		StravaID:        ptr("s-1"),
		StartTime:       start.Add(4 * time.Minute),
		ActivityType:    "easy_run",
		DistanceMeters:  ptr(10250.0),
		DurationSeconds: ptr(3150),
	}
	store := &stubActivityStore{recent: []domain.Activity{existing}}
	orch := NewOrchestrator(store, newStubLockStore(), nil)

	report, err := orch.SyncActivities(context.Background(), "athlete-1", []IncomingActivity{
		garminIncoming("g-1", start, 10000, 3000),
	})
	require.NoError(t, err)

	require.Zero(t, report.AutoMerged)
	require.Equal(t, 1, report.PendingReview)
	require.Len(t, store.created, 1)

	flagged := store.created[0]
	require.Equal(t, domain.MergeStatusPendingReview, flagged.MergeStatus)
	require.NotNil(t, flagged.MergePeerID)
	require.Equal(t, "a-strava", *flagged.MergePeerID)
	require.NotNil(t, flagged.MergeConfidence)
}

func TestSyncRefusedWhileLockHeld(t *testing.T) {
	locks := newStubLockStore()
	locks.held["athlete-1"] = "someone-else"
	orch := NewOrchestrator(&stubActivityStore{}, locks, nil)

	_, err := orch.SyncActivities(context.Background(), "athlete-1", nil)
	require.ErrorIs(t, err, ErrSyncInProgress)
	require.Zero(t, locks.releases, "lock we never took must not be released")
}

func TestSyncReleasesLockOnCompletion(t *testing.T) {
	locks := newStubLockStore()
	orch := NewOrchestrator(&stubActivityStore{}, locks, nil)

	_, err := orch.SyncActivities(context.Background(), "athlete-1", nil)
	require.NoError(t, err)
	require.Equal(t, 1, locks.releases)
	require.Empty(t, locks.held["athlete-1"])
}
