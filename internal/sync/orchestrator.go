// Package sync ingests bridge activities, reconciles duplicates across
// platforms and links the survivors to planned workouts.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/GaryRPCondon/training-platform-app-sub002/internal/domain"
	"github.com/GaryRPCondon/training-platform-app-sub002/internal/match"
	"github.com/GaryRPCondon/training-platform-app-sub002/internal/normalize"
	"github.com/GaryRPCondon/training-platform-app-sub002/internal/observability"
	"github.com/GaryRPCondon/training-platform-app-sub002/internal/reconcile"
)

// ErrSyncInProgress is returned when another sync run holds the athlete's
// lock.
var ErrSyncInProgress = errors.New("sync already in progress for athlete")

// IncomingActivity is one bridge record before normalization.
type IncomingActivity struct {
	Source          domain.ActivitySource `json:"source"`
	SourceID        string                `json:"source_id"`
	StartTime       time.Time             `json:"start_time"`
	RawType         string                `json:"activity_type"`
	DistanceMeters  *float64              `json:"distance_meters,omitempty"`
	DurationSeconds *int                  `json:"duration_seconds,omitempty"`
	IsRace          bool                  `json:"is_race,omitempty"`
	IsLongRun       bool                  `json:"is_long_run,omitempty"`
}

// Report summarises one sync run.
type Report struct {
	Received      int `json:"received"`
	Ingested      int `json:"ingested"`
	Duplicates    int `json:"duplicates"`
	AutoMerged    int `json:"auto_merged"`
	PendingReview int `json:"pending_review"`
	Matched       int `json:"matched"`
}

// ActivityStore is the persistence surface the orchestrator drives.
type ActivityStore interface {
	FindBySourceID(ctx context.Context, athleteID string, source domain.ActivitySource, sourceID string) (*domain.Activity, error)
	Create(ctx context.Context, activity domain.Activity) error
	RecentForMergeScan(ctx context.Context, athleteID string, since time.Time) ([]domain.Activity, error)
	RecordMerge(ctx context.Context, merged domain.Activity, absorbedID *string, score float64, automatic bool) error
}

// LockStore guards one sync run per athlete. Acquire hands out a holder
// token; Release only drops the lock when the token still matches, so an
// overtaken runner cannot free the new holder's lock.
type LockStore interface {
	Acquire(ctx context.Context, athleteID string) (token string, acquired bool, err error)
	Release(ctx context.Context, athleteID, token string) error
}

// Orchestrator runs the full per-athlete sync pipeline under an advisory
// lock: dedupe, merge detection, persistence, then workout matching.
type Orchestrator struct {
	activities ActivityStore
	locks      LockStore
	matcher    *match.Matcher
	logger     *log.Logger
}

// NewOrchestrator constructs an Orchestrator.
func NewOrchestrator(activities ActivityStore, locks LockStore, matcher *match.Matcher) *Orchestrator {
	return &Orchestrator{
		activities: activities,
		locks:      locks,
		matcher:    matcher,
		logger:     log.New(log.Writer(), "[sync] ", log.LstdFlags),
	}
}

// SyncActivities ingests a batch of bridge records for one athlete. The
// advisory lock is held for the whole run; a concurrent run returns
// ErrSyncInProgress rather than waiting.
func (o *Orchestrator) SyncActivities(ctx context.Context, athleteID string, incoming []IncomingActivity) (Report, error) {
	token, acquired, err := o.locks.Acquire(ctx, athleteID)
	if err != nil {
		return Report{}, err
	}
	if !acquired {
		observability.RecordSyncLockContention()
		return Report{}, ErrSyncInProgress
	}
	defer func() {
		if err := o.locks.Release(context.WithoutCancel(ctx), athleteID, token); err != nil {
			o.logger.Printf("release lock for athlete %s: %v", athleteID, err)
		}
	}()

	report := Report{Received: len(incoming)}
	var earliest time.Time

	for _, record := range incoming {
		if earliest.IsZero() || record.StartTime.Before(earliest) {
			earliest = record.StartTime
		}
		if err := o.ingestOne(ctx, athleteID, record, &report); err != nil {
			return report, fmt.Errorf("ingest %s activity %s: %w", record.Source, record.SourceID, err)
		}
	}

	if o.matcher != nil && report.Ingested+report.AutoMerged > 0 {
		// Match over the batch's date range padded by a day on each side to
		// cover timezone skew between scheduled dates and start times.
		start := earliest.AddDate(0, 0, -1)
		end := time.Now().UTC().AddDate(0, 0, 1)
		links, err := o.matcher.MatchActivitiesToWorkouts(ctx, athleteID, start, end)
		if err != nil {
			return report, fmt.Errorf("match workouts: %w", err)
		}
		report.Matched = len(links)
	}

	return report, nil
}

func (o *Orchestrator) ingestOne(ctx context.Context, athleteID string, record IncomingActivity, report *Report) error {
	existing, err := o.activities.FindBySourceID(ctx, athleteID, record.Source, record.SourceID)
	if err != nil {
		return err
	}
	if existing != nil {
		report.Duplicates++
		return nil
	}

	activity := o.buildActivity(athleteID, record)

	since := time.Now().UTC().Add(-reconcile.RecentWindow)
	recent, err := o.activities.RecentForMergeScan(ctx, athleteID, since)
	if err != nil {
		return err
	}

	candidate := reconcile.FindMergeCandidate(activity, recent)
	if candidate == nil {
		observability.RecordMergeDecision(string(reconcile.ConfidenceLow))
		report.Ingested++
		return o.activities.Create(ctx, activity)
	}

	observability.RecordMergeDecision(string(candidate.Confidence))

	if reconcile.ShouldAutoMerge(candidate) {
		merged := domain.MergeActivities(candidate.Existing, activity)
		merged.UpdatedAt = time.Now().UTC()
		report.AutoMerged++
		o.logger.Printf("auto-merged %s activity %s into %s (score %.1f)",
			record.Source, record.SourceID, merged.ID, candidate.Score.Score)
		return o.activities.RecordMerge(ctx, merged, nil, candidate.Score.Score, true)
	}

	// Medium confidence: store the record but flag it for review against
	// its suspected peer.
	score := candidate.Score.Score
	activity.MergeStatus = domain.MergeStatusPendingReview
	activity.MergeConfidence = &score
	peerID := candidate.Existing.ID
	activity.MergePeerID = &peerID
	report.PendingReview++
	report.Ingested++
	return o.activities.Create(ctx, activity)
}

func (o *Orchestrator) buildActivity(athleteID string, record IncomingActivity) domain.Activity {
	now := time.Now().UTC()
	meta := normalize.Metadata{
		Source:    record.Source,
		IsRace:    record.IsRace,
		IsLongRun: record.IsLongRun,
	}

	activity := domain.Activity{
		ID:              uuid.NewString(),
		AthleteID:       athleteID,
		Source:          record.Source,
		StartTime:       record.StartTime,
		ActivityType:    string(normalize.ActivityType(record.RawType, meta)),
		DistanceMeters:  record.DistanceMeters,
		DurationSeconds: record.DurationSeconds,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	sourceID := record.SourceID
	switch record.Source {
	case domain.SourceGarmin:
		activity.GarminID = &sourceID
	case domain.SourceStrava:
		activity.StravaID = &sourceID
	}
	return activity
}
