package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	syncpkg "github.com/GaryRPCondon/training-platform-app-sub002/internal/sync"
)

// ActivitySyncer runs a sync pass for one athlete.
type ActivitySyncer interface {
	SyncActivities(ctx context.Context, athleteID string, incoming []syncpkg.IncomingActivity) (syncpkg.Report, error)
}

// IngestHandler feeds bridge activity batches into the sync orchestrator.
type IngestHandler struct {
	orchestrator ActivitySyncer
	logger       *log.Logger
}

// NewIngestHandler constructs an IngestHandler.
func NewIngestHandler(orchestrator ActivitySyncer) *IngestHandler {
	return &IngestHandler{
		orchestrator: orchestrator,
		logger:       log.New(log.Writer(), "[ingest] ", log.LstdFlags),
	}
}

// Handle decodes an activities.pushed batch and runs a sync pass for the
// athlete. A held lock is not a failure: the running sync will pick up the
// same records from the bridge on its own pull, so the message is dropped.
func (h *IngestHandler) Handle(ctx context.Context, msg Message) error {
	if msg.EventType != "activities.pushed" {
		// Other event types on the topic are not ours to process.
		return nil
	}

	var batch struct {
		AthleteID  string                     `json:"athlete_id"`
		Activities []syncpkg.IncomingActivity `json:"activities"`
	}
	if err := json.Unmarshal(msg.Payload, &batch); err != nil {
		return fmt.Errorf("decode activities.pushed payload: %w", err)
	}
	if batch.AthleteID == "" {
		return errors.New("activities.pushed payload missing athlete_id")
	}

	report, err := h.orchestrator.SyncActivities(ctx, batch.AthleteID, batch.Activities)
	if err != nil {
		if errors.Is(err, syncpkg.ErrSyncInProgress) {
			h.logger.Printf("sync already running for athlete %s, dropping push of %d activities", batch.AthleteID, len(batch.Activities))
			return nil
		}
		return err
	}

	h.logger.Printf("athlete %s: ingested=%d merged=%d review=%d matched=%d duplicates=%d",
		batch.AthleteID, report.Ingested, report.AutoMerged, report.PendingReview, report.Matched, report.Duplicates)
	return nil
}
