package bridge

import (
	"context"
	"fmt"
	"time"

	syncpkg "github.com/GaryRPCondon/training-platform-app-sub002/internal/sync"
)

// Syncer pulls recent activities from every configured bridge and feeds them
// through the orchestrator as one batch, so Garmin and Strava records of the
// same session meet inside a single sync run.
type Syncer struct {
	clients      []*Client
	orchestrator *syncpkg.Orchestrator
}

// NewSyncer constructs a Syncer over the given bridge clients.
func NewSyncer(orchestrator *syncpkg.Orchestrator, clients ...*Client) *Syncer {
	return &Syncer{clients: clients, orchestrator: orchestrator}
}

// SyncFromBridges fetches activities since the given time from all bridges
// and runs one sync pass.
func (s *Syncer) SyncFromBridges(ctx context.Context, athleteID string, since time.Time) (syncpkg.Report, error) {
	var batch []syncpkg.IncomingActivity
	for _, client := range s.clients {
		activities, err := client.RecentActivities(ctx, athleteID, since)
		if err != nil {
			return syncpkg.Report{}, fmt.Errorf("fetch from %s: %w", client.source, err)
		}
		batch = append(batch, activities...)
	}
	return s.orchestrator.SyncActivities(ctx, athleteID, batch)
}
