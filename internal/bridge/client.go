// Package bridge talks to the platform bridge services that front the Garmin
// and Strava APIs.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/GaryRPCondon/training-platform-app-sub002/internal/domain"
	syncpkg "github.com/GaryRPCondon/training-platform-app-sub002/internal/sync"
)

// Client fetches recent activities from one bridge service.
type Client struct {
	baseURL    string
	source     domain.ActivitySource
	httpClient *http.Client
}

// NewClient constructs a bridge client with sane defaults.
func NewClient(baseURL string, source domain.ActivitySource) *Client {
	return &Client{
		baseURL: baseURL,
		source:  source,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// RecentActivities pulls activities recorded since the given time for an
// athlete. The bridge returns records in its own shape; they are mapped to
// the ingest format here so the orchestrator never sees bridge payloads.
func (c *Client) RecentActivities(ctx context.Context, athleteID string, since time.Time) ([]syncpkg.IncomingActivity, error) {
	endpoint := fmt.Sprintf("%s/v1/athletes/%s/activities?since=%s",
		c.baseURL, url.PathEscape(athleteID), url.QueryEscape(since.UTC().Format(time.RFC3339)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s bridge: %w", c.source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%s bridge error (%d): %s", c.source, resp.StatusCode, body)
	}

	var payload struct {
		Activities []struct {
			ID              string    `json:"id"`
			StartTime       time.Time `json:"start_time"`
			ActivityType    string    `json:"activity_type"`
			DistanceMeters  *float64  `json:"distance_meters"`
			DurationSeconds *int      `json:"duration_seconds"`
			IsRace          bool      `json:"is_race"`
			IsLongRun       bool      `json:"is_long_run"`
		} `json:"activities"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%s bridge: decode response: %w", c.source, err)
	}

	out := make([]syncpkg.IncomingActivity, 0, len(payload.Activities))
	for _, a := range payload.Activities {
		out = append(out, syncpkg.IncomingActivity{
			Source:          c.source,
			SourceID:        a.ID,
			StartTime:       a.StartTime,
			RawType:         a.ActivityType,
			DistanceMeters:  a.DistanceMeters,
			DurationSeconds: a.DurationSeconds,
			IsRace:          a.IsRace,
			IsLongRun:       a.IsLongRun,
		})
	}
	return out, nil
}
