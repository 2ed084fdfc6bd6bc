// Package domain defines the core types shared by the training-plan backend.
package domain

import "time"

// ActivitySource identifies where an activity record originated.
type ActivitySource string

const (
	SourceGarmin ActivitySource = "garmin"
	SourceStrava ActivitySource = "strava"
	SourceMerged ActivitySource = "merged"
	SourceManual ActivitySource = "manual"
)

// MergeStatus tracks whether an activity awaits manual merge review.
type MergeStatus string

const (
	MergeStatusNone          MergeStatus = ""
	MergeStatusPendingReview MergeStatus = "pending_review"
)

// MatchMethod records how an activity was linked to a planned workout.
type MatchMethod string

const (
	MatchMethodAutoTime     MatchMethod = "auto_time"
	MatchMethodAutoDistance MatchMethod = "auto_distance"
	MatchMethodManual       MatchMethod = "manual"
)

// Activity is a completed exercise record synced from a platform bridge or
// entered manually. DistanceMeters is nil (or zero) for non-distance work
// such as strength training; DurationSeconds is nil when the source omits it.
type Activity struct {
	ID        string
	AthleteID string
	Source    ActivitySource
	GarminID  *string
	StravaID  *string

	// StartTime may be date-only (midnight UTC) when source precision is low.
	StartTime       time.Time
	ActivityType    string
	DistanceMeters  *float64
	DurationSeconds *int

	PlannedWorkoutID *string
	MatchConfidence  *float64
	MatchMethod      MatchMethod

	MergeStatus     MergeStatus
	MergeConfidence *float64
	MergePeerID     *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Cursor marks a position in a time-ordered activity listing.
type Cursor struct {
	StartTime time.Time
	ID        string
}

// FullyMerged reports whether both external ids are present, meaning the
// record has already been reconciled across platforms and must never be
// offered as a merge candidate again.
func (a Activity) FullyMerged() bool {
	return a.GarminID != nil && *a.GarminID != "" && a.StravaID != nil && *a.StravaID != ""
}

// Distance returns the distance in meters, treating nil as zero.
func (a Activity) Distance() float64 {
	if a.DistanceMeters == nil {
		return 0
	}
	return *a.DistanceMeters
}

// Duration returns the duration in seconds, treating nil as zero.
func (a Activity) Duration() int {
	if a.DurationSeconds == nil {
		return 0
	}
	return *a.DurationSeconds
}

// DateOnly reports whether the start time carries no intra-day precision
// (hour, minute and second all zero), a common artifact of coarse imports.
func (a Activity) DateOnly() bool {
	t := a.StartTime.UTC()
	return t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0
}

// MergeActivities combines two records of the same session into one. The
// primary's identity is kept; each field prefers the more precise side, so a
// date-only start time never wins over a timestamped one and nil metrics are
// filled from the peer. Both external ids are carried so the pair can never
// be re-detected as a merge candidate.
func MergeActivities(primary, peer Activity) Activity {
	merged := primary
	merged.Source = SourceMerged

	if merged.GarminID == nil || *merged.GarminID == "" {
		merged.GarminID = peer.GarminID
	}
	if merged.StravaID == nil || *merged.StravaID == "" {
		merged.StravaID = peer.StravaID
	}
	if merged.DateOnly() && !peer.DateOnly() {
		merged.StartTime = peer.StartTime
	}
	if merged.DistanceMeters == nil {
		merged.DistanceMeters = peer.DistanceMeters
	}
	if merged.DurationSeconds == nil {
		merged.DurationSeconds = peer.DurationSeconds
	}
	if merged.PlannedWorkoutID == nil {
		merged.PlannedWorkoutID = peer.PlannedWorkoutID
		merged.MatchConfidence = peer.MatchConfidence
		merged.MatchMethod = peer.MatchMethod
	}

	merged.MergeStatus = MergeStatusNone
	merged.MergeConfidence = nil
	merged.MergePeerID = nil
	return merged
}
