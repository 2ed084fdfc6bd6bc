package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic         string
	SchemaSubject string
}

var eventCatalog = map[string]EventMetadata{
	"activity.ingested": {
		Topic:         "activity_events",
		SchemaSubject: "activity_events-value",
	},
	"activity.merged": {
		Topic:         "activity_merge_events",
		SchemaSubject: "activity_merge_events-value",
	},
	"workout.updated": {
		Topic:         "workout_events",
		SchemaSubject: "workout_events-value",
	},
	"plan.modified": {
		Topic:         "plan_events",
		SchemaSubject: "plan_events-value",
	},
}

// insertOutbox records an event row inside the caller's transaction so the
// write and its event commit or roll back together. Partition key is the
// athlete id for every event type: per-athlete ordering is what downstream
// consumers rely on. dedupeKey must be unique per logical event; recurring
// events such as workout.updated include the version in it.
func insertOutbox(ctx context.Context, tx pgx.Tx, athleteID, aggregateType, aggregateID, eventType, dedupeKey string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta := eventCatalog[eventType]
	if meta.Topic == "" {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	const stmt = `INSERT INTO outbox (athlete_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err = tx.Exec(ctx, stmt,
		athleteID,
		aggregateType,
		aggregateID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		athleteID,
		body,
		dedupeKey,
	)
	return err
}
