package outbox

const activityIngestedSchema = `{
  "type": "object",
  "title": "ActivityIngested",
  "properties": {
    "activity_id": {"type": "string"},
    "athlete_id": {"type": "string"},
    "source": {"type": "string"},
    "activity_type": {"type": "string"},
    "start_time": {"type": "string", "format": "date-time"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["activity_id", "athlete_id", "source", "activity_type", "start_time", "occurred_at"],
  "additionalProperties": false
}`

const activityMergedSchema = `{
  "type": "object",
  "title": "ActivityMerged",
  "properties": {
    "activity_id": {"type": "string"},
    "absorbed_id": {"type": "string"},
    "athlete_id": {"type": "string"},
    "confidence": {"type": "number"},
    "score": {"type": "number"},
    "automatic": {"type": "boolean"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["activity_id", "absorbed_id", "athlete_id", "confidence", "score", "automatic", "occurred_at"],
  "additionalProperties": false
}`

const workoutUpdatedSchema = `{
  "type": "object",
  "title": "WorkoutUpdated",
  "properties": {
    "workout_id": {"type": "string"},
    "plan_id": {"type": "string"},
    "athlete_id": {"type": "string"},
    "week_number": {"type": "integer"},
    "day": {"type": "integer"},
    "workout_type": {"type": "string"},
    "version": {"type": "integer"},
    "scheduled_date": {"type": "string", "format": "date-time"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["workout_id", "plan_id", "athlete_id", "week_number", "day", "workout_type", "version", "scheduled_date", "occurred_at"],
  "additionalProperties": false
}`

const planModifiedSchema = `{
  "type": "object",
  "title": "PlanModified",
  "properties": {
    "plan_id": {"type": "string"},
    "athlete_id": {"type": "string"},
    "operations_count": {"type": "integer"},
    "workouts_modified": {"type": "integer"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["plan_id", "athlete_id", "operations_count", "workouts_modified", "occurred_at"],
  "additionalProperties": false
}`
