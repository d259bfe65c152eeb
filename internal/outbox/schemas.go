package outbox

import "example.com/transporter/internal/events"

const activityLoggedSchema = `{
  "type": "object",
  "title": "MoverActivityLogged",
  "properties": {
    "entry_id": {"type": "string"},
    "mover_id": {"type": "string"},
    "type": {"type": "string", "enum": ["loading", "start-mission", "end-mission"]},
    "items_snapshot": {"type": "array", "items": {"type": "string"}},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["entry_id", "mover_id", "type", "items_snapshot", "occurred_at"],
  "additionalProperties": false
}`

// SchemaCatalogEntry maps event type to schema definition.
type SchemaCatalogEntry struct {
	Schema string
}

var schemaCatalog = map[string]SchemaCatalogEntry{
	events.EventTypeActivityLogged: {
		Schema: activityLoggedSchema,
	},
}
