// Package events defines payloads exported from the activity log.
package events

import "time"

// ActivityLogged mirrors one appended activity log entry.
type ActivityLogged struct {
	EntryID       string    `json:"entry_id"`
	MoverID       string    `json:"mover_id"`
	Type          string    `json:"type"`
	ItemsSnapshot []string  `json:"items_snapshot"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// EventTypeActivityLogged is the outbox event type for ActivityLogged.
const EventTypeActivityLogged = "mover.activity_logged"
