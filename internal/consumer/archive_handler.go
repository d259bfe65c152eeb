package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/transporter/internal/events"
)

// ArchiveHandler copies exported activity log entries into activity_log_archive.
// Records are keyed by topic, partition and offset, so redelivery is a no-op.
type ArchiveHandler struct {
	pool *pgxpool.Pool
}

// NewArchiveHandler constructs a handler backed by the provided pool.
func NewArchiveHandler(pool *pgxpool.Pool) *ArchiveHandler {
	return &ArchiveHandler{pool: pool}
}

// Handle validates the payload and stores it.
func (h *ArchiveHandler) Handle(ctx context.Context, msg Message) error {
	if _, err := parseActivityLogged(msg); err != nil {
		return err
	}

	receivedAt := msg.Timestamp
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	_, err := h.pool.Exec(ctx,
		`INSERT INTO activity_log_archive (event_type, schema_id, schema_subject, topic, partition, record_offset, payload, received_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
         ON CONFLICT (topic, partition, record_offset) DO NOTHING`,
		msg.EventType,
		msg.SchemaID,
		msg.SchemaSubject,
		msg.Topic,
		msg.Partition,
		msg.Offset,
		msg.Payload,
		receivedAt,
	)
	return err
}

// parseActivityLogged decodes and checks an exported log entry.
func parseActivityLogged(msg Message) (events.ActivityLogged, error) {
	if msg.EventType != events.EventTypeActivityLogged {
		return events.ActivityLogged{}, fmt.Errorf("unsupported event_type %q", msg.EventType)
	}
	var entry events.ActivityLogged
	if err := json.Unmarshal(msg.Payload, &entry); err != nil {
		return events.ActivityLogged{}, fmt.Errorf("decode %s payload: %w", msg.EventType, err)
	}
	if entry.EntryID == "" || entry.MoverID == "" {
		return events.ActivityLogged{}, fmt.Errorf("%s payload missing entry_id or mover_id", msg.EventType)
	}
	return entry, nil
}
