// Package postgres persists items, movers and the activity log in PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/transporter/internal/domain"
	"example.com/transporter/internal/events"
)

// Repository provides Postgres-backed persistence for items, movers, the
// activity log and its outbox.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const itemColumns = `item_id, name, weight, created_at, updated_at`

// CreateItem implements domain.ItemRepository.
func (r *Repository) CreateItem(ctx context.Context, item domain.Item) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO items (`+itemColumns+`) VALUES ($1,$2,$3,$4,$5)`,
		item.ID, item.Name, item.Weight, item.CreatedAt, item.UpdatedAt,
	)
	return err
}

// ListItems implements domain.ItemRepository.
func (r *Repository) ListItems(ctx context.Context) ([]domain.Item, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM items ORDER BY created_at DESC, item_id DESC`)
	if err != nil {
		return nil, err
	}
	return collectItems(rows)
}

// GetItems implements domain.ItemRepository.
func (r *Repository) GetItems(ctx context.Context, ids []string) ([]domain.Item, error) {
	if len(ids) == 0 {
		return []domain.Item{}, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM items WHERE item_id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	return collectItems(rows)
}

func collectItems(rows pgx.Rows) ([]domain.Item, error) {
	defer rows.Close()

	items := make([]domain.Item, 0)
	for rows.Next() {
		var item domain.Item
		if err := rows.Scan(&item.ID, &item.Name, &item.Weight, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const moverColumns = `mover_id, weight_limit, quest_state, loaded_items, version, created_at, updated_at`

// CreateMover implements domain.MoverRepository.
func (r *Repository) CreateMover(ctx context.Context, mover domain.Mover) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO movers (`+moverColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		mover.ID,
		mover.WeightLimit,
		string(mover.QuestState),
		nonNil(mover.LoadedItems),
		mover.Version,
		mover.CreatedAt,
		mover.UpdatedAt,
	)
	return err
}

// ListMovers implements domain.MoverRepository.
func (r *Repository) ListMovers(ctx context.Context) ([]domain.Mover, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+moverColumns+` FROM movers ORDER BY created_at DESC, mover_id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movers := make([]domain.Mover, 0)
	for rows.Next() {
		mover, err := scanMover(rows)
		if err != nil {
			return nil, err
		}
		movers = append(movers, mover)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movers, nil
}

// GetMover implements domain.MoverRepository.
func (r *Repository) GetMover(ctx context.Context, id string) (*domain.Mover, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+moverColumns+` FROM movers WHERE mover_id = $1`, id)
	mover, err := scanMover(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &mover, nil
}

// UpdateMover implements domain.MoverRepository with a compare-and-swap on version.
func (r *Repository) UpdateMover(ctx context.Context, mover domain.Mover, expectedVersion int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE movers
            SET quest_state = $3,
                loaded_items = $4,
                updated_at = $5,
                version = version + 1
          WHERE mover_id = $1 AND version = $2`,
		mover.ID,
		expectedVersion,
		string(mover.QuestState),
		nonNil(mover.LoadedItems),
		mover.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrVersionConflict
	}
	return nil
}

func scanMover(row pgx.Row) (domain.Mover, error) {
	var (
		mover domain.Mover
		state string
	)
	if err := row.Scan(&mover.ID, &mover.WeightLimit, &state, &mover.LoadedItems, &mover.Version, &mover.CreatedAt, &mover.UpdatedAt); err != nil {
		return domain.Mover{}, err
	}
	mover.QuestState = domain.QuestState(state)
	if mover.LoadedItems == nil {
		mover.LoadedItems = []string{}
	}
	return mover, nil
}

// Append implements domain.ActivityLog. The entry and its outbox event are
// written in a single transaction.
func (r *Repository) Append(ctx context.Context, entry domain.ActivityLogEntry) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	_, err = tx.Exec(ctx,
		`INSERT INTO activity_log (entry_id, mover_id, activity_type, items_snapshot, created_at)
         VALUES ($1,$2,$3,$4,$5)`,
		entry.ID,
		entry.MoverID,
		string(entry.Type),
		nonNil(entry.ItemsSnapshot),
		entry.CreatedAt,
	)
	if err != nil {
		return err
	}

	if err = r.insertOutbox(ctx, tx, entry); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *Repository) insertOutbox(ctx context.Context, tx pgx.Tx, entry domain.ActivityLogEntry) error {
	body, err := json.Marshal(events.ActivityLogged{
		EntryID:       entry.ID,
		MoverID:       entry.MoverID,
		Type:          string(entry.Type),
		ItemsSnapshot: nonNil(entry.ItemsSnapshot),
		OccurredAt:    entry.CreatedAt,
	})
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[events.EventTypeActivityLogged]
	if !ok {
		return fmt.Errorf("unknown event type: %s", events.EventTypeActivityLogged)
	}

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = tx.Exec(ctx, stmt,
		"mover",
		entry.MoverID,
		events.EventTypeActivityLogged,
		meta.Topic,
		meta.SchemaSubject,
		meta.PartitionKeyFn(entry),
		body,
		fmt.Sprintf("%s:%s", entry.ID, events.EventTypeActivityLogged),
	)
	return err
}

// Leaderboard implements domain.ActivityLog.
func (r *Repository) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	const query = `SELECT m.mover_id, m.weight_limit, COUNT(*) AS missions_completed
        FROM activity_log a
        JOIN movers m ON m.mover_id = a.mover_id
        WHERE a.activity_type = $1
        GROUP BY m.mover_id, m.weight_limit
        ORDER BY missions_completed DESC, m.mover_id ASC
        LIMIT $2`

	rows, err := r.pool.Query(ctx, query, string(domain.ActivityEndMission), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.LeaderboardEntry, 0, limit)
	for rows.Next() {
		var entry domain.LeaderboardEntry
		if err := rows.Scan(&entry.MoverID, &entry.WeightLimit, &entry.MissionsCompleted); err != nil {
			return nil, err
		}
		results = append(results, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic          string
	SchemaSubject  string
	PartitionKeyFn func(domain.ActivityLogEntry) string
}

var eventCatalog = map[string]EventMetadata{
	events.EventTypeActivityLogged: {
		Topic:         "mover_activity",
		SchemaSubject: "mover_activity-value",
		PartitionKeyFn: func(e domain.ActivityLogEntry) string {
			return e.MoverID
		},
	},
}
