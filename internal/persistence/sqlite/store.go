// Package sqlite persists items, movers and the activity log in a single
// SQLite file for deployments without PostgreSQL.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"example.com/transporter/internal/domain"
	"example.com/transporter/internal/persistence/sqlite/migrations"
)

// Store provides SQLite-backed persistence. It implements
// domain.ItemRepository, domain.MoverRepository and domain.ActivityLog.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a SQLite store at the provided path and applies migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time; version checks still guard logical races.
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := applyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// CreateItem implements domain.ItemRepository.
func (s *Store) CreateItem(ctx context.Context, item domain.Item) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO items (item_id, name, weight, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		item.ID, item.Name, item.Weight, toNanos(item.CreatedAt), toNanos(item.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

// ListItems implements domain.ItemRepository.
func (s *Store) ListItems(ctx context.Context) ([]domain.Item, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT item_id, name, weight, created_at, updated_at FROM items ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return scanItems(rows)
}

// GetItems implements domain.ItemRepository.
func (s *Store) GetItems(ctx context.Context, ids []string) ([]domain.Item, error) {
	if len(ids) == 0 {
		return []domain.Item{}, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT item_id, name, weight, created_at, updated_at FROM items WHERE item_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("get items: %w", err)
	}
	return scanItems(rows)
}

func scanItems(rows *sql.Rows) ([]domain.Item, error) {
	defer rows.Close()

	items := make([]domain.Item, 0)
	for rows.Next() {
		var (
			item               domain.Item
			createdAt, updated int64
		)
		if err := rows.Scan(&item.ID, &item.Name, &item.Weight, &createdAt, &updated); err != nil {
			return nil, err
		}
		item.CreatedAt = fromNanos(createdAt)
		item.UpdatedAt = fromNanos(updated)
		items = append(items, item)
	}
	return items, rows.Err()
}

// CreateMover implements domain.MoverRepository.
func (s *Store) CreateMover(ctx context.Context, mover domain.Mover) error {
	loaded, err := encodeIDs(mover.LoadedItems)
	if err != nil {
		return err
	}
	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO movers (mover_id, weight_limit, quest_state, loaded_items, version, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		mover.ID, mover.WeightLimit, string(mover.QuestState), loaded, mover.Version,
		toNanos(mover.CreatedAt), toNanos(mover.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert mover: %w", err)
	}
	return nil
}

// ListMovers implements domain.MoverRepository.
func (s *Store) ListMovers(ctx context.Context) ([]domain.Mover, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT mover_id, weight_limit, quest_state, loaded_items, version, created_at, updated_at
           FROM movers ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("list movers: %w", err)
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
	return movers, rows.Err()
}

// GetMover implements domain.MoverRepository.
func (s *Store) GetMover(ctx context.Context, id string) (*domain.Mover, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT mover_id, weight_limit, quest_state, loaded_items, version, created_at, updated_at
           FROM movers WHERE mover_id = ?`, id)
	mover, err := scanMover(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &mover, nil
}

// UpdateMover implements domain.MoverRepository with a compare-and-swap on version.
func (s *Store) UpdateMover(ctx context.Context, mover domain.Mover, expectedVersion int64) error {
	loaded, err := encodeIDs(mover.LoadedItems)
	if err != nil {
		return err
	}
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE movers SET quest_state = ?, loaded_items = ?, updated_at = ?, version = version + 1
          WHERE mover_id = ? AND version = ?`,
		string(mover.QuestState), loaded, toNanos(mover.UpdatedAt), mover.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update mover: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrVersionConflict
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMover(row rowScanner) (domain.Mover, error) {
	var (
		mover              domain.Mover
		state, loaded      string
		createdAt, updated int64
	)
	if err := row.Scan(&mover.ID, &mover.WeightLimit, &state, &loaded, &mover.Version, &createdAt, &updated); err != nil {
		return domain.Mover{}, err
	}
	ids, err := decodeIDs(loaded)
	if err != nil {
		return domain.Mover{}, err
	}
	mover.QuestState = domain.QuestState(state)
	mover.LoadedItems = ids
	mover.CreatedAt = fromNanos(createdAt)
	mover.UpdatedAt = fromNanos(updated)
	return mover, nil
}

// Append implements domain.ActivityLog.
func (s *Store) Append(ctx context.Context, entry domain.ActivityLogEntry) error {
	snapshot, err := encodeIDs(entry.ItemsSnapshot)
	if err != nil {
		return err
	}
	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO activity_log (entry_id, mover_id, activity_type, items_snapshot, created_at) VALUES (?, ?, ?, ?, ?)`,
		entry.ID, entry.MoverID, string(entry.Type), snapshot, toNanos(entry.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	return nil
}

// Leaderboard implements domain.ActivityLog.
func (s *Store) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT m.mover_id, m.weight_limit, COUNT(*) AS missions_completed
           FROM activity_log a
           JOIN movers m ON m.mover_id = a.mover_id
          WHERE a.activity_type = ?
          GROUP BY m.mover_id, m.weight_limit
          ORDER BY missions_completed DESC, m.mover_id ASC
          LIMIT ?`,
		string(domain.ActivityEndMission), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
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
	return results, rows.Err()
}

func toNanos(value time.Time) int64 {
	return value.UTC().UnixNano()
}

func fromNanos(value int64) time.Time {
	return time.Unix(0, value).UTC()
}

func encodeIDs(ids []string) (string, error) {
	if len(ids) == 0 {
		return "[]", nil
	}
	encoded, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("marshal ids: %w", err)
	}
	return string(encoded), nil
}

func decodeIDs(value string) ([]string, error) {
	ids := []string{}
	if strings.TrimSpace(value) == "" {
		return ids, nil
	}
	if err := json.Unmarshal([]byte(value), &ids); err != nil {
		return nil, fmt.Errorf("unmarshal ids: %w", err)
	}
	return ids, nil
}

// applyMigrations executes each embedded *.sql file once, in name order.
func applyMigrations(sqlDB *sql.DB, migrationFS fs.FS) error {
	if _, err := sqlDB.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
        name TEXT PRIMARY KEY,
        applied_at INTEGER NOT NULL
    )`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	entries, err := fs.ReadDir(migrationFS, ".")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	for _, name := range files {
		var applied int
		if err := sqlDB.QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE name = ?`, name).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if applied > 0 {
			continue
		}
		content, err := fs.ReadFile(migrationFS, name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		tx, err := sqlDB.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(string(content)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", name, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (name, applied_at) VALUES (?, ?)`, name, time.Now().UTC().UnixMilli()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", name, err)
		}
	}
	return nil
}
