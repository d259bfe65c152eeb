//go:build integration

package postgres

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/transporter/internal/domain"
)

func TestRepositoryMoverCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	repo := NewRepository(pool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	mover := domain.Mover{
		ID:          uuid.NewString(),
		WeightLimit: 10,
		QuestState:  domain.QuestStateResting,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, repo.CreateMover(ctx, mover))

	stored, err := repo.GetMover(ctx, mover.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Empty(t, stored.LoadedItems)
	require.Equal(t, int64(0), stored.Version)

	next := *stored
	next.QuestState = domain.QuestStateLoading
	next.LoadedItems = []string{uuid.NewString()}
	require.NoError(t, repo.UpdateMover(ctx, next, 0))

	err = repo.UpdateMover(ctx, next, 0)
	require.ErrorIs(t, err, domain.ErrVersionConflict, "stale version must be rejected")

	stored, err = repo.GetMover(ctx, mover.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), stored.Version)
	require.Equal(t, domain.QuestStateLoading, stored.QuestState)
	require.Equal(t, next.LoadedItems, stored.LoadedItems)

	missing, err := repo.GetMover(ctx, uuid.NewString())
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestRepositoryLeaderboardAndOutbox(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	repo := NewRepository(pool)
	now := time.Now().UTC()

	m1 := domain.Mover{ID: uuid.NewString(), WeightLimit: 5, QuestState: domain.QuestStateResting, CreatedAt: now, UpdatedAt: now}
	m2 := domain.Mover{ID: uuid.NewString(), WeightLimit: 7, QuestState: domain.QuestStateResting, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, repo.CreateMover(ctx, m1))
	require.NoError(t, repo.CreateMover(ctx, m2))

	appendEntry := func(moverID string, kind domain.ActivityType) {
		require.NoError(t, repo.Append(ctx, domain.ActivityLogEntry{
			ID:        uuid.NewString(),
			MoverID:   moverID,
			Type:      kind,
			CreatedAt: time.Now().UTC(),
		}))
	}
	appendEntry(m1.ID, domain.ActivityEndMission)
	appendEntry(m1.ID, domain.ActivityEndMission)
	appendEntry(m2.ID, domain.ActivityStartMission)
	appendEntry(m2.ID, domain.ActivityEndMission)

	board, err := repo.Leaderboard(ctx, 10)
	require.NoError(t, err)
	require.Len(t, board, 2)
	require.Equal(t, m1.ID, board[0].MoverID)
	require.Equal(t, int64(2), board[0].MissionsCompleted)
	require.Equal(t, float64(5), board[0].WeightLimit)
	require.Equal(t, m2.ID, board[1].MoverID)

	board, err = repo.Leaderboard(ctx, 1)
	require.NoError(t, err)
	require.Len(t, board, 1)

	var outboxCount int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE topic = 'mover_activity'`).Scan(&outboxCount))
	require.Equal(t, 4, outboxCount)
}

func TestRepositoryItems(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	repo := NewRepository(pool)

	base := time.Now().UTC()
	older := domain.Item{ID: uuid.NewString(), Name: "older", Weight: 1, CreatedAt: base, UpdatedAt: base}
	newer := domain.Item{ID: uuid.NewString(), Name: "newer", Weight: 2, CreatedAt: base.Add(time.Second), UpdatedAt: base.Add(time.Second)}
	require.NoError(t, repo.CreateItem(ctx, older))
	require.NoError(t, repo.CreateItem(ctx, newer))

	items, err := repo.ListItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, newer.ID, items[0].ID)

	found, err := repo.GetItems(ctx, []string{older.ID, uuid.NewString()})
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, "older", found[0].Name)
}

func setupPostgres(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	pg, err := postgrescontainer.Run(ctx, "postgres:16-alpine",
		postgrescontainer.WithDatabase("transporter"),
		postgrescontainer.WithUsername("transporter"),
		postgrescontainer.WithPassword("transporter"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	contents, err := os.ReadFile(resolvePath(t, "../../../db/postgres/migrations/0001_init.up.sql"))
	require.NoError(t, err)
	_, err = pool.Exec(ctx, string(contents))
	require.NoError(t, err)

	return pool
}

func resolvePath(t *testing.T, rel string) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), rel)
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
