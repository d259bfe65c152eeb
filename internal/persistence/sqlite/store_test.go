package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"example.com/transporter/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "transporter.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transporter.db")

	first, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ")
	require.Error(t, err)
}

func TestItemsRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	base := time.Date(2025, time.June, 1, 8, 0, 0, 123, time.UTC)
	older := domain.Item{ID: uuid.NewString(), Name: "older", Weight: 1.5, CreatedAt: base, UpdatedAt: base}
	newer := domain.Item{ID: uuid.NewString(), Name: "newer", Weight: 0, CreatedAt: base.Add(time.Minute), UpdatedAt: base.Add(time.Minute)}
	require.NoError(t, store.CreateItem(ctx, older))
	require.NoError(t, store.CreateItem(ctx, newer))

	items, err := store.ListItems(ctx)
	require.NoError(t, err)
	require.Equal(t, []domain.Item{newer, older}, items)

	found, err := store.GetItems(ctx, []string{older.ID, uuid.NewString()})
	require.NoError(t, err)
	require.Equal(t, []domain.Item{older}, found)

	none, err := store.GetItems(ctx, nil)
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestMoverCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	now := time.Now().UTC()
	mover := domain.Mover{
		ID:          uuid.NewString(),
		WeightLimit: 12,
		QuestState:  domain.QuestStateResting,
		LoadedItems: []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, store.CreateMover(ctx, mover))

	stored, err := store.GetMover(ctx, mover.ID)
	require.NoError(t, err)
	require.Equal(t, mover.ID, stored.ID)
	require.Equal(t, domain.QuestStateResting, stored.QuestState)
	require.Empty(t, stored.LoadedItems)
	require.True(t, mover.CreatedAt.Equal(stored.CreatedAt))

	next := *stored
	next.QuestState = domain.QuestStateLoading
	next.LoadedItems = []string{"a", "b"}
	next.UpdatedAt = now.Add(time.Second)
	require.NoError(t, store.UpdateMover(ctx, next, 0))
	require.ErrorIs(t, store.UpdateMover(ctx, next, 0), domain.ErrVersionConflict)

	stored, err = store.GetMover(ctx, mover.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), stored.Version)
	require.Equal(t, []string{"a", "b"}, stored.LoadedItems)
	require.Equal(t, domain.QuestStateLoading, stored.QuestState)

	missing, err := store.GetMover(ctx, uuid.NewString())
	require.NoError(t, err)
	require.Nil(t, missing)

	movers, err := store.ListMovers(ctx)
	require.NoError(t, err)
	require.Len(t, movers, 1)
}

func TestLeaderboardCountsEndMissions(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	now := time.Now().UTC()

	ids := []string{"00000000-0000-0000-0000-00000000000b", "00000000-0000-0000-0000-00000000000a", uuid.NewString()}
	for i, id := range ids {
		require.NoError(t, store.CreateMover(ctx, domain.Mover{
			ID:          id,
			WeightLimit: float64(10 * (i + 1)),
			QuestState:  domain.QuestStateResting,
			CreatedAt:   now,
			UpdatedAt:   now,
		}))
	}

	record := func(moverID string, kind domain.ActivityType) {
		require.NoError(t, store.Append(ctx, domain.ActivityLogEntry{
			ID:        uuid.NewString(),
			MoverID:   moverID,
			Type:      kind,
			CreatedAt: now,
		}))
	}
	record(ids[0], domain.ActivityEndMission)
	record(ids[1], domain.ActivityEndMission)
	record(ids[1], domain.ActivityEndMission)
	record(ids[0], domain.ActivityEndMission)
	record(ids[2], domain.ActivityStartMission)
	record(ids[2], domain.ActivityLoading)

	board, err := store.Leaderboard(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, []domain.LeaderboardEntry{
		{MoverID: ids[1], WeightLimit: 20, MissionsCompleted: 2},
		{MoverID: ids[0], WeightLimit: 10, MissionsCompleted: 2},
	}, board, "ties break on mover id ascending")

	board, err = store.Leaderboard(ctx, 1)
	require.NoError(t, err)
	require.Len(t, board, 1)
}

func TestServiceOverSQLite(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	svc := domain.NewService(store, store, store)

	orb, err := svc.CreateItem(ctx, domain.CreateItemInput{Name: "Orb", Weight: 5})
	require.NoError(t, err)
	mover, err := svc.CreateMover(ctx, domain.CreateMoverInput{WeightLimit: 10})
	require.NoError(t, err)

	loaded, err := svc.LoadItems(ctx, mover.ID, []string{orb.ID, orb.ID})
	require.NoError(t, err)
	require.Equal(t, []string{orb.ID}, loaded.LoadedItems)

	_, err = svc.StartMission(ctx, mover.ID)
	require.NoError(t, err)
	_, err = svc.EndMission(ctx, mover.ID)
	require.NoError(t, err)

	board, err := svc.Leaderboard(ctx, 0)
	require.NoError(t, err)
	require.Len(t, board, 1)
	require.Equal(t, int64(1), board[0].MissionsCompleted)
}
