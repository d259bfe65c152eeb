//go:build integration

package outbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/transporter/internal/domain"
	"example.com/transporter/internal/events"
	"example.com/transporter/internal/persistence/postgres"
)

const exportTopic = "mover_activity"

func TestDispatcherPublishesMessages(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	moverID := seedActivity(t, ctx, pool, domain.ActivityEndMission)

	producer := &stubProducer{}
	registry := &stubRegistry{id: 42}
	dispatcher := NewDispatcher(pool, producer, registry, 10*time.Millisecond, 5)

	beforeDelivered := testutil.ToFloat64(deliveredCounter.WithLabelValues(events.EventTypeActivityLogged))
	beforeHistogram := histogramSampleCount(t)

	require.NoError(t, dispatcher.processBatch(ctx))

	require.Len(t, producer.writes, 1)
	require.Equal(t, exportTopic, producer.writes[0].topic)
	require.Len(t, producer.writes[0].messages, 1)
	require.Equal(t, []byte(moverID), producer.writes[0].messages[0].Key)

	require.InDelta(t, beforeDelivered+1, testutil.ToFloat64(deliveredCounter.WithLabelValues(events.EventTypeActivityLogged)), 0.0001)
	require.Greater(t, histogramSampleCount(t), beforeHistogram)

	var published int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NOT NULL`).Scan(&published))
	require.Equal(t, 1, published)

	require.NoError(t, dispatcher.processBatch(ctx))
	require.Len(t, producer.writes, 1, "published rows are not delivered twice")
}

func TestDispatcherRoutesMessagesToDLQOnFailure(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	seedActivity(t, ctx, pool, domain.ActivityStartMission)

	producer := &stubProducer{err: errors.New("kafka write failed")}
	dispatcher := NewDispatcher(pool, producer, &stubRegistry{id: 7}, 10*time.Millisecond, 5)

	beforeFailed := testutil.ToFloat64(failedCounter.WithLabelValues(events.EventTypeActivityLogged))
	beforeDLQ := testutil.ToFloat64(dlqCounter.WithLabelValues(exportTopic, events.EventTypeActivityLogged))

	require.NoError(t, dispatcher.processBatch(ctx))

	require.InDelta(t, beforeFailed+1, testutil.ToFloat64(failedCounter.WithLabelValues(events.EventTypeActivityLogged)), 0.0001)
	require.InDelta(t, beforeDLQ+1, testutil.ToFloat64(dlqCounter.WithLabelValues(exportTopic, events.EventTypeActivityLogged)), 0.0001)

	var dlqCount int
	var reason string
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*), MAX(reason) FROM outbox_dlq`).Scan(&dlqCount, &reason))
	require.Equal(t, 1, dlqCount)
	require.Contains(t, reason, "kafka write failed")

	var published int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NOT NULL`).Scan(&published))
	require.Equal(t, 1, published)
}

func TestDLQManagerReplaysThenQuarantines(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	seedActivity(t, ctx, pool, domain.ActivityLoading)

	registry := &stubRegistry{id: 3}
	failing := NewDispatcher(pool, &stubProducer{err: errors.New("broker unavailable")}, registry, time.Millisecond, 10)
	require.NoError(t, failing.processBatch(ctx))

	manager := NewDLQManager(pool, 1, time.Second, nil)
	requeued, err := manager.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, requeued)

	var pending int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NULL`).Scan(&pending))
	require.Equal(t, 1, pending, "replayed entry is back in the outbox")

	producer := &stubProducer{}
	require.NoError(t, NewDispatcher(pool, producer, registry, time.Millisecond, 10).processBatch(ctx))
	require.Len(t, producer.writes, 1)

	// An entry already at the retry limit is quarantined instead of replayed.
	_, err = pool.Exec(ctx, `INSERT INTO outbox_dlq (event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, schema_subject, partition_key, retry_count)
        VALUES (99, $1, $2, '{}'::jsonb, 'stuck', 'mover', 'm', 'mover_activity-value', 'm', 1)`,
		events.EventTypeActivityLogged, exportTopic)
	require.NoError(t, err)

	requeued, err = manager.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Zero(t, requeued)

	var quarantined int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq WHERE quarantined_at IS NOT NULL`).Scan(&quarantined))
	require.Equal(t, 1, quarantined)
}

// seedActivity appends one log entry through the repository so the outbox row
// is written exactly as in production.
func seedActivity(t *testing.T, ctx context.Context, pool *pgxpool.Pool, kind domain.ActivityType) string {
	t.Helper()

	repo := postgres.NewRepository(pool)
	now := time.Now().UTC()
	mover := domain.Mover{ID: uuid.NewString(), WeightLimit: 10, QuestState: domain.QuestStateResting, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, repo.CreateMover(ctx, mover))
	require.NoError(t, repo.Append(ctx, domain.ActivityLogEntry{
		ID:        uuid.NewString(),
		MoverID:   mover.ID,
		Type:      kind,
		CreatedAt: now,
	}))
	return mover.ID
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

	runMigrations(t, ctx, pool)
	return pool
}

func histogramSampleCount(t *testing.T) uint64 {
	t.Helper()

	metric := &dto.Metric{}
	require.NoError(t, batchDuration.Write(metric))
	hist := metric.GetHistogram()
	require.NotNil(t, hist)
	return hist.GetSampleCount()
}

func runMigrations(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()

	migrationsDir := resolvePath(t, "../../db/postgres/migrations")
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.up.sql"))
	require.NoError(t, err)
	require.NotEmpty(t, files, "expected at least one migration .up.sql file")

	sort.Strings(files)
	for _, file := range files {
		contents, readErr := os.ReadFile(file)
		require.NoErrorf(t, readErr, "read migration %s", file)
		_, execErr := pool.Exec(ctx, string(contents))
		require.NoErrorf(t, execErr, "execute migration %s", file)
	}
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
