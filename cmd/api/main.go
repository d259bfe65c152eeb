package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/transporter/internal/api"
	"example.com/transporter/internal/config"
	"example.com/transporter/internal/domain"
	"example.com/transporter/internal/outbox"
	"example.com/transporter/internal/persistence/memory"
	"example.com/transporter/internal/persistence/postgres"
	"example.com/transporter/internal/persistence/sqlite"
	httptransport "example.com/transporter/internal/transport/http"
)

// store is the union of repositories every backend provides.
type store interface {
	domain.ItemRepository
	domain.MoverRepository
	domain.ActivityLog
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend, closeBackend, dispatcher, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("open store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer closeBackend()

	service := domain.NewService(backend, backend, backend,
		domain.WithLogger(logger),
		domain.WithMaxAttempts(cfg.TransitionMaxRetries),
		domain.WithLeaderboardLimits(cfg.LeaderboardDefaultLimit, cfg.LeaderboardMaxLimit),
	)

	handler := api.NewHandler(service, logger)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTPAddress,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, httptransport.RequestLogger(logger, httptransport.CORS(cfg.CORSOrigin, mux)))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("transporter listening", "address", cfg.HTTPAddress, "store", cfg.StoreDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}

	if dispatcher != nil {
		dispatcher.Wait()
	}
}

// openStore builds the configured backend. For postgres it also starts the
// outbox dispatcher when enabled.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store, func(), *outbox.Dispatcher, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		return memory.NewStore(), func() {}, nil, nil

	case config.StoreDriverSQLite:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		return db, closer(logger, "sqlite", db), nil, nil

	case config.StoreDriverPostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		repo := postgres.NewRepository(pool)
		if !cfg.OutboxEnabled {
			return repo, pool.Close, nil, nil
		}

		producer := outbox.NewKafkaProducer(cfg.KafkaBrokers, logger)
		registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
		dispatcher := outbox.NewDispatcher(pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize,
			outbox.WithLogger(logger.With("component", "outbox")),
		)
		go dispatcher.Start(ctx)

		closeAll := func() {
			closer(logger, "kafka producer", producer)()
			pool.Close()
		}
		return repo, closeAll, dispatcher, nil
	}
	return nil, nil, nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
}

func closer(logger *slog.Logger, name string, c io.Closer) func() {
	return func() {
		if err := c.Close(); err != nil {
			logger.Error("close "+name, "error", err)
		}
	}
}
