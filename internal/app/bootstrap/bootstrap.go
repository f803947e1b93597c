package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	proposalledger "govledger/contexts/governance/proposal-ledger"
	"govledger/contexts/governance/proposal-ledger/adapters/memory"
	postgresadapter "govledger/contexts/governance/proposal-ledger/adapters/postgres"
	"govledger/contexts/governance/proposal-ledger/adapters/rediscache"
	"govledger/contexts/governance/proposal-ledger/application/commands"
	"govledger/contexts/governance/proposal-ledger/application/workers"
	"govledger/contexts/governance/proposal-ledger/ports"
	"govledger/internal/platform/auth"
	"govledger/internal/platform/cache"
	"govledger/internal/platform/config"
	"govledger/internal/platform/db"
	"govledger/internal/platform/httpserver"
	"govledger/internal/platform/messaging"

	"github.com/redis/go-redis/v9"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

type APIApp struct {
	server       *httpserver.Server
	database     *db.Database
	redis        *redis.Client
	relay        *workers.OutboxRelay
	pollInterval time.Duration
	logger       *slog.Logger
}

type WorkerApp struct {
	database     *db.Database
	redis        *redis.Client
	outboxRelay  workers.OutboxRelay
	pollInterval time.Duration
	logger       *slog.Logger
}

// ledgerStorage is the persistence picked from config: the shared SQL
// database when a DSN is set, otherwise one in-process store.
type ledgerStorage struct {
	proposals   ports.ProposalRepository
	idempotency ports.IdempotencyStore
	relaySource ports.OutboxRepository
	clock       ports.Clock
	ids         ports.IDGenerator
	database    *db.Database
	inMemory    bool
}

func BuildAPI() (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := slog.Default().With("service", cfg.ServiceName, "process", "api")

	verifier, err := auth.NewVerifier(cfg.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("JWT_SECRET: %w", err)
	}

	storage, err := openStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	var redisClient *redis.Client
	var proposalCache ports.ProposalCache
	if cfg.RedisAddr != "" {
		redisClient, err = cache.Connect(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			_ = storage.database.Close()
			return nil, err
		}
		proposalCache = rediscache.New(redisClient, logger)
	}

	module := proposalledger.NewModule(proposalledger.Dependencies{
		Proposals:   storage.proposals,
		Idempotency: storage.idempotency,
		Cache:       proposalCache,
		CacheTTL:    cfg.ProposalCacheTTL,
		Clock:       storage.clock,
		IDGen:       storage.ids,
		Durations: commands.DurationPolicy{
			Enforce: cfg.EnforceProposalDuration,
			Min:     cfg.MinProposalDuration,
			Max:     cfg.MaxProposalDuration,
		},
		IdempotencyTTL: cfg.IdempotencyTTL,
		Logger:         logger,
	})

	app := &APIApp{
		server:       httpserver.New(module, verifier, logger, normalizeAddr(cfg.HTTPPort)),
		database:     storage.database,
		redis:        redisClient,
		pollInterval: cfg.OutboxPollInterval,
		logger:       logger,
	}

	// Nothing outside this process can drain an in-memory outbox.
	if storage.inMemory {
		publisher, err := newPublisher(cfg, redisClient, logger)
		if err != nil {
			_ = app.Close()
			return nil, err
		}
		relay := proposalledger.NewOutboxRelay(storage.relaySource, publisher, storage.clock, cfg.OutboxBatchSize, logger)
		app.relay = &relay
	}
	return app, nil
}

func BuildWorker() (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := slog.Default().With("service", cfg.ServiceName, "process", "worker")
	if strings.TrimSpace(cfg.DatabaseDSN) == "" {
		return nil, errors.New("DATABASE_DSN is required")
	}

	storage, err := openStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	var redisClient *redis.Client
	if cfg.EventBus == "redis" {
		redisClient, err = cache.Connect(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			_ = storage.database.Close()
			return nil, err
		}
	}
	publisher, err := newPublisher(cfg, redisClient, logger)
	if err != nil {
		_ = storage.database.Close()
		return nil, err
	}

	return &WorkerApp{
		database:     storage.database,
		redis:        redisClient,
		outboxRelay:  proposalledger.NewOutboxRelay(storage.relaySource, publisher, storage.clock, cfg.OutboxBatchSize, logger),
		pollInterval: cfg.OutboxPollInterval,
		logger:       logger,
	}, nil
}

func openStorage(cfg config.Config, logger *slog.Logger) (ledgerStorage, error) {
	if strings.TrimSpace(cfg.DatabaseDSN) == "" {
		logger.Warn("no database configured, using in-memory proposal store",
			"event", "bootstrap_memory_store",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
		store := memory.NewStore(nil)
		return ledgerStorage{
			proposals:   store,
			idempotency: store,
			relaySource: store,
			clock:       store,
			ids:         store,
			inMemory:    true,
		}, nil
	}

	database, err := db.Connect(cfg.DBDriver, cfg.DatabaseDSN)
	if err != nil {
		return ledgerStorage{}, err
	}
	repo := postgresadapter.NewRepository(database.DB, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := repo.Migrate(ctx); err != nil {
		_ = database.Close()
		return ledgerStorage{}, err
	}

	return ledgerStorage{
		proposals:   repo,
		idempotency: repo,
		relaySource: repo,
		clock:       postgresadapter.SystemClock{},
		ids:         postgresadapter.UUIDGenerator{},
		database:    database,
	}, nil
}

func newPublisher(cfg config.Config, client *redis.Client, logger *slog.Logger) (ports.EventPublisher, error) {
	switch cfg.EventBus {
	case "", "memory":
		return messaging.NewLocalBus(cfg.EventBusBuffer, logger), nil
	case "redis":
		if client == nil {
			return nil, errors.New("EVENT_BUS=redis requires REDIS_ADDR")
		}
		return messaging.NewRedisStream(client, "ledger.", cfg.EventStreamMaxLen, logger), nil
	default:
		return nil, fmt.Errorf("unsupported EVENT_BUS %q", cfg.EventBus)
	}
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests.
func (a *APIApp) Run(ctx context.Context) error {
	if a.logger != nil {
		a.logger.Info("api app started",
			"event", "bootstrap_api_started",
			"module", "internal/app/bootstrap",
			"layer", "platform",
			"in_process_relay", a.relay != nil,
		)
	}
	if a.relay != nil {
		go func() {
			_ = runRelay(ctx, *a.relay, a.pollInterval, a.logger)
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- a.server.Start()
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	}
}

func (a *APIApp) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.database != nil {
		errs = append(errs, a.database.Close())
	}
	return errors.Join(errs...)
}

func (w *WorkerApp) Run(ctx context.Context) error {
	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"poll_interval", w.pollInterval.String(),
	)
	return runRelay(ctx, w.outboxRelay, w.pollInterval, w.logger)
}

func (w *WorkerApp) Close() error {
	var errs []error
	if w.redis != nil {
		errs = append(errs, w.redis.Close())
	}
	if w.database != nil {
		errs = append(errs, w.database.Close())
	}
	return errors.Join(errs...)
}

// runRelay drains the outbox on every tick. A failed batch is retried on the
// next tick; only cancellation stops the loop.
func runRelay(ctx context.Context, relay workers.OutboxRelay, interval time.Duration, logger *slog.Logger) error {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := relay.RunOnce(ctx); err != nil && ctx.Err() == nil && logger != nil {
			logger.Warn("outbox relay batch failed",
				"event", "bootstrap_relay_batch_failed",
				"module", "internal/app/bootstrap",
				"layer", "platform",
				"error", err.Error(),
			)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
