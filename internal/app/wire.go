package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/apexarb/arbengine/internal/blob/s3"
	"github.com/apexarb/arbengine/internal/cache/local"
	"github.com/apexarb/arbengine/internal/cache/redis"
	"github.com/apexarb/arbengine/internal/config"
	"github.com/apexarb/arbengine/internal/domain"
	"github.com/apexarb/arbengine/internal/monitor"
	"github.com/apexarb/arbengine/internal/notify"
	"github.com/apexarb/arbengine/internal/store/memory"
	"github.com/apexarb/arbengine/internal/store/postgres"
	"github.com/apexarb/arbengine/internal/store/sqlite"
	"github.com/apexarb/arbengine/internal/token"
)

// Dependencies bundles the infrastructure the application modes share. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Durable stores for nonces and the journal.
	NonceStore   domain.NonceStore
	JournalStore domain.JournalStore

	// Event fan-out plus the Redis-backed coordination primitives. Locker,
	// RateLimiter, and Receipts are nil when Redis is disabled; the bus
	// falls back to an in-process implementation.
	Bus         domain.EventBus
	Locker      domain.Locker
	RateLimiter domain.RateLimiter
	Receipts    *redis.ReceiptCache

	// Journal archival target. Nil unless S3 is enabled.
	BlobWriter domain.BlobWriter

	// Raw clients retained for health checks.
	Redis *redis.Client
	PG    *postgres.Client
	S3    *s3blob.Client

	// Observability. Metrics is nil when disabled.
	Metrics  *monitor.Metrics
	Notifier *notify.Notifier

	Tokens *token.Registry
}

// Wire constructs the concrete infrastructure implementations from the given
// configuration and returns them together with a cleanup function that
// releases resources in reverse construction order.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Tokens: token.Polygon()}

	// --- Durable store ---
	switch cfg.Store.Backend {
	case "memory":
		mem := memory.New()
		deps.NonceStore = mem
		deps.JournalStore = mem
	case "sqlite":
		st, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: sqlite: %w", err)
		}
		closers = append(closers, func() { _ = st.Close() })
		deps.NonceStore = st
		deps.JournalStore = st
	case "postgres":
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		deps.PG = pgClient
		deps.NonceStore = postgres.NewNonceStore(pgClient.Pool())
		deps.JournalStore = postgres.NewJournalStore(pgClient.Pool())
	default:
		cleanup()
		return nil, nil, fmt.Errorf("wire: unknown store backend %q", cfg.Store.Backend)
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Redis = redisClient
		deps.Bus = redis.NewBus(redisClient)
		deps.Locker = redis.NewLocker(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.Receipts = redis.NewReceiptCache(redisClient, 0)
	} else {
		deps.Bus = local.NewBus()
	}

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.S3 = s3Client
		deps.BlobWriter = s3Client
	}

	// --- Observability ---
	if cfg.Metrics.Enabled {
		deps.Metrics = monitor.New(deps.Tokens)
	}

	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, deps.Tokens, logger)

	return deps, cleanup, nil
}
