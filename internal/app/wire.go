package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	s3blob "github.com/alanyoungcy/whalebridge/internal/blob/s3"
	"github.com/alanyoungcy/whalebridge/internal/cache/redis"
	"github.com/alanyoungcy/whalebridge/internal/config"
	"github.com/alanyoungcy/whalebridge/internal/domain"
	"github.com/alanyoungcy/whalebridge/internal/metrics"
	"github.com/alanyoungcy/whalebridge/internal/notify"
	"github.com/alanyoungcy/whalebridge/internal/store/memory"
	"github.com/alanyoungcy/whalebridge/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	MarketStore     domain.MarketStore
	ExposureStore   domain.ExposureStore
	DecisionStore   domain.DecisionStore
	MarketLinkStore domain.MarketLinkStore
	CursorStore     domain.CursorStore
	TraderStore     domain.TraderStore
	AuditStore      domain.AuditStore

	// Caches
	IndexCache  domain.IndexCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	DecisionBus domain.DecisionBus

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Observability and notifications
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Notifier *notify.Notifier
}

// needsPostgres returns true for modes that require a database connection.
// Monitor mode observes without persistence and runs on in-memory stores.
func needsPostgres(mode string) bool {
	switch mode {
	case "copy", "server", "archive", "full":
		return true
	default:
		return false
	}
}

// needsS3 returns true for modes that require object storage.
func needsS3(cfg *config.Config) bool {
	switch cfg.Mode {
	case "archive":
		return true
	case "copy", "full":
		return cfg.Pipeline.ArchiveEnabled
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL (only for modes that need persistence) ---
	if needsPostgres(cfg.Mode) {
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

		// Run migrations if enabled.
		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.MarketStore = postgres.NewMarketStore(pool)
		deps.ExposureStore = postgres.NewExposureStore(pool)
		deps.DecisionStore = postgres.NewDecisionStore(pool)
		deps.MarketLinkStore = postgres.NewMarketLinkStore(pool)
		deps.CursorStore = postgres.NewCursorStore(pool)
		deps.TraderStore = postgres.NewTraderStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
	} else {
		// In-memory stores keep the full decision path observable; the
		// ledger and cursor do not survive a restart.
		deps.MarketStore = memory.NewMarketStore()
		deps.ExposureStore = memory.NewExposureStore()
		deps.DecisionStore = memory.NewDecisionStore()
		deps.MarketLinkStore = memory.NewMarketLinkStore()
		deps.CursorStore = memory.NewCursorStore()
		deps.TraderStore = memory.NewTraderStore()
		deps.AuditStore = memory.NewAuditStore()
	}

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.IndexCache = redis.NewIndexCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.DecisionBus = redis.NewDecisionBus(redisClient)

	// --- S3 blob storage (only for modes that archive) ---
	if needsS3(cfg) {
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

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(
			deps.BlobWriter,
			deps.ExposureStore,
			deps.DecisionStore,
			deps.AuditStore,
		)
	}

	// --- Metrics ---
	reg := prometheus.NewRegistry()
	deps.Metrics = metrics.New(reg)
	deps.Gatherer = reg

	// --- Notifications ---
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
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
