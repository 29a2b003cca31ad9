package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	s3blob "github.com/alanyoungcy/arbengine/internal/blob/s3"
	"github.com/alanyoungcy/arbengine/internal/cache/redis"
	"github.com/alanyoungcy/arbengine/internal/config"
	"github.com/alanyoungcy/arbengine/internal/domain"
	"github.com/alanyoungcy/arbengine/internal/notify"
	"github.com/alanyoungcy/arbengine/internal/store"
	"github.com/alanyoungcy/arbengine/internal/store/postgres"
	"github.com/alanyoungcy/arbengine/internal/store/sqlite"
	"github.com/alanyoungcy/arbengine/internal/venue"
)

// primaryStore is what both storage backends provide.
type primaryStore interface {
	domain.Recorder
	domain.TradeLister
	domain.AuditLogger
	s3blob.ArchiveSource
	s3blob.QuotePruner
}

// Dependencies bundles every collaborator the engine, server and archiver
// need. Optional pieces are nil when their backend is not configured.
type Dependencies struct {
	// Storage
	Store    primaryStore
	Recorder *store.AsyncRecorder

	// Caches
	QuoteCache  domain.QuoteCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	Archiver domain.Archiver

	// Venues
	Venues *venue.Registry

	// Notifications
	Notifier *notify.Notifier
}

// closeTimeout bounds draining queues on shutdown.
const closeTimeout = 10 * time.Second

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Primary store ---
	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %w", err)
	}
	if st != nil {
		closers = append(closers, closeStore)
		deps.Store = st
		rec := store.NewAsyncRecorder(st, cfg.Engine.RecorderQueueSize, logger)
		deps.Recorder = rec
		closers = append(closers, func() {
			ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			defer cancel()
			if err := rec.Close(ctx); err != nil {
				logger.Warn("recorder did not drain", slog.String("error", err.Error()))
			}
		})
	}

	// --- Redis ---
	if cfg.Redis.Addr != "" {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			Prefix:     cfg.Redis.Prefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.QuoteCache = redis.NewQuoteCache(redisClient, cfg.Redis.QuoteTTL.Duration)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
	}

	// --- S3 archive ---
	if cfg.Archive.Enabled {
		if deps.Store == nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: archive requires a storage backend")
		}
		archiver, err := newArchiver(ctx, cfg, deps.Store, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: %w", err)
		}
		deps.Archiver = archiver
	}

	// --- Venues ---
	venues, err := buildVenues(cfg, deps.RateLimiter, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: venues: %w", err)
	}
	reg, err := venue.NewRegistry(venues...)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: venues: %w", err)
	}
	deps.Venues = reg

	// --- Notifications ---
	if cfg.Notify.Enabled {
		n := newNotifier(cfg.Notify, logger)
		deps.Notifier = n
		closers = append(closers, func() {
			ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
			defer cancel()
			_ = n.Close(ctx)
		})
	}

	return deps, cleanup, nil
}

// openStore opens the configured backend. Backend "none" returns a nil store.
func openStore(ctx context.Context, cfg *config.Config) (primaryStore, func(), error) {
	switch strings.ToLower(cfg.Storage.Backend) {
	case "sqlite":
		s, err := sqlite.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil

	case "postgres":
		pgClient, err := postgres.New(ctx, postgresConfig(cfg.Postgres))
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		if cfg.Postgres.RunMigrations {
			if _, err := pgClient.RunMigrations(ctx); err != nil {
				pgClient.Close()
				return nil, nil, fmt.Errorf("postgres migrations: %w", err)
			}
		}
		return postgres.NewRecorder(pgClient), pgClient.Close, nil

	default:
		return nil, nil, nil
	}
}

func postgresConfig(pg config.PostgresConfig) postgres.ClientConfig {
	return postgres.ClientConfig{
		DSN:        pg.DSN,
		Host:       pg.Host,
		Port:       pg.Port,
		Database:   pg.Database,
		User:       pg.User,
		Password:   pg.Password,
		SSLMode:    pg.SSLMode,
		MaxConns:   pg.PoolMaxConns,
		MinConns:   pg.PoolMinConns,
		PreferIPv4: pg.PreferIPv4,
	}
}

func newS3Client(ctx context.Context, cfg config.S3Config) (*s3blob.Client, error) {
	c, err := s3blob.New(ctx, s3blob.ClientConfig{
		Endpoint:       cfg.Endpoint,
		Region:         cfg.Region,
		Bucket:         cfg.Bucket,
		AccessKey:      cfg.AccessKey,
		SecretKey:      cfg.SecretKey,
		UseSSL:         cfg.UseSSL,
		ForcePathStyle: cfg.ForcePathStyle,
		Prefix:         cfg.Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("s3: %w", err)
	}
	return c, nil
}

func newArchiver(ctx context.Context, cfg *config.Config, st primaryStore, logger *slog.Logger) (*s3blob.Archiver, error) {
	s3Client, err := newS3Client(ctx, cfg.S3)
	if err != nil {
		return nil, err
	}
	// An unreachable bucket is not fatal; the next scheduled run retries.
	if err := s3Client.Health(ctx); err != nil {
		logger.Warn("archive bucket not reachable", slog.String("bucket", s3Client.Bucket()), slog.String("error", err.Error()))
	}
	var opts []s3blob.ArchiverOption
	if cfg.Archive.PruneQuotes {
		opts = append(opts, s3blob.WithQuotePruning(st))
	}
	return s3blob.NewArchiver(s3blob.NewWriter(s3Client), st, st, opts...), nil
}

func newNotifier(cfg config.NotifyConfig, logger *slog.Logger) *notify.Notifier {
	senders := []notify.Sender{notify.NewLogSender(logger)}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.TelegramToken, cfg.TelegramChatID))
	}
	if cfg.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.DiscordWebhookURL))
	}
	events := make([]domain.EventKind, 0, len(cfg.Events))
	for _, e := range cfg.Events {
		events = append(events, domain.EventKind(strings.TrimSpace(e)))
	}
	return notify.NewNotifier(senders, notify.Config{
		Events:      events,
		QueueSize:   cfg.QueueSize,
		SendTimeout: cfg.SendTimeout.Duration,
	}, logger)
}
