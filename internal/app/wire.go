package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/blob/s3"
	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/cache/redis"
	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/calibration"
	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/config"
	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/domain"
	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/metrics"
	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/notify"
	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/platform/polymarket"
	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/server/handler"
	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/store/postgres"
)

// Dependencies bundles every concrete dependency the modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
// Optional components are left nil when their backend is not wired.
type Dependencies struct {
	// Stores
	MarketStore  *postgres.MarketStore
	HistoryStore *postgres.PriceHistoryStore
	LiveStore    *postgres.LiveSnapshotStore
	EdgeStore    *postgres.EdgeStore
	RunStore     *postgres.RunStore

	// Caches
	QuoteCache  domain.QuoteCache
	ReportCache domain.ReportCache
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	BlobReader domain.BlobReader
	Archiver   *s3blob.Archiver

	// Polymarket APIs
	Gamma *polymarket.GammaClient
	Clob  *polymarket.ClobClient

	Engine   *calibration.Engine
	Policy   calibration.Policy
	Metrics  *metrics.Metrics
	Notifier *notify.Notifier

	// Checks back the health endpoint, one per wired backend.
	Checks map[string]handler.Check
}

// needsRedis returns true for modes that cache quotes, publish reports or
// take the analysis lock.
func needsRedis(mode string) bool {
	switch mode {
	case "collect", "analyze", "serve", "full":
		return true
	default:
		return false
	}
}

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

	deps := &Dependencies{
		Metrics: metrics.New(),
		Checks:  make(map[string]handler.Check),
	}

	// --- Calibration engine ---
	deps.Policy = calibration.Policy{
		EdgeThreshold:     cfg.Calibration.EdgeThreshold,
		MinSamples:        cfg.Calibration.MinSamples,
		ConfidenceCeiling: cfg.Calibration.ConfidenceCeiling,
		OneSidedPenalty:   cfg.Calibration.OneSidedPenalty,
	}
	engine, err := calibration.NewEngine(calibration.Config{
		BucketCount: cfg.Calibration.BucketCount,
		Policy:      deps.Policy,
		Workers:     cfg.Calibration.Workers,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("wire: calibration engine: %w", err)
	}
	deps.Engine = engine

	// --- PostgreSQL (every mode reads or writes the stores) ---
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
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.MarketStore = postgres.NewMarketStore(pool)
	deps.HistoryStore = postgres.NewPriceHistoryStore(pool)
	deps.LiveStore = postgres.NewLiveSnapshotStore(pool)
	deps.EdgeStore = postgres.NewEdgeStore(pool)
	deps.RunStore = postgres.NewRunStore(pool)
	deps.Checks["postgres"] = pgClient.Ping

	// --- Redis ---
	if needsRedis(cfg.Mode) {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			PoolSize:    cfg.Redis.PoolSize,
			MaxRetries:  cfg.Redis.MaxRetries,
			TLSEnabled:  cfg.Redis.TLSEnabled,
			Namespace:   cfg.Redis.Namespace,
			DialTimeout: cfg.Redis.DialTimeout.Duration,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.QuoteCache = redis.NewQuoteCache(redisClient, cfg.Redis.QuoteTTL.Duration)
		deps.ReportCache = redis.NewReportCache(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.Checks["redis"] = redisClient.Ping
	}

	// --- S3 (optional) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
			Prefix:         cfg.S3.Prefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client))
		deps.Checks["s3"] = s3Client.Health
	}

	// --- Polymarket ---
	opts := []polymarket.Option{
		polymarket.WithTimeout(cfg.Polymarket.Timeout.Duration),
		polymarket.WithRateLimit(cfg.Polymarket.RequestsPerSecond, cfg.Polymarket.Burst),
	}
	deps.Gamma = polymarket.NewGammaClient(cfg.Polymarket.GammaHost, opts...)
	deps.Clob = polymarket.NewClobClient(cfg.Polymarket.ClobHost, opts...)

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

	logger.Info("dependencies wired",
		slog.Bool("redis", deps.SignalBus != nil),
		slog.Bool("s3", deps.Archiver != nil),
		slog.Int("notify_senders", len(senders)),
	)
	return deps, cleanup, nil
}
