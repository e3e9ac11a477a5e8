// Package config defines the top-level configuration for the edge finder
// and provides validation helpers.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by EDGEFINDER_* environment variables.
type Config struct {
	Polymarket  PolymarketConfig  `toml:"polymarket"`
	Calibration CalibrationConfig `toml:"calibration"`
	Postgres    PostgresConfig    `toml:"postgres"`
	Redis       RedisConfig       `toml:"redis"`
	S3          S3Config          `toml:"s3"`
	Pipeline    PipelineConfig    `toml:"pipeline"`
	Server      ServerConfig      `toml:"server"`
	Notify      NotifyConfig      `toml:"notify"`
	Mode        string            `toml:"mode"`
	LogLevel    string            `toml:"log_level"`
}

// PolymarketConfig holds Polymarket API endpoints and client limits.
type PolymarketConfig struct {
	GammaHost         string   `toml:"gamma_host"`
	ClobHost          string   `toml:"clob_host"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	Burst             int      `toml:"burst"`
	Timeout           duration `toml:"timeout"`
	PageSize          int      `toml:"page_size"`
	// MaxMarkets caps discovery; 0 means no cap.
	MaxMarkets int `toml:"max_markets"`
	// IncludeClosed also discovers closed markets, which carry the
	// resolutions calibration is built from.
	IncludeClosed   bool   `toml:"include_closed"`
	HistoryInterval string `toml:"history_interval"`
	HistoryFidelity int    `toml:"history_fidelity"`
}

// CalibrationConfig holds the bucket partition and edge policy.
type CalibrationConfig struct {
	BucketCount       int     `toml:"bucket_count"`
	EdgeThreshold     float64 `toml:"edge_threshold"`
	MinSamples        int     `toml:"min_samples"`
	ConfidenceCeiling int     `toml:"confidence_ceiling"`
	OneSidedPenalty   float64 `toml:"one_sided_penalty"`
	Workers           int     `toml:"workers"`
	// TopN limits how many ranked edges are notified about.
	TopN int `toml:"top_n"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr        string   `toml:"addr"`
	Password    string   `toml:"password"`
	DB          int      `toml:"db"`
	PoolSize    int      `toml:"pool_size"`
	MaxRetries  int      `toml:"max_retries"`
	TLSEnabled  bool     `toml:"tls_enabled"`
	Namespace   string   `toml:"namespace"`
	DialTimeout duration `toml:"dial_timeout"`
	QuoteTTL    duration `toml:"quote_ttl"`
	LockTTL     duration `toml:"lock_ttl"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	// Prefix roots every archived object, e.g. "prod/".
	Prefix string `toml:"prefix"`
}

// PipelineConfig holds collection and analysis scheduling parameters.
type PipelineConfig struct {
	// Stages lists what the "full" mode runs on each tick.
	Stages   []string `toml:"stages"`
	Interval duration `toml:"interval"`
	// Concurrency bounds parallel CLOB requests in the collectors.
	Concurrency int `toml:"concurrency"`
	// DataDir holds markets_snapshot.json, live_prices.json and
	// historical_prices.json for ingestion.
	DataDir string `toml:"data_dir"`
	// IngestSource is "file" or "s3".
	IngestSource string `toml:"ingest_source"`
	ArchiveRaw   bool   `toml:"archive_raw"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey guards mutating endpoints. Empty disables authentication.
	APIKey string `toml:"api_key"`
	// Per-client request rate for mutating endpoints.
	RateLimit float64 `toml:"rate_limit"`
	RateBurst int     `toml:"rate_burst"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			GammaHost:         "https://gamma-api.polymarket.com",
			ClobHost:          "https://clob.polymarket.com",
			RequestsPerSecond: 5,
			Burst:             5,
			Timeout:           duration{30 * time.Second},
			PageSize:          100,
			IncludeClosed:     true,
			HistoryInterval:   "max",
			HistoryFidelity:   60,
		},
		Calibration: CalibrationConfig{
			BucketCount:       10,
			EdgeThreshold:     0.05,
			MinSamples:        30,
			ConfidenceCeiling: 500,
			OneSidedPenalty:   0.5,
			Workers:           4,
			TopN:              10,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "edgefinder",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			PoolSize:    20,
			MaxRetries:  3,
			Namespace:   "edgefinder",
			DialTimeout: duration{5 * time.Second},
			QuoteTTL:    duration{15 * time.Minute},
			LockTTL:     duration{10 * time.Minute},
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "edgefinder-data",
			ForcePathStyle: true,
		},
		Pipeline: PipelineConfig{
			Stages:       []string{StageDiscover, StageCollect, StageAnalyze},
			Interval:     duration{time.Hour},
			Concurrency:  4,
			DataDir:      "data",
			IngestSource: "file",
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   0.2,
			RateBurst:   2,
		},
		Notify: NotifyConfig{
			Events: []string{"edge_detected", "analysis_failed"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// Pipeline stage names.
const (
	StageDiscover = "discover"
	StageCollect  = "collect"
	StageHistory  = "history"
	StageIngest   = "ingest"
	StageAnalyze  = "analyze"
)

var validStages = map[string]bool{
	StageDiscover: true,
	StageCollect:  true,
	StageHistory:  true,
	StageIngest:   true,
	StageAnalyze:  true,
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"discover": true,
	"collect":  true,
	"ingest":   true,
	"analyze":  true,
	"serve":    true,
	"full":     true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: discover, collect, ingest, analyze, serve, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Polymarket
	hosts := []struct{ name, host string }{
		{"gamma_host", c.Polymarket.GammaHost},
		{"clob_host", c.Polymarket.ClobHost},
	}
	for _, h := range hosts {
		name, host := h.name, h.host
		if host == "" {
			errs = append(errs, "polymarket: "+name+" must not be empty")
		} else if u, err := url.Parse(host); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Sprintf("polymarket: %s %q is not an absolute URL", name, host))
		}
	}
	if c.Polymarket.RequestsPerSecond <= 0 {
		errs = append(errs, "polymarket: requests_per_second must be > 0")
	}
	if c.Polymarket.Burst < 1 {
		errs = append(errs, "polymarket: burst must be >= 1")
	}
	if c.Polymarket.PageSize < 1 || c.Polymarket.PageSize > 500 {
		errs = append(errs, fmt.Sprintf("polymarket: page_size must be 1-500, got %d", c.Polymarket.PageSize))
	}
	if c.Polymarket.MaxMarkets < 0 {
		errs = append(errs, "polymarket: max_markets must be >= 0")
	}
	if c.Polymarket.HistoryFidelity < 1 {
		errs = append(errs, "polymarket: history_fidelity must be >= 1")
	}

	// Calibration
	cal := c.Calibration
	if cal.BucketCount < 1 || cal.BucketCount > 100 {
		errs = append(errs, fmt.Sprintf("calibration: bucket_count must be 1-100, got %d", cal.BucketCount))
	}
	if cal.EdgeThreshold <= 0 || cal.EdgeThreshold >= 1 {
		errs = append(errs, fmt.Sprintf("calibration: edge_threshold must be in (0,1), got %v", cal.EdgeThreshold))
	}
	if cal.MinSamples < 1 {
		errs = append(errs, "calibration: min_samples must be >= 1")
	}
	if cal.ConfidenceCeiling < 1 {
		errs = append(errs, "calibration: confidence_ceiling must be >= 1")
	}
	if cal.OneSidedPenalty < 0 || cal.OneSidedPenalty > 1 {
		errs = append(errs, fmt.Sprintf("calibration: one_sided_penalty must be in [0,1], got %v", cal.OneSidedPenalty))
	}
	if cal.Workers < 1 {
		errs = append(errs, "calibration: workers must be >= 1")
	}
	if cal.TopN < 0 {
		errs = append(errs, "calibration: top_n must be >= 0")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}
	if c.Redis.LockTTL.Duration <= 0 {
		errs = append(errs, "redis: lock_ttl must be > 0")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Pipeline
	for _, s := range c.Pipeline.Stages {
		if !validStages[s] {
			errs = append(errs, fmt.Sprintf("pipeline: unknown stage %q", s))
		}
	}
	if c.Pipeline.Interval.Duration <= 0 {
		errs = append(errs, "pipeline: interval must be > 0")
	}
	if c.Pipeline.Concurrency < 1 {
		errs = append(errs, "pipeline: concurrency must be >= 1")
	}
	switch c.Pipeline.IngestSource {
	case "file":
		if c.Pipeline.DataDir == "" {
			errs = append(errs, "pipeline: data_dir must not be empty for file ingestion")
		}
	case "s3":
		if !c.S3.Enabled {
			errs = append(errs, "pipeline: ingest_source s3 requires s3.enabled")
		}
	default:
		errs = append(errs, fmt.Sprintf("pipeline: ingest_source must be file or s3, got %q", c.Pipeline.IngestSource))
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must not be negative")
		}
		if c.Server.RateLimit > 0 && c.Server.RateBurst < 1 {
			errs = append(errs, "server: rate_burst must be at least 1 when rate_limit is set")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
