// Package config defines the top-level configuration for the arbitrage
// engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// (or YAML) file and then optionally overridden by ARBENGINE_* environment
// variables. It is immutable once loaded.
type Config struct {
	Mode      string          `toml:"mode" yaml:"mode"`
	LogLevel  string          `toml:"log_level" yaml:"log_level"`
	Engine    EngineConfig    `toml:"engine" yaml:"engine"`
	Arbitrage ArbitrageConfig `toml:"arbitrage" yaml:"arbitrage"`
	Risk      RiskConfig      `toml:"risk" yaml:"risk"`
	Venues    []VenueConfig   `toml:"venues" yaml:"venues"`
	Storage   StorageConfig   `toml:"storage" yaml:"storage"`
	Postgres  PostgresConfig  `toml:"postgres" yaml:"postgres"`
	Redis     RedisConfig     `toml:"redis" yaml:"redis"`
	S3        S3Config        `toml:"s3" yaml:"s3"`
	Archive   ArchiveConfig   `toml:"archive" yaml:"archive"`
	Server    ServerConfig    `toml:"server" yaml:"server"`
	Notify    NotifyConfig    `toml:"notify" yaml:"notify"`
	Profiling ProfilingConfig `toml:"profiling" yaml:"profiling"`
	Log       LogConfig       `toml:"log" yaml:"log"`
}

// EngineConfig holds the periodic task settings.
type EngineConfig struct {
	Instruments            []string `toml:"instruments" yaml:"instruments"`
	PriceUpdateInterval    duration `toml:"price_update_interval" yaml:"price_update_interval"`
	ArbitrageCheckInterval duration `toml:"arbitrage_check_interval" yaml:"arbitrage_check_interval"`
	MonitorInterval        duration `toml:"monitor_interval" yaml:"monitor_interval"`
	StatsInterval          duration `toml:"stats_interval" yaml:"stats_interval"`
	TradeTimeout           duration `toml:"trade_timeout" yaml:"trade_timeout"`
	CycleTimeout           duration `toml:"cycle_timeout" yaml:"cycle_timeout"`
	MaxQuoteAge            duration `toml:"max_quote_age" yaml:"max_quote_age"`
	MaxConcurrentFetches   int      `toml:"max_concurrent_fetches" yaml:"max_concurrent_fetches"`
	ShutdownTimeout        duration `toml:"shutdown_timeout" yaml:"shutdown_timeout"`
	LockTTL                duration `toml:"lock_ttl" yaml:"lock_ttl"`
	Currency               string   `toml:"currency" yaml:"currency"`
	RecorderQueueSize      int      `toml:"recorder_queue_size" yaml:"recorder_queue_size"`
}

// ArbitrageConfig holds detection and execution parameters.
type ArbitrageConfig struct {
	// MinProfitPct is in percent (0.1 = 0.1%).
	MinProfitPct float64 `toml:"min_profit_pct" yaml:"min_profit_pct"`
	// MaxSlippage is a fraction (0.0005 = 0.05%).
	MaxSlippage       float64  `toml:"max_slippage" yaml:"max_slippage"`
	MaxPositionSize   float64  `toml:"max_position_size" yaml:"max_position_size"`
	RiskPerTrade      float64  `toml:"risk_per_trade" yaml:"risk_per_trade"`
	ExecutionDelay    duration `toml:"execution_delay" yaml:"execution_delay"`
	ProtectiveTimeout duration `toml:"protective_timeout" yaml:"protective_timeout"`
	CancelTimeout     duration `toml:"cancel_timeout" yaml:"cancel_timeout"`
	DefaultFeePct     float64  `toml:"default_fee_pct" yaml:"default_fee_pct"`
}

// RiskConfig holds the admission limits.
type RiskConfig struct {
	MaxDailyLoss        float64 `toml:"max_daily_loss" yaml:"max_daily_loss"`
	MaxConcurrentTrades int     `toml:"max_concurrent_trades" yaml:"max_concurrent_trades"`
	// StopLossPct and DrawdownLimit are fractions.
	StopLossPct    float64 `toml:"stop_loss_pct" yaml:"stop_loss_pct"`
	DrawdownLimit  float64 `toml:"drawdown_limit" yaml:"drawdown_limit"`
	MaxSpreadPct   float64 `toml:"max_spread_pct" yaml:"max_spread_pct"`
	InitialBalance float64 `toml:"initial_balance" yaml:"initial_balance"`
	AssumedLossPct float64 `toml:"assumed_loss_pct" yaml:"assumed_loss_pct"`
	MinRiskReward  float64 `toml:"min_risk_reward" yaml:"min_risk_reward"`
	// ConsecutiveLossLimit losses among the last RecentTradeWindow trades
	// fail the advisory gate.
	ConsecutiveLossLimit int  `toml:"consecutive_loss_limit" yaml:"consecutive_loss_limit"`
	RecentTradeWindow    int  `toml:"recent_trade_window" yaml:"recent_trade_window"`
	AdvisoryEnforce      bool `toml:"advisory_enforce" yaml:"advisory_enforce"`
	// AdvisoryHistory feeds stored trades to the consecutive-loss check.
	AdvisoryHistory bool   `toml:"advisory_history" yaml:"advisory_history"`
	Timezone        string `toml:"timezone" yaml:"timezone"`
}

// VenueConfig describes one trading venue.
type VenueConfig struct {
	Name string `toml:"name" yaml:"name"`
	// Kind is "paper" or "rest".
	Kind            string             `toml:"kind" yaml:"kind"`
	BaseURL         string             `toml:"base_url" yaml:"base_url"`
	APIKey          string             `toml:"api_key" yaml:"api_key"`
	APISecret       string             `toml:"api_secret" yaml:"api_secret"`
	SecretFile      string             `toml:"secret_file" yaml:"secret_file"`
	SecretPassword  string             `toml:"secret_password" yaml:"secret_password"`
	Passphrase      string             `toml:"passphrase" yaml:"passphrase"`
	RateLimitPerSec int                `toml:"rate_limit_per_sec" yaml:"rate_limit_per_sec"`
	FeePct          float64            `toml:"fee_pct" yaml:"fee_pct"`
	BasePrice       float64            `toml:"base_price" yaml:"base_price"`
	BasePrices      map[string]float64 `toml:"base_prices" yaml:"base_prices"`
	Balance         float64            `toml:"balance" yaml:"balance"`
	FillLatency     duration           `toml:"fill_latency" yaml:"fill_latency"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	// Backend is "sqlite", "postgres" or "none".
	Backend    string `toml:"backend" yaml:"backend"`
	SQLitePath string `toml:"sqlite_path" yaml:"sqlite_path"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn" yaml:"dsn"`
	Host          string `toml:"host" yaml:"host"`
	Port          int    `toml:"port" yaml:"port"`
	Database      string `toml:"database" yaml:"database"`
	User          string `toml:"user" yaml:"user"`
	Password      string `toml:"password" yaml:"password"`
	SSLMode       string `toml:"ssl_mode" yaml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns" yaml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns" yaml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations" yaml:"run_migrations"`
	PreferIPv4    bool   `toml:"prefer_ipv4" yaml:"prefer_ipv4"`
}

// RedisConfig holds Redis connection parameters. An empty Addr disables
// Redis.
type RedisConfig struct {
	Addr       string   `toml:"addr" yaml:"addr"`
	Password   string   `toml:"password" yaml:"password"`
	DB         int      `toml:"db" yaml:"db"`
	PoolSize   int      `toml:"pool_size" yaml:"pool_size"`
	MaxRetries int      `toml:"max_retries" yaml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled" yaml:"tls_enabled"`
	Prefix     string   `toml:"prefix" yaml:"prefix"`
	QuoteTTL   duration `toml:"quote_ttl" yaml:"quote_ttl"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint" yaml:"endpoint"`
	Region         string `toml:"region" yaml:"region"`
	Bucket         string `toml:"bucket" yaml:"bucket"`
	AccessKey      string `toml:"access_key" yaml:"access_key"`
	SecretKey      string `toml:"secret_key" yaml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl" yaml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style" yaml:"force_path_style"`
	Prefix         string `toml:"prefix" yaml:"prefix"`
}

// ArchiveConfig controls the cold-storage export.
type ArchiveConfig struct {
	Enabled       bool   `toml:"enabled" yaml:"enabled"`
	Cron          string `toml:"cron" yaml:"cron"`
	RetentionDays int    `toml:"retention_days" yaml:"retention_days"`
	PruneQuotes   bool   `toml:"prune_quotes" yaml:"prune_quotes"`
}

// ServerConfig controls the status HTTP server.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled" yaml:"enabled"`
	Host        string   `toml:"host" yaml:"host"`
	Port        int      `toml:"port" yaml:"port"`
	APIKey      string   `toml:"api_key" yaml:"api_key"`
	CORSOrigins []string `toml:"cors_origins" yaml:"cors_origins"`
	// RateLimitPerMin applies per client IP when Redis is configured.
	RateLimitPerMin int `toml:"rate_limit_per_min" yaml:"rate_limit_per_min"`
}

// NotifyConfig holds notification channel settings.
type NotifyConfig struct {
	Enabled           bool     `toml:"enabled" yaml:"enabled"`
	TelegramToken     string   `toml:"telegram_token" yaml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id" yaml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url" yaml:"discord_webhook_url"`
	Events            []string `toml:"events" yaml:"events"`
	QueueSize         int      `toml:"queue_size" yaml:"queue_size"`
	SendTimeout       duration `toml:"send_timeout" yaml:"send_timeout"`
}

// ProfilingConfig enables continuous profiling when ServerAddress is set.
type ProfilingConfig struct {
	ServerAddress   string `toml:"server_address" yaml:"server_address"`
	ApplicationName string `toml:"application_name" yaml:"application_name"`
}

// LogConfig controls the optional rotating log file.
type LogConfig struct {
	File       string `toml:"file" yaml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `toml:"compress" yaml:"compress"`
}

// duration is a wrapper around time.Duration that supports TOML and YAML
// string decoding. It allows configuration files to use human-readable
// duration strings like "5m" or "100ms".
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

// MarshalText implements encoding.TextMarshaler.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// UnmarshalYAML decodes a scalar duration string.
func (d *duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// Dur builds a duration value; used by callers constructing configs in code.
func Dur(d time.Duration) duration { return duration{d} }

// Defaults returns a Config populated with sensible default values. The demo
// venues are three paper venues around 1.2000 so the engine runs out of the
// box in paper mode.
func Defaults() Config {
	return Config{
		Mode:     "paper",
		LogLevel: "info",
		Engine: EngineConfig{
			Instruments: []string{
				"EUR/USD", "GBP/USD", "USD/JPY", "USD/CHF",
				"AUD/USD", "USD/CAD", "NZD/USD", "EUR/GBP",
				"EUR/JPY", "GBP/JPY", "CHF/JPY", "EUR/CHF",
			},
			PriceUpdateInterval:    duration{time.Second},
			ArbitrageCheckInterval: duration{5 * time.Second},
			MonitorInterval:        duration{5 * time.Second},
			StatsInterval:          duration{time.Minute},
			TradeTimeout:           duration{30 * time.Second},
			CycleTimeout:           duration{2 * time.Second},
			MaxQuoteAge:            duration{5 * time.Second},
			MaxConcurrentFetches:   16,
			ShutdownTimeout:        duration{30 * time.Second},
			LockTTL:                duration{time.Minute},
			Currency:               "USD",
			RecorderQueueSize:      1024,
		},
		Arbitrage: ArbitrageConfig{
			MinProfitPct:      0.1,
			MaxSlippage:       0.0005,
			MaxPositionSize:   1000,
			RiskPerTrade:      0.02,
			ExecutionDelay:    duration{100 * time.Millisecond},
			ProtectiveTimeout: duration{5 * time.Second},
			CancelTimeout:     duration{3 * time.Second},
			DefaultFeePct:     0.1,
		},
		Risk: RiskConfig{
			MaxDailyLoss:         100,
			MaxConcurrentTrades:  5,
			StopLossPct:          0.02,
			DrawdownLimit:        0.10,
			MaxSpreadPct:         5,
			InitialBalance:       10000,
			AssumedLossPct:       2,
			MinRiskReward:        1.5,
			ConsecutiveLossLimit: 3,
			RecentTradeWindow:    10,
			AdvisoryHistory:      true,
			Timezone:             "Local",
		},
		Venues: []VenueConfig{
			{Name: "binance", Kind: "paper", BasePrice: 1.2000, FeePct: 0.1, Balance: 10000},
			{Name: "coinbase", Kind: "paper", BasePrice: 1.2005, FeePct: 0.1, Balance: 10000},
			{Name: "kraken", Kind: "paper", BasePrice: 1.1995, FeePct: 0.1, Balance: 10000},
		},
		Storage: StorageConfig{
			Backend:    "sqlite",
			SQLitePath: "data/arbengine.db",
		},
		Postgres: PostgresConfig{
			Host:         "localhost",
			Port:         5432,
			Database:     "arbengine",
			User:         "arbengine",
			SSLMode:      "disable",
			PoolMaxConns: 10,
			PoolMinConns: 1,
		},
		Redis: RedisConfig{
			PoolSize:   10,
			MaxRetries: 3,
			Prefix:     "arbengine",
			QuoteTTL:   duration{30 * time.Second},
		},
		S3: S3Config{
			Region:         "us-east-1",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Cron:          "0 3 * * *",
			RetentionDays: 30,
		},
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8080,
			RateLimitPerMin: 120,
		},
		Notify: NotifyConfig{
			Enabled:     true,
			QueueSize:   256,
			SendTimeout: duration{10 * time.Second},
		},
		Profiling: ProfilingConfig{
			ApplicationName: "arbengine",
		},
		Log: LogConfig{
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"paper": true,
	"live":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validBackends = map[string]bool{
	"sqlite":   true,
	"postgres": true,
	"none":     true,
}

var validEvents = map[string]bool{
	string(domain.EventOpportunity):   true,
	string(domain.EventTradeSettled):  true,
	string(domain.EventTradeFailed):   true,
	string(domain.EventNakedPosition): true,
	string(domain.EventRiskAlert):     true,
	string(domain.EventDailySummary):  true,
	string(domain.EventLifecycle):     true,
	string(domain.EventError):         true,
}

// Validate checks Config for invalid or missing values and returns a
// *domain.ConfigError describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: paper, live)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Engine
	if len(c.Engine.Instruments) == 0 {
		errs = append(errs, "engine: at least one instrument is required")
	}
	seen := make(map[string]bool, len(c.Engine.Instruments))
	for _, inst := range c.Engine.Instruments {
		if strings.TrimSpace(inst) == "" {
			errs = append(errs, "engine: instrument names must not be empty")
		} else if seen[inst] {
			errs = append(errs, fmt.Sprintf("engine: duplicate instrument %q", inst))
		}
		seen[inst] = true
	}
	for name, d := range map[string]time.Duration{
		"price_update_interval":    c.Engine.PriceUpdateInterval.Duration,
		"arbitrage_check_interval": c.Engine.ArbitrageCheckInterval.Duration,
		"monitor_interval":         c.Engine.MonitorInterval.Duration,
		"stats_interval":           c.Engine.StatsInterval.Duration,
		"trade_timeout":            c.Engine.TradeTimeout.Duration,
		"cycle_timeout":            c.Engine.CycleTimeout.Duration,
		"max_quote_age":            c.Engine.MaxQuoteAge.Duration,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Sprintf("engine: %s must be > 0", name))
		}
	}
	if c.Engine.MaxConcurrentFetches < 1 {
		errs = append(errs, "engine: max_concurrent_fetches must be >= 1")
	}

	// Arbitrage
	if c.Arbitrage.MinProfitPct <= 0 {
		errs = append(errs, "arbitrage: min_profit_pct must be > 0")
	}
	if c.Arbitrage.MaxSlippage < 0 || c.Arbitrage.MaxSlippage >= 1 {
		errs = append(errs, "arbitrage: max_slippage must be a fraction in [0, 1)")
	}
	if c.Arbitrage.MaxPositionSize <= 0 {
		errs = append(errs, "arbitrage: max_position_size must be > 0")
	}
	if c.Arbitrage.RiskPerTrade <= 0 || c.Arbitrage.RiskPerTrade > 1 {
		errs = append(errs, "arbitrage: risk_per_trade must be a fraction in (0, 1]")
	}
	if c.Arbitrage.ExecutionDelay.Duration <= 0 {
		errs = append(errs, "arbitrage: execution_delay must be > 0")
	}
	if c.Arbitrage.ProtectiveTimeout.Duration <= 0 {
		errs = append(errs, "arbitrage: protective_timeout must be > 0")
	}
	if c.Arbitrage.DefaultFeePct < 0 {
		errs = append(errs, "arbitrage: default_fee_pct must be >= 0")
	}

	// Risk
	if c.Risk.MaxDailyLoss <= 0 {
		errs = append(errs, "risk: max_daily_loss must be > 0")
	}
	if c.Risk.MaxConcurrentTrades < 1 {
		errs = append(errs, "risk: max_concurrent_trades must be >= 1")
	}
	if c.Risk.StopLossPct <= 0 || c.Risk.StopLossPct >= 1 {
		errs = append(errs, "risk: stop_loss_pct must be a fraction in (0, 1)")
	}
	if c.Risk.DrawdownLimit <= 0 || c.Risk.DrawdownLimit > 1 {
		errs = append(errs, "risk: drawdown_limit must be a fraction in (0, 1]")
	}
	if c.Risk.MaxSpreadPct <= c.Arbitrage.MinProfitPct {
		errs = append(errs, "risk: max_spread_pct must exceed arbitrage.min_profit_pct")
	}
	if c.Risk.InitialBalance <= 0 {
		errs = append(errs, "risk: initial_balance must be > 0")
	}
	if c.Risk.Timezone != "" && c.Risk.Timezone != "Local" {
		if _, err := time.LoadLocation(c.Risk.Timezone); err != nil {
			errs = append(errs, fmt.Sprintf("risk: unknown timezone %q", c.Risk.Timezone))
		}
	}

	errs = append(errs, c.validateVenues()...)

	// Storage
	if !validBackends[strings.ToLower(c.Storage.Backend)] {
		errs = append(errs, fmt.Sprintf("storage: unknown backend %q (valid: sqlite, postgres, none)", c.Storage.Backend))
	}
	if strings.EqualFold(c.Storage.Backend, "sqlite") && c.Storage.SQLitePath == "" {
		errs = append(errs, "storage: sqlite_path must not be empty")
	}
	if strings.EqualFold(c.Storage.Backend, "postgres") {
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
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Addr != "" && c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Archive
	if c.Archive.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
		if strings.EqualFold(c.Storage.Backend, "none") {
			errs = append(errs, "archive: requires a storage backend")
		}
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if strings.TrimSpace(c.Archive.Cron) == "" {
			errs = append(errs, "archive: cron must not be empty")
		}
	}

	// Server
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.RateLimitPerMin < 0 {
		errs = append(errs, "server: rate_limit_per_min must be >= 0")
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}
	for _, e := range c.Notify.Events {
		if !validEvents[strings.TrimSpace(e)] {
			errs = append(errs, fmt.Sprintf("notify: unknown event %q", e))
		}
	}

	if len(errs) > 0 {
		return &domain.ConfigError{Problems: errs}
	}
	return nil
}

func (c *Config) validateVenues() []string {
	var errs []string
	if len(c.Venues) < 2 {
		errs = append(errs, fmt.Sprintf("venues: at least two venues are required, got %d", len(c.Venues)))
	}
	live := strings.EqualFold(c.Mode, "live")
	names := make(map[string]bool, len(c.Venues))
	for i, v := range c.Venues {
		label := v.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i)
			errs = append(errs, fmt.Sprintf("venues[%d]: name must not be empty", i))
		}
		if names[v.Name] {
			errs = append(errs, fmt.Sprintf("venues: duplicate venue %q", v.Name))
		}
		names[v.Name] = true

		switch strings.ToLower(v.Kind) {
		case "paper":
			if live {
				errs = append(errs, fmt.Sprintf("venue %s: paper venues are not allowed in live mode", label))
			}
		case "rest":
			if v.BaseURL == "" {
				errs = append(errs, fmt.Sprintf("venue %s: base_url must not be empty", label))
			}
			if live {
				if v.APIKey == "" {
					errs = append(errs, fmt.Sprintf("venue %s: api_key is required in live mode", label))
				}
				if v.APISecret == "" && v.SecretFile == "" {
					errs = append(errs, fmt.Sprintf("venue %s: api_secret or secret_file is required in live mode", label))
				}
			}
			if v.SecretFile != "" && v.APISecret == "" && v.SecretPassword == "" {
				errs = append(errs, fmt.Sprintf("venue %s: secret_password is required when secret_file is set", label))
			}
		default:
			errs = append(errs, fmt.Sprintf("venue %s: unknown kind %q (valid: paper, rest)", label, v.Kind))
		}
		if v.FeePct < 0 {
			errs = append(errs, fmt.Sprintf("venue %s: fee_pct must be >= 0", label))
		}
		if v.RateLimitPerSec < 0 {
			errs = append(errs, fmt.Sprintf("venue %s: rate_limit_per_sec must be >= 0", label))
		}
	}
	return errs
}

// Location returns the time zone whose calendar drives the daily risk reset.
func (c *Config) Location() *time.Location {
	if c.Risk.Timezone == "" || c.Risk.Timezone == "Local" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Risk.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
