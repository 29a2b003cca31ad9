package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ARBENGINE_"

// Load reads a configuration file at path, merges it on top of the built-in
// defaults, applies ARBENGINE_* environment variable overrides, and returns
// the final Config. Files ending in .yaml or .yml are decoded as YAML, all
// others as TOML. An empty path skips the file and uses defaults plus the
// environment. The returned Config has NOT been validated; the caller should
// invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// Parse decodes raw TOML or YAML content (selected by format) over the
// defaults without consulting the environment.
func Parse(data []byte, format string) (*Config, error) {
	cfg := Defaults()
	if err := decode(data, format, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	format := "toml"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = "yaml"
	}
	if err := decode(data, format, cfg); err != nil {
		return fmt.Errorf("decoding config %s: %w", path, err)
	}
	return nil
}

// decode overlays data on cfg. A venues list in the file replaces the
// default demo venues entirely rather than merging element by element.
func decode(data []byte, format string, cfg *Config) error {
	defaultVenues := cfg.Venues
	cfg.Venues = nil
	err := decodeInto(data, format, cfg)
	if cfg.Venues == nil {
		cfg.Venues = defaultVenues
	}
	return err
}

func decodeInto(data []byte, format string, cfg *Config) error {
	switch format {
	case "yaml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		return nil
	case "toml":
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return err
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
		}
		return nil
	default:
		return fmt.Errorf("unsupported config format %q", format)
	}
}

// applyEnvOverrides reads well-known ARBENGINE_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the config file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Mode, EnvPrefix+"MODE")
	setStr(&cfg.LogLevel, EnvPrefix+"LOG_LEVEL")

	// ── Engine ──
	setStringSlice(&cfg.Engine.Instruments, EnvPrefix+"ENGINE_INSTRUMENTS")
	setDuration(&cfg.Engine.PriceUpdateInterval, EnvPrefix+"ENGINE_PRICE_UPDATE_INTERVAL")
	setDuration(&cfg.Engine.ArbitrageCheckInterval, EnvPrefix+"ENGINE_ARBITRAGE_CHECK_INTERVAL")
	setDuration(&cfg.Engine.MonitorInterval, EnvPrefix+"ENGINE_MONITOR_INTERVAL")
	setDuration(&cfg.Engine.StatsInterval, EnvPrefix+"ENGINE_STATS_INTERVAL")
	setDuration(&cfg.Engine.TradeTimeout, EnvPrefix+"ENGINE_TRADE_TIMEOUT")
	setInt(&cfg.Engine.MaxConcurrentFetches, EnvPrefix+"ENGINE_MAX_CONCURRENT_FETCHES")

	// ── Arbitrage ──
	setFloat64(&cfg.Arbitrage.MinProfitPct, EnvPrefix+"ARBITRAGE_MIN_PROFIT_PCT")
	setFloat64(&cfg.Arbitrage.MaxSlippage, EnvPrefix+"ARBITRAGE_MAX_SLIPPAGE")
	setFloat64(&cfg.Arbitrage.MaxPositionSize, EnvPrefix+"ARBITRAGE_MAX_POSITION_SIZE")
	setFloat64(&cfg.Arbitrage.RiskPerTrade, EnvPrefix+"ARBITRAGE_RISK_PER_TRADE")
	setDuration(&cfg.Arbitrage.ExecutionDelay, EnvPrefix+"ARBITRAGE_EXECUTION_DELAY")

	// ── Risk ──
	setFloat64(&cfg.Risk.MaxDailyLoss, EnvPrefix+"RISK_MAX_DAILY_LOSS")
	setInt(&cfg.Risk.MaxConcurrentTrades, EnvPrefix+"RISK_MAX_CONCURRENT_TRADES")
	setFloat64(&cfg.Risk.StopLossPct, EnvPrefix+"RISK_STOP_LOSS_PCT")
	setFloat64(&cfg.Risk.DrawdownLimit, EnvPrefix+"RISK_DRAWDOWN_LIMIT")
	setFloat64(&cfg.Risk.InitialBalance, EnvPrefix+"RISK_INITIAL_BALANCE")
	setBool(&cfg.Risk.AdvisoryEnforce, EnvPrefix+"RISK_ADVISORY_ENFORCE")
	setStr(&cfg.Risk.Timezone, EnvPrefix+"RISK_TIMEZONE")

	// ── Venues ──
	// Credentials are keyed by upper-cased venue name, e.g.
	// ARBENGINE_VENUE_BINANCE_API_KEY.
	for i := range cfg.Venues {
		v := &cfg.Venues[i]
		p := EnvPrefix + "VENUE_" + envName(v.Name) + "_"
		setStr(&v.BaseURL, p+"BASE_URL")
		setStr(&v.APIKey, p+"API_KEY")
		setStr(&v.APISecret, p+"API_SECRET")
		setStr(&v.SecretFile, p+"SECRET_FILE")
		setStr(&v.SecretPassword, p+"SECRET_PASSWORD")
		setStr(&v.Passphrase, p+"PASSPHRASE")
		setInt(&v.RateLimitPerSec, p+"RATE_LIMIT_PER_SEC")
		setFloat64(&v.FeePct, p+"FEE_PCT")
	}

	// ── Storage ──
	setStr(&cfg.Storage.Backend, EnvPrefix+"STORAGE_BACKEND")
	setStr(&cfg.Storage.SQLitePath, EnvPrefix+"STORAGE_SQLITE_PATH")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, EnvPrefix+"POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, EnvPrefix+"POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, EnvPrefix+"POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, EnvPrefix+"POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, EnvPrefix+"POSTGRES_USER")
	setStr(&cfg.Postgres.Password, EnvPrefix+"POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, EnvPrefix+"POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, EnvPrefix+"POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, EnvPrefix+"POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, EnvPrefix+"POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, EnvPrefix+"REDIS_ADDR")
	setStr(&cfg.Redis.Password, EnvPrefix+"REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, EnvPrefix+"REDIS_DB")
	setInt(&cfg.Redis.PoolSize, EnvPrefix+"REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, EnvPrefix+"REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.Prefix, EnvPrefix+"REDIS_PREFIX")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, EnvPrefix+"S3_ENDPOINT")
	setStr(&cfg.S3.Region, EnvPrefix+"S3_REGION")
	setStr(&cfg.S3.Bucket, EnvPrefix+"S3_BUCKET")
	setStr(&cfg.S3.AccessKey, EnvPrefix+"S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, EnvPrefix+"S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, EnvPrefix+"S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, EnvPrefix+"S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, EnvPrefix+"ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Cron, EnvPrefix+"ARCHIVE_CRON")
	setInt(&cfg.Archive.RetentionDays, EnvPrefix+"ARCHIVE_RETENTION_DAYS")
	setBool(&cfg.Archive.PruneQuotes, EnvPrefix+"ARCHIVE_PRUNE_QUOTES")

	// ── Server ──
	setBool(&cfg.Server.Enabled, EnvPrefix+"SERVER_ENABLED")
	setStr(&cfg.Server.Host, EnvPrefix+"SERVER_HOST")
	setInt(&cfg.Server.Port, EnvPrefix+"SERVER_PORT")
	setStr(&cfg.Server.APIKey, EnvPrefix+"SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, EnvPrefix+"SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "TELEGRAM_BOT_TOKEN") // compatibility alias
	setStr(&cfg.Notify.TelegramChatID, "TELEGRAM_CHAT_ID")  // compatibility alias
	setStr(&cfg.Notify.TelegramToken, EnvPrefix+"NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, EnvPrefix+"NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, EnvPrefix+"NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, EnvPrefix+"NOTIFY_EVENTS")
	setInt(&cfg.Notify.QueueSize, EnvPrefix+"NOTIFY_QUEUE_SIZE")

	// ── Profiling ──
	setStr(&cfg.Profiling.ServerAddress, EnvPrefix+"PROFILING_SERVER_ADDRESS")

	// ── Log ──
	setStr(&cfg.Log.File, EnvPrefix+"LOG_FILE")
	setInt(&cfg.Log.MaxSizeMB, EnvPrefix+"LOG_MAX_SIZE_MB")
}

// envName maps a venue name to its environment variable segment.
func envName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, name)
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
