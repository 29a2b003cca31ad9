package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaults_Validate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Len(t, cfg.Engine.Instruments, 12)
	assert.Equal(t, 5*time.Second, cfg.Engine.ArbitrageCheckInterval.Duration)
	assert.Equal(t, 0.0005, cfg.Arbitrage.MaxSlippage)
	assert.Equal(t, "paper", cfg.Mode)
}

func TestLoad_TOML(t *testing.T) {
	path := writeFile(t, "arbengine.toml", `
mode = "paper"
log_level = "debug"

[engine]
instruments = ["EUR/USD", "GBP/USD"]
arbitrage_check_interval = "2s"

[arbitrage]
min_profit_pct = 0.2
execution_delay = "250ms"

[[venues]]
name = "alpha"
kind = "paper"
base_price = 1.2
fee_pct = 0.05

[[venues]]
name = "beta"
kind = "paper"
base_prices = { "EUR/USD" = 1.21 }
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, []string{"EUR/USD", "GBP/USD"}, cfg.Engine.Instruments)
	assert.Equal(t, 2*time.Second, cfg.Engine.ArbitrageCheckInterval.Duration)
	assert.Equal(t, time.Second, cfg.Engine.PriceUpdateInterval.Duration, "untouched keys keep defaults")
	assert.Equal(t, 250*time.Millisecond, cfg.Arbitrage.ExecutionDelay.Duration)
	require.Len(t, cfg.Venues, 2)
	assert.Equal(t, "alpha", cfg.Venues[0].Name)
	assert.Equal(t, 1.21, cfg.Venues[1].BasePrices["EUR/USD"])
	assert.Zero(t, cfg.Venues[1].Balance, "file venues replace the demo venues")
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "arbengine.yaml", `
mode: paper
engine:
  instruments: ["USD/JPY"]
  trade_timeout: 45s
risk:
  max_daily_loss: 250
venues:
  - name: alpha
    kind: paper
  - name: beta
    kind: paper
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"USD/JPY"}, cfg.Engine.Instruments)
	assert.Equal(t, 45*time.Second, cfg.Engine.TradeTimeout.Duration)
	assert.Equal(t, 250.0, cfg.Risk.MaxDailyLoss)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)

	path := writeFile(t, "bad.toml", "[engine]\nbogus_key = 1\n")
	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine.bogus_key")

	path = writeFile(t, "bad.toml", "[engine]\ntrade_timeout = \"soon\"\n")
	_, err = Load(path)
	require.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ARBENGINE_MODE", "live")
	t.Setenv("ARBENGINE_ENGINE_INSTRUMENTS", "EUR/USD, USD/CHF ,")
	t.Setenv("ARBENGINE_ARBITRAGE_MIN_PROFIT_PCT", "0.3")
	t.Setenv("ARBENGINE_ENGINE_TRADE_TIMEOUT", "1m")
	t.Setenv("ARBENGINE_VENUE_KRAKEN_API_KEY", "k-key")
	t.Setenv("ARBENGINE_RISK_MAX_CONCURRENT_TRADES", "not-a-number")
	t.Setenv("TELEGRAM_BOT_TOKEN", "legacy")
	t.Setenv("ARBENGINE_NOTIFY_TELEGRAM_TOKEN", "preferred")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "live", cfg.Mode)
	assert.Equal(t, []string{"EUR/USD", "USD/CHF"}, cfg.Engine.Instruments)
	assert.Equal(t, 0.3, cfg.Arbitrage.MinProfitPct)
	assert.Equal(t, time.Minute, cfg.Engine.TradeTimeout.Duration)
	assert.Equal(t, "k-key", cfg.Venues[2].APIKey)
	assert.Equal(t, 5, cfg.Risk.MaxConcurrentTrades, "unparsable values are ignored")
	assert.Equal(t, "preferred", cfg.Notify.TelegramToken)
}

func TestValidate_CollectsProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "sandbox"
	cfg.Engine.Instruments = nil
	cfg.Arbitrage.MinProfitPct = 0
	cfg.Risk.MaxConcurrentTrades = 0
	cfg.Venues = cfg.Venues[:1]

	err := cfg.Validate()
	require.Error(t, err)

	var cerr *domain.ConfigError
	require.True(t, errors.As(err, &cerr))
	assert.GreaterOrEqual(t, len(cerr.Problems), 5)
	assert.Contains(t, err.Error(), "config validation failed:")
	assert.Contains(t, err.Error(), "at least two venues")
	assert.Contains(t, err.Error(), `unknown mode "sandbox"`)
}

func TestValidate_Venues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name: "live rest without credentials",
			mutate: func(c *Config) {
				c.Mode = "live"
				c.Venues = []VenueConfig{
					{Name: "a", Kind: "rest", BaseURL: "https://a.example", APIKey: "k", APISecret: "s"},
					{Name: "b", Kind: "rest", BaseURL: "https://b.example"},
				}
			},
			want: "venue b: api_key is required in live mode",
		},
		{
			name: "paper venue in live mode",
			mutate: func(c *Config) {
				c.Mode = "live"
				c.Venues[0] = VenueConfig{Name: "binance", Kind: "rest", BaseURL: "https://x", APIKey: "k", APISecret: "s"}
			},
			want: "paper venues are not allowed in live mode",
		},
		{
			name: "duplicate names",
			mutate: func(c *Config) {
				c.Venues[1].Name = c.Venues[0].Name
			},
			want: `duplicate venue "binance"`,
		},
		{
			name: "unknown kind",
			mutate: func(c *Config) {
				c.Venues[0].Kind = "fix"
			},
			want: `unknown kind "fix"`,
		},
		{
			name: "secret file needs password",
			mutate: func(c *Config) {
				c.Venues[0] = VenueConfig{Name: "binance", Kind: "rest", BaseURL: "https://x", SecretFile: "/tmp/s.enc"}
			},
			want: "secret_password is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_LiveRestVenuesPass(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "live"
	cfg.Venues = []VenueConfig{
		{Name: "a", Kind: "rest", BaseURL: "https://a.example", APIKey: "k", APISecret: "s"},
		{Name: "b", Kind: "rest", BaseURL: "https://b.example", APIKey: "k", SecretFile: "b.enc", SecretPassword: "pw"},
	}
	require.NoError(t, cfg.Validate())
}

func TestValidate_ArchiveAndNotify(t *testing.T) {
	cfg := Defaults()
	cfg.Archive.Enabled = true
	cfg.Notify.TelegramToken = "t"
	cfg.Notify.Events = []string{"trade_settled", "weather"}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3: bucket must not be empty")
	assert.Contains(t, err.Error(), "telegram_token and telegram_chat_id")
	assert.Contains(t, err.Error(), `unknown event "weather"`)
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Venues[0].APIKey = "key"
	cfg.Venues[0].APISecret = "secret"
	cfg.Venues[0].BasePrices = map[string]float64{"EUR/USD": 1.2}
	cfg.Postgres.Password = "pw"
	cfg.Notify.TelegramToken = "tok"
	cfg.Server.APIKey = "api"

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Venues[0].APIKey)
	assert.Equal(t, "***", out.Venues[0].APISecret)
	assert.Equal(t, "***", out.Postgres.Password)
	assert.Equal(t, "***", out.Notify.TelegramToken)
	assert.Equal(t, "***", out.Server.APIKey)
	assert.Empty(t, out.Venues[1].APIKey, "empty values stay empty")

	out.Venues[0].BasePrices["EUR/USD"] = 9
	out.Engine.Instruments[0] = "XXX/YYY"
	assert.Equal(t, "key", cfg.Venues[0].APIKey)
	assert.Equal(t, 1.2, cfg.Venues[0].BasePrices["EUR/USD"])
	assert.Equal(t, "EUR/USD", cfg.Engine.Instruments[0])
}

func TestLocation(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, time.Local, cfg.Location())
	cfg.Risk.Timezone = "UTC"
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestExampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config.example.toml"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Len(t, cfg.Venues, 3)
	kraken := cfg.Venues[2]
	assert.Equal(t, "kraken", kraken.Name)
	assert.Equal(t, 50*time.Millisecond, kraken.FillLatency.Duration)
	assert.Equal(t, 150.25, kraken.BasePrices["USD/JPY"])
	assert.Empty(t, cfg.Venues[0].BasePrices)
}
