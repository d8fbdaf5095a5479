// Package config defines the top-level configuration for whalebridge and
// provides validation helpers.
package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by WBRIDGE_* environment variables.
type Config struct {
	Polymarket PolymarketConfig `toml:"polymarket"`
	Kalshi     KalshiConfig     `toml:"kalshi"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Copy       CopyConfig       `toml:"copy"`
	Matching   MatchingConfig   `toml:"matching"`
	Traders    []TraderConfig   `toml:"traders"`
	Feeds      FeedsConfig      `toml:"feeds"`
	Dispatch   DispatchConfig   `toml:"dispatch"`
	Pipeline   PipelineConfig   `toml:"pipeline"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// PolymarketConfig holds source-exchange API endpoints.
type PolymarketConfig struct {
	DataHost  string `toml:"data_host"`
	GammaHost string `toml:"gamma_host"`
	WsHost    string `toml:"ws_host"`
	// PollRateLimit caps data-API requests per second; PollBurst is the
	// limiter burst size.
	PollRateLimit float64 `toml:"poll_rate_limit"`
	PollBurst     int     `toml:"poll_burst"`
}

// KalshiConfig holds target-exchange API credentials and endpoints.
type KalshiConfig struct {
	ApiKey            string `toml:"api_key"`
	RsaPrivateKeyPath string `toml:"rsa_private_key_path"`
	BaseURL           string `toml:"base_url"`
	WsURL             string `toml:"ws_url"`
	// SeriesPrefixes limits the market index to tickers starting with one of
	// these series prefixes. Empty means fetch everything open.
	SeriesPrefixes []string `toml:"series_prefixes"`
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
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// CopyConfig holds the sizing and exposure knobs of the copy engine. All
// *_pct fields are fractions of own bankroll (0.02 = 2%).
type CopyConfig struct {
	KellyFraction         float64  `toml:"kelly_fraction"`
	MaxPerTradePct        float64  `toml:"max_per_trade_pct"`
	MaxPerTraderPct       float64  `toml:"max_per_trader_pct"`
	MaxTotalExposurePct   float64  `toml:"max_total_exposure_pct"`
	MaxPositionsPerMarket int      `toml:"max_positions_per_market"`
	MaxSameSidePerMarket  int      `toml:"max_same_side_per_market"`
	MinOrderSize          float64  `toml:"min_order_size"`
	// MaxOrderSize is an absolute dollar ceiling per order. Zero disables it.
	MaxOrderSize     float64  `toml:"max_order_size"`
	MaxTradesPerHour int      `toml:"max_trades_per_hour"`
	MaxTradesPerDay  int      `toml:"max_trades_per_day"`
	Cooldown         duration `toml:"cooldown"`
	DryRun           bool     `toml:"dry_run"`
	// BankrollFallback is used when the execution client cannot report a
	// balance at startup.
	BankrollFallback float64  `toml:"bankroll_fallback"`
	BankrollRefresh  duration `toml:"bankroll_refresh"`
	// WhaleAvgWindow is the rolling trade count used to estimate a tracked
	// trader's bankroll when none is configured.
	WhaleAvgWindow int `toml:"whale_avg_window"`
}

// MatchingConfig holds cross-exchange matching parameters.
type MatchingConfig struct {
	// LineTolerance is the maximum absolute line distance, in line units,
	// for a spread/total market to count as equivalent.
	LineTolerance float64 `toml:"line_tolerance"`
	// MaxIndexAge is how stale the market index may be before the engine
	// refuses to match against it.
	MaxIndexAge duration       `toml:"max_index_age"`
	Polarity    []PolarityRule `toml:"polarity"`
}

// PolarityRule maps a source wager onto the correct yes/no polarity of a
// target contract, keyed by the contract family named in the target title.
// Side mapping across exchanges is asymmetric and must be supplied as data;
// trades with no applicable rule are treated as ambiguous, never guessed.
type PolarityRule struct {
	// Type is the market type the rule applies to: winner, spread, total.
	Type string `toml:"type"`
	// Pattern is a regular expression matched against the target title to
	// recognize the contract family, e.g. `wins by (more than|over)`.
	Pattern string `toml:"pattern"`
	// Named says which participant the target contract names relative to the
	// trade: "entity" or "opponent".
	Named string `toml:"named"`
	// LineSign restricts the rule by the sign of the source line: "negative"
	// (favorite), "positive" (underdog), or "any".
	LineSign string `toml:"line_sign"`
	// Side is the target contract side a "for" wager maps to: "yes" or "no".
	Side string `toml:"side"`
}

// TraderConfig is one tracked trader whose source-exchange trades are copied.
type TraderConfig struct {
	Address string `toml:"address"`
	Label   string `toml:"label"`
	// BankrollEstimate in dollars; zero means estimate from observed trades.
	BankrollEstimate float64 `toml:"bankroll_estimate"`
}

// FeedsConfig holds polling and refresh cadence parameters.
type FeedsConfig struct {
	PollInterval         duration `toml:"poll_interval"`
	ErrorBackoff         duration `toml:"error_backoff"`
	WsEnabled            bool     `toml:"ws_enabled"`
	IndexRefreshInterval duration `toml:"index_refresh_interval"`
	Workers              int      `toml:"workers"`
	// DedupTTL bounds how long recently seen source trade ids are remembered
	// at the feed edge before the durable ledger takes over.
	DedupTTL duration `toml:"dedup_ttl"`
}

// DispatchConfig holds execution dispatch and retry parameters.
type DispatchConfig struct {
	MaxAttempts int      `toml:"max_attempts"`
	BackoffBase duration `toml:"backoff_base"`
	BackoffMax  duration `toml:"backoff_max"`
	// OrderRateLimit caps orders placed per OrderRateWindow across all
	// workers. Zero disables the budget.
	OrderRateLimit  int      `toml:"order_rate_limit"`
	OrderRateWindow duration `toml:"order_rate_window"`
}

// PipelineConfig holds archival parameters.
type PipelineConfig struct {
	ArchiveEnabled       bool     `toml:"archive_enabled"`
	ArchiveRetentionDays int      `toml:"archive_retention_days"`
	ArchiveInterval      duration `toml:"archive_interval"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
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
	ApiKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
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
			DataHost:      "https://data-api.polymarket.com",
			GammaHost:     "https://gamma-api.polymarket.com",
			WsHost:        "wss://ws-live-data.polymarket.com",
			PollRateLimit: 2.0,
			PollBurst:     4,
		},
		Kalshi: KalshiConfig{
			BaseURL:        "https://api.elections.kalshi.com/trade-api/v2",
			WsURL:          "wss://api.elections.kalshi.com/trade-api/ws/v2",
			SeriesPrefixes: []string{"KXNBA", "KXNFL", "KXNHL", "KXNCAA"},
		},
		Postgres: PostgresConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "whalebridge",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "whalebridge-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Copy: CopyConfig{
			KellyFraction:         0.5,
			MaxPerTradePct:        0.02,
			MaxPerTraderPct:       0.10,
			MaxTotalExposurePct:   0.30,
			MaxPositionsPerMarket: 4,
			MaxSameSidePerMarket:  1,
			MinOrderSize:          1.0,
			MaxOrderSize:          25.0,
			MaxTradesPerHour:      15,
			MaxTradesPerDay:       50,
			Cooldown:              duration{30 * time.Minute},
			DryRun:                true,
			BankrollFallback:      100.0,
			BankrollRefresh:       duration{15 * time.Minute},
			WhaleAvgWindow:        50,
		},
		Matching: MatchingConfig{
			LineTolerance: 1.0,
			MaxIndexAge:   duration{5 * time.Minute},
			Polarity:      nil, // built-in rules apply when empty
		},
		Feeds: FeedsConfig{
			PollInterval:         duration{2 * time.Second},
			ErrorBackoff:         duration{5 * time.Second},
			WsEnabled:            false,
			IndexRefreshInterval: duration{60 * time.Second},
			Workers:              4,
			DedupTTL:             duration{10 * time.Minute},
		},
		Dispatch: DispatchConfig{
			MaxAttempts:     4,
			BackoffBase:     duration{500 * time.Millisecond},
			BackoffMax:      duration{30 * time.Second},
			OrderRateLimit:  10,
			OrderRateWindow: duration{time.Minute},
		},
		Pipeline: PipelineConfig{
			ArchiveEnabled:       false,
			ArchiveRetentionDays: 90,
			ArchiveInterval:      duration{24 * time.Hour},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Notify: NotifyConfig{
			Events: []string{"trade_copied", "copy_failed", "limit_hit", "error"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"copy":    true,
	"monitor": true,
	"server":  true,
	"archive": true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validPolarityNamed = map[string]bool{"entity": true, "opponent": true}
var validPolaritySigns = map[string]bool{"negative": true, "positive": true, "any": true}
var validPolaritySides = map[string]bool{"yes": true, "no": true}
var validMarketTypes = map[string]bool{"winner": true, "spread": true, "total": true}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: copy, monitor, server, archive, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Polymarket endpoints
	if c.Polymarket.DataHost == "" {
		errs = append(errs, "polymarket: data_host must not be empty")
	}
	if c.Polymarket.PollRateLimit <= 0 {
		errs = append(errs, "polymarket: poll_rate_limit must be > 0")
	}
	if c.Polymarket.PollBurst < 1 {
		errs = append(errs, "polymarket: poll_burst must be >= 1")
	}

	// Kalshi — credentials are required whenever orders could be placed for
	// real. Dry-run and monitor modes may run without them.
	needsKalshiAuth := (c.Mode == "copy" || c.Mode == "full") && !c.Copy.DryRun
	if c.Kalshi.BaseURL == "" {
		errs = append(errs, "kalshi: base_url must not be empty")
	}
	if needsKalshiAuth {
		if c.Kalshi.ApiKey == "" {
			errs = append(errs, "kalshi: api_key is required for live copying (mode "+c.Mode+", dry_run=false)")
		}
		if c.Kalshi.RsaPrivateKeyPath == "" {
			errs = append(errs, "kalshi: rsa_private_key_path is required for live copying")
		}
	}

	// Copy knobs
	if c.Copy.KellyFraction <= 0 || c.Copy.KellyFraction > 1 {
		errs = append(errs, fmt.Sprintf("copy: kelly_fraction must be in (0, 1], got %g", c.Copy.KellyFraction))
	}
	for _, p := range []struct {
		name string
		val  float64
	}{
		{"max_per_trade_pct", c.Copy.MaxPerTradePct},
		{"max_per_trader_pct", c.Copy.MaxPerTraderPct},
		{"max_total_exposure_pct", c.Copy.MaxTotalExposurePct},
	} {
		if p.val <= 0 || p.val > 1 {
			errs = append(errs, fmt.Sprintf("copy: %s must be in (0, 1], got %g", p.name, p.val))
		}
	}
	if c.Copy.MaxPerTradePct > c.Copy.MaxPerTraderPct {
		errs = append(errs, "copy: max_per_trade_pct must not exceed max_per_trader_pct")
	}
	if c.Copy.MaxPerTraderPct > c.Copy.MaxTotalExposurePct {
		errs = append(errs, "copy: max_per_trader_pct must not exceed max_total_exposure_pct")
	}
	if c.Copy.MaxPositionsPerMarket < 1 {
		errs = append(errs, "copy: max_positions_per_market must be >= 1")
	}
	if c.Copy.MaxSameSidePerMarket < 1 {
		errs = append(errs, "copy: max_same_side_per_market must be >= 1")
	}
	if c.Copy.MaxSameSidePerMarket > c.Copy.MaxPositionsPerMarket {
		errs = append(errs, "copy: max_same_side_per_market must not exceed max_positions_per_market")
	}
	if c.Copy.MinOrderSize < 0 {
		errs = append(errs, "copy: min_order_size must be >= 0")
	}
	if c.Copy.MaxOrderSize < 0 {
		errs = append(errs, "copy: max_order_size must be >= 0 (0 disables)")
	}
	if c.Copy.MaxOrderSize > 0 && c.Copy.MaxOrderSize < c.Copy.MinOrderSize {
		errs = append(errs, "copy: max_order_size must not be below min_order_size")
	}
	if c.Copy.WhaleAvgWindow < 1 {
		errs = append(errs, "copy: whale_avg_window must be >= 1")
	}
	if c.Copy.BankrollFallback <= 0 {
		errs = append(errs, "copy: bankroll_fallback must be > 0")
	}

	// Matching
	if c.Matching.LineTolerance < 0 {
		errs = append(errs, "matching: line_tolerance must be >= 0")
	}
	if c.Matching.MaxIndexAge.Duration <= 0 {
		errs = append(errs, "matching: max_index_age must be > 0")
	}
	for i, r := range c.Matching.Polarity {
		if !validMarketTypes[r.Type] {
			errs = append(errs, fmt.Sprintf("matching: polarity[%d]: unknown type %q", i, r.Type))
		}
		if _, err := regexp.Compile(r.Pattern); err != nil {
			errs = append(errs, fmt.Sprintf("matching: polarity[%d]: invalid pattern: %v", i, err))
		}
		if !validPolarityNamed[r.Named] {
			errs = append(errs, fmt.Sprintf("matching: polarity[%d]: named must be entity or opponent, got %q", i, r.Named))
		}
		if r.LineSign != "" && !validPolaritySigns[r.LineSign] {
			errs = append(errs, fmt.Sprintf("matching: polarity[%d]: line_sign must be negative, positive, or any, got %q", i, r.LineSign))
		}
		if !validPolaritySides[r.Side] {
			errs = append(errs, fmt.Sprintf("matching: polarity[%d]: side must be yes or no, got %q", i, r.Side))
		}
	}

	// Traders — required for any mode that processes the feed.
	needsTraders := c.Mode == "copy" || c.Mode == "monitor" || c.Mode == "full"
	if needsTraders && len(c.Traders) == 0 {
		errs = append(errs, "traders: at least one tracked trader is required for mode "+c.Mode)
	}
	seen := map[string]bool{}
	for i, t := range c.Traders {
		if !common.IsHexAddress(t.Address) {
			errs = append(errs, fmt.Sprintf("traders[%d]: invalid wallet address %q", i, t.Address))
			continue
		}
		key := strings.ToLower(common.HexToAddress(t.Address).Hex())
		if seen[key] {
			errs = append(errs, fmt.Sprintf("traders[%d]: duplicate address %s", i, t.Address))
		}
		seen[key] = true
		if t.BankrollEstimate < 0 {
			errs = append(errs, fmt.Sprintf("traders[%d]: bankroll_estimate must be >= 0", i))
		}
	}

	// Feeds
	if c.Feeds.PollInterval.Duration <= 0 {
		errs = append(errs, "feeds: poll_interval must be > 0")
	}
	if c.Feeds.IndexRefreshInterval.Duration <= 0 {
		errs = append(errs, "feeds: index_refresh_interval must be > 0")
	}
	if c.Feeds.Workers < 1 {
		errs = append(errs, "feeds: workers must be >= 1")
	}

	// Dispatch
	if c.Dispatch.MaxAttempts < 1 {
		errs = append(errs, "dispatch: max_attempts must be >= 1")
	}
	if c.Dispatch.BackoffBase.Duration <= 0 {
		errs = append(errs, "dispatch: backoff_base must be > 0")
	}
	if c.Dispatch.BackoffMax.Duration < c.Dispatch.BackoffBase.Duration {
		errs = append(errs, "dispatch: backoff_max must be >= backoff_base")
	}
	if c.Dispatch.OrderRateLimit > 0 && c.Dispatch.OrderRateWindow.Duration <= 0 {
		errs = append(errs, "dispatch: order_rate_window must be > 0 when order_rate_limit is set")
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

	// S3 — required only when archival is on.
	if c.Pipeline.ArchiveEnabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when archival is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archival is enabled")
		}
		if c.Pipeline.ArchiveRetentionDays < 1 {
			errs = append(errs, "pipeline: archive_retention_days must be >= 1")
		}
		if c.Pipeline.ArchiveInterval.Duration <= 0 {
			errs = append(errs, "pipeline: archive_interval must be > 0")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
