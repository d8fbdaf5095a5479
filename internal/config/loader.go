package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies WBRIDGE_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known WBRIDGE_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Polymarket ──
	setStr(&cfg.Polymarket.DataHost, "WBRIDGE_POLYMARKET_DATA_HOST")
	setStr(&cfg.Polymarket.GammaHost, "WBRIDGE_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.WsHost, "WBRIDGE_POLYMARKET_WS_HOST")
	setFloat64(&cfg.Polymarket.PollRateLimit, "WBRIDGE_POLYMARKET_POLL_RATE_LIMIT")
	setInt(&cfg.Polymarket.PollBurst, "WBRIDGE_POLYMARKET_POLL_BURST")

	// ── Kalshi ──
	setStr(&cfg.Kalshi.ApiKey, "WBRIDGE_KALSHI_API_KEY")
	setStr(&cfg.Kalshi.RsaPrivateKeyPath, "WBRIDGE_KALSHI_RSA_PRIVATE_KEY_PATH")
	setStr(&cfg.Kalshi.BaseURL, "WBRIDGE_KALSHI_BASE_URL")
	setStr(&cfg.Kalshi.WsURL, "WBRIDGE_KALSHI_WS_URL")
	setStringSlice(&cfg.Kalshi.SeriesPrefixes, "WBRIDGE_KALSHI_SERIES_PREFIXES")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "WBRIDGE_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "WBRIDGE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "WBRIDGE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "WBRIDGE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "WBRIDGE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "WBRIDGE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "WBRIDGE_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "WBRIDGE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "WBRIDGE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "WBRIDGE_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "WBRIDGE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "WBRIDGE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "WBRIDGE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "WBRIDGE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "WBRIDGE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "WBRIDGE_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "WBRIDGE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "WBRIDGE_S3_REGION")
	setStr(&cfg.S3.Bucket, "WBRIDGE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "WBRIDGE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "WBRIDGE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "WBRIDGE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "WBRIDGE_S3_FORCE_PATH_STYLE")

	// ── Copy ──
	setFloat64(&cfg.Copy.KellyFraction, "WBRIDGE_COPY_KELLY_FRACTION")
	setFloat64(&cfg.Copy.MaxPerTradePct, "WBRIDGE_COPY_MAX_PER_TRADE_PCT")
	setFloat64(&cfg.Copy.MaxPerTraderPct, "WBRIDGE_COPY_MAX_PER_TRADER_PCT")
	setFloat64(&cfg.Copy.MaxTotalExposurePct, "WBRIDGE_COPY_MAX_TOTAL_EXPOSURE_PCT")
	setInt(&cfg.Copy.MaxPositionsPerMarket, "WBRIDGE_COPY_MAX_POSITIONS_PER_MARKET")
	setInt(&cfg.Copy.MaxSameSidePerMarket, "WBRIDGE_COPY_MAX_SAME_SIDE_PER_MARKET")
	setFloat64(&cfg.Copy.MinOrderSize, "WBRIDGE_COPY_MIN_ORDER_SIZE")
	setFloat64(&cfg.Copy.MaxOrderSize, "WBRIDGE_COPY_MAX_ORDER_SIZE")
	setInt(&cfg.Copy.MaxTradesPerHour, "WBRIDGE_COPY_MAX_TRADES_PER_HOUR")
	setInt(&cfg.Copy.MaxTradesPerDay, "WBRIDGE_COPY_MAX_TRADES_PER_DAY")
	setDuration(&cfg.Copy.Cooldown, "WBRIDGE_COPY_COOLDOWN")
	setBool(&cfg.Copy.DryRun, "WBRIDGE_COPY_DRY_RUN")
	setFloat64(&cfg.Copy.BankrollFallback, "WBRIDGE_COPY_BANKROLL_FALLBACK")
	setDuration(&cfg.Copy.BankrollRefresh, "WBRIDGE_COPY_BANKROLL_REFRESH")
	setInt(&cfg.Copy.WhaleAvgWindow, "WBRIDGE_COPY_WHALE_AVG_WINDOW")

	// ── Matching ──
	setFloat64(&cfg.Matching.LineTolerance, "WBRIDGE_MATCHING_LINE_TOLERANCE")
	setDuration(&cfg.Matching.MaxIndexAge, "WBRIDGE_MATCHING_MAX_INDEX_AGE")

	// ── Traders ── comma-separated addr[:label[:bankroll]] triples.
	setTraders(&cfg.Traders, "WBRIDGE_TRADERS")

	// ── Feeds ──
	setDuration(&cfg.Feeds.PollInterval, "WBRIDGE_FEEDS_POLL_INTERVAL")
	setDuration(&cfg.Feeds.ErrorBackoff, "WBRIDGE_FEEDS_ERROR_BACKOFF")
	setBool(&cfg.Feeds.WsEnabled, "WBRIDGE_FEEDS_WS_ENABLED")
	setDuration(&cfg.Feeds.IndexRefreshInterval, "WBRIDGE_FEEDS_INDEX_REFRESH_INTERVAL")
	setInt(&cfg.Feeds.Workers, "WBRIDGE_FEEDS_WORKERS")
	setDuration(&cfg.Feeds.DedupTTL, "WBRIDGE_FEEDS_DEDUP_TTL")

	// ── Dispatch ──
	setInt(&cfg.Dispatch.MaxAttempts, "WBRIDGE_DISPATCH_MAX_ATTEMPTS")
	setDuration(&cfg.Dispatch.BackoffBase, "WBRIDGE_DISPATCH_BACKOFF_BASE")
	setDuration(&cfg.Dispatch.BackoffMax, "WBRIDGE_DISPATCH_BACKOFF_MAX")
	setInt(&cfg.Dispatch.OrderRateLimit, "WBRIDGE_DISPATCH_ORDER_RATE_LIMIT")
	setDuration(&cfg.Dispatch.OrderRateWindow, "WBRIDGE_DISPATCH_ORDER_RATE_WINDOW")

	// ── Pipeline ──
	setBool(&cfg.Pipeline.ArchiveEnabled, "WBRIDGE_PIPELINE_ARCHIVE_ENABLED")
	setInt(&cfg.Pipeline.ArchiveRetentionDays, "WBRIDGE_PIPELINE_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Pipeline.ArchiveInterval, "WBRIDGE_PIPELINE_ARCHIVE_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "WBRIDGE_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "WBRIDGE_SERVER_PORT")
	setStr(&cfg.Server.ApiKey, "WBRIDGE_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "WBRIDGE_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "WBRIDGE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "WBRIDGE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "WBRIDGE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "WBRIDGE_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "WBRIDGE_MODE")
	setStr(&cfg.LogLevel, "WBRIDGE_LOG_LEVEL")
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

// setTraders parses WBRIDGE_TRADERS entries of the form
// "0xabc...:whale-1:1500000" where label and bankroll are optional. A set
// variable replaces the whole TOML trader list.
func setTraders(dst *[]TraderConfig, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var traders []TraderConfig
	for _, entry := range strings.Split(v, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 3)
		t := TraderConfig{Address: strings.TrimSpace(parts[0])}
		if len(parts) > 1 {
			t.Label = strings.TrimSpace(parts[1])
		}
		if len(parts) > 2 {
			if f, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64); err == nil {
				t.BankrollEstimate = f
			}
		}
		traders = append(traders, t)
	}
	if len(traders) > 0 {
		*dst = traders
	}
}
