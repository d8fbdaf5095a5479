package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testTraderAddr = "0x1111111111111111111111111111111111111111"

// validConfig is the defaults plus the one thing they lack: a tracked trader.
func validConfig() Config {
	cfg := Defaults()
	cfg.Traders = []TraderConfig{{Address: testTraderAddr, Label: "whale-1"}}
	return cfg
}

func TestDefaultsValidateWithTraders(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown mode", func(c *Config) { c.Mode = "turbo" }, "unknown mode"},
		{"unknown log level", func(c *Config) { c.LogLevel = "verbose" }, "unknown log_level"},
		{"kelly out of range", func(c *Config) { c.Copy.KellyFraction = 1.5 }, "kelly_fraction"},
		{"trade cap above trader cap", func(c *Config) {
			c.Copy.MaxPerTradePct = 0.2
			c.Copy.MaxPerTraderPct = 0.1
		}, "max_per_trade_pct must not exceed"},
		{"same side above positions", func(c *Config) {
			c.Copy.MaxSameSidePerMarket = 5
			c.Copy.MaxPositionsPerMarket = 2
		}, "max_same_side_per_market"},
		{"no traders for copy", func(c *Config) { c.Traders = nil }, "at least one tracked trader"},
		{"bad trader address", func(c *Config) {
			c.Traders = []TraderConfig{{Address: "not-hex"}}
		}, "invalid wallet address"},
		{"duplicate trader", func(c *Config) {
			c.Traders = []TraderConfig{
				{Address: testTraderAddr},
				{Address: strings.ToUpper(testTraderAddr[2:])},
			}
		}, "duplicate address"},
		{"live copy without credentials", func(c *Config) {
			c.Mode = "copy"
			c.Copy.DryRun = false
		}, "api_key is required"},
		{"bad polarity rule", func(c *Config) {
			c.Matching.Polarity = []PolarityRule{{Type: "parlay", Pattern: "(", Named: "self", Side: "maybe"}}
		}, "polarity[0]"},
		{"archive without bucket", func(c *Config) {
			c.Pipeline.ArchiveEnabled = true
			c.S3.Bucket = ""
		}, "bucket must not be empty"},
		{"zero poll interval", func(c *Config) { c.Feeds.PollInterval = duration{} }, "poll_interval"},
		{"backoff max below base", func(c *Config) {
			c.Dispatch.BackoffBase = duration{time.Minute}
			c.Dispatch.BackoffMax = duration{time.Second}
		}, "backoff_max"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if tc.want != "" && !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestValidateAllowsDryRunWithoutCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "copy"
	cfg.Copy.DryRun = true
	cfg.Kalshi.ApiKey = ""
	cfg.Kalshi.RsaPrivateKeyPath = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("dry-run without credentials rejected: %v", err)
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
mode = "monitor"
log_level = "debug"

[copy]
kelly_fraction = 0.25
cooldown = "45m"

[[traders]]
address = "` + testTraderAddr + `"
label = "whale-1"
bankroll_estimate = 250000.0
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != "monitor" || cfg.LogLevel != "debug" {
		t.Errorf("top-level = %s/%s, want monitor/debug", cfg.Mode, cfg.LogLevel)
	}
	if cfg.Copy.KellyFraction != 0.25 {
		t.Errorf("kelly = %g, want file value 0.25", cfg.Copy.KellyFraction)
	}
	if cfg.Copy.Cooldown.Duration != 45*time.Minute {
		t.Errorf("cooldown = %s, want 45m", cfg.Copy.Cooldown.Duration)
	}
	// Untouched fields keep their defaults.
	if cfg.Copy.MaxPerTradePct != 0.02 {
		t.Errorf("max_per_trade_pct = %g, want default 0.02", cfg.Copy.MaxPerTradePct)
	}
	if len(cfg.Traders) != 1 || cfg.Traders[0].BankrollEstimate != 250000 {
		t.Errorf("traders = %+v", cfg.Traders)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("WBRIDGE_MODE", "server")
	t.Setenv("WBRIDGE_COPY_DRY_RUN", "false")
	t.Setenv("WBRIDGE_COPY_KELLY_FRACTION", "0.1")
	t.Setenv("WBRIDGE_FEEDS_POLL_INTERVAL", "7s")
	t.Setenv("WBRIDGE_KALSHI_SERIES_PREFIXES", "KXNBA, KXNHL")
	t.Setenv("WBRIDGE_TRADERS", testTraderAddr+":whale-1:1500000")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	if cfg.Mode != "server" {
		t.Errorf("mode = %q, want server", cfg.Mode)
	}
	if cfg.Copy.DryRun {
		t.Error("dry_run not overridden to false")
	}
	if cfg.Copy.KellyFraction != 0.1 {
		t.Errorf("kelly = %g, want 0.1", cfg.Copy.KellyFraction)
	}
	if cfg.Feeds.PollInterval.Duration != 7*time.Second {
		t.Errorf("poll interval = %s, want 7s", cfg.Feeds.PollInterval.Duration)
	}
	if len(cfg.Kalshi.SeriesPrefixes) != 2 || cfg.Kalshi.SeriesPrefixes[1] != "KXNHL" {
		t.Errorf("series prefixes = %v", cfg.Kalshi.SeriesPrefixes)
	}
	if len(cfg.Traders) != 1 {
		t.Fatalf("traders = %+v, want one from env", cfg.Traders)
	}
	tr := cfg.Traders[0]
	if tr.Address != testTraderAddr || tr.Label != "whale-1" || tr.BankrollEstimate != 1500000 {
		t.Errorf("trader = %+v", tr)
	}
}
