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
// built-in defaults, applies OMENBOT_* environment variable overrides, and
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

// applyEnvOverrides reads well-known OMENBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Subgraph ──
	setStr(&cfg.Subgraph.URL, "OMENBOT_SUBGRAPH_URL")
	setStr(&cfg.Subgraph.APIKey, "OMENBOT_SUBGRAPH_API_KEY")

	// ── Tracker ──
	setStringSlice(&cfg.Tracker.Bettors, "OMENBOT_TRACKER_BETTORS")
	setDuration(&cfg.Tracker.SyncInterval, "OMENBOT_TRACKER_SYNC_INTERVAL")
	setInt(&cfg.Tracker.FetchLimit, "OMENBOT_TRACKER_FETCH_LIMIT")
	setDuration(&cfg.Tracker.MarketLookback, "OMENBOT_TRACKER_MARKET_LOOKBACK")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "OMENBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "OMENBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "OMENBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "OMENBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "OMENBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "OMENBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "OMENBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "OMENBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "OMENBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "OMENBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "OMENBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "OMENBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "OMENBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "OMENBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "OMENBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "OMENBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "OMENBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "OMENBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "OMENBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "OMENBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "OMENBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "OMENBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "OMENBOT_S3_FORCE_PATH_STYLE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "OMENBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "OMENBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "OMENBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "OMENBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "OMENBOT_MODE")
	setStr(&cfg.LogLevel, "OMENBOT_LOG_LEVEL")
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
