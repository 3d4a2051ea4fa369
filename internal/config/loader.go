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
// built-in defaults, applies TRADECORE_* environment variable overrides, and
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

// applyEnvOverrides reads well-known TRADECORE_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "TRADECORE_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "TRADECORE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "TRADECORE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "TRADECORE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "TRADECORE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "TRADECORE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "TRADECORE_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "TRADECORE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "TRADECORE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "TRADECORE_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "TRADECORE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "TRADECORE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "TRADECORE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "TRADECORE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "TRADECORE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "TRADECORE_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "TRADECORE_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "TRADECORE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "TRADECORE_S3_REGION")
	setStr(&cfg.S3.Bucket, "TRADECORE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "TRADECORE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "TRADECORE_S3_SECRET_KEY")
	setStr(&cfg.S3.KeyPrefix, "TRADECORE_S3_KEY_PREFIX")
	setBool(&cfg.S3.UseSSL, "TRADECORE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "TRADECORE_S3_FORCE_PATH_STYLE")

	// ── Engine ──
	setStr(&cfg.Engine.CommandStream, "TRADECORE_ENGINE_COMMAND_STREAM")
	setStr(&cfg.Engine.ReplyStream, "TRADECORE_ENGINE_REPLY_STREAM")
	setInt64(&cfg.Engine.ReadBatch, "TRADECORE_ENGINE_READ_BATCH")
	setDuration(&cfg.Engine.ReadBlock, "TRADECORE_ENGINE_READ_BLOCK")
	setDuration(&cfg.Engine.SnapshotInterval, "TRADECORE_ENGINE_SNAPSHOT_INTERVAL")
	setInt(&cfg.Engine.CheckpointRetention, "TRADECORE_ENGINE_CHECKPOINT_RETENTION")

	// ── Gateway ──
	setInt(&cfg.Gateway.Port, "TRADECORE_GATEWAY_PORT")
	setStringSlice(&cfg.Gateway.CORSOrigins, "TRADECORE_GATEWAY_CORS_ORIGINS")
	setStr(&cfg.Gateway.JWTSecret, "TRADECORE_GATEWAY_JWT_SECRET")
	setInt(&cfg.Gateway.RateLimit, "TRADECORE_GATEWAY_RATE_LIMIT")
	setDuration(&cfg.Gateway.RateWindow, "TRADECORE_GATEWAY_RATE_WINDOW")
	setDuration(&cfg.Gateway.ReplyWait, "TRADECORE_GATEWAY_REPLY_WAIT")
	setFloat64(&cfg.Gateway.InitialBalance, "TRADECORE_GATEWAY_INITIAL_BALANCE")

	// ── Feed ──
	setStr(&cfg.Feed.URL, "TRADECORE_FEED_URL")

	// ── QuoteWS ──
	setInt(&cfg.QuoteWS.Port, "TRADECORE_QUOTEWS_PORT")
	setStringSlice(&cfg.QuoteWS.Assets, "TRADECORE_QUOTEWS_ASSETS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "TRADECORE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TRADECORE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "TRADECORE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "TRADECORE_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "TRADECORE_MODE")
	setStr(&cfg.LogLevel, "TRADECORE_LOG_LEVEL")
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

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
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
