// Package config defines the top-level configuration for the trading engine
// and its satellite processes, and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by TRADECORE_* environment variables.
type Config struct {
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Engine   EngineConfig   `toml:"engine"`
	Gateway  GatewayConfig  `toml:"gateway"`
	Feed     FeedConfig     `toml:"feed"`
	QuoteWS  QuoteWSConfig  `toml:"quotews"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
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

// S3Config holds S3-compatible object storage parameters for the checkpoint
// archive. Disabled means pruned checkpoints are discarded instead of
// archived.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	KeyPrefix      string `toml:"key_prefix"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// EngineConfig holds the event-consumption and checkpoint parameters.
type EngineConfig struct {
	CommandStream       string   `toml:"command_stream"`
	ReplyStream         string   `toml:"reply_stream"`
	ReadBatch           int64    `toml:"read_batch"`
	ReadBlock           duration `toml:"read_block"`
	SnapshotInterval    duration `toml:"snapshot_interval"`
	CheckpointRetention int      `toml:"checkpoint_retention"`
}

// GatewayConfig holds the HTTP API parameters.
type GatewayConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	JWTSecret   string   `toml:"jwt_secret"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
	ReplyWait   duration `toml:"reply_wait"`
	// InitialBalance is the starting account balance in whole currency
	// units, credited at signup.
	InitialBalance float64 `toml:"initial_balance"`
}

// FeedConfig holds the market-data ingest parameters.
type FeedConfig struct {
	URL string `toml:"url"`
	// Symbols maps exchange symbols to engine asset names.
	Symbols map[string]string `toml:"symbols"`
}

// QuoteWSConfig holds the public quote websocket server parameters.
type QuoteWSConfig struct {
	Port   int      `toml:"port"`
	Assets []string `toml:"assets"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
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

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "tradecore",
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
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "tradecore-archive",
			KeyPrefix:      "checkpoints",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Engine: EngineConfig{
			CommandStream:       "engine-stream",
			ReplyStream:         "callback-queue",
			ReadBatch:           100,
			ReadBlock:           duration{5 * time.Second},
			SnapshotInterval:    duration{30 * time.Second},
			CheckpointRetention: 10,
		},
		Gateway: GatewayConfig{
			Port:           3000,
			CORSOrigins:    []string{"http://localhost:3001", "http://localhost:5173"},
			RateLimit:      100,
			RateWindow:     duration{time.Minute},
			ReplyWait:      duration{5 * time.Second},
			InitialBalance: 5000,
		},
		Feed: FeedConfig{
			URL: "wss://stream.binance.com:9443/ws",
			Symbols: map[string]string{
				"BTCUSDT": "BTC",
				"ETHUSDT": "ETH",
				"SOLUSDT": "SOL",
			},
		},
		QuoteWS: QuoteWSConfig{
			Port:   8080,
			Assets: []string{"BTC", "ETH", "SOL"},
		},
		Notify: NotifyConfig{
			Events: []string{"liquidation", "checkpoint_failed", "error"},
		},
		Mode:     "engine",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"engine":      true,
	"gateway":     true,
	"pricefeed":   true,
	"quoteserver": true,
	"full":        true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: engine, gateway, pricefeed, quoteserver, full)", c.Mode))
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
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

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when enabled")
		}
	}

	// Engine
	if c.Engine.CommandStream == "" {
		errs = append(errs, "engine: command_stream must not be empty")
	}
	if c.Engine.ReplyStream == "" {
		errs = append(errs, "engine: reply_stream must not be empty")
	}
	if c.Engine.ReadBatch < 1 {
		errs = append(errs, "engine: read_batch must be >= 1")
	}
	if c.Engine.SnapshotInterval.Duration <= 0 {
		errs = append(errs, "engine: snapshot_interval must be > 0")
	}
	if c.Engine.CheckpointRetention < 1 {
		errs = append(errs, "engine: checkpoint_retention must be >= 1")
	}

	// Gateway
	if mode == "gateway" || mode == "full" {
		if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
			errs = append(errs, fmt.Sprintf("gateway: port must be 1-65535, got %d", c.Gateway.Port))
		}
		if c.Gateway.JWTSecret == "" {
			errs = append(errs, "gateway: jwt_secret must be set")
		}
		if c.Gateway.ReplyWait.Duration <= 0 {
			errs = append(errs, "gateway: reply_wait must be > 0")
		}
		if c.Gateway.InitialBalance < 0 {
			errs = append(errs, "gateway: initial_balance must be >= 0")
		}
	}

	// Feed
	if mode == "pricefeed" || mode == "full" {
		if c.Feed.URL == "" {
			errs = append(errs, "feed: url must not be empty")
		}
		if len(c.Feed.Symbols) == 0 {
			errs = append(errs, "feed: at least one symbol mapping is required")
		}
	}

	// QuoteWS
	if mode == "quoteserver" || mode == "full" {
		if c.QuoteWS.Port <= 0 || c.QuoteWS.Port > 65535 {
			errs = append(errs, fmt.Sprintf("quotews: port must be 1-65535, got %d", c.QuoteWS.Port))
		}
		if len(c.QuoteWS.Assets) == 0 {
			errs = append(errs, "quotews: at least one asset is required")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
