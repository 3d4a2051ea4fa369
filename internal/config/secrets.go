package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg // shallow copy of the top-level struct

	// Postgres
	out.Postgres = cfg.Postgres
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	// Redis
	out.Redis = cfg.Redis
	redact(&out.Redis.Password)

	// S3
	out.S3 = cfg.S3
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	// Gateway
	out.Gateway = cfg.Gateway
	redact(&out.Gateway.JWTSecret)

	// Notify
	out.Notify = cfg.Notify
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Copy slices and maps so callers cannot mutate the original through the
	// redacted copy.
	if cfg.Notify.Events != nil {
		out.Notify.Events = make([]string, len(cfg.Notify.Events))
		copy(out.Notify.Events, cfg.Notify.Events)
	}
	if cfg.Gateway.CORSOrigins != nil {
		out.Gateway.CORSOrigins = make([]string, len(cfg.Gateway.CORSOrigins))
		copy(out.Gateway.CORSOrigins, cfg.Gateway.CORSOrigins)
	}
	if cfg.QuoteWS.Assets != nil {
		out.QuoteWS.Assets = make([]string, len(cfg.QuoteWS.Assets))
		copy(out.QuoteWS.Assets, cfg.QuoteWS.Assets)
	}
	if cfg.Feed.Symbols != nil {
		out.Feed.Symbols = make(map[string]string, len(cfg.Feed.Symbols))
		for k, v := range cfg.Feed.Symbols {
			out.Feed.Symbols[k] = v
		}
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
