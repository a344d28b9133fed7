package config

const redacted = "***"

// RedactedConfig returns a copy of cfg with secrets replaced by "***", for
// logging the active configuration.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Wallet.PrivateKey)
	redact(&out.Wallet.KeyPassword)
	redact(&out.Neynar.APIKey)
	redact(&out.Redis.Password)
	redact(&out.Server.APIKey)
	redact(&out.Notify.DiscordWebhook)
	redact(&out.Notify.TelegramToken)

	out.Server.CORSOrigins = append([]string(nil), cfg.Server.CORSOrigins...)
	out.Market.FeaturedTokens = append([]string(nil), cfg.Market.FeaturedTokens...)
	out.Notify.Events = append([]string(nil), cfg.Notify.Events...)
	return out
}

func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
