package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load merges the TOML file at path over Defaults and applies environment
// overrides. An empty path, or a missing file, uses defaults and the
// environment only. The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// .env is optional.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// applyEnvOverrides overwrites fields whose ALPHA_* variable is set.
// NEYNAR_API_KEY is honoured for compatibility with existing deployments.
func applyEnvOverrides(cfg *Config) {
	// chain
	setStr(&cfg.Chain.RPCURL, "ALPHA_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "ALPHA_CHAIN_CHAIN_ID")
	setStr(&cfg.Chain.MarketAddress, "ALPHA_CHAIN_MARKET_ADDRESS")
	setDuration(&cfg.Chain.ReceiptPoll, "ALPHA_CHAIN_RECEIPT_POLL")

	// wallet
	setStr(&cfg.Wallet.PrivateKey, "ALPHA_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.KeyfilePath, "ALPHA_WALLET_KEYFILE_PATH")
	setStr(&cfg.Wallet.KeyPassword, "ALPHA_WALLET_KEY_PASSWORD")
	setDuration(&cfg.Wallet.LockTTL, "ALPHA_WALLET_LOCK_TTL")

	// neynar
	setStr(&cfg.Neynar.APIKey, "NEYNAR_API_KEY")
	setStr(&cfg.Neynar.APIKey, "ALPHA_NEYNAR_API_KEY")
	setStr(&cfg.Neynar.BaseURL, "ALPHA_NEYNAR_BASE_URL")
	setDuration(&cfg.Neynar.Timeout, "ALPHA_NEYNAR_TIMEOUT")

	// market
	setStr(&cfg.Market.BaseURL, "ALPHA_MARKET_BASE_URL")
	setStr(&cfg.Market.Network, "ALPHA_MARKET_NETWORK")
	setDuration(&cfg.Market.Timeout, "ALPHA_MARKET_TIMEOUT")
	setStringSlice(&cfg.Market.FeaturedTokens, "ALPHA_MARKET_FEATURED_TOKENS")

	// cache
	setDuration(&cfg.Cache.LiveStatsStale, "ALPHA_CACHE_LIVE_STATS_STALE")
	setDuration(&cfg.Cache.LiveStatsRefetch, "ALPHA_CACHE_LIVE_STATS_REFETCH")
	setDuration(&cfg.Cache.AlphaStale, "ALPHA_CACHE_ALPHA_STALE")
	setDuration(&cfg.Cache.ListingStale, "ALPHA_CACHE_LISTING_STALE")
	setDuration(&cfg.Cache.ListingRefetch, "ALPHA_CACHE_LISTING_REFETCH")
	setDuration(&cfg.Cache.IdentityStale, "ALPHA_CACHE_IDENTITY_STALE")
	setDuration(&cfg.Cache.MarketStale, "ALPHA_CACHE_MARKET_STALE")

	// redis
	setBool(&cfg.Redis.Enabled, "ALPHA_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "ALPHA_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ALPHA_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ALPHA_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ALPHA_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ALPHA_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ALPHA_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.Prefix, "ALPHA_REDIS_PREFIX")

	// server
	setInt(&cfg.Server.Port, "ALPHA_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "ALPHA_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "ALPHA_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "ALPHA_SERVER_RATE_LIMIT")

	// notify
	setStr(&cfg.Notify.DiscordWebhook, "ALPHA_NOTIFY_DISCORD_WEBHOOK")
	setStr(&cfg.Notify.TelegramToken, "ALPHA_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ALPHA_NOTIFY_TELEGRAM_CHAT_ID")
	setStringSlice(&cfg.Notify.Events, "ALPHA_NOTIFY_EVENTS")

	setStr(&cfg.Mode, "ALPHA_MODE")
	setStr(&cfg.LogLevel, "ALPHA_LOG_LEVEL")
	setStr(&cfg.Timezone, "ALPHA_TIMEZONE")
}

// Typed env helpers. Each mutates dst only when the variable is set and
// parses.

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
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
