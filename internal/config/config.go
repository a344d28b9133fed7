// Package config defines the alphad configuration and its validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration. Fields are populated from a TOML file
// and then overridden by ALPHA_* environment variables.
type Config struct {
	Chain    ChainConfig  `toml:"chain"`
	Wallet   WalletConfig `toml:"wallet"`
	Neynar   NeynarConfig `toml:"neynar"`
	Market   MarketConfig `toml:"market"`
	Cache    CacheConfig  `toml:"cache"`
	Redis    RedisConfig  `toml:"redis"`
	Server   ServerConfig `toml:"server"`
	Notify   NotifyConfig `toml:"notify"`
	Mode     string       `toml:"mode"`
	LogLevel string       `toml:"log_level"`
	// Timezone names the IANA zone used for expiry labels.
	Timezone string `toml:"timezone"`
}

// ChainConfig locates the RPC node and the market contract.
type ChainConfig struct {
	RPCURL        string   `toml:"rpc_url"`
	ChainID       int64    `toml:"chain_id"`
	MarketAddress string   `toml:"market_address"`
	ReceiptPoll   duration `toml:"receipt_poll"`
}

// WalletConfig holds the signing key source. Both fields empty means the
// service runs without a wallet and rejects writes.
type WalletConfig struct {
	PrivateKey  string   `toml:"private_key"`
	KeyfilePath string   `toml:"keyfile_path"`
	KeyPassword string   `toml:"key_password"`
	LockTTL     duration `toml:"lock_ttl"`
}

// NeynarConfig holds identity service access.
type NeynarConfig struct {
	APIKey  string   `toml:"api_key"`
	BaseURL string   `toml:"base_url"`
	Timeout duration `toml:"timeout"`
}

// MarketConfig holds token market-data access.
type MarketConfig struct {
	BaseURL        string   `toml:"base_url"`
	Network        string   `toml:"network"`
	Timeout        duration `toml:"timeout"`
	FeaturedTokens []string `toml:"featured_tokens"`
}

// CacheConfig holds the read freshness windows.
type CacheConfig struct {
	LiveStatsStale      duration `toml:"live_stats_stale"`
	LiveStatsRefetch    duration `toml:"live_stats_refetch"`
	AlphaStale          duration `toml:"alpha_stale"`
	ListingStale        duration `toml:"listing_stale"`
	ListingRefetch      duration `toml:"listing_refetch"`
	NextIDStale         duration `toml:"next_id_stale"`
	WithdrawableStale   duration `toml:"withdrawable_stale"`
	WithdrawableRefetch duration `toml:"withdrawable_refetch"`
	AccountStale        duration `toml:"account_stale"`
	StaticTokenStale    duration `toml:"static_token_stale"`
	IdentityStale       duration `toml:"identity_stale"`
	MarketStale         duration `toml:"market_stale"`
}

// RedisConfig holds Redis connection parameters. When disabled, locks, the
// signal bus and rate limits are process-local.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	Prefix     string `toml:"prefix"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey guards write routes when set.
	APIKey string `toml:"api_key"`
	// RateLimit is requests per minute per client IP; zero disables it.
	RateLimit int `toml:"rate_limit"`
}

// NotifyConfig routes finished writes to operator chat channels. Empty
// credentials disable the matching sender.
type NotifyConfig struct {
	DiscordWebhook string `toml:"discord_webhook"`
	TelegramToken  string `toml:"telegram_token"`
	TelegramChatID string `toml:"telegram_chat_id"`
	// Events filters by state ("failed") or kind and state ("bet.confirmed").
	Events []string `toml:"events"`
}

// duration is a time.Duration that decodes from TOML strings like "30s".
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns the built-in configuration. They match
// config.example.toml.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			RPCURL:      "https://mainnet.base.org",
			ChainID:     8453,
			ReceiptPoll: duration{2 * time.Second},
		},
		Wallet: WalletConfig{
			LockTTL: duration{15 * time.Minute},
		},
		Neynar: NeynarConfig{
			BaseURL: "https://api.neynar.com",
			Timeout: duration{10 * time.Second},
		},
		Market: MarketConfig{
			BaseURL: "https://api.geckoterminal.com/api/v2",
			Network: "base",
			Timeout: duration{10 * time.Second},
			FeaturedTokens: []string{
				"0xcbD06E5A2B0C65597161de254AA074E489dEb510",
				"0x1bc0c42215582d5a085795f4badbac3ff36d1bcb",
				"0x9cb41fd9dc6891bae8187029461bfaadf6cc0c69",
				"0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
				"0x4200000000000000000000000000000000000006",
			},
		},
		Cache: CacheConfig{
			LiveStatsStale:      duration{15 * time.Second},
			LiveStatsRefetch:    duration{30 * time.Second},
			AlphaStale:          duration{30 * time.Second},
			ListingStale:        duration{30 * time.Second},
			ListingRefetch:      duration{time.Minute},
			NextIDStale:         duration{time.Minute},
			WithdrawableStale:   duration{30 * time.Second},
			WithdrawableRefetch: duration{time.Minute},
			AccountStale:        duration{30 * time.Second},
			StaticTokenStale:    duration{5 * time.Minute},
			IdentityStale:       duration{5 * time.Minute},
			MarketStale:         duration{10 * time.Second},
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			Prefix:     "alphamarket:",
		},
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
			RateLimit:   600,
		},
		Notify: NotifyConfig{
			Events: []string{"confirmed", "failed"},
		},
		Mode:     "serve",
		LogLevel: "info",
		Timezone: "America/New_York",
	}
}

var validModes = map[string]bool{
	"serve":    true,
	"readonly": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks c and returns one error listing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, readonly)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("unknown timezone %q", c.Timezone))
	}

	if c.Chain.RPCURL == "" {
		errs = append(errs, "chain: rpc_url must not be empty")
	}
	if c.Chain.ChainID <= 0 {
		errs = append(errs, "chain: chain_id must be positive")
	}
	if !common.IsHexAddress(c.Chain.MarketAddress) {
		errs = append(errs, fmt.Sprintf("chain: market_address %q is not a hex address", c.Chain.MarketAddress))
	}

	if c.Wallet.KeyfilePath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when keyfile_path is set")
	}
	if c.Wallet.LockTTL.Duration <= 0 {
		errs = append(errs, "wallet: lock_ttl must be positive")
	}

	if c.Neynar.BaseURL == "" {
		errs = append(errs, "neynar: base_url must not be empty")
	}
	if c.Market.BaseURL == "" {
		errs = append(errs, "market: base_url must not be empty")
	}
	if c.Market.Network == "" {
		errs = append(errs, "market: network must not be empty")
	}
	for _, t := range c.Market.FeaturedTokens {
		if !common.IsHexAddress(t) {
			errs = append(errs, fmt.Sprintf("market: featured token %q is not a hex address", t))
		}
	}

	if c.Cache.LiveStatsStale.Duration <= 0 || c.Cache.AlphaStale.Duration <= 0 || c.Cache.ListingStale.Duration <= 0 {
		errs = append(errs, "cache: stale windows must be positive")
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, "server: rate_limit must be >= 0")
	}

	if c.Notify.TelegramToken != "" && c.Notify.TelegramChatID == "" {
		errs = append(errs, "notify: telegram_chat_id is required when telegram_token is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// HasWallet reports whether a signing key source is configured.
func (c *Config) HasWallet() bool {
	return c.Wallet.PrivateKey != "" || c.Wallet.KeyfilePath != ""
}

// Location resolves Timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
