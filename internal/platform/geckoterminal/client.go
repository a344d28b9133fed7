// Package geckoterminal fetches token market snapshots from the
// GeckoTerminal public API. Lookups are best-effort: every failure yields a
// nil snapshot and a log line.
package geckoterminal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alanyoungcy/alphamarket/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	// DefaultBaseURL is the public GeckoTerminal v2 root.
	DefaultBaseURL = "https://api.geckoterminal.com/api/v2"
	// DefaultNetwork is the network slug of the deployment chain.
	DefaultNetwork = "base"
)

type tokenResponse struct {
	Data *struct {
		Attributes *struct {
			Address      string  `json:"address"`
			Name         string  `json:"name"`
			Symbol       string  `json:"symbol"`
			Decimals     int     `json:"decimals"`
			ImageURL     string  `json:"image_url"`
			PriceUSD     *string `json:"price_usd"`
			MarketCapUSD *string `json:"market_cap_usd"`
			VolumeUSD    struct {
				H24 *string `json:"h24"`
			} `json:"volume_usd"`
		} `json:"attributes"`
	} `json:"data"`
}

// Client is the GeckoTerminal REST client.
type Client struct {
	baseURL    string
	network    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client for one network.
func NewClient(baseURL, network string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if network == "" {
		network = DefaultNetwork
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		network: network,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logger.With(slog.String("component", "geckoterminal")),
	}
}

// SetTimeout overrides the per-request HTTP timeout.
func (c *Client) SetTimeout(d time.Duration) {
	if d > 0 {
		c.httpClient.Timeout = d
	}
}

// Token returns the market snapshot for address, or nil when the token is
// unknown or the lookup fails for any reason.
func (c *Client) Token(ctx context.Context, address string) *domain.TokenSnapshot {
	snap, err := c.fetchToken(ctx, address)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			c.logger.Warn("token lookup failed",
				slog.String("address", address),
				slog.String("error", err.Error()),
			)
		}
		return nil
	}
	return snap
}

func (c *Client) fetchToken(ctx context.Context, address string) (*domain.TokenSnapshot, error) {
	path := fmt.Sprintf("/networks/%s/tokens/%s", url.PathEscape(c.network), url.PathEscape(strings.ToLower(address)))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("geckoterminal: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geckoterminal: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("geckoterminal: read response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, domain.ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("geckoterminal: %w", domain.ErrRateLimited)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("geckoterminal: %w: HTTP %d", domain.ErrUpstream, resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("geckoterminal: decode token: %w", err)
	}
	if tr.Data == nil || tr.Data.Attributes == nil {
		return nil, domain.ErrNotFound
	}
	a := tr.Data.Attributes
	return &domain.TokenSnapshot{
		Address:      strings.ToLower(a.Address),
		Name:         a.Name,
		Symbol:       a.Symbol,
		Decimals:     a.Decimals,
		ImageURL:     a.ImageURL,
		PriceUSD:     nonNegative(a.PriceUSD),
		MarketCapUSD: nonNegative(a.MarketCapUSD),
		Volume24hUSD: nonNegative(a.VolumeUSD.H24),
	}, nil
}

// nonNegative normalises an upstream decimal string; missing, malformed or
// negative values become "0".
func nonNegative(s *string) string {
	if s == nil {
		return "0"
	}
	d, err := decimal.NewFromString(*s)
	if err != nil || d.IsNegative() {
		return "0"
	}
	return d.String()
}
