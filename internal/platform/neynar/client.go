// Package neynar is a REST client for the Neynar identity API. It resolves
// social profiles by FID or by wallet address.
package neynar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/alphamarket/internal/domain"
)

// DefaultBaseURL is the public Neynar API root.
const DefaultBaseURL = "https://api.neynar.com"

// Client calls the Neynar v2 user endpoints.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a Neynar client. An empty apiKey is allowed; every call
// then fails with domain.ErrIdentityKeyMissing.
func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetTimeout overrides the per-request HTTP timeout.
func (c *Client) SetTimeout(d time.Duration) {
	if d > 0 {
		c.httpClient.Timeout = d
	}
}

// HasKey reports whether an API key is configured.
func (c *Client) HasKey() bool {
	return c.apiKey != ""
}

// NormalizeFIDs drops non-positive values, dedupes and sorts.
func NormalizeFIDs(fids []uint64) []uint64 {
	out := make([]uint64, 0, len(fids))
	for _, f := range fids {
		if f > 0 {
			out = append(out, f)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// NormalizeAddresses lowercases, keeps only 0x-prefixed values, dedupes and
// sorts.
func NormalizeAddresses(addrs []string) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		a = strings.ToLower(strings.TrimSpace(a))
		if strings.HasPrefix(a, "0x") {
			out = append(out, a)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// UsersByFIDs returns the profiles for the given FIDs in upstream order.
// Any failure fails the whole batch.
func (c *Client) UsersByFIDs(ctx context.Context, fids []uint64) ([]domain.Profile, error) {
	fids = NormalizeFIDs(fids)
	if len(fids) == 0 {
		return []domain.Profile{}, nil
	}
	parts := make([]string, len(fids))
	for i, f := range fids {
		parts[i] = strconv.FormatUint(f, 10)
	}
	params := url.Values{}
	params.Set("fids", strings.Join(parts, ","))

	body, err := c.doGet(ctx, "/v2/farcaster/user/bulk?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("neynar: users by fid: %w", err)
	}

	var resp bulkUsersResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("neynar: decode users: %w", err)
	}
	profiles := make([]domain.Profile, 0, len(resp.Users))
	for _, u := range resp.Users {
		profiles = append(profiles, u.ToDomainProfile())
	}
	return profiles, nil
}

// UsersByAddresses returns the profiles that verified or custody each
// address, keyed by lowercased address. Addresses with no profile are
// absent from the map.
func (c *Client) UsersByAddresses(ctx context.Context, addrs []string) (map[string][]domain.Profile, error) {
	addrs = NormalizeAddresses(addrs)
	if len(addrs) == 0 {
		return map[string][]domain.Profile{}, nil
	}
	params := url.Values{}
	params.Set("addresses", strings.Join(addrs, ","))

	body, err := c.doGet(ctx, "/v2/farcaster/user/bulk-by-address/?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("neynar: users by address: %w", err)
	}

	var raw map[string][]APIUser
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("neynar: decode users by address: %w", err)
	}
	out := make(map[string][]domain.Profile, len(raw))
	for addr, users := range raw {
		if len(users) == 0 {
			continue
		}
		ps := make([]domain.Profile, 0, len(users))
		for _, u := range users {
			ps = append(ps, u.ToDomainProfile())
		}
		out[strings.ToLower(addr)] = ps
	}
	return out, nil
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	if c.apiKey == "" {
		return nil, domain.ErrIdentityKeyMissing
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("x-neynar-experimental", "false")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: http request: %v", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrUpstream, statusCode, bodyStr)
	}
}
