package neynar

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alanyoungcy/alphamarket/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsersByFIDs(t *testing.T) {
	var gotQuery, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/farcaster/user/bulk", r.URL.Path)
		gotQuery = r.URL.Query().Get("fids")
		gotKey = r.Header.Get("x-api-key")
		_, _ = w.Write([]byte(`{"users":[
			{"fid":3,"username":"dwr","display_name":"Dan","pfp_url":"https://img/3",
			 "custody_address":"0xABCDEF0000000000000000000000000000000001",
			 "profile":{"bio":{"text":"hello"}},
			 "verified_addresses":{"eth_addresses":["0xAAAA000000000000000000000000000000000002"]}}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret")
	profiles, err := c.UsersByFIDs(context.Background(), []uint64{3, 1, 3, 0})
	require.NoError(t, err)

	assert.Equal(t, "1,3", gotQuery)
	assert.Equal(t, "secret", gotKey)
	require.Len(t, profiles, 1)
	p := profiles[0]
	assert.Equal(t, uint64(3), p.FID)
	assert.Equal(t, "dwr", p.Username)
	assert.Equal(t, "hello", p.Bio)
	assert.Equal(t, "0xabcdef0000000000000000000000000000000001", p.CustodyAddress)
	assert.Equal(t, []string{"0xaaaa000000000000000000000000000000000002"}, p.VerifiedAddresses)
}

func TestUsersByAddresses(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/farcaster/user/bulk-by-address/", r.URL.Path)
		gotQuery = r.URL.Query().Get("addresses")
		_, _ = w.Write([]byte(`{
			"0xBBBB000000000000000000000000000000000001":[{"fid":9,"username":"nine"},{"fid":10,"username":"ten"}],
			"0xcccc000000000000000000000000000000000002":[]
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret")
	got, err := c.UsersByAddresses(context.Background(), []string{
		"0xCCCC000000000000000000000000000000000002",
		"0xbbbb000000000000000000000000000000000001",
		"not-an-address",
		"0xBBBB000000000000000000000000000000000001",
	})
	require.NoError(t, err)

	assert.Equal(t, "0xbbbb000000000000000000000000000000000001,0xcccc000000000000000000000000000000000002", gotQuery)
	require.Len(t, got, 1)
	users := got["0xbbbb000000000000000000000000000000000001"]
	require.Len(t, users, 2)
	assert.Equal(t, "nine", users[0].Username)
}

func TestEmptyInputSkipsRequest(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { calls++ }))
	defer srv.Close()

	c := NewClient(srv.URL, "secret")
	profiles, err := c.UsersByFIDs(context.Background(), []uint64{0})
	require.NoError(t, err)
	assert.Empty(t, profiles)
	byAddr, err := c.UsersByAddresses(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, byAddr)
	assert.Zero(t, calls)
}

func TestMissingKey(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "")
	assert.False(t, c.HasKey())
	_, err := c.UsersByFIDs(context.Background(), []uint64{1})
	assert.ErrorIs(t, err, domain.ErrIdentityKeyMissing)
}

func TestUpstreamStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, domain.ErrUnauthorized},
		{http.StatusTooManyRequests, domain.ErrRateLimited},
		{http.StatusBadGateway, domain.ErrUpstream},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tc.status)
		}))
		c := NewClient(srv.URL, "secret")
		_, err := c.UsersByFIDs(context.Background(), []uint64{1, 2})
		assert.ErrorIs(t, err, tc.want, "status %d", tc.status)
		srv.Close()
	}
}
