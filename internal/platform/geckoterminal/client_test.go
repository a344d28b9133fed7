package geckoterminal

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTokenParsesAttributes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/networks/base/tokens/0x4200000000000000000000000000000000000006", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":{"attributes":{
			"address":"0x4200000000000000000000000000000000000006",
			"name":"Wrapped Ether","symbol":"WETH","decimals":18,
			"image_url":"https://img/weth.png",
			"price_usd":"3512.120000","market_cap_usd":null,
			"volume_usd":{"h24":"-5"}
		}}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "base", quietLogger())
	snap := c.Token(context.Background(), "0x4200000000000000000000000000000000000006")
	require.NotNil(t, snap)
	assert.Equal(t, "WETH", snap.Symbol)
	assert.Equal(t, 18, snap.Decimals)
	assert.Equal(t, "3512.12", snap.PriceUSD)
	assert.Equal(t, "0", snap.MarketCapUSD)
	assert.Equal(t, "0", snap.Volume24hUSD)
}

func TestTokenFailuresReturnNil(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"not found": func(w http.ResponseWriter, r *http.Request) { http.NotFound(w, r) },
		"server error": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		},
		"bad json":      func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("{")) },
		"no attributes": func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`{"data":null}`)) },
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()
			c := NewClient(srv.URL, "", quietLogger())
			assert.Nil(t, c.Token(context.Background(), "0xdead"))
		})
	}
}

func TestTokenUnreachable(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "base", quietLogger())
	assert.Nil(t, c.Token(context.Background(), "0xdead"))
}
