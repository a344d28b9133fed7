package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/alphamarket/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

// TokenMarket returns market data for a token, or nil when unavailable.
type TokenMarket interface {
	Token(ctx context.Context, address string) *domain.TokenSnapshot
}

// TokenMetadataReader reads static ERC-20 metadata from the chain.
type TokenMetadataReader interface {
	TokenMetadata(ctx context.Context, token common.Address) (domain.TokenMetadata, error)
}

// TokenHandler serves token market data.
type TokenHandler struct {
	market   TokenMarket
	meta     TokenMetadataReader
	featured []string
	logger   *slog.Logger
}

// NewTokenHandler creates a TokenHandler. featured lists the quick-pick
// addresses served by the index route.
func NewTokenHandler(market TokenMarket, meta TokenMetadataReader, featured []string, logger *slog.Logger) *TokenHandler {
	return &TokenHandler{market: market, meta: meta, featured: featured, logger: logHandler(logger, "tokens")}
}

type tokenResponse struct {
	Address  string                `json:"address"`
	Market   *domain.TokenSnapshot `json:"market"`
	Metadata *domain.TokenMetadata `json:"metadata,omitempty"`
}

// Get returns market data and on-chain metadata for one token. Either part
// may be missing; 404 only when both are.
// GET /api/tokens/{address}
func (h *TokenHandler) Get(w http.ResponseWriter, r *http.Request) {
	raw := pathParam(r, "address")
	addr, ok := domain.ParseAddress(raw)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid token address")
		return
	}
	resp := h.lookup(r.Context(), addr)
	if resp.Market == nil && resp.Metadata == nil {
		writeError(w, http.StatusNotFound, "token data unavailable")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Featured returns market data for the configured quick-pick tokens.
// Tokens without data are listed with a null market.
// GET /api/tokens
func (h *TokenHandler) Featured(w http.ResponseWriter, r *http.Request) {
	out := make([]tokenResponse, len(h.featured))
	g, ctx := errgroup.WithContext(r.Context())
	g.SetLimit(4)
	for i, raw := range h.featured {
		addr, ok := domain.ParseAddress(raw)
		if !ok {
			out[i] = tokenResponse{Address: strings.ToLower(raw)}
			continue
		}
		g.Go(func() error {
			out[i] = h.lookup(ctx, addr)
			return nil
		})
	}
	_ = g.Wait()
	writeJSON(w, http.StatusOK, map[string]any{"tokens": out})
}

func (h *TokenHandler) lookup(ctx context.Context, addr common.Address) tokenResponse {
	resp := tokenResponse{
		Address: strings.ToLower(addr.Hex()),
		Market:  h.market.Token(ctx, addr.Hex()),
	}
	if h.meta != nil {
		md, err := h.meta.TokenMetadata(ctx, addr)
		if err != nil {
			h.logger.DebugContext(ctx, "handler: token metadata unavailable",
				slog.String("token", resp.Address),
				slog.String("error", err.Error()),
			)
		} else {
			resp.Metadata = &md
		}
	}
	return resp
}
