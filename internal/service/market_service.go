package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/alphamarket/internal/domain"
	"github.com/alanyoungcy/alphamarket/internal/query"
)

// TokenMarketClient looks up token market snapshots. It returns nil for
// unknown tokens and on failure.
type TokenMarketClient interface {
	Token(ctx context.Context, address string) *domain.TokenSnapshot
}

var errNoSnapshot = errors.New("no snapshot")

// MarketService caches token market snapshots for a short window. With a
// shared store, instances reuse each other's lookups.
type MarketService struct {
	client TokenMarketClient
	store  domain.TokenStore
	cache  *query.Cache
	policy query.Policy
	rec    UpstreamRecorder
	logger *slog.Logger
}

// NewMarketService creates a MarketService. store and rec may be nil.
func NewMarketService(client TokenMarketClient, store domain.TokenStore, cache *query.Cache, policy query.Policy, rec UpstreamRecorder, logger *slog.Logger) *MarketService {
	if rec == nil {
		rec = nopUpstream{}
	}
	return &MarketService{
		client: client,
		store:  store,
		cache:  cache,
		policy: policy,
		rec:    rec,
		logger: logger.With(slog.String("component", "market_service")),
	}
}

// Token returns the snapshot for address, or nil when none is available.
// A missing snapshot is cached like a present one.
func (s *MarketService) Token(ctx context.Context, address string) *domain.TokenSnapshot {
	addr := strings.ToLower(address)
	snap, err := query.FetchAs(ctx, s.cache, query.NewKey(keyToken, addr), s.policy, func(ctx context.Context) (*domain.TokenSnapshot, error) {
		return s.lookup(ctx, addr), nil
	})
	if err != nil {
		s.logger.DebugContext(ctx, "token snapshot unavailable",
			slog.String("address", addr),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return snap
}

func (s *MarketService) lookup(ctx context.Context, addr string) *domain.TokenSnapshot {
	if s.store != nil {
		snap, err := s.store.Get(ctx, addr)
		if err == nil {
			return &snap
		}
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "shared token store read failed", slog.String("error", err.Error()))
		}
	}

	start := time.Now()
	snap := s.client.Token(ctx, addr)
	var rerr error
	if snap == nil {
		rerr = errNoSnapshot
	}
	s.rec.RecordUpstream("geckoterminal", start, rerr)

	if snap != nil && s.store != nil {
		if err := s.store.Put(ctx, *snap, s.policy.StaleTime); err != nil {
			s.logger.WarnContext(ctx, "shared token store write failed", slog.String("error", err.Error()))
		}
	}
	return snap
}
