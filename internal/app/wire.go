package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/alanyoungcy/alphamarket/internal/cache/memory"
	"github.com/alanyoungcy/alphamarket/internal/cache/redis"
	"github.com/alanyoungcy/alphamarket/internal/chain"
	"github.com/alanyoungcy/alphamarket/internal/config"
	"github.com/alanyoungcy/alphamarket/internal/domain"
	"github.com/alanyoungcy/alphamarket/internal/observability"
	"github.com/alanyoungcy/alphamarket/internal/wallet"
	"github.com/ethereum/go-ethereum/common"
)

// rateWindow is the window of the per-client request limit.
const rateWindow = time.Minute

// Dependencies bundles the concrete infrastructure the modes run on. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Chain
	Backend chain.Backend
	ChainID *big.Int
	Market  *chain.Market
	ERC20   *chain.ERC20
	// Sender is nil when no wallet is configured.
	Sender *chain.Transactor

	// Shared state
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus
	TokenStore  domain.TokenStore

	// Health probes keyed by dependency name.
	Checks map[string]func(context.Context) error

	Metrics *observability.Metrics
}

// Wire dials the chain node and builds every dependency from cfg.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	client, err := chain.Dial(ctx, cfg.Chain.RPCURL)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: %w", err)
	}
	deps, cleanup, err := WireBackend(ctx, cfg, client, logger)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return deps, func() {
		cleanup()
		client.Close()
	}, nil
}

// WireBackend builds every dependency on an existing chain backend.
func WireBackend(ctx context.Context, cfg *config.Config, backend chain.Backend, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Backend: backend,
		ChainID: big.NewInt(cfg.Chain.ChainID),
		Market:  chain.NewMarket(common.HexToAddress(cfg.Chain.MarketAddress), backend),
		ERC20:   chain.NewERC20(backend),
		Checks:  map[string]func(context.Context) error{},
		Metrics: observability.NewMetrics("alphamarket", nil),
	}
	deps.Checks["chain"] = func(ctx context.Context) error {
		id, err := backend.ChainID(ctx)
		if err != nil {
			return err
		}
		if id.Cmp(deps.ChainID) != 0 {
			return fmt.Errorf("connected to chain %s, expected %s", id, deps.ChainID)
		}
		return nil
	}

	// --- Shared state: Redis when enabled, process-local otherwise ---
	if cfg.Redis.Enabled {
		rc, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			Prefix:     cfg.Redis.Prefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = rc.Close() })

		deps.RateLimiter = redis.NewRateLimiter(rc, max(cfg.Server.RateLimit, 1), rateWindow)
		deps.LockManager = redis.NewLockManager(rc)
		deps.SignalBus = redis.NewSignalBus(rc)
		deps.TokenStore = redis.NewTokenCache(rc)
		deps.Checks["redis"] = rc.Ping
	} else {
		logger.InfoContext(ctx, "wire: redis disabled, using process-local state")
		deps.RateLimiter = memory.NewRateLimiter(max(cfg.Server.RateLimit, 1), rateWindow)
		deps.LockManager = memory.NewLockManager()
		deps.SignalBus = memory.NewSignalBus()
		deps.TokenStore = memory.NewTokenStore()
	}

	// --- Wallet ---
	w, err := wallet.Load(wallet.Source{
		PrivateKey:  cfg.Wallet.PrivateKey,
		KeyfilePath: cfg.Wallet.KeyfilePath,
		Password:    cfg.Wallet.KeyPassword,
	})
	switch {
	case errors.Is(err, wallet.ErrNoKey):
		logger.WarnContext(ctx, "wire: no wallet configured, writes disabled")
	case err != nil:
		cleanup()
		return nil, nil, fmt.Errorf("wire: %w", err)
	default:
		tr := chain.NewTransactor(backend, w, deps.ChainID)
		tr.SetPollInterval(cfg.Chain.ReceiptPoll.Duration)
		deps.Sender = tr
		logger.InfoContext(ctx, "wire: wallet loaded", slog.String("address", w.Address().Hex()))
	}

	return deps, cleanup, nil
}
