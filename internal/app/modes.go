package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/alphamarket/internal/config"
	"github.com/alanyoungcy/alphamarket/internal/notify"
	"github.com/alanyoungcy/alphamarket/internal/platform/geckoterminal"
	"github.com/alanyoungcy/alphamarket/internal/platform/neynar"
	"github.com/alanyoungcy/alphamarket/internal/query"
	"github.com/alanyoungcy/alphamarket/internal/server"
	"github.com/alanyoungcy/alphamarket/internal/server/handler"
	"github.com/alanyoungcy/alphamarket/internal/server/ws"
	"github.com/alanyoungcy/alphamarket/internal/service"
	"golang.org/x/sync/errgroup"
)

// shutdownTimeout bounds graceful shutdown of the server and in-flight
// writes.
const shutdownTimeout = 10 * time.Second

// Stack is the assembled service graph behind the HTTP server.
type Stack struct {
	Cache    *query.Cache
	Alphas   *service.AlphaService
	Identity *service.IdentityService
	Market   *service.MarketService
	// Tx is nil in read-only mode.
	Tx       *service.TxService
	Notifier *notify.Notifier
	Hub      *ws.Hub
	Server   *server.Server
}

// ServeMode runs the full gateway: reads, writes, push and metrics.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")
	return a.run(ctx, a.Build(deps, true))
}

// ReadOnlyMode serves reads and push only. Write routes are not registered
// even when a wallet is configured.
func (a *App) ReadOnlyMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting readonly mode")
	return a.run(ctx, a.Build(deps, false))
}

// Policies maps the configured freshness windows onto read policies.
func Policies(c config.CacheConfig) service.Policies {
	return service.Policies{
		LiveStats:    query.Policy{StaleTime: c.LiveStatsStale.Duration, RefetchInterval: c.LiveStatsRefetch.Duration},
		Alpha:        query.Policy{StaleTime: c.AlphaStale.Duration},
		Listing:      query.Policy{StaleTime: c.ListingStale.Duration, RefetchInterval: c.ListingRefetch.Duration},
		NextID:       query.Policy{StaleTime: c.NextIDStale.Duration},
		Withdrawable: query.Policy{StaleTime: c.WithdrawableStale.Duration, RefetchInterval: c.WithdrawableRefetch.Duration},
		Account:      query.Policy{StaleTime: c.AccountStale.Duration},
		StaticToken:  query.Policy{StaleTime: c.StaticTokenStale.Duration},
		Identity:     query.Policy{StaleTime: c.IdentityStale.Duration},
		Market:       query.Policy{StaleTime: c.MarketStale.Duration},
	}
}

// Build assembles services, handlers, hub and server on deps. Writes are
// wired only when writes is true.
func (a *App) Build(deps *Dependencies, writes bool) *Stack {
	cfg := a.cfg
	logger := a.logger
	policies := Policies(cfg.Cache)

	cache := query.New(logger, query.WithRecorder(deps.Metrics))

	nc := neynar.NewClient(cfg.Neynar.BaseURL, cfg.Neynar.APIKey)
	nc.SetTimeout(cfg.Neynar.Timeout.Duration)
	identity := service.NewIdentityService(nc, cache, policies.Identity, deps.Metrics, logger)

	gc := geckoterminal.NewClient(cfg.Market.BaseURL, cfg.Market.Network, logger)
	gc.SetTimeout(cfg.Market.Timeout.Duration)
	market := service.NewMarketService(gc, deps.TokenStore, cache, policies.Market, deps.Metrics, logger)

	alphas := service.NewAlphaService(deps.Market, deps.ERC20, cache, policies, identity, market, logger)

	st := &Stack{Cache: cache, Alphas: alphas, Identity: identity, Market: market}
	st.Notifier = NewNotifier(cfg.Notify, logger)

	listeners := service.Listeners{
		deps.Metrics,
		service.NewEventPublisher(deps.SignalBus, logger),
		service.NewLogListener(logger),
		st.Notifier,
	}
	ops := service.NewOperations()
	if writes {
		txd := service.TxDeps{
			Alphas:     alphas,
			Cache:      cache,
			Market:     deps.Market,
			ERC20:      deps.ERC20,
			Locks:      deps.LockManager,
			LockTTL:    cfg.Wallet.LockTTL.Duration,
			Operations: ops,
			Listener:   listeners,
		}
		if deps.Sender != nil {
			txd.Sender = deps.Sender
		}
		st.Tx = service.NewTxService(txd, logger)
	}

	st.Hub = ws.NewHub(deps.SignalBus, alphas, deps.Metrics.WSClients, logger, ws.Config{
		Mode:           cfg.Mode,
		StartedAt:      time.Now().UTC(),
		AllowedOrigins: cfg.Server.CORSOrigins,
	})

	checks := make(map[string]handler.Check, len(deps.Checks))
	for name, fn := range deps.Checks {
		checks[name] = fn
	}
	handlers := server.Handlers{
		Health:     handler.NewHealthHandler(cfg.Mode, checks, logger),
		Users:      handler.NewUsersHandler(identity, logger),
		Alphas:     handler.NewAlphaHandler(alphas, cfg.Location(), logger),
		Tokens:     handler.NewTokenHandler(market, alphas, cfg.Market.FeaturedTokens, logger),
		Operations: handler.NewOperationHandler(ops, deps.SignalBus, logger),
		Metrics:    deps.Metrics.Handler(),
	}
	if st.Tx != nil {
		handlers.Wallet = handler.NewWalletHandler(alphas, st.Tx, logger)
		handlers.Writes = handler.NewWriteHandler(st.Tx, logger)
	} else {
		handlers.Wallet = handler.NewWalletHandler(alphas, nil, logger)
	}

	st.Server = server.NewServer(server.Config{
		Port:        cfg.Server.Port,
		CORSOrigins: cfg.Server.CORSOrigins,
		APIKey:      cfg.Server.APIKey,
		RateLimit:   cfg.Server.RateLimit,
		RateWindow:  rateWindow,
	}, handlers, st.Hub, deps.RateLimiter, logger)

	return st
}

// NewNotifier builds the operator notifier from the configured channels.
func NewNotifier(c config.NotifyConfig, logger *slog.Logger) *notify.Notifier {
	var senders []notify.Sender
	if c.DiscordWebhook != "" {
		senders = append(senders, notify.NewDiscordSender(c.DiscordWebhook))
	}
	if c.TelegramToken != "" {
		senders = append(senders, notify.NewTelegramSender("", c.TelegramToken, c.TelegramChatID))
	}
	return notify.NewNotifier(senders, c.Events, logger)
}

// run starts the hub and server and shuts both down when ctx ends.
func (a *App) run(ctx context.Context, st *Stack) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := st.Hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(st.Server.Start)

	if st.Notifier != nil && st.Notifier.Enabled() {
		g.Go(func() error {
			if err := st.Notifier.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := st.Server.Shutdown(shutCtx)
		if st.Tx != nil {
			if txErr := st.Tx.Shutdown(shutCtx); txErr != nil {
				a.logger.Warn("app: in-flight writes did not finish",
					slog.String("error", txErr.Error()),
				)
			}
		}
		st.Cache.Close()
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}
