package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/alanyoungcy/alphamarket/internal/domain"
	"github.com/alanyoungcy/alphamarket/internal/format"
	"github.com/alanyoungcy/alphamarket/internal/query"
	"github.com/alanyoungcy/alphamarket/internal/view"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

// MarketReader is the read surface of the alpha market contract.
type MarketReader interface {
	Address() common.Address
	GetAlpha(ctx context.Context, id uint64) (domain.Alpha, error)
	GetAlphas(ctx context.Context, start, count uint64) ([]domain.Alpha, error)
	NextAlphaID(ctx context.Context) (uint64, error)
	GetLiveStats(ctx context.Context, id uint64) (domain.LiveStats, error)
	GetOpponents(ctx context.Context, id uint64) ([]domain.Opponent, error)
	GetUserStakeInAlpha(ctx context.Context, id uint64, user common.Address) (*big.Int, error)
	GetWithdrawableAmount(ctx context.Context, user common.Address) (*big.Int, error)
	IsAlphaResolved(ctx context.Context, id uint64) (bool, error)
	PriceRequested(ctx context.Context, id uint64) (bool, error)
	UserBets(ctx context.Context, user common.Address) (*big.Int, error)
	StakeToken(ctx context.Context) (common.Address, error)
	StakeTokenDecimals(ctx context.Context) (uint8, error)
}

// TokenReader is the read surface of an ERC-20 token.
type TokenReader interface {
	BalanceOf(ctx context.Context, token, account common.Address) (*big.Int, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	Decimals(ctx context.Context, token common.Address) (uint8, error)
	Symbol(ctx context.Context, token common.Address) (string, error)
	Name(ctx context.Context, token common.Address) (string, error)
}

// AlphaService serves every contract read through the shared cache.
type AlphaService struct {
	market   MarketReader
	tokens   TokenReader
	cache    *query.Cache
	policies Policies
	identity *IdentityService
	prices   *MarketService
	logger   *slog.Logger
	now      func() time.Time
}

// NewAlphaService creates an AlphaService. identity and prices may be nil,
// in which case detail pages are not enriched.
func NewAlphaService(
	market MarketReader,
	tokens TokenReader,
	cache *query.Cache,
	policies Policies,
	identity *IdentityService,
	prices *MarketService,
	logger *slog.Logger,
) *AlphaService {
	return &AlphaService{
		market:   market,
		tokens:   tokens,
		cache:    cache,
		policies: policies,
		identity: identity,
		prices:   prices,
		logger:   logger.With(slog.String("component", "alpha_service")),
		now:      time.Now,
	}
}

// SetClock overrides the wall clock. Tests only.
func (s *AlphaService) SetClock(now func() time.Time) {
	s.now = now
}

// MarketAddress returns the market contract address.
func (s *AlphaService) MarketAddress() common.Address {
	return s.market.Address()
}

// Alpha returns alpha id. A placeholder slot is reported as ErrNotFound.
func (s *AlphaService) Alpha(ctx context.Context, id uint64) (domain.Alpha, error) {
	a, err := query.FetchAs(ctx, s.cache, alphaKey(id), s.policies.Alpha, func(ctx context.Context) (domain.Alpha, error) {
		return s.market.GetAlpha(ctx, id)
	})
	if err != nil {
		return domain.Alpha{}, fmt.Errorf("alpha_service: alpha %d: %w", id, err)
	}
	if a.IsPlaceholder() {
		return domain.Alpha{}, fmt.Errorf("alpha_service: alpha %d: %w", id, domain.ErrNotFound)
	}
	return a, nil
}

// Alphas returns the raw ledger slots [start, start+count). count is capped
// at MaxListingPage.
func (s *AlphaService) Alphas(ctx context.Context, start, count uint64) ([]domain.Alpha, error) {
	if count == 0 {
		return []domain.Alpha{}, nil
	}
	if count > MaxListingPage {
		count = MaxListingPage
	}
	return s.scan(ctx, start, count)
}

func (s *AlphaService) scan(ctx context.Context, start, count uint64) ([]domain.Alpha, error) {
	alphas, err := query.FetchAs(ctx, s.cache, alphasKey(start, count), s.policies.Listing, func(ctx context.Context) ([]domain.Alpha, error) {
		return s.market.GetAlphas(ctx, start, count)
	})
	if err != nil {
		return nil, fmt.Errorf("alpha_service: alphas %d+%d: %w", start, count, err)
	}
	return alphas, nil
}

// Listing is one page of alpha cards with per-filter tallies.
type Listing struct {
	Filter view.Filter    `json:"filter"`
	Start  uint64         `json:"start"`
	Count  uint64         `json:"count"`
	Alphas []view.Summary `json:"alphas"`
	Counts view.Counts    `json:"counts"`
}

// List returns the page [start, start+count) filtered by f.
func (s *AlphaService) List(ctx context.Context, f view.Filter, start, count uint64) (Listing, error) {
	raw, err := s.Alphas(ctx, start, count)
	if err != nil {
		return Listing{}, err
	}
	return s.listing(ctx, raw, f, start, uint64(len(raw))), nil
}

// Mine returns the alphas created by creator among the first MineScanSize
// ledger slots.
func (s *AlphaService) Mine(ctx context.Context, creator common.Address, f view.Filter) (Listing, error) {
	raw, err := s.scan(ctx, 0, MineScanSize)
	if err != nil {
		return Listing{}, err
	}
	return s.listing(ctx, view.Mine(raw, creator), f, 0, MineScanSize), nil
}

func (s *AlphaService) listing(ctx context.Context, raw []domain.Alpha, f view.Filter, start, count uint64) Listing {
	now := s.now()
	dec := s.stakeDecimals(ctx)
	filtered := view.FilterAlphas(raw, f, now)
	out := Listing{
		Filter: f,
		Start:  start,
		Count:  count,
		Alphas: make([]view.Summary, 0, len(filtered)),
		Counts: view.CountAlphas(raw, now),
	}
	for _, a := range filtered {
		out.Alphas = append(out.Alphas, view.Summarize(a, dec, now))
	}
	return out
}

// NextAlphaID returns the id the next created alpha will get.
func (s *AlphaService) NextAlphaID(ctx context.Context) (uint64, error) {
	id, err := query.FetchAs(ctx, s.cache, nextIDKey(), s.policies.NextID, s.market.NextAlphaID)
	if err != nil {
		return 0, fmt.Errorf("alpha_service: next id: %w", err)
	}
	return id, nil
}

func (s *AlphaService) liveStatsFetcher(id uint64) func(context.Context) (domain.LiveStats, error) {
	return func(ctx context.Context) (domain.LiveStats, error) {
		return s.market.GetLiveStats(ctx, id)
	}
}

// LiveStats returns the pool aggregates of alpha id.
func (s *AlphaService) LiveStats(ctx context.Context, id uint64) (domain.LiveStats, error) {
	st, err := query.FetchAs(ctx, s.cache, liveStatsKey(id), s.policies.LiveStats, s.liveStatsFetcher(id))
	if err != nil {
		return domain.LiveStats{}, fmt.Errorf("alpha_service: live stats %d: %w", id, err)
	}
	return st, nil
}

// WatchLiveStats subscribes to the live stats of alpha id. The entry is
// revalidated in the background while the subscription is open.
func (s *AlphaService) WatchLiveStats(id uint64) *query.Subscription {
	fetch := s.liveStatsFetcher(id)
	return s.cache.Watch(liveStatsKey(id), s.policies.LiveStats, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	})
}

// Opponents returns the raw opponent slots of alpha id.
func (s *AlphaService) Opponents(ctx context.Context, id uint64) ([]domain.Opponent, error) {
	opps, err := query.FetchAs(ctx, s.cache, opponentsKey(id), s.policies.Alpha, func(ctx context.Context) ([]domain.Opponent, error) {
		return s.market.GetOpponents(ctx, id)
	})
	if err != nil {
		return nil, fmt.Errorf("alpha_service: opponents %d: %w", id, err)
	}
	return opps, nil
}

// UserStake returns user's stake in alpha id.
func (s *AlphaService) UserStake(ctx context.Context, id uint64, user common.Address) (*big.Int, error) {
	v, err := query.FetchAs(ctx, s.cache, userStakeKey(id, user), s.policies.Alpha, func(ctx context.Context) (*big.Int, error) {
		return s.market.GetUserStakeInAlpha(ctx, id, user)
	})
	if err != nil {
		return nil, fmt.Errorf("alpha_service: user stake %d: %w", id, err)
	}
	return v, nil
}

// Withdrawable returns the amount user can withdraw.
func (s *AlphaService) Withdrawable(ctx context.Context, user common.Address) (*big.Int, error) {
	v, err := query.FetchAs(ctx, s.cache, withdrawableKey(user), s.policies.Withdrawable, func(ctx context.Context) (*big.Int, error) {
		return s.market.GetWithdrawableAmount(ctx, user)
	})
	if err != nil {
		return nil, fmt.Errorf("alpha_service: withdrawable: %w", err)
	}
	return v, nil
}

// Resolved reports whether the oracle resolved alpha id.
func (s *AlphaService) Resolved(ctx context.Context, id uint64) (bool, error) {
	v, err := query.FetchAs(ctx, s.cache, resolvedKey(id), s.policies.Alpha, func(ctx context.Context) (bool, error) {
		return s.market.IsAlphaResolved(ctx, id)
	})
	if err != nil {
		return false, fmt.Errorf("alpha_service: resolved %d: %w", id, err)
	}
	return v, nil
}

// PriceRequested reports whether settlement was requested for alpha id.
func (s *AlphaService) PriceRequested(ctx context.Context, id uint64) (bool, error) {
	v, err := query.FetchAs(ctx, s.cache, priceRequestedKey(id), s.policies.Alpha, func(ctx context.Context) (bool, error) {
		return s.market.PriceRequested(ctx, id)
	})
	if err != nil {
		return false, fmt.Errorf("alpha_service: price requested %d: %w", id, err)
	}
	return v, nil
}

// UserBets returns the number of bets user has placed.
func (s *AlphaService) UserBets(ctx context.Context, user common.Address) (*big.Int, error) {
	v, err := query.FetchAs(ctx, s.cache, userBetsKey(user), s.policies.Account, func(ctx context.Context) (*big.Int, error) {
		return s.market.UserBets(ctx, user)
	})
	if err != nil {
		return nil, fmt.Errorf("alpha_service: user bets: %w", err)
	}
	return v, nil
}

// StakeToken returns the escrowed token and its decimals.
func (s *AlphaService) StakeToken(ctx context.Context) (domain.StakeToken, error) {
	st, err := query.FetchAs(ctx, s.cache, stakeTokenKey(), s.policies.StaticToken, func(ctx context.Context) (domain.StakeToken, error) {
		addr, err := s.market.StakeToken(ctx)
		if err != nil {
			return domain.StakeToken{}, err
		}
		dec, err := s.market.StakeTokenDecimals(ctx)
		if err != nil {
			return domain.StakeToken{}, err
		}
		return domain.StakeToken{Address: addr, Decimals: dec}, nil
	})
	if err != nil {
		return domain.StakeToken{}, fmt.Errorf("alpha_service: stake token: %w", err)
	}
	return st, nil
}

// stakeDecimals falls back to the contract's fixed decimals when the stake
// token cannot be read.
func (s *AlphaService) stakeDecimals(ctx context.Context) uint8 {
	st, err := s.StakeToken(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "stake token unavailable", slog.String("error", err.Error()))
		return domain.StakeDecimals
	}
	return st.Decimals
}

// Balance returns owner's balance of token.
func (s *AlphaService) Balance(ctx context.Context, owner, token common.Address) (*big.Int, error) {
	v, err := query.FetchAs(ctx, s.cache, balanceKey(owner, token), s.policies.Account, func(ctx context.Context) (*big.Int, error) {
		return s.tokens.BalanceOf(ctx, token, owner)
	})
	if err != nil {
		return nil, fmt.Errorf("alpha_service: balance: %w", err)
	}
	return v, nil
}

// Allowance returns what spender may move from owner's token balance.
func (s *AlphaService) Allowance(ctx context.Context, owner, token, spender common.Address) (*big.Int, error) {
	v, err := query.FetchAs(ctx, s.cache, allowanceKey(owner, token, spender), s.policies.Account, func(ctx context.Context) (*big.Int, error) {
		return s.tokens.Allowance(ctx, token, owner, spender)
	})
	if err != nil {
		return nil, fmt.Errorf("alpha_service: allowance: %w", err)
	}
	return v, nil
}

// MarketAllowance returns owner's stake token allowance for the market.
func (s *AlphaService) MarketAllowance(ctx context.Context, owner common.Address) (*big.Int, error) {
	st, err := s.StakeToken(ctx)
	if err != nil {
		return nil, err
	}
	return s.Allowance(ctx, owner, st.Address, s.market.Address())
}

// StakeBalance returns owner's stake token balance.
func (s *AlphaService) StakeBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	st, err := s.StakeToken(ctx)
	if err != nil {
		return nil, err
	}
	return s.Balance(ctx, owner, st.Address)
}

// TokenMetadata returns the static ERC-20 metadata of token.
func (s *AlphaService) TokenMetadata(ctx context.Context, token common.Address) (domain.TokenMetadata, error) {
	md, err := query.FetchAs(ctx, s.cache, erc20MetaKey(token), s.policies.StaticToken, func(ctx context.Context) (domain.TokenMetadata, error) {
		md := domain.TokenMetadata{Address: token}
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			md.Name, err = s.tokens.Name(gctx, token)
			return err
		})
		g.Go(func() (err error) {
			md.Symbol, err = s.tokens.Symbol(gctx, token)
			return err
		})
		g.Go(func() (err error) {
			md.Decimals, err = s.tokens.Decimals(gctx, token)
			return err
		})
		return md, g.Wait()
	})
	if err != nil {
		return domain.TokenMetadata{}, fmt.Errorf("alpha_service: token metadata: %w", err)
	}
	return md, nil
}

// Account is the wallet summary of one address.
type Account struct {
	Address      string `json:"address"`
	StakeToken   string `json:"stakeToken"`
	Balance      string `json:"balance"`
	Allowance    string `json:"allowance"`
	Withdrawable string `json:"withdrawable"`
	Bets         string `json:"bets"`
}

// Account reads the stake token position of addr.
func (s *AlphaService) Account(ctx context.Context, addr common.Address) (Account, error) {
	st, err := s.StakeToken(ctx)
	if err != nil {
		return Account{}, err
	}
	var bal, allow, withdraw, bets *big.Int
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		bal, err = s.Balance(gctx, addr, st.Address)
		return err
	})
	g.Go(func() (err error) {
		allow, err = s.Allowance(gctx, addr, st.Address, s.market.Address())
		return err
	})
	g.Go(func() (err error) {
		withdraw, err = s.Withdrawable(gctx, addr)
		return err
	})
	g.Go(func() (err error) {
		bets, err = s.UserBets(gctx, addr)
		return err
	})
	if err := g.Wait(); err != nil {
		return Account{}, err
	}
	dec := int32(st.Decimals)
	return Account{
		Address:      addr.Hex(),
		StakeToken:   st.Address.Hex(),
		Balance:      format.FormatTokenAmount(bal, dec),
		Allowance:    format.FormatTokenAmount(allow, dec),
		Withdrawable: format.FormatTokenAmount(withdraw, dec),
		Bets:         bets.String(),
	}, nil
}

// Detail assembles the detail page of alpha id as seen by caller. The zero
// caller yields the anonymous view. Profile and token enrichment is
// best-effort; contract reads are not.
func (s *AlphaService) Detail(ctx context.Context, id uint64, caller common.Address, loc *time.Location) (view.Detail, error) {
	a, err := s.Alpha(ctx, id)
	if err != nil {
		return view.Detail{}, err
	}

	in := view.DetailInput{Alpha: a, Caller: caller, Location: loc}
	var stats domain.LiveStats

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		in.Opponents, err = s.Opponents(gctx, id)
		return err
	})
	g.Go(func() (err error) {
		stats, err = s.LiveStats(gctx, id)
		return err
	})
	g.Go(func() (err error) {
		in.PriceRequested, err = s.PriceRequested(gctx, id)
		return err
	})
	g.Go(func() (err error) {
		in.Resolved, err = s.Resolved(gctx, id)
		return err
	})
	g.Go(func() error {
		st, err := s.StakeToken(gctx)
		if err != nil {
			return err
		}
		in.StakeDecimals = st.Decimals
		if caller == (common.Address{}) {
			return nil
		}
		if in.Allowance, err = s.Allowance(gctx, caller, st.Address, s.market.Address()); err != nil {
			return err
		}
		in.Balance, err = s.Balance(gctx, caller, st.Address)
		return err
	})
	if caller != (common.Address{}) {
		g.Go(func() (err error) {
			in.UserStake, err = s.UserStake(gctx, id, caller)
			return err
		})
	}
	if s.prices != nil {
		g.Go(func() error {
			in.Token = s.prices.Token(gctx, a.Asset.Hex())
			return nil
		})
	}
	if s.identity != nil {
		g.Go(func() error {
			in.CreatorProfile = s.identity.ProfileByAddress(gctx, a.Creator.Hex())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return view.Detail{}, fmt.Errorf("alpha_service: detail %d: %w", id, err)
	}
	in.LiveStats = &stats

	if s.identity != nil {
		fids := make([]uint64, 0, len(in.Opponents))
		for _, o := range view.SanitizeOpponents(in.Opponents) {
			fids = append(fids, o.FID)
		}
		in.Profiles = s.identity.ProfilesByFID(ctx, fids)
	}

	in.Now = s.now()
	return view.BuildDetail(in), nil
}
