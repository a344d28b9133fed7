package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/alphamarket/internal/chain"
	"github.com/alanyoungcy/alphamarket/internal/domain"
	"github.com/alanyoungcy/alphamarket/internal/format"
	"github.com/alanyoungcy/alphamarket/internal/query"
	"github.com/alanyoungcy/alphamarket/internal/txflow"
	"github.com/alanyoungcy/alphamarket/internal/view"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/go-playground/validator/v10"
)

// DefaultLockTTL bounds how long one write may hold the wallet lock.
const DefaultLockTTL = 15 * time.Minute

// nativeToken is the conventional placeholder for the chain's native coin.
// It has no allowance.
var nativeToken = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// Sender builds, signs and broadcasts transactions for one account.
// chain.Transactor satisfies it.
type Sender interface {
	From() common.Address
	Build(ctx context.Context, to common.Address, data []byte, gasLimit uint64) (*types.Transaction, error)
	Sign(tx *types.Transaction) (*types.Transaction, error)
	Send(ctx context.Context, tx *types.Transaction) error
	WaitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// MarketWriter encodes market contract calls.
type MarketWriter interface {
	Address() common.Address
	PackCreate(a chain.CreateArgs) ([]byte, error)
	PackBetAgainst(id, bettorFID uint64) ([]byte, error)
	PackRequestSettlement(id uint64) ([]byte, error)
	PackFinalizeSettlement(id uint64) ([]byte, error)
	PackWithdraw() ([]byte, error)
}

// ApprovePacker encodes ERC-20 approve calls.
type ApprovePacker interface {
	PackApprove(spender common.Address, amount *big.Int) ([]byte, error)
}

var (
	_ Sender        = (*chain.Transactor)(nil)
	_ MarketWriter  = (*chain.Market)(nil)
	_ ApprovePacker = (*chain.ERC20)(nil)
)

// CreateInput is a create-prediction request in display units.
type CreateInput struct {
	Asset       string `json:"asset" validate:"required,eth_addr"`
	Ticker      string `json:"ticker" validate:"required,max=32"`
	TargetPrice string `json:"targetPrice" validate:"required,numeric"`
	Expiry      int64  `json:"expiry" validate:"required,gt=0"`
	Stake       string `json:"stake" validate:"required,numeric"`
	TokenURI    string `json:"tokenUri" validate:"max=2048"`
}

// BetInput is a bet-against request.
type BetInput struct {
	AlphaID uint64 `json:"alphaId"`
	FID     uint64 `json:"fid"`
}

// ApproveInput approves the market to spend stake tokens. With AlphaID set
// the amount is that alpha's required stake; otherwise Amount is parsed in
// stake token units.
type ApproveInput struct {
	AlphaID *uint64 `json:"alphaId"`
	Amount  string  `json:"amount" validate:"required_without=AlphaID,omitempty,numeric"`
}

// Pending is a write running in the background.
type Pending struct {
	lc   *txflow.Lifecycle
	done chan struct{}
	err  error
}

// ID returns the operation id.
func (p *Pending) ID() string {
	return p.lc.Snapshot().ID
}

// Operation returns the current operation record.
func (p *Pending) Operation() domain.Operation {
	return p.lc.Snapshot()
}

// Done is closed once the operation reached a terminal state.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the operation finishes or ctx ends. It returns the
// failure cause of a failed operation.
func (p *Pending) Wait(ctx context.Context) (domain.Operation, error) {
	select {
	case <-ctx.Done():
		return p.lc.Snapshot(), ctx.Err()
	case <-p.done:
		return p.lc.Snapshot(), p.err
	}
}

// TxService runs contract writes through the lifecycle state machine.
type TxService struct {
	alphas   *AlphaService
	cache    *query.Cache
	market   MarketWriter
	erc20    ApprovePacker
	sender   Sender
	locks    domain.LockManager
	lockTTL  time.Duration
	ops      *Operations
	listener txflow.Listener
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// TxDeps are the collaborators of a TxService. Sender may be nil, in which
// case every write fails with ErrNoWallet.
type TxDeps struct {
	Alphas     *AlphaService
	Cache      *query.Cache
	Market     MarketWriter
	ERC20      ApprovePacker
	Sender     Sender
	Locks      domain.LockManager
	LockTTL    time.Duration
	Operations *Operations
	Listener   txflow.Listener
}

// NewTxService creates a TxService.
func NewTxService(d TxDeps, logger *slog.Logger) *TxService {
	ctx, cancel := context.WithCancel(context.Background())
	ttl := d.LockTTL
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	ops := d.Operations
	if ops == nil {
		ops = NewOperations()
	}
	return &TxService{
		alphas:   d.Alphas,
		cache:    d.Cache,
		market:   d.Market,
		erc20:    d.ERC20,
		sender:   d.Sender,
		locks:    d.Locks,
		lockTTL:  ttl,
		ops:      ops,
		listener: d.Listener,
		validate: validator.New(),
		logger:   logger.With(slog.String("component", "tx_service")),
		now:      time.Now,
		baseCtx:  ctx,
		cancel:   cancel,
	}
}

// SetClock overrides the wall clock. Tests only.
func (s *TxService) SetClock(now func() time.Time) {
	s.now = now
}

// Operations returns the operation registry.
func (s *TxService) Operations() *Operations {
	return s.ops
}

// Wallet returns the sending account, or false when none is configured.
func (s *TxService) Wallet() (common.Address, bool) {
	if s.sender == nil {
		return common.Address{}, false
	}
	return s.sender.From(), true
}

// Shutdown waits for in-flight writes until ctx ends, then abandons them.
func (s *TxService) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	defer s.cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("tx_service: shutdown: %w", ctx.Err())
	}
}

func invalid(msg string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidInput, fmt.Sprintf(msg, args...))
}

func (s *TxService) from() (common.Address, error) {
	if s.sender == nil {
		return common.Address{}, domain.ErrNoWallet
	}
	return s.sender.From(), nil
}

// Create submits createAlphaERC20.
func (s *TxService) Create(ctx context.Context, in CreateInput) (*Pending, error) {
	owner, err := s.from()
	if err != nil {
		return nil, fmt.Errorf("tx_service: create: %w", err)
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("tx_service: create: %w", invalid("%v", err))
	}
	if in.Expiry <= s.now().Unix() {
		return nil, fmt.Errorf("tx_service: create: %w", invalid("expiry must be in the future"))
	}
	target, err := format.ParseTokenAmount(in.TargetPrice, domain.TargetDecimals)
	if err != nil || target.Sign() <= 0 {
		return nil, fmt.Errorf("tx_service: create: %w", invalid("target price %q", in.TargetPrice))
	}
	st, err := s.alphas.StakeToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("tx_service: create: %w", err)
	}
	stake, err := format.ParseTokenAmount(in.Stake, int32(st.Decimals))
	if err != nil || stake.Sign() <= 0 {
		return nil, fmt.Errorf("tx_service: create: %w", invalid("stake %q", in.Stake))
	}
	if err := s.requireFunds(ctx, owner, stake); err != nil {
		return nil, fmt.Errorf("tx_service: create: %w", err)
	}

	data, err := s.market.PackCreate(chain.CreateArgs{
		Asset:       common.HexToAddress(in.Asset),
		Ticker:      strings.TrimSpace(in.Ticker),
		TargetPrice: target,
		Expiry:      in.Expiry,
		Stake:       stake,
		TokenURI:    in.TokenURI,
	})
	if err != nil {
		return nil, fmt.Errorf("tx_service: create: %w", err)
	}
	targets := []query.Target{
		query.Prefix(keyAlphas),
		query.Exact(nextIDKey()),
		query.Prefix(keyAllowance, owner),
		query.Prefix(keyBalance, owner),
	}
	key := strings.ToLower(in.Asset) + ":" + strconv.FormatInt(in.Expiry, 10)
	return s.submit(ctx, domain.OpCreate, key, s.market.Address(), data, targets)
}

// Bet submits betAgainstERC20 for in.AlphaID.
func (s *TxService) Bet(ctx context.Context, in BetInput) (*Pending, error) {
	caller, err := s.from()
	if err != nil {
		return nil, fmt.Errorf("tx_service: bet: %w", err)
	}
	elig, a, err := s.eligibility(ctx, in.AlphaID, caller)
	if err != nil {
		return nil, fmt.Errorf("tx_service: bet: %w", err)
	}
	if !elig.CanBet {
		return nil, fmt.Errorf("tx_service: bet: %w", invalid("alpha %d does not accept bets from %s", in.AlphaID, caller.Hex()))
	}
	if err := s.requireFunds(ctx, caller, format.RequiredStake(a.Stake)); err != nil {
		return nil, fmt.Errorf("tx_service: bet: %w", err)
	}

	data, err := s.market.PackBetAgainst(in.AlphaID, in.FID)
	if err != nil {
		return nil, fmt.Errorf("tx_service: bet: %w", err)
	}
	id := in.AlphaID
	targets := []query.Target{
		query.Exact(alphaKey(id)),
		query.Exact(opponentsKey(id)),
		query.Exact(liveStatsKey(id)),
		query.Exact(userStakeKey(id, caller)),
		query.Exact(withdrawableKey(caller)),
		query.Prefix(keyAllowance, caller),
		query.Prefix(keyBalance, caller),
		query.Exact(userBetsKey(caller)),
		query.Prefix(keyAlphas),
	}
	return s.submit(ctx, domain.OpBet, strconv.FormatUint(id, 10), s.market.Address(), data, targets)
}

// RequestSettlement submits requestAlphaSettlement for id.
func (s *TxService) RequestSettlement(ctx context.Context, id uint64) (*Pending, error) {
	caller, err := s.from()
	if err != nil {
		return nil, fmt.Errorf("tx_service: request settlement: %w", err)
	}
	elig, _, err := s.eligibility(ctx, id, caller)
	if err != nil {
		return nil, fmt.Errorf("tx_service: request settlement: %w", err)
	}
	if !elig.CanRequestSettlement {
		return nil, fmt.Errorf("tx_service: request settlement: %w", invalid("alpha %d is not awaiting settlement", id))
	}
	data, err := s.market.PackRequestSettlement(id)
	if err != nil {
		return nil, fmt.Errorf("tx_service: request settlement: %w", err)
	}
	targets := []query.Target{
		query.Exact(alphaKey(id)),
		query.Exact(priceRequestedKey(id)),
		query.Exact(resolvedKey(id)),
	}
	return s.submit(ctx, domain.OpRequestSettlement, strconv.FormatUint(id, 10), s.market.Address(), data, targets)
}

// FinalizeSettlement submits finalizeAlphaSettlement for id.
func (s *TxService) FinalizeSettlement(ctx context.Context, id uint64) (*Pending, error) {
	caller, err := s.from()
	if err != nil {
		return nil, fmt.Errorf("tx_service: finalize: %w", err)
	}
	elig, _, err := s.eligibility(ctx, id, caller)
	if err != nil {
		return nil, fmt.Errorf("tx_service: finalize: %w", err)
	}
	if !elig.CanFinalize {
		return nil, fmt.Errorf("tx_service: finalize: %w", invalid("alpha %d is not resolved", id))
	}
	data, err := s.market.PackFinalizeSettlement(id)
	if err != nil {
		return nil, fmt.Errorf("tx_service: finalize: %w", err)
	}
	targets := []query.Target{
		query.Exact(alphaKey(id)),
		query.Exact(resolvedKey(id)),
		query.Exact(liveStatsKey(id)),
		query.Prefix(keyWithdrawable),
		query.Prefix(keyAlphas),
	}
	return s.submit(ctx, domain.OpFinalize, strconv.FormatUint(id, 10), s.market.Address(), data, targets)
}

// Withdraw submits withdrawToken for the wallet.
func (s *TxService) Withdraw(ctx context.Context) (*Pending, error) {
	caller, err := s.from()
	if err != nil {
		return nil, fmt.Errorf("tx_service: withdraw: %w", err)
	}
	amount, err := s.alphas.Withdrawable(ctx, caller)
	if err != nil {
		return nil, fmt.Errorf("tx_service: withdraw: %w", err)
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("tx_service: withdraw: %w", invalid("nothing to withdraw"))
	}
	data, err := s.market.PackWithdraw()
	if err != nil {
		return nil, fmt.Errorf("tx_service: withdraw: %w", err)
	}
	targets := []query.Target{
		query.Exact(withdrawableKey(caller)),
		query.Prefix(keyBalance, caller),
	}
	return s.submit(ctx, domain.OpWithdraw, strings.ToLower(caller.Hex()), s.market.Address(), data, targets)
}

// Approve submits approve(market, amount) on the stake token.
func (s *TxService) Approve(ctx context.Context, in ApproveInput) (*Pending, error) {
	owner, err := s.from()
	if err != nil {
		return nil, fmt.Errorf("tx_service: approve: %w", err)
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("tx_service: approve: %w", invalid("%v", err))
	}
	st, err := s.alphas.StakeToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("tx_service: approve: %w", err)
	}
	if st.Address == nativeToken {
		return nil, fmt.Errorf("tx_service: approve: %w", invalid("native token needs no approval"))
	}

	var amount *big.Int
	if in.AlphaID != nil {
		a, err := s.alphas.Alpha(ctx, *in.AlphaID)
		if err != nil {
			return nil, fmt.Errorf("tx_service: approve: %w", err)
		}
		amount = format.RequiredStake(a.Stake)
	} else {
		amount, err = format.ParseTokenAmount(in.Amount, int32(st.Decimals))
		if err != nil {
			return nil, fmt.Errorf("tx_service: approve: %w", invalid("amount %q", in.Amount))
		}
	}

	spender := s.market.Address()
	data, err := s.erc20.PackApprove(spender, amount)
	if err != nil {
		return nil, fmt.Errorf("tx_service: approve: %w", err)
	}
	targets := []query.Target{query.Exact(allowanceKey(owner, st.Address, spender))}
	key := strings.ToLower(st.Address.Hex()) + ":" + strings.ToLower(spender.Hex())
	return s.submit(ctx, domain.OpApprove, key, st.Address, data, targets)
}

func (s *TxService) eligibility(ctx context.Context, id uint64, caller common.Address) (view.Eligibility, domain.Alpha, error) {
	a, err := s.alphas.Alpha(ctx, id)
	if err != nil {
		return view.Eligibility{}, domain.Alpha{}, err
	}
	opps, err := s.alphas.Opponents(ctx, id)
	if err != nil {
		return view.Eligibility{}, domain.Alpha{}, err
	}
	requested, err := s.alphas.PriceRequested(ctx, id)
	if err != nil {
		return view.Eligibility{}, domain.Alpha{}, err
	}
	resolved, err := s.alphas.Resolved(ctx, id)
	if err != nil {
		return view.Eligibility{}, domain.Alpha{}, err
	}
	return view.Eligible(view.EligibilityInput{
		Alpha:          a,
		Opponents:      opps,
		Caller:         caller,
		PriceRequested: requested,
		Resolved:       resolved,
		Now:            s.now(),
	}), a, nil
}

// requireFunds checks that owner approved and holds at least amount.
func (s *TxService) requireFunds(ctx context.Context, owner common.Address, amount *big.Int) error {
	allowance, err := s.alphas.MarketAllowance(ctx, owner)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) < 0 {
		return invalid("allowance %s below required %s; approve first", allowance, amount)
	}
	balance, err := s.alphas.StakeBalance(ctx, owner)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return invalid("balance %s below required %s", balance, amount)
	}
	return nil
}

// submit takes the wallet lock and runs the write in the background. The
// lock is released when the operation reaches a terminal state.
func (s *TxService) submit(ctx context.Context, kind domain.OpKind, key string, to common.Address, data []byte, targets []query.Target) (*Pending, error) {
	from := s.sender.From()
	unlock := func() {}
	if s.locks != nil {
		u, err := s.locks.Acquire(ctx, "wallet:"+strings.ToLower(from.Hex()), s.lockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				return nil, fmt.Errorf("tx_service: %s: %w", kind, domain.ErrWalletBusy)
			}
			return nil, fmt.Errorf("tx_service: %s: lock wallet: %w", kind, err)
		}
		unlock = u
	}

	p := &Pending{
		lc:   s.ops.Start(kind, key, s.listener),
		done: make(chan struct{}),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(p.done)
		defer unlock()
		p.err = s.run(p.lc, kind, to, data, targets)
	}()
	return p, nil
}

// run drives one attempt from prompt to a terminal state. Exactly one
// transaction is broadcast and it is never retried.
func (s *TxService) run(lc *txflow.Lifecycle, kind domain.OpKind, to common.Address, data []byte, targets []query.Target) error {
	ctx := s.baseCtx
	fail := func(err error) error {
		if ferr := lc.Fail(err); ferr != nil {
			s.logger.Error("record failure", slog.String("error", ferr.Error()))
		}
		return err
	}

	if err := lc.Prompt(); err != nil {
		return err
	}
	tx, err := s.sender.Build(ctx, to, data, domain.GasLimits[kind])
	if err != nil {
		return fail(err)
	}
	signed, err := s.sender.Sign(tx)
	if err != nil {
		return fail(fmt.Errorf("%w: %v", domain.ErrSigningFailed, err))
	}
	if err := s.sender.Send(ctx, signed); err != nil {
		return fail(err)
	}
	if err := lc.Submitted(signed.Hash()); err != nil {
		return err
	}

	receipt, err := s.sender.WaitMined(ctx, signed.Hash())
	if err != nil {
		return fail(err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fail(fmt.Errorf("%w: %s", domain.ErrReverted, signed.Hash().Hex()))
	}

	if err := s.cache.Invalidate(ctx, targets...); err != nil {
		s.logger.Warn("refetch after write",
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
	}
	var block uint64
	if receipt.BlockNumber != nil {
		block = receipt.BlockNumber.Uint64()
	}
	return lc.Confirm(block, receipt.GasUsed)
}
