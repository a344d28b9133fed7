package chaintest

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/alanyoungcy/alphamarket/internal/chain"
	"github.com/alanyoungcy/alphamarket/internal/domain"
	"github.com/ethereum/go-ethereum/common"
)

// Alpha has the field names of the contract's Alpha tuple so it packs
// directly as an ABI output.
type Alpha struct {
	Asset                common.Address
	Ticker               string
	TokenURI             string
	Creator              common.Address
	Stake                *big.Int
	TotalOpponentsStaked *big.Int
	TotalStaked          *big.Int
	TargetPrice          *big.Int
	Expiry               *big.Int
	Settled              bool
	CreatorWon           bool
	OpponentCount        *big.Int
}

// Opponent packs as the contract's Opponent tuple.
type Opponent struct {
	Addr   common.Address
	Amount *big.Int
	Fid    *big.Int
}

func nz(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func toTuple(a domain.Alpha) Alpha {
	return Alpha{
		Asset:                a.Asset,
		Ticker:               a.Ticker,
		TokenURI:             a.TokenURI,
		Creator:              a.Creator,
		Stake:                nz(a.Stake),
		TotalOpponentsStaked: nz(a.TotalOpponentsStaked),
		TotalStaked:          nz(a.TotalStaked),
		TargetPrice:          nz(a.TargetPrice),
		Expiry:               big.NewInt(a.Expiry),
		Settled:              a.Settled,
		CreatorWon:           a.CreatorWon,
		OpponentCount:        new(big.Int).SetUint64(a.OpponentCount),
	}
}

// Market is mutable fake state for the alpha market contract. Missing map
// entries read as zero values, like contract storage.
type Market struct {
	mu sync.Mutex

	Alphas         map[uint64]domain.Alpha
	Opponents      map[uint64][]domain.Opponent
	UserStake      map[string]*big.Int
	Withdrawable   map[common.Address]*big.Int
	Resolved       map[uint64]bool
	PriceRequested map[uint64]bool
	UserBets       map[common.Address]*big.Int
	NextID         uint64
	StakeToken     common.Address
	Decimals       uint8
}

// NewMarket creates empty market state with a 6-decimal stake token.
func NewMarket(stakeToken common.Address) *Market {
	return &Market{
		Alphas:         make(map[uint64]domain.Alpha),
		Opponents:      make(map[uint64][]domain.Opponent),
		UserStake:      make(map[string]*big.Int),
		Withdrawable:   make(map[common.Address]*big.Int),
		Resolved:       make(map[uint64]bool),
		PriceRequested: make(map[uint64]bool),
		UserBets:       make(map[common.Address]*big.Int),
		StakeToken:     stakeToken,
		Decimals:       domain.StakeDecimals,
	}
}

// Update runs fn with the state locked.
func (m *Market) Update(fn func(m *Market)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m)
}

// StakeKey builds the UserStake map key.
func StakeKey(id uint64, user common.Address) string {
	return fmt.Sprintf("%d:%s", id, user.Hex())
}

func asU64(v any) uint64 {
	if b, ok := v.(*big.Int); ok {
		return b.Uint64()
	}
	return 0
}

// Handle answers market contract calls.
func (m *Market) Handle(method string, args []any) ([]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch method {
	case "getAlpha":
		return []any{toTuple(m.Alphas[asU64(args[0])])}, nil
	case "getAlphas":
		start, count := asU64(args[0]), asU64(args[1])
		out := make([]Alpha, 0, count)
		for i := uint64(0); i < count; i++ {
			out = append(out, toTuple(m.Alphas[start+i]))
		}
		return []any{out}, nil
	case "nextAlphaId":
		return []any{new(big.Int).SetUint64(m.NextID)}, nil
	case "getLiveStats":
		a := m.Alphas[asU64(args[0])]
		return []any{nz(a.Stake), nz(a.TotalOpponentsStaked), nz(a.TotalStaked), new(big.Int).SetUint64(a.OpponentCount)}, nil
	case "getOpponents":
		out := make([]Opponent, domain.MaxOpponents)
		for i := range out {
			out[i] = Opponent{Amount: new(big.Int), Fid: new(big.Int)}
		}
		for i, o := range m.Opponents[asU64(args[0])] {
			if i >= len(out) {
				break
			}
			out[i] = Opponent{Addr: o.Addr, Amount: nz(o.Amount), Fid: new(big.Int).SetUint64(o.FID)}
		}
		return []any{out}, nil
	case "getUserStakeInAlpha":
		return []any{nz(m.UserStake[StakeKey(asU64(args[0]), args[1].(common.Address))])}, nil
	case "getWithdrawableAmount":
		return []any{nz(m.Withdrawable[args[0].(common.Address)])}, nil
	case "isAlphaResolved":
		return []any{m.Resolved[asU64(args[0])]}, nil
	case "priceRequested":
		return []any{m.PriceRequested[asU64(args[0])]}, nil
	case "userBets":
		return []any{nz(m.UserBets[args[0].(common.Address)])}, nil
	case "stakeToken":
		return []any{m.StakeToken}, nil
	case "stakeTokenDecimals":
		return []any{m.Decimals}, nil
	default:
		return nil, fmt.Errorf("chaintest: market method %s not supported", method)
	}
}

// Token is mutable fake state for one ERC-20 token.
type Token struct {
	mu sync.Mutex

	Name       string
	Symbol     string
	Decimals   uint8
	Balances   map[common.Address]*big.Int
	Allowances map[string]*big.Int
}

// NewToken creates a token with empty balances.
func NewToken(name, symbol string, decimals uint8) *Token {
	return &Token{
		Name:       name,
		Symbol:     symbol,
		Decimals:   decimals,
		Balances:   make(map[common.Address]*big.Int),
		Allowances: make(map[string]*big.Int),
	}
}

// AllowanceKey builds the Allowances map key.
func AllowanceKey(owner, spender common.Address) string {
	return owner.Hex() + ":" + spender.Hex()
}

// Update runs fn with the state locked.
func (t *Token) Update(fn func(t *Token)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(t)
}

// Handle answers ERC-20 calls.
func (t *Token) Handle(method string, args []any) ([]any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch method {
	case "balanceOf":
		return []any{nz(t.Balances[args[0].(common.Address)])}, nil
	case "allowance":
		return []any{nz(t.Allowances[AllowanceKey(args[0].(common.Address), args[1].(common.Address))])}, nil
	case "decimals":
		return []any{t.Decimals}, nil
	case "symbol":
		return []any{t.Symbol}, nil
	case "name":
		return []any{t.Name}, nil
	default:
		return nil, fmt.Errorf("chaintest: erc20 method %s not supported", method)
	}
}

// Install registers market at marketAddr and token at its stake-token
// address on b.
func Install(b *Backend, marketAddr common.Address, market *Market, token *Token) {
	b.Register(marketAddr, chain.MarketABI, market.Handle)
	if token != nil {
		b.Register(market.StakeToken, chain.ERC20ABI, token.Handle)
	}
}
