package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/alanyoungcy/alphamarket/internal/domain"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// alphaTuple mirrors the contract's Alpha struct, field for field.
type alphaTuple struct {
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

func (t alphaTuple) toDomain(id uint64) domain.Alpha {
	return domain.Alpha{
		ID:                   id,
		Asset:                t.Asset,
		Ticker:               t.Ticker,
		TokenURI:             t.TokenURI,
		Creator:              t.Creator,
		Stake:                orZero(t.Stake),
		TotalOpponentsStaked: orZero(t.TotalOpponentsStaked),
		TotalStaked:          orZero(t.TotalStaked),
		TargetPrice:          orZero(t.TargetPrice),
		Expiry:               orZero(t.Expiry).Int64(),
		Settled:              t.Settled,
		CreatorWon:           t.CreatorWon,
		OpponentCount:        orZero(t.OpponentCount).Uint64(),
	}
}

type opponentTuple struct {
	Addr   common.Address
	Amount *big.Int
	Fid    *big.Int
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

// Market reads from and encodes calls to the alpha market contract.
type Market struct {
	b bound
}

// NewMarket binds the market contract at address.
func NewMarket(address common.Address, backend Backend) *Market {
	return &Market{b: bound{address: address, abi: MarketABI, backend: backend}}
}

// Address returns the contract address.
func (m *Market) Address() common.Address {
	return m.b.address
}

func u256(n uint64) *big.Int {
	return new(big.Int).SetUint64(n)
}

// GetAlpha returns the alpha stored at id. Unassigned ids come back as
// placeholder records rather than errors.
func (m *Market) GetAlpha(ctx context.Context, id uint64) (domain.Alpha, error) {
	out, err := m.b.call(ctx, "getAlpha", u256(id))
	if err != nil {
		return domain.Alpha{}, err
	}
	if len(out) == 0 {
		return domain.Alpha{}, fmt.Errorf("chain: getAlpha: empty result")
	}
	t, ok := abi.ConvertType(out[0], new(alphaTuple)).(*alphaTuple)
	if !ok {
		return domain.Alpha{}, fmt.Errorf("chain: getAlpha: unexpected result type %T", out[0])
	}
	return t.toDomain(id), nil
}

// GetAlphas returns count consecutive slots starting at start. The i-th
// record has id start+i; placeholder slots are included.
func (m *Market) GetAlphas(ctx context.Context, start, count uint64) ([]domain.Alpha, error) {
	out, err := m.b.call(ctx, "getAlphas", u256(start), u256(count))
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("chain: getAlphas: empty result")
	}
	ts, ok := abi.ConvertType(out[0], new([]alphaTuple)).(*[]alphaTuple)
	if !ok {
		return nil, fmt.Errorf("chain: getAlphas: unexpected result type %T", out[0])
	}
	alphas := make([]domain.Alpha, 0, len(*ts))
	for i, t := range *ts {
		alphas = append(alphas, t.toDomain(start+uint64(i)))
	}
	return alphas, nil
}

// NextAlphaID returns the id the next created alpha will receive.
func (m *Market) NextAlphaID(ctx context.Context) (uint64, error) {
	out, err := m.b.call(ctx, "nextAlphaId")
	if err != nil {
		return 0, err
	}
	v, err := single[*big.Int]("nextAlphaId", out)
	if err != nil {
		return 0, err
	}
	return v.Uint64(), nil
}

// GetLiveStats returns the pool aggregates for id.
func (m *Market) GetLiveStats(ctx context.Context, id uint64) (domain.LiveStats, error) {
	out, err := m.b.call(ctx, "getLiveStats", u256(id))
	if err != nil {
		return domain.LiveStats{}, err
	}
	if len(out) != 4 {
		return domain.LiveStats{}, fmt.Errorf("chain: getLiveStats: expected 4 outputs, got %d", len(out))
	}
	vals := make([]*big.Int, 4)
	for i := range out {
		v, ok := out[i].(*big.Int)
		if !ok {
			return domain.LiveStats{}, fmt.Errorf("chain: getLiveStats: output %d has type %T", i, out[i])
		}
		vals[i] = v
	}
	return domain.LiveStats{
		CreatorStake:   vals[0],
		TotalOpponents: vals[1],
		TotalStaked:    vals[2],
		OpponentCount:  vals[3].Uint64(),
	}, nil
}

// GetOpponents returns the raw opponent slots of id, placeholders included.
func (m *Market) GetOpponents(ctx context.Context, id uint64) ([]domain.Opponent, error) {
	out, err := m.b.call(ctx, "getOpponents", u256(id))
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("chain: getOpponents: empty result")
	}
	ts, ok := abi.ConvertType(out[0], new([]opponentTuple)).(*[]opponentTuple)
	if !ok {
		return nil, fmt.Errorf("chain: getOpponents: unexpected result type %T", out[0])
	}
	opps := make([]domain.Opponent, 0, len(*ts))
	for _, t := range *ts {
		opps = append(opps, domain.Opponent{
			Addr:   t.Addr,
			Amount: orZero(t.Amount),
			FID:    orZero(t.Fid).Uint64(),
		})
	}
	return opps, nil
}

// GetUserStakeInAlpha returns user's stake in id.
func (m *Market) GetUserStakeInAlpha(ctx context.Context, id uint64, user common.Address) (*big.Int, error) {
	out, err := m.b.call(ctx, "getUserStakeInAlpha", u256(id), user)
	if err != nil {
		return nil, err
	}
	return single[*big.Int]("getUserStakeInAlpha", out)
}

// GetWithdrawableAmount returns the stake-token amount user can withdraw.
func (m *Market) GetWithdrawableAmount(ctx context.Context, user common.Address) (*big.Int, error) {
	out, err := m.b.call(ctx, "getWithdrawableAmount", user)
	if err != nil {
		return nil, err
	}
	return single[*big.Int]("getWithdrawableAmount", out)
}

// IsAlphaResolved reports whether the oracle has resolved id.
func (m *Market) IsAlphaResolved(ctx context.Context, id uint64) (bool, error) {
	out, err := m.b.call(ctx, "isAlphaResolved", u256(id))
	if err != nil {
		return false, err
	}
	return single[bool]("isAlphaResolved", out)
}

// PriceRequested reports whether settlement has been requested for id.
func (m *Market) PriceRequested(ctx context.Context, id uint64) (bool, error) {
	out, err := m.b.call(ctx, "priceRequested", u256(id))
	if err != nil {
		return false, err
	}
	return single[bool]("priceRequested", out)
}

// UserBets returns the number of bets user has placed.
func (m *Market) UserBets(ctx context.Context, user common.Address) (*big.Int, error) {
	out, err := m.b.call(ctx, "userBets", user)
	if err != nil {
		return nil, err
	}
	return single[*big.Int]("userBets", out)
}

// StakeToken returns the escrowed token's address.
func (m *Market) StakeToken(ctx context.Context) (common.Address, error) {
	out, err := m.b.call(ctx, "stakeToken")
	if err != nil {
		return common.Address{}, err
	}
	return single[common.Address]("stakeToken", out)
}

// StakeTokenDecimals returns the escrowed token's decimals.
func (m *Market) StakeTokenDecimals(ctx context.Context) (uint8, error) {
	out, err := m.b.call(ctx, "stakeTokenDecimals")
	if err != nil {
		return 0, err
	}
	return single[uint8]("stakeTokenDecimals", out)
}

// CreateArgs are the arguments of createAlphaERC20 in on-chain units.
type CreateArgs struct {
	Asset       common.Address
	Ticker      string
	TargetPrice *big.Int
	Expiry      int64
	Stake       *big.Int
	TokenURI    string
}

// PackCreate encodes createAlphaERC20.
func (m *Market) PackCreate(a CreateArgs) ([]byte, error) {
	return m.b.pack("createAlphaERC20", a.Asset, a.Ticker, a.TargetPrice, big.NewInt(a.Expiry), a.Stake, a.TokenURI)
}

// PackBetAgainst encodes betAgainstERC20.
func (m *Market) PackBetAgainst(id, bettorFID uint64) ([]byte, error) {
	return m.b.pack("betAgainstERC20", u256(id), u256(bettorFID))
}

// PackRequestSettlement encodes requestAlphaSettlement.
func (m *Market) PackRequestSettlement(id uint64) ([]byte, error) {
	return m.b.pack("requestAlphaSettlement", u256(id))
}

// PackFinalizeSettlement encodes finalizeAlphaSettlement.
func (m *Market) PackFinalizeSettlement(id uint64) ([]byte, error) {
	return m.b.pack("finalizeAlphaSettlement", u256(id))
}

// PackWithdraw encodes withdrawToken.
func (m *Market) PackWithdraw() ([]byte, error) {
	return m.b.pack("withdrawToken")
}
