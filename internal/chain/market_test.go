package chain_test

import (
	"context"
	"math/big"
	"testing"

	"github.com/alanyoungcy/alphamarket/internal/chain"
	"github.com/alanyoungcy/alphamarket/internal/chain/chaintest"
	"github.com/alanyoungcy/alphamarket/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	marketAddr = common.HexToAddress("0x00000000000000000000000000000000000a1fa0")
	usdcAddr   = common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
	creator    = common.HexToAddress("0x1111111111111111111111111111111111111111")
	bettor     = common.HexToAddress("0x2222222222222222222222222222222222222222")
	asset      = common.HexToAddress("0x4200000000000000000000000000000000000006")
)

func setup(t *testing.T) (*chain.Market, *chain.ERC20, *chaintest.Market, *chaintest.Token) {
	t.Helper()
	b := chaintest.NewBackend()
	m := chaintest.NewMarket(usdcAddr)
	tok := chaintest.NewToken("USD Coin", "USDC", 6)
	chaintest.Install(b, marketAddr, m, tok)
	return chain.NewMarket(marketAddr, b), chain.NewERC20(b), m, tok
}

func sampleAlpha(id uint64) domain.Alpha {
	return domain.Alpha{
		ID:                   id,
		Asset:                asset,
		Ticker:               "WETH",
		TokenURI:             "ipfs://meta",
		Creator:              creator,
		Stake:                big.NewInt(1_000_000),
		TotalOpponentsStaked: big.NewInt(200_000),
		TotalStaked:          big.NewInt(1_200_000),
		TargetPrice:          new(big.Int).Mul(big.NewInt(4000), big.NewInt(1e18)),
		Expiry:               1_900_000_000,
		OpponentCount:        2,
	}
}

func TestGetAlphaDecodesTuple(t *testing.T) {
	mk, _, state, _ := setup(t)
	want := sampleAlpha(3)
	state.Alphas[3] = want

	got, err := mk.GetAlpha(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Asset, got.Asset)
	assert.Equal(t, want.Ticker, got.Ticker)
	assert.Equal(t, want.TokenURI, got.TokenURI)
	assert.Equal(t, want.Creator, got.Creator)
	assert.Zero(t, want.Stake.Cmp(got.Stake))
	assert.Zero(t, want.TargetPrice.Cmp(got.TargetPrice))
	assert.Equal(t, want.Expiry, got.Expiry)
	assert.Equal(t, want.OpponentCount, got.OpponentCount)
	assert.False(t, got.IsPlaceholder())
}

func TestGetAlphasAssignsSequentialIDs(t *testing.T) {
	mk, _, state, _ := setup(t)
	state.Alphas[4] = sampleAlpha(4)
	state.Alphas[6] = sampleAlpha(6)

	got, err := mk.GetAlphas(context.Background(), 4, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []uint64{4, 5, 6}, []uint64{got[0].ID, got[1].ID, got[2].ID})
	assert.False(t, got[0].IsPlaceholder())
	assert.True(t, got[1].IsPlaceholder())
	assert.False(t, got[2].IsPlaceholder())
}

func TestScalarReads(t *testing.T) {
	mk, _, state, _ := setup(t)
	ctx := context.Background()
	state.NextID = 12
	state.Alphas[2] = sampleAlpha(2)
	state.Withdrawable[bettor] = big.NewInt(55)
	state.Resolved[2] = true
	state.PriceRequested[2] = true
	state.UserBets[bettor] = big.NewInt(3)
	state.UserStake[chaintest.StakeKey(2, bettor)] = big.NewInt(100_000)

	next, err := mk.NextAlphaID(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), next)

	stats, err := mk.GetLiveStats(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1_200_000), stats.TotalStaked.Int64())
	assert.Equal(t, uint64(2), stats.OpponentCount)

	w, err := mk.GetWithdrawableAmount(ctx, bettor)
	require.NoError(t, err)
	assert.Equal(t, int64(55), w.Int64())

	resolved, err := mk.IsAlphaResolved(ctx, 2)
	require.NoError(t, err)
	assert.True(t, resolved)

	requested, err := mk.PriceRequested(ctx, 2)
	require.NoError(t, err)
	assert.True(t, requested)

	bets, err := mk.UserBets(ctx, bettor)
	require.NoError(t, err)
	assert.Equal(t, int64(3), bets.Int64())

	stake, err := mk.GetUserStakeInAlpha(ctx, 2, bettor)
	require.NoError(t, err)
	assert.Equal(t, int64(100_000), stake.Int64())

	tok, err := mk.StakeToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, usdcAddr, tok)

	dec, err := mk.StakeTokenDecimals(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint8(6), dec)
}

func TestGetOpponentsKeepsRawSlots(t *testing.T) {
	mk, _, state, _ := setup(t)
	state.Opponents[1] = []domain.Opponent{{Addr: bettor, Amount: big.NewInt(100_000), FID: 99}}

	opps, err := mk.GetOpponents(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, opps, domain.MaxOpponents)
	assert.Equal(t, bettor, opps[0].Addr)
	assert.Equal(t, uint64(99), opps[0].FID)
	assert.True(t, opps[1].IsPlaceholder())
}

func TestERC20Reads(t *testing.T) {
	_, erc, _, tok := setup(t)
	ctx := context.Background()
	tok.Balances[bettor] = big.NewInt(7_000_000)
	tok.Allowances[chaintest.AllowanceKey(bettor, marketAddr)] = big.NewInt(50_000)

	bal, err := erc.BalanceOf(ctx, usdcAddr, bettor)
	require.NoError(t, err)
	assert.Equal(t, int64(7_000_000), bal.Int64())

	allow, err := erc.Allowance(ctx, usdcAddr, bettor, marketAddr)
	require.NoError(t, err)
	assert.Equal(t, int64(50_000), allow.Int64())

	sym, err := erc.Symbol(ctx, usdcAddr)
	require.NoError(t, err)
	assert.Equal(t, "USDC", sym)

	name, err := erc.Name(ctx, usdcAddr)
	require.NoError(t, err)
	assert.Equal(t, "USD Coin", name)

	dec, err := erc.Decimals(ctx, usdcAddr)
	require.NoError(t, err)
	assert.Equal(t, uint8(6), dec)
}

func TestCallToEmptyAddressReportsNoCode(t *testing.T) {
	_, erc, _, _ := setup(t)
	_, err := erc.Symbol(context.Background(), common.HexToAddress("0xdead"))
	assert.ErrorIs(t, err, chain.ErrNoCode)
}

func TestPackedWritesDecode(t *testing.T) {
	mk, erc, _, _ := setup(t)

	data, err := mk.PackBetAgainst(7, 1234)
	require.NoError(t, err)
	m, err := chain.MarketABI.MethodById(data[:4])
	require.NoError(t, err)
	assert.Equal(t, "betAgainstERC20", m.Name)
	args, err := m.Inputs.Unpack(data[4:])
	require.NoError(t, err)
	assert.Equal(t, int64(7), args[0].(*big.Int).Int64())
	assert.Equal(t, int64(1234), args[1].(*big.Int).Int64())

	data, err = mk.PackCreate(chain.CreateArgs{
		Asset: asset, Ticker: "WETH", TargetPrice: big.NewInt(1), Expiry: 10, Stake: big.NewInt(2), TokenURI: "u",
	})
	require.NoError(t, err)
	m, err = chain.MarketABI.MethodById(data[:4])
	require.NoError(t, err)
	assert.Equal(t, "createAlphaERC20", m.Name)

	data, err = erc.PackApprove(marketAddr, big.NewInt(100_000))
	require.NoError(t, err)
	m, err = chain.ERC20ABI.MethodById(data[:4])
	require.NoError(t, err)
	assert.Equal(t, "approve", m.Name)
}
