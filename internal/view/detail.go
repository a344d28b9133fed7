package view

import (
	"math/big"
	"strings"
	"time"

	"github.com/alanyoungcy/alphamarket/internal/domain"
	"github.com/alanyoungcy/alphamarket/internal/format"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// PotentialROI estimates an opponent's return in percent as
// totalPool / (opponentCount+1) / requiredStake * 100. It is a display
// estimate only; payouts are decided by the contract. With no opponents
// yet it is zero.
func PotentialROI(totalPool *big.Int, opponentCount uint64, requiredStake *big.Int) decimal.Decimal {
	if opponentCount == 0 || totalPool == nil || requiredStake == nil || requiredStake.Sign() == 0 {
		return decimal.Zero
	}
	pool := decimal.NewFromBigInt(totalPool, 0)
	share := pool.Div(decimal.NewFromInt(int64(opponentCount) + 1))
	return share.Div(decimal.NewFromBigInt(requiredStake, 0)).Mul(decimal.NewFromInt(100))
}

// PriceDeltaPercent is (target - current) / current * 100, or zero when the
// current price is unknown or not positive.
func PriceDeltaPercent(target *big.Int, currentUSD string) decimal.Decimal {
	cur, err := decimal.NewFromString(currentUSD)
	if err != nil || !cur.IsPositive() || target == nil {
		return decimal.Zero
	}
	t := decimal.NewFromBigInt(target, -domain.TargetDecimals)
	return t.Sub(cur).Div(cur).Mul(decimal.NewFromInt(100))
}

// Summary is the listing card of one alpha.
type Summary struct {
	ID            uint64 `json:"id"`
	Asset         string `json:"asset"`
	Ticker        string `json:"ticker"`
	TokenURI      string `json:"tokenUri"`
	Creator       string `json:"creator"`
	CreatorShort  string `json:"creatorShort"`
	Stake         string `json:"stake"`
	RequiredStake string `json:"requiredStake"`
	TotalStaked   string `json:"totalStaked"`
	TargetPrice   string `json:"targetPrice"`
	Expiry        int64  `json:"expiry"`
	TimeRemaining string `json:"timeRemaining"`
	Status        Status `json:"status"`
	CreatorWon    bool   `json:"creatorWon"`
	OpponentCount uint64 `json:"opponentCount"`
}

// Summarize renders a listing card. Listings do not read settlement
// progress, so the status is one of active, expired or settled.
func Summarize(a domain.Alpha, stakeDecimals uint8, now time.Time) Summary {
	dec := int32(stakeDecimals)
	creator := strings.ToLower(a.Creator.Hex())
	return Summary{
		ID:            a.ID,
		Asset:         strings.ToLower(a.Asset.Hex()),
		Ticker:        a.Ticker,
		TokenURI:      a.TokenURI,
		Creator:       creator,
		CreatorShort:  format.FormatAddress(creator),
		Stake:         format.FormatTokenAmount(a.Stake, dec),
		RequiredStake: format.FormatTokenAmount(format.RequiredStake(a.Stake), dec),
		TotalStaked:   format.FormatTokenAmount(a.TotalStaked, dec),
		TargetPrice:   format.FormatTokenAmount(a.TargetPrice, domain.TargetDecimals),
		Expiry:        a.Expiry,
		TimeRemaining: format.TimeUntilExpiry(now, a.Expiry),
		Status:        StatusOf(a, false, false, now),
		CreatorWon:    a.CreatorWon,
		OpponentCount: a.OpponentCount,
	}
}

// OpponentView is one opponent row on the detail page.
type OpponentView struct {
	Address      string          `json:"address"`
	ShortAddress string          `json:"shortAddress"`
	Amount       string          `json:"amount"`
	FID          uint64          `json:"fid"`
	Profile      *domain.Profile `json:"profile,omitempty"`
}

// LiveStatsView is the formatted live pool.
type LiveStatsView struct {
	CreatorStake   string `json:"creatorStake"`
	TotalOpponents string `json:"totalOpponents"`
	TotalStaked    string `json:"totalStaked"`
	OpponentCount  uint64 `json:"opponentCount"`
}

// Detail is the full detail page model.
type Detail struct {
	Summary
	ExpiresAt      string                `json:"expiresAt"`
	Countdown      string                `json:"countdown"`
	Expired        bool                  `json:"expired"`
	CreatorProfile *domain.Profile       `json:"creatorProfile,omitempty"`
	Opponents      []OpponentView        `json:"opponents"`
	OpponentStake  string                `json:"opponentStake"`
	LiveStats      *LiveStatsView        `json:"liveStats,omitempty"`
	PriceRequested bool                  `json:"priceRequested"`
	Resolved       bool                  `json:"resolved"`
	Eligibility    Eligibility           `json:"eligibility"`
	PotentialROI   string                `json:"potentialRoi"`
	Token          *domain.TokenSnapshot `json:"token,omitempty"`
	PriceDelta     string                `json:"priceDeltaPercent,omitempty"`

	// Caller-specific fields, present when a caller address is known.
	Caller              string `json:"caller,omitempty"`
	Allowance           string `json:"allowance,omitempty"`
	Balance             string `json:"balance,omitempty"`
	UserStake           string `json:"userStake,omitempty"`
	NeedsApproval       bool   `json:"needsApproval"`
	InsufficientBalance bool   `json:"insufficientBalance"`
}

// DetailInput carries every read the detail page is built from. Optional
// reads are nil when unavailable.
type DetailInput struct {
	Alpha          domain.Alpha
	Opponents      []domain.Opponent
	LiveStats      *domain.LiveStats
	PriceRequested bool
	Resolved       bool
	StakeDecimals  uint8

	Caller    common.Address
	Allowance *big.Int
	Balance   *big.Int
	UserStake *big.Int

	CreatorProfile *domain.Profile
	Profiles       map[uint64]domain.Profile
	Token          *domain.TokenSnapshot

	Now      time.Time
	Location *time.Location
}

// BuildDetail assembles the detail page model.
func BuildDetail(in DetailInput) Detail {
	a := in.Alpha
	dec := int32(in.StakeDecimals)
	required := format.RequiredStake(a.Stake)
	opps := SanitizeOpponents(in.Opponents)

	d := Detail{
		Summary:        Summarize(a, in.StakeDecimals, in.Now),
		ExpiresAt:      format.FormatTimestamp(a.Expiry, in.Location),
		Countdown:      format.Countdown(in.Now, a.Expiry),
		Expired:        format.IsExpired(in.Now, a.Expiry),
		CreatorProfile: in.CreatorProfile,
		Opponents:      make([]OpponentView, 0, len(opps)),
		OpponentStake:  format.FormatTokenAmount(a.TotalOpponentsStaked, dec),
		PriceRequested: in.PriceRequested,
		Resolved:       in.Resolved,
		Eligibility: Eligible(EligibilityInput{
			Alpha:          a,
			Opponents:      opps,
			Caller:         in.Caller,
			PriceRequested: in.PriceRequested,
			Resolved:       in.Resolved,
			Now:            in.Now,
		}),
		PotentialROI: format.PercentString(PotentialROI(a.TotalStaked, a.OpponentCount, required)),
		Token:        in.Token,
	}
	d.Status = StatusOf(a, in.PriceRequested, in.Resolved, in.Now)

	for _, o := range opps {
		addr := strings.ToLower(o.Addr.Hex())
		ov := OpponentView{
			Address:      addr,
			ShortAddress: format.FormatAddress(addr),
			Amount:       format.FormatTokenAmount(o.Amount, dec),
			FID:          o.FID,
		}
		if p, ok := in.Profiles[o.FID]; ok && o.FID > 0 {
			ov.Profile = &p
		}
		d.Opponents = append(d.Opponents, ov)
	}

	if s := in.LiveStats; s != nil {
		d.LiveStats = &LiveStatsView{
			CreatorStake:   format.FormatTokenAmount(s.CreatorStake, dec),
			TotalOpponents: format.FormatTokenAmount(s.TotalOpponents, dec),
			TotalStaked:    format.FormatTokenAmount(s.TotalStaked, dec),
			OpponentCount:  s.OpponentCount,
		}
	}

	if in.Token != nil {
		d.PriceDelta = format.PercentString(PriceDeltaPercent(a.TargetPrice, in.Token.PriceUSD))
	}

	if in.Caller != (common.Address{}) {
		d.Caller = strings.ToLower(in.Caller.Hex())
		if in.Allowance != nil {
			d.Allowance = format.FormatTokenAmount(in.Allowance, dec)
			d.NeedsApproval = NeedsApproval(in.Allowance, a.Stake)
		}
		if in.Balance != nil {
			d.Balance = format.FormatTokenAmount(in.Balance, dec)
			d.InsufficientBalance = in.Balance.Cmp(required) < 0
		}
		if in.UserStake != nil {
			d.UserStake = format.FormatTokenAmount(in.UserStake, dec)
		}
	}
	return d
}
