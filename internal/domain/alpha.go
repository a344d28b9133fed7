package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// MaxOpponents is the number of opponent slots the market contract allocates
// per alpha. Unused slots are zero-filled.
const MaxOpponents = 10

// Alpha is a staked price prediction as stored by the market contract. The
// field order mirrors the contract's tuple layout.
type Alpha struct {
	ID                   uint64         `json:"id"`
	Asset                common.Address `json:"asset"`
	Ticker               string         `json:"ticker"`
	TokenURI             string         `json:"tokenUri"`
	Creator              common.Address `json:"creator"`
	Stake                *big.Int       `json:"stake"`
	TotalOpponentsStaked *big.Int       `json:"totalOpponentsStaked"`
	TotalStaked          *big.Int       `json:"totalStaked"`
	TargetPrice          *big.Int       `json:"targetPrice"`
	Expiry               int64          `json:"expiry"`
	Settled              bool           `json:"settled"`
	CreatorWon           bool           `json:"creatorWon"`
	OpponentCount        uint64         `json:"opponentCount"`
}

// IsPlaceholder reports whether a is an uninitialised ledger slot. The
// contract returns zero-valued records for ids it never assigned; a record
// missing either its expiry or its asset is treated as one.
func (a Alpha) IsPlaceholder() bool {
	return a.Expiry == 0 || a.Asset == (common.Address{})
}

// IsCreator reports whether addr created the alpha.
func (a Alpha) IsCreator(addr common.Address) bool {
	return addr != (common.Address{}) && a.Creator == addr
}

// Opponent is a single stake placed against an alpha's creator.
type Opponent struct {
	Addr   common.Address `json:"addr"`
	Amount *big.Int       `json:"amount"`
	FID    uint64         `json:"fid"`
}

// IsPlaceholder reports whether o is an unused opponent slot.
func (o Opponent) IsPlaceholder() bool {
	return o.Addr == (common.Address{}) || o.Amount == nil || o.Amount.Sign() == 0
}

// LiveStats is the contract's aggregate view of an alpha's pool.
type LiveStats struct {
	CreatorStake   *big.Int `json:"creatorStake"`
	TotalOpponents *big.Int `json:"totalOpponents"`
	TotalStaked    *big.Int `json:"totalStaked"`
	OpponentCount  uint64   `json:"opponentCount"`
}

// StakeToken describes the ERC-20 token the market escrows.
type StakeToken struct {
	Address  common.Address `json:"address"`
	Decimals uint8          `json:"decimals"`
}

// TokenMetadata is the static ERC-20 metadata of an arbitrary token.
type TokenMetadata struct {
	Address  common.Address `json:"address"`
	Name     string         `json:"name"`
	Symbol   string         `json:"symbol"`
	Decimals uint8          `json:"decimals"`
}

// Stake decimals fixed by the market contract.
const (
	StakeDecimals  = 6
	TargetDecimals = 18
)

// ParseAddress validates a 0x-prefixed hex address.
func ParseAddress(s string) (common.Address, bool) {
	if !common.IsHexAddress(s) || len(s) != 42 {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}
