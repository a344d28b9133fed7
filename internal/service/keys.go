package service

import (
	"time"

	"github.com/alanyoungcy/alphamarket/internal/query"
	"github.com/ethereum/go-ethereum/common"
)

// Page limits for batch reads.
const (
	MaxListingPage = 20
	MineScanSize   = 100
)

// Policies are the freshness policies per kind of read.
type Policies struct {
	LiveStats    query.Policy
	Alpha        query.Policy
	Listing      query.Policy
	NextID       query.Policy
	Withdrawable query.Policy
	Account      query.Policy
	StaticToken  query.Policy
	Identity     query.Policy
	Market       query.Policy
}

// DefaultPolicies returns the stock freshness windows.
func DefaultPolicies() Policies {
	return Policies{
		LiveStats:    query.Policy{StaleTime: 15 * time.Second, RefetchInterval: 30 * time.Second},
		Alpha:        query.Policy{StaleTime: 30 * time.Second},
		Listing:      query.Policy{StaleTime: 30 * time.Second, RefetchInterval: time.Minute},
		NextID:       query.Policy{StaleTime: time.Minute},
		Withdrawable: query.Policy{StaleTime: 30 * time.Second, RefetchInterval: time.Minute},
		Account:      query.Policy{StaleTime: 30 * time.Second},
		StaticToken:  query.Policy{StaleTime: 5 * time.Minute},
		Identity:     query.Policy{StaleTime: 5 * time.Minute},
		Market:       query.Policy{StaleTime: 10 * time.Second},
	}
}

// Cache key names. Address arguments are lowercased by query.NewKey; owners
// come first so per-account prefixes can be invalidated together.
const (
	keyAlpha          = "alpha"
	keyAlphas         = "alphas"
	keyNextID         = "nextAlphaId"
	keyLiveStats      = "liveStats"
	keyOpponents      = "opponents"
	keyUserStake      = "userStake"
	keyWithdrawable   = "withdrawable"
	keyResolved       = "resolved"
	keyPriceRequested = "priceRequested"
	keyUserBets       = "userBets"
	keyStakeToken     = "stakeTokenInfo"
	keyBalance        = "balance"
	keyAllowance      = "allowance"
	keyERC20Meta      = "erc20Meta"
	keyUsers          = "users"
	keyToken          = "token"
)

func alphaKey(id uint64) query.Key            { return query.NewKey(keyAlpha, id) }
func alphasKey(start, count uint64) query.Key { return query.NewKey(keyAlphas, start, count) }
func nextIDKey() query.Key                    { return query.NewKey(keyNextID) }
func liveStatsKey(id uint64) query.Key        { return query.NewKey(keyLiveStats, id) }
func opponentsKey(id uint64) query.Key        { return query.NewKey(keyOpponents, id) }
func resolvedKey(id uint64) query.Key         { return query.NewKey(keyResolved, id) }
func priceRequestedKey(id uint64) query.Key   { return query.NewKey(keyPriceRequested, id) }
func stakeTokenKey() query.Key                { return query.NewKey(keyStakeToken) }

func userStakeKey(id uint64, user common.Address) query.Key {
	return query.NewKey(keyUserStake, id, user)
}

func withdrawableKey(user common.Address) query.Key { return query.NewKey(keyWithdrawable, user) }
func userBetsKey(user common.Address) query.Key     { return query.NewKey(keyUserBets, user) }
func erc20MetaKey(token common.Address) query.Key   { return query.NewKey(keyERC20Meta, token) }

func balanceKey(owner, token common.Address) query.Key {
	return query.NewKey(keyBalance, owner, token)
}

func allowanceKey(owner, token, spender common.Address) query.Key {
	return query.NewKey(keyAllowance, owner, token, spender)
}
