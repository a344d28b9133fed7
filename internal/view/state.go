// Package view derives the presentation state pages need from raw contract
// reads. Nothing here performs I/O; every value is recomputed from its
// inputs, including the current time.
package view

import (
	"math/big"
	"time"

	"github.com/alanyoungcy/alphamarket/internal/domain"
	"github.com/alanyoungcy/alphamarket/internal/format"
	"github.com/ethereum/go-ethereum/common"
)

// Status is the observed position of an alpha in its lifecycle.
type Status string

const (
	StatusActive              Status = "active"
	StatusExpired             Status = "expired"
	StatusSettlementRequested Status = "settlement_requested"
	StatusResolved            Status = "resolved"
	StatusSettled             Status = "settled"
)

// StatusOf derives the lifecycle status from the latest reads.
func StatusOf(a domain.Alpha, priceRequested, resolved bool, now time.Time) Status {
	switch {
	case a.Settled:
		return StatusSettled
	case resolved:
		return StatusResolved
	case priceRequested:
		return StatusSettlementRequested
	case format.IsExpired(now, a.Expiry):
		return StatusExpired
	default:
		return StatusActive
	}
}

// NeedsApproval reports whether allowance is below the stake an opponent
// must post. A nil allowance counts as zero.
func NeedsApproval(allowance, creatorStake *big.Int) bool {
	if allowance == nil {
		allowance = new(big.Int)
	}
	return allowance.Cmp(format.RequiredStake(creatorStake)) < 0
}

// Eligibility lists the actions a caller may take on an alpha.
type Eligibility struct {
	CanBet               bool   `json:"canBet"`
	CanRequestSettlement bool   `json:"canRequestSettlement"`
	CanFinalize          bool   `json:"canFinalize"`
	CanShare             bool   `json:"canShare"`
	IsCreator            bool   `json:"isCreator"`
	IsBettor             bool   `json:"isBettor"`
	AvailableSlots       uint64 `json:"availableSlots"`
}

// EligibilityInput is everything the eligibility rules look at.
type EligibilityInput struct {
	Alpha          domain.Alpha
	Opponents      []domain.Opponent
	Caller         common.Address
	PriceRequested bool
	Resolved       bool
	Now            time.Time
}

// Eligible evaluates the market's action rules for in.Caller. Opponents may
// be raw slots; placeholders are ignored.
func Eligible(in EligibilityInput) Eligibility {
	a := in.Alpha
	expired := format.IsExpired(in.Now, a.Expiry)

	var slots uint64
	if a.OpponentCount < domain.MaxOpponents {
		slots = domain.MaxOpponents - a.OpponentCount
	}

	isCreator := a.IsCreator(in.Caller)
	isBettor := false
	if in.Caller != (common.Address{}) {
		for _, o := range SanitizeOpponents(in.Opponents) {
			if o.Addr == in.Caller {
				isBettor = true
				break
			}
		}
	}

	return Eligibility{
		CanBet:               !a.Settled && !expired && slots > 0 && !isCreator,
		CanRequestSettlement: !a.Settled && expired && !in.PriceRequested,
		CanFinalize:          in.PriceRequested && in.Resolved && !a.Settled,
		CanShare:             isCreator || isBettor,
		IsCreator:            isCreator,
		IsBettor:             isBettor,
		AvailableSlots:       slots,
	}
}
