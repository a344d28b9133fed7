package domain

import "time"

// TxState is the lifecycle position of a single write attempt.
type TxState string

const (
	TxIdle      TxState = "idle"
	TxPrompted  TxState = "prompted"
	TxSubmitted TxState = "submitted"
	TxConfirmed TxState = "confirmed"
	TxFailed    TxState = "failed"
)

// Terminal reports whether no further transitions are allowed from s.
func (s TxState) Terminal() bool {
	return s == TxConfirmed || s == TxFailed
}

// OpKind names a contract write operation.
type OpKind string

const (
	OpCreate            OpKind = "create"
	OpBet               OpKind = "bet"
	OpRequestSettlement OpKind = "request_settlement"
	OpFinalize          OpKind = "finalize"
	OpWithdraw          OpKind = "withdraw"
	OpApprove           OpKind = "approve"
)

// Gas ceilings per operation kind. They are passed to the chain as-is and
// never estimated.
var GasLimits = map[OpKind]uint64{
	OpCreate:            500_000,
	OpBet:               300_000,
	OpRequestSettlement: 500_000,
	OpFinalize:          600_000,
	OpWithdraw:          200_000,
	OpApprove:           100_000,
}

// TxEvent is emitted on every lifecycle transition.
type TxEvent struct {
	OperationID string    `json:"operation_id"`
	Kind        OpKind    `json:"kind"`
	Key         string    `json:"key"`
	State       TxState   `json:"state"`
	TxHash      string    `json:"tx_hash,omitempty"`
	BlockNumber uint64    `json:"block_number,omitempty"`
	GasUsed     uint64    `json:"gas_used,omitempty"`
	Error       string    `json:"error,omitempty"`
	At          time.Time `json:"at"`
}

// Operation is the latest known state of one write attempt.
type Operation struct {
	ID          string    `json:"id"`
	Kind        OpKind    `json:"kind"`
	Key         string    `json:"key"`
	State       TxState   `json:"state"`
	TxHash      string    `json:"tx_hash,omitempty"`
	BlockNumber uint64    `json:"block_number,omitempty"`
	GasUsed     uint64    `json:"gas_used,omitempty"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
