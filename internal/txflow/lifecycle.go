// Package txflow tracks the lifecycle of a single contract write:
// idle → prompted → submitted → confirmed | failed.
package txflow

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alanyoungcy/alphamarket/internal/domain"
	"github.com/ethereum/go-ethereum/common"
)

// ErrInvalidTransition is returned when a transition is not allowed from the
// current state.
var ErrInvalidTransition = errors.New("txflow: invalid transition")

// Listener receives every transition in order.
type Listener interface {
	OnTxEvent(ev domain.TxEvent)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ev domain.TxEvent)

// OnTxEvent calls f(ev).
func (f ListenerFunc) OnTxEvent(ev domain.TxEvent) { f(ev) }

var allowed = map[domain.TxState][]domain.TxState{
	domain.TxIdle:      {domain.TxPrompted},
	domain.TxPrompted:  {domain.TxSubmitted, domain.TxFailed},
	domain.TxSubmitted: {domain.TxConfirmed, domain.TxFailed},
}

// Lifecycle is the state of one write attempt. It is safe for concurrent use.
type Lifecycle struct {
	mu       sync.Mutex
	op       domain.Operation
	listener Listener
	now      func() time.Time
}

// New starts an idle lifecycle. listener may be nil.
func New(id string, kind domain.OpKind, key string, listener Listener) *Lifecycle {
	now := time.Now().UTC()
	return &Lifecycle{
		op: domain.Operation{
			ID:        id,
			Kind:      kind,
			Key:       key,
			State:     domain.TxIdle,
			StartedAt: now,
			UpdatedAt: now,
		},
		listener: listener,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Prompt marks the start of signing.
func (l *Lifecycle) Prompt() error {
	return l.transition(domain.TxPrompted, nil)
}

// Submitted records the broadcast transaction hash.
func (l *Lifecycle) Submitted(hash common.Hash) error {
	return l.transition(domain.TxSubmitted, func(op *domain.Operation) {
		op.TxHash = hash.Hex()
	})
}

// Confirm records a successful receipt.
func (l *Lifecycle) Confirm(blockNumber, gasUsed uint64) error {
	return l.transition(domain.TxConfirmed, func(op *domain.Operation) {
		op.BlockNumber = blockNumber
		op.GasUsed = gasUsed
	})
}

// Fail records cause as the terminal error.
func (l *Lifecycle) Fail(cause error) error {
	return l.transition(domain.TxFailed, func(op *domain.Operation) {
		if cause != nil {
			op.Error = cause.Error()
		}
	})
}

// State returns the current state.
func (l *Lifecycle) State() domain.TxState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.op.State
}

// Snapshot returns a copy of the operation record.
func (l *Lifecycle) Snapshot() domain.Operation {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.op
}

func (l *Lifecycle) transition(to domain.TxState, apply func(*domain.Operation)) error {
	l.mu.Lock()
	from := l.op.State
	ok := false
	for _, s := range allowed[from] {
		if s == to {
			ok = true
			break
		}
	}
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	l.op.State = to
	l.op.UpdatedAt = l.now()
	if apply != nil {
		apply(&l.op)
	}
	ev := domain.TxEvent{
		OperationID: l.op.ID,
		Kind:        l.op.Kind,
		Key:         l.op.Key,
		State:       to,
		TxHash:      l.op.TxHash,
		BlockNumber: l.op.BlockNumber,
		GasUsed:     l.op.GasUsed,
		Error:       l.op.Error,
		At:          l.op.UpdatedAt,
	}
	listener := l.listener
	l.mu.Unlock()

	if listener != nil {
		listener.OnTxEvent(ev)
	}
	return nil
}
