package txflow

import (
	"errors"
	"sync"
	"testing"

	"github.com/alanyoungcy/alphamarket/internal/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	states []domain.TxState
	events []domain.TxEvent
}

func (r *recorder) OnTxEvent(ev domain.TxEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, ev.State)
	r.events = append(r.events, ev)
}

func TestHappyPath(t *testing.T) {
	rec := &recorder{}
	l := New("op-1", domain.OpBet, "bet:7", rec)
	hash := common.HexToHash("0xabc")

	require.NoError(t, l.Prompt())
	require.NoError(t, l.Submitted(hash))
	require.NoError(t, l.Confirm(101, 21000))

	assert.Equal(t, []domain.TxState{domain.TxPrompted, domain.TxSubmitted, domain.TxConfirmed}, rec.states)
	snap := l.Snapshot()
	assert.Equal(t, domain.TxConfirmed, snap.State)
	assert.Equal(t, hash.Hex(), snap.TxHash)
	assert.Equal(t, uint64(101), snap.BlockNumber)
	assert.Equal(t, hash.Hex(), rec.events[2].TxHash)
	assert.True(t, snap.State.Terminal())
}

func TestSigningRejectedFailsFromPrompt(t *testing.T) {
	rec := &recorder{}
	l := New("op-2", domain.OpCreate, "create", rec)

	require.NoError(t, l.Prompt())
	require.NoError(t, l.Fail(errors.New("user rejected")))

	assert.Equal(t, []domain.TxState{domain.TxPrompted, domain.TxFailed}, rec.states)
	assert.Equal(t, "user rejected", l.Snapshot().Error)
	assert.Empty(t, l.Snapshot().TxHash)
}

func TestInvalidTransitions(t *testing.T) {
	l := New("op-3", domain.OpWithdraw, "withdraw", nil)

	assert.ErrorIs(t, l.Submitted(common.Hash{}), ErrInvalidTransition)
	assert.ErrorIs(t, l.Confirm(1, 1), ErrInvalidTransition)
	assert.ErrorIs(t, l.Fail(nil), ErrInvalidTransition)

	require.NoError(t, l.Prompt())
	assert.ErrorIs(t, l.Prompt(), ErrInvalidTransition)
	assert.ErrorIs(t, l.Confirm(1, 1), ErrInvalidTransition)

	require.NoError(t, l.Submitted(common.HexToHash("0x1")))
	require.NoError(t, l.Fail(domain.ErrReverted))

	// Terminal states accept nothing.
	assert.ErrorIs(t, l.Confirm(1, 1), ErrInvalidTransition)
	assert.ErrorIs(t, l.Fail(nil), ErrInvalidTransition)
	assert.Equal(t, domain.TxFailed, l.State())
}

func TestExactlyOneTerminalUnderRace(t *testing.T) {
	l := New("op-4", domain.OpFinalize, "finalize:1", nil)
	require.NoError(t, l.Prompt())
	require.NoError(t, l.Submitted(common.HexToHash("0x2")))

	var wg sync.WaitGroup
	results := make(chan error, 2)
	wg.Add(2)
	go func() { defer wg.Done(); results <- l.Confirm(5, 5) }()
	go func() { defer wg.Done(); results <- l.Fail(errors.New("x")) }()
	wg.Wait()
	close(results)

	ok := 0
	for err := range results {
		if err == nil {
			ok++
		}
	}
	assert.Equal(t, 1, ok)
}
