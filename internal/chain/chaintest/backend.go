// Package chaintest provides an in-memory chain.Backend for tests. Contract
// calls are decoded with the registered ABI and answered by Go handlers.
package chaintest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Handler answers a decoded contract call with output values in ABI order.
type Handler func(method string, args []any) ([]any, error)

type contract struct {
	abi     abi.ABI
	handler Handler
}

// Backend is a fake chain.Backend.
type Backend struct {
	mu        sync.Mutex
	contracts map[common.Address]contract
	calls     []string
	nonce     uint64
	sent      []*types.Transaction
	receipts  map[common.Hash]*types.Receipt
	block     uint64

	// ChainIDValue is returned by ChainID.
	ChainIDValue *big.Int
	// BaseFee is the base fee of the latest header.
	BaseFee *big.Int
	// Tip is returned by SuggestGasTipCap.
	Tip *big.Int
	// SendErr, when set, fails every SendTransaction.
	SendErr error
	// Revert makes mined receipts report failure.
	Revert bool
	// HoldReceipts keeps sent transactions pending until Mine is called.
	HoldReceipts bool
	// OnMined runs after a transaction is mined, before its receipt is visible.
	OnMined func(tx *types.Transaction)
}

// NewBackend creates an empty Backend on chain id 8453.
func NewBackend() *Backend {
	return &Backend{
		contracts:    make(map[common.Address]contract),
		receipts:     make(map[common.Hash]*types.Receipt),
		ChainIDValue: big.NewInt(8453),
		BaseFee:      big.NewInt(1_000_000),
		Tip:          big.NewInt(100_000),
		block:        100,
	}
}

// Register answers calls to addr using the given ABI and handler.
func (b *Backend) Register(addr common.Address, parsed abi.ABI, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.contracts[addr] = contract{abi: parsed, handler: h}
}

// Calls returns the method names called so far, in order.
func (b *Backend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

// CallCount returns how many times method was called.
func (b *Backend) CallCount(method string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		if c == method {
			n++
		}
	}
	return n
}

// Sent returns every broadcast transaction.
func (b *Backend) Sent() []*types.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*types.Transaction(nil), b.sent...)
}

// CallContract decodes msg with the registered ABI and packs the handler's
// outputs.
func (b *Backend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if msg.To == nil || len(msg.Data) < 4 {
		return nil, errors.New("chaintest: malformed call")
	}
	b.mu.Lock()
	c, ok := b.contracts[*msg.To]
	b.mu.Unlock()
	if !ok {
		return nil, nil
	}
	m, err := c.abi.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	args, err := m.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.calls = append(b.calls, m.Name)
	b.mu.Unlock()

	res, err := c.handler(m.Name, args)
	if err != nil {
		return nil, err
	}
	return m.Outputs.Pack(res...)
}

func (b *Backend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nonce, nil
}

func (b *Backend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return new(big.Int).Set(b.Tip), nil
}

func (b *Backend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &types.Header{Number: new(big.Int).SetUint64(b.block), BaseFee: new(big.Int).Set(b.BaseFee)}, nil
}

func (b *Backend) ChainID(context.Context) (*big.Int, error) {
	return new(big.Int).Set(b.ChainIDValue), nil
}

// SendTransaction records tx and, unless HoldReceipts is set, mines it.
func (b *Backend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	if b.SendErr != nil {
		b.mu.Unlock()
		return b.SendErr
	}
	b.sent = append(b.sent, tx)
	b.nonce++
	hold := b.HoldReceipts
	b.mu.Unlock()
	if !hold {
		b.Mine(tx.Hash())
	}
	return nil
}

// Mine produces a receipt for a previously sent transaction.
func (b *Backend) Mine(hash common.Hash) {
	b.mu.Lock()
	var tx *types.Transaction
	for _, s := range b.sent {
		if s.Hash() == hash {
			tx = s
		}
	}
	hook := b.OnMined
	b.mu.Unlock()
	if tx == nil {
		return
	}
	if hook != nil {
		hook(tx)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.block++
	status := types.ReceiptStatusSuccessful
	if b.Revert {
		status = types.ReceiptStatusFailed
	}
	b.receipts[hash] = &types.Receipt{
		Status:      status,
		TxHash:      hash,
		GasUsed:     tx.Gas() / 2,
		BlockNumber: new(big.Int).SetUint64(b.block),
	}
}

// TransactionReceipt returns ethereum.NotFound until the tx is mined.
func (b *Backend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

// MethodOf decodes the method name of a transaction's calldata.
func MethodOf(parsed abi.ABI, tx *types.Transaction) (string, []any, error) {
	data := tx.Data()
	if len(data) < 4 {
		return "", nil, fmt.Errorf("chaintest: short calldata")
	}
	m, err := parsed.MethodById(data[:4])
	if err != nil {
		return "", nil, err
	}
	args, err := m.Inputs.Unpack(data[4:])
	return m.Name, args, err
}
