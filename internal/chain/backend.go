// Package chain binds the alpha market and ERC-20 contracts over a
// go-ethereum backend and submits signed transactions.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Backend is the subset of *ethclient.Client the bindings use.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

var _ Backend = (*ethclient.Client)(nil)

// ErrNoCode is returned when a call to a contract address returns no data.
var ErrNoCode = errors.New("chain: no contract code at address")

// Dial connects to an RPC endpoint.
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	c, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", rpcURL, err)
	}
	return c, nil
}

// bound is a contract address paired with its ABI.
type bound struct {
	address common.Address
	abi     abi.ABI
	backend Backend
}

// call packs method(args...), executes it against the latest block and
// returns the unpacked outputs.
func (b *bound) call(ctx context.Context, method string, args ...any) ([]any, error) {
	input, err := b.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("chain: pack %s: %w", method, err)
	}
	to := b.address
	out, err := b.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: call %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("chain: call %s: %w", method, ErrNoCode)
	}
	res, err := b.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("chain: unpack %s: %w", method, err)
	}
	return res, nil
}

func (b *bound) pack(method string, args ...any) ([]byte, error) {
	data, err := b.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("chain: pack %s: %w", method, err)
	}
	return data, nil
}

func single[T any](method string, out []any) (T, error) {
	var zero T
	if len(out) == 0 {
		return zero, fmt.Errorf("chain: %s: empty result", method)
	}
	v, ok := out[0].(T)
	if !ok {
		return zero, fmt.Errorf("chain: %s: unexpected result type %T", method, out[0])
	}
	return v, nil
}
