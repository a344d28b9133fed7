package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ERC20 reads from and encodes calls to arbitrary ERC-20 tokens.
type ERC20 struct {
	backend Backend
}

// NewERC20 creates an ERC20 binding usable for any token address.
func NewERC20(backend Backend) *ERC20 {
	return &ERC20{backend: backend}
}

func (e *ERC20) at(token common.Address) *bound {
	return &bound{address: token, abi: ERC20ABI, backend: e.backend}
}

// BalanceOf returns account's balance of token.
func (e *ERC20) BalanceOf(ctx context.Context, token, account common.Address) (*big.Int, error) {
	out, err := e.at(token).call(ctx, "balanceOf", account)
	if err != nil {
		return nil, err
	}
	return single[*big.Int]("balanceOf", out)
}

// Allowance returns how much of token spender may move on owner's behalf.
func (e *ERC20) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	out, err := e.at(token).call(ctx, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return single[*big.Int]("allowance", out)
}

// Decimals returns token's decimals.
func (e *ERC20) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	out, err := e.at(token).call(ctx, "decimals")
	if err != nil {
		return 0, err
	}
	return single[uint8]("decimals", out)
}

// Symbol returns token's symbol.
func (e *ERC20) Symbol(ctx context.Context, token common.Address) (string, error) {
	out, err := e.at(token).call(ctx, "symbol")
	if err != nil {
		return "", err
	}
	return single[string]("symbol", out)
}

// Name returns token's name.
func (e *ERC20) Name(ctx context.Context, token common.Address) (string, error) {
	out, err := e.at(token).call(ctx, "name")
	if err != nil {
		return "", err
	}
	return single[string]("name", out)
}

// PackApprove encodes approve(spender, amount).
func (e *ERC20) PackApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	data, err := ERC20ABI.Pack("approve", spender, amount)
	if err != nil {
		return nil, fmt.Errorf("chain: pack approve: %w", err)
	}
	return data, nil
}
