package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// defaultPollInterval is how often WaitMined asks for a receipt.
const defaultPollInterval = 2 * time.Second

// Signer signs transactions for a single account.
type Signer interface {
	Address() common.Address
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// Transactor builds, signs and broadcasts EIP-1559 transactions from one
// account. Gas limits are supplied by the caller and never estimated.
type Transactor struct {
	backend      Backend
	signer       Signer
	chainID      *big.Int
	pollInterval time.Duration
}

// NewTransactor creates a Transactor for signer on chainID.
func NewTransactor(backend Backend, signer Signer, chainID *big.Int) *Transactor {
	return &Transactor{
		backend:      backend,
		signer:       signer,
		chainID:      chainID,
		pollInterval: defaultPollInterval,
	}
}

// From returns the sending account.
func (t *Transactor) From() common.Address {
	return t.signer.Address()
}

// SetPollInterval overrides the receipt polling period.
func (t *Transactor) SetPollInterval(d time.Duration) {
	if d > 0 {
		t.pollInterval = d
	}
}

// Build assembles an unsigned call to `to` with the given gas limit. The
// fee cap is twice the latest base fee plus the suggested tip.
func (t *Transactor) Build(ctx context.Context, to common.Address, data []byte, gasLimit uint64) (*types.Transaction, error) {
	nonce, err := t.backend.PendingNonceAt(ctx, t.signer.Address())
	if err != nil {
		return nil, fmt.Errorf("chain: pending nonce: %w", err)
	}
	tip, err := t.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain: suggest tip: %w", err)
	}
	head, err := t.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: latest header: %w", err)
	}
	if head.BaseFee == nil {
		return nil, errors.New("chain: latest header has no base fee")
	}
	feeCap := new(big.Int).Mul(head.BaseFee, big.NewInt(2))
	feeCap.Add(feeCap, tip)

	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   t.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &to,
		Value:     new(big.Int),
		Data:      data,
	}), nil
}

// Sign signs tx with the account key.
func (t *Transactor) Sign(tx *types.Transaction) (*types.Transaction, error) {
	signed, err := t.signer.SignTx(tx, t.chainID)
	if err != nil {
		return nil, fmt.Errorf("chain: sign: %w", err)
	}
	return signed, nil
}

// Send broadcasts a signed transaction exactly once.
func (t *Transactor) Send(ctx context.Context, tx *types.Transaction) error {
	if err := t.backend.SendTransaction(ctx, tx); err != nil {
		return fmt.Errorf("chain: send %s: %w", tx.Hash().Hex(), err)
	}
	return nil
}

// WaitMined polls for the receipt of hash until it is available or ctx is
// done. There is no internal timeout.
func (t *Transactor) WaitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()
	for {
		receipt, err := t.backend.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) && ctx.Err() != nil {
			return nil, fmt.Errorf("chain: receipt %s: %w", hash.Hex(), err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("chain: wait mined %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
