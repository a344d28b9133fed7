// Package wallet holds the service account key and signs transactions with
// it. Keys come from a raw hex value or a password-encrypted keyfile.
package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Wallet signs transactions for one account.
type Wallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// Load resolves src into a Wallet. It returns ErrNoKey when src is empty.
func Load(src Source) (*Wallet, error) {
	key, err := resolveKey(src)
	if err != nil {
		return nil, err
	}
	return FromKey(key), nil
}

// FromKey wraps an existing private key.
func FromKey(key *ecdsa.PrivateKey) *Wallet {
	return &Wallet{key: key, address: ethcrypto.PubkeyToAddress(key.PublicKey)}
}

// Generate creates a wallet with a fresh random key.
func Generate() (*Wallet, error) {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("wallet: generate: %w", err)
	}
	return FromKey(key), nil
}

// Address returns the account address.
func (w *Wallet) Address() common.Address {
	return w.address
}

// SignTx signs tx for chainID with the latest signer rules.
func (w *Wallet) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), w.key)
	if err != nil {
		return nil, fmt.Errorf("wallet: sign tx: %w", err)
	}
	return signed, nil
}

// Seal encrypts the wallet key under password.
func (w *Wallet) Seal(password string) ([]byte, error) {
	return Seal(w.key, password)
}
