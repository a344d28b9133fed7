package wallet

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRawKey(t *testing.T) {
	w, err := Generate()
	require.NoError(t, err)
	hexKey := "0x" + common.Bytes2Hex(ethcrypto.FromECDSA(w.key))

	loaded, err := Load(Source{PrivateKey: hexKey})
	require.NoError(t, err)
	assert.Equal(t, w.Address(), loaded.Address())
}

func TestLoadEmptySource(t *testing.T) {
	_, err := Load(Source{})
	assert.ErrorIs(t, err, ErrNoKey)
	assert.True(t, Source{}.Empty())
}

func TestLoadInvalidRawKey(t *testing.T) {
	_, err := Load(Source{PrivateKey: "not-hex"})
	assert.Error(t, err)
}

func TestKeyfileRoundTrip(t *testing.T) {
	w, err := Generate()
	require.NoError(t, err)

	blob, err := w.Seal("hunter2")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	loaded, err := Load(Source{KeyfilePath: path, Password: "hunter2"})
	require.NoError(t, err)
	assert.Equal(t, w.Address(), loaded.Address())

	_, err = Load(Source{KeyfilePath: path, Password: "wrong"})
	assert.Error(t, err)

	_, err = Seal(w.key, "")
	assert.Error(t, err)
}

func TestSignTxRecoversSender(t *testing.T) {
	w, err := Generate()
	require.NoError(t, err)
	chainID := big.NewInt(8453)
	to := common.HexToAddress("0x01")

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     1,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2),
		Gas:       300_000,
		To:        &to,
		Value:     new(big.Int),
	})
	signed, err := w.SignTx(tx, chainID)
	require.NoError(t, err)

	from, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	require.NoError(t, err)
	assert.Equal(t, w.Address(), from)
	assert.Equal(t, uint64(300_000), signed.Gas())
}
