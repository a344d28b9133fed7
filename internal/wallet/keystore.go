package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/pbkdf2"
)

const (
	kdfIterations = 480_000
	saltLen       = 16
	aesKeyLen     = 32
	keyfileV1     = 1
)

// keyfile is the on-disk form of an encrypted wallet key.
type keyfile struct {
	Version    int    `json:"version"`
	Address    string `json:"address"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// Source says where the wallet key comes from. A raw key wins over a file.
type Source struct {
	PrivateKey  string
	KeyfilePath string
	Password    string
}

// Empty reports whether no key source is configured.
func (s Source) Empty() bool {
	return s.PrivateKey == "" && s.KeyfilePath == ""
}

// ErrNoKey is returned by Load when Source is empty.
var ErrNoKey = errors.New("wallet: no key configured")

func gcmFor(password string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, kdfIterations, aesKeyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("wallet: cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("wallet: gcm: %w", err)
	}
	return gcm, nil
}

// Seal encrypts key under password and returns keyfile JSON.
func Seal(key *ecdsa.PrivateKey, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("wallet: empty password")
	}
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("wallet: salt: %w", err)
	}
	gcm, err := gcmFor(password, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("wallet: nonce: %w", err)
	}
	kf := keyfile{
		Version:    keyfileV1,
		Address:    ethcrypto.PubkeyToAddress(key.PublicKey).Hex(),
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, ethcrypto.FromECDSA(key), nil)),
	}
	return json.MarshalIndent(kf, "", "  ")
}

// Open decrypts keyfile JSON produced by Seal.
func Open(data []byte, password string) (*ecdsa.PrivateKey, error) {
	if password == "" {
		return nil, errors.New("wallet: empty password")
	}
	var kf keyfile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("wallet: parse keyfile: %w", err)
	}
	if kf.Version != keyfileV1 {
		return nil, fmt.Errorf("wallet: unsupported keyfile version %d", kf.Version)
	}
	salt, err := base64.StdEncoding.DecodeString(kf.Salt)
	if err != nil {
		return nil, fmt.Errorf("wallet: decode salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(kf.Nonce)
	if err != nil {
		return nil, fmt.Errorf("wallet: decode nonce: %w", err)
	}
	ct, err := base64.StdEncoding.DecodeString(kf.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("wallet: decode ciphertext: %w", err)
	}
	gcm, err := gcmFor(password, salt)
	if err != nil {
		return nil, err
	}
	raw, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("wallet: decrypt (wrong password?): %w", err)
	}
	key, err := ethcrypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("wallet: decrypted key invalid: %w", err)
	}
	if kf.Address != "" && !strings.EqualFold(kf.Address, ethcrypto.PubkeyToAddress(key.PublicKey).Hex()) {
		return nil, errors.New("wallet: keyfile address does not match key")
	}
	return key, nil
}

// resolveKey loads the private key named by src.
func resolveKey(src Source) (*ecdsa.PrivateKey, error) {
	if src.PrivateKey != "" {
		key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(src.PrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("wallet: invalid private key: %w", err)
		}
		return key, nil
	}
	if src.KeyfilePath != "" {
		data, err := os.ReadFile(src.KeyfilePath)
		if err != nil {
			return nil, fmt.Errorf("wallet: read keyfile: %w", err)
		}
		return Open(data, src.Password)
	}
	return nil, ErrNoKey
}
