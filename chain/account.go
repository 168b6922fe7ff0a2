package chain

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Account abstracts transaction signing so the SDK never handles raw key
// material outside of one place. Hardware wallets or remote signers can be
// plugged in by implementing this interface.
type Account interface {
	Address() common.Address
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// PrivateKeyAccount signs with an in-memory secp256k1 key.
type PrivateKeyAccount struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewPrivateKeyAccount parses a hex-encoded private key, with or without the
// 0x prefix.
func NewPrivateKeyAccount(hexKey string) (*PrivateKeyAccount, error) {
	cleaned := strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	key, err := crypto.HexToECDSA(cleaned)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	pub, ok := key.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("failed to derive public key")
	}

	return &PrivateKeyAccount{
		key:     key,
		address: crypto.PubkeyToAddress(*pub),
	}, nil
}

// Address returns the address derived from the key.
func (a *PrivateKeyAccount) Address() common.Address {
	return a.address
}

// SignTx signs the transaction with an EIP-155 signer for the given chain.
func (a *PrivateKeyAccount) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, types.NewEIP155Signer(chainID), a.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return signed, nil
}
