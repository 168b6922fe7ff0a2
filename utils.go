package driftmarket

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// MaxCurrencyDecimals bounds the decimals accepted from a currency
// contract.
const MaxCurrencyDecimals = 36

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// ParseAmount converts a human-readable decimal amount into the currency's
// base units. Precision beyond the currency's decimals is rejected rather
// than silently truncated; money should not round on its way to the chain.
func ParseAmount(amount string, decimals uint8) (*big.Int, error) {
	if decimals > MaxCurrencyDecimals {
		return nil, &InvalidParamError{
			Message: fmt.Sprintf("decimals must be between 0 and %d, got %d", MaxCurrencyDecimals, decimals),
		}
	}

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, &InvalidParamError{Message: fmt.Sprintf("invalid amount %q: %v", amount, err)}
	}
	if d.Sign() <= 0 {
		return nil, &InvalidParamError{Message: fmt.Sprintf("amount must be positive, got %s", amount)}
	}

	shifted := d.Shift(int32(decimals))
	if !shifted.IsInteger() {
		return nil, &InvalidParamError{
			Message: fmt.Sprintf("amount %s has more precision than the currency's %d decimals", amount, decimals),
		}
	}

	units := shifted.BigInt()
	if units.Cmp(maxUint256) > 0 {
		return nil, &InvalidParamError{Message: fmt.Sprintf("amount too large for uint256: %s", amount)}
	}
	return units, nil
}

// FormatAmount renders base units as a decimal in currency units.
func FormatAmount(units *big.Int, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(units, -int32(decimals))
}

// randomNonce draws an intent nonce. It guards against hash collisions
// between otherwise identical orders from the same maker.
func randomNonce() (uint64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("failed to draw order nonce: %w", err)
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}
