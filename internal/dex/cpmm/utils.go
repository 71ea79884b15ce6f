// internal/dex/cpmm/utils.go
package cpmm

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// TokenAmountToDecimal converts a smallest-unit amount to human-readable
// units of the mint.
func TokenAmountToDecimal(amount uint64, decimals uint8) decimal.Decimal {
	return decimal.NewFromUint64(amount).Shift(-int32(decimals))
}

// DecimalToTokenAmount converts a human-readable amount to smallest units.
// The amount must be positive and representable without a fractional
// smallest unit.
func DecimalToTokenAmount(amount decimal.Decimal, decimals uint8) (uint64, error) {
	if amount.Sign() <= 0 {
		return 0, fmt.Errorf("amount must be positive, got %s", amount)
	}
	shifted := amount.Shift(int32(decimals))
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("amount %s has a fractional smallest unit at %d decimals", amount, decimals)
	}
	bi := shifted.BigInt()
	if !bi.IsUint64() {
		return 0, fmt.Errorf("amount %s exceeds the uint64 range at %d decimals", amount, decimals)
	}
	return bi.Uint64(), nil
}

// FormatTokenAmount renders a smallest-unit amount with the mint's full
// precision, for logs and results.
func FormatTokenAmount(amount uint64, decimals uint8) string {
	return TokenAmountToDecimal(amount, decimals).StringFixed(int32(decimals))
}

// uiAmountToRaw converts an index-service amount to smallest units,
// truncating any sub-unit fraction.
func uiAmountToRaw(amount float64, decimals uint8) uint64 {
	if amount <= 0 {
		return 0
	}
	raw := decimal.NewFromFloat(amount).Shift(int32(decimals)).Truncate(0).BigInt()
	if !raw.IsUint64() {
		return 0
	}
	return raw.Uint64()
}

func parseKey(field, value string) (solana.PublicKey, error) {
	if value == "" {
		return solana.PublicKey{}, fmt.Errorf("empty %s", field)
	}
	pk, err := solana.PublicKeyFromBase58(value)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid %s %q: %w", field, value, err)
	}
	if pk.IsZero() {
		return solana.PublicKey{}, fmt.Errorf("zero %s", field)
	}
	return pk, nil
}
