package solanapay

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// NativeDecimals is the decimal precision of SOL (lamports per SOL = 10^9).
const NativeDecimals uint8 = 9

var amountPattern = regexp.MustCompile(`^\d+(\.\d+)?$`)

// ParseAmount parses a non-negative decimal in plain notation ("1", "0.25").
// Signs, exponents and bare dots are rejected.
func ParseAmount(s string) (decimal.Decimal, error) {
	if !amountPattern.MatchString(s) {
		return decimal.Decimal{}, fmt.Errorf("%w: %q is not a non-negative decimal", ErrInvalidAmount, s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	return d, nil
}

// FormatAmount renders an amount with exactly its significant fractional
// digits: no trailing zeros, no exponent.
func FormatAmount(d decimal.Decimal) string {
	return d.String()
}

// Scale returns the number of significant fractional digits of d.
func Scale(d decimal.Decimal) int {
	s := d.String()
	dot := strings.IndexByte(s, '.')
	if dot < 0 {
		return 0
	}
	return len(s) - dot - 1
}

// ToBaseUnits converts a decimal amount to integer base units of an asset
// with the given decimals: floor(amount * 10^decimals). Amounts with more
// fractional digits than the asset supports are rejected rather than rounded.
func ToBaseUnits(amount decimal.Decimal, decimals uint8) (uint64, error) {
	if amount.Sign() < 0 {
		return 0, fmt.Errorf("%w: negative amount %s", ErrInvalidAmount, amount)
	}
	if Scale(amount) > int(decimals) {
		return 0, fmt.Errorf("%w: %s has more than %d decimal places", ErrInvalidAmount, amount, decimals)
	}
	units := amount.Shift(int32(decimals)).Floor().BigInt()
	if !units.IsUint64() {
		return 0, fmt.Errorf("%w: %s overflows base units", ErrInvalidAmount, amount)
	}
	return units.Uint64(), nil
}

// FromBaseUnits converts integer base units back to a decimal amount.
func FromBaseUnits(units uint64, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(units), -int32(decimals))
}
