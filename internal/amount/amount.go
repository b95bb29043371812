package amount

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// FromRaw converts a raw integer token amount to a decimal in display units.
func FromRaw(raw *big.Int, decimals uint8) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(decimals))
}

// ToRaw converts a display-unit value to the raw integer amount, truncating
// anything below the token's smallest unit.
func ToRaw(value decimal.Decimal, decimals uint8) *big.Int {
	return value.Shift(int32(decimals)).Truncate(0).BigInt()
}

// Parse reads a human-entered amount like "0.25" and returns the raw
// integer amount for a token with the given decimals.
func Parse(input string, decimals uint8) (*big.Int, error) {
	value, err := decimal.NewFromString(input)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", input, err)
	}
	if value.IsNegative() {
		return nil, fmt.Errorf("amount %q is negative", input)
	}
	return ToRaw(value, decimals), nil
}

// Format renders a raw amount in display units with up to places decimal
// places, trailing zeros trimmed.
func Format(raw *big.Int, decimals uint8, places int32) string {
	value := FromRaw(raw, decimals)
	if places >= 0 {
		value = value.Round(places)
	}
	return value.String()
}
