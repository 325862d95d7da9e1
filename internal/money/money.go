// Package money converts externally supplied decimal prices and quantities
// into the fixed-point representation the ledger stores: integer cents for
// anything denominated in currency, arbitrary-precision decimals for share
// quantities. Binary floating point never participates in a balance
// computation.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount")

// ToCents converts a decimal dollar price to integer cents, rounding half-up
// (ties away from zero).
func ToCents(price decimal.Decimal) (int64, error) {
	if price.LessThanOrEqual(decimal.Zero) {
		return 0, fmt.Errorf("%w: price must be positive", ErrInvalidAmount)
	}
	return price.Shift(2).Round(0).IntPart(), nil
}

// Total computes priceCents x quantity rounded half-up to the nearest cent.
// The result is rounded exactly once; callers must not round it again.
func Total(priceCents int64, quantity decimal.Decimal) int64 {
	return decimal.NewFromInt(priceCents).Mul(quantity).Round(0).IntPart()
}

// ParseQuantity parses a user-supplied share quantity. Fractional shares are
// allowed at arbitrary precision; malformed or non-positive input is rejected.
func ParseQuantity(s string) (decimal.Decimal, error) {
	qty, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: quantity must be a decimal number", ErrInvalidAmount)
	}
	if qty.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("%w: quantity must be positive", ErrInvalidAmount)
	}
	return qty, nil
}

// CentsToDollars renders integer cents as an exact two-decimal dollar amount.
func CentsToDollars(cents int64) decimal.Decimal {
	return decimal.NewFromInt(cents).Shift(-2)
}
