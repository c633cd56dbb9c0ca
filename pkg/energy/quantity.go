// Package energy holds quantity parsing helpers shared by the API
// surfaces. Quantities are exact decimals; floats never enter the
// ledgers.
package energy

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ParseQuantity parses a positive energy quantity from its string form.
func ParseQuantity(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid quantity %q: %w", s, err)
	}
	if !d.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("quantity must be positive, got %s", d)
	}
	return d, nil
}

// ParseInitial parses a non-negative seed quantity (creation endpoints
// accept zero).
func ParseInitial(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid quantity %q: %w", s, err)
	}
	if d.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("quantity must not be negative, got %s", d)
	}
	return d, nil
}

// ParseRate parses a non-negative per-second consumption rate.
func ParseRate(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid rate %q: %w", s, err)
	}
	if d.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("rate must not be negative, got %s", d)
	}
	return d, nil
}
