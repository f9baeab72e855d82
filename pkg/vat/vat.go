// Package vat computes value-added tax on invoice amounts.
package vat

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultRate is the standard 12% rate.
var DefaultRate = decimal.RequireFromString("0.12")

// ErrInvalidAmount is returned for values that are not decimal numbers.
var ErrInvalidAmount = errors.New("vat: invalid amount")

// Calculator derives the VAT of an invoice amount and the cost left after it.
type Calculator struct {
	rate   decimal.Decimal
	places int32
}

// New creates a calculator. A non-positive rate falls back to DefaultRate.
func New(rate decimal.Decimal) Calculator {
	if !rate.IsPositive() {
		rate = DefaultRate
	}
	return Calculator{rate: rate, places: 2}
}

// Rate returns the configured rate.
func (c Calculator) Rate() decimal.Decimal { return c.rate }

// VAT returns amount * rate rounded to cents.
func (c Calculator) VAT(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(c.rate).Round(c.places)
}

// Net returns the cost: amount minus its VAT.
func (c Calculator) Net(amount decimal.Decimal) decimal.Decimal {
	return amount.Sub(c.VAT(amount)).Round(c.places)
}

// Format renders an amount with two decimals.
func (c Calculator) Format(amount decimal.Decimal) string {
	return amount.StringFixed(c.places)
}

// ParseAmount reads a user supplied amount, ignoring thousands separators.
// The empty string parses as zero.
func ParseAmount(raw string) (decimal.Decimal, error) {
	clean := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if clean == "" {
		return decimal.Zero, nil
	}
	amount, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	return amount, nil
}
