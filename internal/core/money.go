// Package core provides money parsing and handling utilities.
//
// Amounts are carried as decimal.Decimal and normalised to two decimal
// places. Stores persist them as integer cents so that server-side sums
// stay exact.
package core

import (
	"errors"
	"math"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrAmountTooLarge = errors.New("amount exceeds the storable range")

	// MaxAmount is the largest amount whose cents fit in an int64.
	MaxAmount = FromCents(math.MaxInt64)

	maxCents = decimal.NewFromInt(math.MaxInt64)
	minCents = decimal.NewFromInt(math.MinInt64)
)

// RoundAmount rounds half away from zero to two decimal places.
func RoundAmount(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Cents converts an amount to integer cents after rounding. Amounts whose
// cents do not fit in an int64 return ErrAmountTooLarge.
func Cents(d decimal.Decimal) (int64, error) {
	c := RoundAmount(d).Shift(2)
	if c.GreaterThan(maxCents) || c.LessThan(minCents) {
		return 0, ErrAmountTooLarge
	}
	return c.IntPart(), nil
}

// CentsBound converts a filter bound to whole cents, rounding up for lower
// bounds and down for upper bounds. ok is false when the rounded bound lies
// outside the int64 range; above reports which side it fell off.
func CentsBound(d decimal.Decimal, lower bool) (c int64, ok, above bool) {
	shifted := d.Shift(2)
	if lower {
		shifted = shifted.Ceil()
	} else {
		shifted = shifted.Floor()
	}
	switch {
	case shifted.GreaterThan(maxCents):
		return 0, false, true
	case shifted.LessThan(minCents):
		return 0, false, false
	}
	return shifted.IntPart(), true, false
}

// FromCents converts integer cents back to a two-place decimal.
func FromCents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}

// ParseAmount parses a statement amount into a non-negative decimal.
//
// It tolerates currency markers (₹, Rs, INR), thousands separators and a
// decimal comma. A single comma followed by exactly two digits is read as a
// decimal separator; any other comma is a thousands separator.
//
// Examples:
//
//	ParseAmount("1,234.50") -> 1234.50
//	ParseAmount("12,34")    -> 12.34
//	ParseAmount("Rs. 500")  -> 500.00
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"₹", "INR", "Rs.", "Rs"} {
		s = strings.TrimSpace(strings.TrimPrefix(s, prefix))
	}
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		// Only positive values allowed
		return decimal.Zero, ErrInvalidAmount
	}

	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		if i := strings.IndexByte(s, ','); len(s)-i-1 == 2 {
			s = s[:i] + "." + s[i+1:]
		}
	}
	s = strings.ReplaceAll(s, ",", "")

	if strings.Count(s, ".") > 1 {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, r := range s {
		if r != '.' && !unicode.IsDigit(r) {
			return decimal.Zero, ErrInvalidAmount
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return RoundAmount(d), nil
}
