// Package core provides money parsing and handling utilities.
//
// Amounts are held as integer minor units everywhere. Decimal strings only
// appear at the edges (CLI input, reports) and go through shopspring/decimal.
package core

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	hundred     = decimal.NewFromInt(100)
	maxCentsDec = decimal.NewFromInt(math.MaxInt64)
)

// ParseDecimalToCents converts a decimal string to cents with proper rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and performs
// half-up rounding on the third decimal place. Signs, exponents and values that
// round to zero are rejected.
//
// Examples:
//
//	ParseDecimalToCents("12.34") -> 1234, nil
//	ParseDecimalToCents("12,34") -> 1234, nil
//	ParseDecimalToCents("12.345") -> 1235, nil
//	ParseDecimalToCents("12.344") -> 1234, nil
func ParseDecimalToCents(s string) (int64, error) {
	v, err := parseCents(s)
	if err != nil {
		return 0, err
	}
	if v == 0 {
		return 0, ErrInvalidAmount
	}
	return v, nil
}

// ParseShareToCents is ParseDecimalToCents for exact-split shares, where a
// member may owe nothing: "0" and "0.00" are accepted.
func ParseShareToCents(s string) (int64, error) {
	return parseCents(s)
}

func parseCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.ContainsAny(s, "+-eE") {
		return 0, ErrInvalidAmount
	}
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	cents := d.Mul(hundred).Round(0)
	if cents.GreaterThan(maxCentsDec) {
		return 0, ErrInvalidAmount
	}
	return cents.IntPart(), nil
}

// FormatCents renders signed minor units with two decimals, e.g. -1050 -> "-10.50".
func FormatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

func (m Money) String() string {
	return FormatCents(m.Cents)
}

// Decimal returns the amount in major units for display and export.
// Use Cents for arithmetic.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// Add returns m + o.
func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}
