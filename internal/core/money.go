// Package core provides the scale-of-assessment domain types.
//
// This file contains the fixed-point helpers shared by the engine: every
// percentage and amount is a decimal truncated to Scale places.
package core

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of decimal places kept by every computation.
const Scale int32 = 10

// Limits for any decimal entering the engine. Budgets in the trillions at
// full Scale precision fit well inside them.
const (
	maxInputLength     = 64
	maxIntegerDigits   = 24
	maxExponent        = 64
	maxCoefficientBits = 256
)

var (
	hundred = decimal.NewFromInt(100)

	// ErrNotANumber is returned for blank or NaN cell input.
	ErrNotANumber = errors.New("not a number")

	// ErrOutOfRange is returned for numbers too large or too precise to
	// compute with.
	ErrOutOfRange = errors.New("number out of range")
)

// Hundred returns 100 as a decimal.
func Hundred() decimal.Decimal { return hundred }

// Trunc truncates d to the engine scale.
func Trunc(d decimal.Decimal) decimal.Decimal {
	return d.Truncate(Scale)
}

// CheckRange rejects decimals whose magnitude or precision is outside the
// engine limits. It only inspects the exponent and the coefficient size, so
// it is cheap even for values like 1e50000000.
func CheckRange(d decimal.Decimal) error {
	exp := d.Exponent()
	if exp > maxExponent || exp < -maxExponent || d.Coefficient().BitLen() > maxCoefficientBits {
		return ErrOutOfRange
	}
	if int(exp)+d.NumDigits() > maxIntegerDigits {
		return ErrOutOfRange
	}
	return nil
}

// ParseDecimal parses a cell value into a decimal truncated to Scale.
//
// It accepts dot (12.34) and comma (12,34) separators and ignores thousands
// spaces. Blank input and "NaN" return ErrNotANumber so callers can treat them
// as an explicit unset.
//
// Examples:
//   ParseDecimal("22")      -> 22
//   ParseDecimal("0,5")     -> 0.5
//   ParseDecimal(" nan ")   -> ErrNotANumber
func ParseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") {
		return decimal.Zero, ErrNotANumber
	}
	if len(s) > maxInputLength {
		return decimal.Zero, ErrOutOfRange
	}
	s = strings.ReplaceAll(s, " ", "")
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.ReplaceAll(s, ",", ".")
	} else {
		s = strings.ReplaceAll(s, ",", "")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if err := CheckRange(d); err != nil {
		return decimal.Zero, err
	}
	return Trunc(d), nil
}

// Dec is shorthand for building a decimal pointer from a float literal.
func Dec(f float64) *decimal.Decimal {
	d := decimal.NewFromFloat(f)
	return &d
}
