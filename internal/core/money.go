// Package core provides money parsing and handling utilities.
//
// Amounts are kept as integer cents. Parsing goes through decimal arithmetic
// so that user input and backup floats round the same way.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	hundred = decimal.NewFromInt(100)
	// Prevent overflow when converting to cents
	maxAmount = decimal.NewFromInt((1<<63 - 1) / 100)
)

// ParseAmount converts a decimal string to Money with half-up rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators.
// Returns ErrInvalidAmount for invalid formats, signs, or zero amounts.
//
// Examples:
//
//	ParseAmount("12.34")  -> 1234 cents
//	ParseAmount("12,345") -> 1235 cents
func ParseAmount(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	dots := 0
	for _, r := range s {
		switch {
		case r == '.':
			dots++
		case r < '0' || r > '9':
			return Money{}, ErrInvalidAmount
		}
	}
	if dots > 1 || s == "." {
		return Money{}, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	return fromDecimal(d)
}

// MoneyFromFloat converts an amount stored as a floating point number
// (as found in JSON backups) to cents.
func MoneyFromFloat(f float64) (Money, error) {
	return fromDecimal(decimal.NewFromFloat(f))
}

func fromDecimal(d decimal.Decimal) (Money, error) {
	if d.GreaterThan(maxAmount) {
		return Money{}, ErrInvalidAmount
	}
	cents := d.Mul(hundred).Round(0).IntPart()
	if cents <= 0 {
		return Money{}, ErrInvalidAmount
	}
	return Money{Cents: cents}, nil
}

// Float returns the amount in currency units. Use cents for arithmetic.
func (m Money) Float() float64 {
	f, _ := decimal.New(m.Cents, -2).Float64()
	return f
}

// Add returns the sum of two amounts.
func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

// FormatMoney renders the amount with two decimals using the number
// conventions of the given locale.
func FormatMoney(m Money, tag language.Tag) string {
	p := message.NewPrinter(tag)
	return p.Sprintf("%.2f", m.Float())
}
