// Package money converts between integer minor units and the decimal strings
// users type and read.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrTooPrecise    = errors.New("amount has more decimal places than the currency allows")
)

// Currency describes how many minor units make one major unit (10^Exponent).
// JPY has exponent 0, USD 2.
type Currency struct {
	Exponent int32
	Symbol   string
}

var JPY = Currency{Exponent: 0, Symbol: "円"}

// Parse reads a decimal string such as "1500" or "12.34" into minor units.
// It rejects values finer than the currency's minor unit.
func (c Currency) Parse(s string) (int64, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	minor := d.Shift(c.Exponent)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, fmt.Errorf("%w: %q", ErrTooPrecise, s)
	}
	return minor.IntPart(), nil
}

// Decimal returns amount in major units.
func (c Currency) Decimal(amount int64) decimal.Decimal {
	return decimal.New(amount, -c.Exponent)
}

// String renders amount with exactly Exponent decimal places.
func (c Currency) String(amount int64) string {
	return c.Decimal(amount).StringFixed(c.Exponent)
}

// Format renders amount for people, with the currency symbol.
func (c Currency) Format(amount int64) string {
	if c.Symbol == "" {
		return c.String(amount)
	}
	return c.String(amount) + " " + c.Symbol
}
