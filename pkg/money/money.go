// Package money validates currency codes and renders decimal amounts for
// display. Arithmetic stays on shopspring decimals; go-money supplies the
// ISO-4217 table.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

var ErrUnknownCurrency = errors.New("unknown currency code")

// NormalizeCurrency validates a 3-letter ISO-4217 code and returns it
// uppercased.
func NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if money.GetCurrency(code) == nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownCurrency, code)
	}
	return code, nil
}

// Display renders an amount with its currency symbol, e.g. "€1,234.56".
// Unknown currencies fall back to "<code> <amount>".
func Display(amount decimal.Decimal, code string) string {
	currency := money.GetCurrency(code)
	if currency == nil {
		return code + " " + amount.StringFixed(2)
	}

	minor := amount.Shift(int32(currency.Fraction)).Round(0).IntPart()
	return money.New(minor, currency.Code).Display()
}
