package mapper

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// AmountFormat names the thousands/decimal separator convention of the file.
type AmountFormat string

const (
	AmountFormatUS    AmountFormat = "1,234.56" // comma thousands, dot decimal
	AmountFormatEU    AmountFormat = "1.234,56" // dot thousands, comma decimal
	AmountFormatComma AmountFormat = "1234,56"  // no thousands, comma decimal
	AmountFormatPlain AmountFormat = "1234.56"  // no thousands, dot decimal
)

// SignStrategy converts a parsed amount into the signed convention used
// internally (negative = money out).
type SignStrategy string

const (
	SignSignedAmount    SignStrategy = "signed_amount"
	SignIncomePositive  SignStrategy = "income_positive"
	SignExpensePositive SignStrategy = "expense_positive"
)

// ParseAmount normalizes a raw amount cell to a 2-fraction-digit decimal.
// Everything except digits, separators and the minus sign is stripped first,
// so currency symbols and spaces in the source data are harmless.
func ParseAmount(value string, format AmountFormat, strategy SignStrategy) (decimal.Decimal, error) {
	cleaned := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' || r == '.' || r == ',' || r == '-' {
			return r
		}
		return -1
	}, value)

	switch format {
	case AmountFormatUS:
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	case AmountFormatEU:
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	case AmountFormatComma:
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	}

	if cleaned == "" || cleaned == "-" {
		return decimal.Zero, fmt.Errorf("%w: %q has no numeric content", ErrInvalidAmount, value)
	}

	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, value)
	}
	amount = amount.Round(2)

	if strategy == SignExpensePositive {
		amount = amount.Neg()
	}
	return amount, nil
}
