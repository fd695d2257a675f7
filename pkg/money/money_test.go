package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCurrency(t *testing.T) {
	t.Run("accepts known codes case-insensitively", func(t *testing.T) {
		for _, raw := range []string{"EUR", "eur", " usd ", "GBP"} {
			code, err := NormalizeCurrency(raw)
			require.NoError(t, err, raw)
			assert.Len(t, code, 3)
		}
	})

	t.Run("rejects unknown codes", func(t *testing.T) {
		_, err := NormalizeCurrency("XYZ")
		assert.ErrorIs(t, err, ErrUnknownCurrency)

		_, err = NormalizeCurrency("")
		assert.ErrorIs(t, err, ErrUnknownCurrency)
	})
}

func TestDisplay(t *testing.T) {
	assert.Equal(t, "€1.234,56", Display(decimal.RequireFromString("1234.56"), "EUR"))
	assert.Equal(t, "XXXX 5.00", Display(decimal.RequireFromString("5"), "XXXX"))
}
