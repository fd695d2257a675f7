package mapper

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/centavohq/centavo/internal/domain/transaction"
)

func intPtr(i int) *int { return &i }

func testMapping() ColumnMapping {
	return ColumnMapping{
		FieldBookedDate:  intPtr(0),
		FieldAmount:      intPtr(1),
		FieldPartner:     intPtr(2),
		FieldDescription: intPtr(3),
	}
}

func testFormat() FormatConfig {
	return FormatConfig{
		DateFormat:   "d.m.Y",
		AmountFormat: AmountFormatComma,
		SignStrategy: SignSignedAmount,
		Currency:     "EUR",
	}
}

func newTestMapper(t *testing.T, mapping ColumnMapping, format FormatConfig) *Mapper {
	t.Helper()
	m, err := New(mapping, format, uuid.New(), uuid.New())
	require.NoError(t, err)
	return m
}

func TestParseDate(t *testing.T) {
	t.Run("primary format normalizes to canonical form", func(t *testing.T) {
		parsed, err := ParseDate("01.03.2024", "d.m.Y")
		require.NoError(t, err)
		assert.Equal(t, "2024-03-01 00:00:00", parsed.Format(transaction.CanonicalDateLayout))
	})

	t.Run("canonical form round-trips to the same instant", func(t *testing.T) {
		first, err := ParseDate("01.03.2024", "d.m.Y")
		require.NoError(t, err)

		second, err := ParseDate(first.Format(transaction.CanonicalDateLayout), "Y-m-d H:i:s")
		require.NoError(t, err)
		assert.True(t, first.Equal(second))
	})

	t.Run("falls back through the alternative formats", func(t *testing.T) {
		parsed, err := ParseDate("2024-03-01", "d.m.Y")
		require.NoError(t, err)
		assert.Equal(t, "2024-03-01 00:00:00", parsed.Format(transaction.CanonicalDateLayout))
	})

	t.Run("unparseable value fails", func(t *testing.T) {
		_, err := ParseDate("bad-date", "d.m.Y")
		assert.ErrorIs(t, err, ErrInvalidDate)
	})
}

func TestParseAmount(t *testing.T) {
	t.Run("is format invariant", func(t *testing.T) {
		want := decimal.RequireFromString("1234.56")

		eu, err := ParseAmount("1.234,56", AmountFormatEU, SignSignedAmount)
		require.NoError(t, err)
		assert.True(t, want.Equal(eu))

		plain, err := ParseAmount("1234.56", AmountFormatPlain, SignSignedAmount)
		require.NoError(t, err)
		assert.True(t, want.Equal(plain))

		us, err := ParseAmount("1,234.56", AmountFormatUS, SignSignedAmount)
		require.NoError(t, err)
		assert.True(t, want.Equal(us))
	})

	t.Run("strips currency symbols and spaces", func(t *testing.T) {
		got, err := ParseAmount(" -4,50 €", AmountFormatComma, SignSignedAmount)
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("-4.50").Equal(got))
	})

	t.Run("expense_positive negates", func(t *testing.T) {
		got, err := ParseAmount("42.00", AmountFormatPlain, SignExpensePositive)
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("-42.00").Equal(got))
	})

	t.Run("signed_amount passes negatives through", func(t *testing.T) {
		got, err := ParseAmount("-42.00", AmountFormatPlain, SignSignedAmount)
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("-42.00").Equal(got))
	})

	t.Run("non numeric content fails", func(t *testing.T) {
		_, err := ParseAmount("n/a", AmountFormatPlain, SignSignedAmount)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})
}

func TestColumnMapping_Validate(t *testing.T) {
	t.Run("accepts fully mapped required fields", func(t *testing.T) {
		assert.NoError(t, testMapping().Validate())
	})

	t.Run("rejects unmapped required field", func(t *testing.T) {
		cm := testMapping()
		cm[FieldPartner] = nil
		assert.ErrorIs(t, cm.Validate(), ErrMissingRequiredMapping)
	})

	t.Run("rejects unknown field names at parse time", func(t *testing.T) {
		_, err := ParseColumnMapping(map[string]*int{"booked_date": intPtr(0), "color": intPtr(1)})
		assert.Error(t, err)
	})
}

func TestMapper_Map(t *testing.T) {
	t.Run("produces a complete draft", func(t *testing.T) {
		m := newTestMapper(t, testMapping(), testFormat())

		tx, err := m.Map([]string{"01.01.2024", "100,50", "ACME GmbH", "Salary"}, 2)
		require.NoError(t, err)

		assert.True(t, decimal.RequireFromString("100.50").Equal(tx.Amount))
		assert.Equal(t, "ACME GmbH", tx.Partner)
		assert.Equal(t, "Salary", tx.Description)
		assert.Equal(t, "EUR", tx.Currency)
		assert.Equal(t, transaction.TypeImported, tx.Type)
		assert.True(t, strings.HasPrefix(tx.TransactionID, "IMP-"))
		assert.Len(t, tx.TransactionID, len("IMP-")+10)
		assert.Equal(t, "2024-01-01 00:00:00", tx.BookedDate.Format(transaction.CanonicalDateLayout))
		assert.True(t, tx.BalanceAfterTransaction.IsZero())
		assert.Equal(t, 2, tx.Metadata["row_number"])
	})

	t.Run("generated transaction ids are unique", func(t *testing.T) {
		m := newTestMapper(t, testMapping(), testFormat())

		a, err := m.Map([]string{"01.01.2024", "1,00", "A", ""}, 2)
		require.NoError(t, err)
		b, err := m.Map([]string{"01.01.2024", "1,00", "A", ""}, 3)
		require.NoError(t, err)
		assert.NotEqual(t, a.TransactionID, b.TransactionID)
	})

	t.Run("blank partner cell defaults to Unknown", func(t *testing.T) {
		m := newTestMapper(t, testMapping(), testFormat())

		tx, err := m.Map([]string{"01.01.2024", "10,00", "   ", "Coffee"}, 2)
		require.NoError(t, err)
		assert.Equal(t, "Unknown", tx.Partner)
	})

	t.Run("missing description defaults", func(t *testing.T) {
		m := newTestMapper(t, testMapping(), testFormat())

		tx, err := m.Map([]string{"01.01.2024", "10,00", "Shop", ""}, 2)
		require.NoError(t, err)
		assert.Equal(t, "Imported transaction", tx.Description)
	})

	t.Run("processed date defaults to booked date", func(t *testing.T) {
		m := newTestMapper(t, testMapping(), testFormat())

		tx, err := m.Map([]string{"02.01.2024", "10,00", "Shop", ""}, 2)
		require.NoError(t, err)
		assert.True(t, tx.ProcessedDate.Equal(tx.BookedDate))
	})

	t.Run("unparseable processed date is defaulted not fatal", func(t *testing.T) {
		mapping := testMapping()
		mapping[FieldProcessedDate] = intPtr(4)
		m := newTestMapper(t, mapping, testFormat())

		tx, err := m.Map([]string{"02.01.2024", "10,00", "Shop", "", "???"}, 2)
		require.NoError(t, err)
		assert.True(t, tx.ProcessedDate.Equal(tx.BookedDate))
	})

	t.Run("bad booked date fails the row", func(t *testing.T) {
		m := newTestMapper(t, testMapping(), testFormat())

		_, err := m.Map([]string{"bad-date", "10,00", "Shop", ""}, 2)
		assert.ErrorIs(t, err, ErrInvalidDate)
	})

	t.Run("bad amount fails the row", func(t *testing.T) {
		m := newTestMapper(t, testMapping(), testFormat())

		_, err := m.Map([]string{"01.01.2024", "ten", "Shop", ""}, 2)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("all blank mapped cells fail as empty row", func(t *testing.T) {
		m := newTestMapper(t, testMapping(), testFormat())

		_, err := m.Map([]string{"", "", "", ""}, 2)
		assert.ErrorIs(t, err, ErrEmptyRow)
	})

	t.Run("short row with some mapped data still converts", func(t *testing.T) {
		mapping := testMapping()
		mapping[FieldDescription] = intPtr(9)
		m := newTestMapper(t, mapping, testFormat())

		tx, err := m.Map([]string{"01.01.2024", "10,00", "Shop"}, 2)
		require.NoError(t, err)
		assert.Equal(t, "Imported transaction", tx.Description)
	})

	t.Run("rejects construction with missing required mapping", func(t *testing.T) {
		cm := testMapping()
		delete(cm, FieldAmount)
		_, err := New(cm, testFormat(), uuid.New(), uuid.New())
		assert.ErrorIs(t, err, ErrMissingRequiredMapping)
	})

	t.Run("iban columns populate pointers", func(t *testing.T) {
		mapping := testMapping()
		mapping[FieldTargetIBAN] = intPtr(4)
		m := newTestMapper(t, mapping, testFormat())

		tx, err := m.Map([]string{"01.01.2024", "10,00", "Shop", "", "DE02120300000000202051"}, 2)
		require.NoError(t, err)
		require.NotNil(t, tx.TargetIBAN)
		assert.Equal(t, "DE02120300000000202051", *tx.TargetIBAN)
		assert.Equal(t, "DE02120300000000202051", tx.IBAN())
	})

	t.Run("amount format edge cases", func(t *testing.T) {
		m := newTestMapper(t, testMapping(), FormatConfig{
			DateFormat:   "d.m.Y",
			AmountFormat: AmountFormatEU,
			SignStrategy: SignExpensePositive,
			Currency:     "EUR",
		})

		tx, err := m.Map([]string{"01.01.2024", "1.234,56", "Shop", ""}, 2)
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString("-1234.56").Equal(tx.Amount))
	})
}

func TestGoLayout(t *testing.T) {
	cases := map[string]string{
		"d.m.Y":       "02.01.2006",
		"Y-m-d":       "2006-01-02",
		"d/m/Y":       "02/01/2006",
		"m/d/Y":       "01/02/2006",
		"Y.m.d":       "2006.01.02",
		"d.m.Y H:i:s": "02.01.2006 15:04:05",
		"Y-m-d H:i:s": "2006-01-02 15:04:05",
	}
	for in, want := range cases {
		assert.Equal(t, want, GoLayout(in), in)
	}
}

func TestMapper_MapTimePasses(t *testing.T) {
	// processed_date falls back to "now" when booked_date is also absent from
	// the row; booked_date is required, so exercise via direct default logic.
	m := newTestMapper(t, testMapping(), testFormat())
	before := time.Now().Add(-time.Second)

	tx, err := m.Map([]string{"01.01.2024", "10,00", "Shop", "x"}, 5)
	require.NoError(t, err)
	importedAt, err := time.Parse(transaction.CanonicalDateLayout, tx.Metadata["imported_at"].(string))
	require.NoError(t, err)
	assert.True(t, importedAt.After(before.Add(-time.Minute)))
}
