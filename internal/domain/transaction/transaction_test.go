package transaction

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestTransaction_IBAN(t *testing.T) {
	t.Run("target wins", func(t *testing.T) {
		tx := &Transaction{TargetIBAN: strPtr("DE01"), SourceIBAN: strPtr("PT02")}
		assert.Equal(t, "DE01", tx.IBAN())
	})

	t.Run("source as fallback", func(t *testing.T) {
		tx := &Transaction{SourceIBAN: strPtr("PT02")}
		assert.Equal(t, "PT02", tx.IBAN())
	})

	t.Run("empty target falls through", func(t *testing.T) {
		tx := &Transaction{TargetIBAN: strPtr(""), SourceIBAN: strPtr("PT02")}
		assert.Equal(t, "PT02", tx.IBAN())
	})

	t.Run("none", func(t *testing.T) {
		assert.Equal(t, "", (&Transaction{}).IBAN())
	})
}

func TestTransaction_AddTag(t *testing.T) {
	tx := &Transaction{}
	a, b := uuid.New(), uuid.New()

	tx.AddTag(a)
	tx.AddTag(b)
	tx.AddTag(a)

	assert.Equal(t, []uuid.UUID{a, b}, tx.TagIDs, "order preserved, duplicates dropped")
	assert.True(t, tx.HasTag(a))
	assert.False(t, tx.HasTag(uuid.New()))
}

func TestPostgresRepository_Create(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer mock.Close()
	repo := NewPostgresRepository(mock)

	now := time.Now()
	tagID := uuid.New()
	tx := &Transaction{
		TransactionID: "IMP-4F9A2C71B0",
		Amount:        decimal.RequireFromString("100.50"),
		Currency:      "EUR",
		BookedDate:    now,
		ProcessedDate: now,
		Description:   "Salary",
		Partner:       "ACME GmbH",
		Type:          TypeImported,
		AccountID:     uuid.New(),
		TagIDs:        []uuid.UUID{tagID},
	}

	mock.ExpectQuery(`INSERT INTO transactions`).
		WithArgs(pgxmock.AnyArg(), "IMP-4F9A2C71B0", tx.Amount, "EUR", now, now, "Salary",
			"ACME GmbH", pgxmock.AnyArg(), pgxmock.AnyArg(), TypeImported, tx.BalanceAfterTransaction,
			pgxmock.AnyArg(), tx.AccountID, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectExec(`INSERT INTO transaction_tags`).
		WithArgs(pgxmock.AnyArg(), tagID).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Create(context.Background(), tx))
	assert.NotEqual(t, uuid.Nil, tx.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
