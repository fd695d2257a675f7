package rules

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRuleRepo(t *testing.T) (pgxmock.PgxPoolIface, *PostgresRuleRepository) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewPostgresRuleRepository(mock)
}

func ruleRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "user_id", "name", "condition_type", "condition_operator", "condition_value",
		"action_type", "action_value", "is_active", "rule_order", "created_at", "updated_at",
	})
}

func TestPostgresRuleRepository_Create(t *testing.T) {
	mock, repo := newMockRuleRepo(t)
	now := time.Now()

	rule := &Rule{
		UserID:    uuid.New(),
		Name:      "tag groceries",
		Condition: Condition{Type: ConditionDescription, Operator: OperatorContains, Value: "rewe"},
		Action:    Action{Type: ActionSetCategory, Value: "Groceries"},
		IsActive:  true,
		Order:     1,
	}

	mock.ExpectQuery(`INSERT INTO transaction_rules`).
		WithArgs(pgxmock.AnyArg(), rule.UserID, "tag groceries", ConditionDescription,
			OperatorContains, "rewe", ActionSetCategory, "Groceries", true, 1).
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	require.NoError(t, repo.Create(context.Background(), rule))
	assert.NotEqual(t, uuid.Nil, rule.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRuleRepository_ListActive(t *testing.T) {
	mock, repo := newMockRuleRepo(t)
	userID := uuid.New()
	now := time.Now()

	mock.ExpectQuery(`SELECT .+ FROM transaction_rules WHERE user_id = .+ AND is_active = true ORDER BY rule_order`).
		WithArgs(userID).
		WillReturnRows(ruleRows().
			AddRow(uuid.New(), userID, "first", string(ConditionDescription), string(OperatorContains),
				"GROCERIES", string(ActionSetType), "CARD_PAYMENT", true, 1, now, now).
			AddRow(uuid.New(), userID, "second", string(ConditionAmount), string(OperatorGreaterThan),
				"1000", string(ActionSetType), "TRANSFER", true, 2, now, now))

	active, err := repo.ListActive(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "first", active[0].Name)
	assert.Equal(t, OperatorGreaterThan, active[1].Condition.Operator)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRuleRepository_Delete(t *testing.T) {
	id := uuid.New()

	t.Run("deletes", func(t *testing.T) {
		mock, repo := newMockRuleRepo(t)
		mock.ExpectExec(`DELETE FROM transaction_rules`).
			WithArgs(id).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))

		assert.NoError(t, repo.Delete(context.Background(), id))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing rule", func(t *testing.T) {
		mock, repo := newMockRuleRepo(t)
		mock.ExpectExec(`DELETE FROM transaction_rules`).
			WithArgs(id).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))

		assert.ErrorIs(t, repo.Delete(context.Background(), id), ErrRuleNotFound)
	})
}

func TestPostgresRuleRepository_GetByID_NotFound(t *testing.T) {
	mock, repo := newMockRuleRepo(t)
	id := uuid.New()

	mock.ExpectQuery(`SELECT .+ FROM transaction_rules WHERE id =`).
		WithArgs(id).
		WillReturnRows(ruleRows())

	_, err := repo.GetByID(context.Background(), id)
	assert.ErrorIs(t, err, ErrRuleNotFound)
}
