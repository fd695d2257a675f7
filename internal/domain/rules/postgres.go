package rules

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var ErrRuleNotFound = errors.New("transaction rule not found")

// DB is the subset of pgxpool.Pool the repository needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository defines persistence operations for transaction rules.
type Repository interface {
	RuleRepository

	Create(ctx context.Context, rule *Rule) error
	GetByID(ctx context.Context, id uuid.UUID) (*Rule, error)
	Update(ctx context.Context, rule *Rule) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*Rule, error)
}

// PostgresRuleRepository implements Repository on PostgreSQL.
type PostgresRuleRepository struct {
	db DB
}

// NewPostgresRuleRepository creates a new PostgreSQL rule repository.
func NewPostgresRuleRepository(db DB) *PostgresRuleRepository {
	return &PostgresRuleRepository{db: db}
}

const ruleColumns = `id, user_id, name, condition_type, condition_operator, condition_value,
	action_type, action_value, is_active, rule_order, created_at, updated_at`

// Create inserts a new rule.
func (r *PostgresRuleRepository) Create(ctx context.Context, rule *Rule) error {
	query := `
		INSERT INTO transaction_rules (id, user_id, name, condition_type, condition_operator,
			condition_value, action_type, action_value, is_active, rule_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`

	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}

	err := r.db.QueryRow(ctx, query,
		rule.ID,
		rule.UserID,
		rule.Name,
		rule.Condition.Type,
		rule.Condition.Operator,
		rule.Condition.Value,
		rule.Action.Type,
		rule.Action.Value,
		rule.IsActive,
		rule.Order,
	).Scan(&rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}
	return nil
}

// GetByID retrieves a rule by id.
func (r *PostgresRuleRepository) GetByID(ctx context.Context, id uuid.UUID) (*Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM transaction_rules WHERE id = $1`

	rule, err := scanRule(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRuleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

// Update rewrites an existing rule.
func (r *PostgresRuleRepository) Update(ctx context.Context, rule *Rule) error {
	query := `
		UPDATE transaction_rules
		SET name = $2, condition_type = $3, condition_operator = $4, condition_value = $5,
			action_type = $6, action_value = $7, is_active = $8, rule_order = $9, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query,
		rule.ID,
		rule.Name,
		rule.Condition.Type,
		rule.Condition.Operator,
		rule.Condition.Value,
		rule.Action.Type,
		rule.Action.Value,
		rule.IsActive,
		rule.Order,
	).Scan(&rule.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrRuleNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	return nil
}

// Delete removes a rule.
func (r *PostgresRuleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM transaction_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// ListByUser returns all rules for a user ordered by evaluation priority.
func (r *PostgresRuleRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM transaction_rules WHERE user_id = $1 ORDER BY rule_order ASC`
	return r.list(ctx, query, userID)
}

// ListActive returns a user's active rules ordered by evaluation priority.
func (r *PostgresRuleRepository) ListActive(ctx context.Context, userID uuid.UUID) ([]*Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM transaction_rules WHERE user_id = $1 AND is_active = true ORDER BY rule_order ASC`
	return r.list(ctx, query, userID)
}

func (r *PostgresRuleRepository) list(ctx context.Context, query string, userID uuid.UUID) ([]*Rule, error) {
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var result []*Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		result = append(result, rule)
	}
	return result, rows.Err()
}

func scanRule(row pgx.Row) (*Rule, error) {
	var rule Rule
	err := row.Scan(
		&rule.ID,
		&rule.UserID,
		&rule.Name,
		&rule.Condition.Type,
		&rule.Condition.Operator,
		&rule.Condition.Value,
		&rule.Action.Type,
		&rule.Action.Value,
		&rule.IsActive,
		&rule.Order,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rule, nil
}
