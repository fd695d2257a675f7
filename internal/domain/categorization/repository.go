package categorization

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var ErrPatternNotFound = errors.New("category pattern not found")

// DB is the subset of pgxpool.Pool the repository needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists category patterns.
type Repository interface {
	Create(ctx context.Context, p *Pattern) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Pattern, error)
}

// PostgresRepository implements Repository on PostgreSQL.
type PostgresRepository struct {
	db DB
}

func NewPostgresRepository(db DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a pattern.
func (r *PostgresRepository) Create(ctx context.Context, p *Pattern) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO category_patterns (id, user_id, keyword, category_id, priority)
		VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.UserID, p.Keyword, p.CategoryID, p.Priority)
	if err != nil {
		return fmt.Errorf("failed to create category pattern: %w", err)
	}
	return nil
}

// Delete removes a pattern.
func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM category_patterns WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete category pattern: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPatternNotFound
	}
	return nil
}

// ListByUser returns a user's patterns, strongest first.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]Pattern, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, keyword, category_id, priority
		FROM category_patterns
		WHERE user_id = $1
		ORDER BY priority DESC, keyword ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list category patterns: %w", err)
	}
	defer rows.Close()

	var patterns []Pattern
	for rows.Next() {
		var p Pattern
		if err := rows.Scan(&p.ID, &p.UserID, &p.Keyword, &p.CategoryID, &p.Priority); err != nil {
			return nil, fmt.Errorf("failed to scan category pattern: %w", err)
		}
		patterns = append(patterns, p)
	}
	return patterns, rows.Err()
}
