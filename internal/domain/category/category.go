// Package category provides the lookup-or-create category store rule actions
// resolve names through.
package category

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Category is a user-scoped spending category.
type Category struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements lookup-or-create on PostgreSQL.
type PostgresStore struct {
	db DB
}

// NewPostgresStore creates a new category store.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// LookupOrCreate returns the id of the named category, creating it when
// missing. Names are stored trimmed; matching is per (user_id, name).
func (s *PostgresStore) LookupOrCreate(ctx context.Context, userID uuid.UUID, name string) (uuid.UUID, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return uuid.Nil, fmt.Errorf("category name is empty")
	}

	query := `
		INSERT INTO categories (id, user_id, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, name) DO UPDATE SET updated_at = now()
		RETURNING id`

	var id uuid.UUID
	if err := s.db.QueryRow(ctx, query, uuid.New(), userID, name).Scan(&id); err != nil {
		return uuid.Nil, fmt.Errorf("failed to lookup or create category: %w", err)
	}
	return id, nil
}
