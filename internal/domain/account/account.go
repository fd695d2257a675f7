// Package account provides the account lookup used to verify import targets.
package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	// ErrNotOwner rejects operations on accounts owned by another user.
	ErrNotOwner = errors.New("account belongs to another user")
)

// Account is the ledger container transactions belong to.
type Account struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Name      string
	Currency  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store defines account lookups.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)

	// EnsureOwned returns the account only when it belongs to userID.
	EnsureOwned(ctx context.Context, id, userID uuid.UUID) (*Account, error)
}

// DB is the subset of pgxpool.Pool the store needs.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	db DB
}

// NewPostgresStore creates a new account store.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// GetByID retrieves an account.
func (s *PostgresStore) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	query := `SELECT id, user_id, name, currency, created_at, updated_at FROM accounts WHERE id = $1`

	var a Account
	err := s.db.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.UserID, &a.Name, &a.Currency, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &a, nil
}

// EnsureOwned retrieves an account and verifies ownership.
func (s *PostgresStore) EnsureOwned(ctx context.Context, id, userID uuid.UUID) (*Account, error) {
	a, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.UserID != userID {
		return nil, ErrNotOwner
	}
	return a, nil
}
