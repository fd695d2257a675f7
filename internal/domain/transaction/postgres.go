package transaction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var ErrTransactionNotFound = errors.New("transaction not found")

// Repository defines transaction persistence operations.
type Repository interface {
	Create(ctx context.Context, tx *Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]*Transaction, error)
	AttachTag(ctx context.Context, txID, tagID uuid.UUID) error
}

// DB is the subset of pgxpool.Pool the repository needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository implements Repository on PostgreSQL.
type PostgresRepository struct {
	db DB
}

// NewPostgresRepository creates a new transaction repository.
func NewPostgresRepository(db DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const txColumns = `id, transaction_id, amount, currency, booked_date, processed_date, description,
	partner, target_iban, source_iban, type, balance_after_transaction, metadata,
	account_id, category_id, merchant_id, created_at, updated_at`

// Create inserts a transaction and attaches its tags.
func (r *PostgresRepository) Create(ctx context.Context, tx *Transaction) error {
	query := `
		INSERT INTO transactions (id, transaction_id, amount, currency, booked_date, processed_date,
			description, partner, target_iban, source_iban, type, balance_after_transaction,
			metadata, account_id, category_id, merchant_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING created_at, updated_at`

	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}

	metadata, err := json.Marshal(tx.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode transaction metadata: %w", err)
	}

	err = r.db.QueryRow(ctx, query,
		tx.ID,
		tx.TransactionID,
		tx.Amount,
		tx.Currency,
		tx.BookedDate,
		tx.ProcessedDate,
		tx.Description,
		tx.Partner,
		tx.TargetIBAN,
		tx.SourceIBAN,
		tx.Type,
		tx.BalanceAfterTransaction,
		metadata,
		tx.AccountID,
		tx.CategoryID,
		tx.MerchantID,
	).Scan(&tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	for _, tagID := range tx.TagIDs {
		if err := r.AttachTag(ctx, tx.ID, tagID); err != nil {
			return err
		}
	}
	return nil
}

// GetByID retrieves a transaction with its tags.
func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	query := `SELECT ` + txColumns + ` FROM transactions WHERE id = $1`

	tx, err := scanTransaction(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	tx.TagIDs, err = r.listTags(ctx, id)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// ListByAccount returns the most recent transactions on an account.
func (r *PostgresRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]*Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + txColumns + ` FROM transactions WHERE account_id = $1 ORDER BY booked_date DESC LIMIT $2`

	rows, err := r.db.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var result []*Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		result = append(result, tx)
	}
	return result, rows.Err()
}

// AttachTag links a tag to a transaction, ignoring duplicates.
func (r *PostgresRepository) AttachTag(ctx context.Context, txID, tagID uuid.UUID) error {
	query := `
		INSERT INTO transaction_tags (transaction_id, tag_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`

	if _, err := r.db.Exec(ctx, query, txID, tagID); err != nil {
		return fmt.Errorf("failed to attach tag: %w", err)
	}
	return nil
}

func (r *PostgresRepository) listTags(ctx context.Context, txID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx,
		`SELECT tag_id FROM transaction_tags WHERE transaction_id = $1 ORDER BY attached_at ASC`, txID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transaction tags: %w", err)
	}
	defer rows.Close()

	var tags []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		tags = append(tags, id)
	}
	return tags, rows.Err()
}

func scanTransaction(row pgx.Row) (*Transaction, error) {
	var (
		tx       Transaction
		metaJSON []byte
	)
	err := row.Scan(
		&tx.ID,
		&tx.TransactionID,
		&tx.Amount,
		&tx.Currency,
		&tx.BookedDate,
		&tx.ProcessedDate,
		&tx.Description,
		&tx.Partner,
		&tx.TargetIBAN,
		&tx.SourceIBAN,
		&tx.Type,
		&tx.BalanceAfterTransaction,
		&metaJSON,
		&tx.AccountID,
		&tx.CategoryID,
		&tx.MerchantID,
		&tx.CreatedAt,
		&tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &tx.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode transaction metadata: %w", err)
		}
	}
	return &tx, nil
}
