package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool the repository needs. pgxmock satisfies
// the same interface, which keeps the repository testable without a server.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresImportRepository implements ImportRepository on PostgreSQL.
type PostgresImportRepository struct {
	db DB
}

// NewPostgresImportRepository creates a new PostgreSQL import repository.
func NewPostgresImportRepository(db DB) *PostgresImportRepository {
	return &PostgresImportRepository{db: db}
}

const jobColumns = `id, user_id, account_id, stored_filename, original_filename, status,
	total_rows, processed_rows, failed_rows, column_mapping, date_format, amount_format,
	amount_type_strategy, currency, metadata, error_message, processed_at, created_at, updated_at`

// CreateJob inserts a new job in pending state.
func (r *PostgresImportRepository) CreateJob(ctx context.Context, job *ImportJob) error {
	query := `
		INSERT INTO import_jobs (id, user_id, account_id, stored_filename, original_filename, status, total_rows, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = StatusPending
	}

	metadata, err := json.Marshal(job.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode job metadata: %w", err)
	}

	err = r.db.QueryRow(ctx, query,
		job.ID,
		job.UserID,
		job.AccountID,
		job.StoredFilename,
		job.OriginalFilename,
		job.Status,
		job.TotalRows,
		metadata,
	).Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create import job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by id.
func (r *PostgresImportRepository) GetJob(ctx context.Context, id uuid.UUID) (*ImportJob, error) {
	query := `SELECT ` + jobColumns + ` FROM import_jobs WHERE id = $1`

	job, err := scanJob(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get import job: %w", err)
	}
	return job, nil
}

// ListJobs returns the most recent jobs for a user.
func (r *PostgresImportRepository) ListJobs(ctx context.Context, userID uuid.UUID, limit int) ([]*ImportJob, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + jobColumns + ` FROM import_jobs WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`

	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list import jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*ImportJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan import job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// UpdateConfig persists the column mapping and format configuration.
func (r *PostgresImportRepository) UpdateConfig(ctx context.Context, job *ImportJob) error {
	query := `
		UPDATE import_jobs
		SET column_mapping = $2, date_format = $3, amount_format = $4,
			amount_type_strategy = $5, currency = $6, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`

	mapping, err := json.Marshal(job.ColumnMapping)
	if err != nil {
		return fmt.Errorf("failed to encode column mapping: %w", err)
	}

	err = r.db.QueryRow(ctx, query,
		job.ID,
		mapping,
		job.DateFormat,
		job.AmountFormat,
		job.AmountTypeStrategy,
		job.Currency,
	).Scan(&job.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrJobNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update import job config: %w", err)
	}
	return nil
}

// TryStartProcessing performs the atomic status transition that guards
// against two concurrent process calls on the same job.
func (r *PostgresImportRepository) TryStartProcessing(ctx context.Context, id, accountID uuid.UUID) error {
	query := `
		UPDATE import_jobs
		SET status = $2, account_id = $3, error_message = NULL, updated_at = now()
		WHERE id = $1 AND status IN ($4, $5)`

	tag, err := r.db.Exec(ctx, query, id, StatusProcessing, accountID, StatusPending, StatusFailed)
	if err != nil {
		return fmt.Errorf("failed to start processing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the job does not exist or another call holds it.
		if _, err := r.GetJob(ctx, id); err != nil {
			return err
		}
		return ErrAlreadyProcessing
	}
	return nil
}

// CompleteJob finalizes counts and stamps the completion time.
func (r *PostgresImportRepository) CompleteJob(ctx context.Context, id uuid.UUID, processed, failed int, processedAt time.Time) error {
	query := `
		UPDATE import_jobs
		SET status = $2, processed_rows = $3, failed_rows = $4, processed_at = $5, updated_at = now()
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, StatusCompleted, processed, failed, processedAt)
	if err != nil {
		return fmt.Errorf("failed to complete import job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

// FailJob marks the job failed and records the whole-file error.
func (r *PostgresImportRepository) FailJob(ctx context.Context, id uuid.UUID, message string) error {
	query := `
		UPDATE import_jobs
		SET status = $2, error_message = $3, updated_at = now()
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, StatusFailed, message)
	if err != nil {
		return fmt.Errorf("failed to mark import job failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

// UpdateCursor merges the last read row into the metadata document and
// refreshes the progress counters.
func (r *PostgresImportRepository) UpdateCursor(ctx context.Context, id uuid.UUID, lastRow, processed, failed int) error {
	query := `
		UPDATE import_jobs
		SET processed_rows = $2, failed_rows = $3,
			metadata = coalesce(metadata, '{}'::jsonb) || jsonb_build_object('last_row', $4::int),
			updated_at = now()
		WHERE id = $1`

	_, err := r.db.Exec(ctx, query, id, processed, failed, lastRow)
	if err != nil {
		return fmt.Errorf("failed to update import cursor: %w", err)
	}
	return nil
}

// ReapStuck fails processing jobs that have not progressed since the cutoff.
func (r *PostgresImportRepository) ReapStuck(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
		UPDATE import_jobs
		SET status = $1, error_message = 'processing interrupted', updated_at = now()
		WHERE status = $2 AND updated_at < $3`

	tag, err := r.db.Exec(ctx, query, StatusFailed, StatusProcessing, time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to reap stuck import jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// scanJob reads one job row; JSONB documents arrive as raw bytes.
func scanJob(row pgx.Row) (*ImportJob, error) {
	var (
		job         ImportJob
		mappingJSON []byte
		metaJSON    []byte
	)
	err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.AccountID,
		&job.StoredFilename,
		&job.OriginalFilename,
		&job.Status,
		&job.TotalRows,
		&job.ProcessedRows,
		&job.FailedRows,
		&mappingJSON,
		&job.DateFormat,
		&job.AmountFormat,
		&job.AmountTypeStrategy,
		&job.Currency,
		&metaJSON,
		&job.ErrorMessage,
		&job.ProcessedAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(mappingJSON) > 0 {
		if err := json.Unmarshal(mappingJSON, &job.ColumnMapping); err != nil {
			return nil, fmt.Errorf("failed to decode column mapping: %w", err)
		}
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &job.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode job metadata: %w", err)
		}
	}
	return &job, nil
}
