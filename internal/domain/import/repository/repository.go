// Package repository persists import jobs and their lifecycle state.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an import job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var (
	ErrJobNotFound = errors.New("import job not found")
	// ErrAlreadyProcessing is returned when the compare-and-set transition
	// to processing loses against a concurrent process call.
	ErrAlreadyProcessing = errors.New("import job is already processing")
)

// ImportJob is one user-initiated CSV-to-transactions batch and its state.
// ColumnMapping and the format fields are nil/empty until configure runs.
type ImportJob struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	AccountID        *uuid.UUID
	StoredFilename   string
	OriginalFilename string
	Status           Status
	TotalRows        int
	ProcessedRows    int
	FailedRows       int

	ColumnMapping      map[string]*int
	DateFormat         string
	AmountFormat       string
	AmountTypeStrategy string
	Currency           string

	// Metadata carries detected headers, sample rows, delimiter/quote char
	// and the progress cursor. Open document on purpose.
	Metadata map[string]any

	ErrorMessage *string
	ProcessedAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Configured reports whether configure has supplied enough to process.
func (j *ImportJob) Configured() bool {
	return len(j.ColumnMapping) > 0 && j.DateFormat != "" && j.Currency != ""
}

// ImportRepository defines persistence operations for import jobs.
type ImportRepository interface {
	CreateJob(ctx context.Context, job *ImportJob) error
	GetJob(ctx context.Context, id uuid.UUID) (*ImportJob, error)
	ListJobs(ctx context.Context, userID uuid.UUID, limit int) ([]*ImportJob, error)
	UpdateConfig(ctx context.Context, job *ImportJob) error

	// TryStartProcessing atomically transitions pending|failed to processing,
	// recording the target account. It returns ErrAlreadyProcessing when the
	// job is in any other state.
	TryStartProcessing(ctx context.Context, id, accountID uuid.UUID) error

	CompleteJob(ctx context.Context, id uuid.UUID, processed, failed int, processedAt time.Time) error
	FailJob(ctx context.Context, id uuid.UUID, message string) error

	// UpdateCursor persists the progress counters and the last read row so
	// an interrupted job is diagnosable.
	UpdateCursor(ctx context.Context, id uuid.UUID, lastRow, processed, failed int) error

	// ReapStuck flips processing jobs older than the cutoff to failed and
	// returns how many were reaped.
	ReapStuck(ctx context.Context, olderThan time.Duration) (int64, error)
}
