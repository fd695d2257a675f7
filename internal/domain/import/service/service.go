// Package service provides the import orchestration logic: upload, configure
// and process for one CSV-to-transactions batch.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/centavohq/centavo/internal/domain/account"
	"github.com/centavohq/centavo/internal/domain/import/encoding"
	"github.com/centavohq/centavo/internal/domain/import/excel"
	"github.com/centavohq/centavo/internal/domain/import/mapper"
	"github.com/centavohq/centavo/internal/domain/import/repository"
	"github.com/centavohq/centavo/internal/domain/import/sniffer"
	"github.com/centavohq/centavo/internal/domain/import/tokenizer"
	"github.com/centavohq/centavo/internal/domain/transaction"
	"github.com/centavohq/centavo/pkg/metrics"
	"github.com/centavohq/centavo/pkg/money"
	"github.com/centavohq/centavo/pkg/storage"
)

var (
	// ErrNotJobOwner rejects calls on jobs owned by another user.
	ErrNotJobOwner = errors.New("import job belongs to another user")
	// ErrNotConfigured rejects process on a job configure never ran for.
	ErrNotConfigured = errors.New("import job is not configured")
)

const (
	previewSize = 10
	// The preview scans at most twice its size in raw rows to find valid ones.
	previewScanLimit = 2 * previewSize

	cursorUpdateEvery = 100
	defaultQuoteChar  = '"'
)

// TransactionStore persists mapped transactions.
type TransactionStore interface {
	Create(ctx context.Context, tx *transaction.Transaction) error
}

// RulePipeline folds a transaction through the owner's active rules.
type RulePipeline interface {
	ApplyRules(ctx context.Context, tx *transaction.Transaction, userID uuid.UUID) error
}

// MerchantResolver resolves raw partner strings to merchant ids.
type MerchantResolver interface {
	LookupOrCreate(ctx context.Context, userID uuid.UUID, name string) (uuid.UUID, error)
}

// Categorizer suggests a category for a transaction description.
type Categorizer interface {
	Categorize(ctx context.Context, userID uuid.UUID, description string) (*uuid.UUID, error)
}

// ImportService orchestrates the per-import lifecycle.
type ImportService struct {
	repo         repository.ImportRepository
	accounts     account.Store
	transactions TransactionStore
	files        storage.Storage
	pipeline     RulePipeline     // optional
	merchants    MerchantResolver // optional
	categorizer  Categorizer      // optional
	metrics      *metrics.Metrics
	tracer       trace.Tracer
	logger       *slog.Logger
}

// NewImportService creates a new import service.
func NewImportService(
	repo repository.ImportRepository,
	accounts account.Store,
	transactions TransactionStore,
	files storage.Storage,
	m *metrics.Metrics,
	logger *slog.Logger,
) *ImportService {
	return &ImportService{
		repo:         repo,
		accounts:     accounts,
		transactions: transactions,
		files:        files,
		metrics:      m,
		tracer:       noop.NewTracerProvider().Tracer(""),
		logger:       logger,
	}
}

// WithRulePipeline adds post-mapping rule evaluation.
func (s *ImportService) WithRulePipeline(pipeline RulePipeline) *ImportService {
	s.pipeline = pipeline
	return s
}

// WithMerchantResolver adds merchant resolution from partner strings.
func (s *ImportService) WithMerchantResolver(merchants MerchantResolver) *ImportService {
	s.merchants = merchants
	return s
}

// WithCategorizer adds keyword-based category suggestions.
func (s *ImportService) WithCategorizer(categorizer Categorizer) *ImportService {
	s.categorizer = categorizer
	return s
}

// WithTracer replaces the no-op tracer.
func (s *ImportService) WithTracer(tracer trace.Tracer) *ImportService {
	s.tracer = tracer
	return s
}

// UploadParams carries the user-declared file shape.
type UploadParams struct {
	Filename  string
	Data      []byte
	AccountID *uuid.UUID
	Delimiter rune // 0 lets the sniffer decide
	QuoteChar rune // 0 means the handler sent none; the default '"' applies
}

// UploadResult is the upload response: the created job plus the detected
// shape the client needs to build the mapping UI.
type UploadResult struct {
	Job        *repository.ImportJob
	Headers    []string
	SampleRows [][]string
	TotalRows  int
}

// Upload normalizes the file, stores it, samples it and creates the pending
// job.
func (s *ImportService) Upload(ctx context.Context, userID uuid.UUID, params UploadParams) (*UploadResult, error) {
	ctx, span := s.tracer.Start(ctx, "import.Upload")
	defer span.End()

	if params.AccountID != nil {
		if _, err := s.accounts.EnsureOwned(ctx, *params.AccountID, userID); err != nil {
			return nil, err
		}
	}

	var data []byte
	if excel.IsWorkbook(params.Data) {
		csvData, err := excel.ToCSV(params.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to convert workbook: %w", err)
		}
		data = csvData
		if params.Delimiter == 0 {
			params.Delimiter = ';'
		}
	} else {
		data = encoding.Normalize(params.Data)
	}

	quote := params.QuoteChar
	if quote == 0 {
		quote = defaultQuoteChar
	}

	detected, err := sniffer.Sniff(data, &sniffer.Options{
		Delimiter:      params.Delimiter,
		Quote:          quote,
		HeaderRowIndex: -1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to analyze file: %w", err)
	}

	storedPath, err := s.files.Save(ctx, userID, params.Filename, data)
	if err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	totalRows := countDataRows(data, detected.Delimiter, quote, detected.HeaderRows)

	job := &repository.ImportJob{
		UserID:           userID,
		AccountID:        params.AccountID,
		StoredFilename:   storedPath,
		OriginalFilename: params.Filename,
		Status:           repository.StatusPending,
		TotalRows:        totalRows,
		Metadata: map[string]any{
			"headers":     detected.Headers,
			"sample_rows": detected.SampleRows,
			"delimiter":   string(detected.Delimiter),
			"quote_char":  string(quote),
			"header_rows": detected.HeaderRows,
			"fingerprint": detected.Fingerprint,
		},
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.String("import.job_id", job.ID.String()),
		attribute.Int("import.total_rows", totalRows),
	)
	s.logger.Info("import uploaded",
		"job_id", job.ID,
		"filename", params.Filename,
		"total_rows", totalRows,
		"delimiter", string(detected.Delimiter))

	return &UploadResult{
		Job:        job,
		Headers:    detected.Headers,
		SampleRows: detected.SampleRows,
		TotalRows:  totalRows,
	}, nil
}

// ConfigureParams is the format configuration set by the user.
type ConfigureParams struct {
	ColumnMapping      map[string]*int
	DateFormat         string
	AmountFormat       string
	AmountTypeStrategy string
	Currency           string
}

// PreviewRow is one mapped preview entry, annotated with its source row for
// debugging.
type PreviewRow struct {
	RowNumber   int
	Raw         []string
	Transaction *transaction.Transaction
}

// Configure persists the mapping and format, then maps a bounded preview.
func (s *ImportService) Configure(ctx context.Context, userID, jobID uuid.UUID, params ConfigureParams) (*repository.ImportJob, []PreviewRow, error) {
	ctx, span := s.tracer.Start(ctx, "import.Configure")
	defer span.End()

	job, err := s.ownedJob(ctx, userID, jobID)
	if err != nil {
		return nil, nil, err
	}

	mapping, err := mapper.ParseColumnMapping(params.ColumnMapping)
	if err != nil {
		return nil, nil, err
	}
	if err := mapping.Validate(); err != nil {
		return nil, nil, err
	}
	currency, err := money.NormalizeCurrency(params.Currency)
	if err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(params.DateFormat) == "" {
		return nil, nil, errors.New("date format is required")
	}

	job.ColumnMapping = params.ColumnMapping
	job.DateFormat = params.DateFormat
	job.AmountFormat = params.AmountFormat
	job.AmountTypeStrategy = params.AmountTypeStrategy
	job.Currency = currency
	if err := s.repo.UpdateConfig(ctx, job); err != nil {
		return nil, nil, err
	}

	preview, err := s.preview(ctx, job, mapping)
	if err != nil {
		return nil, nil, err
	}
	return job, preview, nil
}

// preview re-tokenizes the stored file and maps up to previewSize valid rows.
// Rows that fail to map are logged and excluded, never fatal.
func (s *ImportService) preview(ctx context.Context, job *repository.ImportJob, mapping mapper.ColumnMapping) ([]PreviewRow, error) {
	reader, err := s.files.Open(ctx, job.UserID, job.StoredFilename)
	if err != nil {
		return nil, fmt.Errorf("failed to open stored file: %w", err)
	}
	defer reader.Close()

	m, err := s.newMapper(job, mapping)
	if err != nil {
		return nil, err
	}

	tok := s.newTokenizer(reader, job)
	headerRows := jobHeaderRows(job)
	skipRows(tok, headerRows)

	preview := make([]PreviewRow, 0, previewSize)
	for scanned := 0; scanned < previewScanLimit && len(preview) < previewSize; scanned++ {
		row, ok := tok.Next()
		if !ok {
			break
		}
		rowNum := headerRows + scanned + 1

		tx, err := m.Map(row, rowNum)
		if err != nil {
			s.logger.Debug("preview row skipped", "job_id", job.ID, "row", rowNum, "error", err)
			continue
		}
		preview = append(preview, PreviewRow{RowNumber: rowNum, Raw: row, Transaction: tx})
	}
	return preview, nil
}

// ProcessResult carries the terminal counts of a process call.
type ProcessResult struct {
	Status        repository.Status
	ProcessedRows int
	FailedRows    int
}

// Process runs the whole-file import. Row failures are counted and logged,
// never fatal; only a whole-file error fails the job.
func (s *ImportService) Process(ctx context.Context, userID, jobID, accountID uuid.UUID) (*ProcessResult, error) {
	ctx, span := s.tracer.Start(ctx, "import.Process")
	defer span.End()
	started := time.Now()

	job, err := s.ownedJob(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	if _, err := s.accounts.EnsureOwned(ctx, accountID, userID); err != nil {
		return nil, err
	}

	// Idempotent short-circuit: a completed job returns its counts unchanged.
	if job.Status == repository.StatusCompleted {
		return &ProcessResult{
			Status:        job.Status,
			ProcessedRows: job.ProcessedRows,
			FailedRows:    job.FailedRows,
		}, nil
	}

	if !job.Configured() {
		return nil, ErrNotConfigured
	}
	mapping, err := mapper.ParseColumnMapping(job.ColumnMapping)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotConfigured, err)
	}
	if err := mapping.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotConfigured, err)
	}

	// The atomic transition is the real concurrency guard; the status check
	// above only serves the idempotent completed case.
	if err := s.repo.TryStartProcessing(ctx, job.ID, accountID); err != nil {
		return nil, err
	}
	s.metrics.ImportsStarted.Inc()

	job.AccountID = &accountID
	processed, failed, err := s.run(ctx, job, mapping, accountID)
	if err != nil {
		if failErr := s.repo.FailJob(ctx, job.ID, err.Error()); failErr != nil {
			s.logger.Error("failed to mark job failed", "job_id", job.ID, "error", failErr)
		}
		s.metrics.ImportsCompleted.WithLabelValues(string(repository.StatusFailed)).Inc()
		return nil, err
	}

	if err := s.repo.CompleteJob(ctx, job.ID, processed, failed, time.Now()); err != nil {
		return nil, err
	}
	s.metrics.ImportsCompleted.WithLabelValues(string(repository.StatusCompleted)).Inc()
	s.metrics.ProcessDuration.Observe(time.Since(started).Seconds())

	s.logger.Info("import completed",
		"job_id", job.ID,
		"processed_rows", processed,
		"failed_rows", failed,
		"duration", time.Since(started))

	return &ProcessResult{
		Status:        repository.StatusCompleted,
		ProcessedRows: processed,
		FailedRows:    failed,
	}, nil
}

// run is the whole-file scan. The returned error is a whole-file failure;
// per-row failures only increment the failed count.
func (s *ImportService) run(ctx context.Context, job *repository.ImportJob, mapping mapper.ColumnMapping, accountID uuid.UUID) (int, int, error) {
	reader, err := s.files.Open(ctx, job.UserID, job.StoredFilename)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open stored file: %w", err)
	}
	defer reader.Close()

	m, err := s.newMapper(job, mapping)
	if err != nil {
		return 0, 0, err
	}

	tok := s.newTokenizer(reader, job)
	headerRows := jobHeaderRows(job)
	skipRows(tok, headerRows)

	processed, failed := 0, 0
	rowNum := headerRows
	for {
		row, ok := tok.Next()
		if !ok {
			break
		}
		rowNum++

		if err := s.processRow(ctx, job, m, accountID, row, rowNum); err != nil {
			failed++
			s.metrics.RowsFailed.Inc()
			s.logger.Warn("import row failed",
				"job_id", job.ID,
				"row", rowNum,
				"raw", strings.Join(row, "|"),
				"error", err)
		} else {
			processed++
			s.metrics.RowsProcessed.Inc()
		}

		if (processed+failed)%cursorUpdateEvery == 0 {
			if err := s.repo.UpdateCursor(ctx, job.ID, rowNum, processed, failed); err != nil {
				s.logger.Warn("failed to update import cursor", "job_id", job.ID, "error", err)
			}
		}
	}
	return processed, failed, nil
}

// processRow converts and persists one row.
func (s *ImportService) processRow(ctx context.Context, job *repository.ImportJob, m *mapper.Mapper, accountID uuid.UUID, row []string, rowNum int) error {
	tx, err := m.Map(row, rowNum)
	if err != nil {
		return err
	}
	tx.AccountID = accountID

	if s.merchants != nil && tx.Partner != "" && tx.Partner != "Unknown" {
		if merchantID, err := s.merchants.LookupOrCreate(ctx, job.UserID, tx.Partner); err == nil {
			tx.MerchantID = &merchantID
		} else {
			s.logger.Debug("merchant resolution failed", "job_id", job.ID, "partner", tx.Partner, "error", err)
		}
	}

	if s.categorizer != nil && tx.CategoryID == nil && tx.Description != "" {
		if categoryID, err := s.categorizer.Categorize(ctx, job.UserID, tx.Description); err == nil {
			tx.CategoryID = categoryID
		} else {
			s.logger.Debug("categorization failed", "job_id", job.ID, "row", rowNum, "error", err)
		}
	}

	// Rules run last so an explicit rule overrides the keyword suggestion.
	if s.pipeline != nil {
		if err := s.pipeline.ApplyRules(ctx, tx, job.UserID); err != nil {
			s.logger.Warn("rule pipeline failed", "job_id", job.ID, "row", rowNum, "error", err)
		}
	}

	return s.transactions.Create(ctx, tx)
}

// GetJob returns a job after an ownership check.
func (s *ImportService) GetJob(ctx context.Context, userID, jobID uuid.UUID) (*repository.ImportJob, error) {
	return s.ownedJob(ctx, userID, jobID)
}

// ListJobs returns the caller's recent jobs.
func (s *ImportService) ListJobs(ctx context.Context, userID uuid.UUID, limit int) ([]*repository.ImportJob, error) {
	return s.repo.ListJobs(ctx, userID, limit)
}

func (s *ImportService) ownedJob(ctx context.Context, userID, jobID uuid.UUID) (*repository.ImportJob, error) {
	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, ErrNotJobOwner
	}
	return job, nil
}

func (s *ImportService) newMapper(job *repository.ImportJob, mapping mapper.ColumnMapping) (*mapper.Mapper, error) {
	accountID := uuid.Nil
	if job.AccountID != nil {
		accountID = *job.AccountID
	}
	return mapper.New(mapping, mapper.FormatConfig{
		DateFormat:   job.DateFormat,
		AmountFormat: mapper.AmountFormat(job.AmountFormat),
		SignStrategy: mapper.SignStrategy(job.AmountTypeStrategy),
		Currency:     job.Currency,
	}, job.ID, accountID)
}

func (s *ImportService) newTokenizer(r io.Reader, job *repository.ImportJob) *tokenizer.Tokenizer {
	delimiter := ';'
	if d, ok := job.Metadata["delimiter"].(string); ok && d != "" {
		delimiter = []rune(d)[0]
	}
	quote := rune(0)
	if q, ok := job.Metadata["quote_char"].(string); ok && q != "" {
		quote = []rune(q)[0]
	}
	return tokenizer.New(r, delimiter, quote)
}

// jobHeaderRows reads the header row count detected at upload time. JSON
// round-trips numbers as float64.
func jobHeaderRows(job *repository.ImportJob) int {
	switch v := job.Metadata["header_rows"].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 1
	}
}

func skipRows(tok *tokenizer.Tokenizer, n int) {
	for i := 0; i < n; i++ {
		if _, ok := tok.Next(); !ok {
			return
		}
	}
}

// countDataRows counts tokenizer rows after the header block.
func countDataRows(data []byte, delimiter, quote rune, headerRows int) int {
	tok := tokenizer.New(strings.NewReader(string(data)), delimiter, quote)
	total := 0
	for {
		if _, ok := tok.Next(); !ok {
			break
		}
		total++
	}
	total -= headerRows
	if total < 0 {
		return 0
	}
	return total
}
