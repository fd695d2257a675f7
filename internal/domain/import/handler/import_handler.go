package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/centavohq/centavo/internal/domain/account"
	"github.com/centavohq/centavo/internal/domain/import/repository"
	importservice "github.com/centavohq/centavo/internal/domain/import/service"
	"github.com/centavohq/centavo/pkg/auth"
	"github.com/centavohq/centavo/pkg/httputil"
)

// maxUploadBytes caps statement uploads at 10 MB.
const maxUploadBytes = 10 << 20

// ImportHandler exposes the import pipeline over HTTP.
type ImportHandler struct {
	importSvc *importservice.ImportService
	logger    *slog.Logger
}

func NewImportHandler(importSvc *importservice.ImportService, logger *slog.Logger) *ImportHandler {
	return &ImportHandler{
		importSvc: importSvc,
		logger:    logger,
	}
}

// Routes mounts the import endpoints on r. The caller wraps the router in
// the auth middleware.
func (h *ImportHandler) Routes(r chi.Router) {
	r.Post("/", h.Upload)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/configure", h.Configure)
	r.Post("/{id}/process", h.Process)
}

type jobPayload struct {
	ID               uuid.UUID       `json:"id"`
	AccountID        *uuid.UUID      `json:"account_id,omitempty"`
	OriginalFilename string          `json:"original_filename"`
	Status           string          `json:"status"`
	TotalRows        int             `json:"total_rows"`
	ProcessedRows    int             `json:"processed_rows"`
	FailedRows       int             `json:"failed_rows"`
	ColumnMapping    map[string]*int `json:"column_mapping,omitempty"`
	DateFormat       string          `json:"date_format,omitempty"`
	AmountFormat     string          `json:"amount_format,omitempty"`
	Currency         string          `json:"currency,omitempty"`
	ErrorMessage     *string         `json:"error_message,omitempty"`
	ProcessedAt      *time.Time      `json:"processed_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}

func toJobPayload(job *repository.ImportJob) jobPayload {
	return jobPayload{
		ID:               job.ID,
		AccountID:        job.AccountID,
		OriginalFilename: job.OriginalFilename,
		Status:           string(job.Status),
		TotalRows:        job.TotalRows,
		ProcessedRows:    job.ProcessedRows,
		FailedRows:       job.FailedRows,
		ColumnMapping:    job.ColumnMapping,
		DateFormat:       job.DateFormat,
		AmountFormat:     job.AmountFormat,
		Currency:         job.Currency,
		ErrorMessage:     job.ErrorMessage,
		ProcessedAt:      job.ProcessedAt,
		CreatedAt:        job.CreatedAt,
	}
}

// Upload accepts a multipart statement file and creates a pending job.
func (h *ImportHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		httputil.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		httputil.SendJSONError(w, "failed to parse form or file too large", http.StatusBadRequest)
		return
	}
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		httputil.SendJSONError(w, "missing 'file' field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		httputil.SendJSONError(w, "failed to read file", http.StatusBadRequest)
		return
	}
	if len(data) > maxUploadBytes {
		httputil.SendJSONError(w, "file too large", http.StatusRequestEntityTooLarge)
		return
	}

	params := importservice.UploadParams{
		Filename: fileHeader.Filename,
		Data:     data,
	}
	if v := r.FormValue("account_id"); v != "" {
		accountID, err := uuid.Parse(v)
		if err != nil {
			httputil.SendJSONError(w, "invalid account_id", http.StatusBadRequest)
			return
		}
		params.AccountID = &accountID
	}
	if v := r.FormValue("delimiter"); v != "" {
		params.Delimiter = []rune(v)[0]
	}
	if v := r.FormValue("quote_char"); v != "" {
		params.QuoteChar = []rune(v)[0]
	}

	result, err := h.importSvc.Upload(r.Context(), userID, params)
	if err != nil {
		h.writeServiceError(w, r, err, http.StatusBadRequest)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, map[string]any{
		"import_id":   result.Job.ID,
		"headers":     result.Headers,
		"sample_rows": result.SampleRows,
		"total_rows":  result.TotalRows,
		"import":      toJobPayload(result.Job),
	})
}

type configureRequest struct {
	ColumnMapping      map[string]*int `json:"column_mapping"`
	DateFormat         string          `json:"date_format"`
	AmountFormat       string          `json:"amount_format"`
	AmountTypeStrategy string          `json:"amount_type_strategy"`
	Currency           string          `json:"currency"`
}

type previewPayload struct {
	RowNumber int      `json:"row_number"`
	Raw       []string `json:"raw"`
	Date      string   `json:"date"`
	Amount    string   `json:"amount"`
	Partner   string   `json:"partner"`
}

// Configure stores the format settings and returns a mapped preview.
func (h *ImportHandler) Configure(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		httputil.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.SendJSONError(w, "invalid import id", http.StatusBadRequest)
		return
	}

	var req configureRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.SendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	job, preview, err := h.importSvc.Configure(r.Context(), userID, jobID, importservice.ConfigureParams{
		ColumnMapping:      req.ColumnMapping,
		DateFormat:         req.DateFormat,
		AmountFormat:       req.AmountFormat,
		AmountTypeStrategy: req.AmountTypeStrategy,
		Currency:           req.Currency,
	})
	if err != nil {
		h.writeServiceError(w, r, err, http.StatusBadRequest)
		return
	}

	rows := make([]previewPayload, 0, len(preview))
	for _, p := range preview {
		rows = append(rows, previewPayload{
			RowNumber: p.RowNumber,
			Raw:       p.Raw,
			Date:      p.Transaction.BookedDate.Format("2006-01-02"),
			Amount:    p.Transaction.Amount.StringFixed(2),
			Partner:   p.Transaction.Partner,
		})
	}
	httputil.RespondJSON(w, http.StatusOK, map[string]any{
		"import":       toJobPayload(job),
		"preview_rows": rows,
	})
}

type processRequest struct {
	AccountID uuid.UUID `json:"account_id"`
}

// Process runs the whole-file import synchronously and returns the counts.
func (h *ImportHandler) Process(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		httputil.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.SendJSONError(w, "invalid import id", http.StatusBadRequest)
		return
	}

	var req processRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.SendJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.AccountID == uuid.Nil {
		httputil.SendJSONError(w, "account_id is required", http.StatusBadRequest)
		return
	}

	result, err := h.importSvc.Process(r.Context(), userID, jobID, req.AccountID)
	if err != nil {
		h.writeServiceError(w, r, err, http.StatusInternalServerError)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]any{
		"status":         string(result.Status),
		"processed_rows": result.ProcessedRows,
		"failed_rows":    result.FailedRows,
	})
}

// Get returns a single job the caller owns.
func (h *ImportHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		httputil.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}
	jobID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.SendJSONError(w, "invalid import id", http.StatusBadRequest)
		return
	}

	job, err := h.importSvc.GetJob(r.Context(), userID, jobID)
	if err != nil {
		h.writeServiceError(w, r, err, http.StatusInternalServerError)
		return
	}
	httputil.RespondJSON(w, http.StatusOK, toJobPayload(job))
}

// List returns the caller's recent jobs.
func (h *ImportHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		httputil.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	jobs, err := h.importSvc.ListJobs(r.Context(), userID, 0)
	if err != nil {
		h.writeServiceError(w, r, err, http.StatusInternalServerError)
		return
	}
	payload := make([]jobPayload, 0, len(jobs))
	for _, job := range jobs {
		payload = append(payload, toJobPayload(job))
	}
	httputil.RespondJSON(w, http.StatusOK, map[string]any{"imports": payload})
}

// writeServiceError maps service errors to HTTP statuses. Ownership
// violations read as not-found so job IDs cannot be probed. Errors without
// a sentinel get fallbackStatus; validation-heavy endpoints pass 400,
// processing passes 500.
func (h *ImportHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, fallbackStatus int) {
	switch {
	case errors.Is(err, repository.ErrJobNotFound),
		errors.Is(err, importservice.ErrNotJobOwner),
		errors.Is(err, account.ErrAccountNotFound),
		errors.Is(err, account.ErrNotOwner):
		httputil.SendJSONError(w, "import job or account not found", http.StatusNotFound)
	case errors.Is(err, repository.ErrAlreadyProcessing):
		httputil.SendJSONError(w, "import is already being processed", http.StatusConflict)
	case errors.Is(err, importservice.ErrNotConfigured):
		httputil.SendJSONError(w, "import is not configured", http.StatusUnprocessableEntity)
	default:
		h.logger.Error("import request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err)
		if fallbackStatus >= http.StatusInternalServerError {
			httputil.SendJSONError(w, "internal error", fallbackStatus)
			return
		}
		httputil.SendJSONError(w, err.Error(), fallbackStatus)
	}
}
