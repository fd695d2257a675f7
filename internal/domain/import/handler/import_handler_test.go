package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/centavohq/centavo/internal/domain/account"
	"github.com/centavohq/centavo/internal/domain/import/repository"
	importservice "github.com/centavohq/centavo/internal/domain/import/service"
	"github.com/centavohq/centavo/internal/domain/transaction"
	"github.com/centavohq/centavo/pkg/auth"
	"github.com/centavohq/centavo/pkg/metrics"
	"github.com/centavohq/centavo/pkg/storage"
)

type stubJobRepo struct {
	jobs map[uuid.UUID]*repository.ImportJob
}

func (r *stubJobRepo) CreateJob(ctx context.Context, job *repository.ImportJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = repository.StatusPending
	}
	job.CreatedAt = time.Now()
	copied := *job
	r.jobs[job.ID] = &copied
	return nil
}

func (r *stubJobRepo) GetJob(ctx context.Context, id uuid.UUID) (*repository.ImportJob, error) {
	job, ok := r.jobs[id]
	if !ok {
		return nil, repository.ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

func (r *stubJobRepo) ListJobs(ctx context.Context, userID uuid.UUID, limit int) ([]*repository.ImportJob, error) {
	var out []*repository.ImportJob
	for _, job := range r.jobs {
		if job.UserID == userID {
			copied := *job
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *stubJobRepo) UpdateConfig(ctx context.Context, job *repository.ImportJob) error {
	stored, ok := r.jobs[job.ID]
	if !ok {
		return repository.ErrJobNotFound
	}
	stored.ColumnMapping = job.ColumnMapping
	stored.DateFormat = job.DateFormat
	stored.AmountFormat = job.AmountFormat
	stored.AmountTypeStrategy = job.AmountTypeStrategy
	stored.Currency = job.Currency
	return nil
}

func (r *stubJobRepo) TryStartProcessing(ctx context.Context, id, accountID uuid.UUID) error {
	job, ok := r.jobs[id]
	if !ok {
		return repository.ErrJobNotFound
	}
	if job.Status != repository.StatusPending && job.Status != repository.StatusFailed {
		return repository.ErrAlreadyProcessing
	}
	job.Status = repository.StatusProcessing
	job.AccountID = &accountID
	return nil
}

func (r *stubJobRepo) CompleteJob(ctx context.Context, id uuid.UUID, processed, failed int, processedAt time.Time) error {
	job := r.jobs[id]
	job.Status = repository.StatusCompleted
	job.ProcessedRows = processed
	job.FailedRows = failed
	job.ProcessedAt = &processedAt
	return nil
}

func (r *stubJobRepo) FailJob(ctx context.Context, id uuid.UUID, message string) error {
	job := r.jobs[id]
	job.Status = repository.StatusFailed
	job.ErrorMessage = &message
	return nil
}

func (r *stubJobRepo) UpdateCursor(ctx context.Context, id uuid.UUID, lastRow, processed, failed int) error {
	return nil
}

func (r *stubJobRepo) ReapStuck(ctx context.Context, olderThan time.Duration) (int64, error) {
	return 0, nil
}

type stubAccounts struct {
	accounts map[uuid.UUID]*account.Account
}

func (s *stubAccounts) GetByID(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	a, ok := s.accounts[id]
	if !ok {
		return nil, account.ErrAccountNotFound
	}
	return a, nil
}

func (s *stubAccounts) EnsureOwned(ctx context.Context, id, userID uuid.UUID) (*account.Account, error) {
	a, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.UserID != userID {
		return nil, account.ErrNotOwner
	}
	return a, nil
}

type stubTxStore struct {
	created []*transaction.Transaction
}

func (s *stubTxStore) Create(ctx context.Context, tx *transaction.Transaction) error {
	copied := *tx
	s.created = append(s.created, &copied)
	return nil
}

type apiFixture struct {
	router    chi.Router
	authSvc   *auth.Service
	txs       *stubTxStore
	userID    uuid.UUID
	accountID uuid.UUID
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	userID := uuid.New()
	accountID := uuid.New()
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	txs := &stubTxStore{}
	svc := importservice.NewImportService(
		&stubJobRepo{jobs: make(map[uuid.UUID]*repository.ImportJob)},
		&stubAccounts{accounts: map[uuid.UUID]*account.Account{
			accountID: {ID: accountID, UserID: userID, Name: "Main", Currency: "EUR"},
		}},
		txs,
		files,
		metrics.New(),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)

	authSvc := auth.NewService("test-secret-at-least-32-bytes-long!!", time.Hour)
	h := NewImportHandler(svc, slog.New(slog.NewTextHandler(io.Discard, nil)))

	router := chi.NewRouter()
	router.Route("/v1/imports", func(r chi.Router) {
		r.Use(authSvc.Middleware)
		h.Routes(r)
	})

	return &apiFixture{router: router, authSvc: authSvc, txs: txs, userID: userID, accountID: accountID}
}

func (f *apiFixture) do(t *testing.T, req *http.Request, userID uuid.UUID) *httptest.ResponseRecorder {
	t.Helper()
	token, err := f.authSvc.GenerateToken(userID)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) upload(t *testing.T, csv string) uuid.UUID {
	t.Helper()
	rec := f.do(t, multipartUpload(t, csv, ""), f.userID)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		ImportID uuid.UUID `json:"import_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.ImportID
}

func (f *apiFixture) configure(t *testing.T, jobID uuid.UUID) {
	t.Helper()
	body := `{
		"column_mapping": {"booked_date": 0, "amount": 1, "partner": 2},
		"date_format": "d.m.Y",
		"amount_format": "1234,56",
		"amount_type_strategy": "signed_amount",
		"currency": "EUR"
	}`
	req := httptest.NewRequest(http.MethodPost, "/v1/imports/"+jobID.String()+"/configure", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := f.do(t, req, f.userID)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func multipartUpload(t *testing.T, csv, accountID string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "statement.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte(csv))
	require.NoError(t, err)
	if accountID != "" {
		require.NoError(t, mw.WriteField("account_id", accountID))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/imports", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

const sampleCSV = "date;amount;partner\n01.01.2024;100,50;Salary\n02.01.2024;-20,00;Coffee\n"

func TestUploadEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, multipartUpload(t, sampleCSV, ""), f.userID)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		ImportID   uuid.UUID  `json:"import_id"`
		Headers    []string   `json:"headers"`
		SampleRows [][]string `json:"sample_rows"`
		TotalRows  int        `json:"total_rows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEqual(t, uuid.Nil, resp.ImportID)
	assert.Equal(t, []string{"date", "amount", "partner"}, resp.Headers)
	assert.Equal(t, 2, resp.TotalRows)
	assert.Len(t, resp.SampleRows, 2)
}

func TestUploadEndpoint_Rejections(t *testing.T) {
	f := newAPIFixture(t)

	t.Run("no token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, multipartUpload(t, sampleCSV, ""))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing file field", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		require.NoError(t, mw.WriteField("account_id", uuid.NewString()))
		require.NoError(t, mw.Close())
		req := httptest.NewRequest(http.MethodPost, "/v1/imports", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rec := f.do(t, req, f.userID)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("foreign account", func(t *testing.T) {
		rec := f.do(t, multipartUpload(t, sampleCSV, uuid.NewString()), f.userID)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestConfigureEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	jobID := f.upload(t, sampleCSV)

	body := `{
		"column_mapping": {"booked_date": 0, "amount": 1, "partner": 2},
		"date_format": "d.m.Y",
		"amount_format": "1234,56",
		"amount_type_strategy": "signed_amount",
		"currency": "EUR"
	}`
	req := httptest.NewRequest(http.MethodPost, "/v1/imports/"+jobID.String()+"/configure", bytes.NewBufferString(body))
	rec := f.do(t, req, f.userID)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Import struct {
			Currency string `json:"currency"`
			Status   string `json:"status"`
		} `json:"import"`
		PreviewRows []struct {
			RowNumber int    `json:"row_number"`
			Amount    string `json:"amount"`
			Partner   string `json:"partner"`
		} `json:"preview_rows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "EUR", resp.Import.Currency)
	require.Len(t, resp.PreviewRows, 2)
	assert.Equal(t, "100.50", resp.PreviewRows[0].Amount)
	assert.Equal(t, "Salary", resp.PreviewRows[0].Partner)
}

func TestConfigureEndpoint_Rejections(t *testing.T) {
	f := newAPIFixture(t)
	jobID := f.upload(t, sampleCSV)

	t.Run("bad body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/imports/"+jobID.String()+"/configure", bytes.NewBufferString("{"))
		rec := f.do(t, req, f.userID)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing amount column", func(t *testing.T) {
		body := `{"column_mapping": {"booked_date": 0}, "date_format": "d.m.Y", "currency": "EUR"}`
		req := httptest.NewRequest(http.MethodPost, "/v1/imports/"+jobID.String()+"/configure", bytes.NewBufferString(body))
		rec := f.do(t, req, f.userID)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("foreign user sees not found", func(t *testing.T) {
		body := `{"column_mapping": {"booked_date": 0, "amount": 1}, "date_format": "d.m.Y", "currency": "EUR"}`
		req := httptest.NewRequest(http.MethodPost, "/v1/imports/"+jobID.String()+"/configure", bytes.NewBufferString(body))
		rec := f.do(t, req, uuid.New())
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("unknown job", func(t *testing.T) {
		body := `{"column_mapping": {"booked_date": 0, "amount": 1}, "date_format": "d.m.Y", "currency": "EUR"}`
		req := httptest.NewRequest(http.MethodPost, "/v1/imports/"+uuid.NewString()+"/configure", bytes.NewBufferString(body))
		rec := f.do(t, req, f.userID)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestProcessEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	jobID := f.upload(t, sampleCSV+"bad-date;10;X\n")
	f.configure(t, jobID)

	body := fmt.Sprintf(`{"account_id": %q}`, f.accountID)
	req := httptest.NewRequest(http.MethodPost, "/v1/imports/"+jobID.String()+"/process", bytes.NewBufferString(body))
	rec := f.do(t, req, f.userID)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Status        string `json:"status"`
		ProcessedRows int    `json:"processed_rows"`
		FailedRows    int    `json:"failed_rows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "completed", resp.Status)
	assert.Equal(t, 2, resp.ProcessedRows)
	assert.Equal(t, 1, resp.FailedRows)
	assert.Len(t, f.txs.created, 2)
}

func TestProcessEndpoint_Rejections(t *testing.T) {
	f := newAPIFixture(t)
	jobID := f.upload(t, sampleCSV)

	t.Run("unconfigured", func(t *testing.T) {
		body := fmt.Sprintf(`{"account_id": %q}`, f.accountID)
		req := httptest.NewRequest(http.MethodPost, "/v1/imports/"+jobID.String()+"/process", bytes.NewBufferString(body))
		rec := f.do(t, req, f.userID)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("missing account id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/imports/"+jobID.String()+"/process", bytes.NewBufferString(`{}`))
		rec := f.do(t, req, f.userID)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetAndListEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	jobID := f.upload(t, sampleCSV)

	t.Run("get", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/imports/"+jobID.String(), nil)
		rec := f.do(t, req, f.userID)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp jobPayload
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, jobID, resp.ID)
		assert.Equal(t, "pending", resp.Status)
		assert.Equal(t, 2, resp.TotalRows)
	})

	t.Run("get foreign user", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/imports/"+jobID.String(), nil)
		rec := f.do(t, req, uuid.New())
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("list", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/imports", nil)
		rec := f.do(t, req, f.userID)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Imports []jobPayload `json:"imports"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Len(t, resp.Imports, 1)
	})
}
