package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/budget-ledger/internal/domain/budget"
	"github.com/FACorreiaa/budget-ledger/internal/domain/budget/repository"
	importservice "github.com/FACorreiaa/budget-ledger/internal/domain/import/service"
	"github.com/FACorreiaa/budget-ledger/pkg/logger"
	"github.com/FACorreiaa/budget-ledger/pkg/metrics"
	"github.com/FACorreiaa/budget-ledger/pkg/storage"
)

const planCSV = "type,budget_code,budget_name,year,month,amount\n" +
	"plan,SK01,Laptops,2024,1,100\n" +
	"plan,SK01,Laptops,2024,13,100\n"

func newRouter(t *testing.T, maxBytes int64) (*mux.Router, *repository.MemoryStore, storage.Archive) {
	t.Helper()
	store := repository.NewMemoryStore()
	archive, err := storage.New(t.TempDir())
	require.NoError(t, err)

	svc := importservice.NewImportService(store, nil, importservice.Options{}, metrics.New(), logger.Discard()).
		WithArchive(archive)

	r := mux.NewRouter()
	NewImportHandler(svc, maxBytes, logger.Discard()).WithUploads(archive).Register(r)
	return r, store, archive
}

func multipartBody(t *testing.T, filename, content, scenario string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	if scenario != "" {
		require.NoError(t, mw.WriteField("scenario", scenario))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestImportHandler_Import(t *testing.T) {
	router, store, _ := newRouter(t, 1<<20)

	body, contentType := multipartBody(t, "plans.csv", planCSV, "Baseline")
	req := httptest.NewRequest(http.MethodPost, "/api/import", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var summary importservice.ImportSummary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&summary))
	assert.Equal(t, 1, summary.ImportedPlans)
	assert.Equal(t, 1, summary.SkippedRows)
	assert.Equal(t, "CSV import completed", summary.Message)
	assert.NotEmpty(t, summary.UploadID)

	_, err := store.GetScenario(context.Background(), "Baseline", 2024)
	assert.NoError(t, err)
}

func TestImportHandler_Errors(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		content  string
		maxBytes int64
		want     int
	}{
		{"missing file", "", "", 1 << 20, http.StatusBadRequest},
		{"empty file", "plans.csv", "", 1 << 20, http.StatusBadRequest},
		{"unsupported format", "plans.pdf", "%PDF-1.4", 1 << 20, http.StatusBadRequest},
		{"too large", "plans.csv", planCSV, 16, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _, _ := newRouter(t, tt.maxBytes)
			body, contentType := multipartBody(t, tt.filename, tt.content, "")
			req := httptest.NewRequest(http.MethodPost, "/api/import", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestImportHandler_ReplayAndList(t *testing.T) {
	router, store, archive := newRouter(t, 1<<20)
	ctx := context.Background()

	upload, err := archive.Save(ctx, "plans.csv", "", bytes.NewBufferString(planCSV))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/uploads/"+upload.ID.String()+"/replay", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	plans, err := store.ListPlans(ctx, budget.Filter{Year: 2024})
	require.NoError(t, err)
	assert.Len(t, plans, 1)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/uploads", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var uploads []storage.Upload
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&uploads))
	require.Len(t, uploads, 1)
	require.NotNil(t, uploads[0].Outcome)
	assert.Equal(t, 1, uploads[0].Outcome.ImportedPlans)

	t.Run("unknown upload", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/uploads/"+uuid.NewString()+"/replay", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("bad id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/uploads/nope/replay", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
