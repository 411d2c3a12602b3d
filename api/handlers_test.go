package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stperic/snapqc/api"
	"github.com/stperic/snapqc/etl"
	"github.com/stperic/snapqc/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testEnv struct {
	router  http.Handler
	store   *sqlite.Store
	dataDir string
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	require.NoError(t, os.MkdirAll(dataDir, 0o755))

	store, err := sqlite.New(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := api.NewHandler(store, etl.NewManager(), dataDir)
	return &testEnv{router: api.NewRouter(h), store: store, dataDir: dataDir}
}

// do runs one request through the router and decodes the JSON response
// into out (when non-nil).
func (e *testEnv) do(t *testing.T, method, path string, body, out any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out),
			"body: %s", rec.Body.String())
	}
	return rec
}

func (e *testEnv) seedReferences(t *testing.T) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/references/seed", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

// writeExtract drops a small wide-format file into the data directory.
func (e *testEnv) writeExtract(t *testing.T, name string) {
	t.Helper()
	content := "HHLDNO,STATE,YRMONTH,FSBEN,CERTHHSZ,STATUS,FSAFIL1,AGE1,SEX1,WAGES1\n" +
		"H1,36,202310,281.00,2,1,1,34,2,1820.00\n" +
		"H2,36,202310,0,1,1,NA,NA,NA,NA\n"
	require.NoError(t, os.WriteFile(filepath.Join(e.dataDir, name), []byte(content), 0o644))
}

type jobResponse struct {
	JobID          string   `json:"job_id"`
	State          string   `json:"state"`
	StatusURL      string   `json:"status_url"`
	FiscalYear     int      `json:"fiscal_year"`
	RowsProcessed  int      `json:"rows_processed"`
	CasesCreated   int      `json:"cases_created"`
	MembersCreated int      `json:"members_created"`
	ErrorMessage   string   `json:"error_message"`
	ValidationErrs []string `json:"validation_errors"`
}

// pollJob polls a job's status URL until it settles.
func (e *testEnv) pollJob(t *testing.T, statusURL string) jobResponse {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for {
		var job jobResponse
		rec := e.do(t, http.MethodGet, statusURL, nil, &job)
		require.Equal(t, http.StatusOK, rec.Code)
		if job.State == string(etl.JobCompleted) || job.State == string(etl.JobFailed) {
			return job
		}
		require.True(t, time.Now().Before(deadline), "job did not settle")
		time.Sleep(10 * time.Millisecond)
	}
}

// =============================================================================
// HEALTH
// =============================================================================

func TestHealth(t *testing.T) {
	env := newEnv(t)

	var health map[string]string
	rec := env.do(t, http.MethodGet, "/api/health", nil, &health)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "snapqc-loader", health["service"])
}

// =============================================================================
// REFERENCES
// =============================================================================

func TestReferenceLifecycle(t *testing.T) {
	// GIVEN: A fresh database
	// WHEN: Checking, seeding, then checking again
	// THEN: Status flips from unpopulated to populated

	env := newEnv(t)

	var status struct {
		AllPopulated bool           `json:"all_populated"`
		Tables       map[string]int `json:"tables"`
	}
	rec := env.do(t, http.MethodGet, "/api/references/status", nil, &status)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, status.AllPopulated)

	rec = env.do(t, http.MethodPost, "/api/references/seed", nil, &status)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, status.AllPopulated)
	assert.Equal(t, 2, status.Tables["ref_sex"])
}

// =============================================================================
// LOAD JOBS
// =============================================================================

func TestSubmitLoad_CompletesEndToEnd(t *testing.T) {
	// GIVEN: Seeded references and an extract in the data directory
	// WHEN: Submitting a load and polling its status URL
	// THEN: 202 immediately, completed with counts shortly after

	env := newEnv(t)
	env.seedReferences(t)
	env.writeExtract(t, "extract.csv")

	var job jobResponse
	rec := env.do(t, http.MethodPost, "/api/loads",
		map[string]any{"file": "extract.csv", "fiscal_year": 2023}, &job)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.NotEmpty(t, job.JobID)
	assert.Equal(t, "/api/loads/"+job.JobID, job.StatusURL)
	assert.Equal(t, 2023, job.FiscalYear)

	final := env.pollJob(t, job.StatusURL)
	assert.Equal(t, string(etl.JobCompleted), final.State)
	assert.Equal(t, 2, final.RowsProcessed)
	assert.Equal(t, 2, final.CasesCreated)
	assert.Equal(t, 1, final.MembersCreated)

	// The year now shows up in the inventory.
	var years []struct {
		FiscalYear int `json:"fiscal_year"`
		Cases      int `json:"cases"`
	}
	rec = env.do(t, http.MethodGet, "/api/fiscal-years", nil, &years)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, years, 1)
	assert.Equal(t, 2023, years[0].FiscalYear)
	assert.Equal(t, 2, years[0].Cases)
}

func TestSubmitLoad_RequiresPopulatedReferences(t *testing.T) {
	env := newEnv(t)
	env.writeExtract(t, "extract.csv")

	rec := env.do(t, http.MethodPost, "/api/loads",
		map[string]any{"file": "extract.csv", "fiscal_year": 2023}, nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSubmitLoad_RejectsBadRequests(t *testing.T) {
	env := newEnv(t)
	env.seedReferences(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing file", map[string]any{"fiscal_year": 2023}},
		{"fiscal year too small", map[string]any{"file": "x.csv", "fiscal_year": 1901}},
		{"fiscal year too large", map[string]any{"file": "x.csv", "fiscal_year": 3000}},
		{"absolute path", map[string]any{"file": "/etc/passwd", "fiscal_year": 2023}},
		{"path escape", map[string]any{"file": "../secret.csv", "fiscal_year": 2023}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/loads", tc.body, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestSubmitLoad_MissingExtractFailsTheJob(t *testing.T) {
	// Submission is accepted; the failure surfaces on the job itself.
	env := newEnv(t)
	env.seedReferences(t)

	var job jobResponse
	rec := env.do(t, http.MethodPost, "/api/loads",
		map[string]any{"file": "nope.csv", "fiscal_year": 2023}, &job)
	require.Equal(t, http.StatusAccepted, rec.Code)

	final := env.pollJob(t, job.StatusURL)
	assert.Equal(t, string(etl.JobFailed), final.State)
	assert.Contains(t, final.ErrorMessage, "not found")
}

func TestGetLoad_UnknownJob(t *testing.T) {
	env := newEnv(t)

	rec := env.do(t, http.MethodGet, "/api/loads/no-such-job", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListLoads_EmptyIsAnArray(t *testing.T) {
	env := newEnv(t)

	var jobs []jobResponse
	rec := env.do(t, http.MethodGet, "/api/loads", nil, &jobs)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotNil(t, jobs)
	assert.Empty(t, jobs)
}

// =============================================================================
// FISCAL YEARS
// =============================================================================

func TestResetFiscalYear(t *testing.T) {
	// GIVEN: A completed load for 2023
	// WHEN: Deleting the year
	// THEN: Deletion counts come back and the inventory is empty

	env := newEnv(t)
	env.seedReferences(t)
	env.writeExtract(t, "extract.csv")

	var job jobResponse
	env.do(t, http.MethodPost, "/api/loads",
		map[string]any{"file": "extract.csv", "fiscal_year": 2023}, &job)
	require.Equal(t, string(etl.JobCompleted), env.pollJob(t, job.StatusURL).State)

	var reset struct {
		FiscalYear   int `json:"fiscal_year"`
		CasesDeleted int `json:"cases_deleted"`
	}
	rec := env.do(t, http.MethodDelete, "/api/fiscal-years/2023", nil, &reset)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2023, reset.FiscalYear)
	assert.Equal(t, 2, reset.CasesDeleted)

	var years []any
	rec = env.do(t, http.MethodGet, "/api/fiscal-years", nil, &years)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, years)
}

func TestResetFiscalYear_InvalidYear(t *testing.T) {
	env := newEnv(t)

	rec := env.do(t, http.MethodDelete, "/api/fiscal-years/abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
