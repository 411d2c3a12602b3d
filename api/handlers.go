/*
handlers.go - HTTP API handlers for the QC data loading service

PURPOSE:
  Exposes the ingestion pipeline via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to the loader,
  job manager, and store.

ENDPOINTS:
  Loads:
    POST   /api/loads                   Submit a load job (202 + job id)
    GET    /api/loads                   List known jobs
    GET    /api/loads/{id}              Poll one job's status

  References:
    GET    /api/references/status       Lookup-table population
    POST   /api/references/seed         Seed the default code set

  Fiscal years:
    GET    /api/fiscal-years            Loaded years with counts
    DELETE /api/fiscal-years/{year}     Remove one year (enables reload)

  Health:
    GET    /api/health                  Liveness probe

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (manager, loader, store)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Job or file not found
  - 409: References not populated
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are
  public. Source files are restricted to the configured data directory.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - etl/loader.go: The pipeline the load endpoints drive
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/stperic/snapqc/etl"
	"github.com/stperic/snapqc/qc"
	"github.com/stperic/snapqc/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store *sqlite.Store
	Jobs  *etl.Manager

	// DataDir is the only directory load requests may read from.
	DataDir string
}

// NewHandler creates a new handler with the given store and job manager.
func NewHandler(store *sqlite.Store, jobs *etl.Manager, dataDir string) *Handler {
	return &Handler{Store: store, Jobs: jobs, DataDir: dataDir}
}

// =============================================================================
// LOAD HANDLERS
// =============================================================================

// SubmitLoad starts a background load job and returns 202 with the job
// id and a URL to poll.
func (h *Handler) SubmitLoad(w http.ResponseWriter, r *http.Request) {
	var req SubmitLoadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.File == "" {
		writeError(w, http.StatusBadRequest, "file is required", nil)
		return
	}
	if req.FiscalYear < 1990 || req.FiscalYear > 2100 {
		writeError(w, http.StatusBadRequest, "fiscal_year out of range", nil)
		return
	}

	path, err := h.resolveFile(req.File)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid file path", err)
		return
	}

	refs, err := h.Store.LoadReferences(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load reference codes", err)
		return
	}
	if !refs.AllPopulated() {
		writeError(w, http.StatusConflict, "Reference tables are not populated", qc.ErrReferencesNotReady)
		return
	}

	loader := &etl.Loader{
		Writer:         h.Store,
		Refs:           refs,
		FiscalYear:     req.FiscalYear,
		ChunkSize:      req.ChunkSize,
		MaxRows:        req.MaxRows,
		Strict:         req.Strict,
		SkipValidation: req.SkipValidation,
		FailFast:       req.FailFast,
	}

	// The job outlives this request; it must not inherit its context.
	id := h.Jobs.Submit(context.Background(), loader, path)

	status, err := h.Jobs.Get(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to register job", err)
		return
	}
	writeJSON(w, http.StatusAccepted, toJobDTO(status))
}

// ListLoads returns every known job, oldest first.
func (h *Handler) ListLoads(w http.ResponseWriter, r *http.Request) {
	statuses := h.Jobs.List()
	dtos := make([]JobDTO, len(statuses))
	for i, s := range statuses {
		dtos[i] = toJobDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetLoad returns one job's current status.
func (h *Handler) GetLoad(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	status, err := h.Jobs.Get(id)
	if errors.Is(err, qc.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "Job not found", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get job", err)
		return
	}
	writeJSON(w, http.StatusOK, toJobDTO(status))
}

// resolveFile joins name onto the data directory and rejects anything
// that escapes it.
func (h *Handler) resolveFile(name string) (string, error) {
	if h.DataDir == "" {
		return name, nil
	}
	cleaned := filepath.Clean(name)
	if filepath.IsAbs(cleaned) || strings.HasPrefix(cleaned, "..") {
		return "", errors.New("file must be relative to the data directory")
	}
	return filepath.Join(h.DataDir, cleaned), nil
}

// =============================================================================
// REFERENCE HANDLERS
// =============================================================================

// GetReferenceStatus reports per-table code counts and whether loading
// may proceed.
func (h *Handler) GetReferenceStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := h.Store.ReferenceCounts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count reference codes", err)
		return
	}

	populated := true
	for _, table := range qc.ReferenceTables {
		if counts[table] == 0 {
			populated = false
			break
		}
	}
	writeJSON(w, http.StatusOK, ReferenceStatusDTO{
		AllPopulated: populated,
		Tables:       counts,
	})
}

// SeedReferences populates every lookup table with the standard code
// set. Idempotent.
func (h *Handler) SeedReferences(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.SeedDefaultReferences(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to seed reference codes", err)
		return
	}
	h.GetReferenceStatus(w, r)
}

// =============================================================================
// FISCAL-YEAR HANDLERS
// =============================================================================

// ListFiscalYears returns the loaded years with row counts.
func (h *Handler) ListFiscalYears(w http.ResponseWriter, r *http.Request) {
	years, err := h.Store.ListFiscalYears(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list fiscal years", err)
		return
	}

	dtos := make([]FiscalYearDTO, 0, len(years))
	for _, year := range years {
		cases, members, findings, err := h.Store.YearCounts(r.Context(), year)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to count fiscal year", err)
			return
		}
		dtos = append(dtos, FiscalYearDTO{
			FiscalYear: year,
			Cases:      cases,
			Members:    members,
			Errors:     findings,
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ResetFiscalYear deletes everything for one year so it can be
// reloaded. Writers never upsert, so this is the only reload path.
func (h *Handler) ResetFiscalYear(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid fiscal year", err)
		return
	}

	cases, members, findings, err := h.Store.DeleteFiscalYear(r.Context(), year)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset fiscal year", err)
		return
	}
	writeJSON(w, http.StatusOK, ResetYearDTO{
		FiscalYear:      year,
		CasesDeleted:    cases,
		MembersDeleted:  members,
		FindingsDeleted: findings,
	})
}

// =============================================================================
// HEALTH
// =============================================================================

// Health is the liveness probe.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthDTO{Status: "ok", Service: "snapqc-loader"})
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
