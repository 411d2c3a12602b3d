/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal job and store model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Loads:
    SubmitLoadRequest, JobDTO

  References:
    ReferenceStatusDTO

  Fiscal years:
    FiscalYearDTO, ResetYearDTO

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data
  carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - etl/jobs.go: JobStatus, the internal counterpart of JobDTO
*/
package api

import (
	"time"

	"github.com/stperic/snapqc/etl"
)

// =============================================================================
// LOAD JOBS
// =============================================================================

// SubmitLoadRequest asks for a new load job. File is resolved inside
// the server's data directory.
type SubmitLoadRequest struct {
	File       string `json:"file"`
	FiscalYear int    `json:"fiscal_year"`

	Strict         bool `json:"strict,omitempty"`
	SkipValidation bool `json:"skip_validation,omitempty"`
	FailFast       bool `json:"fail_fast,omitempty"`
	MaxRows        int  `json:"max_rows,omitempty"`
	ChunkSize      int  `json:"chunk_size,omitempty"`
}

// JobDTO is a load job's status in API responses.
type JobDTO struct {
	JobID      string `json:"job_id"`
	FiscalYear int    `json:"fiscal_year"`
	File       string `json:"file"`
	State      string `json:"state"`
	StatusURL  string `json:"status_url"`

	StartedAt   string `json:"started_at,omitempty"`
	CompletedAt string `json:"completed_at,omitempty"`

	RowsProcessed  int `json:"rows_processed"`
	RowsSkipped    int `json:"rows_skipped"`
	CasesCreated   int `json:"cases_created"`
	MembersCreated int `json:"members_created"`
	ErrorsCreated  int `json:"errors_created"`

	TransformErrors    []string `json:"transform_errors,omitempty"`
	ValidationErrors   []string `json:"validation_errors,omitempty"`
	ValidationWarnings []string `json:"validation_warnings,omitempty"`
	ErrorMessage       string   `json:"error_message,omitempty"`
}

func toJobDTO(s etl.JobStatus) JobDTO {
	dto := JobDTO{
		JobID:      s.JobID,
		FiscalYear: s.FiscalYear,
		File:       s.File,
		State:      string(s.State),
		StatusURL:  "/api/loads/" + s.JobID,

		RowsProcessed:  s.RowsProcessed,
		RowsSkipped:    s.RowsSkipped,
		CasesCreated:   s.CasesCreated,
		MembersCreated: s.MembersCreated,
		ErrorsCreated:  s.ErrorsCreated,

		TransformErrors:    s.TransformErrors,
		ValidationErrors:   s.ValidationErrors,
		ValidationWarnings: s.ValidationWarnings,
		ErrorMessage:       s.ErrorMessage,
	}
	if s.StartedAt != nil {
		dto.StartedAt = s.StartedAt.Format(time.RFC3339)
	}
	if s.CompletedAt != nil {
		dto.CompletedAt = s.CompletedAt.Format(time.RFC3339)
	}
	return dto
}

// =============================================================================
// REFERENCES AND FISCAL YEARS
// =============================================================================

// ReferenceStatusDTO reports lookup-table population. Loads are refused
// until AllPopulated is true.
type ReferenceStatusDTO struct {
	AllPopulated bool           `json:"all_populated"`
	Tables       map[string]int `json:"tables"`
}

// FiscalYearDTO summarizes one loaded fiscal year.
type FiscalYearDTO struct {
	FiscalYear int `json:"fiscal_year"`
	Cases      int `json:"cases"`
	Members    int `json:"members"`
	Errors     int `json:"errors"`
}

// ResetYearDTO reports what a fiscal-year reset removed.
type ResetYearDTO struct {
	FiscalYear      int `json:"fiscal_year"`
	CasesDeleted    int `json:"cases_deleted"`
	MembersDeleted  int `json:"members_deleted"`
	FindingsDeleted int `json:"findings_deleted"`
}

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// HealthDTO is the liveness response.
type HealthDTO struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}
