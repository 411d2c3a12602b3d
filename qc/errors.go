/*
errors.go - Centralized error types for the ingestion pipeline

PURPOSE:
  All error types in one place for consistency and discoverability.
  Pipeline stages wrap these errors with stage-specific context.

ERROR CATEGORIES:
  1. Source errors    - Missing file, malformed rows
  2. Transform errors - Field-level coercion failures
  3. Write errors     - Constraint violations and persistence failures

PROPAGATION POLICY:
  Data-quality problems never crash the process: the reader reports
  malformed rows one at a time, the transformer collects field errors,
  the validator returns a full report. Only writer-stage failures
  (IntegrityError, PersistenceError) are fatal to a load job, and both
  guarantee the whole-file transaction was rolled back.

USAGE:
  if errors.Is(err, qc.ErrIntegrity) {
      // duplicate key or missing foreign case; store unchanged
  }

SEE ALSO:
  - etl/reader.go: Produces MalformedRecordError
  - etl/transformer.go: Produces TransformError
  - store/sqlite: Produces IntegrityError / PersistenceError
*/
package qc

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrSourceNotFound is returned when the source file does not exist.
	// Fatal to the whole job immediately.
	ErrSourceNotFound = errors.New("source file not found")

	// ErrMalformedRecord is returned when a row cannot be parsed into
	// fields. Per-row: the reader keeps going unless the caller stops.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrMissingColumns is returned when the source file lacks required
	// household columns. Fatal: nothing useful can be unpivoted.
	ErrMissingColumns = errors.New("required columns missing")

	// ErrTransform is returned when a field cannot be coerced to its
	// declared type. Collected per field, never fatal on its own.
	ErrTransform = errors.New("field transform failed")

	// ErrReferencesNotReady is returned when lookup tables are empty.
	// Reference population is a precondition for loading.
	ErrReferencesNotReady = errors.New("reference tables not populated")

	// ErrValidationFailed is returned by the loader when validation
	// errors block the write stage.
	ErrValidationFailed = errors.New("validation failed")

	// ErrIntegrity is returned on constraint violations: duplicate
	// composite key or missing foreign case. The transaction is rolled
	// back; loading the same fiscal year twice surfaces this.
	ErrIntegrity = errors.New("integrity violation")

	// ErrPersistence is returned on any other storage failure
	// (timeout, connection loss). The transaction is rolled back.
	ErrPersistence = errors.New("persistence failure")

	// ErrBatchMismatch indicates a caller contract violation, such as
	// validating or writing record sets from different fiscal years.
	ErrBatchMismatch = errors.New("batch contract violation")

	// ErrJobNotFound is returned when a job id is unknown.
	ErrJobNotFound = errors.New("job not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// MalformedRecordError reports a row that could not be parsed.
// Row numbers are 1-based and count data rows, not the header.
type MalformedRecordError struct {
	Row int
	Err error
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("row %d: malformed record: %v", e.Row, e.Err)
}

func (e *MalformedRecordError) Unwrap() error { return ErrMalformedRecord }

// TransformError reports one field that failed coercion. The row keeps
// loading with the field left null; the error is collected for the job
// status.
type TransformError struct {
	Row    int
	Column string
	Value  string
	Err    error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("row %d, column %s: cannot coerce %q: %v", e.Row, e.Column, e.Value, e.Err)
}

func (e *TransformError) Unwrap() error { return ErrTransform }

// IntegrityError reports a constraint violation during a write, tagged
// with the entity and chunk that triggered it.
type IntegrityError struct {
	Entity string // "cases", "members", "findings"
	Chunk  int    // zero-based chunk index within the entity
	Err    error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity violation writing %s (chunk %d): %v", e.Entity, e.Chunk, e.Err)
}

func (e *IntegrityError) Unwrap() error { return ErrIntegrity }

// PersistenceError reports a non-constraint storage failure.
type PersistenceError struct {
	Entity string
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure writing %s: %v", e.Entity, e.Err)
}

func (e *PersistenceError) Unwrap() error { return ErrPersistence }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsDataError returns true for per-row or per-field data-quality errors
// that do not abort a load on their own.
func IsDataError(err error) bool {
	return errors.Is(err, ErrMalformedRecord) ||
		errors.Is(err, ErrTransform)
}

// IsWriteError returns true for writer-stage failures. Both categories
// guarantee full rollback of the whole-file transaction.
func IsWriteError(err error) bool {
	return errors.Is(err, ErrIntegrity) ||
		errors.Is(err, ErrPersistence)
}
