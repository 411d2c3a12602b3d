/*
store.go - Persistence and reference-lookup interfaces

PURPOSE:
  Storage contracts consumed by the pipeline. The loader depends only on
  these interfaces; store/sqlite provides the production implementation
  and qc/store provides an in-memory one for tests.

WRITE MODES:
  WriteAll is the whole-file mode: one transaction spanning every chunk
  of cases, then members, then findings, committed once. The staged
  methods (WriteCases/WriteMembers/WriteFindings) each commit on their
  own and exist for partial reloads under operator control.

NO UPSERTS:
  Writers never update existing rows. Loading the same fiscal year twice
  without a reset fails with ErrIntegrity on the second attempt.

SEE ALSO:
  - store/sqlite: SQLite implementation
  - qc/store/memory.go: In-memory implementation for tests
*/
package qc

import "context"

// =============================================================================
// WRITER
// =============================================================================

// Writer persists transformed batches. Implementations chunk inserts
// internally; chunk size never changes the unit of atomicity.
type Writer interface {
	// WriteAll persists the whole batch in a single transaction, cases
	// first. Any failure rolls everything back.
	WriteAll(ctx context.Context, batch Batch) (WriteStats, error)

	// Staged writes, one transaction per entity type.
	WriteCases(ctx context.Context, cases []Case) (int, []string, error)
	WriteMembers(ctx context.Context, members []Member) (int, error)
	WriteFindings(ctx context.Context, findings []ErrorFinding) (int, error)
}

// =============================================================================
// REFERENCE RESOLVER
// =============================================================================

// ReferenceResolver answers whether coded values resolve against the
// externally populated lookup tables. Read-only from the pipeline's
// perspective; safe to share across concurrent jobs.
type ReferenceResolver interface {
	// IsValidCode reports whether code exists in the named lookup table.
	IsValidCode(table string, code int) bool

	// AllPopulated reports whether every required lookup table has at
	// least one code. Loading must not start otherwise.
	AllPopulated() bool
}

// ReferenceTables lists every lookup table the validator consults.
// Population happens outside this pipeline, before any load job runs.
var ReferenceTables = []string{
	"ref_status",
	"ref_case_classification",
	"ref_categorical_eligibility",
	"ref_expedited_service",
	"ref_sex",
	"ref_snap_affiliation",
	"ref_race_ethnicity",
	"ref_relationship",
	"ref_citizenship_status",
	"ref_element",
	"ref_nature",
	"ref_agency_responsibility",
	"ref_discovery",
	"ref_error_finding",
}

// ReferenceSets is an in-memory snapshot of the lookup tables. It is the
// usual ReferenceResolver: stores load it once per job so per-record
// checks never hit the database.
type ReferenceSets map[string]map[int]bool

func (r ReferenceSets) IsValidCode(table string, code int) bool {
	return r[table][code]
}

func (r ReferenceSets) AllPopulated() bool {
	for _, table := range ReferenceTables {
		if len(r[table]) == 0 {
			return false
		}
	}
	return true
}
