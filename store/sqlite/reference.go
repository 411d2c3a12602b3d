/*
reference.go - Reference-code lookups, seeding, and fiscal-year reset

PURPOSE:
  Reference tables are populated outside the load path, before any job
  runs. This file implements seeding, the per-job resolver snapshot the
  validator consumes, and the explicit fiscal-year reset that makes a
  reload possible (writers never upsert).

SNAPSHOT SEMANTICS:
  LoadReferences reads every lookup table into a qc.ReferenceSets once
  per job. Per-record validation then never touches the database. The
  snapshot is a plain map; concurrent jobs each take their own.

RESET SEMANTICS:
  DeleteFiscalYear removes children before parents inside one
  transaction. The schema also cascades, but the explicit order keeps
  the counts honest and works on engines without cascade.

SEE ALSO:
  - qc/store.go: ReferenceResolver interface and table list
  - etl/validator.go: The consumer of the resolver snapshot
*/
package sqlite

import (
	"context"
	"fmt"

	"github.com/stperic/snapqc/qc"
)

// =============================================================================
// RESOLVER (qc.ReferenceResolver interface)
// =============================================================================

// IsValidCode reports whether code exists in the named lookup table.
// Prefer LoadReferences for per-record validation; this hits the
// database on every call.
func (s *Store) IsValidCode(table string, code int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM ref_codes WHERE table_name = ? AND code = ?",
		table, code,
	).Scan(&count)
	return err == nil && count > 0
}

// AllPopulated reports whether every required lookup table has at least
// one code.
func (s *Store) AllPopulated() bool {
	counts, err := s.ReferenceCounts(context.Background())
	if err != nil {
		return false
	}
	for _, table := range qc.ReferenceTables {
		if counts[table] == 0 {
			return false
		}
	}
	return true
}

// LoadReferences snapshots every lookup table into memory. Jobs call
// this once so per-record checks stay off the database.
func (s *Store) LoadReferences(ctx context.Context) (qc.ReferenceSets, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT table_name, code FROM ref_codes")
	if err != nil {
		return nil, fmt.Errorf("failed to load reference codes: %w", err)
	}
	defer rows.Close()

	refs := make(qc.ReferenceSets, len(qc.ReferenceTables))
	for rows.Next() {
		var table string
		var code int
		if err := rows.Scan(&table, &code); err != nil {
			return nil, err
		}
		if refs[table] == nil {
			refs[table] = make(map[int]bool)
		}
		refs[table][code] = true
	}
	return refs, rows.Err()
}

// ReferenceCounts reports how many codes each lookup table holds.
func (s *Store) ReferenceCounts(ctx context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT table_name, COUNT(*) FROM ref_codes GROUP BY table_name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int, len(qc.ReferenceTables))
	for _, table := range qc.ReferenceTables {
		counts[table] = 0
	}
	for rows.Next() {
		var table string
		var n int
		if err := rows.Scan(&table, &n); err != nil {
			return nil, err
		}
		counts[table] = n
	}
	return counts, rows.Err()
}

// =============================================================================
// SEEDING
// =============================================================================

// SeedReferences inserts codes into one lookup table. Existing codes
// are left alone so reseeding is idempotent.
func (s *Store) SeedReferences(ctx context.Context, table string, codes map[int]string) error {
	if !isKnownReferenceTable(table) {
		return fmt.Errorf("unknown reference table %q", table)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT OR IGNORE INTO ref_codes (table_name, code, description) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for code, description := range codes {
		if _, err := stmt.ExecContext(ctx, table, code, description); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SeedDefaultReferences populates every lookup table with the standard
// code set used by the national QC extracts.
func (s *Store) SeedDefaultReferences(ctx context.Context) error {
	for table, codes := range DefaultReferenceCodes {
		if err := s.SeedReferences(ctx, table, codes); err != nil {
			return fmt.Errorf("failed to seed %s: %w", table, err)
		}
	}
	return nil
}

func isKnownReferenceTable(table string) bool {
	for _, t := range qc.ReferenceTables {
		if t == table {
			return true
		}
	}
	return false
}

// DefaultReferenceCodes is the standard code set for each lookup table.
// Element and nature codes are seeded as full numeric ranges; the others
// are small enumerations.
var DefaultReferenceCodes = map[string]map[int]string{
	"ref_status": {
		1: "Active case reviewed",
		2: "Not subject to review",
		3: "Listed in error",
		4: "Unable to complete review",
	},
	"ref_case_classification": {
		1: "Correct",
		2: "Overissuance",
		3: "Underissuance",
		4: "Ineligible",
	},
	"ref_categorical_eligibility": {
		1: "Not categorically eligible",
		2: "PA categorical eligibility",
		3: "Broad-based categorical eligibility",
		4: "SSI categorical eligibility",
	},
	"ref_expedited_service": {
		1: "Not entitled",
		2: "Entitled and received",
		3: "Entitled and not received",
	},
	"ref_sex": {
		1: "Male",
		2: "Female",
	},
	"ref_snap_affiliation": {
		1: "Member, eligible",
		2: "Member, ineligible noncitizen",
		3: "Member, ineligible student",
		4: "Member, disqualified",
		5: "Nonmember, PA only",
		6: "Nonmember, other",
		7: "Nonmember, SSI cash-out",
		8: "Nonmember, foster care",
		9: "Unknown affiliation",
	},
	"ref_race_ethnicity": {
		1: "American Indian or Alaska Native",
		2: "Asian",
		3: "Black or African American",
		4: "Native Hawaiian or Pacific Islander",
		5: "White",
		6: "Multiple race",
		7: "Hispanic or Latino",
	},
	"ref_relationship": {
		1:  "Head of household",
		2:  "Spouse",
		3:  "Child",
		4:  "Parent",
		5:  "Sibling",
		6:  "Grandchild",
		7:  "Grandparent",
		8:  "Other relative",
		9:  "Foster child",
		10: "Unrelated adult",
		11: "Unrelated child",
	},
	"ref_citizenship_status": {
		1: "US-born citizen",
		2: "Naturalized citizen",
		3: "Eligible noncitizen",
		4: "Ineligible noncitizen",
	},
	"ref_element": elementCodes(),
	"ref_nature":  natureCodes(),
	"ref_agency_responsibility": {
		1: "Agency error",
		2: "Client error",
	},
	"ref_discovery": {
		1: "Case record review",
		2: "Client interview",
		3: "Collateral contact",
		4: "Data matching",
		5: "Documentation",
		6: "Home visit",
		7: "Other",
	},
	"ref_error_finding": {
		1: "Payment correct",
		2: "Overissuance",
		3: "Underissuance",
	},
}

// elementCodes returns the QC review element code ranges: 100s for
// general program requirements, 200s-300s for income and resources,
// 500s for deductions and benefit math.
func elementCodes() map[int]string {
	codes := make(map[int]string)
	for _, r := range []struct {
		lo, hi int
		label  string
	}{
		{111, 171, "General program requirement"},
		{211, 225, "Resources"},
		{311, 372, "Income"},
		{511, 560, "Deductions and benefit determination"},
	} {
		for c := r.lo; c <= r.hi; c++ {
			codes[c] = r.label
		}
	}
	return codes
}

func natureCodes() map[int]string {
	codes := make(map[int]string, 99)
	for c := 1; c <= 99; c++ {
		codes[c] = "Nature of error"
	}
	return codes
}

// =============================================================================
// FISCAL-YEAR RESET
// =============================================================================

// DeleteFiscalYear removes every row for one fiscal year, children
// before parents, in a single transaction. Returns per-entity counts.
func (s *Store) DeleteFiscalYear(ctx context.Context, fiscalYear int) (cases, members, findings int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, 0, err
	}
	defer tx.Rollback()

	deletes := []struct {
		sql    string
		target *int
	}{
		{"DELETE FROM qc_errors WHERE fiscal_year = ?", &findings},
		{"DELETE FROM household_members WHERE fiscal_year = ?", &members},
		{"DELETE FROM households WHERE fiscal_year = ?", &cases},
	}
	for _, d := range deletes {
		res, execErr := tx.ExecContext(ctx, d.sql, fiscalYear)
		if execErr != nil {
			return 0, 0, 0, execErr
		}
		n, _ := res.RowsAffected()
		*d.target = int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, 0, err
	}
	return cases, members, findings, nil
}
