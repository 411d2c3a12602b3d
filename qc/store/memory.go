// Package store provides Writer implementations.
package store

import (
	"context"
	"errors"
	"sync"

	"github.com/stperic/snapqc/qc"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory is an in-memory Writer with the same atomicity and duplicate
// rejection semantics as the SQLite store. FailEntity injects a
// persistence failure on a chosen entity type to exercise rollback.
type Memory struct {
	mu       sync.RWMutex
	cases    map[caseKey]qc.Case
	members  map[memberKey]qc.Member
	findings map[memberKey]qc.ErrorFinding

	// FailEntity, when set to "cases", "members" or "findings", makes
	// the corresponding write stage fail with a PersistenceError.
	FailEntity string
}

type caseKey struct {
	CaseID     string
	FiscalYear int
}

type memberKey struct {
	CaseID     string
	FiscalYear int
	Number     int
}

func NewMemory() *Memory {
	return &Memory{
		cases:    make(map[caseKey]qc.Case),
		members:  make(map[memberKey]qc.Member),
		findings: make(map[memberKey]qc.ErrorFinding),
	}
}

// WriteAll persists the whole batch atomically: nothing is visible if
// any record conflicts or a failure is injected.
func (m *Memory) WriteAll(_ context.Context, batch qc.Batch) (qc.WriteStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stats qc.WriteStats

	// Validate the whole batch against existing state before mutating,
	// so a late conflict cannot leave earlier entities applied.
	for _, c := range batch.Cases {
		k := caseKey{c.CaseID, c.FiscalYear}
		if _, ok := m.cases[k]; ok {
			return stats, &qc.IntegrityError{Entity: "cases", Err: errors.New("duplicate case key")}
		}
	}
	for _, mem := range batch.Members {
		k := memberKey{mem.CaseID, mem.FiscalYear, mem.MemberNumber}
		if _, ok := m.members[k]; ok {
			return stats, &qc.IntegrityError{Entity: "members", Err: errors.New("duplicate member key")}
		}
	}
	for _, f := range batch.Findings {
		k := memberKey{f.CaseID, f.FiscalYear, f.ErrorNumber}
		if _, ok := m.findings[k]; ok {
			return stats, &qc.IntegrityError{Entity: "findings", Err: errors.New("duplicate finding key")}
		}
	}
	for _, entity := range []string{"cases", "members", "findings"} {
		if m.FailEntity == entity {
			return stats, &qc.PersistenceError{Entity: entity, Err: errors.New("injected failure")}
		}
	}

	for _, c := range batch.Cases {
		m.cases[caseKey{c.CaseID, c.FiscalYear}] = c
		stats.CaseIDs = append(stats.CaseIDs, c.CaseID)
	}
	for _, mem := range batch.Members {
		m.members[memberKey{mem.CaseID, mem.FiscalYear, mem.MemberNumber}] = mem
	}
	for _, f := range batch.Findings {
		m.findings[memberKey{f.CaseID, f.FiscalYear, f.ErrorNumber}] = f
	}

	stats.Cases = len(batch.Cases)
	stats.Members = len(batch.Members)
	stats.Findings = len(batch.Findings)
	return stats, nil
}

func (m *Memory) WriteCases(_ context.Context, cases []qc.Case) (int, []string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailEntity == "cases" {
		return 0, nil, &qc.PersistenceError{Entity: "cases", Err: errors.New("injected failure")}
	}
	for _, c := range cases {
		if _, ok := m.cases[caseKey{c.CaseID, c.FiscalYear}]; ok {
			return 0, nil, &qc.IntegrityError{Entity: "cases", Err: errors.New("duplicate case key")}
		}
	}

	ids := make([]string, 0, len(cases))
	for _, c := range cases {
		m.cases[caseKey{c.CaseID, c.FiscalYear}] = c
		ids = append(ids, c.CaseID)
	}
	return len(cases), ids, nil
}

func (m *Memory) WriteMembers(_ context.Context, members []qc.Member) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailEntity == "members" {
		return 0, &qc.PersistenceError{Entity: "members", Err: errors.New("injected failure")}
	}
	for _, mem := range members {
		k := memberKey{mem.CaseID, mem.FiscalYear, mem.MemberNumber}
		if _, ok := m.members[k]; ok {
			return 0, &qc.IntegrityError{Entity: "members", Err: errors.New("duplicate member key")}
		}
		if _, ok := m.cases[caseKey{mem.CaseID, mem.FiscalYear}]; !ok {
			return 0, &qc.IntegrityError{Entity: "members", Err: errors.New("missing foreign case")}
		}
	}

	for _, mem := range members {
		m.members[memberKey{mem.CaseID, mem.FiscalYear, mem.MemberNumber}] = mem
	}
	return len(members), nil
}

func (m *Memory) WriteFindings(_ context.Context, findings []qc.ErrorFinding) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailEntity == "findings" {
		return 0, &qc.PersistenceError{Entity: "findings", Err: errors.New("injected failure")}
	}
	for _, f := range findings {
		k := memberKey{f.CaseID, f.FiscalYear, f.ErrorNumber}
		if _, ok := m.findings[k]; ok {
			return 0, &qc.IntegrityError{Entity: "findings", Err: errors.New("duplicate finding key")}
		}
		if _, ok := m.cases[caseKey{f.CaseID, f.FiscalYear}]; !ok {
			return 0, &qc.IntegrityError{Entity: "findings", Err: errors.New("missing foreign case")}
		}
	}

	for _, f := range findings {
		m.findings[memberKey{f.CaseID, f.FiscalYear, f.ErrorNumber}] = f
	}
	return len(findings), nil
}

// =============================================================================
// INSPECTION HELPERS (tests)
// =============================================================================

// Counts returns the number of stored cases, members and findings.
func (m *Memory) Counts() (int, int, int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.cases), len(m.members), len(m.findings)
}

// Case returns a stored case, if present.
func (m *Memory) Case(caseID string, fiscalYear int) (qc.Case, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.cases[caseKey{caseID, fiscalYear}]
	return c, ok
}

// Member returns a stored member, if present.
func (m *Memory) Member(caseID string, fiscalYear, number int) (qc.Member, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mem, ok := m.members[memberKey{caseID, fiscalYear, number}]
	return mem, ok
}

// DeleteFiscalYear removes everything for one fiscal year, children
// first. Mirrors the management reset on the SQLite store.
func (m *Memory) DeleteFiscalYear(fiscalYear int) (cases, members, findings int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k := range m.findings {
		if k.FiscalYear == fiscalYear {
			delete(m.findings, k)
			findings++
		}
	}
	for k := range m.members {
		if k.FiscalYear == fiscalYear {
			delete(m.members, k)
			members++
		}
	}
	for k := range m.cases {
		if k.FiscalYear == fiscalYear {
			delete(m.cases, k)
			cases++
		}
	}
	return cases, members, findings
}
