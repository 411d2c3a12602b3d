/*
validator.go - Batch validation

PURPOSE:
  Checks structural and business-rule invariants across the three record
  sets of a batch. Every violation is collected; nothing short-circuits.
  Data problems never surface as Go errors here: the error return is
  reserved for caller contract violations (mixed fiscal years, missing
  resolver).

CHECK ORDER:
  1. Uniqueness: no case id appears twice within the batch
  2. Referential: every member/finding matches a case in the batch
  3. Numbering: member/error numbers are exactly 1..count per case
  4. Reference codes: coded fields are null or resolve via the resolver
  5. Ranges: monetary and demographic sanity bounds

STRICT MODE:
  Uniqueness, referential, numbering and unknown-code violations are
  always errors.
  Range violations are errors in strict mode and warnings otherwise.

SEE ALSO:
  - qc/store.go: ReferenceResolver interface and table names
  - loader.go: Decides whether errors are fatal to the job
*/
package etl

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/stperic/snapqc/qc"
)

// =============================================================================
// REPORT
// =============================================================================

// Violation is one validation finding.
type Violation struct {
	Rule    string // e.g. "orphan_member", "unknown_code", "range"
	Entity  string // "case", "member", "finding"
	CaseID  string
	Message string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s %s [%s]: %s", v.Entity, v.CaseID, v.Rule, v.Message)
}

// Report is the full outcome of validating one batch.
type Report struct {
	Errors   []Violation
	Warnings []Violation
}

// IsValid reports whether the batch may proceed to the write stage.
func (r Report) IsValid() bool { return len(r.Errors) == 0 }

func (r *Report) addError(v Violation)   { r.Errors = append(r.Errors, v) }
func (r *Report) addWarning(v Violation) { r.Warnings = append(r.Warnings, v) }

// =============================================================================
// VALIDATOR
// =============================================================================

// Validator checks batches against the reference tables and sanity
// bounds. Zero-value bounds are replaced with defaults in NewValidator.
type Validator struct {
	Refs   qc.ReferenceResolver
	Strict bool

	// MaxErrorAmount bounds |error_amount| on findings.
	MaxErrorAmount decimal.Decimal
	// MaxHouseholdSize is the warning threshold for certified size.
	MaxHouseholdSize int
	// MaxAge bounds member age.
	MaxAge int
}

func NewValidator(refs qc.ReferenceResolver, strict bool) *Validator {
	return &Validator{
		Refs:             refs,
		Strict:           strict,
		MaxErrorAmount:   decimal.NewFromInt(100000),
		MaxHouseholdSize: 20,
		MaxAge:           120,
	}
}

// Validate checks the whole batch and returns every violation found.
// The error return fires only on contract violations.
func (v *Validator) Validate(batch qc.Batch) (Report, error) {
	var report Report

	if v.Refs == nil {
		return report, fmt.Errorf("%w: validator requires a reference resolver", qc.ErrBatchMismatch)
	}
	for _, c := range batch.Cases {
		if c.FiscalYear != batch.FiscalYear {
			return report, fmt.Errorf("%w: case %s has fiscal year %d, batch is %d",
				qc.ErrBatchMismatch, c.CaseID, c.FiscalYear, batch.FiscalYear)
		}
	}

	// All records in a batch share one fiscal year, so a repeated case
	// id is a guaranteed key collision. Caught here so it surfaces as a
	// validation error instead of a write-stage rollback.
	caseKeys := make(map[string]bool, len(batch.Cases))
	for _, c := range batch.Cases {
		if caseKeys[c.CaseID] {
			report.addError(Violation{
				Rule: "duplicate_case", Entity: "case", CaseID: c.CaseID,
				Message: "case id appears more than once in batch",
			})
			continue
		}
		caseKeys[c.CaseID] = true
	}

	v.checkReferential(batch, caseKeys, &report)
	v.checkNumbering(batch, &report)
	v.checkCodes(batch, &report)
	v.checkRanges(batch, &report)

	return report, nil
}

// =============================================================================
// CHECK 1: REFERENTIAL MATCH
// =============================================================================

func (v *Validator) checkReferential(batch qc.Batch, caseKeys map[string]bool, report *Report) {
	for _, m := range batch.Members {
		if m.FiscalYear != batch.FiscalYear || !caseKeys[m.CaseID] {
			report.addError(Violation{
				Rule: "orphan_member", Entity: "member", CaseID: m.CaseID,
				Message: fmt.Sprintf("member %d references no case in batch", m.MemberNumber),
			})
		}
	}
	for _, f := range batch.Findings {
		if f.FiscalYear != batch.FiscalYear || !caseKeys[f.CaseID] {
			report.addError(Violation{
				Rule: "orphan_finding", Entity: "finding", CaseID: f.CaseID,
				Message: fmt.Sprintf("finding %d references no case in batch", f.ErrorNumber),
			})
		}
	}
}

// =============================================================================
// CHECK 2: DENSE NUMBERING
// =============================================================================

func (v *Validator) checkNumbering(batch qc.Batch, report *Report) {
	memberNums := make(map[string][]int)
	for _, m := range batch.Members {
		memberNums[m.CaseID] = append(memberNums[m.CaseID], m.MemberNumber)
	}
	findingNums := make(map[string][]int)
	for _, f := range batch.Findings {
		findingNums[f.CaseID] = append(findingNums[f.CaseID], f.ErrorNumber)
	}

	for caseID, nums := range memberNums {
		if msg := denseSequenceProblem(nums); msg != "" {
			report.addError(Violation{
				Rule: "member_numbering", Entity: "member", CaseID: caseID, Message: msg,
			})
		}
	}
	for caseID, nums := range findingNums {
		if msg := denseSequenceProblem(nums); msg != "" {
			report.addError(Violation{
				Rule: "finding_numbering", Entity: "finding", CaseID: caseID, Message: msg,
			})
		}
	}
}

// denseSequenceProblem reports why nums is not exactly 1..len(nums).
func denseSequenceProblem(nums []int) string {
	seen := make(map[int]bool, len(nums))
	for _, n := range nums {
		if n < 1 || n > len(nums) {
			return fmt.Sprintf("number %d outside 1..%d", n, len(nums))
		}
		if seen[n] {
			return fmt.Sprintf("number %d duplicated", n)
		}
		seen[n] = true
	}
	return ""
}

// =============================================================================
// CHECK 3: REFERENCE CODES
// =============================================================================

// Coded-field tables: which lookup table each field resolves against.
// Null codes are always fine; unknown codes are always errors.

var caseCodeChecks = []struct {
	Table string
	Name  string
	Get   func(*qc.Case) *int
}{
	{"ref_status", "status", func(c *qc.Case) *int { return c.Status }},
	{"ref_case_classification", "case_classification", func(c *qc.Case) *int { return c.CaseClassification }},
	{"ref_categorical_eligibility", "categorical_eligibility", func(c *qc.Case) *int { return c.CategoricalEligibility }},
	{"ref_expedited_service", "expedited_service", func(c *qc.Case) *int { return c.ExpeditedService }},
}

var memberCodeChecks = []struct {
	Table string
	Name  string
	Get   func(*qc.Member) *int
}{
	{"ref_sex", "sex", func(m *qc.Member) *int { return m.Sex }},
	{"ref_snap_affiliation", "snap_affiliation", func(m *qc.Member) *int { return m.SnapAffiliation }},
	{"ref_race_ethnicity", "race_ethnicity", func(m *qc.Member) *int { return m.RaceEthnicity }},
	{"ref_relationship", "relationship_to_head", func(m *qc.Member) *int { return m.RelationshipToHead }},
	{"ref_citizenship_status", "citizenship_status", func(m *qc.Member) *int { return m.CitizenshipStatus }},
}

var findingCodeChecks = []struct {
	Table string
	Name  string
	Get   func(*qc.ErrorFinding) *int
}{
	{"ref_element", "element_code", func(f *qc.ErrorFinding) *int { return f.ElementCode }},
	{"ref_nature", "nature_code", func(f *qc.ErrorFinding) *int { return f.NatureCode }},
	{"ref_agency_responsibility", "responsible_agency", func(f *qc.ErrorFinding) *int { return f.ResponsibleAgency }},
	{"ref_discovery", "discovery_method", func(f *qc.ErrorFinding) *int { return f.DiscoveryMethod }},
	{"ref_error_finding", "finding", func(f *qc.ErrorFinding) *int { return f.Finding }},
}

func (v *Validator) checkCodes(batch qc.Batch, report *Report) {
	for i := range batch.Cases {
		c := &batch.Cases[i]
		for _, chk := range caseCodeChecks {
			if code := chk.Get(c); code != nil && !v.Refs.IsValidCode(chk.Table, *code) {
				report.addError(unknownCode("case", c.CaseID, chk.Name, chk.Table, *code))
			}
		}
	}
	for i := range batch.Members {
		m := &batch.Members[i]
		for _, chk := range memberCodeChecks {
			if code := chk.Get(m); code != nil && !v.Refs.IsValidCode(chk.Table, *code) {
				report.addError(unknownCode("member", m.CaseID, chk.Name, chk.Table, *code))
			}
		}
	}
	for i := range batch.Findings {
		f := &batch.Findings[i]
		for _, chk := range findingCodeChecks {
			if code := chk.Get(f); code != nil && !v.Refs.IsValidCode(chk.Table, *code) {
				report.addError(unknownCode("finding", f.CaseID, chk.Name, chk.Table, *code))
			}
		}
	}
}

func unknownCode(entity, caseID, field, table string, code int) Violation {
	return Violation{
		Rule: "unknown_code", Entity: entity, CaseID: caseID,
		Message: fmt.Sprintf("%s code %d not in %s", field, code, table),
	}
}

// =============================================================================
// CHECK 4: SANITY RANGES
// =============================================================================

func (v *Validator) checkRanges(batch qc.Batch, report *Report) {
	add := report.addWarning
	if v.Strict {
		add = report.addError
	}

	for i := range batch.Cases {
		c := &batch.Cases[i]

		for _, field := range []struct {
			Name  string
			Value decimal.NullDecimal
		}{
			{"gross_income", c.GrossIncome},
			{"net_income", c.NetIncome},
			{"earned_income", c.EarnedIncome},
			{"unearned_income", c.UnearnedIncome},
			{"snap_benefit", c.SnapBenefit},
		} {
			if field.Value.Valid && field.Value.Decimal.IsNegative() {
				add(Violation{
					Rule: "range", Entity: "case", CaseID: c.CaseID,
					Message: fmt.Sprintf("negative %s: %s", field.Name, field.Value.Decimal),
				})
			}
		}

		if c.GrossIncome.Valid && c.NetIncome.Valid && c.GrossIncome.Decimal.LessThan(c.NetIncome.Decimal) {
			add(Violation{
				Rule: "range", Entity: "case", CaseID: c.CaseID,
				Message: fmt.Sprintf("gross income %s below net income %s", c.GrossIncome.Decimal, c.NetIncome.Decimal),
			})
		}
		if c.CertifiedHouseholdSize != nil {
			if size := *c.CertifiedHouseholdSize; size < 1 || size > v.MaxHouseholdSize {
				add(Violation{
					Rule: "range", Entity: "case", CaseID: c.CaseID,
					Message: fmt.Sprintf("certified household size %d outside 1..%d", size, v.MaxHouseholdSize),
				})
			}
		}
	}

	for i := range batch.Members {
		m := &batch.Members[i]

		if m.Age != nil && (*m.Age < 0 || *m.Age > v.MaxAge) {
			add(Violation{
				Rule: "range", Entity: "member", CaseID: m.CaseID,
				Message: fmt.Sprintf("member %d age %d outside 0..%d", m.MemberNumber, *m.Age, v.MaxAge),
			})
		}

		for _, field := range []struct {
			Name  string
			Value decimal.Decimal
		}{
			{"wages", m.Wages},
			{"self_employment_income", m.SelfEmploymentIncome},
			{"social_security", m.SocialSecurity},
			{"ssi", m.SSI},
			{"tanf", m.TANF},
			{"unemployment", m.Unemployment},
			{"child_support", m.ChildSupport},
			{"veterans_benefits", m.VeteransBenefits},
		} {
			if field.Value.IsNegative() {
				add(Violation{
					Rule: "range", Entity: "member", CaseID: m.CaseID,
					Message: fmt.Sprintf("member %d negative %s: %s", m.MemberNumber, field.Name, field.Value),
				})
			}
		}
	}

	// Error amounts are signed; only the magnitude is bounded.
	for i := range batch.Findings {
		f := &batch.Findings[i]
		if f.ErrorAmount.Valid && f.ErrorAmount.Decimal.Abs().GreaterThan(v.MaxErrorAmount) {
			add(Violation{
				Rule: "range", Entity: "finding", CaseID: f.CaseID,
				Message: fmt.Sprintf("finding %d error amount %s exceeds bound %s",
					f.ErrorNumber, f.ErrorAmount.Decimal, v.MaxErrorAmount),
			})
		}
	}
}
