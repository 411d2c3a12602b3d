package etl_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stperic/snapqc/etl"
	"github.com/stperic/snapqc/qc"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// testRefs returns a resolver with every lookup table populated.
func testRefs() qc.ReferenceSets {
	refs := make(qc.ReferenceSets)
	set := func(table string, codes ...int) {
		refs[table] = make(map[int]bool)
		for _, c := range codes {
			refs[table][c] = true
		}
	}
	set("ref_status", 1, 2, 3, 4)
	set("ref_case_classification", 1, 2, 3, 4)
	set("ref_categorical_eligibility", 1, 2, 3, 4)
	set("ref_expedited_service", 1, 2, 3)
	set("ref_sex", 1, 2)
	set("ref_snap_affiliation", 1, 2, 3, 4, 5)
	set("ref_race_ethnicity", 1, 2, 3, 4, 5, 6, 7)
	set("ref_relationship", 1, 2, 3, 4, 5)
	set("ref_citizenship_status", 1, 2, 3, 4)
	set("ref_element", 151, 311, 520)
	set("ref_nature", 12, 30)
	set("ref_agency_responsibility", 1, 2)
	set("ref_discovery", 1, 2, 3)
	set("ref_error_finding", 1, 2, 3)
	return refs
}

func intp(n int) *int { return &n }

func testBatch() qc.Batch {
	return qc.Batch{
		FiscalYear: 2023,
		Cases: []qc.Case{{
			CaseID:                 "C1",
			FiscalYear:             2023,
			Status:                 intp(1),
			CertifiedHouseholdSize: intp(3),
			GrossIncome:            qc.MustMoney("1500.00"),
			NetIncome:              qc.MustMoney("900.00"),
			SnapBenefit:            qc.MustMoney("281.00"),
		}},
		Members: []qc.Member{
			{CaseID: "C1", FiscalYear: 2023, MemberNumber: 1, Age: intp(34), Sex: intp(2)},
			{CaseID: "C1", FiscalYear: 2023, MemberNumber: 2, Age: intp(8), Sex: intp(1)},
		},
		Findings: []qc.ErrorFinding{
			{CaseID: "C1", FiscalYear: 2023, ErrorNumber: 1, ElementCode: intp(311),
				NatureCode: intp(12), ErrorAmount: qc.MustMoney("-75.25")},
		},
	}
}

// =============================================================================
// CONTRACT VIOLATIONS
// =============================================================================

func TestValidator_NilResolverIsContractViolation(t *testing.T) {
	v := &etl.Validator{}
	_, err := v.Validate(testBatch())
	assert.ErrorIs(t, err, qc.ErrBatchMismatch)
}

func TestValidator_MixedFiscalYearsIsContractViolation(t *testing.T) {
	v := etl.NewValidator(testRefs(), false)

	batch := testBatch()
	batch.Cases[0].FiscalYear = 2022

	_, err := v.Validate(batch)
	assert.ErrorIs(t, err, qc.ErrBatchMismatch)
}

// =============================================================================
// STRUCTURAL CHECKS
// =============================================================================

func TestValidator_CleanBatch(t *testing.T) {
	v := etl.NewValidator(testRefs(), true)

	report, err := v.Validate(testBatch())
	require.NoError(t, err)
	assert.True(t, report.IsValid())
	assert.Empty(t, report.Warnings)
}

func TestValidator_DuplicateCaseID(t *testing.T) {
	// GIVEN: The same case id twice in one batch
	// WHEN: Validating
	// THEN: Blocking error before the write stage has a chance to hit
	//       the key collision

	v := etl.NewValidator(testRefs(), false)

	batch := testBatch()
	batch.Cases = append(batch.Cases, batch.Cases[0])

	report, err := v.Validate(batch)
	require.NoError(t, err)
	require.False(t, report.IsValid())
	assert.Equal(t, "duplicate_case", report.Errors[0].Rule)
	assert.Equal(t, batch.Cases[0].CaseID, report.Errors[0].CaseID)
}

func TestValidator_OrphanMember(t *testing.T) {
	// GIVEN: A member whose case id matches nothing in the batch
	// WHEN: Validating
	// THEN: Blocking error, regardless of strict mode

	v := etl.NewValidator(testRefs(), false)

	batch := testBatch()
	batch.Members = append(batch.Members, qc.Member{
		CaseID: "GHOST", FiscalYear: 2023, MemberNumber: 1,
	})

	report, err := v.Validate(batch)
	require.NoError(t, err)
	require.False(t, report.IsValid())
	assert.Equal(t, "orphan_member", report.Errors[0].Rule)
	assert.Equal(t, "GHOST", report.Errors[0].CaseID)
}

func TestValidator_NumberingGap(t *testing.T) {
	// GIVEN: Members numbered 1 and 3
	// WHEN: Validating
	// THEN: Blocking numbering error - sequences must be exactly 1..N

	v := etl.NewValidator(testRefs(), false)

	batch := testBatch()
	batch.Members[1].MemberNumber = 3

	report, err := v.Validate(batch)
	require.NoError(t, err)
	require.False(t, report.IsValid())
	assert.Equal(t, "member_numbering", report.Errors[0].Rule)
}

func TestValidator_DuplicateFindingNumber(t *testing.T) {
	v := etl.NewValidator(testRefs(), false)

	batch := testBatch()
	batch.Findings = append(batch.Findings, qc.ErrorFinding{
		CaseID: "C1", FiscalYear: 2023, ErrorNumber: 1, ElementCode: intp(151),
	})

	report, err := v.Validate(batch)
	require.NoError(t, err)
	require.False(t, report.IsValid())
	assert.Equal(t, "finding_numbering", report.Errors[0].Rule)
}

// =============================================================================
// REFERENCE CODES
// =============================================================================

func TestValidator_UnknownCodeAlwaysBlocks(t *testing.T) {
	// GIVEN: A sex code that no lookup table contains, lenient mode
	// WHEN: Validating
	// THEN: Still a blocking error - unknown codes are never warnings

	v := etl.NewValidator(testRefs(), false)

	batch := testBatch()
	batch.Members[0].Sex = intp(9)

	report, err := v.Validate(batch)
	require.NoError(t, err)
	require.False(t, report.IsValid())
	assert.Equal(t, "unknown_code", report.Errors[0].Rule)
	assert.Contains(t, report.Errors[0].Message, "ref_sex")
}

func TestValidator_NullCodesAreFine(t *testing.T) {
	v := etl.NewValidator(testRefs(), true)

	batch := testBatch()
	batch.Cases[0].Status = nil
	batch.Members[0].Sex = nil

	report, err := v.Validate(batch)
	require.NoError(t, err)
	assert.True(t, report.IsValid())
}

// =============================================================================
// RANGES AND STRICT MODE
// =============================================================================

func TestValidator_RangeViolations_LenientVsStrict(t *testing.T) {
	// GIVEN: A negative benefit and a gross income below net income
	// WHEN: Validating in lenient and then strict mode
	// THEN: Warnings first, blocking errors second - same findings

	batch := testBatch()
	batch.Cases[0].SnapBenefit = qc.MustMoney("-5.00")
	batch.Cases[0].GrossIncome = qc.MustMoney("500.00")

	lenient := etl.NewValidator(testRefs(), false)
	report, err := lenient.Validate(batch)
	require.NoError(t, err)
	assert.True(t, report.IsValid())
	assert.Len(t, report.Warnings, 2)

	strict := etl.NewValidator(testRefs(), true)
	report, err = strict.Validate(batch)
	require.NoError(t, err)
	assert.False(t, report.IsValid())
	assert.Len(t, report.Errors, 2)
}

func TestValidator_SignedErrorAmountWithinBound(t *testing.T) {
	// Negative amounts are legitimate (underissuance); only the
	// magnitude is bounded.
	v := etl.NewValidator(testRefs(), true)

	batch := testBatch()
	batch.Findings[0].ErrorAmount = qc.MustMoney("-99999.99")

	report, err := v.Validate(batch)
	require.NoError(t, err)
	assert.True(t, report.IsValid())

	batch.Findings[0].ErrorAmount = qc.MustMoney("-100000.01")
	report, err = v.Validate(batch)
	require.NoError(t, err)
	assert.False(t, report.IsValid())
}

func TestValidator_AgeBound(t *testing.T) {
	v := etl.NewValidator(testRefs(), true)

	batch := testBatch()
	batch.Members[0].Age = intp(121)

	report, err := v.Validate(batch)
	require.NoError(t, err)
	require.False(t, report.IsValid())
	assert.Equal(t, "range", report.Errors[0].Rule)
}
