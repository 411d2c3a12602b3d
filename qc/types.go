/*
Package qc provides the core data model for SNAP quality-control ingestion.

PURPOSE:
  This package contains the normalized entities produced by the ingestion
  pipeline (Case, Member, ErrorFinding), the decimal helpers that keep
  monetary precision, and the interfaces the pipeline depends on.

KEY CONCEPTS IN THIS FILE (types.go):
  - Case: one household's administrative record for one fiscal year
  - Member: one person within a Case, unpivoted from a repeated column group
  - ErrorFinding: one QC discrepancy within a Case, unpivoted similarly
  - Batch: the three record sets produced from one source file

DESIGN PRINCIPLES:
  1. Natural keys: (case_id, fiscal_year) identifies a Case; members and
     findings extend that key with a dense 1..N sequence number.
  2. Precision: Uses decimal.Decimal to avoid floating-point errors.
     Money carries 2 fraction digits, statistical weights carry 8.
  3. Null is not zero: nullable money fields use decimal.NullDecimal so
     "no data" survives all the way to the store. Member income fields
     default to zero instead, because an absent income column means
     "no such income".

SEE ALSO:
  - mapping.go: Source-column to field mapping tables
  - errors.go: Error taxonomy
  - store.go: Writer and ReferenceResolver interfaces
*/
package qc

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// LIMITS - Repeated column-group bounds in the wide source format
// =============================================================================

const (
	// MaxMembers is the number of repeated person column groups per row.
	MaxMembers = 17

	// MaxFindings is the number of repeated error column groups per row.
	MaxFindings = 9
)

// Decimal scales. Money is fixed-point dollars; weights are sampling
// weights that need much finer resolution.
const (
	MoneyScale  = 2
	WeightScale = 8
)

// =============================================================================
// DECIMAL HELPERS
// =============================================================================

// ParseMoney parses a monetary amount at 2 fraction digits.
func ParseMoney(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, err
	}
	return d.Round(MoneyScale), nil
}

// ParseWeight parses a statistical weight at 8 fraction digits.
func ParseWeight(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, err
	}
	return d.Round(WeightScale), nil
}

// Money wraps a decimal in a valid NullDecimal.
func Money(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d.Round(MoneyScale), Valid: true}
}

// MustMoney parses a monetary string or panics. Test and seed helper.
func MustMoney(raw string) decimal.NullDecimal {
	d, err := ParseMoney(raw)
	if err != nil {
		panic(err)
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// =============================================================================
// CASE - Household-level record, one per source row
// =============================================================================

// Case is one household's record for one fiscal year. Monetary fields are
// nullable on purpose: the source distinguishes "not reported" from "$0".
type Case struct {
	// Natural composite key
	CaseID     string
	FiscalYear int

	// Classification and administrative
	CaseClassification *int
	RegionCode         *string
	StateCode          *string
	StateName          *string
	YearMonth          *string
	Status             *int
	Stratum            *string

	// Household composition
	RawHouseholdSize       *int
	CertifiedHouseholdSize *int
	SnapUnitSize           *int
	NumNoncitizens         *int
	NumDisabled            *int
	NumElderly             *int
	NumChildren            *int
	CompositionCode        *string

	// Financial summary (monthly dollars)
	GrossIncome    decimal.NullDecimal
	NetIncome      decimal.NullDecimal
	EarnedIncome   decimal.NullDecimal
	UnearnedIncome decimal.NullDecimal

	// Assets
	LiquidResources decimal.NullDecimal
	RealProperty    decimal.NullDecimal
	VehicleAssets   decimal.NullDecimal
	TotalAssets     decimal.NullDecimal

	// Deductions
	StandardDeduction      decimal.NullDecimal
	EarnedIncomeDeduction  decimal.NullDecimal
	DependentCareDeduction decimal.NullDecimal
	MedicalDeduction       decimal.NullDecimal
	ShelterDeduction       decimal.NullDecimal
	TotalDeductions        decimal.NullDecimal

	// Housing expenses
	Rent              decimal.NullDecimal
	Utilities         decimal.NullDecimal
	ShelterExpense    decimal.NullDecimal
	HomelessDeduction decimal.NullDecimal

	// Benefits
	SnapBenefit    decimal.NullDecimal
	RawBenefit     decimal.NullDecimal
	MaximumBenefit decimal.NullDecimal
	MinimumBenefit decimal.NullDecimal

	// Eligibility and certification
	CategoricalEligibility *int
	ExpeditedService       *int
	CertificationMonth     *string
	LastCertification      *int

	// Poverty and work status
	PovertyLevel         decimal.NullDecimal
	WorkingPoorIndicator *bool
	TanfIndicator        *bool

	// QC results
	AmountError     decimal.NullDecimal
	GrossTestResult *int
	NetTestResult   *int

	// Statistical weights
	HouseholdWeight  decimal.NullDecimal
	FiscalYearWeight decimal.NullDecimal
}

// =============================================================================
// MEMBER - Person-level record, unpivoted from groups 1..17
// =============================================================================

// Member is one person within a Case. MemberNumber is assigned by the
// transformer as a dense 1..N sequence in source-column order; it is not
// the source slot index. Income fields default to zero when absent.
type Member struct {
	// Natural composite key (references Case by CaseID+FiscalYear)
	CaseID       string
	FiscalYear   int
	MemberNumber int

	// Demographics
	Age                *int
	Sex                *int
	RaceEthnicity      *int
	RelationshipToHead *int
	CitizenshipStatus  *int
	YearsEducation     *int

	// Status indicators
	SnapAffiliation      *int
	DisabilityIndicator  *int
	FosterChildIndicator *int
	WorkRegistration     *int
	AbawdStatus          *int
	WorkingIndicator     *int

	// Employment
	EmploymentRegion  *int
	EmploymentStatusA *int
	EmploymentStatusB *int

	// Earned income (monthly dollars, zero when absent)
	Wages                 decimal.Decimal
	SelfEmploymentIncome  decimal.Decimal
	EarnedIncomeTaxCredit decimal.Decimal
	OtherEarnedIncome     decimal.Decimal

	// Unearned income (monthly dollars, zero when absent)
	SocialSecurity        decimal.Decimal
	SSI                   decimal.Decimal
	VeteransBenefits      decimal.Decimal
	Unemployment          decimal.Decimal
	WorkersCompensation   decimal.Decimal
	TANF                  decimal.Decimal
	ChildSupport          decimal.Decimal
	GeneralAssistance     decimal.Decimal
	EducationLoans        decimal.Decimal
	OtherGovernmentIncome decimal.Decimal
	Contributions         decimal.Decimal
	DeemedIncome          decimal.Decimal
	OtherUnearnedIncome   decimal.Decimal

	// Deductions and expenses (zero when absent)
	DependentCareCost decimal.Decimal
	EnergyAssistance  decimal.Decimal
	WageSupplement    decimal.Decimal
	DiversionPayment  decimal.Decimal
}

// =============================================================================
// ERROR FINDING - QC discrepancy, unpivoted from groups 1..9
// =============================================================================

// ErrorFinding is one quality-control discrepancy within a Case.
// ErrorNumber is a dense 1..N sequence per Case. ErrorAmount is signed:
// positive means overissuance, negative means underissuance.
type ErrorFinding struct {
	// Natural composite key (references Case by CaseID+FiscalYear)
	CaseID      string
	FiscalYear  int
	ErrorNumber int

	ElementCode        *int
	NatureCode         *int
	ResponsibleAgency  *int
	ErrorAmount        decimal.NullDecimal
	DiscoveryMethod    *int
	VerificationStatus *int
	OccurrenceDate     *int
	TimePeriod         *string
	Finding            *int
}

// =============================================================================
// BATCH - The three record sets for one source file
// =============================================================================

// Batch holds everything transformed from one file. All records share the
// same fiscal year; members and findings reference cases in the same batch.
type Batch struct {
	FiscalYear int
	Cases      []Case
	Members    []Member
	Findings   []ErrorFinding
}

// WriteStats reports what a Writer persisted.
type WriteStats struct {
	Cases    int
	Members  int
	Findings int

	// CaseIDs lists the identifiers written, in insert order.
	CaseIDs []string
}

// =============================================================================
// RECORD - One raw source row
// =============================================================================

// Record is one source row as named raw fields. Values are untyped strings;
// the mapping tables own all coercion.
type Record map[string]string

// Null tokens used by the extract files.
var nullTokens = map[string]bool{
	"":     true,
	"NA":   true,
	"N/A":  true,
	"NULL": true,
}

// IsNull reports whether a raw field value means "no data".
func IsNull(raw string) bool {
	return nullTokens[raw]
}
