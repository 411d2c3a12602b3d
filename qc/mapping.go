/*
mapping.go - Source-column to field mapping tables

PURPOSE:
  The single source of truth for the wide-file column conventions. Every
  mapping from a raw column name to a typed field lives here: household
  columns map 1:1, person and error columns repeat with a numeric suffix
  (WAGES1..WAGES17, ELEMENT1..ELEMENT9).

HOW THE TABLES WORK:
  Each entry pairs a source column name with a typed setter. The
  transformer walks the tables, looks the column up in the raw record,
  and calls the setter on non-null values. Setters never see null input:
  skipping a null leaves the field at its declared default (nil for
  nullable fields, zero for member income fields).

GROUP PRESENCE:
  A person slot is occupied iff its FSAFIL<n> column is non-null; an
  error slot iff its ELEMENT<n> column is non-null. Other columns in an
  absent group are ignored entirely.

SEE ALSO:
  - etl/transformer.go: Drives these tables
  - types.go: Target entities
*/
package qc

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// COLUMN CONVENTIONS
// =============================================================================

const (
	// CaseIDColumn holds the unique unit identifier for the row.
	CaseIDColumn = "HHLDNO"

	// MemberPresenceColumn marks a person slot as occupied (suffixed 1..17).
	MemberPresenceColumn = "FSAFIL"

	// FindingPresenceColumn marks an error slot as occupied (suffixed 1..9).
	FindingPresenceColumn = "ELEMENT"
)

// RequiredColumns must exist in every source file.
var RequiredColumns = []string{"HHLDNO", "STATE", "YRMONTH", "FSBEN"}

// GroupColumn returns the wide-format column name for a repeated group
// variable, e.g. GroupColumn("WAGES", 3) == "WAGES3".
func GroupColumn(base string, n int) string {
	return base + strconv.Itoa(n)
}

// =============================================================================
// PARSE HELPERS
// =============================================================================

func parseCode(raw string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(raw))
}

func parseIndicator(raw string) (bool, error) {
	s := strings.TrimSpace(raw)
	if b, err := strconv.ParseBool(s); err == nil {
		return b, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return false, err
	}
	return n != 0, nil
}

// =============================================================================
// CASE COLUMNS
// =============================================================================

// CaseColumn maps one non-repeated source column to a Case field.
type CaseColumn struct {
	Source string
	Set    func(c *Case, raw string) error
}

func caseStr(source string, field func(*Case) **string) CaseColumn {
	return CaseColumn{Source: source, Set: func(c *Case, raw string) error {
		v := strings.TrimSpace(raw)
		*field(c) = &v
		return nil
	}}
}

func caseCode(source string, field func(*Case) **int) CaseColumn {
	return CaseColumn{Source: source, Set: func(c *Case, raw string) error {
		n, err := parseCode(raw)
		if err != nil {
			return err
		}
		*field(c) = &n
		return nil
	}}
}

func caseIndicator(source string, field func(*Case) **bool) CaseColumn {
	return CaseColumn{Source: source, Set: func(c *Case, raw string) error {
		b, err := parseIndicator(raw)
		if err != nil {
			return err
		}
		*field(c) = &b
		return nil
	}}
}

func caseMoney(source string, field func(*Case) *decimal.NullDecimal) CaseColumn {
	return CaseColumn{Source: source, Set: func(c *Case, raw string) error {
		d, err := ParseMoney(raw)
		if err != nil {
			return err
		}
		*field(c) = decimal.NullDecimal{Decimal: d, Valid: true}
		return nil
	}}
}

func caseWeight(source string, field func(*Case) *decimal.NullDecimal) CaseColumn {
	return CaseColumn{Source: source, Set: func(c *Case, raw string) error {
		d, err := ParseWeight(raw)
		if err != nil {
			return err
		}
		*field(c) = decimal.NullDecimal{Decimal: d, Valid: true}
		return nil
	}}
}

// CaseColumns declares every non-repeated column the pipeline understands.
// The case id column is handled separately because it forms the key.
var CaseColumns = []CaseColumn{
	// Classification and administrative
	caseCode("CASE", func(c *Case) **int { return &c.CaseClassification }),
	caseStr("REGIONCD", func(c *Case) **string { return &c.RegionCode }),
	caseStr("STATE", func(c *Case) **string { return &c.StateCode }),
	caseStr("STATENAME", func(c *Case) **string { return &c.StateName }),
	caseStr("YRMONTH", func(c *Case) **string { return &c.YearMonth }),
	caseCode("STATUS", func(c *Case) **int { return &c.Status }),
	caseStr("STRATUM", func(c *Case) **string { return &c.Stratum }),

	// Household composition
	caseCode("RAWHSIZE", func(c *Case) **int { return &c.RawHouseholdSize }),
	caseCode("CERTHHSZ", func(c *Case) **int { return &c.CertifiedHouseholdSize }),
	caseCode("FSUSIZE", func(c *Case) **int { return &c.SnapUnitSize }),
	caseCode("FSNONCIT", func(c *Case) **int { return &c.NumNoncitizens }),
	caseCode("FSDIS", func(c *Case) **int { return &c.NumDisabled }),
	caseCode("FSELDER", func(c *Case) **int { return &c.NumElderly }),
	caseCode("FSKID", func(c *Case) **int { return &c.NumChildren }),
	caseStr("COMPOSITION", func(c *Case) **string { return &c.CompositionCode }),

	// Financial summary
	caseMoney("RAWGROSS", func(c *Case) *decimal.NullDecimal { return &c.GrossIncome }),
	caseMoney("RAWNET", func(c *Case) *decimal.NullDecimal { return &c.NetIncome }),
	caseMoney("RAWERND", func(c *Case) *decimal.NullDecimal { return &c.EarnedIncome }),
	caseMoney("FSUNEARN", func(c *Case) *decimal.NullDecimal { return &c.UnearnedIncome }),

	// Assets
	caseMoney("LIQRESOR", func(c *Case) *decimal.NullDecimal { return &c.LiquidResources }),
	caseMoney("REALPROP", func(c *Case) *decimal.NullDecimal { return &c.RealProperty }),
	caseMoney("FSVEHAST", func(c *Case) *decimal.NullDecimal { return &c.VehicleAssets }),
	caseMoney("FSASSET", func(c *Case) *decimal.NullDecimal { return &c.TotalAssets }),

	// Deductions
	caseMoney("FSSTDDED", func(c *Case) *decimal.NullDecimal { return &c.StandardDeduction }),
	caseMoney("FSERNDED", func(c *Case) *decimal.NullDecimal { return &c.EarnedIncomeDeduction }),
	caseMoney("FSDEPDED", func(c *Case) *decimal.NullDecimal { return &c.DependentCareDeduction }),
	caseMoney("FSMEDDED", func(c *Case) *decimal.NullDecimal { return &c.MedicalDeduction }),
	caseMoney("SHELDED", func(c *Case) *decimal.NullDecimal { return &c.ShelterDeduction }),
	caseMoney("FSTOTDED", func(c *Case) *decimal.NullDecimal { return &c.TotalDeductions }),

	// Housing expenses
	caseMoney("RENT", func(c *Case) *decimal.NullDecimal { return &c.Rent }),
	caseMoney("UTIL", func(c *Case) *decimal.NullDecimal { return &c.Utilities }),
	caseMoney("FSCSEXP", func(c *Case) *decimal.NullDecimal { return &c.ShelterExpense }),
	caseMoney("HOMELESS_DED", func(c *Case) *decimal.NullDecimal { return &c.HomelessDeduction }),

	// Benefits
	caseMoney("FSBEN", func(c *Case) *decimal.NullDecimal { return &c.SnapBenefit }),
	caseMoney("RAWBEN", func(c *Case) *decimal.NullDecimal { return &c.RawBenefit }),
	caseMoney("BENMAX", func(c *Case) *decimal.NullDecimal { return &c.MaximumBenefit }),
	caseMoney("MINIMUM_BEN", func(c *Case) *decimal.NullDecimal { return &c.MinimumBenefit }),

	// Eligibility and certification
	caseCode("CAT_ELIG", func(c *Case) **int { return &c.CategoricalEligibility }),
	caseCode("EXPEDSER", func(c *Case) **int { return &c.ExpeditedService }),
	caseStr("CERTMTH", func(c *Case) **string { return &c.CertificationMonth }),
	caseCode("LASTCERT", func(c *Case) **int { return &c.LastCertification }),

	// Poverty and work status
	caseMoney("TPOV", func(c *Case) *decimal.NullDecimal { return &c.PovertyLevel }),
	caseIndicator("WRK_POOR", func(c *Case) **bool { return &c.WorkingPoorIndicator }),
	caseIndicator("TANF_IND", func(c *Case) **bool { return &c.TanfIndicator }),

	// QC results
	caseMoney("AMTERR", func(c *Case) *decimal.NullDecimal { return &c.AmountError }),
	caseCode("FSGRTEST", func(c *Case) **int { return &c.GrossTestResult }),
	caseCode("FSNETEST", func(c *Case) **int { return &c.NetTestResult }),

	// Statistical weights
	caseWeight("HWGT", func(c *Case) *decimal.NullDecimal { return &c.HouseholdWeight }),
	caseWeight("FYWGT", func(c *Case) *decimal.NullDecimal { return &c.FiscalYearWeight }),
}

// =============================================================================
// MEMBER COLUMNS (repeated 1..17)
// =============================================================================

// MemberColumn maps one person-group variable (base name, no suffix) to a
// Member field.
type MemberColumn struct {
	Source string
	Set    func(m *Member, raw string) error
}

func memberCode(source string, field func(*Member) **int) MemberColumn {
	return MemberColumn{Source: source, Set: func(m *Member, raw string) error {
		n, err := parseCode(raw)
		if err != nil {
			return err
		}
		*field(m) = &n
		return nil
	}}
}

func memberMoney(source string, field func(*Member) *decimal.Decimal) MemberColumn {
	return MemberColumn{Source: source, Set: func(m *Member, raw string) error {
		d, err := ParseMoney(raw)
		if err != nil {
			return err
		}
		*field(m) = d
		return nil
	}}
}

// MemberColumns declares every person-group variable. Income fields are
// plain decimals: their zero value is the business-correct default.
var MemberColumns = []MemberColumn{
	// Demographics
	memberCode("FSAFIL", func(m *Member) **int { return &m.SnapAffiliation }),
	memberCode("AGE", func(m *Member) **int { return &m.Age }),
	memberCode("SEX", func(m *Member) **int { return &m.Sex }),
	memberCode("RACETH", func(m *Member) **int { return &m.RaceEthnicity }),
	memberCode("REL", func(m *Member) **int { return &m.RelationshipToHead }),
	memberCode("CTZN", func(m *Member) **int { return &m.CitizenshipStatus }),
	memberCode("YRSED", func(m *Member) **int { return &m.YearsEducation }),

	// Status indicators
	memberCode("DIS", func(m *Member) **int { return &m.DisabilityIndicator }),
	memberCode("FOSTER", func(m *Member) **int { return &m.FosterChildIndicator }),
	memberCode("WRKREG", func(m *Member) **int { return &m.WorkRegistration }),
	memberCode("ABWDST", func(m *Member) **int { return &m.AbawdStatus }),
	memberCode("WORK", func(m *Member) **int { return &m.WorkingIndicator }),

	// Employment
	memberCode("EMPRG", func(m *Member) **int { return &m.EmploymentRegion }),
	memberCode("EMPSTA", func(m *Member) **int { return &m.EmploymentStatusA }),
	memberCode("EMPSTB", func(m *Member) **int { return &m.EmploymentStatusB }),

	// Earned income
	memberMoney("WAGES", func(m *Member) *decimal.Decimal { return &m.Wages }),
	memberMoney("SLFEMP", func(m *Member) *decimal.Decimal { return &m.SelfEmploymentIncome }),
	memberMoney("EITC", func(m *Member) *decimal.Decimal { return &m.EarnedIncomeTaxCredit }),
	memberMoney("OTHERN", func(m *Member) *decimal.Decimal { return &m.OtherEarnedIncome }),

	// Unearned income
	memberMoney("SOCSEC", func(m *Member) *decimal.Decimal { return &m.SocialSecurity }),
	memberMoney("SSI", func(m *Member) *decimal.Decimal { return &m.SSI }),
	memberMoney("VET", func(m *Member) *decimal.Decimal { return &m.VeteransBenefits }),
	memberMoney("UNEMP", func(m *Member) *decimal.Decimal { return &m.Unemployment }),
	memberMoney("WCOMP", func(m *Member) *decimal.Decimal { return &m.WorkersCompensation }),
	memberMoney("TANF", func(m *Member) *decimal.Decimal { return &m.TANF }),
	memberMoney("CSUPRT", func(m *Member) *decimal.Decimal { return &m.ChildSupport }),
	memberMoney("GA", func(m *Member) *decimal.Decimal { return &m.GeneralAssistance }),
	memberMoney("EDLOAN", func(m *Member) *decimal.Decimal { return &m.EducationLoans }),
	memberMoney("OTHGOV", func(m *Member) *decimal.Decimal { return &m.OtherGovernmentIncome }),
	memberMoney("CONT", func(m *Member) *decimal.Decimal { return &m.Contributions }),
	memberMoney("DEEM", func(m *Member) *decimal.Decimal { return &m.DeemedIncome }),
	memberMoney("OTHUN", func(m *Member) *decimal.Decimal { return &m.OtherUnearnedIncome }),

	// Deductions and expenses
	memberMoney("DPCOST", func(m *Member) *decimal.Decimal { return &m.DependentCareCost }),
	memberMoney("ENERGY", func(m *Member) *decimal.Decimal { return &m.EnergyAssistance }),
	memberMoney("WGESUP", func(m *Member) *decimal.Decimal { return &m.WageSupplement }),
	memberMoney("DIVER", func(m *Member) *decimal.Decimal { return &m.DiversionPayment }),
}

// =============================================================================
// FINDING COLUMNS (repeated 1..9)
// =============================================================================

// FindingColumn maps one error-group variable (base name, no suffix) to an
// ErrorFinding field.
type FindingColumn struct {
	Source string
	Set    func(f *ErrorFinding, raw string) error
}

func findingCode(source string, field func(*ErrorFinding) **int) FindingColumn {
	return FindingColumn{Source: source, Set: func(f *ErrorFinding, raw string) error {
		n, err := parseCode(raw)
		if err != nil {
			return err
		}
		*field(f) = &n
		return nil
	}}
}

func findingStr(source string, field func(*ErrorFinding) **string) FindingColumn {
	return FindingColumn{Source: source, Set: func(f *ErrorFinding, raw string) error {
		v := strings.TrimSpace(raw)
		*field(f) = &v
		return nil
	}}
}

// FindingColumns declares every error-group variable. AMOUNT is signed:
// negative means underissuance.
var FindingColumns = []FindingColumn{
	findingCode("ELEMENT", func(f *ErrorFinding) **int { return &f.ElementCode }),
	findingCode("NATURE", func(f *ErrorFinding) **int { return &f.NatureCode }),
	findingCode("AGENCY", func(f *ErrorFinding) **int { return &f.ResponsibleAgency }),
	{Source: "AMOUNT", Set: func(f *ErrorFinding, raw string) error {
		d, err := ParseMoney(raw)
		if err != nil {
			return err
		}
		f.ErrorAmount = decimal.NullDecimal{Decimal: d, Valid: true}
		return nil
	}},
	findingCode("DISCOV", func(f *ErrorFinding) **int { return &f.DiscoveryMethod }),
	findingCode("VERIF", func(f *ErrorFinding) **int { return &f.VerificationStatus }),
	findingCode("OCCDATE", func(f *ErrorFinding) **int { return &f.OccurrenceDate }),
	findingStr("TIMEPER", func(f *ErrorFinding) **string { return &f.TimePeriod }),
	findingCode("E_FINDG", func(f *ErrorFinding) **int { return &f.Finding }),
}
