/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements qc.Writer with chunked bulk inserts, plus the reference-code
  lookups and the fiscal-year reset the management surface needs. In
  production the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

KEY TABLES:
  households:        One row per case, natural key (case_id, fiscal_year)
  household_members: Unpivoted person rows, FK to households, CASCADE
  qc_errors:         Unpivoted finding rows, FK to households, CASCADE
  ref_codes:         Every lookup table in one (table_name, code) relation

ATOMICITY:
  WriteAll runs cases, members and findings through one database
  transaction with a single commit at the end. Chunking bounds the cost
  per prepared-statement pass only; a failure in any chunk rolls back
  the whole file. Constraint violations map to qc.IntegrityError,
  everything else to qc.PersistenceError.

NO UPSERTS:
  Loading a fiscal year twice without a reset fails on the composite
  primary key. Partial double-loads are worse than a hard error.

WAL MODE:
  SQLite is opened with WAL and foreign keys on. Decimals are stored as
  TEXT to keep fixed-point exactness.

USAGE:
  store, err := sqlite.New("./data/snapqc.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  loader := &etl.Loader{Writer: store, ...}

SEE ALSO:
  - qc/store.go: Interface definitions
  - qc/store/memory.go: In-memory implementation for testing
  - reference.go: Reference seeding, resolver snapshot, fiscal-year reset
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/stperic/snapqc/qc"
)

// Store implements qc.Writer and qc.ReferenceResolver using SQLite.
type Store struct {
	db        *sql.DB
	mu        sync.RWMutex
	chunkSize int
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db, chunkSize: DefaultChunkSize}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// DefaultChunkSize bounds rows per prepared-statement pass.
const DefaultChunkSize = 10000

// SetChunkSize overrides the insert chunk size. The chunk size never
// changes the unit of atomicity, only the cancellation granularity.
func (s *Store) SetChunkSize(n int) {
	if n > 0 {
		s.chunkSize = n
	}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Households: one row per case and fiscal year
	CREATE TABLE IF NOT EXISTS households (
		case_id TEXT NOT NULL,
		fiscal_year INTEGER NOT NULL,
		case_classification INTEGER,
		region_code TEXT,
		state_code TEXT,
		state_name TEXT,
		year_month TEXT,
		status INTEGER,
		stratum TEXT,
		raw_household_size INTEGER,
		certified_household_size INTEGER,
		snap_unit_size INTEGER,
		num_noncitizens INTEGER,
		num_disabled INTEGER,
		num_elderly INTEGER,
		num_children INTEGER,
		composition_code TEXT,
		gross_income TEXT,
		net_income TEXT,
		earned_income TEXT,
		unearned_income TEXT,
		liquid_resources TEXT,
		real_property TEXT,
		vehicle_assets TEXT,
		total_assets TEXT,
		standard_deduction TEXT,
		earned_income_deduction TEXT,
		dependent_care_deduction TEXT,
		medical_deduction TEXT,
		shelter_deduction TEXT,
		total_deductions TEXT,
		rent TEXT,
		utilities TEXT,
		shelter_expense TEXT,
		homeless_deduction TEXT,
		snap_benefit TEXT,
		raw_benefit TEXT,
		maximum_benefit TEXT,
		minimum_benefit TEXT,
		categorical_eligibility INTEGER,
		expedited_service INTEGER,
		certification_month TEXT,
		last_certification INTEGER,
		poverty_level TEXT,
		working_poor BOOLEAN,
		tanf_indicator BOOLEAN,
		amount_error TEXT,
		gross_test_result INTEGER,
		net_test_result INTEGER,
		household_weight TEXT,
		fiscal_year_weight TEXT,
		created_at TEXT NOT NULL,
		PRIMARY KEY (case_id, fiscal_year)
	);

	CREATE INDEX IF NOT EXISTS idx_households_fiscal_year
		ON households(fiscal_year);
	CREATE INDEX IF NOT EXISTS idx_households_state_year
		ON households(state_name, fiscal_year);
	CREATE INDEX IF NOT EXISTS idx_households_year_month
		ON households(year_month);

	-- Household members: person rows unpivoted from the wide extract
	CREATE TABLE IF NOT EXISTS household_members (
		case_id TEXT NOT NULL,
		fiscal_year INTEGER NOT NULL,
		member_number INTEGER NOT NULL,
		age INTEGER,
		sex INTEGER,
		race_ethnicity INTEGER,
		relationship_to_head INTEGER,
		citizenship_status INTEGER,
		years_education INTEGER,
		snap_affiliation INTEGER,
		disability_indicator INTEGER,
		foster_child_indicator INTEGER,
		work_registration INTEGER,
		abawd_status INTEGER,
		working_indicator INTEGER,
		employment_region INTEGER,
		employment_status_a INTEGER,
		employment_status_b INTEGER,
		wages TEXT NOT NULL DEFAULT '0.00',
		self_employment_income TEXT NOT NULL DEFAULT '0.00',
		earned_income_tax_credit TEXT NOT NULL DEFAULT '0.00',
		other_earned_income TEXT NOT NULL DEFAULT '0.00',
		social_security TEXT NOT NULL DEFAULT '0.00',
		ssi TEXT NOT NULL DEFAULT '0.00',
		veterans_benefits TEXT NOT NULL DEFAULT '0.00',
		unemployment TEXT NOT NULL DEFAULT '0.00',
		workers_compensation TEXT NOT NULL DEFAULT '0.00',
		tanf TEXT NOT NULL DEFAULT '0.00',
		child_support TEXT NOT NULL DEFAULT '0.00',
		general_assistance TEXT NOT NULL DEFAULT '0.00',
		education_loans TEXT NOT NULL DEFAULT '0.00',
		other_government_income TEXT NOT NULL DEFAULT '0.00',
		contributions TEXT NOT NULL DEFAULT '0.00',
		deemed_income TEXT NOT NULL DEFAULT '0.00',
		other_unearned_income TEXT NOT NULL DEFAULT '0.00',
		dependent_care_cost TEXT NOT NULL DEFAULT '0.00',
		energy_assistance TEXT NOT NULL DEFAULT '0.00',
		wage_supplement TEXT NOT NULL DEFAULT '0.00',
		diversion_payment TEXT NOT NULL DEFAULT '0.00',
		created_at TEXT NOT NULL,
		PRIMARY KEY (case_id, fiscal_year, member_number),
		FOREIGN KEY (case_id, fiscal_year)
			REFERENCES households(case_id, fiscal_year) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_members_fiscal_year
		ON household_members(fiscal_year);
	CREATE INDEX IF NOT EXISTS idx_members_age
		ON household_members(age);

	-- QC error findings: discrepancy rows unpivoted from the wide extract
	CREATE TABLE IF NOT EXISTS qc_errors (
		case_id TEXT NOT NULL,
		fiscal_year INTEGER NOT NULL,
		error_number INTEGER NOT NULL,
		element_code INTEGER,
		nature_code INTEGER,
		responsible_agency INTEGER,
		error_amount TEXT,
		discovery_method INTEGER,
		verification_status INTEGER,
		occurrence_date INTEGER,
		time_period TEXT,
		finding INTEGER,
		created_at TEXT NOT NULL,
		PRIMARY KEY (case_id, fiscal_year, error_number),
		FOREIGN KEY (case_id, fiscal_year)
			REFERENCES households(case_id, fiscal_year) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_qc_errors_fiscal_year
		ON qc_errors(fiscal_year);
	CREATE INDEX IF NOT EXISTS idx_qc_errors_element
		ON qc_errors(element_code);

	-- Reference codes: all lookup tables in one relation
	CREATE TABLE IF NOT EXISTS ref_codes (
		table_name TEXT NOT NULL,
		code INTEGER NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (table_name, code)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// WRITER (qc.Writer interface)
// =============================================================================

// WriteAll persists a whole batch atomically: every chunk of cases, then
// members, then findings, one commit at the end. Cases go first because
// the children carry the foreign reference.
func (s *Store) WriteAll(ctx context.Context, batch qc.Batch) (qc.WriteStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats qc.WriteStats

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, &qc.PersistenceError{Entity: "cases", Err: err}
	}
	defer tx.Rollback()

	caseCount, caseIDs, err := s.insertCases(ctx, tx, batch.Cases)
	if err != nil {
		return stats, err
	}
	memberCount, err := s.insertMembers(ctx, tx, batch.Members)
	if err != nil {
		return stats, err
	}
	findingCount, err := s.insertFindings(ctx, tx, batch.Findings)
	if err != nil {
		return stats, err
	}

	if err := tx.Commit(); err != nil {
		return stats, &qc.PersistenceError{Entity: "findings", Err: err}
	}

	stats.Cases = caseCount
	stats.Members = memberCount
	stats.Findings = findingCount
	stats.CaseIDs = caseIDs
	return stats, nil
}

// WriteCases persists only cases, in its own transaction.
func (s *Store) WriteCases(ctx context.Context, cases []qc.Case) (int, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, nil, &qc.PersistenceError{Entity: "cases", Err: err}
	}
	defer tx.Rollback()

	count, ids, err := s.insertCases(ctx, tx, cases)
	if err != nil {
		return 0, nil, err
	}
	if err := tx.Commit(); err != nil {
		return 0, nil, &qc.PersistenceError{Entity: "cases", Err: err}
	}
	return count, ids, nil
}

// WriteMembers persists only members, in its own transaction. Parent
// cases must already exist.
func (s *Store) WriteMembers(ctx context.Context, members []qc.Member) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &qc.PersistenceError{Entity: "members", Err: err}
	}
	defer tx.Rollback()

	count, err := s.insertMembers(ctx, tx, members)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, &qc.PersistenceError{Entity: "members", Err: err}
	}
	return count, nil
}

// WriteFindings persists only findings, in its own transaction. Parent
// cases must already exist.
func (s *Store) WriteFindings(ctx context.Context, findings []qc.ErrorFinding) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &qc.PersistenceError{Entity: "findings", Err: err}
	}
	defer tx.Rollback()

	count, err := s.insertFindings(ctx, tx, findings)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, &qc.PersistenceError{Entity: "findings", Err: err}
	}
	return count, nil
}

// =============================================================================
// CHUNKED INSERTS
// =============================================================================

const insertCaseSQL = `
	INSERT INTO households
	(case_id, fiscal_year, case_classification, region_code, state_code,
	 state_name, year_month, status, stratum, raw_household_size,
	 certified_household_size, snap_unit_size, num_noncitizens, num_disabled,
	 num_elderly, num_children, composition_code, gross_income, net_income,
	 earned_income, unearned_income, liquid_resources, real_property,
	 vehicle_assets, total_assets, standard_deduction, earned_income_deduction,
	 dependent_care_deduction, medical_deduction, shelter_deduction,
	 total_deductions, rent, utilities, shelter_expense, homeless_deduction,
	 snap_benefit, raw_benefit, maximum_benefit, minimum_benefit,
	 categorical_eligibility, expedited_service, certification_month,
	 last_certification, poverty_level, working_poor, tanf_indicator,
	 amount_error, gross_test_result, net_test_result, household_weight,
	 fiscal_year_weight, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
	        ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
	        ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

func caseArgs(c *qc.Case, now string) []any {
	return []any{
		c.CaseID,
		c.FiscalYear,
		nullInt(c.CaseClassification),
		nullStr(c.RegionCode),
		nullStr(c.StateCode),
		nullStr(c.StateName),
		nullStr(c.YearMonth),
		nullInt(c.Status),
		nullStr(c.Stratum),
		nullInt(c.RawHouseholdSize),
		nullInt(c.CertifiedHouseholdSize),
		nullInt(c.SnapUnitSize),
		nullInt(c.NumNoncitizens),
		nullInt(c.NumDisabled),
		nullInt(c.NumElderly),
		nullInt(c.NumChildren),
		nullStr(c.CompositionCode),
		nullMoney(c.GrossIncome),
		nullMoney(c.NetIncome),
		nullMoney(c.EarnedIncome),
		nullMoney(c.UnearnedIncome),
		nullMoney(c.LiquidResources),
		nullMoney(c.RealProperty),
		nullMoney(c.VehicleAssets),
		nullMoney(c.TotalAssets),
		nullMoney(c.StandardDeduction),
		nullMoney(c.EarnedIncomeDeduction),
		nullMoney(c.DependentCareDeduction),
		nullMoney(c.MedicalDeduction),
		nullMoney(c.ShelterDeduction),
		nullMoney(c.TotalDeductions),
		nullMoney(c.Rent),
		nullMoney(c.Utilities),
		nullMoney(c.ShelterExpense),
		nullMoney(c.HomelessDeduction),
		nullMoney(c.SnapBenefit),
		nullMoney(c.RawBenefit),
		nullMoney(c.MaximumBenefit),
		nullMoney(c.MinimumBenefit),
		nullInt(c.CategoricalEligibility),
		nullInt(c.ExpeditedService),
		nullStr(c.CertificationMonth),
		nullInt(c.LastCertification),
		nullMoney(c.PovertyLevel),
		nullBool(c.WorkingPoorIndicator),
		nullBool(c.TanfIndicator),
		nullMoney(c.AmountError),
		nullInt(c.GrossTestResult),
		nullInt(c.NetTestResult),
		nullWeight(c.HouseholdWeight),
		nullWeight(c.FiscalYearWeight),
		now,
	}
}

func (s *Store) insertCases(ctx context.Context, tx *sql.Tx, cases []qc.Case) (int, []string, error) {
	if len(cases) == 0 {
		return 0, nil, nil
	}

	stmt, err := tx.PrepareContext(ctx, insertCaseSQL)
	if err != nil {
		return 0, nil, &qc.PersistenceError{Entity: "cases", Err: err}
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	ids := make([]string, 0, len(cases))
	written := 0

	for chunk := 0; written < len(cases); chunk++ {
		// Chunk boundaries are the cancellation points.
		if err := ctx.Err(); err != nil {
			return 0, nil, &qc.PersistenceError{Entity: "cases", Err: err}
		}
		end := chunkEnd(written, s.chunkSize, len(cases))
		for i := written; i < end; i++ {
			if _, err := stmt.ExecContext(ctx, caseArgs(&cases[i], now)...); err != nil {
				return 0, nil, classify("cases", chunk, err)
			}
			ids = append(ids, cases[i].CaseID)
		}
		written = end
	}

	return written, ids, nil
}

const insertMemberSQL = `
	INSERT INTO household_members
	(case_id, fiscal_year, member_number, age, sex, race_ethnicity,
	 relationship_to_head, citizenship_status, years_education,
	 snap_affiliation, disability_indicator, foster_child_indicator,
	 work_registration, abawd_status, working_indicator, employment_region,
	 employment_status_a, employment_status_b, wages, self_employment_income,
	 earned_income_tax_credit, other_earned_income, social_security, ssi,
	 veterans_benefits, unemployment, workers_compensation, tanf,
	 child_support, general_assistance, education_loans,
	 other_government_income, contributions, deemed_income,
	 other_unearned_income, dependent_care_cost, energy_assistance,
	 wage_supplement, diversion_payment, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
	        ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

func memberArgs(m *qc.Member, now string) []any {
	return []any{
		m.CaseID,
		m.FiscalYear,
		m.MemberNumber,
		nullInt(m.Age),
		nullInt(m.Sex),
		nullInt(m.RaceEthnicity),
		nullInt(m.RelationshipToHead),
		nullInt(m.CitizenshipStatus),
		nullInt(m.YearsEducation),
		nullInt(m.SnapAffiliation),
		nullInt(m.DisabilityIndicator),
		nullInt(m.FosterChildIndicator),
		nullInt(m.WorkRegistration),
		nullInt(m.AbawdStatus),
		nullInt(m.WorkingIndicator),
		nullInt(m.EmploymentRegion),
		nullInt(m.EmploymentStatusA),
		nullInt(m.EmploymentStatusB),
		money(m.Wages),
		money(m.SelfEmploymentIncome),
		money(m.EarnedIncomeTaxCredit),
		money(m.OtherEarnedIncome),
		money(m.SocialSecurity),
		money(m.SSI),
		money(m.VeteransBenefits),
		money(m.Unemployment),
		money(m.WorkersCompensation),
		money(m.TANF),
		money(m.ChildSupport),
		money(m.GeneralAssistance),
		money(m.EducationLoans),
		money(m.OtherGovernmentIncome),
		money(m.Contributions),
		money(m.DeemedIncome),
		money(m.OtherUnearnedIncome),
		money(m.DependentCareCost),
		money(m.EnergyAssistance),
		money(m.WageSupplement),
		money(m.DiversionPayment),
		now,
	}
}

func (s *Store) insertMembers(ctx context.Context, tx *sql.Tx, members []qc.Member) (int, error) {
	if len(members) == 0 {
		return 0, nil
	}

	stmt, err := tx.PrepareContext(ctx, insertMemberSQL)
	if err != nil {
		return 0, &qc.PersistenceError{Entity: "members", Err: err}
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	written := 0

	for chunk := 0; written < len(members); chunk++ {
		if err := ctx.Err(); err != nil {
			return 0, &qc.PersistenceError{Entity: "members", Err: err}
		}
		end := chunkEnd(written, s.chunkSize, len(members))
		for i := written; i < end; i++ {
			if _, err := stmt.ExecContext(ctx, memberArgs(&members[i], now)...); err != nil {
				return 0, classify("members", chunk, err)
			}
		}
		written = end
	}

	return written, nil
}

const insertFindingSQL = `
	INSERT INTO qc_errors
	(case_id, fiscal_year, error_number, element_code, nature_code,
	 responsible_agency, error_amount, discovery_method, verification_status,
	 occurrence_date, time_period, finding, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

func findingArgs(f *qc.ErrorFinding, now string) []any {
	return []any{
		f.CaseID,
		f.FiscalYear,
		f.ErrorNumber,
		nullInt(f.ElementCode),
		nullInt(f.NatureCode),
		nullInt(f.ResponsibleAgency),
		nullMoney(f.ErrorAmount),
		nullInt(f.DiscoveryMethod),
		nullInt(f.VerificationStatus),
		nullInt(f.OccurrenceDate),
		nullStr(f.TimePeriod),
		nullInt(f.Finding),
		now,
	}
}

func (s *Store) insertFindings(ctx context.Context, tx *sql.Tx, findings []qc.ErrorFinding) (int, error) {
	if len(findings) == 0 {
		return 0, nil
	}

	stmt, err := tx.PrepareContext(ctx, insertFindingSQL)
	if err != nil {
		return 0, &qc.PersistenceError{Entity: "findings", Err: err}
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	written := 0

	for chunk := 0; written < len(findings); chunk++ {
		if err := ctx.Err(); err != nil {
			return 0, &qc.PersistenceError{Entity: "findings", Err: err}
		}
		end := chunkEnd(written, s.chunkSize, len(findings))
		for i := written; i < end; i++ {
			if _, err := stmt.ExecContext(ctx, findingArgs(&findings[i], now)...); err != nil {
				return 0, classify("findings", chunk, err)
			}
		}
		written = end
	}

	return written, nil
}

// =============================================================================
// READ-BACK QUERIES
// =============================================================================

const selectCaseSQL = `
	SELECT case_classification, region_code, state_code, state_name,
	       year_month, status, stratum, raw_household_size,
	       certified_household_size, snap_unit_size, num_noncitizens,
	       num_disabled, num_elderly, num_children, composition_code,
	       gross_income, net_income, earned_income, unearned_income,
	       liquid_resources, real_property, vehicle_assets, total_assets,
	       standard_deduction, earned_income_deduction,
	       dependent_care_deduction, medical_deduction, shelter_deduction,
	       total_deductions, rent, utilities, shelter_expense,
	       homeless_deduction, snap_benefit, raw_benefit, maximum_benefit,
	       minimum_benefit, categorical_eligibility, expedited_service,
	       certification_month, last_certification, poverty_level,
	       working_poor, tanf_indicator, amount_error, gross_test_result,
	       net_test_result, household_weight, fiscal_year_weight
	FROM households
	WHERE case_id = ? AND fiscal_year = ?
`

// GetCase retrieves one household. Returns nil when absent.
func (s *Store) GetCase(ctx context.Context, caseID string, fiscalYear int) (*qc.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		classification, status, rawSize, certSize, unitSize sql.NullInt64
		noncitizens, disabled, elderly, children            sql.NullInt64
		catElig, expedited, lastCert, grossTest, netTest    sql.NullInt64

		region, stateCode, stateName, yearMonth  sql.NullString
		stratum, composition, certMonth          sql.NullString
		workingPoor, tanf                        sql.NullBool
		gross, net, earned, unearned             sql.NullString
		liquid, realProp, vehicles, assets       sql.NullString
		stdDed, erndDed, depDed, medDed          sql.NullString
		shelDed, totDed, rent, util, shelter     sql.NullString
		homeless, benefit, rawBen, maxBen        sql.NullString
		minBen, poverty, amtErr, hWeight, fyWght sql.NullString
	)

	err := s.db.QueryRowContext(ctx, selectCaseSQL, caseID, fiscalYear).Scan(
		&classification, &region, &stateCode, &stateName, &yearMonth,
		&status, &stratum, &rawSize, &certSize, &unitSize,
		&noncitizens, &disabled, &elderly, &children, &composition,
		&gross, &net, &earned, &unearned,
		&liquid, &realProp, &vehicles, &assets,
		&stdDed, &erndDed, &depDed, &medDed, &shelDed, &totDed,
		&rent, &util, &shelter, &homeless,
		&benefit, &rawBen, &maxBen, &minBen,
		&catElig, &expedited, &certMonth, &lastCert, &poverty,
		&workingPoor, &tanf, &amtErr, &grossTest, &netTest,
		&hWeight, &fyWght,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	c := qc.Case{
		CaseID:     caseID,
		FiscalYear: fiscalYear,

		CaseClassification: intPtr(classification),
		RegionCode:         strPtr(region),
		StateCode:          strPtr(stateCode),
		StateName:          strPtr(stateName),
		YearMonth:          strPtr(yearMonth),
		Status:             intPtr(status),
		Stratum:            strPtr(stratum),

		RawHouseholdSize:       intPtr(rawSize),
		CertifiedHouseholdSize: intPtr(certSize),
		SnapUnitSize:           intPtr(unitSize),
		NumNoncitizens:         intPtr(noncitizens),
		NumDisabled:            intPtr(disabled),
		NumElderly:             intPtr(elderly),
		NumChildren:            intPtr(children),
		CompositionCode:        strPtr(composition),

		GrossIncome:    scanDecimal(gross),
		NetIncome:      scanDecimal(net),
		EarnedIncome:   scanDecimal(earned),
		UnearnedIncome: scanDecimal(unearned),

		LiquidResources: scanDecimal(liquid),
		RealProperty:    scanDecimal(realProp),
		VehicleAssets:   scanDecimal(vehicles),
		TotalAssets:     scanDecimal(assets),

		StandardDeduction:      scanDecimal(stdDed),
		EarnedIncomeDeduction:  scanDecimal(erndDed),
		DependentCareDeduction: scanDecimal(depDed),
		MedicalDeduction:       scanDecimal(medDed),
		ShelterDeduction:       scanDecimal(shelDed),
		TotalDeductions:        scanDecimal(totDed),

		Rent:              scanDecimal(rent),
		Utilities:         scanDecimal(util),
		ShelterExpense:    scanDecimal(shelter),
		HomelessDeduction: scanDecimal(homeless),

		SnapBenefit:    scanDecimal(benefit),
		RawBenefit:     scanDecimal(rawBen),
		MaximumBenefit: scanDecimal(maxBen),
		MinimumBenefit: scanDecimal(minBen),

		CategoricalEligibility: intPtr(catElig),
		ExpeditedService:       intPtr(expedited),
		CertificationMonth:     strPtr(certMonth),
		LastCertification:      intPtr(lastCert),

		PovertyLevel:         scanDecimal(poverty),
		WorkingPoorIndicator: boolPtr(workingPoor),
		TanfIndicator:        boolPtr(tanf),

		AmountError:     scanDecimal(amtErr),
		GrossTestResult: intPtr(grossTest),
		NetTestResult:   intPtr(netTest),

		HouseholdWeight:  scanDecimal(hWeight),
		FiscalYearWeight: scanDecimal(fyWght),
	}
	return &c, nil
}

const selectMemberSQL = `
	SELECT age, sex, race_ethnicity, relationship_to_head,
	       citizenship_status, years_education, snap_affiliation,
	       disability_indicator, foster_child_indicator, work_registration,
	       abawd_status, working_indicator, employment_region,
	       employment_status_a, employment_status_b, wages,
	       self_employment_income, earned_income_tax_credit,
	       other_earned_income, social_security, ssi, veterans_benefits,
	       unemployment, workers_compensation, tanf, child_support,
	       general_assistance, education_loans, other_government_income,
	       contributions, deemed_income, other_unearned_income,
	       dependent_care_cost, energy_assistance, wage_supplement,
	       diversion_payment
	FROM household_members
	WHERE case_id = ? AND fiscal_year = ? AND member_number = ?
`

// GetMember retrieves one household member. Returns nil when absent.
func (s *Store) GetMember(ctx context.Context, caseID string, fiscalYear, memberNumber int) (*qc.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		age, sex, race, rel, ctzn, yrsEd       sql.NullInt64
		affil, dis, foster, wrkReg, abawd, wrk sql.NullInt64
		empRegion, empA, empB                  sql.NullInt64
		dec                                    [21]string
	)

	err := s.db.QueryRowContext(ctx, selectMemberSQL, caseID, fiscalYear, memberNumber).Scan(
		&age, &sex, &race, &rel, &ctzn, &yrsEd,
		&affil, &dis, &foster, &wrkReg, &abawd, &wrk,
		&empRegion, &empA, &empB,
		&dec[0], &dec[1], &dec[2], &dec[3], &dec[4], &dec[5], &dec[6],
		&dec[7], &dec[8], &dec[9], &dec[10], &dec[11], &dec[12], &dec[13],
		&dec[14], &dec[15], &dec[16], &dec[17], &dec[18], &dec[19], &dec[20],
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	m := qc.Member{
		CaseID:       caseID,
		FiscalYear:   fiscalYear,
		MemberNumber: memberNumber,

		Age:                intPtr(age),
		Sex:                intPtr(sex),
		RaceEthnicity:      intPtr(race),
		RelationshipToHead: intPtr(rel),
		CitizenshipStatus:  intPtr(ctzn),
		YearsEducation:     intPtr(yrsEd),

		SnapAffiliation:      intPtr(affil),
		DisabilityIndicator:  intPtr(dis),
		FosterChildIndicator: intPtr(foster),
		WorkRegistration:     intPtr(wrkReg),
		AbawdStatus:          intPtr(abawd),
		WorkingIndicator:     intPtr(wrk),

		EmploymentRegion:  intPtr(empRegion),
		EmploymentStatusA: intPtr(empA),
		EmploymentStatusB: intPtr(empB),
	}

	targets := []*decimal.Decimal{
		&m.Wages, &m.SelfEmploymentIncome, &m.EarnedIncomeTaxCredit,
		&m.OtherEarnedIncome, &m.SocialSecurity, &m.SSI,
		&m.VeteransBenefits, &m.Unemployment, &m.WorkersCompensation,
		&m.TANF, &m.ChildSupport, &m.GeneralAssistance, &m.EducationLoans,
		&m.OtherGovernmentIncome, &m.Contributions, &m.DeemedIncome,
		&m.OtherUnearnedIncome, &m.DependentCareCost, &m.EnergyAssistance,
		&m.WageSupplement, &m.DiversionPayment,
	}
	for i, t := range targets {
		d, err := decimal.NewFromString(dec[i])
		if err != nil {
			return nil, fmt.Errorf("failed to scan member amount: %w", err)
		}
		*t = d
	}

	return &m, nil
}

const selectFindingSQL = `
	SELECT element_code, nature_code, responsible_agency, error_amount,
	       discovery_method, verification_status, occurrence_date,
	       time_period, finding
	FROM qc_errors
	WHERE case_id = ? AND fiscal_year = ? AND error_number = ?
`

// GetFinding retrieves one QC error finding. Returns nil when absent.
func (s *Store) GetFinding(ctx context.Context, caseID string, fiscalYear, errorNumber int) (*qc.ErrorFinding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		element, nature, agency, discov, verif, occ, finding sql.NullInt64
		amount, period                                       sql.NullString
	)

	err := s.db.QueryRowContext(ctx, selectFindingSQL, caseID, fiscalYear, errorNumber).Scan(
		&element, &nature, &agency, &amount, &discov, &verif, &occ, &period, &finding,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	f := qc.ErrorFinding{
		CaseID:      caseID,
		FiscalYear:  fiscalYear,
		ErrorNumber: errorNumber,

		ElementCode:        intPtr(element),
		NatureCode:         intPtr(nature),
		ResponsibleAgency:  intPtr(agency),
		ErrorAmount:        scanDecimal(amount),
		DiscoveryMethod:    intPtr(discov),
		VerificationStatus: intPtr(verif),
		OccurrenceDate:     intPtr(occ),
		TimePeriod:         strPtr(period),
		Finding:            intPtr(finding),
	}
	return &f, nil
}

// YearCounts reports how many rows each entity table holds for a
// fiscal year.
func (s *Store) YearCounts(ctx context.Context, fiscalYear int) (cases, members, findings int, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	queries := []struct {
		sql    string
		target *int
	}{
		{"SELECT COUNT(*) FROM households WHERE fiscal_year = ?", &cases},
		{"SELECT COUNT(*) FROM household_members WHERE fiscal_year = ?", &members},
		{"SELECT COUNT(*) FROM qc_errors WHERE fiscal_year = ?", &findings},
	}
	for _, q := range queries {
		if err = s.db.QueryRowContext(ctx, q.sql, fiscalYear).Scan(q.target); err != nil {
			return 0, 0, 0, err
		}
	}
	return cases, members, findings, nil
}

// ListFiscalYears returns the distinct fiscal years with loaded data.
func (s *Store) ListFiscalYears(ctx context.Context) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT fiscal_year FROM households ORDER BY fiscal_year")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var years []int
	for rows.Next() {
		var y int
		if err := rows.Scan(&y); err != nil {
			return nil, err
		}
		years = append(years, y)
	}
	return years, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func nullStr(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func nullBool(p *bool) sql.NullBool {
	if p == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *p, Valid: true}
}

// nullMoney renders a nullable amount at fixed money scale. NULL stays
// NULL: "not reported" must never become "0.00".
func nullMoney(d decimal.NullDecimal) sql.NullString {
	if !d.Valid {
		return sql.NullString{}
	}
	return sql.NullString{String: d.Decimal.StringFixed(qc.MoneyScale), Valid: true}
}

// nullWeight renders a nullable weight at fixed weight scale, keeping
// the stored text consistent with the money columns.
func nullWeight(d decimal.NullDecimal) sql.NullString {
	if !d.Valid {
		return sql.NullString{}
	}
	return sql.NullString{String: d.Decimal.StringFixed(qc.WeightScale), Valid: true}
}

func money(d decimal.Decimal) string {
	return d.StringFixed(qc.MoneyScale)
}

func strPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func boolPtr(v sql.NullBool) *bool {
	if !v.Valid {
		return nil
	}
	b := v.Bool
	return &b
}

func scanDecimal(v sql.NullString) decimal.NullDecimal {
	if !v.Valid {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(v.String)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

func chunkEnd(start, chunkSize, total int) int {
	end := start + chunkSize
	if end > total {
		return total
	}
	return end
}

// classify maps a driver error onto the pipeline error taxonomy.
func classify(entity string, chunk int, err error) error {
	if isConstraintError(err) {
		return &qc.IntegrityError{Entity: entity, Chunk: chunk, Err: err}
	}
	return &qc.PersistenceError{Entity: entity, Err: err}
}

func isConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "FOREIGN KEY constraint failed") ||
		strings.Contains(msg, "constraint failed")
}
