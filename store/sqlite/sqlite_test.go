package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stperic/snapqc/qc"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func intp(n int) *int { return &n }

func strp(s string) *string { return &s }

func testCase(caseID string, fiscalYear int) qc.Case {
	return qc.Case{
		CaseID:                 caseID,
		FiscalYear:             fiscalYear,
		StateCode:              strp("36"),
		StateName:              strp("New York"),
		YearMonth:              strp("202310"),
		Status:                 intp(1),
		CertifiedHouseholdSize: intp(2),
		GrossIncome:            qc.MustMoney("1250.50"),
		NetIncome:              qc.MustMoney("900.00"),
		SnapBenefit:            qc.MustMoney("281.00"),
		HouseholdWeight:        decimal.NullDecimal{Decimal: decimal.RequireFromString("1.23456789"), Valid: true},
	}
}

func testMember(caseID string, fiscalYear, number int) qc.Member {
	return qc.Member{
		CaseID:       caseID,
		FiscalYear:   fiscalYear,
		MemberNumber: number,
		Age:          intp(34),
		Sex:          intp(2),
		Wages:        decimal.RequireFromString("1820.00"),
	}
}

func testFinding(caseID string, fiscalYear, number int) qc.ErrorFinding {
	return qc.ErrorFinding{
		CaseID:      caseID,
		FiscalYear:  fiscalYear,
		ErrorNumber: number,
		ElementCode: intp(311),
		NatureCode:  intp(12),
		ErrorAmount: qc.MustMoney("-75.25"),
		Finding:     intp(1),
	}
}

func testBatch(fiscalYear int) qc.Batch {
	return qc.Batch{
		FiscalYear: fiscalYear,
		Cases:      []qc.Case{testCase("H1", fiscalYear), testCase("H2", fiscalYear)},
		Members: []qc.Member{
			testMember("H1", fiscalYear, 1),
			testMember("H1", fiscalYear, 2),
			testMember("H2", fiscalYear, 1),
		},
		Findings: []qc.ErrorFinding{testFinding("H1", fiscalYear, 1)},
	}
}

// =============================================================================
// WRITE + READ BACK
// =============================================================================

func TestStore_WriteAllRoundtrip(t *testing.T) {
	// GIVEN: A batch with cases, members and a finding
	// WHEN: Writing it in one transaction and reading everything back
	// THEN: Counts and values survive intact, including decimal precision

	store := newStore(t)
	ctx := context.Background()

	stats, err := store.WriteAll(ctx, testBatch(2023))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Cases)
	assert.Equal(t, 3, stats.Members)
	assert.Equal(t, 1, stats.Findings)
	assert.Equal(t, []string{"H1", "H2"}, stats.CaseIDs)

	c, err := store.GetCase(ctx, "H1", 2023)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "H1", c.CaseID)
	assert.Equal(t, 2023, c.FiscalYear)
	require.NotNil(t, c.Status)
	assert.Equal(t, 1, *c.Status)
	require.True(t, c.GrossIncome.Valid)
	assert.True(t, c.GrossIncome.Decimal.Equal(decimal.RequireFromString("1250.50")))
	require.True(t, c.HouseholdWeight.Valid)
	assert.True(t, c.HouseholdWeight.Decimal.Equal(decimal.RequireFromString("1.23456789")),
		"weight keeps all 8 fraction digits, got %s", c.HouseholdWeight.Decimal)

	m, err := store.GetMember(ctx, "H1", 2023, 2)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.True(t, m.Wages.Equal(decimal.RequireFromString("1820.00")))
	assert.True(t, m.TANF.IsZero(), "absent income columns are stored as zero")

	f, err := store.GetFinding(ctx, "H1", 2023, 1)
	require.NoError(t, err)
	require.NotNil(t, f)
	require.NotNil(t, f.ElementCode)
	assert.Equal(t, 311, *f.ElementCode)
	require.True(t, f.ErrorAmount.Valid)
	assert.True(t, f.ErrorAmount.Decimal.Equal(decimal.RequireFromString("-75.25")),
		"error amounts keep their sign")
}

func TestStore_NullMoneyIsNotZero(t *testing.T) {
	// GIVEN: One case with a null benefit, one with an explicit $0
	// WHEN: Round-tripping both
	// THEN: The null stays null and the zero stays a valid zero

	store := newStore(t)
	ctx := context.Background()

	withNull := testCase("N1", 2023)
	withNull.SnapBenefit = decimal.NullDecimal{}
	withZero := testCase("Z1", 2023)
	withZero.SnapBenefit = qc.MustMoney("0")

	_, err := store.WriteAll(ctx, qc.Batch{FiscalYear: 2023, Cases: []qc.Case{withNull, withZero}})
	require.NoError(t, err)

	c, err := store.GetCase(ctx, "N1", 2023)
	require.NoError(t, err)
	assert.False(t, c.SnapBenefit.Valid)

	c, err = store.GetCase(ctx, "Z1", 2023)
	require.NoError(t, err)
	require.True(t, c.SnapBenefit.Valid)
	assert.True(t, c.SnapBenefit.Decimal.IsZero())
}

func TestStore_WeightStoredAtFullScale(t *testing.T) {
	// GIVEN: A weight with trailing zeros
	// WHEN: Writing it
	// THEN: The TEXT column carries all 8 fraction digits, like money
	//       columns carry both of theirs

	store := newStore(t)
	ctx := context.Background()

	c := testCase("W1", 2023)
	c.HouseholdWeight = decimal.NullDecimal{Decimal: decimal.RequireFromString("1.2"), Valid: true}

	_, err := store.WriteAll(ctx, qc.Batch{FiscalYear: 2023, Cases: []qc.Case{c}})
	require.NoError(t, err)

	var weight, benefit string
	err = store.db.QueryRowContext(ctx,
		"SELECT household_weight, snap_benefit FROM households WHERE case_id = ? AND fiscal_year = ?",
		"W1", 2023).Scan(&weight, &benefit)
	require.NoError(t, err)
	assert.Equal(t, "1.20000000", weight)
	assert.Equal(t, "281.00", benefit)
}

func TestStore_GetCaseAbsent(t *testing.T) {
	store := newStore(t)

	c, err := store.GetCase(context.Background(), "NOPE", 2023)
	require.NoError(t, err)
	assert.Nil(t, c)
}

// =============================================================================
// INTEGRITY + ATOMICITY
// =============================================================================

func TestStore_DuplicateFiscalYearRejected(t *testing.T) {
	// GIVEN: Fiscal year 2023 already written
	// WHEN: Writing the same batch again
	// THEN: The composite key rejects it and counts stay unchanged

	store := newStore(t)
	ctx := context.Background()

	_, err := store.WriteAll(ctx, testBatch(2023))
	require.NoError(t, err)

	_, err = store.WriteAll(ctx, testBatch(2023))
	assert.ErrorIs(t, err, qc.ErrIntegrity)

	cases, members, findings, err := store.YearCounts(ctx, 2023)
	require.NoError(t, err)
	assert.Equal(t, 2, cases)
	assert.Equal(t, 3, members)
	assert.Equal(t, 1, findings)
}

func TestStore_SameCaseDifferentYearAllowed(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	_, err := store.WriteAll(ctx, testBatch(2023))
	require.NoError(t, err)
	_, err = store.WriteAll(ctx, testBatch(2024))
	require.NoError(t, err)

	years, err := store.ListFiscalYears(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{2023, 2024}, years)
}

func TestStore_ConflictRollsBackWholeBatch(t *testing.T) {
	// GIVEN: A batch whose findings collide on their key
	// WHEN: WriteAll fails on the finding stage
	// THEN: The cases and members written earlier in the same
	//       transaction are rolled back too

	store := newStore(t)
	ctx := context.Background()

	batch := testBatch(2023)
	batch.Findings = append(batch.Findings, testFinding("H1", 2023, 1))

	_, err := store.WriteAll(ctx, batch)
	assert.ErrorIs(t, err, qc.ErrIntegrity)

	cases, members, findings, err := store.YearCounts(ctx, 2023)
	require.NoError(t, err)
	assert.Zero(t, cases)
	assert.Zero(t, members)
	assert.Zero(t, findings)
}

func TestStore_SmallChunksKeepOneTransaction(t *testing.T) {
	// Chunking bounds statement size, never the unit of atomicity.
	store := newStore(t)
	store.SetChunkSize(1)
	ctx := context.Background()

	stats, err := store.WriteAll(ctx, testBatch(2023))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Cases)

	batch := testBatch(2024)
	batch.Cases = append(batch.Cases, testCase("H1", 2023)) // duplicates an existing key
	_, err = store.WriteAll(ctx, batch)
	assert.ErrorIs(t, err, qc.ErrIntegrity)

	cases, _, _, err := store.YearCounts(ctx, 2024)
	require.NoError(t, err)
	assert.Zero(t, cases, "earlier chunks of the failed batch roll back")
}

func TestStore_StagedMemberNeedsParentCase(t *testing.T) {
	store := newStore(t)

	_, err := store.WriteMembers(context.Background(), []qc.Member{testMember("GHOST", 2023, 1)})
	assert.ErrorIs(t, err, qc.ErrIntegrity)
}

// =============================================================================
// REFERENCES
// =============================================================================

func TestStore_SeedDefaultReferences(t *testing.T) {
	// GIVEN: A fresh store with empty lookup tables
	// WHEN: Seeding the default code sets
	// THEN: Every table reports populated and codes resolve

	store := newStore(t)
	ctx := context.Background()

	assert.False(t, store.AllPopulated())

	require.NoError(t, store.SeedDefaultReferences(ctx))
	assert.True(t, store.AllPopulated())

	assert.True(t, store.IsValidCode("ref_sex", 1))
	assert.True(t, store.IsValidCode("ref_element", 311))
	assert.False(t, store.IsValidCode("ref_sex", 99))

	refs, err := store.LoadReferences(ctx)
	require.NoError(t, err)
	assert.True(t, refs.AllPopulated())
	assert.True(t, refs.IsValidCode("ref_nature", 12))

	counts, err := store.ReferenceCounts(ctx)
	require.NoError(t, err)
	assert.Len(t, counts, len(qc.ReferenceTables))
	assert.Equal(t, 2, counts["ref_sex"])

	// Reseeding is idempotent.
	require.NoError(t, store.SeedDefaultReferences(ctx))
	again, err := store.ReferenceCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, counts, again)
}

func TestStore_SeedUnknownTableRejected(t *testing.T) {
	store := newStore(t)

	err := store.SeedReferences(context.Background(), "ref_bogus", map[int]string{1: "x"})
	assert.Error(t, err)
}

// =============================================================================
// FISCAL YEAR RESET
// =============================================================================

func TestStore_DeleteFiscalYear(t *testing.T) {
	// GIVEN: Two loaded fiscal years
	// WHEN: Deleting one
	// THEN: Only that year is gone and it can be reloaded

	store := newStore(t)
	ctx := context.Background()

	_, err := store.WriteAll(ctx, testBatch(2023))
	require.NoError(t, err)
	_, err = store.WriteAll(ctx, testBatch(2024))
	require.NoError(t, err)

	cases, members, findings, err := store.DeleteFiscalYear(ctx, 2023)
	require.NoError(t, err)
	assert.Equal(t, 2, cases)
	assert.Equal(t, 3, members)
	assert.Equal(t, 1, findings)

	c, err := store.GetCase(ctx, "H1", 2023)
	require.NoError(t, err)
	assert.Nil(t, c)
	c, err = store.GetCase(ctx, "H1", 2024)
	require.NoError(t, err)
	assert.NotNil(t, c, "the other year is untouched")

	// The whole point of the reset: the year loads again cleanly.
	_, err = store.WriteAll(ctx, testBatch(2023))
	require.NoError(t, err)
}

func TestStore_DeleteAbsentYearIsNoop(t *testing.T) {
	store := newStore(t)

	cases, members, findings, err := store.DeleteFiscalYear(context.Background(), 1999)
	require.NoError(t, err)
	assert.Zero(t, cases)
	assert.Zero(t, members)
	assert.Zero(t, findings)
}
