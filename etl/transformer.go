/*
transformer.go - Wide to long unpivoting

PURPOSE:
  Pure, stateless mapping from one wide row to (one Case, 0..17 Members,
  0..9 ErrorFindings). All column knowledge lives in qc/mapping.go; this
  file only drives the tables and assigns the dense sequence numbers.

PRESENCE RULE:
  A person slot i is occupied iff FSAFIL<i> is non-null; an error slot i
  iff ELEMENT<i> is non-null. Absent slots are skipped without
  incrementing the sequence number, so a row occupying slots 2 and 5
  yields members numbered 1 and 2.

ERROR POLICY:
  A field that fails coercion yields a *qc.TransformError tagged with
  row, column and raw value; the field stays at its default and the row
  keeps loading. A row whose case id is null cannot be keyed and is
  skipped entirely (also reported as a TransformError).

SEE ALSO:
  - qc/mapping.go: The column tables
  - validator.go: Checks the dense-numbering invariant downstream
*/
package etl

import (
	"errors"
	"strings"

	"github.com/stperic/snapqc/qc"
)

var errMissingCaseID = errors.New("case id is null")

// Transformer converts raw records for a single fiscal year. The fiscal
// year is a job-level parameter, never read per row.
type Transformer struct {
	fiscalYear int
}

func NewTransformer(fiscalYear int) *Transformer {
	return &Transformer{fiscalYear: fiscalYear}
}

// Transform unpivots a slice of records. startRow is the 1-based source
// row number of records[0], used to tag transform errors. Rows without a
// case id are skipped; everything else lands in the batch even when some
// of its fields failed coercion.
func (t *Transformer) Transform(records []qc.Record, startRow int) (qc.Batch, []*qc.TransformError) {
	batch := qc.Batch{FiscalYear: t.fiscalYear}
	var transformErrs []*qc.TransformError

	for i, record := range records {
		row := startRow + i
		c, members, findings, errs := t.TransformRow(record, row)
		transformErrs = append(transformErrs, errs...)
		if c == nil {
			continue
		}
		batch.Cases = append(batch.Cases, *c)
		batch.Members = append(batch.Members, members...)
		batch.Findings = append(batch.Findings, findings...)
	}

	return batch, transformErrs
}

// TransformRow unpivots one record. The returned case is nil when the
// row cannot be keyed.
func (t *Transformer) TransformRow(record qc.Record, row int) (*qc.Case, []qc.Member, []qc.ErrorFinding, []*qc.TransformError) {
	var errs []*qc.TransformError

	rawID, ok := record[qc.CaseIDColumn]
	if !ok || qc.IsNull(rawID) {
		errs = append(errs, &qc.TransformError{
			Row: row, Column: qc.CaseIDColumn, Value: rawID, Err: errMissingCaseID,
		})
		return nil, nil, nil, errs
	}
	caseID := strings.TrimSpace(rawID)

	c := qc.Case{CaseID: caseID, FiscalYear: t.fiscalYear}
	for _, col := range qc.CaseColumns {
		raw, ok := record[col.Source]
		if !ok || qc.IsNull(raw) {
			continue
		}
		if err := col.Set(&c, raw); err != nil {
			errs = append(errs, &qc.TransformError{Row: row, Column: col.Source, Value: raw, Err: err})
		}
	}

	members, memberErrs := t.unpivotMembers(record, caseID, row)
	findings, findingErrs := t.unpivotFindings(record, caseID, row)
	errs = append(errs, memberErrs...)
	errs = append(errs, findingErrs...)

	return &c, members, findings, errs
}

func (t *Transformer) unpivotMembers(record qc.Record, caseID string, row int) ([]qc.Member, []*qc.TransformError) {
	var members []qc.Member
	var errs []*qc.TransformError

	for slot := 1; slot <= qc.MaxMembers; slot++ {
		presence, ok := record[qc.GroupColumn(qc.MemberPresenceColumn, slot)]
		if !ok || qc.IsNull(presence) {
			continue
		}

		m := qc.Member{
			CaseID:       caseID,
			FiscalYear:   t.fiscalYear,
			MemberNumber: len(members) + 1,
		}
		for _, col := range qc.MemberColumns {
			name := qc.GroupColumn(col.Source, slot)
			raw, ok := record[name]
			if !ok || qc.IsNull(raw) {
				continue
			}
			if err := col.Set(&m, raw); err != nil {
				errs = append(errs, &qc.TransformError{Row: row, Column: name, Value: raw, Err: err})
			}
		}
		members = append(members, m)
	}

	return members, errs
}

func (t *Transformer) unpivotFindings(record qc.Record, caseID string, row int) ([]qc.ErrorFinding, []*qc.TransformError) {
	var findings []qc.ErrorFinding
	var errs []*qc.TransformError

	for slot := 1; slot <= qc.MaxFindings; slot++ {
		presence, ok := record[qc.GroupColumn(qc.FindingPresenceColumn, slot)]
		if !ok || qc.IsNull(presence) {
			continue
		}

		f := qc.ErrorFinding{
			CaseID:      caseID,
			FiscalYear:  t.fiscalYear,
			ErrorNumber: len(findings) + 1,
		}
		for _, col := range qc.FindingColumns {
			name := qc.GroupColumn(col.Source, slot)
			raw, ok := record[name]
			if !ok || qc.IsNull(raw) {
				continue
			}
			if err := col.Set(&f, raw); err != nil {
				errs = append(errs, &qc.TransformError{Row: row, Column: name, Value: raw, Err: err})
			}
		}
		findings = append(findings, f)
	}

	return findings, errs
}
