/*
Package etl implements the ingestion pipeline: Reader -> Transformer ->
Validator -> Writer, orchestrated by the Loader.

reader.go - Streaming source-file reader

PURPOSE:
  Streams a delimited extract file into raw records without loading the
  whole file into memory. The reader knows nothing about the column
  semantics; it only enforces structure (header present, required
  columns exist, consistent field counts).

ERROR CONTRACT:
  - Missing file:        qc.ErrSourceNotFound, fatal immediately
  - Missing columns:     qc.ErrMissingColumns, fatal immediately
  - Unparseable row:     *qc.MalformedRecordError with the 1-based data
                         row number; per-row, the stream keeps going

SEE ALSO:
  - qc/mapping.go: RequiredColumns and null tokens
  - transformer.go: Consumes the records produced here
*/
package etl

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/stperic/snapqc/qc"
)

// Reader streams one source file. Not safe for concurrent use; each load
// job owns its reader.
type Reader struct {
	path    string
	maxRows int

	file    *os.File
	csv     *csv.Reader
	columns []string
	row     int // 1-based data row counter
}

// NewReader opens the file and reads the header. maxRows bounds how many
// data rows Next will yield; zero means unbounded.
func NewReader(path string, maxRows int) (*Reader, error) {
	r := &Reader{path: path, maxRows: maxRows}
	if err := r.open(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Reader) open() error {
	file, err := os.Open(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", qc.ErrSourceNotFound, r.path)
		}
		return fmt.Errorf("open %s: %w", r.path, err)
	}

	cr := csv.NewReader(file)
	header, err := cr.Read()
	if err != nil {
		file.Close()
		return fmt.Errorf("%w: cannot read header: %v", qc.ErrMissingColumns, err)
	}

	var missing []string
	cols := make(map[string]bool, len(header))
	for _, name := range header {
		cols[name] = true
	}
	for _, name := range qc.RequiredColumns {
		if !cols[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		file.Close()
		return fmt.Errorf("%w: %v", qc.ErrMissingColumns, missing)
	}

	// Field counts are checked row by row so one short row does not
	// kill the stream.
	cr.FieldsPerRecord = len(header)

	r.file = file
	r.csv = cr
	r.columns = header
	r.row = 0
	return nil
}

// Columns returns the header in source order.
func (r *Reader) Columns() []string {
	cols := make([]string, len(r.columns))
	copy(cols, r.columns)
	return cols
}

// Row returns the 1-based number of the last data row read.
func (r *Reader) Row() int { return r.row }

// Next returns the next record. It returns io.EOF when the file (or the
// row cap) is exhausted, and a *qc.MalformedRecordError for rows that
// cannot be parsed; after a malformed row the caller may keep reading.
func (r *Reader) Next() (qc.Record, error) {
	if r.maxRows > 0 && r.row >= r.maxRows {
		return nil, io.EOF
	}

	fields, err := r.csv.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	r.row++
	if err != nil {
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			return nil, &qc.MalformedRecordError{Row: r.row, Err: parseErr.Err}
		}
		return nil, &qc.MalformedRecordError{Row: r.row, Err: err}
	}

	record := make(qc.Record, len(r.columns))
	for i, name := range r.columns {
		record[name] = fields[i]
	}
	return record, nil
}

// Reset restarts the stream from the first data row.
func (r *Reader) Reset() error {
	if err := r.file.Close(); err != nil {
		return err
	}
	return r.open()
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}
