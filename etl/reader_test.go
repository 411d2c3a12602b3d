package etl_test

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stperic/snapqc/etl"
	"github.com/stperic/snapqc/qc"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "extract.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const smallFile = `HHLDNO,STATE,YRMONTH,FSBEN
100001,36,202310,281.00
100002,36,202310,NA
100003,36,202311,0
`

// =============================================================================
// OPENING
// =============================================================================

func TestReader_MissingFile(t *testing.T) {
	_, err := etl.NewReader(filepath.Join(t.TempDir(), "nope.csv"), 0)
	assert.ErrorIs(t, err, qc.ErrSourceNotFound)
}

func TestReader_MissingRequiredColumns(t *testing.T) {
	// GIVEN: A header without YRMONTH and FSBEN
	// WHEN: Opening the file
	// THEN: Fatal ErrMissingColumns naming the gap

	path := writeCSV(t, "HHLDNO,STATE\n100001,36\n")

	_, err := etl.NewReader(path, 0)
	require.ErrorIs(t, err, qc.ErrMissingColumns)
	assert.Contains(t, err.Error(), "YRMONTH")
	assert.Contains(t, err.Error(), "FSBEN")
}

// =============================================================================
// STREAMING
// =============================================================================

func TestReader_StreamsAllRows(t *testing.T) {
	path := writeCSV(t, smallFile)

	r, err := etl.NewReader(path, 0)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, []string{"HHLDNO", "STATE", "YRMONTH", "FSBEN"}, r.Columns())

	var ids []string
	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		ids = append(ids, rec["HHLDNO"])
	}

	assert.Equal(t, []string{"100001", "100002", "100003"}, ids)
	assert.Equal(t, 3, r.Row())
}

func TestReader_MaxRowsCap(t *testing.T) {
	path := writeCSV(t, smallFile)

	r, err := etl.NewReader(path, 2)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Next()
	require.NoError(t, err)
	_, err = r.Next()
	require.NoError(t, err)
	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, 2, r.Row())
}

func TestReader_MalformedRowDoesNotKillStream(t *testing.T) {
	// GIVEN: Row 2 has too few fields
	// WHEN: Streaming
	// THEN: Row 2 surfaces as MalformedRecordError with its row number
	//       and the stream continues to row 3

	path := writeCSV(t, `HHLDNO,STATE,YRMONTH,FSBEN
100001,36,202310,281.00
100002,36
100003,36,202311,0
`)

	r, err := etl.NewReader(path, 0)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Next()
	require.NoError(t, err)

	_, err = r.Next()
	var malformed *qc.MalformedRecordError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, 2, malformed.Row)
	assert.ErrorIs(t, err, qc.ErrMalformedRecord)

	rec, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "100003", rec["HHLDNO"])
}

func TestReader_Reset(t *testing.T) {
	path := writeCSV(t, smallFile)

	r, err := etl.NewReader(path, 0)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Next()
	require.NoError(t, err)
	require.NoError(t, r.Reset())

	rec, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "100001", rec["HHLDNO"])
	assert.Equal(t, 1, r.Row())
}
