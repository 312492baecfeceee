package cli

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recon/internal/compare"
	"github.com/roach88/recon/internal/reconcile"
	"github.com/roach88/recon/internal/state"
)

func checkOutcome(id string, expected, actual state.Object) reconcile.CheckOutcome {
	return reconcile.CheckOutcome{
		ID: id,
		Result: &reconcile.CheckResult{
			ID:         id,
			Expected:   expected,
			Actual:     actual,
			Comparison: compare.Compare(id, expected, actual),
		},
	}
}

func TestCheckRows(t *testing.T) {
	expected := state.Object{"stock": state.Int(5), "status": state.String("created")}
	outcomes := []reconcile.CheckOutcome{
		checkOutcome("41", expected, state.Object{"stock": state.Int(5), "status": state.String("created")}),
		checkOutcome("42", expected, state.Object{"stock": state.Int(4)}),
		{ID: "43", Error: "check product/43: NOT_FOUND"},
	}

	rows := CheckRows(outcomes)
	assert.Equal(t, [][]string{
		{"41", "yes", "", "", "", "States match"},
		{"42", "no", "status", `"created"`, "(absent)", "Mismatch detected in 2 fields"},
		{"42", "no", "stock", "5", "4", "Mismatch detected in 2 fields"},
		{"43", "error", "", "", "", "check product/43: NOT_FOUND"},
	}, rows)
}

func TestFixRows(t *testing.T) {
	rows := FixRows([]reconcile.FixOutcome{
		{ID: "42", Record: state.Object{"stock": state.Int(5), "name": state.String("Widget")}},
		{ID: "43", Error: "fix product/43: NOT_FOUND"},
	})
	assert.Equal(t, [][]string{
		{"42", "fixed", `{"name":"Widget","stock":5}`},
		{"43", "error", "fix product/43: NOT_FOUND"},
	}, rows)
}

func TestRenderValue(t *testing.T) {
	assert.Equal(t, "(absent)", renderValue(nil))
	assert.Equal(t, "(absent)", renderValue(state.Absent))
	assert.Equal(t, "null", renderValue(state.Null{}))
	assert.Equal(t, "2.5", renderValue(state.Float(2.5)))
	assert.Equal(t, `["a",1]`, renderValue(state.Array{state.String("a"), state.Int(1)}))
}

func TestWriteTable(t *testing.T) {
	buf := &bytes.Buffer{}
	writeTable(buf, FixHeader, [][]string{{"42", "fixed", "{}"}})
	assert.Equal(t, "ID | Result | Details\n42 | fixed | {}\n", buf.String())
}

func TestWriteCSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.csv")
	rows := [][]string{{"42", "no", "status", `"created"`, "(absent)", "Mismatch detected in 1 fields"}}
	require.NoError(t, writeCSVFile(path, CheckHeader, rows))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, CheckHeader, records[0])
	assert.Equal(t, rows[0], records[1])
}

func TestWriteCSVFileBadPath(t *testing.T) {
	err := writeCSVFile(filepath.Join(t.TempDir(), "missing", "report.csv"), FixHeader, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create report")
}
