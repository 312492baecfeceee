package cli

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/roach88/recon/internal/reconcile"
	"github.com/roach88/recon/internal/state"
)

// Match column values.
const (
	matchYes   = "yes"
	matchNo    = "no"
	matchError = "error"
)

// absentText renders a side of a discrepancy that has no value.
const absentText = "(absent)"

// CheckHeader is the column layout of check reports.
var CheckHeader = []string{"ID", "Match", "Field", "Expected", "Actual", "Details"}

// FixHeader is the column layout of fix reports.
var FixHeader = []string{"ID", "Result", "Details"}

// CheckRows flattens check outcomes: one row per discrepancy, one row per
// matching or failed id.
func CheckRows(outcomes []reconcile.CheckOutcome) [][]string {
	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Failed() {
			rows = append(rows, []string{o.ID, matchError, "", "", "", o.Error})
			continue
		}
		cmp := o.Result.Comparison
		if cmp.IsMatch() {
			rows = append(rows, []string{o.ID, matchYes, "", "", "", cmp.Details()})
			continue
		}
		for _, d := range cmp.Discrepancies() {
			rows = append(rows, []string{o.ID, matchNo, d.Field, renderValue(d.Expected), renderValue(d.Actual), cmp.Details()})
		}
	}
	return rows
}

// FixRows flattens fix outcomes, one row per id.
func FixRows(outcomes []reconcile.FixOutcome) [][]string {
	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Failed() {
			rows = append(rows, []string{o.ID, matchError, o.Error})
			continue
		}
		rows = append(rows, []string{o.ID, "fixed", renderValue(o.Record)})
	}
	return rows
}

// renderValue writes v as canonical JSON, or absentText.
func renderValue(v state.Value) string {
	if v == nil || state.IsAbsent(v) {
		return absentText
	}
	if obj, ok := v.(state.Object); ok && obj == nil {
		return absentText
	}
	data, err := state.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return string(data)
}

// writeTable writes header and rows as " | "-separated lines.
func writeTable(w io.Writer, header []string, rows [][]string) {
	fmt.Fprintln(w, strings.Join(header, " | "))
	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, " | "))
	}
}

// writeCSVFile writes header and rows to path as CSV.
func writeCSVFile(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := writeCSV(f, header, rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeCSV(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
