package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/recon/internal/harness"
)

// errGoldenMismatch marks a scenario whose trace differs from its golden file.
var errGoldenMismatch = errors.New("trace differs from golden file (rerun with --update to accept it)")

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool
	Filter string
}

// ScenarioReport is the verdict for one scenario file.
type ScenarioReport struct {
	Name   string   `json:"name"`
	File   string   `json:"file"`
	Pass   bool     `json:"pass"`
	Steps  int      `json:"steps"`
	Drift  int      `json:"drift"`
	Golden string   `json:"golden,omitempty"` // "matched", "updated" or empty
	Errors []string `json:"errors,omitempty"`
}

// TestReport aggregates scenario verdicts.
type TestReport struct {
	Scenarios []ScenarioReport `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run reconciliation scenarios",
		Long: `Replay reconciliation scenarios against throwaway stores.

A scenario seeds the event log and the read model, then runs check and fix
steps and verifies their expectations plus the final records. The trace of
every scenario is compared with <scenarios-dir>/golden/<name>.golden when
that file exists.

Exit codes:
  0 - every scenario passed
  1 - at least one scenario failed
  2 - the scenarios directory or filter is unusable

Examples:
  recon test ./scenarios
  recon test ./scenarios --filter "product-*"
  recon test ./scenarios --update
  recon test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(cmd.Context(), opts, args[0], cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "rewrite golden files from the current traces")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "only run scenarios whose file name matches this glob")

	return cmd
}

func runTests(ctx context.Context, opts *TestOptions, dir string, w io.Writer) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", dir))
	}
	files, err := findScenarioFiles(dir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	report := TestReport{Scenarios: make([]ScenarioReport, 0, len(files)), Total: len(files)}
	for _, file := range files {
		sr := runScenario(ctx, file, opts.Update)
		if sr.Pass {
			report.Passed++
		} else {
			report.Failed++
		}
		report.Scenarios = append(report.Scenarios, sr)
		if opts.Format != "json" {
			printScenario(w, sr)
		}
	}

	if opts.Format == "json" {
		return outputTestJSON(w, report)
	}
	return outputTestText(w, report)
}

// findScenarioFiles lists the .yaml and .yml files under dir in lexical
// order. A non-empty filter is matched against the name without extension.
func findScenarioFiles(dir, filter string) ([]string, error) {
	if filter != "" {
		if _, err := filepath.Match(filter, ""); err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
	}
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			if ok, _ := filepath.Match(filter, strings.TrimSuffix(d.Name(), ext)); !ok {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	slices.Sort(files)
	return files, err
}

// runScenario loads, replays and verifies one scenario file. It never
// returns an error: every problem becomes part of the verdict.
func runScenario(ctx context.Context, file string, update bool) ScenarioReport {
	sr := ScenarioReport{Name: filepath.Base(file), File: file}

	scenario, err := harness.LoadScenario(file)
	if err != nil {
		return sr.fail(fmt.Sprintf("load: %v", err))
	}
	sr.Name = scenario.Name

	result, err := harness.Run(ctx, scenario)
	if err != nil {
		return sr.fail(fmt.Sprintf("run: %v", err))
	}
	sr.Steps = len(result.Trace)
	sr.Drift = countDrift(result.Trace)
	sr.Errors = append(sr.Errors, result.Errors...)

	snap := traceSnapshot(scenario, result)
	golden := goldenFilePath(file)
	switch {
	case update:
		if err := updateGoldenFile(snap, golden); err != nil {
			return sr.fail(fmt.Sprintf("golden: %v", err))
		}
		sr.Golden = "updated"
	case fileExists(golden):
		if err := compareWithGolden(snap, golden); err != nil {
			return sr.fail(err.Error())
		}
		sr.Golden = "matched"
	}

	sr.Pass = len(sr.Errors) == 0
	return sr
}

func (sr ScenarioReport) fail(msg string) ScenarioReport {
	sr.Pass = false
	sr.Errors = append(sr.Errors, msg)
	return sr
}

// countDrift counts check outcomes that found the record out of step with
// its stream, batch items included.
func countDrift(trace []harness.TraceEvent) int {
	n := 0
	for _, ev := range trace {
		if ev.Match != nil && !*ev.Match {
			n++
		}
		for _, item := range ev.Items {
			if item.Match != nil && !*item.Match {
				n++
			}
		}
	}
	return n
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// goldenFilePath maps dir/name.yaml to dir/golden/name.golden.
func goldenFilePath(scenarioFile string) string {
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(scenarioFile), "golden", name+".golden")
}

func updateGoldenFile(snap *harness.TraceSnapshot, path string) error {
	data, err := snap.Canonical()
	if err != nil {
		return fmt.Errorf("encode trace: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// compareWithGolden returns errGoldenMismatch when the canonical trace
// differs from the file. Trailing whitespace in the file is ignored.
func compareWithGolden(snap *harness.TraceSnapshot, path string) error {
	want, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("golden: %w", err)
	}
	got, err := snap.Canonical()
	if err != nil {
		return fmt.Errorf("encode trace: %w", err)
	}
	if !bytes.Equal(bytes.TrimRight(want, " \n\r\t"), got) {
		return errGoldenMismatch
	}
	return nil
}

func traceSnapshot(scenario *harness.Scenario, result *harness.Result) *harness.TraceSnapshot {
	return &harness.TraceSnapshot{ScenarioName: scenario.Name, Trace: result.Trace}
}

func printScenario(w io.Writer, sr ScenarioReport) {
	verdict := "PASS"
	if !sr.Pass {
		verdict = "FAIL"
	}
	line := fmt.Sprintf("%s %s (%d steps, %d drifted)", verdict, sr.Name, sr.Steps, sr.Drift)
	if sr.Golden != "" {
		line += ", golden " + sr.Golden
	}
	fmt.Fprintln(w, line)
	for _, e := range sr.Errors {
		fmt.Fprintf(w, "    %s\n", e)
	}
}

func outputTestJSON(w io.Writer, report TestReport) error {
	var failed *CLIError
	if report.Failed > 0 {
		failed = &CLIError{
			Code:    "E_SCENARIO_FAILED",
			Message: fmt.Sprintf("%d of %d scenario(s) failed", report.Failed, report.Total),
		}
	}
	out := &OutputFormatter{Format: "json", Writer: w}
	if err := out.Result(report, failed); err != nil {
		return err
	}
	if failed != nil {
		return NewExitError(ExitFailure, failed.Message)
	}
	return nil
}

func outputTestText(w io.Writer, report TestReport) error {
	if report.Total == 0 {
		fmt.Fprintln(w, "No scenarios found.")
		return nil
	}
	fmt.Fprintf(w, "\nScenarios: %d passed, %d failed, %d total\n", report.Passed, report.Failed, report.Total)
	if report.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenario(s) failed", report.Failed, report.Total))
	}
	return nil
}
