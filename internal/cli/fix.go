package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/recon/internal/reconcile"
	"github.com/roach88/recon/internal/registry"
)

// FixOptions holds flags for the fix command.
type FixOptions struct {
	*RootOptions
	TargetOptions
}

// FixReport is the JSON payload of the fix command.
type FixReport struct {
	Module  string                 `json:"module"`
	Summary reconcile.FixSummary   `json:"summary"`
	Results []reconcile.FixOutcome `json:"results"`
}

// NewFixCommand creates the fix command.
func NewFixCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FixOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "fix <module> [id...]",
		Short: "Overwrite read-model records from the event log",
		Long: `Rebuild entities from their event streams and overwrite the selected
top-level fields of their existing read-model records. Records are never
created; other fields are left untouched.

Exit codes:
  0 - Every record was fixed
  1 - An id could not be fixed
  2 - Command error (bad flags, unknown module, etc.)

Examples:
  recon fix product 42
  recon fix product 42 43 --fields stock
  recon fix product --filter '{"status":"pending"}'
  recon fix product --since 2024-01-01 --until 2024-01-01 --report repaired.csv`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFix(cmd.Context(), opts, args, cmd)
		},
	}

	opts.TargetOptions.register(cmd)
	return cmd
}

func runFix(ctx context.Context, opts *FixOptions, args []string, cmd *cobra.Command) error {
	t, err := parseTarget(args, opts.TargetOptions)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid selection", err)
	}

	a, err := openApp(ctx, opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	out := formatter(opts.RootOptions, cmd)
	outcomes, err := runFixes(ctx, a.Registry, t, opts.Fields)
	if err != nil {
		return out.Fail("fix failed", err)
	}

	rows := FixRows(outcomes)
	if opts.Report != "" {
		if err := writeCSVFile(opts.Report, FixHeader, rows); err != nil {
			return WrapExitError(ExitCommandError, "failed to write report", err)
		}
		out.VerboseLog("Report written to %s", opts.Report)
	}

	summary := reconcile.SummarizeFixes(outcomes)
	var failed *CLIError
	if summary.Failed > 0 {
		failed = &CLIError{
			Code:    "E_FIX_FAILED",
			Message: fmt.Sprintf("%d of %d ids could not be fixed", summary.Failed, summary.Total),
		}
	}

	if opts.Format == "json" {
		if err := out.Result(FixReport{Module: t.module, Summary: summary, Results: outcomes}, failed); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		writeTable(w, FixHeader, rows)
		fmt.Fprintf(w, "Summary: %d total, %d fixed, %d failed\n", summary.Total, summary.Fixed, summary.Failed)
	}

	if failed != nil {
		return NewExitError(ExitFailure, failed.Message)
	}
	return nil
}

func runFixes(ctx context.Context, reg *registry.Registry, t target, fields []string) ([]reconcile.FixOutcome, error) {
	switch t.kind {
	case targetOne:
		rec, err := reg.FixOne(ctx, t.module, t.ids[0], fields)
		if err != nil {
			return nil, err
		}
		return []reconcile.FixOutcome{{ID: t.ids[0], Record: rec}}, nil
	case targetMany:
		return reg.FixMany(ctx, t.module, t.ids, fields)
	case targetAll:
		return reg.FixAll(ctx, t.module, t.filter, fields)
	default:
		return reg.FixRange(ctx, t.module, t.since, t.until, fields)
	}
}
