package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/recon/internal/reconcile"
	"github.com/roach88/recon/internal/registry"
)

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	TargetOptions
}

// CheckReport is the JSON payload of the check command.
type CheckReport struct {
	Module  string                   `json:"module"`
	Summary reconcile.CheckSummary   `json:"summary"`
	Results []reconcile.CheckOutcome `json:"results"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check <module> [id...]",
		Short: "Compare read-model records with the event log",
		Long: `Rebuild entities from their event streams and compare them with their
read-model records. Nothing is written.

One id reports not-found errors directly; several ids, --all, --filter and
--since/--until report each id on its own row and keep going on failures.

Exit codes:
  0 - Every record matches
  1 - Drift found or an id could not be checked
  2 - Command error (bad flags, unknown module, etc.)

Examples:
  recon check product 42
  recon check product 42 43 44 --fields stock,status
  recon check product --all
  recon check product --filter '{"status":"created"}' --report drift.csv
  recon check product --since 2024-01-01 --until 2024-01-31 --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.Context(), opts, args, cmd)
		},
	}

	opts.TargetOptions.register(cmd)
	return cmd
}

func runCheck(ctx context.Context, opts *CheckOptions, args []string, cmd *cobra.Command) error {
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
	outcomes, err := runChecks(ctx, a.Registry, t, opts.Fields)
	if err != nil {
		return out.Fail("check failed", err)
	}

	rows := CheckRows(outcomes)
	if opts.Report != "" {
		if err := writeCSVFile(opts.Report, CheckHeader, rows); err != nil {
			return WrapExitError(ExitCommandError, "failed to write report", err)
		}
		out.VerboseLog("Report written to %s", opts.Report)
	}

	summary := reconcile.SummarizeChecks(outcomes)
	var drift *CLIError
	if summary.Mismatched > 0 || summary.Failed > 0 {
		drift = &CLIError{
			Code:    "E_DRIFT",
			Message: fmt.Sprintf("%d mismatched, %d failed of %d checked", summary.Mismatched, summary.Failed, summary.Total),
		}
	}

	if opts.Format == "json" {
		if err := out.Result(CheckReport{Module: t.module, Summary: summary, Results: outcomes}, drift); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		writeTable(w, CheckHeader, rows)
		fmt.Fprintf(w, "Summary: %d checked, %d matched, %d mismatched, %d failed\n",
			summary.Total, summary.Matched, summary.Mismatched, summary.Failed)
	}

	if drift != nil {
		return NewExitError(ExitFailure, drift.Message)
	}
	return nil
}

func runChecks(ctx context.Context, reg *registry.Registry, t target, fields []string) ([]reconcile.CheckOutcome, error) {
	switch t.kind {
	case targetOne:
		res, err := reg.CheckOne(ctx, t.module, t.ids[0], fields)
		if err != nil {
			return nil, err
		}
		return []reconcile.CheckOutcome{{ID: res.ID, Result: &res}}, nil
	case targetMany:
		return reg.CheckMany(ctx, t.module, t.ids, fields)
	case targetAll:
		return reg.CheckAll(ctx, t.module, t.filter, fields)
	default:
		return reg.CheckRange(ctx, t.module, t.since, t.until, fields)
	}
}
