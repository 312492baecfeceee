// Package cli implements the recon command line: listing modules, checking
// and fixing read-model records, serving the HTTP API, seeding stores and
// running scenario files.
package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose     bool
	Format      string // "json" | "text"
	ConfigPath  string
	EventLog    string // overrides eventLog.path
	ReadModel   string // overrides readModel.path
	Concurrency int    // overrides reconcile.concurrency when > 0
	LogFormat   string // overrides log.format when set
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the recon CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "recon",
		Short: "recon - read-model reconciliation for event-sourced systems",
		Long: `Rebuild entities from their event streams, compare them with the
read model and repair records that drifted.

Configuration is read from --config (YAML, JSON or CUE) and RECON_*
environment variables. Without a config file recon uses SQLite stores in
the working directory and the built-in product module.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if opts.LogFormat != "" && opts.LogFormat != "text" && opts.LogFormat != "json" {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid log format %q: must be text or json", opts.LogFormat))
			}
			if opts.Concurrency < 0 {
				return NewExitError(ExitCommandError, "concurrency must be positive")
			}
			return nil
		},
	}

	// Global flags
	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output (debug logging)")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVarP(&opts.ConfigPath, "config", "c", "", "path to a YAML, JSON or CUE config file")
	flags.StringVar(&opts.EventLog, "db", "", "path to the SQLite event log")
	flags.StringVar(&opts.ReadModel, "read-model", "", "path to the SQLite read model")
	flags.IntVar(&opts.Concurrency, "concurrency", 0, "ids reconciled in parallel per batch")
	flags.StringVar(&opts.LogFormat, "log-format", "", "log format on stderr (text|json)")

	cmd.AddCommand(NewModulesCommand(opts))
	cmd.AddCommand(NewFieldsCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))
	cmd.AddCommand(NewFixCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewEventsCommand(opts))
	cmd.AddCommand(NewDocsCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
