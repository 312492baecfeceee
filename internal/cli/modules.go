package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewModulesCommand creates the modules command.
func NewModulesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "modules",
		Short: "List registered reconciliation modules",
		Long: `List the modules registered from the configuration file, with the
aggregate type, read-model collection and event types of each.

Examples:
  recon modules
  recon modules --config recon.yaml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			infos := a.Registry.All()
			out := formatter(rootOpts, cmd)
			if rootOpts.Format == "json" {
				return out.Success(infos)
			}
			rows := make([][]string, 0, len(infos))
			for _, info := range infos {
				rows = append(rows, []string{
					info.Name,
					info.AggregateType,
					info.Collection,
					strings.Join(info.EventTypes, ","),
				})
			}
			writeTable(cmd.OutOrStdout(), []string{"Module", "Aggregate", "Collection", "Events"}, rows)
			return nil
		},
	}
}

// NewFieldsCommand creates the fields command.
func NewFieldsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "fields <module>",
		Short: "List the comparable fields of a module",
		Long: `List the top-level fields that check and fix compare by default.

Exit codes:
  0 - Success
  1 - Unknown module
  2 - Command error

Examples:
  recon fields product`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			out := formatter(rootOpts, cmd)
			fields, err := a.Registry.Fields(args[0])
			if err != nil {
				return out.Fail("fields failed", err)
			}
			if rootOpts.Format == "json" {
				return out.Success(map[string]any{"module": args[0], "fields": fields})
			}
			for _, f := range fields {
				fmt.Fprintln(cmd.OutOrStdout(), f)
			}
			return nil
		},
	}
}

