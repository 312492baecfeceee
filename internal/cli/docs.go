package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/recon/internal/apperrors"
	"github.com/roach88/recon/internal/readmodel"
	"github.com/roach88/recon/internal/state"
)

// NewDocsCommand creates the docs command group.
func NewDocsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Read and seed read-model records",
		Long: `Read, write and delete records in a module's read-model collection.

These commands exist for seeding and inspection; check and fix never create
records.`,
	}

	cmd.AddCommand(newDocsPutCommand(rootOpts))
	cmd.AddCommand(newDocsGetCommand(rootOpts))
	cmd.AddCommand(newDocsDeleteCommand(rootOpts))
	cmd.AddCommand(newDocsListCommand(rootOpts))

	return cmd
}

// docsRun opens the app and the collection of args[0] before calling fn.
func docsRun(rootOpts *RootOptions, fn func(cmd *cobra.Command, coll readmodel.Collection, out *OutputFormatter, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), rootOpts, cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		out := formatter(rootOpts, cmd)
		coll, err := a.ModuleCollection(args[0])
		if err != nil {
			return out.Fail("unknown module", err)
		}
		return fn(cmd, coll, out, args)
	}
}

func newDocsPutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "put <module> <id> <json>",
		Short: "Create or replace a record",
		Long: `Create or replace the whole record of id with a JSON object.

Examples:
  recon docs put product 42 '{"name":"Widget","price":10,"stock":4}'`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: docsRun(rootOpts, func(cmd *cobra.Command, coll readmodel.Collection, out *OutputFormatter, args []string) error {
			doc, err := state.ObjectFromJSON([]byte(args[2]))
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid document", err)
			}
			if err := coll.Put(cmd.Context(), args[1], doc); err != nil {
				return out.Fail("put failed", err)
			}
			if rootOpts.Format == "json" {
				return out.Success(map[string]any{"id": args[1], "doc": doc})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %s/%s\n", args[0], args[1])
			return nil
		}),
	}
}

func newDocsGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <module> <id>",
		Short: "Print a record",
		Long: `Print the record of id as canonical JSON.

Exit codes:
  0 - Success
  1 - No record for id
  2 - Command error

Examples:
  recon docs get product 42`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: docsRun(rootOpts, func(cmd *cobra.Command, coll readmodel.Collection, out *OutputFormatter, args []string) error {
			doc, ok, err := coll.FindByID(cmd.Context(), args[1])
			if err != nil {
				return out.Fail("get failed", err)
			}
			if !ok {
				return out.Fail("get failed", apperrors.NotFound(args[1], "no "+args[0]+" record"))
			}
			if rootOpts.Format == "json" {
				return out.Success(doc)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderValue(doc))
			return nil
		}),
	}
}

func newDocsDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "delete <module> <id>",
		Short:         "Delete a record",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: docsRun(rootOpts, func(cmd *cobra.Command, coll readmodel.Collection, out *OutputFormatter, args []string) error {
			if err := coll.Delete(cmd.Context(), args[1]); err != nil {
				return out.Fail("delete failed", err)
			}
			if rootOpts.Format == "json" {
				return out.Success(map[string]string{"deleted": args[1]})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s/%s\n", args[0], args[1])
			return nil
		}),
	}
}

func newDocsListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list <module>",
		Short:         "List record ids",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: docsRun(rootOpts, func(cmd *cobra.Command, coll readmodel.Collection, out *OutputFormatter, _ []string) error {
			ids, err := coll.AllIDs(cmd.Context())
			if err != nil {
				return out.Fail("list failed", err)
			}
			if rootOpts.Format == "json" {
				return out.Success(ids)
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		}),
	}
}
