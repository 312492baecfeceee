package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/recon/internal/eventlog"
)

// maxImportLine bounds one NDJSON line of events import.
const maxImportLine = 4 << 20

// eventLine is one line of an events import file.
type eventLine struct {
	Stream     string          `json:"stream"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// NewEventsCommand creates the events command group.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect and seed the event log",
		Long: `Append, import and read events in the SQLite event log.

Streams are named <aggregate-type>-<id>, e.g. product-42.`,
	}

	cmd.AddCommand(newEventsAppendCommand(rootOpts))
	cmd.AddCommand(newEventsImportCommand(rootOpts))
	cmd.AddCommand(newEventsShowCommand(rootOpts))
	cmd.AddCommand(newEventsStreamsCommand(rootOpts))

	return cmd
}

func newEventsAppendCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "append <stream> <type> [payload-json]",
		Short: "Append one event to a stream",
		Long: `Append one event to the end of a stream. The payload defaults to {}.

Examples:
  recon events append product-42 ProductCreated '{"name":"Widget","price":10,"stock":5}'
  recon events append product-42 ProductStockAdjusted '{"delta":-1}'`,
		Args:          cobra.RangeArgs(2, 3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			draft := eventlog.Draft{Type: args[1]}
			if len(args) == 3 {
				if !json.Valid([]byte(args[2])) {
					return NewExitError(ExitCommandError, "payload is not valid JSON")
				}
				draft.Payload = json.RawMessage(args[2])
			}

			a, err := openApp(cmd.Context(), rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			out := formatter(rootOpts, cmd)
			written, err := a.Events.Append(cmd.Context(), args[0], draft)
			if err != nil {
				return out.Fail("append failed", err)
			}
			ev := written[0]
			if rootOpts.Format == "json" {
				return out.Success(ev)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Appended %s #%d to %s\n", ev.Type, ev.Seq, ev.StreamID)
			return nil
		},
	}
}

func newEventsImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file|->",
		Short: "Append events from an NDJSON file",
		Long: `Append events read from a newline-delimited JSON file, one event per
line, in file order. Blank lines are skipped.

Each line is an object with stream, type and payload keys and an optional
RFC 3339 occurred_at.

Examples:
  recon events import events.ndjson
  cat events.ndjson | recon events import -`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to open events file", err)
				}
				defer f.Close()
				r = f
			}
			lines, err := readEventLines(r)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid events file", err)
			}

			a, err := openApp(cmd.Context(), rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			out := formatter(rootOpts, cmd)
			for i, l := range lines {
				draft := eventlog.Draft{Type: l.Type, OccurredAt: l.OccurredAt}
				if len(l.Payload) > 0 {
					draft.Payload = l.Payload
				}
				if _, err := a.Events.Append(cmd.Context(), l.Stream, draft); err != nil {
					return out.Fail(fmt.Sprintf("import failed at event %d", i+1), err)
				}
			}
			if rootOpts.Format == "json" {
				return out.Success(map[string]int{"imported": len(lines)})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d events\n", len(lines))
			return nil
		},
	}
}

// readEventLines parses every line before anything is appended, so a
// malformed file writes nothing.
func readEventLines(r io.Reader) ([]eventLine, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxImportLine)

	var lines []eventLine
	n := 0
	for sc.Scan() {
		n++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		var l eventLine
		if err := dec.Decode(&l); err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		if l.Stream == "" || l.Type == "" {
			return nil, fmt.Errorf("line %d: stream and type are required", n)
		}
		lines = append(lines, l)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func newEventsShowCommand(rootOpts *RootOptions) *cobra.Command {
	var from int64

	cmd := &cobra.Command{
		Use:   "show <stream>",
		Short: "Print the events of a stream",
		Long: `Print the events of a stream in sequence order.

Exit codes:
  0 - Success
  1 - The stream has no events
  2 - Command error

Examples:
  recon events show product-42
  recon events show product-42 --from 3 --format json`,
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
			events := []eventlog.Event{}
			for ev, err := range a.Events.ReadStream(cmd.Context(), args[0], from) {
				if err != nil {
					if errors.Is(err, eventlog.ErrStreamNotFound) {
						if outErr := out.Error("NOT_FOUND", fmt.Sprintf("stream %s has no events", args[0]), nil); outErr != nil {
							return outErr
						}
						return WrapExitError(ExitFailure, "stream not found", err)
					}
					return out.Fail("read failed", err)
				}
				events = append(events, ev)
			}

			if rootOpts.Format == "json" {
				return out.Success(events)
			}
			rows := make([][]string, 0, len(events))
			for _, ev := range events {
				rows = append(rows, []string{
					strconv.FormatInt(ev.Seq, 10),
					ev.Type,
					ev.OccurredAt.UTC().Format(time.RFC3339Nano),
					string(ev.Payload),
				})
			}
			writeTable(cmd.OutOrStdout(), []string{"Seq", "Type", "Occurred", "Payload"}, rows)
			return nil
		},
	}

	cmd.Flags().Int64Var(&from, "from", 1, "first sequence number to print")
	return cmd
}

func newEventsStreamsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "streams [prefix]",
		Short: "List streams and their versions",
		Long: `List streams whose id starts with prefix, ordered by id.

Examples:
  recon events streams
  recon events streams product-`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}

			a, err := openApp(cmd.Context(), rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			out := formatter(rootOpts, cmd)
			streams, err := a.Events.Streams(cmd.Context(), prefix)
			if err != nil {
				return out.Fail("list streams failed", err)
			}
			if rootOpts.Format == "json" {
				return out.Success(streams)
			}
			rows := make([][]string, 0, len(streams))
			for _, s := range streams {
				rows = append(rows, []string{s.StreamID, strconv.FormatInt(s.Version, 10)})
			}
			writeTable(cmd.OutOrStdout(), []string{"Stream", "Version"}, rows)
			return nil
		},
	}
}
