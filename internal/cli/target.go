package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/recon/internal/readmodel"
)

type targetKind int

const (
	targetOne targetKind = iota
	targetMany
	targetAll
	targetRange
)

// TargetOptions are the selection flags shared by check and fix.
type TargetOptions struct {
	All    bool
	Filter string // JSON object of top-level equality conditions
	Since  string
	Until  string
	Fields []string
	Report string // CSV report path
}

func (o *TargetOptions) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.BoolVar(&o.All, "all", false, "every record of the module's collection")
	flags.StringVar(&o.Filter, "filter", "", `records matching a JSON filter, e.g. '{"status":"active"}'`)
	flags.StringVar(&o.Since, "since", "", "records updated at or after this time (RFC 3339 or YYYY-MM-DD)")
	flags.StringVar(&o.Until, "until", "", "records updated at or before this time (RFC 3339 or YYYY-MM-DD)")
	flags.StringSliceVar(&o.Fields, "fields", nil, "restrict to these top-level fields")
	flags.StringVar(&o.Report, "report", "", "also write the report to this CSV file")
}

// target is a parsed selection.
type target struct {
	kind   targetKind
	module string
	ids    []string
	filter readmodel.Filter
	since  time.Time
	until  time.Time
}

// parseTarget resolves "<module> [ids...]" plus selection flags.
func parseTarget(args []string, o TargetOptions) (target, error) {
	t := target{module: args[0], ids: args[1:]}
	ranged := o.Since != "" || o.Until != ""

	switch {
	case ranged:
		if o.Since == "" || o.Until == "" {
			return target{}, errors.New("--since and --until must be given together")
		}
		if len(t.ids) > 0 || o.All || o.Filter != "" {
			return target{}, errors.New("--since/--until cannot be combined with ids, --all or --filter")
		}
		var err error
		if t.since, err = parseTime(o.Since, false); err != nil {
			return target{}, fmt.Errorf("--since: %w", err)
		}
		if t.until, err = parseTime(o.Until, true); err != nil {
			return target{}, fmt.Errorf("--until: %w", err)
		}
		t.kind = targetRange

	case o.All || o.Filter != "":
		if len(t.ids) > 0 {
			return target{}, errors.New("ids cannot be combined with --all or --filter")
		}
		if o.Filter != "" {
			f, err := parseFilter(o.Filter)
			if err != nil {
				return target{}, fmt.Errorf("--filter: %w", err)
			}
			t.filter = f
		}
		t.kind = targetAll

	case len(t.ids) == 1:
		t.kind = targetOne

	case len(t.ids) > 1:
		t.kind = targetMany

	default:
		return target{}, errors.New("give one or more ids, --all, --filter or --since/--until")
	}
	return t, nil
}

// parseFilter decodes a JSON object, keeping numbers exact.
func parseFilter(s string) (readmodel.Filter, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var f map[string]any
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("not a JSON object: %w", err)
	}
	if f == nil {
		return nil, errors.New("not a JSON object")
	}
	return readmodel.Filter(f), nil
}

// dateLayout is accepted for whole days; as an upper bound it covers the
// entire day.
const dateLayout = "2006-01-02"

func parseTime(s string, upper bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	day, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is neither RFC 3339 nor YYYY-MM-DD", s)
	}
	if upper {
		return day.Add(24*time.Hour - time.Nanosecond), nil
	}
	return day, nil
}
