package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/recon/internal/app"
	"github.com/roach88/recon/internal/compare"
	"github.com/roach88/recon/internal/state"
)

// AssertionContext provides what assertions need beyond the result.
type AssertionContext struct {
	App      *app.App
	Scenario *Scenario
	Ctx      context.Context
}

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			target := event.ID
			if target == "" {
				target = "*"
			}
			fmt.Fprintf(&buf, "  [%d] %s %s/%s\n", event.Seq, event.Op, event.Module, target)
		}
	}
	return buf.String()
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertRecord:
			err = assertRecord(actx, a)
		case AssertNoRecord:
			err = assertNoRecord(actx, a)
		case AssertTraceCount:
			err = assertTraceCount(result, a)
		case AssertNotificationCount:
			err = assertNotificationCount(result, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func assertRecord(actx *AssertionContext, a Assertion) error {
	doc, ok, err := findRecord(actx, a)
	if err != nil {
		return err
	}
	if !ok {
		return &AssertionError{
			Type:     AssertRecord,
			Expected: fmt.Sprintf("record %s with %v", a.ID, a.Expect),
			Actual:   "no record",
		}
	}
	want, err := state.ObjectFromAny(a.Expect)
	if err != nil {
		return fmt.Errorf("record expect: %w", err)
	}
	if diffs := subsetDiff(want, doc); len(diffs) > 0 {
		return &AssertionError{
			Type:     AssertRecord,
			Expected: fmt.Sprintf("record %s with %v", a.ID, a.Expect),
			Actual:   "differs in " + strings.Join(diffs, ", "),
		}
	}
	return nil
}

func assertNoRecord(actx *AssertionContext, a Assertion) error {
	_, ok, err := findRecord(actx, a)
	if err != nil {
		return err
	}
	if ok {
		return &AssertionError{
			Type:     AssertNoRecord,
			Expected: fmt.Sprintf("no record %s", a.ID),
			Actual:   "record exists",
		}
	}
	return nil
}

func findRecord(actx *AssertionContext, a Assertion) (state.Object, bool, error) {
	coll, err := actx.App.ModuleCollection(actx.Scenario.moduleOf(a.Module))
	if err != nil {
		return nil, false, err
	}
	return coll.FindByID(actx.Ctx, a.ID)
}

// assertTraceCount checks that op ran exactly Count times.
func assertTraceCount(result *Result, a Assertion) error {
	if got := result.count(a.Op); got != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%s %d times", a.Op, a.Count),
			Actual:   fmt.Sprintf("%d times", got),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertNotificationCount(result *Result, a Assertion) error {
	if got := result.Notifications[a.Kind]; got != a.Count {
		return &AssertionError{
			Type:     AssertNotificationCount,
			Expected: fmt.Sprintf("%d notifications of %s", a.Count, a.Kind),
			Actual:   fmt.Sprintf("%d", got),
			Trace:    result.Trace,
		}
	}
	return nil
}

// validateExpect compares a step's outcome with its expect clause.
func validateExpect(e *ExpectClause, ev TraceEvent) []string {
	if e == nil {
		return nil
	}
	var errs []string

	if e.Error != "" {
		if ev.Error != e.Error {
			errs = append(errs, fmt.Sprintf("expected error %s, got %s", e.Error, orNone(ev.Error)))
		}
		return errs
	}
	if ev.Error != "" {
		// Reported once by the caller.
		return nil
	}

	if e.Match != nil && ev.Match != nil && *e.Match != *ev.Match {
		errs = append(errs, fmt.Sprintf("expected match=%t, got match=%t", *e.Match, *ev.Match))
	}
	if len(e.Discrepancies) > 0 {
		if got := discrepancyFields(ev.Discrepancies); !slices.Equal(got, e.Discrepancies) {
			errs = append(errs, fmt.Sprintf("expected discrepancies %v, got %v", e.Discrepancies, got))
		}
	}
	if e.Record != nil {
		want, err := state.ObjectFromAny(e.Record)
		if err != nil {
			errs = append(errs, fmt.Sprintf("expect.record: %v", err))
		} else if diffs := subsetDiff(want, ev.Record); len(diffs) > 0 {
			errs = append(errs, "record differs in "+strings.Join(diffs, ", "))
		}
	}
	for _, key := range sortedKeys(e.Summary) {
		if got, want := ev.Summary[key], e.Summary[key]; got != want {
			errs = append(errs, fmt.Sprintf("expected summary %s=%d, got %d", key, want, got))
		}
	}
	return errs
}

func discrepancyFields(ds []compare.Discrepancy) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.Field
	}
	return out
}

// subsetDiff lists the keys of want whose value differs in got.
func subsetDiff(want, got state.Object) []string {
	var diffs []string
	for _, k := range want.SortedKeys() {
		if !state.Equal(want[k], got.Get(k)) {
			diffs = append(diffs, k)
		}
	}
	return diffs
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
