package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/recon/internal/compare"
	"github.com/roach88/recon/internal/state"
)

// TraceSnapshot captures the complete trace for a scenario execution.
// It is serialized as canonical JSON for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
}

// Canonical serializes the snapshot as canonical JSON.
func (s *TraceSnapshot) Canonical() ([]byte, error) {
	return state.MarshalCanonical(s.toCanonical())
}

// toCanonical converts the snapshot to a state.Object. Empty optional fields
// are left out, as in the JSON form.
func (s *TraceSnapshot) toCanonical() state.Object {
	trace := make(state.Array, len(s.Trace))
	for i, ev := range s.Trace {
		obj := state.Object{
			"seq":    state.Int(ev.Seq),
			"op":     state.String(ev.Op),
			"module": state.String(ev.Module),
		}
		if ev.ID != "" {
			obj["id"] = state.String(ev.ID)
		}
		if len(ev.Fields) > 0 {
			obj["fields"] = stringArray(ev.Fields)
		}
		if ev.Error != "" {
			obj["error"] = state.String(ev.Error)
		}
		if ev.Summary != nil {
			summary := make(state.Object, len(ev.Summary))
			for k, v := range ev.Summary {
				summary[k] = state.Int(v)
			}
			obj["summary"] = summary
		}
		if ev.Items != nil {
			items := make(state.Array, len(ev.Items))
			for j, item := range ev.Items {
				entry := state.Object{"id": state.String(item.ID)}
				addOutcome(entry, item.Match, item.Discrepancies, item.Record)
				if item.Error != "" {
					entry["error"] = state.String(item.Error)
				}
				items[j] = entry
			}
			obj["items"] = items
		}
		addOutcome(obj, ev.Match, ev.Discrepancies, ev.Record)
		trace[i] = obj
	}
	return state.Object{
		"scenario_name": state.String(s.ScenarioName),
		"trace":         trace,
	}
}

func addOutcome(obj state.Object, match *bool, ds []compare.Discrepancy, record state.Object) {
	if match != nil {
		obj["match"] = state.Bool(*match)
		list := make(state.Array, len(ds))
		for i, d := range ds {
			entry := state.Object{"field": state.String(d.Field)}
			if d.Expected != nil && !state.IsAbsent(d.Expected) {
				entry["expected"] = d.Expected
			}
			if d.Actual != nil && !state.IsAbsent(d.Actual) {
				entry["actual"] = d.Actual
			}
			list[i] = entry
		}
		obj["discrepancies"] = list
	}
	if record != nil {
		obj["record"] = record
	}
}

func stringArray(ss []string) state.Array {
	out := make(state.Array, len(ss))
	for i, s := range ss {
		out[i] = state.String(s)
	}
	return out
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := TraceSnapshot{ScenarioName: scenarioName, Trace: result.Trace}
	traceJSON, err := snapshot.Canonical()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
