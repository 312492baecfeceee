package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/recon/internal/config"
)

// Scenario defines a reconciliation scenario.
// It seeds the event log and the read model, runs check and fix operations
// and asserts on the resulting trace and final read-model state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Modules declares the reconciliation modules. Defaults to the built-in
	// product module.
	Modules []config.ModuleConfig `yaml:"modules,omitempty"`

	// Snapshots selects the snapshot cache: none (default), memory or sqlite.
	Snapshots string `yaml:"snapshots,omitempty"`

	// Events are appended to the event log in order before any step runs.
	Events []EventSeed `yaml:"events,omitempty"`

	// Documents are written to the read model before any step runs.
	Documents []DocumentSeed `yaml:"documents,omitempty"`

	// Steps are the operations under test, run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the trace and the final read model.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// EventSeed is one event appended to a stream.
type EventSeed struct {
	Stream  string         `yaml:"stream"`
	Type    string         `yaml:"type"`
	Payload map[string]any `yaml:"payload,omitempty"`
}

// DocumentSeed is one read-model record.
type DocumentSeed struct {
	// Module selects the collection of a registered module.
	Module string `yaml:"module,omitempty"`

	// Collection names a collection directly; it wins over Module.
	Collection string `yaml:"collection,omitempty"`

	ID  string         `yaml:"id"`
	Doc map[string]any `yaml:"doc"`
}

// Step is one operation.
type Step struct {
	// Op is one of check, fix, checkMany, fixMany, checkAll, fixAll,
	// checkRange, fixRange.
	Op string `yaml:"op"`

	// Module may be omitted when the scenario declares a single module.
	Module string `yaml:"module,omitempty"`

	ID     string         `yaml:"id,omitempty"`
	IDs    []string       `yaml:"ids,omitempty"`
	Filter map[string]any `yaml:"filter,omitempty"`
	Since  string         `yaml:"since,omitempty"`
	Until  string         `yaml:"until,omitempty"`
	Fields []string       `yaml:"fields,omitempty"`

	// Expect validates the step outcome. Optional.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected outcome of a step.
type ExpectClause struct {
	// Match is the expected comparison outcome of a single check.
	Match *bool `yaml:"match,omitempty"`

	// Discrepancies lists the expected discrepancy fields of a single
	// check, in report order.
	Discrepancies []string `yaml:"discrepancies,omitempty"`

	// Record is a subset of the record a single fix returns.
	Record map[string]any `yaml:"record,omitempty"`

	// Error is the expected error code of a single operation.
	Error string `yaml:"error,omitempty"`

	// Summary holds expected batch counts (total, matched, mismatched,
	// fixed, failed).
	Summary map[string]int `yaml:"summary,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "record": a read-model record holds the expected field values
	// - "no_record": a read-model record does not exist
	// - "trace_count": an operation appears exactly Count times
	// - "notification_count": Count notifications of Kind were published
	Type string `yaml:"type"`

	// Module and ID locate a record (record, no_record).
	Module string `yaml:"module,omitempty"`
	ID     string `yaml:"id,omitempty"`

	// Expect holds expected record values (record). Subset match.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Op is the operation counted by trace_count.
	Op string `yaml:"op,omitempty"`

	// Kind is the notification kind counted by notification_count.
	Kind string `yaml:"kind,omitempty"`

	// Count is the expected number of occurrences.
	Count int `yaml:"count,omitempty"`
}

// Operation names.
const (
	OpCheck      = "check"
	OpFix        = "fix"
	OpCheckMany  = "checkMany"
	OpFixMany    = "fixMany"
	OpCheckAll   = "checkAll"
	OpFixAll     = "fixAll"
	OpCheckRange = "checkRange"
	OpFixRange   = "fixRange"
)

// Assertion type constants.
const (
	AssertRecord            = "record"
	AssertNoRecord          = "no_record"
	AssertTraceCount        = "trace_count"
	AssertNotificationCount = "notification_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// modules returns the declared modules or the built-in product module.
func (s *Scenario) modules() []config.ModuleConfig {
	if len(s.Modules) == 0 {
		return []config.ModuleConfig{{Name: config.BuiltinProduct, Builtin: config.BuiltinProduct}}
	}
	return s.Modules
}

// moduleOf resolves the module a step or seed refers to.
func (s *Scenario) moduleOf(name string) string {
	if name != "" {
		return name
	}
	if mods := s.modules(); len(mods) == 1 {
		return mods[0].Name
	}
	return ""
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	switch s.Snapshots {
	case "", config.DriverNone, config.DriverMemory, config.DriverSQLite:
	default:
		return fmt.Errorf("snapshots %q is not one of none, memory, sqlite", s.Snapshots)
	}

	for i, ev := range s.Events {
		if ev.Stream == "" || ev.Type == "" {
			return fmt.Errorf("events[%d]: stream and type are required", i)
		}
	}

	for i, doc := range s.Documents {
		if doc.ID == "" {
			return fmt.Errorf("documents[%d]: id is required", i)
		}
		if doc.Collection == "" && s.moduleOf(doc.Module) == "" {
			return fmt.Errorf("documents[%d]: module or collection is required", i)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(s, i, step); err != nil {
			return err
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(s, i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(s *Scenario, index int, step Step) error {
	if s.moduleOf(step.Module) == "" {
		return fmt.Errorf("steps[%d]: module is required when several modules are declared", index)
	}
	switch step.Op {
	case OpCheck, OpFix:
		if step.ID == "" {
			return fmt.Errorf("steps[%d]: id is required for %s", index, step.Op)
		}
	case OpCheckMany, OpFixMany:
		if len(step.IDs) == 0 {
			return fmt.Errorf("steps[%d]: ids is required for %s", index, step.Op)
		}
	case OpCheckAll, OpFixAll:
	case OpCheckRange, OpFixRange:
		if _, err := time.Parse(time.RFC3339, step.Since); err != nil {
			return fmt.Errorf("steps[%d]: since must be RFC 3339: %w", index, err)
		}
		if _, err := time.Parse(time.RFC3339, step.Until); err != nil {
			return fmt.Errorf("steps[%d]: until must be RFC 3339: %w", index, err)
		}
	case "":
		return fmt.Errorf("steps[%d]: op is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, step.Op)
	}

	if e := step.Expect; e != nil {
		single := step.Op == OpCheck || step.Op == OpFix
		if !single && (e.Match != nil || len(e.Discrepancies) > 0 || e.Record != nil || e.Error != "") {
			return fmt.Errorf("steps[%d].expect: match, discrepancies, record and error apply to check and fix only", index)
		}
		if single && e.Summary != nil {
			return fmt.Errorf("steps[%d].expect: summary applies to batch operations only", index)
		}
		if step.Op == OpFix && (e.Match != nil || len(e.Discrepancies) > 0) {
			return fmt.Errorf("steps[%d].expect: match and discrepancies apply to check only", index)
		}
		if step.Op == OpCheck && e.Record != nil {
			return fmt.Errorf("steps[%d].expect: record applies to fix only", index)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(s *Scenario, index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertRecord, AssertNoRecord:
		if s.moduleOf(a.Module) == "" || a.ID == "" {
			return fmt.Errorf("assertions[%d]: module and id are required for %s", index, a.Type)
		}
		if a.Type == AssertRecord && len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for record", index)
		}
	case AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertNotificationCount:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for notification_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for notification_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
