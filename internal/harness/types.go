package harness

import (
	"github.com/roach88/recon/internal/compare"
	"github.com/roach88/recon/internal/state"
)

// TraceEvent records one executed step.
type TraceEvent struct {
	Seq    int64    `json:"seq"`
	Op     string   `json:"op"`
	Module string   `json:"module"`
	ID     string   `json:"id,omitempty"`
	Fields []string `json:"fields,omitempty"`

	// Single check.
	Match         *bool                 `json:"match,omitempty"`
	Discrepancies []compare.Discrepancy `json:"discrepancies,omitempty"`

	// Single fix.
	Record state.Object `json:"record,omitempty"`

	// Error is the error code of a failed single operation.
	Error string `json:"error,omitempty"`

	// Batch operations.
	Summary map[string]int `json:"summary,omitempty"`
	Items   []TraceItem    `json:"items,omitempty"`
}

// TraceItem is one slot of a batch operation.
type TraceItem struct {
	ID            string                `json:"id"`
	Match         *bool                 `json:"match,omitempty"`
	Discrepancies []compare.Discrepancy `json:"discrepancies,omitempty"`
	Record        state.Object          `json:"record,omitempty"`
	Error         string                `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace contains one event per step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State holds the final read model: module -> id -> record.
	State map[string]map[string]state.Object `json:"state,omitempty"`

	// Notifications counts published notifications by kind.
	Notifications map[string]int `json:"notifications,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:          true,
		Trace:         []TraceEvent{},
		Errors:        []string{},
		State:         make(map[string]map[string]state.Object),
		Notifications: make(map[string]int),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step event, numbering it.
func (r *Result) AddTrace(ev TraceEvent) {
	ev.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, ev)
}

// count returns how many trace events ran op.
func (r *Result) count(op string) int {
	n := 0
	for _, ev := range r.Trace {
		if ev.Op == op {
			n++
		}
	}
	return n
}
