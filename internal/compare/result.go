package compare

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/roach88/recon/internal/state"
)

// MatchDetails is the details text of every matching result.
const MatchDetails = "States match"

// Discrepancy is one differing leaf between expected and actual state.
// Expected or Actual is state.Absent when the key exists on one side only.
type Discrepancy struct {
	Field    string
	Expected state.Value
	Actual   state.Value
}

// MarshalJSON writes {"field", "expected", "actual"}, omitting a side that is
// absent and writing null for a side that is null.
func (d Discrepancy) MarshalJSON() ([]byte, error) {
	out := map[string]any{"field": d.Field}
	if !state.IsAbsent(d.Expected) {
		out["expected"] = d.Expected
	}
	if !state.IsAbsent(d.Actual) {
		out["actual"] = d.Actual
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the MarshalJSON form; a missing side decodes as Absent.
func (d *Discrepancy) UnmarshalJSON(data []byte) error {
	var raw struct {
		Field    string          `json:"field"`
		Expected json.RawMessage `json:"expected"`
		Actual   json.RawMessage `json:"actual"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d.Field = raw.Field
	var err error
	if d.Expected, err = decodeSide(raw.Expected); err != nil {
		return fmt.Errorf("expected: %w", err)
	}
	if d.Actual, err = decodeSide(raw.Actual); err != nil {
		return fmt.Errorf("actual: %w", err)
	}
	return nil
}

func decodeSide(raw json.RawMessage) (state.Value, error) {
	if len(raw) == 0 {
		return state.Absent, nil
	}
	return state.FromJSON(raw)
}

// Result is the outcome of comparing one entity.
// Construct it with Match or Mismatch; the zero value is not meaningful.
type Result struct {
	id            string
	isMatch       bool
	discrepancies []Discrepancy
	details       string
}

// Match returns a matching result for id.
func Match(id string) Result {
	return Result{id: id, isMatch: true, details: MatchDetails}
}

// Mismatch returns a mismatching result for id. The discrepancies are copied.
// An empty list still yields a mismatch; callers decide when to use it.
func Mismatch(id string, discrepancies []Discrepancy) Result {
	return Result{
		id:            id,
		isMatch:       false,
		discrepancies: slices.Clone(discrepancies),
		details:       fmt.Sprintf("Mismatch detected in %d fields", len(discrepancies)),
	}
}

// ID returns the entity id the result is about.
func (r Result) ID() string { return r.id }

// IsMatch reports whether expected and actual were deeply equal.
func (r Result) IsMatch() bool { return r.isMatch }

// Discrepancies returns a copy of the differing fields (empty on match).
func (r Result) Discrepancies() []Discrepancy {
	if len(r.discrepancies) == 0 {
		return []Discrepancy{}
	}
	return slices.Clone(r.discrepancies)
}

// Details returns the human-readable summary.
func (r Result) Details() string { return r.details }

type resultJSON struct {
	ID            string        `json:"id"`
	IsMatch       bool          `json:"isMatch"`
	Discrepancies []Discrepancy `json:"discrepancies"`
	Details       string        `json:"details"`
}

// MarshalJSON implements json.Marshaler.
func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultJSON{
		ID:            r.id,
		IsMatch:       r.isMatch,
		Discrepancies: r.Discrepancies(),
		Details:       r.details,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Result) UnmarshalJSON(data []byte) error {
	var raw resultJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Result{id: raw.ID, isMatch: raw.IsMatch, discrepancies: raw.Discrepancies, details: raw.Details}
	return nil
}
