package document

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/recon/internal/eventlog"
	"github.com/roach88/recon/internal/state"
)

// Rule describes how one event type changes the document.
type Rule struct {
	// Replace discards the current document and starts from the payload.
	Replace bool `json:"replace,omitempty" yaml:"replace,omitempty"`

	// Set copies payload paths into fields: field -> payload path.
	Set map[string]string `json:"set,omitempty" yaml:"set,omitempty"`

	// Const writes literal values into fields.
	Const map[string]any `json:"const,omitempty" yaml:"const,omitempty"`

	// Increment adds the number at a payload path to a numeric field.
	Increment map[string]string `json:"increment,omitempty" yaml:"increment,omitempty"`

	// Unset removes fields.
	Unset []string `json:"unset,omitempty" yaml:"unset,omitempty"`
}

// Validate checks that the rule does something and that its constants are
// representable.
func (r Rule) Validate() error {
	if !r.Replace && len(r.Set) == 0 && len(r.Const) == 0 && len(r.Increment) == 0 && len(r.Unset) == 0 {
		return errors.New("rule has no effect")
	}
	for field, v := range r.Const {
		if _, err := state.FromAny(v); err != nil {
			return fmt.Errorf("const %q: %w", field, err)
		}
	}
	for field, path := range r.Set {
		if field == "" || path == "" {
			return errors.New("set entries need a field and a payload path")
		}
	}
	for field, path := range r.Increment {
		if field == "" || path == "" {
			return errors.New("increment entries need a field and a payload path")
		}
	}
	return nil
}

// Change is the domain event produced by applying a Rule to a stored event.
type Change struct {
	Type      string
	Replace   state.Object
	Set       state.Object
	Increment map[string]state.Value
	Unset     []string
}

// compile turns a rule into a transformer body.
func (r Rule) compile(eventType string) func(eventlog.Event) (any, error) {
	consts := make(state.Object, len(r.Const))
	for field, v := range r.Const {
		// Validate has already rejected unrepresentable values.
		cv, _ := state.FromAny(v)
		consts[field] = cv
	}
	unset := slices.Clone(r.Unset)

	return func(ev eventlog.Event) (any, error) {
		payload, err := decodePayload(ev)
		if err != nil {
			return nil, err
		}

		ch := Change{Type: eventType, Set: state.Object{}, Increment: map[string]state.Value{}, Unset: unset}
		if r.Replace {
			ch.Replace = payload
		}
		for field, path := range r.Set {
			v := lookup(payload, path)
			if state.IsAbsent(v) {
				continue
			}
			ch.Set[field] = v
		}
		for field, v := range consts {
			ch.Set[field] = v
		}
		for field, path := range r.Increment {
			v := lookup(payload, path)
			switch v.(type) {
			case state.Int, state.Float:
				ch.Increment[field] = v
			default:
				return nil, fmt.Errorf("increment %q: payload %q is %s, not a number", field, path, state.Kind(v))
			}
		}
		return ch, nil
	}
}

// decodePayload reads an object payload. Empty and null payloads decode to
// an empty object.
func decodePayload(ev eventlog.Event) (state.Object, error) {
	if len(ev.Payload) == 0 {
		return state.Object{}, nil
	}
	v, err := state.FromJSON(ev.Payload)
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	switch p := v.(type) {
	case state.Null:
		return state.Object{}, nil
	case state.Object:
		return p, nil
	default:
		return nil, fmt.Errorf("decode payload: want object, got %s", state.Kind(v))
	}
}

// lookup follows a dotted path through nested objects.
func lookup(obj state.Object, path string) state.Value {
	var cur state.Value = obj
	for _, key := range strings.Split(path, ".") {
		o, ok := cur.(state.Object)
		if !ok {
			return state.Absent
		}
		cur = o.Get(key)
	}
	return cur
}
