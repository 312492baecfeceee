package document

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/recon/internal/aggregate"
	"github.com/roach88/recon/internal/readmodel"
	"github.com/roach88/recon/internal/reconcile"
	"github.com/roach88/recon/internal/state"
)

// Definition is a declarative entity type.
type Definition struct {
	Name          string
	AggregateType string
	Collection    string
	// Fields lists the comparable fields. Empty means the fields the rules
	// write by name (Set, Const and Increment).
	Fields []string
	Events map[string]Rule
}

// Validate reports every problem in d.
func (d Definition) Validate() error {
	var errs []error
	if d.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if len(d.Events) == 0 {
		errs = append(errs, errors.New("at least one event rule is required"))
	}
	types := make([]string, 0, len(d.Events))
	for t := range d.Events {
		types = append(types, t)
	}
	slices.Sort(types)
	for _, t := range types {
		if aggregate.IsSystemEvent(t) {
			errs = append(errs, fmt.Errorf("event %q: system events cannot have rules", t))
			continue
		}
		if err := d.Events[t].Validate(); err != nil {
			errs = append(errs, fmt.Errorf("event %q: %w", t, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("document type %q: %w", d.Name, errors.Join(errs...))
	}
	return nil
}

// Document is the aggregate rebuilt from rule-driven events.
type Document struct {
	fields state.Object
}

// New returns an empty document.
func New() *Document { return &Document{fields: state.Object{}} }

// Fields returns a copy of the current fields.
func (d *Document) Fields() state.Object {
	return state.Merge(nil, d.fields)
}

// Apply folds a Change into the document.
func (d *Document) Apply(event any) error {
	ch, ok := event.(Change)
	if !ok {
		return fmt.Errorf("document: unsupported event %T", event)
	}
	if ch.Replace != nil {
		d.fields = state.Merge(nil, ch.Replace)
	}
	for k, v := range ch.Set {
		d.fields[k] = v
	}
	for k, delta := range ch.Increment {
		sum, err := add(d.fields.Get(k), delta)
		if err != nil {
			return fmt.Errorf("%s: increment %q: %w", ch.Type, k, err)
		}
		d.fields[k] = sum
	}
	for _, k := range ch.Unset {
		delete(d.fields, k)
	}
	return nil
}

func add(cur, delta state.Value) (state.Value, error) {
	if state.IsAbsent(cur) {
		cur = state.Int(0)
	}
	switch c := cur.(type) {
	case state.Int:
		switch d := delta.(type) {
		case state.Int:
			return c + d, nil
		case state.Float:
			return state.Float(float64(c) + float64(d)), nil
		}
	case state.Float:
		switch d := delta.(type) {
		case state.Int:
			return c + state.Float(d), nil
		case state.Float:
			return c + d, nil
		}
	}
	return nil, fmt.Errorf("field is %s, not a number", state.Kind(cur))
}

// MarshalJSON encodes the fields for snapshots.
func (d *Document) MarshalJSON() ([]byte, error) {
	return state.MarshalCanonical(d.fields)
}

// UnmarshalJSON restores fields from a snapshot.
func (d *Document) UnmarshalJSON(data []byte) error {
	obj, err := state.ObjectFromJSON(data)
	if err != nil {
		return err
	}
	d.fields = obj
	return nil
}

var _ json.Marshaler = (*Document)(nil)

// Transformers compiles the event rules of d.
func (d Definition) Transformers() aggregate.Transformers {
	out := make(aggregate.Transformers, len(d.Events))
	for t, rule := range d.Events {
		out[t] = rule.compile(t)
	}
	return out
}

// Module validates d and wires it to a read-model gateway. AggregateType and
// Collection default to Name.
func Module(d Definition, rm readmodel.Gateway) (reconcile.Module[*Document], error) {
	if err := d.Validate(); err != nil {
		return reconcile.Module[*Document]{}, err
	}
	if d.AggregateType == "" {
		d.AggregateType = d.Name
	}
	if d.Collection == "" {
		d.Collection = d.Name
	}
	return reconcile.Module[*Document]{
		Name:          d.Name,
		AggregateType: d.AggregateType,
		Collection:    d.Collection,
		Transformers:  d.Transformers(),
		New:           New,
		Project: func(doc *Document) (state.Object, error) {
			return doc.Fields(), nil
		},
		Fields:    d.comparableFields(),
		ReadModel: rm,
	}, nil
}

// comparableFields returns d.Fields or the sorted union of the fields named
// by the rules. Fields copied by Replace are unknown until replay.
func (d Definition) comparableFields() []string {
	if len(d.Fields) > 0 {
		return slices.Clone(d.Fields)
	}
	seen := make(map[string]struct{})
	for _, rule := range d.Events {
		for f := range rule.Set {
			seen[f] = struct{}{}
		}
		for f := range rule.Const {
			seen[f] = struct{}{}
		}
		for f := range rule.Increment {
			seen[f] = struct{}{}
		}
	}
	fields := make([]string, 0, len(seen))
	for f := range seen {
		fields = append(fields, f)
	}
	slices.Sort(fields)
	return fields
}
