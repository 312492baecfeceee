// Package readmodel defines the gateway reconciliation uses to read and
// repair denormalized read-model records.
//
// A gateway serves one collection. Records are JSON documents keyed by entity
// id; the store keeps created/updated timestamps outside the document so that
// they never take part in comparisons.
package readmodel

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/roach88/recon/internal/apperrors"
	"github.com/roach88/recon/internal/state"
)

// Filter selects records whose top-level fields equal the given scalar
// values. A nil value matches an explicit null.
type Filter map[string]any

// Gateway reads and partially updates one read-model collection.
type Gateway interface {
	// FindByID returns the record for id; ok is false when there is none.
	FindByID(ctx context.Context, id string) (doc state.Object, ok bool, err error)

	// FindByIDAndUpdate overwrites the given top-level keys of an existing
	// record and returns the updated record. It never creates a record;
	// ok is false when id has none.
	FindByIDAndUpdate(ctx context.Context, id string, fields state.Object) (doc state.Object, ok bool, err error)

	// AllIDs lists every record id in the collection.
	AllIDs(ctx context.Context) ([]string, error)

	// IDsByFilter lists ids of records matching filter.
	IDsByFilter(ctx context.Context, filter Filter) ([]string, error)

	// IDsByDateRange lists ids of records last updated within [start, end].
	IDsByDateRange(ctx context.Context, start, end time.Time) ([]string, error)
}

// Writer seeds and removes records. Reconciliation itself never creates
// records; writers exist for tooling and tests.
type Writer interface {
	Put(ctx context.Context, id string, doc state.Object) error
	Delete(ctx context.Context, id string) error
}

// Collection is a gateway that can also be written to.
type Collection interface {
	Gateway
	Writer
}

// Condition is one validated filter entry.
type Condition struct {
	Field string
	Value state.Value
}

// Conditions validates filter and returns its entries sorted by field.
// Only scalar and null values are allowed.
func (f Filter) Conditions() ([]Condition, error) {
	conds := make([]Condition, 0, len(f))
	for field, raw := range f {
		if field == "" {
			return nil, apperrors.InvalidInput("filter field name is empty")
		}
		v, err := state.FromAny(raw)
		if err != nil {
			return nil, apperrors.InvalidInput("filter %q: %v", field, err)
		}
		switch v.(type) {
		case state.Array, state.Object:
			return nil, apperrors.InvalidInput("filter %q: only scalar values are supported", field)
		}
		conds = append(conds, Condition{Field: field, Value: v})
	}
	sort.Slice(conds, func(i, j int) bool { return conds[i].Field < conds[j].Field })
	return conds, nil
}

// ValidateRange checks that start is not after end.
func ValidateRange(start, end time.Time) error {
	if end.Before(start) {
		return apperrors.InvalidInput("date range end %s is before start %s",
			end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	return nil
}

// MarshalDoc encodes a document for storage.
func MarshalDoc(doc state.Object) ([]byte, error) {
	if doc == nil {
		doc = state.Object{}
	}
	data, err := state.MarshalCanonical(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return data, nil
}
