package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/recon/internal/aggregate"
	"github.com/roach88/recon/internal/compare"
	"github.com/roach88/recon/internal/notify"
	"github.com/roach88/recon/internal/readmodel"
	"github.com/roach88/recon/internal/snapshot"
	"github.com/roach88/recon/internal/state"
)

// Defaults applied to zero Deps fields.
const (
	DefaultConcurrency = 8
	DefaultCallTimeout = 10 * time.Second
)

// EntityField is the discrepancy field reported when the read model has no
// record for an id.
const EntityField = "_entity"

// Module describes one reconcilable entity type.
type Module[A aggregate.Aggregate] struct {
	// Name identifies the module in the registry.
	Name string

	// AggregateType prefixes stream ids: "{AggregateType}-{id}".
	AggregateType string

	// Collection names the read-model collection, for listings.
	Collection string

	// Transformers maps event types to domain events.
	Transformers aggregate.Transformers

	// New returns a fresh, empty aggregate.
	New func() A

	// Project maps an aggregate to its comparable state. It must be pure.
	Project func(A) (state.Object, error)

	// Fields optionally declares the comparable fields. When empty they are
	// derived from Project(New()).
	Fields []string

	// ReadModel reads and repairs records of this entity type.
	ReadModel readmodel.Gateway
}

// Validate reports missing required parts.
func (m Module[A]) Validate() error {
	var errs []error
	if m.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if m.AggregateType == "" {
		errs = append(errs, errors.New("aggregate type is required"))
	}
	if len(m.Transformers) == 0 {
		errs = append(errs, errors.New("at least one transformer is required"))
	}
	if m.New == nil {
		errs = append(errs, errors.New("aggregate factory is required"))
	}
	if m.Project == nil {
		errs = append(errs, errors.New("projector is required"))
	}
	if m.ReadModel == nil {
		errs = append(errs, errors.New("read model gateway is required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("module %q: %w", m.Name, errors.Join(errs...))
	}
	return nil
}

// Deps are the collaborators shared by every module.
type Deps struct {
	// Events is the event log reader. Required.
	Events aggregate.EventReader

	// Snapshots enables snapshot-assisted replay when set.
	Snapshots snapshot.Store

	// SnapshotEvery is the replay length that triggers a fresh snapshot.
	SnapshotEvery int

	// Publisher receives drift and repair notifications. Defaults to no-op.
	Publisher notify.Publisher

	// Concurrency bounds in-flight ids per batch. Defaults to 8.
	Concurrency int

	// CallTimeout bounds each remote call. Defaults to 10s; negative disables.
	CallTimeout time.Duration

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Tracer defaults to the global otel tracer provider.
	Tracer trace.Tracer

	// Now defaults to time.Now.
	Now func() time.Time
}

// Reconciler is the per-module operation surface.
type Reconciler interface {
	// ComparableFields lists the fields that take part in comparisons.
	ComparableFields() []string

	// CheckOne compares one id. Not-found and I/O errors are returned.
	CheckOne(ctx context.Context, id string, fields []string) (CheckResult, error)

	// FixOne overwrites the selected fields of one record and returns the
	// updated record. A missing record is a not-found error.
	FixOne(ctx context.Context, id string, fields []string) (state.Object, error)

	// CheckMany checks ids independently; failures stay in their slot.
	CheckMany(ctx context.Context, ids []string, fields []string) []CheckOutcome

	// FixMany fixes ids independently; failures stay in their slot.
	FixMany(ctx context.Context, ids []string, fields []string) []FixOutcome

	// CheckAll checks every id matching filter (all ids when empty).
	CheckAll(ctx context.Context, filter readmodel.Filter, fields []string) ([]CheckOutcome, error)

	// FixAll fixes every id matching filter (all ids when empty).
	FixAll(ctx context.Context, filter readmodel.Filter, fields []string) ([]FixOutcome, error)

	// CheckRange checks ids whose records were written within [start, end].
	CheckRange(ctx context.Context, start, end time.Time, fields []string) ([]CheckOutcome, error)

	// FixRange fixes ids whose records were written within [start, end].
	FixRange(ctx context.Context, start, end time.Time, fields []string) ([]FixOutcome, error)
}

// CheckResult is the outcome of checking one id. Actual is nil when the read
// model has no record.
type CheckResult struct {
	ID         string         `json:"id"`
	Expected   state.Object   `json:"expectedState"`
	Actual     state.Object   `json:"actualState"`
	Comparison compare.Result `json:"comparison"`
}

// CheckOutcome is one slot of a batch check.
type CheckOutcome struct {
	ID     string       `json:"id"`
	Result *CheckResult `json:"result,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// Failed reports whether the id could not be checked.
func (o CheckOutcome) Failed() bool { return o.Error != "" }

// FixOutcome is one slot of a batch fix.
type FixOutcome struct {
	ID     string       `json:"id"`
	Record state.Object `json:"record,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// Failed reports whether the id could not be fixed.
func (o FixOutcome) Failed() bool { return o.Error != "" }

// CheckSummary counts batch check outcomes.
type CheckSummary struct {
	Total      int `json:"total"`
	Matched    int `json:"matched"`
	Mismatched int `json:"mismatched"`
	Failed     int `json:"failed"`
}

// SummarizeChecks counts matches, mismatches and failures.
func SummarizeChecks(outcomes []CheckOutcome) CheckSummary {
	s := CheckSummary{Total: len(outcomes)}
	for _, o := range outcomes {
		switch {
		case o.Failed():
			s.Failed++
		case o.Result.Comparison.IsMatch():
			s.Matched++
		default:
			s.Mismatched++
		}
	}
	return s
}

// FixSummary counts batch fix outcomes.
type FixSummary struct {
	Total  int `json:"total"`
	Fixed  int `json:"fixed"`
	Failed int `json:"failed"`
}

// SummarizeFixes counts fixed and failed ids.
func SummarizeFixes(outcomes []FixOutcome) FixSummary {
	s := FixSummary{Total: len(outcomes)}
	for _, o := range outcomes {
		if o.Failed() {
			s.Failed++
		} else {
			s.Fixed++
		}
	}
	return s
}
