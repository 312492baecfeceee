package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/recon/internal/aggregate"
	"github.com/roach88/recon/internal/apperrors"
	"github.com/roach88/recon/internal/compare"
	"github.com/roach88/recon/internal/notify"
	"github.com/roach88/recon/internal/readmodel"
	"github.com/roach88/recon/internal/state"
)

const tracerName = "github.com/roach88/recon/internal/reconcile"

// Service reconciles one module. Safe for concurrent use.
type Service[A aggregate.Aggregate] struct {
	module        Module[A]
	reconstructor *aggregate.Reconstructor[A]
	comparator    compare.Comparator
	publisher     notify.Publisher
	concurrency   int
	callTimeout   time.Duration
	logger        *slog.Logger
	tracer        trace.Tracer
	now           func() time.Time
}

var _ Reconciler = (*Service[aggregate.Aggregate])(nil)

// New validates m and builds its Service.
func New[A aggregate.Aggregate](m Module[A], deps Deps) (*Service[A], error) {
	if err := m.Validate(); err != nil {
		return nil, apperrors.InvalidConfig("%v", err)
	}
	if deps.Events == nil {
		return nil, apperrors.InvalidConfig("module %q: event reader is required", m.Name)
	}

	s := &Service[A]{
		module:      m,
		comparator:  compare.New(),
		publisher:   deps.Publisher,
		concurrency: deps.Concurrency,
		callTimeout: deps.CallTimeout,
		logger:      deps.Logger,
		tracer:      deps.Tracer,
		now:         deps.Now,
	}
	if s.publisher == nil {
		s.publisher = notify.Noop{}
	}
	if s.concurrency <= 0 {
		s.concurrency = DefaultConcurrency
	}
	if s.callTimeout == 0 {
		s.callTimeout = DefaultCallTimeout
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("module", m.Name)
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}
	if s.now == nil {
		s.now = time.Now
	}

	opts := []aggregate.Option{aggregate.WithLogger(s.logger)}
	if deps.Snapshots != nil {
		opts = append(opts, aggregate.WithSnapshots(deps.Snapshots, deps.SnapshotEvery))
	}
	s.reconstructor = aggregate.NewReconstructor(m.AggregateType, m.Transformers, m.New, deps.Events, opts...)
	return s, nil
}

// Name returns the module name.
func (s *Service[A]) Name() string { return s.module.Name }

// ComparableFields returns the declared fields, or the keys of the projection
// of an empty aggregate.
func (s *Service[A]) ComparableFields() []string {
	if len(s.module.Fields) > 0 {
		return slices.Clone(s.module.Fields)
	}
	placeholder, err := s.module.Project(s.module.New())
	if err != nil {
		s.logger.Warn("projecting empty aggregate failed", "error", err)
		return []string{}
	}
	return placeholder.SortedKeys()
}

// CheckOne rebuilds id, reads its record concurrently and compares them.
// A missing record is reported as a mismatch on EntityField, not an error.
func (s *Service[A]) CheckOne(ctx context.Context, id string, fields []string) (CheckResult, error) {
	ctx, span := s.startSpan(ctx, "reconcile.CheckOne", id)
	defer span.End()

	var (
		agg    A
		actual state.Object
		found  bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(guard(func() error {
		var err error
		agg, err = s.reconstruct(gctx, id)
		return err
	}))
	g.Go(guard(func() error {
		var err error
		actual, found, err = s.fetch(gctx, id)
		return err
	}))
	if err := g.Wait(); err != nil {
		return CheckResult{}, s.fail(span, "check", id, err)
	}

	expected, err := s.project(agg)
	if err != nil {
		return CheckResult{}, s.fail(span, "check", id, err)
	}
	keys := selection(expected, fields)
	expected = state.Pick(expected, keys)

	if !found {
		result := CheckResult{
			ID:       id,
			Expected: expected,
			Comparison: compare.Mismatch(id, []compare.Discrepancy{{
				Field:    EntityField,
				Expected: state.String("exists"),
				Actual:   state.String("not found in read model"),
			}}),
		}
		span.SetAttributes(attribute.Bool("recon.match", false))
		s.publishDrift(ctx, result, keys)
		return result, nil
	}

	actual = state.Pick(actual, keys)
	result := CheckResult{
		ID:         id,
		Expected:   expected,
		Actual:     actual,
		Comparison: s.comparator.Compare(id, expected, actual),
	}
	span.SetAttributes(attribute.Bool("recon.match", result.Comparison.IsMatch()))
	if !result.Comparison.IsMatch() {
		s.publishDrift(ctx, result, keys)
	}
	return result, nil
}

// FixOne rebuilds id and overwrites the selected fields of its existing
// record. Returns the updated record.
func (s *Service[A]) FixOne(ctx context.Context, id string, fields []string) (state.Object, error) {
	ctx, span := s.startSpan(ctx, "reconcile.FixOne", id)
	defer span.End()

	agg, err := s.reconstruct(ctx, id)
	if err != nil {
		return nil, s.fail(span, "fix", id, err)
	}
	expected, err := s.project(agg)
	if err != nil {
		return nil, s.fail(span, "fix", id, err)
	}
	keys := selection(expected, fields)
	patch := state.Pick(expected, keys)

	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	updated, ok, err := s.module.ReadModel.FindByIDAndUpdate(callCtx, id, patch)
	if err != nil {
		return nil, s.fail(span, "fix", id, fmt.Errorf("update read model: %w", err))
	}
	if !ok {
		return nil, s.fail(span, "fix", id, apperrors.NotFound(id, "no read-model record to update"))
	}

	s.logger.DebugContext(ctx, "record repaired", "id", id, "fields", keys)
	s.publishRepair(ctx, id, keys, patch)
	return updated, nil
}

// CheckMany checks every id on the worker pool.
func (s *Service[A]) CheckMany(ctx context.Context, ids []string, fields []string) []CheckOutcome {
	return runBatch(ctx, s.concurrency, ids, func(ctx context.Context, id string) CheckOutcome {
		res, err := s.CheckOne(ctx, id, fields)
		if err != nil {
			return CheckOutcome{ID: id, Error: err.Error()}
		}
		return CheckOutcome{ID: id, Result: &res}
	}, func(id string, recovered any) CheckOutcome {
		s.logger.ErrorContext(ctx, "check panicked", "id", id, "panic", recovered)
		return CheckOutcome{ID: id, Error: fmt.Sprintf("panic: %v", recovered)}
	})
}

// FixMany fixes every id on the worker pool.
func (s *Service[A]) FixMany(ctx context.Context, ids []string, fields []string) []FixOutcome {
	return runBatch(ctx, s.concurrency, ids, func(ctx context.Context, id string) FixOutcome {
		rec, err := s.FixOne(ctx, id, fields)
		if err != nil {
			return FixOutcome{ID: id, Error: err.Error()}
		}
		return FixOutcome{ID: id, Record: rec}
	}, func(id string, recovered any) FixOutcome {
		s.logger.ErrorContext(ctx, "fix panicked", "id", id, "panic", recovered)
		return FixOutcome{ID: id, Error: fmt.Sprintf("panic: %v", recovered)}
	})
}

// CheckAll checks every id the read model reports for filter.
func (s *Service[A]) CheckAll(ctx context.Context, filter readmodel.Filter, fields []string) ([]CheckOutcome, error) {
	ids, err := s.ids(ctx, filter)
	if err != nil {
		return nil, err
	}
	return s.CheckMany(ctx, ids, fields), nil
}

// FixAll fixes every id the read model reports for filter.
func (s *Service[A]) FixAll(ctx context.Context, filter readmodel.Filter, fields []string) ([]FixOutcome, error) {
	ids, err := s.ids(ctx, filter)
	if err != nil {
		return nil, err
	}
	return s.FixMany(ctx, ids, fields), nil
}

// CheckRange checks ids whose records were written within [start, end].
func (s *Service[A]) CheckRange(ctx context.Context, start, end time.Time, fields []string) ([]CheckOutcome, error) {
	ids, err := s.idsInRange(ctx, start, end)
	if err != nil {
		return nil, err
	}
	return s.CheckMany(ctx, ids, fields), nil
}

// FixRange fixes ids whose records were written within [start, end].
func (s *Service[A]) FixRange(ctx context.Context, start, end time.Time, fields []string) ([]FixOutcome, error) {
	ids, err := s.idsInRange(ctx, start, end)
	if err != nil {
		return nil, err
	}
	return s.FixMany(ctx, ids, fields), nil
}

func (s *Service[A]) reconstruct(ctx context.Context, id string) (A, error) {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	return s.reconstructor.Reconstruct(callCtx, id)
}

func (s *Service[A]) fetch(ctx context.Context, id string) (state.Object, bool, error) {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	doc, ok, err := s.module.ReadModel.FindByID(callCtx, id)
	if err != nil {
		return nil, false, fmt.Errorf("read model: %w", err)
	}
	return doc, ok, nil
}

func (s *Service[A]) project(agg A) (state.Object, error) {
	obj, err := s.module.Project(agg)
	if err != nil {
		return nil, fmt.Errorf("project: %w", err)
	}
	if obj == nil {
		obj = state.Object{}
	}
	return obj, nil
}

func (s *Service[A]) ids(ctx context.Context, filter readmodel.Filter) ([]string, error) {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	var (
		ids []string
		err error
	)
	if len(filter) == 0 {
		ids, err = s.module.ReadModel.AllIDs(callCtx)
	} else {
		ids, err = s.module.ReadModel.IDsByFilter(callCtx, filter)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: list ids: %w", s.module.Name, err)
	}
	s.logger.InfoContext(ctx, "scan resolved ids", "count", len(ids), "filtered", len(filter) > 0)
	return ids, nil
}

func (s *Service[A]) idsInRange(ctx context.Context, start, end time.Time) ([]string, error) {
	if err := readmodel.ValidateRange(start, end); err != nil {
		return nil, err
	}
	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	ids, err := s.module.ReadModel.IDsByDateRange(callCtx, start, end)
	if err != nil {
		return nil, fmt.Errorf("%s: list ids by date range: %w", s.module.Name, err)
	}
	s.logger.InfoContext(ctx, "range scan resolved ids", "count", len(ids),
		"start", start.Format(time.RFC3339), "end", end.Format(time.RFC3339))
	return ids, nil
}

func (s *Service[A]) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.callTimeout < 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.callTimeout)
}

func (s *Service[A]) startSpan(ctx context.Context, name, id string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("recon.module", s.module.Name),
		attribute.String("recon.id", id),
	))
}

// fail records err on the span, logs it and wraps it with the operation.
func (s *Service[A]) fail(span trace.Span, op, id string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if apperrors.IsNotFound(err) {
		s.logger.Debug(op+" failed", "id", id, "error", err)
	} else {
		s.logger.Warn(op+" failed", "id", id, "error", err)
	}
	return fmt.Errorf("%s %s/%s: %w", op, s.module.Name, id, err)
}

func (s *Service[A]) publishDrift(ctx context.Context, result CheckResult, keys []string) {
	s.publish(ctx, notify.Notification{
		Kind:          notify.KindDriftDetected,
		Module:        s.module.Name,
		ID:            result.ID,
		Fields:        keys,
		Discrepancies: result.Comparison.Discrepancies(),
		OccurredAt:    s.now().UTC(),
	})
}

func (s *Service[A]) publishRepair(ctx context.Context, id string, keys []string, patch state.Object) {
	fp, err := state.Fingerprint(patch)
	if err != nil {
		s.logger.WarnContext(ctx, "fingerprint failed", "id", id, "error", err)
	}
	s.publish(ctx, notify.Notification{
		Kind:        notify.KindRepaired,
		Module:      s.module.Name,
		ID:          id,
		Fields:      keys,
		Fingerprint: fp,
		OccurredAt:  s.now().UTC(),
	})
}

func (s *Service[A]) publish(ctx context.Context, n notify.Notification) {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	if err := s.publisher.Publish(callCtx, n); err != nil {
		s.logger.WarnContext(ctx, "publish notification failed", "id", n.ID, "kind", n.Kind, "error", err)
	}
}

// selection returns the keys to compare: the requested fields, or every key
// of expected when none were requested.
func selection(expected state.Object, fields []string) []string {
	if len(fields) == 0 {
		return expected.SortedKeys()
	}
	return slices.Clone(fields)
}

// guard turns a panic in fn into an error.
func guard(fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return fn()
	}
}

// runBatch runs fn for every id with at most limit in flight and returns the
// results in input order. A panicking task yields onPanic's value.
func runBatch[T any](
	ctx context.Context,
	limit int,
	ids []string,
	fn func(context.Context, string) T,
	onPanic func(string, any) T,
) []T {
	out := make([]T, len(ids))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, id := range ids {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					out[i] = onPanic(id, r)
				}
			}()
			out[i] = fn(ctx, id)
			return nil
		})
	}
	_ = g.Wait()
	return out
}
