package registry

import (
	"context"
	"errors"
	"iter"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recon/internal/aggregate"
	"github.com/roach88/recon/internal/apperrors"
	"github.com/roach88/recon/internal/eventlog"
	"github.com/roach88/recon/internal/readmodel"
	"github.com/roach88/recon/internal/reconcile"
	"github.com/roach88/recon/internal/state"
)

// stubReconciler answers every call with canned values.
type stubReconciler struct {
	fields []string
}

func (s stubReconciler) ComparableFields() []string { return s.fields }

func (s stubReconciler) CheckOne(_ context.Context, id string, _ []string) (reconcile.CheckResult, error) {
	if id == "missing" {
		return reconcile.CheckResult{}, apperrors.NotFound(id, "no events")
	}
	return reconcile.CheckResult{ID: id}, nil
}

func (s stubReconciler) FixOne(_ context.Context, id string, _ []string) (state.Object, error) {
	return state.Object{"id": state.String(id)}, nil
}

func (s stubReconciler) CheckMany(_ context.Context, ids []string, _ []string) []reconcile.CheckOutcome {
	out := make([]reconcile.CheckOutcome, len(ids))
	for i, id := range ids {
		out[i] = reconcile.CheckOutcome{ID: id}
	}
	return out
}

func (s stubReconciler) FixMany(_ context.Context, ids []string, _ []string) []reconcile.FixOutcome {
	out := make([]reconcile.FixOutcome, len(ids))
	for i, id := range ids {
		out[i] = reconcile.FixOutcome{ID: id}
	}
	return out
}

func (s stubReconciler) CheckAll(ctx context.Context, _ readmodel.Filter, fields []string) ([]reconcile.CheckOutcome, error) {
	return s.CheckMany(ctx, []string{"a", "b"}, fields), nil
}

func (s stubReconciler) FixAll(ctx context.Context, _ readmodel.Filter, fields []string) ([]reconcile.FixOutcome, error) {
	return s.FixMany(ctx, []string{"a", "b"}, fields), nil
}

func (s stubReconciler) CheckRange(context.Context, time.Time, time.Time, []string) ([]reconcile.CheckOutcome, error) {
	return nil, errors.New("not supported")
}

func (s stubReconciler) FixRange(context.Context, time.Time, time.Time, []string) ([]reconcile.FixOutcome, error) {
	return nil, errors.New("not supported")
}

func TestRegisterAndLookup(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(Info{Name: "product", EventTypes: []string{"b", "a"}}, stubReconciler{fields: []string{"name"}}))
	require.NoError(t, r.Register(Info{Name: "order"}, stubReconciler{}))

	all := r.All()
	require.Len(t, all, 2)
	assert.Equal(t, "product", all[0].Name, "registration order")
	assert.Equal(t, []string{"a", "b"}, all[0].EventTypes)
	assert.Equal(t, []string{"name"}, all[0].Fields, "fields default to the reconciler's")

	rec, ok := r.Service("order")
	assert.True(t, ok)
	assert.NotNil(t, rec)

	_, ok = r.Service("nope")
	assert.False(t, ok)
}

func TestRegisterDuplicate(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(Info{Name: "product"}, stubReconciler{}))

	err := r.Register(Info{Name: "product"}, stubReconciler{})

	require.Error(t, err)
	assert.Equal(t, apperrors.CodeDuplicateModule, apperrors.CodeOf(err))
	assert.True(t, apperrors.IsConfig(err))
	assert.Len(t, r.All(), 1)
}

func TestRegisterRejectsIncompleteEntries(t *testing.T) {
	r := New()
	assert.True(t, apperrors.IsConfig(r.Register(Info{}, stubReconciler{})))
	assert.True(t, apperrors.IsConfig(r.Register(Info{Name: "x"}, nil)))
}

func TestMustRegisterPanicsOnDuplicate(t *testing.T) {
	r := New()
	r.MustRegister(Info{Name: "product"}, stubReconciler{})
	assert.Panics(t, func() { r.MustRegister(Info{Name: "product"}, stubReconciler{}) })
}

func TestOperationsByName(t *testing.T) {
	r := New()
	r.MustRegister(Info{Name: "product"}, stubReconciler{fields: []string{"price"}})
	ctx := context.Background()

	fields, err := r.Fields("product")
	require.NoError(t, err)
	assert.Equal(t, []string{"price"}, fields)

	res, err := r.CheckOne(ctx, "product", "42", nil)
	require.NoError(t, err)
	assert.Equal(t, "42", res.ID)

	_, err = r.CheckOne(ctx, "product", "missing", nil)
	assert.True(t, apperrors.IsNotFound(err))

	rec, err := r.FixOne(ctx, "product", "42", nil)
	require.NoError(t, err)
	assert.Equal(t, state.String("42"), rec.Get("id"))

	many, err := r.CheckMany(ctx, "product", []string{"1", "2"}, nil)
	require.NoError(t, err)
	assert.Len(t, many, 2)

	all, err := r.FixAll(ctx, "product", nil, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestUnknownModule(t *testing.T) {
	r := New()
	ctx := context.Background()

	_, err := r.Fields("ghost")
	assert.Equal(t, apperrors.CodeModuleNotFound, apperrors.CodeOf(err))

	_, err = r.CheckOne(ctx, "ghost", "1", nil)
	assert.Equal(t, apperrors.CodeModuleNotFound, apperrors.CodeOf(err))

	_, err = r.FixMany(ctx, "ghost", []string{"1"}, nil)
	assert.Equal(t, apperrors.CodeModuleNotFound, apperrors.CodeOf(err))

	_, err = r.CheckRange(ctx, "ghost", time.Now(), time.Now(), nil)
	assert.Equal(t, apperrors.CodeModuleNotFound, apperrors.CodeOf(err))
}

type counter struct{ N int }

func (c *counter) Apply(any) error { c.N++; return nil }

func TestInstall(t *testing.T) {
	r := New()
	m := reconcile.Module[*counter]{
		Name:          "counter",
		AggregateType: "counter",
		Collection:    "counters",
		Transformers:  aggregate.Transformers{"Incremented": aggregate.Decode[struct{}]()},
		New:           func() *counter { return &counter{} },
		Project: func(c *counter) (state.Object, error) {
			return state.Object{"n": state.Int(int64(c.N))}, nil
		},
		ReadModel: nopGateway{},
	}

	require.NoError(t, Install(r, m, reconcile.Deps{Events: emptyReader{}}))

	info, ok := r.Info("counter")
	require.True(t, ok)
	assert.Equal(t, Info{
		Name:          "counter",
		AggregateType: "counter",
		Collection:    "counters",
		EventTypes:    []string{"Incremented"},
		Fields:        []string{"n"},
	}, info)

	assert.True(t, apperrors.IsConfig(Install(r, m, reconcile.Deps{Events: emptyReader{}})))
}

func TestInstallRejectsInvalidModule(t *testing.T) {
	err := Install(New(), reconcile.Module[*counter]{Name: "broken"}, reconcile.Deps{Events: emptyReader{}})
	assert.True(t, apperrors.IsConfig(err))
}

type nopGateway struct{ readmodel.Gateway }

type emptyReader struct{}

func (emptyReader) ReadStream(context.Context, string, int64) iter.Seq2[eventlog.Event, error] {
	return func(yield func(eventlog.Event, error) bool) {
		yield(eventlog.Event{}, eventlog.ErrStreamNotFound)
	}
}

func (emptyReader) StreamVersion(context.Context, string) (int64, error) { return 0, nil }
