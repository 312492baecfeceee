package product

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recon/internal/eventlog"
	rmsqlite "github.com/roach88/recon/internal/readmodel/sqlite"
	"github.com/roach88/recon/internal/reconcile"
	"github.com/roach88/recon/internal/state"
)

func TestApplyLifecycle(t *testing.T) {
	p := New()
	require.NoError(t, p.Apply(CreationInitialized{Name: "Widget", Price: 10, Stock: 5}))
	assert.Equal(t, StatusPending, p.Status)

	require.NoError(t, p.Apply(CreationFinalized{}))
	require.NoError(t, p.Apply(StockAdjusted{Delta: -2}))
	require.NoError(t, p.Apply(PriceChanged{Price: 12.5}))

	assert.Equal(t, &Product{Name: "Widget", Price: 12.5, Stock: 3, Status: StatusFinalized}, p)
}

func TestApplyRejectsInvalidTransitions(t *testing.T) {
	p := New()
	require.NoError(t, p.Apply(Created{Name: "Widget", Price: 10, Stock: 5}))

	assert.Error(t, p.Apply(CreationFinalized{}))
	assert.Error(t, p.Apply(PriceChanged{Price: -1}))
	assert.Error(t, p.Apply("not an event"))
}

func TestSnapshotEventReplacesState(t *testing.T) {
	p := New()
	require.NoError(t, p.Apply(Created{Name: "Old", Price: 1, Stock: 1}))
	require.NoError(t, p.Apply(SnapshotCreated{Name: "New", Price: 2, Stock: 9, Status: StatusFinalized}))
	assert.Equal(t, &Product{Name: "New", Price: 2, Stock: 9, Status: StatusFinalized}, p)
}

func TestCreatedAliasesCarryFullState(t *testing.T) {
	table := Transformers()
	for _, typ := range []string{EventCreated, EventCreatedShort} {
		ev, err := table[typ](eventlog.Event{Type: typ, Payload: []byte(`{"name":"Widget","price":10,"stock":5}`)})
		require.NoError(t, err, typ)

		p := New()
		require.NoError(t, p.Apply(ev), typ)
		assert.Equal(t, &Product{Name: "Widget", Price: 10, Stock: 5, Status: StatusCreated}, p, typ)
	}
}

func TestProjectEmptyProductListsFields(t *testing.T) {
	obj, err := Project(New())
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "price", "status", "stock"}, obj.SortedKeys())
}

func newService(t *testing.T) (*reconcile.Service[*Product], *eventlog.Store, *rmsqlite.Collection) {
	t.Helper()
	dir := t.TempDir()
	log, err := eventlog.Open(filepath.Join(dir, "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })
	rm, err := rmsqlite.Open(filepath.Join(dir, "readmodel.db"))
	require.NoError(t, err)
	t.Cleanup(func() { rm.Close() })
	products := rm.Collection(Collection)

	svc, err := reconcile.New(Module(products), reconcile.Deps{
		Events: log,
		Logger: slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
	})
	require.NoError(t, err)
	return svc, log, products
}

func seedWidget(t *testing.T, log *eventlog.Store, products *rmsqlite.Collection) {
	t.Helper()
	ctx := context.Background()
	_, err := log.Append(ctx, "product-42", eventlog.Draft{
		Type:    EventCreatedShort,
		Payload: map[string]any{"name": "Widget", "price": 10, "stock": 5},
	})
	require.NoError(t, err)
	require.NoError(t, products.Put(ctx, "42", state.Object{
		"name":  state.String("Widget"),
		"price": state.Int(10),
		"stock": state.Int(4),
	}))
}

func TestProduct42Check(t *testing.T) {
	svc, log, products := newService(t)
	seedWidget(t, log, products)
	ctx := context.Background()

	res, err := svc.CheckOne(ctx, "42", nil)
	require.NoError(t, err)
	assert.False(t, res.Comparison.IsMatch())

	fields := map[string][2]state.Value{}
	for _, d := range res.Comparison.Discrepancies() {
		fields[d.Field] = [2]state.Value{d.Expected, d.Actual}
	}
	require.Len(t, fields, 2)
	assert.Equal(t, [2]state.Value{state.Int(5), state.Int(4)}, fields["stock"])
	assert.Equal(t, state.String("created"), fields["status"][0])
	assert.True(t, state.IsAbsent(fields["status"][1]))

	res, err = svc.CheckOne(ctx, "42", []string{"name", "price"})
	require.NoError(t, err)
	assert.True(t, res.Comparison.IsMatch())
}

func TestProduct42FixThenCheck(t *testing.T) {
	svc, log, products := newService(t)
	seedWidget(t, log, products)
	ctx := context.Background()

	rec, err := svc.FixOne(ctx, "42", nil)
	require.NoError(t, err)
	want := state.Object{
		"name":   state.String("Widget"),
		"price":  state.Int(10),
		"stock":  state.Int(5),
		"status": state.String("created"),
	}
	assert.True(t, state.Equal(want, rec))

	res, err := svc.CheckOne(ctx, "42", nil)
	require.NoError(t, err)
	assert.True(t, res.Comparison.IsMatch())
}
