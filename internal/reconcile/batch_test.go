package reconcile

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recon/internal/apperrors"
	"github.com/roach88/recon/internal/readmodel"
	"github.com/roach88/recon/internal/state"
)

func TestCheckManyKeepsOrderAndIsolatesFailures(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "1", widget, widgetDoc(5))
	e.seed(t, "2", widget, widgetDoc(1))
	s := e.service(t)

	out := s.CheckMany(context.Background(), []string{"2", "missing", "1"}, []string{"stock"})

	require.Len(t, out, 3)
	assert.Equal(t, "2", out[0].ID)
	require.NotNil(t, out[0].Result)
	assert.False(t, out[0].Result.Comparison.IsMatch())

	assert.Equal(t, "missing", out[1].ID)
	assert.True(t, out[1].Failed())
	assert.Nil(t, out[1].Result)
	assert.Contains(t, out[1].Error, "NOT_FOUND")

	assert.Equal(t, "1", out[2].ID)
	assert.True(t, out[2].Result.Comparison.IsMatch())

	assert.Equal(t, CheckSummary{Total: 3, Matched: 1, Mismatched: 1, Failed: 1}, SummarizeChecks(out))
}

func TestCheckManyEmpty(t *testing.T) {
	e := newEnv(t)
	out := e.service(t).CheckMany(context.Background(), nil, nil)
	assert.Empty(t, out)
	assert.NotNil(t, out)
}

func TestFixManyIsolatesFailures(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "1", widget, widgetDoc(2))
	e.seed(t, "2", widget, nil)
	s := e.service(t)

	out := s.FixMany(context.Background(), []string{"1", "2"}, nil)

	require.Len(t, out, 2)
	assert.False(t, out[0].Failed())
	assert.Equal(t, state.Int(5), out[0].Record.Get("stock"))
	assert.True(t, out[1].Failed())
	assert.Nil(t, out[1].Record)
	assert.Equal(t, FixSummary{Total: 2, Fixed: 1, Failed: 1}, SummarizeFixes(out))
}

// countingGateway tracks concurrent FindByID calls.
type countingGateway struct {
	readmodel.Gateway
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (g *countingGateway) FindByID(ctx context.Context, id string) (state.Object, bool, error) {
	n := g.inFlight.Add(1)
	defer g.inFlight.Add(-1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return g.Gateway.FindByID(ctx, id)
}

func TestCheckManyBoundsConcurrency(t *testing.T) {
	e := newEnv(t)
	ids := []string{"1", "2", "3", "4", "5", "6", "7", "8"}
	for _, id := range ids {
		e.seed(t, id, widget, widgetDoc(5))
	}
	gw := &countingGateway{Gateway: e.rm}
	m := e.module()
	m.ReadModel = gw
	deps := e.deps
	deps.Concurrency = 2

	s, err := New(m, deps)
	require.NoError(t, err)

	out := s.CheckMany(context.Background(), ids, nil)

	assert.Len(t, out, len(ids))
	assert.LessOrEqual(t, gw.peak.Load(), int32(2))
}

// panickingGateway panics for one id.
type panickingGateway struct {
	readmodel.Gateway
	id string
}

func (g panickingGateway) FindByID(ctx context.Context, id string) (state.Object, bool, error) {
	if id == g.id {
		panic("corrupt record")
	}
	return g.Gateway.FindByID(ctx, id)
}

func TestCheckManyRecoversPanics(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "1", widget, widgetDoc(5))
	e.seed(t, "2", widget, widgetDoc(5))
	m := e.module()
	m.ReadModel = panickingGateway{Gateway: e.rm, id: "1"}
	s, err := New(m, e.deps)
	require.NoError(t, err)

	out := s.CheckMany(context.Background(), []string{"1", "2"}, nil)

	assert.Contains(t, out[0].Error, "panic: corrupt record")
	assert.False(t, out[1].Failed())
}

func TestCheckAllUsesFilter(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "1", widget, widgetDoc(5))
	e.seed(t, "2", itemCreated{Name: "Gadget", Price: 3, Stock: 1}, state.Object{"name": state.String("Gadget")})
	s := e.service(t)
	ctx := context.Background()

	all, err := s.CheckAll(ctx, nil, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "1", all[0].ID)
	assert.Equal(t, "2", all[1].ID)

	filtered, err := s.CheckAll(ctx, readmodel.Filter{"name": "Gadget"}, nil)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "2", filtered[0].ID)
}

func TestCheckAllRejectsBadFilter(t *testing.T) {
	e := newEnv(t)
	s := e.service(t)

	_, err := s.CheckAll(context.Background(), readmodel.Filter{"tags": []any{"a"}}, nil)

	require.Error(t, err)
	assert.True(t, apperrors.IsInvalidInput(err))
}

func TestFixAllRepairsEveryRecord(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "1", widget, widgetDoc(1))
	e.seed(t, "2", widget, widgetDoc(2))
	s := e.service(t)
	ctx := context.Background()

	out, err := s.FixAll(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, FixSummary{Total: 2, Fixed: 2}, SummarizeFixes(out))

	checks, err := s.CheckAll(ctx, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, CheckSummary{Total: 2, Matched: 2}, SummarizeChecks(checks))
}

func TestCheckRangeRejectsInvertedRange(t *testing.T) {
	e := newEnv(t)
	s := e.service(t)
	now := time.Now()

	_, err := s.CheckRange(context.Background(), now, now.Add(-time.Hour), nil)

	assert.True(t, apperrors.IsInvalidInput(err))
}

func TestCheckRangeAndFixRange(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "1", widget, widgetDoc(1))
	s := e.service(t)
	ctx := context.Background()
	start := time.Now().Add(-time.Hour)
	end := time.Now().Add(time.Hour)

	checks, err := s.CheckRange(ctx, start, end, []string{"stock"})
	require.NoError(t, err)
	require.Len(t, checks, 1)
	assert.False(t, checks[0].Result.Comparison.IsMatch())

	fixes, err := s.FixRange(ctx, start, end, []string{"stock"})
	require.NoError(t, err)
	require.Len(t, fixes, 1)
	assert.False(t, fixes[0].Failed())

	none, err := s.CheckRange(ctx, end.Add(time.Hour), end.Add(2*time.Hour), nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}
