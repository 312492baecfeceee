package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recon/internal/notify"
	"github.com/roach88/recon/internal/state"
)

func mustParse(t *testing.T, yaml string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte(yaml))
	require.NoError(t, err)
	return s
}

func TestRun_Product42Passes(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/product_42_check.yaml")
	require.NoError(t, err)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Errors)
	require.Len(t, result.Trace, 2)
	assert.Equal(t, int64(1), result.Trace[0].Seq)
	assert.Equal(t, int64(2), result.Trace[1].Seq)
	assert.Equal(t, 1, result.Notifications[notify.KindDriftDetected])

	records := result.State["product"]
	require.Contains(t, records, "42")
	assert.True(t, state.Equal(state.Int(4), records["42"].Get("stock")))
}

func TestRun_ExpectationFailuresAreReported(t *testing.T) {
	s := mustParse(t, `
name: wrong_expectations
description: every expectation is wrong
events:
  - {stream: product-1, type: ProductCreated, payload: {name: A, price: 1, stock: 1}}
documents:
  - {id: "1", doc: {name: A, price: 1, stock: 2, status: created}}
steps:
  - op: check
    id: "1"
    expect: {match: true}
  - op: check
    id: "1"
    expect: {match: false, discrepancies: [name]}
  - op: fix
    id: "1"
    expect: {record: {stock: 9}}
  - op: checkMany
    ids: ["1"]
    expect: {summary: {matched: 0}}
`)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 4)
	assert.Contains(t, result.Errors[0], "steps[0] check: expected match=true, got match=false")
	assert.Contains(t, result.Errors[1], "expected discrepancies [name], got [stock]")
	assert.Contains(t, result.Errors[2], "record differs in stock")
	assert.Contains(t, result.Errors[3], "expected summary matched=0, got 1")
}

func TestRun_UnexpectedErrorIsReported(t *testing.T) {
	s := mustParse(t, `
name: unexpected_error
description: checking an id without events fails the step
steps:
  - op: check
    id: nope
`)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "unexpected error NOT_FOUND")
	assert.Equal(t, "NOT_FOUND", result.Trace[0].Error)
}

func TestRun_ExpectedErrorMismatch(t *testing.T) {
	s := mustParse(t, `
name: error_mismatch
description: expected error code differs
events:
  - {stream: product-1, type: ProductCreated, payload: {name: A, price: 1, stock: 1}}
documents:
  - {id: "1", doc: {name: A}}
steps:
  - op: fix
    id: "1"
    expect: {error: NOT_FOUND}
`)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected error NOT_FOUND, got none")
}

func TestRun_UnknownModuleStep(t *testing.T) {
	s := mustParse(t, `
name: unknown_module
description: a step naming an unregistered module fails
steps:
  - op: checkAll
    module: invoices
    expect: {summary: {total: 0}}
`)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Equal(t, "MODULE_NOT_FOUND", result.Trace[0].Error)
}

func TestRun_CollectionSeed(t *testing.T) {
	s := mustParse(t, `
name: collection_seed
description: documents can name a collection directly
events:
  - {stream: product-7, type: Created, payload: {name: G, price: 1, stock: 1}}
documents:
  - {collection: products, id: "7", doc: {name: G, price: 1, stock: 1, status: created}}
steps:
  - op: check
    id: "7"
    expect: {match: true}
`)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_InvalidModuleConfig(t *testing.T) {
	s := mustParse(t, `
name: bad_module
description: a module without rules cannot be installed
modules:
  - name: empty
steps:
  - op: checkAll
`)

	_, err := Run(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenario bad_module")
}

func TestRun_Deterministic(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/batch_isolation.yaml")
	require.NoError(t, err)

	first, err := Run(context.Background(), s)
	require.NoError(t, err)
	second, err := Run(context.Background(), s)
	require.NoError(t, err)

	a, err := (&TraceSnapshot{ScenarioName: s.Name, Trace: first.Trace}).Canonical()
	require.NoError(t, err)
	b, err := (&TraceSnapshot{ScenarioName: s.Name, Trace: second.Trace}).Canonical()
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}
