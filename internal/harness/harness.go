package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/recon/internal/app"
	"github.com/roach88/recon/internal/apperrors"
	"github.com/roach88/recon/internal/config"
	"github.com/roach88/recon/internal/eventlog"
	"github.com/roach88/recon/internal/notify"
	"github.com/roach88/recon/internal/readmodel"
	rmsqlite "github.com/roach88/recon/internal/readmodel/sqlite"
	"github.com/roach88/recon/internal/reconcile"
	"github.com/roach88/recon/internal/state"
	"github.com/roach88/recon/internal/testutil"
)

// memoryPath opens SQLite databases that live only as long as the scenario.
const memoryPath = ":memory:"

// codeUnknown marks errors that carry no application error code.
const codeUnknown = "UNKNOWN"

// Harness is the scenario execution engine.
type Harness struct {
	scenario *Scenario
	app      *app.App
	recorder *recorder
	logger   *slog.Logger
}

// Option configures Run.
type Option func(*runOptions)

type runOptions struct {
	logger *slog.Logger
}

// WithLogger routes store and reconciliation logs to logger. Logs are
// discarded by default.
func WithLogger(logger *slog.Logger) Option {
	return func(o *runOptions) { o.logger = logger }
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against fresh in-memory databases for isolation.
//
// Execution flow:
// 1. Open the stores and register the scenario's modules
// 2. Append seed events and write seed documents
// 3. Execute steps, validating expect clauses
// 4. Capture the final read model and evaluate assertions
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	o := runOptions{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}

	cfg := config.Config{
		EventLog:  config.EventLogConfig{Path: memoryPath},
		ReadModel: config.ReadModelConfig{Driver: config.DriverSQLite, Path: memoryPath},
		Snapshots: config.SnapshotConfig{Driver: scenario.Snapshots, Every: 1},
		Modules:   scenario.modules(),
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	// Separate clocks keep read-model timestamps independent of how many
	// events were seeded.
	eventClock := testutil.NewDeterministicClock()
	docClock := testutil.NewDeterministicClock()
	rec := &recorder{}

	a, err := app.New(ctx, cfg, o.logger,
		app.WithPublisher(rec),
		app.WithEventLogOptions(
			eventlog.WithIDGenerator(eventlog.NewSequenceGenerator("evt")),
			eventlog.WithClock(eventClock.Now),
		),
		app.WithReadModelOptions(rmsqlite.WithClock(docClock.Now)),
	)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}
	defer a.Close()

	h := &Harness{scenario: scenario, app: a, recorder: rec, logger: o.logger}

	if err := h.seed(ctx); err != nil {
		return nil, fmt.Errorf("failed to seed scenario: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		h.executeStep(ctx, i, step, result)
	}

	if err := h.captureState(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to capture final state: %w", err)
	}
	result.Notifications = rec.counts()

	actx := &AssertionContext{App: a, Scenario: scenario, Ctx: ctx}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}
	return result, nil
}

func (h *Harness) seed(ctx context.Context) error {
	for i, ev := range h.scenario.Events {
		if _, err := h.app.Events.Append(ctx, ev.Stream, eventlog.Draft{Type: ev.Type, Payload: ev.Payload}); err != nil {
			return fmt.Errorf("events[%d]: %w", i, err)
		}
	}
	for i, doc := range h.scenario.Documents {
		coll, err := h.collection(doc)
		if err != nil {
			return fmt.Errorf("documents[%d]: %w", i, err)
		}
		obj, err := state.ObjectFromAny(doc.Doc)
		if err != nil {
			return fmt.Errorf("documents[%d]: %w", i, err)
		}
		if err := coll.Put(ctx, doc.ID, obj); err != nil {
			return fmt.Errorf("documents[%d]: %w", i, err)
		}
	}
	return nil
}

func (h *Harness) collection(doc DocumentSeed) (readmodel.Collection, error) {
	if doc.Collection != "" {
		return h.app.Collection(doc.Collection), nil
	}
	return h.app.ModuleCollection(h.scenario.moduleOf(doc.Module))
}

func (h *Harness) executeStep(ctx context.Context, index int, step Step, result *Result) {
	module := h.scenario.moduleOf(step.Module)
	ev := TraceEvent{Op: step.Op, Module: module, ID: step.ID, Fields: step.Fields}
	reg := h.app.Registry
	prefix := fmt.Sprintf("steps[%d] %s", index, step.Op)

	switch step.Op {
	case OpCheck:
		res, err := reg.CheckOne(ctx, module, step.ID, step.Fields)
		if err != nil {
			ev.Error = errorCode(err)
			break
		}
		match := res.Comparison.IsMatch()
		ev.Match = &match
		ev.Discrepancies = res.Comparison.Discrepancies()

	case OpFix:
		rec, err := reg.FixOne(ctx, module, step.ID, step.Fields)
		if err != nil {
			ev.Error = errorCode(err)
			break
		}
		ev.Record = rec

	case OpCheckMany, OpCheckAll, OpCheckRange:
		outcomes, err := h.checkBatch(ctx, module, step)
		if err != nil {
			ev.Error = errorCode(err)
			break
		}
		ev.Summary = checkSummary(outcomes)
		ev.Items = checkItems(outcomes)

	case OpFixMany, OpFixAll, OpFixRange:
		outcomes, err := h.fixBatch(ctx, module, step)
		if err != nil {
			ev.Error = errorCode(err)
			break
		}
		ev.Summary = fixSummary(outcomes)
		ev.Items = fixItems(outcomes)
	}

	for _, msg := range validateExpect(step.Expect, ev) {
		result.AddError(prefix + ": " + msg)
	}
	if step.Expect == nil || step.Expect.Error == "" {
		if ev.Error != "" {
			result.AddError(fmt.Sprintf("%s: unexpected error %s", prefix, ev.Error))
		}
	}
	result.AddTrace(ev)
}

func (h *Harness) checkBatch(ctx context.Context, module string, step Step) ([]reconcile.CheckOutcome, error) {
	reg := h.app.Registry
	switch step.Op {
	case OpCheckMany:
		return reg.CheckMany(ctx, module, step.IDs, step.Fields)
	case OpCheckAll:
		return reg.CheckAll(ctx, module, readmodel.Filter(step.Filter), step.Fields)
	default:
		since, until := stepRange(step)
		return reg.CheckRange(ctx, module, since, until, step.Fields)
	}
}

func (h *Harness) fixBatch(ctx context.Context, module string, step Step) ([]reconcile.FixOutcome, error) {
	reg := h.app.Registry
	switch step.Op {
	case OpFixMany:
		return reg.FixMany(ctx, module, step.IDs, step.Fields)
	case OpFixAll:
		return reg.FixAll(ctx, module, readmodel.Filter(step.Filter), step.Fields)
	default:
		since, until := stepRange(step)
		return reg.FixRange(ctx, module, since, until, step.Fields)
	}
}

// stepRange parses bounds already checked by validateStep.
func stepRange(step Step) (time.Time, time.Time) {
	since, _ := time.Parse(time.RFC3339, step.Since)
	until, _ := time.Parse(time.RFC3339, step.Until)
	return since, until
}

func (h *Harness) captureState(ctx context.Context, result *Result) error {
	for _, info := range h.app.Registry.All() {
		coll, err := h.app.ModuleCollection(info.Name)
		if err != nil {
			return err
		}
		ids, err := coll.AllIDs(ctx)
		if err != nil {
			return err
		}
		records := make(map[string]state.Object, len(ids))
		for _, id := range ids {
			doc, ok, err := coll.FindByID(ctx, id)
			if err != nil {
				return err
			}
			if ok {
				records[id] = doc
			}
		}
		result.State[info.Name] = records
	}
	return nil
}

func errorCode(err error) string {
	if code := apperrors.CodeOf(err); code != "" {
		return string(code)
	}
	return codeUnknown
}

func checkSummary(outcomes []reconcile.CheckOutcome) map[string]int {
	s := reconcile.SummarizeChecks(outcomes)
	return map[string]int{"total": s.Total, "matched": s.Matched, "mismatched": s.Mismatched, "failed": s.Failed}
}

func fixSummary(outcomes []reconcile.FixOutcome) map[string]int {
	s := reconcile.SummarizeFixes(outcomes)
	return map[string]int{"total": s.Total, "fixed": s.Fixed, "failed": s.Failed}
}

func checkItems(outcomes []reconcile.CheckOutcome) []TraceItem {
	items := make([]TraceItem, len(outcomes))
	for i, o := range outcomes {
		items[i] = TraceItem{ID: o.ID, Error: o.Error}
		if o.Result != nil {
			match := o.Result.Comparison.IsMatch()
			items[i].Match = &match
			items[i].Discrepancies = o.Result.Comparison.Discrepancies()
		}
	}
	return items
}

func fixItems(outcomes []reconcile.FixOutcome) []TraceItem {
	items := make([]TraceItem, len(outcomes))
	for i, o := range outcomes {
		items[i] = TraceItem{ID: o.ID, Record: o.Record, Error: o.Error}
	}
	return items
}

// recorder is the scenario's notification publisher.
type recorder struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (r *recorder) Publish(_ context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recorder) Close() error { return nil }

func (r *recorder) counts() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int)
	for _, n := range r.sent {
		out[n.Kind]++
	}
	return out
}

