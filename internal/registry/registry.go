// Package registry holds the reconciliation modules known to a process and
// exposes the operation surface by module name.
package registry

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/roach88/recon/internal/aggregate"
	"github.com/roach88/recon/internal/apperrors"
	"github.com/roach88/recon/internal/readmodel"
	"github.com/roach88/recon/internal/reconcile"
	"github.com/roach88/recon/internal/state"
)

// Info describes a registered module.
type Info struct {
	Name          string   `json:"name"`
	AggregateType string   `json:"aggregateType"`
	Collection    string   `json:"collection"`
	EventTypes    []string `json:"eventTypes"`
	Fields        []string `json:"fields"`
}

type entry struct {
	info       Info
	reconciler reconcile.Reconciler
}

// Registry maps module names to reconcilers. Registration normally happens at
// startup; lookups are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
	order   []string
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds a module. Names must be unique.
func (r *Registry) Register(info Info, rec reconcile.Reconciler) error {
	if info.Name == "" {
		return apperrors.InvalidConfig("module name is required")
	}
	if rec == nil {
		return apperrors.InvalidConfig("module %q: reconciler is required", info.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[info.Name]; exists {
		return apperrors.DuplicateModule(info.Name)
	}
	if info.Fields == nil {
		info.Fields = rec.ComparableFields()
	}
	info.EventTypes = slices.Clone(info.EventTypes)
	slices.Sort(info.EventTypes)
	r.entries[info.Name] = entry{info: info, reconciler: rec}
	r.order = append(r.order, info.Name)
	return nil
}

// MustRegister is Register for startup code; it panics on error.
func (r *Registry) MustRegister(info Info, rec reconcile.Reconciler) {
	if err := r.Register(info, rec); err != nil {
		panic(err)
	}
}

// Install builds the orchestrator for m and registers it.
func Install[A aggregate.Aggregate](r *Registry, m reconcile.Module[A], deps reconcile.Deps) error {
	svc, err := reconcile.New(m, deps)
	if err != nil {
		return err
	}
	return r.Register(Info{
		Name:          m.Name,
		AggregateType: m.AggregateType,
		Collection:    m.Collection,
		EventTypes:    m.Transformers.EventTypes(),
	}, svc)
}

// All returns module info in registration order.
func (r *Registry) All() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name].info)
	}
	return out
}

// Info returns the info of one module.
func (r *Registry) Info(name string) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e.info, ok
}

// Service returns the reconciler registered under name.
func (r *Registry) Service(name string) (reconcile.Reconciler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e.reconciler, ok
}

func (r *Registry) lookup(name string) (reconcile.Reconciler, error) {
	rec, ok := r.Service(name)
	if !ok {
		return nil, apperrors.ModuleNotFound(name)
	}
	return rec, nil
}

// Modules lists every registered module.
func (r *Registry) Modules() []Info { return r.All() }

// Fields returns the comparable fields of a module.
func (r *Registry) Fields(name string) ([]string, error) {
	rec, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	return rec.ComparableFields(), nil
}

// CheckOne checks one id of module name.
func (r *Registry) CheckOne(ctx context.Context, name, id string, fields []string) (reconcile.CheckResult, error) {
	rec, err := r.lookup(name)
	if err != nil {
		return reconcile.CheckResult{}, err
	}
	return rec.CheckOne(ctx, id, fields)
}

// FixOne fixes one id of module name.
func (r *Registry) FixOne(ctx context.Context, name, id string, fields []string) (state.Object, error) {
	rec, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	return rec.FixOne(ctx, id, fields)
}

// CheckMany checks ids of module name.
func (r *Registry) CheckMany(ctx context.Context, name string, ids, fields []string) ([]reconcile.CheckOutcome, error) {
	rec, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	return rec.CheckMany(ctx, ids, fields), nil
}

// FixMany fixes ids of module name.
func (r *Registry) FixMany(ctx context.Context, name string, ids, fields []string) ([]reconcile.FixOutcome, error) {
	rec, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	return rec.FixMany(ctx, ids, fields), nil
}

// CheckAll checks every id of module name matching filter.
func (r *Registry) CheckAll(ctx context.Context, name string, filter readmodel.Filter, fields []string) ([]reconcile.CheckOutcome, error) {
	rec, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	return rec.CheckAll(ctx, filter, fields)
}

// FixAll fixes every id of module name matching filter.
func (r *Registry) FixAll(ctx context.Context, name string, filter readmodel.Filter, fields []string) ([]reconcile.FixOutcome, error) {
	rec, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	return rec.FixAll(ctx, filter, fields)
}

// CheckRange checks ids of module name written within [start, end].
func (r *Registry) CheckRange(ctx context.Context, name string, start, end time.Time, fields []string) ([]reconcile.CheckOutcome, error) {
	rec, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	return rec.CheckRange(ctx, start, end, fields)
}

// FixRange fixes ids of module name written within [start, end].
func (r *Registry) FixRange(ctx context.Context, name string, start, end time.Time, fields []string) ([]reconcile.FixOutcome, error) {
	rec, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	return rec.FixRange(ctx, start, end, fields)
}
