// Package reconcile checks and repairs read-model records against the state
// rebuilt from the event log.
//
// A Service serves one entity type (a Module). For every id it rebuilds the
// aggregate, projects it into comparable state, reads the read-model record
// and diffs the two; fixing overwrites the selected top-level fields of the
// record with the projected values.
//
// Batch operations (CheckMany, FixMany and the scans built on them) never fail
// as a whole because of one id: each id gets its own slot holding either a
// result or an error message, in input order. Batches run on a bounded worker
// pool and every remote call carries its own timeout.
package reconcile
