// Package aggregate rebuilds authoritative entity state by replaying an event
// stream through a per-entity-type transformer table.
//
// Replay rules:
//   - the stream of entity id is "{aggregateType}-{id}", read in seq order
//   - events whose type starts with "$" are system events and are skipped
//   - events without a transformer are logged at warn level and skipped
//   - a replay that applies nothing is a not-found error
//
// Reconstruction is deterministic: the same stream always produces the same
// aggregate. Aggregates never leave this package except through the caller
// that requested them (or as a JSON snapshot).
package aggregate
