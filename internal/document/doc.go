// Package document builds entity types from declarative rules instead of Go
// code. Each event type maps to a rule that sets, copies, increments or
// replaces top-level fields of a generic document aggregate.
//
// A rule is applied in a fixed order: Replace, then Set, then Const, then
// Increment, then Unset. Payload paths use dots to reach nested keys.
package document
