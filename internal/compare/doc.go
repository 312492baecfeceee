// Package compare diffs an expected comparable state (rebuilt from events)
// against an actual one (read from the read model).
//
// The expected side is always the write model. A Result is either a match
// with no discrepancies or a mismatch listing one Discrepancy per differing
// leaf, addressed by a dot-separated path.
package compare
