// Package state provides the comparable state model shared by reconstruction,
// projection and comparison.
//
// A comparable state is a plain JSON-shaped document: an Object of named
// Values. Values are a sealed set (Null, String, Int, Float, Bool, Array,
// Object). Absent is a distinct marker for "key not present" and is never
// stored inside an Object.
//
// Key design constraints:
//   - Object iteration goes through SortedKeys for deterministic output
//   - Int and Float compare equal when they denote the same number
//   - Strings compare after NFC normalization
//   - state imports nothing internal
package state
