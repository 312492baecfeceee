package state

import (
	"slices"
	"unicode/utf16"
)

// Value is a sealed interface over the JSON-shaped values a comparable state
// may contain. Only the types in this package implement it.
type Value interface {
	stateValue()
}

// Null represents a JSON null. It is a present value, distinct from Absent.
type Null struct{}

func (Null) stateValue() {}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// String is a string value.
type String string

func (String) stateValue() {}

// Int is an integral number.
type Int int64

func (Int) stateValue() {}

// Float is a non-integral number (or an integral one that overflowed int64).
type Float float64

func (Float) stateValue() {}

// Bool is a boolean value.
type Bool bool

func (Bool) stateValue() {}

// Array is an ordered list of values.
type Array []Value

func (Array) stateValue() {}

// Object maps field names to values.
// Use SortedKeys() for deterministic iteration.
type Object map[string]Value

func (Object) stateValue() {}

type absent struct{}

func (absent) stateValue() {}

// MarshalJSON renders Absent as null when it is serialized by accident.
// Callers that need to distinguish it omit the field instead.
func (absent) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// Absent marks a key that is not present on one side of a comparison.
var Absent Value = absent{}

// IsAbsent reports whether v is the Absent marker (or a nil interface).
func IsAbsent(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(absent)
	return ok
}

// Kind names the JSON kind of a value, used in diagnostics.
func Kind(v Value) string {
	switch v.(type) {
	case nil, absent:
		return "absent"
	case Null:
		return "null"
	case String:
		return "string"
	case Int, Float:
		return "number"
	case Bool:
		return "bool"
	case Array:
		return "array"
	case Object:
		return "object"
	default:
		return "unknown"
	}
}

// Get returns the value stored at key, or Absent.
func (obj Object) Get(key string) Value {
	v, ok := obj[key]
	if !ok {
		return Absent
	}
	return v
}

// SortedKeys returns keys in RFC 8785 order (UTF-16 code units).
// Go's string comparison uses UTF-8 bytes, which orders some keys differently.
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// Pick returns a new object holding only the listed fields that exist in obj.
// Fields not present in obj are skipped, not added as null.
func Pick(obj Object, fields []string) Object {
	out := make(Object, len(fields))
	for _, f := range fields {
		if v, ok := obj[f]; ok {
			out[f] = v
		}
	}
	return out
}

// Merge returns a copy of base with every top-level key of patch overwritten.
// A Null in patch is stored as null; it does not delete the key.
func Merge(base, patch Object) Object {
	out := make(Object, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}
