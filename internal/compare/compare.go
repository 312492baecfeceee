package compare

import (
	"strconv"

	"github.com/roach88/recon/internal/state"
)

// Comparator diffs comparable states. It holds no state and is safe for
// concurrent use.
type Comparator struct{}

// New returns a Comparator.
func New() Comparator { return Comparator{} }

// Compare diffs expected against actual for entity id. Neither input is
// modified.
func (Comparator) Compare(id string, expected, actual state.Object) Result {
	return Compare(id, expected, actual)
}

// Compare diffs expected against actual for entity id.
//
// Deeply equal states yield Match. Otherwise every differing leaf becomes one
// Discrepancy. Paths join object keys with "." and use the element index for
// arrays ("tags.1"). Where one side is an object or array and the other is
// not, the whole subtree is reported once at that path.
func Compare(id string, expected, actual state.Object) Result {
	if state.Equal(expected, actual) {
		return Match(id)
	}
	var out []Discrepancy
	diffObjects("", expected, actual, &out)
	return Mismatch(id, out)
}

// Diff returns the leaf discrepancies between two values, rooted at path.
func Diff(path string, expected, actual state.Value) []Discrepancy {
	var out []Discrepancy
	diffValues(path, expected, actual, &out)
	return out
}

func diffValues(path string, expected, actual state.Value, out *[]Discrepancy) {
	if state.Equal(expected, actual) {
		return
	}
	switch ev := expected.(type) {
	case state.Object:
		if av, ok := actual.(state.Object); ok {
			diffObjects(path, ev, av, out)
			return
		}
	case state.Array:
		if av, ok := actual.(state.Array); ok {
			diffArrays(path, ev, av, out)
			return
		}
	}
	*out = append(*out, Discrepancy{Field: path, Expected: orAbsent(expected), Actual: orAbsent(actual)})
}

func diffObjects(path string, expected, actual state.Object, out *[]Discrepancy) {
	union := make(state.Object, len(expected)+len(actual))
	for k := range expected {
		union[k] = state.Null{}
	}
	for k := range actual {
		union[k] = state.Null{}
	}
	for _, k := range union.SortedKeys() {
		diffValues(join(path, k), expected.Get(k), actual.Get(k), out)
	}
}

func diffArrays(path string, expected, actual state.Array, out *[]Discrepancy) {
	n := max(len(expected), len(actual))
	for i := 0; i < n; i++ {
		var e, a state.Value = state.Absent, state.Absent
		if i < len(expected) {
			e = expected[i]
		}
		if i < len(actual) {
			a = actual[i]
		}
		diffValues(join(path, strconv.Itoa(i)), e, a, out)
	}
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func orAbsent(v state.Value) state.Value {
	if v == nil {
		return state.Absent
	}
	return v
}
