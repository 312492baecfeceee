package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValueSealed(t *testing.T) {
	var _ Value = Null{}
	var _ Value = String("s")
	var _ Value = Int(1)
	var _ Value = Float(1.5)
	var _ Value = Bool(true)
	var _ Value = Array{String("a")}
	var _ Value = Object{"k": Int(1)}
}

func TestSortedKeysRFC8785Order(t *testing.T) {
	obj := Object{"a": Int(1), "A": Int(2), "aa": Int(3), "aA": Int(4), "Aa": Int(5), "AA": Int(6)}
	assert.Equal(t, []string{"A", "AA", "Aa", "a", "aA", "aa"}, obj.SortedKeys())
}

func TestSortedKeysSurrogatePairs(t *testing.T) {
	// U+1F600 encodes as surrogates 0xD83D 0xDE00, which sort before U+FFFD
	// in UTF-16 even though UTF-8 byte order says otherwise.
	obj := Object{"\uFFFD": Int(1), "\U0001F600": Int(2)}
	assert.Equal(t, []string{"\U0001F600", "\uFFFD"}, obj.SortedKeys())
}

func TestGetReturnsAbsentForMissingKey(t *testing.T) {
	obj := Object{"present": Null{}}
	assert.Equal(t, Null{}, obj.Get("present"))
	assert.True(t, IsAbsent(obj.Get("missing")))
	assert.False(t, IsAbsent(obj.Get("present")))
}

func TestPick(t *testing.T) {
	obj := Object{"name": String("Widget"), "price": Int(10), "stock": Int(3)}

	picked := Pick(obj, []string{"price", "stock", "unknown"})

	assert.Equal(t, Object{"price": Int(10), "stock": Int(3)}, picked)
	assert.Len(t, obj, 3, "source must not be mutated")
}

func TestMergeOverwritesTopLevelKeys(t *testing.T) {
	base := Object{"a": Int(1), "b": Object{"x": Int(1)}}
	patch := Object{"b": Object{"y": Int(2)}, "c": Null{}}

	merged := Merge(base, patch)

	assert.Equal(t, Object{"a": Int(1), "b": Object{"y": Int(2)}, "c": Null{}}, merged)
	assert.Equal(t, Object{"x": Int(1)}, base["b"])
}

func TestKind(t *testing.T) {
	assert.Equal(t, "absent", Kind(Absent))
	assert.Equal(t, "null", Kind(Null{}))
	assert.Equal(t, "number", Kind(Float(1)))
	assert.Equal(t, "object", Kind(Object{}))
}
