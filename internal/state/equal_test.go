package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"same strings", String("a"), String("a"), true},
		{"different strings", String("a"), String("b"), false},
		{"int and float same number", Int(10), Float(10), true},
		{"int and float different", Int(10), Float(10.5), false},
		{"null and null", Null{}, Null{}, true},
		{"null and absent", Null{}, Absent, false},
		{"absent and absent", Absent, Absent, true},
		{"string and number", String("1"), Int(1), false},
		{"arrays in order", Array{Int(1), Int(2)}, Array{Int(1), Int(2)}, true},
		{"arrays out of order", Array{Int(1), Int(2)}, Array{Int(2), Int(1)}, false},
		{"arrays of different length", Array{Int(1)}, Array{Int(1), Int(1)}, false},
		{"objects ignore key order", Object{"a": Int(1), "b": Int(2)}, Object{"b": Int(2), "a": Int(1)}, true},
		{"objects with extra key", Object{"a": Int(1)}, Object{"a": Int(1), "b": Null{}}, false},
		{"nested objects", Object{"o": Object{"x": Bool(true)}}, Object{"o": Object{"x": Bool(true)}}, true},
		{"object and array", Object{}, Array{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.a, tt.b))
			assert.Equal(t, tt.want, Equal(tt.b, tt.a), "equality must be symmetric")
		})
	}
}

func TestEqualNormalizesUnicode(t *testing.T) {
	// "é" precomposed vs "e" + combining acute accent.
	assert.True(t, Equal(String("caf\u00e9"), String("cafe\u0301")))
}
