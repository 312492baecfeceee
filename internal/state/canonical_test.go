package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    Value
		expected string
	}{
		{"string", String("hello"), `"hello"`},
		{"empty string", String(""), `""`},
		{"int", Int(42), "42"},
		{"negative int", Int(-100), "-100"},
		{"integral float", Float(3), "3"},
		{"fraction", Float(9.99), "9.99"},
		{"null", Null{}, "null"},
		{"bool", Bool(false), "false"},
		{"empty array", Array{}, "[]"},
		{"empty object", Object{}, "{}"},
		{"sorted keys", Object{"b": Int(1), "a": Int(2)}, `{"a":2,"b":1}`},
		{"nested", Object{"o": Array{Int(1), Object{"z": Null{}, "y": Bool(true)}}}, `{"o":[1,{"y":true,"z":null}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(out))
		})
	}
}

func TestMarshalCanonicalEscaping(t *testing.T) {
	out, err := MarshalCanonical(String("a\"b\\c\n<&> \x01"))
	require.NoError(t, err)
	assert.Equal(t, "\"a\\\"b\\\\c\\n<&> \\u0001\"", string(out))
}

func TestMarshalCanonicalNFC(t *testing.T) {
	a, err := MarshalCanonical(String("cafe\u0301"))
	require.NoError(t, err)
	assert.Equal(t, "\"caf\u00e9\"", string(a))
}

func TestMarshalCanonicalRejectsAbsent(t *testing.T) {
	_, err := MarshalCanonical(Object{"x": Absent})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "absent")
}

func TestFingerprintStable(t *testing.T) {
	a, err := Fingerprint(Object{"price": Int(10), "name": String("Widget")})
	require.NoError(t, err)
	b, err := Fingerprint(Object{"name": String("Widget"), "price": Float(10)})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	c, err := Fingerprint(Object{"name": String("Widget"), "price": Int(11)})
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}
