package state

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
)

// FromAny converts a Go value into a Value.
//
// JSON-shaped inputs (maps, slices, scalars, json.Number, json.RawMessage)
// are converted directly. Any other type, such as an aggregate struct, is
// marshaled with encoding/json and decoded back, so its json tags decide the
// field names.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		if val == Absent {
			return nil, fmt.Errorf("absent is not a storable value")
		}
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int8:
		return Int(val), nil
	case int16:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint:
		return fromUint(uint64(val)), nil
	case uint8:
		return Int(val), nil
	case uint16:
		return Int(val), nil
	case uint32:
		return Int(val), nil
	case uint64:
		return fromUint(val), nil
	case float32:
		return fromFloat(float64(val))
	case float64:
		return fromFloat(val)
	case json.Number:
		return fromNumber(val)
	case json.RawMessage:
		return FromJSON(val)
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			sv, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = sv
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			sv, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			obj[k] = sv
		}
		return obj, nil
	case []string:
		arr := make(Array, len(val))
		for i, s := range val {
			arr[i] = String(s)
		}
		return arr, nil
	default:
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
			return Null{}, nil
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal %T: %w", v, err)
		}
		return FromJSON(data)
	}
}

// ObjectFromAny converts v and requires the result to be an Object.
func ObjectFromAny(v any) (Object, error) {
	sv, err := FromAny(v)
	if err != nil {
		return nil, err
	}
	obj, ok := sv.(Object)
	if !ok {
		return nil, fmt.Errorf("expected object, got %s", Kind(sv))
	}
	return obj, nil
}

// FromJSON decodes a JSON document into a Value. Numbers are kept exact:
// integral literals become Int, everything else Float.
func FromJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("decode json: trailing data after value")
	}
	return FromAny(raw)
}

// ObjectFromJSON decodes a JSON document that must be an object.
func ObjectFromJSON(data []byte) (Object, error) {
	v, err := FromJSON(data)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(Object)
	if !ok {
		return nil, fmt.Errorf("expected JSON object, got %s", Kind(v))
	}
	return obj, nil
}

// ToAny converts a Value back into plain Go values (map[string]any, []any,
// string, int64, float64, bool, nil). Absent converts to nil.
func ToAny(v Value) any {
	switch val := v.(type) {
	case nil, absent, Null:
		return nil
	case String:
		return string(val)
	case Int:
		return int64(val)
	case Float:
		return float64(val)
	case Bool:
		return bool(val)
	case Array:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToAny(elem)
		}
		return out
	case Object:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = ToAny(elem)
		}
		return out
	default:
		return nil
	}
}

func fromNumber(n json.Number) (Value, error) {
	if i, err := n.Int64(); err == nil {
		return Int(i), nil
	}
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q: %w", n, err)
	}
	return fromFloat(f)
}

func fromFloat(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("non-finite number %v", f)
	}
	return Float(f), nil
}

func fromUint(u uint64) Value {
	if u > math.MaxInt64 {
		return Float(float64(u))
	}
	return Int(u)
}
