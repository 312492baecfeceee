package state

import "golang.org/x/text/unicode/norm"

// Equal reports whether a and b are deeply equal.
//
// Objects compare key-by-key regardless of insertion order, arrays compare
// element-by-element, Int and Float compare by numeric value, and strings
// compare after NFC normalization. Absent equals only Absent; Null equals
// only Null.
func Equal(a, b Value) bool {
	if IsAbsent(a) || IsAbsent(b) {
		return IsAbsent(a) && IsAbsent(b)
	}
	switch av := a.(type) {
	case Null:
		_, ok := b.(Null)
		return ok
	case String:
		bv, ok := b.(String)
		return ok && (av == bv || norm.NFC.String(string(av)) == norm.NFC.String(string(bv)))
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Int, Float:
		return numbersEqual(a, b)
	case Array:
		bv, ok := b.(Array)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Object:
		bv, ok := b.(Object)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			other, present := bv[k]
			if !present || !Equal(v, other) {
				return false
			}
		}
		return true
	}
	return false
}

func numbersEqual(a, b Value) bool {
	switch av := a.(type) {
	case Int:
		switch bv := b.(type) {
		case Int:
			return av == bv
		case Float:
			return float64(av) == float64(bv)
		}
	case Float:
		switch bv := b.(type) {
		case Int:
			return float64(av) == float64(bv)
		case Float:
			return av == bv
		}
	}
	return false
}
