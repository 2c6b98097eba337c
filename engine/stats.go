package engine

import "cmp"

// pick returns the smaller (wantMin) or larger of the current and candidate values. Either
// may be nil; values of different types keep the current one.
func pick(current, candidate any, wantMin bool) any {
	if candidate == nil {
		return current
	}
	if current == nil {
		return candidate
	}

	c := compareValues(candidate, current)
	if (wantMin && c < 0) || (!wantMin && c > 0) {
		return candidate
	}

	return current
}

func compareValues(a, b any) int {
	switch x := a.(type) {
	case int8:
		return compareAs(x, b)
	case int16:
		return compareAs(x, b)
	case int32:
		return compareAs(x, b)
	case int64:
		return compareAs(x, b)
	case uint8:
		return compareAs(x, b)
	case uint16:
		return compareAs(x, b)
	case uint32:
		return compareAs(x, b)
	case uint64:
		return compareAs(x, b)
	case float32:
		return compareAs(x, b)
	case float64:
		return compareAs(x, b)
	case string:
		return compareAs(x, b)
	default:
		return 0
	}
}

func compareAs[T cmp.Ordered](a T, b any) int {
	y, ok := b.(T)
	if !ok {
		return 0
	}

	return cmp.Compare(a, y)
}
