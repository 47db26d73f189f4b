package dispatch

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ExtractInts converts the first n values to int32. It accepts every Go
// integer type and integral float64 values, as produced by JSON decoding,
// within the int32 range. A list shorter than n, or any other element,
// yields an error wrapping ErrBadArgument.
func ExtractInts(values []any, n int) ([]int32, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative length %d", ErrBadArgument, n)
	}
	if len(values) < n {
		return nil, fmt.Errorf("%w: got %d elements, want %d", ErrBadArgument, len(values), n)
	}
	out := make([]int32, n)
	for i, v := range values[:n] {
		x, ok := toInt64(v)
		if !ok {
			return nil, fmt.Errorf("%w: element %d: %T is not an integer", ErrBadArgument, i, v)
		}
		if x < math.MinInt32 || x > math.MaxInt32 {
			return nil, fmt.Errorf("%w: element %d: %d out of int32 range", ErrBadArgument, i, x)
		}
		out[i] = int32(x)
	}
	return out, nil
}

func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint:
		return clampUint(uint64(x))
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		return clampUint(x)
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) || x < math.MinInt64 || x >= math.MaxInt64 {
			return 0, false
		}
		return int64(x), true
	default:
		return 0, false
	}
}

// clampUint maps values above MaxInt64 to MaxInt64; they are rejected by
// the int32 range check either way.
func clampUint(x uint64) (int64, bool) {
	if x > math.MaxInt64 {
		return math.MaxInt64, true
	}
	return int64(x), true
}

// ParseInts parses decimal integers. Errors wrap ErrBadArgument.
func ParseInts(fields []string) ([]int32, error) {
	out := make([]int32, 0, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseInt(strings.TrimSpace(f), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: element %d: %w", ErrBadArgument, i, err)
		}
		out = append(out, int32(v))
	}
	return out, nil
}
