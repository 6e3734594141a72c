// Package render evaluates parsed templates against a variable context.
//
// The value model is deliberately small: strings, bools, int64, float64,
// []any, map[string]any, time.Time, and nil. Coercion (truthiness, numeric
// promotion, stringification) follows Twig so ported templates behave the
// same. Output expressions are HTML-escaped unless marked safe via the raw
// filter.
package render

import (
	"fmt"
	"sort"
	"strconv"
	"time"
)

// Safe marks a string as pre-escaped; the renderer writes it verbatim.
type Safe string

// Truthy implements Twig truthiness: false, nil, zero numbers, empty
// strings, and empty collections are false.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case Safe:
		return x != ""
	case int64:
		return x != 0
	case float64:
		return x != 0
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	case time.Time:
		return !x.IsZero()
	default:
		if n, ok := toNumber(v); ok {
			return Truthy(n)
		}
		return true
	}
}

// normalize maps Go integer and float widths onto the engine's int64/float64
// model. Values outside the model pass through untouched.
func normalize(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x)
	case float32:
		return float64(x)
	default:
		return v
	}
}

// toNumber reports v as int64 or float64 if it is numeric.
func toNumber(v any) (any, bool) {
	switch x := normalize(v).(type) {
	case int64, float64:
		return x, true
	case bool:
		if x {
			return int64(1), true
		}
		return int64(0), true
	default:
		return nil, false
	}
}

// Stringify renders a value the way {{ }} output does.
func Stringify(v any) string {
	switch x := normalize(v).(type) {
	case nil:
		return ""
	case string:
		return x
	case Safe:
		return string(x)
	case bool:
		if x {
			return "1"
		}
		return ""
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", x)
	}
}

// Equal compares two values with numeric promotion, so 1 == 1.0.
func Equal(a, b any) bool {
	an, aok := toNumber(a)
	bn, bok := toNumber(b)
	if aok && bok {
		af, bf := promote(an), promote(bn)
		return af == bf
	}
	as, aok := asString(a)
	bs, bok := asString(b)
	if aok && bok {
		return as == bs
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func promote(n any) float64 {
	switch x := n.(type) {
	case int64:
		return float64(x)
	case float64:
		return x
	}
	return 0
}

func asString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case Safe:
		return string(x), true
	}
	return "", false
}

// Length returns the Twig length of a value and whether it has one.
func Length(v any) (int, bool) {
	switch x := v.(type) {
	case string:
		return len([]rune(x)), true
	case Safe:
		return len([]rune(x)), true
	case []any:
		return len(x), true
	case map[string]any:
		return len(x), true
	default:
		return 0, false
	}
}

// Iterate adapts a value into an ordered key/value sequence for {% for %}.
// Maps iterate in sorted key order so rendering is deterministic.
func Iterate(v any) ([]any, []any, bool) {
	switch x := v.(type) {
	case []any:
		keys := make([]any, len(x))
		for i := range x {
			keys[i] = int64(i)
		}
		return keys, x, true
	case map[string]any:
		names := make([]string, 0, len(x))
		for k := range x {
			names = append(names, k)
		}
		sort.Strings(names)
		keys := make([]any, len(names))
		values := make([]any, len(names))
		for i, k := range names {
			keys[i] = k
			values[i] = x[k]
		}
		return keys, values, true
	case string:
		runes := []rune(x)
		keys := make([]any, len(runes))
		values := make([]any, len(runes))
		for i, r := range runes {
			keys[i] = int64(i)
			values[i] = string(r)
		}
		return keys, values, true
	default:
		return nil, nil, false
	}
}
