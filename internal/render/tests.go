package render

import "fmt"

// TestFunc implements an "is" test. The defined test is resolved by the
// renderer itself because it needs to observe name resolution, not a value.
type TestFunc func(v any) (bool, error)

var builtinTests = map[string]TestFunc{
	"empty":    testEmpty,
	"iterable": testIterable,
	"null":     testNull,
	"odd":      testOdd,
	"even":     testEven,
}

func testEmpty(v any) (bool, error) {
	if v == nil {
		return true, nil
	}
	if n, ok := Length(v); ok {
		return n == 0, nil
	}
	return !Truthy(v), nil
}

func testIterable(v any) (bool, error) {
	switch v.(type) {
	case []any, map[string]any:
		return true, nil
	default:
		return false, nil
	}
}

func testNull(v any) (bool, error) {
	return v == nil, nil
}

func testOdd(v any) (bool, error) {
	n, ok := toNumber(v)
	if !ok {
		return false, fmt.Errorf("odd expects a number, got %T", v)
	}
	i, ok := n.(int64)
	if !ok {
		return false, fmt.Errorf("odd expects an integer")
	}
	return i%2 != 0, nil
}

func testEven(v any) (bool, error) {
	n, ok := toNumber(v)
	if !ok {
		return false, fmt.Errorf("even expects a number, got %T", v)
	}
	i, ok := n.(int64)
	if !ok {
		return false, fmt.Errorf("even expects an integer")
	}
	return i%2 == 0, nil
}
