package render

import (
	"fmt"
	"html"
	"math"
	"sort"
	"strings"
	"time"
	"unicode"

	xhtml "golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"
)

// FilterFunc transforms a value. args are the filter's call arguments,
// already evaluated.
type FilterFunc func(v any, args []any) (any, error)

// builtinFilters is the default filter set. Engines copy it so registering
// a custom filter never mutates the shared table.
var builtinFilters = map[string]FilterFunc{
	"escape":     filterEscape,
	"e":          filterEscape,
	"raw":        filterRaw,
	"upper":      filterUpper,
	"lower":      filterLower,
	"title":      filterTitle,
	"capitalize": filterCapitalize,
	"trim":       filterTrim,
	"length":     filterLength,
	"join":       filterJoin,
	"split":      filterSplit,
	"first":      filterFirst,
	"last":       filterLast,
	"default":    filterDefault,
	"date":       filterDate,
	"slug":       filterSlug,
	"striptags":  filterStriptags,
	"abs":        filterAbs,
	"round":      filterRound,
	"keys":       filterKeys,
	"sort":       filterSort,
	"reverse":    filterReverse,
}

func argCount(name string, args []any, min, max int) error {
	if len(args) < min || len(args) > max {
		return fmt.Errorf("filter %q takes %d to %d arguments, got %d", name, min, max, len(args))
	}
	return nil
}

func filterEscape(v any, args []any) (any, error) {
	if s, ok := v.(Safe); ok {
		return s, nil
	}
	return Safe(html.EscapeString(Stringify(v))), nil
}

func filterRaw(v any, args []any) (any, error) {
	return Safe(Stringify(v)), nil
}

func filterUpper(v any, args []any) (any, error) {
	return strings.ToUpper(Stringify(v)), nil
}

func filterLower(v any, args []any) (any, error) {
	return strings.ToLower(Stringify(v)), nil
}

func filterTitle(v any, args []any) (any, error) {
	prev := ' '
	return strings.Map(func(r rune) rune {
		mapped := r
		if unicode.IsSpace(prev) {
			mapped = unicode.ToTitle(r)
		}
		prev = r
		return mapped
	}, strings.ToLower(Stringify(v))), nil
}

func filterCapitalize(v any, args []any) (any, error) {
	s := strings.ToLower(Stringify(v))
	runes := []rune(s)
	if len(runes) == 0 {
		return s, nil
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes), nil
}

func filterTrim(v any, args []any) (any, error) {
	if err := argCount("trim", args, 0, 1); err != nil {
		return nil, err
	}
	s := Stringify(v)
	if len(args) == 1 {
		return strings.Trim(s, Stringify(args[0])), nil
	}
	return strings.TrimSpace(s), nil
}

func filterLength(v any, args []any) (any, error) {
	n, ok := Length(v)
	if !ok {
		return nil, fmt.Errorf("value of type %T has no length", v)
	}
	return int64(n), nil
}

func filterJoin(v any, args []any) (any, error) {
	if err := argCount("join", args, 0, 1); err != nil {
		return nil, err
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("join expects a sequence, got %T", v)
	}
	sep := ""
	if len(args) == 1 {
		sep = Stringify(args[0])
	}
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = Stringify(item)
	}
	return strings.Join(parts, sep), nil
}

func filterSplit(v any, args []any) (any, error) {
	if err := argCount("split", args, 1, 1); err != nil {
		return nil, err
	}
	parts := strings.Split(Stringify(v), Stringify(args[0]))
	out := make([]any, len(parts))
	for i, p := range parts {
		out[i] = p
	}
	return out, nil
}

func filterFirst(v any, args []any) (any, error) {
	switch x := v.(type) {
	case []any:
		if len(x) == 0 {
			return nil, nil
		}
		return x[0], nil
	default:
		runes := []rune(Stringify(v))
		if len(runes) == 0 {
			return "", nil
		}
		return string(runes[0]), nil
	}
}

func filterLast(v any, args []any) (any, error) {
	switch x := v.(type) {
	case []any:
		if len(x) == 0 {
			return nil, nil
		}
		return x[len(x)-1], nil
	default:
		runes := []rune(Stringify(v))
		if len(runes) == 0 {
			return "", nil
		}
		return string(runes[len(runes)-1]), nil
	}
}

func filterDefault(v any, args []any) (any, error) {
	if err := argCount("default", args, 1, 1); err != nil {
		return nil, err
	}
	if Truthy(v) {
		return v, nil
	}
	return args[0], nil
}

// filterDate formats time.Time values (or RFC 3339 strings) with a Go
// reference layout. Without an argument it uses 2006-01-02.
func filterDate(v any, args []any) (any, error) {
	if err := argCount("date", args, 0, 1); err != nil {
		return nil, err
	}
	layout := "2006-01-02"
	if len(args) == 1 {
		layout = Stringify(args[0])
	}

	var t time.Time
	switch x := v.(type) {
	case time.Time:
		t = x
	case string:
		parsed, err := time.Parse(time.RFC3339, x)
		if err != nil {
			parsed, err = time.Parse("2006-01-02", x)
			if err != nil {
				return nil, fmt.Errorf("date: cannot parse %q", x)
			}
		}
		t = parsed
	default:
		return nil, fmt.Errorf("date expects a time or date string, got %T", v)
	}
	return t.Format(layout), nil
}

// Slugify derives a URL-safe slug: NFKD-normalize, strip combining marks,
// lowercase, and collapse everything else to single hyphens.
func Slugify(s string) string {
	out, _ := filterSlug(s, nil)
	return out.(string)
}

func filterSlug(v any, args []any) (any, error) {
	decomposed := norm.NFKD.String(Stringify(v))

	var sb strings.Builder
	pendingHyphen := false
	for _, r := range decomposed {
		switch {
		case unicode.Is(unicode.Mn, r):
			// Combining mark left over from decomposition.
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingHyphen && sb.Len() > 0 {
				sb.WriteByte('-')
			}
			pendingHyphen = false
			sb.WriteRune(unicode.ToLower(r))
		default:
			pendingHyphen = true
		}
	}
	return sb.String(), nil
}

// filterStriptags removes HTML markup, keeping text content.
func filterStriptags(v any, args []any) (any, error) {
	tokenizer := xhtml.NewTokenizer(strings.NewReader(Stringify(v)))
	var sb strings.Builder
	for {
		tt := tokenizer.Next()
		if tt == xhtml.ErrorToken {
			// io.EOF terminates; a malformed fragment still yields
			// the text collected so far.
			return sb.String(), nil
		}
		if tt == xhtml.TextToken {
			sb.Write(tokenizer.Text())
		}
	}
}

func filterAbs(v any, args []any) (any, error) {
	n, ok := toNumber(v)
	if !ok {
		return nil, fmt.Errorf("abs expects a number, got %T", v)
	}
	switch x := n.(type) {
	case int64:
		if x < 0 {
			return -x, nil
		}
		return x, nil
	case float64:
		return math.Abs(x), nil
	}
	return v, nil
}

func filterRound(v any, args []any) (any, error) {
	if err := argCount("round", args, 0, 1); err != nil {
		return nil, err
	}
	n, ok := toNumber(v)
	if !ok {
		return nil, fmt.Errorf("round expects a number, got %T", v)
	}
	f := promote(n)
	places := int64(0)
	if len(args) == 1 {
		p, ok := toNumber(args[0])
		if !ok {
			return nil, fmt.Errorf("round precision must be a number")
		}
		places, _ = p.(int64)
	}
	scale := math.Pow(10, float64(places))
	rounded := math.Round(f*scale) / scale
	if places == 0 {
		return int64(rounded), nil
	}
	return rounded, nil
}

func filterKeys(v any, args []any) (any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("keys expects a hash, got %T", v)
	}
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	out := make([]any, len(names))
	for i, k := range names {
		out[i] = k
	}
	return out, nil
}

func filterSort(v any, args []any) (any, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("sort expects a sequence, got %T", v)
	}
	out := make([]any, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		ni, iok := toNumber(out[i])
		nj, jok := toNumber(out[j])
		if iok && jok {
			return promote(ni) < promote(nj)
		}
		return Stringify(out[i]) < Stringify(out[j])
	})
	return out, nil
}

func filterReverse(v any, args []any) (any, error) {
	switch x := v.(type) {
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[len(x)-1-i] = item
		}
		return out, nil
	default:
		runes := []rune(Stringify(v))
		for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
			runes[i], runes[j] = runes[j], runes[i]
		}
		return string(runes), nil
	}
}
