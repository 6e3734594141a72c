package render

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osierhq/osier/internal/ast"
	"github.com/osierhq/osier/internal/errors"
	"github.com/osierhq/osier/internal/parser"
)

func render(t *testing.T, src string, vars map[string]any) string {
	t.Helper()
	tpl, err := parser.Parse("test.twig", src)
	require.NoError(t, err)
	out, err := NewEngine(EngineConfig{}).Render(tpl, vars)
	require.NoError(t, err)
	return out
}

func renderErr(t *testing.T, src string, vars map[string]any, cfg EngineConfig) error {
	t.Helper()
	tpl, err := parser.Parse("test.twig", src)
	require.NoError(t, err)
	_, err = NewEngine(cfg).Render(tpl, vars)
	require.Error(t, err)
	return err
}

func TestRender_Basics(t *testing.T) {
	tests := []struct {
		name string
		src  string
		vars map[string]any
		want string
	}{
		{"text", "hello", nil, "hello"},
		{"variable", "{{ name }}", map[string]any{"name": "ada"}, "ada"},
		{"int math", "{{ 1 + 2 * 3 }}", nil, "7"},
		{"float math", "{{ 1.5 + 1.5 }}", nil, "3"},
		{"int division", "{{ 6 / 3 }}", nil, "2"},
		{"float division", "{{ 7 / 2 }}", nil, "3.5"},
		{"modulo", "{{ 7 % 3 }}", nil, "1"},
		{"concat", "{{ 'a' ~ 'b' ~ 1 }}", nil, "ab1"},
		{"negation", "{{ -x }}", map[string]any{"x": 3}, "-3"},
		{"comparison", "{{ 2 > 1 }}", nil, "1"},
		{"bool output false", "{{ 1 > 2 }}", nil, ""},
		{"and short circuit", "{{ false and missing }}", nil, ""},
		{"or", "{{ false or 'x' }}", nil, "1"},
		{"not", "{{ not '' }}", nil, "1"},
		{"ternary", "{{ x > 1 ? 'big' : 'small' }}", map[string]any{"x": 5}, "big"},
		{"in list", "{{ 2 in [1, 2, 3] }}", nil, "1"},
		{"in string", "{{ 'ell' in 'hello' }}", nil, "1"},
		{"null coalesce hit", "{{ a ?? 'fallback' }}", map[string]any{"a": "set"}, "set"},
		{"null coalesce miss", "{{ a ?? 'fallback' }}", nil, "fallback"},
		{"index", "{{ items[1] }}", map[string]any{"items": []any{"a", "b"}}, "b"},
		{"negative index", "{{ items[-1] }}", map[string]any{"items": []any{"a", "b"}}, "b"},
		{"attr", "{{ post.title }}", map[string]any{"post": map[string]any{"title": "Hi"}}, "Hi"},
		{"undefined lenient", "a{{ missing }}b", nil, "ab"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, render(t, tt.src, tt.vars))
		})
	}
}

func TestRender_AutoEscape(t *testing.T) {
	vars := map[string]any{"evil": `<script>alert("x")</script>`}

	escaped := render(t, "{{ evil }}", vars)
	assert.NotContains(t, escaped, "<script>")
	assert.Contains(t, escaped, "&lt;script&gt;")

	raw := render(t, "{{ evil|raw }}", vars)
	assert.Contains(t, raw, "<script>")
}

func TestRender_AutoEscapeDisabled(t *testing.T) {
	tpl, err := parser.Parse("t", "{{ v }}")
	require.NoError(t, err)

	out, err := NewEngine(EngineConfig{DisableAutoescape: true}).Render(tpl, map[string]any{"v": "<b>"})
	require.NoError(t, err)
	assert.Equal(t, "<b>", out)
}

func TestRender_If(t *testing.T) {
	src := "{% if n > 10 %}big{% elseif n > 5 %}medium{% else %}small{% endif %}"

	assert.Equal(t, "big", render(t, src, map[string]any{"n": 11}))
	assert.Equal(t, "medium", render(t, src, map[string]any{"n": 7}))
	assert.Equal(t, "small", render(t, src, map[string]any{"n": 1}))
}

func TestRender_For(t *testing.T) {
	src := "{% for item in items %}{{ loop.index }}:{{ item }} {% endfor %}"
	out := render(t, src, map[string]any{"items": []any{"a", "b", "c"}})
	assert.Equal(t, "1:a 2:b 3:c ", out)
}

func TestRender_ForKeyValue(t *testing.T) {
	src := "{% for k, v in meta %}{{ k }}={{ v }};{% endfor %}"
	out := render(t, src, map[string]any{"meta": map[string]any{"b": 2, "a": 1}})
	// Map iteration is sorted by key for deterministic output.
	assert.Equal(t, "a=1;b=2;", out)
}

func TestRender_ForElse(t *testing.T) {
	src := "{% for x in items %}{{ x }}{% else %}empty{% endfor %}"
	assert.Equal(t, "empty", render(t, src, map[string]any{"items": []any{}}))
}

func TestRender_ForLoopFlags(t *testing.T) {
	src := "{% for x in items %}{% if loop.first %}[{% endif %}{{ x }}{% if loop.last %}]{% else %},{% endif %}{% endfor %}"
	out := render(t, src, map[string]any{"items": []any{1, 2, 3}})
	assert.Equal(t, "[1,2,3]", out)
}

func TestRender_ForScopeDoesNotLeak(t *testing.T) {
	src := "{% for x in items %}{{ x }}{% endfor %}{{ x is defined ? 'leaked' : 'clean' }}"
	out := render(t, src, map[string]any{"items": []any{1}})
	assert.Equal(t, "1clean", out)
}

func TestRender_Set(t *testing.T) {
	out := render(t, "{% set greeting = 'hi ' ~ who %}{{ greeting }}", map[string]any{"who": "there"})
	assert.Equal(t, "hi there", out)
}

func TestRender_Filters(t *testing.T) {
	tests := []struct {
		name string
		src  string
		vars map[string]any
		want string
	}{
		{"upper", "{{ 'abc'|upper }}", nil, "ABC"},
		{"lower", "{{ 'ABC'|lower }}", nil, "abc"},
		{"title", "{{ 'the rust book'|title }}", nil, "The Rust Book"},
		{"capitalize", "{{ 'hELLO'|capitalize }}", nil, "Hello"},
		{"trim", "{{ '  x  '|trim }}", nil, "x"},
		{"trim chars", "{{ 'xxaxx'|trim('x') }}", nil, "a"},
		{"length string", "{{ 'héllo'|length }}", nil, "5"},
		{"length list", "{{ [1,2,3]|length }}", nil, "3"},
		{"join", "{{ ['a','b']|join(', ') }}", nil, "a, b"},
		{"split", "{{ 'a,b,c'|split(',')|length }}", nil, "3"},
		{"first", "{{ [5,6]|first }}", nil, "5"},
		{"last", "{{ 'abc'|last }}", nil, "c"},
		{"default used", "{{ missing|default('d') }}", nil, "d"},
		{"default skipped", "{{ 'v'|default('d') }}", nil, "v"},
		{"abs", "{{ (-4)|abs }}", nil, "4"},
		{"round", "{{ 2.7|round }}", nil, "3"},
		{"round places", "{{ 2.678|round(2) }}", nil, "2.68"},
		{"keys", "{{ {'b':1,'a':2}|keys|join(',') }}", nil, "a,b"},
		{"sort", "{{ [3,1,2]|sort|join('') }}", nil, "123"},
		{"reverse list", "{{ [1,2,3]|reverse|join('') }}", nil, "321"},
		{"reverse string", "{{ 'abc'|reverse }}", nil, "cba"},
		{"slug ascii", "{{ 'Hello, World!'|slug }}", nil, "hello-world"},
		{"slug accents", "{{ 'Crème Brûlée'|slug }}", nil, "creme-brulee"},
		{"striptags", "{{ '<p>Hi <b>there</b></p>'|striptags }}", nil, "Hi there"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, render(t, tt.src, tt.vars))
		})
	}
}

func TestRender_DateFilter(t *testing.T) {
	when := time.Date(2024, 3, 9, 15, 0, 0, 0, time.UTC)
	out := render(t, "{{ published|date('02 Jan 2006') }}", map[string]any{"published": when})
	assert.Equal(t, "09 Mar 2024", out)

	out = render(t, "{{ '2024-03-09'|date('2006/01/02') }}", nil)
	assert.Equal(t, "2024/03/09", out)
}

func TestRender_Tests(t *testing.T) {
	tests := []struct {
		name string
		src  string
		vars map[string]any
		want string
	}{
		{"defined true", "{{ x is defined ? 'y' : 'n' }}", map[string]any{"x": 0}, "y"},
		{"defined false", "{{ x is defined ? 'y' : 'n' }}", nil, "n"},
		{"is not defined", "{{ x is not defined ? 'y' : 'n' }}", nil, "y"},
		{"empty string", "{{ '' is empty ? 'y' : 'n' }}", nil, "y"},
		{"empty list", "{{ [] is empty ? 'y' : 'n' }}", nil, "y"},
		{"non-empty", "{{ 'x' is empty ? 'y' : 'n' }}", nil, "n"},
		{"null", "{{ null is null ? 'y' : 'n' }}", nil, "y"},
		{"odd", "{{ 3 is odd ? 'y' : 'n' }}", nil, "y"},
		{"even", "{{ 3 is even ? 'y' : 'n' }}", nil, "n"},
		{"iterable", "{{ [1] is iterable ? 'y' : 'n' }}", nil, "y"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, render(t, tt.src, tt.vars))
		})
	}
}

func TestRender_StrictMode(t *testing.T) {
	err := renderErr(t, "{{ missing }}", nil, EngineConfig{Strict: true})
	assert.Contains(t, err.Error(), `undefined variable "missing"`)

	var te *errors.TemplateError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "test.twig", te.Template)

	// ?? and default stay usable in strict mode.
	tpl, perr := parser.Parse("t", "{{ missing ?? 'a' }}{{ gone|default('b') }}")
	require.NoError(t, perr)
	out, rerr := NewEngine(EngineConfig{Strict: true}).Render(tpl, nil)
	require.NoError(t, rerr)
	assert.Equal(t, "ab", out)
}

func TestRender_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"division by zero", "{{ 1 / 0 }}", "division by zero"},
		{"modulo by zero", "{{ 1 % 0 }}", "modulo by zero"},
		{"iterate scalar", "{% for x in 42 %}{% endfor %}", "cannot iterate"},
		{"unknown filter", "{{ x|frobnicate }}", `unknown filter "frobnicate"`},
		{"unknown test", "{{ x is purple }}", `unknown test "purple"`},
		{"bad arithmetic", "{{ 'a' + 1 }}", "expects numbers"},
		{"join non-sequence", "{{ 42|join(',') }}", "join expects a sequence"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := renderErr(t, tt.src, nil, EngineConfig{})
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRender_Include(t *testing.T) {
	partials := map[string]string{
		"header.twig": "<h1>{{ title }}</h1>",
		"badge.twig":  "[{{ label }}]",
	}
	loader := LoaderFunc(func(name string) (*ast.Template, error) {
		src, ok := partials[name]
		if !ok {
			return nil, fmt.Errorf("no template %q", name)
		}
		return parser.Parse(name, src)
	})
	engine := NewEngine(EngineConfig{Loader: loader})

	tpl, err := parser.Parse("page", `{% include "header.twig" %}{% include "badge.twig" with {'label': 'new'} only %}`)
	require.NoError(t, err)

	out, err := engine.Render(tpl, map[string]any{"title": "Drafts"})
	require.NoError(t, err)
	assert.Equal(t, "<h1>Drafts</h1>[new]", out)
}

func TestRender_IncludeOnlyIsolatesContext(t *testing.T) {
	loader := LoaderFunc(func(name string) (*ast.Template, error) {
		return parser.Parse(name, "{{ secret is defined ? 'visible' : 'hidden' }}")
	})
	engine := NewEngine(EngineConfig{Loader: loader})

	tpl, err := parser.Parse("page", `{% include "p" only %}`)
	require.NoError(t, err)

	out, err := engine.Render(tpl, map[string]any{"secret": "x"})
	require.NoError(t, err)
	assert.Equal(t, "hidden", out)
}

func TestRender_IncludeDepthLimit(t *testing.T) {
	loader := LoaderFunc(func(name string) (*ast.Template, error) {
		return parser.Parse(name, `{% include "self" %}`)
	})
	engine := NewEngine(EngineConfig{Loader: loader, MaxIncludeDepth: 4})

	tpl, err := parser.Parse("page", `{% include "self" %}`)
	require.NoError(t, err)

	_, err = engine.Render(tpl, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "include nesting exceeds 4")
}

func TestRender_IncludeMissingTemplate(t *testing.T) {
	loader := LoaderFunc(func(name string) (*ast.Template, error) {
		return nil, fmt.Errorf("not registered")
	})
	engine := NewEngine(EngineConfig{Loader: loader})

	tpl, err := parser.Parse("page", `{% include "gone.twig" %}`)
	require.NoError(t, err)

	_, err = engine.Render(tpl, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `include "gone.twig"`)
}

func TestRender_CustomFilter(t *testing.T) {
	engine := NewEngine(EngineConfig{})
	engine.RegisterFilter("shout", func(v any, args []any) (any, error) {
		return Stringify(v) + "!!", nil
	})

	tpl, err := parser.Parse("t", "{{ 'hey'|shout }}")
	require.NoError(t, err)
	out, err := engine.Render(tpl, nil)
	require.NoError(t, err)
	assert.Equal(t, "hey!!", out)
}

func TestRender_SafeSurvivesFilterChain(t *testing.T) {
	out := render(t, "{{ '<b>x</b>'|raw }}", nil)
	assert.Equal(t, "<b>x</b>", out)

	// escape on an already-safe value does not double-escape.
	out = render(t, "{{ '<b>'|escape|escape }}", nil)
	assert.Equal(t, "&lt;b&gt;", out)
}
