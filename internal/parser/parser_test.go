package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osierhq/osier/internal/ast"
	"github.com/osierhq/osier/internal/errors"
)

func TestParse_TextAndOutput(t *testing.T) {
	tpl, err := Parse("t", "Hello, {{ name }}!")
	require.NoError(t, err)
	require.Len(t, tpl.Body, 3)

	text, ok := tpl.Body[0].(*ast.Text)
	require.True(t, ok)
	assert.Equal(t, "Hello, ", text.Content)

	out, ok := tpl.Body[1].(*ast.Output)
	require.True(t, ok)
	name, ok := out.Expr.(*ast.Name)
	require.True(t, ok)
	assert.Equal(t, "name", name.Ident)
}

func TestParse_BinaryPrecedence(t *testing.T) {
	tpl, err := Parse("t", "{{ 1 + 2 * 3 }}")
	require.NoError(t, err)

	out := tpl.Body[0].(*ast.Output)
	add, ok := out.Expr.(*ast.Binary)
	require.True(t, ok)
	assert.Equal(t, "+", add.Op)

	mul, ok := add.Right.(*ast.Binary)
	require.True(t, ok)
	assert.Equal(t, "*", mul.Op)
}

func TestParse_BoolPrecedence(t *testing.T) {
	// "a or b and c" groups as "a or (b and c)".
	tpl, err := Parse("t", "{{ a or b and c }}")
	require.NoError(t, err)

	or := tpl.Body[0].(*ast.Output).Expr.(*ast.Binary)
	assert.Equal(t, "or", or.Op)
	and, ok := or.Right.(*ast.Binary)
	require.True(t, ok)
	assert.Equal(t, "and", and.Op)
}

func TestParse_FilterChain(t *testing.T) {
	tpl, err := Parse("t", "{{ title|trim|upper }}")
	require.NoError(t, err)

	upper := tpl.Body[0].(*ast.Output).Expr.(*ast.Filter)
	assert.Equal(t, "upper", upper.Name)
	trim, ok := upper.X.(*ast.Filter)
	require.True(t, ok)
	assert.Equal(t, "trim", trim.Name)
}

func TestParse_FilterArgs(t *testing.T) {
	tpl, err := Parse("t", "{{ tags|join(', ') }}")
	require.NoError(t, err)

	join := tpl.Body[0].(*ast.Output).Expr.(*ast.Filter)
	assert.Equal(t, "join", join.Name)
	require.Len(t, join.Args, 1)
	lit := join.Args[0].(*ast.StringLit)
	assert.Equal(t, ", ", lit.Value)
}

func TestParse_AttrAndIndex(t *testing.T) {
	tpl, err := Parse("t", `{{ post.meta["date"] }}`)
	require.NoError(t, err)

	idx := tpl.Body[0].(*ast.Output).Expr.(*ast.Index)
	attr, ok := idx.Target.(*ast.GetAttr)
	require.True(t, ok)
	assert.Equal(t, "meta", attr.Attr)
	key := idx.Key.(*ast.StringLit)
	assert.Equal(t, "date", key.Value)
}

func TestParse_IfChain(t *testing.T) {
	tpl, err := Parse("t", "{% if a %}1{% elseif b %}2{% else %}3{% endif %}")
	require.NoError(t, err)

	node := tpl.Body[0].(*ast.If)
	require.Len(t, node.Branches, 2)
	require.Len(t, node.Else, 1)
	assert.Equal(t, "1", node.Branches[0].Body[0].(*ast.Text).Content)
	assert.Equal(t, "2", node.Branches[1].Body[0].(*ast.Text).Content)
	assert.Equal(t, "3", node.Else[0].(*ast.Text).Content)
}

func TestParse_ForKeyValue(t *testing.T) {
	tpl, err := Parse("t", "{% for k, v in items %}{{ k }}{% else %}none{% endfor %}")
	require.NoError(t, err)

	node := tpl.Body[0].(*ast.For)
	assert.Equal(t, "k", node.KeyVar)
	assert.Equal(t, "v", node.ValueVar)
	require.Len(t, node.Else, 1)
}

func TestParse_Set(t *testing.T) {
	tpl, err := Parse("t", "{% set total = price * 2 %}")
	require.NoError(t, err)

	node := tpl.Body[0].(*ast.Set)
	assert.Equal(t, "total", node.Name)
	_, ok := node.Value.(*ast.Binary)
	assert.True(t, ok)
}

func TestParse_Include(t *testing.T) {
	tpl, err := Parse("t", `{% include "header.twig" with {'title': t} only %}`)
	require.NoError(t, err)

	node := tpl.Body[0].(*ast.Include)
	lit := node.Name.(*ast.StringLit)
	assert.Equal(t, "header.twig", lit.Value)
	require.NotNil(t, node.With)
	assert.True(t, node.Only)
}

func TestParse_Ternary(t *testing.T) {
	tpl, err := Parse("t", "{{ ok ? 'yes' : 'no' }}")
	require.NoError(t, err)

	cond := tpl.Body[0].(*ast.Output).Expr.(*ast.Cond)
	assert.Equal(t, "yes", cond.Then.(*ast.StringLit).Value)
	assert.Equal(t, "no", cond.Else.(*ast.StringLit).Value)
}

func TestParse_Test(t *testing.T) {
	tpl, err := Parse("t", "{{ x is defined }}{{ y is not empty }}")
	require.NoError(t, err)

	first := tpl.Body[0].(*ast.Output).Expr.(*ast.Test)
	assert.Equal(t, "defined", first.Name)
	assert.False(t, first.Negated)

	second := tpl.Body[1].(*ast.Output).Expr.(*ast.Test)
	assert.Equal(t, "empty", second.Name)
	assert.True(t, second.Negated)
}

func TestParse_ArrayAndHash(t *testing.T) {
	tpl, err := Parse("t", "{{ [1, 2, 3] }}{{ {'a': 1, b: 2} }}")
	require.NoError(t, err)

	arr := tpl.Body[0].(*ast.Output).Expr.(*ast.Array)
	assert.Len(t, arr.Items, 3)

	hash := tpl.Body[1].(*ast.Output).Expr.(*ast.Hash)
	require.Len(t, hash.Keys, 2)
	assert.Equal(t, "a", hash.Keys[0].(*ast.StringLit).Value)
	assert.Equal(t, "b", hash.Keys[1].(*ast.StringLit).Value)
}

func TestParse_NullCoalesce(t *testing.T) {
	tpl, err := Parse("t", "{{ a.b ?? 'fallback' }}")
	require.NoError(t, err)

	bin := tpl.Body[0].(*ast.Output).Expr.(*ast.Binary)
	assert.Equal(t, "??", bin.Op)
}

func TestParse_Verbatim(t *testing.T) {
	tpl, err := Parse("t", "{% verbatim %}{{ untouched }}{% endverbatim %}")
	require.NoError(t, err)

	require.Len(t, tpl.Body, 1)
	text := tpl.Body[0].(*ast.Text)
	assert.Equal(t, "{{ untouched }}", text.Content)
}

func TestParse_WhitespaceTrim(t *testing.T) {
	tpl, err := Parse("t", "a   {{- x -}}   b")
	require.NoError(t, err)

	require.Len(t, tpl.Body, 3)
	assert.Equal(t, "a", tpl.Body[0].(*ast.Text).Content)
	assert.Equal(t, "b", tpl.Body[2].(*ast.Text).Content)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"unclosed if", "{% if x %}body", "unclosed if block"},
		{"unclosed for", "{% for x in xs %}body", "unclosed for block"},
		{"stray endif", "{% endif %}", "outside its block"},
		{"stray else", "text {% else %}", "outside its block"},
		{"unknown tag", "{% widget %}", "unknown tag"},
		{"missing in", "{% for x of xs %}{% endfor %}", `expected "in"`},
		{"bad set", "{% set 1 = x %}", "expected name"},
		{"keyword as name", "{{ endfor }}", "unexpected keyword"},
		{"dangling operator", "{{ a + }}", "unexpected"},
		{"unclosed paren", "{{ (a }}", `expected ")"`},
		{"unclosed bracket", "{{ items[0 }}", `expected "]"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("bad.twig", tt.src)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)

			var te *errors.TemplateError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, "bad.twig", te.Template)
		})
	}
}

func TestParse_UnclosedBlockReportsOpeningPosition(t *testing.T) {
	_, err := Parse("t", "line\n{% if x %}never closed")
	require.Error(t, err)

	var te *errors.TemplateError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 2, te.Line)
}
