package lexer

import (
	"testing"

	"github.com/osierhq/osier/internal/token"
)

// FuzzTokenize verifies the lexer never panics, always terminates, and
// produces positioned errors for arbitrary input.
func FuzzTokenize(f *testing.F) {
	seeds := []string{
		"",
		"plain text",
		"{{ name }}",
		"{{ a.b['c'] | upper }}",
		"{% if x %}a{% elseif y %}b{% else %}c{% endif %}",
		"{% for k, v in items %}{{ loop.index }}{% endfor %}",
		"{% set x = 1 + 2 * 3 %}",
		"{# comment #}",
		"{% verbatim %}{{ untouched }}{% endverbatim %}",
		"{{- trimmed -}}",
		"{{ 'quote\\'d' ~ \"other\" }}",
		"{{",
		"{%",
		"{#",
		"{{ \"unterminated }}",
		"{{ 1.5 ?? null }}",
	}
	for _, seed := range seeds {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, src string) {
		tokens, err := Tokenize("fuzz.twig", src)
		if err != nil {
			return
		}
		if len(tokens) == 0 {
			t.Fatal("successful tokenize produced no tokens")
		}
		if tokens[len(tokens)-1].Kind != token.EOF {
			t.Fatalf("token stream not EOF-terminated: %v", tokens[len(tokens)-1])
		}
		for _, tok := range tokens {
			if tok.Line < 1 || tok.Column < 1 {
				t.Fatalf("token with invalid position: %+v", tok)
			}
		}
	})
}
