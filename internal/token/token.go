// Package token defines the lexical tokens of the template language.
package token

import "fmt"

// Kind identifies the class of a token.
type Kind int

const (
	// EOF marks the end of the token stream.
	EOF Kind = iota
	// Text is raw template text outside any delimiter.
	Text
	// OutputStart and OutputEnd delimit an output expression: {{ ... }}.
	OutputStart
	OutputEnd
	// TagStart and TagEnd delimit a tag: {% ... %}.
	TagStart
	TagEnd
	// Name is an identifier or keyword.
	Name
	// Number is an integer or float literal.
	Number
	// String is a quoted string literal (value holds the decoded text).
	String
	// Operator covers punctuation and operators inside delimiters.
	Operator
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case EOF:
		return "EOF"
	case Text:
		return "text"
	case OutputStart:
		return "{{"
	case OutputEnd:
		return "}}"
	case TagStart:
		return "{%"
	case TagEnd:
		return "%}"
	case Name:
		return "name"
	case Number:
		return "number"
	case String:
		return "string"
	case Operator:
		return "operator"
	default:
		return "unknown"
	}
}

// Token is a single lexical unit with its source position.
type Token struct {
	Kind  Kind
	Value string
	// Line and Column are 1-based and point at the token's first byte.
	Line   int
	Column int
	// TrimBefore and TrimAfter carry the whitespace-control modifiers
	// ({{- and -}}); they are only set on delimiter tokens.
	TrimBefore bool
	TrimAfter  bool
}

// String returns a compact description for diagnostics.
func (t Token) String() string {
	switch t.Kind {
	case Text, Name, Number, Operator:
		return fmt.Sprintf("%s %q", t.Kind, t.Value)
	case String:
		return fmt.Sprintf("string %q", t.Value)
	default:
		return t.Kind.String()
	}
}

// Is reports whether the token is an operator with the given text.
func (t Token) Is(op string) bool {
	return t.Kind == Operator && t.Value == op
}

// IsName reports whether the token is the given identifier or keyword.
func (t Token) IsName(name string) bool {
	return t.Kind == Name && t.Value == name
}

// Keywords reserved inside delimiters. They lex as Name tokens; the parser
// gives them meaning.
var Keywords = map[string]bool{
	"if":          true,
	"elseif":      true,
	"else":        true,
	"endif":       true,
	"for":         true,
	"in":          true,
	"endfor":      true,
	"set":         true,
	"include":     true,
	"with":        true,
	"only":        true,
	"verbatim":    true,
	"endverbatim": true,
	"not":         true,
	"and":         true,
	"or":          true,
	"is":          true,
	"true":        true,
	"false":       true,
	"null":        true,
}
