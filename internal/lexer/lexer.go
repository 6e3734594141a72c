// Package lexer implements the template tokenizer.
//
// The lexer is a hand-written scanner over the template source. It alternates
// between raw-text mode (everything up to the next {{, {%, or {# delimiter)
// and expression mode (names, numbers, strings, and operators inside
// delimiters). Comments ({# ... #}) are skipped entirely. Every token carries
// a 1-based line and column, and all failure modes (unterminated delimiters,
// strings, or comments) produce positioned errors.
package lexer

import (
	"strings"

	"github.com/osierhq/osier/internal/errors"
	"github.com/osierhq/osier/internal/token"
)

const (
	openOutput  = "{{"
	closeOutput = "}}"
	openTag     = "{%"
	closeTag    = "%}"
	openComment = "{#"
	endComment  = "#}"
)

// Lexer tokenizes a single template source.
type Lexer struct {
	name string
	src  string

	pos    int
	line   int
	column int

	tokens []token.Token
}

// New creates a lexer for the named template source.
func New(name, src string) *Lexer {
	return &Lexer{
		name:   name,
		src:    src,
		line:   1,
		column: 1,
	}
}

// Tokenize lexes the named source into a token stream terminated by an EOF
// token. The returned error is a *errors.TemplateError with position
// information.
func Tokenize(name, src string) ([]token.Token, error) {
	return New(name, src).Run()
}

// Run performs the full tokenization.
func (l *Lexer) Run() ([]token.Token, error) {
	for l.pos < len(l.src) {
		if err := l.lexText(); err != nil {
			return nil, err
		}
	}
	l.emit(token.Token{Kind: token.EOF, Line: l.line, Column: l.column})
	return l.tokens, nil
}

func (l *Lexer) emit(t token.Token) {
	l.tokens = append(l.tokens, t)
}

// advance consumes n bytes, maintaining line and column counters.
func (l *Lexer) advance(n int) {
	for i := 0; i < n && l.pos < len(l.src); i++ {
		if l.src[l.pos] == '\n' {
			l.line++
			l.column = 1
		} else {
			l.column++
		}
		l.pos++
	}
}

func (l *Lexer) rest() string { return l.src[l.pos:] }

func (l *Lexer) errorf(line, column int, format string, args ...any) error {
	return errors.New(l.name, line, column, format, args...)
}

// lexText consumes raw text up to the next delimiter, then dispatches to the
// delimiter's lexer.
func (l *Lexer) lexText() error {
	start := l.pos
	startLine, startCol := l.line, l.column

	for l.pos < len(l.src) {
		rest := l.rest()
		if strings.HasPrefix(rest, openOutput) || strings.HasPrefix(rest, openTag) || strings.HasPrefix(rest, openComment) {
			break
		}
		l.advance(1)
	}

	if l.pos > start {
		l.emit(token.Token{
			Kind:   token.Text,
			Value:  l.src[start:l.pos],
			Line:   startLine,
			Column: startCol,
		})
	}
	if l.pos >= len(l.src) {
		return nil
	}

	switch {
	case strings.HasPrefix(l.rest(), openComment):
		return l.lexComment()
	case strings.HasPrefix(l.rest(), openOutput):
		return l.lexDelimited(token.OutputStart, token.OutputEnd, closeOutput)
	default:
		return l.lexTag()
	}
}

// lexComment skips a {# ... #} block.
func (l *Lexer) lexComment() error {
	startLine, startCol := l.line, l.column
	l.advance(len(openComment))
	end := strings.Index(l.rest(), endComment)
	if end < 0 {
		return l.errorf(startLine, startCol, "unterminated comment")
	}
	l.advance(end + len(endComment))
	return nil
}

// lexTag lexes a {% ... %} block. A bare {% verbatim %} switches the lexer
// into raw capture until the matching {% endverbatim %}.
func (l *Lexer) lexTag() error {
	before := len(l.tokens)
	if err := l.lexDelimited(token.TagStart, token.TagEnd, closeTag); err != nil {
		return err
	}
	// tokens: TagStart, ...content..., TagEnd
	if len(l.tokens) == before+3 && l.tokens[before+1].IsName("verbatim") {
		return l.lexVerbatim()
	}
	return nil
}

// lexVerbatim captures raw text until {% endverbatim %}, emitting it as a
// single Text token followed by the closing tag's tokens.
func (l *Lexer) lexVerbatim() error {
	startLine, startCol := l.line, l.column
	start := l.pos

	for l.pos < len(l.src) {
		rest := l.rest()
		if strings.HasPrefix(rest, openTag) {
			// Peek past the delimiter and optional trim marker for
			// the endverbatim keyword.
			probe := strings.TrimPrefix(rest, openTag)
			probe = strings.TrimPrefix(probe, "-")
			if strings.HasPrefix(strings.TrimLeft(probe, " \t\r\n"), "endverbatim") {
				break
			}
		}
		l.advance(1)
	}
	if l.pos >= len(l.src) {
		return l.errorf(startLine, startCol, "unterminated verbatim block")
	}

	if l.pos > start {
		l.emit(token.Token{
			Kind:   token.Text,
			Value:  l.src[start:l.pos],
			Line:   startLine,
			Column: startCol,
		})
	}
	return l.lexDelimited(token.TagStart, token.TagEnd, closeTag)
}

// lexDelimited lexes an opening delimiter, its expression contents, and the
// matching closing delimiter.
func (l *Lexer) lexDelimited(startKind, endKind token.Kind, closer string) error {
	openLine, openCol := l.line, l.column
	open := token.Token{Kind: startKind, Line: openLine, Column: openCol}
	l.advance(2)
	if l.pos < len(l.src) && l.src[l.pos] == '-' {
		open.TrimBefore = true
		l.advance(1)
	}
	l.emit(open)

	for {
		l.skipSpace()
		if l.pos >= len(l.src) {
			return l.errorf(openLine, openCol, "unterminated %s block", startKind)
		}

		rest := l.rest()
		if strings.HasPrefix(rest, closer) {
			l.emit(token.Token{Kind: endKind, Line: l.line, Column: l.column})
			l.advance(len(closer))
			return nil
		}
		if strings.HasPrefix(rest, "-"+closer) {
			l.emit(token.Token{Kind: endKind, Line: l.line, Column: l.column, TrimAfter: true})
			l.advance(1 + len(closer))
			return nil
		}

		if err := l.lexExprToken(); err != nil {
			return err
		}
	}
}

func (l *Lexer) skipSpace() {
	for l.pos < len(l.src) {
		switch l.src[l.pos] {
		case ' ', '\t', '\r', '\n':
			l.advance(1)
		default:
			return
		}
	}
}

// multi-byte operators, longest first so e.g. "==" wins over "=".
var operators = []string{
	"==", "!=", "<=", ">=", "??",
	"|", "~", "+", "-", "*", "/", "%",
	"(", ")", "[", "]", "{", "}",
	".", ",", ":", "=", "<", ">", "?",
}

// lexExprToken lexes one token inside a delimiter.
func (l *Lexer) lexExprToken() error {
	line, col := l.line, l.column
	c := l.src[l.pos]

	switch {
	case c == '\'' || c == '"':
		return l.lexString(c)
	case c >= '0' && c <= '9':
		l.lexNumber()
		return nil
	case isNameStart(c):
		l.lexName()
		return nil
	}

	rest := l.rest()
	for _, op := range operators {
		if strings.HasPrefix(rest, op) {
			l.advance(len(op))
			l.emit(token.Token{Kind: token.Operator, Value: op, Line: line, Column: col})
			return nil
		}
	}
	return l.errorf(line, col, "unexpected character %q", c)
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNameChar(c byte) bool {
	return isNameStart(c) || (c >= '0' && c <= '9')
}

func (l *Lexer) lexName() {
	line, col := l.line, l.column
	start := l.pos
	for l.pos < len(l.src) && isNameChar(l.src[l.pos]) {
		l.advance(1)
	}
	l.emit(token.Token{Kind: token.Name, Value: l.src[start:l.pos], Line: line, Column: col})
}

func (l *Lexer) lexNumber() {
	line, col := l.line, l.column
	start := l.pos
	for l.pos < len(l.src) && l.src[l.pos] >= '0' && l.src[l.pos] <= '9' {
		l.advance(1)
	}
	if l.pos+1 < len(l.src) && l.src[l.pos] == '.' && l.src[l.pos+1] >= '0' && l.src[l.pos+1] <= '9' {
		l.advance(1)
		for l.pos < len(l.src) && l.src[l.pos] >= '0' && l.src[l.pos] <= '9' {
			l.advance(1)
		}
	}
	l.emit(token.Token{Kind: token.Number, Value: l.src[start:l.pos], Line: line, Column: col})
}

// lexString lexes a quoted string literal, decoding escapes.
func (l *Lexer) lexString(quote byte) error {
	line, col := l.line, l.column
	l.advance(1)

	var sb strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch c {
		case quote:
			l.advance(1)
			l.emit(token.Token{Kind: token.String, Value: sb.String(), Line: line, Column: col})
			return nil
		case '\\':
			if l.pos+1 >= len(l.src) {
				return l.errorf(line, col, "unterminated string")
			}
			esc := l.src[l.pos+1]
			switch esc {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '\\', '\'', '"':
				sb.WriteByte(esc)
			default:
				return l.errorf(l.line, l.column, "invalid escape sequence \\%c", esc)
			}
			l.advance(2)
		case '\n':
			return l.errorf(line, col, "unterminated string")
		default:
			sb.WriteByte(c)
			l.advance(1)
		}
	}
	return l.errorf(line, col, "unterminated string")
}
