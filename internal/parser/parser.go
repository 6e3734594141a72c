// Package parser builds the syntax tree for a template source.
//
// The parser is recursive descent; binary expressions use precedence
// climbing with the operator table below. Every diagnostic carries the
// template name and a 1-based line and column. Block tags are checked for
// balance, so a missing endif or endfor fails with the position of the tag
// that opened the block.
package parser

import (
	"strconv"
	"strings"

	"github.com/osierhq/osier/internal/ast"
	"github.com/osierhq/osier/internal/errors"
	"github.com/osierhq/osier/internal/lexer"
	"github.com/osierhq/osier/internal/token"
)

// binaryPrec orders infix operators. Higher binds tighter; the spread
// follows Twig so ported templates evaluate identically.
var binaryPrec = map[string]int{
	"or":  10,
	"and": 15,
	"==":  20, "!=": 20, "<": 20, ">": 20, "<=": 20, ">=": 20, "in": 20,
	"+": 30, "-": 30,
	"~": 40,
	"*": 60, "/": 60, "%": 60,
	"??": 300,
}

// testPrec is the precedence of the "is" operator.
const testPrec = 100

// Parser consumes a token stream and produces a template body.
type Parser struct {
	name   string
	tokens []token.Token
	pos    int
}

// Parse lexes and parses the named source into a template.
func Parse(name, src string) (*ast.Template, error) {
	tokens, err := lexer.Tokenize(name, src)
	if err != nil {
		return nil, err
	}
	applyTrim(tokens)

	p := &Parser{name: name, tokens: tokens}
	body, _, err := p.parseBody(nil)
	if err != nil {
		return nil, err
	}
	return &ast.Template{Name: name, Body: body}, nil
}

// applyTrim resolves the {{- and -}} whitespace-control markers by trimming
// the adjacent text tokens in place.
func applyTrim(tokens []token.Token) {
	for i := range tokens {
		t := &tokens[i]
		if t.TrimBefore && i > 0 && tokens[i-1].Kind == token.Text {
			tokens[i-1].Value = strings.TrimRight(tokens[i-1].Value, " \t\r\n")
		}
		if t.TrimAfter && i+1 < len(tokens) && tokens[i+1].Kind == token.Text {
			tokens[i+1].Value = strings.TrimLeft(tokens[i+1].Value, " \t\r\n")
		}
	}
}

func (p *Parser) current() token.Token { return p.tokens[p.pos] }

func (p *Parser) next() token.Token {
	t := p.tokens[p.pos]
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) errorf(t token.Token, format string, args ...any) error {
	return errors.New(p.name, t.Line, t.Column, format, args...)
}

func (p *Parser) expectOperator(op string) error {
	t := p.next()
	if !t.Is(op) {
		return p.errorf(t, "expected %q, found %s", op, t)
	}
	return nil
}

func (p *Parser) expectKind(k token.Kind) (token.Token, error) {
	t := p.next()
	if t.Kind != k {
		return t, p.errorf(t, "expected %s, found %s", k, t)
	}
	return t, nil
}

func pos(t token.Token) ast.Position {
	return ast.Position{Line: t.Line, Column: t.Column}
}

// parseBody parses statements until EOF or until a tag whose name appears in
// stop. On a stop tag, the TagStart and Name tokens are consumed and the tag
// name is returned; the caller finishes the tag.
func (p *Parser) parseBody(stop map[string]bool) ([]ast.Node, string, error) {
	var body []ast.Node

	for {
		t := p.current()
		switch t.Kind {
		case token.EOF:
			return body, "", nil

		case token.Text:
			p.next()
			if t.Value != "" {
				body = append(body, &ast.Text{Position: pos(t), Content: t.Value})
			}

		case token.OutputStart:
			p.next()
			expr, err := p.parseExpression()
			if err != nil {
				return nil, "", err
			}
			if _, err := p.expectKind(token.OutputEnd); err != nil {
				return nil, "", err
			}
			body = append(body, &ast.Output{Position: pos(t), Expr: expr})

		case token.TagStart:
			nameTok := p.tokens[p.pos+1]
			if nameTok.Kind != token.Name {
				return nil, "", p.errorf(nameTok, "expected tag name, found %s", nameTok)
			}
			if stop[nameTok.Value] {
				p.next() // TagStart
				p.next() // Name
				return body, nameTok.Value, nil
			}
			node, err := p.parseTag()
			if err != nil {
				return nil, "", err
			}
			if node != nil {
				body = append(body, node)
			}

		default:
			return nil, "", p.errorf(t, "unexpected %s", t)
		}
	}
}

// parseTag dispatches on the tag name. TagStart is the current token.
func (p *Parser) parseTag() (ast.Node, error) {
	start := p.next() // TagStart
	nameTok := p.next()

	switch nameTok.Value {
	case "if":
		return p.parseIf(start)
	case "for":
		return p.parseFor(start)
	case "set":
		return p.parseSet(start)
	case "include":
		return p.parseInclude(start)
	case "verbatim":
		return p.parseVerbatim(start)
	case "elseif", "else", "endif", "endfor", "endverbatim":
		return nil, p.errorf(nameTok, "unexpected %q outside its block", nameTok.Value)
	default:
		return nil, p.errorf(nameTok, "unknown tag %q", nameTok.Value)
	}
}

func (p *Parser) parseIf(start token.Token) (ast.Node, error) {
	node := &ast.If{Position: pos(start)}

	for {
		cond, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectKind(token.TagEnd); err != nil {
			return nil, err
		}

		body, stop, err := p.parseBody(map[string]bool{"elseif": true, "else": true, "endif": true})
		if err != nil {
			return nil, err
		}
		node.Branches = append(node.Branches, ast.Branch{Cond: cond, Body: body})

		switch stop {
		case "elseif":
			continue
		case "else":
			if _, err := p.expectKind(token.TagEnd); err != nil {
				return nil, err
			}
			elseBody, stop, err := p.parseBody(map[string]bool{"endif": true})
			if err != nil {
				return nil, err
			}
			if stop != "endif" {
				return nil, p.errorf(start, "unclosed if block")
			}
			node.Else = elseBody
			if _, err := p.expectKind(token.TagEnd); err != nil {
				return nil, err
			}
			return node, nil
		case "endif":
			if _, err := p.expectKind(token.TagEnd); err != nil {
				return nil, err
			}
			return node, nil
		default:
			return nil, p.errorf(start, "unclosed if block")
		}
	}
}

func (p *Parser) parseFor(start token.Token) (ast.Node, error) {
	node := &ast.For{Position: pos(start)}

	first, err := p.expectKind(token.Name)
	if err != nil {
		return nil, err
	}
	node.ValueVar = first.Value

	if p.current().Is(",") {
		p.next()
		second, err := p.expectKind(token.Name)
		if err != nil {
			return nil, err
		}
		node.KeyVar = first.Value
		node.ValueVar = second.Value
	}

	inTok := p.next()
	if !inTok.IsName("in") {
		return nil, p.errorf(inTok, "expected \"in\", found %s", inTok)
	}

	node.Seq, err = p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectKind(token.TagEnd); err != nil {
		return nil, err
	}

	body, stop, err := p.parseBody(map[string]bool{"else": true, "endfor": true})
	if err != nil {
		return nil, err
	}
	node.Body = body

	if stop == "else" {
		if _, err := p.expectKind(token.TagEnd); err != nil {
			return nil, err
		}
		elseBody, elseStop, err := p.parseBody(map[string]bool{"endfor": true})
		if err != nil {
			return nil, err
		}
		if elseStop != "endfor" {
			return nil, p.errorf(start, "unclosed for block")
		}
		node.Else = elseBody
		stop = elseStop
	}
	if stop != "endfor" {
		return nil, p.errorf(start, "unclosed for block")
	}
	if _, err := p.expectKind(token.TagEnd); err != nil {
		return nil, err
	}
	return node, nil
}

func (p *Parser) parseSet(start token.Token) (ast.Node, error) {
	nameTok, err := p.expectKind(token.Name)
	if err != nil {
		return nil, err
	}
	if err := p.expectOperator("="); err != nil {
		return nil, err
	}
	value, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectKind(token.TagEnd); err != nil {
		return nil, err
	}
	return &ast.Set{Position: pos(start), Name: nameTok.Value, Value: value}, nil
}

func (p *Parser) parseInclude(start token.Token) (ast.Node, error) {
	node := &ast.Include{Position: pos(start)}

	var err error
	node.Name, err = p.parseExpression()
	if err != nil {
		return nil, err
	}

	if p.current().IsName("with") {
		p.next()
		node.With, err = p.parseExpression()
		if err != nil {
			return nil, err
		}
	}
	if p.current().IsName("only") {
		p.next()
		node.Only = true
	}
	if _, err := p.expectKind(token.TagEnd); err != nil {
		return nil, err
	}
	return node, nil
}

// parseVerbatim consumes the structure the lexer produced for a verbatim
// block; the captured raw text becomes a plain Text node.
func (p *Parser) parseVerbatim(start token.Token) (ast.Node, error) {
	if _, err := p.expectKind(token.TagEnd); err != nil {
		return nil, err
	}

	var node ast.Node
	if t := p.current(); t.Kind == token.Text {
		p.next()
		node = &ast.Text{Position: pos(t), Content: t.Value}
	}

	if _, err := p.expectKind(token.TagStart); err != nil {
		return nil, err
	}
	endTok := p.next()
	if !endTok.IsName("endverbatim") {
		return nil, p.errorf(start, "unclosed verbatim block")
	}
	if _, err := p.expectKind(token.TagEnd); err != nil {
		return nil, err
	}
	return node, nil
}

// parseExpression parses a full expression including the ternary form.
func (p *Parser) parseExpression() (ast.Expr, error) {
	cond, err := p.parseBinary(0)
	if err != nil {
		return nil, err
	}
	if !p.current().Is("?") {
		return cond, nil
	}

	q := p.next()
	then, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if err := p.expectOperator(":"); err != nil {
		return nil, err
	}
	els, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	return &ast.Cond{Position: pos(q), Test: cond, Then: then, Else: els}, nil
}

// parseBinary implements precedence climbing over binaryPrec, and folds the
// "is" operator into Test nodes at testPrec.
func (p *Parser) parseBinary(minPrec int) (ast.Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for {
		t := p.current()

		if t.IsName("is") && testPrec >= minPrec {
			p.next()
			negated := false
			if p.current().IsName("not") {
				p.next()
				negated = true
			}
			nameTok, err := p.expectKind(token.Name)
			if err != nil {
				return nil, err
			}
			left = &ast.Test{Position: pos(nameTok), X: left, Name: nameTok.Value, Negated: negated}
			continue
		}

		var op string
		switch {
		case t.Kind == token.Operator:
			op = t.Value
		case t.Kind == token.Name && (t.Value == "and" || t.Value == "or" || t.Value == "in"):
			op = t.Value
		default:
			return left, nil
		}

		prec, ok := binaryPrec[op]
		if !ok || prec < minPrec {
			return left, nil
		}

		p.next()
		right, err := p.parseBinary(prec + 1)
		if err != nil {
			return nil, err
		}
		left = &ast.Binary{Position: pos(t), Op: op, Left: left, Right: right}
	}
}

func (p *Parser) parseUnary() (ast.Expr, error) {
	t := p.current()

	if t.IsName("not") {
		p.next()
		x, err := p.parseBinary(50)
		if err != nil {
			return nil, err
		}
		return &ast.Unary{Position: pos(t), Op: "not", X: x}, nil
	}
	if t.Is("-") {
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.Unary{Position: pos(t), Op: "-", X: x}, nil
	}
	return p.parsePostfix()
}

// parsePostfix parses a primary and its postfix chain: attribute access,
// indexing, and filter application.
func (p *Parser) parsePostfix() (ast.Expr, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	for {
		t := p.current()
		switch {
		case t.Is("."):
			p.next()
			attr, err := p.expectKind(token.Name)
			if err != nil {
				return nil, err
			}
			expr = &ast.GetAttr{Position: pos(t), Target: expr, Attr: attr.Value}

		case t.Is("["):
			p.next()
			key, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if err := p.expectOperator("]"); err != nil {
				return nil, err
			}
			expr = &ast.Index{Position: pos(t), Target: expr, Key: key}

		case t.Is("|"):
			p.next()
			nameTok, err := p.expectKind(token.Name)
			if err != nil {
				return nil, err
			}
			filter := &ast.Filter{Position: pos(nameTok), X: expr, Name: nameTok.Value}
			if p.current().Is("(") {
				p.next()
				filter.Args, err = p.parseExprList(")")
				if err != nil {
					return nil, err
				}
			}
			expr = filter

		default:
			return expr, nil
		}
	}
}

// parseExprList parses a comma-separated expression list up to and including
// the closing operator.
func (p *Parser) parseExprList(closer string) ([]ast.Expr, error) {
	var items []ast.Expr
	if p.current().Is(closer) {
		p.next()
		return items, nil
	}
	for {
		item, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		items = append(items, item)

		t := p.next()
		switch {
		case t.Is(closer):
			return items, nil
		case t.Is(","):
			continue
		default:
			return nil, p.errorf(t, "expected %q or \",\", found %s", closer, t)
		}
	}
}

func (p *Parser) parsePrimary() (ast.Expr, error) {
	t := p.next()

	switch t.Kind {
	case token.String:
		return &ast.StringLit{Position: pos(t), Value: t.Value}, nil

	case token.Number:
		if strings.Contains(t.Value, ".") {
			f, err := strconv.ParseFloat(t.Value, 64)
			if err != nil {
				return nil, p.errorf(t, "invalid number %q", t.Value)
			}
			return &ast.NumberLit{Position: pos(t), IsFloat: true, Float: f}, nil
		}
		n, err := strconv.ParseInt(t.Value, 10, 64)
		if err != nil {
			return nil, p.errorf(t, "invalid number %q", t.Value)
		}
		return &ast.NumberLit{Position: pos(t), Int: n}, nil

	case token.Name:
		switch t.Value {
		case "true":
			return &ast.BoolLit{Position: pos(t), Value: true}, nil
		case "false":
			return &ast.BoolLit{Position: pos(t), Value: false}, nil
		case "null":
			return &ast.NullLit{Position: pos(t)}, nil
		}
		if token.Keywords[t.Value] {
			return nil, p.errorf(t, "unexpected keyword %q", t.Value)
		}
		return &ast.Name{Position: pos(t), Ident: t.Value}, nil

	case token.Operator:
		switch t.Value {
		case "(":
			expr, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if err := p.expectOperator(")"); err != nil {
				return nil, err
			}
			return expr, nil

		case "[":
			items, err := p.parseExprList("]")
			if err != nil {
				return nil, err
			}
			return &ast.Array{Position: pos(t), Items: items}, nil

		case "{":
			return p.parseHash(t)
		}
	}
	return nil, p.errorf(t, "unexpected %s in expression", t)
}

func (p *Parser) parseHash(open token.Token) (ast.Expr, error) {
	hash := &ast.Hash{Position: pos(open)}
	if p.current().Is("}") {
		p.next()
		return hash, nil
	}
	for {
		var key ast.Expr
		t := p.next()
		switch t.Kind {
		case token.String:
			key = &ast.StringLit{Position: pos(t), Value: t.Value}
		case token.Name:
			// Bare hash keys are string literals, matching Twig.
			key = &ast.StringLit{Position: pos(t), Value: t.Value}
		case token.Number:
			key = &ast.StringLit{Position: pos(t), Value: t.Value}
		default:
			return nil, p.errorf(t, "expected hash key, found %s", t)
		}
		if err := p.expectOperator(":"); err != nil {
			return nil, err
		}
		value, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		hash.Keys = append(hash.Keys, key)
		hash.Values = append(hash.Values, value)

		t = p.next()
		switch {
		case t.Is("}"):
			return hash, nil
		case t.Is(","):
			continue
		default:
			return nil, p.errorf(t, "expected \"}\" or \",\", found %s", t)
		}
	}
}
