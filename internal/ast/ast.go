// Package ast defines the syntax tree produced by the parser and consumed by
// the render engine.
package ast

// Position locates a node in its template source, 1-based.
type Position struct {
	Line   int
	Column int
}

// Node is implemented by every syntax tree node.
type Node interface {
	Pos() Position
}

// Expr is implemented by expression nodes.
type Expr interface {
	Node
	exprNode()
}

// Template is a parsed template: its registry name and top-level body.
type Template struct {
	Name string
	Body []Node
}

// Text is a run of literal template text.
type Text struct {
	Position
	Content string
}

// Output prints an expression: {{ expr }}.
type Output struct {
	Position
	Expr Expr
}

// Branch is one condition/body pair of an If chain.
type Branch struct {
	Cond Expr
	Body []Node
}

// If is an {% if %} ... {% elseif %} ... {% else %} ... {% endif %} chain.
type If struct {
	Position
	Branches []Branch
	Else     []Node
}

// For iterates a sequence: {% for v in seq %} or {% for k, v in seq %}.
// Else runs when the sequence is empty.
type For struct {
	Position
	KeyVar   string // empty unless the two-variable form is used
	ValueVar string
	Seq      Expr
	Body     []Node
	Else     []Node
}

// Set binds a variable in the current scope: {% set name = expr %}.
type Set struct {
	Position
	Name  string
	Value Expr
}

// Include renders another template: {% include expr [with expr] [only] %}.
type Include struct {
	Position
	Name Expr
	With Expr // nil when absent
	Only bool
}

// Pos returns the node's source position.
func (p Position) Pos() Position { return p }

func (*StringLit) exprNode() {}
func (*NumberLit) exprNode() {}
func (*BoolLit) exprNode()   {}
func (*NullLit) exprNode()   {}
func (*Name) exprNode()      {}
func (*GetAttr) exprNode()   {}
func (*Index) exprNode()     {}
func (*Array) exprNode()     {}
func (*Hash) exprNode()      {}
func (*Unary) exprNode()     {}
func (*Binary) exprNode()    {}
func (*Cond) exprNode()      {}
func (*Filter) exprNode()    {}
func (*Test) exprNode()      {}

// StringLit is a quoted string literal.
type StringLit struct {
	Position
	Value string
}

// NumberLit is an integer or float literal.
type NumberLit struct {
	Position
	IsFloat bool
	Int     int64
	Float   float64
}

// BoolLit is true or false.
type BoolLit struct {
	Position
	Value bool
}

// NullLit is the null literal.
type NullLit struct {
	Position
}

// Name references a context variable.
type Name struct {
	Position
	Ident string
}

// GetAttr accesses a named attribute: a.b.
type GetAttr struct {
	Position
	Target Expr
	Attr   string
}

// Index accesses a computed key or index: a[expr].
type Index struct {
	Position
	Target Expr
	Key    Expr
}

// Array is an array literal: [a, b, c].
type Array struct {
	Position
	Items []Expr
}

// Hash is a hash literal: {'k': v}. Keys and Values are parallel.
type Hash struct {
	Position
	Keys   []Expr
	Values []Expr
}

// Unary applies a prefix operator: not x, -x.
type Unary struct {
	Position
	Op string
	X  Expr
}

// Binary applies an infix operator.
type Binary struct {
	Position
	Op    string
	Left  Expr
	Right Expr
}

// Cond is the ternary conditional: test ? then : else.
type Cond struct {
	Position
	Test Expr
	Then Expr
	Else Expr
}

// Filter applies a named filter: x|name(args...). Position points at the
// filter name so render errors blame the filter, not the operand.
type Filter struct {
	Position
	X    Expr
	Name string
	Args []Expr
}

// Test applies an "is" test: x is name, x is not name.
type Test struct {
	Position
	X       Expr
	Name    string
	Negated bool
}
