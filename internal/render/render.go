package render

import (
	"fmt"
	"html"
	"strings"

	"github.com/osierhq/osier/internal/ast"
	"github.com/osierhq/osier/internal/errors"
)

// Loader resolves template names for {% include %}.
type Loader interface {
	Load(name string) (*ast.Template, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(name string) (*ast.Template, error)

// Load implements Loader.
func (f LoaderFunc) Load(name string) (*ast.Template, error) { return f(name) }

// EngineConfig configures a render engine.
type EngineConfig struct {
	// Loader resolves include targets. Includes fail when nil.
	Loader Loader
	// Strict makes undefined variables and attributes render errors
	// instead of empty output.
	Strict bool
	// DisableAutoescape turns off HTML escaping of output expressions.
	DisableAutoescape bool
	// MaxIncludeDepth bounds include nesting; 0 means the default of 32.
	MaxIncludeDepth int
}

const defaultMaxIncludeDepth = 32

// Engine renders parsed templates. An Engine is safe for concurrent use
// once configured; RegisterFilter and RegisterTest must not race with
// Render calls.
type Engine struct {
	loader     Loader
	strict     bool
	autoescape bool
	maxDepth   int
	filters    map[string]FilterFunc
	tests      map[string]TestFunc
}

// NewEngine creates an engine with the builtin filters and tests.
func NewEngine(cfg EngineConfig) *Engine {
	maxDepth := cfg.MaxIncludeDepth
	if maxDepth <= 0 {
		maxDepth = defaultMaxIncludeDepth
	}

	filters := make(map[string]FilterFunc, len(builtinFilters))
	for name, fn := range builtinFilters {
		filters[name] = fn
	}
	tests := make(map[string]TestFunc, len(builtinTests))
	for name, fn := range builtinTests {
		tests[name] = fn
	}

	return &Engine{
		loader:     cfg.Loader,
		strict:     cfg.Strict,
		autoescape: !cfg.DisableAutoescape,
		maxDepth:   maxDepth,
		filters:    filters,
		tests:      tests,
	}
}

// RegisterFilter adds or replaces a filter.
func (e *Engine) RegisterFilter(name string, fn FilterFunc) {
	e.filters[name] = fn
}

// RegisterTest adds or replaces an "is" test.
func (e *Engine) RegisterTest(name string, fn TestFunc) {
	e.tests[name] = fn
}

// Render evaluates tpl against vars and returns the output.
func (e *Engine) Render(tpl *ast.Template, vars map[string]any) (string, error) {
	var sb strings.Builder
	r := &renderer{engine: e, out: &sb, name: tpl.Name, ctx: NewContext(vars)}
	if err := r.renderBody(tpl.Body); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// renderer is the per-call evaluation state.
type renderer struct {
	engine *Engine
	out    *strings.Builder
	name   string
	ctx    *Context
	depth  int
}

func (r *renderer) errorf(p ast.Position, format string, args ...any) error {
	return errors.New(r.name, p.Line, p.Column, format, args...)
}

func (r *renderer) renderBody(body []ast.Node) error {
	for _, node := range body {
		if err := r.renderNode(node); err != nil {
			return err
		}
	}
	return nil
}

func (r *renderer) renderNode(node ast.Node) error {
	switch n := node.(type) {
	case *ast.Text:
		r.out.WriteString(n.Content)
		return nil

	case *ast.Output:
		v, err := r.eval(n.Expr)
		if err != nil {
			return err
		}
		if s, ok := v.(Safe); ok {
			r.out.WriteString(string(s))
			return nil
		}
		s := Stringify(v)
		if r.engine.autoescape {
			s = html.EscapeString(s)
		}
		r.out.WriteString(s)
		return nil

	case *ast.If:
		for _, branch := range n.Branches {
			cond, err := r.eval(branch.Cond)
			if err != nil {
				return err
			}
			if Truthy(cond) {
				return r.renderBody(branch.Body)
			}
		}
		return r.renderBody(n.Else)

	case *ast.For:
		return r.renderFor(n)

	case *ast.Set:
		v, err := r.eval(n.Value)
		if err != nil {
			return err
		}
		r.ctx.Set(n.Name, v)
		return nil

	case *ast.Include:
		return r.renderInclude(n)

	default:
		return r.errorf(node.Pos(), "cannot render node %T", node)
	}
}

func (r *renderer) renderFor(n *ast.For) error {
	seq, err := r.eval(n.Seq)
	if err != nil {
		return err
	}
	keys, values, ok := Iterate(seq)
	if !ok {
		return r.errorf(n.Seq.Pos(), "cannot iterate value of type %T", seq)
	}
	if len(values) == 0 {
		return r.renderBody(n.Else)
	}

	r.ctx.Push()
	defer r.ctx.Pop()

	for i := range values {
		r.ctx.Set(n.ValueVar, values[i])
		if n.KeyVar != "" {
			r.ctx.Set(n.KeyVar, keys[i])
		}
		r.ctx.Set("loop", map[string]any{
			"index":  int64(i + 1),
			"index0": int64(i),
			"first":  i == 0,
			"last":   i == len(values)-1,
			"length": int64(len(values)),
		})
		if err := r.renderBody(n.Body); err != nil {
			return err
		}
	}
	return nil
}

func (r *renderer) renderInclude(n *ast.Include) error {
	if r.engine.loader == nil {
		return r.errorf(n.Position, "include is not available without a loader")
	}
	if r.depth >= r.engine.maxDepth {
		return r.errorf(n.Position, "include nesting exceeds %d levels", r.engine.maxDepth)
	}

	nameVal, err := r.eval(n.Name)
	if err != nil {
		return err
	}
	name, ok := asString(nameVal)
	if !ok {
		return r.errorf(n.Name.Pos(), "include name must be a string, got %T", nameVal)
	}

	tpl, err := r.engine.loader.Load(name)
	if err != nil {
		return r.errorf(n.Position, "include %q: %v", name, err)
	}

	var withVars map[string]any
	if n.With != nil {
		v, err := r.eval(n.With)
		if err != nil {
			return err
		}
		m, ok := v.(map[string]any)
		if !ok {
			return r.errorf(n.With.Pos(), "include context must be a hash, got %T", v)
		}
		withVars = m
	}

	var vars map[string]any
	if n.Only {
		vars = withVars
	} else {
		vars = r.ctx.Flatten()
		for k, v := range withVars {
			vars[k] = v
		}
	}

	sub := &renderer{
		engine: r.engine,
		out:    r.out,
		name:   tpl.Name,
		ctx:    NewContext(vars),
		depth:  r.depth + 1,
	}
	if err := sub.renderBody(tpl.Body); err != nil {
		return err
	}
	return nil
}

// eval evaluates an expression. Undefined names and attributes yield nil in
// lenient mode and a positioned error in strict mode.
func (r *renderer) eval(expr ast.Expr) (any, error) {
	v, defined, err := r.evalMaybe(expr)
	if err != nil {
		return nil, err
	}
	if !defined && r.engine.strict {
		return nil, r.errorf(expr.Pos(), "undefined %s", describeUndefined(expr))
	}
	return v, nil
}

func describeUndefined(expr ast.Expr) string {
	switch e := expr.(type) {
	case *ast.Name:
		return fmt.Sprintf("variable %q", e.Ident)
	case *ast.GetAttr:
		return fmt.Sprintf("attribute %q", e.Attr)
	default:
		return "value"
	}
}

// evalMaybe evaluates an expression, reporting whether it resolved. Only
// name, attribute, and index lookups can be undefined; every other
// expression is always defined.
func (r *renderer) evalMaybe(expr ast.Expr) (any, bool, error) {
	switch e := expr.(type) {
	case *ast.StringLit:
		return e.Value, true, nil
	case *ast.NumberLit:
		if e.IsFloat {
			return e.Float, true, nil
		}
		return e.Int, true, nil
	case *ast.BoolLit:
		return e.Value, true, nil
	case *ast.NullLit:
		return nil, true, nil

	case *ast.Name:
		v, ok := r.ctx.Get(e.Ident)
		return v, ok, nil

	case *ast.GetAttr:
		target, defined, err := r.evalMaybe(e.Target)
		if err != nil || !defined {
			return nil, defined, err
		}
		return attrLookup(target, e.Attr)

	case *ast.Index:
		target, defined, err := r.evalMaybe(e.Target)
		if err != nil || !defined {
			return nil, defined, err
		}
		key, err := r.eval(e.Key)
		if err != nil {
			return nil, false, err
		}
		return r.indexLookup(e, target, key)

	case *ast.Array:
		items := make([]any, len(e.Items))
		for i, item := range e.Items {
			v, err := r.eval(item)
			if err != nil {
				return nil, false, err
			}
			items[i] = v
		}
		return items, true, nil

	case *ast.Hash:
		m := make(map[string]any, len(e.Keys))
		for i := range e.Keys {
			k, err := r.eval(e.Keys[i])
			if err != nil {
				return nil, false, err
			}
			v, err := r.eval(e.Values[i])
			if err != nil {
				return nil, false, err
			}
			m[Stringify(k)] = v
		}
		return m, true, nil

	case *ast.Unary:
		return r.evalUnary(e)

	case *ast.Binary:
		return r.evalBinary(e)

	case *ast.Cond:
		test, err := r.eval(e.Test)
		if err != nil {
			return nil, false, err
		}
		if Truthy(test) {
			v, err := r.eval(e.Then)
			return v, true, err
		}
		v, err := r.eval(e.Else)
		return v, true, err

	case *ast.Filter:
		return r.evalFilter(e)

	case *ast.Test:
		ok, err := r.evalTest(e)
		return ok, true, err

	default:
		return nil, false, r.errorf(expr.Pos(), "cannot evaluate expression %T", expr)
	}
}

// attrLookup resolves a.b on maps. Missing keys are undefined, not errors.
func attrLookup(target any, attr string) (any, bool, error) {
	m, ok := target.(map[string]any)
	if !ok {
		return nil, false, nil
	}
	v, ok := m[attr]
	return v, ok, nil
}

func (r *renderer) indexLookup(e *ast.Index, target, key any) (any, bool, error) {
	switch t := target.(type) {
	case map[string]any:
		v, ok := t[Stringify(key)]
		return v, ok, nil
	case []any:
		n, ok := toNumber(key)
		if !ok {
			return nil, false, r.errorf(e.Key.Pos(), "sequence index must be a number, got %T", key)
		}
		i, isInt := n.(int64)
		if !isInt {
			return nil, false, r.errorf(e.Key.Pos(), "sequence index must be an integer")
		}
		if i < 0 {
			i += int64(len(t))
		}
		if i < 0 || i >= int64(len(t)) {
			return nil, false, nil
		}
		return t[i], true, nil
	default:
		return nil, false, nil
	}
}

func (r *renderer) evalUnary(e *ast.Unary) (any, bool, error) {
	v, err := r.eval(e.X)
	if err != nil {
		return nil, false, err
	}
	switch e.Op {
	case "not":
		return !Truthy(v), true, nil
	case "-":
		n, ok := toNumber(v)
		if !ok {
			return nil, false, r.errorf(e.Position, "cannot negate value of type %T", v)
		}
		switch x := n.(type) {
		case int64:
			return -x, true, nil
		case float64:
			return -x, true, nil
		}
	}
	return nil, false, r.errorf(e.Position, "unknown unary operator %q", e.Op)
}

func (r *renderer) evalBinary(e *ast.Binary) (any, bool, error) {
	// ?? evaluates its left side leniently: an undefined or null left
	// falls through to the right side even in strict mode.
	if e.Op == "??" {
		v, defined, err := r.evalMaybe(e.Left)
		if err != nil {
			return nil, false, err
		}
		if defined && v != nil {
			return v, true, nil
		}
		right, err := r.eval(e.Right)
		return right, true, err
	}

	if e.Op == "and" || e.Op == "or" {
		left, err := r.eval(e.Left)
		if err != nil {
			return nil, false, err
		}
		if e.Op == "and" && !Truthy(left) {
			return false, true, nil
		}
		if e.Op == "or" && Truthy(left) {
			return true, true, nil
		}
		right, err := r.eval(e.Right)
		if err != nil {
			return nil, false, err
		}
		return Truthy(right), true, nil
	}

	left, err := r.eval(e.Left)
	if err != nil {
		return nil, false, err
	}
	right, err := r.eval(e.Right)
	if err != nil {
		return nil, false, err
	}

	switch e.Op {
	case "~":
		return Stringify(left) + Stringify(right), true, nil
	case "==":
		return Equal(left, right), true, nil
	case "!=":
		return !Equal(left, right), true, nil
	case "<", ">", "<=", ">=":
		return r.compare(e, left, right)
	case "in":
		return r.contains(e, left, right)
	case "+", "-", "*", "/", "%":
		return r.arithmetic(e, left, right)
	}
	return nil, false, r.errorf(e.Position, "unknown operator %q", e.Op)
}

func (r *renderer) compare(e *ast.Binary, left, right any) (any, bool, error) {
	ln, lok := toNumber(left)
	rn, rok := toNumber(right)

	var result bool
	if lok && rok {
		lf, rf := promote(ln), promote(rn)
		switch e.Op {
		case "<":
			result = lf < rf
		case ">":
			result = lf > rf
		case "<=":
			result = lf <= rf
		case ">=":
			result = lf >= rf
		}
		return result, true, nil
	}

	ls, rs := Stringify(left), Stringify(right)
	switch e.Op {
	case "<":
		result = ls < rs
	case ">":
		result = ls > rs
	case "<=":
		result = ls <= rs
	case ">=":
		result = ls >= rs
	}
	return result, true, nil
}

func (r *renderer) contains(e *ast.Binary, needle, haystack any) (any, bool, error) {
	switch h := haystack.(type) {
	case []any:
		for _, item := range h {
			if Equal(needle, item) {
				return true, true, nil
			}
		}
		return false, true, nil
	case map[string]any:
		_, ok := h[Stringify(needle)]
		return ok, true, nil
	case string:
		return strings.Contains(h, Stringify(needle)), true, nil
	case Safe:
		return strings.Contains(string(h), Stringify(needle)), true, nil
	default:
		return nil, false, r.errorf(e.Position, "cannot test membership in value of type %T", haystack)
	}
}

func (r *renderer) arithmetic(e *ast.Binary, left, right any) (any, bool, error) {
	ln, lok := toNumber(left)
	rn, rok := toNumber(right)
	if !lok || !rok {
		return nil, false, r.errorf(e.Position, "operator %q expects numbers, got %T and %T", e.Op, left, right)
	}

	li, lInt := ln.(int64)
	ri, rInt := rn.(int64)

	if lInt && rInt {
		switch e.Op {
		case "+":
			return li + ri, true, nil
		case "-":
			return li - ri, true, nil
		case "*":
			return li * ri, true, nil
		case "%":
			if ri == 0 {
				return nil, false, r.errorf(e.Position, "modulo by zero")
			}
			return li % ri, true, nil
		case "/":
			if ri == 0 {
				return nil, false, r.errorf(e.Position, "division by zero")
			}
			if li%ri == 0 {
				return li / ri, true, nil
			}
			return float64(li) / float64(ri), true, nil
		}
	}

	lf, rf := promote(ln), promote(rn)
	switch e.Op {
	case "+":
		return lf + rf, true, nil
	case "-":
		return lf - rf, true, nil
	case "*":
		return lf * rf, true, nil
	case "/":
		if rf == 0 {
			return nil, false, r.errorf(e.Position, "division by zero")
		}
		return lf / rf, true, nil
	case "%":
		return nil, false, r.errorf(e.Position, "modulo expects integers")
	}
	return nil, false, r.errorf(e.Position, "unknown operator %q", e.Op)
}

func (r *renderer) evalFilter(e *ast.Filter) (any, bool, error) {
	fn, ok := r.engine.filters[e.Name]
	if !ok {
		return nil, false, r.errorf(e.Position, "unknown filter %q", e.Name)
	}

	// The default filter is lenient on its operand so the idiom
	// {{ maybe|default('x') }} works in strict mode.
	var v any
	var err error
	if e.Name == "default" {
		v, _, err = r.evalMaybe(e.X)
	} else {
		v, err = r.eval(e.X)
	}
	if err != nil {
		return nil, false, err
	}

	args := make([]any, len(e.Args))
	for i, arg := range e.Args {
		args[i], err = r.eval(arg)
		if err != nil {
			return nil, false, err
		}
	}

	out, err := fn(normalize(v), args)
	if err != nil {
		return nil, false, r.errorf(e.Position, "filter %q: %v", e.Name, err)
	}
	return normalize(out), true, nil
}

func (r *renderer) evalTest(e *ast.Test) (bool, error) {
	if e.Name == "defined" {
		_, defined, err := r.evalMaybe(e.X)
		if err != nil {
			return false, err
		}
		if e.Negated {
			return !defined, nil
		}
		return defined, nil
	}

	fn, ok := r.engine.tests[e.Name]
	if !ok {
		return false, r.errorf(e.Position, "unknown test %q", e.Name)
	}

	// Tests other than defined still evaluate leniently: testing an
	// undefined value is not itself an error.
	v, _, err := r.evalMaybe(e.X)
	if err != nil {
		return false, err
	}
	result, err := fn(normalize(v))
	if err != nil {
		return false, r.errorf(e.Position, "test %q: %v", e.Name, err)
	}
	if e.Negated {
		return !result, nil
	}
	return result, nil
}
