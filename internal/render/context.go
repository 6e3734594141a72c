package render

// Context holds lexically scoped variable bindings. The outermost scope is
// the caller-provided variable set; for-loops and scoped includes push and
// pop nested scopes.
type Context struct {
	scopes []map[string]any
}

// NewContext creates a context with vars as the root scope. vars may be nil.
func NewContext(vars map[string]any) *Context {
	root := make(map[string]any, len(vars))
	for k, v := range vars {
		root[k] = normalize(v)
	}
	return &Context{scopes: []map[string]any{root}}
}

// Get resolves a name, innermost scope first.
func (c *Context) Get(name string) (any, bool) {
	for i := len(c.scopes) - 1; i >= 0; i-- {
		if v, ok := c.scopes[i][name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Set binds a name in the innermost scope.
func (c *Context) Set(name string, v any) {
	c.scopes[len(c.scopes)-1][name] = normalize(v)
}

// Push opens a nested scope.
func (c *Context) Push() {
	c.scopes = append(c.scopes, make(map[string]any))
}

// Pop closes the innermost scope. Popping the root scope is a programming
// error and panics.
func (c *Context) Pop() {
	if len(c.scopes) == 1 {
		panic("render: pop of root scope")
	}
	c.scopes = c.scopes[:len(c.scopes)-1]
}

// Flatten merges all scopes into one map, outer to inner. Used to seed the
// context of an unscoped include.
func (c *Context) Flatten() map[string]any {
	out := make(map[string]any)
	for _, scope := range c.scopes {
		for k, v := range scope {
			out[k] = v
		}
	}
	return out
}
