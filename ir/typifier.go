package ir

import "fmt"

// Typifier is a lazily-populated expression -> type cache. The lowering
// pass resolves an expression's type the first time it is needed (as an
// operand of a later expression, a Load Rule site, or a conversion) and
// the Typifier remembers the answer so repeated lookups of the same
// expression handle do not re-walk its operand chain.
//
// A Typifier is scoped to a single Function: Reset must be called before
// typifying expressions that belong to a different function.
type Typifier struct {
	module *Module
	fn     *Function
	cache  []*TypeResolution // parallel to fn.Expressions; nil entries are unresolved
}

// NewTypifier creates a Typifier bound to module and fn.
func NewTypifier(module *Module, fn *Function) *Typifier {
	t := &Typifier{module: module, fn: fn}
	t.Reset(module, fn)
	return t
}

// Reset rebinds the Typifier to a new function, discarding any cached
// resolutions (they are meaningless across functions, since expression
// handles are only unique within a function's arena).
func (t *Typifier) Reset(module *Module, fn *Function) {
	t.module = module
	t.fn = fn
	t.cache = make([]*TypeResolution, len(fn.Expressions))
}

// Grow extends the cache to cover newly appended expressions. Call this
// after appending expressions to fn.Expressions so the cache slice stays
// large enough to index by handle.
func (t *Typifier) Grow() {
	if n := len(t.fn.Expressions); n > len(t.cache) {
		grown := make([]*TypeResolution, n)
		copy(grown, t.cache)
		t.cache = grown
	}
}

// TypeOf returns the resolved type of handle, resolving and caching it if
// this is the first request for that handle.
func (t *Typifier) TypeOf(handle ExpressionHandle) (TypeResolution, error) {
	t.Grow()
	if int(handle) < len(t.cache) {
		if cached := t.cache[handle]; cached != nil {
			return *cached, nil
		}
	}

	res, err := ResolveExpressionType(t.module, t.fn, handle)
	if err != nil {
		return TypeResolution{}, err
	}

	t.Grow()
	if int(handle) < len(t.cache) {
		cached := res
		t.cache[handle] = &cached
	}
	return res, nil
}

// Invalidate drops a single cached entry, forcing the next TypeOf(handle)
// call to re-resolve. Used when an expression slot is rewritten in place
// (e.g. a Load Rule demotion that replaces an expression after it was
// speculatively typified).
func (t *Typifier) Invalidate(handle ExpressionHandle) {
	if int(handle) < len(t.cache) {
		t.cache[handle] = nil
	}
}

// InnerOf resolves handle and flattens the TypeResolution down to a
// TypeInner, looking the type up in the module arena when the resolution
// is a Handle rather than an inline Value.
func (t *Typifier) InnerOf(handle ExpressionHandle) (TypeInner, error) {
	res, err := t.TypeOf(handle)
	if err != nil {
		return nil, err
	}
	return InnerOf(t.module, res)
}

// InnerOf flattens a TypeResolution down to a TypeInner, dereferencing a
// module type handle when present.
func InnerOf(module *Module, res TypeResolution) (TypeInner, error) {
	if res.Handle != nil {
		if int(*res.Handle) >= len(module.Types) {
			return nil, fmt.Errorf("type handle %d out of range (max %d)", *res.Handle, len(module.Types))
		}
		return module.Types[*res.Handle].Inner, nil
	}
	return res.Value, nil
}

// IsAbstract reports whether inner is one of the abstract numeric scalar
// kinds the typifier assigns to un-concretized literals and constant
// arithmetic.
func IsAbstract(inner TypeInner) bool {
	s, ok := inner.(ScalarType)
	return ok && (s.Kind == ScalarAbstractInt || s.Kind == ScalarAbstractFloat)
}
