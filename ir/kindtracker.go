package ir

// ExpressionKindClass classifies how an expression's value was produced:
// whether it is foldable at module-compile time, only resolvable once
// pipeline overrides are given values, or inherently a runtime value.
type ExpressionKindClass uint8

const (
	// KindConst expressions can be fully evaluated by constfold without
	// any runtime or override input.
	KindConst ExpressionKindClass = iota
	// KindOverride expressions depend on at least one pipeline-override
	// constant; they fold once override values are supplied, but not
	// before.
	KindOverride
	// KindRuntime expressions depend on a runtime value (a function
	// argument, a load from memory, a builtin call) and can never fold.
	KindRuntime
)

// KindTracker records the ExpressionKindClass of every expression in a
// function as it is lowered, parallel to Function.Expressions. The
// lowering pass consults it to decide whether a newly-formed expression
// (say, the operand of a binary op) may still be treated as const, or
// must be demoted.
type KindTracker struct {
	kinds []ExpressionKindClass
}

// NewKindTracker creates an empty tracker.
func NewKindTracker() *KindTracker {
	return &KindTracker{}
}

// Insert records the kind for a newly-appended expression. Callers must
// call Insert once per expression in append order, immediately after
// appending to Function.Expressions, so indices stay aligned.
func (k *KindTracker) Insert(kind ExpressionKindClass) {
	k.kinds = append(k.kinds, kind)
}

// Get returns the recorded kind for handle.
func (k *KindTracker) Get(handle ExpressionHandle) ExpressionKindClass {
	return k.kinds[handle]
}

// Set overwrites the recorded kind for handle. Used by ForceNonConst.
func (k *KindTracker) Set(handle ExpressionHandle, kind ExpressionKindClass) {
	k.kinds[handle] = kind
}

// Combine folds two operand kinds into the kind of an expression built
// from both: Const only if both operands are Const; Runtime if either
// operand is Runtime; Override otherwise. This mirrors how a binary
// expression over a const and an override operand is itself override,
// never silently promoted back to const.
func Combine(a, b ExpressionKindClass) ExpressionKindClass {
	if a == KindRuntime || b == KindRuntime {
		return KindRuntime
	}
	if a == KindOverride || b == KindOverride {
		return KindOverride
	}
	return KindConst
}

// ForceNonConst demotes handle (and, by the caller re-deriving downstream
// expressions, everything built on top of it) to KindRuntime. This is a
// one-way operation: the lowering pass calls it when an expression that
// looked foldable turns out to sit in a context that can never be
// constant-evaluated (e.g. a local `let` takes the Load Rule on a
// variable, or an expression is emitted inside a genuinely runtime
// statement). A demoted expression is never re-promoted back to Const or
// Override.
func (k *KindTracker) ForceNonConst(handle ExpressionHandle) {
	k.kinds[handle] = KindRuntime
}

// Len reports how many expressions currently have a recorded kind.
func (k *KindTracker) Len() int {
	return len(k.kinds)
}
