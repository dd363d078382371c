package lower

import (
	"fmt"

	"github.com/gogpu/wgsl-ir/ir"
	"github.com/gogpu/wgsl-ir/wgsl"
)

// Error is a lowering failure tied to the WGSL source span that caused
// it, matching how wgsl.SourceError carries a span through the parser.
// It remains the catch-all shape for failures that do not warrant their
// own structured type below.
type Error struct {
	Message string
	Span    wgsl.Span
	Wrapped error
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("lower: %s: %v", e.Message, e.Wrapped)
	}
	return fmt.Sprintf("lower: %s", e.Message)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// newErr builds an *Error with no wrapped cause; wrapErr wraps one.
func newErr(span wgsl.Span, format string, args ...any) *Error {
	return &Error{Message: fmt.Sprintf(format, args...), Span: span}
}

func wrapErr(span wgsl.Span, cause error, format string, args ...any) *Error {
	return &Error{Message: fmt.Sprintf(format, args...), Span: span, Wrapped: cause}
}

// InitializationTypeMismatch reports that a declaration's initializer
// neither automatically converts to the declared type nor is
// structurally identical to it -- the failure case of type_and_init's
// declared+init rule.
type InitializationTypeMismatch struct {
	Name     string
	Declared ir.TypeHandle
	Init     ir.TypeResolution
	Span     wgsl.Span
	Cause    error
}

func (e *InitializationTypeMismatch) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("lower: %s: initializer type does not match declared type %d: %v", e.Name, e.Declared, e.Cause)
	}
	return fmt.Sprintf("lower: initializer type does not match declared type %d: %v", e.Declared, e.Cause)
}

func (e *InitializationTypeMismatch) Unwrap() error { return e.Cause }

// AssignmentInvalidReason classifies why an expression cannot serve as
// an assignment (or increment/decrement) target.
type AssignmentInvalidReason uint8

const (
	// AssignmentNotReference is the fallback: the target never resolved
	// to a place expression at all (e.g. an arithmetic result).
	AssignmentNotReference AssignmentInvalidReason = iota
	// AssignmentSwizzle: a multi-component swizzle (`v.xy = ...`) names
	// more than one storage location, not a single assignable place.
	AssignmentSwizzle
	// AssignmentImmutableBinding: the root identifier is a `let`, a
	// module or local `const`, or an override -- none are `var`.
	AssignmentImmutableBinding
	// AssignmentFunctionArgument: WGSL function parameters are by-value
	// and never assignable.
	AssignmentFunctionArgument
)

func (r AssignmentInvalidReason) String() string {
	switch r {
	case AssignmentSwizzle:
		return "a multi-component swizzle does not name a single storage location"
	case AssignmentImmutableBinding:
		return "binding was not declared with var"
	case AssignmentFunctionArgument:
		return "function arguments are not assignable"
	default:
		return "expression does not name a storage location"
	}
}

// InvalidAssignment reports an assignment (or increment/decrement)
// whose left-hand side is not a valid storage location, with Reason
// identifying the specific root cause a caller walked the expression
// tree to find.
type InvalidAssignment struct {
	Reason AssignmentInvalidReason
	Span   wgsl.Span
}

func (e *InvalidAssignment) Error() string {
	return fmt.Sprintf("lower: invalid assignment target: %s", e.Reason)
}

// InvalidAddressOfOperand reports `&expr` applied to an operand that is
// not addressable (not a reference at all, or a reference to something
// WGSL explicitly disallows taking the address of, like a vector
// component).
type InvalidAddressOfOperand struct {
	Reason string
	Span   wgsl.Span
}

func (e *InvalidAddressOfOperand) Error() string {
	return fmt.Sprintf("lower: cannot take the address of this expression: %s", e.Reason)
}

// AutoConversionFailure reports that no automatic conversion exists
// from From to To (e.g. two distinct concrete scalar kinds, or
// abstract-float towards a concrete integer). Span is often unset at
// the point the failure is first detected (deep inside convert.go,
// which has no span of its own); attachSpan upgrades it once the error
// reaches a caller that does have one.
type AutoConversionFailure struct {
	From ir.ScalarKind
	To   ir.ScalarKind
	Span wgsl.Span
}

func (e *AutoConversionFailure) Error() string {
	return fmt.Sprintf("lower: no automatic conversion from %s to %s", scalarKindName(e.From), scalarKindName(e.To))
}

// WithSpan returns a copy of e with Span set, used by attachSpan to
// upgrade a conversion failure discovered with no span in scope yet.
func (e *AutoConversionFailure) WithSpan(span wgsl.Span) *AutoConversionFailure {
	c := *e
	c.Span = span
	return &c
}

// attachSpan upgrades err's span to span if err is an *AutoConversionFailure
// still carrying the zero span, leaving any other error (or an
// already-spanned conversion failure) untouched.
func attachSpan(err error, span wgsl.Span) error {
	if acf, ok := err.(*AutoConversionFailure); ok && acf.Span == (wgsl.Span{}) {
		return acf.WithSpan(span)
	}
	return err
}

// InvalidAtomicPointer reports an atomic built-in's first argument
// resolving to something other than a pointer.
type InvalidAtomicPointer struct {
	Got  ir.TypeInner
	Span wgsl.Span
}

func (e *InvalidAtomicPointer) Error() string {
	return fmt.Sprintf("lower: atomic operation requires a pointer operand, got %T", e.Got)
}

// InvalidAtomicOperandType reports a pointer argument to an atomic
// built-in whose pointee is not an atomic<T>.
type InvalidAtomicOperandType struct {
	Got  ir.TypeInner
	Span wgsl.Span
}

func (e *InvalidAtomicOperandType) Error() string {
	return fmt.Sprintf("lower: atomic operation requires a pointer to atomic<T>, got pointee %T", e.Got)
}

// InvalidSwitchSelector reports a `switch` selector whose resolved type
// is not a concrete integer scalar, per §4.4's Switch rule.
type InvalidSwitchSelector struct {
	Got  ir.TypeInner
	Span wgsl.Span
}

func (e *InvalidSwitchSelector) Error() string {
	return fmt.Sprintf("lower: switch selector must be a concrete integer scalar, got %T", e.Got)
}

// NotAPointer reports a deref (`*expr`) or atomic/built-in argument
// expected to be a pointer whose resolved type says otherwise.
type NotAPointer struct {
	Got  ir.TypeInner
	Span wgsl.Span
}

func (e *NotAPointer) Error() string {
	return fmt.Sprintf("lower: expected a pointer, got %T", e.Got)
}

// UnknownIdent reports an identifier that resolves against no local
// scope, function argument, or module-scope declaration.
type UnknownIdent struct {
	Name string
	Span wgsl.Span
}

func (e *UnknownIdent) Error() string {
	return fmt.Sprintf("lower: undeclared identifier %q", e.Name)
}

// BadAccessor reports a `.member` access naming neither a swizzle nor a
// field of the base expression's struct type.
type BadAccessor struct {
	Member string
	Span   wgsl.Span
}

func (e *BadAccessor) Error() string {
	return fmt.Sprintf("lower: no member named %q", e.Member)
}
