package lower

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gogpu/wgsl-ir/ir"
	"github.com/gogpu/wgsl-ir/wgsl"
)

var binaryOpTable = map[wgsl.TokenKind]ir.BinaryOperator{
	wgsl.TokenPlus:           ir.BinaryAdd,
	wgsl.TokenMinus:          ir.BinarySubtract,
	wgsl.TokenStar:           ir.BinaryMultiply,
	wgsl.TokenSlash:          ir.BinaryDivide,
	wgsl.TokenPercent:        ir.BinaryModulo,
	wgsl.TokenEqualEqual:     ir.BinaryEqual,
	wgsl.TokenBangEqual:      ir.BinaryNotEqual,
	wgsl.TokenLess:           ir.BinaryLess,
	wgsl.TokenLessEqual:      ir.BinaryLessEqual,
	wgsl.TokenGreater:        ir.BinaryGreater,
	wgsl.TokenGreaterEqual:   ir.BinaryGreaterEqual,
	wgsl.TokenAmpersand:      ir.BinaryAnd,
	wgsl.TokenPipe:           ir.BinaryInclusiveOr,
	wgsl.TokenCaret:          ir.BinaryExclusiveOr,
	wgsl.TokenLessLess:       ir.BinaryShiftLeft,
	wgsl.TokenGreaterGreater: ir.BinaryShiftRight,
}

var unaryOpTable = map[wgsl.TokenKind]ir.UnaryOperator{
	wgsl.TokenMinus: ir.UnaryNegate,
	wgsl.TokenBang:  ir.UnaryLogicalNot,
	wgsl.TokenTilde: ir.UnaryBitwiseNot,
}

var assignOpTable = map[wgsl.TokenKind]ir.BinaryOperator{
	wgsl.TokenPlusEqual:           ir.BinaryAdd,
	wgsl.TokenMinusEqual:          ir.BinarySubtract,
	wgsl.TokenStarEqual:           ir.BinaryMultiply,
	wgsl.TokenSlashEqual:          ir.BinaryDivide,
	wgsl.TokenPercentEqual:        ir.BinaryModulo,
	wgsl.TokenAmpEqual:            ir.BinaryAnd,
	wgsl.TokenPipeEqual:           ir.BinaryInclusiveOr,
	wgsl.TokenCaretEqual:          ir.BinaryExclusiveOr,
	wgsl.TokenLessLessEqual:       ir.BinaryShiftLeft,
	wgsl.TokenGreaterGreaterEqual: ir.BinaryShiftRight,
}

func tokenToBinaryOp(tok wgsl.TokenKind) (ir.BinaryOperator, error) {
	if op, ok := binaryOpTable[tok]; ok {
		return op, nil
	}
	return 0, fmt.Errorf("unsupported binary operator token %v", tok)
}

func tokenToUnaryOp(tok wgsl.TokenKind) (ir.UnaryOperator, error) {
	if op, ok := unaryOpTable[tok]; ok {
		return op, nil
	}
	return 0, fmt.Errorf("unsupported unary operator token %v", tok)
}

func assignOpToBinary(tok wgsl.TokenKind) (ir.BinaryOperator, error) {
	if op, ok := assignOpTable[tok]; ok {
		return op, nil
	}
	return 0, fmt.Errorf("unsupported compound assignment token %v", tok)
}

func parseIntLiteral(s string) (int64, error) {
	s = strings.TrimSuffix(s, "u")
	s = strings.TrimSuffix(s, "i")
	n, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		if u, uerr := strconv.ParseUint(s, 0, 64); uerr == nil {
			return int64(u), nil
		}
		return 0, fmt.Errorf("invalid integer literal %q: %w", s, err)
	}
	return n, nil
}

func parseFloatLiteral(s string) (float64, error) {
	s = strings.TrimSuffix(s, "f")
	s = strings.TrimSuffix(s, "h")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float literal %q: %w", s, err)
	}
	return f, nil
}

// leafOf reports the scalar "leaf" of t -- t itself if t is a scalar,
// or its component scalar if t is a vector -- and the vector size (0
// for a bare scalar), the shape every automatic-conversion and splat
// decision keys off.
func leafOf(t ir.TypeInner) (ir.ScalarType, ir.VectorSize, bool) {
	switch v := t.(type) {
	case ir.ScalarType:
		return v, 0, true
	case ir.VectorType:
		return v.Scalar, v.Size, true
	default:
		return ir.ScalarType{}, 0, false
	}
}

func isAbstractKind(k ir.ScalarKind) bool {
	return k == ir.ScalarAbstractInt || k == ir.ScalarAbstractFloat
}

func scalarKindName(k ir.ScalarKind) string {
	switch k {
	case ir.ScalarSint:
		return "i32"
	case ir.ScalarUint:
		return "u32"
	case ir.ScalarFloat:
		return "f32"
	case ir.ScalarBool:
		return "bool"
	case ir.ScalarAbstractInt:
		return "abstract-int"
	case ir.ScalarAbstractFloat:
		return "abstract-float"
	default:
		return "unknown scalar"
	}
}

// concreteFromAbstract narrows an abstract scalar kind to its default
// concrete kind (i32 for abstract-int, f32 for abstract-float),
// matching WGSL's default concretization when nothing else narrows it
// first.
func concreteFromAbstract(k ir.ScalarKind) ir.ScalarKind {
	switch k {
	case ir.ScalarAbstractInt:
		return ir.ScalarSint
	case ir.ScalarAbstractFloat:
		return ir.ScalarFloat
	default:
		return k
	}
}

func defaultWidthFor(k ir.ScalarKind) uint8 {
	if k == ir.ScalarBool {
		return 0
	}
	return 4
}

// automaticConversionExists reports whether WGSL permits an implicit
// conversion from an operand of kind "from" to a context expecting
// kind "to". Only an abstract operand ever converts automatically --
// two distinct concrete scalar kinds never do, even same-width ones
// like i32/u32 (an explicit T(x) constructor is required there).
func automaticConversionExists(from, to ir.ScalarKind) bool {
	if from == to {
		return true
	}
	switch from {
	case ir.ScalarAbstractInt:
		return to == ir.ScalarSint || to == ir.ScalarUint || to == ir.ScalarFloat
	case ir.ScalarAbstractFloat:
		return to == ir.ScalarFloat
	default:
		return false
	}
}

// consensusScalarKind resolves the common scalar kind two operand
// leaves convert to, per WGSL's binary-operator conversion rules: equal
// kinds need no conversion; an abstract operand yields to a concrete
// one it can automatically convert to; two abstract operands settle on
// abstract-float if either is abstract-float, abstract-int otherwise;
// two distinct concrete kinds have no consensus.
func consensusScalarKind(a, b ir.ScalarKind) (ir.ScalarKind, bool) {
	if a == b {
		return a, true
	}
	aAbs, bAbs := isAbstractKind(a), isAbstractKind(b)
	switch {
	case aAbs && bAbs:
		if a == ir.ScalarAbstractFloat || b == ir.ScalarAbstractFloat {
			return ir.ScalarAbstractFloat, true
		}
		return ir.ScalarAbstractInt, true
	case aAbs && !bAbs:
		if automaticConversionExists(a, b) {
			return b, true
		}
		return 0, false
	case bAbs:
		if automaticConversionExists(b, a) {
			return a, true
		}
		return 0, false
	default:
		return 0, false
	}
}

// consensusOfMany folds consensusScalarKind across every element of
// kinds, the construct-expression analogue of the pairwise consensus a
// binary operator's two operands settle with.
func consensusOfMany(kinds []ir.ScalarKind) (ir.ScalarKind, bool) {
	if len(kinds) == 0 {
		return 0, false
	}
	result := kinds[0]
	for _, k := range kinds[1:] {
		c, ok := consensusScalarKind(result, k)
		if !ok {
			return 0, false
		}
		result = c
	}
	return result, true
}

// convertLeafTo wraps h in an ExprAs converting its scalar/vector leaf
// kind to target, a no-op (h returned unchanged) when it is already
// that kind -- the elementwise conversion step every automatic-
// conversion and explicit-cast site bottoms out in (ExprAs resolves
// componentwise on a vector operand, so this works for both shapes).
func (ec *ExpressionContext) convertLeafTo(h ir.ExpressionHandle, target ir.ScalarType) (ir.ExpressionHandle, error) {
	inner, err := ec.Typifier.InnerOf(h)
	if err != nil {
		return 0, err
	}
	leaf, _, ok := leafOf(inner)
	if !ok {
		return 0, fmt.Errorf("cannot convert a non-scalar, non-vector expression")
	}
	if leaf.Kind == target.Kind && leaf.Width == target.Width {
		return h, nil
	}
	width := target.Width
	kind := ec.Kinds.Get(h)
	r := ec.AppendExpression(ir.Expression{Kind: ir.ExprAs{Expr: h, Kind: target.Kind, Convert: &width}}, kind)
	return r, nil
}

// splatTo broadcasts scalar handle h to a vector of size size -- the
// ExprSplat node WGSL's scalar-to-vector binary-operand rule lowers to.
func (ec *ExpressionContext) splatTo(h ir.ExpressionHandle, size ir.VectorSize) ir.ExpressionHandle {
	kind := ec.Kinds.Get(h)
	return ec.AppendExpression(ir.Expression{Kind: ir.ExprSplat{Size: size, Value: h}}, kind)
}

// splatsOperator reports whether op is one of the binary operators
// WGSL automatically splats a scalar operand across to match a vector
// operand -- add, subtract, divide, modulo. Multiply is deliberately
// excluded: vec*scalar is a first-class operation backends lower
// natively, not sugar for a splat.
func splatsOperator(op ir.BinaryOperator) bool {
	switch op {
	case ir.BinaryAdd, ir.BinarySubtract, ir.BinaryDivide, ir.BinaryModulo:
		return true
	default:
		return false
	}
}

// convertBinaryOperands applies automatic conversions and the
// scalar-to-vector splat rule (§4.7) to a binary operator's two
// already-lowered operands: the scalar leaves reach a consensus kind
// first (an AutoConversionFailure if none exists), then a lone scalar
// operand facing a vector operand is splatted to match -- but only for
// the splat-eligible operators.
func (ec *ExpressionContext) convertBinaryOperands(op ir.BinaryOperator, left, right ir.ExpressionHandle, span wgsl.Span) (ir.ExpressionHandle, ir.ExpressionHandle, error) {
	leftInner, err := ec.Typifier.InnerOf(left)
	if err != nil {
		return 0, 0, err
	}
	rightInner, err := ec.Typifier.InnerOf(right)
	if err != nil {
		return 0, 0, err
	}
	leftLeaf, leftSize, ok := leafOf(leftInner)
	if !ok {
		return left, right, nil
	}
	rightLeaf, rightSize, ok := leafOf(rightInner)
	if !ok {
		return left, right, nil
	}

	consensus, ok := consensusScalarKind(leftLeaf.Kind, rightLeaf.Kind)
	if !ok {
		return 0, 0, &AutoConversionFailure{From: rightLeaf.Kind, To: leftLeaf.Kind, Span: span}
	}
	width := leftLeaf.Width
	if w := rightLeaf.Width; w > width {
		width = w
	}
	if width == 0 {
		width = defaultWidthFor(consensus)
	}
	target := ir.ScalarType{Kind: consensus, Width: width}

	left, err = ec.convertLeafTo(left, target)
	if err != nil {
		return 0, 0, attachSpan(err, span)
	}
	right, err = ec.convertLeafTo(right, target)
	if err != nil {
		return 0, 0, attachSpan(err, span)
	}

	switch {
	case leftSize == 0 && rightSize != 0 && splatsOperator(op):
		left = ec.splatTo(left, rightSize)
	case rightSize == 0 && leftSize != 0 && splatsOperator(op):
		right = ec.splatTo(right, leftSize)
	}
	return left, right, nil
}

// convertToType converts h towards target's leaf scalar kind, erroring
// if the two sides are different vector/scalar shapes or no automatic
// conversion exists between their scalar kinds. A target type with no
// scalar leaf at all (a struct, array, matrix, ...) passes h through
// unchanged -- no scalar conversion applies there.
func (ec *ExpressionContext) convertToType(h ir.ExpressionHandle, target ir.TypeHandle, span wgsl.Span) (ir.ExpressionHandle, error) {
	targetType, ok := ec.Registry.Lookup(target)
	if !ok {
		return 0, fmt.Errorf("type handle %d not found", target)
	}
	targetLeaf, targetSize, ok := leafOf(targetType.Inner)
	if !ok {
		return h, nil
	}

	inner, err := ec.Typifier.InnerOf(h)
	if err != nil {
		return 0, err
	}
	leaf, size, ok := leafOf(inner)
	if !ok {
		return h, nil
	}
	if size != targetSize {
		return 0, &AutoConversionFailure{From: leaf.Kind, To: targetLeaf.Kind, Span: span}
	}
	if leaf.Kind == targetLeaf.Kind && leaf.Width == targetLeaf.Width {
		return h, nil
	}
	if !automaticConversionExists(leaf.Kind, targetLeaf.Kind) {
		return 0, &AutoConversionFailure{From: leaf.Kind, To: targetLeaf.Kind, Span: span}
	}
	return ec.convertLeafTo(h, targetLeaf)
}

// convertTowardScalar converts h's leaf towards target, a bare scalar
// kind/width rather than a type handle -- the shape lowerAssign needs
// to convert a right-hand side towards a pointer's base scalar type.
func (ec *ExpressionContext) convertTowardScalar(h ir.ExpressionHandle, target ir.ScalarType, span wgsl.Span) (ir.ExpressionHandle, error) {
	inner, err := ec.Typifier.InnerOf(h)
	if err != nil {
		return 0, err
	}
	leaf, _, ok := leafOf(inner)
	if !ok {
		return h, nil
	}
	if leaf.Kind == target.Kind && leaf.Width == target.Width {
		return h, nil
	}
	if !automaticConversionExists(leaf.Kind, target.Kind) {
		return 0, &AutoConversionFailure{From: leaf.Kind, To: target.Kind, Span: span}
	}
	return ec.convertLeafTo(h, target)
}
