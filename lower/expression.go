package lower

import (
	"fmt"

	"github.com/gogpu/wgsl-ir/ir"
	"github.com/gogpu/wgsl-ir/wgsl"
)

// lowerExpression lowers a single WGSL expression tree to an
// ir.ExpressionHandle, applying the Load Rule at every place the result
// is consumed as a value rather than a pointer. target, when non-nil,
// is the statement list the emitter's flushed StmtEmit ranges (and any
// side-effecting call/atomic/image-store statements) are appended to;
// it is nil only for const/override initializers, which may never
// contain a side-effecting call.
func lowerExpression(ec *ExpressionContext, expr wgsl.Expr, target *ir.Block) (ir.ExpressionHandle, error) {
	t, err := lowerExpressionTyped(ec, expr, target)
	if err != nil {
		return 0, err
	}
	return loadIfReference(ec, t)
}

// lowerExpressionTyped is lowerExpression without the trailing Load
// Rule application, used by callers (member/index access, address-of)
// that need to know whether the result is still a Reference.
func lowerExpressionTyped(ec *ExpressionContext, expr wgsl.Expr, target *ir.Block) (Typed[ir.ExpressionHandle], error) {
	switch e := expr.(type) {
	case *wgsl.Literal:
		return ec.lowerLiteral(e)
	case *wgsl.Ident:
		return ec.resolveIdentifier(e)
	case *wgsl.BinaryExpr:
		return ec.lowerBinary(e, target)
	case *wgsl.UnaryExpr:
		return ec.lowerUnary(e, target)
	case *wgsl.CallExpr:
		return ec.lowerCall(e, target)
	case *wgsl.ConstructExpr:
		return ec.lowerConstruct(e, target)
	case *wgsl.MemberExpr:
		return ec.lowerMember(e, target)
	case *wgsl.IndexExpr:
		return ec.lowerIndex(e, target)
	case *wgsl.BitcastExpr:
		return ec.lowerBitcast(e, target)
	default:
		return Typed[ir.ExpressionHandle]{}, fmt.Errorf("lower: unsupported expression %T", expr)
	}
}

// loadIfReference applies the Load Rule: a Reference handle (a pointer
// produced by resolving a variable or an access chain into one) is
// replaced by an ExprLoad through it; a Plain handle passes through
// untouched. A load through memory can never be const-evaluated, so the
// emitted ExprLoad is always recorded as Runtime regardless of the
// pointer's own recorded kind.
func loadIfReference(ec *ExpressionContext, t Typed[ir.ExpressionHandle]) (ir.ExpressionHandle, error) {
	if !t.IsReference() {
		return t.Value, nil
	}
	h := ec.AppendExpression(ir.Expression{Kind: ir.ExprLoad{Pointer: t.Value}}, ir.KindRuntime)
	return h, nil
}

// lowerLiteral lowers a literal token to an ExprLiteral (or, for
// integer/float literals with no concretizing suffix, an abstract
// scalar the Typifier will later narrow down to a concrete width at
// the site that consumes it).
func (ec *ExpressionContext) lowerLiteral(l *wgsl.Literal) (Typed[ir.ExpressionHandle], error) {
	value, kind, err := literalValue(l)
	if err != nil {
		return Typed[ir.ExpressionHandle]{}, wrapErr(l.Span, err, "literal %q", l.Value)
	}
	h := ec.AppendExpression(ir.Expression{Kind: ir.Literal{Value: value}}, kind)
	return TypedPlain(h), nil
}

func literalValue(l *wgsl.Literal) (ir.LiteralValue, ir.ExpressionKindClass, error) {
	switch l.Kind {
	case wgsl.TokenIntLiteral:
		switch {
		case hasSuffix(l.Value, "u"):
			n, err := parseIntLiteral(trimSuffix(l.Value, "u"))
			return ir.LiteralU32(uint32(n)), ir.KindConst, err
		case hasSuffix(l.Value, "i"):
			n, err := parseIntLiteral(trimSuffix(l.Value, "i"))
			return ir.LiteralI32(int32(n)), ir.KindConst, err
		default:
			n, err := parseIntLiteral(l.Value)
			return ir.LiteralAbstractInt(n), ir.KindConst, err
		}
	case wgsl.TokenFloatLiteral:
		switch {
		case hasSuffix(l.Value, "f"):
			f, err := parseFloatLiteral(trimSuffix(l.Value, "f"))
			return ir.LiteralF32(float32(f)), ir.KindConst, err
		case hasSuffix(l.Value, "h"):
			f, err := parseFloatLiteral(trimSuffix(l.Value, "h"))
			return ir.LiteralF32(float32(f)), ir.KindConst, err
		default:
			f, err := parseFloatLiteral(l.Value)
			return ir.LiteralAbstractFloat(f), ir.KindConst, err
		}
	case wgsl.TokenTrue:
		return ir.LiteralBool(true), ir.KindConst, nil
	case wgsl.TokenFalse:
		return ir.LiteralBool(false), ir.KindConst, nil
	case wgsl.TokenBoolLiteral:
		return ir.LiteralBool(l.Value == "true"), ir.KindConst, nil
	default:
		return nil, ir.KindConst, fmt.Errorf("unsupported literal token kind %v", l.Kind)
	}
}

// resolveIdentifier looks an identifier up against local scope first,
// then module-scope globals/constants/overrides, producing the
// reference/plain expression the rest of the lowering pass can build
// on. Function parameters are Plain because WGSL does not allow taking
// the address of one directly; everything addressable (locals,
// globals) is Reference until the Load Rule fires.
func (ec *ExpressionContext) resolveIdentifier(id *wgsl.Ident) (Typed[ir.ExpressionHandle], error) {
	if local, ok := ec.LookupLocal(id.Name); ok {
		switch local.kind {
		case localVar:
			h := ec.AppendExpression(ir.Expression{Kind: ir.ExprLocalVariable{Variable: local.varIndex}}, ir.KindRuntime)
			return TypedReference(h), nil
		default: // localLet, localConst
			return TypedPlain(local.expr), nil
		}
	}

	for i, arg := range ec.Function.Arguments {
		if arg.Name == id.Name {
			h := ec.AppendExpression(ir.Expression{Kind: ir.ExprFunctionArgument{Index: uint32(i)}}, ir.KindRuntime)
			return TypedPlain(h), nil
		}
	}

	if gh, ok := ec.globalsByName[id.Name]; ok {
		gv := ec.Module.GlobalVariables[gh]
		h := ec.AppendExpression(ir.Expression{Kind: ir.ExprGlobalVariable{Variable: gh}}, ir.KindRuntime)
		if gv.Space == ir.SpaceHandle {
			return TypedPlain(h), nil
		}
		return TypedReference(h), nil
	}

	if ch, ok := ec.constsByName[id.Name]; ok {
		h := ec.AppendExpression(ir.Expression{Kind: ir.ExprConstant{Constant: ch}}, ir.KindConst)
		return TypedPlain(h), nil
	}

	if oh, ok := ec.overridesByName[id.Name]; ok {
		if ec.Mode == ModeConstant {
			return Typed[ir.ExpressionHandle]{}, fmt.Errorf("override %q cannot be used in a module-constant expression", id.Name)
		}
		h := ec.AppendExpression(ir.Expression{Kind: ir.ExprOverride{Override: oh}}, ir.KindOverride)
		return TypedPlain(h), nil
	}

	return Typed[ir.ExpressionHandle]{}, &UnknownIdent{Name: id.Name, Span: id.Span}
}

// lowerBinary lowers both operands (applying the Load Rule to each,
// since a binary operator always consumes values, never references),
// runs them through convertBinaryOperands to settle a consensus scalar
// kind and apply any scalar-to-vector splat (§4.7), and records the
// result's kind as the Combine of its (possibly rewritten) operands.
func (ec *ExpressionContext) lowerBinary(e *wgsl.BinaryExpr, target *ir.Block) (Typed[ir.ExpressionHandle], error) {
	if e.Op == wgsl.TokenAmpAmp || e.Op == wgsl.TokenPipePipe {
		return ec.lowerShortCircuit(e, target)
	}

	left, err := lowerExpression(ec, e.Left, target)
	if err != nil {
		return Typed[ir.ExpressionHandle]{}, err
	}
	right, err := lowerExpression(ec, e.Right, target)
	if err != nil {
		return Typed[ir.ExpressionHandle]{}, err
	}

	op, err := tokenToBinaryOp(e.Op)
	if err != nil {
		return Typed[ir.ExpressionHandle]{}, wrapErr(e.Span, err, "binary expression")
	}

	if op == ir.BinaryShiftLeft || op == ir.BinaryShiftRight {
		u32, ok := ec.LookupNamedType("u32")
		if ok {
			if converted, cerr := ec.convertToType(right, u32, e.Span); cerr == nil {
				right = converted
			}
		}
	} else {
		left, right, err = ec.convertBinaryOperands(op, left, right, e.Span)
		if err != nil {
			return Typed[ir.ExpressionHandle]{}, err
		}
	}

	kind := ir.Combine(ec.Kinds.Get(left), ec.Kinds.Get(right))
	h := ec.AppendExpression(ir.Expression{Kind: ir.ExprBinary{Op: op, Left: left, Right: right}}, kind)
	return TypedPlain(h), nil
}

// lowerShortCircuit lowers && and || as ExprSelect over the fully
// lowered operands: WGSL's logical-and/or are not short-circuiting at
// the IR level (naga represents them as Select, with the caveat that a
// genuinely side-effecting right operand is not expressible here --
// matching how the teacher's IR has no branching expression form).
func (ec *ExpressionContext) lowerShortCircuit(e *wgsl.BinaryExpr, target *ir.Block) (Typed[ir.ExpressionHandle], error) {
	left, err := lowerExpression(ec, e.Left, target)
	if err != nil {
		return Typed[ir.ExpressionHandle]{}, err
	}
	right, err := lowerExpression(ec, e.Right, target)
	if err != nil {
		return Typed[ir.ExpressionHandle]{}, err
	}

	kind := ir.Combine(ec.Kinds.Get(left), ec.Kinds.Get(right))
	var h ir.ExpressionHandle
	if e.Op == wgsl.TokenAmpAmp {
		h = ec.AppendExpression(ir.Expression{Kind: ir.ExprSelect{Condition: left, Accept: right, Reject: left}}, kind)
	} else {
		h = ec.AppendExpression(ir.Expression{Kind: ir.ExprSelect{Condition: left, Accept: left, Reject: right}}, kind)
	}
	return TypedPlain(h), nil
}

func (ec *ExpressionContext) lowerUnary(e *wgsl.UnaryExpr, target *ir.Block) (Typed[ir.ExpressionHandle], error) {
	if e.Op == wgsl.TokenAmpersand {
		return ec.lowerAddressOf(e.Operand, target)
	}
	if e.Op == wgsl.TokenStar {
		return ec.lowerDeref(e.Operand, target)
	}

	operand, err := lowerExpression(ec, e.Operand, target)
	if err != nil {
		return Typed[ir.ExpressionHandle]{}, err
	}
	op, err := tokenToUnaryOp(e.Op)
	if err != nil {
		return Typed[ir.ExpressionHandle]{}, wrapErr(e.Span, err, "unary expression")
	}
	kind := ec.Kinds.Get(operand)
	h := ec.AppendExpression(ir.Expression{Kind: ir.ExprUnary{Op: op, Expr: operand}}, kind)
	return TypedPlain(h), nil
}

// lowerAddressOf lowers `&expr`: the operand must itself lower to a
// Reference (an lvalue) and must not be a single vector component
// (`&a.x` where a: vec3<f32> is rejected -- a vector component has no
// address, only the whole vector does). `&` otherwise simply passes the
// pointer handle through untouched rather than loading it.
func (ec *ExpressionContext) lowerAddressOf(operand wgsl.Expr, target *ir.Block) (Typed[ir.ExpressionHandle], error) {
	t, err := lowerExpressionTyped(ec, operand, target)
	if err != nil {
		return Typed[ir.ExpressionHandle]{}, err
	}
	if !t.IsReference() {
		return Typed[ir.ExpressionHandle]{}, &InvalidAddressOfOperand{
			Reason: "operand is not a storage location",
			Span:   operand.Pos(),
		}
	}
	if ec.isVectorComponentAccess(t.Value) {
		return Typed[ir.ExpressionHandle]{}, &InvalidAddressOfOperand{
			Reason: "a single vector component has no address",
			Span:   operand.Pos(),
		}
	}
	return TypedReference(t.Value), nil
}

// isVectorComponentAccess reports whether handle is an ExprAccessIndex
// whose base resolves to a vector type -- lowerMember's shape for a
// single-component swizzle (`a.x`) -- the one reference-typed
// expression `&` must still reject, since WGSL gives no address to a
// lone vector component.
func (ec *ExpressionContext) isVectorComponentAccess(handle ir.ExpressionHandle) bool {
	if int(handle) >= len(ec.Function.Expressions) {
		return false
	}
	access, ok := ec.Function.Expressions[handle].Kind.(ir.ExprAccessIndex)
	if !ok {
		return false
	}
	return ec.isVectorTyped(access.Base)
}

// lowerDeref lowers `*expr`: the operand is a pointer value (Plain,
// since it is itself the result of an already-evaluated pointer
// expression such as a function parameter), and `*` reinterprets it as
// a Reference so the Load Rule applies exactly once at the point of
// use.
func (ec *ExpressionContext) lowerDeref(operand wgsl.Expr, target *ir.Block) (Typed[ir.ExpressionHandle], error) {
	h, err := lowerExpression(ec, operand, target)
	if err != nil {
		return Typed[ir.ExpressionHandle]{}, err
	}
	inner, err := ec.Typifier.InnerOf(h)
	if err != nil {
		return Typed[ir.ExpressionHandle]{}, err
	}
	if _, ok := inner.(ir.PointerType); !ok {
		return Typed[ir.ExpressionHandle]{}, &NotAPointer{Got: inner, Span: operand.Pos()}
	}
	return TypedReference(h), nil
}

// lowerMember lowers `.field` / swizzle access. A swizzle of length 1
// (`.x`) is represented as a single-component ExprAccessIndex/Swizzle
// the same as any other length, kept plain for consistency with the
// teacher's naga IR, which has no separate "scalar swizzle" shape.
func (ec *ExpressionContext) lowerMember(e *wgsl.MemberExpr, target *ir.Block) (Typed[ir.ExpressionHandle], error) {
	base, err := lowerExpressionTyped(ec, e.Expr, target)
	if err != nil {
		return Typed[ir.ExpressionHandle]{}, err
	}

	baseIsVector := ec.isVectorTyped(base.Value)

	if comp, ok := swizzleComponent(rune(firstByteOr(e.Member, 0))); ok && len(e.Member) == 1 && baseIsVector {
		kind := ec.Kinds.Get(base.Value)
		h := ec.AppendExpression(ir.Expression{Kind: ir.ExprAccessIndex{Base: base.Value, Index: uint32(comp)}}, kind)
		if base.IsReference() {
			return TypedReference(h), nil
		}
		return TypedPlain(h), nil
	}

	if pattern, size, ok := swizzlePattern(e.Member); ok && baseIsVector {
		baseValue, err := loadIfReference(ec, base)
		if err != nil {
			return Typed[ir.ExpressionHandle]{}, err
		}
		kind := ec.Kinds.Get(baseValue)
		h := ec.AppendExpression(ir.Expression{Kind: ir.ExprSwizzle{Size: size, Vector: baseValue, Pattern: pattern}}, kind)
		return TypedPlain(h), nil
	}

	index, err := ec.structMemberIndex(base.Value, e.Member)
	if err != nil {
		return Typed[ir.ExpressionHandle]{}, wrapErr(e.Span, err, "member %s", e.Member)
	}

	kind := ec.Kinds.Get(base.Value)
	h := ec.AppendExpression(ir.Expression{Kind: ir.ExprAccessIndex{Base: base.Value, Index: index}}, kind)
	if base.IsReference() {
		return TypedReference(h), nil
	}
	return TypedPlain(h), nil
}

func firstByteOr(s string, def byte) byte {
	if len(s) == 0 {
		return def
	}
	return s[0]
}

func (ec *ExpressionContext) isVectorTyped(h ir.ExpressionHandle) bool {
	inner, err := ec.Typifier.InnerOf(h)
	if err != nil {
		return false
	}
	_, ok := inner.(ir.VectorType)
	return ok
}

// structMemberIndex resolves field to its position within the struct
// type of base's expression, consulting the Typifier rather than
// re-deriving the type from syntax.
func (ec *ExpressionContext) structMemberIndex(base ir.ExpressionHandle, field string) (uint32, error) {
	inner, err := ec.Typifier.InnerOf(base)
	if err != nil {
		return 0, err
	}
	st, ok := inner.(ir.StructType)
	if !ok {
		return 0, fmt.Errorf("member access on non-struct type %T", inner)
	}
	for i, m := range st.Members {
		if m.Name == field {
			return uint32(i), nil
		}
	}
	return 0, &BadAccessor{Member: field}
}

func (ec *ExpressionContext) lowerIndex(e *wgsl.IndexExpr, target *ir.Block) (Typed[ir.ExpressionHandle], error) {
	base, err := lowerExpressionTyped(ec, e.Expr, target)
	if err != nil {
		return Typed[ir.ExpressionHandle]{}, err
	}
	index, err := lowerExpression(ec, e.Index, target)
	if err != nil {
		return Typed[ir.ExpressionHandle]{}, err
	}

	kind := ir.Combine(ec.Kinds.Get(base.Value), ec.Kinds.Get(index))
	h := ec.AppendExpression(ir.Expression{Kind: ir.ExprAccess{Base: base.Value, Index: index}}, kind)
	if base.IsReference() {
		return TypedReference(h), nil
	}
	return TypedPlain(h), nil
}

// lowerConstruct lowers a type-constructor call (`vec3<f32>(...)`,
// `MyStruct(...)`, or a zero-value constructor with no arguments).
func (ec *ExpressionContext) lowerConstruct(e *wgsl.ConstructExpr, target *ir.Block) (Typed[ir.ExpressionHandle], error) {
	typeHandle, err := ec.resolveType(e.Type)
	if err != nil {
		return Typed[ir.ExpressionHandle]{}, wrapErr(e.Span, err, "type constructor")
	}

	if len(e.Args) == 0 {
		h := ec.AppendExpression(ir.Expression{Kind: ir.ExprZeroValue{Type: typeHandle}}, ir.KindConst)
		return TypedPlain(h), nil
	}

	// A single-argument numeric constructor of a scalar type (`f32(x)`,
	// `i32(x)`, `u32(x)`, `bool(x)`) is a conversion, not a composite.
	if len(e.Args) == 1 {
		if scalar, ok := ec.scalarTarget(typeHandle); ok {
			return ec.lowerConversion(scalar, e.Args[0], target)
		}
	}

	components := make([]ir.ExpressionHandle, len(e.Args))
	leaves := make([]ir.ScalarType, 0, len(e.Args))
	scalarLeaves := true
	kind := ir.KindConst
	for i, arg := range e.Args {
		h, err := lowerExpression(ec, arg, target)
		if err != nil {
			return Typed[ir.ExpressionHandle]{}, err
		}
		components[i] = h
		kind = ir.Combine(kind, ec.Kinds.Get(h))
		if inner, ierr := ec.Typifier.InnerOf(h); ierr == nil {
			if leaf, _, ok := leafOf(inner); ok {
				leaves = append(leaves, leaf)
				continue
			}
		}
		scalarLeaves = false
	}

	// A componentwise constructor's arguments each convert towards the
	// consensus scalar kind across all of them (§4.7), the same rule a
	// binary operator's two operands settle with generalized to N-ary.
	if scalarLeaves && len(leaves) == len(e.Args) {
		kinds := make([]ir.ScalarKind, len(leaves))
		for i, l := range leaves {
			kinds[i] = l.Kind
		}
		if consensus, ok := consensusOfMany(kinds); ok {
			width := uint8(0)
			for _, l := range leaves {
				if l.Width > width {
					width = l.Width
				}
			}
			if width == 0 {
				width = defaultWidthFor(consensus)
			}
			target := ir.ScalarType{Kind: consensus, Width: width}
			for i, h := range components {
				converted, err := ec.convertLeafTo(h, target)
				if err != nil {
					return Typed[ir.ExpressionHandle]{}, wrapErr(e.Span, err, "construct argument %d", i)
				}
				components[i] = converted
			}
		}
	}

	h := ec.AppendExpression(ir.Expression{Kind: ir.ExprCompose{Type: typeHandle, Components: components}}, kind)
	return TypedPlain(h), nil
}

func (ec *ExpressionContext) scalarTarget(h ir.TypeHandle) (ir.ScalarType, bool) {
	typ, ok := ec.Registry.Lookup(h)
	if !ok {
		return ir.ScalarType{}, false
	}
	s, ok := typ.Inner.(ir.ScalarType)
	return s, ok
}

// lowerConversion lowers a scalar conversion `T(x)` as an ExprAs,
// converting (not bitcasting) to the target scalar's kind/width.
func (ec *ExpressionContext) lowerConversion(target_ ir.ScalarType, arg wgsl.Expr, target *ir.Block) (Typed[ir.ExpressionHandle], error) {
	h, err := lowerExpression(ec, arg, target)
	if err != nil {
		return Typed[ir.ExpressionHandle]{}, err
	}
	width := target_.Width
	kind := ec.Kinds.Get(h)
	r := ec.AppendExpression(ir.Expression{Kind: ir.ExprAs{Expr: h, Kind: target_.Kind, Convert: &width}}, kind)
	return TypedPlain(r), nil
}

func (ec *ExpressionContext) lowerBitcast(e *wgsl.BitcastExpr, target *ir.Block) (Typed[ir.ExpressionHandle], error) {
	h, err := lowerExpression(ec, e.Expr, target)
	if err != nil {
		return Typed[ir.ExpressionHandle]{}, err
	}
	typeHandle, err := ec.resolveType(e.Type)
	if err != nil {
		return Typed[ir.ExpressionHandle]{}, wrapErr(e.Span, err, "bitcast")
	}
	scalar, ok := ec.scalarTarget(typeHandle)
	if !ok {
		return Typed[ir.ExpressionHandle]{}, newErr(e.Span, "bitcast target must be a scalar type")
	}
	kind := ir.KindRuntime
	if k := ec.Kinds.Get(h); k != ir.KindRuntime {
		kind = k
	}
	r := ec.AppendExpression(ir.Expression{Kind: ir.ExprAs{Expr: h, Kind: scalar.Kind, Convert: nil}}, kind)
	return TypedPlain(r), nil
}

func hasSuffix(s, suf string) bool {
	return len(s) >= len(suf) && s[len(s)-len(suf):] == suf
}

func trimSuffix(s, suf string) string {
	if hasSuffix(s, suf) {
		return s[:len(s)-len(suf)]
	}
	return s
}

func swizzlePattern(member string) ([4]ir.SwizzleComponent, ir.VectorSize, bool) {
	if len(member) < 1 || len(member) > 4 {
		return [4]ir.SwizzleComponent{}, 0, false
	}
	var pattern [4]ir.SwizzleComponent
	for i, r := range member {
		c, ok := swizzleComponent(r)
		if !ok {
			return [4]ir.SwizzleComponent{}, 0, false
		}
		pattern[i] = c
	}
	for i := len(member); i < 4; i++ {
		pattern[i] = pattern[len(member)-1]
	}
	if len(member) == 1 {
		return pattern, 0, false // single-component access goes through AccessIndex, not Swizzle
	}
	return pattern, ir.VectorSize(len(member)), true
}

func swizzleComponent(r rune) (ir.SwizzleComponent, bool) {
	switch r {
	case 'x', 'r':
		return ir.SwizzleX, true
	case 'y', 'g':
		return ir.SwizzleY, true
	case 'z', 'b':
		return ir.SwizzleZ, true
	case 'w', 'a':
		return ir.SwizzleW, true
	default:
		return 0, false
	}
}
