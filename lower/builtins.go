package lower

import (
	"fmt"

	"github.com/gogpu/wgsl-ir/ir"
	"github.com/gogpu/wgsl-ir/wgsl"
)

// mathFuncTable maps WGSL math builtin names to ir.MathFunction, kept at
// package scope so lowerCall does not rebuild it on every call.
var mathFuncTable = map[string]ir.MathFunction{
	"abs": ir.MathAbs, "min": ir.MathMin, "max": ir.MathMax,
	"clamp": ir.MathClamp, "saturate": ir.MathSaturate,

	"cos": ir.MathCos, "cosh": ir.MathCosh, "sin": ir.MathSin, "sinh": ir.MathSinh,
	"tan": ir.MathTan, "tanh": ir.MathTanh, "acos": ir.MathAcos, "asin": ir.MathAsin,
	"atan": ir.MathAtan, "atan2": ir.MathAtan2, "asinh": ir.MathAsinh,
	"acosh": ir.MathAcosh, "atanh": ir.MathAtanh,

	"radians": ir.MathRadians, "degrees": ir.MathDegrees,

	"ceil": ir.MathCeil, "floor": ir.MathFloor, "round": ir.MathRound,
	"fract": ir.MathFract, "trunc": ir.MathTrunc,

	"exp": ir.MathExp, "exp2": ir.MathExp2, "log": ir.MathLog,
	"log2": ir.MathLog2, "pow": ir.MathPow,

	"dot": ir.MathDot, "dot4I8Packed": ir.MathDot4I8Packed, "dot4U8Packed": ir.MathDot4U8Packed,
	"outerProduct": ir.MathOuter, "cross": ir.MathCross, "distance": ir.MathDistance,
	"length": ir.MathLength, "normalize": ir.MathNormalize,
	"faceForward": ir.MathFaceForward, "reflect": ir.MathReflect, "refract": ir.MathRefract,

	"sign": ir.MathSign, "fma": ir.MathFma, "mix": ir.MathMix, "step": ir.MathStep,
	"smoothstep": ir.MathSmoothStep, "sqrt": ir.MathSqrt, "inverseSqrt": ir.MathInverseSqrt,
	"inverse": ir.MathInverse, "transpose": ir.MathTranspose, "determinant": ir.MathDeterminant,
	"quantizeToF16": ir.MathQuantizeF16,

	"countTrailingZeros": ir.MathCountTrailingZeros, "countLeadingZeros": ir.MathCountLeadingZeros,
	"countOneBits": ir.MathCountOneBits, "reverseBits": ir.MathReverseBits,
	"extractBits": ir.MathExtractBits, "insertBits": ir.MathInsertBits,
	"firstTrailingBit": ir.MathFirstTrailingBit, "firstLeadingBit": ir.MathFirstLeadingBit,

	"pack4x8snorm": ir.MathPack4x8snorm, "pack4x8unorm": ir.MathPack4x8unorm,
	"pack2x16snorm": ir.MathPack2x16snorm, "pack2x16unorm": ir.MathPack2x16unorm,
	"pack2x16float": ir.MathPack2x16float, "pack4xI8": ir.MathPack4xI8, "pack4xU8": ir.MathPack4xU8,
	"pack4xI8Clamp": ir.MathPack4xI8Clamp, "pack4xU8Clamp": ir.MathPack4xU8Clamp,

	"unpack4x8snorm": ir.MathUnpack4x8snorm, "unpack4x8unorm": ir.MathUnpack4x8unorm,
	"unpack2x16snorm": ir.MathUnpack2x16snorm, "unpack2x16unorm": ir.MathUnpack2x16unorm,
	"unpack2x16float": ir.MathUnpack2x16float, "unpack4xI8": ir.MathUnpack4xI8, "unpack4xU8": ir.MathUnpack4xU8,

	"modf": ir.MathModf, "frexp": ir.MathFrexp, "ldexp": ir.MathLdexp,
}

func getMathFunction(name string) (ir.MathFunction, bool) {
	f, ok := mathFuncTable[name]
	return f, ok
}

func getDerivativeFunction(name string) (ir.ExprDerivative, bool) {
	switch name {
	case "dpdx":
		return ir.ExprDerivative{Axis: ir.DerivativeX, Control: ir.DerivativeNone}, true
	case "dpdy":
		return ir.ExprDerivative{Axis: ir.DerivativeY, Control: ir.DerivativeNone}, true
	case "fwidth":
		return ir.ExprDerivative{Axis: ir.DerivativeWidth, Control: ir.DerivativeNone}, true
	case "dpdxCoarse":
		return ir.ExprDerivative{Axis: ir.DerivativeX, Control: ir.DerivativeCoarse}, true
	case "dpdyCoarse":
		return ir.ExprDerivative{Axis: ir.DerivativeY, Control: ir.DerivativeCoarse}, true
	case "fwidthCoarse":
		return ir.ExprDerivative{Axis: ir.DerivativeWidth, Control: ir.DerivativeCoarse}, true
	case "dpdxFine":
		return ir.ExprDerivative{Axis: ir.DerivativeX, Control: ir.DerivativeFine}, true
	case "dpdyFine":
		return ir.ExprDerivative{Axis: ir.DerivativeY, Control: ir.DerivativeFine}, true
	case "fwidthFine":
		return ir.ExprDerivative{Axis: ir.DerivativeWidth, Control: ir.DerivativeFine}, true
	default:
		return ir.ExprDerivative{}, false
	}
}

func getRelationalFunction(name string) (ir.RelationalFunction, bool) {
	switch name {
	case "all":
		return ir.RelationalAll, true
	case "any":
		return ir.RelationalAny, true
	case "isnan":
		return ir.RelationalIsNan, true
	case "isinf":
		return ir.RelationalIsInf, true
	default:
		return 0, false
	}
}

func getAtomicFunction(name string) ir.AtomicFunction {
	switch name {
	case "atomicAdd":
		return ir.AtomicAdd{}
	case "atomicSub":
		return ir.AtomicSubtract{}
	case "atomicAnd":
		return ir.AtomicAnd{}
	case "atomicOr":
		return ir.AtomicInclusiveOr{}
	case "atomicXor":
		return ir.AtomicExclusiveOr{}
	case "atomicMin":
		return ir.AtomicMin{}
	case "atomicMax":
		return ir.AtomicMax{}
	case "atomicExchange":
		return ir.AtomicExchange{}
	default:
		return nil
	}
}

func getBarrierFlags(name string) ir.BarrierFlags {
	switch name {
	case "workgroupBarrier":
		return ir.BarrierWorkGroup
	case "storageBarrier":
		return ir.BarrierStorage
	case "textureBarrier":
		return ir.BarrierTexture
	default:
		return 0
	}
}

func isTextureFunction(name string) bool {
	switch name {
	case "textureSample", "textureSampleBias", "textureSampleLevel", "textureSampleGrad",
		"textureSampleCompare", "textureSampleCompareLevel",
		"textureLoad", "textureStore",
		"textureDimensions", "textureNumLevels", "textureNumLayers", "textureNumSamples":
		return true
	default:
		return false
	}
}

// lowerCall dispatches a function-call-syntax expression to whichever
// of its many possible meanings applies: a struct composite
// constructor, a math/derivative/relational/arrayLength builtin, a
// texture/atomic/barrier builtin, or an ordinary user function call.
func (ec *ExpressionContext) lowerCall(call *wgsl.CallExpr, target *ir.Block) (Typed[ir.ExpressionHandle], error) {
	name := call.Func.Name

	if _, ok := ec.typesByName[name]; ok {
		return ec.lowerStructConstruct(name, call.Args, target)
	}
	if name == "select" {
		return ec.lowerSelectCall(call.Args, target)
	}
	if deriv, ok := getDerivativeFunction(name); ok {
		return ec.lowerDerivativeCall(deriv, call.Args, target)
	}
	if rel, ok := getRelationalFunction(name); ok {
		return ec.lowerRelationalCall(rel, call.Args, target)
	}
	if name == "arrayLength" {
		return ec.lowerArrayLengthCall(call.Args, target)
	}
	if mf, ok := getMathFunction(name); ok {
		return ec.lowerMathCall(mf, call.Args, target)
	}
	if isTextureFunction(name) {
		return ec.lowerTextureCall(name, call.Args, target)
	}
	if name == "atomicStore" {
		return ec.lowerAtomicStore(call.Args, target)
	}
	if name == "atomicLoad" {
		return ec.lowerAtomicLoad(call.Args, target)
	}
	if af := getAtomicFunction(name); af != nil {
		return ec.lowerAtomicCall(af, call.Args, target)
	}
	if name == "atomicCompareExchangeWeak" {
		return ec.lowerAtomicCompareExchange(call.Args, target)
	}
	if name == "workgroupUniformLoad" {
		return ec.lowerWorkgroupUniformLoad(call.Args, target)
	}
	if flags := getBarrierFlags(name); flags != 0 {
		ec.EmitStatement(target, ir.Statement{Kind: ir.StmtBarrier{Flags: flags}})
		return TypedPlain(ir.ExpressionHandle(0)), nil
	}

	return ec.lowerUserCall(name, call.Args, target)
}

func (ec *ExpressionContext) lowerStructConstruct(name string, args []wgsl.Expr, target *ir.Block) (Typed[ir.ExpressionHandle], error) {
	typeHandle := ec.typesByName[name]
	components := make([]ir.ExpressionHandle, len(args))
	kind := ir.KindConst
	for i, arg := range args {
		h, err := lowerExpression(ec, arg, target)
		if err != nil {
			return Typed[ir.ExpressionHandle]{}, err
		}
		components[i] = h
		kind = ir.Combine(kind, ec.Kinds.Get(h))
	}
	h := ec.AppendExpression(ir.Expression{Kind: ir.ExprCompose{Type: typeHandle, Components: components}}, kind)
	return TypedPlain(h), nil
}

func (ec *ExpressionContext) lowerUserCall(name string, args []wgsl.Expr, target *ir.Block) (Typed[ir.ExpressionHandle], error) {
	funcHandle, ok := ec.funcsByName[name]
	if !ok {
		return Typed[ir.ExpressionHandle]{}, fmt.Errorf("unknown function: %s", name)
	}
	if ec.Mode != ModeRuntime {
		return Typed[ir.ExpressionHandle]{}, fmt.Errorf("function call %q is not allowed in a %s-expression", name, ec.Mode)
	}

	argHandles := make([]ir.ExpressionHandle, len(args))
	for i, arg := range args {
		h, err := lowerExpression(ec, arg, target)
		if err != nil {
			return Typed[ir.ExpressionHandle]{}, err
		}
		argHandles[i] = h
	}

	result := ec.AppendExpression(ir.Expression{Kind: ir.ExprCallResult{Function: funcHandle}}, ir.KindRuntime)
	ec.EmitStatement(target, ir.Statement{Kind: ir.StmtCall{Function: funcHandle, Arguments: argHandles, Result: &result}})
	return TypedPlain(result), nil
}

// lowerSelectCall converts select(falseVal, trueVal, condition), WGSL's
// parameter order, to ExprSelect's (Condition, Accept, Reject) shape.
// Unlike the original naga lowerer, which folds accept/reject straight
// through without a shared concretization step, this passes both
// through the binary-operator conversion-consensus (without the scalar
// splat) so a literal/override mix on either branch concretizes
// consistently; a
// deliberate behavior change from the upstream implementation.
func (ec *ExpressionContext) lowerSelectCall(args []wgsl.Expr, target *ir.Block) (Typed[ir.ExpressionHandle], error) {
	if len(args) != 3 {
		return Typed[ir.ExpressionHandle]{}, fmt.Errorf("select() requires exactly 3 arguments, got %d", len(args))
	}
	falseVal, err := lowerExpression(ec, args[0], target)
	if err != nil {
		return Typed[ir.ExpressionHandle]{}, err
	}
	trueVal, err := lowerExpression(ec, args[1], target)
	if err != nil {
		return Typed[ir.ExpressionHandle]{}, err
	}
	condition, err := lowerExpression(ec, args[2], target)
	if err != nil {
		return Typed[ir.ExpressionHandle]{}, err
	}
	// BinaryEqual gives the operand consensus without the scalar splat.
	falseVal, trueVal, err = ec.convertBinaryOperands(ir.BinaryEqual, falseVal, trueVal, args[0].Pos())
	if err != nil {
		return Typed[ir.ExpressionHandle]{}, err
	}
	kind := ir.Combine(ir.Combine(ec.Kinds.Get(falseVal), ec.Kinds.Get(trueVal)), ec.Kinds.Get(condition))
	h := ec.AppendExpression(ir.Expression{Kind: ir.ExprSelect{Condition: condition, Accept: trueVal, Reject: falseVal}}, kind)
	return TypedPlain(h), nil
}

func (ec *ExpressionContext) lowerDerivativeCall(deriv ir.ExprDerivative, args []wgsl.Expr, target *ir.Block) (Typed[ir.ExpressionHandle], error) {
	if len(args) != 1 {
		return Typed[ir.ExpressionHandle]{}, fmt.Errorf("derivative function requires exactly 1 argument, got %d", len(args))
	}
	h, err := lowerExpression(ec, args[0], target)
	if err != nil {
		return Typed[ir.ExpressionHandle]{}, err
	}
	deriv.Expr = h
	r := ec.AppendExpression(ir.Expression{Kind: deriv}, ir.KindRuntime)
	return TypedPlain(r), nil
}

func (ec *ExpressionContext) lowerRelationalCall(fun ir.RelationalFunction, args []wgsl.Expr, target *ir.Block) (Typed[ir.ExpressionHandle], error) {
	if len(args) != 1 {
		return Typed[ir.ExpressionHandle]{}, fmt.Errorf("relational function requires exactly 1 argument, got %d", len(args))
	}
	h, err := lowerExpression(ec, args[0], target)
	if err != nil {
		return Typed[ir.ExpressionHandle]{}, err
	}
	kind := ec.Kinds.Get(h)
	r := ec.AppendExpression(ir.Expression{Kind: ir.ExprRelational{Fun: fun, Argument: h}}, kind)
	return TypedPlain(r), nil
}

func (ec *ExpressionContext) lowerArrayLengthCall(args []wgsl.Expr, target *ir.Block) (Typed[ir.ExpressionHandle], error) {
	if len(args) != 1 {
		return Typed[ir.ExpressionHandle]{}, fmt.Errorf("arrayLength requires exactly 1 argument, got %d", len(args))
	}
	h, err := lowerExpression(ec, args[0], target)
	if err != nil {
		return Typed[ir.ExpressionHandle]{}, err
	}
	r := ec.AppendExpression(ir.Expression{Kind: ir.ExprArrayLength{Array: h}}, ir.KindRuntime)
	return TypedPlain(r), nil
}

func (ec *ExpressionContext) lowerMathCall(fun ir.MathFunction, args []wgsl.Expr, target *ir.Block) (Typed[ir.ExpressionHandle], error) {
	if len(args) == 0 {
		return Typed[ir.ExpressionHandle]{}, fmt.Errorf("math function requires at least one argument")
	}
	handles := make([]ir.ExpressionHandle, len(args))
	kind := ir.KindConst
	for i, arg := range args {
		h, err := lowerExpression(ec, arg, target)
		if err != nil {
			return Typed[ir.ExpressionHandle]{}, err
		}
		handles[i] = h
		kind = ir.Combine(kind, ec.Kinds.Get(h))
	}
	expr := ir.ExprMath{Fun: fun, Arg: handles[0]}
	if len(handles) > 1 {
		expr.Arg1 = &handles[1]
	}
	if len(handles) > 2 {
		expr.Arg2 = &handles[2]
	}
	if len(handles) > 3 {
		expr.Arg3 = &handles[3]
	}
	r := ec.AppendExpression(ir.Expression{Kind: expr}, kind)
	return TypedPlain(r), nil
}

// lowerTextureCall dispatches a texture sampling/loading/query
// builtin. Opaque resource values (texture/sampler identifiers) are
// always Plain (SpaceHandle variables never go through the Load Rule),
// so every sub-lowerer here reads its image/sampler arguments with the
// ordinary lowerExpression path.
func (ec *ExpressionContext) lowerTextureCall(name string, args []wgsl.Expr, target *ir.Block) (Typed[ir.ExpressionHandle], error) {
	if len(args) < 1 {
		return Typed[ir.ExpressionHandle]{}, fmt.Errorf("%s requires at least 1 argument", name)
	}

	switch name {
	case "textureSample":
		return ec.lowerTextureSample(args, target, ir.SampleLevelAuto{})
	case "textureSampleBias":
		if len(args) < 4 {
			return Typed[ir.ExpressionHandle]{}, fmt.Errorf("textureSampleBias requires 4 arguments")
		}
		bias, err := lowerExpression(ec, args[3], target)
		if err != nil {
			return Typed[ir.ExpressionHandle]{}, err
		}
		return ec.lowerTextureSample(args[:3], target, ir.SampleLevelBias{Bias: bias})
	case "textureSampleLevel":
		if len(args) < 4 {
			return Typed[ir.ExpressionHandle]{}, fmt.Errorf("textureSampleLevel requires 4 arguments")
		}
		level, err := lowerExpression(ec, args[3], target)
		if err != nil {
			return Typed[ir.ExpressionHandle]{}, err
		}
		return ec.lowerTextureSample(args[:3], target, ir.SampleLevelExact{Level: level})
	case "textureSampleGrad":
		if len(args) < 5 {
			return Typed[ir.ExpressionHandle]{}, fmt.Errorf("textureSampleGrad requires 5 arguments")
		}
		ddx, err := lowerExpression(ec, args[3], target)
		if err != nil {
			return Typed[ir.ExpressionHandle]{}, err
		}
		ddy, err := lowerExpression(ec, args[4], target)
		if err != nil {
			return Typed[ir.ExpressionHandle]{}, err
		}
		return ec.lowerTextureSample(args[:3], target, ir.SampleLevelGradient{X: ddx, Y: ddy})
	case "textureSampleCompare":
		return ec.lowerTextureSampleCompare(args, target, nil)
	case "textureSampleCompareLevel":
		return ec.lowerTextureSampleCompare(args, target, &ir.SampleLevelZero{})
	case "textureLoad":
		return ec.lowerTextureLoad(args, target)
	case "textureStore":
		return ec.lowerTextureStore(args, target)
	case "textureDimensions":
		return ec.lowerTextureQuery(args, target, ir.ImageQuerySize{})
	case "textureNumLevels":
		return ec.lowerTextureQuery(args, target, ir.ImageQueryNumLevels{})
	case "textureNumLayers":
		return ec.lowerTextureQuery(args, target, ir.ImageQueryNumLayers{})
	case "textureNumSamples":
		return ec.lowerTextureQuery(args, target, ir.ImageQueryNumSamples{})
	default:
		return Typed[ir.ExpressionHandle]{}, fmt.Errorf("unknown texture function: %s", name)
	}
}

func (ec *ExpressionContext) lowerTextureSample(args []wgsl.Expr, target *ir.Block, level ir.SampleLevel) (Typed[ir.ExpressionHandle], error) {
	if len(args) < 3 {
		return Typed[ir.ExpressionHandle]{}, fmt.Errorf("textureSample requires at least 3 arguments")
	}
	image, err := lowerExpression(ec, args[0], target)
	if err != nil {
		return Typed[ir.ExpressionHandle]{}, err
	}
	sampler, err := lowerExpression(ec, args[1], target)
	if err != nil {
		return Typed[ir.ExpressionHandle]{}, err
	}
	coord, err := lowerExpression(ec, args[2], target)
	if err != nil {
		return Typed[ir.ExpressionHandle]{}, err
	}
	var offset *ir.ExpressionHandle
	if len(args) > 3 {
		o, err := lowerExpression(ec, args[3], target)
		if err != nil {
			return Typed[ir.ExpressionHandle]{}, err
		}
		offset = &o
	}
	h := ec.AppendExpression(ir.Expression{Kind: ir.ExprImageSample{
		Image: image, Sampler: sampler, Coordinate: coord, Offset: offset, Level: level,
	}}, ir.KindRuntime)
	return TypedPlain(h), nil
}

func (ec *ExpressionContext) lowerTextureSampleCompare(args []wgsl.Expr, target *ir.Block, level *ir.SampleLevelZero) (Typed[ir.ExpressionHandle], error) {
	if len(args) < 4 {
		return Typed[ir.ExpressionHandle]{}, fmt.Errorf("texture compare sample requires at least 4 arguments")
	}
	image, err := lowerExpression(ec, args[0], target)
	if err != nil {
		return Typed[ir.ExpressionHandle]{}, err
	}
	sampler, err := lowerExpression(ec, args[1], target)
	if err != nil {
		return Typed[ir.ExpressionHandle]{}, err
	}
	coord, err := lowerExpression(ec, args[2], target)
	if err != nil {
		return Typed[ir.ExpressionHandle]{}, err
	}
	depthRef, err := lowerExpression(ec, args[3], target)
	if err != nil {
		return Typed[ir.ExpressionHandle]{}, err
	}
	var sampleLevel ir.SampleLevel = ir.SampleLevelAuto{}
	if level != nil {
		sampleLevel = *level
	}
	h := ec.AppendExpression(ir.Expression{Kind: ir.ExprImageSample{
		Image: image, Sampler: sampler, Coordinate: coord, DepthRef: &depthRef, Level: sampleLevel,
	}}, ir.KindRuntime)
	return TypedPlain(h), nil
}

func (ec *ExpressionContext) lowerTextureLoad(args []wgsl.Expr, target *ir.Block) (Typed[ir.ExpressionHandle], error) {
	if len(args) < 2 {
		return Typed[ir.ExpressionHandle]{}, fmt.Errorf("textureLoad requires at least 2 arguments")
	}
	image, err := lowerExpression(ec, args[0], target)
	if err != nil {
		return Typed[ir.ExpressionHandle]{}, err
	}
	coord, err := lowerExpression(ec, args[1], target)
	if err != nil {
		return Typed[ir.ExpressionHandle]{}, err
	}
	var level *ir.ExpressionHandle
	if len(args) > 2 {
		l, err := lowerExpression(ec, args[2], target)
		if err != nil {
			return Typed[ir.ExpressionHandle]{}, err
		}
		level = &l
	}
	h := ec.AppendExpression(ir.Expression{Kind: ir.ExprImageLoad{Image: image, Coordinate: coord, Level: level}}, ir.KindRuntime)
	return TypedPlain(h), nil
}

func (ec *ExpressionContext) lowerTextureStore(args []wgsl.Expr, target *ir.Block) (Typed[ir.ExpressionHandle], error) {
	if len(args) < 3 {
		return Typed[ir.ExpressionHandle]{}, fmt.Errorf("textureStore requires 3 arguments")
	}
	image, err := lowerExpression(ec, args[0], target)
	if err != nil {
		return Typed[ir.ExpressionHandle]{}, err
	}
	coord, err := lowerExpression(ec, args[1], target)
	if err != nil {
		return Typed[ir.ExpressionHandle]{}, err
	}
	value, err := lowerExpression(ec, args[2], target)
	if err != nil {
		return Typed[ir.ExpressionHandle]{}, err
	}
	ec.EmitStatement(target, ir.Statement{Kind: ir.StmtImageStore{Image: image, Coordinate: coord, Value: value}})
	return TypedPlain(ir.ExpressionHandle(0)), nil
}

func (ec *ExpressionContext) lowerTextureQuery(args []wgsl.Expr, target *ir.Block, query ir.ImageQuery) (Typed[ir.ExpressionHandle], error) {
	image, err := lowerExpression(ec, args[0], target)
	if err != nil {
		return Typed[ir.ExpressionHandle]{}, err
	}
	if size, ok := query.(ir.ImageQuerySize); ok && len(args) > 1 {
		level, err := lowerExpression(ec, args[1], target)
		if err != nil {
			return Typed[ir.ExpressionHandle]{}, err
		}
		size.Level = &level
		query = size
	}
	h := ec.AppendExpression(ir.Expression{Kind: ir.ExprImageQuery{Image: image, Query: query}}, ir.KindRuntime)
	return TypedPlain(h), nil
}

func (ec *ExpressionContext) lowerAtomicCall(fun ir.AtomicFunction, args []wgsl.Expr, target *ir.Block) (Typed[ir.ExpressionHandle], error) {
	if len(args) < 2 {
		return Typed[ir.ExpressionHandle]{}, fmt.Errorf("atomic function requires at least 2 arguments")
	}
	pointerT, err := lowerExpressionTyped(ec, args[0], target)
	if err != nil {
		return Typed[ir.ExpressionHandle]{}, err
	}
	value, err := lowerExpression(ec, args[1], target)
	if err != nil {
		return Typed[ir.ExpressionHandle]{}, err
	}
	resultType, err := ec.atomicScalarType(pointerT.Value, args[0].Pos())
	if err != nil {
		return Typed[ir.ExpressionHandle]{}, err
	}
	result := ec.AppendExpression(ir.Expression{Kind: ir.ExprAtomicResult{Type: resultType}}, ir.KindRuntime)
	ec.EmitStatement(target, ir.Statement{Kind: ir.StmtAtomic{Pointer: pointerT.Value, Fun: fun, Value: value, Result: &result}})
	return TypedPlain(result), nil
}

// atomicScalarType resolves the scalar type an atomic pointer guards,
// the type an atomic op's ExprAtomicResult carries (atomic<T> itself
// is never a first-class value type, only its underlying T is).
func (ec *ExpressionContext) atomicScalarType(pointer ir.ExpressionHandle, span wgsl.Span) (ir.TypeHandle, error) {
	ptrInner, err := ec.Typifier.InnerOf(pointer)
	if err != nil {
		return 0, err
	}
	ptr, ok := ptrInner.(ir.PointerType)
	if !ok {
		return 0, &InvalidAtomicPointer{Got: ptrInner, Span: span}
	}
	baseType, ok := ec.Registry.Lookup(ptr.Base)
	if !ok {
		return 0, fmt.Errorf("unknown type handle %v", ptr.Base)
	}
	atomic, ok := baseType.Inner.(ir.AtomicType)
	if !ok {
		return 0, &InvalidAtomicOperandType{Got: baseType.Inner, Span: span}
	}
	return ec.RegisterType("", atomic.Scalar)
}

func (ec *ExpressionContext) lowerAtomicStore(args []wgsl.Expr, target *ir.Block) (Typed[ir.ExpressionHandle], error) {
	if len(args) < 2 {
		return Typed[ir.ExpressionHandle]{}, fmt.Errorf("atomicStore requires 2 arguments")
	}
	pointerT, err := lowerExpressionTyped(ec, args[0], target)
	if err != nil {
		return Typed[ir.ExpressionHandle]{}, err
	}
	value, err := lowerExpression(ec, args[1], target)
	if err != nil {
		return Typed[ir.ExpressionHandle]{}, err
	}
	ec.EmitStatement(target, ir.Statement{Kind: ir.StmtStore{Pointer: pointerT.Value, Value: value}})
	return TypedPlain(ir.ExpressionHandle(0)), nil
}

func (ec *ExpressionContext) lowerAtomicLoad(args []wgsl.Expr, target *ir.Block) (Typed[ir.ExpressionHandle], error) {
	if len(args) < 1 {
		return Typed[ir.ExpressionHandle]{}, fmt.Errorf("atomicLoad requires 1 argument")
	}
	pointerT, err := lowerExpressionTyped(ec, args[0], target)
	if err != nil {
		return Typed[ir.ExpressionHandle]{}, err
	}
	h := ec.AppendExpression(ir.Expression{Kind: ir.ExprLoad{Pointer: pointerT.Value}}, ir.KindRuntime)
	return TypedPlain(h), nil
}

func (ec *ExpressionContext) lowerAtomicCompareExchange(args []wgsl.Expr, target *ir.Block) (Typed[ir.ExpressionHandle], error) {
	if len(args) < 3 {
		return Typed[ir.ExpressionHandle]{}, fmt.Errorf("atomicCompareExchangeWeak requires 3 arguments")
	}
	pointerT, err := lowerExpressionTyped(ec, args[0], target)
	if err != nil {
		return Typed[ir.ExpressionHandle]{}, err
	}
	compare, err := lowerExpression(ec, args[1], target)
	if err != nil {
		return Typed[ir.ExpressionHandle]{}, err
	}
	value, err := lowerExpression(ec, args[2], target)
	if err != nil {
		return Typed[ir.ExpressionHandle]{}, err
	}
	resultType, err := ec.atomicScalarType(pointerT.Value, args[0].Pos())
	if err != nil {
		return Typed[ir.ExpressionHandle]{}, err
	}
	result := ec.AppendExpression(ir.Expression{Kind: ir.ExprAtomicResult{Type: resultType, Comparison: true}}, ir.KindRuntime)
	ec.EmitStatement(target, ir.Statement{Kind: ir.StmtAtomic{
		Pointer: pointerT.Value,
		Fun:     ir.AtomicExchange{Compare: &compare},
		Value:   value,
		Result:  &result,
	}})
	return TypedPlain(result), nil
}

func (ec *ExpressionContext) lowerWorkgroupUniformLoad(args []wgsl.Expr, target *ir.Block) (Typed[ir.ExpressionHandle], error) {
	if len(args) != 1 {
		return Typed[ir.ExpressionHandle]{}, fmt.Errorf("workgroupUniformLoad requires 1 argument")
	}
	pointerT, err := lowerExpressionTyped(ec, args[0], target)
	if err != nil {
		return Typed[ir.ExpressionHandle]{}, err
	}
	typeHandle, err := ec.pointeeType(pointerT.Value)
	if err != nil {
		return Typed[ir.ExpressionHandle]{}, err
	}
	result := ec.AppendExpression(ir.Expression{Kind: ir.ExprWorkGroupUniformLoadResult{Type: typeHandle}}, ir.KindRuntime)
	ec.EmitStatement(target, ir.Statement{Kind: ir.StmtWorkGroupUniformLoad{Pointer: pointerT.Value, Result: result}})
	return TypedPlain(result), nil
}

func (ec *ExpressionContext) pointeeType(h ir.ExpressionHandle) (ir.TypeHandle, error) {
	inner, err := ec.Typifier.InnerOf(h)
	if err != nil {
		return 0, err
	}
	ptr, ok := inner.(ir.PointerType)
	if !ok {
		return 0, fmt.Errorf("expected pointer expression")
	}
	return ptr.Base, nil
}
