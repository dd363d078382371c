package lower

import (
	"fmt"
	"math"
	"reflect"
	"strconv"

	"github.com/gogpu/wgsl-ir/constfold"
	"github.com/gogpu/wgsl-ir/ir"
	"github.com/gogpu/wgsl-ir/wgsl"
)

// AbstractRule selects how typeAndInit treats an initializer that is
// still abstract (untyped int/float) once no declared type forces
// concretization -- Allow preserves the abstract kind (a module const
// with no declared type may stay abstract until something downstream
// narrows it), Concretize narrows it to its default concrete kind
// immediately (a local var/let's inferred type must be concrete, since
// nothing downstream is guaranteed to narrow it further).
type AbstractRule int

const (
	AbstractAllow AbstractRule = iota
	AbstractConcretize
)

// resolveType converts a WGSL type expression to an ir.TypeHandle,
// registering any structural type (vector, matrix, array, pointer,
// texture, atomic) it has not seen before.
func (g *GlobalContext) resolveType(t wgsl.Type) (ir.TypeHandle, error) {
	switch v := t.(type) {
	case *wgsl.NamedType:
		return g.resolveNamedType(v)
	case *wgsl.ArrayType:
		base, err := g.resolveType(v.Element)
		if err != nil {
			return 0, err
		}
		var size ir.ArraySize
		if v.Size != nil {
			n, err := g.constEvalArraySize(v.Size)
			if err != nil {
				return 0, err
			}
			size.Constant = &n
		}
		elemLayout := g.Layouter.Lookup(base)
		stride := roundUp(elemLayout.Alignment, elemLayout.Size)
		return g.RegisterType("", ir.ArrayType{Base: base, Size: size, Stride: stride})
	case *wgsl.BindingArrayType:
		base, err := g.resolveType(v.Element)
		if err != nil {
			return 0, err
		}
		var size ir.ArraySize
		if v.Size != nil {
			n, err := g.constEvalArraySize(v.Size)
			if err != nil {
				return 0, err
			}
			size.Constant = &n
		}
		return g.RegisterType("", ir.BindingArrayType{Base: base, Size: size})
	case *wgsl.PtrType:
		pointee, err := g.resolveType(v.PointeeType)
		if err != nil {
			return 0, err
		}
		return g.RegisterType("", ir.PointerType{Base: pointee, Space: addressSpace(v.AddressSpace)})
	default:
		return 0, fmt.Errorf("unsupported type: %T", t)
	}
}

func (g *GlobalContext) constEvalArraySize(e wgsl.Expr) (uint32, error) {
	if lit, ok := e.(*wgsl.Literal); ok && lit.Kind == wgsl.TokenIntLiteral {
		n, err := strconv.ParseUint(lit.Value, 0, 32)
		if err != nil {
			return 0, fmt.Errorf("array size %q: %w", lit.Value, err)
		}
		return uint32(n), nil
	}
	if ident, ok := e.(*wgsl.Ident); ok {
		if ch, ok := g.constsByName[ident.Name]; ok {
			c := g.Module.Constants[ch]
			if sv, ok := c.Value.(ir.ScalarValue); ok {
				return uint32(sv.Bits), nil
			}
		}
	}
	return 0, fmt.Errorf("array size must be a const-expression")
}

func (g *GlobalContext) resolveNamedType(t *wgsl.NamedType) (ir.TypeHandle, error) {
	if len(t.TypeParams) > 0 {
		return g.resolveParameterizedType(t)
	}

	if h, ok := g.typesByName[t.Name]; ok {
		return h, nil
	}
	if alias, ok := g.aliasesByName[t.Name]; ok {
		return g.resolveType(alias)
	}

	switch t.Name {
	case "sampler":
		return g.RegisterType("sampler", ir.SamplerType{Comparison: false})
	case "sampler_comparison":
		return g.RegisterType("sampler_comparison", ir.SamplerType{Comparison: true})
	case "acceleration_structure":
		if !g.Config.EnableRayQuery {
			return 0, fmt.Errorf("acceleration_structure requires ray query support to be enabled")
		}
		return g.RegisterType("acceleration_structure", ir.AccelerationStructureType{})
	case "ray_query":
		if !g.Config.EnableRayQuery {
			return 0, fmt.Errorf("ray_query requires ray query support to be enabled")
		}
		return g.RegisterType("ray_query", ir.RayQueryType{})
	}

	return 0, fmt.Errorf("unknown type: %s", t.Name)
}

func (g *GlobalContext) scalarOf(h ir.TypeHandle) (ir.ScalarType, error) {
	typ, ok := g.Registry.Lookup(h)
	if !ok {
		return ir.ScalarType{}, fmt.Errorf("type handle %d not found", h)
	}
	scalar, ok := typ.Inner.(ir.ScalarType)
	if !ok {
		return ir.ScalarType{}, fmt.Errorf("expected scalar type, got %T", typ.Inner)
	}
	return scalar, nil
}

func (g *GlobalContext) resolveParameterizedType(t *wgsl.NamedType) (ir.TypeHandle, error) {
	switch {
	case len(t.Name) == 4 && t.Name[:3] == "vec":
		size := t.Name[3] - '0'
		scalarHandle, err := g.resolveType(t.TypeParams[0])
		if err != nil {
			return 0, err
		}
		scalar, err := g.scalarOf(scalarHandle)
		if err != nil {
			return 0, err
		}
		return g.RegisterType("", ir.VectorType{Size: ir.VectorSize(size), Scalar: scalar})

	case len(t.Name) >= 3 && t.Name[:3] == "mat":
		cols := t.Name[3] - '0'
		rows := t.Name[5] - '0'
		scalarHandle, err := g.resolveType(t.TypeParams[0])
		if err != nil {
			return 0, err
		}
		scalar, err := g.scalarOf(scalarHandle)
		if err != nil {
			return 0, err
		}
		return g.RegisterType("", ir.MatrixType{Columns: ir.VectorSize(cols), Rows: ir.VectorSize(rows), Scalar: scalar})

	case len(t.Name) >= 7 && t.Name[:7] == "texture":
		img, err := g.parseTextureType(t)
		if err != nil {
			return 0, err
		}
		return g.RegisterType("", img)

	case t.Name == "atomic":
		if len(t.TypeParams) != 1 {
			return 0, fmt.Errorf("atomic type requires exactly one type parameter")
		}
		scalarHandle, err := g.resolveType(t.TypeParams[0])
		if err != nil {
			return 0, err
		}
		scalar, err := g.scalarOf(scalarHandle)
		if err != nil {
			return 0, err
		}
		return g.RegisterType("", ir.AtomicType{Scalar: scalar})

	case t.Name == "array":
		if len(t.TypeParams) == 0 {
			return 0, fmt.Errorf("array type requires an element type")
		}
		base, err := g.resolveType(t.TypeParams[0])
		if err != nil {
			return 0, err
		}
		elemLayout := g.Layouter.Lookup(base)
		stride := roundUp(elemLayout.Alignment, elemLayout.Size)
		return g.RegisterType("", ir.ArrayType{Base: base, Stride: stride})

	default:
		return 0, fmt.Errorf("unsupported parameterized type: %s", t.Name)
	}
}

// isOpaqueResourceType reports whether handle names a sampler, texture,
// acceleration structure, or ray query -- types that must live in
// SpaceHandle (WebGPU's UniformConstant-equivalent) regardless of the
// `var<...>` address space written in source.
func (g *GlobalContext) isOpaqueResourceType(handle ir.TypeHandle) bool {
	typ, ok := g.Registry.Lookup(handle)
	if !ok {
		return false
	}
	switch typ.Inner.(type) {
	case ir.SamplerType, ir.ImageType, ir.AccelerationStructureType, ir.RayQueryType:
		return true
	default:
		return false
	}
}

// inferLiteralType resolves the type a bare literal initializer
// concretizes to by default: i32 for an unsuffixed integer literal, f32
// for an unsuffixed float literal, matching WGSL's default concrete
// type for an abstract value with no further context to narrow it.
func (g *GlobalContext) inferLiteralType(e wgsl.Expr) (ir.TypeHandle, error) {
	lit, ok := e.(*wgsl.Literal)
	if !ok {
		return 0, fmt.Errorf("cannot infer type of non-literal expression %T without a declared type", e)
	}
	switch lit.Kind {
	case wgsl.TokenIntLiteral:
		if len(lit.Value) > 0 && lit.Value[len(lit.Value)-1] == 'u' {
			h, _ := g.LookupNamedType("u32")
			return h, nil
		}
		h, _ := g.LookupNamedType("i32")
		return h, nil
	case wgsl.TokenFloatLiteral:
		h, _ := g.LookupNamedType("f32")
		return h, nil
	case wgsl.TokenTrue, wgsl.TokenFalse, wgsl.TokenBoolLiteral:
		h, _ := g.LookupNamedType("bool")
		return h, nil
	default:
		return 0, fmt.Errorf("unsupported literal kind %v", lit.Kind)
	}
}

// typeAndInit implements §4.3's type_and_init decision table for a
// function-scope declaration (var/let/const) that carries an already-
// lowered, already-loaded initializer expression: a declared type and
// an initializer together must convert or be structurally identical; an
// initializer alone determines the type (concretized per rule); a
// declared type alone needs no initializer; neither is an error. The
// returned handle is initHandle converted toward the resulting type
// when a conversion fired, or initHandle unchanged otherwise.
func (ec *ExpressionContext) typeAndInit(name string, declaredType *ir.TypeHandle, initHandle *ir.ExpressionHandle, span wgsl.Span, rule AbstractRule) (ir.TypeHandle, *ir.ExpressionHandle, error) {
	switch {
	case declaredType != nil && initHandle != nil:
		converted, err := ec.convertToType(*initHandle, *declaredType, span)
		if err == nil {
			return *declaredType, &converted, nil
		}
		initRes, terr := ec.Typifier.TypeOf(*initHandle)
		if terr == nil {
			if initInner, ierr := ir.InnerOf(ec.Module, initRes); ierr == nil {
				if declType, ok := ec.Registry.Lookup(*declaredType); ok && structurallyEqual(initInner, declType.Inner) {
					return *declaredType, initHandle, nil
				}
			}
		}
		return 0, nil, &InitializationTypeMismatch{Name: name, Declared: *declaredType, Init: initRes, Span: span, Cause: err}

	case initHandle != nil:
		initRes, err := ec.Typifier.TypeOf(*initHandle)
		if err != nil {
			return 0, nil, wrapErr(span, err, "%s: resolving initializer type", name)
		}
		inner, err := ir.InnerOf(ec.Module, initRes)
		if err != nil {
			return 0, nil, wrapErr(span, err, "%s: resolving initializer type", name)
		}
		if rule == AbstractConcretize {
			if leaf, size, ok := leafOf(inner); ok && isAbstractKind(leaf.Kind) {
				concreteKind := concreteFromAbstract(leaf.Kind)
				concrete := ir.ScalarType{Kind: concreteKind, Width: defaultWidthFor(concreteKind)}
				converted, err := ec.convertLeafTo(*initHandle, concrete)
				if err != nil {
					return 0, nil, wrapErr(span, err, "%s: concretizing initializer", name)
				}
				var concreteInner ir.TypeInner = concrete
				if size != 0 {
					concreteInner = ir.VectorType{Size: size, Scalar: concrete}
				}
				h, err := ec.RegisterType("", concreteInner)
				if err != nil {
					return 0, nil, err
				}
				return h, &converted, nil
			}
		}
		h, err := ec.RegisterType("", inner)
		if err != nil {
			return 0, nil, err
		}
		return h, initHandle, nil

	case declaredType != nil:
		return *declaredType, nil, nil

	default:
		return 0, nil, newErr(span, "%s needs a type or an initializer", name)
	}
}

// structurallyEqual reports whether two resolved type shapes are
// identical, the fallback type_and_init accepts when an initializer
// does not automatically convert to a declared type but is already
// exactly that type in every structural respect (e.g. both are the
// same named struct, or the Typifier resolved an inline shape equal to
// a previously-registered one).
func structurallyEqual(a, b ir.TypeInner) bool {
	return reflect.DeepEqual(a, b)
}

// convertConstScalar numerically reinterprets a folded constant scalar
// from its folded kind to target, the value-level analogue of
// convertLeafTo used where an ExprAs cast node cannot be inserted
// (constfold has no ExprAs case -- a module-constant conversion must
// happen to the already-folded value, not the expression tree).
func convertConstScalar(v constfold.Scalar, target ir.ScalarType) (constfold.Scalar, error) {
	if v.Kind == target.Kind && v.Width == target.Width {
		return v, nil
	}
	if !automaticConversionExists(v.Kind, target.Kind) {
		return constfold.Scalar{}, &AutoConversionFailure{From: v.Kind, To: target.Kind}
	}
	switch v.Kind {
	case ir.ScalarAbstractInt:
		n := int64(v.Bits)
		switch target.Kind {
		case ir.ScalarSint:
			return constfold.Scalar{Kind: ir.ScalarSint, Width: target.Width, Bits: uint64(uint32(n))}, nil
		case ir.ScalarUint:
			return constfold.Scalar{Kind: ir.ScalarUint, Width: target.Width, Bits: uint64(uint32(n))}, nil
		case ir.ScalarFloat:
			return constfold.Scalar{Kind: ir.ScalarFloat, Width: target.Width, Bits: uint64(math.Float32bits(float32(n)))}, nil
		}
	case ir.ScalarAbstractFloat:
		if target.Kind == ir.ScalarFloat {
			f := math.Float64frombits(v.Bits)
			return constfold.Scalar{Kind: ir.ScalarFloat, Width: target.Width, Bits: uint64(math.Float32bits(float32(f)))}, nil
		}
	}
	return constfold.Scalar{}, &AutoConversionFailure{From: v.Kind, To: target.Kind}
}

// typeAndInitConstant applies the same four-case table to a
// module-scope const/global-var initializer, working over the
// already-folded constfold.Value instead of an expression handle.
// Conversion of a composite (vector/struct) constant value is not
// supported here -- only the structural-equality branch of the
// declared+init case applies to those, matching how constfold itself
// has no elementwise cast operation.
func typeAndInitConstant(g *GlobalContext, name string, declaredType *ir.TypeHandle, init wgsl.Expr, value constfold.Value, span wgsl.Span) (ir.TypeHandle, constfold.Value, error) {
	if declaredType == nil {
		inferred, err := g.inferLiteralType(init)
		if err != nil {
			return 0, nil, err
		}
		return inferred, value, nil
	}

	declType, ok := g.Registry.Lookup(*declaredType)
	if !ok {
		return 0, nil, fmt.Errorf("type handle %d not found", *declaredType)
	}

	if scalar, ok := value.(constfold.Scalar); ok {
		if targetScalar, ok := declType.Inner.(ir.ScalarType); ok {
			converted, err := convertConstScalar(scalar, targetScalar)
			if err == nil {
				return *declaredType, converted, nil
			}
			if scalar.Kind == targetScalar.Kind {
				return *declaredType, scalar, nil
			}
			return 0, nil, &InitializationTypeMismatch{Name: name, Declared: *declaredType, Span: span, Cause: err}
		}
	}

	return *declaredType, value, nil
}

// lowerConstExprToConstant lowers and constant-folds init, registering
// the resulting value as an ir.Constant. declaredType, when non-nil,
// is cross-checked (and converted toward, when it merely needs an
// automatic conversion) against the folded value's own type per
// type_and_init (§4.3); otherwise the type is inferred from the
// literal. Every initializer is lowered as an ordinary expression and
// folded through constfold; only a folded scalar becomes a constant, and
// constfoldValueToConstant rejects a composite result.
func (g *GlobalContext) lowerConstExprToConstant(name string, declaredType *ir.TypeHandle, init wgsl.Expr) (ir.ConstantHandle, error) {
	fn := &ir.Function{}
	sc := g.NewStatementContext(fn)
	ec := sc.NewExpressionContext(ModeConstant)

	handle, err := lowerExpression(ec, init, nil)
	if err != nil {
		return 0, err
	}

	value, err := constfold.Evaluate(g.Module, fn, handle)
	if err != nil {
		return 0, fmt.Errorf("constant initializer does not fold: %w", err)
	}

	typeHandle, value, err := typeAndInitConstant(g, name, declaredType, init, value, init.Pos())
	if err != nil {
		return 0, err
	}

	constValue, err := constfoldValueToConstant(value)
	if err != nil {
		return 0, err
	}

	ch := ir.ConstantHandle(len(g.Module.Constants))
	g.Module.Constants = append(g.Module.Constants, ir.Constant{Name: name, Type: typeHandle, Value: constValue})
	return ch, nil
}

// lowerOverrideDefault lowers an override's default-value expression in
// ModeOverride: it may reference other overrides (an override's default
// may depend on an earlier override) but must not read a runtime value.
// Unlike a module constant, the default is lowered (not folded), so the
// declared+init conversion (§4.3) applies directly to the expression
// tree via an inserted ExprAs rather than to a folded value.
func (g *GlobalContext) lowerOverrideDefault(declaredType ir.TypeHandle, init wgsl.Expr) (ir.ExpressionHandle, error) {
	fn := &ir.Function{}
	sc := g.NewStatementContext(fn)
	ec := sc.NewExpressionContext(ModeOverride)
	h, err := lowerExpression(ec, init, nil)
	if err != nil {
		return 0, err
	}
	converted, err := ec.convertToType(h, declaredType, init.Pos())
	if err != nil {
		return 0, wrapErr(init.Pos(), err, "override default")
	}
	return converted, nil
}

// constfoldValueToConstant converts a folded constfold.Scalar into an
// ir.ScalarValue, narrowing an abstract kind to its concrete default.
// Any other value shape, a composite included, is rejected with an
// error.
func constfoldValueToConstant(v constfold.Value) (ir.ConstantValue, error) {
	switch val := v.(type) {
	case constfold.Scalar:
		return ir.ScalarValue{Bits: val.Bits, Kind: concretizeScalarKind(val.Kind)}, nil
	default:
		return nil, fmt.Errorf("unsupported constant value shape %T", v)
	}
}

// concretizeScalarKind narrows an abstract scalar kind down to its
// default concrete kind (i32 for abstract-int, f32 for abstract-float)
// for constants that never passed through an explicit declared-type
// concretization site.
func concretizeScalarKind(k ir.ScalarKind) ir.ScalarKind {
	switch k {
	case ir.ScalarAbstractInt:
		return ir.ScalarSint
	case ir.ScalarAbstractFloat:
		return ir.ScalarFloat
	default:
		return k
	}
}
