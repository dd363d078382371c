package lower

import (
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/gogpu/wgsl-ir/config"
	"github.com/gogpu/wgsl-ir/constfold"
	"github.com/gogpu/wgsl-ir/ir"
	"github.com/gogpu/wgsl-ir/resolve"
	"github.com/gogpu/wgsl-ir/wgsl"
)

// Lower runs the full pipeline -- resolve then lower -- over a parsed
// WGSL module, the entry point cmd/wgslowc drives.
func Lower(module *wgsl.Module, cfg config.LowerConfig) (*ir.Module, error) {
	return LowerWithLog(module, cfg, nil)
}

// LowerWithLog is Lower with an explicit logrus entry for trace output.
func LowerWithLog(module *wgsl.Module, cfg config.LowerConfig, log *logrus.Entry) (*ir.Module, error) {
	tu, err := resolve.Resolve(module)
	if err != nil {
		return nil, fmt.Errorf("lower: %w", err)
	}
	return LowerModule(tu, cfg, log)
}

// LowerModule lowers an already-resolved translation unit to IR,
// visiting every module-scope declaration in tu.Order and finally every
// function body, threading the three nested context shapes (global,
// statement, expression) spec.md's driver describes.
func LowerModule(tu *resolve.TranslationUnit, cfg config.LowerConfig, log *logrus.Entry) (*ir.Module, error) {
	g := NewGlobalContext(tu, cfg, log)
	if err := g.registerBuiltinTypes(); err != nil {
		return nil, err
	}

	// Pre-register function names/handles so calls (including forward
	// and mutually recursive references) resolve regardless of visit
	// order.
	for i, f := range tu.Module.Functions {
		g.funcsByName[f.Name] = ir.FunctionHandle(i)
	}
	g.Module.Functions = make([]ir.Function, len(tu.Module.Functions))

	for _, ref := range tu.Order {
		switch ref.Kind {
		case resolve.DeclStruct:
			if err := g.lowerStruct(tu.Module.Structs[ref.Index]); err != nil {
				return nil, err
			}
		case resolve.DeclAlias:
			g.aliasesByName[tu.Module.Aliases[ref.Index].Name] = tu.Module.Aliases[ref.Index].Type
		case resolve.DeclGlobalVar:
			if err := g.lowerGlobalVar(tu.Module.GlobalVars[ref.Index]); err != nil {
				return nil, err
			}
		case resolve.DeclConst:
			if err := g.lowerModuleConstant(tu.Module.Constants[ref.Index]); err != nil {
				return nil, err
			}
		case resolve.DeclOverride:
			if err := g.lowerOverride(tu.Module.Overrides[ref.Index]); err != nil {
				return nil, err
			}
		case resolve.DeclConstAssert:
			if err := g.checkModuleConstAssert(tu.Module.ConstAsserts[ref.Index]); err != nil {
				return nil, err
			}
		case resolve.DeclFunction:
			if err := g.lowerFunction(tu.Module.Functions[ref.Index]); err != nil {
				return nil, err
			}
		}
	}

	return g.Module, nil
}

// registerBuiltinTypes seeds the registry with the four concrete scalar
// types every shader needs regardless of what it uses; f16 is withheld
// unless the config enables it, and samplers are never pre-registered
// (they are minted lazily, the way the teacher avoids emitting
// OpTypeSampler for shaders that never declare one).
func (g *GlobalContext) registerBuiltinTypes() error {
	for name, scalar := range map[string]ir.ScalarType{
		"f32":  {Kind: ir.ScalarFloat, Width: 4},
		"i32":  {Kind: ir.ScalarSint, Width: 4},
		"u32":  {Kind: ir.ScalarUint, Width: 4},
		"bool": {Kind: ir.ScalarBool, Width: 1},
	} {
		if _, err := g.RegisterType(name, scalar); err != nil {
			return err
		}
	}
	if g.Config.EnableF16 {
		if _, err := g.RegisterType("f16", ir.ScalarType{Kind: ir.ScalarFloat, Width: 2}); err != nil {
			return err
		}
	}
	return nil
}

// lowerStruct converts a struct declaration to an ir.StructType, using
// the Layouter for each member's alignment/size and writing the
// monotonically increasing member offsets directly (the Layouter itself
// deliberately stops at size/alignment; struct member placement is this
// function's job).
func (g *GlobalContext) lowerStruct(s *wgsl.StructDecl) error {
	members := make([]ir.StructMember, len(s.Members))
	var offset uint32
	var struAlign uint32 = 1

	for i, m := range s.Members {
		typeHandle, err := g.resolveType(m.Type)
		if err != nil {
			return wrapErr(m.Span, err, "struct %s member %s", s.Name, m.Name)
		}

		binding, err := bindingsFromAttrs(m.Attributes)
		if err != nil {
			return wrapErr(m.Span, err, "struct %s member %s", s.Name, m.Name)
		}

		layout := g.Layouter.Lookup(typeHandle)
		if layout.Alignment > struAlign {
			struAlign = layout.Alignment
		}
		offset = roundUp(layout.Alignment, offset)

		members[i] = ir.StructMember{
			Name:    m.Name,
			Type:    typeHandle,
			Binding: binding,
			Offset:  offset,
		}
		offset += layout.Size
	}

	size := roundUp(struAlign, offset)
	_, err := g.RegisterType(s.Name, ir.StructType{Members: members, Span: size})
	return err
}

func roundUp(alignment, size uint32) uint32 {
	if alignment == 0 {
		return size
	}
	return (size + alignment - 1) &^ (alignment - 1)
}

// lowerGlobalVar converts a module-scope `var` declaration.
func (g *GlobalContext) lowerGlobalVar(v *wgsl.VarDecl) error {
	typeHandle, err := g.resolveType(v.Type)
	if err != nil {
		return wrapErr(v.Span, err, "global var %s", v.Name)
	}

	space := addressSpace(v.AddressSpace)
	if g.isOpaqueResourceType(typeHandle) {
		space = ir.SpaceHandle
	}

	binding, err := resourceBinding(v.Attributes)
	if err != nil {
		return wrapErr(v.Span, err, "global var %s", v.Name)
	}

	var initHandle *ir.ConstantHandle
	if v.Init != nil {
		ch, err := g.lowerConstExprToConstant("", &typeHandle, v.Init)
		if err != nil {
			return wrapErr(v.Span, err, "global var %s initializer", v.Name)
		}
		initHandle = &ch
	}

	handle := ir.GlobalVariableHandle(len(g.Module.GlobalVariables))
	g.Module.GlobalVariables = append(g.Module.GlobalVariables, ir.GlobalVariable{
		Name:    v.Name,
		Space:   space,
		Binding: binding,
		Type:    typeHandle,
		Init:    initHandle,
	})
	g.globalsByName[v.Name] = handle
	g.trace("lowered global variable", map[string]any{"name": v.Name, "space": space})
	return nil
}

// lowerModuleConstant converts a module-scope `const` declaration,
// evaluating its initializer eagerly through constfold (module
// constants may never depend on an override or runtime value).
func (g *GlobalContext) lowerModuleConstant(c *wgsl.ConstDecl) error {
	if c.Init == nil {
		return newErr(c.Span, "module constant %q must have an initializer", c.Name)
	}

	var declaredType *ir.TypeHandle
	if c.Type != nil {
		h, err := g.resolveType(c.Type)
		if err != nil {
			return wrapErr(c.Span, err, "constant %s", c.Name)
		}
		declaredType = &h
	}

	handle, err := g.lowerConstExprToConstant(c.Name, declaredType, c.Init)
	if err != nil {
		return wrapErr(c.Span, err, "constant %s", c.Name)
	}
	g.constsByName[c.Name] = handle
	return nil
}

// lowerOverride converts a pipeline-overridable constant declaration.
// Unlike a const, its initializer (if present) is only a *default*; it
// is lowered in override mode rather than folded, and a default that
// fails to lower or convert to the override's type fails the module.
func (g *GlobalContext) lowerOverride(o *wgsl.OverrideDecl) error {
	var typeHandle ir.TypeHandle
	if o.Type != nil {
		var err error
		typeHandle, err = g.resolveType(o.Type)
		if err != nil {
			return wrapErr(o.Span, err, "override %s", o.Name)
		}
	} else if o.Init != nil {
		inferred, err := g.inferLiteralType(o.Init)
		if err != nil {
			return wrapErr(o.Span, err, "override %s: cannot infer type", o.Name)
		}
		typeHandle = inferred
	} else {
		return newErr(o.Span, "override %q needs either a type or an initializer", o.Name)
	}

	var id *uint16
	for _, attr := range o.Attributes {
		if attr.Name != "id" || len(attr.Args) == 0 {
			continue
		}
		lit, ok := attr.Args[0].(*wgsl.Literal)
		if !ok {
			return newErr(o.Span, "override %s: @id argument must be a literal", o.Name)
		}
		n, err := strconv.ParseUint(lit.Value, 0, 32)
		if err != nil || n > 0xFFFF {
			return wrapErr(o.Span, err, "override %s: @id value %s does not fit in u16", o.Name, lit.Value)
		}
		v := uint16(n)
		id = &v
	}

	var initHandle *ir.ExpressionHandle
	if o.Init != nil {
		h, err := g.lowerOverrideDefault(typeHandle, o.Init)
		if err != nil {
			return wrapErr(o.Span, err, "override %s initializer", o.Name)
		}
		initHandle = &h
	}

	handle := ir.OverrideHandle(len(g.Module.Overrides))
	g.Module.Overrides = append(g.Module.Overrides, ir.Override{
		Name: o.Name,
		Type: typeHandle,
		ID:   id,
		Init: initHandle,
	})
	g.overridesByName[o.Name] = handle
	return nil
}

// checkModuleConstAssert evaluates a module-scope const_assert eagerly
// and rejects the module if it does not hold.
func (g *GlobalContext) checkModuleConstAssert(ca *wgsl.ConstAssertDecl) error {
	fn := &ir.Function{}
	sc := g.NewStatementContext(fn)
	ec := sc.NewExpressionContext(ModeConstant)
	handle, err := lowerExpression(ec, ca.Condition, nil)
	if err != nil {
		return wrapErr(ca.Span, err, "const_assert")
	}
	ok, err := constfold.AssertTrue(g.Module, fn, handle)
	if err != nil {
		return wrapErr(ca.Span, err, "const_assert")
	}
	if !ok {
		return newErr(ca.Span, "const_assert failed")
	}
	return nil
}
