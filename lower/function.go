package lower

import (
	"fmt"

	"github.com/gogpu/wgsl-ir/ir"
	"github.com/gogpu/wgsl-ir/wgsl"
)

// lowerFunction converts a function declaration to an ir.Function,
// wires up the entry point table if it carries a stage attribute, and
// installs the result in the handle pre-registered by LowerModule.
func (g *GlobalContext) lowerFunction(f *wgsl.FunctionDecl) error {
	fn := &ir.Function{
		Name:      f.Name,
		Arguments: make([]ir.FunctionArgument, len(f.Params)),
	}
	sc := g.NewStatementContext(fn)

	for i, p := range f.Params {
		typeHandle, err := g.resolveType(p.Type)
		if err != nil {
			return wrapErr(f.Span, err, "function %s param %s", f.Name, p.Name)
		}
		binding, err := bindingsFromAttrs(p.Attributes)
		if err != nil {
			return wrapErr(f.Span, err, "function %s param %s", f.Name, p.Name)
		}
		fn.Arguments[i] = ir.FunctionArgument{Name: p.Name, Type: typeHandle, Binding: binding}
	}

	if f.ReturnType != nil {
		typeHandle, err := g.resolveType(f.ReturnType)
		if err != nil {
			return wrapErr(f.Span, err, "function %s return type", f.Name)
		}
		binding, err := bindingsFromAttrs(f.ReturnAttrs)
		if err != nil {
			return wrapErr(f.Span, err, "function %s return type", f.Name)
		}
		fn.Result = &ir.FunctionResult{Type: typeHandle, Binding: binding}
	}

	if f.Body != nil {
		ec := sc.NewExpressionContext(ModeRuntime)
		ec.Emitter.Start(fn)
		body := ir.Block(fn.Body)
		if err := lowerBlock(ec, f.Body, &body); err != nil {
			return wrapErr(f.Span, err, "function %s body", f.Name)
		}
		ec.Emitter.FlushInto(fn, &body)
		fn.Body = body
	}

	funcHandle, ok := g.funcsByName[f.Name]
	if !ok {
		return newErr(f.Span, "function %q was not pre-registered", f.Name)
	}
	g.Module.Functions[funcHandle] = *fn

	if stage, ok := entryPointStage(f.Attributes); ok {
		ep := ir.EntryPoint{Name: f.Name, Stage: stage, Function: funcHandle}
		if stage == ir.StageCompute {
			size, err := workgroupSize(f.Attributes)
			if err != nil {
				return wrapErr(f.Span, err, "entry point %s", f.Name)
			}
			ep.Workgroup = size
		}
		g.Module.EntryPoints = append(g.Module.EntryPoints, ep)
	}

	return nil
}

func unsupportedStatement(stmt wgsl.Stmt) error {
	return fmt.Errorf("unsupported statement type: %T", stmt)
}
