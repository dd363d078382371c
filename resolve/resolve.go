// Package resolve stands in for the name-resolution pass that, in a full
// WGSL toolchain, runs between parsing and lowering: it turns a parsed
// wgsl.Module into the shape the lowering pass actually wants to consume
// -- every declaration addressed by a stable handle, and visited in an
// order where a declaration's dependencies are always already lowered.
//
// WGSL forbids forward-referencing cycles between module-scope const/
// override/alias/struct declarations. Calls between functions are not
// ordering edges here, and this package does not check them for
// recursion.
package resolve

import (
	"fmt"
	"sort"

	"github.com/gogpu/wgsl-ir/wgsl"
)

// DeclKind identifies which slice of wgsl.Module a DeclRef points into.
type DeclKind uint8

const (
	DeclStruct DeclKind = iota
	DeclAlias
	DeclConst
	DeclOverride
	DeclGlobalVar
	DeclFunction
	DeclConstAssert
)

func (k DeclKind) String() string {
	switch k {
	case DeclStruct:
		return "struct"
	case DeclAlias:
		return "alias"
	case DeclConst:
		return "const"
	case DeclOverride:
		return "override"
	case DeclGlobalVar:
		return "global variable"
	case DeclFunction:
		return "function"
	case DeclConstAssert:
		return "const_assert"
	default:
		return "unknown"
	}
}

// DeclRef identifies one declaration within a wgsl.Module by kind and
// index into that kind's slice.
type DeclRef struct {
	Kind  DeclKind
	Index int
}

// TranslationUnit is the resolved input the lowering pass consumes: the
// original parsed module, plus a topologically sorted visit order over
// every module-scope declaration (functions last within their own
// dependency tier, since they may reference globals/consts/overrides
// but never vice versa).
type TranslationUnit struct {
	Module *wgsl.Module
	Order  []DeclRef
}

// Resolve builds a TranslationUnit from a parsed module, computing a
// dependency-respecting visit order via Kahn's algorithm. It returns an
// error if it finds a dependency cycle (e.g. two const declarations that
// reference each other).
func Resolve(module *wgsl.Module) (*TranslationUnit, error) {
	r := &resolver{module: module, byName: map[string]DeclRef{}}
	r.index()

	order, err := r.topoSort()
	if err != nil {
		return nil, err
	}

	return &TranslationUnit{Module: module, Order: order}, nil
}

type resolver struct {
	module *wgsl.Module
	byName map[string]DeclRef
	refs   map[DeclRef][]string // declaration -> names it references
}

func (r *resolver) index() {
	for i := range r.module.Structs {
		r.byName[r.module.Structs[i].Name] = DeclRef{DeclStruct, i}
	}
	for i := range r.module.Aliases {
		r.byName[r.module.Aliases[i].Name] = DeclRef{DeclAlias, i}
	}
	for i := range r.module.Constants {
		r.byName[r.module.Constants[i].Name] = DeclRef{DeclConst, i}
	}
	for i := range r.module.Overrides {
		r.byName[r.module.Overrides[i].Name] = DeclRef{DeclOverride, i}
	}
	for i := range r.module.GlobalVars {
		r.byName[r.module.GlobalVars[i].Name] = DeclRef{DeclGlobalVar, i}
	}
	for i := range r.module.Functions {
		r.byName[r.module.Functions[i].Name] = DeclRef{DeclFunction, i}
	}

	r.refs = map[DeclRef][]string{}
	for i, s := range r.module.Structs {
		var names []string
		for _, m := range s.Members {
			names = append(names, typeNames(m.Type)...)
		}
		r.refs[DeclRef{DeclStruct, i}] = names
	}
	for i, a := range r.module.Aliases {
		r.refs[DeclRef{DeclAlias, i}] = typeNames(a.Type)
	}
	for i, c := range r.module.Constants {
		names := typeNames(c.Type)
		names = append(names, exprNames(c.Init)...)
		r.refs[DeclRef{DeclConst, i}] = names
	}
	for i, o := range r.module.Overrides {
		names := typeNames(o.Type)
		names = append(names, exprNames(o.Init)...)
		r.refs[DeclRef{DeclOverride, i}] = names
	}
	for i, g := range r.module.GlobalVars {
		names := typeNames(g.Type)
		names = append(names, exprNames(g.Init)...)
		r.refs[DeclRef{DeclGlobalVar, i}] = names
	}
	for i, f := range r.module.Functions {
		var names []string
		for _, p := range f.Params {
			names = append(names, typeNames(p.Type)...)
		}
		if f.ReturnType != nil {
			names = append(names, typeNames(f.ReturnType)...)
		}
		// Function bodies may reference other functions (including
		// itself); those edges are intentionally not added here, since
		// ordering function bodies relative to each other is not required
		// for lowering (only globals/consts/overrides/types must precede
		// the function that uses them).
		r.refs[DeclRef{DeclFunction, i}] = names
	}
	for i, ca := range r.module.ConstAsserts {
		r.refs[DeclRef{DeclConstAssert, i}] = exprNames(ca.Condition)
	}
}

func (r *resolver) topoSort() ([]DeclRef, error) {
	// Collect every declaration so const_assert and unreferenced structs
	// are still included in the order.
	var all []DeclRef
	for ref := range r.refs {
		all = append(all, ref)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Kind != all[j].Kind {
			return all[i].Kind < all[j].Kind
		}
		return all[i].Index < all[j].Index
	})

	inDegree := map[DeclRef]int{}
	dependents := map[DeclRef][]DeclRef{}
	for _, ref := range all {
		inDegree[ref] = 0
	}
	for _, ref := range all {
		for _, name := range r.refs[ref] {
			dep, ok := r.byName[name]
			if !ok || dep == ref || dep.Kind == DeclFunction {
				continue // unknown name (builtin type), self-reference, or a function call (not an ordering edge)
			}
			dependents[dep] = append(dependents[dep], ref)
			inDegree[ref]++
		}
	}

	var queue []DeclRef
	for _, ref := range all {
		if inDegree[ref] == 0 {
			queue = append(queue, ref)
		}
	}
	sort.Slice(queue, func(i, j int) bool { return less(queue[i], queue[j]) })

	var order []DeclRef
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)

		var freed []DeclRef
		for _, dep := range dependents[n] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				freed = append(freed, dep)
			}
		}
		sort.Slice(freed, func(i, j int) bool { return less(freed[i], freed[j]) })
		queue = append(queue, freed...)
	}

	if len(order) != len(all) {
		return nil, fmt.Errorf("resolve: dependency cycle among module-scope declarations")
	}
	return order, nil
}

func less(a, b DeclRef) bool {
	if a.Kind != b.Kind {
		return a.Kind < b.Kind
	}
	return a.Index < b.Index
}

func typeNames(t wgsl.Type) []string {
	switch v := t.(type) {
	case nil:
		return nil
	case *wgsl.NamedType:
		names := []string{v.Name}
		for _, p := range v.TypeParams {
			names = append(names, typeNames(p)...)
		}
		return names
	case *wgsl.ArrayType:
		names := typeNames(v.Element)
		names = append(names, exprNames(v.Size)...)
		return names
	case *wgsl.BindingArrayType:
		names := typeNames(v.Element)
		names = append(names, exprNames(v.Size)...)
		return names
	case *wgsl.PtrType:
		return typeNames(v.PointeeType)
	default:
		return nil
	}
}

func exprNames(e wgsl.Expr) []string {
	switch v := e.(type) {
	case nil:
		return nil
	case *wgsl.Ident:
		return []string{v.Name}
	case *wgsl.BinaryExpr:
		return append(exprNames(v.Left), exprNames(v.Right)...)
	case *wgsl.UnaryExpr:
		return exprNames(v.Operand)
	case *wgsl.CallExpr:
		var names []string
		if v.Func != nil {
			names = append(names, v.Func.Name)
		}
		for _, a := range v.Args {
			names = append(names, exprNames(a)...)
		}
		return names
	case *wgsl.IndexExpr:
		return append(exprNames(v.Expr), exprNames(v.Index)...)
	case *wgsl.MemberExpr:
		return exprNames(v.Expr)
	case *wgsl.ConstructExpr:
		names := typeNames(v.Type)
		for _, a := range v.Args {
			names = append(names, exprNames(a)...)
		}
		return names
	case *wgsl.BitcastExpr:
		names := typeNames(v.Type)
		return append(names, exprNames(v.Expr)...)
	default:
		return nil
	}
}
