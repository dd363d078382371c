package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/wgsl-ir/wgsl"
)

func indexOf(t *testing.T, order []DeclRef, ref DeclRef) int {
	t.Helper()
	for i, r := range order {
		if r == ref {
			return i
		}
	}
	t.Fatalf("%v not found in order %v", ref, order)
	return -1
}

func TestResolve_OrdersConstantsByDependency(t *testing.T) {
	// const A = 2;
	// const B = A + 1;
	module := &wgsl.Module{
		Constants: []*wgsl.ConstDecl{
			{Name: "A", Init: &wgsl.Literal{Kind: wgsl.TokenIntLiteral, Value: "2"}},
			{Name: "B", Init: &wgsl.BinaryExpr{
				Op:    wgsl.TokenPlus,
				Left:  &wgsl.Ident{Name: "A"},
				Right: &wgsl.Literal{Kind: wgsl.TokenIntLiteral, Value: "1"},
			}},
		},
	}

	tu, err := Resolve(module)
	require.NoError(t, err)
	require.Len(t, tu.Order, 2)

	aIdx := indexOf(t, tu.Order, DeclRef{DeclConst, 0})
	bIdx := indexOf(t, tu.Order, DeclRef{DeclConst, 1})
	assert.Less(t, aIdx, bIdx, "A must be ordered before B since B references A")
}

func TestResolve_RejectsDependencyCycle(t *testing.T) {
	// const A = B; const B = A;
	module := &wgsl.Module{
		Constants: []*wgsl.ConstDecl{
			{Name: "A", Init: &wgsl.Ident{Name: "B"}},
			{Name: "B", Init: &wgsl.Ident{Name: "A"}},
		},
	}

	_, err := Resolve(module)
	require.Error(t, err)
}

func TestResolve_GlobalsBeforeFunctionsThatUseTheirTypes(t *testing.T) {
	module := &wgsl.Module{
		Structs: []*wgsl.StructDecl{
			{Name: "Particle", Members: []*wgsl.StructMember{
				{Name: "pos", Type: &wgsl.NamedType{Name: "f32"}},
			}},
		},
		Functions: []*wgsl.FunctionDecl{
			{Name: "main", Params: []*wgsl.Parameter{
				{Name: "p", Type: &wgsl.NamedType{Name: "Particle"}},
			}},
		},
	}

	tu, err := Resolve(module)
	require.NoError(t, err)

	structIdx := indexOf(t, tu.Order, DeclRef{DeclStruct, 0})
	fnIdx := indexOf(t, tu.Order, DeclRef{DeclFunction, 0})
	assert.Less(t, structIdx, fnIdx)
}
