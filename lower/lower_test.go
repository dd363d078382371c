package lower

import (
	"testing"

	"github.com/gogpu/wgsl-ir/config"
	"github.com/gogpu/wgsl-ir/ir"
	"github.com/gogpu/wgsl-ir/wgsl"
)

// TestLowerSimpleVertexShader lowers:
//
//	@vertex
//	fn main(@builtin(vertex_index) idx: u32) -> @builtin(position) vec4<f32> {
//	    return vec4<f32>(0.0, 0.0, 0.0, 1.0);
//	}
func TestLowerSimpleVertexShader(t *testing.T) {
	astModule := &wgsl.Module{
		Functions: []*wgsl.FunctionDecl{
			{
				Name: "main",
				Params: []*wgsl.Parameter{
					{
						Name: "idx",
						Type: &wgsl.NamedType{Name: "u32"},
						Attributes: []wgsl.Attribute{
							{Name: "builtin", Args: []wgsl.Expr{&wgsl.Ident{Name: "vertex_index"}}},
						},
					},
				},
				ReturnType: &wgsl.NamedType{Name: "vec4", TypeParams: []wgsl.Type{&wgsl.NamedType{Name: "f32"}}},
				Attributes: []wgsl.Attribute{
					{Name: "vertex"},
				},
				ReturnAttrs: []wgsl.Attribute{
					{Name: "builtin", Args: []wgsl.Expr{&wgsl.Ident{Name: "position"}}},
				},
				Body: &wgsl.BlockStmt{
					Statements: []wgsl.Stmt{
						&wgsl.ReturnStmt{
							Value: &wgsl.ConstructExpr{
								Type: &wgsl.NamedType{Name: "vec4", TypeParams: []wgsl.Type{&wgsl.NamedType{Name: "f32"}}},
								Args: []wgsl.Expr{
									&wgsl.Literal{Kind: wgsl.TokenFloatLiteral, Value: "0.0"},
									&wgsl.Literal{Kind: wgsl.TokenFloatLiteral, Value: "0.0"},
									&wgsl.Literal{Kind: wgsl.TokenFloatLiteral, Value: "0.0"},
									&wgsl.Literal{Kind: wgsl.TokenFloatLiteral, Value: "1.0"},
								},
							},
						},
					},
				},
			},
		},
	}

	module, err := Lower(astModule, config.Default())
	if err != nil {
		t.Fatalf("Lower failed: %v", err)
	}

	if len(module.Functions) != 1 {
		t.Fatalf("expected 1 function, got %d", len(module.Functions))
	}
	if len(module.EntryPoints) != 1 {
		t.Fatalf("expected 1 entry point, got %d", len(module.EntryPoints))
	}

	ep := module.EntryPoints[0]
	if ep.Name != "main" || ep.Stage != ir.StageVertex {
		t.Errorf("unexpected entry point %+v", ep)
	}

	fn := module.Functions[0]
	if len(fn.Arguments) != 1 || fn.Arguments[0].Name != "idx" {
		t.Fatalf("unexpected arguments %+v", fn.Arguments)
	}
	if fn.Arguments[0].Binding == nil {
		t.Fatal("expected argument binding, got nil")
	}
	if b, ok := (*fn.Arguments[0].Binding).(ir.BuiltinBinding); !ok || b.Builtin != ir.BuiltinVertexIndex {
		t.Errorf("expected BuiltinVertexIndex binding, got %#v", *fn.Arguments[0].Binding)
	}

	if fn.Result == nil || fn.Result.Binding == nil {
		t.Fatal("expected a bound function result")
	}
	if b, ok := (*fn.Result.Binding).(ir.BuiltinBinding); !ok || b.Builtin != ir.BuiltinPosition {
		t.Errorf("expected BuiltinPosition binding, got %#v", *fn.Result.Binding)
	}

	var sawReturn bool
	for _, stmt := range fn.Body {
		if ret, ok := stmt.Kind.(ir.StmtReturn); ok {
			sawReturn = true
			if ret.Value == nil {
				t.Error("expected a return value, got nil")
			}
		}
	}
	if !sawReturn {
		t.Errorf("expected a StmtReturn in the lowered body, got %+v", fn.Body)
	}
}

// TestLowerIfElseAndLocalVar lowers:
//
//	fn clamp01(x: f32) -> f32 {
//	    var result: f32 = x;
//	    if (x < 0.0) {
//	        result = 0.0;
//	    } else {
//	        result = 1.0;
//	    }
//	    return result;
//	}
func TestLowerIfElseAndLocalVar(t *testing.T) {
	astModule := &wgsl.Module{
		Functions: []*wgsl.FunctionDecl{
			{
				Name: "clamp01",
				Params: []*wgsl.Parameter{
					{Name: "x", Type: &wgsl.NamedType{Name: "f32"}},
				},
				ReturnType: &wgsl.NamedType{Name: "f32"},
				Body: &wgsl.BlockStmt{
					Statements: []wgsl.Stmt{
						&wgsl.VarDecl{
							Name: "result",
							Type: &wgsl.NamedType{Name: "f32"},
							Init: &wgsl.Ident{Name: "x"},
						},
						&wgsl.IfStmt{
							Condition: &wgsl.BinaryExpr{
								Left:  &wgsl.Ident{Name: "x"},
								Op:    wgsl.TokenLess,
								Right: &wgsl.Literal{Kind: wgsl.TokenFloatLiteral, Value: "0.0"},
							},
							Body: &wgsl.BlockStmt{
								Statements: []wgsl.Stmt{
									&wgsl.AssignStmt{
										Left:  &wgsl.Ident{Name: "result"},
										Op:    wgsl.TokenEqual,
										Right: &wgsl.Literal{Kind: wgsl.TokenFloatLiteral, Value: "0.0"},
									},
								},
							},
							Else: &wgsl.BlockStmt{
								Statements: []wgsl.Stmt{
									&wgsl.AssignStmt{
										Left:  &wgsl.Ident{Name: "result"},
										Op:    wgsl.TokenEqual,
										Right: &wgsl.Literal{Kind: wgsl.TokenFloatLiteral, Value: "1.0"},
									},
								},
							},
						},
						&wgsl.ReturnStmt{Value: &wgsl.Ident{Name: "result"}},
					},
				},
			},
		},
	}

	module, err := Lower(astModule, config.Default())
	if err != nil {
		t.Fatalf("Lower failed: %v", err)
	}

	fn := module.Functions[0]
	if len(fn.LocalVars) != 1 || fn.LocalVars[0].Name != "result" {
		t.Fatalf("expected 1 local var named result, got %+v", fn.LocalVars)
	}

	var sawIf, sawReturn bool
	for _, stmt := range fn.Body {
		switch k := stmt.Kind.(type) {
		case ir.StmtIf:
			sawIf = true
			if len(k.Accept) == 0 || len(k.Reject) == 0 {
				t.Errorf("expected non-empty accept/reject blocks, got %+v", k)
			}
		case ir.StmtReturn:
			sawReturn = true
		}
	}
	if !sawIf {
		t.Errorf("expected a StmtIf in the lowered body, got %+v", fn.Body)
	}
	if !sawReturn {
		t.Errorf("expected a StmtReturn in the lowered body, got %+v", fn.Body)
	}
}
