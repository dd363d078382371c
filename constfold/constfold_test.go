package constfold

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/wgsl-ir/ir"
)

func TestEvaluate_LiteralAndBinary(t *testing.T) {
	// 2i32 + 3i32
	fn := &ir.Function{
		Expressions: []ir.Expression{
			{Kind: ir.Literal{Value: ir.LiteralI32(2)}},
			{Kind: ir.Literal{Value: ir.LiteralI32(3)}},
			{Kind: ir.ExprBinary{Op: ir.BinaryAdd, Left: 0, Right: 1}},
		},
	}

	value, err := Evaluate(&ir.Module{}, fn, 2)
	require.NoError(t, err)

	scalar, ok := value.(Scalar)
	require.True(t, ok, "expected a Scalar result")
	assert.Equal(t, ir.ScalarSint, scalar.Kind)
	assert.Equal(t, int32(5), int32(scalar.Bits))
}

func TestEvaluate_ModuleConstant(t *testing.T) {
	module := &ir.Module{
		Constants: []ir.Constant{
			{Name: "PI", Value: ir.ScalarValue{Kind: ir.ScalarFloat, Bits: uint64(math.Float32bits(3.5))}},
		},
	}
	fn := &ir.Function{
		Expressions: []ir.Expression{
			{Kind: ir.ExprConstant{Constant: 0}},
		},
	}

	value, err := Evaluate(module, fn, 0)
	require.NoError(t, err)

	scalar, ok := value.(Scalar)
	require.True(t, ok)
	assert.Equal(t, float32(3.5), math.Float32frombits(uint32(scalar.Bits)))
}

func TestEvaluate_OverrideIsNotFoldable(t *testing.T) {
	fn := &ir.Function{
		Expressions: []ir.Expression{
			{Kind: ir.ExprOverride{Override: 4}},
		},
	}

	_, err := Evaluate(&ir.Module{}, fn, 0)
	require.ErrorIs(t, err, ErrNeedsOverride)
}

func TestEvaluate_SplatReplicatesComponent(t *testing.T) {
	fn := &ir.Function{
		Expressions: []ir.Expression{
			{Kind: ir.Literal{Value: ir.LiteralF32(1.5)}},
			{Kind: ir.ExprSplat{Value: 0, Size: ir.Vec3}},
		},
	}

	value, err := Evaluate(&ir.Module{}, fn, 1)
	require.NoError(t, err)

	composite, ok := value.(Composite)
	require.True(t, ok)
	require.Len(t, composite.Components, 3)
	for _, c := range composite.Components {
		scalar := c.(Scalar)
		assert.Equal(t, float32(1.5), math.Float32frombits(uint32(scalar.Bits)))
	}
}

func TestAssertTrue(t *testing.T) {
	fn := &ir.Function{
		Expressions: []ir.Expression{
			{Kind: ir.Literal{Value: ir.LiteralBool(true)}},
		},
	}
	ok, err := AssertTrue(&ir.Module{}, fn, 0)
	require.NoError(t, err)
	assert.True(t, ok)

	fn.Expressions[0] = ir.Expression{Kind: ir.Literal{Value: ir.LiteralBool(false)}}
	ok, err = AssertTrue(&ir.Module{}, fn, 0)
	require.NoError(t, err)
	assert.False(t, ok)
}
