// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapeinference

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/symshape/pkg/core/ir"
	"github.com/gomlx/symshape/pkg/core/shapeanalysis"
	"github.com/gomlx/symshape/pkg/core/shapes"
	"github.com/gomlx/symshape/pkg/core/symbolic"
	"github.com/stretchr/testify/require"
)

func TestBroadcastShapes(t *testing.T) {
	testCases := []struct {
		name    string
		a, b    shapes.ShapeOrData
		want    string
		wantErr bool
	}{
		{"same", shapes.MakeFrom("S0", 4), shapes.MakeFrom("S0", 4), "[S0, 4]", false},
		{"missing leading axes", shapes.MakeFrom("S0", 4), shapes.MakeFrom(4), "[S0, 4]", false},
		{"ones", shapes.MakeFrom("S0", 1), shapes.MakeFrom(1, 8), "[S0, 8]", false},
		{"scalar", shapes.MakeFrom(), shapes.MakeFrom("S0", 2), "[S0, 2]", false},
		{"symbols", shapes.MakeFrom("S0"), shapes.MakeFrom("S1"), "[Max(S0, S1)]", false},
		{"symbol and constant", shapes.MakeFrom("S0", 3), shapes.MakeFrom(5, 3), "[Max(5, S0), 3]", false},
		{"incompatible", shapes.MakeFrom(2, 3), shapes.MakeFrom(3, 3), "", true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := shapeanalysis.NewContext(shapeanalysis.DefaultConfig())
			dims, err := BroadcastShapes(ctx, tc.a.Shape(), tc.b.Shape())
			if tc.wantErr {
				require.ErrorIs(t, err, shapeanalysis.ErrConstraintConflict)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, symbolic.SliceString(dims))
		})
	}

	t.Run("known equal", func(t *testing.T) {
		ctx := shapeanalysis.NewContext(shapeanalysis.DefaultConfig())
		s0, s1 := symbolic.Symbol("S0"), symbolic.Symbol("S1")
		require.NoError(t, ctx.AddEqualityConstraint(s0, s1))
		dims, err := BroadcastShapes(ctx, []symbolic.DimExpr{s0}, []symbolic.DimExpr{s1}, []symbolic.DimExpr{})
		require.NoError(t, err)
		require.Equal(t, "[S0]", symbolic.SliceString(dims))
	})

	t.Run("constrained constants", func(t *testing.T) {
		s0, s1 := symbolic.Symbol("S0"), symbolic.Symbol("S1")
		ctx := shapeanalysis.NewContext(shapeanalysis.DefaultConfig())
		require.NoError(t, ctx.AddEqualityConstraint(s0, symbolic.Const(3)))
		_, err := BroadcastShapes(ctx, []symbolic.DimExpr{s0, symbolic.Const(2)}, symbolic.Consts(4, 2))
		require.ErrorIs(t, err, shapeanalysis.ErrConstraintConflict)

		ctx = shapeanalysis.NewContext(shapeanalysis.DefaultConfig())
		require.NoError(t, ctx.AddEqualityConstraint(s0, symbolic.Const(1)))
		dims, err := BroadcastShapes(ctx, []symbolic.DimExpr{s0}, []symbolic.DimExpr{s1})
		require.NoError(t, err)
		require.Equal(t, "[S1]", symbolic.SliceString(dims))
		dims, err = BroadcastShapes(ctx, []symbolic.DimExpr{s1, symbolic.Const(4)}, []symbolic.DimExpr{s0})
		require.NoError(t, err)
		require.Equal(t, "[S1, 4]", symbolic.SliceString(dims))
	})
}

// TestBroadcastAfterConcat checks that broadcasting uses the constraints found by earlier operations.
func TestBroadcastAfterConcat(t *testing.T) {
	g := ir.New("concat_then_add")
	x := g.AddInput("x", ir.MakeDynamicType(dtypes.Float32, "S0", 2))
	y := g.AddInput("y", ir.MakeType(dtypes.Float32, 3, 2))
	z := g.AddInput("z", ir.MakeType(dtypes.Float32, 4, 2))
	g.AddOp("concat", []*ir.Value{x, y}, []ir.TensorType{f32Unknown}, ir.Attributes{"axis": 1})
	add := g.AddOp("add", []*ir.Value{x, z}, []ir.TensorType{f32Unknown}, nil)

	ctx, report, err := shapeanalysis.NewDriver(Default(), shapeanalysis.DefaultConfig()).Analyze(g)
	require.ErrorIs(t, err, shapeanalysis.ErrConstraintConflict)
	require.Equal(t, []ir.OpKind{"add"}, report.FailedKinds)
	require.False(t, ctx.HasShapeOrDataForValue(add.Result(0)))
	require.Len(t, ctx.Diagnostics(), 1)
}

func TestBinaryOp(t *testing.T) {
	runRuleTests(t, "add", []ruleTestCase{
		{name: "broadcast", inputs: in(shapes.MakeFrom("S0", 4), shapes.MakeFrom(4)), want: "[S0, 4]"},
		{name: "ones", inputs: in(shapes.MakeFrom("S0", 1), shapes.MakeFrom(1, 8)), want: "[S0, 8]"},
		{name: "symbols", inputs: in(shapes.MakeFrom("S0"), shapes.MakeFrom("S1")), want: "[Max(S0, S1)]"},
		{name: "data", inputs: in(dataOf("S0", 4), dataOf(1, 2)), want: "[2] data=[Add(1, S0), 6]"},
		{name: "data broadcast", inputs: in(dataOf("S0", 4), scalarOf(3)), want: "[2] data=[Add(3, S0), 7]"},
		{name: "one operand", inputs: in(shapes.MakeFrom("S0")), want: failed},
		{name: "incompatible", inputs: in(shapes.MakeFrom(2, 3), shapes.MakeFrom(3, 3)),
			wantErr: shapeanalysis.ErrConstraintConflict},
	})
	runRuleTests(t, "multiply_", []ruleTestCase{
		{name: "data", inputs: in(dataOf("S0", 4), dataOf(2, 1)), want: "[2] data=[Mul(2, S0), 4]"},
	})
	runRuleTests(t, "subtract", []ruleTestCase{
		{name: "no data", inputs: in(dataOf("S0", 4), dataOf(2, 1)), want: "[2]"},
	})
	runRuleTests(t, "less_than", []ruleTestCase{
		{name: "broadcast", inputs: in(shapes.MakeFrom("S0", 1, 4), shapes.MakeFrom("S1", 1)),
			want: "[S0, S1, 4]"},
	})
}

func TestWhereOp(t *testing.T) {
	runRuleTests(t, "where", []ruleTestCase{
		{name: "broadcast", inputs: in(shapes.MakeFrom("S0", 1), shapes.MakeFrom(1, 4), shapes.MakeFrom()),
			want: "[S0, 4]"},
		{name: "missing operand", inputs: in(shapes.MakeFrom("S0"), shapes.MakeFrom("S0")), want: failed},
		{name: "unknown rank", inputs: in(shapes.MakeFrom("S0"), shapes.UnknownRank(), shapes.MakeFrom()),
			want: failed},
	})
}
