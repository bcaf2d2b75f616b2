// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapeinference

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/symshape/pkg/core/ir"
	"github.com/gomlx/symshape/pkg/core/shapeanalysis"
	"github.com/gomlx/symshape/pkg/core/shapes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unaryOp(g *ir.Graph, kind ir.OpKind, x *ir.Value, attrs ir.Attributes) *ir.Value {
	return g.AddOp(kind, []*ir.Value{x}, []ir.TensorType{f32Unknown}, attrs).Result(0)
}

func requireRecord(t *testing.T, ctx *shapeanalysis.Context, v *ir.Value, want string) {
	t.Helper()
	rec, err := ctx.GetShapeOrDataForValue(v)
	require.NoError(t, err)
	require.Equal(t, want, rec.String(), "record of %s", v)
}

func TestMergeRecords(t *testing.T) {
	g := ir.New("merge")
	v := g.AddInput("x", f32Unknown)
	ctx := shapeanalysis.NewContext(shapeanalysis.DefaultConfig())
	ctx.ReserveSymbol("S0")
	ctx.ReserveSymbol("S1")

	merged, ok := MergeRecords(ctx, v, "if", shapes.MakeFrom("S0", 4), shapes.MakeFrom("S1", 4))
	require.True(t, ok)
	require.Equal(t, "[S2, 4]", merged.String())
	again, ok := MergeRecords(ctx, v, "if", shapes.MakeFrom("S0", 4), shapes.MakeFrom("S1", 4))
	require.True(t, ok)
	require.True(t, merged.Equal(again))

	merged, ok = MergeRecords(ctx, v, "if", dataOf("S0", 4), dataOf("S0", 4))
	require.True(t, ok)
	require.Equal(t, "[2] data=[S0, 4]", merged.String())

	merged, ok = MergeRecords(ctx, v, "if", shapes.UnknownRank(), shapes.MakeFrom(4))
	require.True(t, ok)
	require.True(t, merged.IsUnknownRank())

	_, ok = MergeRecords(ctx, v, "if", shapes.MakeFrom(4), shapes.MakeFrom(4, 1))
	require.False(t, ok)
}

func TestIfOp(t *testing.T) {
	build := func(elseRank0 bool) (*ir.Graph, *ir.Operation) {
		g := ir.New("if")
		cond := g.AddInput("cond", ir.MakeType(dtypes.Bool))
		x := g.AddInput("x", ir.MakeDynamicType(dtypes.Float32, "n", 4))
		thenBranch := g.NewRegion("then")
		thenBranch.SetOutputs(unaryOp(thenBranch, "log", x, nil), unaryOp(thenBranch, "exp", x, nil))
		elseBranch := g.NewRegion("else")
		first := elseBranch.AddOp("concat", []*ir.Value{x, x}, []ir.TensorType{f32Unknown}, nil).Result(0)
		if elseRank0 {
			first = unaryOp(elseBranch, "sum", x, nil)
		}
		elseBranch.SetOutputs(first, unaryOp(elseBranch, "exp", x, nil))
		op := g.AddOp("if", []*ir.Value{cond}, []ir.TensorType{f32Unknown, f32Unknown}, nil, thenBranch, elseBranch)
		g.SetOutputs(op.Results()...)
		return g, op
	}

	t.Run("merge", func(t *testing.T) {
		g, op := build(false)
		ctx, report, err := shapeanalysis.NewDriver(Default(), shapeanalysis.DefaultConfig()).Analyze(g)
		require.NoError(t, err)
		require.Empty(t, report.FailedKinds)
		requireRecord(t, ctx, op.Regions()[1].Outputs()[0], "[Add(n, n), 4]")
		requireRecord(t, ctx, op.Result(0), "[S0, 4]")
		requireRecord(t, ctx, op.Result(1), "[n, 4]")
	})

	t.Run("rank mismatch", func(t *testing.T) {
		g, op := build(true)
		ctx, report, err := shapeanalysis.NewDriver(Default(), shapeanalysis.DefaultConfig()).Analyze(g)
		require.NoError(t, err)
		require.Equal(t, []ir.OpKind{"if"}, report.FailedKinds)
		requireRecord(t, ctx, op.Result(0), failed)
		requireRecord(t, ctx, op.Result(1), failed)
		require.Len(t, ctx.Diagnostics(), 1)
	})
}

// buildWhile returns a graph with a while loop over x[n, 4], whose body is built by the given function.
func buildWhile(body func(region *ir.Graph, arg *ir.Value)) (*ir.Graph, *ir.Operation) {
	g := ir.New("while")
	x := g.AddInput("x", ir.MakeDynamicType(dtypes.Float32, "n", 4))
	region := g.NewRegion("body")
	body(region, region.AddInput("carried", f32Unknown))
	op := g.AddOp("while", []*ir.Value{x}, []ir.TensorType{f32Unknown}, nil, region)
	g.SetOutputs(op.Result(0))
	return g, op
}

func TestWhileOp(t *testing.T) {
	driver := shapeanalysis.NewDriver(Default(), shapeanalysis.DefaultConfig())

	t.Run("stable", func(t *testing.T) {
		g, op := buildWhile(func(region *ir.Graph, arg *ir.Value) {
			region.SetOutputs(unaryOp(region, "exp", arg, nil))
		})
		ctx, report, err := driver.Analyze(g)
		require.NoError(t, err)
		require.Empty(t, report.FailedKinds)
		requireRecord(t, ctx, op.Result(0), "[n, 4]")
	})

	growing := func(region *ir.Graph, arg *ir.Value) {
		cond := unaryOp(region, "any", arg, nil)
		next := region.AddOp("concat", []*ir.Value{arg, arg}, []ir.TensorType{f32Unknown}, nil).Result(0)
		region.SetOutputs(cond, next)
	}

	t.Run("growing", func(t *testing.T) {
		g, op := buildWhile(growing)
		ctx, report, err := driver.Analyze(g)
		require.NoError(t, err)
		require.Empty(t, report.FailedKinds)
		requireRecord(t, ctx, op.Result(0), "[S0, 4]")
		requireRecord(t, ctx, op.Regions()[0].Inputs()[0], "[S0, 4]")
		requireRecord(t, ctx, op.Regions()[0].Outputs()[1], "[Add(S0, S0), 4]")

		// Re-running converges to the same records.
		_, err = driver.Run(ctx, g)
		require.NoError(t, err)
		requireRecord(t, ctx, op.Result(0), "[S0, 4]")
	})

	t.Run("rank changes", func(t *testing.T) {
		g, op := buildWhile(func(region *ir.Graph, arg *ir.Value) {
			region.SetOutputs(unaryOp(region, "unsqueeze", arg, ir.Attributes{"axis": []int{0}}))
		})
		ctx, report, err := driver.Analyze(g)
		require.NoError(t, err)
		assert.Equal(t, []ir.OpKind{"unsqueeze"}, report.FailedKinds)
		requireRecord(t, ctx, op.Result(0), failed)
	})

	t.Run("no convergence", func(t *testing.T) {
		config := shapeanalysis.DefaultConfig()
		config.MaxLoopIterations = 1
		g, op := buildWhile(growing)
		ctx, report, err := shapeanalysis.NewDriver(Default(), config).Analyze(g)
		require.NoError(t, err)
		require.Equal(t, []ir.OpKind{"while"}, report.FailedKinds)
		requireRecord(t, ctx, op.Result(0), failed)
	})

	t.Run("invalid body", func(t *testing.T) {
		g, op := buildWhile(func(region *ir.Graph, arg *ir.Value) {
			region.SetOutputs(arg, arg, arg)
		})
		ctx, report, err := driver.Analyze(g)
		require.NoError(t, err)
		require.Equal(t, []ir.OpKind{"while"}, report.FailedKinds)
		requireRecord(t, ctx, op.Result(0), failed)
	})
}

func TestYieldOp(t *testing.T) {
	runRuleTests(t, "yield", []ruleTestCase{
		{name: "copies", inputs: in(shapes.MakeFrom("S0", 4)), want: "[S0, 4]"},
		{name: "data", inputs: in(dataOf("S0")), want: "[1] data=[S0]"},
	})
}
