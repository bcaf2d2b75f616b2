// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapeinference

import (
	"github.com/gomlx/symshape/pkg/core/ir"
	"github.com/gomlx/symshape/pkg/core/shapeanalysis"
	"github.com/gomlx/symshape/pkg/core/shapes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// MergeRecords returns a record compatible with both a and b, used where control flow joins.
//
// Axes known to be equal are kept, and the ones that differ are replaced by a fresh symbol for the given
// axis of v (with the given role). If either record has unknown rank, the result has unknown rank.
// It returns false if the ranks differ.
func MergeRecords(ctx *shapeanalysis.Context, v *ir.Value, role string, a, b shapes.ShapeOrData) (shapes.ShapeOrData, bool) {
	if a.Equal(b) {
		return a, true
	}
	if a.IsUnknownRank() || b.IsUnknownRank() {
		return shapes.UnknownRank(), true
	}
	if a.Rank() != b.Rank() {
		return shapes.ShapeOrData{}, false
	}
	dims := a.Shape()
	for axis, dim := range b.Shape() {
		if !ctx.IsEqual(dims[axis], dim) {
			dims[axis] = ctx.SymbolForRole(v, axis, role)
		}
	}
	return shapes.Make(dims...), true
}

// regionOutputs returns the records of the outputs of the region.
func regionOutputs(ctx *shapeanalysis.Context, region *ir.Graph, skip int) ([]shapes.ShapeOrData, error) {
	outputs := region.Outputs()[skip:]
	records := make([]shapes.ShapeOrData, len(outputs))
	for ii, output := range outputs {
		rec, err := ctx.GetShapeOrDataForValue(output)
		if err != nil {
			return nil, err
		}
		records[ii] = rec
	}
	return records, nil
}

// IfOp is the rule for "if(condition)" with 2 regions (the branches), each with one output per result.
//
// The records of the results merge the outputs of both branches (see MergeRecords). If the rank of an output
// differs across branches, the rule fails.
func IfOp(op *ir.Operation, ctx *shapeanalysis.Context) (bool, error) {
	regions := op.Regions()
	if len(regions) != 2 {
		return false, errors.Errorf("if requires 2 regions, got %d", len(regions))
	}
	var branches [2][]shapes.ShapeOrData
	for ii, region := range regions {
		if len(region.Outputs()) != op.NumResults() {
			return false, errors.Errorf("if branch %q has %d outputs, but the operation has %d results",
				region.Name(), len(region.Outputs()), op.NumResults())
		}
		if err := ctx.InferSubGraph(region); err != nil {
			return false, err
		}
		var err error
		branches[ii], err = regionOutputs(ctx, region, 0)
		if err != nil {
			return false, err
		}
	}
	merged := make([]shapes.ShapeOrData, op.NumResults())
	for ii, result := range op.Results() {
		var ok bool
		merged[ii], ok = MergeRecords(ctx, result, "if", branches[0][ii], branches[1][ii])
		if !ok {
			return false, errors.Errorf("if result #%d has different ranks in each branch: %s and %s",
				ii, branches[0][ii], branches[1][ii])
		}
	}
	for ii, result := range op.Results() {
		ctx.SetShapeOrDataForValue(result, merged[ii])
	}
	return true, nil
}

// WhileOp is the rule for "while": the operands are the initial values of the loop-carried variables, and
// the results their final values. Its only region is the body: it has one input per loop-carried variable,
// and outputs their next values -- optionally preceded by the loop condition.
//
// The body is inferred repeatedly (at most Config.MaxLoopIterations times) until the records of the
// loop-carried variables reach a fixed point: axes that change across iterations are generalized to fresh
// symbols, and variables whose rank changes become unknown rank.
func WhileOp(op *ir.Operation, ctx *shapeanalysis.Context) (bool, error) {
	regions := op.Regions()
	if len(regions) != 1 {
		return false, errors.Errorf("while requires 1 region (the body), got %d", len(regions))
	}
	body := regions[0]
	numCarried := op.NumOperands()
	if body.NumInputs() != numCarried || op.NumResults() != numCarried {
		return false, errors.Errorf("while with %d operands requires the same number of body inputs (got %d) "+
			"and results (got %d)", numCarried, body.NumInputs(), op.NumResults())
	}
	skip := len(body.Outputs()) - numCarried
	if skip != 0 && skip != 1 {
		return false, errors.Errorf("while body must output the %d loop-carried values (optionally preceded by the "+
			"condition), got %d outputs", numCarried, len(body.Outputs()))
	}

	carried, _, err := operandRecords(op, ctx)
	if err != nil {
		return false, err
	}
	maxIterations := ctx.Config().MaxLoopIterations
	for iteration := range maxIterations {
		for ii, arg := range body.Inputs() {
			ctx.SetShapeOrDataForValue(arg, carried[ii])
		}
		if err := ctx.InferSubGraph(body); err != nil {
			return false, err
		}
		next, err := regionOutputs(ctx, body, skip)
		if err != nil {
			return false, err
		}
		changed := false
		for ii, result := range op.Results() {
			merged, ok := MergeRecords(ctx, result, "loop", carried[ii], next[ii])
			if !ok {
				merged = shapes.UnknownRank()
			}
			if !merged.Equal(carried[ii]) {
				changed = true
				carried[ii] = merged
			}
		}
		if !changed {
			if klog.V(2).Enabled() {
				klog.Infof("%s: while loop %s converged after %d iterations", ctx.Tag(), op, iteration+1)
			}
			for ii, result := range op.Results() {
				ctx.SetShapeOrDataForValue(result, carried[ii])
			}
			return true, nil
		}
	}
	klog.V(1).Infof("%s: while loop %s didn't converge in %d iterations", ctx.Tag(), op, maxIterations)
	return false, nil
}

// YieldOp is the rule for "yield", the terminator of regions: it has no results. If it has any, they take
// the records of the corresponding operands.
func YieldOp(op *ir.Operation, ctx *shapeanalysis.Context) (bool, error) {
	for ii, result := range op.Results() {
		if ii >= op.NumOperands() {
			break
		}
		rec, err := ctx.GetShapeOrDataForValue(op.Operand(ii))
		if err != nil {
			return false, err
		}
		ctx.SetShapeOrDataForValue(result, rec)
	}
	return true, nil
}
