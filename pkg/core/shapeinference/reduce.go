// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapeinference

import (
	"slices"

	"github.com/gomlx/symshape/pkg/core/ir"
	"github.com/gomlx/symshape/pkg/core/shapeanalysis"
	"github.com/gomlx/symshape/pkg/core/shapes"
	"github.com/gomlx/symshape/pkg/core/symbolic"
	"github.com/gomlx/symshape/pkg/support/sets"
	"github.com/pkg/errors"
)

// normalizeAxes converts the (possibly negative) axes to [0, rank), and checks they are not repeated.
func normalizeAxes(axes []int64, rank int) (sets.Set[int], error) {
	set := sets.Make[int](len(axes))
	for _, axis := range axes {
		adjusted, err := shapes.NormalizeAxis(axis, rank)
		if err != nil {
			return nil, err
		}
		if set.Has(adjusted) {
			return nil, errors.Errorf("axis %d given more than once in %v", axis, axes)
		}
		set.Insert(adjusted)
	}
	return set, nil
}

// ReduceOp is the rule for ReduceOperations. Attributes:
//
//   - "axis": list of axes to reduce. If empty or not set, all axes are reduced.
//   - "keepdim": if true, reduced axes are kept with dimension 1.
//
// Reducing the data of a rank-1 value over all its axes (e.g.: the product of a shape) produces scalar data.
func ReduceOp(op *ir.Operation, ctx *shapeanalysis.Context) (bool, error) {
	if err := checkNumOperands(op, 1); err != nil {
		return false, err
	}
	operand, err := ctx.GetShapeOrDataForValue(op.Operand(0))
	if err != nil || operand.IsUnknownRank() {
		return false, err
	}
	rank := operand.Rank()
	keepDim := op.AttrBool("keepdim", false)
	axes, _ := op.AttrInts("axis")
	var reduced sets.Set[int]
	if len(axes) == 0 {
		reduced = sets.Make[int](rank)
		for axis := range rank {
			reduced.Insert(axis)
		}
	} else {
		reduced, err = normalizeAxes(axes, rank)
		if err != nil {
			return false, errors.WithMessagef(err, "invalid axis for %s of %s", op.Kind(), operand)
		}
	}

	dims := make([]symbolic.DimExpr, 0, rank)
	for axis, dim := range operand.Shape() {
		switch {
		case !reduced.Has(axis):
			dims = append(dims, dim)
		case keepDim:
			dims = append(dims, symbolic.Const(1))
		}
	}

	if data, hasData := operand.Data(); hasData && rank == 1 && len(reduced) == 1 {
		if value, ok := reduceData(op.Kind(), data); ok {
			ctx.SetShapeOrDataForValue(op.Result(0), withData(dims, []symbolic.DimExpr{value}))
			return true, nil
		}
	}
	ctx.SetShapeOrDataForValue(op.Result(0), shapes.Make(dims...))
	return true, nil
}

func reduceData(kind ir.OpKind, data []symbolic.DimExpr) (symbolic.DimExpr, bool) {
	if len(data) == 0 {
		return symbolic.DimExpr{}, false
	}
	switch kind {
	case "sum":
		return symbolic.Add(data...), true
	case "prod":
		return symbolic.Mul(data...), true
	case "max":
		return symbolic.Max(data...), true
	case "min":
		return symbolic.Min(data...), true
	}
	return symbolic.DimExpr{}, false
}

// ArgMinMaxOp is the rule for "argmax" and "argmin". Attributes:
//
//   - "axis": the axis to reduce (default 0).
//   - "keepdims": if true, the reduced axis is kept with dimension 1.
//   - "flatten": if true, the operand is flattened first, and "axis" is ignored: the result is a scalar
//     (or all dimensions are 1, if keepdims is set).
func ArgMinMaxOp(op *ir.Operation, ctx *shapeanalysis.Context) (bool, error) {
	if err := checkNumOperands(op, 1); err != nil {
		return false, err
	}
	operand, err := ctx.GetShapeOrDataForValue(op.Operand(0))
	if err != nil || operand.IsUnknownRank() {
		return false, err
	}
	keepDims := op.AttrBool("keepdims", false)
	rank := operand.Rank()
	if op.AttrBool("flatten", false) {
		var dims []symbolic.DimExpr
		if keepDims {
			for range rank {
				dims = append(dims, symbolic.Const(1))
			}
		}
		ctx.SetShapeOrDataForValue(op.Result(0), shapes.Make(dims...))
		return true, nil
	}
	if rank == 0 {
		ctx.SetShapeOrDataForValue(op.Result(0), operand.WithoutData())
		return true, nil
	}
	axis, err := shapes.NormalizeAxis(op.AttrInt("axis", 0), rank)
	if err != nil {
		return false, errors.WithMessagef(err, "invalid axis for %s of %s", op.Kind(), operand)
	}
	dims := operand.Shape()
	if keepDims {
		dims[axis] = symbolic.Const(1)
	} else {
		dims = slices.Delete(dims, axis, axis+1)
	}
	ctx.SetShapeOrDataForValue(op.Result(0), shapes.Make(dims...))
	return true, nil
}
