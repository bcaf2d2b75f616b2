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

// targetShape returns the target dimensions of a reshape-like operation: taken from the attribute attrName
// if set, otherwise from the data of the operand operandIdx.
//
// If the target operand has no data but its length is known, it returns fresh symbols (one per axis) and
// fresh=true: only the rank of the result is known.
func targetShape(op *ir.Operation, ctx *shapeanalysis.Context, attrName string, operandIdx int) (
	target []symbolic.DimExpr, fresh bool, known bool, err error) {
	if values, found := op.AttrInts(attrName); found {
		return symbolic.Consts(values...), false, true, nil
	}
	if op.NumOperands() <= operandIdx {
		return nil, false, false, errors.Errorf("%s requires the attribute %q or a shape operand", op.Kind(), attrName)
	}
	rec, err := ctx.GetShapeOrDataForValue(op.Operand(operandIdx))
	if err != nil || rec.IsUnknownRank() {
		return nil, false, false, err
	}
	if data, hasData := rec.Data(); hasData {
		return data, false, true, nil
	}
	if rec.Rank() != 1 {
		return nil, false, false, errors.Errorf("%s: shape operand must have rank 1, got %s", op.Kind(), rec)
	}
	length, ok := rec.Dim(0).ConstValue()
	if !ok {
		return nil, false, false, nil
	}
	target = make([]symbolic.DimExpr, length)
	for axis := range target {
		target[axis] = ctx.SymbolFor(op.Result(0), axis)
	}
	return target, true, true, nil
}

// ReshapeOp is the rule for "reshape". The target shape is given by the attribute "shape" or by the data of
// the second operand. Like in most frameworks:
//
//   - A 0 in the target copies the dimension of the operand at the same axis.
//   - At most one -1 is inferred from the size of the operand: by factor cancellation if possible, otherwise
//     a fresh symbol S is used, with the constraint S * (product of the other dimensions) == size.
//
// Without a -1, the sizes of operand and result are constrained to be equal.
func ReshapeOp(op *ir.Operation, ctx *shapeanalysis.Context) (bool, error) {
	if err := checkNumOperands(op, 1); err != nil {
		return false, err
	}
	operand, err := ctx.GetShapeOrDataForValue(op.Operand(0))
	if err != nil {
		return false, err
	}
	target, fresh, known, err := targetShape(op, ctx, "shape", 1)
	if err != nil || !known {
		return false, err
	}
	result := op.Result(0)
	if fresh {
		ctx.SetShapeOrDataForValue(result, shapes.Make(target...))
		return true, nil
	}

	inferredAxis := -1
	dims := make([]symbolic.DimExpr, len(target))
	for axis, dim := range target {
		value, isConst := dim.ConstValue()
		switch {
		case !isConst || value > 0:
			dims[axis] = dim
		case value == -1:
			if inferredAxis >= 0 {
				return false, errors.Errorf("reshape target %s has more than one -1", symbolic.SliceString(target))
			}
			inferredAxis = axis
		case value == 0:
			if operand.IsUnknownRank() {
				return false, nil
			}
			if axis >= operand.Rank() {
				return false, errors.Errorf("reshape target %s copies axis #%d (0), but operand is %s",
					symbolic.SliceString(target), axis, operand)
			}
			dims[axis] = operand.Dim(axis)
		default:
			return false, errors.Errorf("reshape target %s has invalid dimension %d", symbolic.SliceString(target), value)
		}
	}

	if operand.IsUnknownRank() {
		if inferredAxis >= 0 {
			dims[inferredAxis] = ctx.SymbolFor(result, inferredAxis)
		}
		ctx.SetShapeOrDataForValue(result, shapes.Make(dims...))
		return true, nil
	}

	size := operand.Size()
	if inferredAxis >= 0 {
		others := make([]symbolic.DimExpr, 0, len(dims)-1)
		for axis, dim := range dims {
			if axis != inferredAxis {
				others = append(others, dim)
			}
		}
		dim, err := InferFactor(ctx, size, symbolic.Mul(others...), result, inferredAxis)
		if err != nil {
			return false, errors.WithMessagef(err, "reshape of %s to %s", operand, symbolic.SliceString(target))
		}
		dims[inferredAxis] = dim
	} else if err := ctx.AddEqualityConstraint(size, symbolic.Mul(dims...)); err != nil {
		return false, err
	}

	data, _ := operand.Data()
	ctx.SetShapeOrDataForValue(result, withData(dims, data))
	return true, nil
}

// InferFactor returns the dimension x such that x * known == total.
//
// If the factors of known cancel out in total, x is the remaining product. Otherwise, x is a fresh symbol for
// the given axis of the value v, and the constraint x * known == total is added to the context.
func InferFactor(ctx *shapeanalysis.Context, total, known symbolic.DimExpr, v *ir.Value, axis int) (symbolic.DimExpr, error) {
	if quotient, ok := symbolic.CancelFactors(total, known); ok {
		return quotient, nil
	}
	if total.IsConstant() && known.IsConstant() {
		return symbolic.DimExpr{}, errors.Errorf("size %s is not divisible by %s", total, known)
	}
	x := ctx.SymbolFor(v, axis)
	if err := ctx.AddEqualityConstraint(symbolic.Mul(x, known), total); err != nil {
		return symbolic.DimExpr{}, err
	}
	return x, nil
}

// FlattenOp is the rule for "flatten": axes from "start_axis" (default 0) to "stop_axis" (default -1),
// inclusive, are merged into one. A scalar is flattened to shape [1].
func FlattenOp(op *ir.Operation, ctx *shapeanalysis.Context) (bool, error) {
	if err := checkNumOperands(op, 1); err != nil {
		return false, err
	}
	operand, err := ctx.GetShapeOrDataForValue(op.Operand(0))
	if err != nil || operand.IsUnknownRank() {
		return false, err
	}
	data, _ := operand.Data()
	rank := operand.Rank()
	if rank == 0 {
		ctx.SetShapeOrDataForValue(op.Result(0), withData(symbolic.Consts(1), data))
		return true, nil
	}
	start, err := shapes.NormalizeAxis(op.AttrInt("start_axis", 0), rank)
	if err != nil {
		return false, errors.WithMessage(err, "flatten start_axis")
	}
	stop, err := shapes.NormalizeAxis(op.AttrInt("stop_axis", -1), rank)
	if err != nil {
		return false, errors.WithMessage(err, "flatten stop_axis")
	}
	if start > stop {
		return false, errors.Errorf("flatten start_axis (%d) must not be after stop_axis (%d)", start, stop)
	}
	src := operand.Shape()
	dims := make([]symbolic.DimExpr, 0, rank-(stop-start))
	dims = append(dims, src[:start]...)
	dims = append(dims, symbolic.Mul(src[start:stop+1]...))
	dims = append(dims, src[stop+1:]...)
	ctx.SetShapeOrDataForValue(op.Result(0), withData(dims, data))
	return true, nil
}

// SqueezeOp is the rule for "squeeze": it removes the axes listed in the attribute "axis" (all axes with a
// constant dimension 1, if empty).
//
// Dimensions are compared after canonicalization: listed axes known to be a constant other than 1 are kept.
// Listed axes with a symbolic dimension are removed, and the dimension is constrained to be 1.
func SqueezeOp(op *ir.Operation, ctx *shapeanalysis.Context) (bool, error) {
	if err := checkNumOperands(op, 1); err != nil {
		return false, err
	}
	operand, err := ctx.GetShapeOrDataForValue(op.Operand(0))
	if err != nil || operand.IsUnknownRank() {
		return false, err
	}
	axes, _ := op.AttrInts("axis")
	listed, err := normalizeAxes(axes, operand.Rank())
	if err != nil {
		return false, errors.WithMessagef(err, "squeeze of %s", operand)
	}
	var dims []symbolic.DimExpr
	for axis, dim := range operand.Shape() {
		canonical := ctx.Canonicalize(dim)
		if canonical.IsConstantValue(1) && (len(listed) == 0 || listed.Has(axis)) {
			continue
		}
		if listed.Has(axis) && !canonical.IsConstant() {
			if err := ctx.AddEqualityConstraint(dim, symbolic.Const(1)); err != nil {
				return false, err
			}
			continue
		}
		dims = append(dims, dim)
	}
	data, _ := operand.Data()
	ctx.SetShapeOrDataForValue(op.Result(0), withData(dims, data))
	return true, nil
}

// UnsqueezeOp is the rule for "unsqueeze": it inserts axes of dimension 1 at the positions listed in the
// attribute "axis". Axes are inserted in order, and negative axes count from the end of the result so far.
func UnsqueezeOp(op *ir.Operation, ctx *shapeanalysis.Context) (bool, error) {
	if err := checkNumOperands(op, 1); err != nil {
		return false, err
	}
	operand, err := ctx.GetShapeOrDataForValue(op.Operand(0))
	if err != nil || operand.IsUnknownRank() {
		return false, err
	}
	axes, found := op.AttrInts("axis")
	if !found {
		return false, errors.New("unsqueeze requires the attribute \"axis\"")
	}
	dims := operand.Shape()
	for _, axis := range axes {
		position, err := shapes.NormalizeAxis(axis, len(dims)+1)
		if err != nil {
			return false, errors.WithMessagef(err, "unsqueeze of %s", operand)
		}
		dims = slices.Insert(dims, position, symbolic.Const(1))
	}
	data, _ := operand.Data()
	ctx.SetShapeOrDataForValue(op.Result(0), withData(dims, data))
	return true, nil
}

// ExpandOp is the rule for "expand" (broadcast to a target shape). The target is given by the attribute
// "shape" or by the data of the second operand, aligned to the right; -1 keeps the dimension of the operand.
//
// A constant operand dimension other than 1 can't be broadcast: it is constrained to be equal to the target.
func ExpandOp(op *ir.Operation, ctx *shapeanalysis.Context) (bool, error) {
	if err := checkNumOperands(op, 1); err != nil {
		return false, err
	}
	operand, err := ctx.GetShapeOrDataForValue(op.Operand(0))
	if err != nil || operand.IsUnknownRank() {
		return false, err
	}
	target, _, known, err := targetShape(op, ctx, "shape", 1)
	if err != nil || !known {
		return false, err
	}
	rank := operand.Rank()
	if len(target) < rank {
		return false, errors.Errorf("expand of %s to %s: target rank is smaller than operand rank",
			operand, symbolic.SliceString(target))
	}
	dims := make([]symbolic.DimExpr, len(target))
	for axis, dim := range target {
		operandAxis := axis - (len(target) - rank)
		if dim.IsConstantValue(-1) {
			if operandAxis < 0 {
				return false, errors.Errorf("expand of %s to %s: -1 in a new axis #%d",
					operand, symbolic.SliceString(target), axis)
			}
			dims[axis] = operand.Dim(operandAxis)
			continue
		}
		dims[axis] = dim
		if operandAxis < 0 {
			continue
		}
		operandDim := operand.Dim(operandAxis)
		if canonical := ctx.Canonicalize(operandDim); canonical.IsConstant() && !canonical.IsConstantValue(1) {
			if err := ctx.AddEqualityConstraint(operandDim, dim); err != nil {
				return false, err
			}
		}
	}
	ctx.SetShapeOrDataForValue(op.Result(0), shapes.Make(dims...))
	return true, nil
}

// TransposeOp is the rule for "transpose": the attribute "perm" lists, for each axis of the result, the axis
// of the operand it comes from.
func TransposeOp(op *ir.Operation, ctx *shapeanalysis.Context) (bool, error) {
	if err := checkNumOperands(op, 1); err != nil {
		return false, err
	}
	operand, err := ctx.GetShapeOrDataForValue(op.Operand(0))
	if err != nil || operand.IsUnknownRank() {
		return false, err
	}
	rank := operand.Rank()
	perm, _ := op.AttrInts("perm")
	if len(perm) != rank {
		return false, errors.Errorf("transpose requires all axes permutations to be defined, operand has shape %s, "+
			"but %d permutations were given", operand, len(perm))
	}
	seen := sets.Make[int](rank)
	dims := make([]symbolic.DimExpr, rank)
	for axis, srcAxis := range perm {
		src, err := shapes.NormalizeAxis(srcAxis, rank)
		if err != nil {
			return false, errors.WithMessagef(err, "invalid permutation %v for %s", perm, operand)
		}
		if seen.Has(src) {
			return false, errors.Errorf("invalid permutation %v for %s: axis %d repeated", perm, operand, srcAxis)
		}
		seen.Insert(src)
		dims[axis] = operand.Dim(src)
	}
	ctx.SetShapeOrDataForValue(op.Result(0), shapes.Make(dims...))
	return true, nil
}
