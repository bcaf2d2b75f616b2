// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapeinference

import (
	"math"
	"slices"

	"github.com/gomlx/symshape/pkg/core/ir"
	"github.com/gomlx/symshape/pkg/core/shapeanalysis"
	"github.com/gomlx/symshape/pkg/core/shapes"
	"github.com/gomlx/symshape/pkg/core/symbolic"
	"github.com/pkg/errors"
)

// ConcatOp is the rule for "concat": all operands are concatenated on the attribute "axis" (default 0).
//
// The concatenated axis is the sum of the operands' dimensions, and the other axes are constrained to be equal.
// If all operands are rank-1 values with data, the data is concatenated as well.
func ConcatOp(op *ir.Operation, ctx *shapeanalysis.Context) (bool, error) {
	if err := checkNumOperands(op, 1); err != nil {
		return false, err
	}
	records, known, err := operandRecords(op, ctx)
	if err != nil || !known {
		return false, err
	}
	first := records[0]
	rank := first.Rank()
	if rank == 0 {
		return false, errors.New("concat of scalars is not possible, use stack instead")
	}
	axis, err := shapes.NormalizeAxis(op.AttrInt("axis", 0), rank)
	if err != nil {
		return false, errors.WithMessage(err, "concat")
	}

	dims := first.Shape()
	concatDims := []symbolic.DimExpr{dims[axis]}
	for ii, rec := range records[1:] {
		if rec.Rank() != rank {
			return false, errors.Errorf("mismatched ranks for concat: operand #0 is %s, operand #%d is %s",
				first, ii+1, rec)
		}
		for otherAxis, dim := range rec.Shape() {
			if otherAxis == axis {
				concatDims = append(concatDims, dim)
				continue
			}
			if err := ctx.AddEqualityConstraint(dims[otherAxis], dim); err != nil {
				return false, errors.WithMessagef(err, "concat operand #%d, axis #%d", ii+1, otherAxis)
			}
		}
	}
	dims[axis] = symbolic.Add(concatDims...)

	if rank == 1 {
		var data []symbolic.DimExpr
		allData := true
		for _, rec := range records {
			recData, hasData := rec.Data()
			allData = allData && hasData
			data = append(data, recData...)
		}
		if allData {
			ctx.SetShapeOrDataForValue(op.Result(0), withData(dims, data))
			return true, nil
		}
	}
	ctx.SetShapeOrDataForValue(op.Result(0), shapes.Make(dims...))
	return true, nil
}

// StackOp is the rule for "stack": all operands, which must have the same shape, are stacked on a new axis
// inserted at the position given by the attribute "axis" (default 0).
//
// Stacking scalars with data (e.g. dimensions extracted from a shape) produces a rank-1 value with data.
func StackOp(op *ir.Operation, ctx *shapeanalysis.Context) (bool, error) {
	if err := checkNumOperands(op, 1); err != nil {
		return false, err
	}
	records, known, err := operandRecords(op, ctx)
	if err != nil || !known {
		return false, err
	}
	first := records[0]
	rank := first.Rank()
	axis, err := shapes.NormalizeAxis(op.AttrInt("axis", 0), rank+1)
	if err != nil {
		return false, errors.WithMessage(err, "stack")
	}
	dims := first.Shape()
	for ii, rec := range records[1:] {
		if rec.Rank() != rank {
			return false, errors.Errorf("mismatched ranks for stack: operand #0 is %s, operand #%d is %s",
				first, ii+1, rec)
		}
		for otherAxis, dim := range rec.Shape() {
			if err := ctx.AddEqualityConstraint(dims[otherAxis], dim); err != nil {
				return false, errors.WithMessagef(err, "stack operand #%d, axis #%d", ii+1, otherAxis)
			}
		}
	}
	dims = slices.Insert(dims, axis, symbolic.Const(len(records)))

	if rank == 0 {
		data := make([]symbolic.DimExpr, 0, len(records))
		for _, rec := range records {
			recData, hasData := rec.Data()
			if !hasData {
				data = nil
				break
			}
			data = append(data, recData...)
		}
		if data != nil {
			ctx.SetShapeOrDataForValue(op.Result(0), withData(dims, data))
			return true, nil
		}
	}
	ctx.SetShapeOrDataForValue(op.Result(0), shapes.Make(dims...))
	return true, nil
}

// SliceEndOfAxis is the smallest "ends" value of a slice meaning "until the end of the axis".
const SliceEndOfAxis = math.MaxInt32

// SliceOp is the rule for "slice". Attributes (or, if not set, the constant data of the operands 1, 2 and 3):
//
//   - "axes": the axes being sliced.
//   - "starts", "ends": one per sliced axis; negative values count from the end of the axis, and ends larger
//     than SliceEndOfAxis mean "until the end".
//   - "strides" (optional): one positive stride per sliced axis, default 1.
//   - "decrease_axis" (optional): sliced axes removed from the result.
//
// Slices of symbolic dimensions that can't be expressed with Add/Min (e.g. `S0 - 2`) use a fresh symbol L
// with the constraint `L + 2 == S0`. Slicing a rank-1 value with data slices the data.
func SliceOp(op *ir.Operation, ctx *shapeanalysis.Context) (bool, error) {
	if err := checkNumOperands(op, 1); err != nil {
		return false, err
	}
	operand, err := ctx.GetShapeOrDataForValue(op.Operand(0))
	if err != nil || operand.IsUnknownRank() {
		return false, err
	}
	rank := operand.Rank()
	axes, found := op.AttrInts("axes")
	if !found {
		axes = make([]int64, rank)
		for axis := range axes {
			axes[axis] = int64(axis)
		}
	}
	starts, startsKnown, err := intsFromAttrOrOperand(op, ctx, "starts", 1)
	if err != nil {
		return false, err
	}
	ends, endsKnown, err := intsFromAttrOrOperand(op, ctx, "ends", 2)
	if err != nil {
		return false, err
	}
	strides, stridesKnown, err := intsFromAttrOrOperand(op, ctx, "strides", 3)
	if err != nil {
		return false, err
	}
	if !stridesKnown && !op.HasAttr("strides") && op.NumOperands() <= 3 {
		strides, stridesKnown = slices.Repeat([]int64{1}, len(axes)), true
	}
	known := startsKnown && endsKnown && stridesKnown
	if known && (len(starts) != len(axes) || len(ends) != len(axes) || len(strides) != len(axes)) {
		return false, errors.Errorf("slice requires one start, end and stride per axis, got axes=%v, starts=%v, "+
			"ends=%v and strides=%v", axes, starts, ends, strides)
	}

	result := op.Result(0)
	dims := operand.Shape()
	slicedAxes := make([]int, len(axes))
	for ii, axis := range axes {
		slicedAxes[ii], err = shapes.NormalizeAxis(axis, rank)
		if err != nil {
			return false, errors.WithMessagef(err, "slice of %s", operand)
		}
		if !known {
			dims[slicedAxes[ii]] = ctx.SymbolFor(result, slicedAxes[ii])
			continue
		}
		if strides[ii] <= 0 {
			return false, errors.Errorf("slice strides must be positive, got %v", strides)
		}
		dims[slicedAxes[ii]], err = sliceDim(ctx, result, slicedAxes[ii], dims[slicedAxes[ii]],
			starts[ii], ends[ii], strides[ii])
		if err != nil {
			return false, err
		}
	}

	var data []symbolic.DimExpr
	if operandData, hasData := operand.Data(); hasData && known && rank == 1 && len(slicedAxes) == 1 {
		start, end := clampSlice(int64(len(operandData)), starts[0], ends[0])
		for ii := start; ii < end; ii += strides[0] {
			data = append(data, operandData[ii])
		}
		if data == nil {
			data = []symbolic.DimExpr{}
		}
	}

	if decrease, found := op.AttrInts("decrease_axis"); found && len(decrease) > 0 {
		removed, err := normalizeAxes(decrease, rank)
		if err != nil {
			return false, errors.WithMessagef(err, "slice decrease_axis of %s", operand)
		}
		var kept []symbolic.DimExpr
		for axis, dim := range dims {
			if !removed.Has(axis) {
				kept = append(kept, dim)
			}
		}
		dims = kept
	}
	ctx.SetShapeOrDataForValue(result, withData(dims, data))
	return true, nil
}

// intsFromAttrOrOperand returns the integer list attribute, or else the constant data of the given operand.
func intsFromAttrOrOperand(op *ir.Operation, ctx *shapeanalysis.Context, attrName string, operandIdx int) (
	[]int64, bool, error) {
	if values, found := op.AttrInts(attrName); found {
		return values, true, nil
	}
	if op.NumOperands() <= operandIdx {
		return nil, false, nil
	}
	rec, err := ctx.GetShapeOrDataForValue(op.Operand(operandIdx))
	if err != nil {
		return nil, false, err
	}
	values, ok := rec.ConstData()
	return values, ok, nil
}

// clampSlice normalizes start and end of a slice over an axis of the given length.
func clampSlice(length, start, end int64) (int64, int64) {
	if start < 0 {
		start += length
	}
	if end < 0 {
		end += length
	}
	start = min(max(start, 0), length)
	end = min(max(end, 0), length)
	return start, max(start, end)
}

// sliceDim returns the length of the slice [start:end:stride] of an axis with dimension dim.
func sliceDim(ctx *shapeanalysis.Context, v *ir.Value, axis int, dim symbolic.DimExpr, start, end, stride int64) (
	symbolic.DimExpr, error) {
	if length, ok := dim.ConstValue(); ok {
		start, end = clampSlice(length, start, end)
		return symbolic.Const((end - start + stride - 1) / stride), nil
	}
	if stride != 1 {
		return ctx.SymbolFor(v, axis), nil
	}

	toEnd := end >= SliceEndOfAxis
	switch {
	case start < 0 && end < 0:
		return symbolic.Const(max(end-start, 0)), nil
	case start < 0 && toEnd:
		return symbolic.Min(dim, symbolic.Const(-start)), nil
	case start < 0:
		return ctx.SymbolFor(v, axis), nil
	case end >= 0 && !toEnd && end <= start:
		return symbolic.Const(0), nil
	}

	// From here: start >= 0, and the slice ends at clampedEnd (or, for negative ends, clampedEnd+end).
	clampedEnd := dim
	if !toEnd && end >= 0 {
		clampedEnd = symbolic.Min(dim, symbolic.Const(end))
	}
	removed := start
	if end < 0 {
		removed -= end
	}
	if removed == 0 {
		return clampedEnd, nil
	}
	length := ctx.SymbolFor(v, axis)
	if err := ctx.AddEqualityConstraint(symbolic.Add(length, symbolic.Const(removed)), clampedEnd); err != nil {
		return symbolic.DimExpr{}, err
	}
	return length, nil
}
