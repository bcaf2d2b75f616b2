// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapeinference

import (
	"github.com/gomlx/symshape/pkg/core/ir"
	"github.com/gomlx/symshape/pkg/core/shapeanalysis"
	"github.com/gomlx/symshape/pkg/core/shapes"
	"github.com/gomlx/symshape/pkg/core/symbolic"
	"github.com/pkg/errors"
)

// operandRecords returns the records of the operands of op, and whether all of them have a known rank.
func operandRecords(op *ir.Operation, ctx *shapeanalysis.Context) ([]shapes.ShapeOrData, bool, error) {
	records := make([]shapes.ShapeOrData, op.NumOperands())
	allKnown := true
	for ii, operand := range op.Operands() {
		rec, err := ctx.GetShapeOrDataForValue(operand)
		if err != nil {
			return nil, false, err
		}
		records[ii] = rec
		allKnown = allKnown && !rec.IsUnknownRank()
	}
	return records, allKnown, nil
}

// checkNumOperands returns an error if op has less than minOperands operands.
func checkNumOperands(op *ir.Operation, minOperands int) error {
	if op.NumOperands() < minOperands {
		return errors.Errorf("%s requires at least %d operands, got %d", op.Kind(), minOperands, op.NumOperands())
	}
	return nil
}

// withData returns a record with the given dimensions and data, if the dimensions are constant and match the
// number of data elements. Otherwise, the data is dropped.
func withData(dims, data []symbolic.DimExpr) shapes.ShapeOrData {
	if data == nil {
		return shapes.Make(dims...)
	}
	size := int64(1)
	for _, dim := range dims {
		value, ok := dim.ConstValue()
		if !ok {
			return shapes.Make(dims...)
		}
		size *= value
	}
	if size != int64(len(data)) {
		return shapes.Make(dims...)
	}
	return shapes.MakeWithData(dims, data)
}

// SameOperandsAndResultShape copies the record of the first operand verbatim to the first result:
// the operation changes element values, not the shape.
//
// Other results (e.g.: the mask of a dropout) get the same shape, without data.
func SameOperandsAndResultShape(op *ir.Operation, ctx *shapeanalysis.Context) (bool, error) {
	if err := checkNumOperands(op, 1); err != nil {
		return false, err
	}
	if op.NumResults() == 0 {
		return true, nil
	}
	rec, err := ctx.GetShapeOrDataForValue(op.Operand(0))
	if err != nil {
		return false, err
	}
	ctx.SetShapeOrDataForValue(op.Result(0), rec)
	for _, result := range op.Results()[1:] {
		ctx.SetShapeOrDataForValue(result, rec.WithoutData())
	}
	return true, nil
}

// BroadcastDim returns the dimension resulting from broadcasting the dimensions a and b:
//
//   - If they are known to be equal, a.
//   - If one of them is 1 (given the constraints in ctx), the other.
//   - If both are different constants, the shapes are incompatible: it returns the constraint conflict error.
//   - Otherwise Max(a, b): either they are equal, or one of them is 1 at runtime.
func BroadcastDim(ctx *shapeanalysis.Context, a, b symbolic.DimExpr) (symbolic.DimExpr, error) {
	canonicalA, canonicalB := ctx.Canonicalize(a), ctx.Canonicalize(b)
	switch {
	case ctx.IsEqual(a, b):
		return a, nil
	case canonicalA.IsConstantValue(1):
		return b, nil
	case canonicalB.IsConstantValue(1):
		return a, nil
	case canonicalA.IsConstant() && canonicalB.IsConstant():
		return symbolic.DimExpr{}, ctx.AddEqualityConstraint(a, b)
	}
	return symbolic.Max(a, b), nil
}

// BroadcastShapes returns the shape resulting from broadcasting all the given shapes, aligned to the right.
// Missing leading axes are treated as 1.
func BroadcastShapes(ctx *shapeanalysis.Context, dimsList ...[]symbolic.DimExpr) ([]symbolic.DimExpr, error) {
	var rank int
	for _, dims := range dimsList {
		rank = max(rank, len(dims))
	}
	output := make([]symbolic.DimExpr, rank)
	for axis := range output {
		var dim symbolic.DimExpr
		for _, dims := range dimsList {
			operandAxis := axis - (rank - len(dims))
			if operandAxis < 0 {
				continue
			}
			if !dim.IsValid() {
				dim = dims[operandAxis]
				continue
			}
			var err error
			dim, err = BroadcastDim(ctx, dim, dims[operandAxis])
			if err != nil {
				return nil, errors.WithMessagef(err, "broadcasting axis #%d of %d", axis, rank)
			}
		}
		output[axis] = dim
	}
	return output, nil
}

// BinaryOp is the rule for BroadcastingOperations: the result has the broadcast shape of both operands.
//
// For ArithmeticOperations (and their in-place variants), if both operands carry symbolic data, the data of
// the result is computed element-wise: this keeps track of shape arithmetic like `shape(x)[0] * 2`.
func BinaryOp(op *ir.Operation, ctx *shapeanalysis.Context) (bool, error) {
	if err := checkNumOperands(op, 2); err != nil {
		return false, err
	}
	records, known, err := operandRecords(op, ctx)
	if err != nil || !known {
		return false, err
	}
	lhs, rhs := records[0], records[1]
	output, err := BroadcastShapes(ctx, lhs.Shape(), rhs.Shape())
	if err != nil {
		return false, err
	}
	if ArithmeticOperations.Has(op.Kind().NonInplace()) {
		if data, ok := binaryData(op.Kind().NonInplace(), lhs, rhs); ok {
			ctx.SetShapeOrDataForValue(op.Result(0), withData(output, data))
			return true, nil
		}
	}
	ctx.SetShapeOrDataForValue(op.Result(0), shapes.Make(output...))
	return true, nil
}

// binaryData computes the data of an arithmetic operation, if both operands have data and (after
// broadcasting) the same number of elements.
func binaryData(kind ir.OpKind, lhs, rhs shapes.ShapeOrData) ([]symbolic.DimExpr, bool) {
	lhsData, lhsOk := lhs.Data()
	rhsData, rhsOk := rhs.Data()
	if !lhsOk || !rhsOk {
		return nil, false
	}
	n := max(len(lhsData), len(rhsData))
	if (len(lhsData) != n && len(lhsData) != 1) || (len(rhsData) != n && len(rhsData) != 1) {
		return nil, false
	}
	var combine func(...symbolic.DimExpr) symbolic.DimExpr
	switch kind {
	case "add":
		combine = symbolic.Add
	case "multiply":
		combine = symbolic.Mul
	case "maximum":
		combine = symbolic.Max
	case "minimum":
		combine = symbolic.Min
	default:
		return nil, false
	}
	data := make([]symbolic.DimExpr, n)
	for ii := range data {
		data[ii] = combine(lhsData[min(ii, len(lhsData)-1)], rhsData[min(ii, len(rhsData)-1)])
	}
	return data, true
}

// WhereOp is the rule for "where(condition, onTrue, onFalse)": the result has the broadcast shape of the
// 3 operands.
func WhereOp(op *ir.Operation, ctx *shapeanalysis.Context) (bool, error) {
	if err := checkNumOperands(op, 3); err != nil {
		return false, err
	}
	records, known, err := operandRecords(op, ctx)
	if err != nil || !known {
		return false, err
	}
	output, err := BroadcastShapes(ctx, records[0].Shape(), records[1].Shape(), records[2].Shape())
	if err != nil {
		return false, err
	}
	ctx.SetShapeOrDataForValue(op.Result(0), shapes.Make(output...))
	return true, nil
}
