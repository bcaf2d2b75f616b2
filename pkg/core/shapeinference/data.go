// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapeinference

import (
	"math"

	"github.com/gomlx/symshape/pkg/core/ir"
	"github.com/gomlx/symshape/pkg/core/shapeanalysis"
	"github.com/gomlx/symshape/pkg/core/shapes"
	"github.com/gomlx/symshape/pkg/core/symbolic"
	"github.com/pkg/errors"
)

// MaxDataElements is the largest number of elements for which constant-filled values (see FullOp) keep
// their symbolic data.
const MaxDataElements = 64

// ShapeOfOp is the rule for "shape" and "shape64": the result is a rank-1 value whose data is the shape of
// the operand. If the rank of the operand is unknown, so is the length of the result.
func ShapeOfOp(op *ir.Operation, ctx *shapeanalysis.Context) (bool, error) {
	if err := checkNumOperands(op, 1); err != nil {
		return false, err
	}
	operand, err := ctx.GetShapeOrDataForValue(op.Operand(0))
	if err != nil {
		return false, err
	}
	if operand.IsUnknownRank() {
		ctx.SetShapeOrDataForValue(op.Result(0), shapes.Make(ctx.SymbolFor(op.Result(0), 0)))
		return true, nil
	}
	ctx.SetShapeOrDataForValue(op.Result(0), shapes.MakeData(operand.Shape()...))
	return true, nil
}

// FullOp is the rule for "full": a value of the shape given by the attribute "shape" filled with the
// attribute "value".
//
// Small (up to MaxDataElements) rank 0 or 1 values filled with an integer keep their data.
func FullOp(op *ir.Operation, ctx *shapeanalysis.Context) (bool, error) {
	shape, found := op.AttrInts("shape")
	if !found {
		return false, errors.New("full requires the attribute \"shape\"")
	}
	size := int64(1)
	for _, dim := range shape {
		if dim < 0 {
			return false, errors.Errorf("full: invalid shape %v", shape)
		}
		size *= dim
	}
	dims := symbolic.Consts(shape...)
	value := op.AttrFloat("value", 0)
	if len(shape) <= 1 && size <= MaxDataElements && value == math.Trunc(value) {
		data := make([]symbolic.DimExpr, size)
		for ii := range data {
			data[ii] = symbolic.Const(int64(value))
		}
		ctx.SetShapeOrDataForValue(op.Result(0), shapes.MakeWithData(dims, data))
		return true, nil
	}
	ctx.SetShapeOrDataForValue(op.Result(0), shapes.Make(dims...))
	return true, nil
}

// FullIntArrayOp is the rule for "full_int_array": a rank-1 value holding the integers of the attribute
// "value". It is commonly used as the target shape of reshapes.
func FullIntArrayOp(op *ir.Operation, ctx *shapeanalysis.Context) (bool, error) {
	values, found := op.AttrInts("value")
	if !found {
		return false, errors.New("full_int_array requires the attribute \"value\"")
	}
	ctx.SetShapeOrDataForValue(op.Result(0), shapes.MakeData(symbolic.Consts(values...)...))
	return true, nil
}

// scalarOperandOrAttr returns the value of a scalar operand with data, or else the attribute.
func scalarOperandOrAttr(op *ir.Operation, ctx *shapeanalysis.Context, operandIdx int, attrName string) (
	symbolic.DimExpr, bool, error) {
	if op.NumOperands() > operandIdx {
		rec, err := ctx.GetShapeOrDataForValue(op.Operand(operandIdx))
		if err != nil {
			return symbolic.DimExpr{}, false, err
		}
		data, hasData := rec.Data()
		if !hasData || len(data) != 1 {
			return symbolic.DimExpr{}, false, nil
		}
		return data[0], true, nil
	}
	if !op.HasAttr(attrName) {
		return symbolic.DimExpr{}, false, nil
	}
	value := op.AttrFloat(attrName, 0)
	if value != math.Trunc(value) {
		return symbolic.DimExpr{}, false, nil
	}
	return symbolic.Const(int64(value)), true, nil
}

// ArangeOp is the rule for "arange(start, end, step)": start, end and step are taken from the data of the
// operands, or from the attributes with the same names.
//
// The length is constant if all of them are constants, it is `end` for arange(0, end, 1), and a fresh symbol
// otherwise.
func ArangeOp(op *ir.Operation, ctx *shapeanalysis.Context) (bool, error) {
	start, startOk, err := scalarOperandOrAttr(op, ctx, 0, "start")
	if err != nil {
		return false, err
	}
	end, endOk, err := scalarOperandOrAttr(op, ctx, 1, "end")
	if err != nil {
		return false, err
	}
	step, stepOk, err := scalarOperandOrAttr(op, ctx, 2, "step")
	if err != nil {
		return false, err
	}
	result := op.Result(0)
	var length symbolic.DimExpr
	if startOk && endOk && stepOk {
		startValue, startConst := start.ConstValue()
		endValue, endConst := end.ConstValue()
		stepValue, stepConst := step.ConstValue()
		switch {
		case stepConst && stepValue == 0:
			return false, errors.New("arange step can't be 0")
		case startConst && endConst && stepConst:
			length = symbolic.Const(max(ceilDiv(endValue-startValue, stepValue), 0))
		case start.IsConstantValue(0) && step.IsConstantValue(1):
			length = end
		}
	}
	if !length.IsValid() {
		length = ctx.SymbolFor(result, 0)
	}
	ctx.SetShapeOrDataForValue(result, shapes.Make(length))
	return true, nil
}

func ceilDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) == (b < 0)) {
		q++
	}
	return q
}

// NonZeroOp is the rule for "nonzero": the result holds the indices of the non-zero elements of the operand,
// with shape [N, rank]. N depends on the data, so it is always a fresh symbol.
func NonZeroOp(op *ir.Operation, ctx *shapeanalysis.Context) (bool, error) {
	if err := checkNumOperands(op, 1); err != nil {
		return false, err
	}
	operand, err := ctx.GetShapeOrDataForValue(op.Operand(0))
	if err != nil {
		return false, err
	}
	result := op.Result(0)
	numNonZero := ctx.SymbolFor(result, 0)
	if operand.IsUnknownRank() {
		ctx.SetShapeOrDataForValue(result, shapes.Make(numNonZero, ctx.SymbolFor(result, 1)))
		return true, nil
	}
	ctx.SetShapeOrDataForValue(result, shapes.Make(numNonZero, symbolic.Const(operand.Rank())))
	return true, nil
}
