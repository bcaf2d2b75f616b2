// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapeinference

import (
	"github.com/gomlx/symshape/pkg/core/ir"
	"github.com/gomlx/symshape/pkg/core/shapeanalysis"
	"github.com/gomlx/symshape/pkg/core/shapes"
	"github.com/gomlx/symshape/pkg/core/symbolic"
	"github.com/pkg/errors"
)

// MatMulOp is the rule for "matmul(x, y)", with the optional attributes "transpose_x" and "transpose_y" that
// transpose the last 2 axes of the corresponding operand.
//
// Leading (batch) axes are broadcast, and the contracting dimensions are constrained to be equal. As usual, a
// rank-1 x is treated as a row vector [1, k] and a rank-1 y as a column vector [k, 1], and the extra axis is
// removed from the result.
func MatMulOp(op *ir.Operation, ctx *shapeanalysis.Context) (bool, error) {
	if err := checkNumOperands(op, 2); err != nil {
		return false, err
	}
	records, known, err := operandRecords(op, ctx)
	if err != nil || !known {
		return false, err
	}
	x, y := records[0].Shape(), records[1].Shape()
	if len(x) == 0 || len(y) == 0 {
		return false, errors.Errorf("matmul operands can't be scalars, got %s and %s", records[0], records[1])
	}
	xVector, yVector := len(x) == 1, len(y) == 1
	if xVector {
		x = []symbolic.DimExpr{symbolic.Const(1), x[0]}
	}
	if yVector {
		y = []symbolic.DimExpr{y[0], symbolic.Const(1)}
	}
	xRank, yRank := len(x), len(y)
	if op.AttrBool("transpose_x", false) {
		x[xRank-2], x[xRank-1] = x[xRank-1], x[xRank-2]
	}
	if op.AttrBool("transpose_y", false) {
		y[yRank-2], y[yRank-1] = y[yRank-1], y[yRank-2]
	}

	if err := ctx.AddEqualityConstraint(x[xRank-1], y[yRank-2]); err != nil {
		return false, errors.WithMessagef(err, "matmul contracting dimensions of %s and %s", records[0], records[1])
	}
	dims, err := BroadcastShapes(ctx, x[:xRank-2], y[:yRank-2])
	if err != nil {
		return false, errors.WithMessagef(err, "matmul batch dimensions of %s and %s", records[0], records[1])
	}
	if !xVector {
		dims = append(dims, x[xRank-2])
	}
	if !yVector {
		dims = append(dims, y[yRank-1])
	}
	ctx.SetShapeOrDataForValue(op.Result(0), shapes.Make(dims...))
	return true, nil
}

// EmbeddingOp is the rule for "embedding(ids, weight)": each id is replaced by a row of the weight table of
// shape [vocabulary, embedding], so the result has shape ids.shape + [embedding].
func EmbeddingOp(op *ir.Operation, ctx *shapeanalysis.Context) (bool, error) {
	if err := checkNumOperands(op, 2); err != nil {
		return false, err
	}
	records, known, err := operandRecords(op, ctx)
	if err != nil || !known {
		return false, err
	}
	ids, weight := records[0], records[1]
	if weight.Rank() != 2 {
		return false, errors.Errorf("embedding weight must have rank 2, got %s", weight)
	}
	dims := append(ids.Shape(), weight.Dim(1))
	ctx.SetShapeOrDataForValue(op.Result(0), shapes.Make(dims...))
	return true, nil
}
