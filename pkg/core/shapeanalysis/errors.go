// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapeanalysis

import (
	"fmt"

	"github.com/gomlx/symshape/pkg/core/ir"
	"github.com/gomlx/symshape/pkg/core/symbolic"
	"github.com/pkg/errors"
)

var (
	// ErrUnresolvedValue is returned (wrapped) when a record is requested for a value that has none: usually
	// an operand whose producer has not been visited. It aborts the pass.
	ErrUnresolvedValue = errors.New("value has no shape-or-data record")

	// ErrConstraintConflict is matched (with errors.Is) by ConstraintConflictError. It aborts the pass.
	ErrConstraintConflict = errors.New("conflicting equality constraint")

	// ErrRulePanic is returned (wrapped) when an inference rule panics. It aborts the pass.
	ErrRulePanic = errors.New("inference rule panicked")
)

// ConstraintConflictError is returned by Context.AddEqualityConstraint when the two expressions are known to
// be different constants.
type ConstraintConflictError struct {
	A, B           symbolic.DimExpr
	ValueA, ValueB int64

	// Op is the operation whose rule added the constraint, if known.
	Op *ir.Operation
}

// Error implements error.
func (e *ConstraintConflictError) Error() string {
	msg := fmt.Sprintf("%s: %s (=%d) != %s (=%d)", ErrConstraintConflict, e.A, e.ValueA, e.B, e.ValueB)
	if e.Op != nil {
		msg = fmt.Sprintf("%s, while inferring %s", msg, e.Op)
	}
	return msg
}

// Is makes errors.Is(err, ErrConstraintConflict) true.
func (e *ConstraintConflictError) Is(target error) bool {
	return target == ErrConstraintConflict
}

// IsFatal returns whether the error should abort the pass, as opposed to a rule failing to infer an operation.
func IsFatal(err error) bool {
	return errors.Is(err, ErrUnresolvedValue) || errors.Is(err, ErrConstraintConflict) ||
		errors.Is(err, ErrRulePanic)
}
