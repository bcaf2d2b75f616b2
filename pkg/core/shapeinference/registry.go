// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package shapeinference holds the symbolic shape inference rules, one per operation kind, and the Registry
// that maps operation kinds to them.
//
// Rules read the records (shapes.ShapeOrData) of the operands of an operation from a shapeanalysis.Context
// and write the records of its results. See shapeanalysis.InferFn for the contract.
//
// The majority of the unary operations don't change the shape: SameOperandsAndResultShape copies the record
// of the operand verbatim. Binary element-wise operations use the standard (right-aligned) broadcasting
// rules, see BroadcastShapes. For the remainder ops, it defines one rule per operation kind.
//
// In-place variants of an operation (named with a trailing "_", e.g.: "log_") always use the same rule as
// their non-mutating counterpart: aliasing doesn't change shapes.
//
// Typical usage:
//
//	ctx, report, err := shapeanalysis.NewDriver(shapeinference.Default(), config).Analyze(graph)
package shapeinference

import (
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/symshape/pkg/core/ir"
	"github.com/gomlx/symshape/pkg/core/shapeanalysis"
	"github.com/gomlx/symshape/pkg/support/sets"
)

var (
	// SameShapeOperations have a single operand whose record is copied verbatim to the result: element-wise
	// math, activations, casts and structural pass-throughs.
	SameShapeOperations = sets.MakeWith[ir.OpKind](
		"abs",
		"assign",
		"cast",
		"ceil",
		"cos",
		"dropout",
		"erf",
		"exp",
		"floor",
		"full_with_tensor",
		"gelu",
		"increment",
		"log",
		"logical_not",
		"pow",
		"reciprocal",
		"relu",
		"round",
		"rsqrt",
		"scale",
		"scale_sr",
		"sigmoid",
		"sign",
		"silu",
		"sin",
		"softmax",
		"sqrt",
		"square",
		"tanh",
		"tril",
		"triu",
	)

	// ArithmeticOperations are the binary broadcasting operations whose symbolic data (if both operands
	// have it) can be computed element-wise.
	ArithmeticOperations = sets.MakeWith[ir.OpKind](
		"add",
		"multiply",
		"maximum",
		"minimum",
	)

	// ComparisonOperations are binary broadcasting operations that return booleans.
	ComparisonOperations = sets.MakeWith[ir.OpKind](
		"equal",
		"not_equal",
		"less_than",
		"less_equal",
		"greater_than",
		"greater_equal",
	)

	// BroadcastingOperations include all binary operations using the standard broadcasting rules.
	BroadcastingOperations = ArithmeticOperations.Union(ComparisonOperations, sets.MakeWith[ir.OpKind](
		"subtract",
		"divide",
		"elementwise_pow",
		"logical_and",
		"logical_or",
	))

	// ReduceOperations take the attributes "axis" (list of axes, empty means all axes) and "keepdim".
	ReduceOperations = sets.MakeWith[ir.OpKind](
		"sum",
		"mean",
		"max",
		"min",
		"prod",
		"any",
		"all",
	)
)

// Registry maps operation kinds to their inference rules. It implements shapeanalysis.Rules.
//
// A Registry is populated once (at startup) and then only read: it is safe to use it concurrently
// from multiple analyses.
type Registry struct {
	rules map[ir.OpKind]shapeanalysis.InferFn
}

var _ shapeanalysis.Rules = (*Registry)(nil)

// NewRegistry returns a Registry populated with all the rules of this package.
// More rules can be added with Register.
func NewRegistry() *Registry {
	r := &Registry{rules: make(map[ir.OpKind]shapeanalysis.InferFn)}
	for kind := range SameShapeOperations {
		r.RegisterWithInplace(kind, SameOperandsAndResultShape)
	}
	for kind := range BroadcastingOperations {
		r.RegisterWithInplace(kind, BinaryOp)
	}
	r.Register("where", WhereOp)
	for kind := range ReduceOperations {
		r.Register(kind, ReduceOp)
	}
	r.Register("argmax", ArgMinMaxOp)
	r.Register("argmin", ArgMinMaxOp)

	r.RegisterWithInplace("reshape", ReshapeOp)
	r.Register("concat", ConcatOp)
	r.Register("slice", SliceOp)
	r.RegisterWithInplace("squeeze", SqueezeOp)
	r.RegisterWithInplace("unsqueeze", UnsqueezeOp)
	r.Register("transpose", TransposeOp)
	r.RegisterWithInplace("flatten", FlattenOp)
	r.Register("expand", ExpandOp)
	r.Register("stack", StackOp)
	r.Register("matmul", MatMulOp)
	r.Register("embedding", EmbeddingOp)

	r.Register("shape", ShapeOfOp)
	r.Register("shape64", ShapeOfOp)
	r.Register("full", FullOp)
	r.Register("full_int_array", FullIntArrayOp)
	r.Register("arange", ArangeOp)
	r.Register("nonzero", NonZeroOp)

	r.Register("if", IfOp)
	r.Register("while", WhileOp)
	r.Register("yield", YieldOp)
	return r
}

var defaultRegistry = sync.OnceValue(NewRegistry)

// Default returns a shared Registry with all the rules of this package.
// It must not be modified: use NewRegistry to create a registry with extra rules.
func Default() *Registry {
	return defaultRegistry()
}

// Register the inference rule for the operation kind. It panics if the kind already has a rule.
func (r *Registry) Register(kind ir.OpKind, fn shapeanalysis.InferFn) {
	if kind == "" || fn == nil {
		exceptions.Panicf("shapeinference.Register(%q): empty kind or nil rule", kind)
	}
	if _, found := r.rules[kind]; found {
		exceptions.Panicf("shapeinference.Register(%q): operation kind already has a rule", kind)
	}
	r.rules[kind] = fn
}

// RegisterWithInplace registers the rule for the operation kind and for its in-place variant.
func (r *Registry) RegisterWithInplace(kind ir.OpKind, fn shapeanalysis.InferFn) {
	r.Register(kind, fn)
	r.Register(kind.Inplace(), fn)
}

// Lookup implements shapeanalysis.Rules.
func (r *Registry) Lookup(kind ir.OpKind) (shapeanalysis.InferFn, bool) {
	fn, found := r.rules[kind]
	return fn, found
}

// SupportedKinds returns the sorted list of operation kinds with a rule.
func (r *Registry) SupportedKinds() []ir.OpKind {
	kinds := sets.Make[ir.OpKind](len(r.rules))
	for kind := range r.rules {
		kinds.Insert(kind)
	}
	return sets.Sorted(kinds)
}

// Len returns the number of operation kinds with a rule.
func (r *Registry) Len() int { return len(r.rules) }
