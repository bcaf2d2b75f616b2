// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package ir implements a small graph-based intermediate representation (IR) of tensor computations: the
// input of the shape analysis in package shapeanalysis.
//
// A Graph holds an ordered list of Operation nodes. Each Operation consumes operand Value objects and
// produces result Value objects. Graph inputs (or region arguments) are values without a producer.
//
// Operations may own nested region graphs (e.g.: the branches of an "if", the body of a "while"). Operations
// inside a region can use values of any ancestor graph directly.
//
// Builder misuse (nil operands, operands from unrelated graphs, editing erased operations) panics with
// exceptions.Panicf, the same way graph building works elsewhere in GoMLX. Errors that depend on the
// graph structure (cycles, erasing used operations) are returned.
package ir

import (
	"strings"

	"github.com/pkg/errors"
)

// OpKind is the name of the operation kind, e.g.: "add", "reshape", "log_".
//
// In-place variants of operations have the same name as the functional version plus a "_" suffix:
// they write their result in the buffer of their first operand, and have the same shape semantics.
type OpKind string

// InplaceSuffix is appended to the name of an operation kind to get its in-place variant.
const InplaceSuffix = "_"

// IsInplace returns whether the kind is an in-place variant (its name ends with "_").
func (k OpKind) IsInplace() bool {
	return len(k) > len(InplaceSuffix) && strings.HasSuffix(string(k), InplaceSuffix)
}

// NonInplace returns the functional kind for an in-place variant, or the kind itself otherwise.
func (k OpKind) NonInplace() OpKind {
	if !k.IsInplace() {
		return k
	}
	return k[:len(k)-len(InplaceSuffix)]
}

// Inplace returns the in-place variant of the kind.
func (k OpKind) Inplace() OpKind {
	if k.IsInplace() {
		return k
	}
	return k + InplaceSuffix
}

// String implements fmt.Stringer.
func (k OpKind) String() string { return string(k) }

// ErrCycle is returned (wrapped) by Graph.TopologicalOrder if the graph has a cycle.
var ErrCycle = errors.New("graph has a cycle")
