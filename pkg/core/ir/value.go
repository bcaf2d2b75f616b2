// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

import (
	"fmt"
	"slices"
)

// ValueId is unique among all values of a root graph and its regions.
type ValueId int

// Value is an edge of the graph: a graph input, a region argument or the result of an operation.
type Value struct {
	graph       *Graph
	id          ValueId
	name        string
	typ         TensorType
	producer    *Operation
	resultIndex int

	// uses lists the operations using the value as operand, once per operand slot.
	uses []*Operation
}

// ID returns the unique id of the value within its root graph.
func (v *Value) ID() ValueId { return v.id }

// Name of the value. If none was given, it is "%<id>".
func (v *Value) Name() string {
	if v.name == "" {
		return fmt.Sprintf("%%%d", v.id)
	}
	return v.name
}

// Type returns the declared type of the value.
func (v *Value) Type() TensorType { return v.typ }

// Graph that owns the value.
func (v *Value) Graph() *Graph { return v.graph }

// Producer returns the operation that produces the value, or nil for graph inputs and region arguments.
func (v *Value) Producer() *Operation { return v.producer }

// IsInput returns whether the value is a graph input or a region argument.
func (v *Value) IsInput() bool { return v.producer == nil }

// ResultIndex returns the index of the value in its producer results. It is -1 for inputs.
func (v *Value) ResultIndex() int {
	if v.producer == nil {
		return -1
	}
	return v.resultIndex
}

// Users returns the operations using this value, in order of first use and without repetitions.
func (v *Value) Users() []*Operation {
	users := make([]*Operation, 0, len(v.uses))
	for _, op := range v.uses {
		if !slices.Contains(users, op) {
			users = append(users, op)
		}
	}
	return users
}

// NumUses returns the number of operand slots using this value.
func (v *Value) NumUses() int { return len(v.uses) }

func (v *Value) removeUse(op *Operation) {
	if idx := slices.Index(v.uses, op); idx >= 0 {
		v.uses = slices.Delete(v.uses, idx, idx+1)
	}
}

// String implements fmt.Stringer.
func (v *Value) String() string {
	return fmt.Sprintf("%s%s", v.Name(), v.typ)
}
