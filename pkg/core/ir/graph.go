// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// Graph is an ordered list of operations, with its inputs and outputs.
//
// A Graph is either a root graph, created with New, or a region graph owned by an operation, created with
// Graph.NewRegion. Region graphs share the value ids of their root graph.
//
// A Graph is not safe for concurrent modification.
type Graph struct {
	name    string
	parent  *Graph
	owner   *Operation
	root    *Graph
	inputs  []*Value
	ops     []*Operation
	outputs []*Value

	// nextValueId is only used on the root graph.
	nextValueId ValueId
	nextOpId    int
}

// New creates a new empty root graph.
func New(name string) *Graph {
	g := &Graph{name: name}
	g.root = g
	return g
}

// NewRegion creates a new empty graph nested in g. It must be given as a region to exactly one operation
// of g with AddOp.
func (g *Graph) NewRegion(name string) *Graph {
	return &Graph{name: name, parent: g, root: g.root}
}

// Name of the graph.
func (g *Graph) Name() string { return g.name }

// Parent returns the graph containing this region, or nil for a root graph.
func (g *Graph) Parent() *Graph { return g.parent }

// Owner returns the operation owning this region, or nil for a root graph (or a region not yet attached).
func (g *Graph) Owner() *Operation { return g.owner }

// IsAncestorOf returns whether g is other or one of its parents.
func (g *Graph) IsAncestorOf(other *Graph) bool {
	for ; other != nil; other = other.parent {
		if other == g {
			return true
		}
	}
	return false
}

func (g *Graph) newValue(name string, typ TensorType) *Value {
	v := &Value{graph: g, id: g.root.nextValueId, name: name, typ: typ.Clone()}
	g.root.nextValueId++
	return v
}

// AddInput adds an input to the graph (or an argument to a region) with the given type.
func (g *Graph) AddInput(name string, typ TensorType) *Value {
	v := g.newValue(name, typ)
	g.inputs = append(g.inputs, v)
	return v
}

// Inputs returns a copy of the list of inputs (or region arguments).
func (g *Graph) Inputs() []*Value { return slices.Clone(g.inputs) }

// NumInputs returns the number of inputs.
func (g *Graph) NumInputs() int { return len(g.inputs) }

// assertVisible panics if the value cannot be used in g: it must belong to g or one of its ancestors.
func (g *Graph) assertVisible(v *Value, what string) {
	if v == nil {
		exceptions.Panicf("graph %q: %s is nil", g.name, what)
	}
	if !v.graph.IsAncestorOf(g) {
		exceptions.Panicf("graph %q: %s (%s) belongs to graph %q, which is not visible from here",
			g.name, what, v.Name(), v.graph.name)
	}
	if v.producer != nil && v.producer.erased {
		exceptions.Panicf("graph %q: %s (%s) is produced by an erased operation", g.name, what, v.Name())
	}
}

// AddOp appends a new operation to the graph and returns it.
//
// The results are created with the given types; use Operation.Result to access them. Regions must have been
// created with g.NewRegion and not be attached to any other operation.
func (g *Graph) AddOp(kind OpKind, operands []*Value, resultTypes []TensorType, attrs Attributes,
	regions ...*Graph) *Operation {
	if kind == "" {
		exceptions.Panicf("graph %q: AddOp() requires a non-empty kind", g.name)
	}
	for ii, operand := range operands {
		g.assertVisible(operand, fmt.Sprintf("operand #%d of %s", ii, kind))
	}
	for ii, region := range regions {
		if region == nil || region.parent != g {
			exceptions.Panicf("graph %q: region #%d of %s was not created with NewRegion on this graph",
				g.name, ii, kind)
		}
		if region.owner != nil {
			exceptions.Panicf("graph %q: region #%d (%q) of %s is already owned by %s",
				g.name, ii, region.name, kind, region.owner)
		}
	}

	op := &Operation{graph: g, id: g.nextOpId, kind: kind, attrs: attrs}
	g.nextOpId++
	if op.attrs == nil {
		op.attrs = make(Attributes)
	}
	op.operands = slices.Clone(operands)
	for _, operand := range op.operands {
		operand.uses = append(operand.uses, op)
	}
	op.results = make([]*Value, len(resultTypes))
	for ii, typ := range resultTypes {
		v := g.newValue("", typ)
		v.producer = op
		v.resultIndex = ii
		op.results[ii] = v
	}
	for _, region := range regions {
		region.owner = op
	}
	op.regions = slices.Clone(regions)
	g.ops = append(g.ops, op)
	return op
}

// SetResultName sets the name of a result of an operation: just for readability.
func (op *Operation) SetResultName(i int, name string) {
	op.Result(i).name = name
}

// SetOutputs defines the outputs of the graph (or the values yielded by a region).
func (g *Graph) SetOutputs(outputs ...*Value) {
	for ii, v := range outputs {
		g.assertVisible(v, fmt.Sprintf("output #%d", ii))
	}
	g.outputs = slices.Clone(outputs)
}

// Outputs returns a copy of the list of outputs.
func (g *Graph) Outputs() []*Value { return slices.Clone(g.outputs) }

// Ops returns a copy of the list of operations of this graph, in insertion order. It doesn't include
// operations of nested regions.
func (g *Graph) Ops() []*Operation { return slices.Clone(g.ops) }

// NumOps returns the number of operations in this graph, not including nested regions.
func (g *Graph) NumOps() int { return len(g.ops) }

// Walk calls fn for every operation of the graph, and recursively of its regions, in insertion order.
// A region's operations are visited right after the operation owning it.
func (g *Graph) Walk(fn func(op *Operation)) {
	for _, op := range g.ops {
		fn(op)
		for _, region := range op.regions {
			region.Walk(fn)
		}
	}
}

// TopologicalOrder returns the operations of the graph (not including nested regions) ordered such that every
// operation comes after the producers of its operands.
//
// Values used by nested regions of an operation count as operands of that operation. The order is stable:
// independent operations keep their insertion order.
//
// It returns an error wrapping ErrCycle if the graph has a cycle.
func (g *Graph) TopologicalOrder() ([]*Operation, error) {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[*Operation]int, len(g.ops))
	order := make([]*Operation, 0, len(g.ops))
	var visit func(op *Operation) error
	visit = func(op *Operation) error {
		switch state[op] {
		case done:
			return nil
		case visiting:
			return errors.Wrapf(ErrCycle, "graph %q: operation %s depends on itself", g.name, op)
		}
		state[op] = visiting
		for _, dep := range g.dependencies(op) {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[op] = done
		order = append(order, op)
		return nil
	}
	for _, op := range g.ops {
		if err := visit(op); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// dependencies returns the operations of g producing the operands of op, including values captured by
// its regions.
func (g *Graph) dependencies(op *Operation) []*Operation {
	var deps []*Operation
	add := func(v *Value) {
		if v.producer != nil && v.graph == g && !slices.Contains(deps, v.producer) {
			deps = append(deps, v.producer)
		}
	}
	for _, operand := range op.operands {
		add(operand)
	}
	for _, region := range op.regions {
		region.Walk(func(inner *Operation) {
			for _, operand := range inner.operands {
				add(operand)
			}
		})
		for _, v := range region.outputs {
			add(v)
		}
	}
	return deps
}

// ReplaceAllUsesWith replaces every use of oldValue, as operand or as graph output, by newValue.
// This includes uses in nested regions.
func (g *Graph) ReplaceAllUsesWith(oldValue, newValue *Value) {
	if oldValue == nil || newValue == nil {
		exceptions.Panicf("graph %q: ReplaceAllUsesWith() called with nil value", g.name)
	}
	if oldValue == newValue {
		return
	}
	for _, user := range oldValue.Users() {
		user.graph.assertVisible(newValue, fmt.Sprintf("replacement of %s in %s", oldValue.Name(), user))
		for ii, operand := range user.operands {
			if operand == oldValue {
				user.operands[ii] = newValue
				newValue.uses = append(newValue.uses, user)
			}
		}
	}
	oldValue.uses = nil
	oldValue.graph.replaceOutputs(oldValue, newValue)
}

func (g *Graph) replaceOutputs(oldValue, newValue *Value) {
	for ii, v := range g.outputs {
		if v == oldValue {
			g.outputs[ii] = newValue
		}
	}
	for _, op := range g.ops {
		for _, region := range op.regions {
			region.replaceOutputs(oldValue, newValue)
		}
	}
}

// EraseOp removes the operation from the graph. It fails if any of its results is still used, either as an
// operand or as an output.
func (g *Graph) EraseOp(op *Operation) error {
	if op == nil || op.graph != g {
		exceptions.Panicf("graph %q: EraseOp() called with an operation of another graph", g.name)
	}
	op.assertLive()
	for _, result := range op.results {
		if result.NumUses() > 0 {
			return errors.Errorf("graph %q: cannot erase %s, result %s still has %d uses",
				g.name, op, result.Name(), result.NumUses())
		}
		if g.root.usesAsOutput(result) {
			return errors.Errorf("graph %q: cannot erase %s, result %s is used as an output",
				g.name, op, result.Name())
		}
	}
	for _, operand := range op.operands {
		operand.removeUse(op)
	}
	g.ops = slices.DeleteFunc(g.ops, func(o *Operation) bool { return o == op })
	op.erased = true
	return nil
}

func (g *Graph) usesAsOutput(v *Value) bool {
	if slices.Contains(g.outputs, v) {
		return true
	}
	for _, op := range g.ops {
		for _, region := range op.regions {
			if region.usesAsOutput(v) {
				return true
			}
		}
	}
	return false
}

// String returns a multi-line listing of the graph, with nested regions indented.
func (g *Graph) String() string {
	var sb strings.Builder
	g.writeTo(&sb, "")
	return sb.String()
}

func (g *Graph) writeTo(sb *strings.Builder, indent string) {
	inputs := make([]string, len(g.inputs))
	for ii, v := range g.inputs {
		inputs[ii] = v.String()
	}
	fmt.Fprintf(sb, "%sGraph %q (%s):\n", indent, g.name, strings.Join(inputs, ", "))
	for _, op := range g.ops {
		fmt.Fprintf(sb, "%s  %s\n", indent, op)
		for _, region := range op.regions {
			region.writeTo(sb, indent+"    ")
		}
	}
	outputs := make([]string, len(g.outputs))
	for ii, v := range g.outputs {
		outputs[ii] = v.Name()
	}
	fmt.Fprintf(sb, "%s  return %s\n", indent, strings.Join(outputs, ", "))
}
