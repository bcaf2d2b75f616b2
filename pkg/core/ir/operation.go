// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
)

// Attributes are the static parameters of an operation, e.g.: the target shape of a reshape.
//
// Values are usually int, int64, float64, bool, string or slices of those. Attributes decoded from YAML
// may also hold []any: the accessors of Operation convert them.
type Attributes map[string]any

// Operation is a node of the graph.
type Operation struct {
	graph    *Graph
	id       int
	kind     OpKind
	operands []*Value
	results  []*Value
	attrs    Attributes
	regions  []*Graph
	erased   bool
}

// ID of the operation, unique within its graph.
func (op *Operation) ID() int { return op.id }

// Kind of the operation.
func (op *Operation) Kind() OpKind { return op.kind }

// Graph that owns the operation.
func (op *Operation) Graph() *Graph { return op.graph }

// NumOperands returns the number of operands.
func (op *Operation) NumOperands() int { return len(op.operands) }

// Operand returns the i-th operand.
func (op *Operation) Operand(i int) *Value {
	if i < 0 || i >= len(op.operands) {
		exceptions.Panicf("operation %s: operand #%d out of range, it has %d operands", op, i, len(op.operands))
	}
	return op.operands[i]
}

// Operands returns a copy of the list of operands.
func (op *Operation) Operands() []*Value { return slices.Clone(op.operands) }

// NumResults returns the number of results.
func (op *Operation) NumResults() int { return len(op.results) }

// Result returns the i-th result.
func (op *Operation) Result(i int) *Value {
	if i < 0 || i >= len(op.results) {
		exceptions.Panicf("operation %s: result #%d out of range, it has %d results", op, i, len(op.results))
	}
	return op.results[i]
}

// Results returns a copy of the list of results.
func (op *Operation) Results() []*Value { return slices.Clone(op.results) }

// Regions returns the nested graphs owned by the operation (e.g. the branches of an "if").
func (op *Operation) Regions() []*Graph { return slices.Clone(op.regions) }

// IsErased returns whether the operation was removed from its graph.
func (op *Operation) IsErased() bool { return op.erased }

// SetOperand replaces the i-th operand. The new value must be visible from the graph of the operation.
func (op *Operation) SetOperand(i int, value *Value) {
	op.assertLive()
	old := op.Operand(i)
	op.graph.assertVisible(value, fmt.Sprintf("operand #%d of %s", i, op.kind))
	old.removeUse(op)
	op.operands[i] = value
	value.uses = append(value.uses, op)
}

func (op *Operation) assertLive() {
	if op.erased {
		exceptions.Panicf("operation %s has been erased", op)
	}
}

// Attrs returns a copy of the attributes.
func (op *Operation) Attrs() Attributes { return maps.Clone(op.attrs) }

// HasAttr returns whether the attribute is set.
func (op *Operation) HasAttr(name string) bool {
	_, found := op.attrs[name]
	return found
}

// AttrInt returns the integer attribute, or defaultValue if it is not set.
// It panics if the attribute is not an integer.
func (op *Operation) AttrInt(name string, defaultValue int64) int64 {
	value, found := op.attrs[name]
	if !found {
		return defaultValue
	}
	result, ok := toInt64(value)
	if !ok {
		exceptions.Panicf("operation %s: attribute %q is %T, not an integer", op, name, value)
	}
	return result
}

// AttrInts returns the integer list attribute, and whether it is set.
// A scalar integer attribute is returned as a list with one element.
// It panics if the attribute is not a list of integers.
func (op *Operation) AttrInts(name string) ([]int64, bool) {
	value, found := op.attrs[name]
	if !found {
		return nil, false
	}
	var result []int64
	appendInt := func(v any) {
		i, ok := toInt64(v)
		if !ok {
			exceptions.Panicf("operation %s: attribute %q holds %T, not an integer", op, name, v)
		}
		result = append(result, i)
	}
	switch list := value.(type) {
	case []int64:
		return slices.Clone(list), true
	case []int:
		for _, v := range list {
			appendInt(v)
		}
	case []any:
		for _, v := range list {
			appendInt(v)
		}
	default:
		appendInt(value)
	}
	if result == nil {
		result = []int64{}
	}
	return result, true
}

// AttrBool returns the boolean attribute, or defaultValue if it is not set.
func (op *Operation) AttrBool(name string, defaultValue bool) bool {
	value, found := op.attrs[name]
	if !found {
		return defaultValue
	}
	b, ok := value.(bool)
	if !ok {
		exceptions.Panicf("operation %s: attribute %q is %T, not a bool", op, name, value)
	}
	return b
}

// AttrFloat returns the float attribute, or defaultValue if it is not set.
func (op *Operation) AttrFloat(name string, defaultValue float64) float64 {
	value, found := op.attrs[name]
	if !found {
		return defaultValue
	}
	switch v := value.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	}
	if i, ok := toInt64(value); ok {
		return float64(i)
	}
	exceptions.Panicf("operation %s: attribute %q is %T, not a number", op, name, value)
	return 0
}

// AttrString returns the string attribute, or defaultValue if it is not set.
func (op *Operation) AttrString(name string, defaultValue string) string {
	value, found := op.attrs[name]
	if !found {
		return defaultValue
	}
	s, ok := value.(string)
	if !ok {
		exceptions.Panicf("operation %s: attribute %q is %T, not a string", op, name, value)
	}
	return s
}

func toInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case int32:
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int64(v), true
	}
	return 0, false
}

// String implements fmt.Stringer. Example: "%2, %3 = add(x, %1)".
func (op *Operation) String() string {
	var sb strings.Builder
	for ii, result := range op.results {
		if ii > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(result.Name())
	}
	if len(op.results) > 0 {
		sb.WriteString(" = ")
	}
	sb.WriteString(string(op.kind))
	sb.WriteString("(")
	for ii, operand := range op.operands {
		if ii > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(operand.Name())
	}
	sb.WriteString(")")
	if len(op.attrs) > 0 {
		keys := slices.Sorted(maps.Keys(op.attrs))
		parts := make([]string, len(keys))
		for ii, key := range keys {
			parts[ii] = fmt.Sprintf("%s=%v", key, op.attrs[key])
		}
		fmt.Fprintf(&sb, " {%s}", strings.Join(parts, ", "))
	}
	if len(op.regions) > 0 {
		fmt.Fprintf(&sb, " [%d regions]", len(op.regions))
	}
	return sb.String()
}
