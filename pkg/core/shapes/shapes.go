// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package shapes defines ShapeOrData, the symbolic description of one value in the IR graph.
//
// A ShapeOrData holds the shape of a value as a list of dimension expressions (see package symbolic), one per
// axis. Values that themselves encode shape-like information (e.g.: the output of a "shape" op, or a small
// constant integer array used as the target of a reshape) also carry their symbolic data: one dimension
// expression per element.
//
// A value whose rank is not known is represented by UnknownRank(). This is the "fully unknown" marker used
// when an operation has no inference rule, or when its rule could not infer the shape: downstream users must
// check for it explicitly with IsUnknownRank.
//
// ## Glossary
//
//   - Rank: number of axes of the value. -1 for UnknownRank().
//   - Axis: the index of a dimension.
//   - Dimension: the symbolic length of one axis.
//   - Data: symbolic element values, only for (rank <= 1) values holding shape-like data.
//
// ShapeOrData is immutable: accessors return copies.
package shapes

import (
	"fmt"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/symshape/pkg/core/symbolic"
	"github.com/pkg/errors"
)

// ShapeOrData is the symbolic shape (and optionally the symbolic data) of a value.
//
// The zero value is a scalar shape without data.
type ShapeOrData struct {
	shape       []symbolic.DimExpr
	data        []symbolic.DimExpr
	hasData     bool
	unknownRank bool
}

// Make returns a ShapeOrData with the given dimensions and no data.
func Make(dims ...symbolic.DimExpr) ShapeOrData {
	for axis, dim := range dims {
		if !dim.IsValid() {
			exceptions.Panicf("shapes.Make(): invalid dimension expression for axis #%d", axis)
		}
	}
	return ShapeOrData{shape: slices.Clone(dims)}
}

// MakeFrom is a convenience constructor: each dimension can be an int, an int64 (constants), a string
// (a symbol name) or a symbolic.DimExpr.
//
// Example: shapes.MakeFrom("batch", 512) is the same as
// shapes.Make(symbolic.Symbol("batch"), symbolic.Const(512)).
func MakeFrom(dims ...any) ShapeOrData {
	exprs := make([]symbolic.DimExpr, len(dims))
	for axis, dim := range dims {
		switch d := dim.(type) {
		case int:
			exprs[axis] = symbolic.Const(d)
		case int64:
			exprs[axis] = symbolic.Const(d)
		case string:
			exprs[axis] = symbolic.Symbol(d)
		case symbolic.DimExpr:
			exprs[axis] = d
		default:
			exceptions.Panicf("shapes.MakeFrom(): axis #%d has unsupported type %T", axis, dim)
		}
	}
	return Make(exprs...)
}

// MakeWithData returns a ShapeOrData with the given shape and symbolic data.
//
// The number of data elements must match the size of the shape: so the shape must be fully constant.
func MakeWithData(shape []symbolic.DimExpr, data []symbolic.DimExpr) ShapeOrData {
	s := Make(shape...)
	size := int64(1)
	for _, dim := range shape {
		value, ok := dim.ConstValue()
		if !ok {
			exceptions.Panicf("shapes.MakeWithData(): shape %s must be constant", symbolic.SliceString(shape))
		}
		size *= value
	}
	if size != int64(len(data)) {
		exceptions.Panicf("shapes.MakeWithData(): shape %s has %d elements, but %d data values were given",
			symbolic.SliceString(shape), size, len(data))
	}
	s.data = slices.Clone(data)
	s.hasData = true
	return s
}

// MakeData returns a rank-1 ShapeOrData holding the given data: shape is [len(data)].
func MakeData(data ...symbolic.DimExpr) ShapeOrData {
	return MakeWithData([]symbolic.DimExpr{symbolic.Const(len(data))}, data)
}

// MakeScalarData returns a scalar ShapeOrData holding one data value.
func MakeScalarData(value symbolic.DimExpr) ShapeOrData {
	return MakeWithData(nil, []symbolic.DimExpr{value})
}

// UnknownRank returns the "fully unknown" ShapeOrData: neither rank nor dimensions are known.
func UnknownRank() ShapeOrData {
	return ShapeOrData{unknownRank: true}
}

// IsUnknownRank returns whether the rank (and hence all dimensions) are unknown.
func (s ShapeOrData) IsUnknownRank() bool { return s.unknownRank }

// Rank returns the number of axes, or -1 if the rank is unknown.
func (s ShapeOrData) Rank() int {
	if s.unknownRank {
		return -1
	}
	return len(s.shape)
}

// IsScalar returns whether the shape has rank 0.
func (s ShapeOrData) IsScalar() bool { return !s.unknownRank && len(s.shape) == 0 }

// Shape returns a copy of the dimensions. It returns nil for an unknown rank.
func (s ShapeOrData) Shape() []symbolic.DimExpr {
	return slices.Clone(s.shape)
}

// Dim returns the dimension of the given axis. Negative axes count from the end, so -1 refers to the last axis.
//
// It panics for an out-of-bounds axis or an unknown rank.
func (s ShapeOrData) Dim(axis int) symbolic.DimExpr {
	if s.unknownRank {
		exceptions.Panicf("ShapeOrData.Dim(%d) called on a value of unknown rank", axis)
	}
	adjustedAxis := axis
	if adjustedAxis < 0 {
		adjustedAxis += len(s.shape)
	}
	if adjustedAxis < 0 || adjustedAxis >= len(s.shape) {
		exceptions.Panicf("ShapeOrData.Dim(%d) out-of-bounds for rank %d (shape=%s)", axis, len(s.shape), s)
	}
	return s.shape[adjustedAxis]
}

// HasData returns whether the value carries symbolic data.
func (s ShapeOrData) HasData() bool { return s.hasData }

// Data returns a copy of the symbolic data, and whether there is any.
func (s ShapeOrData) Data() ([]symbolic.DimExpr, bool) {
	if !s.hasData {
		return nil, false
	}
	return slices.Clone(s.data), true
}

// ConstData returns the data as integers, if there is data and all its elements are constants.
func (s ShapeOrData) ConstData() ([]int64, bool) {
	if !s.hasData {
		return nil, false
	}
	values := make([]int64, len(s.data))
	for ii, d := range s.data {
		value, ok := d.ConstValue()
		if !ok {
			return nil, false
		}
		values[ii] = value
	}
	return values, true
}

// WithoutData returns the same shape, with the data dropped.
func (s ShapeOrData) WithoutData() ShapeOrData {
	return ShapeOrData{shape: s.shape, unknownRank: s.unknownRank}
}

// IsFullyConstant returns whether the rank is known and all dimensions are constants.
func (s ShapeOrData) IsFullyConstant() bool {
	if s.unknownRank {
		return false
	}
	for _, dim := range s.shape {
		if !dim.IsConstant() {
			return false
		}
	}
	return true
}

// Size returns the number of elements: the product of all dimensions. It panics for an unknown rank.
func (s ShapeOrData) Size() symbolic.DimExpr {
	if s.unknownRank {
		exceptions.Panicf("ShapeOrData.Size() called on a value of unknown rank")
	}
	return symbolic.Mul(s.shape...)
}

// Symbols returns the sorted names of the symbols used in the shape and data, without repetition.
func (s ShapeOrData) Symbols() []string {
	var names []string
	for _, dim := range s.shape {
		names = append(names, dim.Symbols()...)
	}
	for _, d := range s.data {
		names = append(names, d.Symbols()...)
	}
	slices.SortFunc(names, func(a, b string) int {
		return symbolic.Compare(symbolic.Symbol(a), symbolic.Symbol(b))
	})
	return slices.Compact(names)
}

// Substitute replaces symbols in both the shape and the data. See symbolic.DimExpr.Substitute.
func (s ShapeOrData) Substitute(fn func(name string) (symbolic.DimExpr, bool)) ShapeOrData {
	if s.unknownRank {
		return s
	}
	result := ShapeOrData{hasData: s.hasData}
	result.shape = make([]symbolic.DimExpr, len(s.shape))
	for axis, dim := range s.shape {
		result.shape[axis] = dim.Substitute(fn)
	}
	if s.hasData {
		result.data = make([]symbolic.DimExpr, len(s.data))
		for ii, d := range s.data {
			result.data[ii] = d.Substitute(fn)
		}
	}
	return result
}

// Equal compares shape and data structurally.
func (s ShapeOrData) Equal(other ShapeOrData) bool {
	if s.unknownRank || other.unknownRank {
		return s.unknownRank == other.unknownRank
	}
	if s.hasData != other.hasData {
		return false
	}
	return symbolic.EqualSlices(s.shape, other.shape) && symbolic.EqualSlices(s.data, other.data)
}

// String implements fmt.Stringer. Examples: "[S0, 4]", "[2] data=[S0, 4]", "<unknown-rank>".
func (s ShapeOrData) String() string {
	if s.unknownRank {
		return "<unknown-rank>"
	}
	if !s.hasData {
		return symbolic.SliceString(s.shape)
	}
	return fmt.Sprintf("%s data=%s", symbolic.SliceString(s.shape), symbolic.SliceString(s.data))
}

// NormalizeAxis converts a possibly negative axis to the range [0, rank).
func NormalizeAxis(axis int64, rank int) (int, error) {
	adjusted := axis
	if adjusted < 0 {
		adjusted += int64(rank)
	}
	if adjusted < 0 || adjusted >= int64(rank) {
		return 0, errors.Errorf("axis %d out-of-bounds for rank %d", axis, rank)
	}
	return int(adjusted), nil
}
