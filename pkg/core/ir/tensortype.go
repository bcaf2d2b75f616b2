// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
)

// DimDynamic marks a dimension whose length is not known when the graph is built.
const DimDynamic = -1

// TensorType is the declared type of a value: its dtype and its (possibly partially dynamic) dimensions.
//
// Dynamic axes may be named in AxisNames: axes with the same name are known to have the same length.
// The shape analysis uses the names as symbols. AxisNames is either nil or has one entry per axis ("" for
// unnamed axes).
type TensorType struct {
	DType       dtypes.DType
	Dimensions  []int
	AxisNames   []string
	UnknownRank bool
}

// MakeType returns a static TensorType with the given dimensions. Use DimDynamic for unknown axes.
func MakeType(dtype dtypes.DType, dimensions ...int) TensorType {
	for axis, dim := range dimensions {
		if dim < 0 && dim != DimDynamic {
			exceptions.Panicf("ir.MakeType(): invalid dimension %d for axis #%d", dim, axis)
		}
	}
	return TensorType{DType: dtype, Dimensions: slices.Clone(dimensions)}
}

// MakeDynamicType returns a TensorType where each dimension is either an int (a static dimension, or
// DimDynamic) or a string (a named dynamic axis).
//
// Example: MakeDynamicType(dtypes.Float32, "batch", 512).
func MakeDynamicType(dtype dtypes.DType, dimensions ...any) TensorType {
	t := TensorType{DType: dtype, Dimensions: make([]int, len(dimensions))}
	for axis, dim := range dimensions {
		switch d := dim.(type) {
		case int:
			if d < 0 && d != DimDynamic {
				exceptions.Panicf("ir.MakeDynamicType(): invalid dimension %d for axis #%d", d, axis)
			}
			t.Dimensions[axis] = d
		case string:
			if t.AxisNames == nil {
				t.AxisNames = make([]string, len(dimensions))
			}
			t.Dimensions[axis] = DimDynamic
			t.AxisNames[axis] = d
		default:
			exceptions.Panicf("ir.MakeDynamicType(): axis #%d has unsupported type %T", axis, dim)
		}
	}
	return t
}

// UnknownRankType returns a TensorType whose rank is not known.
func UnknownRankType(dtype dtypes.DType) TensorType {
	return TensorType{DType: dtype, UnknownRank: true}
}

// Rank returns the number of axes, or -1 if unknown.
func (t TensorType) Rank() int {
	if t.UnknownRank {
		return -1
	}
	return len(t.Dimensions)
}

// AxisName returns the name of the axis, or "" if it is not named.
func (t TensorType) AxisName(axis int) string {
	if axis >= len(t.AxisNames) {
		return ""
	}
	return t.AxisNames[axis]
}

// IsDynamic returns whether the rank or any of the dimensions is not known.
func (t TensorType) IsDynamic() bool {
	return t.UnknownRank || slices.Contains(t.Dimensions, DimDynamic)
}

// Clone returns a deep copy.
func (t TensorType) Clone() TensorType {
	return TensorType{
		DType:       t.DType,
		Dimensions:  slices.Clone(t.Dimensions),
		AxisNames:   slices.Clone(t.AxisNames),
		UnknownRank: t.UnknownRank,
	}
}

// String implements fmt.Stringer. Examples: "(Float32)[batch 512]", "(Int64)[?]", "(Float32)[*]".
func (t TensorType) String() string {
	if t.UnknownRank {
		return fmt.Sprintf("(%s)[*]", t.DType)
	}
	parts := make([]string, len(t.Dimensions))
	for axis, dim := range t.Dimensions {
		switch {
		case t.AxisName(axis) != "":
			parts[axis] = t.AxisName(axis)
		case dim == DimDynamic:
			parts[axis] = "?"
		default:
			parts[axis] = fmt.Sprintf("%d", dim)
		}
	}
	return fmt.Sprintf("(%s)[%s]", t.DType, strings.Join(parts, " "))
}
