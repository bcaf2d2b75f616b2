// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapes

import (
	"testing"

	"github.com/gomlx/exceptions"
	. "github.com/gomlx/symshape/pkg/core/symbolic"
	"github.com/stretchr/testify/require"
)

func TestShapeOrData(t *testing.T) {
	scalar := Make()
	require.True(t, scalar.IsScalar())
	require.Equal(t, 0, scalar.Rank())
	require.True(t, scalar.Size().IsConstantValue(1))
	require.True(t, scalar.IsFullyConstant())

	var zero ShapeOrData
	require.True(t, zero.Equal(scalar))

	s := MakeFrom("S0", 4)
	require.Equal(t, 2, s.Rank())
	require.False(t, s.IsScalar())
	require.False(t, s.IsFullyConstant())
	require.Equal(t, "[S0, 4]", s.String())
	require.True(t, s.Dim(0).Equal(Symbol("S0")))
	require.True(t, s.Dim(-1).IsConstantValue(4))
	require.Equal(t, "Mul(4, S0)", s.Size().String())
	require.Equal(t, []string{"S0"}, s.Symbols())
	require.False(t, s.HasData())
	_, ok := s.Data()
	require.False(t, ok)

	require.True(t, s.Equal(Make(Symbol("S0"), Const(4))))
	require.False(t, s.Equal(MakeFrom("S1", 4)))
	require.False(t, s.Equal(MakeFrom("S0")))

	// Accessors return copies.
	dims := s.Shape()
	dims[0] = Const(7)
	require.Equal(t, "[S0, 4]", s.String())

	require.Panics(t, func() { s.Dim(2) })
	require.Panics(t, func() { s.Dim(-3) })
	require.Panics(t, func() { MakeFrom(1.5) })
}

func TestShapeOrDataWithData(t *testing.T) {
	d := MakeData(Symbol("S0"), Const(4))
	require.Equal(t, 1, d.Rank())
	require.True(t, d.HasData())
	require.Equal(t, "[2] data=[S0, 4]", d.String())
	_, ok := d.ConstData()
	require.False(t, ok)
	require.False(t, d.Equal(d.WithoutData()))
	require.True(t, d.WithoutData().Equal(MakeFrom(2)))

	c := MakeData(Consts(3, 4)...)
	values, ok := c.ConstData()
	require.True(t, ok)
	require.Equal(t, []int64{3, 4}, values)

	scalar := MakeScalarData(Symbol("S1"))
	require.True(t, scalar.IsScalar())
	data, ok := scalar.Data()
	require.True(t, ok)
	require.Len(t, data, 1)

	err := exceptions.TryCatch[error](func() { MakeWithData(Consts(3), Consts(1, 2)) })
	require.Error(t, err)
	err = exceptions.TryCatch[error](func() { MakeWithData([]DimExpr{Symbol("S0")}, Consts(1)) })
	require.Error(t, err)
}

func TestUnknownRank(t *testing.T) {
	u := UnknownRank()
	require.True(t, u.IsUnknownRank())
	require.Equal(t, -1, u.Rank())
	require.False(t, u.IsScalar())
	require.False(t, u.IsFullyConstant())
	require.Nil(t, u.Shape())
	require.Equal(t, "<unknown-rank>", u.String())
	require.True(t, u.Equal(UnknownRank()))
	require.False(t, u.Equal(Make()))
	require.Panics(t, func() { u.Dim(0) })
	require.Panics(t, func() { u.Size() })
}

func TestSubstitute(t *testing.T) {
	s := MakeWithData(Consts(2), []DimExpr{Symbol("S1"), Add(Symbol("S1"), Const(1))})
	got := s.Substitute(func(name string) (DimExpr, bool) {
		if name == "S1" {
			return Const(3), true
		}
		return DimExpr{}, false
	})
	values, ok := got.ConstData()
	require.True(t, ok)
	require.Equal(t, []int64{3, 4}, values)
	require.Equal(t, []string{"S1"}, s.Symbols())
}

func TestNormalizeAxis(t *testing.T) {
	axis, err := NormalizeAxis(-1, 3)
	require.NoError(t, err)
	require.Equal(t, 2, axis)
	axis, err = NormalizeAxis(0, 3)
	require.NoError(t, err)
	require.Equal(t, 0, axis)
	_, err = NormalizeAxis(3, 3)
	require.Error(t, err)
	_, err = NormalizeAxis(-4, 3)
	require.Error(t, err)
}
