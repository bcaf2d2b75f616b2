// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package symbolic

import (
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/stretchr/testify/require"
)

var (
	S0    = Symbol("S0")
	S1    = Symbol("S1")
	S2    = Symbol("S2")
	S10   = Symbol("S10")
	batch = Symbol("batch")
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name string
		expr DimExpr
		want string
	}{
		{"constant", Const(4), "4"},
		{"symbol", S0, "S0"},
		{"add_constants", Add(Const(2), Const(3)), "5"},
		{"add_zero", Add(S0, Const(0)), "S0"},
		{"add_empty", Add(), "0"},
		{"add_flatten", Add(S1, Add(S0, Const(2)), Const(3)), "Add(5, S0, S1)"},
		{"add_keeps_repeated", Add(S0, S0), "Add(S0, S0)"},
		{"mul_zero", Mul(S0, Const(0)), "0"},
		{"mul_one", Mul(S0, Const(1)), "S0"},
		{"mul_empty", Mul(), "1"},
		{"mul_fold", Mul(Const(2), S0, Const(3)), "Mul(6, S0)"},
		{"max_dedup", Max(S0, S0), "S0"},
		{"max_fold", Max(Const(3), Const(5), S0), "Max(5, S0)"},
		{"min_sorted_dedup", Min(S1, S0, S1), "Min(S0, S1)"},
		{"natural_order", Add(S10, S2), "Add(S2, S10)"},
		{"composites_after_symbols", Add(Mul(S0, S1), S2), "Add(S2, Mul(S0, S1))"},
		{"nested_different_kinds", Mul(Add(S0, Const(1)), Const(2)), "Mul(2, Add(1, S0))"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.expr.String())
		})
	}
}

func TestEqual(t *testing.T) {
	require.True(t, Add(S0, S1).Equal(Add(S1, S0)))
	require.True(t, Max(S0, Const(2), S0).Equal(Max(Const(2), S0)))
	require.True(t, Const(3).Equal(Add(Const(1), Const(2))))
	require.False(t, S0.Equal(S1))
	require.False(t, Const(3).Equal(Const(4)))
	require.False(t, Add(S0, S1).Equal(Mul(S0, S1)))

	// Structural, not semantic, equality.
	require.False(t, Mul(S0, Const(2)).Equal(Add(S0, S0)))

	require.True(t, EqualSlices([]DimExpr{S0, Const(4)}, []DimExpr{S0, Const(4)}))
	require.False(t, EqualSlices([]DimExpr{S0, Const(4)}, []DimExpr{S0}))
}

func TestAccessors(t *testing.T) {
	value, ok := Const(7).ConstValue()
	require.True(t, ok)
	require.Equal(t, int64(7), value)
	_, ok = S0.ConstValue()
	require.False(t, ok)

	require.True(t, S0.IsSymbol())
	require.Equal(t, "S0", S0.SymbolName())
	require.Equal(t, "", Const(1).SymbolName())
	require.True(t, Const(1).IsConstantValue(1))

	expr := Add(Mul(S10, S2), Max(S2, batch))
	require.Equal(t, []string{"S2", "S10", "batch"}, expr.Symbols())
	require.True(t, expr.HasSymbol("batch"))
	require.False(t, expr.HasSymbol("S0"))

	operands := expr.Operands()
	require.Len(t, operands, 2)
	require.Equal(t, KindMul, operands[0].Kind())

	var invalid DimExpr
	require.False(t, invalid.IsValid())
	require.Equal(t, "Invalid", invalid.Kind().String())
	require.Equal(t, "Kind(99)", Kind(99).String())
}

func TestPanics(t *testing.T) {
	err := exceptions.TryCatch[error](func() { Max() })
	require.Error(t, err)
	err = exceptions.TryCatch[error](func() { Symbol("") })
	require.Error(t, err)
	err = exceptions.TryCatch[error](func() { Add(S0, DimExpr{}) })
	require.Error(t, err)
}

func TestSubstitute(t *testing.T) {
	expr := Add(Mul(S0, Const(4)), S1)
	got := expr.Substitute(func(name string) (DimExpr, bool) {
		if name == "S0" {
			return Const(3), true
		}
		return DimExpr{}, false
	})
	require.Equal(t, "Add(12, S1)", got.String())

	got = got.Substitute(func(name string) (DimExpr, bool) { return Const(1), true })
	require.True(t, got.IsConstantValue(13))
}

func TestEval(t *testing.T) {
	expr := Add(Mul(S0, Const(4)), Const(1))
	value, err := expr.Eval(map[string]int64{"S0": 3})
	require.NoError(t, err)
	require.Equal(t, int64(13), value)

	value, err = Max(S0, S1).Eval(map[string]int64{"S0": 3, "S1": 5})
	require.NoError(t, err)
	require.Equal(t, int64(5), value)

	_, err = expr.Eval(nil)
	require.Error(t, err)
}

func TestCancelFactors(t *testing.T) {
	tests := []struct {
		name        string
		numerator   DimExpr
		denominator DimExpr
		want        string
		ok          bool
	}{
		{"symbolic_by_constant", Mul(S0, Const(32)), Const(8), "Mul(4, S0)", true},
		{"symbol_cancels", Mul(S0, S1, Const(4)), Mul(S1, Const(2)), "Mul(2, S0)", true},
		{"constants", Const(12), Const(4), "3", true},
		{"same_symbol", S0, S0, "1", true},
		{"not_divisible", Const(10), Const(4), "", false},
		{"not_divisible_symbolic", Mul(S0, Const(6)), Mul(S0, Const(4)), "", false},
		{"missing_factor", S0, S1, "", false},
		{"division_by_zero", S0, Const(0), "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := CancelFactors(tt.numerator, tt.denominator)
			require.Equal(t, tt.ok, ok)
			if ok {
				require.Equal(t, tt.want, got.String())
			}
		})
	}
}

func TestSymbolGenerator(t *testing.T) {
	gen := NewSymbolGenerator("")
	require.Equal(t, "S0", gen.Next().String())
	require.Equal(t, "S1", gen.Next().String())
	require.Equal(t, 2, gen.Count())

	gen = NewSymbolGenerator("D")
	require.Equal(t, "D0", gen.Next().String())
}

func TestCompare(t *testing.T) {
	require.Equal(t, -1, Compare(Const(1), S0))
	require.Equal(t, -1, Compare(S0, Add(S0, S1)))
	require.Equal(t, -1, Compare(S2, S10))
	require.Equal(t, 1, Compare(Symbol("a10"), Symbol("a9")))
	require.Equal(t, -1, Compare(Symbol("a"), Symbol("a1")))
	require.Equal(t, 0, Compare(Add(S0, S1), Add(S1, S0)))
}
