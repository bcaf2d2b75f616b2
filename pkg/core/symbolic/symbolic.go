// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package symbolic implements dimension expressions (DimExpr): the symbolic length of one tensor axis.
//
// A DimExpr is either a constant, a named symbol, or a composite expression (Add, Mul, Max or Min) of other
// dimension expressions. Expressions are immutable and are always kept in a canonical form: constants are
// folded, nested operations of the same kind are flattened, operands are sorted, and Max/Min operands are
// deduplicated. Because of that, Equal is simply structural equality.
//
// Notice that Equal is not semantic equality: `Mul(S0, 2)` and `Add(S0, S0)` are mathematically equal, but
// they are different expressions. Two expressions are only known to be equal if an equality constraint has
// unified them (see package shapeanalysis).
//
// There is no subtraction or division. Shape arithmetic only needs them to invert a product or a sum (e.g.:
// the missing dimension of a reshape). Those cases are handled by introducing a fresh symbol and an equality
// constraint instead -- or by CancelFactors when the division is exact.
//
// ## Glossary
//
//   - Constant: a concrete axis length, e.g. 4.
//   - Symbol: a named unknown axis length, e.g. S0 or "batch".
//   - Composite: an Add, Mul, Max or Min of other expressions.
package symbolic

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/gomlx/exceptions"
	"golang.org/x/exp/constraints"
)

// Kind of dimension expression.
type Kind int

const (
	KindInvalid Kind = iota
	KindConstant
	KindSymbol
	KindAdd
	KindMul
	KindMax
	KindMin
)

var kindNames = [...]string{"Invalid", "Constant", "Symbol", "Add", "Mul", "Max", "Min"}

// String implements fmt.Stringer.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// IsComposite returns whether the kind is one of Add, Mul, Max or Min.
func (k Kind) IsComposite() bool {
	return k >= KindAdd && k <= KindMin
}

// DimExpr is an immutable dimension expression. See package documentation.
//
// The zero value is an invalid expression (Kind() == KindInvalid).
type DimExpr struct {
	kind     Kind
	value    int64
	name     string
	operands []DimExpr
}

// Const returns a constant dimension expression.
func Const[T constraints.Integer](value T) DimExpr {
	return DimExpr{kind: KindConstant, value: int64(value)}
}

// Consts converts a list of integers to constant dimension expressions.
func Consts[T constraints.Integer](values ...T) []DimExpr {
	exprs := make([]DimExpr, len(values))
	for ii, v := range values {
		exprs[ii] = Const(v)
	}
	return exprs
}

// Symbol returns a symbolic dimension expression with the given name.
func Symbol(name string) DimExpr {
	if name == "" {
		exceptions.Panicf("symbolic.Symbol() requires a non-empty name")
	}
	return DimExpr{kind: KindSymbol, name: name}
}

// Add returns the canonical form of the sum of the operands. Add() with no operands is 0.
func Add(operands ...DimExpr) DimExpr {
	return newComposite(KindAdd, operands)
}

// Mul returns the canonical form of the product of the operands. Mul() with no operands is 1.
func Mul(operands ...DimExpr) DimExpr {
	return newComposite(KindMul, operands)
}

// Max returns the canonical form of the maximum of the operands. It panics if no operand is given.
func Max(operands ...DimExpr) DimExpr {
	return newComposite(KindMax, operands)
}

// Min returns the canonical form of the minimum of the operands. It panics if no operand is given.
func Min(operands ...DimExpr) DimExpr {
	return newComposite(KindMin, operands)
}

func newComposite(kind Kind, operands []DimExpr) DimExpr {
	for ii, operand := range operands {
		if !operand.IsValid() {
			exceptions.Panicf("symbolic.%s(): operand #%d is invalid", kind, ii)
		}
	}
	return Simplify(DimExpr{kind: kind, operands: slices.Clone(operands)})
}

// Kind of the expression.
func (e DimExpr) Kind() Kind { return e.kind }

// IsValid returns false for the zero value DimExpr{}.
func (e DimExpr) IsValid() bool { return e.kind != KindInvalid }

// IsConstant returns whether the expression is a constant.
func (e DimExpr) IsConstant() bool { return e.kind == KindConstant }

// IsSymbol returns whether the expression is a single symbol.
func (e DimExpr) IsSymbol() bool { return e.kind == KindSymbol }

// ConstValue returns the constant value, if the expression is a constant.
func (e DimExpr) ConstValue() (int64, bool) {
	if e.kind != KindConstant {
		return 0, false
	}
	return e.value, true
}

// IsConstantValue returns whether the expression is the given constant.
func (e DimExpr) IsConstantValue(value int64) bool {
	return e.kind == KindConstant && e.value == value
}

// SymbolName returns the name of a symbol expression, or "" for other kinds.
func (e DimExpr) SymbolName() string {
	if e.kind != KindSymbol {
		return ""
	}
	return e.name
}

// Operands returns a copy of the operands of a composite expression, nil for others.
func (e DimExpr) Operands() []DimExpr {
	return slices.Clone(e.operands)
}

// NumOperands of a composite expression, 0 for others.
func (e DimExpr) NumOperands() int {
	return len(e.operands)
}

// Equal returns whether the two expressions are structurally equal.
// Since expressions are always canonical, this is the canonical-form equality.
func (e DimExpr) Equal(other DimExpr) bool {
	if e.kind != other.kind {
		return false
	}
	switch e.kind {
	case KindConstant:
		return e.value == other.value
	case KindSymbol:
		return e.name == other.name
	case KindInvalid:
		return true
	}
	if len(e.operands) != len(other.operands) {
		return false
	}
	for ii := range e.operands {
		if !e.operands[ii].Equal(other.operands[ii]) {
			return false
		}
	}
	return true
}

// Equal is an alias to a.Equal(b), convenient as a function value.
func Equal(a, b DimExpr) bool {
	return a.Equal(b)
}

// EqualSlices returns whether both slices have the same length and pair-wise equal expressions.
func EqualSlices(a, b []DimExpr) bool {
	return slices.EqualFunc(a, b, Equal)
}

// String implements fmt.Stringer.
func (e DimExpr) String() string {
	switch e.kind {
	case KindConstant:
		return strconv.FormatInt(e.value, 10)
	case KindSymbol:
		return e.name
	case KindInvalid:
		return "<invalid>"
	}
	parts := make([]string, len(e.operands))
	for ii, operand := range e.operands {
		parts[ii] = operand.String()
	}
	return fmt.Sprintf("%s(%s)", e.kind, strings.Join(parts, ", "))
}

// SliceString pretty-prints a list of expressions, e.g.: "[S0, 4]".
func SliceString(exprs []DimExpr) string {
	parts := make([]string, len(exprs))
	for ii, e := range exprs {
		parts[ii] = e.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Symbols returns the sorted names of all symbols used in the expression, without repetition.
func (e DimExpr) Symbols() []string {
	var names []string
	e.walk(func(sub DimExpr) {
		if sub.kind == KindSymbol {
			names = append(names, sub.name)
		}
	})
	slices.SortFunc(names, compareSymbolNames)
	return slices.Compact(names)
}

// HasSymbol returns whether the symbol with the given name is used in the expression.
func (e DimExpr) HasSymbol(name string) bool {
	found := false
	e.walk(func(sub DimExpr) {
		if sub.kind == KindSymbol && sub.name == name {
			found = true
		}
	})
	return found
}

func (e DimExpr) walk(fn func(sub DimExpr)) {
	fn(e)
	for _, operand := range e.operands {
		operand.walk(fn)
	}
}

// Substitute returns a new expression with symbols replaced by the expressions returned by fn.
// Symbols for which fn returns false are kept. The result is canonical.
func (e DimExpr) Substitute(fn func(name string) (DimExpr, bool)) DimExpr {
	switch e.kind {
	case KindSymbol:
		if replacement, ok := fn(e.name); ok {
			return replacement
		}
		return e
	case KindConstant, KindInvalid:
		return e
	}
	operands := make([]DimExpr, len(e.operands))
	for ii, operand := range e.operands {
		operands[ii] = operand.Substitute(fn)
	}
	return Simplify(DimExpr{kind: e.kind, operands: operands})
}
