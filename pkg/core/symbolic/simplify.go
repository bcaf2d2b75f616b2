// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package symbolic

import (
	"cmp"
	"slices"
	"strconv"

	"github.com/gomlx/exceptions"
)

// Simplify returns the canonical form of the expression:
//
//   - Operands of the same kind are flattened: Add(a, Add(b, c)) -> Add(a, b, c).
//   - Constants are folded into one: summed for Add, multiplied for Mul, and the max/min for Max/Min.
//   - Neutral constants are dropped: 0 for Add, 1 for Mul. A Mul with a 0 constant is 0.
//   - Operands are sorted (see Compare), and repeated operands of Max/Min are removed.
//   - A composite with a single operand is replaced by that operand.
//
// All constructors already return canonical expressions, so this is only needed after building
// expressions by other means.
func Simplify(e DimExpr) DimExpr {
	if !e.kind.IsComposite() {
		return e
	}
	flat := make([]DimExpr, 0, len(e.operands))
	for _, operand := range e.operands {
		operand = Simplify(operand)
		if operand.kind == e.kind {
			flat = append(flat, operand.operands...)
		} else {
			flat = append(flat, operand)
		}
	}

	var constant int64
	hasConstant := false
	terms := make([]DimExpr, 0, len(flat))
	for _, operand := range flat {
		if operand.kind != KindConstant {
			terms = append(terms, operand)
			continue
		}
		if !hasConstant {
			constant, hasConstant = operand.value, true
			continue
		}
		constant = foldConstants(e.kind, constant, operand.value)
	}

	if hasConstant {
		keep := true
		switch e.kind {
		case KindAdd:
			keep = constant != 0
		case KindMul:
			if constant == 0 {
				return Const(0)
			}
			keep = constant != 1
		}
		if keep || len(terms) == 0 {
			terms = append(terms, Const(constant))
		}
	}

	switch len(terms) {
	case 0:
		switch e.kind {
		case KindAdd:
			return Const(0)
		case KindMul:
			return Const(1)
		default:
			exceptions.Panicf("symbolic.%s() requires at least one operand", e.kind)
		}
	case 1:
		return terms[0]
	}

	slices.SortFunc(terms, Compare)
	if e.kind == KindMax || e.kind == KindMin {
		terms = slices.CompactFunc(terms, Equal)
		if len(terms) == 1 {
			return terms[0]
		}
	}
	return DimExpr{kind: e.kind, operands: terms}
}

func foldConstants(kind Kind, a, b int64) int64 {
	switch kind {
	case KindAdd:
		return a + b
	case KindMul:
		return a * b
	case KindMax:
		return max(a, b)
	case KindMin:
		return min(a, b)
	}
	exceptions.Panicf("cannot fold constants for kind %s", kind)
	return 0
}

// Compare defines the canonical total order of expressions: constants come first (ordered by value),
// then symbols (ordered naturally by name, so S2 < S10), then composites ordered by kind and then by
// operands.
//
// It returns -1, 0 or 1, like cmp.Compare.
func Compare(a, b DimExpr) int {
	if a.kind != b.kind {
		return cmp.Compare(a.kind, b.kind)
	}
	switch a.kind {
	case KindConstant:
		return cmp.Compare(a.value, b.value)
	case KindSymbol:
		return compareSymbolNames(a.name, b.name)
	}
	for ii := range min(len(a.operands), len(b.operands)) {
		if c := Compare(a.operands[ii], b.operands[ii]); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(a.operands), len(b.operands))
}

// compareSymbolNames orders names by their non-numeric prefix and then by their numeric suffix.
// Names without a numeric suffix come before the numbered ones with the same prefix.
func compareSymbolNames(a, b string) int {
	prefixA, numA, okA := splitNumericSuffix(a)
	prefixB, numB, okB := splitNumericSuffix(b)
	if c := cmp.Compare(prefixA, prefixB); c != 0 {
		return c
	}
	if okA != okB {
		if okA {
			return 1
		}
		return -1
	}
	if c := cmp.Compare(numA, numB); c != 0 {
		return c
	}
	return cmp.Compare(a, b)
}

func splitNumericSuffix(name string) (prefix string, num uint64, ok bool) {
	idx := len(name)
	for idx > 0 && name[idx-1] >= '0' && name[idx-1] <= '9' {
		idx--
	}
	if idx == len(name) {
		return name, 0, false
	}
	num, err := strconv.ParseUint(name[idx:], 10, 64)
	if err != nil {
		return name, 0, false
	}
	return name[:idx], num, true
}

// CancelFactors returns numerator/denominator if the division is exact at the factor level: every
// non-constant factor of the denominator must appear in the numerator, and the constant factor of the
// numerator must be divisible by the constant factor of the denominator.
//
// It returns false if the factors don't cancel out. It is not a general division: Mul(S0, 6) / Mul(S0, 4)
// fails, even though the result could be a rational multiple.
func CancelFactors(numerator, denominator DimExpr) (DimExpr, bool) {
	numConst, numFactors := splitFactors(numerator)
	denConst, denFactors := splitFactors(denominator)
	if denConst == 0 || numConst%denConst != 0 {
		return DimExpr{}, false
	}
	remaining := slices.Clone(numFactors)
	for _, factor := range denFactors {
		idx := slices.IndexFunc(remaining, factor.Equal)
		if idx < 0 {
			return DimExpr{}, false
		}
		remaining = slices.Delete(remaining, idx, idx+1)
	}
	return Mul(append(remaining, Const(numConst/denConst))...), true
}

// splitFactors splits an expression into its constant factor and its non-constant factors.
func splitFactors(e DimExpr) (constant int64, factors []DimExpr) {
	constant = 1
	if e.kind == KindConstant {
		return e.value, nil
	}
	if e.kind != KindMul {
		return 1, []DimExpr{e}
	}
	for _, operand := range e.operands {
		if operand.kind == KindConstant {
			constant *= operand.value
		} else {
			factors = append(factors, operand)
		}
	}
	return
}
