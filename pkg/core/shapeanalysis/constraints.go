// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapeanalysis

import (
	"maps"
	"slices"

	"github.com/gomlx/symshape/pkg/core/symbolic"
)

// constraintStore is a union-find over canonical dimension expressions: each class holds expressions known
// to be equal. Classes hold at most one constant value.
type constraintStore struct {
	parent   map[string]string
	exprs    map[string]symbolic.DimExpr
	members  map[string][]string // Only for class roots.
	constant map[string]int64    // Only for class roots that hold a constant.
	pairs    [][2]symbolic.DimExpr
}

func newConstraintStore() *constraintStore {
	return &constraintStore{
		parent:   make(map[string]string),
		exprs:    make(map[string]symbolic.DimExpr),
		members:  make(map[string][]string),
		constant: make(map[string]int64),
	}
}

// key of an expression: its canonical form is unique, and so is its printed form.
func key(e symbolic.DimExpr) string {
	return e.String()
}

func (s *constraintStore) node(e symbolic.DimExpr) string {
	k := key(e)
	if _, found := s.parent[k]; !found {
		s.parent[k] = k
		s.exprs[k] = e
		s.members[k] = []string{k}
		if value, ok := e.ConstValue(); ok {
			s.constant[k] = value
		}
	}
	return k
}

// find returns the root of the class of k, compressing the path.
func (s *constraintStore) find(k string) string {
	root := k
	for s.parent[root] != root {
		root = s.parent[root]
	}
	for k != root {
		next := s.parent[k]
		s.parent[k] = root
		k = next
	}
	return root
}

// classOf returns the root of the class of e, and whether e is in any class.
func (s *constraintStore) classOf(e symbolic.DimExpr) (string, bool) {
	k := key(e)
	if _, found := s.parent[k]; !found {
		return "", false
	}
	return s.find(k), true
}

// constantOf returns the constant held by the class of e, if any.
func (s *constraintStore) constantOf(e symbolic.DimExpr) (int64, bool) {
	root, found := s.classOf(e)
	if !found {
		return 0, false
	}
	value, ok := s.constant[root]
	return value, ok
}

// union merges the classes of a and b. If both hold different constants it returns them and ok=false,
// leaving the store unchanged. merged is false if they were already in the same class.
func (s *constraintStore) union(a, b symbolic.DimExpr) (merged bool, valueA, valueB int64, ok bool) {
	ra, rb := s.find(s.node(a)), s.find(s.node(b))
	if ra == rb {
		return false, 0, 0, true
	}
	ca, hasA := s.constant[ra]
	cb, hasB := s.constant[rb]
	if hasA && hasB && ca != cb {
		return false, ca, cb, false
	}
	s.link(ra, rb)
	s.pairs = append(s.pairs, [2]symbolic.DimExpr{a, b})
	return true, 0, 0, true
}

// link merges the classes with roots ra and rb, which must not hold different constants.
func (s *constraintStore) link(ra, rb string) {
	if len(s.members[ra]) < len(s.members[rb]) {
		ra, rb = rb, ra
	}
	s.parent[rb] = ra
	s.members[ra] = append(s.members[ra], s.members[rb]...)
	delete(s.members, rb)
	if value, has := s.constant[rb]; has {
		s.constant[ra] = value
		delete(s.constant, rb)
	}
}

// fold replaces the symbols of e whose class holds a constant by the constant.
func (s *constraintStore) fold(e symbolic.DimExpr) symbolic.DimExpr {
	return e.Substitute(func(name string) (symbolic.DimExpr, bool) {
		value, ok := s.constantOf(symbolic.Symbol(name))
		if !ok {
			return symbolic.DimExpr{}, false
		}
		return symbolic.Const(value), true
	})
}

// propagateConstants folds the composite expressions of the store, and merges the ones that fold to a
// constant with the class of that constant, until nothing changes. Derived merges are not listed in pairs.
//
// If a composite folds to a constant different from the one its class holds, it returns the composite with
// both values and ok=false. The merges done so far are kept.
func (s *constraintStore) propagateConstants() (composite symbolic.DimExpr, folded, held int64, ok bool) {
	for changed := true; changed; {
		changed = false
		for _, k := range slices.Sorted(maps.Keys(s.exprs)) {
			e := s.exprs[k]
			if !e.Kind().IsComposite() {
				continue
			}
			value, isConstant := s.fold(e).ConstValue()
			if !isConstant {
				continue
			}
			root := s.find(k)
			if current, has := s.constant[root]; has {
				if current != value {
					return e, value, current, false
				}
				continue
			}
			constantRoot := s.find(s.node(symbolic.Const(value)))
			s.link(root, constantRoot)
			changed = true
		}
	}
	return symbolic.DimExpr{}, 0, 0, true
}

// class returns the expressions equal to e (including e), sorted by symbolic.Compare.
func (s *constraintStore) class(e symbolic.DimExpr) []symbolic.DimExpr {
	root, found := s.classOf(e)
	if !found {
		return []symbolic.DimExpr{e}
	}
	exprs := make([]symbolic.DimExpr, 0, len(s.members[root]))
	for _, k := range s.members[root] {
		exprs = append(exprs, s.exprs[k])
	}
	slices.SortFunc(exprs, symbolic.Compare)
	return exprs
}

// representative returns the preferred expression of the class of e: its constant if there is one; else
// the smallest composite that doesn't use any of the class's symbols; else the smallest symbol.
func (s *constraintStore) representative(e symbolic.DimExpr) symbolic.DimExpr {
	class := s.class(e)
	if value, ok := s.constantOf(e); ok {
		return symbolic.Const(value)
	}
	var classSymbols []string
	var firstSymbol symbolic.DimExpr
	for _, member := range class {
		if member.IsSymbol() {
			classSymbols = append(classSymbols, member.SymbolName())
			if !firstSymbol.IsValid() {
				firstSymbol = member
			}
		}
	}
	for _, member := range class {
		if !member.Kind().IsComposite() {
			continue
		}
		selfReferencing := slices.ContainsFunc(classSymbols, member.HasSymbol)
		if !selfReferencing {
			return member
		}
	}
	if firstSymbol.IsValid() {
		return firstSymbol
	}
	return class[0]
}
