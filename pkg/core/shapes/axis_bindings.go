// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapes

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/pkg/errors"
)

// AxisBindings maps symbol names to concrete dimension values.
// Used to check a symbolic shape against concrete shapes, e.g. the actual inputs of a graph.
type AxisBindings map[string]int64

// Key returns a canonical string representation for map keying.
// Format: "name1=val1,name2=val2" with names sorted alphabetically.
// Returns empty string for empty or nil bindings.
func (ab AxisBindings) Key() string {
	if len(ab) == 0 {
		return ""
	}
	names := slices.Sorted(maps.Keys(ab))
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s=%d", name, ab[name])
	}
	return strings.Join(parts, ",")
}

// Clone returns a copy of the bindings.
func (ab AxisBindings) Clone() AxisBindings {
	if ab == nil {
		return nil
	}
	return maps.Clone(ab)
}

// Merge combines bindings from another AxisBindings into this one.
// Returns an error if there are conflicting values for the same symbol.
func (ab AxisBindings) Merge(other AxisBindings) error {
	for name, val := range other {
		if existing, ok := ab[name]; ok && existing != val {
			return errors.Errorf("conflicting values for axis %q: %d vs %d", name, existing, val)
		}
		ab[name] = val
	}
	return nil
}

// Resolve evaluates every dimension of the shape with the given bindings.
// It returns an error if the rank is unknown or if some symbol has no binding.
func (s ShapeOrData) Resolve(bindings AxisBindings) ([]int64, error) {
	if s.unknownRank {
		return nil, errors.New("cannot resolve a shape of unknown rank")
	}
	dims := make([]int64, len(s.shape))
	for axis, dim := range s.shape {
		value, err := dim.Eval(bindings)
		if err != nil {
			return nil, errors.WithMessagef(err, "resolving axis #%d (%s) of %s", axis, dim, s)
		}
		dims[axis] = value
	}
	return dims, nil
}

// ExtractBindings gets the symbol bindings from a concrete shape matching a symbolic pattern.
// Axes of the pattern that are a single symbol are bound; constant axes must match exactly;
// composite axes are evaluated once all symbols are bound and must match the concrete value.
//
// Returns error if:
//   - Pattern has unknown rank, or ranks differ
//   - Constant or composite dimensions don't match
//   - Same symbol has conflicting values
func ExtractBindings(pattern ShapeOrData, concrete []int64) (AxisBindings, error) {
	if pattern.unknownRank {
		return nil, errors.New("cannot extract bindings from a pattern of unknown rank")
	}
	if pattern.Rank() != len(concrete) {
		return nil, errors.Errorf("rank mismatch: pattern has %d, concrete has %d",
			pattern.Rank(), len(concrete))
	}

	bindings := make(AxisBindings)
	var composites []int
	for i, dim := range pattern.shape {
		concreteVal := concrete[i]
		switch {
		case dim.IsSymbol():
			name := dim.SymbolName()
			if existing, ok := bindings[name]; ok && existing != concreteVal {
				return nil, errors.Errorf("axis %q has conflicting values at dimension %d: %d vs %d",
					name, i, existing, concreteVal)
			}
			bindings[name] = concreteVal
		case dim.IsConstant():
			if !dim.IsConstantValue(concreteVal) {
				return nil, errors.Errorf("dimension %d mismatch: pattern has %s, concrete has %d",
					i, dim, concreteVal)
			}
		default:
			composites = append(composites, i)
		}
	}

	// Composites are checked only after all single-symbol axes are bound.
	for _, i := range composites {
		dim := pattern.shape[i]
		value, err := dim.Eval(bindings)
		if err != nil {
			return nil, errors.WithMessagef(err, "dimension %d (%s) cannot be checked", i, dim)
		}
		if value != concrete[i] {
			return nil, errors.Errorf("dimension %d mismatch: pattern %s evaluates to %d, concrete has %d",
				i, dim, value, concrete[i])
		}
	}
	return bindings, nil
}

// BindingsFor returns the symbol bindings of a fully constant shape matched against a pattern.
// It is a convenience wrapper around ExtractBindings.
func BindingsFor(pattern, concrete ShapeOrData) (AxisBindings, error) {
	if !concrete.IsFullyConstant() {
		return nil, errors.Errorf("shape %s is not fully constant", concrete)
	}
	dims := make([]int64, concrete.Rank())
	for axis, dim := range concrete.shape {
		dims[axis], _ = dim.ConstValue()
	}
	return ExtractBindings(pattern, dims)
}
