// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package symbolic

import (
	"fmt"

	"github.com/pkg/errors"
)

// Eval evaluates the expression given the concrete values of its symbols.
// It returns an error if a symbol has no binding.
func (e DimExpr) Eval(bindings map[string]int64) (int64, error) {
	switch e.kind {
	case KindConstant:
		return e.value, nil
	case KindSymbol:
		value, found := bindings[e.name]
		if !found {
			return 0, errors.Errorf("symbol %q has no binding", e.name)
		}
		return value, nil
	case KindInvalid:
		return 0, errors.New("cannot evaluate an invalid dimension expression")
	}
	result, err := e.operands[0].Eval(bindings)
	if err != nil {
		return 0, err
	}
	for _, operand := range e.operands[1:] {
		value, err := operand.Eval(bindings)
		if err != nil {
			return 0, err
		}
		result = foldConstants(e.kind, result, value)
	}
	return result, nil
}

// SymbolGenerator creates fresh symbols named with a prefix and a sequential number: S0, S1, ...
//
// It is not safe for concurrent use.
type SymbolGenerator struct {
	prefix string
	next   int
}

// DefaultSymbolPrefix is the prefix used by NewSymbolGenerator if none is given.
const DefaultSymbolPrefix = "S"

// NewSymbolGenerator returns a generator of fresh symbols with the given prefix.
// If prefix is empty, DefaultSymbolPrefix is used.
func NewSymbolGenerator(prefix string) *SymbolGenerator {
	if prefix == "" {
		prefix = DefaultSymbolPrefix
	}
	return &SymbolGenerator{prefix: prefix}
}

// Next returns a new symbol, never returned before by this generator.
func (g *SymbolGenerator) Next() DimExpr {
	name := fmt.Sprintf("%s%d", g.prefix, g.next)
	g.next++
	return Symbol(name)
}

// Count returns the number of symbols generated so far.
func (g *SymbolGenerator) Count() int {
	return g.next
}
