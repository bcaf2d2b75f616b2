// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package shapeanalysis implements the symbolic shape analysis of IR graphs (see package ir).
//
// A Context maps every value of a graph to its shapes.ShapeOrData record, and accumulates the equality
// constraints between dimension expressions found while inferring the shapes.
//
// A Driver runs an analysis pass: it visits the operations of a graph in topological order and invokes the
// inference rule registered for the kind of each operation (see package shapeinference). Operations without
// a rule, or whose rule can't infer their shapes, have their results marked with shapes.UnknownRank().
//
// Only two kinds of errors abort a pass: ErrUnresolvedValue (an operand had no record) and
// ErrConstraintConflict (two different constants were asserted equal). A rule that panics also aborts
// the pass, with ErrRulePanic.
//
// A Context is not safe for concurrent use: independent graphs can be analyzed in parallel, each with its
// own Context, see AnalyzeAll.
package shapeanalysis

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/symshape/pkg/core/ir"
	"github.com/gomlx/symshape/pkg/core/shapes"
	"github.com/gomlx/symshape/pkg/core/symbolic"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Context holds the state of the shape analysis of one graph (and its regions).
type Context struct {
	id          uuid.UUID
	config      Config
	records     map[*ir.Value]shapes.ShapeOrData
	constraints *constraintStore
	symbols     *symbolic.SymbolGenerator
	usedSymbols map[string]bool
	symbolMemo  map[symbolKey]symbolic.DimExpr
	diagnostics []error

	// currentOp is the operation whose rule is running, if any.
	currentOp *ir.Operation

	// driver and report are set during a pass, and are used by InferSubGraph.
	driver *Driver
	report *PassReport
}

type symbolKey struct {
	value *ir.Value
	axis  int
	role  string
}

// NewContext creates an empty Context.
func NewContext(config Config) *Context {
	if config.SymbolPrefix == "" {
		config.SymbolPrefix = symbolic.DefaultSymbolPrefix
	}
	if config.MaxLoopIterations <= 0 {
		config.MaxLoopIterations = DefaultMaxLoopIterations
	}
	return &Context{
		id:          uuid.New(),
		config:      config,
		records:     make(map[*ir.Value]shapes.ShapeOrData),
		constraints: newConstraintStore(),
		symbols:     symbolic.NewSymbolGenerator(config.SymbolPrefix),
		usedSymbols: make(map[string]bool),
		symbolMemo:  make(map[symbolKey]symbolic.DimExpr),
	}
}

// Config returns the configuration of the context.
func (c *Context) Config() Config { return c.config }

// ID returns a unique identifier of the context, used in logs to tell apart parallel analyses.
func (c *Context) ID() uuid.UUID { return c.id }

// Tag returns a short description used in log messages.
func (c *Context) Tag() string {
	return fmt.Sprintf("<shapeanalysis.Context id=%s>", c.id)
}

// GetShapeOrDataForValue returns the record of the value.
// It returns an error wrapping ErrUnresolvedValue if the value has no record.
func (c *Context) GetShapeOrDataForValue(v *ir.Value) (shapes.ShapeOrData, error) {
	rec, found := c.records[v]
	if !found {
		if v == nil {
			return shapes.ShapeOrData{}, errors.Wrap(ErrUnresolvedValue, "nil value")
		}
		producer := "graph input"
		if v.Producer() != nil {
			producer = v.Producer().String()
		}
		return shapes.ShapeOrData{}, errors.Wrapf(ErrUnresolvedValue, "value %s (from %s)", v.Name(), producer)
	}
	return rec, nil
}

// HasShapeOrDataForValue returns whether the value has a record.
func (c *Context) HasShapeOrDataForValue(v *ir.Value) bool {
	_, found := c.records[v]
	return found
}

// SetShapeOrDataForValue sets (or overwrites) the record of the value.
func (c *Context) SetShapeOrDataForValue(v *ir.Value, rec shapes.ShapeOrData) {
	for _, name := range rec.Symbols() {
		c.usedSymbols[name] = true
	}
	c.records[v] = rec
	if klog.V(3).Enabled() {
		klog.Infof("%s: %s -> %s", c.Tag(), v.Name(), rec)
	}
}

// NumRecords returns the number of values with a record.
func (c *Context) NumRecords() int { return len(c.records) }

// AddEqualityConstraint registers that a and b are equal.
//
// It returns a *ConstraintConflictError (matching ErrConstraintConflict) if, given the constraints already
// registered, a and b are different constants. Registering a known constraint again is a no-op.
func (c *Context) AddEqualityConstraint(a, b symbolic.DimExpr) error {
	if !a.IsValid() || !b.IsValid() {
		return errors.Errorf("AddEqualityConstraint(%s, %s): invalid dimension expression", a, b)
	}
	canonicalA, canonicalB := c.Canonicalize(a), c.Canonicalize(b)
	valueA, okA := canonicalA.ConstValue()
	valueB, okB := canonicalB.ConstValue()
	if okA && okB && valueA != valueB {
		return c.conflict(a, b, valueA, valueB)
	}

	// Each expression is also equal to its canonical form.
	for _, pair := range [][2]symbolic.DimExpr{{a, b}, {a, canonicalA}, {b, canonicalB}} {
		if pair[0].Equal(pair[1]) {
			continue
		}
		merged, valueA, valueB, ok := c.constraints.union(pair[0], pair[1])
		if !ok {
			return c.conflict(a, b, valueA, valueB)
		}
		if merged && klog.V(2).Enabled() {
			klog.Infof("%s: constraint %s == %s", c.Tag(), pair[0], pair[1])
		}
	}

	// Composites whose symbols became constants must agree with the constant of their class.
	composite, folded, held, ok := c.constraints.propagateConstants()
	if !ok {
		return c.conflict(composite, symbolic.Const(held), folded, held)
	}
	return nil
}

func (c *Context) conflict(a, b symbolic.DimExpr, valueA, valueB int64) error {
	err := &ConstraintConflictError{A: a, B: b, ValueA: valueA, ValueB: valueB, Op: c.currentOp}
	c.diagnostics = append(c.diagnostics, err)
	return err
}

// ResolveSymbol returns the best known replacement of the symbol given the constraints: a constant if the
// symbol is known to be equal to one; else an expression not using any symbol of its class; else the smallest
// symbol of its class (possibly itself).
//
// It returns false if the symbol is not part of any constraint.
func (c *Context) ResolveSymbol(name string) (symbolic.DimExpr, bool) {
	symbol := symbolic.Symbol(name)
	if _, found := c.constraints.classOf(symbol); !found {
		return symbolic.DimExpr{}, false
	}
	return c.constraints.representative(symbol), true
}

// Canonicalize replaces the symbols of e by their resolution (see ResolveSymbol), recursively, and returns
// the simplified result. Expressions known to be equal to a constant are replaced by the constant.
func (c *Context) Canonicalize(e symbolic.DimExpr) symbolic.DimExpr {
	return c.canonicalize(e, nil)
}

func (c *Context) canonicalize(e symbolic.DimExpr, visiting []string) symbolic.DimExpr {
	if value, ok := c.constraints.constantOf(e); ok {
		return symbolic.Const(value)
	}
	result := e.Substitute(func(name string) (symbolic.DimExpr, bool) {
		if slices.Contains(visiting, name) {
			return symbolic.DimExpr{}, false
		}
		resolved, found := c.ResolveSymbol(name)
		if !found || resolved.SymbolName() == name {
			return symbolic.DimExpr{}, false
		}
		return c.canonicalize(resolved, append(slices.Clone(visiting), name)), true
	})
	if value, ok := c.constraints.constantOf(result); ok {
		return symbolic.Const(value)
	}
	return result
}

// CanonicalizeRecord canonicalizes every dimension and data element of the record.
func (c *Context) CanonicalizeRecord(rec shapes.ShapeOrData) shapes.ShapeOrData {
	if rec.IsUnknownRank() {
		return rec
	}
	dims := rec.Shape()
	for axis, dim := range dims {
		dims[axis] = c.Canonicalize(dim)
	}
	data, hasData := rec.Data()
	if !hasData {
		return shapes.Make(dims...)
	}
	for ii, d := range data {
		data[ii] = c.Canonicalize(d)
	}
	return shapes.MakeWithData(dims, data)
}

// IsEqual returns whether a and b are known to be equal: either they have the same canonical form, or they
// are in the same class of equality constraints.
func (c *Context) IsEqual(a, b symbolic.DimExpr) bool {
	if a.Equal(b) || c.Canonicalize(a).Equal(c.Canonicalize(b)) {
		return true
	}
	rootA, foundA := c.constraints.classOf(a)
	rootB, foundB := c.constraints.classOf(b)
	return foundA && foundB && rootA == rootB
}

// SymbolFor returns a fresh symbol for the given axis of the value. The symbol is memoized: calling it again
// (e.g. when re-running the analysis) returns the same symbol.
func (c *Context) SymbolFor(v *ir.Value, axis int) symbolic.DimExpr {
	return c.SymbolForRole(v, axis, "")
}

// SymbolForRole is like SymbolFor, but allows more than one fresh symbol per value axis, one per role.
func (c *Context) SymbolForRole(v *ir.Value, axis int, role string) symbolic.DimExpr {
	k := symbolKey{value: v, axis: axis, role: role}
	if symbol, found := c.symbolMemo[k]; found {
		return symbol
	}
	symbol := c.NewSymbol()
	c.symbolMemo[k] = symbol
	return symbol
}

// NewSymbol returns a symbol never used before in this context. Prefer SymbolFor in inference rules:
// NewSymbol is not idempotent.
func (c *Context) NewSymbol() symbolic.DimExpr {
	for {
		symbol := c.symbols.Next()
		if !c.usedSymbols[symbol.SymbolName()] {
			c.usedSymbols[symbol.SymbolName()] = true
			return symbol
		}
	}
}

// ReserveSymbol marks the name as used, so that fresh symbols never collide with it.
func (c *Context) ReserveSymbol(name string) {
	c.usedSymbols[name] = true
}

// CurrentOp returns the operation being inferred, or nil if no rule is running.
func (c *Context) CurrentOp() *ir.Operation { return c.currentOp }

// Constraints returns the equality constraints that merged classes of expressions, in the order they
// were registered.
func (c *Context) Constraints() [][2]symbolic.DimExpr {
	return slices.Clone(c.constraints.pairs)
}

// Diagnostics returns the errors found during the analysis: conflicts and failed rules.
func (c *Context) Diagnostics() []error {
	return slices.Clone(c.diagnostics)
}

// AddDiagnostic records an error that didn't abort the analysis.
func (c *Context) AddDiagnostic(err error) {
	c.diagnostics = append(c.diagnostics, err)
}

// String returns a multi-line listing of the constraints.
func (c *Context) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %d records, %d constraints\n", c.Tag(), len(c.records), len(c.constraints.pairs))
	for _, pair := range c.constraints.pairs {
		fmt.Fprintf(&sb, "  %s == %s\n", pair[0], pair[1])
	}
	return sb.String()
}
