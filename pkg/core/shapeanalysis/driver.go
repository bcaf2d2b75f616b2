// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapeanalysis

import (
	"fmt"
	"slices"
	"time"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/symshape/pkg/core/ir"
	"github.com/gomlx/symshape/pkg/core/shapes"
	"github.com/gomlx/symshape/pkg/core/symbolic"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// InferFn is an inference rule: it reads the records of the operands of op from ctx, and writes the records
// of its results.
//
// It returns false if it could not infer the shapes of the results (e.g.: an operand has unknown rank): the
// driver then marks the results with shapes.UnknownRank(). Errors matching ErrUnresolvedValue or
// ErrConstraintConflict abort the pass; other errors are treated like returning false, and are kept as
// diagnostics.
//
// Rules must be idempotent: running it twice on the same context state must produce the same records.
// Use Context.SymbolFor to create fresh symbols.
type InferFn func(op *ir.Operation, ctx *Context) (bool, error)

// Rules is a lookup of inference rules per operation kind.
type Rules interface {
	Lookup(kind ir.OpKind) (InferFn, bool)
}

// PassReport summarizes an analysis pass.
type PassReport struct {
	Graph string

	// NumOps is the number of operations visited, including operations of nested regions (loop bodies
	// may be visited more than once).
	NumOps int

	// NumInferred is the number of visits whose rule succeeded.
	NumInferred int

	// NumFallback is the number of visits whose results were marked as unknown rank.
	NumFallback int

	// UnsupportedKinds are the sorted kinds without a rule.
	UnsupportedKinds []ir.OpKind

	// FailedKinds are the sorted kinds whose rule failed at least once.
	FailedKinds []ir.OpKind

	Elapsed time.Duration
}

func addKind(kinds []ir.OpKind, kind ir.OpKind) []ir.OpKind {
	idx, found := slices.BinarySearch(kinds, kind)
	if found {
		return kinds
	}
	return slices.Insert(kinds, idx, kind)
}

// String implements fmt.Stringer.
func (r *PassReport) String() string {
	return fmt.Sprintf("graph %q: %d ops visited, %d inferred, %d fallbacks (unsupported: %v, failed: %v)",
		r.Graph, r.NumOps, r.NumInferred, r.NumFallback, r.UnsupportedKinds, r.FailedKinds)
}

// Driver runs analysis passes over graphs.
type Driver struct {
	rules  Rules
	config Config
}

// NewDriver creates a Driver that uses the given rules.
func NewDriver(rules Rules, config Config) *Driver {
	return &Driver{rules: rules, config: config}
}

// Config returns the driver configuration.
func (d *Driver) Config() Config { return d.config }

// Analyze creates a new Context and runs one pass over the graph.
func (d *Driver) Analyze(g *ir.Graph) (*Context, *PassReport, error) {
	ctx := NewContext(d.config)
	report, err := d.Run(ctx, g)
	return ctx, report, err
}

// Run one analysis pass over the graph, using (and updating) the given context.
//
// Graph inputs without a record are seeded from their declared type: static dimensions become constants,
// named dynamic axes become symbols with their name, and unnamed dynamic axes become fresh symbols.
//
// Run can be called again on the same context after the graph is edited: records of values already seen are
// recomputed, and records of removed values are left behind.
func (d *Driver) Run(ctx *Context, g *ir.Graph) (report *PassReport, err error) {
	start := time.Now()
	report = &PassReport{Graph: g.Name()}
	prevDriver, prevReport := ctx.driver, ctx.report
	ctx.driver, ctx.report = d, report
	defer func() {
		ctx.driver, ctx.report = prevDriver, prevReport
		report.Elapsed = time.Since(start)
	}()

	if klog.V(1).Enabled() {
		klog.Infof("%s: analyzing graph %q (%d ops)", ctx.Tag(), g.Name(), g.NumOps())
	}
	if err = d.inferGraph(ctx, g); err != nil {
		err = errors.WithMessagef(err, "shape analysis of graph %q failed", g.Name())
		if klog.V(1).Enabled() {
			klog.Infof("%s: %v", ctx.Tag(), err)
		}
		return report, err
	}
	if klog.V(1).Enabled() {
		klog.Infof("%s: %s", ctx.Tag(), report)
	}
	return report, nil
}

// InferSubGraph runs the analysis over a nested region graph. It can only be called by a rule during a pass.
//
// Region arguments without a record are seeded from their declared type, like graph inputs, so rules
// should set the records of the arguments they know before calling it.
func (c *Context) InferSubGraph(g *ir.Graph) error {
	if c.driver == nil {
		return errors.Errorf("InferSubGraph(%q) called outside of an analysis pass", g.Name())
	}
	return c.driver.inferGraph(c, g)
}

func (d *Driver) inferGraph(ctx *Context, g *ir.Graph) error {
	d.seedInputs(ctx, g)
	order, err := g.TopologicalOrder()
	if err != nil {
		return err
	}
	for _, op := range order {
		if err := d.inferOp(ctx, op); err != nil {
			return err
		}
	}
	return nil
}

// seedInputs sets the records of the inputs of g that don't have one yet.
func (d *Driver) seedInputs(ctx *Context, g *ir.Graph) {
	inputs := g.Inputs()
	// Reserve the names of named axes first, so fresh symbols don't take them.
	for _, v := range inputs {
		for _, name := range v.Type().AxisNames {
			if name != "" {
				ctx.ReserveSymbol(name)
			}
		}
	}
	for _, v := range inputs {
		if ctx.HasShapeOrDataForValue(v) {
			continue
		}
		ctx.SetShapeOrDataForValue(v, RecordFromType(ctx, v))
	}
}

// RecordFromType returns the record of the value built from its declared type.
func RecordFromType(ctx *Context, v *ir.Value) shapes.ShapeOrData {
	typ := v.Type()
	if typ.UnknownRank {
		return shapes.UnknownRank()
	}
	dims := make([]symbolic.DimExpr, len(typ.Dimensions))
	for axis, dim := range typ.Dimensions {
		switch {
		case typ.AxisName(axis) != "":
			dims[axis] = symbolic.Symbol(typ.AxisName(axis))
		case dim == ir.DimDynamic:
			dims[axis] = ctx.SymbolFor(v, axis)
		default:
			dims[axis] = symbolic.Const(dim)
		}
	}
	return shapes.Make(dims...)
}

func (d *Driver) inferOp(ctx *Context, op *ir.Operation) error {
	report := ctx.report
	report.NumOps++
	kind := op.Kind()
	fn, found := d.rules.Lookup(kind)
	if !found {
		report.UnsupportedKinds = addKind(report.UnsupportedKinds, kind)
		d.fallback(ctx, op)
		return nil
	}

	prevOp := ctx.currentOp
	ctx.currentOp = op
	var ok bool
	var ruleErr error
	panicValue := exceptions.TryCatch[any](func() { ok, ruleErr = fn(op, ctx) })
	ctx.currentOp = prevOp

	if panicValue != nil {
		panicErr, isError := panicValue.(error)
		if !isError {
			panicErr = errors.Errorf("%v", panicValue)
		}
		klog.Warningf("%s: inference rule for %s panicked: %+v", ctx.Tag(), op, panicErr)
		err := errors.Wrapf(ErrRulePanic, "%s: %v", op, panicErr)
		ctx.AddDiagnostic(err)
		report.FailedKinds = addKind(report.FailedKinds, kind)
		return err
	}
	if ruleErr != nil {
		if IsFatal(ruleErr) {
			if errors.Is(ruleErr, ErrUnresolvedValue) {
				ctx.AddDiagnostic(ruleErr)
			}
			report.FailedKinds = addKind(report.FailedKinds, kind)
			return errors.WithMessagef(ruleErr, "inferring %s", op)
		}
		ctx.AddDiagnostic(errors.WithMessagef(ruleErr, "inferring %s", op))
		ok = false
	}
	if !ok {
		report.FailedKinds = addKind(report.FailedKinds, kind)
		if klog.V(2).Enabled() {
			klog.Infof("%s: could not infer %s, results marked unknown", ctx.Tag(), op)
		}
		d.fallback(ctx, op)
		return nil
	}

	report.NumInferred++
	for _, result := range op.Results() {
		if !ctx.HasShapeOrDataForValue(result) {
			ctx.SetShapeOrDataForValue(result, shapes.UnknownRank())
		}
		if klog.V(2).Enabled() {
			rec, _ := ctx.GetShapeOrDataForValue(result)
			klog.Infof("%s: %s: %s -> %s", ctx.Tag(), op.Kind(), result.Name(), rec)
		}
	}
	return nil
}

// fallback marks all results of op as unknown rank: the default rule.
func (d *Driver) fallback(ctx *Context, op *ir.Operation) {
	ctx.report.NumFallback++
	for _, result := range op.Results() {
		ctx.SetShapeOrDataForValue(result, shapes.UnknownRank())
	}
}
