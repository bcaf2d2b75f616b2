// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/symshape/pkg/core/ir"
	"github.com/gomlx/symshape/pkg/core/shapeanalysis"
	"github.com/gomlx/symshape/pkg/core/shapeinference"
	"github.com/gomlx/symshape/pkg/support/sets"
)

// row of a report, and whether it should be highlighted.
type row struct {
	cells []string
	isRed bool
}

func printTable(title string, header []string, rows []row, alignments ...lipgloss.Position) {
	fmt.Println(titleStyle.Render(title))
	table := newTable(alignments...)
	table.Table.Headers(header...)
	for _, r := range rows {
		table.Row(r.isRed, r.cells...)
	}
	fmt.Println(table.Table.Render())
}

func summaryRows(results []shapeanalysis.Result) []row {
	rows := make([]row, 0, len(results))
	for _, result := range results {
		report := result.Report
		status := "ok"
		switch {
		case result.Err != nil:
			status = result.Err.Error()
		case report.NumFallback > 0:
			status = "partial"
		}
		var numConstraints int
		if result.Context != nil {
			numConstraints = len(result.Context.Constraints())
		}
		rows = append(rows, row{
			cells: []string{
				result.Graph.Name(),
				humanize.Comma(int64(report.NumOps)),
				humanize.Comma(int64(report.NumInferred)),
				humanize.Comma(int64(report.NumFallback)),
				humanize.Comma(int64(numConstraints)),
				report.Elapsed.Round(time.Microsecond).String(),
				status,
			},
			isRed: result.Err != nil,
		})
	}
	return rows
}

func reportSummary(results []shapeanalysis.Result) {
	printTable("Summary",
		[]string{"Graph", "Ops", "Inferred", "Fallbacks", "Constraints", "Elapsed", "Status"},
		summaryRows(results), lipgloss.Left, lipgloss.Right, lipgloss.Right, lipgloss.Right, lipgloss.Right,
		lipgloss.Right, lipgloss.Left)
}

// valueRows lists the values of the graph (inputs first, then the results of each operation, with the values
// of nested regions right after the operation owning them) with their records.
func valueRows(ctx *shapeanalysis.Context, g *ir.Graph, indent string) []row {
	var rows []row
	add := func(v *ir.Value, producer string) {
		record := "<missing>"
		canonical := ""
		isRed := true
		if rec, err := ctx.GetShapeOrDataForValue(v); err == nil {
			record = rec.String()
			isRed = rec.IsUnknownRank()
			if c := ctx.CanonicalizeRecord(rec); !c.Equal(rec) {
				canonical = c.String()
			}
		}
		rows = append(rows, row{
			cells: []string{indent + v.Name(), producer, v.Type().String(), record, canonical},
			isRed: isRed,
		})
	}
	for _, input := range g.Inputs() {
		add(input, "input")
	}
	for _, op := range g.Ops() {
		for _, result := range op.Results() {
			add(result, op.Kind().String())
		}
		for _, region := range op.Regions() {
			rows = append(rows, valueRows(ctx, region, indent+"  ")...)
		}
	}
	return rows
}

func reportValues(result shapeanalysis.Result) {
	printTable(fmt.Sprintf("Values of %q", result.Graph.Name()),
		[]string{"Value", "Producer", "Declared", "Inferred", "Canonical"},
		valueRows(result.Context, result.Graph, ""), lipgloss.Left)
}

func reportConstraints(result shapeanalysis.Result) {
	ctx := result.Context
	constraints := ctx.Constraints()
	if len(constraints) == 0 {
		return
	}
	rows := make([]row, len(constraints))
	for ii, pair := range constraints {
		rows[ii] = row{cells: []string{pair[0].String(), pair[1].String(), ctx.Canonicalize(pair[0]).String()}}
	}
	printTable(fmt.Sprintf("Constraints of %q", result.Graph.Name()),
		[]string{"Expression", "Equal to", "Canonical"}, rows, lipgloss.Right, lipgloss.Left)
}

func diagnosticRows(result shapeanalysis.Result) []row {
	var rows []row
	for _, kind := range result.Report.UnsupportedKinds {
		rows = append(rows, row{cells: []string{kind.String(), "no inference rule"}, isRed: true})
	}
	for _, err := range result.Context.Diagnostics() {
		// Only the first line: errors with stack traces are printed with klog.
		msg, _, _ := strings.Cut(err.Error(), "\n")
		rows = append(rows, row{cells: []string{"", msg}})
	}
	return rows
}

func reportDiagnostics(result shapeanalysis.Result) {
	rows := diagnosticRows(result)
	if len(rows) == 0 {
		return
	}
	printTable(fmt.Sprintf("Diagnostics of %q", result.Graph.Name()),
		[]string{"Operation", "Message"}, rows, lipgloss.Left)
}

// listRules prints the operation kinds with a rule, and whether they have an in-place variant.
func listRules(registry *shapeinference.Registry) {
	kinds := sets.MakeWith(registry.SupportedKinds()...)
	var rows []row
	for _, kind := range sets.Sorted(kinds) {
		if kind.IsInplace() && kinds.Has(kind.NonInplace()) {
			continue
		}
		inplace := ""
		if kinds.Has(kind.Inplace()) {
			inplace = kind.Inplace().String()
		}
		rows = append(rows, row{cells: []string{kind.String(), inplace}})
	}
	printTable(fmt.Sprintf("%s operation kinds with inference rules", humanize.Comma(int64(registry.Len()))),
		[]string{"Kind", "In-place"}, rows, lipgloss.Left)
}
