// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapeanalysis

import (
	"runtime"

	"github.com/gomlx/symshape/internal/workerspool"
	"github.com/gomlx/symshape/pkg/core/ir"
	"go.uber.org/multierr"
)

// Result of the analysis of one graph by AnalyzeAll.
type Result struct {
	Graph   *ir.Graph
	Context *Context
	Report  *PassReport
	Err     error
}

// AnalyzeAll analyzes independent graphs in parallel, each with its own Context, using at most
// config.Parallelism goroutines.
//
// It returns one Result per graph, in the same order, and the errors of all failed analyses combined.
// The graphs must not share values or be modified during the analysis.
//
// If onDone is not nil, it is called (sequentially) every time an analysis finishes.
func AnalyzeAll(rules Rules, config Config, graphs []*ir.Graph, onDone func(Result)) ([]Result, error) {
	parallelism := config.Parallelism
	if parallelism == 0 {
		parallelism = runtime.NumCPU()
	}
	pool := workerspool.NewWithParallelism(parallelism)
	driver := NewDriver(rules, config)
	results := make([]Result, len(graphs))
	done := make(chan int, len(graphs))
	go func() {
		pool.ForEach(len(graphs), func(i int) {
			ctx, report, err := driver.Analyze(graphs[i])
			results[i] = Result{Graph: graphs[i], Context: ctx, Report: report, Err: err}
			done <- i
		})
		close(done)
	}()
	for i := range done {
		if onDone != nil {
			onDone(results[i])
		}
	}

	var err error
	for _, result := range results {
		err = multierr.Append(err, result.Err)
	}
	return results, err
}
