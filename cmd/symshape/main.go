// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// symshape runs the symbolic shape analysis over graphs described in YAML files (see package irload), and
// reports the inferred shapes.
//
// Usage:
//
//	symshape [flags] <graphs.yaml> [<more_graphs.yaml> ...]
//
// The analysis can be configured with -config or with the environment variable SYMSHAPE_CONFIG, see
// shapeanalysis.ParseConfig.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/gomlx/symshape/pkg/core/ir"
	"github.com/gomlx/symshape/pkg/core/ir/irload"
	"github.com/gomlx/symshape/pkg/core/shapeanalysis"
	"github.com/gomlx/symshape/pkg/core/shapeinference"
	"github.com/janpfeifer/must"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

var (
	flagConfig = flag.String("config", "",
		fmt.Sprintf("Analysis configuration, a comma-separated list of key=value options. If empty, $%s is used.",
			shapeanalysis.SYMSHAPE_CONFIG))
	flagSummary     = flag.Bool("summary", true, "Display a summary of the analysis of each graph.")
	flagValues      = flag.Bool("values", false, "List the inferred shape of every value. Unknown ones are highlighted.")
	flagConstraints = flag.Bool("constraints", false, "List the equality constraints found in each graph.")
	flagDiagnostics = flag.Bool("diagnostics", true, "List the operations that could not be inferred.")
	flagRules       = flag.Bool("rules", false, "List the operation kinds with an inference rule, and exit.")
	flagProgress    = flag.Bool("progress", false, "Display a progress bar while analyzing.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	if *flagRules {
		listRules(shapeinference.Default())
		return
	}
	args := flag.Args()
	if len(args) == 0 {
		klog.Errorf("Missing YAML file with the graphs to analyze. See 'symshape -help'")
		os.Exit(1)
	}

	config := must.M1(shapeanalysis.ConfigFromEnv())
	if *flagConfig != "" {
		var err error
		config, err = shapeanalysis.ParseConfig(*flagConfig)
		if err != nil {
			klog.Fatalf("Invalid -config=%q: %+v", *flagConfig, err)
		}
	}
	klog.V(1).Infof("Analysis configuration: %s", config)

	var graphs []*ir.Graph
	for _, path := range args {
		graphs = append(graphs, must.M1(irload.LoadFile(path))...)
	}

	var onDone func(shapeanalysis.Result)
	if *flagProgress {
		bar := progressbar.NewOptions(len(graphs),
			progressbar.OptionSetDescription("analyzing"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetTheme(progressbar.ThemeASCII),
			progressbar.OptionShowCount(),
			progressbar.OptionSetItsString("graphs"),
			progressbar.OptionShowIts(),
			progressbar.OptionClearOnFinish(),
		)
		onDone = func(shapeanalysis.Result) { _ = bar.Add(1) }
	}
	results, err := shapeanalysis.AnalyzeAll(shapeinference.Default(), config, graphs, onDone)

	if *flagSummary {
		reportSummary(results)
	}
	for _, result := range results {
		// Records of failed graphs are incomplete, but their diagnostics name the failure.
		if result.Err == nil {
			if *flagValues {
				reportValues(result)
			}
			if *flagConstraints {
				reportConstraints(result)
			}
		}
		if *flagDiagnostics {
			reportDiagnostics(result)
		}
	}
	if err != nil {
		klog.Errorf("Analysis failed: %+v", err)
		os.Exit(1)
	}
}
