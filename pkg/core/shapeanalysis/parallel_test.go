// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapeanalysis

import (
	"fmt"
	"testing"

	"github.com/gomlx/symshape/pkg/core/ir"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestAnalyzeAll(t *testing.T) {
	for _, parallelism := range []int{-1, 0, 1, 2} {
		t.Run(fmt.Sprintf("parallelism=%d", parallelism), func(t *testing.T) {
			var graphs []*ir.Graph
			for ii := range 5 {
				g := ir.New(fmt.Sprintf("g%d", ii))
				x := g.AddInput("x", f32("n", ii+1))
				if ii == 3 {
					x = g.AddOp("conflict", []*ir.Value{x}, []ir.TensorType{f32(4)}, nil).Result(0)
				}
				g.SetOutputs(unary(g, "double", x))
				graphs = append(graphs, g)
			}

			var done []string
			cfg := DefaultConfig()
			cfg.Parallelism = parallelism
			results, err := AnalyzeAll(rules, cfg, graphs, func(r Result) {
				done = append(done, r.Graph.Name())
			})
			require.Error(t, err)
			require.Len(t, multierr.Errors(err), 1)
			require.True(t, errors.Is(err, ErrConstraintConflict))
			require.Len(t, done, len(graphs))
			require.ElementsMatch(t, []string{"g0", "g1", "g2", "g3", "g4"}, done)

			require.Len(t, results, len(graphs))
			for ii, r := range results {
				require.Equal(t, graphs[ii], r.Graph)
				require.NotNil(t, r.Context)
				require.NotNil(t, r.Report)
				if ii == 3 {
					require.Error(t, r.Err)
					continue
				}
				require.NoError(t, r.Err)
				rec, err := r.Context.GetShapeOrDataForValue(r.Graph.Outputs()[0])
				require.NoError(t, err)
				require.Equal(t, fmt.Sprintf("[Mul(2, n), %d]", 2*(ii+1)), rec.String())
			}
		})
	}
}
