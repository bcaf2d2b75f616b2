// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"testing"

	"github.com/gomlx/symshape/pkg/core/ir/irload"
	"github.com/gomlx/symshape/pkg/core/shapeanalysis"
	"github.com/gomlx/symshape/pkg/core/shapeinference"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testGraphs = `
name: partial
inputs:
  - {name: x, dtype: float32, shape: [batch, 4]}
ops:
  - kind: log
    operands: [x]
    results: [{name: y, dtype: float32}]
  - kind: mystery
    operands: [y]
    results: [{name: z, dtype: float32}]
outputs: [z]
---
name: conflict
inputs:
  - {name: a, dtype: float32, shape: [2, 3]}
  - {name: b, dtype: float32, shape: [3, 3]}
ops:
  - kind: add
    operands: [a, b]
    results: [{name: c, dtype: float32}]
outputs: [c]
`

func TestReports(t *testing.T) {
	graphs, err := irload.LoadString(testGraphs)
	require.NoError(t, err)
	results, err := shapeanalysis.AnalyzeAll(shapeinference.Default(), shapeanalysis.DefaultConfig(), graphs, nil)
	require.ErrorIs(t, err, shapeanalysis.ErrConstraintConflict)
	require.Len(t, results, 2)

	summary := summaryRows(results)
	require.Len(t, summary, 2)
	assert.Equal(t, []string{"partial", "2", "1", "1", "0"}, summary[0].cells[:5])
	assert.Equal(t, "partial", summary[0].cells[6])
	assert.False(t, summary[0].isRed)
	assert.True(t, summary[1].isRed)

	values := valueRows(results[0].Context, results[0].Graph, "")
	require.Len(t, values, 3)
	assert.Equal(t, []string{"x", "input"}, values[0].cells[:2])
	assert.Equal(t, "[batch, 4]", values[1].cells[3])
	assert.False(t, values[1].isRed)
	assert.Equal(t, "<unknown-rank>", values[2].cells[3])
	assert.True(t, values[2].isRed)

	diagnostics := diagnosticRows(results[0])
	require.Len(t, diagnostics, 1)
	assert.Equal(t, "mystery", diagnostics[0].cells[0])

	// The conflict that failed the analysis is listed with both values.
	diagnostics = diagnosticRows(results[1])
	require.Len(t, diagnostics, 1)
	assert.Contains(t, diagnostics[0].cells[1], "conflicting equality constraint")
	assert.Contains(t, diagnostics[0].cells[1], "(=2)")
	assert.Contains(t, diagnostics[0].cells[1], "(=3)")
}
