// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package irload

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/symshape/pkg/core/ir"
	"github.com/stretchr/testify/require"
)

const twoGraphs = `
name: main
inputs:
  - {name: x, dtype: float32, shape: [batch, 4]}
  - {name: y, dtype: Float32, shape: ["?", 4]}
  - {name: z, dtype: int64}
  - {name: s, dtype: int64, shape: []}
ops:
  - kind: add
    operands: [x, y]
    results: [{name: sum, dtype: float32, shape: [batch, 4]}]
  - kind: reshape
    operands: [sum]
    attrs: {shape: [-1], allowzero: false}
    results: [{name: flat, dtype: float32}]
outputs: [flat]
---
name: control
inputs:
  - {name: cond, dtype: bool, shape: []}
  - {name: x, dtype: float32, shape: [n]}
ops:
  - kind: if
    operands: [cond]
    results: [{name: out, dtype: float32}]
    regions:
      - name: then
        ops:
          - kind: exp
            operands: [x]
            results: [{name: e, dtype: float32, shape: [n]}]
        outputs: [e]
      - name: else
        outputs: [x]
outputs: [out]
`

func TestLoad(t *testing.T) {
	graphs, err := LoadString(twoGraphs)
	require.NoError(t, err)
	require.Len(t, graphs, 2)

	g := graphs[0]
	require.Equal(t, "main", g.Name())
	inputs := g.Inputs()
	require.Len(t, inputs, 4)
	require.Equal(t, ir.MakeDynamicType(dtypes.Float32, "batch", 4), inputs[0].Type())
	require.Equal(t, ir.MakeType(dtypes.Float32, ir.DimDynamic, 4), inputs[1].Type())
	require.True(t, inputs[2].Type().UnknownRank)
	require.Equal(t, dtypes.Int64, inputs[2].Type().DType)
	require.Equal(t, 0, inputs[3].Type().Rank())

	ops := g.Ops()
	require.Len(t, ops, 2)
	require.Equal(t, ir.OpKind("add"), ops[0].Kind())
	require.Equal(t, "sum", ops[0].Result(0).Name())
	require.Equal(t, ops[0].Result(0), ops[1].Operand(0))
	shape, found := ops[1].AttrInts("shape")
	require.True(t, found)
	require.Equal(t, []int64{-1}, shape)
	require.False(t, ops[1].AttrBool("allowzero", true))
	require.Equal(t, []*ir.Value{ops[1].Result(0)}, g.Outputs())

	control := graphs[1]
	ifOp := control.Ops()[0]
	regions := ifOp.Regions()
	require.Len(t, regions, 2)
	require.Equal(t, "then", regions[0].Name())
	thenOps := regions[0].Ops()
	require.Len(t, thenOps, 1)
	require.Equal(t, control.Inputs()[1], thenOps[0].Operand(0))
	require.Equal(t, []*ir.Value{control.Inputs()[1]}, regions[1].Outputs())
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{
			name:    "undefined_operand",
			content: "ops: [{kind: log, operands: [x]}]",
			errMsg:  `operand "x" is not defined`,
		},
		{
			name:    "undefined_output",
			content: "outputs: [y]",
			errMsg:  `output "y" is not defined`,
		},
		{
			name:    "unknown_dtype",
			content: "inputs: [{name: x, dtype: float99, shape: [2]}]",
			errMsg:  "unknown dtype",
		},
		{
			name:    "negative_dim",
			content: "inputs: [{name: x, dtype: float32, shape: [-1]}]",
			errMsg:  "negative dimension",
		},
		{
			name:    "bad_dim",
			content: "inputs: [{name: x, dtype: float32, shape: [1.5]}]",
			errMsg:  "must be an int or a name",
		},
		{
			name:    "duplicate",
			content: "inputs: [{name: x, dtype: float32}, {name: x, dtype: float32}]",
			errMsg:  "more than once",
		},
		{
			name:    "missing_kind",
			content: "ops: [{operands: []}]",
			errMsg:  "has no kind",
		},
		{
			name: "region_value_not_visible",
			content: `
inputs: [{name: x, dtype: float32}]
ops:
  - kind: while
    operands: [x]
    regions: [{ops: [{kind: exp, operands: [x], results: [{name: inner}]}], outputs: [inner]}]
  - kind: log
    operands: [inner]
`,
			errMsg: `operand "inner" is not defined`,
		},
		{
			name:    "invalid_yaml",
			content: "ops: [",
			errMsg:  "failed to decode",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadString(tt.content)
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graphs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(twoGraphs), 0o644))
	graphs, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, graphs, 2)

	t.Setenv("SYMSHAPE_TEST_DIR", filepath.Dir(path))
	graphs, err = LoadFile("$SYMSHAPE_TEST_DIR/graphs.yaml")
	require.NoError(t, err)
	require.Len(t, graphs, 2)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "not found")
}
