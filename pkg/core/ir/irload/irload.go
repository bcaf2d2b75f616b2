// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package irload reads IR graphs from YAML documents.
//
// Each YAML document describes one graph:
//
//	name: main
//	inputs:
//	  - {name: x, dtype: float32, shape: [batch, 4]}
//	  - {name: y, dtype: float32, shape: ["?", 4]}
//	  - {name: z, dtype: float32}          # No shape: unknown rank.
//	ops:
//	  - kind: add
//	    operands: [x, y]
//	    results: [{name: sum, dtype: float32, shape: [batch, 4]}]
//	  - kind: reshape
//	    operands: [sum]
//	    attrs: {shape: [-1]}
//	    results: [{name: flat, dtype: float32}]
//	outputs: [flat]
//
// Dimensions are integers, symbol names (named dynamic axes) or "?" (unnamed dynamic axes).
// Operations with nested graphs list them under "regions", each with the same fields as a graph: operations
// inside a region can refer to values of the enclosing graphs by name.
package irload

import (
	"io"
	"os"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/symshape/pkg/core/ir"
	"github.com/gomlx/symshape/pkg/support/fsutil"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// GraphDef is the YAML description of a graph or region.
type GraphDef struct {
	Name    string     `yaml:"name"`
	Inputs  []ValueDef `yaml:"inputs"`
	Ops     []OpDef    `yaml:"ops"`
	Outputs []string   `yaml:"outputs"`
}

// ValueDef describes a graph input or an operation result.
type ValueDef struct {
	Name  string `yaml:"name"`
	DType string `yaml:"dtype"`

	// Shape is nil if the rank is unknown.
	Shape *[]any `yaml:"shape"`
}

// OpDef describes an operation.
type OpDef struct {
	Kind     string         `yaml:"kind"`
	Operands []string       `yaml:"operands"`
	Results  []ValueDef     `yaml:"results"`
	Attrs    map[string]any `yaml:"attrs"`
	Regions  []GraphDef     `yaml:"regions"`
}

// UnknownDim is the YAML spelling of an unnamed dynamic dimension.
const UnknownDim = "?"

// Load reads all YAML documents from r, one graph per document.
func Load(r io.Reader) ([]*ir.Graph, error) {
	decoder := yaml.NewDecoder(r)
	var graphs []*ir.Graph
	for {
		var def GraphDef
		err := decoder.Decode(&def)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed to decode YAML document #%d", len(graphs))
		}
		g, err := Build(&def)
		if err != nil {
			return nil, errors.WithMessagef(err, "document #%d", len(graphs))
		}
		graphs = append(graphs, g)
	}
	return graphs, nil
}

// LoadString is like Load, but reads from a string.
func LoadString(content string) ([]*ir.Graph, error) {
	return Load(strings.NewReader(content))
}

// LoadFile reads the graphs in the YAML file at path. Environment variables and a leading "~" in path are
// expanded.
func LoadFile(path string) ([]*ir.Graph, error) {
	path, err := fsutil.ExpandPath(path)
	if err != nil {
		return nil, err
	}
	exists, err := fsutil.FileExists(path)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errors.Errorf("graphs file %q not found", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %q", path)
	}
	defer func() { _ = f.Close() }()
	graphs, err := Load(f)
	if err != nil {
		return nil, errors.WithMessagef(err, "loading %q", path)
	}
	return graphs, nil
}

// Build creates the graph described by def.
func Build(def *GraphDef) (g *ir.Graph, err error) {
	name := def.Name
	if name == "" {
		name = "main"
	}
	g = ir.New(name)
	// Builder misuse inside ir panics: convert it to an error.
	err = exceptions.TryCatch[error](func() {
		buildErr := fillGraph(g, def, nil)
		if buildErr != nil {
			panic(buildErr)
		}
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

type scope struct {
	values map[string]*ir.Value
	parent *scope
}

func (s *scope) lookup(name string) (*ir.Value, bool) {
	for ; s != nil; s = s.parent {
		if v, found := s.values[name]; found {
			return v, true
		}
	}
	return nil, false
}

func fillGraph(g *ir.Graph, def *GraphDef, parent *scope) error {
	sc := &scope{values: make(map[string]*ir.Value), parent: parent}
	define := func(name string, v *ir.Value) error {
		if name == "" {
			return nil
		}
		if _, found := sc.values[name]; found {
			return errors.Errorf("graph %q: value %q defined more than once", g.Name(), name)
		}
		sc.values[name] = v
		return nil
	}

	for ii, inputDef := range def.Inputs {
		if inputDef.Name == "" {
			return errors.Errorf("graph %q: input #%d has no name", g.Name(), ii)
		}
		typ, err := parseType(inputDef)
		if err != nil {
			return errors.WithMessagef(err, "graph %q: input %q", g.Name(), inputDef.Name)
		}
		if err := define(inputDef.Name, g.AddInput(inputDef.Name, typ)); err != nil {
			return err
		}
	}

	for opIdx, opDef := range def.Ops {
		if opDef.Kind == "" {
			return errors.Errorf("graph %q: op #%d has no kind", g.Name(), opIdx)
		}
		operands := make([]*ir.Value, len(opDef.Operands))
		for ii, operandName := range opDef.Operands {
			v, found := sc.lookup(operandName)
			if !found {
				return errors.Errorf("graph %q: op #%d (%s): operand %q is not defined",
					g.Name(), opIdx, opDef.Kind, operandName)
			}
			operands[ii] = v
		}
		resultTypes := make([]ir.TensorType, len(opDef.Results))
		for ii, resultDef := range opDef.Results {
			typ, err := parseType(resultDef)
			if err != nil {
				return errors.WithMessagef(err, "graph %q: op #%d (%s): result #%d", g.Name(), opIdx, opDef.Kind, ii)
			}
			resultTypes[ii] = typ
		}
		regions := make([]*ir.Graph, len(opDef.Regions))
		for ii := range opDef.Regions {
			regionDef := &opDef.Regions[ii]
			regionName := regionDef.Name
			if regionName == "" {
				regionName = opDef.Kind + "_region"
			}
			regions[ii] = g.NewRegion(regionName)
			if err := fillGraph(regions[ii], regionDef, sc); err != nil {
				return err
			}
		}
		op := g.AddOp(ir.OpKind(opDef.Kind), operands, resultTypes, ir.Attributes(opDef.Attrs), regions...)
		for ii, resultDef := range opDef.Results {
			if resultDef.Name == "" {
				continue
			}
			op.SetResultName(ii, resultDef.Name)
			if err := define(resultDef.Name, op.Result(ii)); err != nil {
				return err
			}
		}
	}

	outputs := make([]*ir.Value, len(def.Outputs))
	for ii, outputName := range def.Outputs {
		v, found := sc.lookup(outputName)
		if !found {
			return errors.Errorf("graph %q: output %q is not defined", g.Name(), outputName)
		}
		outputs[ii] = v
	}
	g.SetOutputs(outputs...)
	return nil
}

func parseType(def ValueDef) (ir.TensorType, error) {
	dtype := dtypes.InvalidDType
	if def.DType != "" {
		var found bool
		dtype, found = lookupDType(def.DType)
		if !found {
			return ir.TensorType{}, errors.Errorf("unknown dtype %q", def.DType)
		}
	}
	if def.Shape == nil {
		return ir.UnknownRankType(dtype), nil
	}
	dims := make([]any, len(*def.Shape))
	for axis, dim := range *def.Shape {
		switch d := dim.(type) {
		case int:
			if d < 0 {
				return ir.TensorType{}, errors.Errorf("axis #%d has negative dimension %d, use %q for dynamic axes",
					axis, d, UnknownDim)
			}
			dims[axis] = d
		case string:
			if d == UnknownDim {
				dims[axis] = ir.DimDynamic
			} else {
				dims[axis] = d
			}
		default:
			return ir.TensorType{}, errors.Errorf("axis #%d: dimension %v (%T) must be an int or a name", axis, dim, dim)
		}
	}
	return ir.MakeDynamicType(dtype, dims...), nil
}

// lookupDType accepts the dtype names and aliases of dtypes.MapOfNames, case-insensitively.
func lookupDType(name string) (dtypes.DType, bool) {
	if dtype, found := dtypes.MapOfNames[name]; found {
		return dtype, true
	}
	for key, dtype := range dtypes.MapOfNames {
		if strings.EqualFold(key, name) {
			return dtype, true
		}
	}
	return dtypes.InvalidDType, false
}
