// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapeanalysis

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/gomlx/symshape/pkg/core/symbolic"
	"github.com/pkg/errors"
)

// SYMSHAPE_CONFIG is the environment variable with the default analysis configuration.
//
// See ParseConfig for the format.
const SYMSHAPE_CONFIG = "SYMSHAPE_CONFIG"

// DefaultMaxLoopIterations is the default bound on the fixed-point iterations of loop bodies.
const DefaultMaxLoopIterations = 8

// Config of the shape analysis.
type Config struct {
	// MaxLoopIterations bounds the number of times the body of a loop is re-inferred until its
	// loop-carried records stop changing.
	MaxLoopIterations int

	// Parallelism is the maximum number of graphs analyzed concurrently by AnalyzeAll.
	// If 0, it defaults to the number of CPUs; if -1 there is no limit.
	Parallelism int

	// SymbolPrefix is the prefix of fresh symbols, "S" by default.
	SymbolPrefix string
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		MaxLoopIterations: DefaultMaxLoopIterations,
		SymbolPrefix:      symbolic.DefaultSymbolPrefix,
	}
}

// ParseConfig takes a configuration string formatted as a comma-separated list of "key=value" options,
// applied on top of DefaultConfig.
//
// Keys:
//   - max_loop_iterations: int > 0.
//   - parallelism: int, 0 for the number of CPUs, -1 for no limit.
//   - symbol_prefix: non-empty string made of letters and "_".
//
// Example: "max_loop_iterations=16,parallelism=4".
func ParseConfig(config string) (Config, error) {
	cfg := DefaultConfig()
	for _, part := range strings.Split(config, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, found := strings.Cut(part, "=")
		if !found {
			return cfg, errors.Errorf("invalid configuration option %q, expected \"key=value\"", part)
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		switch key {
		case "max_loop_iterations":
			n, err := strconv.Atoi(value)
			if err != nil || n <= 0 {
				return cfg, errors.Errorf("invalid value %q for %q, it must be a positive integer", value, key)
			}
			cfg.MaxLoopIterations = n
		case "parallelism":
			n, err := strconv.Atoi(value)
			if err != nil || n < -1 {
				return cfg, errors.Errorf("invalid value %q for %q, it must be an integer >= -1", value, key)
			}
			cfg.Parallelism = n
		case "symbol_prefix":
			if value == "" || strings.IndexFunc(value, func(r rune) bool {
				return !(r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'))
			}) >= 0 {
				return cfg, errors.Errorf("invalid value %q for %q, it must be made of letters and \"_\"", value, key)
			}
			cfg.SymbolPrefix = value
		default:
			return cfg, errors.Errorf("unknown configuration option %q", key)
		}
	}
	return cfg, nil
}

// ConfigFromEnv parses the configuration in the SYMSHAPE_CONFIG environment variable.
// If it is not set, it returns DefaultConfig.
func ConfigFromEnv() (Config, error) {
	config, found := os.LookupEnv(SYMSHAPE_CONFIG)
	if !found {
		return DefaultConfig(), nil
	}
	cfg, err := ParseConfig(config)
	if err != nil {
		return cfg, errors.WithMessagef(err, "parsing $%s", SYMSHAPE_CONFIG)
	}
	return cfg, nil
}

// String implements fmt.Stringer, in the format accepted by ParseConfig.
func (c Config) String() string {
	return fmt.Sprintf("max_loop_iterations=%d,parallelism=%d,symbol_prefix=%s",
		c.MaxLoopIterations, c.Parallelism, c.SymbolPrefix)
}
