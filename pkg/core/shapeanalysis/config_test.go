// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapeanalysis

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	tests := []struct {
		name   string
		config string
		want   Config
		errMsg string
	}{
		{
			name:   "empty",
			config: "",
			want:   DefaultConfig(),
		},
		{
			name:   "all",
			config: "max_loop_iterations=16, parallelism=-1,symbol_prefix=D",
			want:   Config{MaxLoopIterations: 16, Parallelism: -1, SymbolPrefix: "D"},
		},
		{
			name:   "trailing_comma",
			config: "parallelism=4,",
			want:   Config{MaxLoopIterations: DefaultMaxLoopIterations, Parallelism: 4, SymbolPrefix: "S"},
		},
		{
			name:   "unknown_key",
			config: "fast=true",
			errMsg: "unknown configuration option",
		},
		{
			name:   "missing_value",
			config: "parallelism",
			errMsg: "key=value",
		},
		{
			name:   "bad_iterations",
			config: "max_loop_iterations=0",
			errMsg: "positive integer",
		},
		{
			name:   "bad_parallelism",
			config: "parallelism=-2",
			errMsg: ">= -1",
		},
		{
			name:   "bad_prefix",
			config: "symbol_prefix=S1",
			errMsg: "letters",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseConfig(tt.config)
			if tt.errMsg != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)

			// String() is parseable back.
			again, err := ParseConfig(got.String())
			require.NoError(t, err)
			require.Equal(t, got, again)
		})
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv(SYMSHAPE_CONFIG, "max_loop_iterations=3")
	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	require.Equal(t, 3, cfg.MaxLoopIterations)

	t.Setenv(SYMSHAPE_CONFIG, "bogus=1")
	_, err = ConfigFromEnv()
	require.Error(t, err)
	require.Contains(t, err.Error(), SYMSHAPE_CONFIG)
}
