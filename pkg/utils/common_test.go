// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.
package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/captune-project/captune/pkg/utils/consts"
)

func TestBuildCmdStr(t *testing.T) {
	tests := []struct {
		name        string
		baseCommand string
		runParams   []map[string]string
		expected    string
	}{
		{
			name:        "NoParams",
			baseCommand: "accelerate launch",
			expected:    "accelerate launch",
		},
		{
			name:        "SingleMap",
			baseCommand: "accelerate launch",
			runParams: []map[string]string{
				{"num_processes": "4", "gpu_ids": "all"},
			},
			expected: "accelerate launch --gpu_ids=all --num_processes=4",
		},
		{
			name:        "FlagWithoutValue",
			baseCommand: "python tune.py",
			runParams: []map[string]string{
				{"overwrite": ""},
			},
			expected: "python tune.py --overwrite",
		},
		{
			name:        "MultipleMapsInOrder",
			baseCommand: "accelerate launch",
			runParams: []map[string]string{
				{"num_machines": "1"},
				{"model_max_length": "1200"},
			},
			expected: "accelerate launch --num_machines=1 --model_max_length=1200",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, BuildCmdStr(tt.baseCommand, tt.runParams...))
		})
	}
}

func TestWorldSizeFromEnv(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		expected  int
		expectErr bool
	}{
		{
			name:     "Unset",
			value:    "",
			expected: 1,
		},
		{
			name:     "Four",
			value:    "4",
			expected: 4,
		},
		{
			name:      "NotANumber",
			value:     "four",
			expectErr: true,
		},
		{
			name:      "Zero",
			value:     "0",
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value == "" {
				t.Setenv(consts.WorldSizeEnvVar, "")
			} else {
				t.Setenv(consts.WorldSizeEnvVar, tt.value)
			}
			worldSize, err := WorldSizeFromEnv()
			if tt.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, worldSize)
		})
	}
}

func TestMergeConfigMaps(t *testing.T) {
	base := map[string]string{"a": "1", "b": "2"}
	override := map[string]string{"b": "3", "c": "4"}

	merged := MergeConfigMaps(base, override)

	assert.Equal(t, map[string]string{"a": "1", "b": "3", "c": "4"}, merged)
	assert.Equal(t, "2", base["b"], "base map should not be mutated")
}
