// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.
package utils

import (
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/captune-project/captune/pkg/utils/consts"
)

func Contains(s []string, e string) bool {
	for _, a := range s {
		if a == e {
			return true
		}
	}
	return false
}

func MergeConfigMaps(baseMap, overrideMap map[string]string) map[string]string {
	merged := make(map[string]string)
	for k, v := range baseMap {
		merged[k] = v
	}

	// Override with values from overrideMap
	for k, v := range overrideMap {
		merged[k] = v
	}

	return merged
}

// SortedKeys returns the keys of m in lexical order.
func SortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// BuildCmdStr appends each run parameter to the base command as --key=value
// flags. Parameters are appended in lexical key order so the assembled
// command is deterministic.
func BuildCmdStr(baseCommand string, runParams ...map[string]string) string {
	updatedBaseCommand := baseCommand
	for _, runParam := range runParams {
		for _, key := range SortedKeys(runParam) {
			if runParam[key] == "" {
				updatedBaseCommand = fmt.Sprintf("%s --%s", updatedBaseCommand, key)
			} else {
				updatedBaseCommand = fmt.Sprintf("%s --%s=%s", updatedBaseCommand, key, runParam[key])
			}
		}
	}
	return updatedBaseCommand
}

func ShellCmd(command string) []string {
	return []string{
		"/bin/sh",
		"-c",
		command,
	}
}

// WorldSizeFromEnv reads the process count set by the distributed launcher.
// Defaults to 1 when the variable is unset or empty.
func WorldSizeFromEnv() (int, error) {
	raw := os.Getenv(consts.WorldSizeEnvVar)
	if raw == "" {
		return 1, nil
	}
	worldSize, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s %q: %v", consts.WorldSizeEnvVar, raw, err)
	}
	if worldSize < 1 {
		return 0, fmt.Errorf("invalid %s %d, must be at least 1", consts.WorldSizeEnvVar, worldSize)
	}
	return worldSize, nil
}
