// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.
package tuning

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/captune-project/captune/pkg/utils/consts"
)

// GetLastCheckpoint returns the path of the newest valid checkpoint
// subdirectory under outputDir, following the external trainer's
// checkpoint-<step> naming convention. A checkpoint is valid once it
// contains the trainer state file. Returns "" when no valid checkpoint
// exists.
func GetLastCheckpoint(outputDir string) (string, error) {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}

	lastStep := -1
	last := ""
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), consts.CheckpointDirPrefix) {
			continue
		}
		step, err := strconv.Atoi(strings.TrimPrefix(entry.Name(), consts.CheckpointDirPrefix))
		if err != nil {
			continue
		}
		stateFile := filepath.Join(outputDir, entry.Name(), consts.TrainerStateFile)
		if _, err := os.Stat(stateFile); err != nil {
			continue
		}
		if step > lastStep {
			lastStep = step
			last = filepath.Join(outputDir, entry.Name())
		}
	}
	return last, nil
}

// stagingFiles are written into the output directory by the launcher before
// the first optimizer step runs. They carry no training progress, so a run
// that died before its first checkpoint can restart without overwrite.
var stagingFiles = map[string]bool{
	trainDataFile:             true,
	consts.TrainingConfigFile: true,
}

// hasPriorArtifacts reports whether dir holds entries beyond the launcher's
// own staging files.
func hasPriorArtifacts(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if !stagingFiles[entry.Name()] {
			return true
		}
	}
	return false
}
