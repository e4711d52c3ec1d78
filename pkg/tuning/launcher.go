// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.
package tuning

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/captune-project/captune/pkg/config"
	"github.com/captune-project/captune/pkg/dataset"
	"github.com/captune-project/captune/pkg/loader"
	"github.com/captune-project/captune/pkg/utils"
	"github.com/captune-project/captune/pkg/utils/consts"
	"gopkg.in/yaml.v2"
	"k8s.io/klog/v2"
)

const (
	// TuningFile is the entry script of the external training runtime.
	TuningFile = "/workspace/tfs/fine_tuning.py"

	trainDataFile = "train_data.jsonl"
)

// TrainJob carries everything the external trainer needs for one run.
type TrainJob struct {
	Model                *loader.ModelHandle
	Dataset              *dataset.Dataset
	OutputDir            string
	Lora                 config.LoraConfig
	Args                 config.TrainingArguments
	ResumeFromCheckpoint string
	WorldSize            int
}

// Trainer is the external collaborator that owns the optimization loop:
// forward/backward passes, optimizer steps, learning-rate scheduling,
// distributed gradient synchronization and periodic checkpointing. Its
// failures surface unmodified.
type Trainer interface {
	Train(ctx context.Context, job *TrainJob) error
	// SaveState persists the trainer's step counters and RNG state under
	// outputDir for potential future resumption.
	SaveState(outputDir string) error
}

// LaunchTrainer runs the training runtime as an external process, assembling
// an accelerate launch command from the preset base command and the resolved
// training config.
type LaunchTrainer struct {
	// TuningFile overrides the runtime entry script. Defaults to TuningFile.
	TuningFile string
	// ConfigTemplate points at a user-supplied training config used instead
	// of the generated one. Validated against the known schema before launch.
	ConfigTemplate string
	// Env is appended to the launched process environment.
	Env []string
}

func NewLaunchTrainer() *LaunchTrainer {
	return &LaunchTrainer{}
}

func (l *LaunchTrainer) Train(ctx context.Context, job *TrainJob) error {
	if err := writeTrainData(job.OutputDir, job.Dataset); err != nil {
		return err
	}
	configPath, raw, err := l.resolveTrainingConfig(job)
	if err != nil {
		return err
	}

	command := l.buildCommand(job, configPath)
	klog.InfoS("launching trainer", "model", job.Model.BaseModel, "worldSize", job.WorldSize)
	klog.V(2).Infof("trainer command: %s", command)

	// The runtime also gets every resolved setting as a section-prefixed env
	// var, so sidecar tooling can read single values without parsing YAML.
	prefixedEnv, err := prefixedConfigEnv(raw)
	if err != nil {
		return err
	}

	shell := utils.ShellCmd(command)
	cmd := exec.CommandContext(ctx, shell[0], shell[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(append(os.Environ(), prefixedEnv...), l.Env...)
	return cmd.Run()
}

// resolveTrainingConfig writes the generated training config, or validates
// and copies the user-supplied template when one is configured.
func (l *LaunchTrainer) resolveTrainingConfig(job *TrainJob) (string, []byte, error) {
	if l.ConfigTemplate == "" {
		return writeTrainingConfig(job)
	}

	raw, err := os.ReadFile(l.ConfigTemplate)
	if err != nil {
		return "", nil, err
	}
	if err := config.ValidateTrainingConfigSchema(string(raw)); err != nil {
		return "", nil, fmt.Errorf("invalid training config template %s: %w", l.ConfigTemplate, err)
	}
	configPath := filepath.Join(job.OutputDir, consts.TrainingConfigFile)
	if err := os.WriteFile(configPath, raw, 0644); err != nil {
		return "", nil, err
	}
	return configPath, raw, nil
}

// prefixedConfigEnv flattens the training config into KEY=value pairs with
// per-section prefixes, in deterministic order.
func prefixedConfigEnv(raw []byte) ([]string, error) {
	parsed, err := config.ParseTrainingConfig(string(raw))
	if err != nil {
		return nil, err
	}
	prefixed, err := config.AddPrefixesToConfigMap(parsed)
	if err != nil {
		return nil, err
	}
	env := make([]string, 0, len(prefixed))
	for _, key := range utils.SortedKeys(prefixed) {
		env = append(env, fmt.Sprintf("%s=%s", key, prefixed[key]))
	}
	return env, nil
}

// buildCommand assembles: accelerate launch <TORCH_PARAMS> fine_tuning.py <MODEL_PARAMS>
func (l *LaunchTrainer) buildCommand(job *TrainJob, configPath string) string {
	// The process count always reflects the resolved world size, overriding
	// whatever the preset carries.
	torchParams := utils.MergeConfigMaps(job.Model.Preset.TorchRunParams, map[string]string{
		"num_processes": fmt.Sprintf("%d", job.WorldSize),
	})
	torchCommand := utils.BuildCmdStr(job.Model.Preset.BaseCommand, torchParams, job.Model.Preset.TorchRunRdzvParams)

	tuningFile := l.TuningFile
	if tuningFile == "" {
		tuningFile = TuningFile
	}
	modelParams := utils.MergeConfigMaps(job.Model.Preset.ModelRunParams, map[string]string{
		"training_config": configPath,
		"train_data":      filepath.Join(job.OutputDir, trainDataFile),
	})
	return torchCommand + " " + utils.BuildCmdStr(tuningFile, modelParams)
}

// SaveState copies the trainer state out of the last checkpoint into the
// output root, matching where a resumed run looks for it.
func (l *LaunchTrainer) SaveState(outputDir string) error {
	last, err := GetLastCheckpoint(outputDir)
	if err != nil {
		return err
	}
	if last == "" {
		return fmt.Errorf("no checkpoint with %s found under %s", consts.TrainerStateFile, outputDir)
	}
	state, err := os.ReadFile(filepath.Join(last, consts.TrainerStateFile))
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outputDir, consts.TrainerStateFile), state, 0644)
}

func writeTrainData(outputDir string, ds *dataset.Dataset) error {
	f, err := os.Create(filepath.Join(outputDir, trainDataFile))
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, record := range ds.Encoded() {
		if err := enc.Encode(record); err != nil {
			return err
		}
	}
	return nil
}

func writeTrainingConfig(job *TrainJob) (string, []byte, error) {
	cfg := config.Config{
		TrainingConfig: config.TrainingConfig{
			ModelConfig: &config.ModelConfig{
				PretrainedModelNameOrPath: &job.Model.BaseModel,
				TorchDtype:                &job.Model.TorchDtype,
				PadTokenID:                &job.Model.PadTokenID,
				BosTokenID:                &job.Model.BOSTokenID,
				EosTokenID:                &job.Model.EOSTokenID,
			},
			LoraConfig:        &job.Lora,
			TrainingArguments: &job.Args,
		},
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", nil, err
	}
	configPath := filepath.Join(job.OutputDir, consts.TrainingConfigFile)
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return "", nil, err
	}
	return configPath, data, nil
}
