// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package tuning wires a low-rank adapter configuration onto a loaded model
// and drives the external trainer over a preprocessed dataset. The
// optimization loop itself is owned by the Trainer collaborator; this
// package owns batch-size arithmetic, the adapter configuration, the
// checkpoint/resume policy and dataset preparation.
package tuning

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-logr/logr"
	"k8s.io/klog/v2"
	"k8s.io/utils/pointer"

	"github.com/captune-project/captune/pkg/config"
	"github.com/captune-project/captune/pkg/dataset"
	"github.com/captune-project/captune/pkg/loader"
	"github.com/captune-project/captune/pkg/preprocess"
	"github.com/captune-project/captune/pkg/tokenizer"
	"github.com/captune-project/captune/pkg/utils"
	"github.com/captune-project/captune/pkg/utils/consts"
)

// ErrOutputDirNotEmpty is returned when the output directory already holds
// files, no valid checkpoint to resume from, and overwrite was not
// requested.
var ErrOutputDirNotEmpty = errors.New("output directory already exists and is not empty, use overwrite to overcome")

// TuningParams configures one training run. Use DefaultTuningParams as the
// starting point; the slice fields are constructed fresh per call and safe
// to modify.
type TuningParams struct {
	OutputDir string
	Overwrite bool

	// training hyperparams
	BatchSize             int
	MicroBatchSize        int
	NumEpochs             int
	LearningRate          float64
	GradientCheckpointing bool

	// lora hyperparams
	LoraR               int
	LoraAlpha           int
	LoraDropout         float64
	LoraTargetModules   []string
	FullFinetuneModules []string

	// llm hyperparams
	TrainOnInputs bool // if false, masks out inputs in loss
	GroupByLength bool // faster when true, but produces an odd training loss curve

	// WorldSize is the number of distributed training processes. Zero means
	// read it from the WORLD_SIZE environment variable, falling back to the
	// preset's default process count when the variable is unset.
	WorldSize int

	// Logger receives driver progress. Zero value means klog's global
	// logger.
	Logger logr.Logger

	// Trainer overrides the external trainer. Nil means the accelerate
	// launch process trainer.
	Trainer Trainer
}

// DefaultTuningParams returns the default hyperparameters. A new value is
// built on every call so callers never share mutable defaults.
func DefaultTuningParams(outputDir string) TuningParams {
	return TuningParams{
		OutputDir:      outputDir,
		BatchSize:      128,
		MicroBatchSize: 1,
		NumEpochs:      12,
		LearningRate:   5e-4,
		LoraR:          64,
		LoraAlpha:      16,
		LoraDropout:    0.05,
		// defaults to all linear layers of llama
		LoraTargetModules: []string{
			"q_proj",
			"k_proj",
			"v_proj",
			"o_proj",
			"up_proj",
			"down_proj",
			"gate_proj",
		},
		// vocabulary-adjacent layers benefit less from low-rank updates
		FullFinetuneModules: []string{
			"embed_tokens",
			"lm_head",
		},
	}
}

// GradientAccumulationSteps keeps the effective global batch size constant
// regardless of worker count: batch size over micro batch size, divided
// again by the world size under distributed training.
func GradientAccumulationSteps(batchSize, microBatchSize, worldSize int) (int, error) {
	if microBatchSize <= 0 {
		return 0, fmt.Errorf("invalid micro batch size %d", microBatchSize)
	}
	if worldSize <= 0 {
		return 0, fmt.Errorf("invalid world size %d", worldSize)
	}
	steps := batchSize / microBatchSize
	if worldSize != 1 {
		steps = steps / worldSize
	}
	if steps <= 0 {
		return 0, fmt.Errorf("batch size %d too small for micro batch size %d and world size %d",
			batchSize, microBatchSize, worldSize)
	}
	return steps, nil
}

// TuneResult reports what a finished run produced.
type TuneResult struct {
	OutputDir         string
	AdapterConfigPath string
	// AdapterModelPath is where the external trainer writes the adapter
	// weights next to the adapter config.
	AdapterModelPath          string
	ResumedFromCheckpoint     string
	GradientAccumulationSteps int
	TrainExamples             int
}

// Train fine-tunes the model over the dataset and persists the adapter
// weights and trainer state under params.OutputDir. The directory-conflict
// precondition is checked synchronously before any preprocessing begins;
// trainer failures surface unmodified.
func Train(ctx context.Context, handle *loader.ModelHandle, tok *tokenizer.Tokenizer,
	ds *dataset.Dataset, params TuningParams) (*TuneResult, error) {
	logger := params.Logger
	if logger.GetSink() == nil {
		logger = klog.Background()
	}

	worldSize := params.WorldSize
	if worldSize == 0 {
		if os.Getenv(consts.WorldSizeEnvVar) != "" {
			ws, err := utils.WorldSizeFromEnv()
			if err != nil {
				return nil, err
			}
			worldSize = ws
		} else if handle.Preset != nil && handle.Preset.WorldSize > 0 {
			worldSize = handle.Preset.WorldSize
		} else {
			worldSize = 1
		}
	}
	ddp := worldSize != 1
	if ddp && !handle.DistributedTuning {
		return nil, fmt.Errorf("base model %s does not support distributed tuning, got world size %d",
			handle.BaseModel, worldSize)
	}

	accumulationSteps, err := GradientAccumulationSteps(params.BatchSize, params.MicroBatchSize, worldSize)
	if err != nil {
		return nil, err
	}

	lora := config.LoraConfig{
		R:             pointer.Int(params.LoraR),
		LoraAlpha:     pointer.Int(params.LoraAlpha),
		LoraDropout:   pointer.Float64(params.LoraDropout),
		Bias:          pointer.String("none"),
		TaskType:      pointer.String("CAUSAL_LM"),
		TargetModules: &params.LoraTargetModules,
		ModulesToSave: &params.FullFinetuneModules,
	}

	lastCheckpoint := ""
	if !params.Overwrite {
		lastCheckpoint, err = GetLastCheckpoint(params.OutputDir)
		if err != nil {
			return nil, err
		}
		if lastCheckpoint == "" && hasPriorArtifacts(params.OutputDir) {
			return nil, fmt.Errorf("%w: %s", ErrOutputDirNotEmpty, params.OutputDir)
		}
		if lastCheckpoint != "" {
			logger.Info("checkpoint detected, resuming training; change the output directory or set overwrite to train from scratch",
				"checkpoint", lastCheckpoint)
		}
	}
	if err := os.MkdirAll(params.OutputDir, 0755); err != nil {
		return nil, err
	}

	trainData, err := ds.Map(func(batch []dataset.Example) ([]dataset.Encoded, error) {
		return preprocess.Run(batch, tok, preprocess.Options{TrainOnInputs: params.TrainOnInputs})
	}, dataset.MapOptions{Batched: true, RemoveColumns: ds.ColumnNames()})
	if err != nil {
		return nil, err
	}

	logger.Info("dataset size before filtering out too long examples", "examples", trainData.Len())
	trainData = trainData.Filter(func(e dataset.Encoded) bool {
		return len(e.InputIDs) <= tok.ModelMaxLength()
	})
	logger.Info("dataset size after filtering out too long examples", "examples", trainData.Len())

	args := config.TrainingArguments{
		OutputDir:                 params.OutputDir,
		PerDeviceTrainBatchSize:   pointer.Int(params.MicroBatchSize),
		GradientAccumulationSteps: pointer.Int(accumulationSteps),
		WarmupRatio:               pointer.Float64(0.03),
		NumTrainEpochs:            pointer.Float64(float64(params.NumEpochs)),
		LearningRate:              pointer.Float64(params.LearningRate),
		Fp16:                      pointer.Bool(true),
		LoggingSteps:              pointer.Float64(10),
		LrSchedulerType:           pointer.String("cosine"),
		Optim:                     pointer.String("adamw_torch"),
		SaveStrategy:              pointer.String("epoch"),
		SaveTotalLimit:            pointer.Int(1),
		GroupByLength:             pointer.Bool(params.GroupByLength),
		GradientCheckpointing:     pointer.Bool(params.GradientCheckpointing),
	}
	if ddp {
		// Unused-parameter detection wastes cycles and trips over the frozen
		// base weights under DDP.
		args.DdpFindUnusedParameters = pointer.Bool(false)
	}
	if lastCheckpoint != "" {
		args.ResumeFromCheckpoint = pointer.String(lastCheckpoint)
	}

	trainer := params.Trainer
	if trainer == nil {
		trainer = NewLaunchTrainer()
	}
	job := &TrainJob{
		Model:                handle,
		Dataset:              trainData,
		OutputDir:            params.OutputDir,
		Lora:                 lora,
		Args:                 args,
		ResumeFromCheckpoint: lastCheckpoint,
		WorldSize:            worldSize,
	}
	if err := trainer.Train(ctx, job); err != nil {
		return nil, err
	}

	adapterPath, err := writeAdapterConfig(params.OutputDir, handle.BaseModel, lora)
	if err != nil {
		return nil, err
	}
	if err := trainer.SaveState(params.OutputDir); err != nil {
		return nil, err
	}

	return &TuneResult{
		OutputDir:                 params.OutputDir,
		AdapterConfigPath:         adapterPath,
		AdapterModelPath:          filepath.Join(params.OutputDir, consts.AdapterModelFile),
		ResumedFromCheckpoint:     lastCheckpoint,
		GradientAccumulationSteps: accumulationSteps,
		TrainExamples:             trainData.Len(),
	}, nil
}
