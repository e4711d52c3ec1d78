// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.
package main

import (
	"context"
	"flag"
	"os"
	"strings"

	"k8s.io/klog/v2"

	"github.com/captune-project/captune/pkg/dataset"
	"github.com/captune-project/captune/pkg/loader"
	"github.com/captune-project/captune/pkg/tuning"

	_ "github.com/captune-project/captune/presets/models/llama"
)

var (
	exitWithErrorFunc = func() {
		klog.Flush()
		os.Exit(1)
	}
)

func main() {
	var (
		preset                = flag.String("preset", "llama-7b", "registered model preset to fine-tune")
		dataPath              = flag.String("data", "", "path to the caption/code JSONL training data")
		outputDir             = flag.String("output-dir", "", "directory adapter weights and trainer state are written to")
		overwrite             = flag.Bool("overwrite", false, "start fresh even if the output directory is not empty")
		batchSize             = flag.Int("batch-size", 128, "effective global batch size")
		microBatchSize        = flag.Int("micro-batch-size", 1, "per-device batch size")
		numEpochs             = flag.Int("epochs", 12, "number of training epochs")
		learningRate          = flag.Float64("learning-rate", 5e-4, "peak learning rate")
		gradientCheckpointing = flag.Bool("gradient-checkpointing", false, "trade compute for memory in the backward pass")
		loraR                 = flag.Int("lora-r", 64, "low-rank adapter rank")
		loraAlpha             = flag.Int("lora-alpha", 16, "low-rank adapter scaling factor")
		loraDropout           = flag.Float64("lora-dropout", 0.05, "low-rank adapter dropout rate")
		loraTargetModules     = flag.String("lora-target-modules", "", "comma-separated target module overrides")
		trainOnInputs         = flag.Bool("train-on-inputs", false, "keep caption tokens in the loss")
		groupByLength         = flag.Bool("group-by-length", false, "group examples of similar length into batches")
		cacheDir              = flag.String("cache-dir", "", "hub artifact cache directory")
		hubEndpoint           = flag.String("hub-endpoint", "", "model hub endpoint override")
		trainingConfig        = flag.String("training-config", "", "custom training config template handed to the trainer as-is")
	)
	klog.InitFlags(nil)
	flag.Parse()

	if *dataPath == "" || *outputDir == "" {
		klog.ErrorS(nil, "both --data and --output-dir are required")
		exitWithErrorFunc()
	}

	ctx := context.Background()

	ds, err := dataset.LoadJSONL(*dataPath)
	if err != nil {
		klog.ErrorS(err, "unable to load training data", "path", *dataPath)
		exitWithErrorFunc()
	}

	handle, tok, err := loader.Load(ctx, loader.LoadSpec{
		Preset:    *preset,
		Endpoint:  *hubEndpoint,
		CacheDir:  *cacheDir,
		AuthToken: os.Getenv("HF_TOKEN"),
	})
	if err != nil {
		klog.ErrorS(err, "unable to load model and tokenizer", "preset", *preset)
		exitWithErrorFunc()
	}

	params := tuning.DefaultTuningParams(*outputDir)
	params.Overwrite = *overwrite
	params.BatchSize = *batchSize
	params.MicroBatchSize = *microBatchSize
	params.NumEpochs = *numEpochs
	params.LearningRate = *learningRate
	params.GradientCheckpointing = *gradientCheckpointing
	params.LoraR = *loraR
	params.LoraAlpha = *loraAlpha
	params.LoraDropout = *loraDropout
	params.TrainOnInputs = *trainOnInputs
	params.GroupByLength = *groupByLength
	if *loraTargetModules != "" {
		params.LoraTargetModules = strings.Split(*loraTargetModules, ",")
	}
	if *trainingConfig != "" {
		params.Trainer = &tuning.LaunchTrainer{ConfigTemplate: *trainingConfig}
	}

	result, err := tuning.Train(ctx, handle, tok, ds, params)
	if err != nil {
		klog.ErrorS(err, "training failed")
		exitWithErrorFunc()
	}
	klog.InfoS("training finished", "outputDir", result.OutputDir,
		"examples", result.TrainExamples, "adapterConfig", result.AdapterConfigPath,
		"adapterModel", result.AdapterModelPath)
	klog.Flush()
}
