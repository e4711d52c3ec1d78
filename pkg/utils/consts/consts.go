// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package consts

const (
	// WorldSizeEnvVar is set by the distributed launcher to the number of
	// cooperating training processes.
	WorldSizeEnvVar = "WORLD_SIZE"

	// IgnoreIndex is the label value the loss function skips. It matches the
	// default ignore_index of the cross-entropy loss in the training runtime.
	IgnoreIndex = -100

	// Special token strings used by the llama tokenizer presets.
	UnknownToken = "<unk>"
	BOSToken     = "<s>"
	EOSToken     = "</s>"
	// SepToken marks the caption/code boundary. Ascii group separator.
	SepToken = "<0x1D>"
	// MaskToken reserves slots for multimodal patch embeddings. Ascii sub token.
	MaskToken = "<0x1A>"

	// Fixed special token IDs for the llama vocabulary. Forced on load to
	// guard against base-model/tokenizer ID mismatches.
	PadTokenID = 0
	BOSTokenID = 1
	EOSTokenID = 2

	// CheckpointDirPrefix is the naming convention the external trainer uses
	// for checkpoint subdirectories, e.g. checkpoint-500.
	CheckpointDirPrefix = "checkpoint-"

	// TrainerStateFile marks a checkpoint directory as complete and holds the
	// step counters and RNG state needed for resumption.
	TrainerStateFile = "trainer_state.json"

	// AdapterConfigFile and AdapterModelFile form the persisted adapter
	// artifact layout under the output directory.
	AdapterConfigFile = "adapter_config.json"
	AdapterModelFile  = "adapter_model.safetensors"

	// TrainingConfigFile is the resolved config handed to the launcher.
	TrainingConfigFile = "training_config.yaml"

	GiBToBytes = 1024 * 1024 * 1024 // Conversion factor from GiB to bytes
)
