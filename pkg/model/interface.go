// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.
package model

import (
	"strconv"
	"strings"
	"time"

	"github.com/captune-project/captune/pkg/utils/consts"
)

type Model interface {
	GetTuningParameters() *PresetParam
	SupportTuning() bool
	SupportDistributedTuning() bool // If true, the tuning job may span multiple processes coordinated by the torch elastic runtime.
}

// PresetParam defines the preset tuning parameters for a model.
type PresetParam struct {
	ModelFamilyName               string            // The name of the model family.
	BaseModelTemplate             string            // Hub identifier template, e.g. "huggyllama/llama-{size}". {size} is substituted at load time.
	Size                          string            // The parameter-count size tag, e.g. "7b".
	ModelMaxLength                int               // Maximum sequence length the tokenizer accepts.
	TorchDtype                    string            // Weight precision the base model is instantiated with.
	PadTokenID                    int               // Forced pad token ID, shared with the unknown token.
	BOSTokenID                    int               // Forced begin-of-sequence token ID.
	EOSTokenID                    int               // Forced end-of-sequence token ID.
	DiskStorageRequirement        string            // Disk storage requirements for the model.
	GPUCountRequirement           string            // Number of GPUs required for the preset.
	TotalGPUMemoryRequirement     string            // Total GPU memory required for the preset.
	TuningPerGPUMemoryRequirement map[string]int    // Min GPU memory per tuning method (batch size 1).
	BaseCommand                   string            // The initial command (e.g., 'accelerate launch') used in the command line.
	TorchRunParams                map[string]string // Parameters for configuring the launcher command.
	TorchRunRdzvParams            map[string]string // Optional rendezvous parameters for distributed tuning using torchrun (elastic).
	ModelRunParams                map[string]string // Parameters for running the model training.
	// ReadinessTimeout defines the maximum duration for fetching the model
	// artifacts from the hub, accommodating slower network conditions.
	ReadinessTimeout time.Duration
	WorldSize        int // Defines the default number of processes for distributed tuning.
}

// ResolveBaseModel substitutes the size tag into the base model template,
// producing the hub identifier of the concrete checkpoint.
func (p *PresetParam) ResolveBaseModel(size string) string {
	if size == "" {
		size = p.Size
	}
	return strings.ReplaceAll(p.BaseModelTemplate, "{size}", size)
}

// DiskStorageBytes converts the preset's disk requirement, expressed in GiB
// quantity notation ("34Gi"), to bytes. Returns 0 when unset or malformed.
func (p *PresetParam) DiskStorageBytes() int64 {
	return gibQuantityToBytes(p.DiskStorageRequirement)
}

// TotalGPUMemoryBytes converts the preset's total GPU memory requirement to
// bytes. Returns 0 when unset or malformed.
func (p *PresetParam) TotalGPUMemoryBytes() int64 {
	return gibQuantityToBytes(p.TotalGPUMemoryRequirement)
}

func gibQuantityToBytes(quantity string) int64 {
	n, err := strconv.Atoi(strings.TrimSuffix(quantity, "Gi"))
	if err != nil {
		return 0
	}
	return int64(n) * consts.GiBToBytes
}
