// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.
package llama

import (
	"time"

	"github.com/captune-project/captune/pkg/model"
	"github.com/captune-project/captune/pkg/utils/consts"
	"github.com/captune-project/captune/pkg/utils/plugin"
)

func init() {
	plugin.CaptuneModelRegister.Register(&plugin.Registration{
		Name:     "llama-7b",
		Instance: &llamaA,
	})
	plugin.CaptuneModelRegister.Register(&plugin.Registration{
		Name:     "llama-13b",
		Instance: &llamaB,
	})
	plugin.CaptuneModelRegister.Register(&plugin.Registration{
		Name:     "llama-30b",
		Instance: &llamaC,
	})
	plugin.CaptuneModelRegister.Register(&plugin.Registration{
		Name:     "llama-65b",
		Instance: &llamaD,
	})
}

var (
	baseCommandPresetLlama = "accelerate launch"
	baseModelTemplateLlama = "huggyllama/llama-{size}"
	llamaRunParams         = map[string]string{
		"model_max_length": "1200",
		"torch_dtype":      "float16",
	}
	llamaAccelerateParams = map[string]string{
		"num_machines": "1",
		"machine_rank": "0",
		"gpu_ids":      "all",
	}
	// rendezvous endpoint for the multi-process presets
	llamaRdzvParams = map[string]string{
		"main_process_port": "29500",
	}
)

func llamaPreset(size string) *model.PresetParam {
	return &model.PresetParam{
		ModelFamilyName:   "LLaMA",
		BaseModelTemplate: baseModelTemplateLlama,
		Size:              size,
		ModelMaxLength:    1200,
		TorchDtype:        "float16",
		PadTokenID:        consts.PadTokenID,
		BOSTokenID:        consts.BOSTokenID,
		EOSTokenID:        consts.EOSTokenID,
		BaseCommand:       baseCommandPresetLlama,
		TorchRunParams:    llamaAccelerateParams,
		ModelRunParams:    llamaRunParams,
	}
}

var llamaA llamaText7b

type llamaText7b struct{}

func (*llamaText7b) GetTuningParameters() *model.PresetParam {
	p := llamaPreset("7b")
	p.DiskStorageRequirement = "34Gi"
	p.GPUCountRequirement = "1"
	p.TotalGPUMemoryRequirement = "16Gi"
	p.TuningPerGPUMemoryRequirement = map[string]int{"lora": 16}
	p.ReadinessTimeout = time.Duration(10) * time.Minute
	p.WorldSize = 1
	return p
}
func (*llamaText7b) SupportTuning() bool {
	return true
}
func (*llamaText7b) SupportDistributedTuning() bool {
	return false
}

var llamaB llamaText13b

type llamaText13b struct{}

func (*llamaText13b) GetTuningParameters() *model.PresetParam {
	p := llamaPreset("13b")
	p.TorchRunRdzvParams = llamaRdzvParams
	p.DiskStorageRequirement = "46Gi"
	p.GPUCountRequirement = "2"
	p.TotalGPUMemoryRequirement = "30Gi"
	p.TuningPerGPUMemoryRequirement = map[string]int{"lora": 24}
	p.ReadinessTimeout = time.Duration(20) * time.Minute
	p.WorldSize = 2
	return p
}
func (*llamaText13b) SupportTuning() bool {
	return true
}
func (*llamaText13b) SupportDistributedTuning() bool {
	return true
}

var llamaC llamaText30b

type llamaText30b struct{}

func (*llamaText30b) GetTuningParameters() *model.PresetParam {
	p := llamaPreset("30b")
	p.TorchRunRdzvParams = llamaRdzvParams
	p.DiskStorageRequirement = "72Gi"
	p.GPUCountRequirement = "4"
	p.TotalGPUMemoryRequirement = "80Gi"
	p.TuningPerGPUMemoryRequirement = map[string]int{"lora": 40}
	p.ReadinessTimeout = time.Duration(30) * time.Minute
	p.WorldSize = 4
	return p
}
func (*llamaText30b) SupportTuning() bool {
	return true
}
func (*llamaText30b) SupportDistributedTuning() bool {
	return true
}

var llamaD llamaText65b

type llamaText65b struct{}

func (*llamaText65b) GetTuningParameters() *model.PresetParam {
	p := llamaPreset("65b")
	p.TorchRunRdzvParams = llamaRdzvParams
	p.DiskStorageRequirement = "158Gi"
	p.GPUCountRequirement = "8"
	p.TotalGPUMemoryRequirement = "152Gi"
	p.TuningPerGPUMemoryRequirement = map[string]int{"lora": 80}
	p.ReadinessTimeout = time.Duration(30) * time.Minute
	p.WorldSize = 8
	return p
}
func (*llamaText65b) SupportTuning() bool {
	return true
}
func (*llamaText65b) SupportDistributedTuning() bool {
	return true
}
