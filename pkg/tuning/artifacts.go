// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.
package tuning

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/captune-project/captune/pkg/config"
	"github.com/captune-project/captune/pkg/utils/consts"
)

// adapterConfig is the adapter_config.json layout the adapter-loading
// tooling expects next to adapter_model.safetensors.
type adapterConfig struct {
	BaseModelNameOrPath string   `json:"base_model_name_or_path"`
	PeftType            string   `json:"peft_type"`
	TaskType            string   `json:"task_type"`
	R                   int      `json:"r"`
	LoraAlpha           int      `json:"lora_alpha"`
	LoraDropout         float64  `json:"lora_dropout"`
	Bias                string   `json:"bias"`
	TargetModules       []string `json:"target_modules"`
	ModulesToSave       []string `json:"modules_to_save"`
}

// writeAdapterConfig persists the adapter configuration under outputDir.
// Only the adapter is persisted, never the full base model.
func writeAdapterConfig(outputDir, baseModel string, lora config.LoraConfig) (string, error) {
	cfg := adapterConfig{
		BaseModelNameOrPath: baseModel,
		PeftType:            "LORA",
		TaskType:            derefString(lora.TaskType, "CAUSAL_LM"),
		R:                   derefInt(lora.R, 0),
		LoraAlpha:           derefInt(lora.LoraAlpha, 0),
		LoraDropout:         derefFloat(lora.LoraDropout, 0),
		Bias:                derefString(lora.Bias, "none"),
	}
	if lora.TargetModules != nil {
		cfg.TargetModules = *lora.TargetModules
	}
	if lora.ModulesToSave != nil {
		cfg.ModulesToSave = *lora.ModulesToSave
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", err
	}
	fp := filepath.Join(outputDir, consts.AdapterConfigFile)
	if err := os.WriteFile(fp, data, 0644); err != nil {
		return "", err
	}
	return fp, nil
}

func derefString(p *string, def string) string {
	if p != nil {
		return *p
	}
	return def
}

func derefInt(p *int, def int) int {
	if p != nil {
		return *p
	}
	return def
}

func derefFloat(p *float64, def float64) float64 {
	if p != nil {
		return *p
	}
	return def
}
