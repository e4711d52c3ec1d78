// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package loader resolves a base-model preset, fetches its artifacts from
// the hub and produces the model handle and tokenizer the tuning driver
// consumes. The optimization-side weights stay with the external trainer;
// the handle only carries the identity and the forced special-token IDs.
package loader

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/captune-project/captune/pkg/model"
	"github.com/captune-project/captune/pkg/tokenizer"
	"github.com/captune-project/captune/pkg/utils/plugin"
	"k8s.io/klog/v2"
)

const (
	vocabFile       = "vocab.json"
	modelConfigFile = "config.json"
)

// LoadSpec identifies the base model to load. Preset names follow the
// registry ("llama-7b"); BaseModel overrides the preset's identifier
// template when set.
type LoadSpec struct {
	Preset    string
	BaseModel string // optional template override, e.g. "huggyllama/llama-{size}"
	Size      string // optional size override for the template
	Endpoint  string // defaults to DefaultEndpoint
	CacheDir  string // defaults to ~/.cache/captune
	AuthToken string
	// Client overrides the HTTP client, mainly for tests.
	Client *http.Client
}

// ModelHandle describes the instantiated base model. Special token IDs are
// fixed to the preset's constants regardless of the hub tokenizer's own
// defaults.
type ModelHandle struct {
	BaseModel  string
	TorchDtype string
	PadTokenID int
	BOSTokenID int
	EOSTokenID int
	LocalDir   string
	// DistributedTuning reports whether the preset allows multi-process
	// training runs.
	DistributedTuning bool
	Preset            *model.PresetParam
}

// Load produces a (model handle, tokenizer) pair ready for training. Hub
// lookup failures propagate unmodified.
func Load(ctx context.Context, spec LoadSpec) (*ModelHandle, *tokenizer.Tokenizer, error) {
	if !plugin.IsValidPreset(spec.Preset) {
		return nil, nil, fmt.Errorf("unsupported preset %q, registered presets: %v",
			spec.Preset, plugin.CaptuneModelRegister.ListModelNames())
	}
	preset := plugin.CaptuneModelRegister.MustGet(spec.Preset)
	if !preset.SupportTuning() {
		return nil, nil, fmt.Errorf("preset %q does not support tuning", spec.Preset)
	}
	params := preset.GetTuningParameters()
	if spec.BaseModel != "" {
		params.BaseModelTemplate = spec.BaseModel
	}
	baseModel := params.ResolveBaseModel(spec.Size)
	klog.InfoS("resolved preset", "preset", spec.Preset, "baseModel", baseModel,
		"gpus", params.GPUCountRequirement,
		"diskBytes", params.DiskStorageBytes(),
		"gpuMemoryBytes", params.TotalGPUMemoryBytes(),
		"loraGPUMemoryGiB", params.TuningPerGPUMemoryRequirement["lora"])

	endpoint := spec.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	cacheDir := spec.CacheDir
	if cacheDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, nil, err
		}
		cacheDir = filepath.Join(home, ".cache", "captune")
	}
	client := spec.Client
	if client == nil {
		client = &http.Client{Timeout: params.ReadinessTimeout}
	}

	localDir := filepath.Join(cacheDir, filepath.FromSlash(baseModel))
	for _, filename := range []string{vocabFile, modelConfigFile} {
		fp := filepath.Join(localDir, filename)
		if _, err := os.Stat(fp); err == nil {
			continue
		}
		url := hubFileURL(endpoint, baseModel, filename)
		klog.InfoS("fetching model artifact", "model", baseModel, "file", filename)
		if err := downloadFile(ctx, client, url, fp, spec.AuthToken); err != nil {
			return nil, nil, err
		}
	}

	vocab, err := tokenizer.LoadVocab(filepath.Join(localDir, vocabFile))
	if err != nil {
		return nil, nil, err
	}
	tok, err := tokenizer.NewLlama(vocab, params.ModelMaxLength)
	if err != nil {
		return nil, nil, err
	}

	handle := &ModelHandle{
		BaseModel:         baseModel,
		TorchDtype:        params.TorchDtype,
		PadTokenID:        params.PadTokenID,
		BOSTokenID:        params.BOSTokenID,
		EOSTokenID:        params.EOSTokenID,
		LocalDir:          localDir,
		DistributedTuning: preset.SupportDistributedTuning(),
		Preset:            params,
	}
	return handle, tok, nil
}
