// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.
package llama

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/captune-project/captune/pkg/utils/plugin"
)

func TestRegisteredPresets(t *testing.T) {
	for _, preset := range []string{"llama-7b", "llama-13b", "llama-30b", "llama-65b"} {
		require.True(t, plugin.IsValidPreset(preset), preset)

		m := plugin.CaptuneModelRegister.MustGet(preset)
		assert.True(t, m.SupportTuning(), preset)

		p := m.GetTuningParameters()
		assert.Equal(t, "LLaMA", p.ModelFamilyName)
		assert.Equal(t, 1200, p.ModelMaxLength)
		assert.Equal(t, "float16", p.TorchDtype)
		assert.Equal(t, 0, p.PadTokenID)
		assert.Equal(t, 1, p.BOSTokenID)
		assert.Equal(t, 2, p.EOSTokenID)
		assert.Equal(t, "accelerate launch", p.BaseCommand)
		assert.Equal(t, "all", p.TorchRunParams["gpu_ids"])
		assert.Equal(t, "1", p.TorchRunParams["num_machines"])
	}
}

func TestRendezvousParams(t *testing.T) {
	assert.Empty(t, plugin.CaptuneModelRegister.MustGet("llama-7b").GetTuningParameters().TorchRunRdzvParams)

	for _, preset := range []string{"llama-13b", "llama-30b", "llama-65b"} {
		p := plugin.CaptuneModelRegister.MustGet(preset).GetTuningParameters()
		assert.Equal(t, "29500", p.TorchRunRdzvParams["main_process_port"], preset)
	}
}

func TestDistributedTuningSupport(t *testing.T) {
	assert.False(t, plugin.CaptuneModelRegister.MustGet("llama-7b").SupportDistributedTuning())
	assert.True(t, plugin.CaptuneModelRegister.MustGet("llama-13b").SupportDistributedTuning())

	p := plugin.CaptuneModelRegister.MustGet("llama-65b").GetTuningParameters()
	assert.Equal(t, 8, p.WorldSize)
}
