// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package preprocess turns raw (caption, code) records into training
// sequences: caption tokens carry a begin-of-sequence marker and a trailing
// separator, code tokens carry a trailing end-of-sequence marker, and labels
// mask caption positions unless training on inputs is requested.
package preprocess

import (
	"errors"
	"strings"

	"github.com/captune-project/captune/pkg/dataset"
	"github.com/captune-project/captune/pkg/tokenizer"
	"github.com/captune-project/captune/pkg/utils/consts"
)

// DefaultMinLen is the floor below which captions are never truncated.
const DefaultMinLen = 100

// ErrClipOnlyNeedsPatches is returned when clip-only preprocessing is
// requested without multimodal patch slots configured.
var ErrClipOnlyNeedsPatches = errors.New("clip-only preprocessing requires a multimodal model with patch slots")

type Options struct {
	// TrainOnInputs keeps caption token IDs as labels. When false, caption
	// label positions are overwritten with the ignore sentinel so the loss
	// covers only the code completion.
	TrainOnInputs bool
	// ClipOnly drops the caption text, keeping only the patch placeholder
	// prefix. Requires NumPatches > 0.
	ClipOnly bool
	// NumPatches prepends that many mask-token placeholders to each caption,
	// reserving slots for an external patch-embedding mechanism.
	NumPatches int
	// MinLen is the caption truncation floor, before the NumPatches slots
	// are added to it. Zero means DefaultMinLen.
	MinLen int
}

// Run preprocesses a batch of raw records. It is a pure transformation:
// deterministic given identical inputs and free of tokenizer mutation.
func Run(batch []dataset.Example, tok *tokenizer.Tokenizer, opts Options) ([]dataset.Encoded, error) {
	if opts.ClipOnly && opts.NumPatches == 0 {
		return nil, ErrClipOnlyNeedsPatches
	}

	minLen := opts.MinLen
	if minLen == 0 {
		minLen = DefaultMinLen
	}
	// Placeholder slots are never truncated away.
	minLen += opts.NumPatches

	patchPrefix := strings.Repeat(tok.MaskToken(), opts.NumPatches)

	out := make([]dataset.Encoded, 0, len(batch))
	for _, ex := range batch {
		caption := ex.Caption
		if opts.ClipOnly {
			caption = ""
		}

		capIDs := tok.Encode(patchPrefix+caption, tokenizer.EncodeOptions{AddBOS: true, AddSep: true})
		codeIDs := tok.Encode(ex.Code, tokenizer.EncodeOptions{AddEOS: true})

		capLabels := make([]int, len(capIDs))
		if opts.TrainOnInputs {
			copy(capLabels, capIDs)
		} else {
			for i := range capLabels {
				capLabels[i] = consts.IgnoreIndex
			}
		}

		capIDs, capLabels = tryTruncate(capIDs, capLabels, tok, tok.ModelMaxLength()-len(codeIDs), minLen)

		inputIDs := append(capIDs, codeIDs...)
		labels := append(capLabels, codeIDs...)
		out = append(out, dataset.Encoded{InputIDs: inputIDs, Labels: labels})
	}
	return out, nil
}

// tryTruncate removes the rightmost non-special caption token until the
// caption fits within maxLen or reaches the minLen floor. Removing right to
// left discards the context closest to the caption/code boundary first and
// keeps every special token in place. When only special tokens remain the
// loop stops early and the over-length example is left for the downstream
// length filter.
func tryTruncate(ids, labels []int, tok *tokenizer.Tokenizer, maxLen, minLen int) ([]int, []int) {
	for len(ids) > maxLen && len(ids) > minLen {
		removed := false
		for idx := len(ids) - 1; idx >= 0; idx-- {
			if !tok.IsSpecial(ids[idx]) {
				ids = append(ids[:idx], ids[idx+1:]...)
				labels = append(labels[:idx], labels[idx+1:]...)
				removed = true
				break
			}
		}
		if !removed {
			break
		}
	}
	return ids, labels
}
