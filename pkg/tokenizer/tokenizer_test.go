// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.
package tokenizer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/captune-project/captune/pkg/utils/consts"
)

func testVocab() map[string]int {
	vocab := map[string]int{
		consts.UnknownToken: 0,
		consts.BOSToken:     1,
		consts.EOSToken:     2,
	}
	id := 10
	for _, piece := range []string{
		"▁", "▁draw", "▁a", "▁circle", "▁hi", "▁\\",
		"draw", "circle", ";", "<0x5A>",
	} {
		vocab[piece] = id
		id++
	}
	return vocab
}

func newTestTokenizer(t *testing.T, maxLen int) *Tokenizer {
	t.Helper()
	tok, err := NewLlama(testVocab(), maxLen)
	require.NoError(t, err)
	return tok
}

func TestNewLlamaConventions(t *testing.T) {
	tok := newTestTokenizer(t, 1200)

	assert.Equal(t, 0, tok.UnknownID())
	assert.Equal(t, 0, tok.PadID(), "pad shares the unknown ID by design")
	assert.Equal(t, 1, tok.BOSID())
	assert.Equal(t, 2, tok.EOSID())
	assert.Equal(t, 1200, tok.ModelMaxLength())

	// sep and mask are appended past the end of the base vocabulary
	assert.NotEqual(t, tok.SepID(), tok.MaskID())
	for _, id := range []int{tok.PadID(), tok.BOSID(), tok.EOSID(), tok.SepID(), tok.MaskID()} {
		assert.True(t, tok.IsSpecial(id))
	}
	assert.False(t, tok.IsSpecial(tok.Encode("draw", EncodeOptions{})[0]))
	assert.Len(t, tok.AllSpecialIDs(), 5)
}

func TestEncodeOptions(t *testing.T) {
	tok := newTestTokenizer(t, 1200)
	plain := tok.Encode("draw a circle", EncodeOptions{})

	tests := []struct {
		name     string
		opts     EncodeOptions
		expected []int
	}{
		{
			name:     "Plain",
			opts:     EncodeOptions{},
			expected: plain,
		},
		{
			name:     "BOSAndSep",
			opts:     EncodeOptions{AddBOS: true, AddSep: true},
			expected: append(append([]int{tok.BOSID()}, plain...), tok.SepID()),
		},
		{
			name:     "EOSOnly",
			opts:     EncodeOptions{AddEOS: true},
			expected: append(append([]int{}, plain...), tok.EOSID()),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tok.Encode("draw a circle", tt.opts))
		})
	}
}

func TestEncodeGreedyLongestMatch(t *testing.T) {
	tok := newTestTokenizer(t, 1200)

	vocab := testVocab()
	ids := tok.Encode("draw a circle", EncodeOptions{})
	assert.Equal(t, []int{vocab["▁draw"], vocab["▁a"], vocab["▁circle"]}, ids)

	ids = tok.Encode("\\draw circle;", EncodeOptions{})
	assert.Equal(t, []int{vocab["▁\\"], vocab["draw"], vocab["▁circle"], vocab[";"]}, ids)
}

func TestEncodeByteFallback(t *testing.T) {
	tok := newTestTokenizer(t, 1200)
	vocab := testVocab()

	// "Z" has a byte piece in the vocabulary, "Q" does not.
	ids := tok.Encode("Z", EncodeOptions{})
	assert.Equal(t, vocab["<0x5A>"], ids[len(ids)-1])

	ids = tok.Encode("Q", EncodeOptions{})
	assert.Equal(t, tok.UnknownID(), ids[len(ids)-1])
}

func TestEncodeSpecialLiterals(t *testing.T) {
	tok := newTestTokenizer(t, 1200)

	// A mask-token prefix survives encoding untouched, with no whitespace
	// stripped around it.
	ids := tok.Encode(tok.MaskToken()+tok.MaskToken()+"hi", EncodeOptions{})
	require.True(t, len(ids) >= 3)
	assert.Equal(t, tok.MaskID(), ids[0])
	assert.Equal(t, tok.MaskID(), ids[1])
	assert.False(t, tok.IsSpecial(ids[2]))
}

func TestDecodeRoundTrip(t *testing.T) {
	tok := newTestTokenizer(t, 1200)

	ids := tok.Encode("draw a circle", EncodeOptions{})
	assert.Equal(t, " draw a circle", tok.Decode(ids))
}

func TestLoadVocab(t *testing.T) {
	vocab := testVocab()
	data, err := json.Marshal(vocab)
	require.NoError(t, err)

	fp := filepath.Join(t.TempDir(), "vocab.json")
	require.NoError(t, os.WriteFile(fp, data, 0644))

	loaded, err := LoadVocab(fp)
	require.NoError(t, err)
	assert.Equal(t, vocab, loaded)

	_, err = LoadVocab(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
