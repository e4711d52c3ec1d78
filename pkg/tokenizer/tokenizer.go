// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package tokenizer implements a vocabulary-backed subword tokenizer with
// the special-token conventions the tuning presets expect. Pieces follow the
// sentencepiece convention: a leading "▁" marks a word boundary and
// unknown bytes fall back to "<0xNN>" byte pieces when the vocabulary
// carries them.
package tokenizer

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/captune-project/captune/pkg/utils/consts"
)

const wordBoundary = "▁"

// EncodeOptions selects which special markers Encode appends. Explicit
// per-call options keep the tokenizer immutable and safe for batched use.
type EncodeOptions struct {
	AddBOS bool
	AddEOS bool
	AddSep bool
}

type Tokenizer struct {
	vocab          map[string]int
	pieces         map[int]string
	modelMaxLength int

	unknownID int
	padID     int
	bosID     int
	eosID     int
	sepID     int
	maskID    int

	specialIDs map[int]bool
	// specials ordered longest-first so literal matching is greedy.
	specialStrings []string
	specialByToken map[string]int

	maxPieceLen int
}

// LoadVocab reads a flat piece-to-ID JSON vocabulary file.
func LoadVocab(path string) (map[string]int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	vocab := map[string]int{}
	if err := json.Unmarshal(data, &vocab); err != nil {
		return nil, fmt.Errorf("failed to parse vocabulary %s: %w", path, err)
	}
	return vocab, nil
}

// NewLlama builds a tokenizer over the given vocabulary with the llama
// conventions applied: unknown/bos/eos forced to IDs 0/1/2, the pad token
// aliased to the unknown token, and the separator and mask tokens appended
// to the vocabulary when missing. Special tokens are matched literally, with
// no whitespace stripped around them, since captions and code are
// whitespace-sensitive.
func NewLlama(vocab map[string]int, modelMaxLength int) (*Tokenizer, error) {
	if modelMaxLength <= 0 {
		return nil, fmt.Errorf("invalid model max length %d", modelMaxLength)
	}

	t := &Tokenizer{
		vocab:          make(map[string]int, len(vocab)+2),
		pieces:         make(map[int]string, len(vocab)+2),
		modelMaxLength: modelMaxLength,
		specialIDs:     map[int]bool{},
		specialByToken: map[string]int{},
	}
	for piece, id := range vocab {
		t.vocab[piece] = id
		t.pieces[id] = piece
		if len(piece) > t.maxPieceLen {
			t.maxPieceLen = len(piece)
		}
	}

	// The numeric IDs are fixed regardless of what the vocabulary file says,
	// guarding against base-model/tokenizer mismatches.
	t.forcePiece(consts.UnknownToken, consts.PadTokenID)
	t.forcePiece(consts.BOSToken, consts.BOSTokenID)
	t.forcePiece(consts.EOSToken, consts.EOSTokenID)
	t.unknownID = consts.PadTokenID
	t.padID = consts.PadTokenID // same ID as unknown by design
	t.bosID = consts.BOSTokenID
	t.eosID = consts.EOSTokenID

	var err error
	if t.sepID, err = t.ensurePiece(consts.SepToken); err != nil {
		return nil, err
	}
	if t.maskID, err = t.ensurePiece(consts.MaskToken); err != nil {
		return nil, err
	}

	for _, id := range []int{t.unknownID, t.bosID, t.eosID, t.sepID, t.maskID} {
		t.specialIDs[id] = true
		t.specialByToken[t.pieces[id]] = id
	}
	for tok := range t.specialByToken {
		t.specialStrings = append(t.specialStrings, tok)
	}
	sort.Slice(t.specialStrings, func(i, j int) bool {
		return len(t.specialStrings[i]) > len(t.specialStrings[j])
	})

	return t, nil
}

func (t *Tokenizer) forcePiece(piece string, id int) {
	if old, ok := t.vocab[piece]; ok && old != id {
		delete(t.pieces, old)
	}
	t.vocab[piece] = id
	t.pieces[id] = piece
	if len(piece) > t.maxPieceLen {
		t.maxPieceLen = len(piece)
	}
}

func (t *Tokenizer) ensurePiece(piece string) (int, error) {
	if id, ok := t.vocab[piece]; ok {
		return id, nil
	}
	// Added tokens go past the end of the base vocabulary, mirroring how the
	// hub tokenizer grows when tokens are added after pretraining.
	id := t.nextFreeID()
	t.vocab[piece] = id
	t.pieces[id] = piece
	if len(piece) > t.maxPieceLen {
		t.maxPieceLen = len(piece)
	}
	return id, nil
}

func (t *Tokenizer) nextFreeID() int {
	max := -1
	for id := range t.pieces {
		if id > max {
			max = id
		}
	}
	return max + 1
}

func (t *Tokenizer) VocabSize() int        { return len(t.pieces) }
func (t *Tokenizer) ModelMaxLength() int   { return t.modelMaxLength }
func (t *Tokenizer) UnknownID() int        { return t.unknownID }
func (t *Tokenizer) PadID() int            { return t.padID }
func (t *Tokenizer) BOSID() int            { return t.bosID }
func (t *Tokenizer) EOSID() int            { return t.eosID }
func (t *Tokenizer) SepID() int            { return t.sepID }
func (t *Tokenizer) MaskID() int           { return t.maskID }
func (t *Tokenizer) MaskToken() string     { return t.pieces[t.maskID] }
func (t *Tokenizer) IsSpecial(id int) bool { return t.specialIDs[id] }

// AllSpecialIDs returns the IDs of every registered special token.
func (t *Tokenizer) AllSpecialIDs() []int {
	ids := make([]int, 0, len(t.specialIDs))
	for id := range t.specialIDs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Encode converts text to token IDs. Special token strings embedded in the
// text are matched literally before subword segmentation, so a mask-token
// prefix survives encoding untouched.
func (t *Tokenizer) Encode(text string, opts EncodeOptions) []int {
	var ids []int
	if opts.AddBOS {
		ids = append(ids, t.bosID)
	}
	for _, seg := range t.splitSpecials(text) {
		if id, ok := t.specialByToken[seg]; ok {
			ids = append(ids, id)
			continue
		}
		ids = append(ids, t.encodePlain(seg)...)
	}
	if opts.AddSep {
		ids = append(ids, t.sepID)
	}
	if opts.AddEOS {
		ids = append(ids, t.eosID)
	}
	return ids
}

// splitSpecials cuts text into alternating plain segments and special token
// literals, longest literal first.
func (t *Tokenizer) splitSpecials(text string) []string {
	var segs []string
	for len(text) > 0 {
		idx := -1
		match := ""
		for _, special := range t.specialStrings {
			if i := strings.Index(text, special); i >= 0 && (idx < 0 || i < idx) {
				idx, match = i, special
			}
		}
		if idx < 0 {
			segs = append(segs, text)
			break
		}
		if idx > 0 {
			segs = append(segs, text[:idx])
		}
		segs = append(segs, match)
		text = text[idx+len(match):]
	}
	return segs
}

// encodePlain greedily matches the longest vocabulary piece, falling back to
// byte pieces and finally the unknown token.
func (t *Tokenizer) encodePlain(text string) []int {
	normalized := wordBoundary + strings.ReplaceAll(text, " ", wordBoundary)
	var ids []int
	for i := 0; i < len(normalized); {
		end := i + t.maxPieceLen
		if end > len(normalized) {
			end = len(normalized)
		}
		matched := false
		for j := end; j > i; j-- {
			if id, ok := t.vocab[normalized[i:j]]; ok {
				ids = append(ids, id)
				i = j
				matched = true
				break
			}
		}
		if matched {
			continue
		}
		if id, ok := t.vocab[fmt.Sprintf("<0x%02X>", normalized[i])]; ok {
			ids = append(ids, id)
		} else {
			ids = append(ids, t.unknownID)
		}
		i++
	}
	return ids
}

// Decode converts token IDs back to text. Special tokens are rendered as
// their literal strings.
func (t *Tokenizer) Decode(ids []int) string {
	var sb strings.Builder
	for _, id := range ids {
		piece, ok := t.pieces[id]
		if !ok {
			continue
		}
		sb.WriteString(piece)
	}
	return strings.ReplaceAll(sb.String(), wordBoundary, " ")
}
