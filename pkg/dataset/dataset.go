// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package dataset provides the in-memory dataset surface the tuning driver
// consumes: named columns, a batched map transform and a filter, mirroring
// the contract of the external dataset collaborator.
package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/samber/lo"
)

const defaultMapBatchSize = 1000

// Example is one raw (caption, code) record.
type Example struct {
	Caption string `json:"caption"`
	Code    string `json:"code"`
}

// Encoded is one preprocessed record: parallel token-ID and label sequences.
type Encoded struct {
	InputIDs []int `json:"input_ids"`
	Labels   []int `json:"labels"`
}

type Dataset struct {
	columns  []string
	examples []Example
	encoded  []Encoded
}

// FromExamples wraps raw records into a dataset with caption/code columns.
func FromExamples(examples []Example) *Dataset {
	return &Dataset{
		columns:  []string{"caption", "code"},
		examples: examples,
	}
}

// LoadJSONL reads one JSON object per line with caption and code fields.
func LoadJSONL(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var examples []Example
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var ex Example
		if err := json.Unmarshal(raw, &ex); err != nil {
			return nil, fmt.Errorf("failed to parse %s line %d: %w", path, line, err)
		}
		examples = append(examples, ex)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return FromExamples(examples), nil
}

func (d *Dataset) ColumnNames() []string {
	return append([]string{}, d.columns...)
}

func (d *Dataset) Len() int {
	if len(d.encoded) > 0 {
		return len(d.encoded)
	}
	return len(d.examples)
}

func (d *Dataset) Examples() []Example { return d.examples }
func (d *Dataset) Encoded() []Encoded  { return d.encoded }

// MapFunc transforms a batch of raw records into preprocessed records.
type MapFunc func(batch []Example) ([]Encoded, error)

type MapOptions struct {
	Batched       bool
	BatchSize     int // defaults to 1000 when Batched
	RemoveColumns []string
}

// Map applies fn over the dataset in batches, producing a new dataset of
// encoded records. Columns listed in RemoveColumns are dropped from the
// result; the produced input_ids/labels columns are always present.
func (d *Dataset) Map(fn MapFunc, opts MapOptions) (*Dataset, error) {
	batchSize := 1
	if opts.Batched {
		batchSize = opts.BatchSize
		if batchSize <= 0 {
			batchSize = defaultMapBatchSize
		}
	}

	out := &Dataset{}
	for start := 0; start < len(d.examples); start += batchSize {
		end := start + batchSize
		if end > len(d.examples) {
			end = len(d.examples)
		}
		encoded, err := fn(d.examples[start:end])
		if err != nil {
			return nil, err
		}
		if len(encoded) != end-start {
			return nil, fmt.Errorf("map function returned %d records for a batch of %d", len(encoded), end-start)
		}
		out.encoded = append(out.encoded, encoded...)
	}

	kept := lo.Filter(d.columns, func(col string, _ int) bool {
		return !lo.Contains(opts.RemoveColumns, col)
	})
	out.columns = append(kept, "input_ids", "labels")
	if len(kept) > 0 {
		out.examples = d.examples
	}
	return out, nil
}

// Filter keeps the encoded records matching pred.
func (d *Dataset) Filter(pred func(Encoded) bool) *Dataset {
	return &Dataset{
		columns: d.ColumnNames(),
		encoded: lo.Filter(d.encoded, func(e Encoded, _ int) bool {
			return pred(e)
		}),
	}
}
