package corpus

import (
	"fmt"
	"math/rand"
)

// Truncate clamps every example to at most maxLen positions. Tokens and
// tags are cut together, so the pairing survives.
func Truncate(examples []Example, maxLen int) []Example {
	out := make([]Example, len(examples))
	for i, ex := range examples {
		if len(ex.Tokens) > maxLen {
			ex = Example{Tokens: ex.Tokens[:maxLen], Tags: ex.Tags[:maxLen]}
		}
		out[i] = ex
	}
	return out
}

// Shuffle permutes examples in place with a seeded source, keeping
// training order reproducible.
func Shuffle(examples []Example, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(examples), func(i, j int) {
		examples[i], examples[j] = examples[j], examples[i]
	})
}

// Batches cuts examples into contiguous runs of batchSize. With dropLast a
// final short run is discarded, matching the training sampler; evaluation
// keeps it.
func Batches(examples []Example, batchSize int, dropLast bool) [][]Example {
	if batchSize < 1 {
		batchSize = 1
	}
	var batches [][]Example
	for start := 0; start < len(examples); start += batchSize {
		end := min(start+batchSize, len(examples))
		if end-start < batchSize && dropLast {
			break
		}
		batches = append(batches, examples[start:end])
	}
	return batches
}

// IDBatch is a batch converted to padded ID rows with true lengths. Both
// token and label rows pad with 0; consumers mask by length and never read
// the padding.
type IDBatch struct {
	TokenIDs [][]int
	LabelIDs [][]int
	Lengths  []int
	MaxLen   int
}

// PadBatch normalizes and converts a batch of examples, padding every row
// to the longest sequence in the batch. Unknown words fall back to the OOV
// entry; an unknown tag is an error.
func (c *Corpus) PadBatch(batch []Example) (*IDBatch, error) {
	if len(batch) == 0 {
		return nil, fmt.Errorf("pad batch: empty batch")
	}
	maxLen := 0
	for i, ex := range batch {
		if len(ex.Tokens) == 0 {
			return nil, fmt.Errorf("pad batch: example %d is empty", i)
		}
		maxLen = max(maxLen, len(ex.Tokens))
	}

	out := &IDBatch{
		TokenIDs: make([][]int, len(batch)),
		LabelIDs: make([][]int, len(batch)),
		Lengths:  make([]int, len(batch)),
		MaxLen:   maxLen,
	}
	for i, ex := range batch {
		tokenIDs, err := c.Words.Convert(c.Norm.Tokens(ex.Tokens), OOVToken)
		if err != nil {
			return nil, fmt.Errorf("pad batch: example %d: %w", i, err)
		}
		labelIDs, err := c.Tags.Convert(ex.Tags, "")
		if err != nil {
			return nil, fmt.Errorf("pad batch: example %d: %w", i, err)
		}
		out.Lengths[i] = len(ex.Tokens)
		out.TokenIDs[i] = padRow(tokenIDs, maxLen)
		out.LabelIDs[i] = padRow(labelIDs, maxLen)
	}
	return out, nil
}

func padRow(ids []int, maxLen int) []int {
	if len(ids) == maxLen {
		return ids
	}
	padded := make([]int, maxLen)
	copy(padded, ids)
	return padded
}
