package metric

import "fmt"

// Counts holds chunk totals over one or more batches.
type Counts struct {
	Inferred int64 // chunks extracted from predictions
	Gold     int64 // chunks extracted from references
	Correct  int64 // exact span and type matches
}

// Add returns the element-wise sum of two count triples.
func (c Counts) Add(o Counts) Counts {
	return Counts{
		Inferred: c.Inferred + o.Inferred,
		Gold:     c.Gold + o.Gold,
		Correct:  c.Correct + o.Correct,
	}
}

// ChunkEvaluator scores predicted label ID sequences against gold ones.
// Compute is pure and safe for concurrent use; Update, Accumulate and Reset
// belong to a single accumulation point.
type ChunkEvaluator struct {
	kinds []labelKind
	total Counts
}

// NewChunkEvaluator resolves every label of the vocabulary under the scheme.
// A label that does not parse is a construction error, so scoring never hits
// an undefined tag.
func NewChunkEvaluator(labels []string, scheme Scheme) (*ChunkEvaluator, error) {
	if len(labels) == 0 {
		return nil, fmt.Errorf("chunk evaluator: no labels")
	}
	kinds := make([]labelKind, len(labels))
	for i, label := range labels {
		k, err := scheme.parseTag(label)
		if err != nil {
			return nil, fmt.Errorf("chunk evaluator: %w", err)
		}
		kinds[i] = k
	}
	return &ChunkEvaluator{kinds: kinds}, nil
}

// Compute extracts chunks from each prediction and gold row restricted to
// its true length and returns the batch's count triple. Padded positions are
// never read and never produce chunks.
func (e *ChunkEvaluator) Compute(lengths []int, preds, golds [][]int) (Counts, error) {
	if len(preds) != len(lengths) || len(golds) != len(lengths) {
		return Counts{}, fmt.Errorf("chunk evaluator: %d lengths, %d predictions, %d golds", len(lengths), len(preds), len(golds))
	}
	var counts Counts
	for b, n := range lengths {
		if n < 0 || n > len(preds[b]) || n > len(golds[b]) {
			return Counts{}, fmt.Errorf("chunk evaluator: length %d of example %d exceeds its rows", n, b)
		}
		pred, err := e.chunksOfIDs(preds[b][:n])
		if err != nil {
			return Counts{}, fmt.Errorf("chunk evaluator: example %d predictions: %w", b, err)
		}
		gold, err := e.chunksOfIDs(golds[b][:n])
		if err != nil {
			return Counts{}, fmt.Errorf("chunk evaluator: example %d golds: %w", b, err)
		}
		counts.Inferred += int64(len(pred))
		counts.Gold += int64(len(gold))
		counts.Correct += matchCount(pred, gold)
	}
	return counts, nil
}

// Update folds a batch's counts into the running totals.
func (e *ChunkEvaluator) Update(c Counts) {
	e.total = e.total.Add(c)
}

// Totals returns the accumulated counts.
func (e *ChunkEvaluator) Totals() Counts {
	return e.total
}

// Accumulate derives precision, recall and F1 from the accumulated counts.
// Ratios with a zero denominator are zero, as is F1 when both precision and
// recall vanish.
func (e *ChunkEvaluator) Accumulate() (precision, recall, f1 float64) {
	if e.total.Inferred > 0 {
		precision = float64(e.total.Correct) / float64(e.total.Inferred)
	}
	if e.total.Gold > 0 {
		recall = float64(e.total.Correct) / float64(e.total.Gold)
	}
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	return precision, recall, f1
}

// Reset clears the accumulated counts for a fresh evaluation run.
func (e *ChunkEvaluator) Reset() {
	e.total = Counts{}
}

func (e *ChunkEvaluator) chunksOfIDs(ids []int) ([]Chunk, error) {
	kinds := make([]labelKind, len(ids))
	for t, id := range ids {
		if id < 0 || id >= len(e.kinds) {
			return nil, fmt.Errorf("label %d outside [0, %d)", id, len(e.kinds))
		}
		kinds[t] = e.kinds[id]
	}
	return scanChunks(kinds), nil
}

// matchCount counts predicted chunks that exactly match a gold chunk in
// type, start and end.
func matchCount(pred, gold []Chunk) int64 {
	if len(pred) == 0 || len(gold) == 0 {
		return 0
	}
	set := make(map[Chunk]struct{}, len(gold))
	for _, c := range gold {
		set[c] = struct{}{}
	}
	var n int64
	for _, c := range pred {
		if _, ok := set[c]; ok {
			n++
		}
	}
	return n
}
