package lextag

import (
	"fmt"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/happyhackingspace/lextag/crf"
	"github.com/happyhackingspace/lextag/internal/corpus"
	"github.com/happyhackingspace/lextag/metric"
	"github.com/happyhackingspace/lextag/tagger"
)

// TrainConfig holds configuration for training.
type TrainConfig struct {
	MaxSeqLen   int     // truncate training sequences to this many tokens
	Iterations  int     // optimizer iteration cap
	C1          float64 // L1 regularization strength
	C2          float64 // L2 regularization strength
	MaxExamples int     // subsample the training split to this many examples, 0 keeps all
	Seed        int64   // shuffle seed for subsampling
	Scheme      metric.Scheme
}

// DefaultTrainConfig returns the default training configuration.
func DefaultTrainConfig() *TrainConfig {
	return &TrainConfig{
		MaxSeqLen:  64,
		Iterations: 100,
		C1:         0.1,
		C2:         0.01,
		Scheme:     metric.BIO(true),
	}
}

// EvalConfig holds configuration for evaluation.
type EvalConfig struct {
	MaxSeqLen int // truncate test sequences to this many tokens
	BatchSize int
	Workers   int // concurrent batch decoders, 0 uses the CPU count
	Scheme    metric.Scheme
}

// EvalResult holds chunk- and token-level evaluation results over a test
// split.
type EvalResult struct {
	Precision     float64
	Recall        float64
	F1            float64
	Chunks        metric.Counts
	TokenCorrect  int64
	TokenTotal    int64
	TokenAccuracy float64
	AvgLoss       float64 // mean per-example negative log-likelihood
	Examples      int
}

// An Emitter scores token sequences into padded emission tensors. Both the
// trained Tagger and the ONNX bundle emitter satisfy it.
type Emitter interface {
	Emissions(batch [][]string) (*crf.Emissions, []int, error)
	Transitions() *crf.Transitions
	Labels() []string
}

// Train trains a tagger on the train split of a dataset folder. The folder
// holds train.tsv next to word.dic, tag.dic and an optional q2b.dic.
func Train(dataDir string, config *TrainConfig) (*Tagger, error) {
	if config == nil {
		config = DefaultTrainConfig()
	}

	c, err := corpus.Open(dataDir)
	if err != nil {
		return nil, fmt.Errorf("lextag: %w", err)
	}
	examples, err := c.Split("train")
	if err != nil {
		return nil, fmt.Errorf("lextag: %w", err)
	}
	if len(examples) == 0 {
		return nil, fmt.Errorf("lextag: no training examples in %s", dataDir)
	}

	if config.MaxSeqLen > 0 {
		examples = corpus.Truncate(examples, config.MaxSeqLen)
	}
	if config.MaxExamples > 0 && len(examples) > config.MaxExamples {
		corpus.Shuffle(examples, config.Seed)
		examples = examples[:config.MaxExamples]
	}

	sequences := make([]tagger.Sequence, len(examples))
	for i, ex := range examples {
		sequences[i] = tagger.Sequence{Tokens: ex.Tokens, Tags: ex.Tags}
	}

	trainerConfig := crf.DefaultTrainerConfig()
	trainerConfig.Labels = c.Labels()
	trainerConfig.C1 = config.C1
	trainerConfig.C2 = config.C2
	if config.Iterations > 0 {
		trainerConfig.MaxIterations = config.Iterations
	}

	scheme := config.Scheme
	if scheme == (metric.Scheme{}) {
		scheme = metric.BIO(true)
	}

	model, err := tagger.Train(sequences, trainerConfig, scheme)
	if err != nil {
		return nil, fmt.Errorf("lextag: %w", err)
	}
	return &Tagger{model: model}, nil
}

// batchResult carries the per-batch measurements back to the accumulator.
type batchResult struct {
	counts       metric.Counts
	tokenCorrect int64
	tokenTotal   int64
	loss         float64
	examples     int
}

// Evaluate scores an emitter against the test split of a dataset folder.
// Batches are decoded concurrently; all accumulation happens in this
// goroutine after the workers finish.
func Evaluate(em Emitter, dataDir string, config *EvalConfig) (*EvalResult, error) {
	maxSeqLen := 64
	batchSize := 300
	workers := runtime.NumCPU()
	scheme := metric.BIO(true)
	if config != nil {
		if config.MaxSeqLen > 0 {
			maxSeqLen = config.MaxSeqLen
		}
		if config.BatchSize > 0 {
			batchSize = config.BatchSize
		}
		if config.Workers > 0 {
			workers = config.Workers
		}
		if config.Scheme != (metric.Scheme{}) {
			scheme = config.Scheme
		}
	}

	tr := em.Transitions()
	if tr == nil {
		return nil, fmt.Errorf("lextag: emitter has no transitions")
	}

	c, err := corpus.Open(dataDir)
	if err != nil {
		return nil, fmt.Errorf("lextag: %w", err)
	}
	if !slices.Equal(em.Labels(), c.Labels()) {
		return nil, fmt.Errorf("lextag: emitter labels do not match tag.dic in %s", dataDir)
	}

	examples, err := c.Split("test")
	if err != nil {
		return nil, fmt.Errorf("lextag: %w", err)
	}
	if len(examples) == 0 {
		return nil, fmt.Errorf("lextag: no test examples in %s", dataDir)
	}
	examples = corpus.Truncate(examples, maxSeqLen)

	evaluator, err := metric.NewChunkEvaluator(c.Labels(), scheme)
	if err != nil {
		return nil, fmt.Errorf("lextag: %w", err)
	}

	batches := corpus.Batches(examples, batchSize, false)
	results := make(chan batchResult, len(batches))

	g := new(errgroup.Group)
	g.SetLimit(workers)
	for _, batch := range batches {
		g.Go(func() error {
			r, err := evalBatch(em, c, evaluator, tr, batch)
			if err != nil {
				return err
			}
			results <- r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("lextag: %w", err)
	}
	close(results)

	result := &EvalResult{}
	var totalLoss float64
	for r := range results {
		evaluator.Update(r.counts)
		result.TokenCorrect += r.tokenCorrect
		result.TokenTotal += r.tokenTotal
		totalLoss += r.loss
		result.Examples += r.examples
	}

	result.Precision, result.Recall, result.F1 = evaluator.Accumulate()
	result.Chunks = evaluator.Totals()
	if result.TokenTotal > 0 {
		result.TokenAccuracy = float64(result.TokenCorrect) / float64(result.TokenTotal)
	}
	if result.Examples > 0 {
		result.AvgLoss = totalLoss / float64(result.Examples)
	}
	return result, nil
}

// evalBatch decodes one batch and measures it against the gold labels. It
// only reads shared state, so batches can run in parallel.
func evalBatch(em Emitter, c *corpus.Corpus, evaluator *metric.ChunkEvaluator, tr *crf.Transitions, batch []corpus.Example) (batchResult, error) {
	tokens := make([][]string, len(batch))
	for i, ex := range batch {
		tokens[i] = ex.Tokens
	}

	emissions, lengths, err := em.Emissions(tokens)
	if err != nil {
		return batchResult{}, err
	}
	ids, err := c.PadBatch(batch)
	if err != nil {
		return batchResult{}, err
	}

	paths, _, err := crf.Decode(emissions, tr, lengths)
	if err != nil {
		return batchResult{}, err
	}
	counts, err := evaluator.Compute(lengths, paths, ids.LabelIDs)
	if err != nil {
		return batchResult{}, err
	}
	losses, err := crf.NLL(emissions, tr, ids.LabelIDs, lengths)
	if err != nil {
		return batchResult{}, err
	}

	r := batchResult{counts: counts, examples: len(batch)}
	for b, n := range lengths {
		for t := range n {
			if paths[b][t] == ids.LabelIDs[b][t] {
				r.tokenCorrect++
			}
		}
		r.tokenTotal += int64(n)
	}
	for _, loss := range losses {
		r.loss += loss
	}
	return r, nil
}
