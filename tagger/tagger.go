// Package tagger trains and applies character-level sequence labeling
// models. A tagger couples a linear-chain CRF with the tagging scheme its
// labels follow, so predictions can be grouped back into typed chunks.
package tagger

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/happyhackingspace/lextag/crf"
	"github.com/happyhackingspace/lextag/metric"
)

// Sequence is one labeled example: tokens and their gold tags, aligned
// position by position.
type Sequence struct {
	Tokens []string `json:"tokens"`
	Tags   []string `json:"tags"`
}

// Model wraps a CRF model for sequence tagging.
type Model struct {
	CRF    *crf.Model
	Scheme metric.Scheme
}

// Train fits a CRF tagger on the given sequences.
func Train(sequences []Sequence, config crf.TrainerConfig, scheme metric.Scheme) (*Model, error) {
	training := make([]crf.TrainingSequence, len(sequences))
	for i, seq := range sequences {
		if len(seq.Tokens) != len(seq.Tags) {
			return nil, fmt.Errorf("tagger: sequence %d has %d tokens but %d tags", i, len(seq.Tokens), len(seq.Tags))
		}
		training[i] = crf.TrainingSequence{
			Features: SequenceFeatures(seq.Tokens),
			Labels:   seq.Tags,
		}
	}

	crfModel, err := crf.Train(training, config)
	if err != nil {
		return nil, fmt.Errorf("tagger: %w", err)
	}
	return &Model{CRF: crfModel, Scheme: scheme}, nil
}

// Tag returns one tag per token.
func (m *Model) Tag(tokens []string) []string {
	if len(tokens) == 0 {
		return nil
	}
	return m.CRF.Predict(SequenceFeatures(tokens))
}

// TagProba returns per-token marginal tag probabilities.
func (m *Model) TagProba(tokens []string) []map[string]float64 {
	if len(tokens) == 0 {
		return nil
	}
	return m.CRF.PredictMarginals(SequenceFeatures(tokens))
}

// Chunks tags the tokens and groups the predicted tags into typed spans
// according to the model's scheme.
func (m *Model) Chunks(tokens []string) ([]metric.Chunk, error) {
	chunks, err := m.Scheme.Chunks(m.Tag(tokens))
	if err != nil {
		return nil, fmt.Errorf("tagger: %w", err)
	}
	return chunks, nil
}

// Emissions scores a batch of token sequences into a padded emission tensor
// plus the true length of each sequence.
func (m *Model) Emissions(batch [][]string) (*crf.Emissions, []int, error) {
	seqs := make([][]map[string]float64, len(batch))
	for i, tokens := range batch {
		seqs[i] = SequenceFeatures(tokens)
	}
	em, lengths, err := m.CRF.EmissionsFor(seqs)
	if err != nil {
		return nil, nil, fmt.Errorf("tagger: %w", err)
	}
	return em, lengths, nil
}

// Transitions returns a copy of the model's transition and boundary scores.
func (m *Model) Transitions() *crf.Transitions {
	return m.CRF.Transitions()
}

// Labels returns the tag vocabulary in ID order.
func (m *Model) Labels() []string {
	return append([]string(nil), m.CRF.Labels.ToStr...)
}

// modelFile is the on-disk JSON layout. The CRF is kept as a raw message so
// loading goes through crf.UnmarshalModel and its layout validation.
type modelFile struct {
	CRF    json.RawMessage `json:"crf"`
	Scheme metric.Scheme   `json:"scheme"`
}

// Save writes the model to a JSON file.
func (m *Model) Save(path string) error {
	crfData, err := crf.MarshalModel(m.CRF)
	if err != nil {
		return fmt.Errorf("tagger: %w", err)
	}
	data, err := json.MarshalIndent(modelFile{CRF: crfData, Scheme: m.Scheme}, "", "  ")
	if err != nil {
		return fmt.Errorf("tagger: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Load reads a model written by Save.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tagger: %w", err)
	}
	var file modelFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("tagger: %w", err)
	}
	crfModel, err := crf.UnmarshalModel(file.CRF)
	if err != nil {
		return nil, fmt.Errorf("tagger: %w", err)
	}
	return &Model{CRF: crfModel, Scheme: file.Scheme}, nil
}
