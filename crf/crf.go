// Package crf implements a linear-chain Conditional Random Field over
// padded batches of emission scores: log-likelihood loss, Viterbi
// decoding and OWL-QN training.
package crf

import "fmt"

// Alphabet maps between string labels/attributes and integer IDs.
type Alphabet struct {
	ToID  map[string]int `json:"to_id"`
	ToStr []string       `json:"to_str"`
}

// NewAlphabet creates an empty alphabet.
func NewAlphabet() *Alphabet {
	return &Alphabet{
		ToID: make(map[string]int),
	}
}

// Add adds a string to the alphabet if not already present, returns its ID.
func (a *Alphabet) Add(s string) int {
	if id, ok := a.ToID[s]; ok {
		return id
	}
	id := len(a.ToStr)
	a.ToID[s] = id
	a.ToStr = append(a.ToStr, s)
	return id
}

// Get returns the ID for a string, or -1 if not found.
func (a *Alphabet) Get(s string) int {
	if id, ok := a.ToID[s]; ok {
		return id
	}
	return -1
}

// Size returns the number of entries.
func (a *Alphabet) Size() int {
	return len(a.ToStr)
}

// Transitions holds the label-to-label transition scores together with the
// start and end boundary scores. Scoring and decoding treat it as read-only;
// only the trainer rewrites it between iterations.
type Transitions struct {
	NumLabels int         `json:"num_labels"`
	Weights   [][]float64 `json:"weights"` // [L][L] from -> to
	Start     []float64   `json:"start"`   // [L] score for the label opening a sequence
	End       []float64   `json:"end"`     // [L] score for the label closing a sequence
}

// NewTransitions creates a zero-valued transition table for numLabels labels.
func NewTransitions(numLabels int) *Transitions {
	w := make([][]float64, numLabels)
	for i := 0; i < numLabels; i++ {
		w[i] = make([]float64, numLabels)
	}
	return &Transitions{
		NumLabels: numLabels,
		Weights:   w,
		Start:     make([]float64, numLabels),
		End:       make([]float64, numLabels),
	}
}

// Model holds the CRF parameters.
type Model struct {
	Labels     *Alphabet `json:"labels"`
	Attributes *Alphabet `json:"attributes"`
	Weights    []float64 `json:"weights"`
	NumLabels  int       `json:"num_labels"`
	// Weight layout: [state_features... | transition_features... | start... | end...]
	// State feature index: attrID * numLabels + labelID
	// Transition feature index: transOffset + fromLabelID * numLabels + toLabelID
	// Boundary indices: startOffset + labelID, endOffset + labelID
}

// NewModel creates a new empty model.
func NewModel() *Model {
	return &Model{
		Labels:     NewAlphabet(),
		Attributes: NewAlphabet(),
	}
}

// TransOffset returns the offset where transition features start in the weight vector.
func (m *Model) TransOffset() int {
	return m.Attributes.Size() * m.NumLabels
}

// StartOffset returns the offset of the start boundary weights.
func (m *Model) StartOffset() int {
	return m.TransOffset() + m.NumLabels*m.NumLabels
}

// EndOffset returns the offset of the end boundary weights.
func (m *Model) EndOffset() int {
	return m.StartOffset() + m.NumLabels
}

// NumWeights returns the total number of weights.
func (m *Model) NumWeights() int {
	return m.EndOffset() + m.NumLabels
}

// StateFeatureIndex returns the weight index for a state feature.
func (m *Model) StateFeatureIndex(attrID, labelID int) int {
	return attrID*m.NumLabels + labelID
}

// TransFeatureIndex returns the weight index for a transition feature.
func (m *Model) TransFeatureIndex(fromLabelID, toLabelID int) int {
	return m.TransOffset() + fromLabelID*m.NumLabels + toLabelID
}

// TrainingSequence represents a labeled sequence for training.
type TrainingSequence struct {
	Features []map[string]float64 // per-position feature dicts
	Labels   []string             // gold labels
}

// Sequence represents an unlabeled sequence for prediction.
type Sequence struct {
	Features []map[string]float64 // per-position feature dicts
}

// ComputeStateScores computes state feature scores for each position and label.
// Returns [T][L] matrix where T is sequence length and L is number of labels.
func (m *Model) ComputeStateScores(features []map[string]float64) [][]float64 {
	T := len(features)
	L := m.NumLabels
	scores := make([][]float64, T)
	for t := 0; t < T; t++ {
		scores[t] = make([]float64, L)
		for attr, val := range features[t] {
			attrID := m.Attributes.Get(attr)
			if attrID < 0 {
				continue
			}
			for y := 0; y < L; y++ {
				idx := m.StateFeatureIndex(attrID, y)
				if idx < len(m.Weights) {
					scores[t][y] += m.Weights[idx] * val
				}
			}
		}
	}
	return scores
}

// Transitions materializes the transition and boundary weights as a copy
// detached from the flat weight vector.
func (m *Model) Transitions() *Transitions {
	L := m.NumLabels
	tr := NewTransitions(L)
	for i := 0; i < L; i++ {
		for j := 0; j < L; j++ {
			idx := m.TransFeatureIndex(i, j)
			if idx < len(m.Weights) {
				tr.Weights[i][j] = m.Weights[idx]
			}
		}
	}
	start, end := m.StartOffset(), m.EndOffset()
	for y := 0; y < L; y++ {
		if start+y < len(m.Weights) {
			tr.Start[y] = m.Weights[start+y]
		}
		if end+y < len(m.Weights) {
			tr.End[y] = m.Weights[end+y]
		}
	}
	return tr
}

// EmissionsFor scores a batch of feature sequences into a padded emission
// tensor, padding each sequence to the longest one in the batch. Padded
// positions keep zero scores and are masked out by the true lengths.
func (m *Model) EmissionsFor(seqs [][]map[string]float64) (*Emissions, []int, error) {
	maxLen := 0
	lengths := make([]int, len(seqs))
	for i, seq := range seqs {
		if len(seq) == 0 {
			return nil, nil, fmt.Errorf("score sequences: sequence %d is empty", i)
		}
		lengths[i] = len(seq)
		maxLen = max(maxLen, len(seq))
	}
	em := NewEmissions(len(seqs), maxLen, m.NumLabels)
	for b, seq := range seqs {
		scores := m.ComputeStateScores(seq)
		for t := range scores {
			copy(em.Row(b, t), scores[t])
		}
	}
	return em, lengths, nil
}
