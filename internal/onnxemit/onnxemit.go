// Package onnxemit scores token sequences with an externally trained ONNX
// encoder. A bundle directory holds the encoder next to the transition
// weights and dictionaries it was trained with, so decoding and evaluation
// can run against the same CRF head without retraining.
package onnxemit

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/happyhackingspace/lextag/crf"
	"github.com/happyhackingspace/lextag/internal/corpus"
)

// transitionsFile is the JSON layout of a bundle's transitions.json.
type transitionsFile struct {
	Labels      []string         `json:"labels"`
	Transitions *crf.Transitions `json:"transitions"`
}

// Emitter scores token batches through an ONNX encoder and exposes the
// transition weights the encoder was trained against.
type Emitter struct {
	session *encoderSession
	words   *corpus.Dict
	norm    *corpus.Normalizer
	labels  []string
	trans   *crf.Transitions
}

// Open loads an emitter bundle directory: encoder.onnx, transitions.json,
// word.dic and an optional q2b.dic replacement table.
func Open(dir string) (*Emitter, error) {
	tf, err := loadTransitions(filepath.Join(dir, "transitions.json"))
	if err != nil {
		return nil, fmt.Errorf("onnxemit: %w", err)
	}

	words, err := corpus.LoadDict(filepath.Join(dir, "word.dic"))
	if err != nil {
		return nil, fmt.Errorf("onnxemit: %w", err)
	}
	norm, err := corpus.LoadNormalizer(filepath.Join(dir, "q2b.dic"))
	if errors.Is(err, fs.ErrNotExist) {
		norm = corpus.NewNormalizer(nil)
	} else if err != nil {
		return nil, fmt.Errorf("onnxemit: %w", err)
	}

	session, err := newEncoderSession(filepath.Join(dir, "encoder.onnx"), len(tf.Labels))
	if err != nil {
		return nil, fmt.Errorf("onnxemit: %w", err)
	}

	return &Emitter{
		session: session,
		words:   words,
		norm:    norm,
		labels:  tf.Labels,
		trans:   tf.Transitions,
	}, nil
}

func loadTransitions(path string) (*transitionsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tf transitionsFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(tf.Labels) == 0 {
		return nil, fmt.Errorf("%s declares no labels", path)
	}
	if tf.Transitions == nil {
		return nil, fmt.Errorf("%s has no transitions", path)
	}
	if tf.Transitions.NumLabels != len(tf.Labels) {
		return nil, fmt.Errorf("%s: transitions cover %d labels, bundle declares %d",
			path, tf.Transitions.NumLabels, len(tf.Labels))
	}
	return &tf, nil
}

// Emissions scores a batch of token sequences into a padded emission tensor
// plus the true length of each sequence. Tokens are normalized and mapped
// through the bundle dictionary with the usual OOV fallback before inference.
func (e *Emitter) Emissions(batch [][]string) (*crf.Emissions, []int, error) {
	if len(batch) == 0 {
		return nil, nil, fmt.Errorf("onnxemit: empty batch")
	}

	maxLen := 0
	lengths := make([]int, len(batch))
	for i, tokens := range batch {
		if len(tokens) == 0 {
			return nil, nil, fmt.Errorf("onnxemit: sequence %d is empty", i)
		}
		lengths[i] = len(tokens)
		if len(tokens) > maxLen {
			maxLen = len(tokens)
		}
	}

	tokenIDs := make([]int64, len(batch)*maxLen)
	lens64 := make([]int64, len(batch))
	for i, tokens := range batch {
		ids, err := e.words.Convert(e.norm.Tokens(tokens), corpus.OOVToken)
		if err != nil {
			return nil, nil, fmt.Errorf("onnxemit: %w", err)
		}
		for t, id := range ids {
			tokenIDs[i*maxLen+t] = int64(id)
		}
		lens64[i] = int64(len(tokens))
	}

	raw, err := e.session.infer(tokenIDs, lens64, int64(len(batch)), int64(maxLen))
	if err != nil {
		return nil, nil, fmt.Errorf("onnxemit: %w", err)
	}

	em := crf.NewEmissions(len(batch), maxLen, len(e.labels))
	if len(raw) != len(em.Scores) {
		return nil, nil, fmt.Errorf("onnxemit: encoder returned %d scores, want %d", len(raw), len(em.Scores))
	}
	for i, v := range raw {
		em.Scores[i] = float64(v)
	}
	return em, lengths, nil
}

// Transitions returns the bundle's transition and boundary scores.
func (e *Emitter) Transitions() *crf.Transitions {
	return e.trans
}

// Labels returns the bundle's tag vocabulary in ID order.
func (e *Emitter) Labels() []string {
	return e.labels
}

// Close releases the ONNX Runtime resources.
func (e *Emitter) Close() error {
	if e.session != nil {
		return e.session.close()
	}
	return nil
}
