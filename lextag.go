// Package lextag labels text at the character level.
//
// It provides a linear-chain CRF pipeline for lexical analysis: the tagger
// segments and types spans of a sentence in one pass over its characters.
//
//	t, _ := lextag.New()
//	spans, _ := t.TagText("我去北京")
//	for _, s := range spans {
//	    fmt.Println(s.Text) // "北京"
//	    fmt.Println(s.Type) // "LOC"
//	}
package lextag

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/happyhackingspace/lextag/crf"
	"github.com/happyhackingspace/lextag/internal/textutil"
	"github.com/happyhackingspace/lextag/tagger"
)

// Tagger wraps a trained sequence labeling model.
type Tagger struct {
	model *tagger.Model
}

// Span holds one typed chunk of tagged text. Start and End are character
// offsets, end exclusive.
type Span struct {
	Text  string `json:"text"`
	Type  string `json:"type"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// New loads the tagger from "model.json", searching the current directory
// and parent directories up to the module root (where go.mod lives).
func New() (*Tagger, error) {
	path, err := findModel("model.json")
	if err != nil {
		return nil, fmt.Errorf("lextag: %w", err)
	}
	return Load(path)
}

func findModel(name string) (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		// Stop at module root
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", fmt.Errorf("model.json not found")
}

// ModelDir returns the directory holding the cached default model.
func ModelDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dir, "lextag")
}

// Load loads a trained tagger from a model file.
func Load(path string) (*Tagger, error) {
	model, err := tagger.Load(path)
	if err != nil {
		return nil, fmt.Errorf("lextag: %w", err)
	}
	return &Tagger{model: model}, nil
}

// Save writes the tagger to a model file.
func (t *Tagger) Save(path string) error {
	if t.model == nil {
		return fmt.Errorf("lextag: tagger not initialized")
	}
	if err := t.model.Save(path); err != nil {
		return fmt.Errorf("lextag: %w", err)
	}
	return nil
}

// Tag returns one tag per token.
func (t *Tagger) Tag(tokens []string) ([]string, error) {
	if t.model == nil {
		return nil, fmt.Errorf("lextag: tagger not initialized")
	}
	return t.model.Tag(tokens), nil
}

// TagProba returns per-token marginal tag probabilities.
func (t *Tagger) TagProba(tokens []string) ([]map[string]float64, error) {
	if t.model == nil {
		return nil, fmt.Errorf("lextag: tagger not initialized")
	}
	return t.model.TagProba(tokens), nil
}

// TagText splits text into characters, tags them and returns the typed
// spans the tags describe. Returns an empty slice (not nil) if the text
// holds no spans.
func (t *Tagger) TagText(text string) ([]Span, error) {
	if t.model == nil {
		return nil, fmt.Errorf("lextag: tagger not initialized")
	}

	tokens := textutil.Chars(text)
	if len(tokens) == 0 {
		return []Span{}, nil
	}

	chunks, err := t.model.Chunks(tokens)
	if err != nil {
		return nil, fmt.Errorf("lextag: %w", err)
	}

	spans := make([]Span, len(chunks))
	for i, ch := range chunks {
		spans[i] = Span{
			Text:  strings.Join(tokens[ch.Start:ch.End], ""),
			Type:  ch.Type,
			Start: ch.Start,
			End:   ch.End,
		}
	}
	return spans, nil
}

// Labels returns the tag vocabulary in ID order.
func (t *Tagger) Labels() []string {
	if t.model == nil {
		return nil
	}
	return t.model.Labels()
}

// Emissions scores a batch of token sequences, satisfying Emitter.
func (t *Tagger) Emissions(batch [][]string) (*crf.Emissions, []int, error) {
	if t.model == nil {
		return nil, nil, fmt.Errorf("lextag: tagger not initialized")
	}
	return t.model.Emissions(batch)
}

// Transitions returns the model's transition and boundary scores,
// satisfying Emitter.
func (t *Tagger) Transitions() *crf.Transitions {
	if t.model == nil {
		return nil
	}
	return t.model.Transitions()
}
