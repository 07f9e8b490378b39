// Package metric scores sequence labeling output at the chunk level:
// typed spans are extracted from tag sequences under a configurable
// scheme and compared exactly to derive precision, recall and F1.
package metric

import (
	"fmt"
	"strings"
)

// Scheme describes how positional markers compose with chunk types in a
// tagging scheme. The marker sets drive the chunk scan; nothing else about
// a scheme's identity matters.
type Scheme struct {
	Begin      string `json:"begin"`       // markers opening a new chunk, "B" or "BS"
	Inside     string `json:"inside"`      // markers continuing an open chunk, "I" or "IE"
	CloseAfter string `json:"close_after"` // markers closing the chunk at their own token, "ES"
	Outside    string `json:"outside"`     // markers carrying no chunk, "O"
	Suffix     bool   `json:"suffix"`      // tags read "PER-B" instead of "B-PER"
}

// BIO returns the two-marker scheme where chunks run from a B tag through
// the following I tags.
func BIO(suffix bool) Scheme {
	return Scheme{Begin: "B", Inside: "I", Outside: "O", Suffix: suffix}
}

// BIOES returns the scheme with explicit end (E) and single-token (S)
// markers alongside B and I.
func BIOES(suffix bool) Scheme {
	return Scheme{Begin: "BS", Inside: "IE", CloseAfter: "ES", Outside: "O", Suffix: suffix}
}

// labelKind is the scan behavior of one parsed tag.
type labelKind struct {
	typ     string
	outside bool
	begins  bool // opens a new chunk at this token
	inside  bool // continues an open chunk of the same type
	closes  bool // ends the chunk at this token
}

// parseTag resolves a tag string into its scan behavior.
func (s Scheme) parseTag(tag string) (labelKind, error) {
	if len(tag) == 1 && strings.ContainsRune(s.Outside, rune(tag[0])) {
		return labelKind{outside: true}, nil
	}

	var marker, typ string
	if s.Suffix {
		i := strings.LastIndex(tag, "-")
		if i < 0 {
			return labelKind{}, fmt.Errorf("tag %q has no marker suffix", tag)
		}
		typ, marker = tag[:i], tag[i+1:]
	} else {
		i := strings.Index(tag, "-")
		if i < 0 {
			return labelKind{}, fmt.Errorf("tag %q has no marker prefix", tag)
		}
		marker, typ = tag[:i], tag[i+1:]
	}
	if typ == "" {
		return labelKind{}, fmt.Errorf("tag %q has an empty chunk type", tag)
	}
	if len(marker) != 1 {
		return labelKind{}, fmt.Errorf("tag %q has marker %q, want a single letter", tag, marker)
	}

	m := rune(marker[0])
	k := labelKind{typ: typ}
	switch {
	case strings.ContainsRune(s.Begin, m):
		k.begins = true
	case strings.ContainsRune(s.Inside, m):
		k.inside = true
	default:
		return labelKind{}, fmt.Errorf("tag %q has marker %q outside the scheme", tag, marker)
	}
	if strings.ContainsRune(s.CloseAfter, m) {
		k.closes = true
	}
	return k, nil
}

// Chunk is a typed span of token positions, end exclusive.
type Chunk struct {
	Type  string `json:"type"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Chunks extracts typed spans from a tag sequence in one pass.
func (s Scheme) Chunks(tags []string) ([]Chunk, error) {
	kinds := make([]labelKind, len(tags))
	for t, tag := range tags {
		k, err := s.parseTag(tag)
		if err != nil {
			return nil, err
		}
		kinds[t] = k
	}
	return scanChunks(kinds), nil
}

// scanChunks walks the parsed tags left to right, tracking at most one open
// chunk. A continue marker without a matching open chunk acts as a begin, so
// malformed sequences still yield spans instead of dropping tokens.
func scanChunks(kinds []labelKind) []Chunk {
	var chunks []Chunk
	open := false
	var typ string
	var start int

	for t, k := range kinds {
		switch {
		case k.outside:
			if open {
				chunks = append(chunks, Chunk{typ, start, t})
				open = false
			}
		case k.begins, k.inside && (!open || typ != k.typ):
			if open {
				chunks = append(chunks, Chunk{typ, start, t})
			}
			open, typ, start = true, k.typ, t
		}
		if open && k.closes {
			chunks = append(chunks, Chunk{typ, start, t + 1})
			open = false
		}
	}
	if open {
		chunks = append(chunks, Chunk{typ, start, len(kinds)})
	}
	return chunks
}
