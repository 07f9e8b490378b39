// Package textutil provides text helpers for character-level tagging.
package textutil

import (
	"unicode"
	"unicode/utf8"
)

// Chars splits text into single-character tokens, one per rune.
func Chars(text string) []string {
	out := make([]string, 0, utf8.RuneCountInString(text))
	for _, r := range text {
		out = append(out, string(r))
	}
	return out
}

// CharClass buckets a token by its first rune. The buckets feed tagger
// features, so they stay coarse and stable.
func CharClass(token string) string {
	r, _ := utf8.DecodeRuneInString(token)
	switch {
	case unicode.IsDigit(r):
		return "digit"
	case r < utf8.RuneSelf && unicode.IsLetter(r):
		return "latin"
	case unicode.IsLetter(r):
		return "letter"
	case unicode.IsSpace(r):
		return "space"
	case unicode.IsPunct(r) || unicode.IsSymbol(r):
		return "punct"
	default:
		return "other"
	}
}
