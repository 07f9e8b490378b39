package tagger

import (
	"github.com/happyhackingspace/lextag/internal/textutil"
)

// Sentinels stand in for tokens outside the sequence so window features
// near the edges stay well defined.
const (
	beginToken = "<s>"
	endToken   = "</s>"
)

func tokenAt(tokens []string, i int) string {
	if i < 0 {
		return beginToken
	}
	if i >= len(tokens) {
		return endToken
	}
	return tokens[i]
}

// charFeatures extracts window features for the token at position i:
// unigrams over a two-token window, the adjacent bigrams, and the coarse
// character class of the token itself.
func charFeatures(tokens []string, i int) map[string]float64 {
	cur := tokens[i]
	prev := tokenAt(tokens, i-1)
	next := tokenAt(tokens, i+1)

	feat := make(map[string]float64)
	feat["w[0]="+cur] = 1
	feat["w[-1]="+prev] = 1
	feat["w[+1]="+next] = 1
	feat["w[-2]="+tokenAt(tokens, i-2)] = 1
	feat["w[+2]="+tokenAt(tokens, i+2)] = 1
	feat["w[-1,0]="+prev+"|"+cur] = 1
	feat["w[0,+1]="+cur+"|"+next] = 1
	feat["type="+textutil.CharClass(cur)] = 1
	return feat
}

// SequenceFeatures extracts CRF feature dicts for every position of a token
// sequence.
func SequenceFeatures(tokens []string) []map[string]float64 {
	res := make([]map[string]float64, len(tokens))
	for i := range tokens {
		feat := charFeatures(tokens, i)

		if i == 0 {
			feat["is-first"] = 1
		}
		if i == len(tokens)-1 {
			feat["is-last"] = 1
		}

		feat["bias"] = 1

		res[i] = feat
	}
	return res
}
