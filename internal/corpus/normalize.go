package corpus

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/width"
)

// Normalizer folds token variants onto their canonical form before
// dictionary lookup. A replacement table, typically q2b.dic mapping
// full-width characters to half-width ones, takes precedence; tokens it
// does not cover get Unicode width narrowing, which is a no-op for
// characters without a narrow variant.
type Normalizer struct {
	table map[string]string
}

// NewNormalizer creates a Normalizer around a replacement table. A nil
// table leaves width narrowing as the only rule.
func NewNormalizer(table map[string]string) *Normalizer {
	return &Normalizer{table: table}
}

// LoadNormalizer reads a two-column replacement file, one
// "from<TAB>to" pair per line.
func LoadNormalizer(path string) (*Normalizer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("normalizer: %w", err)
	}
	defer f.Close()

	table := make(map[string]string)
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		from, to, ok := strings.Cut(scanner.Text(), "\t")
		if !ok {
			return nil, fmt.Errorf("normalizer: line %d of %s has no replacement column", lineNo, path)
		}
		table[from] = to
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("normalizer: read %s: %w", path, err)
	}
	return &Normalizer{table: table}, nil
}

// Token normalizes a single token.
func (n *Normalizer) Token(token string) string {
	if repl, ok := n.table[token]; ok {
		return repl
	}
	return width.Narrow.String(token)
}

// Tokens normalizes a sequence into a fresh slice.
func (n *Normalizer) Tokens(tokens []string) []string {
	out := make([]string, len(tokens))
	for i, token := range tokens {
		out[i] = n.Token(token)
	}
	return out
}
