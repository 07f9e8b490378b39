// Package corpus loads lexical analysis datasets: token and tag
// dictionaries, character normalization tables and TSV splits, plus the
// batching that turns examples into padded ID sequences.
package corpus

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// OOVToken is the dictionary entry unknown input tokens fall back to.
const OOVToken = "OOV"

// Dict maps between tokens and integer IDs. On disk each line is either a
// bare token, whose ID is its 0-indexed line number, or an explicit
// "id<TAB>token" pair.
type Dict struct {
	ToID  map[string]int
	ToStr []string
}

// LoadDict reads a dictionary file.
func LoadDict(path string) (*Dict, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dict: %w", err)
	}
	defer f.Close()

	d := &Dict{ToID: make(map[string]int)}
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		// No trimming: tokens such as the full-width space are significant.
		line := scanner.Text()
		var token string
		if left, right, ok := strings.Cut(line, "\t"); ok {
			id, err := strconv.Atoi(left)
			if err != nil {
				return nil, fmt.Errorf("dict: line %d of %s: bad id %q", lineNo+1, path, left)
			}
			if id != lineNo {
				return nil, fmt.Errorf("dict: line %d of %s declares id %d", lineNo+1, path, id)
			}
			token = right
		} else {
			token = line
		}
		if _, ok := d.ToID[token]; ok {
			return nil, fmt.Errorf("dict: duplicate token %q in %s", token, path)
		}
		d.ToID[token] = lineNo
		d.ToStr = append(d.ToStr, token)
		lineNo++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("dict: read %s: %w", path, err)
	}
	if len(d.ToStr) == 0 {
		return nil, fmt.Errorf("dict: file is empty: %s", path)
	}
	return d, nil
}

// Size returns the number of entries.
func (d *Dict) Size() int {
	return len(d.ToStr)
}

// ID returns the ID for a token.
func (d *Dict) ID(token string) (int, bool) {
	id, ok := d.ToID[token]
	return id, ok
}

// Token returns the token for an ID.
func (d *Dict) Token(id int) (string, bool) {
	if id < 0 || id >= len(d.ToStr) {
		return "", false
	}
	return d.ToStr[id], true
}

// Convert maps tokens to IDs. Unknown tokens resolve to the fallback entry;
// with an empty fallback, or a fallback missing from the dictionary, an
// unknown token is an error.
func (d *Dict) Convert(tokens []string, fallback string) ([]int, error) {
	ids := make([]int, len(tokens))
	for i, token := range tokens {
		id, ok := d.ToID[token]
		if !ok {
			if fallback == "" {
				return nil, fmt.Errorf("dict: unknown token %q", token)
			}
			id, ok = d.ToID[fallback]
			if !ok {
				return nil, fmt.Errorf("dict: unknown token %q and no %q entry", token, fallback)
			}
		}
		ids[i] = id
	}
	return ids, nil
}
