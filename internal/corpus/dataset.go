package corpus

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// fieldSep joins tokens and tags inside a TSV column.
const fieldSep = "\x02"

// Example is one labeled sequence of a dataset split.
type Example struct {
	Tokens []string
	Tags   []string
}

// ReadTSV reads a dataset split: a header line, then one example per line
// with a token column and a tag column, each \x02-separated. A row whose
// token and tag counts differ is an error.
func ReadTSV(path string) ([]Example, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	defer f.Close()

	var examples []Example
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if lineNo == 1 {
			continue // header
		}
		line := scanner.Text()
		if line == "" {
			continue
		}
		text, tags, ok := strings.Cut(line, "\t")
		if !ok {
			return nil, fmt.Errorf("dataset: line %d of %s has no tag column", lineNo, path)
		}
		example := Example{
			Tokens: strings.Split(text, fieldSep),
			Tags:   strings.Split(tags, fieldSep),
		}
		if len(example.Tokens) != len(example.Tags) {
			return nil, fmt.Errorf("dataset: line %d of %s has %d tokens but %d tags",
				lineNo, path, len(example.Tokens), len(example.Tags))
		}
		examples = append(examples, example)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("dataset: read %s: %w", path, err)
	}
	return examples, nil
}

// Corpus wraps a dataset folder holding TSV splits next to their
// dictionaries: word.dic, tag.dic and an optional q2b.dic replacement table.
type Corpus struct {
	Folder string
	Words  *Dict
	Tags   *Dict
	Norm   *Normalizer
}

// Open loads the dictionaries of a dataset folder.
func Open(folder string) (*Corpus, error) {
	words, err := LoadDict(filepath.Join(folder, "word.dic"))
	if err != nil {
		return nil, fmt.Errorf("open corpus: %w", err)
	}
	tags, err := LoadDict(filepath.Join(folder, "tag.dic"))
	if err != nil {
		return nil, fmt.Errorf("open corpus: %w", err)
	}
	norm, err := LoadNormalizer(filepath.Join(folder, "q2b.dic"))
	if errors.Is(err, fs.ErrNotExist) {
		norm = NewNormalizer(nil)
	} else if err != nil {
		return nil, fmt.Errorf("open corpus: %w", err)
	}
	return &Corpus{
		Folder: folder,
		Words:  words,
		Tags:   tags,
		Norm:   norm,
	}, nil
}

// Split reads the named TSV split, "train" or "test".
func (c *Corpus) Split(name string) ([]Example, error) {
	return ReadTSV(filepath.Join(c.Folder, name+".tsv"))
}

// Labels returns the tag vocabulary in dictionary order.
func (c *Corpus) Labels() []string {
	return c.Tags.ToStr
}
