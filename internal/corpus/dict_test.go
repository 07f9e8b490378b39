package corpus

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDictBareTokens(t *testing.T) {
	path := writeFile(t, t.TempDir(), "word.dic", "PAD\nOOV\n中\n国\n")

	d, err := LoadDict(path)
	require.NoError(t, err)
	assert.Equal(t, 4, d.Size())

	id, ok := d.ID("中")
	assert.True(t, ok)
	assert.Equal(t, 2, id)

	token, ok := d.Token(1)
	assert.True(t, ok)
	assert.Equal(t, "OOV", token)

	_, ok = d.ID("missing")
	assert.False(t, ok)
	_, ok = d.Token(9)
	assert.False(t, ok)
}

func TestLoadDictExplicitIDs(t *testing.T) {
	path := writeFile(t, t.TempDir(), "tag.dic", "0\tO\n1\tLOC-B\n2\tLOC-I\n")

	d, err := LoadDict(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"O", "LOC-B", "LOC-I"}, d.ToStr)
}

func TestLoadDictErrors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
	}{
		{"duplicate token", "a\nb\na\n"},
		{"bad id column", "x\tO\n"},
		{"id out of order", "1\tO\n0\tB\n"},
		{"empty file", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, tt.name+".dic", tt.content)
			_, err := LoadDict(path)
			assert.Error(t, err)
		})
	}

	_, err := LoadDict(filepath.Join(dir, "missing.dic"))
	assert.Error(t, err)
}

func TestDictConvert(t *testing.T) {
	path := writeFile(t, t.TempDir(), "word.dic", "PAD\nOOV\n中\n国\n")
	d, err := LoadDict(path)
	require.NoError(t, err)

	ids, err := d.Convert([]string{"中", "nowhere", "国"}, OOVToken)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1, 3}, ids)

	// Strict mode has no fallback entry.
	_, err = d.Convert([]string{"nowhere"}, "")
	assert.Error(t, err)

	// A fallback absent from the dictionary cannot absorb unknowns.
	_, err = d.Convert([]string{"nowhere"}, "UNK")
	assert.Error(t, err)
}
