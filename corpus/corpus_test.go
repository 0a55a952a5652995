// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package corpus

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	filename := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(filename, []byte(content), 0o644))
	return filename
}

func TestImportWithHeader(t *testing.T) {
	filename := writeFile(t, "corpus.tsv", "sen\tverb\twrong_verb\n"+
		"the dog near the cars\tbarks\tbark\n"+
		"\n"+
		"the keys\tare\tis\n")
	vocab := NewVocab([]string{UnkToken, "the", "dog", "keys"})

	c, err := Import(filename, ImportOptions{HeaderFromFirstLine: true, Vocab: vocab})
	require.NoError(t, err)
	require.Len(t, c.Examples, 2)

	ex := c.Examples[0]
	assert.Equal(t, 0, ex.ID)
	assert.Equal(t, []string{"the", "dog", "near", "the", "cars"}, ex.Sen)
	assert.Equal(t, []int{1, 2, 0, 1, 0}, ex.TokenIDs)
	assert.Equal(t, "barks", ex.Fields["verb"])
	assert.Equal(t, "bark", ex.Fields["wrong_verb"])
	assert.Equal(t, 1, c.Examples[1].ID)
}

func TestImportDuplicateIDs(t *testing.T) {
	filename := writeFile(t, "corpus.tsv", "id\tsen\n3\ta b\n3\tc\n")
	_, err := Import(filename, ImportOptions{HeaderFromFirstLine: true})
	assert.Error(t, err)
}

func TestImportColumnMismatch(t *testing.T) {
	filename := writeFile(t, "corpus.tsv", "a b\textra\n")
	_, err := Import(filename, ImportOptions{})
	assert.Error(t, err)
}

func TestVocab(t *testing.T) {
	filename := writeFile(t, "vocab.txt", "<unk>\nthe\ncat\n")
	v, err := LoadVocab(filename)
	require.NoError(t, err)
	assert.Equal(t, 3, v.Len())

	id, err := v.ID("cat")
	require.NoError(t, err)
	assert.Equal(t, 2, id)
	id, err = v.ID("dog")
	require.NoError(t, err)
	assert.Equal(t, 0, id)

	_, err = NewVocab([]string{"the"}).ID("dog")
	assert.Error(t, err)
}

func TestDefaultInitCorpus(t *testing.T) {
	c, err := DefaultInitCorpus(nil)
	require.NoError(t, err)
	require.Len(t, c.Examples, 1)
	assert.NotEmpty(t, c.Examples[0].Sen)
	assert.Nil(t, c.Examples[0].TokenIDs)
}

func TestIteratorSortsStably(t *testing.T) {
	c, err := FromSentences([][]string{
		{"a"},
		{"a", "b", "c"},
		{"a", "b"},
		{"x", "y", "z"},
		{"a", "b", "c", "d"},
	}, nil)
	require.NoError(t, err)

	it, err := NewIterator(c, 4, true)
	require.NoError(t, err)

	b, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, []int{3, 3, 2, 1}, b.Lengths)
	assert.Equal(t, []int{1, 3, 2, 0}, b.SentenceIDs())
	assert.Equal(t, []int{1, 3, 2, 0}, b.Order)
	assert.Equal(t, []int{1, 3, 2, 0}, b.Idx)

	b, err = it.Next()
	require.NoError(t, err)
	assert.Equal(t, []int{4}, b.SentenceIDs())
	assert.Equal(t, []int{0}, b.Order)
	assert.Equal(t, []int{4}, b.Idx)

	_, err = it.Next()
	assert.True(t, errors.Is(err, io.EOF))

	it.Reset()
	b, err = it.Next()
	require.NoError(t, err)
	assert.Equal(t, 4, b.Size())
}

func TestIteratorWithoutSorting(t *testing.T) {
	c, err := FromSentences([][]string{{"a"}, {"a", "b"}}, nil)
	require.NoError(t, err)
	it, err := NewIterator(c, 10, false)
	require.NoError(t, err)
	b, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, b.Lengths)

	_, err = NewIterator(c, 0, true)
	assert.Error(t, err)
}
