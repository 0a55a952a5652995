// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package corpus

import (
	"fmt"
	"io"
	"sort"
)

// Batch is a group of examples driven through a model together.
// When produced by a sorting Iterator, examples are ordered by descending
// length; ties keep corpus order.
type Batch struct {
	Examples []*Example
	// Lengths[k] is the length of Examples[k].
	Lengths []int
	// Order[k] is the position Examples[k] had in the batch before sorting.
	Order []int
	// Idx[k] is the index of Examples[k] in the corpus.
	Idx []int
}

// Size returns the number of examples.
func (b *Batch) Size() int {
	return len(b.Examples)
}

// SentenceIDs returns the ids of the examples, in batch order.
func (b *Batch) SentenceIDs() []int {
	ids := make([]int, len(b.Examples))
	for i, ex := range b.Examples {
		ids[i] = ex.ID
	}
	return ids
}

// Iterator yields consecutive batches of a corpus.
type Iterator struct {
	corpus    *Corpus
	batchSize int
	sort      bool
	next      int
}

// NewIterator returns an iterator over c yielding batches of at most
// batchSize examples. With sortByLength, every batch is sorted by descending
// sentence length.
func NewIterator(c *Corpus, batchSize int, sortByLength bool) (*Iterator, error) {
	if batchSize < 1 {
		return nil, fmt.Errorf("invalid batch size %d", batchSize)
	}
	return &Iterator{corpus: c, batchSize: batchSize, sort: sortByLength}, nil
}

// Next returns the next batch, or io.EOF when the corpus is exhausted.
func (it *Iterator) Next() (*Batch, error) {
	if it.next >= len(it.corpus.Examples) {
		return nil, io.EOF
	}
	end := it.next + it.batchSize
	if end > len(it.corpus.Examples) {
		end = len(it.corpus.Examples)
	}

	n := end - it.next
	b := &Batch{
		Examples: make([]*Example, n),
		Lengths:  make([]int, n),
		Order:    make([]int, n),
		Idx:      make([]int, n),
	}
	for k := 0; k < n; k++ {
		b.Order[k] = k
		b.Idx[k] = it.next + k
	}
	if it.sort {
		sort.SliceStable(b.Order, func(i, j int) bool {
			return it.corpus.Examples[it.next+b.Order[i]].Len() > it.corpus.Examples[it.next+b.Order[j]].Len()
		})
	}
	for k, pos := range b.Order {
		ex := it.corpus.Examples[it.next+pos]
		b.Examples[k] = ex
		b.Lengths[k] = ex.Len()
		b.Idx[k] = it.next + pos
	}
	it.next = end
	return b, nil
}

// Reset rewinds the iterator to the first batch.
func (it *Iterator) Reset() {
	it.next = 0
}
