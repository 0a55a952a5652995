// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lm

import (
	"encoding/gob"
	"fmt"

	"github.com/nlpodyssey/spago/ag"
	"github.com/nlpodyssey/spago/mat"
	"github.com/nlpodyssey/spago/nn"
)

// Embeddings is a lookup table holding one vector per entry.
type Embeddings struct {
	nn.Module
	Weights []nn.Param
}

// CharEmbeddings
func init() {
	gob.Register(&Embeddings{})
	gob.Register(&CharEmbeddings{})
}

// NewEmbeddings returns a zero-valued table of size vectors of length dim.
func NewEmbeddings(size, dim int) *Embeddings {
	weights := make([]nn.Param, size)
	for i := range weights {
		weights[i] = nn.NewParam(mat.NewEmptyVecDense[float32](dim))
	}
	return &Embeddings{Weights: weights}
}

// Encode returns the vectors of the given ids.
func (m *Embeddings) Encode(ids []int) ([]ag.Node, error) {
	out := make([]ag.Node, len(ids))
	for i, id := range ids {
		if id < 0 || id >= len(m.Weights) {
			return nil, fmt.Errorf("id %d out of range [0, %d)", id, len(m.Weights))
		}
		out[i] = m.Weights[id]
	}
	return out, nil
}

// CharEmbeddings composes the embedding of a raw token as the mean of the
// embeddings of its characters. Characters outside the alphabet share id 0.
type CharEmbeddings struct {
	nn.Module
	Table    *Embeddings
	Alphabet string
	index    map[rune]int
}

// NewCharEmbeddings returns zero-valued character embeddings of the given size.
func NewCharEmbeddings(alphabet string, size int) *CharEmbeddings {
	m := &CharEmbeddings{Alphabet: alphabet}
	m.buildIndex()
	m.Table = NewEmbeddings(len(m.index)+1, size)
	return m
}

func (m *CharEmbeddings) buildIndex() {
	m.index = make(map[rune]int)
	for _, r := range m.Alphabet {
		if _, ok := m.index[r]; !ok {
			m.index[r] = len(m.index) + 1
		}
	}
}

func (m *CharEmbeddings) charIDs(token string) []int {
	ids := make([]int, 0, len(token))
	for _, r := range token {
		ids = append(ids, m.index[r])
	}
	return ids
}

// Encode returns the embedding of each token.
func (m *CharEmbeddings) Encode(tokens []string) ([]ag.Node, error) {
	out := make([]ag.Node, len(tokens))
	for i, tok := range tokens {
		ids := m.charIDs(tok)
		if len(ids) == 0 {
			return nil, fmt.Errorf("cannot embed empty token at position %d", i)
		}
		vecs, err := m.Table.Encode(ids)
		if err != nil {
			return nil, fmt.Errorf("failed to encode characters of %q: %w", tok, err)
		}
		sum := vecs[0]
		for _, v := range vecs[1:] {
			sum = ag.Add(sum, v)
		}
		out[i] = ag.ProdScalar(sum, ag.Scalar(1/float32(len(ids))))
	}
	return out, nil
}
