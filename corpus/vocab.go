// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package corpus

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// UnkToken is the fallback for out-of-vocabulary tokens.
const UnkToken = "<unk>"

// Vocab is a word-level token <-> id mapping.
type Vocab struct {
	itos []string
	stoi map[string]int
}

// NewVocab builds a vocabulary from tokens; the id of a token is its index.
func NewVocab(tokens []string) *Vocab {
	v := &Vocab{stoi: make(map[string]int, len(tokens))}
	for _, tok := range tokens {
		if _, ok := v.stoi[tok]; ok {
			continue
		}
		v.stoi[tok] = len(v.itos)
		v.itos = append(v.itos, tok)
	}
	return v
}

// LoadVocab reads a vocabulary file containing one token per line.
func LoadVocab(filename string) (*Vocab, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open vocabulary %q: %w", filename, err)
	}
	defer f.Close()

	var tokens []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		tok := strings.TrimSpace(scanner.Text())
		if tok == "" {
			continue
		}
		tokens = append(tokens, tok)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read vocabulary %q: %w", filename, err)
	}
	return NewVocab(tokens), nil
}

// Len returns the vocabulary size.
func (v *Vocab) Len() int {
	return len(v.itos)
}

// Lookup returns the id of tok, without falling back to UnkToken.
func (v *Vocab) Lookup(tok string) (int, bool) {
	id, ok := v.stoi[tok]
	return id, ok
}

// ID returns the id of tok, or the id of UnkToken for unknown tokens.
func (v *Vocab) ID(tok string) (int, error) {
	if id, ok := v.stoi[tok]; ok {
		return id, nil
	}
	if id, ok := v.stoi[UnkToken]; ok {
		return id, nil
	}
	return 0, fmt.Errorf("token %q not in vocabulary and no %s entry", tok, UnkToken)
}

// IDs maps each token with ID.
func (v *Vocab) IDs(tokens []string) ([]int, error) {
	ids := make([]int, len(tokens))
	for i, tok := range tokens {
		id, err := v.ID(tok)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

// Token returns the token with the given id.
func (v *Vocab) Token(id int) (string, bool) {
	if id < 0 || id >= len(v.itos) {
		return "", false
	}
	return v.itos[id], true
}
