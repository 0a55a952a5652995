// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package extract

import (
	"context"
	"fmt"

	"github.com/nlpodyssey/diagflow/activations"
	"github.com/nlpodyssey/diagflow/corpus"
	"github.com/nlpodyssey/diagflow/models"
	"github.com/rs/zerolog/log"
)

// bootstrapBatchSize is the batch size used to drive a bootstrap corpus.
const bootstrapBatchSize = 1024

// BootstrapInitStates computes initial states from a corpus: the model is
// run from zero states over c, and the hx and cx of every layer at the last
// position of the last sentence become the new initial states.
// The model's own initial states are not changed.
func BootstrapInitStates(ctx context.Context, m models.RecurrentModel, c *corpus.Corpus) (*activations.Dict, error) {
	if c == nil || len(c.Examples) == 0 {
		return nil, activations.Errorf("empty bootstrap corpus")
	}
	if len(c.Examples) > 1 {
		log.Warn().Msgf("Bootstrap corpus has %d sentences: only the last one determines the init states", len(c.Examples))
	}

	sizes := m.Sizes()
	zero, err := models.NewInitStateManager(sizes, models.DefaultExecContext())
	if err != nil {
		return nil, err
	}
	it, err := corpus.NewIterator(c, bootstrapBatchSize, true)
	if err != nil {
		return nil, err
	}
	ex, err := New(m, it, sizes.StateKeys(), WithSelection(activations.FinalToken), WithInitStates(zero))
	if err != nil {
		return nil, err
	}
	res, err := ex.Extract(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to bootstrap init states: %w", err)
	}
	defer res.Store.Close()

	last := c.Examples[len(c.Examples)-1].ID
	d, err := res.Store.Read(last)
	if err != nil {
		return nil, fmt.Errorf("failed to bootstrap init states: %w", err)
	}
	if err := zero.Validate(d); err != nil {
		return nil, err
	}
	return d, nil
}

// InitSource tells SetInitStates where the initial states come from.
// StatesPath takes precedence over a bootstrap corpus; a bootstrap corpus
// (Corpus, CorpusPath, or the default sentence with UseDefault) takes
// precedence over zero states.
type InitSource struct {
	// StatesPath is a file written by models.InitStateManager.Save.
	StatesPath string
	// Corpus is an already loaded bootstrap corpus.
	Corpus *corpus.Corpus
	// CorpusPath is a tab-separated bootstrap corpus file, one sentence per line.
	CorpusPath string
	// Vocab tokenizes the bootstrap corpus. It is loaded from VocabPath if nil.
	// Not needed by models using character embeddings.
	Vocab     *corpus.Vocab
	VocabPath string
	// UseDefault bootstraps from the bundled init sentence when no other
	// source is given.
	UseDefault bool
	// SaveTo, if set, is where bootstrapped states are saved.
	SaveTo string
}

func (s InitSource) hasCorpus() bool {
	return s.Corpus != nil || s.CorpusPath != "" || s.UseDefault
}

// SetInitStates replaces the initial states of the model. Without any
// source, the model starts from zero states.
func SetInitStates(ctx context.Context, m models.RecurrentModel, src InitSource) error {
	if src.StatesPath != "" {
		if src.hasCorpus() {
			log.Warn().Msg("Init states file given: ignoring bootstrap corpus")
		}
		return m.States().Load(src.StatesPath)
	}
	if !src.hasCorpus() {
		m.States().SetZero()
		return nil
	}

	c, err := src.bootstrapCorpus(m.UseCharEmbs())
	if err != nil {
		return err
	}
	d, err := BootstrapInitStates(ctx, m, c)
	if err != nil {
		return err
	}
	if err := m.States().Set(d); err != nil {
		return err
	}
	log.Debug().Msgf("Init states bootstrapped from %d sentences", len(c.Examples))

	if src.SaveTo != "" {
		if err := m.States().Save(src.SaveTo); err != nil {
			return fmt.Errorf("failed to save init states: %w", err)
		}
		log.Debug().Msgf("Init states saved to %s", src.SaveTo)
	}
	return nil
}

func (s InitSource) bootstrapCorpus(useCharEmbs bool) (*corpus.Corpus, error) {
	if s.Corpus != nil && (useCharEmbs || tokenized(s.Corpus)) {
		return s.Corpus, nil
	}
	vocab := s.Vocab
	if vocab == nil && s.VocabPath != "" {
		var err error
		if vocab, err = corpus.LoadVocab(s.VocabPath); err != nil {
			return nil, err
		}
	}
	if vocab == nil && !useCharEmbs {
		return nil, activations.Errorf("a vocabulary is required to bootstrap init states")
	}

	switch {
	case s.Corpus != nil:
		if err := s.Corpus.Tokenize(vocab); err != nil {
			return nil, err
		}
		return s.Corpus, nil
	case s.CorpusPath != "":
		return corpus.Import(s.CorpusPath, corpus.ImportOptions{Vocab: vocab})
	default:
		return corpus.DefaultInitCorpus(vocab)
	}
}

func tokenized(c *corpus.Corpus) bool {
	for _, ex := range c.Examples {
		if len(ex.TokenIDs) != ex.Len() {
			return false
		}
	}
	return true
}
