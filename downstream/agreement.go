// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package downstream evaluates language models on tasks built on top of
// their final hidden states.
package downstream

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nlpodyssey/diagflow/activations"
	"github.com/nlpodyssey/diagflow/corpus"
	"github.com/nlpodyssey/diagflow/extract"
	"github.com/nlpodyssey/diagflow/models"
	"github.com/rs/zerolog/log"
)

// Scorer is a recurrent model able to score vocabulary entries from a
// hidden state.
type Scorer interface {
	models.RecurrentModel
	// Logits returns the logits of the given vocabulary ids.
	Logits(h []float32, ids []int) ([]float32, error)
}

// AgreementOptions configures Agreement.
type AgreementOptions struct {
	// BatchSize defaults to 1024.
	BatchSize int
	// TargetField is the field holding the correct verb (default "verb").
	TargetField string
	// FoilField is the field holding the wrong verb (default "wrong_verb").
	FoilField string
}

func (o AgreementOptions) withDefaults() AgreementOptions {
	if o.BatchSize == 0 {
		o.BatchSize = 1024
	}
	if o.TargetField == "" {
		o.TargetField = "verb"
	}
	if o.FoilField == "" {
		o.FoilField = "wrong_verb"
	}
	return o
}

// Agreement returns the fraction of sentences for which the model assigns a
// higher logit to the correct verb than to the wrong one, after reading the
// whole sentence.
func Agreement(ctx context.Context, m Scorer, c *corpus.Corpus, opts AgreementOptions) (float64, error) {
	opts = opts.withDefaults()
	if c.Vocab == nil {
		return 0, activations.Errorf("agreement scoring requires a corpus vocabulary")
	}
	if len(c.Examples) == 0 {
		return 0, activations.Errorf("empty agreement corpus")
	}
	it, err := corpus.NewIterator(c, opts.BatchSize, true)
	if err != nil {
		return 0, err
	}
	driver := extract.NewDriver(m)

	correct := 0
	for {
		batch, err := it.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, err
		}
		final, err := driver.Run(ctx, batch, nil)
		if err != nil {
			return 0, err
		}
		for k, ex := range batch.Examples {
			ids, err := verbIDs(c.Vocab, ex, opts)
			if err != nil {
				return 0, err
			}
			logits, err := m.Logits(final.Row(batch.Order[k]), ids)
			if err != nil {
				return 0, fmt.Errorf("sentence %d: %w", ex.ID, err)
			}
			if logits[0] > logits[1] {
				correct++
			}
		}
	}
	acc := float64(correct) / float64(len(c.Examples))
	log.Debug().Msgf("Agreement accuracy: %d/%d = %.4f", correct, len(c.Examples), acc)
	return acc, nil
}

func verbIDs(vocab *corpus.Vocab, ex *corpus.Example, opts AgreementOptions) ([]int, error) {
	ids := make([]int, 2)
	for i, field := range []string{opts.TargetField, opts.FoilField} {
		tok, ok := ex.Fields[field]
		if !ok {
			return nil, activations.Errorf("sentence %d has no %q field", ex.ID, field)
		}
		id, err := vocab.ID(tok)
		if err != nil {
			return nil, fmt.Errorf("sentence %d: %w", ex.ID, err)
		}
		ids[i] = id
	}
	return ids, nil
}
