// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package extract drives recurrent models over corpora and collects the
// selected activations of every sentence.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nlpodyssey/diagflow/activations"
	"github.com/nlpodyssey/diagflow/corpus"
	"github.com/nlpodyssey/diagflow/models"
	"github.com/nlpodyssey/diagflow/store"
	"github.com/rs/zerolog/log"
)

// BatchIterator yields the batches of a corpus, each sorted by descending
// length. Next returns io.EOF once the corpus is exhausted.
type BatchIterator interface {
	Next() (*corpus.Batch, error)
}

// RemoveFunc deletes a whole activation store.
type RemoveFunc func() error

// Result is the outcome of an extraction.
type Result struct {
	// Store holds one record per sentence with at least one retained
	// position. Every entry of a record has one row per retained position,
	// in position order.
	Store store.Store
	// Written lists the sentence ids in the order they were flushed.
	Written []int
	// Remove deletes Store. Nothing is removed until it is called.
	Remove RemoveFunc
}

// Extractor collects activations over all the batches of an iterator.
type Extractor struct {
	model   models.RecurrentModel
	it      BatchIterator
	keys    []activations.Key
	policy  activations.SelectionPolicy
	backend store.Store
	states  *models.InitStateManager
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithSelection sets the selection policy (default activations.AcceptAll).
func WithSelection(p activations.SelectionPolicy) Option {
	return func(e *Extractor) {
		e.policy = p
	}
}

// WithDynamicDumping makes the extractor write each sentence to s as soon
// as its last retained position is computed, releasing its buffer.
// Without it, the extractor accumulates everything in memory.
func WithDynamicDumping(s store.Store) Option {
	return func(e *Extractor) {
		e.backend = s
	}
}

// WithInitStates makes the extractor start every sentence from the states
// held by s instead of the model's own.
func WithInitStates(s *models.InitStateManager) Option {
	return func(e *Extractor) {
		e.states = s
	}
}

// New returns a new Extractor of the named activations. It fails with a
// *activations.ConfigurationError if any key is unknown to the model.
func New(model models.RecurrentModel, it BatchIterator, keys []activations.Key, opts ...Option) (*Extractor, error) {
	if err := model.Sizes().Validate(keys); err != nil {
		return nil, err
	}
	e := &Extractor{
		model:  model,
		it:     it,
		keys:   append([]activations.Key(nil), keys...),
		policy: activations.AcceptAll,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.policy == nil {
		return nil, activations.Errorf("nil selection policy")
	}
	return e, nil
}

// Extract drives the model over every batch. On failure, sentences already
// written to a dynamic-dumping store stay there.
func (e *Extractor) Extract(ctx context.Context) (*Result, error) {
	target := e.backend
	if target == nil {
		target = store.NewMemory()
	}
	var driverOpts []DriverOption
	if e.states != nil {
		driverOpts = append(driverOpts, WithDriverInitStates(e.states))
	}
	driver := NewDriver(e.model, driverOpts...)

	res := &Result{Store: target, Remove: target.DeleteAll}
	seen := make(map[int]struct{})
	numBatches := 0
	for {
		batch, err := e.it.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read corpus batch %d: %w", numBatches, err)
		}
		for _, id := range batch.SentenceIDs() {
			if _, dup := seen[id]; dup {
				return nil, activations.Errorf("sentence id %d occurs more than once", id)
			}
			seen[id] = struct{}{}
		}

		bx, err := e.newBatchExtraction(batch, target)
		if err != nil {
			return nil, err
		}
		if _, err := driver.Run(ctx, batch, bx.step); err != nil {
			return nil, fmt.Errorf("batch %d: %w", numBatches, err)
		}
		res.Written = append(res.Written, bx.written...)
		numBatches++
		log.Debug().Msgf("Extracted batch %d (%d sentences, %d written)", numBatches, batch.Size(), len(bx.written))
	}
	log.Debug().Msgf("Extraction done: %d batches, %d sentences written", numBatches, len(res.Written))
	return res, nil
}

// batchExtraction buffers the retained rows of the sentences of one batch.
type batchExtraction struct {
	e        *Extractor
	batch    *corpus.Batch
	target   store.Store
	selected [][]bool
	last     []int
	cursor   []int
	buffers  []*activations.Dict
	written  []int
}

// newBatchExtraction evaluates the selection policy on every position of the
// batch and allocates exactly one row per retained position.
func (e *Extractor) newBatchExtraction(batch *corpus.Batch, target store.Store) (*batchExtraction, error) {
	n := batch.Size()
	bx := &batchExtraction{
		e:        e,
		batch:    batch,
		target:   target,
		selected: make([][]bool, n),
		last:     make([]int, n),
		cursor:   make([]int, n),
		buffers:  make([]*activations.Dict, n),
	}
	sizes := e.model.Sizes()
	for k, ex := range batch.Examples {
		bx.last[k] = -1
		bx.selected[k] = make([]bool, ex.Len())
		count := 0
		for pos := range bx.selected[k] {
			if e.policy.Accepts(ex.ID, pos, ex) {
				bx.selected[k][pos] = true
				bx.last[k] = pos
				count++
			}
		}
		if count == 0 {
			continue
		}
		buf, err := activations.NewZeroDict(sizes, e.keys, count)
		if err != nil {
			return nil, err
		}
		bx.buffers[k] = buf
	}
	return bx, nil
}

func (bx *batchExtraction) step(i, active int, state *activations.Dict, _ *activations.Tensor) error {
	for k := 0; k < active; k++ {
		if i >= len(bx.selected[k]) || !bx.selected[k][i] {
			continue
		}
		for _, key := range bx.e.keys {
			t, ok := state.Get(key)
			if !ok {
				return activations.ShapeMismatchf(key, "missing from model state")
			}
			dst, _ := bx.buffers[k].Get(key)
			dst.SetRow(bx.cursor[k], t.Row(k))
		}
		bx.cursor[k]++
		if i == bx.last[k] {
			if err := bx.flush(k); err != nil {
				return err
			}
		}
	}
	return nil
}

func (bx *batchExtraction) flush(k int) error {
	id := bx.batch.Examples[k].ID
	if err := bx.target.Write(id, bx.buffers[k]); err != nil {
		return err
	}
	bx.buffers[k] = nil
	bx.written = append(bx.written, id)
	log.Trace().Msgf("Flushed sentence %d", id)
	return nil
}
