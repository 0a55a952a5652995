// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package diagflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/nlpodyssey/diagflow/activations"
	"github.com/nlpodyssey/diagflow/corpus"
	"github.com/nlpodyssey/diagflow/downstream"
	"github.com/nlpodyssey/diagflow/extract"
	"github.com/nlpodyssey/diagflow/lm"
	"github.com/nlpodyssey/diagflow/store"
	"github.com/rs/zerolog/log"
)

// SQLiteFilename is the database file of the sqlite backend, inside the
// activations directory.
const SQLiteFilename = "activations.db"

// DiagFlow is the core struct of the library.
type DiagFlow struct {
	Model *lm.Model
	// Vocab is nil for models using character embeddings.
	Vocab *corpus.Vocab
}

// Load loads a model from the given directory, and the vocabulary from
// vocabPath if not empty.
func Load(modelDir, vocabPath string) (*DiagFlow, error) {
	model, err := lm.Load(modelDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("error: unable to find the model file or directory '%s'. Please ensure that the model has been converted before trying again", modelDir)
		}
		return nil, err
	}
	d := &DiagFlow{Model: model}
	if vocabPath != "" {
		if d.Vocab, err = corpus.LoadVocab(vocabPath); err != nil {
			return nil, err
		}
		if d.Vocab.Len() != model.Config.VocabSize {
			log.Warn().Msgf("Vocabulary has %d tokens, model expects %d", d.Vocab.Len(), model.Config.VocabSize)
		}
	}
	if d.Vocab == nil && !model.UseCharEmbs() {
		return nil, activations.Errorf("a vocabulary is required by models using token embeddings")
	}
	return d, nil
}

// SetInitStates replaces the initial states of the model.
// The vocabulary of d is used if src has none.
func (d *DiagFlow) SetInitStates(ctx context.Context, src extract.InitSource) error {
	if src.Vocab == nil && src.VocabPath == "" {
		src.Vocab = d.Vocab
	}
	return extract.SetInitStates(ctx, d.Model, src)
}

// ImportCorpus reads a tab-separated corpus, tokenized with the vocabulary of d.
func (d *DiagFlow) ImportCorpus(filename string, opts corpus.ImportOptions) (*corpus.Corpus, error) {
	opts.Vocab = d.Vocab
	return corpus.Import(filename, opts)
}

// ExtractOptions configures DiagFlow.Extract.
type ExtractOptions struct {
	Keys []activations.Key
	// Dir is where activations are written. Default: a new directory under
	// the system temporary directory.
	Dir string
	// Backend is one of the store backends (default "files").
	Backend        string
	BatchSize      int
	DynamicDumping bool
	Selection      activations.SelectionPolicy
}

// Extract extracts activations from c. The returned Result's Remove deletes
// the whole activations directory. Requested activations are validated
// before anything is written to opts.Dir.
func (d *DiagFlow) Extract(ctx context.Context, c *corpus.Corpus, opts ExtractOptions) (*extract.Result, error) {
	if err := d.Model.Sizes().Validate(opts.Keys); err != nil {
		return nil, err
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = extract.SimpleBatchSize
	}
	if opts.Dir == "" {
		opts.Dir = filepath.Join(os.TempDir(), "diagflow-activations-"+uuid.NewString())
	}

	it, err := corpus.NewIterator(c, opts.BatchSize, true)
	if err != nil {
		return nil, err
	}

	var xopts []extract.Option
	if opts.Selection != nil {
		xopts = append(xopts, extract.WithSelection(opts.Selection))
	}
	var backend store.Store
	created := false
	if opts.DynamicDumping {
		if _, statErr := os.Stat(opts.Dir); os.IsNotExist(statErr) {
			created = true
		}
		if backend, err = openBackend(opts.Backend, opts.Dir); err != nil {
			return nil, err
		}
		xopts = append(xopts, extract.WithDynamicDumping(backend))
		log.Debug().Str("backend", opts.Backend).Msgf("Dumping activations to %s", opts.Dir)
	}

	ex, err := extract.New(d.Model, it, opts.Keys, xopts...)
	if err != nil {
		if backend != nil {
			_ = backend.Close()
			if created {
				_ = os.RemoveAll(opts.Dir)
			}
		}
		return nil, err
	}
	res, err := ex.Extract(ctx)
	if err != nil {
		if backend != nil {
			_ = backend.Close()
			return nil, fmt.Errorf("extraction failed, partial activations left in %s: %w", opts.Dir, err)
		}
		return nil, err
	}
	if backend != nil {
		remove := res.Remove
		res.Remove = func() error {
			if err := remove(); err != nil {
				return err
			}
			return os.RemoveAll(opts.Dir)
		}
	}
	return res, nil
}

func openBackend(backend, dir string) (store.Store, error) {
	if backend == store.BackendSQLite {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		return store.Open(backend, filepath.Join(dir, SQLiteFilename))
	}
	return store.Open(backend, dir)
}

// Agreement scores the model on a subject-verb agreement corpus.
func (d *DiagFlow) Agreement(ctx context.Context, c *corpus.Corpus, opts downstream.AgreementOptions) (float64, error) {
	return downstream.Agreement(ctx, d.Model, c, opts)
}
