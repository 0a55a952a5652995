// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package extract

import (
	"context"

	"github.com/nlpodyssey/diagflow/activations"
	"github.com/nlpodyssey/diagflow/corpus"
	"github.com/nlpodyssey/diagflow/models"
	"github.com/nlpodyssey/diagflow/store"
)

// SimpleBatchSize is the batch size used by SimpleExtract.
const SimpleBatchSize = 1024

// SimpleExtract extracts the named activations of c into a files store in
// dir, with dynamic dumping. The returned RemoveFunc deletes dir; it is
// returned even on failure, so that partial results can be removed.
func SimpleExtract(ctx context.Context, m models.RecurrentModel, c *corpus.Corpus, dir string, keys []activations.Key, policy activations.SelectionPolicy) (RemoveFunc, error) {
	s, err := store.NewFiles(dir)
	if err != nil {
		return nil, err
	}
	remove := RemoveFunc(s.DeleteAll)

	it, err := corpus.NewIterator(c, SimpleBatchSize, true)
	if err != nil {
		return remove, err
	}
	opts := []Option{WithDynamicDumping(s)}
	if policy != nil {
		opts = append(opts, WithSelection(policy))
	}
	ex, err := New(m, it, keys, opts...)
	if err != nil {
		return remove, err
	}
	if _, err := ex.Extract(ctx); err != nil {
		return remove, err
	}
	return remove, nil
}
