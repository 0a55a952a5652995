// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package models

import (
	"context"

	"github.com/nlpodyssey/diagflow/activations"
)

// Input is the batch of tokens fed to a model at one time step.
// Word-level models read IDs; models using character embeddings read Tokens.
type Input struct {
	IDs    []int
	Tokens []string
}

// Len returns the batch size of the input.
func (in Input) Len() int {
	if in.Tokens != nil {
		return len(in.Tokens)
	}
	return len(in.IDs)
}

// RecurrentModel is a model whose hidden and cell states can be advanced one
// time step at a time.
type RecurrentModel interface {
	// Sizes returns the width of every state of every layer.
	Sizes() activations.SizeDict
	// UseCharEmbs reports whether the model reads raw tokens instead of ids.
	UseCharEmbs() bool
	// States returns the manager of the initial states.
	States() *InitStateManager
	// Step performs a single forward pass across all layers.
	//
	// prev must hold hx and cx for every layer with a batch size equal to
	// the input's. The returned Dict holds the new hx and cx of every layer.
	// The output distribution is nil when computeOut is false.
	Step(ctx context.Context, input Input, prev *activations.Dict, computeOut bool) (*activations.Tensor, *activations.Dict, error)
}

// FinalHidden returns the top-layer hidden state of the given activations.
func FinalHidden(sizes activations.SizeDict, hidden *activations.Dict) (*activations.Tensor, error) {
	key := activations.Key{Layer: sizes.TopLayer(), Name: activations.Hidden}
	t, ok := hidden.Get(key)
	if !ok {
		return nil, activations.ShapeMismatchf(key, "missing final hidden state")
	}
	return t, nil
}

// CheckState verifies that state holds exactly hx and cx for every layer,
// with widths from sizes and the given batch size.
func CheckState(sizes activations.SizeDict, state *activations.Dict, batchSize int) error {
	keys := sizes.StateKeys()
	if state.Len() != len(keys) {
		return activations.ShapeMismatchf(activations.Key{}, "expected %d state entries, actual %d", len(keys), state.Len())
	}
	for _, k := range keys {
		t, ok := state.Get(k)
		if !ok {
			return activations.ShapeMismatchf(k, "state not found")
		}
		w, _ := sizes.Width(k)
		if t.Cols != w {
			return activations.ShapeMismatchf(k, "width %d, should be %d", t.Cols, w)
		}
		if t.Rows != batchSize {
			return activations.ShapeMismatchf(k, "batch size %d, should be %d", t.Rows, batchSize)
		}
	}
	return nil
}
