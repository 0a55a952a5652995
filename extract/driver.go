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

// PrecheckViolation reports a batch the driver refuses to process: it is
// not sorted by descending length, or it holds an empty sequence.
type PrecheckViolation struct {
	Reason string
}

func (e *PrecheckViolation) Error() string {
	return "precheck violation: " + e.Reason
}

// BatchSizes returns, for each time step, the number of sequences still
// active. lengths must be sorted in descending order and strictly positive.
func BatchSizes(lengths []int) ([]int, error) {
	if len(lengths) == 0 {
		return nil, &PrecheckViolation{Reason: "empty batch"}
	}
	for k, l := range lengths {
		if l <= 0 {
			return nil, &PrecheckViolation{Reason: fmt.Sprintf("sequence %d has length %d", k, l)}
		}
		if k > 0 && l > lengths[k-1] {
			return nil, &PrecheckViolation{Reason: fmt.Sprintf("lengths not sorted in descending order: %v", lengths)}
		}
	}
	sizes := make([]int, lengths[0])
	j := len(lengths)
	for i := range sizes {
		for j > 0 && lengths[j-1] <= i {
			j--
		}
		sizes[i] = j
	}
	return sizes, nil
}

// StepFunc is called after each time step with the states of the active
// sequences: row k of every entry belongs to batch.Examples[k], for k in
// [0, active). out is nil unless the driver computes the output.
type StepFunc func(step, active int, state *activations.Dict, out *activations.Tensor) error

// Driver advances a recurrent model over a packed batch, one time step at a
// time, dropping sequences from the computation as soon as they end.
type Driver struct {
	model      models.RecurrentModel
	states     *models.InitStateManager
	computeOut bool
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithOutput makes the driver compute the output distribution at every step.
func WithOutput() DriverOption {
	return func(d *Driver) {
		d.computeOut = true
	}
}

// WithDriverInitStates makes the driver start every batch from the states
// held by s instead of the model's own.
func WithDriverInitStates(s *models.InitStateManager) DriverOption {
	return func(d *Driver) {
		d.states = s
	}
}

// NewDriver returns a new Driver for the model.
func NewDriver(model models.RecurrentModel, opts ...DriverOption) *Driver {
	d := &Driver{model: model, states: model.States()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run drives the batch through the model. The batch must be sorted by
// descending length. It returns a (batch size x output size) tensor holding
// the final top-layer hidden state of each sequence, at the row the
// sequence had before sorting (batch.Order).
func (d *Driver) Run(ctx context.Context, batch *corpus.Batch, fn StepFunc) (*activations.Tensor, error) {
	batchSizes, err := BatchSizes(batch.Lengths)
	if err != nil {
		return nil, err
	}
	sizes := d.model.Sizes()
	top := activations.Key{Layer: sizes.TopLayer(), Name: activations.Hidden}

	state, err := d.states.InitHidden(batch.Size())
	if err != nil {
		return nil, err
	}
	final := activations.NewTensor(batch.Size(), sizes.OutputSize())

	for i, j := range batchSizes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		state = state.SliceRows(j)

		input, err := d.input(batch, i, j)
		if err != nil {
			return nil, err
		}
		out, next, err := d.model.Step(ctx, input, state, d.computeOut)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		state = next

		h, ok := state.Get(top)
		if !ok {
			return nil, activations.ShapeMismatchf(top, "missing from model output")
		}
		for k := 0; k < j; k++ {
			final.SetRow(originalRow(batch, k), h.Row(k))
		}

		if fn != nil {
			if err := fn(i, j, state, out); err != nil {
				return nil, err
			}
		}
	}
	log.Trace().Msgf("Driven batch of %d sequences through %d steps", batch.Size(), len(batchSizes))
	return final, nil
}

// input gathers the tokens of the first j sequences at step i.
func (d *Driver) input(batch *corpus.Batch, i, j int) (models.Input, error) {
	if d.model.UseCharEmbs() {
		tokens := make([]string, j)
		for k := 0; k < j; k++ {
			tokens[k] = batch.Examples[k].Sen[i]
		}
		return models.Input{Tokens: tokens}, nil
	}
	ids := make([]int, j)
	for k := 0; k < j; k++ {
		ex := batch.Examples[k]
		if len(ex.TokenIDs) != ex.Len() {
			return models.Input{}, fmt.Errorf("sentence %d is not tokenized", ex.ID)
		}
		ids[k] = ex.TokenIDs[i]
	}
	return models.Input{IDs: ids}, nil
}

func originalRow(batch *corpus.Batch, k int) int {
	if batch.Order == nil {
		return k
	}
	return batch.Order[k]
}
