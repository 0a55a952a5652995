// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lstm

import (
	"encoding/gob"

	"github.com/nlpodyssey/spago/ag"
	"github.com/nlpodyssey/spago/mat/float"
	"github.com/nlpodyssey/spago/nn"
)

var _ nn.Model = &Model{}

// Model implements a stack of LSTM layers.
type Model struct {
	nn.Module
	Layers []*Layer
	Config Config
}

// Config is the configuration of the LSTM stack.
type Config struct {
	InputSize  int
	HiddenSize int
	NumLayers  int
}

func init() {
	gob.Register(&Model{})
}

// New returns a new LSTM stack with zero-valued parameters.
func New[T float.DType](c Config) *Model {
	m := &Model{Config: c}
	for i := 0; i < c.NumLayers; i++ {
		in := c.HiddenSize
		if i == 0 {
			in = c.InputSize
		}
		m.Layers = append(m.Layers, NewLayer[T](in, c.HiddenSize))
	}
	return m
}

// ForwardSingle performs the forward step for a single element of the sequence.
// The output of each layer is the input of the next one; the returned state
// holds the new hidden and cell states of every layer.
func (m *Model) ForwardSingle(x ag.Node, state State) State {
	if len(state) == 0 {
		state = NewState[float32](m.Config)
	}
	next := make(State, len(m.Layers))
	for i, layer := range m.Layers {
		next[i] = layer.ForwardSingle(x, state[i])
		x = next[i].H
	}
	return next
}
