// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lstm

import (
	"github.com/nlpodyssey/spago/ag"
	"github.com/nlpodyssey/spago/mat"
	"github.com/nlpodyssey/spago/mat/float"
)

// State is the recurrent state of every layer of a single sequence.
type State []LayerState

// LayerState is the hidden and cell state of a layer.
type LayerState struct {
	H ag.Node
	C ag.Node
}

// NewState returns zero-valued states.
func NewState[T float.DType](c Config) State {
	state := make(State, c.NumLayers)
	for i := range state {
		state[i] = LayerState{
			H: ag.Var(mat.NewEmptyVecDense[T](c.HiddenSize)),
			C: ag.Var(mat.NewEmptyVecDense[T](c.HiddenSize)),
		}
	}
	return state
}

// Nodes returns the nodes of the state, e.g. to release them.
func (s State) Nodes() []ag.Node {
	nodes := make([]ag.Node, 0, 2*len(s))
	for _, l := range s {
		nodes = append(nodes, l.H, l.C)
	}
	return nodes
}
