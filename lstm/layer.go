// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lstm

import (
	"encoding/gob"

	"github.com/nlpodyssey/spago/ag"
	"github.com/nlpodyssey/spago/mat"
	"github.com/nlpodyssey/spago/mat/float"
	"github.com/nlpodyssey/spago/nn"
)

var _ nn.Model = &Layer{}

// Layer is a single LSTM layer.
type Layer struct {
	nn.Module
	Input  *Gate
	Forget *Gate
	Cell   *Gate
	Output *Gate
}

// Gate holds the input-to-hidden and hidden-to-hidden projections of one
// gate, with the bias.
type Gate struct {
	nn.Module
	WIn  nn.Param
	WRec nn.Param
	B    nn.Param
}

func init() {
	gob.Register(&Layer{})
	gob.Register(&Gate{})
}

// NewLayer returns a new layer with zero-valued parameters.
func NewLayer[T float.DType](inputSize, hiddenSize int) *Layer {
	return &Layer{
		Input:  NewGate[T](inputSize, hiddenSize),
		Forget: NewGate[T](inputSize, hiddenSize),
		Cell:   NewGate[T](inputSize, hiddenSize),
		Output: NewGate[T](inputSize, hiddenSize),
	}
}

// NewGate returns a new gate with zero-valued parameters.
func NewGate[T float.DType](inputSize, hiddenSize int) *Gate {
	return &Gate{
		WIn:  nn.NewParam(mat.NewEmptyDense[T](hiddenSize, inputSize)),
		WRec: nn.NewParam(mat.NewEmptyDense[T](hiddenSize, hiddenSize)),
		B:    nn.NewParam(mat.NewEmptyVecDense[T](hiddenSize)),
	}
}

// Forward returns WIn·x + WRec·h + B.
func (g *Gate) Forward(x, h ag.Node) ag.Node {
	return ag.Add(ag.Add(ag.Mul(g.WIn, x), ag.Mul(g.WRec, h)), g.B)
}

// ForwardSingle performs the forward step for a single input.
//
//	i = σ(Wii·x + Whi·h + bi)
//	f = σ(Wif·x + Whf·h + bf)
//	g = tanh(Wig·x + Whg·h + bg)
//	o = σ(Wio·x + Who·h + bo)
//	c' = f ⊙ c + i ⊙ g
//	h' = o ⊙ tanh(c')
func (m *Layer) ForwardSingle(x ag.Node, state LayerState) LayerState {
	i := ag.Sigmoid(m.Input.Forward(x, state.H))
	f := ag.Sigmoid(m.Forget.Forward(x, state.H))
	g := ag.Tanh(m.Cell.Forward(x, state.H))
	o := ag.Sigmoid(m.Output.Forward(x, state.H))

	c := ag.Add(ag.Prod(f, state.C), ag.Prod(i, g))
	h := ag.Prod(o, ag.Tanh(c))
	return LayerState{H: h, C: c}
}

// Gates returns the gates in the order used by PyTorch checkpoints.
func (m *Layer) Gates() []*Gate {
	return []*Gate{m.Input, m.Forget, m.Cell, m.Output}
}
