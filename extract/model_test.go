// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package extract

import (
	"context"
	"fmt"
	"testing"

	"github.com/nlpodyssey/diagflow/activations"
	"github.com/nlpodyssey/diagflow/models"
	"github.com/stretchr/testify/require"
)

var _ models.RecurrentModel = &stubModel{}

// stubModel is a deterministic two-layer recurrent model. At layer l, for
// token id x:
//
//	h' = h/2 + x + l
//	c' = c + 1
//
// The output at vocabulary entry v is v times the first component of the top
// hidden state.
type stubModel struct {
	width     int
	vocabSize int
	states    *models.InitStateManager
}

func newStubModel(t *testing.T) *stubModel {
	t.Helper()
	m := &stubModel{width: 3, vocabSize: testVocab.Len()}
	states, err := models.NewInitStateManager(m.Sizes(), models.DefaultExecContext())
	require.NoError(t, err)
	m.states = states
	return m
}

func (m *stubModel) Sizes() activations.SizeDict {
	return activations.SizeDict{
		0: {"h": m.width, "c": m.width},
		1: {"h": m.width, "c": m.width},
	}
}

func (m *stubModel) UseCharEmbs() bool { return false }

func (m *stubModel) States() *models.InitStateManager { return m.states }

func (m *stubModel) Step(_ context.Context, input models.Input, prev *activations.Dict, computeOut bool) (*activations.Tensor, *activations.Dict, error) {
	n := len(input.IDs)
	if n == 0 {
		return nil, nil, fmt.Errorf("token ids are required")
	}
	sizes := m.Sizes()
	if err := models.CheckState(sizes, prev, n); err != nil {
		return nil, nil, err
	}
	next := activations.NewDict()
	for l := 0; l < sizes.NumLayers(); l++ {
		hk := activations.Key{Layer: l, Name: activations.Hidden}
		ck := activations.Key{Layer: l, Name: activations.Cell}
		h, _ := prev.Get(hk)
		c, _ := prev.Get(ck)
		nh := activations.NewTensor(n, m.width)
		nc := activations.NewTensor(n, m.width)
		for r, id := range input.IDs {
			for i := 0; i < m.width; i++ {
				nh.Data[r*m.width+i] = h.Data[r*m.width+i]/2 + float32(id) + float32(l)
				nc.Data[r*m.width+i] = c.Data[r*m.width+i] + 1
			}
		}
		next.Set(hk, nh)
		next.Set(ck, nc)
	}
	if !computeOut {
		return nil, next, nil
	}
	top, _ := next.Get(activations.Key{Layer: sizes.TopLayer(), Name: activations.Hidden})
	out := activations.NewTensor(n, m.vocabSize)
	for r := 0; r < n; r++ {
		for v := 0; v < m.vocabSize; v++ {
			out.Data[r*m.vocabSize+v] = float32(v) * top.Row(r)[0]
		}
	}
	return out, next, nil
}
