// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package models

import (
	"path/filepath"
	"testing"

	"github.com/nlpodyssey/diagflow/activations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSizes = activations.SizeDict{
	0: {"h": 4, "c": 4},
	1: {"h": 4, "c": 4},
}

func newManager(t *testing.T) *InitStateManager {
	t.Helper()
	m, err := NewInitStateManager(testSizes, DefaultExecContext())
	require.NoError(t, err)
	return m
}

func singleRowStates(value float32) *activations.Dict {
	d := activations.NewDict()
	for i, k := range testSizes.StateKeys() {
		data := make([]float32, 4)
		for j := range data {
			data[j] = value + float32(i*10+j)
		}
		d.Set(k, &activations.Tensor{Rows: 1, Cols: 4, Data: data})
	}
	return d
}

func TestCreateZeroStates(t *testing.T) {
	m := newManager(t)
	d := m.CreateZeroStates(3)
	require.NoError(t, CheckState(testSizes, d, 3))
	for _, k := range d.Keys() {
		x, _ := d.Get(k)
		assert.Equal(t, make([]float32, 12), x.Data)
	}
}

func TestInitHiddenRepeatsRows(t *testing.T) {
	m := newManager(t)
	states := singleRowStates(1)
	require.NoError(t, m.Set(states))

	for _, n := range []int{1, 2, 5} {
		d, err := m.InitHidden(n)
		require.NoError(t, err)
		require.NoError(t, CheckState(testSizes, d, n))
		for _, k := range d.Keys() {
			x, _ := d.Get(k)
			want, _ := states.Get(k)
			for r := 0; r < n; r++ {
				assert.Equal(t, want.Data, x.Row(r))
			}
		}
		x, _ := d.Get(activations.Key{Layer: 0, Name: activations.Hidden})
		x.SetRow(0, []float32{-1, -1, -1, -1})
	}
	assert.True(t, states.Equal(m.Current()), "stored states never change")

	_, err := m.InitHidden(0)
	var cfgErr *activations.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestSetRejectsShapeMismatch(t *testing.T) {
	m := newManager(t)

	missing := singleRowStates(0)
	trimmed := activations.NewDict()
	for _, k := range missing.Keys()[:3] {
		x, _ := missing.Get(k)
		trimmed.Set(k, x)
	}

	wide := singleRowStates(0)
	wide.Set(activations.Key{Layer: 1, Name: activations.Cell}, activations.NewTensor(1, 5))

	batched, err := singleRowStates(0).Repeat(2)
	require.NoError(t, err)

	for name, d := range map[string]*activations.Dict{
		"missing state": trimmed,
		"wrong width":   wide,
		"batch size":    batched,
	} {
		t.Run(name, func(t *testing.T) {
			var shapeErr *activations.ShapeMismatchError
			assert.ErrorAs(t, m.Set(d), &shapeErr)
		})
	}
	assert.True(t, m.CreateZeroStates(1).Equal(m.Current()))
}

func TestSaveLoad(t *testing.T) {
	m := newManager(t)
	require.NoError(t, m.Set(singleRowStates(2)))

	filename := filepath.Join(t.TempDir(), "init_states.bin")
	require.NoError(t, m.Save(filename))

	other := newManager(t)
	require.NoError(t, other.Load(filename))
	assert.True(t, m.Current().Equal(other.Current()))

	other.SetZero()
	assert.True(t, other.CreateZeroStates(1).Equal(other.Current()))
}

func TestExecContext(t *testing.T) {
	assert.NoError(t, DefaultExecContext().Validate())
	_, err := NewInitStateManager(testSizes, ExecContext{Device: "cuda"})
	var cfgErr *activations.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestFinalHidden(t *testing.T) {
	d := singleRowStates(0)
	h, err := FinalHidden(testSizes, d)
	require.NoError(t, err)
	want, _ := d.Get(activations.Key{Layer: 1, Name: activations.Hidden})
	assert.Equal(t, want, h)
}
