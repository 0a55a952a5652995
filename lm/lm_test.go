// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lm

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nlpodyssey/diagflow/activations"
	"github.com/nlpodyssey/diagflow/models"
	"github.com/nlpodyssey/spago/ag"
	"github.com/nlpodyssey/spago/mat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testConfig = Config{
	VocabSize:     6,
	EmbeddingSize: 3,
	HiddenSize:    4,
	NumLayers:     2,
}

func newTestModel(t *testing.T) *Model {
	t.Helper()
	m, err := NewRandom(testConfig, 42, 0.5)
	require.NoError(t, err)
	return m
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, testConfig.Validate())

	bad := testConfig
	bad.NumLayers = 0
	var cfgErr *activations.ConfigurationError
	_, err := New(bad)
	assert.ErrorAs(t, err, &cfgErr)

	chars := testConfig
	chars.UseCharEmbs = true
	assert.ErrorAs(t, chars.Validate(), &cfgErr)

	device := testConfig
	device.Device = "cuda"
	_, err = New(device)
	assert.ErrorAs(t, err, &cfgErr)
}

func TestSizes(t *testing.T) {
	m := newTestModel(t)
	sizes := m.Sizes()
	require.NoError(t, sizes.Check())
	assert.Equal(t, 2, sizes.NumLayers())
	assert.Equal(t, 4, sizes.OutputSize())
	assert.False(t, m.UseCharEmbs())
	assert.NotNil(t, m.States())
}

func TestStep(t *testing.T) {
	m := newTestModel(t)
	prev := m.States().CreateZeroStates(3)

	out, next, err := m.Step(context.Background(), models.Input{IDs: []int{1, 2, 5}}, prev, true)
	require.NoError(t, err)
	require.NoError(t, models.CheckState(m.Sizes(), next, 3))
	require.NotNil(t, out)
	assert.Equal(t, 3, out.Rows)
	assert.Equal(t, testConfig.VocabSize, out.Cols)

	out, _, err = m.Step(context.Background(), models.Input{IDs: []int{1, 2, 5}}, prev, false)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestStepRowsAreIndependent(t *testing.T) {
	m := newTestModel(t)
	ctx := context.Background()

	_, batched, err := m.Step(ctx, models.Input{IDs: []int{3, 4}}, m.States().CreateZeroStates(2), false)
	require.NoError(t, err)

	for r, id := range []int{3, 4} {
		_, single, err := m.Step(ctx, models.Input{IDs: []int{id}}, m.States().CreateZeroStates(1), false)
		require.NoError(t, err)
		for _, k := range single.Keys() {
			want, _ := single.Get(k)
			got, _ := batched.Get(k)
			assert.Equal(t, want.Row(0), got.Row(r), "key %s row %d", k, r)
		}
	}
}

func TestStepPreconditions(t *testing.T) {
	m := newTestModel(t)
	ctx := context.Background()
	var shapeErr *activations.ShapeMismatchError

	_, _, err := m.Step(ctx, models.Input{IDs: []int{1, 2}}, m.States().CreateZeroStates(3), false)
	assert.ErrorAs(t, err, &shapeErr)

	partial := activations.NewDict()
	h, _ := m.States().CreateZeroStates(1).Get(activations.Key{Layer: 0, Name: activations.Hidden})
	partial.Set(activations.Key{Layer: 0, Name: activations.Hidden}, h)
	_, _, err = m.Step(ctx, models.Input{IDs: []int{1}}, partial, false)
	assert.ErrorAs(t, err, &shapeErr)

	_, _, err = m.Step(ctx, models.Input{IDs: []int{6}}, m.States().CreateZeroStates(1), false)
	assert.Error(t, err)

	_, _, err = m.Step(ctx, models.Input{Tokens: []string{"a"}}, m.States().CreateZeroStates(1), false)
	assert.Error(t, err)
}

func TestLogits(t *testing.T) {
	m := newTestModel(t)
	h := []float32{0.1, -0.2, 0.3, 0.4}

	full := m.Predict(ag.Var(mat.NewVecDense[float32](h))).Value().Data().F32()
	logits, err := m.Logits(h, []int{5, 0})
	require.NoError(t, err)
	assert.InDelta(t, full[5], logits[0], 1e-5)
	assert.InDelta(t, full[0], logits[1], 1e-5)

	_, err = m.Logits(h[:2], []int{0})
	assert.Error(t, err)
	_, err = m.Logits(h, []int{6})
	assert.Error(t, err)
}

func TestDumpLoad(t *testing.T) {
	m := newTestModel(t)
	dir := t.TempDir()
	require.NoError(t, Dump(m, filepath.Join(dir, DefaultModelFilename)))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, m.Config, loaded.Config)
	assert.Equal(t, m.paramRecords(), loaded.paramRecords())

	ctx := context.Background()
	input := models.Input{IDs: []int{0, 5}}
	want, _, err := m.Step(ctx, input, m.States().CreateZeroStates(2), true)
	require.NoError(t, err)
	got, _, err := loaded.Step(ctx, input, loaded.States().CreateZeroStates(2), true)
	require.NoError(t, err)
	assert.True(t, want.Equal(got))
}

func TestCharEmbeddings(t *testing.T) {
	c := testConfig
	c.UseCharEmbs = true
	c.Alphabet = "abc"
	m, err := NewRandom(c, 1, 0.5)
	require.NoError(t, err)
	assert.True(t, m.UseCharEmbs())
	assert.Nil(t, m.Embeddings)

	ctx := context.Background()
	_, next, err := m.Step(ctx, models.Input{Tokens: []string{"ab", "zzz"}}, m.States().CreateZeroStates(2), false)
	require.NoError(t, err)
	require.NoError(t, models.CheckState(m.Sizes(), next, 2))

	_, _, err = m.Step(ctx, models.Input{IDs: []int{1}}, m.States().CreateZeroStates(1), false)
	assert.Error(t, err)

	// "ba" has the same characters as "ab": the mean embedding is identical.
	_, a, err := m.Step(ctx, models.Input{Tokens: []string{"ab"}}, m.States().CreateZeroStates(1), false)
	require.NoError(t, err)
	_, b, err := m.Step(ctx, models.Input{Tokens: []string{"ba"}}, m.States().CreateZeroStates(1), false)
	require.NoError(t, err)
	for _, k := range a.Keys() {
		x, _ := a.Get(k)
		y, _ := b.Get(k)
		assert.InDeltaSlice(t, x.Data, y.Data, 1e-6)
	}

	dir := t.TempDir()
	require.NoError(t, Dump(m, filepath.Join(dir, DefaultModelFilename)))
	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, m.paramRecords(), loaded.paramRecords())
}

func TestEmbeddings(t *testing.T) {
	e := NewEmbeddings(3, 2)
	require.Len(t, e.Weights, 3)
	e.Weights[2].ReplaceValue(mat.NewVecDense[float32]([]float32{1, -1}))

	nodes, err := e.Encode([]int{2, 0, 2})
	require.NoError(t, err)
	require.Len(t, nodes, 3)
	assert.Equal(t, []float32{1, -1}, nodes[0].Value().Data().F32())
	assert.Equal(t, []float32{0, 0}, nodes[1].Value().Data().F32())

	_, err = e.Encode([]int{3})
	assert.Error(t, err)
	_, err = e.Encode([]int{-1})
	assert.Error(t, err)
}
