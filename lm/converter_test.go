// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountLayers(t *testing.T) {
	params := paramsMap{
		"rnn.weight_ih_l0": &pytorch.Tensor{},
		"rnn.weight_ih_l1": &pytorch.Tensor{},
		"rnn.weight_hh_l0": &pytorch.Tensor{},
		"encoder.weight":   &pytorch.Tensor{},
	}
	n, err := countLayers(params.prefixed("rnn.weight_ih_l"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, params, 4)

	_, err = countLayers(params.prefixed("rnn.bias_ih_l"))
	assert.Error(t, err)
	_, err = countLayers(paramsMap{"x": &pytorch.Tensor{}})
	assert.Error(t, err)
}

func TestDeduce(t *testing.T) {
	v := 0
	require.NoError(t, deduce(&v, 5, "size"))
	assert.Equal(t, 5, v)
	assert.NoError(t, deduce(&v, 5, "size"))
	assert.Error(t, deduce(&v, 6, "size"))
}

func TestTensorData(t *testing.T) {
	f := &pytorch.Tensor{
		Source:        &pytorch.FloatStorage{Data: []float32{9, 1, 2, 3, 4}},
		StorageOffset: 1,
		Size:          []int{2, 2},
	}
	data, err := tensorData(f)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4}, data)

	d := &pytorch.Tensor{
		Source: &pytorch.DoubleStorage{Data: []float64{0.5, 1.5}},
		Size:   []int{2},
	}
	data, err = tensorData(d)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 1.5}, data)

	_, err = tensorData(&pytorch.Tensor{Source: &pytorch.LongStorage{Data: []int64{1}}, Size: []int{1}})
	assert.Error(t, err)

	assert.Equal(t, []float32{3, 4}, chunk([]float32{1, 2, 3, 4, 5, 6}, 1, 2))
}

func TestConvertSkipsExistingModel(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultModelFilename), []byte("existing"), 0o644))
	require.NoError(t, ConvertTorchCheckpoint(ConverterConfig{ModelDir: dir}))

	err := ConvertTorchCheckpoint(ConverterConfig{ModelDir: dir, OverwriteIfExist: true})
	assert.Error(t, err, "no checkpoint to convert")
}
