// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nlpodyssey/diagflow/activations"
	"github.com/nlpodyssey/diagflow/corpus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "diagflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
model:
  dir: models/lstm
  vocab: models/lstm/vocab.txt
init_states:
  use_default: true
  save_to: init.bin
corpus:
  path: corpus.tsv
  header_from_first_line: true
activations:
  names: ["0:cx", "1:hx"]
  backend: sqlite
  batch_size: 32
  selection: final_token
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "models/lstm", cfg.Model.Dir)
	assert.Equal(t, "cpu", cfg.Model.Device)
	assert.True(t, cfg.InitStates.UseDefault)
	assert.True(t, cfg.Corpus.HeaderFromFirstLine)
	assert.Equal(t, 32, cfg.Activations.BatchSize)
	assert.True(t, cfg.Activations.DynamicDumping)
	assert.Equal(t, "verb", cfg.Downstream.TargetField)

	keys, err := cfg.Keys()
	require.NoError(t, err)
	assert.Equal(t, []activations.Key{
		{Layer: 0, Name: activations.Cell},
		{Layer: 1, Name: activations.Hidden},
	}, keys)

	policy, err := cfg.Policy()
	require.NoError(t, err)
	ex := &corpus.Example{Sen: []string{"a", "b"}}
	assert.False(t, policy.Accepts(0, 0, ex))
	assert.True(t, policy.Accepts(0, 1, ex))
}

func TestLoadInvalid(t *testing.T) {
	cases := map[string]string{
		"missing model dir": "activations:\n  names: [\"0:hx\"]\n",
		"malformed name":    "model:\n  dir: m\nactivations:\n  names: [\"hx\"]\n",
		"unknown policy":    "model:\n  dir: m\nactivations:\n  selection: random\n",
		"unknown backend":   "model:\n  dir: m\nactivations:\n  backend: redis\n",
		"batch size":        "model:\n  dir: m\nactivations:\n  batch_size: -1\n",
		"memory dumping":    "model:\n  dir: m\nactivations:\n  backend: memory\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			var cfgErr *activations.ConfigurationError
			assert.ErrorAs(t, err, &cfgErr)
		})
	}

	_, err := Load(writeConfig(t, "model: [\n"))
	assert.Error(t, err)
}
