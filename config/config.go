// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config loads the YAML configuration of an extraction run.
package config

import (
	"fmt"
	"os"

	"github.com/nlpodyssey/diagflow/activations"
	"github.com/nlpodyssey/diagflow/store"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Model       ModelConfig       `yaml:"model"`
	InitStates  InitStatesConfig  `yaml:"init_states"`
	Corpus      CorpusConfig      `yaml:"corpus"`
	Activations ActivationsConfig `yaml:"activations"`
	Downstream  DownstreamConfig  `yaml:"downstream"`
}

// ModelConfig locates the model.
type ModelConfig struct {
	// Dir holds config.json and model.bin.
	Dir string `yaml:"dir"`
	// Vocab is the vocabulary file, one token per line.
	Vocab string `yaml:"vocab"`
	// Device must be "cpu".
	Device string `yaml:"device"`
}

// InitStatesConfig selects where the initial states come from.
type InitStatesConfig struct {
	Path       string `yaml:"path"`
	Corpus     string `yaml:"corpus"`
	UseDefault bool   `yaml:"use_default"`
	SaveTo     string `yaml:"save_to"`
}

// CorpusConfig locates the corpus to extract from.
type CorpusConfig struct {
	Path                string   `yaml:"path"`
	HeaderFromFirstLine bool     `yaml:"header_from_first_line"`
	Header              []string `yaml:"header"`
}

// ActivationsConfig configures the extraction.
type ActivationsConfig struct {
	// Names are "<layer>:<name>" strings, e.g. "1:hx".
	Names          []string `yaml:"names"`
	Dir            string   `yaml:"dir"`
	Backend        string   `yaml:"backend"`
	BatchSize      int      `yaml:"batch_size"`
	DynamicDumping bool     `yaml:"dynamic_dumping"`
	// Selection is "all" or "final_token".
	Selection string `yaml:"selection"`
}

// DownstreamConfig configures the agreement task.
type DownstreamConfig struct {
	Corpus      string `yaml:"corpus"`
	TargetField string `yaml:"target_field"`
	FoilField   string `yaml:"foil_field"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Model: ModelConfig{Device: "cpu"},
		Activations: ActivationsConfig{
			Backend:        store.BackendFiles,
			BatchSize:      1024,
			DynamicDumping: true,
			Selection:      "all",
		},
		Downstream: DownstreamConfig{
			TargetField: "verb",
			FoilField:   "wrong_verb",
		},
	}
}

// Load reads the configuration from a YAML file, on top of the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate returns a *activations.ConfigurationError describing the first
// invalid setting.
func (c *Config) Validate() error {
	if c.Model.Dir == "" {
		return activations.Errorf("model.dir is required")
	}
	if c.Activations.BatchSize < 1 {
		return activations.Errorf("activations.batch_size must be positive, got %d", c.Activations.BatchSize)
	}
	if _, err := c.Keys(); err != nil {
		return err
	}
	if _, err := c.Policy(); err != nil {
		return err
	}
	switch c.Activations.Backend {
	case store.BackendMemory, store.BackendFiles, store.BackendBadger, store.BackendSQLite:
	default:
		return activations.Errorf("unknown activations.backend %q", c.Activations.Backend)
	}
	if c.Activations.DynamicDumping && c.Activations.Backend == store.BackendMemory {
		return activations.Errorf("dynamic dumping requires a persistent backend")
	}
	return nil
}

// Keys parses the activation names.
func (c *Config) Keys() ([]activations.Key, error) {
	return activations.ParseKeys(c.Activations.Names)
}

// Policy returns the configured selection policy.
func (c *Config) Policy() (activations.SelectionPolicy, error) {
	return activations.Policy(c.Activations.Selection)
}
