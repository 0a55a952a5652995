// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package models

import (
	"fmt"

	"github.com/nlpodyssey/diagflow/activations"
	"github.com/rs/zerolog/log"
)

// DeviceCPU is the only device tensors can be materialized on.
const DeviceCPU = "cpu"

// ExecContext describes where tensors are materialized.
type ExecContext struct {
	Device string
}

// DefaultExecContext returns an ExecContext on the CPU.
func DefaultExecContext() ExecContext {
	return ExecContext{Device: DeviceCPU}
}

// Validate returns a *activations.ConfigurationError for unsupported devices.
func (c ExecContext) Validate() error {
	if c.Device != DeviceCPU {
		return activations.Errorf("unsupported device %q", c.Device)
	}
	return nil
}

// InitStateManager holds the states every sequence starts from: one row per
// hx/cx entry, expanded on demand to the batch size.
type InitStateManager struct {
	sizes activations.SizeDict
	exec  ExecContext
	init  *activations.Dict
}

// NewInitStateManager returns a manager holding zero states.
func NewInitStateManager(sizes activations.SizeDict, exec ExecContext) (*InitStateManager, error) {
	if err := sizes.Check(); err != nil {
		return nil, err
	}
	if err := exec.Validate(); err != nil {
		return nil, err
	}
	m := &InitStateManager{sizes: sizes, exec: exec}
	m.SetZero()
	return m, nil
}

// CreateZeroStates returns zero-valued hx and cx for every layer.
func (m *InitStateManager) CreateZeroStates(batchSize int) *activations.Dict {
	d := activations.NewDict()
	for _, k := range m.sizes.StateKeys() {
		w, _ := m.sizes.Width(k)
		d.Set(k, activations.NewTensor(batchSize, w))
	}
	return d
}

// Validate checks that d holds exactly hx and cx for every layer, each a
// single row as wide as the SizeDict prescribes.
func (m *InitStateManager) Validate(d *activations.Dict) error {
	return CheckState(m.sizes, d, 1)
}

// Set validates d and adopts a copy of it as the initial states.
func (m *InitStateManager) Set(d *activations.Dict) error {
	if err := m.Validate(d); err != nil {
		return err
	}
	m.init = d.Clone()
	return nil
}

// SetZero resets the initial states to zero.
func (m *InitStateManager) SetZero() {
	m.init = m.CreateZeroStates(1)
}

// Load reads initial states from a file written by Save.
func (m *InitStateManager) Load(filename string) error {
	log.Debug().Msgf("Loading init states from %s", filename)
	d, err := activations.LoadDict(filename)
	if err != nil {
		return fmt.Errorf("failed to load init states: %w", err)
	}
	return m.Set(d)
}

// Save writes the current initial states to filename.
func (m *InitStateManager) Save(filename string) error {
	return activations.SaveDict(filename, m.init)
}

// Current returns a copy of the initial states.
func (m *InitStateManager) Current() *activations.Dict {
	return m.init.Clone()
}

// InitHidden expands the initial states to batchSize identical rows.
// The stored states are never modified.
func (m *InitStateManager) InitHidden(batchSize int) (*activations.Dict, error) {
	if batchSize < 1 {
		return nil, activations.Errorf("invalid batch size %d", batchSize)
	}
	d, err := m.init.Repeat(batchSize)
	if err != nil {
		return nil, err
	}
	log.Trace().Str("device", m.exec.Device).Msgf("Expanded init states to batch size %d", batchSize)
	return d, nil
}
