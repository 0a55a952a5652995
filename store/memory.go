// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package store

import "github.com/nlpodyssey/diagflow/activations"

var _ Store = &Memory{}

// Memory keeps activations in memory.
type Memory struct {
	records map[int]*activations.Dict
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{records: make(map[int]*activations.Dict)}
}

// Write stores a copy of d.
func (m *Memory) Write(sentenceID int, d *activations.Dict) error {
	if _, ok := m.records[sentenceID]; ok {
		return storageErr("write", sentenceID, ErrExists)
	}
	m.records[sentenceID] = d.Clone()
	return nil
}

// Read returns a copy of the stored activations.
func (m *Memory) Read(sentenceID int) (*activations.Dict, error) {
	d, ok := m.records[sentenceID]
	if !ok {
		return nil, storageErr("read", sentenceID, ErrNotFound)
	}
	return d.Clone(), nil
}

// IDs returns the sorted ids of the stored sentences.
func (m *Memory) IDs() ([]int, error) {
	ids := make([]int, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	return sortedIDs(ids), nil
}

// Len returns the number of stored sentences.
func (m *Memory) Len() int {
	return len(m.records)
}

// DeleteAll drops every record.
func (m *Memory) DeleteAll() error {
	m.records = make(map[int]*activations.Dict)
	return nil
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}
