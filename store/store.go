// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package store persists extracted activations, one record per sentence.
package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/nlpodyssey/diagflow/activations"
)

// ErrNotFound is wrapped by the StorageError returned when reading a
// sentence that was never written.
var ErrNotFound = errors.New("record not found")

// ErrExists is wrapped by the StorageError returned when writing a sentence
// twice.
var ErrExists = errors.New("record already exists")

// Store is a collection of activations keyed by sentence id.
type Store interface {
	// Write persists the activations of a sentence. Each sentence is
	// written at most once.
	Write(sentenceID int, d *activations.Dict) error
	// Read returns the activations of a sentence.
	Read(sentenceID int) (*activations.Dict, error)
	// IDs returns the ids of all written sentences, sorted.
	IDs() ([]int, error)
	// DeleteAll removes the whole store, including its on-disk data.
	DeleteAll() error
	// Close releases the resources held by the store.
	Close() error
}

// StorageError reports a failed store operation.
type StorageError struct {
	Op         string
	SentenceID int
	Err        error
}

func (e *StorageError) Error() string {
	if e.SentenceID < 0 {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s of sentence %d: %v", e.Op, e.SentenceID, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, id int, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, SentenceID: id, Err: err}
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendFiles  = "files"
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
)

// Open opens a store of the given backend. path is a directory for "files"
// and "badger", a database file for "sqlite", and ignored for "memory".
func Open(backend, path string) (Store, error) {
	switch backend {
	case BackendMemory:
		return NewMemory(), nil
	case BackendFiles, "":
		return NewFiles(path)
	case BackendBadger:
		return NewBadger(path)
	case BackendSQLite:
		return NewSQLite(path)
	default:
		return nil, activations.Errorf("unknown store backend %q", backend)
	}
}

// ReadAll reads every sentence of s.
func ReadAll(s Store) (map[int]*activations.Dict, error) {
	ids, err := s.IDs()
	if err != nil {
		return nil, err
	}
	out := make(map[int]*activations.Dict, len(ids))
	for _, id := range ids {
		d, err := s.Read(id)
		if err != nil {
			return nil, err
		}
		out[id] = d
	}
	return out, nil
}

func encodeKey(id int) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(int64(id))^(1<<63))
	return key
}

func decodeKey(key []byte) int {
	return int(int64(binary.BigEndian.Uint64(key) ^ (1 << 63)))
}

func sortedIDs(ids []int) []int {
	sort.Ints(ids)
	return ids
}
