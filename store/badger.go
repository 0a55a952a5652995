// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package store

import (
	"os"

	"github.com/nlpodyssey/diagflow/activations"
	emb "github.com/nlpodyssey/spago/embeddings/store"
	"github.com/nlpodyssey/spago/embeddings/store/diskstore"
)

var _ Store = &Badger{}

// badgerStoreName is the name of the key-value store inside the repository.
const badgerStoreName = "activations"

// Badger keeps activations in a BadgerDB-backed disk repository.
type Badger struct {
	dir  string
	repo *diskstore.Repository
	kv   emb.Store
}

// NewBadger opens (or creates) a repository in dir.
func NewBadger(dir string) (*Badger, error) {
	if dir == "" {
		return nil, activations.Errorf("no activations directory given")
	}
	repo, err := diskstore.NewRepository(dir, diskstore.ReadWriteMode)
	if err != nil {
		return nil, storageErr("open", -1, err)
	}
	kv, err := repo.Store(badgerStoreName)
	if err != nil {
		_ = repo.Close()
		return nil, storageErr("open", -1, err)
	}
	return &Badger{dir: dir, repo: repo, kv: kv}, nil
}

// Write stores the gob encoding of d.
func (s *Badger) Write(sentenceID int, d *activations.Dict) error {
	key := encodeKey(sentenceID)
	exists, err := s.kv.Contains(key)
	if err != nil {
		return storageErr("write", sentenceID, err)
	}
	if exists {
		return storageErr("write", sentenceID, ErrExists)
	}
	data, err := activations.MarshalDict(d)
	if err != nil {
		return storageErr("write", sentenceID, err)
	}
	return storageErr("write", sentenceID, s.kv.Put(key, data))
}

// Read decodes the activations of a sentence.
func (s *Badger) Read(sentenceID int) (*activations.Dict, error) {
	var data []byte
	found, err := s.kv.Get(encodeKey(sentenceID), &data)
	if err != nil {
		return nil, storageErr("read", sentenceID, err)
	}
	if !found {
		return nil, storageErr("read", sentenceID, ErrNotFound)
	}
	d, err := activations.UnmarshalDict(data)
	return d, storageErr("read", sentenceID, err)
}

// IDs returns the sorted ids of the stored sentences.
func (s *Badger) IDs() ([]int, error) {
	keys, err := s.kv.Keys()
	if err != nil {
		return nil, storageErr("list", -1, err)
	}
	ids := make([]int, len(keys))
	for i, k := range keys {
		ids[i] = decodeKey(k)
	}
	return sortedIDs(ids), nil
}

// DeleteAll drops every record, closes the repository and removes its directory.
func (s *Badger) DeleteAll() error {
	if err := s.kv.DropAll(); err != nil {
		return storageErr("delete", -1, err)
	}
	if err := s.repo.Close(); err != nil {
		return storageErr("delete", -1, err)
	}
	return storageErr("delete", -1, os.RemoveAll(s.dir))
}

// Close closes the repository.
func (s *Badger) Close() error {
	return storageErr("close", -1, s.repo.Close())
}
