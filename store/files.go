// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nlpodyssey/diagflow/activations"
)

var _ Store = &Files{}

const recordExt = ".gob"

// Files stores one gob file per sentence in a directory.
type Files struct {
	dir string
}

// NewFiles returns a store rooted at dir, creating it if needed.
func NewFiles(dir string) (*Files, error) {
	if dir == "" {
		return nil, activations.Errorf("no activations directory given")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, storageErr("open", -1, err)
	}
	return &Files{dir: dir}, nil
}

// Dir returns the directory of the store.
func (s *Files) Dir() string {
	return s.dir
}

func (s *Files) filename(id int) string {
	return filepath.Join(s.dir, strconv.Itoa(id)+recordExt)
}

// Write writes d to a temporary file, then renames it, so that a sentence
// file only exists once completely written.
func (s *Files) Write(sentenceID int, d *activations.Dict) error {
	filename := s.filename(sentenceID)
	if _, err := os.Stat(filename); err == nil {
		return storageErr("write", sentenceID, ErrExists)
	}
	tmp := filename + ".tmp"
	if err := activations.SaveDict(tmp, d); err != nil {
		_ = os.Remove(tmp)
		return storageErr("write", sentenceID, err)
	}
	if err := os.Rename(tmp, filename); err != nil {
		_ = os.Remove(tmp)
		return storageErr("write", sentenceID, err)
	}
	return nil
}

// Read reads the activations of a sentence.
func (s *Files) Read(sentenceID int) (*activations.Dict, error) {
	d, err := activations.LoadDict(s.filename(sentenceID))
	if os.IsNotExist(err) {
		return nil, storageErr("read", sentenceID, ErrNotFound)
	}
	return d, storageErr("read", sentenceID, err)
}

// IDs lists the sentence files of the directory.
func (s *Files) IDs() ([]int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, storageErr("list", -1, err)
	}
	var ids []int
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), recordExt)
		if !ok || e.IsDir() {
			continue
		}
		id, err := strconv.Atoi(name)
		if err != nil {
			return nil, storageErr("list", -1, fmt.Errorf("unexpected file %q", e.Name()))
		}
		ids = append(ids, id)
	}
	return sortedIDs(ids), nil
}

// DeleteAll removes the whole directory.
func (s *Files) DeleteAll() error {
	return storageErr("delete", -1, os.RemoveAll(s.dir))
}

// Close is a no-op.
func (s *Files) Close() error {
	return nil
}
