// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/nlpodyssey/diagflow/activations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDict(seed float32) *activations.Dict {
	d := activations.NewDict()
	d.Set(activations.Key{Layer: 0, Name: activations.Hidden}, &activations.Tensor{
		Rows: 2, Cols: 3, Data: []float32{seed, 1, 2, 3, 4, -seed},
	})
	d.Set(activations.Key{Layer: 1, Name: activations.Cell}, &activations.Tensor{
		Rows: 2, Cols: 1, Data: []float32{0.125, seed / 3},
	})
	return d
}

func openBackends(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	stores := make(map[string]Store)
	for _, backend := range []string{BackendMemory, BackendFiles, BackendBadger, BackendSQLite} {
		path := filepath.Join(dir, backend)
		if backend == BackendSQLite {
			path = filepath.Join(dir, "activations.db")
		}
		s, err := Open(backend, path)
		require.NoError(t, err, backend)
		stores[backend] = s
	}
	return stores
}

func TestRoundTrip(t *testing.T) {
	for backend, s := range openBackends(t) {
		t.Run(backend, func(t *testing.T) {
			defer s.Close()
			want := map[int]*activations.Dict{
				3:  sampleDict(3),
				-1: sampleDict(-1),
				12: sampleDict(12),
			}
			for id, d := range want {
				require.NoError(t, s.Write(id, d))
			}

			ids, err := s.IDs()
			require.NoError(t, err)
			assert.Equal(t, []int{-1, 3, 12}, ids)

			for id, d := range want {
				got, err := s.Read(id)
				require.NoError(t, err)
				assert.True(t, d.Equal(got), "sentence %d", id)
			}

			all, err := ReadAll(s)
			require.NoError(t, err)
			assert.Len(t, all, 3)
		})
	}
}

func TestErrors(t *testing.T) {
	for backend, s := range openBackends(t) {
		t.Run(backend, func(t *testing.T) {
			defer s.Close()
			require.NoError(t, s.Write(1, sampleDict(1)))

			err := s.Write(1, sampleDict(2))
			var storageErr *StorageError
			require.ErrorAs(t, err, &storageErr)
			assert.True(t, errors.Is(err, ErrExists))
			assert.Equal(t, 1, storageErr.SentenceID)

			got, err := s.Read(1)
			require.NoError(t, err)
			assert.True(t, sampleDict(1).Equal(got), "first write wins")

			_, err = s.Read(2)
			assert.ErrorAs(t, err, &storageErr)
			assert.True(t, errors.Is(err, ErrNotFound))
		})
	}
}

func TestDeleteAll(t *testing.T) {
	dir := t.TempDir()

	files, err := NewFiles(filepath.Join(dir, "files"))
	require.NoError(t, err)
	require.NoError(t, files.Write(1, sampleDict(1)))
	require.NoError(t, files.DeleteAll())
	_, err = os.Stat(files.Dir())
	assert.True(t, os.IsNotExist(err))

	badger, err := NewBadger(filepath.Join(dir, "badger"))
	require.NoError(t, err)
	require.NoError(t, badger.Write(1, sampleDict(1)))
	require.NoError(t, badger.DeleteAll())
	_, err = os.Stat(filepath.Join(dir, "badger"))
	assert.True(t, os.IsNotExist(err))

	dbFile := filepath.Join(dir, "activations.db")
	sqlite, err := NewSQLite(dbFile)
	require.NoError(t, err)
	require.NoError(t, sqlite.Write(1, sampleDict(1)))
	require.NoError(t, sqlite.DeleteAll())
	_, err = os.Stat(dbFile)
	assert.True(t, os.IsNotExist(err))

	mem := NewMemory()
	require.NoError(t, mem.Write(1, sampleDict(1)))
	require.NoError(t, mem.DeleteAll())
	assert.Equal(t, 0, mem.Len())
}

func TestMemoryCopies(t *testing.T) {
	mem := NewMemory()
	d := sampleDict(1)
	require.NoError(t, mem.Write(1, d))
	h, _ := d.Get(activations.Key{Layer: 0, Name: activations.Hidden})
	h.Data[0] = 100

	got, err := mem.Read(1)
	require.NoError(t, err)
	assert.True(t, sampleDict(1).Equal(got))
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open("redis", t.TempDir())
	var cfgErr *activations.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestKeyEncodingKeepsOrder(t *testing.T) {
	ids := []int{-5, -1, 0, 1, 1 << 40}
	for i, id := range ids {
		assert.Equal(t, id, decodeKey(encodeKey(id)))
		if i > 0 {
			assert.Less(t, string(encodeKey(ids[i-1])), string(encodeKey(id)))
		}
	}
}
