// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package downloader

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, files map[string]string, token string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		content, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(content))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDownload(t *testing.T) {
	srv := newServer(t, map[string]string{
		"/org/lstm/resolve/main/pytorch_model.pt": "weights",
		"/org/lstm/resolve/main/vocab.txt":        "<unk>\nthe\n",
	}, "secret")
	dir := filepath.Join(t.TempDir(), "org", "lstm")

	err := Download(dir, "org/lstm", Options{BaseURL: srv.URL, AccessToken: "secret"})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "pytorch_model.pt"))
	require.NoError(t, err)
	assert.Equal(t, "weights", string(data))
	_, err = os.Stat(filepath.Join(dir, "config.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestDownloadKeepsExistingFiles(t *testing.T) {
	srv := newServer(t, map[string]string{
		"/org/lstm/resolve/v1/pytorch_model.pt": "new",
		"/org/lstm/resolve/v1/vocab.txt":        "<unk>\n",
	}, "")
	dir := t.TempDir()
	existing := filepath.Join(dir, "pytorch_model.pt")
	require.NoError(t, os.WriteFile(existing, []byte("old"), 0o644))

	require.NoError(t, Download(dir, "org/lstm", Options{BaseURL: srv.URL, Revision: "v1"}))
	data, _ := os.ReadFile(existing)
	assert.Equal(t, "old", string(data))

	require.NoError(t, Download(dir, "org/lstm", Options{BaseURL: srv.URL, Revision: "v1", OverwriteIfExist: true}))
	data, _ = os.ReadFile(existing)
	assert.Equal(t, "new", string(data))
}

func TestDownloadErrors(t *testing.T) {
	srv := newServer(t, map[string]string{
		"/org/lstm/resolve/main/vocab.txt": "<unk>\n",
	}, "")
	err := Download(t.TempDir(), "org/lstm", Options{BaseURL: srv.URL})
	assert.Error(t, err, "missing checkpoint")

	protected := newServer(t, map[string]string{
		"/org/lstm/resolve/main/pytorch_model.pt": "w",
	}, "secret")
	err = Download(t.TempDir(), "org/lstm", Options{BaseURL: protected.URL})
	assert.Error(t, err)
}
