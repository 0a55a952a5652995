// Copyright 2022 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package downloader fetches LSTM language model checkpoints from
// huggingface.co repositories into a model directory.
package downloader

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

const (
	// Hugging Face repository URL prefix; files are fetched from
	// "{prefix}/{model_id}/resolve/{revision}/{filename}".
	huggingFacePrefix = "https://huggingface.co"
	// Default revision name for fetching model from Hugging Face repository
	defaultRevision = "main"
)

// modelFile is a file of a model repository.
type modelFile struct {
	name     string
	optional bool
}

// modelFiles contains the set of files to download. A missing config.json
// is deduced by the converter from the checkpoint itself.
var modelFiles = []modelFile{
	{name: "pytorch_model.pt"},
	{name: "vocab.txt"},
	{name: "config.json", optional: true},
}

// Options configures Download.
type Options struct {
	// Revision of the repository (default "main").
	Revision string
	// AccessToken is sent as a bearer token when not empty.
	AccessToken string
	// OverwriteIfExist forces the download of files already present.
	OverwriteIfExist bool
	// BaseURL replaces the huggingface.co address.
	BaseURL string
}

// Download downloads the checkpoint of modelName (e.g. "org/lstm-lm") into
// modelDir, creating it with permissions 0755 if needed.
//
// Unless opts.OverwriteIfExist is set, existing files are kept and
// considered as already successfully downloaded.
func Download(modelDir, modelName string, opts Options) error {
	if opts.Revision == "" {
		opts.Revision = defaultRevision
	}
	if opts.BaseURL == "" {
		opts.BaseURL = huggingFacePrefix
	}
	return downloader{
		modelDir:  modelDir,
		modelName: modelName,
		opts:      opts,
	}.download()
}

// downloader is a helper struct for downloading a model.
type downloader struct {
	modelDir  string
	modelName string
	opts      Options
}

func (d downloader) download() error {
	if err := os.MkdirAll(d.modelDir, 0755); err != nil {
		return fmt.Errorf("error creating model dir %#v: %w", d.modelDir, err)
	}
	for _, f := range modelFiles {
		found, err := d.downloadFile(f.name)
		if err != nil {
			return err
		}
		if !found {
			if !f.optional {
				return fmt.Errorf("file %#v not found in repository %#v", f.name, d.modelName)
			}
			log.Debug().Str("file", f.name).Msg("optional file not found, skipping")
		}
	}
	return nil
}

// downloadFile fetches a single file. It reports false, with no error, if
// the repository has no such file.
func (d downloader) downloadFile(name string) (found bool, err error) {
	fPath := filepath.Join(d.modelDir, name)
	if info, err := os.Stat(fPath); !d.opts.OverwriteIfExist && err == nil && !info.IsDir() {
		log.Debug().Str("file", fPath).Msg("model file already exists, skipping download")
		return true, nil
	}

	url := d.fileURL(name)
	log.Debug().Str("url", url).Str("destination", fPath).Msg("downloading")

	resp, err := d.httpGet(url)
	if err != nil {
		return false, fmt.Errorf("error getting %#v: %w", url, err)
	}
	defer func() {
		if e := resp.Body.Close(); e != nil && err == nil {
			err = fmt.Errorf("error closing %#v response body: %w", url, e)
		}
	}()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("%#v responded with %s", url, resp.Status)
	}

	tmp := fPath + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return false, fmt.Errorf("error creating file %#v: %w", tmp, err)
	}
	n, err := io.Copy(f, resp.Body)
	if e := f.Close(); e != nil && err == nil {
		err = e
	}
	if err != nil {
		_ = os.Remove(tmp)
		return false, fmt.Errorf("error downloading %#v to %#v: %w", url, fPath, err)
	}
	if err := os.Rename(tmp, fPath); err != nil {
		return false, err
	}
	log.Debug().Str("file", fPath).Int64("bytes", n).Msg("downloaded")
	return true, nil
}

func (d downloader) httpGet(url string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if d.opts.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+d.opts.AccessToken)
	}
	return http.DefaultClient.Do(req)
}

func (d downloader) fileURL(fileName string) string {
	return fmt.Sprintf("%s/%s/resolve/%s/%s", d.opts.BaseURL, d.modelName, d.opts.Revision, fileName)
}
