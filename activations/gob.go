// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package activations

import (
	"bufio"
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"os"
)

// entryRecord is the serialized form of a single Dict entry.
type entryRecord struct {
	Layer int
	Name  string
	Rows  int
	Cols  int
	Data  []float32
}

// EncodeDict writes d to w, entries sorted by key.
func EncodeDict(w io.Writer, d *Dict) error {
	records := make([]entryRecord, 0, d.Len())
	for _, k := range d.Keys() {
		t := d.entries[k]
		records = append(records, entryRecord{
			Layer: k.Layer,
			Name:  string(k.Name),
			Rows:  t.Rows,
			Cols:  t.Cols,
			Data:  t.Data,
		})
	}
	return gob.NewEncoder(w).Encode(records)
}

// DecodeDict reads a Dict previously written by EncodeDict.
func DecodeDict(r io.Reader) (*Dict, error) {
	var records []entryRecord
	if err := gob.NewDecoder(r).Decode(&records); err != nil {
		return nil, err
	}
	d := NewDict()
	for _, rec := range records {
		k := Key{Layer: rec.Layer, Name: Name(rec.Name)}
		if rec.Data == nil {
			rec.Data = []float32{}
		}
		t, err := NewTensorFrom(rec.Rows, rec.Cols, rec.Data)
		if err != nil {
			return nil, fmt.Errorf("corrupted entry %s: %w", k, err)
		}
		if _, dup := d.entries[k]; dup {
			return nil, fmt.Errorf("corrupted dict: duplicated entry %s", k)
		}
		d.entries[k] = t
	}
	return d, nil
}

// MarshalDict returns the gob encoding of d.
func MarshalDict(d *Dict) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeDict(&buf, d); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalDict decodes a Dict from data.
func UnmarshalDict(data []byte) (*Dict, error) {
	return DecodeDict(bytes.NewReader(data))
}

// SaveDict writes d to filename.
func SaveDict(filename string, d *Dict) (err error) {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to open %q for writing: %w", filename, err)
	}
	defer func() {
		if e := f.Close(); e != nil && err == nil {
			err = fmt.Errorf("failed to close %q: %w", filename, e)
		}
	}()
	bw := bufio.NewWriter(f)
	if err = EncodeDict(bw, d); err != nil {
		return fmt.Errorf("failed to encode activations: %w", err)
	}
	return bw.Flush()
}

// LoadDict reads a Dict from filename.
func LoadDict(filename string) (*Dict, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeDict(bufio.NewReader(f))
}
