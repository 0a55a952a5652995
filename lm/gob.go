// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lm

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/nlpodyssey/spago/mat"
	"github.com/nlpodyssey/spago/nn"
)

const (
	// DefaultModelFilename is the name of the model file in a model directory.
	DefaultModelFilename = "model.bin"
	// DefaultConfigFilename is the name of the configuration file in a model directory.
	DefaultConfigFilename = "config.json"
)

// paramRecord is the serialized value of a named parameter (or of a group of
// row parameters, such as embeddings).
type paramRecord struct {
	Name string
	Rows int
	Cols int
	Data []float32
}

// Load loads a model from the given directory.
func Load(dir string) (*Model, error) {
	m, err := loadFromFile(filepath.Join(dir, DefaultModelFilename))
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Dump saves the Model to a file.
// See gobEncode for further details.
func Dump(obj *Model, filename string) (err error) {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to open model dump file %q for writing: %w", filename, err)
	}
	defer func() {
		if e := f.Close(); e != nil && err == nil {
			err = fmt.Errorf("failed to close model dump file %q: %w", filename, e)
		}
	}()
	if err = gobEncode(obj, f); err != nil {
		return fmt.Errorf("failed to encode model dump: %w", err)
	}
	return nil
}

// gobEncode writes the configuration followed by one chunk per parameter
// record, flushing after each chunk.
func gobEncode(obj *Model, w io.Writer) error {
	bw := bufio.NewWriter(w)
	encoder := gob.NewEncoder(bw)

	records := obj.paramRecords()
	chunks := []interface{}{obj.Config, len(records)}
	for _, r := range records {
		chunks = append(chunks, r)
	}
	for _, chunk := range chunks {
		if err := encoder.Encode(chunk); err != nil {
			return err
		}
		if err := bw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// loadFromFile uses Gob to deserialize objects files to memory.
// See gobDecoding for further details.
func loadFromFile(filename string) (_ *Model, err error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer func() {
		if e := f.Close(); e != nil && err == nil {
			err = e
		}
	}()
	return gobDecoding(f)
}

func gobDecoding(r io.Reader) (*Model, error) {
	decoder := gob.NewDecoder(bufio.NewReader(r))

	var config Config
	if err := decoder.Decode(&config); err != nil {
		return nil, err
	}
	obj, err := New(config)
	if err != nil {
		return nil, err
	}

	var count int
	if err := decoder.Decode(&count); err != nil {
		return nil, err
	}
	for i := 0; i < count; i++ {
		var rec paramRecord
		if err := decoder.Decode(&rec); err != nil {
			return nil, err
		}
		if err := obj.applyRecord(rec); err != nil {
			return nil, fmt.Errorf("failed to apply parameter %q: %w", rec.Name, err)
		}
	}
	return obj, nil
}

func (m *Model) namedParams() map[string]nn.Param {
	params := map[string]nn.Param{
		"decoder.weight": m.Decoder,
		"decoder.bias":   m.DecoderBias,
	}
	gateNames := []string{"input", "forget", "cell", "output"}
	for l, layer := range m.Encoder.Layers {
		for gi, g := range layer.Gates() {
			prefix := fmt.Sprintf("lstm.%d.%s.", l, gateNames[gi])
			params[prefix+"w_in"] = g.WIn
			params[prefix+"w_rec"] = g.WRec
			params[prefix+"b"] = g.B
		}
	}
	return params
}

func (m *Model) paramRecords() []paramRecord {
	var records []paramRecord
	if m.Embeddings != nil {
		records = append(records, rowsRecord("embeddings", m.Embeddings.Weights))
	}
	if m.Chars != nil {
		records = append(records, rowsRecord("char_embeddings", m.Chars.Table.Weights))
	}
	params := m.namedParams()
	for _, name := range sortedNames(params) {
		v := params[name].Value()
		data := make([]float32, v.Size())
		copy(data, v.Data().F32())
		records = append(records, paramRecord{Name: name, Rows: v.Rows(), Cols: v.Columns(), Data: data})
	}
	return records
}

func rowsRecord(name string, rows []nn.Param) paramRecord {
	rec := paramRecord{Name: name, Rows: len(rows)}
	for _, p := range rows {
		v := p.Value().Data().F32()
		rec.Cols = len(v)
		rec.Data = append(rec.Data, v...)
	}
	return rec
}

func (m *Model) applyRecord(rec paramRecord) error {
	if len(rec.Data) != rec.Rows*rec.Cols {
		return fmt.Errorf("expected %d values, actual %d", rec.Rows*rec.Cols, len(rec.Data))
	}
	switch rec.Name {
	case "embeddings":
		if m.Embeddings == nil {
			return fmt.Errorf("model has no token embeddings")
		}
		return applyRows(m.Embeddings.Weights, rec)
	case "char_embeddings":
		if m.Chars == nil {
			return fmt.Errorf("model has no character embeddings")
		}
		return applyRows(m.Chars.Table.Weights, rec)
	}
	p, ok := m.namedParams()[rec.Name]
	if !ok {
		return fmt.Errorf("unknown parameter")
	}
	v := p.Value()
	if v.Rows() != rec.Rows || v.Columns() != rec.Cols {
		return fmt.Errorf("expected size %dx%d, actual %dx%d", v.Rows(), v.Columns(), rec.Rows, rec.Cols)
	}
	p.ReplaceValue(mat.NewDense[float32](rec.Rows, rec.Cols, rec.Data))
	return nil
}

func applyRows(rows []nn.Param, rec paramRecord) error {
	if len(rows) != rec.Rows {
		return fmt.Errorf("expected %d rows, actual %d", len(rows), rec.Rows)
	}
	for i, p := range rows {
		if size := p.Value().Size(); size != rec.Cols {
			return fmt.Errorf("expected row size %d, actual %d", size, rec.Cols)
		}
		p.ReplaceValue(mat.NewVecDense[float32](rec.Data[i*rec.Cols : (i+1)*rec.Cols]))
	}
	return nil
}

func sortedNames(params map[string]nn.Param) []string {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
