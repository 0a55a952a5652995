// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package activations

import "fmt"

// Tensor is a dense row-major (batch x feature) matrix.
type Tensor struct {
	Rows int
	Cols int
	Data []float32
}

// NewTensor returns a zero-valued tensor of the given shape.
func NewTensor(rows, cols int) *Tensor {
	return &Tensor{Rows: rows, Cols: cols, Data: make([]float32, rows*cols)}
}

// NewTensorFrom wraps data into a tensor, checking its length.
func NewTensorFrom(rows, cols int, data []float32) (*Tensor, error) {
	if rows < 0 || cols < 0 || len(data) != rows*cols {
		return nil, fmt.Errorf("cannot build %dx%d tensor from %d values", rows, cols, len(data))
	}
	return &Tensor{Rows: rows, Cols: cols, Data: data}, nil
}

// Row returns the i-th row. The returned slice shares the tensor storage.
func (t *Tensor) Row(i int) []float32 {
	return t.Data[i*t.Cols : (i+1)*t.Cols : (i+1)*t.Cols]
}

// SetRow copies v into the i-th row.
func (t *Tensor) SetRow(i int, v []float32) {
	copy(t.Data[i*t.Cols:(i+1)*t.Cols], v)
}

// SliceRows returns a view over the first n rows.
func (t *Tensor) SliceRows(n int) *Tensor {
	if n > t.Rows {
		n = t.Rows
	}
	return &Tensor{Rows: n, Cols: t.Cols, Data: t.Data[: n*t.Cols : n*t.Cols]}
}

// Repeat expands a single-row tensor to n identical rows.
func (t *Tensor) Repeat(n int) (*Tensor, error) {
	if t.Rows != 1 {
		return nil, fmt.Errorf("only single-row tensors can be repeated, actual %d rows", t.Rows)
	}
	out := NewTensor(n, t.Cols)
	for i := 0; i < n; i++ {
		copy(out.Data[i*t.Cols:], t.Data)
	}
	return out, nil
}

// Clone returns a deep copy of the tensor.
func (t *Tensor) Clone() *Tensor {
	data := make([]float32, len(t.Data))
	copy(data, t.Data)
	return &Tensor{Rows: t.Rows, Cols: t.Cols, Data: data}
}

// Equal reports whether the two tensors have the same shape and values.
func (t *Tensor) Equal(o *Tensor) bool {
	if t.Rows != o.Rows || t.Cols != o.Cols || len(t.Data) != len(o.Data) {
		return false
	}
	for i, v := range t.Data {
		if v != o.Data[i] {
			return false
		}
	}
	return true
}
