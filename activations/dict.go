// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package activations

// Dict maps (layer, name) keys to tensors. All tensors in a Dict share the
// same number of rows: either the active batch at one time step, or the
// retained positions of one sentence.
type Dict struct {
	entries map[Key]*Tensor
}

// NewDict returns an empty Dict.
func NewDict() *Dict {
	return &Dict{entries: make(map[Key]*Tensor)}
}

// NewZeroDict returns a Dict holding a zero tensor with the given number of
// rows for each key, with widths taken from sizes.
func NewZeroDict(sizes SizeDict, keys []Key, rows int) (*Dict, error) {
	d := NewDict()
	for _, k := range keys {
		w, err := sizes.Width(k)
		if err != nil {
			return nil, err
		}
		d.Set(k, NewTensor(rows, w))
	}
	return d, nil
}

// Set stores t under k, replacing any previous value.
func (d *Dict) Set(k Key, t *Tensor) {
	d.entries[k] = t
}

// Get returns the tensor stored under k.
func (d *Dict) Get(k Key) (*Tensor, bool) {
	t, ok := d.entries[k]
	return t, ok
}

// Len returns the number of entries.
func (d *Dict) Len() int {
	return len(d.entries)
}

// Keys returns the keys sorted by layer and name.
func (d *Dict) Keys() []Key {
	keys := make([]Key, 0, len(d.entries))
	for k := range d.entries {
		keys = append(keys, k)
	}
	SortKeys(keys)
	return keys
}

// BatchSize returns the number of rows shared by all entries.
func (d *Dict) BatchSize() (int, error) {
	size := -1
	for _, k := range d.Keys() {
		t := d.entries[k]
		if size == -1 {
			size = t.Rows
			continue
		}
		if t.Rows != size {
			return 0, ShapeMismatchf(k, "batch size %d differs from %d", t.Rows, size)
		}
	}
	if size == -1 {
		return 0, nil
	}
	return size, nil
}

// SliceRows returns a Dict of views over the first n rows of every entry.
func (d *Dict) SliceRows(n int) *Dict {
	out := NewDict()
	for k, t := range d.entries {
		out.entries[k] = t.SliceRows(n)
	}
	return out
}

// Repeat expands every single-row entry to n rows.
func (d *Dict) Repeat(n int) (*Dict, error) {
	out := NewDict()
	for _, k := range d.Keys() {
		t, err := d.entries[k].Repeat(n)
		if err != nil {
			return nil, ShapeMismatchf(k, "%v", err)
		}
		out.entries[k] = t
	}
	return out, nil
}

// Clone returns a deep copy of the Dict.
func (d *Dict) Clone() *Dict {
	out := NewDict()
	for k, t := range d.entries {
		out.entries[k] = t.Clone()
	}
	return out
}

// Equal reports whether both dicts hold the same keys with equal tensors.
func (d *Dict) Equal(o *Dict) bool {
	if d.Len() != o.Len() {
		return false
	}
	for k, t := range d.entries {
		ot, ok := o.entries[k]
		if !ok || !t.Equal(ot) {
			return false
		}
	}
	return true
}
