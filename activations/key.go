// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package activations

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Name is the name of a recurrent state, such as the hidden or the cell state.
type Name string

const (
	// Hidden is the hidden state of a layer.
	Hidden Name = "hx"
	// Cell is the cell state of a layer.
	Cell Name = "cx"
)

// StateNames are the names every layer of a recurrent model carries.
var StateNames = []Name{Hidden, Cell}

// sizeKey returns the SizeDict entry the name refers to ("hx" -> "h").
func (n Name) sizeKey() (string, bool) {
	s := string(n)
	if len(s) < 2 || !strings.HasSuffix(s, "x") {
		return "", false
	}
	return strings.TrimSuffix(s, "x"), true
}

// Key identifies an activation by layer and state name.
type Key struct {
	Layer int
	Name  Name
}

func (k Key) String() string {
	return fmt.Sprintf("%d:%s", k.Layer, k.Name)
}

// ParseKey parses a key in the "<layer>:<name>" form, e.g. "1:hx".
func ParseKey(s string) (Key, error) {
	layer, name, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || name == "" {
		return Key{}, Errorf("malformed activation name %q, expected \"<layer>:<name>\"", s)
	}
	l, err := strconv.Atoi(layer)
	if err != nil || l < 0 {
		return Key{}, Errorf("malformed layer in activation name %q", s)
	}
	return Key{Layer: l, Name: Name(name)}, nil
}

// ParseKeys parses each of the given strings with ParseKey.
func ParseKeys(names []string) ([]Key, error) {
	keys := make([]Key, len(names))
	for i, s := range names {
		k, err := ParseKey(s)
		if err != nil {
			return nil, err
		}
		keys[i] = k
	}
	return keys, nil
}

// SortKeys sorts keys by layer, then by name.
func SortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Layer != keys[j].Layer {
			return keys[i].Layer < keys[j].Layer
		}
		return keys[i].Name < keys[j].Name
	})
}
