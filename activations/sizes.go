// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package activations

// SizeDict maps each layer to the feature width of its states, e.g.
// {0: {"h": 650, "c": 650}}.
type SizeDict map[int]map[string]int

// NumLayers returns the number of layers.
func (s SizeDict) NumLayers() int {
	return len(s)
}

// TopLayer returns the index of the last layer.
func (s SizeDict) TopLayer() int {
	return len(s) - 1
}

// OutputSize returns the width of the top layer hidden state.
func (s SizeDict) OutputSize() int {
	return s[s.TopLayer()]["h"]
}

// Check verifies that every layer in [0, NumLayers) has an entry with a
// positive width for each state.
func (s SizeDict) Check() error {
	if len(s) == 0 {
		return Errorf("empty size dict")
	}
	for layer := 0; layer < len(s); layer++ {
		widths, ok := s[layer]
		if !ok {
			return Errorf("size dict has no entry for layer %d", layer)
		}
		for _, name := range StateNames {
			sk, _ := name.sizeKey()
			if widths[sk] <= 0 {
				return Errorf("size dict has no positive %q width for layer %d", sk, layer)
			}
		}
	}
	return nil
}

// Width returns the feature width of the activation identified by key.
func (s SizeDict) Width(key Key) (int, error) {
	widths, ok := s[key.Layer]
	if !ok {
		return 0, Errorf("layer %d not found in model (%d layers)", key.Layer, len(s))
	}
	sk, ok := key.Name.sizeKey()
	if !ok {
		return 0, Errorf("malformed activation name %q", key.Name)
	}
	w, ok := widths[sk]
	if !ok {
		return 0, Errorf("activation %s not found in model", key)
	}
	return w, nil
}

// Validate returns a *ConfigurationError if any key is absent from the
// SizeDict, or if keys is empty or contains duplicates.
func (s SizeDict) Validate(keys []Key) error {
	if len(keys) == 0 {
		return Errorf("no activation names requested")
	}
	seen := make(map[Key]struct{}, len(keys))
	for _, k := range keys {
		if _, err := s.Width(k); err != nil {
			return err
		}
		if _, dup := seen[k]; dup {
			return Errorf("activation %s requested more than once", k)
		}
		seen[k] = struct{}{}
	}
	return nil
}

// StateKeys returns the hx and cx keys of every layer.
func (s SizeDict) StateKeys() []Key {
	keys := make([]Key, 0, 2*len(s))
	for layer := 0; layer < len(s); layer++ {
		for _, name := range StateNames {
			keys = append(keys, Key{Layer: layer, Name: name})
		}
	}
	return keys
}
