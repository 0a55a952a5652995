// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package activations

import "fmt"

// ConfigurationError reports a request that can never be satisfied by the
// model at hand, such as an activation name missing from its SizeDict.
type ConfigurationError struct {
	Msg string
}

// Errorf returns a new *ConfigurationError with a formatted message.
func Errorf(format string, args ...any) error {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Msg
}

// ShapeMismatchError reports a tensor whose layout disagrees with the SizeDict
// of the model it is meant for.
type ShapeMismatchError struct {
	Key Key
	Msg string
}

// ShapeMismatchf returns a new *ShapeMismatchError for the given key.
func ShapeMismatchf(key Key, format string, args ...any) error {
	return &ShapeMismatchError{Key: key, Msg: fmt.Sprintf(format, args...)}
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("shape mismatch for %s: %s", e.Key, e.Msg)
}
