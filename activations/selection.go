// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package activations

import "github.com/nlpodyssey/diagflow/corpus"

// SelectionPolicy decides whether the activations of a sentence at a given
// position are retained. Implementations must not have side effects.
type SelectionPolicy interface {
	Accepts(sentenceID, position int, ex *corpus.Example) bool
}

// PolicyFunc adapts an ordinary function to a SelectionPolicy.
type PolicyFunc func(sentenceID, position int, ex *corpus.Example) bool

// Accepts calls f.
func (f PolicyFunc) Accepts(sentenceID, position int, ex *corpus.Example) bool {
	return f(sentenceID, position, ex)
}

// AcceptAll retains every position.
var AcceptAll SelectionPolicy = PolicyFunc(func(int, int, *corpus.Example) bool {
	return true
})

// FinalToken retains only the last position of each sentence.
var FinalToken SelectionPolicy = PolicyFunc(func(_, position int, ex *corpus.Example) bool {
	return position == ex.Len()-1
})

// Policy returns the named built-in policy ("all" or "final_token").
func Policy(name string) (SelectionPolicy, error) {
	switch name {
	case "", "all":
		return AcceptAll, nil
	case "final_token":
		return FinalToken, nil
	default:
		return nil, Errorf("unknown selection policy %q", name)
	}
}
