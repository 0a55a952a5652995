// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package corpus

import (
	"bufio"
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	// SenColumn is the column holding the whitespace-tokenized sentence.
	SenColumn = "sen"
	// IDColumn is the optional column holding the sentence id.
	IDColumn = "id"
)

//go:embed init_sentence.txt
var initSentence string

// Example is a single corpus item.
type Example struct {
	// ID is the sentence id, unique within the corpus.
	ID int
	// Sen is the tokenized sentence.
	Sen []string
	// TokenIDs are the vocabulary ids of Sen. Nil when the corpus has no vocabulary.
	TokenIDs []int
	// Fields holds the remaining task-specific columns, e.g. "verb" or "wrong_verb".
	Fields map[string]string
}

// Len returns the number of tokens of the sentence.
func (e *Example) Len() int {
	return len(e.Sen)
}

// Corpus is an ordered sequence of examples.
type Corpus struct {
	Examples []*Example
	Header   []string
	Vocab    *Vocab
}

// ImportOptions configures Import.
type ImportOptions struct {
	// HeaderFromFirstLine reads the column names from the first line.
	HeaderFromFirstLine bool
	// Header is used when HeaderFromFirstLine is false (default ["sen"]).
	Header []string
	// Vocab, when set, is used to fill the TokenIDs of each example.
	Vocab *Vocab
}

// Import reads a tab-separated corpus file.
func Import(filename string, opts ImportOptions) (*Corpus, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open corpus %q: %w", filename, err)
	}
	defer f.Close()

	header := opts.Header
	if len(header) == 0 {
		header = []string{SenColumn}
	}

	c := &Corpus{Vocab: opts.Vocab}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if lineNo == 1 && opts.HeaderFromFirstLine {
			header = strings.Split(line, "\t")
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		ex, err := parseLine(line, header, len(c.Examples))
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", filename, lineNo, err)
		}
		c.Examples = append(c.Examples, ex)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read corpus %q: %w", filename, err)
	}
	c.Header = header

	if err := c.checkIDs(); err != nil {
		return nil, err
	}
	if opts.Vocab != nil {
		if err := c.Tokenize(opts.Vocab); err != nil {
			return nil, err
		}
	}
	log.Debug().Msgf("Imported %d sentences from %s", len(c.Examples), filename)
	return c, nil
}

func parseLine(line string, header []string, index int) (*Example, error) {
	cols := strings.Split(line, "\t")
	if len(cols) != len(header) {
		return nil, fmt.Errorf("expected %d columns, actual %d", len(header), len(cols))
	}
	ex := &Example{ID: index, Fields: make(map[string]string, len(cols))}
	for i, name := range header {
		switch name {
		case SenColumn:
			ex.Sen = strings.Fields(cols[i])
		case IDColumn:
			id, err := strconv.Atoi(strings.TrimSpace(cols[i]))
			if err != nil {
				return nil, fmt.Errorf("invalid sentence id %q: %w", cols[i], err)
			}
			ex.ID = id
		default:
			ex.Fields[name] = cols[i]
		}
	}
	if ex.Sen == nil {
		return nil, fmt.Errorf("missing %q column", SenColumn)
	}
	return ex, nil
}

// FromSentences builds a corpus of the given tokenized sentences, with ids
// following their order.
func FromSentences(sentences [][]string, vocab *Vocab) (*Corpus, error) {
	c := &Corpus{Header: []string{SenColumn}, Vocab: vocab}
	for i, sen := range sentences {
		c.Examples = append(c.Examples, &Example{ID: i, Sen: sen, Fields: map[string]string{}})
	}
	if vocab != nil {
		if err := c.Tokenize(vocab); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// DefaultInitCorpus returns the single-sentence corpus used to bootstrap
// default initial states.
func DefaultInitCorpus(vocab *Vocab) (*Corpus, error) {
	return FromSentences([][]string{strings.Fields(initSentence)}, vocab)
}

// Tokenize fills the TokenIDs of every example using vocab.
func (c *Corpus) Tokenize(vocab *Vocab) error {
	for _, ex := range c.Examples {
		ids, err := vocab.IDs(ex.Sen)
		if err != nil {
			return fmt.Errorf("sentence %d: %w", ex.ID, err)
		}
		ex.TokenIDs = ids
	}
	c.Vocab = vocab
	return nil
}

func (c *Corpus) checkIDs() error {
	seen := make(map[int]struct{}, len(c.Examples))
	for _, ex := range c.Examples {
		if _, dup := seen[ex.ID]; dup {
			return fmt.Errorf("duplicated sentence id %d", ex.ID)
		}
		seen[ex.ID] = struct{}{}
	}
	return nil
}
