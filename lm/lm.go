// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lm

import (
	"context"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"

	"github.com/nlpodyssey/diagflow/activations"
	"github.com/nlpodyssey/diagflow/lstm"
	"github.com/nlpodyssey/diagflow/models"
	"github.com/nlpodyssey/spago/ag"
	"github.com/nlpodyssey/spago/mat"
	"github.com/nlpodyssey/spago/nn"
	"github.com/rs/zerolog/log"
)

var _ models.RecurrentModel = &Model{}

// Model is an LSTM language model: token embeddings, a stack of LSTM layers
// and a linear decoder over the vocabulary.
type Model struct {
	nn.Module
	Embeddings  *Embeddings
	Chars       *CharEmbeddings
	Encoder     *lstm.Model
	Decoder     nn.Param
	DecoderBias nn.Param
	Config      Config

	states *models.InitStateManager
}

// Config is the configuration of the language model.
type Config struct {
	// VocabSize is the vocabulary size.
	//
	// When converting a torch model, it can be left zero, letting the
	// process deduce the value automatically.
	VocabSize int `json:"vocab_size"`
	// EmbeddingSize is the size of the token embeddings.
	//
	// When converting a torch model, it can be left zero, letting the
	// process deduce the value automatically.
	EmbeddingSize int `json:"embedding_size"`
	// HiddenSize is the size of hidden and cell states of every layer.
	HiddenSize int `json:"hidden_size"`
	// NumLayers is the number of LSTM layers.
	NumLayers int `json:"num_layers"`
	// UseCharEmbs makes the model compose token embeddings from the
	// characters of the raw token instead of looking up a token id.
	UseCharEmbs bool `json:"use_char_embs"`
	// Alphabet lists the characters known to the character embeddings.
	Alphabet string `json:"alphabet,omitempty"`
	// Device is where tensors are materialized (default "cpu").
	Device string `json:"device,omitempty"`
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.VocabSize <= 0 || c.EmbeddingSize <= 0 || c.HiddenSize <= 0 || c.NumLayers <= 0 {
		return activations.Errorf("vocab_size, embedding_size, hidden_size and num_layers must be positive")
	}
	if c.UseCharEmbs && c.Alphabet == "" {
		return activations.Errorf("use_char_embs requires an alphabet")
	}
	return nil
}

func (c Config) execContext() models.ExecContext {
	if c.Device == "" {
		return models.DefaultExecContext()
	}
	return models.ExecContext{Device: c.Device}
}

// LoadConfig reads a JSON configuration file.
func LoadConfig(filePath string) (Config, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return Config{}, err
	}
	defer file.Close()

	var config Config
	jsonDecoder := json.NewDecoder(file)
	if err := jsonDecoder.Decode(&config); err != nil {
		return Config{}, err
	}
	return config, nil
}

func init() {
	gob.Register(&Model{})
}

// New returns a new model with zero-valued float32 parameters and zero init
// states.
func New(c Config) (*Model, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	m := &Model{
		Config: c,
		Encoder: lstm.New[float32](lstm.Config{
			InputSize:  c.EmbeddingSize,
			HiddenSize: c.HiddenSize,
			NumLayers:  c.NumLayers,
		}),
		Decoder:     nn.NewParam(mat.NewEmptyDense[float32](c.VocabSize, c.HiddenSize)),
		DecoderBias: nn.NewParam(mat.NewEmptyVecDense[float32](c.VocabSize)),
	}
	if c.UseCharEmbs {
		m.Chars = NewCharEmbeddings(c.Alphabet, c.EmbeddingSize)
	} else {
		m.Embeddings = NewEmbeddings(c.VocabSize, c.EmbeddingSize)
	}
	states, err := models.NewInitStateManager(m.Sizes(), c.execContext())
	if err != nil {
		return nil, err
	}
	m.states = states
	return m, nil
}

// NewRandom returns a new model whose parameters are drawn uniformly from
// [-scale, scale] with the given seed.
func NewRandom(c Config, seed int64, scale float32) (*Model, error) {
	m, err := New(c)
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(seed))
	for _, p := range m.params() {
		v := p.Value()
		data := make([]float32, v.Size())
		for i := range data {
			data[i] = (2*rng.Float32() - 1) * scale
		}
		p.ReplaceValue(mat.NewDense[float32](v.Rows(), v.Columns(), data))
	}
	return m, nil
}

// params returns every trainable parameter of the model.
func (m *Model) params() []nn.Param {
	var ps []nn.Param
	if m.Embeddings != nil {
		ps = append(ps, m.Embeddings.Weights...)
	}
	if m.Chars != nil {
		ps = append(ps, m.Chars.Table.Weights...)
	}
	for _, layer := range m.Encoder.Layers {
		for _, g := range layer.Gates() {
			ps = append(ps, g.WIn, g.WRec, g.B)
		}
	}
	return append(ps, m.Decoder, m.DecoderBias)
}

// Sizes returns the SizeDict of the model.
func (m *Model) Sizes() activations.SizeDict {
	sizes := make(activations.SizeDict, m.Config.NumLayers)
	for l := 0; l < m.Config.NumLayers; l++ {
		sizes[l] = map[string]int{"h": m.Config.HiddenSize, "c": m.Config.HiddenSize}
	}
	return sizes
}

// UseCharEmbs reports whether the model reads raw tokens.
func (m *Model) UseCharEmbs() bool {
	return m.Config.UseCharEmbs
}

// States returns the manager of the initial states.
func (m *Model) States() *models.InitStateManager {
	return m.states
}

// Step performs a single forward pass across all layers for a batch of
// tokens. Sequences in the batch are independent of each other.
func (m *Model) Step(_ context.Context, input models.Input, prev *activations.Dict, computeOut bool) (*activations.Tensor, *activations.Dict, error) {
	n := input.Len()
	if n == 0 {
		return nil, nil, fmt.Errorf("empty input batch")
	}
	sizes := m.Sizes()
	if err := models.CheckState(sizes, prev, n); err != nil {
		return nil, nil, err
	}
	xs, err := m.encodeInput(input)
	if err != nil {
		return nil, nil, err
	}

	numLayers := m.Config.NumLayers
	prevH, prevC := stateTensors(prev, numLayers)
	next := activations.NewDict()
	nextH := make([]*activations.Tensor, numLayers)
	nextC := make([]*activations.Tensor, numLayers)
	for l := 0; l < numLayers; l++ {
		nextH[l] = activations.NewTensor(n, m.Config.HiddenSize)
		nextC[l] = activations.NewTensor(n, m.Config.HiddenSize)
		next.Set(activations.Key{Layer: l, Name: activations.Hidden}, nextH[l])
		next.Set(activations.Key{Layer: l, Name: activations.Cell}, nextC[l])
	}

	var out *activations.Tensor
	if computeOut {
		out = activations.NewTensor(n, m.Config.VocabSize)
	}

	for r := 0; r < n; r++ {
		state := make(lstm.State, numLayers)
		for l := range state {
			state[l] = lstm.LayerState{
				H: ag.Var(mat.NewVecDense[float32](prevH[l].Row(r))),
				C: ag.Var(mat.NewVecDense[float32](prevC[l].Row(r))),
			}
		}
		state = m.Encoder.ForwardSingle(xs[r], state)
		for l, s := range state {
			nextH[l].SetRow(r, s.H.Value().Data().F32())
			nextC[l].SetRow(r, s.C.Value().Data().F32())
		}
		if computeOut {
			out.SetRow(r, m.Predict(state[numLayers-1].H).Value().Data().F32())
		}
	}
	return out, next, nil
}

func stateTensors(d *activations.Dict, numLayers int) (h, c []*activations.Tensor) {
	h = make([]*activations.Tensor, numLayers)
	c = make([]*activations.Tensor, numLayers)
	for l := 0; l < numLayers; l++ {
		h[l], _ = d.Get(activations.Key{Layer: l, Name: activations.Hidden})
		c[l], _ = d.Get(activations.Key{Layer: l, Name: activations.Cell})
	}
	return
}

func (m *Model) encodeInput(input models.Input) ([]ag.Node, error) {
	if m.Config.UseCharEmbs {
		if input.Tokens == nil {
			return nil, fmt.Errorf("model uses character embeddings: raw tokens are required")
		}
		return m.Chars.Encode(input.Tokens)
	}
	if input.IDs == nil {
		return nil, fmt.Errorf("model uses token embeddings: token ids are required")
	}
	for _, id := range input.IDs {
		if id < 0 || id >= m.Config.VocabSize {
			return nil, fmt.Errorf("token id %d out of vocabulary range [0, %d)", id, m.Config.VocabSize)
		}
	}
	encoded, err := m.Embeddings.Encode(input.IDs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tokens: %w", err)
	}
	log.Trace().Msgf("Encoded %d tokens", len(encoded))
	return encoded, nil
}

// Predict returns the logits over the vocabulary for the hidden state x.
func (m *Model) Predict(x ag.Node) ag.Node {
	return ag.Add(ag.Mul(m.Decoder, x), m.DecoderBias)
}

// Logits returns the decoder logits of the given vocabulary entries only,
// computed from the hidden state h.
func (m *Model) Logits(h []float32, ids []int) ([]float32, error) {
	if len(h) != m.Config.HiddenSize {
		return nil, fmt.Errorf("hidden state size %d, should be %d", len(h), m.Config.HiddenSize)
	}
	w := m.Decoder.Value().Data().F32()
	b := m.DecoderBias.Value().Data().F32()
	out := make([]float32, len(ids))
	for i, id := range ids {
		if id < 0 || id >= m.Config.VocabSize {
			return nil, fmt.Errorf("token id %d out of vocabulary range [0, %d)", id, m.Config.VocabSize)
		}
		row := w[id*len(h) : (id+1)*len(h)]
		sum := b[id]
		for j, v := range row {
			sum += v * h[j]
		}
		out[i] = sum
	}
	return out, nil
}
