// Copyright 2023 NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lm

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/nlpodyssey/gopickle/types"
	"github.com/nlpodyssey/spago/mat"
	"github.com/nlpodyssey/spago/nn"
	"github.com/rs/zerolog/log"
)

// DefaultPyModelFilename is the name of the PyTorch checkpoint in a model directory.
const DefaultPyModelFilename = "pytorch_model.pt"

// ConverterConfig configures ConvertTorchCheckpoint.
type ConverterConfig struct {
	// The path to the directory where the models will be read from and written to.
	ModelDir string
	// The path to the input model file (default "pytorch_model.pt")
	PyModelFilename string
	// The path to the output model file (default "model.bin")
	GoModelFilename string
	// If true, overwrite the model file if it already exists (default "false")
	OverwriteIfExist bool
}

// ConvertTorchCheckpoint converts the state dict of a PyTorch LSTM language
// model to a Model. The state dict is expected to hold the parameters
// "encoder.weight", "rnn.{weight_ih,weight_hh,bias_ih,bias_hh}_l<k>",
// "decoder.weight" and "decoder.bias".
// A configuration file "config.json" in the model directory is read if present;
// zero values are deduced from the checkpoint.
func ConvertTorchCheckpoint(config ConverterConfig) error {
	if config.PyModelFilename == "" {
		config.PyModelFilename = DefaultPyModelFilename
	}
	if config.GoModelFilename == "" {
		config.GoModelFilename = DefaultModelFilename
	}

	outputFilename := filepath.Join(config.ModelDir, config.GoModelFilename)

	if !config.OverwriteIfExist && fileExists(outputFilename) {
		log.Debug().Str("model", outputFilename).Msg("Model file already exists, skipping conversion")
		return nil
	}

	var modelConfig Config
	configFilename := filepath.Join(config.ModelDir, DefaultConfigFilename)
	if fileExists(configFilename) {
		var err error
		if modelConfig, err = LoadConfig(configFilename); err != nil {
			return fmt.Errorf("failed to load config file %q: %w", configFilename, err)
		}
	}
	if modelConfig.UseCharEmbs {
		return fmt.Errorf("conversion of character-level models is not supported")
	}

	conv := &converter{
		config:      modelConfig,
		inFilename:  filepath.Join(config.ModelDir, config.PyModelFilename),
		outFilename: outputFilename,
	}
	if err := conv.run(); err != nil {
		return fmt.Errorf("model conversion failed: %w", err)
	}
	return nil
}

func fileExists(name string) bool {
	info, err := os.Stat(name)
	return err == nil && !info.IsDir()
}

type converter struct {
	config      Config
	model       *Model
	inFilename  string
	outFilename string
	params      paramsMap
}

func (c *converter) run() error {
	funcs := []func() error{
		c.loadTorchModelParams,
		c.deduceConfig,
		c.convEmbeddings,
		c.convDecoder,
		c.convLayers,
		c.dumpModel,
	}
	for _, fn := range funcs {
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}

func (c *converter) loadTorchModelParams() error {
	torchModel, err := pytorch.Load(c.inFilename)
	if err != nil {
		return fmt.Errorf("failed to load torch model %q: %w", c.inFilename, err)
	}
	c.params, err = makeParamsMap(torchModel)
	if err != nil {
		return fmt.Errorf("failed to read model params: %w", err)
	}
	return nil
}

// deduceConfig fills the zero values of the configuration from the
// checkpoint shapes, then allocates the model.
func (c *converter) deduceConfig() error {
	emb, ok := c.params["encoder.weight"]
	if !ok || len(emb.Size) != 2 {
		return fmt.Errorf("parameter %q not found or not a matrix", "encoder.weight")
	}
	if err := deduce(&c.config.VocabSize, emb.Size[0], "vocabulary size"); err != nil {
		return err
	}
	if err := deduce(&c.config.EmbeddingSize, emb.Size[1], "embedding size"); err != nil {
		return err
	}

	hh, ok := c.params["rnn.weight_hh_l0"]
	if !ok || len(hh.Size) != 2 {
		return fmt.Errorf("parameter %q not found or not a matrix", "rnn.weight_hh_l0")
	}
	if err := deduce(&c.config.HiddenSize, hh.Size[1], "hidden size"); err != nil {
		return err
	}

	numLayers, err := countLayers(c.params.prefixed("rnn.weight_ih_l"))
	if err != nil {
		return err
	}
	if err := deduce(&c.config.NumLayers, numLayers, "number of layers"); err != nil {
		return err
	}

	c.model, err = New(c.config)
	return err
}

func deduce(v *int, actual int, what string) error {
	if *v == 0 {
		*v = actual
		return nil
	}
	if *v != actual {
		return fmt.Errorf("expected %s %d, actual %d", what, *v, actual)
	}
	return nil
}

func (c *converter) convEmbeddings() error {
	t, err := c.params.fetch("encoder.weight")
	if err != nil {
		return err
	}
	data, err := tensorData(t)
	if err != nil {
		return fmt.Errorf("failed to convert embeddings: %w", err)
	}
	return applyRows(c.model.Embeddings.Weights, paramRecord{
		Name: "embeddings",
		Rows: t.Size[0],
		Cols: t.Size[1],
		Data: data,
	})
}

func (c *converter) convDecoder() error {
	vs, hs := c.config.VocabSize, c.config.HiddenSize

	w, err := c.fetchParamToMatrix("decoder.weight", [2]int{vs, hs})
	if err != nil {
		return fmt.Errorf("failed to convert decoder weight: %w", err)
	}
	b, err := c.fetchParamData("decoder.bias", vs)
	if err != nil {
		return fmt.Errorf("failed to convert decoder bias: %w", err)
	}
	c.model.Decoder = nn.NewParam(w)
	c.model.DecoderBias = nn.NewParam(mat.NewVecDense[float32](b))
	return nil
}

func (c *converter) convLayers() error {
	hs := c.config.HiddenSize
	for l, layer := range c.model.Encoder.Layers {
		in := hs
		if l == 0 {
			in = c.config.EmbeddingSize
		}
		wih, err := c.fetchParamData(fmt.Sprintf("rnn.weight_ih_l%d", l), 4*hs*in)
		if err != nil {
			return fmt.Errorf("failed to convert layer %d: %w", l, err)
		}
		whh, err := c.fetchParamData(fmt.Sprintf("rnn.weight_hh_l%d", l), 4*hs*hs)
		if err != nil {
			return fmt.Errorf("failed to convert layer %d: %w", l, err)
		}
		bih, err := c.fetchParamData(fmt.Sprintf("rnn.bias_ih_l%d", l), 4*hs)
		if err != nil {
			return fmt.Errorf("failed to convert layer %d: %w", l, err)
		}
		bhh, err := c.fetchParamData(fmt.Sprintf("rnn.bias_hh_l%d", l), 4*hs)
		if err != nil {
			return fmt.Errorf("failed to convert layer %d: %w", l, err)
		}

		// PyTorch stacks the gates as (input, forget, cell, output).
		for gi, g := range layer.Gates() {
			bias := make([]float32, hs)
			for j := range bias {
				bias[j] = bih[gi*hs+j] + bhh[gi*hs+j]
			}
			g.WIn = nn.NewParam(mat.NewDense[float32](hs, in, chunk(wih, gi, hs*in)))
			g.WRec = nn.NewParam(mat.NewDense[float32](hs, hs, chunk(whh, gi, hs*hs)))
			g.B = nn.NewParam(mat.NewVecDense[float32](bias))
		}
	}
	if len(c.params) > 0 {
		log.Warn().Msgf("%d unused parameters in checkpoint", len(c.params))
	}
	return nil
}

func chunk(data []float32, i, size int) []float32 {
	out := make([]float32, size)
	copy(out, data[i*size:(i+1)*size])
	return out
}

func (c *converter) dumpModel() error {
	return Dump(c.model, c.outFilename)
}

func (c *converter) fetchParamData(name string, expectedSize int) ([]float32, error) {
	t, err := c.params.fetch(name)
	if err != nil {
		return nil, err
	}
	data, err := tensorData(t)
	if err != nil {
		return nil, err
	}
	if len(data) != expectedSize {
		return nil, fmt.Errorf("%s: expected %d values, actual %d", name, expectedSize, len(data))
	}
	return data, nil
}

func (c *converter) fetchParamToMatrix(name string, expectedSize [2]int) (mat.Matrix, error) {
	t, err := c.params.fetch(name)
	if err != nil {
		return nil, err
	}
	if len(t.Size) != 2 || t.Size[0] != expectedSize[0] || t.Size[1] != expectedSize[1] {
		return nil, fmt.Errorf("expected matrix size %dx%d, actual %v", expectedSize[0], expectedSize[1], t.Size)
	}
	data, err := tensorData(t)
	if err != nil {
		return nil, err
	}
	return mat.NewDense[float32](t.Size[0], t.Size[1], data), nil
}

func tensorData(t *pytorch.Tensor) ([]float32, error) {
	size := tensorDataSize(t)
	switch st := t.Source.(type) {
	case *pytorch.FloatStorage:
		return copyData(st.Data[t.StorageOffset : t.StorageOffset+size]), nil
	case *pytorch.HalfStorage:
		return copyData(st.Data[t.StorageOffset : t.StorageOffset+size]), nil
	case *pytorch.BFloat16Storage:
		return copyData(st.Data[t.StorageOffset : t.StorageOffset+size]), nil
	case *pytorch.DoubleStorage:
		out := make([]float32, size)
		for i, v := range st.Data[t.StorageOffset : t.StorageOffset+size] {
			out[i] = float32(v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported storage type %T", t.Source)
	}
}

func copyData(d []float32) []float32 {
	out := make([]float32, len(d))
	copy(out, d)
	return out
}

func tensorDataSize(t *pytorch.Tensor) int {
	size := 1
	for _, v := range t.Size {
		size *= v
	}
	return size
}

func countLayers(params paramsMap) (int, error) {
	if len(params) == 0 {
		return 0, fmt.Errorf("no rnn layers found in parameters")
	}
	max := 0
	for k := range params {
		num, err := strconv.Atoi(k)
		if err != nil {
			return 0, fmt.Errorf("rnn parameter names expected to end with the layer number, actual suffix %q: %w", k, err)
		}
		if num > max {
			max = num
		}
	}
	return max + 1, nil
}

func cast[T any](v any) (t T, _ error) {
	t, ok := v.(T)
	if !ok {
		return t, fmt.Errorf("type assertion failed: expected %T, actual %T", t, v)
	}
	return
}

type paramsMap map[string]*pytorch.Tensor

func makeParamsMap(torchModel any) (paramsMap, error) {
	od, err := cast[*types.OrderedDict](torchModel)
	if err != nil {
		return nil, err
	}

	params := make(paramsMap, od.Len())

	for k, item := range od.Map {
		name, err := cast[string](k)
		if err != nil {
			return nil, fmt.Errorf("wrong param name type: %w", err)
		}
		tensor, err := cast[*pytorch.Tensor](item.Value)
		if err != nil {
			return nil, fmt.Errorf("wrong value type for param %q: %w", name, err)
		}
		params[name] = tensor
	}

	return params, nil
}

// fetch gets a value from params by its name, removing the entry
// from the map.
func (p paramsMap) fetch(name string) (*pytorch.Tensor, error) {
	t, ok := p[name]
	if !ok {
		return nil, fmt.Errorf("parameter %q not found", name)
	}
	delete(p, name)
	return t, nil
}

// prefixed returns the entries whose name starts with prefix, keyed by the
// rest of the name. Unlike fetch, p is left untouched.
func (p paramsMap) prefixed(prefix string) paramsMap {
	out := make(paramsMap)
	for k, v := range p {
		if after, ok := strings.CutPrefix(k, prefix); ok {
			out[after] = v
		}
	}
	return out
}
