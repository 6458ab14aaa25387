// Package parse normalizes a source-framework model export into the layer
// description list consumed by the network builder. It applies the standard
// conversion simplifications: dropout removal, batch-normalization
// absorption, activation-layer folding and implicit flattening between
// convolutional and dense layers.
package parse

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"

	"spikesim/internal/model"
)

var (
	ErrUnknownLayerType = errors.New("unknown source layer type")
	ErrUnknownNonlin    = errors.New("unknown source nonlinearity")
	ErrBadModel         = errors.New("malformed source model")
)

// layerKinds maps source-framework layer type names onto the closed kind set.
// Unknown names fail fast; there is no silent default.
var layerKinds = map[string]string{
	"InputLayer":     "input",
	"DenseLayer":     "dense",
	"Conv2DLayer":    "conv2d",
	"MaxPool2DLayer": "maxpool2d",
	"Pool2DLayer":    "avgpool2d",
	"FlattenLayer":   "flatten",
	"DropoutLayer":   "dropout",
	"BatchNormLayer": "batchnorm",
	"NonlinearityLayer": "activation",
}

// activationTags maps source nonlinearity names onto recorded tags.
var activationTags = map[string]string{
	"":                    "relu",
	"rectify":             "relu",
	"linear":              "linear",
	"softmax":             "softmax",
	"binary_tanh_unit":    "binary_tanh",
	"binary_sigmoid_unit": "binary_sigmoid",
}

// SourceLayer is one layer of a source model export.
type SourceLayer struct {
	Name         string    `json:"name"`
	Type         string    `json:"type"`
	Nonlinearity string    `json:"nonlinearity,omitempty"`
	NumUnits     int       `json:"num_units,omitempty"`
	NumFilters   int       `json:"num_filters,omitempty"`
	FilterSize   int       `json:"filter_size,omitempty"`
	Stride       int       `json:"stride,omitempty"`
	Pad          string    `json:"pad,omitempty"`
	PoolSize     int       `json:"pool_size,omitempty"`
	Shape        []int     `json:"shape,omitempty"`
	W            []float64 `json:"w,omitempty"`
	B            []float64 `json:"b,omitempty"`

	// Batch normalization parameters.
	Gamma []float64 `json:"gamma,omitempty"`
	Beta  []float64 `json:"beta,omitempty"`
	Mean  []float64 `json:"mean,omitempty"`
	Var   []float64 `json:"var,omitempty"`
	Eps   float64   `json:"eps,omitempty"`
}

// SourceModel is the export format written by the training-framework side.
type SourceModel struct {
	Name   string        `json:"name"`
	Layers []SourceLayer `json:"layers"`
}

// LoadSourceModel reads a model export from disk.
func LoadSourceModel(path string) (SourceModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SourceModel{}, fmt.Errorf("read source model: %w", err)
	}
	var m SourceModel
	if err := json.Unmarshal(data, &m); err != nil {
		return SourceModel{}, fmt.Errorf("decode source model: %w", err)
	}
	return m, nil
}

// Extract normalizes a source model into the builder's layer list.
func Extract(m SourceModel) ([]model.LayerDescription, error) {
	if len(m.Layers) == 0 {
		return nil, fmt.Errorf("%w: no layers", ErrBadModel)
	}

	var out []model.LayerDescription
	var prevShape []int

	for i, src := range m.Layers {
		kind, ok := layerKinds[src.Type]
		if !ok {
			return nil, fmt.Errorf("%w: %s (layer %d)", ErrUnknownLayerType, src.Type, i)
		}

		switch kind {
		case "dropout":
			continue
		case "activation":
			// Fold the nonlinearity into the preceding parameterized layer.
			if len(out) == 0 {
				return nil, fmt.Errorf("%w: activation layer %s has no predecessor", ErrBadModel, src.Name)
			}
			tag, err := activationTag(src.Nonlinearity)
			if err != nil {
				return nil, fmt.Errorf("layer %s: %w", src.Name, err)
			}
			out[len(out)-1].Activation = tag
			continue
		case "batchnorm":
			if len(out) == 0 {
				return nil, fmt.Errorf("%w: batchnorm layer %s has no predecessor", ErrBadModel, src.Name)
			}
			if err := absorbBatchNorm(&out[len(out)-1], src); err != nil {
				return nil, fmt.Errorf("layer %s: %w", src.Name, err)
			}
			continue
		}

		tag, err := activationTag(src.Nonlinearity)
		if err != nil {
			return nil, fmt.Errorf("layer %s: %w", src.Name, err)
		}

		desc := model.LayerDescription{Name: src.Name, Kind: kind, Activation: tag}
		switch kind {
		case "input":
			if len(src.Shape) == 0 {
				return nil, fmt.Errorf("%w: input layer %s has no shape", ErrBadModel, src.Name)
			}
			desc.InputShape = src.Shape
			prevShape = src.Shape
		case "dense":
			// Conv feature maps feed dense layers through an implicit
			// flatten when the export omits one.
			if len(prevShape) > 1 {
				out = append(out, model.LayerDescription{
					Name: src.Name + "_flatten",
					Kind: "flatten",
				})
				prevShape = []int{volume(prevShape)}
			}
			desc.Units = src.NumUnits
			desc.Weights = src.W
			desc.Biases = src.B
			prevShape = []int{src.NumUnits}
		case "conv2d":
			desc.Filters = src.NumFilters
			desc.KernelSize = src.FilterSize
			desc.Stride = src.Stride
			desc.Padding = src.Pad
			desc.Weights = src.W
			desc.Biases = src.B
			prevShape = convOutShape(prevShape, src)
		case "avgpool2d", "maxpool2d":
			desc.PoolSize = src.PoolSize
			desc.Stride = src.Stride
			prevShape = poolOutShape(prevShape, src)
		case "flatten":
			prevShape = []int{volume(prevShape)}
		}
		out = append(out, desc)
	}

	if len(out) == 0 || out[0].Kind != "input" {
		return nil, fmt.Errorf("%w: first layer must be an input layer", ErrBadModel)
	}
	return out, nil
}

func activationTag(nonlinearity string) (string, error) {
	tag, ok := activationTags[nonlinearity]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownNonlin, nonlinearity)
	}
	return tag, nil
}

// absorbBatchNorm folds constant batch-norm parameters into the preceding
// layer's weights and biases. The factor gamma/sqrt(var+eps) scales every
// weight feeding output channel c; biases shift by beta - mean*factor.
func absorbBatchNorm(prev *model.LayerDescription, bn SourceLayer) error {
	channels := len(bn.Mean)
	if channels == 0 || len(bn.Var) != channels ||
		(len(bn.Gamma) != 0 && len(bn.Gamma) != channels) ||
		(len(bn.Beta) != 0 && len(bn.Beta) != channels) {
		return fmt.Errorf("%w: inconsistent batchnorm parameter lengths", ErrBadModel)
	}
	eps := bn.Eps
	if eps == 0 {
		eps = 1e-4
	}

	factors := make([]float64, channels)
	for c := 0; c < channels; c++ {
		gamma := 1.0
		if len(bn.Gamma) > 0 {
			gamma = bn.Gamma[c]
		}
		factors[c] = gamma / math.Sqrt(bn.Var[c]+eps)
	}

	if len(prev.Biases) == 0 {
		prev.Biases = make([]float64, channels)
	}
	if len(prev.Biases) != channels {
		return fmt.Errorf("%w: batchnorm channels %d do not match %s outputs %d",
			ErrBadModel, channels, prev.Name, len(prev.Biases))
	}
	for c := 0; c < channels; c++ {
		beta := 0.0
		if len(bn.Beta) > 0 {
			beta = bn.Beta[c]
		}
		prev.Biases[c] = (prev.Biases[c]-bn.Mean[c])*factors[c] + beta
	}

	switch prev.Kind {
	case "dense":
		// Weights are input-major; column c feeds output unit c.
		units := prev.Units
		for i := 0; i < len(prev.Weights)/units; i++ {
			for c := 0; c < channels; c++ {
				prev.Weights[i*units+c] *= factors[c]
			}
		}
	case "conv2d":
		// Weight block c covers one output filter.
		perFilter := len(prev.Weights) / prev.Filters
		for c := 0; c < channels; c++ {
			block := prev.Weights[c*perFilter : (c+1)*perFilter]
			for i := range block {
				block[i] *= factors[c]
			}
		}
	default:
		return fmt.Errorf("%w: cannot absorb batchnorm into %s layer", ErrBadModel, prev.Kind)
	}
	return nil
}

func convOutShape(in []int, src SourceLayer) []int {
	if len(in) != 3 {
		return in
	}
	stride := src.Stride
	if stride <= 0 {
		stride = 1
	}
	var h, w int
	if src.Pad == "same" {
		h = (in[1] + stride - 1) / stride
		w = (in[2] + stride - 1) / stride
	} else {
		h = (in[1]-src.FilterSize)/stride + 1
		w = (in[2]-src.FilterSize)/stride + 1
	}
	return []int{src.NumFilters, h, w}
}

func poolOutShape(in []int, src SourceLayer) []int {
	if len(in) != 3 {
		return in
	}
	stride := src.Stride
	if stride <= 0 {
		stride = src.PoolSize
	}
	return []int{in[0], (in[1]-src.PoolSize)/stride + 1, (in[2]-src.PoolSize)/stride + 1}
}

func volume(shape []int) int {
	n := 1
	for _, dim := range shape {
		n *= dim
	}
	return n
}
