package netgraph

import (
	"context"
	"fmt"
	"math"

	"spikesim/internal/layer"
	"spikesim/internal/tensor"
)

type driveUnit interface {
	Drive(in *tensor.Dense) (*tensor.Dense, error)
}

// AnalogForward evaluates the graph as the original non-spiking network: each
// unit's raw drive followed by its recorded activation function. Used for
// baseline accuracy; it touches no membrane state.
func (n *Network) AnalogForward(ctx context.Context, x *tensor.Dense) (*tensor.Dense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := x
	var err error
	for _, unit := range n.units {
		if du, ok := unit.(driveUnit); ok {
			out, err = du.Drive(out)
			if err == nil {
				applyActivation(out, unit.Activation())
			}
		} else {
			out, err = unit.Forward(out)
		}
		if err != nil {
			return nil, fmt.Errorf("analog forward %s: %w", unit.Name(), err)
		}
	}
	return out, nil
}

func applyActivation(t *tensor.Dense, act layer.Activation) {
	switch act {
	case layer.ActReLU:
		data := t.Data()
		for i, v := range data {
			if v < 0 {
				data[i] = 0
			}
		}
	case layer.ActSoftmax:
		for b := 0; b < t.Batch(); b++ {
			softmaxInPlace(t.Sample(b))
		}
	case layer.ActBinarySigmoid:
		data := t.Data()
		for i, v := range data {
			if v > 0 {
				data[i] = 1
			} else {
				data[i] = 0
			}
		}
	case layer.ActBinaryTanh:
		data := t.Data()
		for i, v := range data {
			if v > 0 {
				data[i] = 1
			} else {
				data[i] = -1
			}
		}
	}
}

func softmaxInPlace(x []float64) {
	max := x[0]
	for _, v := range x[1:] {
		if v > max {
			max = v
		}
	}
	sum := 0.0
	for i, v := range x {
		x[i] = math.Exp(v - max)
		sum += x[i]
	}
	for i := range x {
		x[i] /= sum
	}
}
