// Package netgraph builds and drives the spiking layer graph. The graph is an
// ordered sequence of units, topologically sorted by construction, with one
// designated input unit and one designated output unit.
package netgraph

import (
	"context"
	"errors"
	"fmt"

	"spikesim/internal/layer"
	"spikesim/internal/model"
	"spikesim/internal/tensor"
)

var (
	ErrEmptyNetwork = errors.New("network has no layers")
	ErrNoInput      = errors.New("first layer must be an input layer")
)

type Network struct {
	name  string
	units []layer.Unit

	// Static connectivity accounting, precomputed at build time.
	neurons         []int
	neuronsWithBias []int
	fanIn           []int
	fanOut          []int
}

type biasScaler interface{ ScaleBiases(dt float64) }

type fanInUnit interface{ FanIn() int }

type biasCounter interface{ NeuronsWithBias() int }

// Build wires a network from a normalized layer-description list. Biases are
// scaled by dt so one timestep charges one dt's worth of bias current.
func Build(name string, descs []model.LayerDescription, dt float64) (*Network, error) {
	if len(descs) == 0 {
		return nil, ErrEmptyNetwork
	}

	n := &Network{name: name}
	var shape []int

	for i, desc := range descs {
		kind, err := layer.ParseKind(desc.Kind)
		if err != nil {
			return nil, fmt.Errorf("layer %d (%s): %w", i, desc.Name, err)
		}
		act, err := layer.ParseActivation(desc.Activation)
		if err != nil {
			return nil, fmt.Errorf("layer %d (%s): %w", i, desc.Name, err)
		}
		if i == 0 && kind != layer.KindInput {
			return nil, ErrNoInput
		}

		var unit layer.Unit
		switch kind {
		case layer.KindInput:
			if i != 0 {
				return nil, fmt.Errorf("layer %d (%s): input layer only allowed first", i, desc.Name)
			}
			if len(desc.InputShape) == 0 {
				return nil, fmt.Errorf("layer %d (%s): input layer needs a shape", i, desc.Name)
			}
			shape = desc.InputShape
			unit = layer.NewInput(desc.Name, shape)
		case layer.KindDense:
			unit, err = layer.NewDense(desc.Name, volume(shape), desc.Units, desc.Weights, desc.Biases, act)
		case layer.KindConv2D:
			unit, err = layer.NewConv2D(desc.Name, shape, desc.Filters, desc.KernelSize,
				desc.Stride, desc.Padding, desc.Weights, desc.Biases, act)
		case layer.KindAvgPool2D, layer.KindMaxPool2D:
			unit, err = layer.NewPool2D(desc.Name, kind, shape, desc.PoolSize, desc.Stride, act)
		case layer.KindFlatten:
			unit = layer.NewFlatten(desc.Name, shape)
		}
		if err != nil {
			return nil, fmt.Errorf("layer %d (%s): %w", i, desc.Name, err)
		}

		if scaler, ok := unit.(biasScaler); ok {
			scaler.ScaleBiases(dt)
		}

		shape = unit.OutShape()
		n.units = append(n.units, unit)
	}

	n.precomputeConnectivity()
	return n, nil
}

func (n *Network) precomputeConnectivity() {
	count := len(n.units)
	n.neurons = make([]int, count)
	n.neuronsWithBias = make([]int, count)
	n.fanIn = make([]int, count)
	n.fanOut = make([]int, count)

	for i, unit := range n.units {
		n.neurons[i] = volume(unit.OutShape())
		if fi, ok := unit.(fanInUnit); ok {
			n.fanIn[i] = fi.FanIn()
		}
		if bc, ok := unit.(biasCounter); ok {
			n.neuronsWithBias[i] = bc.NeuronsWithBias()
		}
	}

	// Fan-out of layer i is the number of outbound connections per neuron,
	// derived from the receiving layer's window.
	for i := 0; i < count-1; i++ {
		next := n.units[i+1]
		switch next.Kind() {
		case layer.KindDense:
			n.fanOut[i] = volume(next.OutShape())
		case layer.KindConv2D, layer.KindAvgPool2D, layer.KindMaxPool2D:
			if fi, ok := next.(fanInUnit); ok {
				n.fanOut[i] = fi.FanIn()
			}
		case layer.KindFlatten:
			n.fanOut[i] = 1
		}
	}
}

func (n *Network) Name() string { return n.name }

func (n *Network) Units() []layer.Unit { return n.units }

func (n *Network) InputUnit() layer.Unit { return n.units[0] }

func (n *Network) OutputUnit() layer.Unit { return n.units[len(n.units)-1] }

// NumClasses is the flattened size of the output unit.
func (n *Network) NumClasses() int { return n.neurons[len(n.units)-1] }

func (n *Network) Neurons(i int) int { return n.neurons[i] }

func (n *Network) NeuronsWithBias(i int) int { return n.neuronsWithBias[i] }

func (n *Network) FanIn(i int) int { return n.fanIn[i] }

func (n *Network) FanOut(i int) int { return n.fanOut[i] }

// SetTime pushes the current simulated time into every time-aware unit.
func (n *Network) SetTime(t float64) {
	for _, unit := range n.units[1:] {
		unit.AdvanceTime(t)
	}
}

// Forward propagates one timestep of stimulus through the graph. Strictly
// sequential: unit state at step t depends on its state at step t-1.
func (n *Network) Forward(ctx context.Context, stimulus *tensor.Dense) (*tensor.Dense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := stimulus
	var err error
	for _, unit := range n.units {
		out, err = unit.Forward(out)
		if err != nil {
			return nil, fmt.Errorf("forward %s: %w", unit.Name(), err)
		}
	}
	return out, nil
}

// Reset restores every unit to its initial state before a new sample.
func (n *Network) Reset(sampleIdx int) {
	for _, unit := range n.units[1:] {
		unit.Reset(sampleIdx)
	}
}

// SpikingIndices lists the units that carry spiketrain state, in order.
func (n *Network) SpikingIndices() []int {
	var idx []int
	for i, unit := range n.units {
		if isSpikingKind(unit.Kind()) {
			idx = append(idx, i)
		}
	}
	return idx
}

func isSpikingKind(k layer.Kind) bool {
	switch k {
	case layer.KindDense, layer.KindConv2D, layer.KindAvgPool2D, layer.KindMaxPool2D:
		return true
	default:
		return false
	}
}

func volume(shape []int) int {
	n := 1
	for _, dim := range shape {
		n *= dim
	}
	return n
}
