package layer

import (
	"fmt"

	"spikesim/internal/tensor"
)

// Dense is a fully connected spiking layer. Weights are input-major:
// weights[in*units+out] connects input neuron in to output neuron out.
// Biases are charged once per timestep, pre-scaled by dt at build time so
// their contribution matches the simulator's time resolution. A softmax-tagged
// head spikes on the clamped softmax of its membrane instead of on raw
// threshold crossings.
type Dense struct {
	ifState
	name       string
	activation Activation
	inFeatures int
	units      int
	weights    []float64
	biases     []float64
}

func NewDense(name string, inFeatures, units int, weights, biases []float64, activation Activation) (*Dense, error) {
	if len(weights) != inFeatures*units {
		return nil, fmt.Errorf("%w: dense %s wants %d weights, got %d",
			ErrBadInput, name, inFeatures*units, len(weights))
	}
	if len(biases) != 0 && len(biases) != units {
		return nil, fmt.Errorf("%w: dense %s wants %d biases, got %d",
			ErrBadInput, name, units, len(biases))
	}
	u := &Dense{
		ifState:    newIFState(),
		name:       name,
		activation: activation,
		inFeatures: inFeatures,
		units:      units,
		weights:    weights,
		biases:     biases,
	}
	u.softmax = activation == ActSoftmax
	return u, nil
}

func (u *Dense) Name() string           { return u.name }
func (u *Dense) Kind() Kind             { return KindDense }
func (u *Dense) Activation() Activation { return u.activation }
func (u *Dense) OutShape() []int        { return []int{u.units} }

func (u *Dense) Forward(in *tensor.Dense) (*tensor.Dense, error) {
	drive, err := u.Drive(in)
	if err != nil {
		return nil, err
	}
	return u.integrate(drive), nil
}

// Drive computes the pre-integration synaptic drive for one timestep.
func (u *Dense) Drive(in *tensor.Dense) (*tensor.Dense, error) {
	if in.SampleLen() != u.inFeatures {
		return nil, fmt.Errorf("%w: dense %s expects %d features, got %d",
			ErrBadInput, u.name, u.inFeatures, in.SampleLen())
	}
	drive := tensor.NewDense(in.Batch(), u.units)
	for b := 0; b < in.Batch(); b++ {
		x := in.Sample(b)
		z := drive.Sample(b)
		if len(u.biases) > 0 {
			copy(z, u.biases)
		}
		for i, xi := range x {
			if xi == 0 {
				continue
			}
			row := u.weights[i*u.units : (i+1)*u.units]
			for j, w := range row {
				z[j] += xi * w
			}
		}
	}
	return drive, nil
}

func (u *Dense) Reset(int) { u.reset() }

// ScaleBiases adjusts bias magnitudes to the simulator time resolution.
func (u *Dense) ScaleBiases(dt float64) {
	for i := range u.biases {
		u.biases[i] *= dt
	}
}

// FanIn is the number of inbound connections per output neuron.
func (u *Dense) FanIn() int { return u.inFeatures }

// NeuronsWithBias counts output neurons carrying a bias term.
func (u *Dense) NeuronsWithBias() int {
	n := 0
	for _, b := range u.biases {
		if b != 0 {
			n++
		}
	}
	return n
}
