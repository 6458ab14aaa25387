package layer

import (
	"errors"
	"fmt"
	"math"

	"spikesim/internal/tensor"
)

var ErrBadInput = errors.New("layer input mismatch")

// Unit is one stateful node of a spiking network. Forward advances the unit
// by one timestep; the unit owns its membrane state between calls. Stateless
// kinds (input, flatten) return nil from SpikeTrain and Membrane, which the
// driver treats as "no state to record".
type Unit interface {
	Name() string
	Kind() Kind
	Activation() Activation
	OutShape() []int
	AdvanceTime(t float64)
	Forward(in *tensor.Dense) (*tensor.Dense, error)
	Reset(sampleIdx int)
	SpikeTrain() *tensor.Dense
	Membrane() *tensor.Dense
}

const defaultThreshold = 1.0

// ifState carries the integrate-and-fire bookkeeping shared by all spiking
// variants: membrane integration, threshold crossing with reset by
// subtraction, and the per-step spiketrain (spike time stamped).
type ifState struct {
	threshold float64
	time      float64
	softmax   bool
	mem       *tensor.Dense
	spikes    *tensor.Dense
	acc       *tensor.Dense
}

func newIFState() ifState {
	return ifState{threshold: defaultThreshold}
}

func (s *ifState) AdvanceTime(t float64) { s.time = t }

// integrate adds drive to the membrane, emits binary spikes where the
// threshold is crossed, and subtracts the threshold from spiking neurons.
// Softmax-tagged units route through the probability accumulator instead.
func (s *ifState) integrate(drive *tensor.Dense) *tensor.Dense {
	if s.softmax {
		return s.integrateSoftmax(drive)
	}
	if s.mem == nil || !tensor.SameShape(s.mem, drive) {
		s.mem = tensor.NewDense(drive.Shape()...)
		s.spikes = tensor.NewDense(drive.Shape()...)
	}
	out := tensor.NewDense(drive.Shape()...)
	mem := s.mem.Data()
	spikes := s.spikes.Data()
	outData := out.Data()
	for i, d := range drive.Data() {
		mem[i] += d
		if mem[i] >= s.threshold {
			mem[i] -= s.threshold
			outData[i] = 1
			spikes[i] = s.time
		} else {
			spikes[i] = 0
		}
	}
	return out
}

// integrateSoftmax drives spikes from the clamped softmax of the membrane
// potentials: the membrane still integrates synaptic drive, but each step the
// class probability accrues in a spike accumulator that fires and resets by
// subtraction once it reaches the threshold. The accumulator keeps output
// spiking deterministic per run.
func (s *ifState) integrateSoftmax(drive *tensor.Dense) *tensor.Dense {
	if s.mem == nil || !tensor.SameShape(s.mem, drive) {
		s.mem = tensor.NewDense(drive.Shape()...)
		s.spikes = tensor.NewDense(drive.Shape()...)
		s.acc = tensor.NewDense(drive.Shape()...)
	}
	out := tensor.NewDense(drive.Shape()...)
	mem := s.mem.Data()
	for i, d := range drive.Data() {
		mem[i] += d
	}
	for b := 0; b < drive.Batch(); b++ {
		probs := softmaxProbs(s.mem.Sample(b))
		acc := s.acc.Sample(b)
		spikes := s.spikes.Sample(b)
		outRow := out.Sample(b)
		for j, p := range probs {
			if p < 0 {
				p = 0
			} else if p > 1 {
				p = 1
			}
			acc[j] += p
			if acc[j] >= s.threshold {
				acc[j] -= s.threshold
				outRow[j] = 1
				spikes[j] = s.time
			} else {
				spikes[j] = 0
			}
		}
	}
	return out
}

// softmaxProbs is the max-shifted softmax over one sample row.
func softmaxProbs(x []float64) []float64 {
	maxV := x[0]
	for _, v := range x[1:] {
		if v > maxV {
			maxV = v
		}
	}
	out := make([]float64, len(x))
	sum := 0.0
	for i, v := range x {
		out[i] = math.Exp(v - maxV)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func (s *ifState) reset() {
	if s.mem != nil {
		s.mem.Zero()
		s.spikes.Zero()
	}
	if s.acc != nil {
		s.acc.Zero()
	}
	s.time = 0
}

func (s *ifState) SpikeTrain() *tensor.Dense { return s.spikes }

func (s *ifState) Membrane() *tensor.Dense { return s.mem }

// Input is the designated entry unit. It passes the stimulus through
// unchanged and carries no state.
type Input struct {
	name  string
	shape []int
}

func NewInput(name string, shape []int) *Input {
	return &Input{name: name, shape: append([]int(nil), shape...)}
}

func (u *Input) Name() string           { return u.name }
func (u *Input) Kind() Kind             { return KindInput }
func (u *Input) Activation() Activation { return ActLinear }
func (u *Input) OutShape() []int        { return append([]int(nil), u.shape...) }
func (u *Input) AdvanceTime(float64)    {}
func (u *Input) Reset(int)              {}

func (u *Input) Forward(in *tensor.Dense) (*tensor.Dense, error) {
	if in.SampleLen() != volume(u.shape) {
		return nil, fmt.Errorf("%w: input unit %s expects %v, got %d values per sample",
			ErrBadInput, u.name, u.shape, in.SampleLen())
	}
	return in, nil
}

func (u *Input) SpikeTrain() *tensor.Dense { return nil }
func (u *Input) Membrane() *tensor.Dense   { return nil }

// Flatten reinterprets its input as a flat vector per sample. No state.
type Flatten struct {
	name    string
	inShape []int
}

func NewFlatten(name string, inShape []int) *Flatten {
	return &Flatten{name: name, inShape: append([]int(nil), inShape...)}
}

func (u *Flatten) Name() string           { return u.name }
func (u *Flatten) Kind() Kind             { return KindFlatten }
func (u *Flatten) Activation() Activation { return ActLinear }
func (u *Flatten) OutShape() []int        { return []int{volume(u.inShape)} }
func (u *Flatten) AdvanceTime(float64)    {}
func (u *Flatten) Reset(int)              {}

func (u *Flatten) Forward(in *tensor.Dense) (*tensor.Dense, error) {
	return in.Reshape(in.Batch(), volume(u.inShape))
}

func (u *Flatten) SpikeTrain() *tensor.Dense { return nil }
func (u *Flatten) Membrane() *tensor.Dense   { return nil }

func volume(shape []int) int {
	n := 1
	for _, dim := range shape {
		n *= dim
	}
	return n
}
