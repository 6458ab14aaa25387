// Package sim implements the timestepped spiking-network simulation driver:
// it pushes encoded input through the layer graph once per simulated
// timestep, accumulates output spikes into a classification decision and
// records diagnostics under the configured termination policy.
package sim

import (
	"context"
	"fmt"

	"spikesim/internal/encode"
	"spikesim/internal/metrics"
	"spikesim/internal/netgraph"
	"spikesim/internal/tensor"
)

// ProgressFunc receives the provisional batch accuracy after each timestep.
type ProgressFunc func(step int, accuracy float64)

// Driver owns the layer graph's mutable state for the duration of one
// Simulate call. Callers must Reset the network between samples; Simulate
// itself never resets layer state.
type Driver struct {
	cfg      Config
	net      *netgraph.Network
	enc      encode.Encoder
	rec      *metrics.Recorder
	progress ProgressFunc
}

func NewDriver(cfg Config, net *netgraph.Network, enc encode.Encoder, rec *metrics.Recorder, progress ProgressFunc) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if net == nil {
		return nil, netgraph.ErrEmptyNetwork
	}
	if enc == nil {
		return nil, encode.ErrUnknownEncoding
	}
	return &Driver{cfg: cfg, net: net, enc: enc, rec: rec, progress: progress}, nil
}

// Simulate runs the timestepped loop over one input batch and returns the
// cumulative output tensor of shape (batch, classes, timesteps). truth may be
// nil; when present it drives the progress callback.
func (d *Driver) Simulate(ctx context.Context, batch *tensor.Dense, truth []int) (*tensor.Dense, error) {
	if d.cfg.DecodeMode == DecodeTemporalPattern && batch.Batch() != 1 {
		return nil, fmt.Errorf("%w: got batch %d", ErrBatchTooLarge, batch.Batch())
	}

	numSamples := batch.Batch()
	classes := d.net.NumClasses()
	steps := d.cfg.NumTimesteps
	raw := tensor.NewDense(numSamples, classes, steps)
	spiking := d.net.SpikingIndices()

	d.enc.Reset()

	for step := 0; step < steps; step++ {
		d.net.SetTime(float64(step+1) * d.cfg.DT)

		stimulus, err := d.enc.Stimulus(step, batch)
		if err != nil {
			return nil, err
		}

		out, err := d.net.Forward(ctx, stimulus)
		if err != nil {
			return nil, err
		}
		if out.SampleLen() != classes {
			return nil, fmt.Errorf("output unit produced %d values per sample, want %d classes",
				out.SampleLen(), classes)
		}

		if err := d.decodeStep(raw, out, step); err != nil {
			return nil, err
		}

		d.recordLayerState(spiking, step)
		d.chargeInputOps(stimulus, step)

		if truth != nil && d.progress != nil {
			d.progress(step, accuracy(truth, d.provisionalGuesses(raw, out)))
		}

		if d.cfg.DecodeMode == DecodeFirstSpike && allConfident(raw, d.cfg.TopK) {
			break
		}
		if d.cfg.DecodeMode == DecodeTemporalPattern {
			break
		}
	}

	return d.finalize(raw), nil
}

// decodeStep writes one timestep of raw output into the working tensor.
func (d *Driver) decodeStep(raw, out *tensor.Dense, step int) error {
	numSamples, classes, steps := raw.Shape()[0], raw.Shape()[1], raw.Shape()[2]
	data := raw.Data()

	if d.cfg.DecodeMode == DecodeTemporalPattern {
		bits, err := ToBinary(out, d.cfg.ActivationBitWidth, d.cfg.activationScale())
		if err != nil {
			return err
		}
		bitData := bits.Data()
		for l := 0; l < classes; l++ {
			for t := 0; t < steps; t++ {
				data[l*steps+t] = bitData[t*classes+l] * bitWeight(steps, t)
			}
		}
		return nil
	}

	for b := 0; b < numSamples; b++ {
		sample := out.Sample(b)
		for l := 0; l < classes; l++ {
			data[(b*classes+l)*steps+step] = sample[l]
		}
	}
	return nil
}

// recordLayerState appends spiketrain and membrane snapshots and charges
// per-layer operation counters for the requested statistics.
func (d *Driver) recordLayerState(spiking []int, step int) {
	if d.rec == nil {
		return
	}
	units := d.net.Units()
	temporal := d.cfg.DecodeMode == DecodeTemporalPattern

	for ord, li := range spiking {
		unit := units[li]
		train := unit.SpikeTrain()
		if train == nil {
			continue
		}
		if ord < len(d.rec.SpikeTrains) {
			d.rec.SpikeTrains[ord].Record(step, train)
		}
		if ord < len(d.rec.SpikeRates) {
			d.rec.SpikeRates[ord].RecordRate(step, train, d.cfg.DT)
		}
		if ord < len(d.rec.Membrane) {
			if mem := unit.Membrane(); mem != nil {
				d.rec.Membrane[ord].Record(step, mem)
			}
		}
		if d.rec.SynapticOps != nil {
			ops := metrics.LayerSynapticOps(train, d.net.FanOut(li))
			if temporal {
				// One pass stands in for the whole bit axis; charge the
				// doubled cost to every slot.
				d.rec.SynapticOps.AddAll(2 * ops)
			} else {
				d.rec.SynapticOps.Add(step, ops)
			}
		}
		if d.rec.NeuronOps != nil {
			ops := float64(d.net.NeuronsWithBias(li))
			if temporal {
				d.rec.NeuronOps.AddAll(ops)
			} else {
				d.rec.NeuronOps.Add(step, ops)
			}
		}
	}
}

// chargeInputOps accounts for the cost of the stimulus itself: spike-based
// encodings pay synaptic ops through the input unit's fan-out, analog input
// pays a one-off neuron-op charge on the first step.
func (d *Driver) chargeInputOps(stimulus *tensor.Dense, step int) {
	if d.rec == nil {
		return
	}
	if d.rec.Input != nil {
		d.rec.Input.Record(step, stimulus)
	}
	spikeInput := d.cfg.InputEncoding == encode.ModePoisson || d.cfg.InputEncoding == encode.ModeEvent
	if spikeInput {
		if d.rec.SynapticOps != nil {
			d.rec.SynapticOps.Add(step, metrics.LayerSynapticOps(stimulus, d.net.FanOut(0)))
		}
		return
	}
	if step == 0 && d.rec.NeuronOps != nil && len(d.net.Units()) > 1 {
		d.rec.NeuronOps.Add(0, float64(d.net.FanIn(1)*d.net.Neurons(1)*2))
	}
}

// provisionalGuesses decodes a per-sample class guess from the so-far
// accumulated output, per the active decode mode.
func (d *Driver) provisionalGuesses(raw, out *tensor.Dense) []int {
	switch d.cfg.DecodeMode {
	case DecodeFirstSpike:
		return guessByFirstSpike(raw)
	case DecodeTemporalPattern:
		return out.ArgmaxPerSample()
	default:
		return guessBySpikeSum(raw)
	}
}

func guessBySpikeSum(raw *tensor.Dense) []int {
	numSamples, classes, steps := raw.Shape()[0], raw.Shape()[1], raw.Shape()[2]
	data := raw.Data()
	out := make([]int, numSamples)
	for b := 0; b < numSamples; b++ {
		best, bestSum := 0, 0.0
		for l := 0; l < classes; l++ {
			sum := 0.0
			for t := 0; t < steps; t++ {
				sum += data[(b*classes+l)*steps+t]
			}
			if l == 0 || sum > bestSum {
				best, bestSum = l, sum
			}
		}
		out[b] = best
	}
	return out
}

func guessByFirstSpike(raw *tensor.Dense) []int {
	numSamples, classes, steps := raw.Shape()[0], raw.Shape()[1], raw.Shape()[2]
	out := make([]int, numSamples)
	for b := 0; b < numSamples; b++ {
		best, bestTime := 0, steps+1
		for l := 0; l < classes; l++ {
			t := firstSpikeTime(raw, b, l)
			if l == 0 || t < bestTime {
				best, bestTime = l, t
			}
		}
		out[b] = best
	}
	return out
}

// firstSpikeTime returns the timestep of the first nonzero entry, or the
// timestep count as a sentinel for silent classes.
func firstSpikeTime(raw *tensor.Dense, b, l int) int {
	classes, steps := raw.Shape()[1], raw.Shape()[2]
	data := raw.Data()
	for t := 0; t < steps; t++ {
		if data[(b*classes+l)*steps+t] != 0 {
			return t
		}
	}
	return steps
}

// allConfident reports whether every sample has accumulated at least topK
// nonzero entries across the class and time axes jointly.
func allConfident(raw *tensor.Dense, topK int) bool {
	numSamples, classes, steps := raw.Shape()[0], raw.Shape()[1], raw.Shape()[2]
	data := raw.Data()
	for b := 0; b < numSamples; b++ {
		nonzero := 0
		row := data[b*classes*steps : (b+1)*classes*steps]
		for _, v := range row {
			if v != 0 {
				nonzero++
			}
		}
		if nonzero < topK {
			return false
		}
	}
	return true
}

// finalize post-processes the working tensor per decode mode: boolean cumsum
// (standard), binarize-then-hold (first spike, freezing the result after an
// early exit), or bit-weight cumsum with rescale (temporal pattern).
func (d *Driver) finalize(raw *tensor.Dense) *tensor.Dense {
	numSamples, classes, steps := raw.Shape()[0], raw.Shape()[1], raw.Shape()[2]
	out := tensor.NewDense(numSamples, classes, steps)
	rawData := raw.Data()
	outData := out.Data()

	switch d.cfg.DecodeMode {
	case DecodeFirstSpike:
		for b := 0; b < numSamples; b++ {
			for l := 0; l < classes; l++ {
				base := (b*classes + l) * steps
				seen := 0.0
				for t := 0; t < steps; t++ {
					if rawData[base+t] != 0 {
						seen = 1
					}
					outData[base+t] = seen
				}
			}
		}
	case DecodeTemporalPattern:
		scale := d.cfg.activationScale()
		for l := 0; l < classes; l++ {
			base := l * steps
			sum := 0.0
			for t := 0; t < steps; t++ {
				sum += rawData[base+t]
				outData[base+t] = sum / scale
			}
		}
	default:
		for b := 0; b < numSamples; b++ {
			for l := 0; l < classes; l++ {
				base := (b*classes + l) * steps
				count := 0.0
				for t := 0; t < steps; t++ {
					if rawData[base+t] != 0 {
						count++
					}
					outData[base+t] = count
				}
			}
		}
	}
	return out
}

// Predict derives one class per sample from a finalized cumulative tensor.
func Predict(output *tensor.Dense, mode DecodeMode) []int {
	numSamples, classes, steps := output.Shape()[0], output.Shape()[1], output.Shape()[2]
	data := output.Data()
	out := make([]int, numSamples)
	for b := 0; b < numSamples; b++ {
		best := 0
		switch mode {
		case DecodeFirstSpike:
			bestTime := steps + 1
			for l := 0; l < classes; l++ {
				t := steps
				base := (b*classes + l) * steps
				for i := 0; i < steps; i++ {
					if data[base+i] != 0 {
						t = i
						break
					}
				}
				if l == 0 || t < bestTime {
					best, bestTime = l, t
				}
			}
		default:
			bestVal := 0.0
			for l := 0; l < classes; l++ {
				v := data[(b*classes+l)*steps+steps-1]
				if l == 0 || v > bestVal {
					best, bestVal = l, v
				}
			}
		}
		out[b] = best
	}
	return out
}

func accuracy(truth, guesses []int) float64 {
	if len(truth) == 0 || len(truth) != len(guesses) {
		return 0
	}
	correct := 0
	for i := range truth {
		if truth[i] == guesses[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(truth))
}
