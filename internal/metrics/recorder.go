// Package metrics holds per-run diagnostic storage: spike trains, membrane
// traces and operation counts, written once per (layer, timestep) slot by the
// simulation driver and read-only afterwards.
package metrics

import (
	"spikesim/internal/tensor"
)

// LayerSeries is a time-indexed value series for one layer: values[t] holds
// the flattened (batch × neurons) slice recorded at timestep t. Buffers are
// pre-sized by the caller; a nil series means the statistic was not requested
// and the driver skips all related computation.
type LayerSeries struct {
	LayerIndex int
	LayerName  string
	Values     [][]float64
}

// NewLayerSeries pre-sizes a series for numTimesteps slots of size
// batch*neurons each.
func NewLayerSeries(layerIndex int, layerName string, numTimesteps, slotLen int) *LayerSeries {
	values := make([][]float64, numTimesteps)
	for t := range values {
		values[t] = make([]float64, slotLen)
	}
	return &LayerSeries{LayerIndex: layerIndex, LayerName: layerName, Values: values}
}

// Record copies the layer's current state into the slot for step t.
func (s *LayerSeries) Record(t int, state *tensor.Dense) {
	if s == nil || t < 0 || t >= len(s.Values) {
		return
	}
	copy(s.Values[t], state.Data())
}

// Nonzero counts recorded spikes (spiketrain slots hold spike-time stamps,
// so any nonzero entry is one spike).
func (s *LayerSeries) Nonzero() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, slot := range s.Values {
		for _, v := range slot {
			if v != 0 {
				n++
			}
		}
	}
	return n
}

// RecordRate writes the running firing rate for step t: cumulative spikes per
// neuron so far, divided by the elapsed simulated time (t+1)*dt. The previous
// slot supplies the cumulative count, so slots must be written in step order.
func (s *LayerSeries) RecordRate(t int, train *tensor.Dense, dt float64) {
	if s == nil || t < 0 || t >= len(s.Values) {
		return
	}
	elapsed := float64(t+1) * dt
	data := train.Data()
	for i := range s.Values[t] {
		count := 0.0
		if t > 0 {
			count = s.Values[t-1][i] * float64(t) * dt
		}
		if data[i] != 0 {
			count++
		}
		s.Values[t][i] = count / elapsed
	}
}

// Max returns the largest recorded value.
func (s *LayerSeries) Max() float64 {
	if s == nil {
		return 0
	}
	best := 0.0
	for _, slot := range s.Values {
		for _, v := range slot {
			if v > best {
				best = v
			}
		}
	}
	return best
}

// AbsTotal sums the magnitude of every recorded value.
func (s *LayerSeries) AbsTotal() float64 {
	if s == nil {
		return 0
	}
	sum := 0.0
	for _, slot := range s.Values {
		for _, v := range slot {
			if v < 0 {
				v = -v
			}
			sum += v
		}
	}
	return sum
}

// Entries counts the recorded slots times their width.
func (s *LayerSeries) Entries() int {
	if s == nil || len(s.Values) == 0 {
		return 0
	}
	return len(s.Values) * len(s.Values[0])
}

// Total sums every recorded value.
func (s *LayerSeries) Total() float64 {
	if s == nil {
		return 0
	}
	sum := 0.0
	for _, slot := range s.Values {
		for _, v := range slot {
			sum += v
		}
	}
	return sum
}

// OpSeries is a per-sample, per-timestep operation counter.
type OpSeries struct {
	Counts [][]float64 // [batch][timestep]
}

func NewOpSeries(batch, numTimesteps int) *OpSeries {
	counts := make([][]float64, batch)
	for b := range counts {
		counts[b] = make([]float64, numTimesteps)
	}
	return &OpSeries{Counts: counts}
}

// Add charges ops to every sample at step t.
func (s *OpSeries) Add(t int, ops float64) {
	if s == nil {
		return
	}
	for b := range s.Counts {
		s.Counts[b][t] += ops
	}
}

// AddAll charges ops to every sample at every step (temporal-pattern mode
// spreads one forward pass across the whole bit axis).
func (s *OpSeries) AddAll(ops float64) {
	if s == nil {
		return
	}
	for b := range s.Counts {
		for t := range s.Counts[b] {
			s.Counts[b][t] += ops
		}
	}
}

// Total sums all counted operations across samples and steps.
func (s *OpSeries) Total() float64 {
	if s == nil {
		return 0
	}
	sum := 0.0
	for _, row := range s.Counts {
		for _, v := range row {
			sum += v
		}
	}
	return sum
}

// Recorder aggregates every requested statistic for one run. Any nil field
// disables that statistic with zero overhead.
type Recorder struct {
	SpikeTrains []*LayerSeries // indexed by spiking-layer ordinal
	SpikeRates  []*LayerSeries // running per-neuron firing rates
	Membrane    []*LayerSeries
	Input       *LayerSeries // stimulus trace, layer index 0
	SynapticOps *OpSeries
	NeuronOps   *OpSeries
}

// Summary is the run-level aggregation of the requested statistics.
type Summary struct {
	TotalSpikes    float64
	SpikesPerLayer []float64
	TotalSynOps    float64
	TotalNeuronOps float64
	OpsPerStep     []float64 // synaptic plus neuron ops summed over samples
}

// Summary totals the recorded series: spike counts per layer and combined
// operation counts per timestep. Unrequested statistics contribute zeros.
func (r *Recorder) Summary() Summary {
	var out Summary
	for _, series := range r.SpikeTrains {
		n := float64(series.Nonzero())
		out.SpikesPerLayer = append(out.SpikesPerLayer, n)
		out.TotalSpikes += n
	}
	out.TotalSynOps = r.SynapticOps.Total()
	out.TotalNeuronOps = r.NeuronOps.Total()
	out.OpsPerStep = perStepOps(r.SynapticOps, r.NeuronOps)
	return out
}

func perStepOps(series ...*OpSeries) []float64 {
	var out []float64
	for _, s := range series {
		if s == nil || len(s.Counts) == 0 {
			continue
		}
		if out == nil {
			out = make([]float64, len(s.Counts[0]))
		}
		for _, row := range s.Counts {
			for t, v := range row {
				out[t] += v
			}
		}
	}
	return out
}

// LayerSynapticOps is the synaptic cost of propagating one stimulus slice:
// every nonzero entry triggers fanOut synaptic updates.
func LayerSynapticOps(stimulus *tensor.Dense, fanOut int) float64 {
	return float64(stimulus.CountNonzero() * fanOut)
}
