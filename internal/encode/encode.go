// Package encode turns raw input batches into per-timestep stimuli.
package encode

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"spikesim/internal/tensor"
)

var (
	ErrUnknownEncoding = errors.New("unknown input encoding")
	ErrStreamUnderrun  = errors.New("event source exhausted before simulation end")
)

// Mode selects how raw input becomes a per-timestep stimulus.
type Mode int

const (
	ModeRate Mode = iota
	ModePoisson
	ModeEvent
)

var modesByName = map[string]Mode{
	"":        ModeRate,
	"rate":    ModeRate,
	"poisson": ModePoisson,
	"event":   ModeEvent,
}

var modeNames = map[Mode]string{
	ModeRate:    "rate",
	ModePoisson: "poisson",
	ModeEvent:   "event",
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

func ParseMode(name string) (Mode, error) {
	mode, ok := modesByName[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownEncoding, name)
	}
	return mode, nil
}

// Encoder produces the stimulus for one timestep. Reset clears per-sample
// state (the Poisson spike budget) before a new sample.
type Encoder interface {
	Stimulus(step int, x *tensor.Dense) (*tensor.Dense, error)
	Reset()
}

// RateEncoder scales the input by the time resolution once; the stimulus is
// constant across steps.
type RateEncoder struct {
	dt     float64
	cached *tensor.Dense
	source *tensor.Dense
}

func NewRateEncoder(dt float64) *RateEncoder {
	return &RateEncoder{dt: dt}
}

func (e *RateEncoder) Stimulus(_ int, x *tensor.Dense) (*tensor.Dense, error) {
	if e.cached == nil || e.source != x {
		e.cached = x.Scaled(e.dt)
		e.source = x
	}
	return e.cached, nil
}

func (e *RateEncoder) Reset() {
	e.cached = nil
	e.source = nil
}

// PoissonEncoder stochastically emits spikes with probability proportional to
// input magnitude. Spikes carry the batch maximum as magnitude, signed to
// match the input, so non-normalized inputs keep their polarity. A
// non-negative budget caps total emitted spikes per sample; once exhausted
// the stimulus degrades to all zeros. A negative budget means unlimited.
type PoissonEncoder struct {
	rescale float64
	budget  int
	rng     *rand.Rand

	spikeCount float64
}

func NewPoissonEncoder(rescale float64, budget int, rng *rand.Rand) *PoissonEncoder {
	if rescale <= 0 {
		rescale = 1
	}
	return &PoissonEncoder{rescale: rescale, budget: budget, rng: rng}
}

func (e *PoissonEncoder) Stimulus(_ int, x *tensor.Dense) (*tensor.Dense, error) {
	out := tensor.NewDense(x.Shape()...)
	if e.budget >= 0 && e.spikeCount >= float64(e.budget) {
		return out, nil
	}

	max := x.Max()
	data := x.Data()
	outData := out.Data()
	emitted := 0
	for i, v := range data {
		draw := e.rng.Float64() * e.rescale * max
		if draw <= math.Abs(v) && v != 0 {
			outData[i] = max * sign(v)
			emitted++
		}
	}
	e.spikeCount += float64(emitted) / float64(x.Batch())
	return out, nil
}

func (e *PoissonEncoder) Reset() { e.spikeCount = 0 }

// SpikeCount reports spikes emitted for the current sample, averaged over the
// batch.
func (e *PoissonEncoder) SpikeCount() float64 { return e.spikeCount }

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

// EventSource supplies pre-materialized event frames, one per timestep.
type EventSource interface {
	NextFrame() (*tensor.Dense, error)
}

// EventEncoder replays frames from an EventSource. The source must supply at
// least one frame per timestep; running dry is a fatal stream underrun.
type EventEncoder struct {
	source EventSource
}

func NewEventEncoder(source EventSource) *EventEncoder {
	return &EventEncoder{source: source}
}

func (e *EventEncoder) Stimulus(step int, _ *tensor.Dense) (*tensor.Dense, error) {
	frame, err := e.source.NextFrame()
	if err != nil {
		return nil, fmt.Errorf("event frame %d: %w", step, err)
	}
	return frame, nil
}

func (e *EventEncoder) Reset() {}

// SliceEventSource serves frames from memory in order.
type SliceEventSource struct {
	frames []*tensor.Dense
	next   int
}

func NewSliceEventSource(frames []*tensor.Dense) *SliceEventSource {
	return &SliceEventSource{frames: frames}
}

func (s *SliceEventSource) NextFrame() (*tensor.Dense, error) {
	if s.next >= len(s.frames) {
		return nil, ErrStreamUnderrun
	}
	frame := s.frames[s.next]
	s.next++
	return frame, nil
}

// Rewind restarts the stream for a new sample.
func (s *SliceEventSource) Rewind() { s.next = 0 }
