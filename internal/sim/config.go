package sim

import (
	"errors"
	"fmt"

	"spikesim/internal/encode"
)

var (
	ErrUnknownDecodeMode = errors.New("unknown decode mode")
	ErrBadTimesteps      = errors.New("timestep count must be positive")
	ErrBadBitWidth       = errors.New("temporal pattern decoding needs a positive bit width matching the timestep count")
	ErrBatchTooLarge     = errors.New("temporal pattern decoding supports batch size 1 only")
)

// DecodeMode selects how per-step raw output becomes the cumulative tensor
// and when the loop terminates.
type DecodeMode int

const (
	// DecodeStandard runs all timesteps and boolean-cumsums the output.
	DecodeStandard DecodeMode = iota
	// DecodeFirstSpike exits early once every sample has accumulated TopK
	// nonzero entries across class and time jointly, then holds the first
	// spike per class as a step function.
	DecodeFirstSpike
	// DecodeTemporalPattern runs exactly one step and expands its output
	// into a fixed-point bit plane along the time axis. It assumes the
	// output unit delivers analog-valued activations; a spiking head emits
	// 0/1 in its single pass and the bit expansion degenerates.
	DecodeTemporalPattern
)

var decodeModesByName = map[string]DecodeMode{
	"":                       DecodeStandard,
	"standard":               DecodeStandard,
	"first_spike_confidence": DecodeFirstSpike,
	"temporal_pattern":       DecodeTemporalPattern,
}

var decodeModeNames = map[DecodeMode]string{
	DecodeStandard:        "standard",
	DecodeFirstSpike:      "first_spike_confidence",
	DecodeTemporalPattern: "temporal_pattern",
}

func (m DecodeMode) String() string {
	if name, ok := decodeModeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("decode(%d)", int(m))
}

func ParseDecodeMode(name string) (DecodeMode, error) {
	mode, ok := decodeModesByName[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownDecodeMode, name)
	}
	return mode, nil
}

// Config is the immutable simulation configuration, threaded into the driver,
// encoder and recorder at construction time.
type Config struct {
	InputEncoding encode.Mode
	DT            float64
	NumTimesteps  int

	// PoissonSpikeBudget caps Poisson input spikes per sample; negative
	// means unlimited. RescaleFactor stretches the Poisson draw range.
	PoissonSpikeBudget int
	RescaleFactor      float64

	DecodeMode DecodeMode
	TopK       int

	// Temporal-pattern decoding only: bit width of the fixed-point
	// expansion (must equal NumTimesteps) and the float-to-int scale
	// factor. A zero ActivationScale defaults to 2^(bits-1).
	ActivationBitWidth int
	ActivationScale    float64
}

// Validate checks the static configuration. The temporal-pattern batch size
// limit is enforced per call by Driver.Simulate, which sees the batch.
func (c Config) Validate() error {
	if c.DT <= 0 {
		return errors.New("dt must be positive")
	}
	switch c.DecodeMode {
	case DecodeStandard, DecodeFirstSpike:
		if c.NumTimesteps < 1 {
			return fmt.Errorf("%w: got %d", ErrBadTimesteps, c.NumTimesteps)
		}
	case DecodeTemporalPattern:
		if c.ActivationBitWidth < 1 || c.ActivationBitWidth != c.NumTimesteps {
			return fmt.Errorf("%w: bits=%d timesteps=%d",
				ErrBadBitWidth, c.ActivationBitWidth, c.NumTimesteps)
		}
	default:
		return fmt.Errorf("%w: %d", ErrUnknownDecodeMode, int(c.DecodeMode))
	}
	if c.DecodeMode == DecodeFirstSpike && c.TopK < 1 {
		return errors.New("first-spike decoding needs top_k >= 1")
	}
	return nil
}

func (c Config) activationScale() float64 {
	if c.ActivationScale > 0 {
		return c.ActivationScale
	}
	return float64(uint64(1) << (c.ActivationBitWidth - 1))
}
