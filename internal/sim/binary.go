package sim

import (
	"fmt"

	"spikesim/internal/tensor"
)

// ToBinary expands x*scaleFac into an MSB-first fixed-point bit plane of
// shape (numBits, features). Only the first sample of x is used; the caller
// guarantees batch size 1 and that the scaled values fit in numBits unsigned
// bits (no overflow check, matching the normalized-activation contract).
func ToBinary(x *tensor.Dense, numBits int, scaleFac float64) (*tensor.Dense, error) {
	if numBits < 1 {
		return nil, fmt.Errorf("%w: bits=%d", ErrBadBitWidth, numBits)
	}
	features := x.SampleLen()
	out := tensor.NewDense(numBits, features)
	outData := out.Data()
	sample := x.Sample(0)

	for l, v := range sample {
		remainder := v * scaleFac
		for i := 0; i < numBits; i++ {
			weight := bitWeight(numBits, i)
			if remainder >= weight {
				outData[i*features+l] = 1
				remainder -= weight
			}
		}
	}
	return out, nil
}

// FromBinary reconstructs decimal values from an MSB-first bit plane produced
// by ToBinary, undoing the scale factor.
func FromBinary(bits *tensor.Dense, scaleFac float64) []float64 {
	shape := bits.Shape()
	numBits, features := shape[0], shape[1]
	data := bits.Data()
	out := make([]float64, features)
	for l := 0; l < features; l++ {
		sum := 0.0
		for i := 0; i < numBits; i++ {
			sum += data[i*features+l] * bitWeight(numBits, i)
		}
		out[l] = sum / scaleFac
	}
	return out
}

// bitWeight is the positional power-of-two weight of bit i, MSB first.
func bitWeight(numBits, i int) float64 {
	return float64(uint64(1) << (numBits - i - 1))
}
