package tensor

import (
	"errors"
	"fmt"
	"math"
)

var ErrShapeMismatch = errors.New("tensor shape mismatch")

// Dense is a batch-major dense tensor over float64. The first axis is always
// the batch axis; remaining axes are the feature shape of one sample.
type Dense struct {
	shape []int
	data  []float64
}

func NewDense(shape ...int) *Dense {
	n := 1
	for _, dim := range shape {
		if dim <= 0 {
			panic(fmt.Sprintf("tensor: non-positive dimension %d in shape %v", dim, shape))
		}
		n *= dim
	}
	return &Dense{shape: append([]int(nil), shape...), data: make([]float64, n)}
}

func FromSlice(data []float64, shape ...int) (*Dense, error) {
	t := NewDense(shape...)
	if len(data) != len(t.data) {
		return nil, fmt.Errorf("%w: %d values for shape %v", ErrShapeMismatch, len(data), shape)
	}
	copy(t.data, data)
	return t, nil
}

func (t *Dense) Shape() []int { return append([]int(nil), t.shape...) }

func (t *Dense) Len() int { return len(t.data) }

// Batch returns the size of the leading axis.
func (t *Dense) Batch() int { return t.shape[0] }

// SampleLen returns the flattened feature count of one sample.
func (t *Dense) SampleLen() int {
	if t.shape[0] == 0 {
		return 0
	}
	return len(t.data) / t.shape[0]
}

func (t *Dense) Data() []float64 { return t.data }

// Sample returns the flat feature slice of sample b, aliasing the backing
// array.
func (t *Dense) Sample(b int) []float64 {
	n := t.SampleLen()
	return t.data[b*n : (b+1)*n]
}

func (t *Dense) Clone() *Dense {
	out := NewDense(t.shape...)
	copy(out.data, t.data)
	return out
}

func (t *Dense) Zero() {
	for i := range t.data {
		t.data[i] = 0
	}
}

func (t *Dense) Fill(v float64) {
	for i := range t.data {
		t.data[i] = v
	}
}

func (t *Dense) Scale(factor float64) *Dense {
	for i := range t.data {
		t.data[i] *= factor
	}
	return t
}

// Scaled returns a scaled copy, leaving the receiver untouched.
func (t *Dense) Scaled(factor float64) *Dense {
	return t.Clone().Scale(factor)
}

func (t *Dense) MaxAbs() float64 {
	max := 0.0
	for _, v := range t.data {
		if a := math.Abs(v); a > max {
			max = a
		}
	}
	return max
}

func (t *Dense) Max() float64 {
	if len(t.data) == 0 {
		return 0
	}
	max := t.data[0]
	for _, v := range t.data[1:] {
		if v > max {
			max = v
		}
	}
	return max
}

func (t *Dense) CountNonzero() int {
	n := 0
	for _, v := range t.data {
		if v != 0 {
			n++
		}
	}
	return n
}

func SameShape(a, b *Dense) bool {
	if len(a.shape) != len(b.shape) {
		return false
	}
	for i := range a.shape {
		if a.shape[i] != b.shape[i] {
			return false
		}
	}
	return true
}

// Reshape reinterprets the tensor with a new shape of identical volume.
func (t *Dense) Reshape(shape ...int) (*Dense, error) {
	n := 1
	for _, dim := range shape {
		n *= dim
	}
	if n != len(t.data) {
		return nil, fmt.Errorf("%w: cannot reshape %v to %v", ErrShapeMismatch, t.shape, shape)
	}
	return &Dense{shape: append([]int(nil), shape...), data: t.data}, nil
}

// ArgmaxPerSample returns, for each sample, the index of its largest entry.
func (t *Dense) ArgmaxPerSample() []int {
	out := make([]int, t.Batch())
	for b := range out {
		sample := t.Sample(b)
		best := 0
		for i, v := range sample {
			if v > sample[best] {
				best = i
			}
		}
		out[b] = best
	}
	return out
}
