package layer

import (
	"fmt"

	"spikesim/internal/tensor"
)

// Conv2D is a spiking convolutional layer over (channels, height, width)
// samples. Square kernels, direct convolution, "valid" or "same" padding.
// Weight layout: [outC][inC][k][k] flattened.
type Conv2D struct {
	ifState
	name       string
	activation Activation

	inC, inH, inW    int
	outC, outH, outW int
	kernel           int
	stride           int
	padH, padW       int

	weights []float64
	biases  []float64
}

func NewConv2D(name string, inShape []int, filters, kernel, stride int, padding string,
	weights, biases []float64, activation Activation) (*Conv2D, error) {
	if len(inShape) != 3 {
		return nil, fmt.Errorf("%w: conv2d %s expects (C,H,W) input shape, got %v",
			ErrBadInput, name, inShape)
	}
	if stride <= 0 {
		stride = 1
	}
	inC, inH, inW := inShape[0], inShape[1], inShape[2]

	var outH, outW, padH, padW int
	switch padding {
	case "", "valid":
		outH = (inH-kernel)/stride + 1
		outW = (inW-kernel)/stride + 1
	case "same":
		outH = (inH + stride - 1) / stride
		outW = (inW + stride - 1) / stride
		padH = ((outH-1)*stride + kernel - inH) / 2
		padW = ((outW-1)*stride + kernel - inW) / 2
	default:
		return nil, fmt.Errorf("%w: conv2d %s has unsupported padding %q", ErrBadInput, name, padding)
	}
	if outH <= 0 || outW <= 0 {
		return nil, fmt.Errorf("%w: conv2d %s kernel %d does not fit input %v",
			ErrBadInput, name, kernel, inShape)
	}
	if len(weights) != filters*inC*kernel*kernel {
		return nil, fmt.Errorf("%w: conv2d %s wants %d weights, got %d",
			ErrBadInput, name, filters*inC*kernel*kernel, len(weights))
	}
	if len(biases) != 0 && len(biases) != filters {
		return nil, fmt.Errorf("%w: conv2d %s wants %d biases, got %d",
			ErrBadInput, name, filters, len(biases))
	}

	return &Conv2D{
		ifState:    newIFState(),
		name:       name,
		activation: activation,
		inC:        inC, inH: inH, inW: inW,
		outC: filters, outH: outH, outW: outW,
		kernel:  kernel,
		stride:  stride,
		padH:    padH,
		padW:    padW,
		weights: weights,
		biases:  biases,
	}, nil
}

func (u *Conv2D) Name() string           { return u.name }
func (u *Conv2D) Kind() Kind             { return KindConv2D }
func (u *Conv2D) Activation() Activation { return u.activation }
func (u *Conv2D) OutShape() []int        { return []int{u.outC, u.outH, u.outW} }

func (u *Conv2D) Forward(in *tensor.Dense) (*tensor.Dense, error) {
	drive, err := u.Drive(in)
	if err != nil {
		return nil, err
	}
	return u.integrate(drive), nil
}

// Drive computes the pre-integration convolution response for one timestep.
func (u *Conv2D) Drive(in *tensor.Dense) (*tensor.Dense, error) {
	if in.SampleLen() != u.inC*u.inH*u.inW {
		return nil, fmt.Errorf("%w: conv2d %s expects %d values per sample, got %d",
			ErrBadInput, u.name, u.inC*u.inH*u.inW, in.SampleLen())
	}
	drive := tensor.NewDense(in.Batch(), u.outC, u.outH, u.outW)
	k := u.kernel
	for b := 0; b < in.Batch(); b++ {
		x := in.Sample(b)
		z := drive.Sample(b)
		for oc := 0; oc < u.outC; oc++ {
			bias := 0.0
			if len(u.biases) > 0 {
				bias = u.biases[oc]
			}
			for oy := 0; oy < u.outH; oy++ {
				for ox := 0; ox < u.outW; ox++ {
					sum := bias
					for ic := 0; ic < u.inC; ic++ {
						wBase := ((oc*u.inC + ic) * k) * k
						for ky := 0; ky < k; ky++ {
							iy := oy*u.stride + ky - u.padH
							if iy < 0 || iy >= u.inH {
								continue
							}
							for kx := 0; kx < k; kx++ {
								ix := ox*u.stride + kx - u.padW
								if ix < 0 || ix >= u.inW {
									continue
								}
								sum += x[(ic*u.inH+iy)*u.inW+ix] * u.weights[wBase+ky*k+kx]
							}
						}
					}
					z[(oc*u.outH+oy)*u.outW+ox] = sum
				}
			}
		}
	}
	return drive, nil
}

func (u *Conv2D) Reset(int) { u.reset() }

func (u *Conv2D) ScaleBiases(dt float64) {
	for i := range u.biases {
		u.biases[i] *= dt
	}
}

// FanIn is the number of inbound connections per output neuron.
func (u *Conv2D) FanIn() int { return u.inC * u.kernel * u.kernel }

func (u *Conv2D) NeuronsWithBias() int {
	n := 0
	for _, b := range u.biases {
		if b != 0 {
			n += u.outH * u.outW
		}
	}
	return n
}
