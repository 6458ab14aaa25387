package layer

import (
	"fmt"

	"spikesim/internal/tensor"
)

// Pool2D is a spiking pooling layer. Average pooling integrates the pooled
// drive like any other spiking unit. Max pooling over binary activations
// takes the elementwise maximum of the window, which is exact for 0/1 spikes.
type Pool2D struct {
	ifState
	name       string
	kind       Kind
	activation Activation

	inC, inH, inW int
	outH, outW    int
	pool          int
	stride        int
}

func NewPool2D(name string, kind Kind, inShape []int, pool, stride int, activation Activation) (*Pool2D, error) {
	if kind != KindAvgPool2D && kind != KindMaxPool2D {
		return nil, fmt.Errorf("%w: %s is not a pooling kind", ErrUnknownKind, kind)
	}
	if len(inShape) != 3 {
		return nil, fmt.Errorf("%w: pool %s expects (C,H,W) input shape, got %v",
			ErrBadInput, name, inShape)
	}
	if pool <= 0 {
		return nil, fmt.Errorf("%w: pool %s has non-positive pool size %d", ErrBadInput, name, pool)
	}
	if stride <= 0 {
		stride = pool
	}
	inC, inH, inW := inShape[0], inShape[1], inShape[2]
	outH := (inH-pool)/stride + 1
	outW := (inW-pool)/stride + 1
	if outH <= 0 || outW <= 0 {
		return nil, fmt.Errorf("%w: pool %s window %d does not fit input %v",
			ErrBadInput, name, pool, inShape)
	}
	return &Pool2D{
		ifState:    newIFState(),
		name:       name,
		kind:       kind,
		activation: activation,
		inC:        inC, inH: inH, inW: inW,
		outH: outH, outW: outW,
		pool:   pool,
		stride: stride,
	}, nil
}

func (u *Pool2D) Name() string           { return u.name }
func (u *Pool2D) Kind() Kind             { return u.kind }
func (u *Pool2D) Activation() Activation { return u.activation }
func (u *Pool2D) OutShape() []int        { return []int{u.inC, u.outH, u.outW} }

func (u *Pool2D) Forward(in *tensor.Dense) (*tensor.Dense, error) {
	drive, err := u.Drive(in)
	if err != nil {
		return nil, err
	}
	return u.integrate(drive), nil
}

// Drive computes the pooled response for one timestep.
func (u *Pool2D) Drive(in *tensor.Dense) (*tensor.Dense, error) {
	if in.SampleLen() != u.inC*u.inH*u.inW {
		return nil, fmt.Errorf("%w: pool %s expects %d values per sample, got %d",
			ErrBadInput, u.name, u.inC*u.inH*u.inW, in.SampleLen())
	}
	drive := tensor.NewDense(in.Batch(), u.inC, u.outH, u.outW)
	for b := 0; b < in.Batch(); b++ {
		x := in.Sample(b)
		z := drive.Sample(b)
		for c := 0; c < u.inC; c++ {
			for oy := 0; oy < u.outH; oy++ {
				for ox := 0; ox < u.outW; ox++ {
					var acc float64
					for py := 0; py < u.pool; py++ {
						for px := 0; px < u.pool; px++ {
							v := x[(c*u.inH+oy*u.stride+py)*u.inW+ox*u.stride+px]
							if u.kind == KindMaxPool2D {
								if v > acc {
									acc = v
								}
							} else {
								acc += v
							}
						}
					}
					if u.kind == KindAvgPool2D {
						acc /= float64(u.pool * u.pool)
					}
					z[(c*u.outH+oy)*u.outW+ox] = acc
				}
			}
		}
	}
	return drive, nil
}

func (u *Pool2D) Reset(int) { u.reset() }

// FanIn is the pooling window size.
func (u *Pool2D) FanIn() int { return u.pool * u.pool }
