package layer

import (
	"errors"
	"math"
	"testing"

	"spikesim/internal/tensor"
)

func TestParseKindAndActivation(t *testing.T) {
	cases := []struct {
		name string
		kind Kind
	}{
		{"input", KindInput},
		{"dense", KindDense},
		{"conv2d", KindConv2D},
		{"avgpool2d", KindAvgPool2D},
		{"maxpool2d", KindMaxPool2D},
		{"flatten", KindFlatten},
	}
	for _, tc := range cases {
		kind, err := ParseKind(tc.name)
		if err != nil {
			t.Fatalf("ParseKind(%q): %v", tc.name, err)
		}
		if kind != tc.kind {
			t.Fatalf("ParseKind(%q) = %v, want %v", tc.name, kind, tc.kind)
		}
		if kind.String() != tc.name {
			t.Fatalf("Kind.String() = %q, want %q", kind.String(), tc.name)
		}
	}
	if _, err := ParseKind("lstm"); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
	if _, err := ParseActivation("swish"); !errors.Is(err, ErrUnknownActivation) {
		t.Fatalf("expected ErrUnknownActivation, got %v", err)
	}
	if act, err := ParseActivation(""); err != nil || act != ActReLU {
		t.Fatalf("ParseActivation(\"\") = %v, %v; want relu", act, err)
	}
	if !ActBinaryTanh.Binary() || ActReLU.Binary() {
		t.Fatalf("Binary() classification wrong")
	}
}

func TestIntegrateAndFireDynamics(t *testing.T) {
	// One neuron, constant drive 0.6, threshold 1.0: spikes on steps 2, 4, 5
	// under reset by subtraction (membrane 0.6, 0.2, 0.8, 0.4, 0.0).
	u, err := NewDense("fc", 1, 1, []float64{0.6}, nil, ActReLU)
	if err != nil {
		t.Fatalf("NewDense: %v", err)
	}
	in, _ := tensor.FromSlice([]float64{1}, 1, 1)

	wantSpikes := []float64{0, 1, 0, 1, 1}
	for step, want := range wantSpikes {
		u.AdvanceTime(float64(step + 1))
		out, err := u.Forward(in)
		if err != nil {
			t.Fatalf("step %d: %v", step, err)
		}
		if got := out.Data()[0]; got != want {
			t.Fatalf("step %d: spike = %v, want %v", step, got, want)
		}
		train := u.SpikeTrain().Data()[0]
		if want == 1 && train != float64(step+1) {
			t.Fatalf("step %d: spiketrain = %v, want %d", step, train, step+1)
		}
		if want == 0 && train != 0 {
			t.Fatalf("step %d: spiketrain = %v, want 0", step, train)
		}
	}

	// After 5 steps of 0.6 with three spikes the membrane sits at 0.0.
	if mem := u.Membrane().Data()[0]; math.Abs(mem) > 1e-12 {
		t.Fatalf("membrane = %v, want 0", mem)
	}

	u.Reset(0)
	if mem := u.Membrane().Data()[0]; mem != 0 {
		t.Fatalf("membrane after reset = %v, want 0", mem)
	}
	if train := u.SpikeTrain().Data()[0]; train != 0 {
		t.Fatalf("spiketrain after reset = %v, want 0", train)
	}
}

func TestDenseDriveSkipsZeroInputs(t *testing.T) {
	u, err := NewDense("fc", 3, 2, []float64{
		1, 2,
		3, 4,
		5, 6,
	}, []float64{0.5, -0.5}, ActReLU)
	if err != nil {
		t.Fatalf("NewDense: %v", err)
	}
	in, _ := tensor.FromSlice([]float64{1, 0, 2}, 1, 3)
	drive, err := u.Drive(in)
	if err != nil {
		t.Fatalf("Drive: %v", err)
	}
	want := []float64{1*1 + 2*5 + 0.5, 1*2 + 2*6 - 0.5}
	for i, w := range want {
		if got := drive.Data()[i]; math.Abs(got-w) > 1e-12 {
			t.Fatalf("drive[%d] = %v, want %v", i, got, w)
		}
	}
	if got := u.FanIn(); got != 3 {
		t.Fatalf("FanIn = %d, want 3", got)
	}
	if got := u.NeuronsWithBias(); got != 2 {
		t.Fatalf("NeuronsWithBias = %d, want 2", got)
	}
}

func TestDenseScaleBiases(t *testing.T) {
	u, _ := NewDense("fc", 1, 2, []float64{1, 1}, []float64{2, 4}, ActReLU)
	u.ScaleBiases(0.25)
	in, _ := tensor.FromSlice([]float64{0}, 1, 1)
	drive, err := u.Drive(in)
	if err != nil {
		t.Fatalf("Drive: %v", err)
	}
	if drive.Data()[0] != 0.5 || drive.Data()[1] != 1 {
		t.Fatalf("scaled bias drive = %v, want [0.5 1]", drive.Data())
	}
}

func TestDenseWeightShapeChecked(t *testing.T) {
	if _, err := NewDense("fc", 2, 2, []float64{1, 2, 3}, nil, ActReLU); !errors.Is(err, ErrBadInput) {
		t.Fatalf("expected ErrBadInput, got %v", err)
	}
	if _, err := NewDense("fc", 1, 2, []float64{1, 2}, []float64{1}, ActReLU); !errors.Is(err, ErrBadInput) {
		t.Fatalf("expected ErrBadInput for bias mismatch, got %v", err)
	}
}

func TestConv2DValidDrive(t *testing.T) {
	// 1x3x3 input, one 2x2 filter of ones: each output is the window sum.
	weights := []float64{1, 1, 1, 1}
	u, err := NewConv2D("conv", []int{1, 3, 3}, 1, 2, 1, "valid", weights, []float64{0.5}, ActReLU)
	if err != nil {
		t.Fatalf("NewConv2D: %v", err)
	}
	if got := u.OutShape(); got[0] != 1 || got[1] != 2 || got[2] != 2 {
		t.Fatalf("OutShape = %v, want [1 2 2]", got)
	}
	in, _ := tensor.FromSlice([]float64{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
	}, 1, 1, 3, 3)
	drive, err := u.Drive(in)
	if err != nil {
		t.Fatalf("Drive: %v", err)
	}
	want := []float64{12.5, 16.5, 24.5, 28.5}
	for i, w := range want {
		if got := drive.Data()[i]; math.Abs(got-w) > 1e-12 {
			t.Fatalf("drive[%d] = %v, want %v", i, got, w)
		}
	}
	if got := u.FanIn(); got != 4 {
		t.Fatalf("FanIn = %d, want 4", got)
	}
	if got := u.NeuronsWithBias(); got != 4 {
		t.Fatalf("NeuronsWithBias = %d, want 4", got)
	}
}

func TestConv2DSamePaddingShape(t *testing.T) {
	weights := make([]float64, 1*1*3*3)
	u, err := NewConv2D("conv", []int{1, 4, 4}, 1, 3, 1, "same", weights, nil, ActReLU)
	if err != nil {
		t.Fatalf("NewConv2D: %v", err)
	}
	if got := u.OutShape(); got[1] != 4 || got[2] != 4 {
		t.Fatalf("same padding OutShape = %v, want [1 4 4]", got)
	}
}

func TestConv2DRejectsBadGeometry(t *testing.T) {
	if _, err := NewConv2D("conv", []int{1, 2}, 1, 2, 1, "valid", nil, nil, ActReLU); !errors.Is(err, ErrBadInput) {
		t.Fatalf("expected ErrBadInput for non-3D shape, got %v", err)
	}
	if _, err := NewConv2D("conv", []int{1, 3, 3}, 1, 2, 1, "reflect", make([]float64, 4), nil, ActReLU); !errors.Is(err, ErrBadInput) {
		t.Fatalf("expected ErrBadInput for padding, got %v", err)
	}
}

func TestPool2DAvgAndMax(t *testing.T) {
	in, _ := tensor.FromSlice([]float64{
		1, 0, 0, 1,
		0, 1, 0, 0,
		1, 1, 0, 0,
		1, 1, 0, 1,
	}, 1, 1, 4, 4)

	avg, err := NewPool2D("avg", KindAvgPool2D, []int{1, 4, 4}, 2, 0, ActReLU)
	if err != nil {
		t.Fatalf("NewPool2D avg: %v", err)
	}
	drive, err := avg.Drive(in)
	if err != nil {
		t.Fatalf("avg Drive: %v", err)
	}
	wantAvg := []float64{0.5, 0.25, 1, 0.25}
	for i, w := range wantAvg {
		if got := drive.Data()[i]; got != w {
			t.Fatalf("avg drive[%d] = %v, want %v", i, got, w)
		}
	}

	max, err := NewPool2D("max", KindMaxPool2D, []int{1, 4, 4}, 2, 0, ActReLU)
	if err != nil {
		t.Fatalf("NewPool2D max: %v", err)
	}
	drive, err = max.Drive(in)
	if err != nil {
		t.Fatalf("max Drive: %v", err)
	}
	wantMax := []float64{1, 1, 1, 1}
	for i, w := range wantMax {
		if got := drive.Data()[i]; got != w {
			t.Fatalf("max drive[%d] = %v, want %v", i, got, w)
		}
	}
	if got := max.FanIn(); got != 4 {
		t.Fatalf("FanIn = %d, want 4", got)
	}
}

func TestPool2DRejectsNonPoolKind(t *testing.T) {
	if _, err := NewPool2D("p", KindDense, []int{1, 4, 4}, 2, 0, ActReLU); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestInputChecksShape(t *testing.T) {
	u := NewInput("in", []int{1, 2, 2})
	good, _ := tensor.FromSlice([]float64{1, 2, 3, 4}, 1, 1, 2, 2)
	if _, err := u.Forward(good); err != nil {
		t.Fatalf("Forward: %v", err)
	}
	bad, _ := tensor.FromSlice([]float64{1, 2}, 1, 2)
	if _, err := u.Forward(bad); !errors.Is(err, ErrBadInput) {
		t.Fatalf("expected ErrBadInput, got %v", err)
	}
	if u.SpikeTrain() != nil || u.Membrane() != nil {
		t.Fatalf("input unit should carry no state")
	}
}

func TestFlattenReshapesPerSample(t *testing.T) {
	u := NewFlatten("flat", []int{2, 2, 2})
	in, _ := tensor.FromSlice([]float64{1, 2, 3, 4, 5, 6, 7, 8}, 1, 2, 2, 2)
	out, err := u.Forward(in)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	shape := out.Shape()
	if len(shape) != 2 || shape[0] != 1 || shape[1] != 8 {
		t.Fatalf("flattened shape = %v, want [1 8]", shape)
	}
	if got := u.OutShape(); len(got) != 1 || got[0] != 8 {
		t.Fatalf("OutShape = %v, want [8]", got)
	}
}

func TestDenseSoftmaxSpikesOnProbability(t *testing.T) {
	u, err := NewDense("out", 1, 2, []float64{3, 0}, nil, ActSoftmax)
	if err != nil {
		t.Fatalf("NewDense: %v", err)
	}
	in, _ := tensor.FromSlice([]float64{1}, 1, 1)

	step := func(tm float64) []float64 {
		u.AdvanceTime(tm)
		out, err := u.Forward(in)
		if err != nil {
			t.Fatalf("Forward: %v", err)
		}
		return out.Data()
	}

	// Step 1: softmax(3, 0) charges the accumulator to about 0.95, no spike.
	if got := step(1); got[0] != 0 || got[1] != 0 {
		t.Fatalf("step 1 spikes = %v, want silence", got)
	}
	// Step 2 pushes the winning class past 1 and fires it.
	if got := step(2); got[0] != 1 || got[1] != 0 {
		t.Fatalf("step 2 spikes = %v, want [1 0]", got)
	}
	if train := u.SpikeTrain().Data(); train[0] != 2 || train[1] != 0 {
		t.Fatalf("spike time stamps = %v, want [2 0]", train)
	}
	// The losing class accrues probability too slowly to ever fire.
	if got := step(3); got[0] != 1 || got[1] != 0 {
		t.Fatalf("step 3 spikes = %v, want [1 0]", got)
	}

	// Reset clears the probability accumulator along with the membrane.
	u.Reset(0)
	if got := step(1); got[0] != 0 || got[1] != 0 {
		t.Fatalf("post-reset step 1 spikes = %v, want silence", got)
	}
}

func TestDenseSoftmaxFiresBelowFiringThreshold(t *testing.T) {
	u, err := NewDense("out", 1, 2, []float64{0.3, 0.2}, nil, ActSoftmax)
	if err != nil {
		t.Fatalf("NewDense: %v", err)
	}
	in, _ := tensor.FromSlice([]float64{1}, 1, 1)

	u.AdvanceTime(1)
	out, err := u.Forward(in)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if out.CountNonzero() != 0 {
		t.Fatalf("step 1 spikes = %v, want silence", out.Data())
	}

	// The winning class fires on accumulated probability at step 2 even
	// though its membrane (0.6) never crosses the plain firing threshold.
	u.AdvanceTime(2)
	out, err = u.Forward(in)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if got := out.Data(); got[0] != 1 || got[1] != 0 {
		t.Fatalf("step 2 spikes = %v, want [1 0]", got)
	}
	if mem := u.Membrane().Data(); math.Abs(mem[0]-0.6) > 1e-12 || mem[0] >= 1 {
		t.Fatalf("membrane = %v, want 0.6", mem)
	}
}
