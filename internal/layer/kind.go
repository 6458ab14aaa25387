package layer

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownKind       = errors.New("unknown layer kind")
	ErrUnknownActivation = errors.New("unknown activation")
)

// Kind is the closed set of layer variants the builder understands. The
// variant is resolved once at graph construction, never probed per timestep.
type Kind int

const (
	KindInput Kind = iota
	KindDense
	KindConv2D
	KindAvgPool2D
	KindMaxPool2D
	KindFlatten
)

var kindNames = map[Kind]string{
	KindInput:     "input",
	KindDense:     "dense",
	KindConv2D:    "conv2d",
	KindAvgPool2D: "avgpool2d",
	KindMaxPool2D: "maxpool2d",
	KindFlatten:   "flatten",
}

var kindsByName = map[string]Kind{
	"input":     KindInput,
	"dense":     KindDense,
	"conv2d":    KindConv2D,
	"avgpool2d": KindAvgPool2D,
	"maxpool2d": KindMaxPool2D,
	"flatten":   KindFlatten,
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func ParseKind(name string) (Kind, error) {
	kind, ok := kindsByName[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownKind, name)
	}
	return kind, nil
}

// Activation is the recorded activation tag of a converted layer. The ReLU
// nonlinearity is inherent to spike generation; the tag is kept so decode and
// pooling logic can special-case softmax outputs and binary activations.
type Activation int

const (
	ActLinear Activation = iota
	ActReLU
	ActSoftmax
	ActBinarySigmoid
	ActBinaryTanh
)

var activationsByName = map[string]Activation{
	"":               ActReLU,
	"linear":         ActLinear,
	"relu":           ActReLU,
	"softmax":        ActSoftmax,
	"binary_sigmoid": ActBinarySigmoid,
	"binary_tanh":    ActBinaryTanh,
}

var activationNames = map[Activation]string{
	ActLinear:        "linear",
	ActReLU:          "relu",
	ActSoftmax:       "softmax",
	ActBinarySigmoid: "binary_sigmoid",
	ActBinaryTanh:    "binary_tanh",
}

func (a Activation) String() string {
	if name, ok := activationNames[a]; ok {
		return name
	}
	return fmt.Sprintf("activation(%d)", int(a))
}

func ParseActivation(name string) (Activation, error) {
	act, ok := activationsByName[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownActivation, name)
	}
	return act, nil
}

// Binary reports whether the activation emits two-valued outputs, which lets
// max pooling take the cheaper elementwise-max path.
func (a Activation) Binary() bool {
	return a == ActBinarySigmoid || a == ActBinaryTanh
}
