package parse

import (
	"context"

	"spikesim/internal/model"
	"spikesim/internal/netgraph"
	"spikesim/internal/tensor"
)

// Evaluate runs the parsed, non-spiking network over a labeled batch and
// returns the baseline accuracy of the original model. The graph is built
// with dt=1 so biases keep their trained magnitudes.
func Evaluate(ctx context.Context, descs []model.LayerDescription, batch *tensor.Dense, truth []int) (float64, error) {
	net, err := netgraph.Build("baseline", descs, 1.0)
	if err != nil {
		return 0, err
	}
	out, err := net.AnalogForward(ctx, batch)
	if err != nil {
		return 0, err
	}
	guesses := out.ArgmaxPerSample()
	correct := 0
	for i, truthClass := range truth {
		if i < len(guesses) && guesses[i] == truthClass {
			correct++
		}
	}
	if len(truth) == 0 {
		return 0, nil
	}
	return float64(correct) / float64(len(truth)), nil
}
