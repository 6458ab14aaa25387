package pipeline

import (
	"encoding/json"
	"fmt"
	"os"

	"spikesim/internal/tensor"
)

type datasetFile struct {
	Shape  []int     `json:"shape"`
	Data   []float64 `json:"data"`
	Labels []int     `json:"labels"`
}

// LoadDataset reads a labeled sample set from a JSON dump: flat data in
// row-major order with an explicit shape whose first axis is the sample
// count.
func LoadDataset(path string) (Dataset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Dataset{}, fmt.Errorf("read dataset: %w", err)
	}
	var file datasetFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return Dataset{}, fmt.Errorf("decode dataset: %w", err)
	}
	if len(file.Shape) < 2 {
		return Dataset{}, fmt.Errorf("dataset shape %v needs at least (samples, features)", file.Shape)
	}
	x, err := tensor.FromSlice(file.Data, file.Shape...)
	if err != nil {
		return Dataset{}, fmt.Errorf("dataset: %w", err)
	}
	if len(file.Labels) != x.Batch() {
		return Dataset{}, fmt.Errorf("dataset has %d samples but %d labels", x.Batch(), len(file.Labels))
	}
	return Dataset{X: x, Labels: file.Labels}, nil
}
