package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// LayerDescription is one entry of the normalized layer list produced by a
// model-library adapter. Weights are stored flat; shape fields give the
// layout each kind expects.
type LayerDescription struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Activation string `json:"activation,omitempty"`

	// Dense: Units output neurons, weights laid out input-major.
	Units int `json:"units,omitempty"`

	// Conv2D: square kernels, Filters output channels.
	Filters    int    `json:"filters,omitempty"`
	KernelSize int    `json:"kernel_size,omitempty"`
	Stride     int    `json:"stride,omitempty"`
	Padding    string `json:"padding,omitempty"`

	// Pooling.
	PoolSize int `json:"pool_size,omitempty"`

	// Input: feature shape of one sample (channels, height, width) or (units).
	InputShape []int `json:"input_shape,omitempty"`

	Weights []float64 `json:"weights,omitempty"`
	Biases  []float64 `json:"biases,omitempty"`
}

// NetworkDescription is the persistable form of a parsed network.
type NetworkDescription struct {
	VersionedRecord
	Name   string             `json:"name"`
	Layers []LayerDescription `json:"layers"`
}

// RunRecord summarizes one simulation run for persistence and listing.
type RunRecord struct {
	VersionedRecord
	RunID          string  `json:"run_id"`
	Network        string  `json:"network"`
	InputEncoding  string  `json:"input_encoding"`
	DecodeMode     string  `json:"decode_mode"`
	NumTimesteps   int     `json:"num_timesteps"`
	DT             float64 `json:"dt"`
	BatchSize      int     `json:"batch_size"`
	SamplesTotal   int     `json:"samples_total"`
	SamplesCorrect int     `json:"samples_correct"`
	Accuracy       float64 `json:"accuracy"`
	TotalSynOps    float64 `json:"total_syn_ops"`
	TotalNeuronOps float64 `json:"total_neuron_ops"`
	InputTotal     float64 `json:"input_total,omitempty"`
	StartedAtUTC   string  `json:"started_at_utc"`
	FinishedAtUTC  string  `json:"finished_at_utc"`
	ClockSource    string  `json:"clock_source"`
}

// MetricSummary is the per-layer aggregate persisted after a run.
type MetricSummary struct {
	VersionedRecord
	RunID       string  `json:"run_id"`
	LayerName   string  `json:"layer_name"`
	LayerIndex  int     `json:"layer_index"`
	TotalSpikes float64 `json:"total_spikes"`
	MeanRate    float64 `json:"mean_rate"`
	// PeakRate is the highest per-neuron running firing rate observed over
	// the run; MeanMembrane averages membrane magnitude across all recorded
	// steps. Both stay zero unless the matching statistic was requested.
	PeakRate     float64 `json:"peak_rate,omitempty"`
	MeanMembrane float64 `json:"mean_membrane,omitempty"`
	SynOps       float64 `json:"syn_ops"`
	NeuronOps    float64 `json:"neuron_ops"`
}
