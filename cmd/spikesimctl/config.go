package main

import (
	"encoding/json"
	"flag"
	"os"

	"spikesim/internal/storage"
	spikesim "spikesim/pkg/spikesim"
)

func commonFlags(name string) (*flag.FlagSet, *spikesim.Options) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	opts := &spikesim.Options{}
	fs.StringVar(&opts.StoreKind, "store", storage.DefaultStoreKind(), "store backend: memory|sqlite|mysql")
	fs.StringVar(&opts.DBPath, "db-path", "", "sqlite path or mysql dsn")
	fs.StringVar(&opts.ArtifactsDir, "artifacts", "", "artifacts output directory")
	return fs, opts
}

// loadSimulateRequestFromConfig reads a json config file with keys matching
// the simulate flags. Absent keys are left at zero values so the caller can
// keep flag defaults via mergeSimulateRequest.
func loadSimulateRequestFromConfig(path string) (spikesim.SimulateRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return spikesim.SimulateRequest{}, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return spikesim.SimulateRequest{}, err
	}

	var req spikesim.SimulateRequest
	if v, ok := asString(raw["network"]); ok {
		req.Network = v
	}
	if v, ok := asString(raw["dataset"]); ok {
		req.DatasetPath = v
	}
	if v, ok := asString(raw["input_encoding"]); ok {
		req.InputEncoding = v
	}
	if v, ok := asString(raw["decode_mode"]); ok {
		req.DecodeMode = v
	}
	if v, ok := asFloat64(raw["dt"]); ok {
		req.DT = v
	}
	if v, ok := asInt(raw["num_timesteps"]); ok {
		req.NumTimesteps = v
	}
	if v, ok := asInt(raw["poisson_spike_budget"]); ok {
		req.PoissonSpikeBudget = v
	}
	if v, ok := asFloat64(raw["rescale_factor"]); ok {
		req.RescaleFactor = v
	}
	if v, ok := asInt(raw["top_k"]); ok {
		req.TopK = v
	}
	if v, ok := asInt(raw["activation_bit_width"]); ok {
		req.ActivationBitWidth = v
	}
	if v, ok := asInt(raw["batch_size"]); ok {
		req.BatchSize = v
	}
	if v, ok := asInt(raw["workers"]); ok {
		req.Workers = v
	}
	if v, ok := asInt64(raw["seed"]); ok {
		req.Seed = v
	}
	if v, ok := asString(raw["ntp_server"]); ok {
		req.NTPServer = v
	}
	if v, ok := asBool(raw["record_spiketrains"]); ok {
		req.RecordSpikeTrains = v
	}
	if v, ok := asBool(raw["record_membrane"]); ok {
		req.RecordMembrane = v
	}
	if v, ok := asBool(raw["record_input"]); ok {
		req.RecordInput = v
	}
	if v, ok := asString(raw["event_path"]); ok {
		req.EventPath = v
	}
	return req, nil
}

// mergeSimulateRequest overlays the config file onto flag values. Config keys
// that were present win over flags, matching how profile files behave.
func mergeSimulateRequest(dst *spikesim.SimulateRequest, src spikesim.SimulateRequest) {
	if src.Network != "" {
		dst.Network = src.Network
	}
	if src.DatasetPath != "" {
		dst.DatasetPath = src.DatasetPath
	}
	if src.InputEncoding != "" {
		dst.InputEncoding = src.InputEncoding
	}
	if src.DecodeMode != "" {
		dst.DecodeMode = src.DecodeMode
	}
	if src.DT != 0 {
		dst.DT = src.DT
	}
	if src.NumTimesteps != 0 {
		dst.NumTimesteps = src.NumTimesteps
	}
	if src.PoissonSpikeBudget != 0 {
		dst.PoissonSpikeBudget = src.PoissonSpikeBudget
	}
	if src.RescaleFactor != 0 {
		dst.RescaleFactor = src.RescaleFactor
	}
	if src.TopK != 0 {
		dst.TopK = src.TopK
	}
	if src.ActivationBitWidth != 0 {
		dst.ActivationBitWidth = src.ActivationBitWidth
	}
	if src.BatchSize != 0 {
		dst.BatchSize = src.BatchSize
	}
	if src.Workers != 0 {
		dst.Workers = src.Workers
	}
	if src.Seed != 0 {
		dst.Seed = src.Seed
	}
	if src.NTPServer != "" {
		dst.NTPServer = src.NTPServer
	}
	if src.RecordSpikeTrains {
		dst.RecordSpikeTrains = true
	}
	if src.RecordMembrane {
		dst.RecordMembrane = true
	}
	if src.RecordInput {
		dst.RecordInput = true
	}
	if src.EventPath != "" {
		dst.EventPath = src.EventPath
	}
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func asBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case float64:
		return int(x), true
	default:
		return 0, false
	}
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		return int64(x), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}
