package storage

import (
	"errors"
	"testing"

	"spikesim/internal/model"
)

func sampleNetwork() model.NetworkDescription {
	return model.NetworkDescription{
		VersionedRecord: Stamp(),
		Name:            "mnist-mlp",
		Layers: []model.LayerDescription{
			{Name: "in", Kind: "input", InputShape: []int{4}},
			{Name: "fc", Kind: "dense", Activation: "softmax", Units: 2,
				Weights: []float64{1, 2, 3, 4, 5, 6, 7, 8}, Biases: []float64{0.1, -0.1}},
		},
	}
}

func TestNetworkCodecRoundTrip(t *testing.T) {
	network := sampleNetwork()
	data, err := EncodeNetwork(network)
	if err != nil {
		t.Fatalf("EncodeNetwork: %v", err)
	}
	decoded, err := DecodeNetwork(data)
	if err != nil {
		t.Fatalf("DecodeNetwork: %v", err)
	}
	if decoded.Name != network.Name || len(decoded.Layers) != 2 {
		t.Fatalf("decoded = %+v", decoded)
	}
	if decoded.Layers[1].Weights[3] != 4 {
		t.Fatalf("weights lost in round trip: %v", decoded.Layers[1].Weights)
	}
}

func TestDecodeNetworkVersionMismatch(t *testing.T) {
	network := sampleNetwork()
	network.SchemaVersion = 99
	data, err := EncodeNetwork(network)
	if err != nil {
		t.Fatalf("EncodeNetwork: %v", err)
	}
	if _, err := DecodeNetwork(data); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}
}

func TestDecodeNetworkReloadUnsupported(t *testing.T) {
	network := sampleNetwork()
	network.Layers[1].Weights = nil
	data, err := EncodeNetwork(network)
	if err != nil {
		t.Fatalf("EncodeNetwork: %v", err)
	}
	if _, err := DecodeNetwork(data); !errors.Is(err, ErrReloadUnsupported) {
		t.Fatalf("expected ErrReloadUnsupported, got %v", err)
	}
}

func TestRunCodecRoundTrip(t *testing.T) {
	run := model.RunRecord{
		VersionedRecord: Stamp(),
		RunID:           "abc123",
		Network:         "mnist-mlp",
		InputEncoding:   "poisson",
		DecodeMode:      "standard",
		NumTimesteps:    32,
		DT:              1,
		Accuracy:        0.97,
		TotalSynOps:     12345,
	}
	data, err := EncodeRun(run)
	if err != nil {
		t.Fatalf("EncodeRun: %v", err)
	}
	decoded, err := DecodeRun(data)
	if err != nil {
		t.Fatalf("DecodeRun: %v", err)
	}
	if decoded.RunID != run.RunID || decoded.Accuracy != run.Accuracy {
		t.Fatalf("decoded = %+v", decoded)
	}

	run.CodecVersion = 42
	data, _ = EncodeRun(run)
	if _, err := DecodeRun(data); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}
}

func TestMetricSummariesCodec(t *testing.T) {
	summaries := []model.MetricSummary{
		{VersionedRecord: Stamp(), RunID: "r1", LayerName: "conv", LayerIndex: 1, TotalSpikes: 10},
		{VersionedRecord: Stamp(), RunID: "r1", LayerName: "fc", LayerIndex: 2, SynOps: 500},
	}
	data, err := EncodeMetricSummaries(summaries)
	if err != nil {
		t.Fatalf("EncodeMetricSummaries: %v", err)
	}
	decoded, err := DecodeMetricSummaries(data)
	if err != nil {
		t.Fatalf("DecodeMetricSummaries: %v", err)
	}
	if len(decoded) != 2 || decoded[1].SynOps != 500 {
		t.Fatalf("decoded = %+v", decoded)
	}

	summaries[0].SchemaVersion = 0
	data, _ = EncodeMetricSummaries(summaries)
	if _, err := DecodeMetricSummaries(data); !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}
}
