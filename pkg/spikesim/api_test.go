package spikesim

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, payload string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

const tinyModel = `{
  "name": "tiny",
  "layers": [
    {"name": "input", "type": "InputLayer", "shape": [2]},
    {"name": "fc", "type": "DenseLayer", "nonlinearity": "softmax",
     "num_units": 2, "w": [1, 0, 0, 1]}
  ]
}`

const tinyDataset = `{
  "shape": [2, 2],
  "data": [2, 0, 0, 2],
  "labels": [0, 1]
}`

func newTestClient(t *testing.T) (*Client, string) {
	t.Helper()
	dir := t.TempDir()
	client, err := New(Options{StoreKind: "memory", ArtifactsDir: filepath.Join(dir, "artifacts")})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		if err := client.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return client, dir
}

func TestParseSimulateRunsFlow(t *testing.T) {
	client, dir := newTestClient(t)
	ctx := context.Background()

	modelPath := writeFile(t, dir, "model.json", tinyModel)
	datasetPath := writeFile(t, dir, "dataset.json", tinyDataset)

	parsed, err := client.ParseModel(ctx, ParseRequest{ModelPath: modelPath})
	if err != nil {
		t.Fatalf("ParseModel: %v", err)
	}
	if parsed.Name != "tiny" || parsed.Layers != 2 {
		t.Fatalf("parsed = %+v", parsed)
	}

	summary, err := client.Simulate(ctx, SimulateRequest{
		Network:           "tiny",
		DatasetPath:       datasetPath,
		InputEncoding:     "rate",
		DecodeMode:        "standard",
		NumTimesteps:      8,
		RecordSpikeTrains: true,
	})
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if summary.Accuracy != 1 || summary.SamplesTotal != 2 {
		t.Fatalf("summary = %+v", summary)
	}
	if summary.RunID == "" {
		t.Fatalf("summary has no run id")
	}

	// The run directory holds the record, summaries and output series.
	for _, name := range []string{"run.json", "metric_summaries.json", "output_series.csv"} {
		if _, err := os.Stat(filepath.Join(summary.ArtifactsDir, name)); err != nil {
			t.Fatalf("missing artifact %s: %v", name, err)
		}
	}

	items, err := client.Runs(ctx, 10)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(items) != 1 || items[0].RunID != summary.RunID {
		t.Fatalf("runs = %+v", items)
	}
	if items[0].Network != "tiny" || items[0].Accuracy != 1 {
		t.Fatalf("run item = %+v", items[0])
	}
}

func TestBaseline(t *testing.T) {
	client, dir := newTestClient(t)
	ctx := context.Background()

	modelPath := writeFile(t, dir, "model.json", tinyModel)
	datasetPath := writeFile(t, dir, "dataset.json", tinyDataset)

	if _, err := client.ParseModel(ctx, ParseRequest{ModelPath: modelPath}); err != nil {
		t.Fatalf("ParseModel: %v", err)
	}

	acc, err := client.Baseline(ctx, BaselineRequest{Network: "tiny", DatasetPath: datasetPath})
	if err != nil {
		t.Fatalf("Baseline: %v", err)
	}
	if acc != 1 {
		t.Fatalf("baseline accuracy = %v, want 1", acc)
	}
}

func TestSimulateUnknownNetwork(t *testing.T) {
	client, dir := newTestClient(t)
	datasetPath := writeFile(t, dir, "dataset.json", tinyDataset)

	_, err := client.Simulate(context.Background(), SimulateRequest{
		Network:     "ghost",
		DatasetPath: datasetPath,
	})
	if !errors.Is(err, ErrNetworkNotFound) {
		t.Fatalf("expected ErrNetworkNotFound, got %v", err)
	}
}

func TestParseModelNameOverride(t *testing.T) {
	client, dir := newTestClient(t)
	modelPath := writeFile(t, dir, "model.json", tinyModel)

	parsed, err := client.ParseModel(context.Background(), ParseRequest{ModelPath: modelPath, Name: "renamed"})
	if err != nil {
		t.Fatalf("ParseModel: %v", err)
	}
	if parsed.Name != "renamed" {
		t.Fatalf("parsed name = %s, want renamed", parsed.Name)
	}
}

func TestSimulateRejectsUnknownModes(t *testing.T) {
	client, dir := newTestClient(t)
	ctx := context.Background()

	modelPath := writeFile(t, dir, "model.json", tinyModel)
	datasetPath := writeFile(t, dir, "dataset.json", tinyDataset)
	if _, err := client.ParseModel(ctx, ParseRequest{ModelPath: modelPath}); err != nil {
		t.Fatalf("ParseModel: %v", err)
	}

	if _, err := client.Simulate(ctx, SimulateRequest{
		Network:       "tiny",
		DatasetPath:   datasetPath,
		InputEncoding: "ttfs",
	}); err == nil {
		t.Fatalf("unknown encoding accepted")
	}
	if _, err := client.Simulate(ctx, SimulateRequest{
		Network:     "tiny",
		DatasetPath: datasetPath,
		DecodeMode:  "rank_order",
	}); err == nil {
		t.Fatalf("unknown decode mode accepted")
	}
}
