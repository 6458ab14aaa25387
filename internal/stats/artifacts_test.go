package stats

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"spikesim/internal/model"
	"spikesim/internal/tensor"
)

func sampleArtifacts(runID string) RunArtifacts {
	return RunArtifacts{
		Run: model.RunRecord{
			RunID:         runID,
			Network:       "mnist-mlp",
			InputEncoding: "poisson",
			DecodeMode:    "standard",
			NumTimesteps:  16,
			SamplesTotal:  100,
			Accuracy:      0.94,
			StartedAtUTC:  "2026-08-26T10:00:00Z",
		},
		Summaries: []model.MetricSummary{
			{RunID: runID, LayerName: "fc", LayerIndex: 1, TotalSpikes: 512, MeanRate: 0.32},
		},
	}
}

func TestWriteAndReadRunArtifacts(t *testing.T) {
	baseDir := t.TempDir()
	artifacts := sampleArtifacts("run-1")

	runDir, err := WriteRunArtifacts(baseDir, artifacts)
	if err != nil {
		t.Fatalf("WriteRunArtifacts: %v", err)
	}
	if runDir != filepath.Join(baseDir, "run-1") {
		t.Fatalf("run dir = %s", runDir)
	}

	got, found, err := ReadRunArtifacts(baseDir, "run-1")
	if err != nil || !found {
		t.Fatalf("ReadRunArtifacts: %v, %v", found, err)
	}
	if got.Run.Accuracy != 0.94 || got.Run.Network != "mnist-mlp" {
		t.Fatalf("run = %+v", got.Run)
	}
	if len(got.Summaries) != 1 || got.Summaries[0].TotalSpikes != 512 {
		t.Fatalf("summaries = %+v", got.Summaries)
	}

	if _, found, err := ReadRunArtifacts(baseDir, "nope"); err != nil || found {
		t.Fatalf("lookup of missing run = %v, %v", found, err)
	}

	if _, err := WriteRunArtifacts(baseDir, RunArtifacts{}); err == nil {
		t.Fatalf("empty run id accepted")
	}
}

func TestWriteOutputSeries(t *testing.T) {
	runDir := t.TempDir()
	output, err := tensor.FromSlice([]float64{
		0, 1, 2,
		0, 0, 1,
	}, 1, 2, 3)
	if err != nil {
		t.Fatalf("FromSlice: %v", err)
	}
	if err := WriteOutputSeries(runDir, output); err != nil {
		t.Fatalf("WriteOutputSeries: %v", err)
	}

	file, err := os.Open(filepath.Join(runDir, "output_series.csv"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer file.Close()
	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}

	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header plus 2", len(rows))
	}
	wantHeader := []string{"sample", "class", "t0", "t1", "t2"}
	for i, col := range wantHeader {
		if rows[0][i] != col {
			t.Fatalf("header = %v, want %v", rows[0], wantHeader)
		}
	}
	if rows[1][0] != "0" || rows[1][1] != "0" || rows[1][4] != "2" {
		t.Fatalf("first class row = %v", rows[1])
	}
	if rows[2][1] != "1" || rows[2][4] != "1" {
		t.Fatalf("second class row = %v", rows[2])
	}
}

func TestRunIndexAppendAndReplace(t *testing.T) {
	baseDir := t.TempDir()

	entries := []RunIndexEntry{
		{RunID: "a", Network: "n", Accuracy: 0.5, StartedAtUTC: "2026-08-26T10:00:00Z"},
		{RunID: "b", Network: "n", Accuracy: 0.7, StartedAtUTC: "2026-08-26T12:00:00Z"},
	}
	for _, entry := range entries {
		if err := AppendRunIndex(baseDir, entry); err != nil {
			t.Fatalf("AppendRunIndex: %v", err)
		}
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		t.Fatalf("ListRunIndex: %v", err)
	}
	if len(index) != 2 || index[0].RunID != "b" {
		t.Fatalf("index = %+v, want newest first", index)
	}

	// Re-indexing the same run replaces its entry instead of duplicating it.
	updated := entries[0]
	updated.Accuracy = 0.9
	if err := AppendRunIndex(baseDir, updated); err != nil {
		t.Fatalf("AppendRunIndex: %v", err)
	}
	index, err = ListRunIndex(baseDir)
	if err != nil {
		t.Fatalf("ListRunIndex: %v", err)
	}
	if len(index) != 2 {
		t.Fatalf("replace duplicated the entry: %+v", index)
	}
	for _, entry := range index {
		if entry.RunID == "a" && entry.Accuracy != 0.9 {
			t.Fatalf("entry not replaced: %+v", entry)
		}
	}

	if err := AppendRunIndex(baseDir, RunIndexEntry{}); err == nil {
		t.Fatalf("empty run id accepted")
	}
}

func TestListRunIndexEmptyDir(t *testing.T) {
	index, err := ListRunIndex(t.TempDir())
	if err != nil {
		t.Fatalf("ListRunIndex: %v", err)
	}
	if len(index) != 0 {
		t.Fatalf("index = %+v, want empty", index)
	}
}
