package storage

import (
	"context"
	"errors"
	"testing"

	"spikesim/internal/model"
)

func newInitedMemoryStore(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore()
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return s
}

func TestMemoryStoreNetworks(t *testing.T) {
	s := newInitedMemoryStore(t)
	ctx := context.Background()

	if _, found, err := s.GetNetwork(ctx, "missing"); err != nil || found {
		t.Fatalf("lookup of missing network = %v, %v", found, err)
	}

	network := sampleNetwork()
	if err := s.SaveNetwork(ctx, network); err != nil {
		t.Fatalf("SaveNetwork: %v", err)
	}
	got, found, err := s.GetNetwork(ctx, network.Name)
	if err != nil || !found {
		t.Fatalf("GetNetwork: %v, %v", found, err)
	}
	if len(got.Layers) != 2 {
		t.Fatalf("got = %+v", got)
	}

	// Stored networks without weights cannot rebuild the graph.
	broken := sampleNetwork()
	broken.Name = "broken"
	broken.Layers[1].Weights = nil
	if err := s.SaveNetwork(ctx, broken); err != nil {
		t.Fatalf("SaveNetwork: %v", err)
	}
	if _, _, err := s.GetNetwork(ctx, "broken"); !errors.Is(err, ErrReloadUnsupported) {
		t.Fatalf("expected ErrReloadUnsupported, got %v", err)
	}
}

func TestMemoryStoreRunsSortedAndLimited(t *testing.T) {
	s := newInitedMemoryStore(t)
	ctx := context.Background()

	runs := []model.RunRecord{
		{VersionedRecord: Stamp(), RunID: "a", StartedAtUTC: "2026-08-26T10:00:00Z"},
		{VersionedRecord: Stamp(), RunID: "b", StartedAtUTC: "2026-08-26T12:00:00Z"},
		{VersionedRecord: Stamp(), RunID: "c", StartedAtUTC: "2026-08-26T11:00:00Z"},
	}
	for _, run := range runs {
		if err := s.SaveRun(ctx, run); err != nil {
			t.Fatalf("SaveRun: %v", err)
		}
	}

	listed, err := s.ListRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	wantOrder := []string{"b", "c", "a"}
	for i, id := range wantOrder {
		if listed[i].RunID != id {
			t.Fatalf("order = %v, want %v", listed, wantOrder)
		}
	}

	limited, err := s.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(limited) != 2 || limited[0].RunID != "b" {
		t.Fatalf("limited = %v", limited)
	}

	got, found, err := s.GetRun(ctx, "c")
	if err != nil || !found || got.StartedAtUTC != "2026-08-26T11:00:00Z" {
		t.Fatalf("GetRun = %+v, %v, %v", got, found, err)
	}
}

func TestMemoryStoreMetricSummaries(t *testing.T) {
	s := newInitedMemoryStore(t)
	ctx := context.Background()

	if _, found, err := s.GetMetricSummaries(ctx, "nope"); err != nil || found {
		t.Fatalf("lookup of missing summaries = %v, %v", found, err)
	}

	summaries := []model.MetricSummary{
		{VersionedRecord: Stamp(), RunID: "r1", LayerName: "fc", TotalSpikes: 3},
	}
	if err := s.SaveMetricSummaries(ctx, "r1", summaries); err != nil {
		t.Fatalf("SaveMetricSummaries: %v", err)
	}

	// The store keeps its own copy.
	summaries[0].TotalSpikes = 99
	got, found, err := s.GetMetricSummaries(ctx, "r1")
	if err != nil || !found {
		t.Fatalf("GetMetricSummaries: %v, %v", found, err)
	}
	if got[0].TotalSpikes != 3 {
		t.Fatalf("stored summary aliased caller slice: %+v", got)
	}
}
