package storage

import (
	"context"
	"sort"
	"sync"

	"spikesim/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	networks    map[string]model.NetworkDescription
	runs        map[string]model.RunRecord
	summaries   map[string][]model.MetricSummary
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.networks = make(map[string]model.NetworkDescription)
	s.runs = make(map[string]model.RunRecord)
	s.summaries = make(map[string][]model.MetricSummary)
	return nil
}

func (s *MemoryStore) SaveNetwork(_ context.Context, network model.NetworkDescription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.networks[network.Name] = network
	return nil
}

func (s *MemoryStore) GetNetwork(_ context.Context, name string) (model.NetworkDescription, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	network, ok := s.networks[name]
	if !ok {
		return model.NetworkDescription{}, false, nil
	}
	if err := checkReconstructable(network); err != nil {
		return model.NetworkDescription{}, false, err
	}
	return network, true, nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.RunID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, runID string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	return run, ok, nil
}

func (s *MemoryStore) ListRuns(_ context.Context, limit int) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]model.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].StartedAtUTC == runs[j].StartedAtUTC {
			return runs[i].RunID > runs[j].RunID
		}
		return runs[i].StartedAtUTC > runs[j].StartedAtUTC
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (s *MemoryStore) SaveMetricSummaries(_ context.Context, runID string, summaries []model.MetricSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.summaries[runID] = append([]model.MetricSummary(nil), summaries...)
	return nil
}

func (s *MemoryStore) GetMetricSummaries(_ context.Context, runID string) ([]model.MetricSummary, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries, ok := s.summaries[runID]
	return summaries, ok, nil
}
