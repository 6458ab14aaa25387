package storage

import (
	"context"

	"spikesim/internal/model"
)

// Store defines persistence operations for parsed networks, run records and
// per-layer metric summaries.
type Store interface {
	Init(ctx context.Context) error
	SaveNetwork(ctx context.Context, network model.NetworkDescription) error
	GetNetwork(ctx context.Context, name string) (model.NetworkDescription, bool, error)
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, runID string) (model.RunRecord, bool, error)
	ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error)
	SaveMetricSummaries(ctx context.Context, runID string, summaries []model.MetricSummary) error
	GetMetricSummaries(ctx context.Context, runID string) ([]model.MetricSummary, bool, error)
}
