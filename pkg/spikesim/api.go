// Package spikesim is the public facade over the conversion and simulation
// engine: parse a source model, simulate the converted spiking network over a
// dataset, and inspect stored runs.
package spikesim

import (
	"context"
	"errors"
	"fmt"

	"spikesim/internal/encode"
	"spikesim/internal/model"
	"spikesim/internal/parse"
	"spikesim/internal/pipeline"
	"spikesim/internal/sim"
	"spikesim/internal/stats"
	"spikesim/internal/storage"
)

const (
	defaultArtifactsDir = "artifacts"
	defaultDBPath       = "spikesim.db"
)

var ErrNetworkNotFound = errors.New("network not found")

type Options struct {
	StoreKind    string
	DBPath       string
	ArtifactsDir string
}

type Client struct {
	store        storage.Store
	artifactsDir string
	initialized  bool
}

type ParseRequest struct {
	ModelPath string
	Name      string
}

type ParseSummary struct {
	Name   string
	Layers int
}

type SimulateRequest struct {
	Network     string
	DatasetPath string

	InputEncoding      string
	DecodeMode         string
	DT                 float64
	NumTimesteps       int
	PoissonSpikeBudget int
	RescaleFactor      float64
	TopK               int
	ActivationBitWidth int

	BatchSize         int
	Workers           int
	Seed              int64
	NTPServer         string
	RecordSpikeTrains bool
	RecordMembrane    bool
	RecordInput       bool
	EventPath         string
}

type SimulateSummary struct {
	RunID        string
	ArtifactsDir string
	Accuracy     float64
	SamplesTotal int
	SynOps       float64
	NeuronOps    float64
}

type BaselineRequest struct {
	Network     string
	DatasetPath string
}

type RunItem struct {
	RunID         string
	Network       string
	InputEncoding string
	DecodeMode    string
	NumTimesteps  int
	SamplesTotal  int
	Accuracy      float64
	StartedAtUTC  string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = defaultArtifactsDir
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{store: store, artifactsDir: artifactsDir}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	if c.initialized {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return err
	}
	c.initialized = true
	return nil
}

// ParseModel normalizes a source model export and stores the result.
func (c *Client) ParseModel(ctx context.Context, req ParseRequest) (ParseSummary, error) {
	if err := c.Init(ctx); err != nil {
		return ParseSummary{}, err
	}

	source, err := parse.LoadSourceModel(req.ModelPath)
	if err != nil {
		return ParseSummary{}, err
	}
	name := req.Name
	if name == "" {
		name = source.Name
	}
	if name == "" {
		return ParseSummary{}, errors.New("network name is required")
	}

	layers, err := parse.Extract(source)
	if err != nil {
		return ParseSummary{}, err
	}

	network := model.NetworkDescription{
		VersionedRecord: storage.Stamp(),
		Name:            name,
		Layers:          layers,
	}
	if err := c.store.SaveNetwork(ctx, network); err != nil {
		return ParseSummary{}, err
	}
	return ParseSummary{Name: name, Layers: len(layers)}, nil
}

// Simulate runs the converted network over a dataset and persists the run.
func (c *Client) Simulate(ctx context.Context, req SimulateRequest) (SimulateSummary, error) {
	if err := c.Init(ctx); err != nil {
		return SimulateSummary{}, err
	}

	network, found, err := c.store.GetNetwork(ctx, req.Network)
	if err != nil {
		return SimulateSummary{}, err
	}
	if !found {
		return SimulateSummary{}, fmt.Errorf("%w: %s", ErrNetworkNotFound, req.Network)
	}

	cfg, err := buildConfig(req)
	if err != nil {
		return SimulateSummary{}, err
	}

	ds, err := pipeline.LoadDataset(req.DatasetPath)
	if err != nil {
		return SimulateSummary{}, err
	}

	opts := pipeline.Options{
		NetworkName:       req.Network,
		BatchSize:         req.BatchSize,
		Workers:           req.Workers,
		Seed:              req.Seed,
		NTPServer:         req.NTPServer,
		RecordSpikeTrains: req.RecordSpikeTrains,
		RecordMembrane:    req.RecordMembrane,
		RecordInput:       req.RecordInput,
	}
	if cfg.InputEncoding == encode.ModeEvent {
		if req.EventPath == "" {
			return SimulateSummary{}, pipeline.ErrNoEventSource
		}
		opts.EventSource = func(int) (encode.EventSource, error) {
			return encode.LoadEventFrames(req.EventPath, cfg.NumTimesteps)
		}
	}

	result, err := pipeline.Evaluate(ctx, cfg, network.Layers, ds, opts)
	if err != nil {
		return SimulateSummary{}, err
	}

	if err := c.store.SaveRun(ctx, result.Run); err != nil {
		return SimulateSummary{}, err
	}
	if len(result.Summaries) > 0 {
		if err := c.store.SaveMetricSummaries(ctx, result.Run.RunID, result.Summaries); err != nil {
			return SimulateSummary{}, err
		}
	}

	runDir, err := stats.WriteRunArtifacts(c.artifactsDir, stats.RunArtifacts{
		Run:       result.Run,
		Summaries: result.Summaries,
	})
	if err != nil {
		return SimulateSummary{}, err
	}
	if len(result.Outputs) > 0 {
		if err := stats.WriteOutputSeries(runDir, result.Outputs[0]); err != nil {
			return SimulateSummary{}, err
		}
	}
	if err := stats.AppendRunIndex(c.artifactsDir, stats.RunIndexEntry{
		RunID:         result.Run.RunID,
		Network:       result.Run.Network,
		InputEncoding: result.Run.InputEncoding,
		DecodeMode:    result.Run.DecodeMode,
		NumTimesteps:  result.Run.NumTimesteps,
		SamplesTotal:  result.Run.SamplesTotal,
		Accuracy:      result.Run.Accuracy,
		StartedAtUTC:  result.Run.StartedAtUTC,
	}); err != nil {
		return SimulateSummary{}, err
	}

	return SimulateSummary{
		RunID:        result.Run.RunID,
		ArtifactsDir: runDir,
		Accuracy:     result.Run.Accuracy,
		SamplesTotal: result.Run.SamplesTotal,
		SynOps:       result.Run.TotalSynOps,
		NeuronOps:    result.Run.TotalNeuronOps,
	}, nil
}

// Baseline evaluates the parsed, non-spiking network for reference accuracy.
func (c *Client) Baseline(ctx context.Context, req BaselineRequest) (float64, error) {
	if err := c.Init(ctx); err != nil {
		return 0, err
	}

	network, found, err := c.store.GetNetwork(ctx, req.Network)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, fmt.Errorf("%w: %s", ErrNetworkNotFound, req.Network)
	}

	ds, err := pipeline.LoadDataset(req.DatasetPath)
	if err != nil {
		return 0, err
	}
	return parse.Evaluate(ctx, network.Layers, ds.X, ds.Labels)
}

// Runs lists stored run records, most recent first.
func (c *Client) Runs(ctx context.Context, limit int) ([]RunItem, error) {
	if err := c.Init(ctx); err != nil {
		return nil, err
	}

	runs, err := c.store.ListRuns(ctx, limit)
	if err != nil {
		return nil, err
	}
	items := make([]RunItem, 0, len(runs))
	for _, run := range runs {
		items = append(items, RunItem{
			RunID:         run.RunID,
			Network:       run.Network,
			InputEncoding: run.InputEncoding,
			DecodeMode:    run.DecodeMode,
			NumTimesteps:  run.NumTimesteps,
			SamplesTotal:  run.SamplesTotal,
			Accuracy:      run.Accuracy,
			StartedAtUTC:  run.StartedAtUTC,
		})
	}
	return items, nil
}

func buildConfig(req SimulateRequest) (sim.Config, error) {
	encoding, err := encode.ParseMode(req.InputEncoding)
	if err != nil {
		return sim.Config{}, err
	}
	decode, err := sim.ParseDecodeMode(req.DecodeMode)
	if err != nil {
		return sim.Config{}, err
	}

	cfg := sim.Config{
		InputEncoding:      encoding,
		DT:                 req.DT,
		NumTimesteps:       req.NumTimesteps,
		PoissonSpikeBudget: req.PoissonSpikeBudget,
		RescaleFactor:      req.RescaleFactor,
		DecodeMode:         decode,
		TopK:               req.TopK,
		ActivationBitWidth: req.ActivationBitWidth,
	}
	if cfg.DT == 0 {
		cfg.DT = 1
	}
	if cfg.NumTimesteps == 0 {
		cfg.NumTimesteps = 32
	}
	if cfg.DecodeMode == sim.DecodeFirstSpike && cfg.TopK == 0 {
		cfg.TopK = 1
	}
	if cfg.DecodeMode == sim.DecodeTemporalPattern && cfg.ActivationBitWidth == 0 {
		cfg.ActivationBitWidth = cfg.NumTimesteps
	}
	return cfg, cfg.Validate()
}
