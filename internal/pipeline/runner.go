// Package pipeline evaluates a converted network over a labeled dataset.
// Batches fan out to a bounded worker pool; every worker builds its own
// network instance so each simulation run keeps the strict sequential
// ordering its layer state depends on.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"spikesim/internal/encode"
	"spikesim/internal/metrics"
	"spikesim/internal/model"
	"spikesim/internal/netgraph"
	"spikesim/internal/sim"
	"spikesim/internal/storage"
	"spikesim/internal/tensor"
)

var ErrNoEventSource = errors.New("event encoding needs an event source factory")

// Dataset is a labeled sample set; X is (N, features...).
type Dataset struct {
	X      *tensor.Dense
	Labels []int
}

// EventSourceFactory supplies a fresh event stream per batch when the input
// encoding replays recorded events.
type EventSourceFactory func(batchIdx int) (encode.EventSource, error)

type Options struct {
	NetworkName string
	BatchSize   int
	Workers     int
	Seed        int64
	NTPServer   string
	EventSource EventSourceFactory

	// RecordSpikeTrains enables per-layer spike accounting (trains plus
	// running firing rates), which sizes one buffer per spiking layer per
	// batch. RecordMembrane and RecordInput add membrane traces and the
	// stimulus trace the same way.
	RecordSpikeTrains bool
	RecordMembrane    bool
	RecordInput       bool
}

type Result struct {
	Run       model.RunRecord
	Summaries []model.MetricSummary
	// Outputs holds one cumulative tensor per batch, in batch order.
	Outputs []*tensor.Dense
}

type batchResult struct {
	correct    int
	total      int
	synOps     float64
	nrnOps     float64
	spikes     []float64 // per spiking-layer spike counts
	peakRates  []float64 // per spiking-layer peak firing rates
	memAbs     []float64 // per spiking-layer summed membrane magnitude
	memEntries []float64
	inputTotal float64
	output     *tensor.Dense
}

// Evaluate simulates every batch of the dataset and returns the aggregated
// run record plus per-layer summaries.
func Evaluate(ctx context.Context, cfg sim.Config, descs []model.LayerDescription, ds Dataset, opts Options) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	if ds.X == nil || ds.X.Batch() == 0 {
		return Result{}, errors.New("dataset is empty")
	}
	if len(ds.Labels) != ds.X.Batch() {
		return Result{}, fmt.Errorf("dataset has %d samples but %d labels", ds.X.Batch(), len(ds.Labels))
	}
	if cfg.InputEncoding == encode.ModeEvent && opts.EventSource == nil {
		return Result{}, ErrNoEventSource
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}
	if cfg.DecodeMode == sim.DecodeTemporalPattern {
		batchSize = 1
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}

	// Probe the graph once up front so a bad description fails before any
	// worker starts.
	probe, err := netgraph.Build(opts.NetworkName, descs, cfg.DT)
	if err != nil {
		return Result{}, err
	}
	spiking := probe.SpikingIndices()

	clock := Clock{Server: opts.NTPServer}
	startTime, clockSource := clock.Now()

	numBatches := (ds.X.Batch() + batchSize - 1) / batchSize
	results := make([]*batchResult, numBatches)
	var mu sync.Mutex

	workerPool := pool.New().WithErrors().WithMaxGoroutines(workers)
	for batchIdx := 0; batchIdx < numBatches; batchIdx++ {
		batchIdx := batchIdx
		workerPool.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := runBatch(ctx, cfg, descs, ds, opts, batchIdx, batchSize, spiking)
			if err != nil {
				return fmt.Errorf("batch %d: %w", batchIdx, err)
			}
			mu.Lock()
			results[batchIdx] = res
			mu.Unlock()
			return nil
		})
	}
	if err := workerPool.Wait(); err != nil {
		return Result{}, err
	}

	endTime, _ := clock.Now()
	return aggregate(cfg, descs, opts, probe, spiking, results, startTime, endTime, clockSource), nil
}

func runBatch(ctx context.Context, cfg sim.Config, descs []model.LayerDescription,
	ds Dataset, opts Options, batchIdx, batchSize int, spiking []int) (*batchResult, error) {

	start := batchIdx * batchSize
	end := start + batchSize
	if end > ds.X.Batch() {
		end = ds.X.Batch()
	}

	batch := sliceBatch(ds.X, start, end)
	truth := ds.Labels[start:end]

	net, err := netgraph.Build(opts.NetworkName, descs, cfg.DT)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(opts.Seed + int64(batchIdx)))
	enc, err := newEncoder(cfg, rng, opts, batchIdx)
	if err != nil {
		return nil, err
	}

	rec := &metrics.Recorder{
		SynapticOps: metrics.NewOpSeries(batch.Batch(), cfg.NumTimesteps),
		NeuronOps:   metrics.NewOpSeries(batch.Batch(), cfg.NumTimesteps),
	}
	units := net.Units()
	if opts.RecordSpikeTrains {
		for _, li := range spiking {
			slotLen := batch.Batch() * net.Neurons(li)
			rec.SpikeTrains = append(rec.SpikeTrains,
				metrics.NewLayerSeries(li, units[li].Name(), cfg.NumTimesteps, slotLen))
			rec.SpikeRates = append(rec.SpikeRates,
				metrics.NewLayerSeries(li, units[li].Name(), cfg.NumTimesteps, slotLen))
		}
	}
	if opts.RecordMembrane {
		for _, li := range spiking {
			slotLen := batch.Batch() * net.Neurons(li)
			rec.Membrane = append(rec.Membrane,
				metrics.NewLayerSeries(li, units[li].Name(), cfg.NumTimesteps, slotLen))
		}
	}
	if opts.RecordInput {
		slotLen := batch.Batch() * batch.SampleLen()
		rec.Input = metrics.NewLayerSeries(0, units[0].Name(), cfg.NumTimesteps, slotLen)
	}

	driver, err := sim.NewDriver(cfg, net, enc, rec, nil)
	if err != nil {
		return nil, err
	}

	net.Reset(batchIdx)
	output, err := driver.Simulate(ctx, batch, truth)
	if err != nil {
		return nil, err
	}

	guesses := sim.Predict(output, cfg.DecodeMode)
	summary := rec.Summary()
	res := &batchResult{
		total:      len(truth),
		synOps:     summary.TotalSynOps,
		nrnOps:     summary.TotalNeuronOps,
		spikes:     summary.SpikesPerLayer,
		inputTotal: rec.Input.AbsTotal(),
		output:     output,
	}
	for i, label := range truth {
		if guesses[i] == label {
			res.correct++
		}
	}
	for _, series := range rec.SpikeRates {
		res.peakRates = append(res.peakRates, series.Max())
	}
	for _, series := range rec.Membrane {
		res.memAbs = append(res.memAbs, series.AbsTotal())
		res.memEntries = append(res.memEntries, float64(series.Entries()))
	}
	return res, nil
}

func newEncoder(cfg sim.Config, rng *rand.Rand, opts Options, batchIdx int) (encode.Encoder, error) {
	switch cfg.InputEncoding {
	case encode.ModeRate:
		return encode.NewRateEncoder(cfg.DT), nil
	case encode.ModePoisson:
		return encode.NewPoissonEncoder(cfg.RescaleFactor, cfg.PoissonSpikeBudget, rng), nil
	case encode.ModeEvent:
		source, err := opts.EventSource(batchIdx)
		if err != nil {
			return nil, err
		}
		return encode.NewEventEncoder(source), nil
	default:
		return nil, fmt.Errorf("%w: %d", encode.ErrUnknownEncoding, int(cfg.InputEncoding))
	}
}

func aggregate(cfg sim.Config, descs []model.LayerDescription, opts Options,
	probe *netgraph.Network, spiking []int, results []*batchResult,
	startTime, endTime time.Time, clockSource string) Result {

	runID := generateRunID(opts.NetworkName, cfg, startTime)

	run := model.RunRecord{
		VersionedRecord: storage.Stamp(),
		RunID:           runID,
		Network:         opts.NetworkName,
		InputEncoding:   cfg.InputEncoding.String(),
		DecodeMode:      cfg.DecodeMode.String(),
		NumTimesteps:    cfg.NumTimesteps,
		DT:              cfg.DT,
		BatchSize:       opts.BatchSize,
		StartedAtUTC:    startTime.UTC().Format(time.RFC3339),
		FinishedAtUTC:   endTime.UTC().Format(time.RFC3339),
		ClockSource:     clockSource,
	}

	spikeTotals := make([]float64, len(spiking))
	peakRates := make([]float64, len(spiking))
	memAbs := make([]float64, len(spiking))
	memEntries := make([]float64, len(spiking))
	var outputs []*tensor.Dense
	for _, res := range results {
		run.SamplesTotal += res.total
		run.SamplesCorrect += res.correct
		run.TotalSynOps += res.synOps
		run.TotalNeuronOps += res.nrnOps
		run.InputTotal += res.inputTotal
		for i, spikes := range res.spikes {
			spikeTotals[i] += spikes
		}
		for i, peak := range res.peakRates {
			if peak > peakRates[i] {
				peakRates[i] = peak
			}
		}
		for i := range res.memAbs {
			memAbs[i] += res.memAbs[i]
			memEntries[i] += res.memEntries[i]
		}
		outputs = append(outputs, res.output)
	}
	if run.SamplesTotal > 0 {
		run.Accuracy = float64(run.SamplesCorrect) / float64(run.SamplesTotal)
	}

	var summaries []model.MetricSummary
	if opts.RecordSpikeTrains || opts.RecordMembrane {
		units := probe.Units()
		for ord, li := range spiking {
			denom := float64(probe.Neurons(li) * cfg.NumTimesteps * run.SamplesTotal)
			summary := model.MetricSummary{
				VersionedRecord: storage.Stamp(),
				RunID:           runID,
				LayerName:       units[li].Name(),
				LayerIndex:      li,
				TotalSpikes:     spikeTotals[ord],
				PeakRate:        peakRates[ord],
			}
			if denom > 0 {
				summary.MeanRate = spikeTotals[ord] / denom
			}
			if memEntries[ord] > 0 {
				summary.MeanMembrane = memAbs[ord] / memEntries[ord]
			}
			summaries = append(summaries, summary)
		}
	}

	return Result{Run: run, Summaries: summaries, Outputs: outputs}
}

func sliceBatch(x *tensor.Dense, start, end int) *tensor.Dense {
	shape := x.Shape()
	shape[0] = end - start
	out := tensor.NewDense(shape...)
	for b := start; b < end; b++ {
		copy(out.Sample(b-start), x.Sample(b))
	}
	return out
}

// generateRunID derives a stable token from the run parameters and start
// time.
func generateRunID(network string, cfg sim.Config, startTime time.Time) string {
	stamp := fmt.Sprintf("%s|%s|%s|%d|%f|%s",
		network, cfg.InputEncoding, cfg.DecodeMode, cfg.NumTimesteps, cfg.DT,
		startTime.UTC().Format(time.RFC3339Nano))
	h := sha256.Sum256([]byte(stamp))
	return hex.EncodeToString(h[:8])
}
