package main

import (
	"context"
	"fmt"
	"os"

	spikesim "spikesim/pkg/spikesim"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "parse":
		return runParse(ctx, args[1:])
	case "simulate":
		return runSimulate(ctx, args[1:])
	case "baseline":
		return runBaseline(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func runInit(ctx context.Context, args []string) error {
	fs, opts := commonFlags("init")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := spikesim.New(*opts)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Init(ctx); err != nil {
		return err
	}
	fmt.Printf("initialized store=%s\n", opts.StoreKind)
	return nil
}

func runParse(ctx context.Context, args []string) error {
	fs, opts := commonFlags("parse")
	modelPath := fs.String("model", "", "source model export (json)")
	name := fs.String("name", "", "network name (defaults to the export's name)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *modelPath == "" {
		return usageError("parse requires --model")
	}

	client, err := spikesim.New(*opts)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.ParseModel(ctx, spikesim.ParseRequest{ModelPath: *modelPath, Name: *name})
	if err != nil {
		return err
	}
	fmt.Printf("parsed network=%s layers=%d\n", summary.Name, summary.Layers)
	return nil
}

func runSimulate(ctx context.Context, args []string) error {
	fs, opts := commonFlags("simulate")
	configPath := fs.String("config", "", "simulation config file (json)")
	network := fs.String("network", "", "stored network name")
	dataset := fs.String("dataset", "", "dataset file (json)")
	encoding := fs.String("encoding", "rate", "input encoding: rate|poisson|event")
	decode := fs.String("decode", "standard", "decode mode: standard|first_spike_confidence|temporal_pattern")
	dt := fs.Float64("dt", 1, "time resolution")
	timesteps := fs.Int("timesteps", 32, "number of simulation timesteps")
	budget := fs.Int("poisson-budget", -1, "poisson spike budget per sample (-1 = unlimited)")
	rescale := fs.Float64("rescale", 1, "poisson rescale factor")
	topK := fs.Int("top-k", 1, "confidence threshold for first-spike decoding")
	bits := fs.Int("bits", 0, "bit width for temporal-pattern decoding")
	batchSize := fs.Int("batch", 1, "batch size")
	workers := fs.Int("workers", 1, "worker count")
	seed := fs.Int64("seed", 1, "random seed")
	ntpServer := fs.String("ntp", "", "ntp server for run timestamps (empty = local clock)")
	spikeTrains := fs.Bool("spiketrains", false, "record per-layer spike statistics")
	membrane := fs.Bool("membrane", false, "record per-layer membrane traces")
	inputTrace := fs.Bool("input-trace", false, "record the stimulus trace")
	eventPath := fs.String("events", "", "event recording file (event encoding)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	req := spikesim.SimulateRequest{
		Network:            *network,
		DatasetPath:        *dataset,
		InputEncoding:      *encoding,
		DecodeMode:         *decode,
		DT:                 *dt,
		NumTimesteps:       *timesteps,
		PoissonSpikeBudget: *budget,
		RescaleFactor:      *rescale,
		TopK:               *topK,
		ActivationBitWidth: *bits,
		BatchSize:          *batchSize,
		Workers:            *workers,
		Seed:               *seed,
		NTPServer:          *ntpServer,
		RecordSpikeTrains:  *spikeTrains,
		RecordMembrane:     *membrane,
		RecordInput:        *inputTrace,
		EventPath:          *eventPath,
	}
	if *configPath != "" {
		loaded, err := loadSimulateRequestFromConfig(*configPath)
		if err != nil {
			return err
		}
		mergeSimulateRequest(&req, loaded)
	}
	if req.Network == "" || req.DatasetPath == "" {
		return usageError("simulate requires --network and --dataset")
	}

	client, err := spikesim.New(*opts)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Simulate(ctx, req)
	if err != nil {
		return err
	}
	fmt.Printf("run=%s accuracy=%.4f samples=%d syn_ops=%.0f neuron_ops=%.0f artifacts=%s\n",
		summary.RunID, summary.Accuracy, summary.SamplesTotal,
		summary.SynOps, summary.NeuronOps, summary.ArtifactsDir)
	return nil
}

func runBaseline(ctx context.Context, args []string) error {
	fs, opts := commonFlags("baseline")
	network := fs.String("network", "", "stored network name")
	dataset := fs.String("dataset", "", "dataset file (json)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *network == "" || *dataset == "" {
		return usageError("baseline requires --network and --dataset")
	}

	client, err := spikesim.New(*opts)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	accuracy, err := client.Baseline(ctx, spikesim.BaselineRequest{
		Network:     *network,
		DatasetPath: *dataset,
	})
	if err != nil {
		return err
	}
	fmt.Printf("baseline network=%s accuracy=%.4f\n", *network, accuracy)
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs, opts := commonFlags("runs")
	limit := fs.Int("limit", 20, "maximum runs to list")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := spikesim.New(*opts)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	items, err := client.Runs(ctx, *limit)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}
	for _, item := range items {
		fmt.Printf("%s  %-16s %-8s %-22s steps=%-4d samples=%-5d acc=%.4f  %s\n",
			item.RunID, item.Network, item.InputEncoding, item.DecodeMode,
			item.NumTimesteps, item.SamplesTotal, item.Accuracy, item.StartedAtUTC)
	}
	return nil
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: spikesimctl <init|parse|simulate|baseline|runs> [flags]", msg)
}
