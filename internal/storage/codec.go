package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"spikesim/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var (
	ErrVersionMismatch = errors.New("record version mismatch")

	// ErrReloadUnsupported surfaces when a serialized network lacks the
	// metadata needed to rebuild its layer graph. No partial load happens.
	ErrReloadUnsupported = errors.New("reloading network not supported: missing reconstruction metadata")
)

func EncodeNetwork(n model.NetworkDescription) ([]byte, error) {
	return json.Marshal(n)
}

func DecodeNetwork(data []byte) (model.NetworkDescription, error) {
	var network model.NetworkDescription
	if err := json.Unmarshal(data, &network); err != nil {
		return model.NetworkDescription{}, err
	}
	if err := checkVersion(network.VersionedRecord); err != nil {
		return model.NetworkDescription{}, err
	}
	if err := checkReconstructable(network); err != nil {
		return model.NetworkDescription{}, err
	}
	return network, nil
}

// checkReconstructable verifies every parameterized layer carries its
// weights; a record without them cannot rebuild the graph.
func checkReconstructable(n model.NetworkDescription) error {
	for i, desc := range n.Layers {
		switch desc.Kind {
		case "dense", "conv2d":
			if len(desc.Weights) == 0 {
				return fmt.Errorf("%w: layer %d (%s) has no weights", ErrReloadUnsupported, i, desc.Name)
			}
		}
	}
	return nil
}

func EncodeRun(r model.RunRecord) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeRun(data []byte) (model.RunRecord, error) {
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.RunRecord{}, err
	}
	return run, nil
}

func EncodeMetricSummaries(summaries []model.MetricSummary) ([]byte, error) {
	return json.Marshal(summaries)
}

func DecodeMetricSummaries(data []byte) ([]model.MetricSummary, error) {
	var summaries []model.MetricSummary
	if err := json.Unmarshal(data, &summaries); err != nil {
		return nil, err
	}
	for _, summary := range summaries {
		if err := checkVersion(summary.VersionedRecord); err != nil {
			return nil, err
		}
	}
	return summaries, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}

// Stamp fills in the current schema and codec versions.
func Stamp() model.VersionedRecord {
	return model.VersionedRecord{
		SchemaVersion: CurrentSchemaVersion,
		CodecVersion:  CurrentCodecVersion,
	}
}
