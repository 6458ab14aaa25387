// Package stats writes run artifacts: per-run JSON records, metric summaries
// and CSV series for offline inspection.
package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"spikesim/internal/model"
	"spikesim/internal/tensor"
)

const runIndexFile = "run_index.json"

type RunArtifacts struct {
	Run       model.RunRecord       `json:"run"`
	Summaries []model.MetricSummary `json:"summaries,omitempty"`
}

type RunIndexEntry struct {
	RunID         string  `json:"run_id"`
	Network       string  `json:"network"`
	InputEncoding string  `json:"input_encoding"`
	DecodeMode    string  `json:"decode_mode"`
	NumTimesteps  int     `json:"num_timesteps"`
	SamplesTotal  int     `json:"samples_total"`
	Accuracy      float64 `json:"accuracy"`
	StartedAtUTC  string  `json:"started_at_utc"`
}

// WriteRunArtifacts writes baseDir/<runID>/{run.json,metric_summaries.json}
// and returns the run directory.
func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Run.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Run.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, "run.json"), artifacts.Run); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "metric_summaries.json"), artifacts.Summaries); err != nil {
		return "", err
	}
	return runDir, nil
}

// WriteOutputSeries dumps a cumulative output tensor (batch, classes,
// timesteps) as CSV, one row per (sample, class).
func WriteOutputSeries(runDir string, output *tensor.Dense) error {
	file, err := os.Create(filepath.Join(runDir, "output_series.csv"))
	if err != nil {
		return err
	}
	defer file.Close()

	shape := output.Shape()
	numSamples, classes, steps := shape[0], shape[1], shape[2]
	data := output.Data()

	writer := csv.NewWriter(file)
	header := []string{"sample", "class"}
	for t := 0; t < steps; t++ {
		header = append(header, "t"+strconv.Itoa(t))
	}
	if err := writer.Write(header); err != nil {
		return err
	}
	for b := 0; b < numSamples; b++ {
		for l := 0; l < classes; l++ {
			row := []string{strconv.Itoa(b), strconv.Itoa(l)}
			base := (b*classes + l) * steps
			for t := 0; t < steps; t++ {
				row = append(row, strconv.FormatFloat(data[base+t], 'f', -1, 64))
			}
			if err := writer.Write(row); err != nil {
				return err
			}
		}
	}
	writer.Flush()
	return writer.Error()
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	path := filepath.Join(baseDir, runIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].StartedAtUTC > entries[j].StartedAtUTC
	})
	return entries, nil
}

func ReadRunArtifacts(baseDir, runID string) (RunArtifacts, bool, error) {
	runPath := filepath.Join(baseDir, runID, "run.json")
	data, err := os.ReadFile(runPath)
	if err != nil {
		if os.IsNotExist(err) {
			return RunArtifacts{}, false, nil
		}
		return RunArtifacts{}, false, err
	}

	var artifacts RunArtifacts
	if err := json.Unmarshal(data, &artifacts.Run); err != nil {
		return RunArtifacts{}, false, err
	}

	summaryPath := filepath.Join(baseDir, runID, "metric_summaries.json")
	if summaryData, err := os.ReadFile(summaryPath); err == nil {
		if err := json.Unmarshal(summaryData, &artifacts.Summaries); err != nil {
			return RunArtifacts{}, false, err
		}
	} else if !os.IsNotExist(err) {
		return RunArtifacts{}, false, err
	}
	return artifacts, true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}
