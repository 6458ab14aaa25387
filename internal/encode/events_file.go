package encode

import (
	"encoding/json"
	"fmt"
	"os"

	"spikesim/internal/tensor"
)

// Event is one asynchronous sensor event: an address and a polarity at a
// timestamp (microseconds, monotonically non-decreasing in the recording).
type Event struct {
	X         int   `json:"x"`
	Y         int   `json:"y"`
	Channel   int   `json:"channel"`
	Polarity  int   `json:"polarity"`
	Timestamp int64 `json:"timestamp_us"`
}

// EventRecording is an on-disk event dump plus the sensor geometry needed to
// rasterize frames.
type EventRecording struct {
	Channels int     `json:"channels"`
	Height   int     `json:"height"`
	Width    int     `json:"width"`
	Events   []Event `json:"events"`
}

// LoadEventFrames reads a JSON event recording and buckets it into
// numTimesteps frames of shape (1, channels, height, width), each covering an
// equal slice of the recording's time span. Every timestep gets a frame even
// when no events fall into its bucket.
func LoadEventFrames(path string, numTimesteps int) (*SliceEventSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read event recording: %w", err)
	}
	var rec EventRecording
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode event recording: %w", err)
	}
	return FramesFromRecording(rec, numTimesteps)
}

func FramesFromRecording(rec EventRecording, numTimesteps int) (*SliceEventSource, error) {
	if rec.Channels <= 0 || rec.Height <= 0 || rec.Width <= 0 {
		return nil, fmt.Errorf("event recording needs positive geometry, got (%d,%d,%d)",
			rec.Channels, rec.Height, rec.Width)
	}
	if numTimesteps <= 0 {
		return nil, fmt.Errorf("event recording needs positive timestep count, got %d", numTimesteps)
	}

	frames := make([]*tensor.Dense, numTimesteps)
	for i := range frames {
		frames[i] = tensor.NewDense(1, rec.Channels, rec.Height, rec.Width)
	}
	if len(rec.Events) == 0 {
		return NewSliceEventSource(frames), nil
	}

	start := rec.Events[0].Timestamp
	end := rec.Events[len(rec.Events)-1].Timestamp
	span := end - start + 1

	for _, ev := range rec.Events {
		if ev.X < 0 || ev.X >= rec.Width || ev.Y < 0 || ev.Y >= rec.Height ||
			ev.Channel < 0 || ev.Channel >= rec.Channels {
			return nil, fmt.Errorf("event out of bounds: (%d,%d) channel %d", ev.X, ev.Y, ev.Channel)
		}
		bucket := int(int64(numTimesteps) * (ev.Timestamp - start) / span)
		if bucket >= numTimesteps {
			bucket = numTimesteps - 1
		}
		frame := frames[bucket].Data()
		idx := (ev.Channel*rec.Height+ev.Y)*rec.Width + ev.X
		if ev.Polarity < 0 {
			frame[idx] -= 1
		} else {
			frame[idx] += 1
		}
	}
	return NewSliceEventSource(frames), nil
}
