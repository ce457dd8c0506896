package wake

import (
	"context"
	"errors"

	"github.com/perchlabs/perch/pkg/audio"
)

// ErrStreamEnded is returned by Detect when the audio stream closes before a
// keyword was spotted.
var ErrStreamEnded = errors.New("wake: audio stream ended")

// EnergyDetector fires once the peak level of consecutive chunks stays above
// a threshold. It is not a real keyword spotter — it exists so a satellite
// can run end to end without a native wake engine installed.
type EnergyDetector struct {
	// Keyword is reported in the Detection. Defaults to "energy".
	Keyword string

	// Threshold is the peak 16-bit sample level that counts as voice.
	// Defaults to 4000.
	Threshold int16

	// ChunksRequired is how many consecutive above-threshold chunks trigger
	// a detection. Defaults to 3.
	ChunksRequired int
}

var _ Detector = (*EnergyDetector)(nil)

func (d *EnergyDetector) keyword() string {
	if d.Keyword == "" {
		return "energy"
	}
	return d.Keyword
}

func (d *EnergyDetector) threshold() int16 {
	if d.Threshold == 0 {
		return 4000
	}
	return d.Threshold
}

func (d *EnergyDetector) required() int {
	if d.ChunksRequired == 0 {
		return 3
	}
	return d.ChunksRequired
}

// Detect waits for sustained above-threshold audio.
func (d *EnergyDetector) Detect(ctx context.Context, stream <-chan audio.Chunk) (Detection, error) {
	var streak int
	for {
		select {
		case <-ctx.Done():
			return Detection{}, ctx.Err()
		case chunk, ok := <-stream:
			if !ok {
				return Detection{}, ErrStreamEnded
			}
			if chunk.PeakSample() >= d.threshold() {
				streak++
				if streak >= d.required() {
					return Detection{Keyword: d.keyword()}, nil
				}
			} else {
				streak = 0
			}
		}
	}
}

// Close is a no-op.
func (d *EnergyDetector) Close() error { return nil }
