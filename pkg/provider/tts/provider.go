// Package tts defines the Synthesizer interface for on-device text-to-speech
// backends used by the Tts domain's Local option.
package tts

import (
	"context"

	"github.com/perchlabs/perch/pkg/audio"
)

// Synthesizer turns text into one WAV-encoded utterance.
type Synthesizer interface {
	// Synthesize blocks until synthesis completes or ctx is cancelled and
	// returns the audio as WAV bytes plus the PCM format inside the container.
	Synthesize(ctx context.Context, text string) ([]byte, audio.Format, error)

	// Close releases engine resources. Safe to call multiple times.
	Close() error
}
