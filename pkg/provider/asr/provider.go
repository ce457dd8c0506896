// Package asr defines the Transcriber interface for on-device speech-to-text
// backends used by the Asr domain's Local option.
//
// The Asr domain owns all session plumbing (voice gating, timeouts, WAV
// capture); a Transcriber only turns finished PCM into text. Remote backends
// (HTTP, MQTT) do not go through this interface — they are reached via
// connections.
package asr

import (
	"context"

	"github.com/perchlabs/perch/pkg/audio"
)

// Transcriber converts one utterance of PCM audio into text.
//
// Implementations must be safe for concurrent use; the pipeline runs one
// session at a time but tests may not.
type Transcriber interface {
	// Transcribe blocks until the audio has been recognised or ctx is
	// cancelled. Returns the recognised text, which may be empty when the
	// audio contained no speech.
	Transcribe(ctx context.Context, pcm []byte, format audio.Format) (string, error)

	// Close releases model resources. Safe to call multiple times.
	Close() error
}
