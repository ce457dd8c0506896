// Package snd defines the Player interface for on-device audio output used
// by the Snd domain's Local option and the play-last-recording feature.
package snd

import "context"

// Player plays one WAV-encoded utterance through the device speaker.
type Player interface {
	// Play blocks until playback finishes or ctx is cancelled. volume is in
	// [0, 1]; implementations scale samples accordingly.
	Play(ctx context.Context, wavData []byte, volume float64) error

	// Close releases the audio output. Safe to call multiple times.
	Close() error
}
