package domain

import (
	"time"

	"github.com/perchlabs/perch/pkg/audio"
)

// silenceTracker decides when a recording has ended. A chunk whose peak
// sample exceeds the threshold counts as voice and resets the silence
// window; silence is declared once the window has stayed below the threshold
// for silenceDuration, but never before minimumRecording of audio has been
// observed. Time is measured in audio time (chunk durations), not wall
// clock, so the decision is independent of delivery jitter.
type silenceTracker struct {
	threshold        int16
	silenceDuration  time.Duration
	minimumRecording time.Duration

	recorded time.Duration
	silence  time.Duration
}

func newSilenceTracker(threshold int16, silenceDuration, minimumRecording time.Duration) *silenceTracker {
	return &silenceTracker{
		threshold:        threshold,
		silenceDuration:  silenceDuration,
		minimumRecording: minimumRecording,
	}
}

// isVoice reports whether the chunk's level is above the threshold.
func (t *silenceTracker) isVoice(c audio.Chunk) bool {
	return c.PeakSample() > t.threshold
}

// observe feeds one chunk and reports whether sustained silence has been
// reached.
func (t *silenceTracker) observe(c audio.Chunk) bool {
	d := c.Duration()
	t.recorded += d
	if t.isVoice(c) {
		t.silence = 0
	} else {
		t.silence += d
	}
	return t.recorded >= t.minimumRecording && t.silence >= t.silenceDuration
}
