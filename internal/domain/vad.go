package domain

import (
	"context"
	"errors"
	"time"

	"github.com/perchlabs/perch/internal/config"
	"github.com/perchlabs/perch/internal/pipeline"
	"github.com/perchlabs/perch/pkg/audio"
)

// ErrStreamEnded is returned by the VAD waits when the audio stream closed
// before the awaited boundary.
var ErrStreamEnded = errors.New("domain: audio stream ended")

// ErrVoiceTimeout is returned by AwaitVoiceStart when no voice was heard
// within the configured window.
var ErrVoiceTimeout = errors.New("domain: no voice detected in time")

// Vad implements [pipeline.VadDomain] with local peak-level silence
// detection. The disabled option treats voice as immediately started and
// stopped only by stream end, so a recording is bounded by the Asr timeout.
type Vad struct {
	cfg config.VadConfig
}

var _ pipeline.VadDomain = (*Vad)(nil)

// NewVad builds the VAD domain for one session.
func NewVad(cfg config.VadConfig) *Vad {
	return &Vad{cfg: cfg}
}

// AwaitVoiceStart consumes chunks until one crosses the threshold. The wait
// is bounded by the configured voice timeout.
func (v *Vad) AwaitVoiceStart(ctx context.Context, stream <-chan audio.Chunk) error {
	if v.cfg.Option == config.OptionDisabled {
		return nil
	}

	tracker := newSilenceTracker(v.cfg.Threshold, v.cfg.SilenceDuration, v.cfg.MinimumRecording)

	var timeout <-chan time.Time
	if v.cfg.VoiceTimeout > 0 {
		timer := time.NewTimer(v.cfg.VoiceTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		select {
		case chunk, ok := <-stream:
			if !ok {
				return ErrStreamEnded
			}
			if tracker.isVoice(chunk) {
				return nil
			}
		case <-timeout:
			return ErrVoiceTimeout
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// AwaitVoiceStopped consumes chunks until sustained silence follows speech,
// forwarding every chunk to observe so the caller accumulates exactly what
// the detector saw.
func (v *Vad) AwaitVoiceStopped(ctx context.Context, stream <-chan audio.Chunk, observe func(audio.Chunk)) error {
	tracker := newSilenceTracker(v.cfg.Threshold, v.cfg.SilenceDuration, v.cfg.MinimumRecording)
	disabled := v.cfg.Option == config.OptionDisabled

	for {
		select {
		case chunk, ok := <-stream:
			if !ok {
				if disabled {
					return nil
				}
				return ErrStreamEnded
			}
			if observe != nil {
				observe(chunk)
			}
			if !disabled && tracker.observe(chunk) {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Dispose implements [pipeline.VadDomain]. The local detector holds no
// resources.
func (v *Vad) Dispose() {}
