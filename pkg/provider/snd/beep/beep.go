// Package beep implements [snd.Player] on the faiface/beep speaker. The
// speaker is initialised once for the first sample rate seen; later WAVs at
// other rates are resampled to match.
package beep

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"

	"github.com/perchlabs/perch/pkg/provider/snd"
)

var _ snd.Player = (*Player)(nil)

// Player plays WAV utterances through the default output device.
type Player struct {
	mu       sync.Mutex
	initRate beep.SampleRate
	closed   bool
}

// New returns an uninitialised Player; the speaker opens lazily on first Play
// so constructing a Player on a headless test machine cannot fail.
func New() *Player { return &Player{} }

// Play decodes and plays the WAV, scaling volume in [0, 1].
func (p *Player) Play(ctx context.Context, wavData []byte, volume float64) error {
	streamer, format, err := wav.Decode(bytes.NewReader(wavData))
	if err != nil {
		return fmt.Errorf("beep: decode wav: %w", err)
	}
	defer streamer.Close()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return fmt.Errorf("beep: player closed")
	}
	if p.initRate == 0 {
		p.initRate = format.SampleRate
		if err := speaker.Init(p.initRate, p.initRate.N(time.Second/10)); err != nil {
			p.initRate = 0
			p.mu.Unlock()
			return fmt.Errorf("beep: init speaker: %w", err)
		}
	}
	rate := p.initRate
	p.mu.Unlock()

	var stream beep.Streamer = streamer
	if format.SampleRate != rate {
		stream = beep.Resample(4, format.SampleRate, rate, streamer)
	}
	if volume < 1 {
		stream = &effects.Gain{Streamer: stream, Gain: volume - 1}
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(stream, beep.Callback(func() { close(done) })))

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Clear()
		return ctx.Err()
	}
}

// Close stops playback and marks the player unusable.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.initRate != 0 {
		speaker.Clear()
	}
	return nil
}
