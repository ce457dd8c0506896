// Package mock provides a test double for the snd.Player interface.
package mock

import (
	"context"
	"sync"

	"github.com/perchlabs/perch/pkg/provider/snd"
)

// PlayCall records a single invocation of Play.
type PlayCall struct {
	// Wav is a copy of the audio passed to Play.
	Wav []byte
	// Volume is the volume passed to Play.
	Volume float64
}

// Player is a mock implementation of snd.Player.
type Player struct {
	mu sync.Mutex

	// Err, if non-nil, is returned by Play.
	Err error

	// Block, if non-nil, makes Play wait until the channel is closed or ctx
	// is cancelled.
	Block chan struct{}

	// PlayCalls records every call to Play in order.
	PlayCalls []PlayCall

	// Closed reports whether Close has been called.
	Closed bool
}

var _ snd.Player = (*Player)(nil)

func (p *Player) Play(ctx context.Context, wavData []byte, volume float64) error {
	p.mu.Lock()
	cp := make([]byte, len(wavData))
	copy(cp, wavData)
	p.PlayCalls = append(p.PlayCalls, PlayCall{Wav: cp, Volume: volume})
	block := p.Block
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return p.Err
}

func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed = true
	return nil
}

// Calls returns a snapshot of recorded Play calls.
func (p *Player) Calls() []PlayCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PlayCall, len(p.PlayCalls))
	copy(out, p.PlayCalls)
	return out
}
