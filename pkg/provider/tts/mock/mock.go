// Package mock provides a test double for the tts.Synthesizer interface.
package mock

import (
	"context"
	"sync"

	"github.com/perchlabs/perch/pkg/audio"
	"github.com/perchlabs/perch/pkg/provider/tts"
)

// Synthesizer is a mock implementation of tts.Synthesizer.
type Synthesizer struct {
	mu sync.Mutex

	// Wav is returned by Synthesize when Err is nil.
	Wav []byte

	// Format is returned alongside Wav.
	Format audio.Format

	// Err, if non-nil, is returned by Synthesize.
	Err error

	// SynthesizeTexts records the text of every Synthesize call in order.
	SynthesizeTexts []string

	// Closed reports whether Close has been called.
	Closed bool
}

var _ tts.Synthesizer = (*Synthesizer)(nil)

func (s *Synthesizer) Synthesize(ctx context.Context, text string) ([]byte, audio.Format, error) {
	s.mu.Lock()
	s.SynthesizeTexts = append(s.SynthesizeTexts, text)
	s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, audio.Format{}, err
	}
	if s.Err != nil {
		return nil, audio.Format{}, s.Err
	}
	return s.Wav, s.Format, nil
}

func (s *Synthesizer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}

// Texts returns a snapshot of recorded Synthesize inputs.
func (s *Synthesizer) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.SynthesizeTexts))
	copy(out, s.SynthesizeTexts)
	return out
}
