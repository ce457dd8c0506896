// Package espeak implements [tts.Synthesizer] by shelling out to the
// espeak-ng binary. Running the binary instead of linking libespeak-ng keeps
// the build free of a second C dependency; the binary writes a standard WAV
// to stdout which is passed through unmodified.
package espeak

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/perchlabs/perch/pkg/audio"
	"github.com/perchlabs/perch/pkg/provider/tts"
)

const defaultBinary = "espeak-ng"

var _ tts.Synthesizer = (*Synthesizer)(nil)

// Synthesizer invokes espeak-ng per utterance. It holds no state between
// calls and is safe for concurrent use.
type Synthesizer struct {
	binary string
	voice  string
}

// Option is a functional option for configuring a Synthesizer.
type Option func(*Synthesizer)

// WithBinary overrides the espeak-ng executable path.
func WithBinary(path string) Option {
	return func(s *Synthesizer) { s.binary = path }
}

// WithVoice sets the espeak voice/language (e.g., "en", "de").
func WithVoice(voice string) Option {
	return func(s *Synthesizer) { s.voice = voice }
}

// New creates a Synthesizer. It verifies the binary is resolvable so a
// misconfigured satellite fails at startup rather than mid-session.
func New(opts ...Option) (*Synthesizer, error) {
	s := &Synthesizer{binary: defaultBinary}
	for _, o := range opts {
		o(s)
	}
	if _, err := exec.LookPath(s.binary); err != nil {
		return nil, fmt.Errorf("espeak: binary %q not found: %w", s.binary, err)
	}
	return s, nil
}

// Synthesize runs espeak-ng with WAV output on stdout.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) ([]byte, audio.Format, error) {
	if text == "" {
		return nil, audio.Format{}, errors.New("espeak: empty text")
	}

	args := []string{"--stdout"}
	if s.voice != "" {
		args = append(args, "-v", s.voice)
	}
	args = append(args, text)

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, s.binary, args...)
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return nil, audio.Format{}, fmt.Errorf("espeak: run %q: %w", s.binary, err)
	}

	data := out.Bytes()
	_, format, err := audio.DecodeWav(data)
	if err != nil {
		return nil, audio.Format{}, fmt.Errorf("espeak: invalid wav output: %w", err)
	}
	return data, format, nil
}

// Close is a no-op; each call spawns its own process.
func (s *Synthesizer) Close() error { return nil }
