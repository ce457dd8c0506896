// Package portaudio implements [mic.Source] on the default PortAudio input
// device. One Source owns the PortAudio initialisation for its lifetime.
package portaudio

import (
	"context"
	"fmt"
	"sync"
	"time"

	pa "github.com/gordonklaus/portaudio"

	"github.com/perchlabs/perch/pkg/audio"
	"github.com/perchlabs/perch/pkg/provider/mic"
)

// frameSize is samples per chunk: 20 ms at 16 kHz.
const frameSize = 320

var _ mic.Source = (*Source)(nil)

// Source captures mono 16-bit PCM from the default input device.
type Source struct {
	format audio.Format

	mu       sync.Mutex
	pumpDone chan struct{}
	closed   bool
}

// Option is a functional option for configuring a Source.
type Option func(*Source)

// WithSampleRate overrides the default 16 kHz capture rate.
func WithSampleRate(hz int) Option {
	return func(s *Source) { s.format.SampleRate = hz }
}

// New initialises PortAudio and returns a ready Source.
func New(opts ...Option) (*Source, error) {
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}
	s := &Source{format: audio.DefaultFormat}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Format reports the capture format.
func (s *Source) Format() audio.Format { return s.format }

// Start opens the default input stream and pumps chunks until ctx ends.
func (s *Source) Start(ctx context.Context) (<-chan audio.Chunk, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("portaudio: source closed")
	}
	// A previous stream whose context was just cancelled may still be
	// winding down; wait for it so the device is free to reopen.
	prev := s.pumpDone
	s.mu.Unlock()
	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("portaudio: source closed")
	}
	if s.pumpDone != nil {
		select {
		case <-s.pumpDone:
		default:
			return nil, fmt.Errorf("portaudio: capture already started")
		}
	}

	buf := make([]int16, frameSize)
	stream, err := pa.OpenDefaultStream(s.format.Channels, 0, float64(s.format.SampleRate), len(buf), buf)
	if err != nil {
		return nil, fmt.Errorf("portaudio: open stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("portaudio: start stream: %w", err)
	}
	done := make(chan struct{})
	s.pumpDone = done

	out := make(chan audio.Chunk)
	go func() {
		defer close(out)
		defer func() {
			stream.Stop()
			stream.Close()
			close(done)
		}()

		start := time.Now()
		for {
			if ctx.Err() != nil {
				return
			}
			if err := stream.Read(); err != nil {
				return
			}
			data := make([]byte, len(buf)*2)
			for i, sample := range buf {
				data[2*i] = byte(uint16(sample))
				data[2*i+1] = byte(uint16(sample) >> 8)
			}
			chunk := audio.Chunk{Data: data, Format: s.format, Timestamp: time.Since(start)}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close terminates PortAudio. Safe to call multiple times.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return pa.Terminate()
}
