// Package mock provides a test double for the mic.Source interface.
//
// Tests push chunks through Feed and close the stream with EndStream; the
// domain under test consumes them exactly as it would portaudio capture.
package mock

import (
	"context"
	"sync"

	"github.com/perchlabs/perch/pkg/audio"
	"github.com/perchlabs/perch/pkg/provider/mic"
)

// Source is a mock implementation of mic.Source.
type Source struct {
	mu sync.Mutex

	// StartErr, if non-nil, is returned by Start.
	StartErr error

	// StreamFormat is reported by Format. Zero value falls back to
	// audio.DefaultFormat.
	StreamFormat audio.Format

	// StartCount tracks how many times Start was invoked.
	StartCount int

	// Closed reports whether Close has been called.
	Closed bool

	ch     chan audio.Chunk
	chOnce sync.Once
}

var _ mic.Source = (*Source)(nil)

func (s *Source) stream() chan audio.Chunk {
	s.chOnce.Do(func() { s.ch = make(chan audio.Chunk, 64) })
	return s.ch
}

// Feed queues a chunk for the consumer.
func (s *Source) Feed(c audio.Chunk) { s.stream() <- c }

// EndStream closes the chunk stream, signalling end of capture.
func (s *Source) EndStream() { close(s.stream()) }

func (s *Source) Start(ctx context.Context) (<-chan audio.Chunk, error) {
	s.mu.Lock()
	s.StartCount++
	err := s.StartErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.stream(), nil
}

func (s *Source) Format() audio.Format {
	if s.StreamFormat == (audio.Format{}) {
		return audio.DefaultFormat
	}
	return s.StreamFormat
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}
