package domain

import (
	"context"
	"sync"

	"github.com/perchlabs/perch/internal/pipeline"
	"github.com/perchlabs/perch/pkg/audio"
	"github.com/perchlabs/perch/pkg/provider/mic"
)

// Mic implements [pipeline.MicDomain] around a capture source. The source
// itself (the device) is process-wide and owned by the daemon; the domain
// only mediates per-session access to its stream.
type Mic struct {
	source mic.Source

	mu     sync.Mutex
	stream <-chan audio.Chunk
}

var _ pipeline.MicDomain = (*Mic)(nil)

// NewMic builds the Mic domain for one session.
func NewMic(source mic.Source) *Mic {
	return &Mic{source: source}
}

// AudioStream starts capture on first call and returns the same stream on
// repeated calls within the session.
func (m *Mic) AudioStream(ctx context.Context) (<-chan audio.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stream != nil {
		return m.stream, nil
	}
	stream, err := m.source.Start(ctx)
	if err != nil {
		return nil, err
	}
	m.stream = stream
	return stream, nil
}

// Format returns the capture format.
func (m *Mic) Format() audio.Format { return m.source.Format() }

// Dispose drops the session's stream reference. The underlying device stays
// open for the next session and for wake detection.
func (m *Mic) Dispose() {
	m.mu.Lock()
	m.stream = nil
	m.mu.Unlock()
}
