// Package mic defines the Source interface for audio capture backends used
// by the Mic domain.
package mic

import (
	"context"

	"github.com/perchlabs/perch/pkg/audio"
)

// Source produces a live stream of captured audio chunks.
//
// A Source carries at most one live stream at a time; the returned channel
// closes when the context is cancelled or the device fails. A closed channel
// is the only end-of-stream signal consumers get, so implementations must
// not leave it open after capture stops.
type Source interface {
	// Start begins capture and returns the chunk stream.
	Start(ctx context.Context) (<-chan audio.Chunk, error)

	// Format reports the PCM layout of produced chunks.
	Format() audio.Format

	// Close releases the capture device. Safe to call multiple times.
	Close() error
}
