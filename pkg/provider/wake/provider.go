// Package wake defines the Detector interface for keyword spotting backends
// used by the Wake domain's Local option.
//
// Real keyword engines (Porcupine and friends) ship as native third-party
// components and are wrapped behind this interface by their own adapter
// packages; this package additionally provides a dependency-free energy
// detector useful for development and tests.
package wake

import (
	"context"

	"github.com/perchlabs/perch/pkg/audio"
)

// Detection identifies which keyword fired.
type Detection struct {
	// Keyword is the name of the detected wake word.
	Keyword string
}

// Detector scans an audio stream for a wake word.
type Detector interface {
	// Detect consumes chunks until a keyword is spotted, the stream closes,
	// or ctx is cancelled. A closed stream returns ErrStreamEnded.
	Detect(ctx context.Context, stream <-chan audio.Chunk) (Detection, error)

	// Close releases detector resources. Safe to call multiple times.
	Close() error
}
