// Package audiofocus arbitrates the satellite's exclusive audio resources.
// Recording and playback each have at most one holder at a time; a request
// against a held reason fails instead of queueing, so a stale trigger can
// never grab the microphone out from under a running session.
package audiofocus

import (
	"fmt"
	"sync"

	"github.com/perchlabs/perch/internal/pipeline"
)

// Focus is a mutex-guarded ownership table keyed by focus reason.
type Focus struct {
	mu   sync.Mutex
	held map[pipeline.FocusReason]bool
}

var _ pipeline.AudioFocus = (*Focus)(nil)

// New returns an empty focus table.
func New() *Focus {
	return &Focus{held: make(map[pipeline.FocusReason]bool)}
}

// Request claims the resource for reason. It fails when the resource is
// already held.
func (f *Focus) Request(reason pipeline.FocusReason) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[reason] {
		return fmt.Errorf("audiofocus: %s already held", reason)
	}
	f.held[reason] = true
	return nil
}

// Abandon releases the resource. Releasing an unheld reason is a no-op, so
// deferred cleanup on error paths stays unconditional.
func (f *Focus) Abandon(reason pipeline.FocusReason) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.held, reason)
}

// Held reports whether reason currently has a holder.
func (f *Focus) Held(reason pipeline.FocusReason) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.held[reason]
}
