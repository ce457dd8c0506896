// Package mock provides a test double for the wake.Detector interface.
package mock

import (
	"context"
	"sync"

	"github.com/perchlabs/perch/pkg/audio"
	"github.com/perchlabs/perch/pkg/provider/wake"
)

// Detector is a mock implementation of wake.Detector.
type Detector struct {
	mu sync.Mutex

	// Result is returned by Detect when Err is nil.
	Result wake.Detection

	// Err, if non-nil, is returned by Detect.
	Err error

	// Trigger, if non-nil, makes Detect wait until the channel is closed or
	// ctx is cancelled before returning.
	Trigger chan struct{}

	// DetectCount tracks how many times Detect was invoked.
	DetectCount int

	// Closed reports whether Close has been called.
	Closed bool
}

var _ wake.Detector = (*Detector)(nil)

func (d *Detector) Detect(ctx context.Context, stream <-chan audio.Chunk) (wake.Detection, error) {
	d.mu.Lock()
	d.DetectCount++
	trigger := d.Trigger
	d.mu.Unlock()

	if trigger != nil {
		select {
		case <-trigger:
		case <-ctx.Done():
			return wake.Detection{}, ctx.Err()
		}
	}
	if d.Err != nil {
		return wake.Detection{}, d.Err
	}
	return d.Result, nil
}

func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Closed = true
	return nil
}
