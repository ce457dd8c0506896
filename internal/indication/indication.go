// Package indication tracks the satellite's user-visible state (idle,
// listening, thinking, ...) and fans state changes out to subscribers such as
// the web server's event stream.
package indication

import (
	"sync"

	"github.com/perchlabs/perch/internal/pipeline"
)

// State is one user-visible pipeline phase.
type State string

const (
	StateIdle      State = "idle"
	StateWakeup    State = "wakeup"
	StateListening State = "listening"
	StateThinking  State = "thinking"
	StateSpeaking  State = "speaking"
)

// Hub holds the current state and broadcasts transitions. The pipeline
// callbacks never block: a subscriber that is not draining its channel
// misses intermediate states and only observes later ones.
type Hub struct {
	mu    sync.Mutex
	state State
	subs  map[chan State]struct{}
}

var _ pipeline.Indicator = (*Hub)(nil)

// NewHub returns a hub in the idle state.
func NewHub() *Hub {
	return &Hub{state: StateIdle, subs: make(map[chan State]struct{})}
}

// Current returns the present state.
func (h *Hub) Current() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Subscribe registers a listener. The returned cancel func must be called to
// release the subscription. The current state is delivered immediately.
func (h *Hub) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 8)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	ch <- h.state
	h.mu.Unlock()
	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

func (h *Hub) set(s State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == s {
		return
	}
	h.state = s
	for ch := range h.subs {
		select {
		case ch <- s:
		default:
		}
	}
}

func (h *Hub) OnIdle()      { h.set(StateIdle) }
func (h *Hub) OnWakeup()    { h.set(StateWakeup) }
func (h *Hub) OnListening() { h.set(StateListening) }
func (h *Hub) OnThinking()  { h.set(StateThinking) }
func (h *Hub) OnSpeaking()  { h.set(StateSpeaking) }
