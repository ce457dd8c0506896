// Package history records stage outcomes per session: what each domain was
// given and what it produced. The in-memory log backs the web server's
// history view; the optional Postgres store persists across restarts.
package history

import (
	"sync"
	"time"

	"github.com/perchlabs/perch/internal/pipeline"
)

// Entry is one appended stage outcome.
type Entry struct {
	SessionID string
	Input     pipeline.StageResult
	Result    pipeline.StageResult
	At        time.Time
}

// Log is a bounded in-memory append-only event log. Appends from concurrent
// sessions interleave in insertion order; nothing is deduplicated.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	limit   int
}

var _ pipeline.DomainHistory = (*Log)(nil)

// NewLog creates a log that retains at most limit entries, discarding the
// oldest. A limit <= 0 means unbounded.
func NewLog(limit int) *Log {
	return &Log{limit: limit}
}

// AddToHistory implements [pipeline.DomainHistory].
func (l *Log) AddToHistory(sessionID string, input, result pipeline.StageResult) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, Entry{
		SessionID: sessionID,
		Input:     input,
		Result:    result,
		At:        time.Now(),
	})
	if l.limit > 0 && len(l.entries) > l.limit {
		overflow := len(l.entries) - l.limit
		l.entries = append(l.entries[:0], l.entries[overflow:]...)
	}
}

// Snapshot returns a copy of the current entries, oldest first.
func (l *Log) Snapshot() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Session returns the entries belonging to one session, oldest first.
func (l *Log) Session(sessionID string) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Entry
	for _, e := range l.entries {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out
}

// Fanout forwards every append to all underlying histories.
type Fanout []pipeline.DomainHistory

var _ pipeline.DomainHistory = Fanout(nil)

// AddToHistory implements [pipeline.DomainHistory].
func (f Fanout) AddToHistory(sessionID string, input, result pipeline.StageResult) {
	for _, h := range f {
		h.AddToHistory(sessionID, input, result)
	}
}
