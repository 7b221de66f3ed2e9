package dedup

import "sync"

// Tracker keeps track of message IDs already surfaced as new so each one
// is reported at most once. State lives in memory only; the server's
// \Seen flag is what survives restarts.
type Tracker struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{ids: make(map[string]struct{})}
}

// MarkSeen records id and reports whether it was new.
func (t *Tracker) MarkSeen(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.ids[id]; exists {
		return false
	}
	t.ids[id] = struct{}{}
	return true
}

// Seen reports whether id has been recorded.
func (t *Tracker) Seen(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.ids[id]
	return ok
}

// Reset forgets every tracked ID.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.ids)
}

// Count returns the number of tracked IDs.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ids)
}
