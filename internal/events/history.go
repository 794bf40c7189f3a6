package events

import "sync"

// DefaultHistorySize is the default number of events kept for replay.
const DefaultHistorySize = 500

// History maintains a bounded collection of recent events.
// It removes the oldest entries when the limit is exceeded.
type History struct {
	mu      sync.RWMutex
	entries []Event
	max     int
}

// NewHistory creates a history holding at most max events.
func NewHistory(max int) *History {
	if max <= 0 {
		max = DefaultHistorySize
	}
	return &History{
		entries: make([]Event, 0, max),
		max:     max,
	}
}

// Add appends an event, dropping the oldest tenth when full.
func (h *History) Add(event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.entries) >= h.max {
		removeCount := h.max / 10
		if removeCount < 1 {
			removeCount = 1
		}
		h.entries = append(h.entries[:0], h.entries[removeCount:]...)
	}

	h.entries = append(h.entries, event)
}

// All returns the recorded events, oldest first.
func (h *History) All() []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make([]Event, len(h.entries))
	copy(result, h.entries)
	return result
}

// Len returns the number of recorded events.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}
