package logging

import (
	"sync"
	"time"
)

// LogEntry is a single structured log record kept for the API's log
// history endpoint.
type LogEntry struct {
	Timestamp  time.Time      `json:"timestamp"`
	Level      string         `json:"level"`
	Module     string         `json:"module"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// RingBuffer keeps the most recent log entries up to a fixed capacity.
// Safe for concurrent use.
type RingBuffer struct {
	mu      sync.RWMutex
	cap     int
	start   int // index of the oldest entry
	entries []LogEntry
}

// NewRingBuffer creates a buffer that retains at most size entries.
func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{cap: size, entries: make([]LogEntry, 0, size)}
}

// Write appends an entry, evicting the oldest one once at capacity.
func (rb *RingBuffer) Write(entry LogEntry) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if len(rb.entries) < rb.cap {
		rb.entries = append(rb.entries, entry)
		return
	}
	rb.entries[rb.start] = entry
	rb.start = (rb.start + 1) % rb.cap
}

// ReadAll returns the retained entries oldest first.
func (rb *RingBuffer) ReadAll() []LogEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	n := len(rb.entries)
	if n == 0 {
		return nil
	}
	out := make([]LogEntry, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, rb.entries[(rb.start+i)%n])
	}
	return out
}

// Count reports how many entries are currently retained.
func (rb *RingBuffer) Count() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return len(rb.entries)
}
