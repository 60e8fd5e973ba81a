package events

import (
	"strings"
	"sync"
)

var levelRank = map[string]int{
	"debug": 0,
	"info":  1,
	"warn":  2,
	"error": 3,
}

// AtLeast reports whether level is at or above min. Unknown levels always
// pass so a typo never hides an event.
func AtLeast(level, min string) bool {
	l, ok := levelRank[level]
	if !ok {
		return true
	}
	return l >= levelRank[min]
}

// ValidLevel reports whether level is one of debug, info, warn or error.
func ValidLevel(level string) bool {
	_, ok := levelRank[level]
	return ok
}

// Filter selects events. Zero fields match everything.
type Filter struct {
	// Prefix matches the event name, e.g. "session." or "notify.sent".
	Prefix    string
	MinLevel  string
	SessionID string
	// Limit keeps only the newest matches.
	Limit int
}

func (f Filter) Match(e Event) bool {
	if f.Prefix != "" && !strings.HasPrefix(e.Name, f.Prefix) {
		return false
	}
	if f.MinLevel != "" && !AtLeast(e.Level, f.MinLevel) {
		return false
	}
	if f.SessionID != "" {
		id, _ := e.Fields["session_id"].(string)
		if id != f.SessionID {
			return false
		}
	}
	return true
}

// RingBuffer keeps the most recent events, oldest overwritten first.
type RingBuffer struct {
	mu    sync.RWMutex
	slots []Event
	next  int
	count int
}

func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{slots: make([]Event, size)}
}

func (rb *RingBuffer) Add(e Event) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.slots[rb.next] = e
	rb.next = (rb.next + 1) % len(rb.slots)
	if rb.count < len(rb.slots) {
		rb.count++
	}
}

// Select returns the matching events, oldest first.
func (rb *RingBuffer) Select(f Filter) []Event {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	out := []Event{}
	start := (rb.next - rb.count + len(rb.slots)) % len(rb.slots)
	for i := 0; i < rb.count; i++ {
		if e := rb.slots[(start+i)%len(rb.slots)]; f.Match(e) {
			out = append(out, e)
		}
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out
}

func (rb *RingBuffer) Snapshot() []Event {
	return rb.Select(Filter{})
}

func (rb *RingBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count
}

// Clear drops every buffered event.
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.slots = make([]Event, len(rb.slots))
	rb.next = 0
	rb.count = 0
}
