package logstream

import (
	"sync"
)

// ring keeps the last N routed lines for post-mortem dumps.
type ring struct {
	mu    sync.Mutex
	lines []string
	head  int  // next write position
	full  bool // has wrapped around
}

func newRing(capacity int) *ring {
	if capacity <= 0 {
		capacity = 256
	}
	return &ring{lines: make([]string, capacity)}
}

func (r *ring) add(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines[r.head] = line
	r.head = (r.head + 1) % len(r.lines)
	if r.head == 0 {
		r.full = true
	}
}

// snapshot returns the stored lines oldest first.
func (r *ring) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		out := make([]string, r.head)
		copy(out, r.lines[:r.head])
		return out
	}
	out := make([]string, len(r.lines))
	copy(out, r.lines[r.head:])
	copy(out[len(r.lines)-r.head:], r.lines[:r.head])
	return out
}
