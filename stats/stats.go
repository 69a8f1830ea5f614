// Package stats implements a tiny coverage-counter registry, the Go
// analogue of Open vSwitch's COVERAGE_INC macros: a process-wide set of
// named counters that observability tooling can scrape without the
// rconn package having to know anything about where the numbers end up.
package stats

import (
	"sync"
	"sync/atomic"
)

// Registry is a threadsafe set of named monotonic counters. The map
// itself is guarded by mu since concurrent first-use creates would
// otherwise race; each counter's value is then updated with atomic
// ops so readers never need to hold mu just to observe one counter.
type Registry struct {
	mu       sync.Mutex
	counters map[string]*uint64
}

// NewRegistry returns an empty counter registry.
func NewRegistry() *Registry {
	return &Registry{counters: make(map[string]*uint64)}
}

// Inc increments the named counter by one, creating it on first use.
func (r *Registry) Inc(name string) {
	r.Add(name, 1)
}

// Add increments the named counter by delta, creating it on first use.
func (r *Registry) Add(name string, delta uint64) {
	if r == nil {
		return
	}
	r.mu.Lock()
	c, ok := r.counters[name]
	if !ok {
		var v uint64
		c = &v
		r.counters[name] = c
	}
	r.mu.Unlock()
	atomic.AddUint64(c, delta)
}

// Snapshot returns a point-in-time copy of every counter's value.
func (r *Registry) Snapshot() map[string]uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]uint64, len(r.counters))
	for name, c := range r.counters {
		out[name] = atomic.LoadUint64(c)
	}
	return out
}

// Global is the process-wide registry used when a Conn is not handed an
// explicit Registry, mirroring rconn.c's reliance on the global
// coverage table maintained by coverage.c.
var Global = NewRegistry()

const (
	// CounterQueued counts messages accepted by Send/SendWithLimit.
	CounterQueued = "rconn_queued"
	// CounterSent counts messages the transport actually accepted.
	CounterSent = "rconn_sent"
	// CounterDiscarded counts messages dropped by a queue flush.
	CounterDiscarded = "rconn_discarded"
	// CounterOverflow counts SendWithLimit rejections.
	CounterOverflow = "rconn_overflow"
)
