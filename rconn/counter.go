package rconn

import "sync/atomic"

// PacketCounter is a reference-counted in-flight-message count a caller
// can share with one or more Conns. It is the direct translation of
// rconn.c's struct rconn_packet_counter, with one deliberate deviation:
// the two fields are manipulated with sync/atomic rather than left
// bare, because the counter may legitimately be retained and released
// from a goroutine other than the one driving Run/Send.
//
// Reclamation rule: the counter is only actually useful for GC purposes
// in Go (there's no manual free), so Release and Dec are no-ops beyond
// bookkeeping; the struct becomes unreachable once both the caller and
// every queued message holding it have dropped their reference, and the
// garbage collector reclaims it. n and refCnt are kept for
// observability and to preserve the assertion in Dec.
type PacketCounter struct {
	n      uint64
	refCnt uint64
}

// NewPacketCounter creates a counter with refCnt=1, n=0, ready for the
// caller to pass into Send/SendWithLimit.
func NewPacketCounter() *PacketCounter {
	return &PacketCounter{refCnt: 1}
}

// Retain increments the counter's reference count.
func (c *PacketCounter) Retain() {
	if c == nil {
		return
	}
	atomic.AddUint64(&c.refCnt, 1)
}

// Release decrements the counter's reference count. The caller must not
// touch the counter again after calling Release unless it separately
// retained it.
func (c *PacketCounter) Release() {
	if c == nil {
		return
	}
	atomic.AddUint64(&c.refCnt, ^uint64(0))
}

// inc increments the in-flight count when a message referencing this
// counter is enqueued.
func (c *PacketCounter) inc() {
	if c == nil {
		return
	}
	atomic.AddUint64(&c.n, 1)
}

// dec decrements the in-flight count when a queued message is sent or
// discarded. Calling dec with n already at zero is a caller bug,
// reported by panicking, matching the assert(c->n > 0) in
// rconn_packet_counter_dec.
func (c *PacketCounter) dec() {
	if c == nil {
		return
	}
	for {
		old := atomic.LoadUint64(&c.n)
		if old == 0 {
			panic("rconn: PacketCounter.dec called with n == 0")
		}
		if atomic.CompareAndSwapUint64(&c.n, old, old-1) {
			return
		}
	}
}

// N reports the current number of in-flight messages referencing this
// counter.
func (c *PacketCounter) N() uint64 {
	if c == nil {
		return 0
	}
	return atomic.LoadUint64(&c.n)
}

// RefCount reports the current reference count.
func (c *PacketCounter) RefCount() uint64 {
	if c == nil {
		return 0
	}
	return atomic.LoadUint64(&c.refCnt)
}
