package rconn

import (
	"github.com/ciena/rconn/stats"
)

// Send enqueues msg for delivery. If c is not in ACTIVE or IDLE,
// ErrNotConnected is returned and the caller retains ownership of msg.
// Otherwise msg is cloned to every monitor, counter (if non-nil) is
// incremented, and msg is pushed to the tail of the send queue. If the
// queue was empty, one immediate try_send is attempted as a best
// effort — a failure there may disconnect c into BACKOFF, which the
// caller need not observe. Mirrors rconn_send.
func (c *Conn) Send(msg []byte, counter *PacketCounter) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.metrics.Inc(stats.CounterQueued)
	c.copyToMonitor(msg)
	counter.inc()
	wasEmpty := c.txq.empty()
	c.txq.pushTail(queueItem{msg: msg, counter: counter})

	if wasEmpty {
		c.trySend()
	}
	return nil
}

// SendWithLimit delegates to Send unless counter.N() has already
// reached limit, in which case msg is discarded and ErrRetryLater is
// returned. Regardless of outcome, msg is always consumed. Mirrors
// rconn_send_with_limit.
func (c *Conn) SendWithLimit(msg []byte, counter *PacketCounter, limit uint64) error {
	if counter.N() >= limit {
		c.metrics.Inc(stats.CounterOverflow)
		return ErrRetryLater
	}
	return c.Send(msg, counter)
}

// trySend attempts to hand the queue head to the transport. On
// success, packets_sent is incremented, the head's counter (if any) is
// decremented, and the head is popped. vconn.ErrAgain leaves the head
// in place. Any other error disconnects c. Mirrors rconn.c's try_send.
func (c *Conn) trySend() error {
	head, ok := c.txq.peekHead()
	if !ok {
		return nil
	}
	err := c.vc.Send(head.msg)
	if err != nil {
		if !isAgain(err) {
			c.reportError(err)
			c.disconnect(err)
		}
		return err
	}
	c.metrics.Inc(stats.CounterSent)
	c.packetsSent++
	head.counter.dec()
	c.txq.popHead()
	return nil
}

// doTxWork drains the queue until it is empty or the transport reports
// ErrAgain, requesting an immediate re-wake if it empties so the owner
// can refill on the next tick. Mirrors rconn.c's do_tx_work.
func (c *Conn) doTxWork() {
	if c.txq.empty() {
		return
	}
	for !c.txq.empty() {
		if err := c.trySend(); err != nil {
			break
		}
	}
	if c.txq.empty() {
		c.wakeNow = true
	}
}

// flushQueue drops every queued message, decrementing each one's
// counter, and requests an immediate re-wake. Mirrors rconn.c's
// flush_queue. Called on every disconnect so that the send queue stays
// empty whenever the connection is VOID or BACKOFF.
func (c *Conn) flushQueue() {
	if c.txq.empty() {
		return
	}
	for {
		item, ok := c.txq.popHead()
		if !ok {
			break
		}
		item.counter.dec()
		c.metrics.Inc(stats.CounterDiscarded)
	}
	c.wakeNow = true
}
