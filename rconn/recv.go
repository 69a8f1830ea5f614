package rconn

import (
	"github.com/ciena/rconn/pollloop"
)

// Recv attempts to receive one message. It returns (nil, false) if c is
// not in ACTIVE or IDLE, or if the transport has nothing ready. On a
// fatal transport error, Recv disconnects c and returns (nil, false).
// On success, the message is cloned to every monitor, the admission
// heuristic is updated, last_received/packets_received advance, an
// IDLE probe reply brings c back to ACTIVE, and ownership of the
// message passes to the caller. Mirrors rconn_recv.
func (c *Conn) Recv() ([]byte, bool) {
	if !isConnectedState(c.state) {
		return nil, false
	}

	raw, err := c.vc.Recv()
	if err != nil {
		if !isAgain(err) {
			c.reportError(err)
			c.disconnect(err)
		}
		return nil, false
	}

	c.copyToMonitor(raw)
	c.updateAdmission(raw)
	c.debugLogPacketIn(raw)

	now := c.clock.Now()
	c.lastReceived = now
	c.packetsReceived++
	if c.state == Idle {
		c.stateTransition(Active)
	}
	return raw, true
}

// RecvWait registers recv-readiness with sched if a transport is
// present. Mirrors rconn_recv_wait.
func (c *Conn) RecvWait(sched *pollloop.Scheduler) {
	if c.vc != nil {
		c.vc.WaitRecv(sched)
	}
}

// updateAdmission applies the admission heuristic: a connection is
// "probably admitted" once it already was, once it has received a
// message whose opcode is admission-evidencing, or once 30 seconds have
// elapsed since last_connected (the peer has tolerated us long enough
// that we assume we were admitted). last_admitted is refreshed to now
// on every message that satisfies any of those conditions, not only the
// first, so FailureDuration measures time since the most recent
// admitted traffic rather than time since first admission.
func (c *Conn) updateAdmission(raw []byte) {
	now := c.clock.Now()
	if c.probablyAdmitted || isAdmittingMessage(raw) || now.Sub(c.lastConnected) >= admissionGraceWindow {
		c.probablyAdmitted = true
		c.lastAdmitted = now
	}
}
