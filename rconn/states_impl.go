package rconn

import "time"

// This file holds the ten per-state functions the table in state.go
// dispatches to — the direct translation of rconn.c's
// timeout_STATE/run_STATE pairs, one pair per state.

func timeoutVoid(c *Conn) uint32 { return saturatingMaxUint32 }

func runVoid(c *Conn) {}

func timeoutBackoff(c *Conn) uint32 {
	return durationSeconds(c.backoff)
}

func runBackoff(c *Conn) {
	if c.timedOut() {
		c.attemptOpen()
	}
}

func timeoutConnecting(c *Conn) uint32 {
	s := durationSeconds(c.backoff)
	if s < 1 {
		s = 1
	}
	return s
}

func runConnecting(c *Conn) {
	err := c.vc.Connect()
	switch {
	case err == nil:
		c.logger().Info("connected")
		c.nSuccessfulConns++
		c.captureEndpoints()
		c.stateTransition(Active)
		c.lastConnected = c.stateEntered
	case isAgain(err):
		if c.timedOut() {
			c.logger().Info("connection timed out")
			c.backoffDeadline = timeMax // Prevent resetting backoff.
			c.disconnect(nil)
		}
	default:
		c.logger().WithError(err).Info("connection failed")
		c.disconnect(err)
	}
}

func timeoutActive(c *Conn) uint32 {
	if c.probeInterval == 0 {
		return saturatingMaxUint32
	}
	base := c.lastReceived
	if c.stateEntered.After(base) {
		base = c.stateEntered
	}
	// timeout is relative to state_entered; rconn.c computes
	// base + probe_interval - state_entered.
	deadline := base.Add(c.probeInterval)
	return durationSeconds(deadline.Sub(c.stateEntered))
}

func runActive(c *Conn) {
	if c.timedOut() {
		base := c.lastReceived
		if c.stateEntered.After(base) {
			base = c.stateEntered
		}
		c.logger().
			WithField("idle_seconds", durationSeconds(c.clock.Now().Sub(base))).
			Debug("idle, sending inactivity probe")

		// Ordering matters: stateTransition(Idle) happens before Send,
		// because Send can itself call disconnect() and transition to
		// BACKOFF; if that happened we must not then land back in IDLE
		// with no transport.
		c.stateTransition(Idle)
		probe := makeEchoRequest(c.nextXid())
		_ = c.Send(probe, nil)
		return
	}
	c.doTxWork()
}

func timeoutIdle(c *Conn) uint32 {
	return durationSeconds(c.probeInterval)
}

func runIdle(c *Conn) {
	if c.timedOut() {
		c.questionConnectivity()
		c.logger().
			WithField("elapsed", c.elapsedInState()).
			Error("no response to inactivity probe, disconnecting")
		c.disconnect(nil)
	} else {
		c.doTxWork()
	}
}

// durationSeconds saturates a duration down to whole seconds, clamping
// negative durations to zero and durations beyond uint32 range to
// saturatingMaxUint32, matching the sat_* helpers rconn.c applies to
// every timeout computation.
func durationSeconds(d time.Duration) uint32 {
	if d <= 0 {
		return 0
	}
	secs := d / time.Second
	if secs > time.Duration(saturatingMaxUint32) {
		return saturatingMaxUint32
	}
	return uint32(secs)
}

func (c *Conn) captureEndpoints() {
	c.localIP = c.vc.LocalIP()
	c.remoteIP = c.vc.RemoteIP()
	c.remotePort = c.vc.RemotePort()
}
