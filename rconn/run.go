package rconn

import (
	"errors"
	"io"
	"time"

	"github.com/ciena/rconn/pollloop"
	"github.com/ciena/rconn/vconn"
)

// Connect resets c and opens a reliable connection to name: failures
// will be retried forever with exponential backoff until Disconnect or
// Destroy is called. Mirrors rconn_connect.
func (c *Conn) Connect(name string) {
	c.Disconnect()
	c.setVconnName(name)
	c.reliable = true
	c.attemptOpen()
}

// AttachUnreliable adopts an already-open vconn directly into ACTIVE,
// without going through BACKOFF/CONNECTING on failure: a failure simply
// drops to VOID. Mirrors rconn_connect_unreliably, including its
// probe_interval/max_backoff defaults.
func (c *Conn) AttachUnreliable(name string, v vconn.Vconn) {
	c.Disconnect()
	c.setVconnName(name)
	c.reliable = false
	c.vc = v
	now := c.clock.Now()
	c.lastConnected = now
	c.SetProbeInterval(unreliableDefaultProbeIval)
	c.maxBackoff = normalizeMaxBackoff(0)
	c.stateTransition(Active)
}

// Reconnect forces an ACTIVE/IDLE connection to drop and re-enter
// BACKOFF (or VOID, for an unreliable connection). No-op otherwise.
// Mirrors rconn_reconnect.
func (c *Conn) Reconnect() {
	if isConnectedState(c.state) {
		c.logger().Info("disconnecting")
		c.disconnect(nil)
	}
}

// Disconnect drops to VOID unconditionally and marks the connection
// unreliable, so it will not attempt to reconnect on its own. Calling
// Disconnect twice in a row is a no-op, matching rconn_disconnect.
func (c *Conn) Disconnect() {
	if c.state == Void {
		return
	}
	if c.vc != nil {
		_ = c.vc.Close()
		c.vc = nil
		c.flushQueue()
	}
	c.setVconnName("void")
	c.reliable = false
	c.backoff = 0
	c.backoffDeadline = timeMin
	c.stateTransition(Void)
}

// Destroy closes the transport and every monitor, flushes the queue,
// and leaves c unusable. Calling Destroy after Disconnect closes no
// additional resources, matching rconn_destroy.
func (c *Conn) Destroy() {
	if c.vc != nil {
		_ = c.vc.Close()
		c.vc = nil
	}
	c.flushQueue()
	for _, m := range c.monitors {
		_ = m.Close()
	}
	c.monitors = nil
}

// Run repeatedly dispatches the per-state handler until a pass through
// it leaves the state unchanged, allowing a single external tick to
// drain a cascade (e.g. BACKOFF→CONNECTING→ACTIVE→IDLE). Mirrors
// rconn_run.
func (c *Conn) Run() {
	for {
		old := c.state
		stateTable[c.state].run(c)
		if c.state == old {
			return
		}
	}
}

// RunWait registers with sched the next time Run should be called:
// a timer at state_entered+timeout(state), plus send-readiness on the
// transport if the queue is non-empty in a connected state. Mirrors
// rconn_run_wait.
func (c *Conn) RunWait(sched *pollloop.Scheduler) {
	if c.wakeNow {
		c.wakeNow = false
		sched.WakeNow()
		return
	}
	timeo := stateTable[c.state].timeout(c)
	if timeo != saturatingMaxUint32 {
		sched.WakeAt(c.stateEntered.Add(time.Duration(timeo) * time.Second))
	}
	if isConnectedState(c.state) && !c.txq.empty() && c.vc != nil {
		c.vc.WaitSend(sched)
	}
}

func (c *Conn) elapsedInState() time.Duration {
	return c.clock.Now().Sub(c.stateEntered)
}

func (c *Conn) timedOut() bool {
	timeo := stateTable[c.state].timeout(c)
	if timeo == saturatingMaxUint32 {
		return false
	}
	deadline := c.stateEntered.Add(time.Duration(timeo) * time.Second)
	return !c.clock.Now().Before(deadline)
}

// stateTransition performs the bookkeeping rconn.c's state_transition
// does on every state change: seqno toggling on the ACTIVE boundary,
// probably_admitted reset on a fresh connected entry, accumulating
// total_time_connected, and stamping state/state_entered.
func (c *Conn) stateTransition(newState State) {
	if (c.state == Active) != (newState == Active) {
		c.seqno++
	}
	if isConnectedState(newState) && !isConnectedState(c.state) {
		c.probablyAdmitted = false
	}
	if isConnectedState(c.state) {
		c.totalTimeConnected += c.elapsedInState()
	}
	c.logger().WithField("state", newState.String()).Debug("entering state")
	c.state = newState
	c.stateEntered = c.clock.Now()
}

// attemptOpen opens the transport and transitions to CONNECTING, or
// disconnects with the TIME_MAX backoff-deadline sentinel on immediate
// failure. Mirrors rconn.c's static reconnect().
func (c *Conn) attemptOpen() {
	c.logger().Info("connecting...")
	c.nAttemptedConns++
	v, err := vconn.Open(c.name)
	if err == nil {
		c.vc = v
		c.backoffDeadline = c.clock.Now().Add(c.backoff)
		c.stateTransition(Connecting)
		return
	}
	c.logger().WithError(err).Warn("connection failed")
	c.backoffDeadline = timeMax // Prevent resetting backoff.
	c.disconnect(err)
}

// disconnect is the internal primitive behind every failure path.
// Reliable connections flush and back off into BACKOFF; unreliable
// connections fall all the way to VOID. Mirrors rconn.c's static
// disconnect().
func (c *Conn) disconnect(err error) {
	if !c.reliable {
		c.Disconnect()
		return
	}

	now := c.clock.Now()
	if c.vc != nil {
		_ = c.vc.Close()
		c.vc = nil
		c.flushQueue()
	}

	if !now.Before(c.backoffDeadline) {
		c.backoff = time.Second
	} else {
		c.backoff = 2 * c.backoff
		if c.backoff < time.Second {
			c.backoff = time.Second
		}
		if c.backoff > c.maxBackoff {
			c.backoff = c.maxBackoff
		}
		c.logger().WithField("backoff", c.backoff).Info("waiting before reconnect")
	}
	c.backoffDeadline = now.Add(c.backoff)
	c.stateTransition(Backoff)

	if now.Sub(c.lastConnected) > shortSessionQuestionThreshold {
		c.questionConnectivity()
	}
}

func (c *Conn) questionConnectivity() {
	now := c.clock.Now()
	if now.Sub(c.lastQuestioned) > questionableRateLimitWindow {
		c.questionableConnectivity = true
		c.lastQuestioned = now
	}
}

// reportError logs the cause of a disconnect. A clean peer-side close
// is informational for a reliable connection and debug-level for an
// unreliable one (it probably came from an accept() and was never
// expected to last), matching rconn.c's report_error exactly.
func (c *Conn) reportError(err error) {
	if err == nil {
		return
	}
	if errors.Is(err, io.EOF) {
		if c.reliable {
			c.logger().Info("connection closed by peer")
		} else {
			c.logger().Debug("connection closed by peer")
		}
		return
	}
	c.logger().WithError(err).Warn("connection dropped")
}
