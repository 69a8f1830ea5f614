// Package rconn implements a reliable connection supervisor: a state
// machine that maintains a logical session to an OpenFlow peer over a
// vconn transport, reconnecting with exponential backoff, probing for
// silent peers, queuing outbound traffic, mirroring it to monitors, and
// exposing status telemetry. It is a direct Go restatement of Open
// vSwitch's lib/rconn.c.
package rconn

import (
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/ciena/rconn/pollloop"
	"github.com/ciena/rconn/stats"
	"github.com/ciena/rconn/vconn"
)

// Default timing parameters.
const (
	DefaultMaxBackoff             = 8 * time.Second
	MinProbeInterval              = 5 * time.Second
	unreliableDefaultProbeIval    = 60 * time.Second
	admissionGraceWindow          = 30 * time.Second
	questionableRateLimitWindow   = 60 * time.Second
	shortSessionQuestionThreshold = 60 * time.Second
)

// timeMin/timeMax stand in for rconn.c's TIME_MIN/TIME_MAX sentinels
// used on backoff_deadline: timeMin is always in the past (so "now >=
// deadline" is always true, meaning the next failure resets backoff to
// 1 second); timeMax is always in the future (so the next failure
// never resets backoff — rconn.c's "prevent resetting backoff" comment
// on the CONNECTING timeout and the initial open-failure path).
var (
	timeMin = time.Time{}
	timeMax = time.Unix(1<<62, 0)
)

// Conn is a reliable connection supervisor; see run.go, send.go,
// recv.go, status.go for its operations.
type Conn struct {
	id uuid.UUID

	state        State
	stateEntered time.Time

	vc       vconn.Vconn
	name     string
	reliable bool

	txq txQueue

	backoff         time.Duration
	maxBackoff      time.Duration
	backoffDeadline time.Time

	probeInterval time.Duration
	lastReceived  time.Time
	lastConnected time.Time

	probablyAdmitted bool
	lastAdmitted     time.Time

	packetsSent, packetsReceived           uint64
	nAttemptedConns, nSuccessfulConns      uint64
	creationTime                          time.Time
	totalTimeConnected                    time.Duration

	questionableConnectivity bool
	lastQuestioned           time.Time

	seqno uint64

	localIP, remoteIP string
	remotePort        uint16

	monitors []vconn.Vconn

	clock   pollloop.Clock
	metrics *stats.Registry

	xidCounter uint32

	// wakeNow is set whenever the send queue empties or is flushed,
	// so the next RunWait requests an immediate scheduler wake
	// (poll_immediate_wake in rconn.c) instead of waiting on a timer.
	wakeNow bool
}

// New creates a Conn in the VOID state. probeInterval of 0 disables
// inactivity probing; a nonzero value is forced up to MinProbeInterval.
// maxBackoff of 0 resolves to DefaultMaxBackoff. Both clock and metrics
// may be nil, in which case a RealClock and the package-wide
// stats.Global registry are used — mirroring rconn.c's reliance on the
// global coverage table.
func New(probeInterval, maxBackoff time.Duration, clock pollloop.Clock, metrics *stats.Registry) *Conn {
	if clock == nil {
		clock = pollloop.RealClock{}
	}
	if metrics == nil {
		metrics = stats.Global
	}
	now := clock.Now()
	c := &Conn{
		id:              uuid.New(),
		state:           Void,
		stateEntered:    now,
		name:            "void",
		reliable:        false,
		backoff:         0,
		maxBackoff:      normalizeMaxBackoff(maxBackoff),
		backoffDeadline: timeMin,
		lastReceived:    now,
		lastConnected:   now,
		lastAdmitted:    now,
		creationTime:    now,
		lastQuestioned:  now,
		clock:           clock,
		metrics:         metrics,
	}
	c.SetProbeInterval(probeInterval)
	return c
}

func normalizeMaxBackoff(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultMaxBackoff
	}
	return d
}

// SetMaxBackoff clamps the cap on reconnect backoff to at least one
// second, and shortens an in-flight BACKOFF wait if it now exceeds the
// new cap — exactly rconn_set_max_backoff's behavior.
func (c *Conn) SetMaxBackoff(d time.Duration) {
	if d < time.Second {
		d = time.Second
	}
	c.maxBackoff = d
	if c.state == Backoff && c.backoff > d {
		c.backoff = d
		if c.backoffDeadline.After(c.clock.Now().Add(d)) {
			c.backoffDeadline = c.clock.Now().Add(d)
		}
	}
}

// GetMaxBackoff returns the current backoff cap.
func (c *Conn) GetMaxBackoff() time.Duration { return c.maxBackoff }

// SetProbeInterval sets the inactivity-probe interval. 0 disables
// probing; any other value is forced up to MinProbeInterval.
func (c *Conn) SetProbeInterval(d time.Duration) {
	if d == 0 {
		c.probeInterval = 0
		return
	}
	if d < MinProbeInterval {
		d = MinProbeInterval
	}
	c.probeInterval = d
}

// GetProbeInterval returns the current inactivity-probe interval.
func (c *Conn) GetProbeInterval() time.Duration { return c.probeInterval }

func (c *Conn) logger() *log.Entry {
	return log.WithFields(log.Fields{
		"rconn": c.id.String()[:8],
		"name":  c.name,
	})
}

// setVconnName sets rc.name and clears the cached endpoint information,
// matching set_vconn_name: changing the target address invalidates any
// previously cached IP/port.
func (c *Conn) setVconnName(name string) {
	c.name = name
	c.localIP = ""
	c.remoteIP = ""
	c.remotePort = 0
}

// nextXid returns a monotonically increasing transaction id for probes
// this Conn generates.
func (c *Conn) nextXid() uint32 {
	c.xidCounter++
	return c.xidCounter
}
