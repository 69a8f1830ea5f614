package rconn

import (
	"github.com/ciena/rconn/vconn"
)

// maxMonitors is the compile-time bound on the monitor set, matching
// rconn.c's #define MAX_MONITORS 8.
const maxMonitors = 8

// AddMonitor appends v to the monitor set, closing it immediately if
// the set is already at capacity. Mirrors rconn_add_monitor exactly.
func (c *Conn) AddMonitor(v vconn.Vconn) {
	if len(c.monitors) >= maxMonitors {
		c.logger().WithField("monitor", v.Name()).Debug("too many monitor connections, discarding")
		_ = v.Close()
		return
	}
	c.logger().WithField("monitor", v.Name()).Info("new monitor connection")
	c.monitors = append(c.monitors, v)
}

// copyToMonitor clones raw to every monitor in the set: every monitor
// is attempted on every message. A monitor still completing its dial
// (e.g. a tcp: sink whose Connect() hasn't finished) is polled here
// before Send is attempted, since nothing else drives it; rconn.c never
// needs this because its monitors are always already-connected vconns.
// A monitor that reports vconn.ErrAgain, from either Connect or Send, is
// left in place for the next attempt, and a monitor that reports any
// other error is removed by swap-with-last, exactly as rconn.c's
// copy_to_monitor does for the Send case. Order among monitors is not
// preserved.
func (c *Conn) copyToMonitor(raw []byte) {
	for i := 0; i < len(c.monitors); {
		m := c.monitors[i]
		if err := m.Connect(); err != nil {
			if isAgain(err) {
				i++
				continue
			}
			c.closeMonitor(i, err)
			continue
		}
		err := m.Send(raw)
		if err == nil || isAgain(err) {
			i++
			continue
		}
		c.closeMonitor(i, err)
	}
}

// closeMonitor closes and swap-removes the monitor at index i.
func (c *Conn) closeMonitor(i int, err error) {
	m := c.monitors[i]
	c.logger().
		WithField("monitor", m.Name()).
		WithError(err).
		Debug("closing monitor connection")
	_ = m.Close()
	last := len(c.monitors) - 1
	c.monitors[i] = c.monitors[last]
	c.monitors = c.monitors[:last]
}
