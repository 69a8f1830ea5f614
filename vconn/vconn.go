// Package vconn defines the transport contract rconn relies on and
// supplies two concrete implementations: a framed-TCP vconn for talking
// to a real OpenFlow peer, and a fire-and-forget HTTP vconn usable only
// as a monitor sink. open/connect/send/recv are all non-blocking and
// report ErrAgain rather than blocking the caller, because the rconn
// state machine above it is cooperative and single-threaded.
package vconn

import (
	"errors"
	"time"

	"github.com/ciena/rconn/pollloop"
)

// ErrAgain is returned by Connect, Send and Recv when the operation
// would otherwise block. It is never surfaced to rconn's own callers;
// the state machine absorbs it.
var ErrAgain = errors.New("vconn: would block")

// Vconn is the transport handle rconn drives. Implementations must be
// safe to use from a single goroutine only (the rconn owner goroutine);
// no internal synchronization is required or provided.
type Vconn interface {
	// Connect advances a non-blocking connection attempt. It returns
	// nil once the transport is ready, ErrAgain while still pending,
	// or a fatal error.
	Connect() error

	// Send attempts to hand msg to the transport without blocking. It
	// returns ErrAgain if the transport is currently backlogged.
	Send(msg []byte) error

	// Recv attempts to receive one complete message without blocking.
	// It returns ErrAgain if none is available yet.
	Recv() ([]byte, error)

	// Close releases the transport. Idempotent.
	Close() error

	// WaitSend registers send-readiness with sched so that a future
	// Scheduler.Block wakes once Send is likely to succeed.
	WaitSend(sched *pollloop.Scheduler)

	// WaitRecv registers recv-readiness with sched so that a future
	// Scheduler.Block wakes once Recv is likely to return a message.
	WaitRecv(sched *pollloop.Scheduler)

	// Name returns the address or URL this handle targets.
	Name() string

	// LocalIP, RemoteIP, RemotePort, LocalPort report cached endpoint
	// information. They return the zero value if not (yet) known.
	LocalIP() string
	RemoteIP() string
	RemotePort() uint16
	LocalPort() uint16
}

// Open dials name (a "scheme:host:port" style address, defaulting to
// tcp) and returns a Vconn whose Connect() must still be polled to
// completion, mirroring vconn_open()+vconn_connect() in rconn.c.
func Open(name string) (Vconn, error) {
	return openTCP(name)
}

// dialTimeout bounds how long the background dial goroutine may spend
// establishing the underlying TCP connection before the vconn gives up
// and reports a fatal error on the next Connect() poll.
const dialTimeout = 30 * time.Second
