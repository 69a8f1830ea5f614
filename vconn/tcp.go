package vconn

import (
	"bufio"
	"bytes"
	"io"
	"net"
	"strings"
	"time"

	of "github.com/netrack/openflow"
	log "github.com/sirupsen/logrus"

	"github.com/ciena/rconn/pollloop"
)

// pollInterval bounds how long WaitSend will ask the scheduler to sleep
// before re-checking whether a backlogged net.Conn has drained. Unlike
// recv-readiness (which the background reader can signal exactly),
// net.Conn exposes no write-readiness edge, so send-readiness is
// approximated by short re-polling.
const pollInterval = 20 * time.Millisecond

// tcpVconn is the framed-TCP Vconn implementation used to talk to a
// real OpenFlow peer. Send delegates straight to net.Conn.Write. Recv
// is backed by a goroutine that reads OpenFlow-framed messages off the
// wire (header first, then the body it declares) and hands complete
// messages to the owner goroutine over a channel, so that Recv() itself
// can be non-blocking.
type tcpVconn struct {
	name string
	conn net.Conn

	dialErrCh chan error
	connected bool
	fatal     error

	recvCh       chan []byte
	recvErrCh    chan error
	recvNotifyCh chan struct{}

	localIP, remoteIP     string
	localPort, remotePort uint16

	closed bool
}

func openTCP(name string) (*tcpVconn, error) {
	target := strings.TrimPrefix(name, "tcp:")
	v := &tcpVconn{
		name:         name,
		dialErrCh:    make(chan error, 1),
		recvCh:       make(chan []byte, 16),
		recvErrCh:    make(chan error, 1),
		recvNotifyCh: make(chan struct{}, 1),
	}
	go func() {
		d := net.Dialer{Timeout: dialTimeout}
		conn, err := d.Dial("tcp", target)
		if err != nil {
			v.dialErrCh <- err
			return
		}
		v.conn = conn
		v.dialErrCh <- nil
	}()
	return v, nil
}

// Connect polls the background dial goroutine without blocking.
func (v *tcpVconn) Connect() error {
	if v.connected {
		return nil
	}
	select {
	case err := <-v.dialErrCh:
		if err != nil {
			return err
		}
		v.connected = true
		v.captureEndpoints()
		go v.recvLoop()
		return nil
	default:
		return ErrAgain
	}
}

func (v *tcpVconn) captureEndpoints() {
	if la, ok := v.conn.LocalAddr().(*net.TCPAddr); ok {
		v.localIP = la.IP.String()
		v.localPort = uint16(la.Port)
	}
	if ra, ok := v.conn.RemoteAddr().(*net.TCPAddr); ok {
		v.remoteIP = ra.IP.String()
		v.remotePort = uint16(ra.Port)
	}
}

// Send writes msg without blocking longer than a token deadline; a
// write that would otherwise stall reports ErrAgain so the rconn queue
// discipline can retry on a later tick.
func (v *tcpVconn) Send(msg []byte) error {
	if !v.connected {
		return ErrAgain
	}
	if err := v.conn.SetWriteDeadline(time.Now().Add(time.Millisecond)); err != nil {
		return err
	}
	_, err := v.conn.Write(msg)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return ErrAgain
		}
		return err
	}
	return nil
}

// Recv returns the next complete OpenFlow message pushed by recvLoop,
// or ErrAgain if none is queued yet.
func (v *tcpVconn) Recv() ([]byte, error) {
	select {
	case msg := <-v.recvCh:
		return msg, nil
	case err := <-v.recvErrCh:
		return nil, err
	default:
		return nil, ErrAgain
	}
}

// recvLoop reads OpenFlow-framed messages off the stream and hands
// them to Recv via recvCh, notifying recvNotifyCh so WaitRecv can wake
// a blocked scheduler.
func (v *tcpVconn) recvLoop() {
	r := bufio.NewReaderSize(v.conn, 2048)
	for {
		msg, err := readMessage(r)
		if err != nil {
			select {
			case v.recvErrCh <- mapCloseErr(err):
			default:
			}
			v.notify()
			return
		}
		select {
		case v.recvCh <- msg:
		default:
			log.WithField("vconn", v.name).Warn("recv buffer full, dropping message")
		}
		v.notify()
	}
}

func (v *tcpVconn) notify() {
	select {
	case v.recvNotifyCh <- struct{}{}:
	default:
	}
}

func mapCloseErr(err error) error {
	if err == io.EOF {
		return io.EOF
	}
	return err
}

// readMessage reads one OpenFlow header plus its body from r and
// returns the raw wire bytes, re-serializing the parsed header rather
// than keeping the original bytes around.
func readMessage(r io.Reader) ([]byte, error) {
	var h of.Header
	hCount, err := h.ReadFrom(r)
	if err != nil {
		return nil, err
	}
	buf := new(bytes.Buffer)
	if _, err := h.WriteTo(buf); err != nil {
		return nil, err
	}
	remaining := int64(h.Length) - hCount
	if remaining > 0 {
		if _, err := io.CopyN(buf, r, remaining); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func (v *tcpVconn) Close() error {
	if v.closed {
		return nil
	}
	v.closed = true
	if v.conn != nil {
		return v.conn.Close()
	}
	return nil
}

func (v *tcpVconn) WaitSend(sched *pollloop.Scheduler) {
	if !v.connected {
		return
	}
	sched.WakeAt(time.Now().Add(pollInterval))
}

func (v *tcpVconn) WaitRecv(sched *pollloop.Scheduler) {
	if !v.connected {
		return
	}
	sched.WaitReady(v.recvNotifyCh)
}

func (v *tcpVconn) Name() string       { return v.name }
func (v *tcpVconn) LocalIP() string    { return v.localIP }
func (v *tcpVconn) RemoteIP() string   { return v.remoteIP }
func (v *tcpVconn) RemotePort() uint16 { return v.remotePort }
func (v *tcpVconn) LocalPort() uint16  { return v.localPort }
