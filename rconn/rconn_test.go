package rconn

import (
	"bytes"
	"errors"
	"testing"
	"time"

	of "github.com/netrack/openflow"

	"github.com/ciena/rconn/pollloop"
	"github.com/ciena/rconn/stats"
	"github.com/ciena/rconn/vconn"
)

// fakeVconn is a fully scripted Vconn test double: each of Connect/Send
// consumes one entry from a queue of canned results, repeating the last
// entry once exhausted.
type fakeVconn struct {
	name string

	connectResults []error
	connectCalls   int

	sendResults []error
	sendCalls   int
	sent        [][]byte

	recvQueue [][]byte
	recvErr   error

	closed bool
}

func (f *fakeVconn) Connect() error {
	if len(f.connectResults) == 0 {
		return nil
	}
	i := f.connectCalls
	if i >= len(f.connectResults) {
		i = len(f.connectResults) - 1
	}
	f.connectCalls++
	return f.connectResults[i]
}

func (f *fakeVconn) Send(msg []byte) error {
	f.sent = append(f.sent, msg)
	i := f.sendCalls
	f.sendCalls++
	if i >= len(f.sendResults) {
		return nil
	}
	return f.sendResults[i]
}

func (f *fakeVconn) Recv() ([]byte, error) {
	if len(f.recvQueue) > 0 {
		msg := f.recvQueue[0]
		f.recvQueue = f.recvQueue[1:]
		return msg, nil
	}
	if f.recvErr != nil {
		return nil, f.recvErr
	}
	return nil, vconn.ErrAgain
}

func (f *fakeVconn) Close() error               { f.closed = true; return nil }
func (f *fakeVconn) WaitSend(*pollloop.Scheduler) {}
func (f *fakeVconn) WaitRecv(*pollloop.Scheduler) {}
func (f *fakeVconn) Name() string               { return f.name }
func (f *fakeVconn) LocalIP() string            { return "10.0.0.1" }
func (f *fakeVconn) RemoteIP() string           { return "10.0.0.2" }
func (f *fakeVconn) RemotePort() uint16         { return 6633 }
func (f *fakeVconn) LocalPort() uint16          { return 40000 }

func newTestConn(clock pollloop.Clock) *Conn {
	return New(0, 0, clock, stats.NewRegistry())
}

func ofMessage(t *testing.T, msgType of.Type, body []byte) []byte {
	t.Helper()
	h := of.Header{Version: 1, Type: msgType, Length: uint16(8 + len(body)), Transaction: 1}
	buf := new(bytes.Buffer)
	if _, err := h.WriteTo(buf); err != nil {
		t.Fatalf("unable to build OpenFlow message: %v", err)
	}
	buf.Write(body)
	return buf.Bytes()
}

func TestAttachUnreliableEntersActive(t *testing.T) {
	clock := pollloop.NewFakeClock(time.Unix(1000, 0))
	c := newTestConn(clock)
	fv := &fakeVconn{name: "tcp:peer:1"}

	c.AttachUnreliable("tcp:peer:1", fv)

	if c.GetState() != Active {
		t.Fatalf("expected ACTIVE, got %s", c.GetState())
	}
	if c.reliable {
		t.Fatal("AttachUnreliable should leave the connection unreliable")
	}
	if c.GetProbeInterval() != unreliableDefaultProbeIval {
		t.Fatalf("expected default unreliable probe interval, got %v", c.GetProbeInterval())
	}
}

func TestBackoffEscalation(t *testing.T) {
	clock := pollloop.NewFakeClock(time.Unix(1000, 0))
	c := newTestConn(clock)
	c.reliable = true
	c.SetMaxBackoff(8 * time.Second)

	want := []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		8 * time.Second,
	}
	for i, w := range want {
		c.disconnect(errors.New("connection reset"))
		if c.GetState() != Backoff {
			t.Fatalf("attempt %d: expected BACKOFF, got %s", i, c.GetState())
		}
		if c.GetBackoff() != w {
			t.Fatalf("attempt %d: expected backoff %v, got %v", i, w, c.GetBackoff())
		}
	}
}

func TestBackoffResetsAfterLongSession(t *testing.T) {
	clock := pollloop.NewFakeClock(time.Unix(1000, 0))
	c := newTestConn(clock)
	c.reliable = true
	c.SetMaxBackoff(8 * time.Second)

	c.disconnect(errors.New("first failure"))
	if c.GetBackoff() != time.Second {
		t.Fatalf("expected initial backoff of 1s, got %v", c.GetBackoff())
	}

	// Advance well past backoffDeadline (now+1s) to simulate a long
	// connected session before the next failure.
	clock.Advance(time.Minute)
	c.disconnect(errors.New("second failure"))
	if c.GetBackoff() != time.Second {
		t.Fatalf("expected backoff to reset to 1s after a long session, got %v", c.GetBackoff())
	}
}

func TestConnectingTimeoutDisconnectsWithoutResettingBackoff(t *testing.T) {
	clock := pollloop.NewFakeClock(time.Unix(1000, 0))
	c := newTestConn(clock)
	c.reliable = true
	c.SetMaxBackoff(8 * time.Second)
	c.backoff = 4 * time.Second

	fv := &fakeVconn{connectResults: []error{vconn.ErrAgain}}
	c.vc = fv
	c.backoffDeadline = clock.Now().Add(c.backoff)
	c.stateTransition(Connecting)

	clock.Advance(5 * time.Second) // past the CONNECTING timeout
	c.Run()

	if c.GetState() != Backoff {
		t.Fatalf("expected BACKOFF after CONNECTING timeout, got %s", c.GetState())
	}
	if c.GetBackoff() != 8*time.Second {
		t.Fatalf("expected backoff to double to 8s (not reset), got %v", c.GetBackoff())
	}
}

func TestActiveProbeThenIdleThenReplyReturnsToActive(t *testing.T) {
	clock := pollloop.NewFakeClock(time.Unix(1000, 0))
	c := newTestConn(clock)
	c.reliable = true
	c.SetProbeInterval(5 * time.Second)

	fv := &fakeVconn{}
	c.vc = fv
	c.stateTransition(Active)
	c.lastConnected = clock.Now()
	c.lastReceived = clock.Now()

	clock.Advance(5 * time.Second)
	c.Run()

	if c.GetState() != Idle {
		t.Fatalf("expected IDLE after silent probe interval, got %s", c.GetState())
	}
	if len(fv.sent) != 1 {
		t.Fatalf("expected exactly one probe sent, got %d", len(fv.sent))
	}

	reply := ofMessage(t, 3, nil) // echo reply
	fv.recvQueue = append(fv.recvQueue, reply)
	msg, ok := c.Recv()
	if !ok {
		t.Fatal("expected Recv to succeed")
	}
	if !bytes.Equal(msg, reply) {
		t.Fatal("Recv returned unexpected message")
	}
	if c.GetState() != Active {
		t.Fatalf("expected ACTIVE after probe reply, got %s", c.GetState())
	}
}

func TestIdleTimeoutDisconnects(t *testing.T) {
	clock := pollloop.NewFakeClock(time.Unix(1000, 0))
	c := newTestConn(clock)
	c.reliable = true
	c.SetProbeInterval(5 * time.Second)

	fv := &fakeVconn{}
	c.vc = fv
	c.stateTransition(Idle)
	c.lastConnected = clock.Now()

	clock.Advance(6 * time.Second)
	c.Run()

	if c.GetState() != Backoff {
		t.Fatalf("expected BACKOFF after unanswered probe, got %s", c.GetState())
	}
}

func TestAdmissionGrantedByAdmittingOpcode(t *testing.T) {
	clock := pollloop.NewFakeClock(time.Unix(1000, 0))
	c := newTestConn(clock)
	c.lastConnected = clock.Now()

	packetIn := ofMessage(t, 10, nil)
	c.updateAdmission(packetIn)

	if !c.probablyAdmitted {
		t.Fatal("expected admission to be granted by a PACKET_IN-class opcode")
	}
}

func TestAdmissionWithheldForNonAdmittingOpcodeUntilGraceWindow(t *testing.T) {
	clock := pollloop.NewFakeClock(time.Unix(1000, 0))
	c := newTestConn(clock)
	c.lastConnected = clock.Now()

	hello := ofMessage(t, 0, nil)
	c.updateAdmission(hello)
	if c.probablyAdmitted {
		t.Fatal("a HELLO should not grant admission before the grace window elapses")
	}

	clock.Advance(admissionGraceWindow)
	c.updateAdmission(hello)
	if !c.probablyAdmitted {
		t.Fatal("expected admission to be granted once the grace window elapses")
	}
}

func TestSendQueuesAndDrainsImmediately(t *testing.T) {
	clock := pollloop.NewFakeClock(time.Unix(1000, 0))
	c := newTestConn(clock)
	c.reliable = true
	fv := &fakeVconn{}
	c.vc = fv
	c.stateTransition(Active)

	counter := NewPacketCounter()
	if err := c.Send([]byte("hello"), counter); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if counter.N() != 0 {
		t.Fatalf("expected counter to drain to 0, got %d", counter.N())
	}
	if c.GetPacketsSent() != 1 {
		t.Fatalf("expected 1 packet sent, got %d", c.GetPacketsSent())
	}
	if len(fv.sent) != 1 || string(fv.sent[0]) != "hello" {
		t.Fatalf("unexpected sent messages: %v", fv.sent)
	}
}

func TestSendNotConnectedReturnsError(t *testing.T) {
	clock := pollloop.NewFakeClock(time.Unix(1000, 0))
	c := newTestConn(clock)

	if err := c.Send([]byte("x"), nil); err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestSendBacklogsOnErrAgainThenDrains(t *testing.T) {
	clock := pollloop.NewFakeClock(time.Unix(1000, 0))
	c := newTestConn(clock)
	c.reliable = true
	fv := &fakeVconn{sendResults: []error{vconn.ErrAgain}}
	c.vc = fv
	c.stateTransition(Active)

	counter := NewPacketCounter()
	if err := c.Send([]byte("first"), counter); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if counter.N() != 1 {
		t.Fatalf("expected first message to stay queued, counter=%d", counter.N())
	}

	if err := c.Send([]byte("second"), counter); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if counter.N() != 2 {
		t.Fatalf("expected both messages queued, counter=%d", counter.N())
	}

	c.doTxWork()
	if counter.N() != 0 {
		t.Fatalf("expected queue to fully drain, counter=%d", counter.N())
	}
	if len(fv.sent) != 3 { // one failed attempt + two successful
		t.Fatalf("expected 3 send attempts, got %d", len(fv.sent))
	}
}

func TestSendWithLimitRejectsAtCap(t *testing.T) {
	clock := pollloop.NewFakeClock(time.Unix(1000, 0))
	c := newTestConn(clock)
	c.reliable = true
	fv := &fakeVconn{sendResults: []error{vconn.ErrAgain}}
	c.vc = fv
	c.stateTransition(Active)

	counter := NewPacketCounter()
	if err := c.SendWithLimit([]byte("a"), counter, 1); err != nil {
		t.Fatalf("first send should succeed, got %v", err)
	}
	if err := c.SendWithLimit([]byte("b"), counter, 1); err != ErrRetryLater {
		t.Fatalf("expected ErrRetryLater once at the limit, got %v", err)
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	clock := pollloop.NewFakeClock(time.Unix(1000, 0))
	c := newTestConn(clock)
	c.reliable = true
	fv := &fakeVconn{}
	c.vc = fv
	c.setVconnName("tcp:127.0.0.1:1")
	c.stateTransition(Active)

	c.Disconnect()
	if c.GetState() != Void {
		t.Fatalf("expected VOID after Disconnect, got %s", c.GetState())
	}
	if !fv.closed {
		t.Fatal("expected the transport to be closed on Disconnect")
	}
	c.Disconnect() // must be a no-op
	if c.GetState() != Void {
		t.Fatalf("expected VOID after second Disconnect, got %s", c.GetState())
	}
}

func TestDestroyClosesTransportAndMonitors(t *testing.T) {
	clock := pollloop.NewFakeClock(time.Unix(1000, 0))
	c := newTestConn(clock)
	c.reliable = true
	fv := &fakeVconn{}
	c.vc = fv
	c.stateTransition(Active)

	mon := &fakeVconn{name: "mon"}
	c.AddMonitor(mon)

	c.Destroy()

	if !fv.closed {
		t.Fatal("expected transport to be closed on Destroy")
	}
	if !mon.closed {
		t.Fatal("expected monitor to be closed on Destroy")
	}
}

func TestAddMonitorEnforcesCapacity(t *testing.T) {
	clock := pollloop.NewFakeClock(time.Unix(1000, 0))
	c := newTestConn(clock)

	for i := 0; i < maxMonitors; i++ {
		c.AddMonitor(&fakeVconn{name: "mon"})
	}
	overflow := &fakeVconn{name: "overflow"}
	c.AddMonitor(overflow)

	if len(c.monitors) != maxMonitors {
		t.Fatalf("expected monitor set capped at %d, got %d", maxMonitors, len(c.monitors))
	}
	if !overflow.closed {
		t.Fatal("expected the overflow monitor to be closed immediately")
	}
}

func TestCopyToMonitorRemovesFailingMonitor(t *testing.T) {
	clock := pollloop.NewFakeClock(time.Unix(1000, 0))
	c := newTestConn(clock)

	good := &fakeVconn{name: "good"}
	bad := &fakeVconn{name: "bad", sendResults: []error{errors.New("broken pipe")}}
	c.AddMonitor(good)
	c.AddMonitor(bad)

	c.copyToMonitor([]byte("hi"))

	if len(c.monitors) != 1 || c.monitors[0] != good {
		t.Fatalf("expected only the good monitor to remain, got %v", c.monitors)
	}
	if !bad.closed {
		t.Fatal("expected the failing monitor to be closed")
	}
}

func TestIsAdmittedReflectsAdmissionState(t *testing.T) {
	clock := pollloop.NewFakeClock(time.Unix(1000, 0))
	c := newTestConn(clock)
	c.reliable = true
	fv := &fakeVconn{}
	c.vc = fv
	c.stateTransition(Active)
	c.lastConnected = clock.Now()

	if c.IsAdmitted() {
		t.Fatal("should not be admitted before any admitting evidence")
	}

	packetIn := ofMessage(t, 10, nil)
	fv.recvQueue = append(fv.recvQueue, packetIn)
	if _, ok := c.Recv(); !ok {
		t.Fatal("expected Recv to succeed")
	}
	if !c.IsAdmitted() {
		t.Fatal("expected admission after receiving an admitting message")
	}
}

func TestPacketCounterDecPanicsAtZero(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected dec() to panic when n is already zero")
		}
	}()
	c := NewPacketCounter()
	c.dec()
}

func TestPacketCounterNilIsSafe(t *testing.T) {
	var c *PacketCounter
	c.Retain()
	c.Release()
	c.inc()
	c.dec()
	if c.N() != 0 || c.RefCount() != 0 {
		t.Fatal("nil PacketCounter accessors should report zero")
	}
}
