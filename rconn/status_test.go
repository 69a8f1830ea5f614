package rconn

import (
	"testing"
	"time"

	"github.com/ciena/rconn/pollloop"
)

func TestStatusAccessorsOnFreshConn(t *testing.T) {
	clock := pollloop.NewFakeClock(time.Unix(1000, 0))
	c := newTestConn(clock)

	if c.IsAlive() {
		t.Fatal("a fresh connection should not be alive")
	}
	if c.IsConnected() {
		t.Fatal("a fresh connection should not be connected")
	}
	if c.GetState() != Void {
		t.Fatalf("expected VOID, got %s", c.GetState())
	}
	if c.GetLocalPort() != 0 {
		t.Fatal("expected local port 0 with no transport")
	}
}

func TestIsAliveOnceConnecting(t *testing.T) {
	clock := pollloop.NewFakeClock(time.Unix(1000, 0))
	c := newTestConn(clock)
	c.reliable = true
	c.vc = &fakeVconn{}
	c.stateTransition(Connecting)

	if !c.IsAlive() {
		t.Fatal("a CONNECTING connection should report alive")
	}
	if c.IsConnected() {
		t.Fatal("CONNECTING should not count as connected")
	}
}

func TestGetTotalTimeConnectedAccumulates(t *testing.T) {
	clock := pollloop.NewFakeClock(time.Unix(1000, 0))
	c := newTestConn(clock)
	c.reliable = true
	c.vc = &fakeVconn{}
	c.stateTransition(Active)

	clock.Advance(10 * time.Second)
	if got := c.GetTotalTimeConnected(); got != 10*time.Second {
		t.Fatalf("expected 10s of connected time, got %v", got)
	}

	c.disconnect(nil)
	if got := c.GetTotalTimeConnected(); got != 10*time.Second {
		t.Fatalf("expected total to freeze at 10s once disconnected, got %v", got)
	}
}

func TestFailureDurationZeroWhenAdmitted(t *testing.T) {
	clock := pollloop.NewFakeClock(time.Unix(1000, 0))
	c := newTestConn(clock)
	c.reliable = true
	c.vc = &fakeVconn{}
	c.stateTransition(Active)
	c.lastConnected = clock.Now()

	packetIn := ofMessage(t, 10, nil)
	c.vc.(*fakeVconn).recvQueue = append(c.vc.(*fakeVconn).recvQueue, packetIn)
	if _, ok := c.Recv(); !ok {
		t.Fatal("expected Recv to succeed")
	}

	if got := c.FailureDuration(); got != 0 {
		t.Fatalf("expected zero failure duration once admitted, got %v", got)
	}
}

func TestIsConnectivityQuestionableClearsOnRead(t *testing.T) {
	clock := pollloop.NewFakeClock(time.Unix(1000, 0))
	c := newTestConn(clock)
	c.questionableConnectivity = true

	if !c.IsConnectivityQuestionable() {
		t.Fatal("expected true on first read")
	}
	if c.IsConnectivityQuestionable() {
		t.Fatal("expected the flag to clear after being read once")
	}
}
