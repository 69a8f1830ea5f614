package vconn

import (
	"bytes"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/ciena/rconn/pollloop"
)

// ErrRecvUnsupported is returned by httpVconn.Recv: an HTTP monitor
// sink is write-only.
var ErrRecvUnsupported = errors.New("vconn: http monitor does not support recv")

// httpVconn is a fire-and-forget HTTP POST sink. It is only ever legal
// to use as a monitor handle (rconn.AddMonitor): it can absorb cloned
// traffic but can never become the primary connection, since its
// Connect() is a no-op that always succeeds, it cannot Recv(), and it
// never reports EAGAIN-style backpressure.
type httpVconn struct {
	target url.URL
	client *http.Client
	closed bool
}

// OpenHTTP builds a monitor sink that POSTs every Send payload to u as
// application/octet-stream.
func OpenHTTP(u url.URL) Vconn {
	return &httpVconn{
		target: u,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (h *httpVconn) Connect() error { return nil }

func (h *httpVconn) Send(msg []byte) error {
	if h.closed {
		return errors.New("vconn: http monitor closed")
	}
	resp, err := h.client.Post(h.target.String(), "application/octet-stream", bytes.NewReader(msg))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return errors.New("vconn: http monitor returned " + resp.Status)
	}
	return nil
}

func (h *httpVconn) Recv() ([]byte, error) { return nil, ErrRecvUnsupported }

func (h *httpVconn) Close() error {
	h.closed = true
	return nil
}

func (h *httpVconn) WaitSend(sched *pollloop.Scheduler) {}
func (h *httpVconn) WaitRecv(sched *pollloop.Scheduler) {}

func (h *httpVconn) Name() string       { return h.target.String() }
func (h *httpVconn) LocalIP() string    { return "" }
func (h *httpVconn) RemoteIP() string   { return h.target.Hostname() }
func (h *httpVconn) RemotePort() uint16 { return 0 }
func (h *httpVconn) LocalPort() uint16  { return 0 }
