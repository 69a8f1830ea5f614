// Package api implements the HTTP status and control surface for a
// fleet of named rconn.Conn supervisors: it routes status queries and
// send requests to a per-peer rconn.Conn keyed by connection name.
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/ciena/rconn/rconn"
)

// MappingAction identifies a ConnMapping update.
type MappingAction uint8

const (
	MapActionNone   MappingAction = 0x0
	MapActionAdd    MappingAction = 1 << 0
	MapActionDelete MappingAction = 1 << 1
)

// ConnMapping announces that a named Conn should be added to or removed
// from the set the API serves.
type ConnMapping struct {
	Action MappingAction
	Name   string
	Conn   *rconn.Conn
}

// RequestKind identifies what a ConnRequest asks the run loop to do.
type RequestKind uint8

const (
	RequestSend RequestKind = iota
	RequestReconnect
)

// ConnRequest routes an HTTP-triggered operation on a named Conn
// through the run loop that owns it. Conn has no internal
// synchronization and must only ever be driven from the single
// goroutine calling Run/Recv; rconn has no separate injection channel
// of its own, so this plays that role for API-originated requests.
type ConnRequest struct {
	Kind   RequestKind
	Name   string
	Data   []byte
	Result chan error
}

// Server is the status/control surface for a set of rconn.Conn
// supervisors.
type Server struct {
	MappingListener chan ConnMapping
	Requests        chan ConnRequest
	ListenOn        string

	conns        map[string]*rconn.Conn
	router       *mux.Router
	lock         sync.RWMutex
	requestReady chan struct{}
}

// RequestReady returns the readiness channel a run loop should
// register with its Scheduler so Block wakes promptly once a
// ConnRequest is queued, rather than waiting for the next scheduled
// timer or transport readiness.
func (s *Server) RequestReady() <-chan struct{} { return s.requestReady }

// dispatch queues a ConnRequest for the run loop and blocks until it
// reports back, so no Conn method is ever called from this HTTP
// handler's goroutine.
func (s *Server) dispatch(kind RequestKind, name string, data []byte) error {
	result := make(chan error, 1)
	s.Requests <- ConnRequest{Kind: kind, Name: name, Data: data, Result: result}
	select {
	case s.requestReady <- struct{}{}:
	default:
	}
	return <-result
}

// connStatus is the JSON status payload for a single connection.
type connStatus struct {
	Name                     string `json:"name"`
	State                    string `json:"state"`
	Reliable                 bool   `json:"reliable"`
	Seqno                    uint64 `json:"seqno"`
	Backoff                  string `json:"backoff"`
	PacketsSent              uint64 `json:"packets_sent"`
	PacketsReceived          uint64 `json:"packets_received"`
	AttemptedConnections     uint64 `json:"attempted_connections"`
	SuccessfulConnections    uint64 `json:"successful_connections"`
	TotalTimeConnected       string `json:"total_time_connected"`
	IsAlive                  bool   `json:"is_alive"`
	IsConnected              bool   `json:"is_connected"`
	IsAdmitted               bool   `json:"is_admitted"`
	FailureDuration          string `json:"failure_duration"`
	ConnectivityQuestionable bool   `json:"connectivity_questionable"`
	RemoteIP                 string `json:"remote_ip,omitempty"`
	RemotePort               uint16 `json:"remote_port,omitempty"`
}

func statusOf(name string, c *rconn.Conn) connStatus {
	return connStatus{
		Name:                     name,
		State:                    c.GetState().String(),
		Seqno:                    c.GetConnectionSeqno(),
		Backoff:                  c.GetBackoff().String(),
		PacketsSent:              c.GetPacketsSent(),
		PacketsReceived:          c.GetPacketsReceived(),
		AttemptedConnections:     c.GetAttemptedConnections(),
		SuccessfulConnections:    c.GetSuccessfulConnections(),
		TotalTimeConnected:       c.GetTotalTimeConnected().String(),
		IsAlive:                  c.IsAlive(),
		IsConnected:              c.IsConnected(),
		IsAdmitted:               c.IsAdmitted(),
		FailureDuration:          c.FailureDuration().String(),
		ConnectivityQuestionable: c.IsConnectivityQuestionable(),
		RemoteIP:                 c.GetRemoteIP(),
		RemotePort:               c.GetRemotePort(),
	}
}

// ListConnectionsHandler returns the status of every managed
// connection as a JSON array.
func (s *Server) ListConnectionsHandler(resp http.ResponseWriter, req *http.Request) {
	s.lock.RLock()
	list := make([]connStatus, 0, len(s.conns))
	for name, c := range s.conns {
		list = append(list, statusOf(name, c))
	}
	s.lock.RUnlock()

	data, err := json.Marshal(list)
	if err != nil {
		http.Error(resp, fmt.Sprintf("unable to marshal connection list: %s", err), http.StatusInternalServerError)
		return
	}
	resp.Write(data)
}

// GetConnectionHandler returns a single connection's status.
func (s *Server) GetConnectionHandler(resp http.ResponseWriter, req *http.Request) {
	name := mux.Vars(req)["name"]
	s.lock.RLock()
	c, ok := s.conns[name]
	s.lock.RUnlock()
	if !ok {
		http.Error(resp, fmt.Sprintf("no such connection '%s'", name), http.StatusNotFound)
		return
	}
	data, err := json.Marshal(statusOf(name, c))
	if err != nil {
		http.Error(resp, err.Error(), http.StatusInternalServerError)
		return
	}
	resp.Write(data)
}

// SendHandler queues the request body, expected to be a raw OpenFlow
// message, onto the named connection's run loop. The actual Conn.Send
// call happens on the run loop's own goroutine via dispatch.
func (s *Server) SendHandler(resp http.ResponseWriter, req *http.Request) {
	defer req.Body.Close()
	name := mux.Vars(req)["name"]

	s.lock.RLock()
	_, ok := s.conns[name]
	s.lock.RUnlock()
	if !ok {
		log.WithField("name", name).Warn("unable to find connection for send request")
		http.Error(resp, fmt.Sprintf("no such connection '%s'", name), http.StatusNotFound)
		return
	}

	data, err := io.ReadAll(req.Body)
	if err != nil {
		http.Error(resp, err.Error(), http.StatusInternalServerError)
		return
	}

	if err := s.dispatch(RequestSend, name, data); err != nil {
		log.WithField("name", name).WithError(err).Warn("send rejected")
		http.Error(resp, err.Error(), http.StatusConflict)
		return
	}
}

// ReconnectHandler forces the named connection to drop and reconnect,
// via the run loop that owns it.
func (s *Server) ReconnectHandler(resp http.ResponseWriter, req *http.Request) {
	name := mux.Vars(req)["name"]
	s.lock.RLock()
	_, ok := s.conns[name]
	s.lock.RUnlock()
	if !ok {
		http.Error(resp, fmt.Sprintf("no such connection '%s'", name), http.StatusNotFound)
		return
	}
	_ = s.dispatch(RequestReconnect, name, nil)
}

// mappingUpdates listens for ConnMapping updates and applies them to
// the managed set.
func (s *Server) mappingUpdates() {
	for mapping := range s.MappingListener {
		switch mapping.Action {
		case MapActionAdd:
			log.WithField("name", mapping.Name).Debug("adding connection mapping")
			s.lock.Lock()
			s.conns[mapping.Name] = mapping.Conn
			s.lock.Unlock()
		case MapActionDelete:
			log.WithField("name", mapping.Name).Debug("deleting connection mapping")
			s.lock.Lock()
			delete(s.conns, mapping.Name)
			s.lock.Unlock()
		default:
			log.WithField("action", mapping.Action).Warn("received unknown connection mapping action")
		}
	}
}

// New builds a Server listening (once ListenAndServe is called) on
// listenOn.
func New(listenOn string) *Server {
	s := &Server{
		ListenOn:        listenOn,
		router:          mux.NewRouter(),
		conns:           make(map[string]*rconn.Conn),
		MappingListener: make(chan ConnMapping),
		Requests:        make(chan ConnRequest, 16),
		requestReady:    make(chan struct{}, 1),
	}

	s.router.HandleFunc("/rconn", s.ListConnectionsHandler).Methods("GET")
	s.router.HandleFunc("/rconn/{name}", s.GetConnectionHandler).Methods("GET")
	s.router.HandleFunc("/rconn/{name}/send", s.SendHandler).
		Methods("POST").
		Headers("Content-type", "application/octet-stream")
	s.router.HandleFunc("/rconn/{name}/reconnect", s.ReconnectHandler).Methods("POST")

	return s
}

// ListenAndServe starts the mapping-update loop and serves the status
// API until it fails.
func (s *Server) ListenAndServe() {
	go s.mappingUpdates()

	srv := &http.Server{
		Addr:         s.ListenOn,
		Handler:      s.router,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}
	log.WithField("connect-point", s.ListenOn).Debug("listening for status API requests")
	log.Fatal(srv.ListenAndServe())
}
