// rconnd runs one or more reliable connection supervisors against
// configured OpenFlow peers: an App struct populated by envconfig, a
// status API goroutine, and a main loop driving rconn.Conn supervisors.
package main

import (
	"flag"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"

	"github.com/ciena/rconn/api"
	"github.com/ciena/rconn/pollloop"
	"github.com/ciena/rconn/rconn"
	"github.com/ciena/rconn/vconn"
)

const (
	schemeTCP  = "tcp"
	schemeHTTP = "http"
)

// App holds the daemon's configuration and runtime state.
type App struct {
	ShowHelp      bool          `envconfig:"HELP" default:"false" desc:"show this message"`
	Peers         []string      `envconfig:"PEERS" required:"true" desc:"list of OpenFlow peer addresses to reliably connect to, e.g. tcp:10.0.0.1:6633"`
	Monitors      []string      `envconfig:"MONITORS" desc:"list of monitor sinks to mirror traffic to, tcp:host:port or http://host:port/path"`
	ApiOn         string        `envconfig:"API_ON" default:":8002" desc:"HOST:PORT on which to serve the status API"`
	ProbeInterval time.Duration `envconfig:"PROBE_INTERVAL" default:"5s" desc:"inactivity probe interval, 0 disables probing"`
	MaxBackoff    time.Duration `envconfig:"MAX_BACKOFF" default:"8s" desc:"maximum reconnect backoff"`
	LogLevel      string        `envconfig:"LOG_LEVEL" default:"info" desc:"logging level"`

	api *api.Server
}

// buildMonitors parses a list of "tcp:host:port" or "http://host/path"
// endpoint specs into Vconn monitor handles.
func buildMonitors(specs []string) []vconn.Vconn {
	var monitors []vconn.Vconn
	for _, spec := range specs {
		if spec == "" {
			continue
		}
		u, err := url.Parse(spec)
		if err != nil {
			log.WithField("monitor", spec).WithError(err).Error("unable to parse monitor spec")
			continue
		}
		switch strings.ToLower(u.Scheme) {
		case schemeHTTP:
			monitors = append(monitors, vconn.OpenHTTP(*u))
		default:
			v, err := vconn.Open(spec)
			if err != nil {
				log.WithField("monitor", spec).WithError(err).Error("unable to open monitor connection")
				continue
			}
			monitors = append(monitors, v)
		}
	}
	return monitors
}

// drainRequests applies every currently queued API request (send or
// reconnect) on the run loop's own goroutine, the only goroutine
// allowed to call into a Conn, so an HTTP handler never races Run/Recv.
func drainRequests(conns map[string]*rconn.Conn, requests <-chan api.ConnRequest) {
	for {
		select {
		case req := <-requests:
			c, ok := conns[req.Name]
			if !ok {
				req.Result <- rconn.ErrNotConnected
				continue
			}
			switch req.Kind {
			case api.RequestSend:
				req.Result <- c.Send(req.Data, nil)
			case api.RequestReconnect:
				c.Reconnect()
				req.Result <- nil
			default:
				req.Result <- nil
			}
		default:
			return
		}
	}
}

// run drives every peer's Conn through the poll loop until the process
// exits.
func run(app *App, conns map[string]*rconn.Conn) {
	sched := pollloop.New()
	clock := pollloop.RealClock{}
	for {
		drainRequests(conns, app.api.Requests)
		for name, c := range conns {
			c.Run()
			for {
				msg, ok := c.Recv()
				if !ok {
					break
				}
				log.WithField("name", name).WithField("bytes", len(msg)).Debug("received message")
			}
		}
		for _, c := range conns {
			c.RunWait(sched)
			c.RecvWait(sched)
		}
		sched.WaitReady(app.api.RequestReady())
		sched.Block(clock)
	}
}

func main() {
	var app App

	var flags flag.FlagSet
	if err := flags.Parse(os.Args[1:]); err != nil {
		envconfig.Usage("", &app)
		return
	}

	if err := envconfig.Process("", &app); err != nil {
		log.WithError(err).Fatal("unable to parse application configuration")
	}

	logLevel, err := log.ParseLevel(app.LogLevel)
	if err != nil {
		log.WithField("log-level", app.LogLevel).WithError(err).Warn("unable to parse log level, defaulting to info")
		logLevel = log.InfoLevel
	}
	log.SetLevel(logLevel)

	if app.ShowHelp {
		envconfig.Usage("", &app)
		return
	}

	app.api = api.New(app.ApiOn)
	go app.api.ListenAndServe()

	monitors := buildMonitors(app.Monitors)

	conns := make(map[string]*rconn.Conn, len(app.Peers))
	for _, peer := range app.Peers {
		c := rconn.New(app.ProbeInterval, app.MaxBackoff, nil, nil)
		for _, m := range monitors {
			c.AddMonitor(m)
		}
		c.Connect(peer)
		conns[peer] = c
		app.api.MappingListener <- api.ConnMapping{Action: api.MapActionAdd, Name: peer, Conn: c}
	}

	run(&app, conns)
}
