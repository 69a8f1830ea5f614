package main

import (
	"bufio"
	"bytes"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/kelseyhightower/envconfig"
	of "github.com/netrack/openflow"
	"github.com/netrack/openflow/ofp"
	log "github.com/sirupsen/logrus"
)

// App is the application configuration and runtime information.
type App struct {
	ShowHelp   bool   `envconfig:"HELP" default:"false" desc:"show this message"`
	RconnAPI   string `envconfig:"RCONN_API" default:"http://127.0.0.1:8002" desc:"base URL (http://HOST:PORT) of the rconn status API"`
	Name       string `envconfig:"NAME" required:"true" desc:"name of the connection on which to send"`
	Port       string `envconfig:"PORT" desc:"output port for a PACKET_OUT; leave unset to send PacketFile as a raw OpenFlow message"`
	PacketFile string `envconfig:"PACKET_FILE" default:"-" desc:"file from which to read the packet/message body to send, or '-' for stdin"`
}

func main() {
	var app App

	var flags flag.FlagSet
	err := flags.Parse(os.Args[1:])
	if err != nil {
		if err = envconfig.Usage("", &(app)); err != nil {
			log.WithError(err).Fatal("Unable to display usage information")
		}
		return
	}

	err = envconfig.Process("", &app)
	if err != nil {
		log.WithError(err).Fatal("Unable to process configuration")
	}
	if app.ShowHelp {
		if err = envconfig.Usage("", &(app)); err != nil {
			log.WithError(err).Fatal("Unable to display usage information")
		}
		return
	}

	data := readBody(&app)
	message := buildMessage(&app, data)

	url := fmt.Sprintf("%s/rconn/%s/send", app.RconnAPI, app.Name)
	resp, err := http.Post(url, "application/octet-stream", message)
	if err != nil {
		log.
			WithFields(log.Fields{
				"rconn": app.RconnAPI,
			}).
			WithError(err).
			Fatal("Unable to connect to rconn API end point")
	} else if int(resp.StatusCode/100) != 2 {
		log.
			WithFields(log.Fields{
				"rconn":         app.RconnAPI,
				"response-code": resp.StatusCode,
				"response":      resp.Status,
			}).
			Fatal("Non success code returned from rconn API")
	}
}

// readBody reads app.PacketFile, expected to be a space separated bunch
// of hex byte values.
func readBody(app *App) []byte {
	var body bytes.Buffer
	var scanner *bufio.Scanner
	var err error
	if app.PacketFile == "-" {
		scanner = bufio.NewScanner(os.Stdin)
	} else {
		reader, ferr := os.OpenFile(app.PacketFile, os.O_RDONLY, 0)
		err = ferr
		if err == nil {
			scanner = bufio.NewScanner(reader)
		}
	}
	if err != nil {
		log.
			WithFields(log.Fields{
				"file": app.PacketFile,
			}).
			WithError(err).
			Fatal("Unable to read message body file")
	}

	scanner.Split(bufio.ScanWords)
	var val uint64
	for scanner.Scan() {
		val, err = strconv.ParseUint(scanner.Text(), 16, 8)
		if err != nil {
			log.
				WithFields(log.Fields{
					"byte": scanner.Text(),
				}).
				WithError(err).
				Fatal("Unable to parse value to byte")
		}
		body.WriteByte(uint8(val))
	}
	if err := scanner.Err(); err != nil {
		log.WithError(err).Fatal("Unable to read input")
	}
	return body.Bytes()
}

// buildMessage wraps data in a PACKET_OUT if app.Port is set, matching
// the conventional way an operator re-injects a captured packet, or
// else treats data as an already-framed OpenFlow message body.
func buildMessage(app *App, data []byte) *bytes.Buffer {
	message := &bytes.Buffer{}

	if app.Port == "" {
		message.Write(data)
		return message
	}

	portNo := parsePort(app.Port)
	pktOut := ofp.PacketOut{
		Buffer:  ofp.NoBuffer,
		InPort:  ofp.PortAny,
		Actions: ofp.Actions{&ofp.ActionOutput{portNo, ofp.ContentLenNoBuffer}},
	}
	packet := &bytes.Buffer{}
	if _, err := pktOut.WriteTo(packet); err != nil {
		log.WithError(err).Fatal("Unable to write packet out to buffer")
	}
	if _, err := packet.Write(data); err != nil {
		log.WithError(err).Fatal("Unable to write packet out data to buffer")
	}

	req := of.NewRequest(of.TypePacketOut, packet)
	if _, err := req.WriteTo(message); err != nil {
		log.WithError(err).Fatal("Unable to serialize packet out")
	}
	return message
}

func parsePort(port string) ofp.PortNo {
	switch strings.ToUpper(port) {
	case "IN":
		return 0xfffffff8
	case "TABLE":
		return 0xfffffff9
	case "NORMAL":
		return 0xfffffffa
	case "FLOOD":
		return 0xfffffffb
	case "ALL":
		return 0xfffffffc
	case "CONTROLLER":
		return 0xfffffffd
	case "LOCAL":
		return 0xfffffffe
	default:
		val, err := strconv.ParseUint(port, 10, 32)
		if err != nil {
			log.
				WithFields(log.Fields{
					"port": port,
				}).
				WithError(err).
				Fatal("Unable to parse specified port value")
		}
		return ofp.PortNo(val)
	}
}
