package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"
)

// App is the application configuration and runtime information.
type App struct {
	ShowHelp bool   `envconfig:"HELP" default:"false" desc:"show this message"`
	RconnAPI string `envconfig:"RCONN_API" default:"http://127.0.0.1:8002" desc:"base URL (http://HOST:PORT) of the rconn status API"`
	Name     string `envconfig:"NAME" desc:"name of a single connection to query, or empty to list all"`
}

func main() {
	var app App

	var flags flag.FlagSet
	err := flags.Parse(os.Args[1:])
	if err != nil {
		envconfig.Usage("", &(app))
		return
	}

	err = envconfig.Process("", &app)
	if err != nil {
		log.WithError(err).Fatal("Unable to parse application configuration")
	}
	if app.ShowHelp {
		envconfig.Usage("", &app)
		return
	}

	url := fmt.Sprintf("%s/rconn", app.RconnAPI)
	if app.Name != "" {
		url = fmt.Sprintf("%s/rconn/%s", app.RconnAPI, app.Name)
	}

	resp, err := http.Get(url)
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
				"rconn":          app.RconnAPI,
				"response-code":  resp.StatusCode,
				"response":       resp.Status,
			}).
			Fatal("Non success code returned from rconn API")
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		log.
			WithFields(log.Fields{
				"rconn": app.RconnAPI,
			}).
			WithError(err).
			Fatal("Unable to read response from rconn API")
	}
	fmt.Println(string(data))
}
