package service

import (
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"
)

func handleHealthcheck() http.Handler {
	return http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			log.Debug("received healthcheck request")
			// This will have a status of 200
			fmt.Fprintf(w, "all good in the hood")
		},
	)
}
