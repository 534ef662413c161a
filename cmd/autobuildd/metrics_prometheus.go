//go:build prometheus

package main

import (
	"net/http"

	"git.home.luguber.info/inful/autobuildd/internal/metrics"
	prom "github.com/prometheus/client_golang/prometheus"
)

// newRecorder builds a Prometheus-backed recorder and its companion
// /metrics handler. Only compiled into "-tags prometheus" builds, mirroring
// the teacher's opt-in metrics resolver split.
func newRecorder() (metrics.Recorder, http.Handler) {
	reg := prom.NewRegistry()
	return metrics.NewPrometheusRecorder(reg), metrics.HTTPHandler(reg)
}
