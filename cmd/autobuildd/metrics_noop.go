//go:build !prometheus

package main

import (
	"net/http"

	"git.home.luguber.info/inful/autobuildd/internal/metrics"
)

// newRecorder returns the zero-overhead recorder when the binary was built
// without "-tags prometheus"; there is no /metrics handler to serve.
func newRecorder() (metrics.Recorder, http.Handler) {
	return metrics.NoopRecorder{}, nil
}
