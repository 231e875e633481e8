package handlers

import (
	"net/http"

	"mediagen/internal/telemetry"
)

// Metrics serves the Prometheus exposition.
func Metrics() http.Handler {
	return telemetry.Handler()
}
