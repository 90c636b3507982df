package api

import (
	"log/slog"
	"net/http"
	"time"

	"sitewatch/internal/metrics"
)

// Deps are the collaborators the router wires into handlers.
type Deps struct {
	Store  Store
	Cycles Cycles
	// Stream serves the live event feed; nil disables the route.
	Stream http.Handler
	// MetricsHandler serves Prometheus exposition; nil disables the route.
	MetricsHandler http.Handler
	Metrics        *metrics.Metrics
	AdminToken     string
	Now            func() time.Time
	Logger         *slog.Logger
}

// NewRouter creates a new http.ServeMux and registers the API handlers.
func NewRouter(d Deps) *http.ServeMux {
	mux := http.NewServeMux()
	h := NewHandlers(d)

	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /v1/status", h.Status)
	mux.HandleFunc("GET /v1/sites/{site_id}/history", h.SiteHistory)
	mux.HandleFunc("GET /v1/incidents", h.Incidents)
	mux.HandleFunc("POST /v1/cycle", h.RunCycle)
	mux.HandleFunc("POST /v1/certs/check", h.CheckCertificates)
	mux.HandleFunc("POST /v1/push/{token}", h.Push)
	mux.HandleFunc("GET /v1/push/{token}", h.Push)
	if d.Stream != nil {
		mux.Handle("GET /v1/stream", d.Stream)
	}
	if d.MetricsHandler != nil {
		mux.Handle("GET /metrics", d.MetricsHandler)
	}

	return mux
}
