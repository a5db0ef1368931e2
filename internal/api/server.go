// Package api serves the grading worker's operational endpoints.
package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"submission-grader/internal/monitor"
)

const checkTimeout = 3 * time.Second

// Check probes one dependency. Required checks turn the worker degraded.
type Check struct {
	Name     string
	Required bool
	Probe    func(ctx context.Context) error
}

// Server exposes /health and the Prometheus endpoint.
type Server struct {
	httpServer *http.Server
	checks     []Check
	startTime  time.Time
}

// NewServer wires routes and middleware. metricsPath defaults to /metrics;
// a nil metrics disables the endpoint.
func NewServer(addr, metricsPath string, metrics *monitor.Metrics, checks ...Check) *Server {
	s := &Server{checks: checks, startTime: time.Now()}
	sort.SliceStable(s.checks, func(i, j int) bool { return s.checks[i].Name < s.checks[j].Name })

	if metricsPath == "" {
		metricsPath = "/metrics"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	if metrics != nil {
		mux.Handle("GET "+metricsPath, promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	}

	// Apply middleware chain (innermost first). Recovery sits inside the
	// metrics and logging layers so a panic is still counted as a 500.
	var handler http.Handler = mux
	handler = RecoveryMiddleware(handler)
	handler = MetricsMiddleware(metrics, "/health", metricsPath)(handler)
	handler = LoggingMiddleware("/health", metricsPath)(handler)
	handler = RequestIDMiddleware(handler)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Handler returns the wrapped mux, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for requests.
func (s *Server) Start() error {
	log.Info().Str("addr", s.httpServer.Addr).Msg("starting operational HTTP server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	resp := HealthResponse{
		Status: "ok",
		Checks: make(map[string]string, len(s.checks)),
		Uptime: time.Since(s.startTime).Round(time.Second).String(),
	}
	for _, c := range s.checks {
		if err := c.Probe(ctx); err != nil {
			resp.Checks[c.Name] = err.Error()
			if c.Required {
				resp.Status = "degraded"
			}
			continue
		}
		resp.Checks[c.Name] = "ok"
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
