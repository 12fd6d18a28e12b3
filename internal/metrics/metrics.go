// Package metrics exposes Prometheus counters for engine searches and the
// upstream fetches behind them.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// OutcomeOK labels a search that returned without error.
const OutcomeOK = "ok"

var (
	EngineRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sift_engine_requests_total",
			Help: "Total number of engine searches by outcome",
		},
		[]string{"engine", "outcome"},
	)

	EngineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sift_engine_duration_seconds",
			Help:    "Duration of engine searches in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"engine"},
	)

	EngineResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sift_engine_results_total",
			Help: "Total number of results extracted per engine",
		},
		[]string{"engine"},
	)

	FetchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sift_fetch_requests_total",
			Help: "Total number of upstream fetches executed",
		},
		[]string{"host", "status", "detected", "detection_src"},
	)

	FetchBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sift_fetch_bytes_total",
			Help: "Total bytes downloaded from upstream engines",
		},
		[]string{"host"},
	)

	ProxyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sift_proxy_failures_total",
			Help: "Total number of proxy failures during fetches, by reason (connect or blocked)",
		},
		[]string{"proxy_url", "reason"},
	)
)

// RecordSearch updates the engine metrics for one adapter call. outcome is
// OutcomeOK or the error kind.
func RecordSearch(engine, outcome string, results int, d time.Duration) {
	EngineRequestsTotal.WithLabelValues(engine, outcome).Inc()
	EngineDuration.WithLabelValues(engine).Observe(d.Seconds())
	EngineResultsTotal.WithLabelValues(engine).Add(float64(results))
}

// Fetch describes one upstream round trip.
type Fetch struct {
	Host         string
	StatusCode   int
	Err          error
	DetectionSrc string
	Bytes        int
}

// RecordFetch updates the transport metrics.
func RecordFetch(f Fetch) {
	status := strconv.Itoa(f.StatusCode)
	if f.Err != nil && f.StatusCode == 0 {
		status = "error"
	}
	detected := strconv.FormatBool(f.DetectionSrc != "")

	FetchRequestsTotal.WithLabelValues(f.Host, status, detected, f.DetectionSrc).Inc()
	FetchBytesTotal.WithLabelValues(f.Host).Add(float64(f.Bytes))
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Start listens on port and serves /metrics in the background. Port 0 picks
// a free port; see Addr.
func Start(port int, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("metrics: listen: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		// Suppress the error from intentional shutdown
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "err", err)
		}
	}()

	logger.Info("metrics server listening", "addr", ln.Addr().String())
	return &Server{srv: srv, ln: ln}, nil
}

// Addr is the address the server is bound to.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
