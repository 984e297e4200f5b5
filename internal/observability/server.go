// Package observability provides HTTP endpoints for metrics and health checks.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReadinessChecker returns whether the service is ready to accept connections.
type ReadinessChecker func() bool

// Metrics contains the Prometheus metrics emitted by the compiler, cache,
// and sandbox executor.
type Metrics struct {
	CacheLookupsTotal   *prometheus.CounterVec
	CacheEntries        *prometheus.GaugeVec
	CompileDuration     *prometheus.HistogramVec
	SandboxRunsTotal    *prometheus.CounterVec
	SandboxLimitBreach  *prometheus.CounterVec
	SandboxRunDuration  prometheus.Histogram
}

// NewMetrics creates and registers the mlpy Prometheus metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CacheLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mlpy_cache_lookups_total",
				Help: "Total number of cache lookups by tier and result",
			},
			[]string{"tier", "result"},
		),
		CacheEntries: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mlpy_cache_entries",
				Help: "Current number of entries held in each cache tier",
			},
			[]string{"tier"},
		),
		CompileDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mlpy_compile_duration_seconds",
				Help:    "Time spent compiling ML source per pipeline stage",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		SandboxRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mlpy_sandbox_runs_total",
				Help: "Total number of sandbox executions by outcome",
			},
			[]string{"outcome"},
		),
		SandboxLimitBreach: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mlpy_sandbox_limit_breaches_total",
				Help: "Total number of sandbox runs terminated for exceeding a resource limit",
			},
			[]string{"limit"},
		),
		SandboxRunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mlpy_sandbox_run_duration_seconds",
				Help:    "Wall-clock duration of sandboxed runs",
				Buckets: prometheus.DefBuckets,
			},
		),
	}

	reg.MustRegister(m.CacheLookupsTotal)
	reg.MustRegister(m.CacheEntries)
	reg.MustRegister(m.CompileDuration)
	reg.MustRegister(m.SandboxRunsTotal)
	reg.MustRegister(m.SandboxLimitBreach)
	reg.MustRegister(m.SandboxRunDuration)

	return m
}

// RecordCacheLookup satisfies internal/cache.Metrics, letting the cache
// package record against these gauges without importing this package
// (Go interfaces are structural, so no import cycle is introduced).
func (m *Metrics) RecordCacheLookup(tier, result string) {
	m.CacheLookupsTotal.WithLabelValues(tier, result).Inc()
}

// SetCacheEntries satisfies internal/cache.Metrics.
func (m *Metrics) SetCacheEntries(tier string, n float64) {
	m.CacheEntries.WithLabelValues(tier).Set(n)
}

// RecordSandboxRun satisfies internal/sandbox.Metrics.
func (m *Metrics) RecordSandboxRun(outcome string, durationSeconds float64) {
	m.SandboxRunsTotal.WithLabelValues(outcome).Inc()
	m.SandboxRunDuration.Observe(durationSeconds)
}

// RecordSandboxLimitBreach satisfies internal/sandbox.Metrics.
func (m *Metrics) RecordSandboxLimitBreach(limit string) {
	m.SandboxLimitBreach.WithLabelValues(limit).Inc()
}

// RecordCompileDuration satisfies internal/pipeline stage timing callers.
func (m *Metrics) RecordCompileDuration(stage string, seconds float64) {
	m.CompileDuration.WithLabelValues(stage).Observe(seconds)
}

// Server provides HTTP endpoints for observability (metrics and health probes).
type Server struct {
	addr       string
	listener   net.Listener
	httpServer *http.Server
	registry   *prometheus.Registry
	metrics    *Metrics
	isReady    ReadinessChecker
	running    atomic.Bool
}

// NewServer creates a new observability server.
func NewServer(addr string, readinessChecker ReadinessChecker) *Server {
	// Create a new registry to avoid polluting the global one
	registry := prometheus.NewRegistry()

	// Register standard Go metrics
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Register custom metrics
	metrics := NewMetrics(registry)

	s := &Server{
		addr:     addr,
		registry: registry,
		metrics:  metrics,
		isReady:  readinessChecker,
	}

	return s
}

// Metrics returns the custom metrics for recording application events.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Start begins serving observability endpoints. The returned channel
// receives at most one error: a Serve failure that occurs after Start has
// returned, or nothing (closed) on a clean Stop.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("observability server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = listener

	mux := http.NewServeMux()

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	// Kubernetes-style health probes
	mux.HandleFunc("/healthz/liveness", s.handleLiveness)
	mux.HandleFunc("/healthz/readiness", s.handleReadiness)

	s.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := s.httpServer.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			slog.Error("observability server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	slog.Info("observability server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the observability server. It is safe to call
// concurrently and more than once.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return fmt.Errorf("failed to shutdown observability server: %w", err)
		}
	}

	slog.Info("observability server stopped")
	return nil
}

// Addr returns the address the server is listening on.
// Returns empty string if not running.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// handleLiveness returns 200 if the process is running.
// This is a simple check that the process is alive.
func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

// handleReadiness returns 200 if the service is ready to accept connections,
// or 503 if not ready.
func (s *Server) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	if s.isReady == nil || s.isReady() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
		return
	}

	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready\n"))
}
