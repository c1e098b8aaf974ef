// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Plugrun Contributors

// Package observability provides HTTP endpoints for metrics and health checks.
package observability

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

// ReadinessChecker returns whether the runtime is ready to serve.
type ReadinessChecker func() bool

// Metrics contains the plugin runtime's Prometheus metrics.
type Metrics struct {
	LoadsTotal           *prometheus.CounterVec
	HookEmissionsTotal   *prometheus.CounterVec
	HookFailuresTotal    *prometheus.CounterVec
	PluginsRegistered    prometheus.Gauge
	PluginsLoaded        prometheus.Gauge
	ValidationScore      *prometheus.HistogramVec
}

// NewMetrics creates and registers the plugin runtime metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LoadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plugrun_plugin_loads_total",
				Help: "Total number of plugin load attempts by status",
			},
			[]string{"status"},
		),
		HookEmissionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plugrun_hook_emissions_total",
				Help: "Total number of hook emissions by hook name",
			},
			[]string{"hook"},
		),
		HookFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "plugrun_hook_handler_failures_total",
				Help: "Total number of isolated hook handler failures by hook name",
			},
			[]string{"hook"},
		),
		PluginsRegistered: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "plugrun_plugins_registered",
				Help: "Number of plugins currently registered",
			},
		),
		PluginsLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "plugrun_plugins_loaded",
				Help: "Number of plugins currently loaded",
			},
		),
		ValidationScore: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "plugrun_validation_score",
				Help:    "Security score distribution of validated candidates",
				Buckets: prometheus.LinearBuckets(0, 10, 11),
			},
			[]string{"verdict"},
		),
	}

	reg.MustRegister(
		m.LoadsTotal,
		m.HookEmissionsTotal,
		m.HookFailuresTotal,
		m.PluginsRegistered,
		m.PluginsLoaded,
		m.ValidationScore,
	)
	return m
}

// RecordLoad increments the load counter. Safe on a nil receiver so
// callers without metrics wiring need no guards.
func (m *Metrics) RecordLoad(status string) {
	if m == nil {
		return
	}
	m.LoadsTotal.WithLabelValues(status).Inc()
}

// RecordEmission records a hook emission and its handler failures.
func (m *Metrics) RecordEmission(hook string, failures int) {
	if m == nil {
		return
	}
	m.HookEmissionsTotal.WithLabelValues(hook).Inc()
	if failures > 0 {
		m.HookFailuresTotal.WithLabelValues(hook).Add(float64(failures))
	}
}

// RecordValidation records a validation verdict and score.
func (m *Metrics) RecordValidation(valid bool, score int) {
	if m == nil {
		return
	}
	verdict := "valid"
	if !valid {
		verdict = "invalid"
	}
	m.ValidationScore.WithLabelValues(verdict).Observe(float64(score))
}

// SetCounts updates the registered/loaded gauges.
func (m *Metrics) SetCounts(registered, loaded int) {
	if m == nil {
		return
	}
	m.PluginsRegistered.Set(float64(registered))
	m.PluginsLoaded.Set(float64(loaded))
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
// addr: listen address in "host:port" format (e.g., "127.0.0.1:9100").
func NewServer(addr string, readinessChecker ReadinessChecker) *Server {
	// Use a dedicated registry to avoid polluting the global one.
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &Server{
		addr:     addr,
		registry: registry,
		metrics:  NewMetrics(registry),
		isReady:  readinessChecker,
	}
}

// Metrics returns the runtime metrics for recording application events.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Start begins serving observability endpoints. It returns an error
// channel that receives any errors from the HTTP server after it
// starts; the channel is closed when the server stops gracefully.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("observability server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/healthz/liveness", s.handleLiveness)
	mux.HandleFunc("/healthz/readiness", s.handleReadiness)

	httpSrv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			slog.Error("observability server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	slog.Info("observability server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the observability server.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown_observability_server").Wrap(err)
		}
	}

	slog.Info("observability server stopped")
	return nil
}

// Addr returns the address the server is listening on, or empty if not
// running.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // health check write error is acceptable
	w.Write([]byte("ok\n"))
}

func (s *Server) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	if s.isReady == nil || s.isReady() {
		w.WriteHeader(http.StatusOK)
		//nolint:errcheck // health check write error is acceptable
		w.Write([]byte("ok\n"))
		return
	}

	w.WriteHeader(http.StatusServiceUnavailable)
	//nolint:errcheck // health check write error is acceptable
	w.Write([]byte("not ready\n"))
}
