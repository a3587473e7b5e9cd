// Package metrics exposes session counters over an optional Prometheus
// endpoint.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics holds the session counters on a private registry so tests can
// create instances freely without duplicate-registration panics.
type Metrics struct {
	registry *prometheus.Registry

	AutosaveTotal    prometheus.Counter
	AutosaveFailures prometheus.Counter
	SyncApplied      prometheus.Counter
	SyncDiscarded    prometheus.Counter
	AlertsEmitted    *prometheus.CounterVec
	FinalizeTotal    prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.AutosaveTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shiftflow_autosave_total",
		Help: "Autosave flushes attempted.",
	})
	m.AutosaveFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shiftflow_autosave_failures_total",
		Help: "Autosave flushes that failed to persist.",
	})
	m.SyncApplied = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shiftflow_sync_applied_total",
		Help: "Remote drafts applied over local state.",
	})
	m.SyncDiscarded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shiftflow_sync_discarded_total",
		Help: "Remote drafts discarded as stale.",
	})
	m.AlertsEmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shiftflow_alerts_emitted_total",
		Help: "Threshold alerts emitted by level.",
	}, []string{"level"})
	m.FinalizeTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shiftflow_finalize_total",
		Help: "Shift records committed to history.",
	})

	m.registry.MustRegister(
		m.AutosaveTotal,
		m.AutosaveFailures,
		m.SyncApplied,
		m.SyncDiscarded,
		m.AlertsEmitted,
		m.FinalizeTotal,
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve runs the metrics endpoint until ctx is cancelled. A blank addr
// disables the endpoint.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *zap.Logger) {
	if addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("metrics endpoint stopped", zap.Error(err))
	}
}
