// Package metrics exposes sync counters for the storyline client.
//
// All methods are safe on a nil *Metrics, so components can take one
// optionally.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrijs2005/storyline/internal/logging"
)

const namespace = "storyline"

type Metrics struct {
	reg *prometheus.Registry

	pulls           prometheus.Counter
	pullFailures    prometheus.Counter
	pushes          prometheus.Counter
	pushFailures    prometheus.Counter
	pushRetries     prometheus.Counter
	reconciliations *prometheus.CounterVec
	records         prometheus.Gauge
}

// New registers the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		pulls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "pulls_total",
			Help: "Remote pulls attempted.",
		}),
		pullFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "pull_failures_total",
			Help: "Remote pulls that failed.",
		}),
		pushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "pushes_total",
			Help: "Remote pushes attempted.",
		}),
		pushFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "push_failures_total",
			Help: "Remote pushes that failed after retries.",
		}),
		pushRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "push_retries_total",
			Help: "Backoff waits taken before retrying a push.",
		}),
		reconciliations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "reconciliations_total",
			Help: "Reconciliation outcomes by winning side.",
		}, []string{"source"}),
		records: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "records",
			Help: "Materialized records, tombstones included.",
		}),
	}
	m.reg.MustRegister(m.pulls, m.pullFailures, m.pushes, m.pushFailures,
		m.pushRetries, m.reconciliations, m.records)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *Metrics) ObservePull(err error) {
	if m == nil {
		return
	}
	m.pulls.Inc()
	if err != nil {
		m.pullFailures.Inc()
	}
}

func (m *Metrics) ObservePush(err error) {
	if m == nil {
		return
	}
	m.pushes.Inc()
	if err != nil {
		m.pushFailures.Inc()
	}
}

// ObserveBackoff matches remote.BackoffObserver.
func (m *Metrics) ObserveBackoff(attempt int, wait time.Duration) {
	if m == nil {
		return
	}
	m.pushRetries.Inc()
}

func (m *Metrics) ObserveReconcile(source string) {
	if m == nil {
		return
	}
	m.reconciliations.WithLabelValues(source).Inc()
}

func (m *Metrics) SetRecords(n int) {
	if m == nil {
		return
	}
	m.records.Set(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, m *Metrics, log logging.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info(ctx, "metrics endpoint listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
