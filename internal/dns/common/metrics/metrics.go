package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "blockwatch"

// Tick results.
const (
	TickOK     = "ok"
	TickError  = "error"
	TickPanic  = "panic"
	TickConfig = "config"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	ticks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "ticks_total",
			Help:      "Number of poll ticks by result.",
		}, []string{"result"},
	)
	watermark = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "watermark",
			Help:      "Highest query log row id considered processed.",
		},
	)
	dispatched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "events_dispatched_total",
			Help:      "Block events handed to the notification sink.",
		},
	)
	suppressed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "events_suppressed_total",
			Help:      "Block events dropped by the allowlist.",
		},
	)
	enrichFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "enrichment_failures_total",
			Help:      "Category lookups that failed.",
		},
	)
	mailFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "mail_failures_total",
			Help:      "Report mails that could not be delivered.",
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{ticks, watermark, dispatched, suppressed, enrichFailures, mailFailures}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// Serve exposes Handler on addr under /metrics until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncTick(result string) {
	if regOK.Load() {
		ticks.WithLabelValues(result).Inc()
	}
}

func SetWatermark(id int64) {
	if regOK.Load() {
		watermark.Set(float64(id))
	}
}

func AddDispatched(n int) {
	if regOK.Load() {
		dispatched.Add(float64(n))
	}
}

func IncSuppressed() {
	if regOK.Load() {
		suppressed.Inc()
	}
}

func IncEnrichmentFailure() {
	if regOK.Load() {
		enrichFailures.Inc()
	}
}

func IncMailFailure() {
	if regOK.Load() {
		mailFailures.Inc()
	}
}
