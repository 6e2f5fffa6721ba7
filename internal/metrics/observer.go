package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/mikey/maccafe-matcher/internal/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run outcomes used as the "outcome" label
const (
	OutcomeSuccess    = "success"
	OutcomeSkipped    = "skipped"
	OutcomeInProgress = "in_progress"
	OutcomeFailed     = "failed"
)

// RunObserver records matching runs as Prometheus metrics on its own registry
type RunObserver struct {
	registry *prometheus.Registry

	runsTotal         *prometheus.CounterVec
	pairsTotal        prometheus.Counter
	notificationsSent prometheus.Counter
	runErrorsTotal    prometheus.Counter
	runDuration       prometheus.Histogram
	lastSuccess       prometheus.Gauge
}

// NewRunObserver creates the observer and registers its collectors
func NewRunObserver() *RunObserver {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	factory := promauto.With(reg)
	return &RunObserver{
		registry: reg,
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "matcher_runs_total",
			Help: "Total number of matching runs by outcome",
		}, []string{"outcome"}),
		pairsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "matcher_pairs_created_total",
			Help: "Total number of pairs created",
		}),
		notificationsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "matcher_notifications_sent_total",
			Help: "Total number of match notifications delivered",
		}),
		runErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "matcher_run_errors_total",
			Help: "Total number of non-fatal errors reported by runs",
		}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "matcher_run_duration_seconds",
			Help:    "Matching run duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		lastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Name: "matcher_last_success_timestamp_seconds",
			Help: "Unix time of the last run that finished without a fatal error",
		}),
	}
}

// RunFinished implements core.RunObserver
func (o *RunObserver) RunFinished(result *core.RunResult, elapsed time.Duration, err error) {
	o.runDuration.Observe(elapsed.Seconds())

	switch {
	case errors.Is(err, core.ErrRunInProgress):
		o.runsTotal.WithLabelValues(OutcomeInProgress).Inc()
		return
	case err != nil:
		o.runsTotal.WithLabelValues(OutcomeFailed).Inc()
		return
	case result == nil:
		return
	case result.Message != "":
		o.runsTotal.WithLabelValues(OutcomeSkipped).Inc()
	default:
		o.runsTotal.WithLabelValues(OutcomeSuccess).Inc()
	}

	o.pairsTotal.Add(float64(result.PairsCreated))
	o.notificationsSent.Add(float64(result.NotificationsSent))
	o.runErrorsTotal.Add(float64(len(result.Errors)))
	o.lastSuccess.SetToCurrentTime()
}

// Handler serves the observer's registry
func (o *RunObserver) Handler() http.Handler {
	return promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{Registry: o.registry})
}

// Registry exposes the underlying registry
func (o *RunObserver) Registry() *prometheus.Registry {
	return o.registry
}
