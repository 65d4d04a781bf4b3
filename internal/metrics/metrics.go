// Package metrics exposes prometheus collectors for the recompute loop.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"reachtracker.dev/internal/tracker"
)

const namespace = "reachtracker"

// Outcome label values of recomputes_total.
const (
	OutcomeOK            = "ok"
	OutcomeUninitialized = "uninitialized"
	OutcomeMismatch      = "datapackage_mismatch"
	OutcomeError         = "error"
)

type Metrics struct {
	reg *prometheus.Registry

	recomputes *prometheus.CounterVec
	duration   prometheus.Histogram
	locations  *prometheus.GaugeVec
	items      prometheus.Gauge
	events     prometheus.Gauge
	faults     prometheus.Counter
	reloads    *prometheus.CounterVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		recomputes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recompute",
			Name:      "total",
			Help:      "Recomputes by outcome",
		}, []string{"outcome"}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "recompute",
			Name:      "duration_seconds",
			Help:      "Wall time of one recompute",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		locations: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "locations",
			Help:      "Addressed locations by category in the latest snapshot",
		}, []string{"category"}),
		items: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "items_received",
			Help:      "Items counted in the latest snapshot",
		}),
		events: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "events_collected",
			Help:      "Event items collected in the latest snapshot",
		}),
		faults: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_faults_total",
			Help:      "Rules that faulted during evaluation",
		}),
		reloads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "world",
			Name:      "reloads_total",
			Help:      "World file reloads by result",
		}, []string{"result"}),
	}
}

// ObserveRecompute records one recompute. snap may be nil when err is set.
func (m *Metrics) ObserveRecompute(snap *tracker.Snapshot, took time.Duration, err error) {
	if m == nil {
		return
	}
	m.duration.Observe(took.Seconds())
	switch {
	case errors.Is(err, tracker.ErrDatapackageMismatch):
		m.recomputes.WithLabelValues(OutcomeMismatch).Inc()
		return
	case err != nil:
		m.recomputes.WithLabelValues(OutcomeError).Inc()
		return
	case snap == nil || !snap.Initialized:
		m.recomputes.WithLabelValues(OutcomeUninitialized).Inc()
		return
	}
	m.recomputes.WithLabelValues(OutcomeOK).Inc()

	counts := map[tracker.Category]int{
		tracker.InLogic:    0,
		tracker.Glitched:   0,
		tracker.OutOfLogic: 0,
		tracker.Collected:  0,
		tracker.Ignored:    0,
	}
	for _, st := range snap.Statuses {
		counts[st.Category]++
	}
	for c, n := range counts {
		m.locations.WithLabelValues(string(c)).Set(float64(n))
	}
	total := 0
	for _, n := range snap.AllItems {
		total += n
	}
	m.items.Set(float64(total))
	m.events.Set(float64(len(snap.Events)))
	m.faults.Add(float64(len(snap.Faults)))
}

func (m *Metrics) ObserveReload(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.reloads.WithLabelValues("error").Inc()
		return
	}
	m.reloads.WithLabelValues("ok").Inc()
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
