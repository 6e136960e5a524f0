package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "contentloader"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	registerDuration   *prom.HistogramVec
	unregisterDuration *prom.HistogramVec
	unitEvents         *prom.CounterVec
	deferredUnits      prom.Gauge
	lockReleaseFailed  prom.Counter
}

// NewPrometheusRecorder constructs the collectors and registers them on reg.
// A nil reg gets a private registry.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		registerDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "registration_duration_seconds",
			Help:      "Duration of unit content registrations by outcome",
			Buckets:   prom.DefBuckets,
		}, []string{"outcome"}),
		unregisterDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "unregistration_duration_seconds",
			Help:      "Duration of unit content removals by outcome",
			Buckets:   prom.DefBuckets,
		}, []string{"outcome"}),
		unitEvents: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "unit_events_total",
			Help:      "Unit lifecycle events received by kind",
		}, []string{"kind"}),
		deferredUnits: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "deferred_units",
			Help:      "Units waiting for a content reader",
		}),
		lockReleaseFailed: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "lock_release_failures_total",
			Help:      "Record locks that could not be released",
		}),
	}
	reg.MustRegister(pr.registerDuration, pr.unregisterDuration, pr.unitEvents, pr.deferredUnits, pr.lockReleaseFailed)
	return pr
}

func (p *PrometheusRecorder) ObserveRegistration(outcome OutcomeLabel, d time.Duration) {
	if p == nil {
		return
	}
	p.registerDuration.WithLabelValues(string(outcome)).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveUnregistration(outcome OutcomeLabel, d time.Duration) {
	if p == nil {
		return
	}
	p.unregisterDuration.WithLabelValues(string(outcome)).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncUnitEvent(kind string) {
	if p == nil {
		return
	}
	p.unitEvents.WithLabelValues(kind).Inc()
}

func (p *PrometheusRecorder) SetDeferredUnits(n int) {
	if p == nil {
		return
	}
	p.deferredUnits.Set(float64(n))
}

func (p *PrometheusRecorder) IncLockReleaseFailure() {
	if p == nil {
		return
	}
	p.lockReleaseFailed.Inc()
}
