package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	phaseDuration *prom.HistogramVec
	buildDuration prom.Histogram
	phaseResults  *prom.CounterVec
	buildOutcome  *prom.CounterVec
	artifacts     *prom.GaugeVec
	cacheEvents   *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers metrics on the registry.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		phaseDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "sitegen",
			Name:      "phase_duration_seconds",
			Help:      "Duration of individual build phases",
			Buckets:   prom.DefBuckets,
		}, []string{"phase"}),
		buildDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "sitegen",
			Name:      "build_duration_seconds",
			Help:      "Total build duration",
			Buckets:   prom.DefBuckets,
		}),
		phaseResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "sitegen",
			Name:      "phase_results_total",
			Help:      "Phase result counts by outcome",
		}, []string{"phase", "result"}),
		buildOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "sitegen",
			Name:      "build_outcomes_total",
			Help:      "Build outcomes by final status",
		}, []string{"outcome"}),
		artifacts: prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: "sitegen",
			Name:      "build_artifacts",
			Help:      "Artifact counts of the last build by disposition",
		}, []string{"disposition"}),
		cacheEvents: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "sitegen",
			Name:      "cache_events_total",
			Help:      "Cache load outcomes",
		}, []string{"event"}),
	}
	reg.MustRegister(pr.phaseDuration, pr.buildDuration, pr.phaseResults,
		pr.buildOutcome, pr.artifacts, pr.cacheEvents)
	return pr
}

func (p *PrometheusRecorder) ObservePhaseDuration(phase string, d time.Duration) {
	if p == nil {
		return
	}
	p.phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveBuildDuration(d time.Duration) {
	if p == nil {
		return
	}
	p.buildDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncPhaseResult(phase string, result ResultLabel) {
	if p == nil {
		return
	}
	p.phaseResults.WithLabelValues(phase, string(result)).Inc()
}

func (p *PrometheusRecorder) IncBuildOutcome(outcome string) {
	if p == nil {
		return
	}
	p.buildOutcome.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) SetArtifactCounts(rebuilt, unchanged, deleted int) {
	if p == nil {
		return
	}
	p.artifacts.WithLabelValues("rebuilt").Set(float64(rebuilt))
	p.artifacts.WithLabelValues("unchanged").Set(float64(unchanged))
	p.artifacts.WithLabelValues("deleted").Set(float64(deleted))
}

func (p *PrometheusRecorder) IncCacheEvent(event string) {
	if p == nil {
		return
	}
	p.cacheEvents.WithLabelValues(event).Inc()
}

// HTTPHandler serves the registry in Prometheus exposition format.
func HTTPHandler(reg *prom.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
