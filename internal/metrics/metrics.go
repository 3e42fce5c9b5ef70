// Package metrics exposes Prometheus instrumentation for sync runs and
// change-log patches. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "prezsyncd"

// Metrics holds the collectors on a private registry
type Metrics struct {
	registry     *prometheus.Registry
	runs         *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
	artifacts    *prometheus.CounterVec
	artifactErrs prometheus.Counter
	patches      *prometheus.CounterVec
	patchLines   *prometheus.CounterVec
}

// New creates and registers all collectors
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Sync and change-log runs by kind and result.",
		}, []string{"kind", "result"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of sync and change-log runs.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"kind"}),
		artifacts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_planned_total",
			Help:      "Planned artifact actions by direction.",
		}, []string{"direction"}),
		artifactErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifact_errors_total",
			Help:      "Artifacts that failed to resolve or write.",
		}),
		patches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "patches_published_total",
			Help:      "Published change-log patches by kind.",
		}, []string{"kind"}),
		patchLines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "patch_operations_total",
			Help:      "Quad additions and removals carried by published patches.",
		}, []string{"op"}),
	}
	reg.MustRegister(
		m.runs, m.runDuration, m.artifacts, m.artifactErrs, m.patches, m.patchLines,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveRun records the outcome of a run of the given kind ("sync" or
// "changelog")
func (m *Metrics) ObserveRun(kind string, started time.Time, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.runs.WithLabelValues(kind, result).Inc()
	m.runDuration.WithLabelValues(kind).Observe(time.Since(started).Seconds())
}

// ObservePlan records planned actions per direction
func (m *Metrics) ObservePlan(counts map[string]int) {
	if m == nil {
		return
	}
	for dir, n := range counts {
		m.artifacts.WithLabelValues(dir).Add(float64(n))
	}
}

// ObserveArtifactErrors records failed artifacts
func (m *Metrics) ObserveArtifactErrors(n int) {
	if m == nil || n == 0 {
		return
	}
	m.artifactErrs.Add(float64(n))
}

// ObservePatch records a published patch
func (m *Metrics) ObservePatch(kind string, additions, removals int) {
	if m == nil {
		return
	}
	m.patches.WithLabelValues(kind).Inc()
	m.patchLines.WithLabelValues("add").Add(float64(additions))
	m.patchLines.WithLabelValues("delete").Add(float64(removals))
}
