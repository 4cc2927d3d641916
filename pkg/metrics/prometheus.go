package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arnavshah/slot-assignment-api/pkg/models"
	"github.com/arnavshah/slot-assignment-api/pkg/scheduler"
)

// PrometheusCollector implements scheduler.Metrics backed by Prometheus.
type PrometheusCollector struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	runs              *prometheus.CounterVec
	runDuration       *prometheus.HistogramVec
	assignments       *prometheus.CounterVec
	coverage          prometheus.Gauge
	confidence        prometheus.Gauge
	fairness          prometheus.Gauge
	repositoryRetries *prometheus.CounterVec
}

var _ scheduler.Metrics = (*PrometheusCollector)(nil)

// NewPrometheus creates a collector registering on reg (prometheus.DefaultRegisterer
// when nil) under namespace ("slot_assignment" when empty). Registration happens
// on first use.
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "slot_assignment"
	}
	return &PrometheusCollector{reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.runs = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "engine",
			Name:      "runs_total",
			Help:      "Assignment runs by outcome (ok or error kind).",
		}, []string{"outcome"})

		p.runDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "engine",
			Name:      "run_duration_seconds",
			Help:      "Wall time of assignment runs in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms .. ~10s
		}, []string{"outcome"})

		p.assignments = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "engine",
			Name:      "assignments_total",
			Help:      "Assignments produced by successful runs, by decision.",
		}, []string{"decision"})

		p.coverage = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "engine",
			Name:      "last_coverage_percent",
			Help:      "Coverage rate of the most recent successful run.",
		})
		p.confidence = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "engine",
			Name:      "last_average_confidence",
			Help:      "Average confidence of the most recent successful run.",
		})
		p.fairness = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "engine",
			Name:      "last_fairness_score",
			Help:      "Fairness score of the most recent successful run.",
		})

		p.repositoryRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "repository",
			Name:      "retries_total",
			Help:      "Repository calls retried after a transient failure, by operation.",
		}, []string{"op"})

		p.reg.MustRegister(p.runs)
		p.reg.MustRegister(p.runDuration)
		p.reg.MustRegister(p.assignments)
		p.reg.MustRegister(p.coverage)
		p.reg.MustRegister(p.confidence)
		p.reg.MustRegister(p.fairness)
		p.reg.MustRegister(p.repositoryRetries)
	})
}

// ObserveRun records one finished run.
func (p *PrometheusCollector) ObserveRun(outcome string, duration time.Duration, summary models.Summary) {
	p.ensureRegistered()
	p.runs.WithLabelValues(outcome).Inc()
	p.runDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	if outcome != "ok" {
		return
	}
	p.assignments.WithLabelValues("auto_approved").Add(float64(summary.AutoApproved))
	p.assignments.WithLabelValues("pending_review").Add(float64(summary.RequiresReview))
	p.coverage.Set(float64(summary.CoveragePercentage))
	p.confidence.Set(float64(summary.AverageConfidence))
	p.fairness.Set(summary.FairnessScore)
}

// IncRepositoryRetry counts a retried repository call.
func (p *PrometheusCollector) IncRepositoryRetry(op string) {
	p.ensureRegistered()
	p.repositoryRetries.WithLabelValues(op).Inc()
}
