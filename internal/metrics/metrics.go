// Package metrics exposes Prometheus instrumentation for grading and ranking.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels used by the collectors.
const (
	OutcomeGraded        = "graded"
	OutcomePaperNotFound = "paper_not_found"
	OutcomeError         = "error"
	OutcomeRanked        = "ranked"
	OutcomeUnranked      = "unranked"
	OutcomeContention    = "contention"
)

// Collector records service metrics on its own registry. A nil *Collector is a
// valid no-op, which keeps instrumentation optional for callers and tests.
type Collector struct {
	registry         *prometheus.Registry
	submissions      *prometheus.CounterVec
	rankings         *prometheus.CounterVec
	rankingConflicts prometheus.Counter
	submitLatency    prometheus.Histogram
}

// New creates a Collector with all metrics registered on a fresh registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Collector{
		registry: reg,
		submissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exam_submissions_total",
				Help: "Submissions processed, by grading outcome.",
			},
			[]string{"outcome"},
		),
		rankings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exam_leaderboard_rankings_total",
				Help: "Leaderboard submit calls, by ranking outcome.",
			},
			[]string{"outcome"},
		),
		rankingConflicts: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "exam_leaderboard_conflicts_total",
				Help: "Optimistic leaderboard updates that lost to a concurrent writer and were retried.",
			},
		),
		submitLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "exam_submit_duration_seconds",
				Help:    "End-to-end latency of grading, persisting and ranking a submission.",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) ObserveSubmission(outcome string) {
	if c == nil {
		return
	}
	c.submissions.WithLabelValues(outcome).Inc()
}

func (c *Collector) ObserveRanking(outcome string) {
	if c == nil {
		return
	}
	c.rankings.WithLabelValues(outcome).Inc()
}

func (c *Collector) ObserveConflict() {
	if c == nil {
		return
	}
	c.rankingConflicts.Inc()
}

func (c *Collector) ObserveSubmitLatency(d time.Duration) {
	if c == nil {
		return
	}
	c.submitLatency.Observe(d.Seconds())
}
