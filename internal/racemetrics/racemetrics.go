// Package racemetrics is the Prometheus registry for race outcomes,
// adapted from the teacher's internal/metrics/metrics.go (same
// Registry-wraps-collectors shape, same promhttp.Handler export) but
// tracking preview/judge/speculative/reward counters instead of
// tokenhub's request/cost counters.
package racemetrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles every metric the race orchestrator emits.
type Registry struct {
	reg *prometheus.Registry

	PreviewsTotal          *prometheus.CounterVec
	PreviewLatencySeconds  *prometheus.HistogramVec
	JudgeParseFailureTotal prometheus.Counter
	SpeculativeWinsTotal   *prometheus.CounterVec
	FallbackDepth          prometheus.Histogram
	BanditReward           *prometheus.HistogramVec
	RaceOutcomeTotal       *prometheus.CounterVec
}

// New builds and registers all race metrics on a fresh registry.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		PreviewsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llmrace_previews_total",
			Help: "Preview attempts by model and outcome (ok, error; a timed-out preview counts as error).",
		}, []string{"model", "outcome"}),
		PreviewLatencySeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "llmrace_preview_latency_seconds",
			Help:    "Preview stream wall-clock latency by model.",
			Buckets: prometheus.DefBuckets,
		}, []string{"model"}),
		JudgeParseFailureTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "llmrace_judge_parse_failures_total",
			Help: "Judge verdict parse failures after retry exhaustion.",
		}),
		SpeculativeWinsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llmrace_speculative_wins_total",
			Help: "Full-answer races won by model during speculative execution.",
		}, []string{"model"}),
		FallbackDepth: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "llmrace_fallback_depth",
			Help:    "Number of candidates tried sequentially before a full answer succeeded.",
			Buckets: []float64{0, 1, 2, 3, 4, 5, 8},
		}),
		BanditReward: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "llmrace_bandit_reward",
			Help:    "Per-arm reward emitted after each race.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}, []string{"model"}),
		RaceOutcomeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llmrace_race_outcome_total",
			Help: "Completed races by terminal outcome (winner, all_full_failed, judge_unparseable).",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		r.PreviewsTotal,
		r.PreviewLatencySeconds,
		r.JudgeParseFailureTotal,
		r.SpeculativeWinsTotal,
		r.FallbackDepth,
		r.BanditReward,
		r.RaceOutcomeTotal,
	)
	return r
}

// Handler exposes the registry for scraping.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
