package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine's Prometheus collectors on a private registry.
// A nil *Metrics is valid and records nothing, which keeps tests and tools
// free of metrics wiring.
type Metrics struct {
	Registry *prometheus.Registry

	ActionsRecorded   *prometheus.CounterVec
	MatchesCreated    *prometheus.CounterVec
	Recommendations   *prometheus.CounterVec
	CompatScores      *prometheus.HistogramVec
	JobRuns           *prometheus.CounterVec
	JobDuration       *prometheus.HistogramVec
	JobItemFailures   *prometheus.CounterVec
	NotifyFailures    prometheus.Counter
	DegradedFactors   *prometheus.CounterVec
	MalformedProfiles prometheus.Counter
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		ActionsRecorded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scene_match_actions_total",
			Help: "Actions recorded, by scene and type",
		}, []string{"scene", "action"}),
		MatchesCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scene_match_matches_created_total",
			Help: "Matches created by double opt-in",
		}, []string{"scene"}),
		Recommendations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scene_match_recommendations_total",
			Help: "Recommendation requests, by scene and source (cache or generated)",
		}, []string{"scene", "source"}),
		CompatScores: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scene_match_compatibility_score",
			Help:    "Distribution of compatibility scores served",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}, []string{"scene"}),
		JobRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scene_match_job_runs_total",
			Help: "Scheduler job runs, by job and status",
		}, []string{"job", "status"}),
		JobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scene_match_job_duration_seconds",
			Help:    "Scheduler job wall time",
			Buckets: prometheus.ExponentialBuckets(0.05, 4, 8),
		}, []string{"job"}),
		JobItemFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scene_match_job_item_failures_total",
			Help: "Per-item failures inside batch jobs",
		}, []string{"job"}),
		NotifyFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "scene_match_notify_failures_total",
			Help: "match.created notifications that could not be published",
		}),
		DegradedFactors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "scene_match_degraded_factors_total",
			Help: "Scoring factors replaced by the neutral value",
		}, []string{"scene", "factor"}),
		MalformedProfiles: f.NewCounter(prometheus.CounterOpts{
			Name: "scene_match_malformed_profiles_total",
			Help: "Candidate profiles skipped because their attributes did not decode",
		}),
	}
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ActionRecorded(scene, action string) {
	if m == nil {
		return
	}
	m.ActionsRecorded.WithLabelValues(scene, action).Inc()
}

func (m *Metrics) MatchCreated(scene string) {
	if m == nil {
		return
	}
	m.MatchesCreated.WithLabelValues(scene).Inc()
}

func (m *Metrics) RecommendationServed(scene string, fromCache bool) {
	if m == nil {
		return
	}
	source := "generated"
	if fromCache {
		source = "cache"
	}
	m.Recommendations.WithLabelValues(scene, source).Inc()
}

func (m *Metrics) CompatibilityScored(scene string, score float64) {
	if m == nil {
		return
	}
	m.CompatScores.WithLabelValues(scene).Observe(score)
}

func (m *Metrics) FactorDegraded(scene, factor string) {
	if m == nil {
		return
	}
	m.DegradedFactors.WithLabelValues(scene, factor).Inc()
}

func (m *Metrics) ProfileMalformed(n int) {
	if m == nil || n == 0 {
		return
	}
	m.MalformedProfiles.Add(float64(n))
}

func (m *Metrics) JobFinished(job, status string, seconds float64, itemFailures int) {
	if m == nil {
		return
	}
	m.JobRuns.WithLabelValues(job, status).Inc()
	m.JobDuration.WithLabelValues(job).Observe(seconds)
	if itemFailures > 0 {
		m.JobItemFailures.WithLabelValues(job).Add(float64(itemFailures))
	}
}

func (m *Metrics) NotifyFailed() {
	if m == nil {
		return
	}
	m.NotifyFailures.Inc()
}
