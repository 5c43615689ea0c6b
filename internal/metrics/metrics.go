// Package metrics provides Prometheus metrics for the WAF pipeline,
// mirroring the reference service's infrastructure/metrics package shape.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors used by the pipeline, admin API,
// and background jobs.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	PhaseVerdictsTotal *prometheus.CounterVec

	RateLimitedTotal     prometheus.Counter
	BotsDetectedTotal    prometheus.Counter
	ChallengesIssued     prometheus.Counter
	ChallengesSolved     prometheus.Counter
	WAFBlockedTotal      *prometheus.CounterVec
	IPReputationBlocked  prometheus.Counter

	RateLimiterKeys  prometheus.Gauge
	UpstreamUp       *prometheus.GaugeVec
	UpstreamSelected *prometheus.CounterVec
}

// New creates a Metrics instance registered against the default registry.
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a Metrics instance registered against the given
// registerer (nil skips registration, useful in tests that build multiple
// instances in one process).
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "l7waf_http_requests_total",
			Help: "Total number of HTTP requests handled by the pipeline.",
		}, []string{"route", "verdict", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "l7waf_http_request_duration_seconds",
			Help:    "End-to-end transaction duration in seconds.",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"route"}),
		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "l7waf_http_requests_in_flight",
			Help: "Current number of in-flight transactions.",
		}),
		PhaseVerdictsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "l7waf_phase_verdicts_total",
			Help: "Verdicts emitted per pipeline phase.",
		}, []string{"phase", "verdict"}),
		RateLimitedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "l7waf_rate_limited_requests_total",
			Help: "Requests denied by the rate limiter.",
		}),
		BotsDetectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "l7waf_bots_detected_total",
			Help: "Requests scoring at or above the bot threshold.",
		}),
		ChallengesIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "l7waf_challenges_issued_total",
			Help: "Proof-of-work challenges issued.",
		}),
		ChallengesSolved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "l7waf_challenges_solved_total",
			Help: "Proof-of-work challenges solved (first verification).",
		}),
		WAFBlockedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "l7waf_waf_blocked_total",
			Help: "Requests blocked by the WAF bridge, by rule id.",
		}, []string{"rule_id"}),
		IPReputationBlocked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "l7waf_ip_reputation_blocked_total",
			Help: "Requests blocked by IP reputation.",
		}),
		RateLimiterKeys: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "l7waf_ratelimit_active_keys",
			Help: "Number of active rate-limit keys tracked in the store.",
		}),
		UpstreamUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "l7waf_upstream_server_up",
			Help: "1 if the upstream server is healthy, 0 if in cooldown.",
		}, []string{"upstream", "server"}),
		UpstreamSelected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "l7waf_upstream_selected_total",
			Help: "Times a given upstream server was selected.",
		}, []string{"upstream", "server"}),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.RequestsTotal,
			m.RequestDuration,
			m.RequestsInFlight,
			m.PhaseVerdictsTotal,
			m.RateLimitedTotal,
			m.BotsDetectedTotal,
			m.ChallengesIssued,
			m.ChallengesSolved,
			m.WAFBlockedTotal,
			m.IPReputationBlocked,
			m.RateLimiterKeys,
			m.UpstreamUp,
			m.UpstreamSelected,
		)
	}

	return m
}
