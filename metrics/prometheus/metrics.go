// Package prometheus provides Prometheus metrics for the voice presence agent.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "bellhop"

var (
	// decisionsTotal is a counter of presence engine decisions.
	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "presence_decisions_total",
			Help:      "Total number of presence engine decisions",
		},
		[]string{"decision"}, // decision: stay, join, move, leave
	)

	// connectionAttemptsTotal is a counter of connection actions started.
	connectionAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_attempts_total",
			Help:      "Total number of connection actions attempted",
		},
		[]string{"action"}, // action: join, move, leave
	)

	// connectionOutcomesTotal is a counter of connection action outcomes.
	connectionOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_outcomes_total",
			Help:      "Total number of connection action outcomes",
		},
		[]string{"action", "outcome"},
	)

	// cooldownSuppressionsTotal counts actions dropped by the switch cooldown.
	cooldownSuppressionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cooldown_suppressions_total",
			Help:      "Total number of connection actions suppressed by the switch cooldown",
		},
	)

	// healthCleanupsTotal counts dead sessions removed by the health check.
	healthCleanupsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "health_cleanups_total",
			Help:      "Total number of dead sessions cleaned up by the health check",
		},
	)

	// sessionsActive is a gauge of currently connected voice sessions.
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently connected voice sessions",
		},
	)

	// synthesisDuration is a histogram of speech synthesis duration by provider.
	synthesisDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "synthesis_duration_seconds",
			Help:      "Duration of speech synthesis calls in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider"},
	)

	// synthesisTotal is a counter of speech synthesis calls.
	synthesisTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_total",
			Help:      "Total number of speech synthesis calls",
		},
		[]string{"provider", "status"}, // status: success, error
	)

	// cacheLookupsTotal is a counter of speech cache lookups.
	cacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speech_cache_lookups_total",
			Help:      "Total number of speech cache lookups",
		},
		[]string{"result"}, // result: hit, miss, invalidated
	)

	// cacheEvictionsTotal is a counter of speech cache evictions.
	cacheEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speech_cache_evictions_total",
			Help:      "Total number of speech cache entries evicted",
		},
	)

	// cacheEntries is a gauge of current speech cache entries.
	cacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "speech_cache_entries",
			Help:      "Number of entries currently in the speech cache",
		},
	)

	// playbacksTotal is a counter of notification playbacks.
	playbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playbacks_total",
			Help:      "Total number of notification playbacks",
		},
		[]string{"status"}, // status: success, error, skipped
	)

	// allMetrics is a list of all metrics for registration.
	allMetrics = []prometheus.Collector{
		decisionsTotal,
		connectionAttemptsTotal,
		connectionOutcomesTotal,
		cooldownSuppressionsTotal,
		healthCleanupsTotal,
		sessionsActive,
		synthesisDuration,
		synthesisTotal,
		cacheLookupsTotal,
		cacheEvictionsTotal,
		cacheEntries,
		playbacksTotal,
	}
)

// RecordDecision records a presence engine decision.
func RecordDecision(decision string) {
	decisionsTotal.WithLabelValues(decision).Inc()
}

// RecordConnectionAttempt records the start of a connection action.
func RecordConnectionAttempt(action string) {
	connectionAttemptsTotal.WithLabelValues(action).Inc()
}

// RecordConnectionOutcome records the outcome of a connection action and
// keeps the active-session gauge in step.
func RecordConnectionOutcome(action, outcome string) {
	connectionOutcomesTotal.WithLabelValues(action, outcome).Inc()
	switch {
	case action == "join" && outcome == "success":
		sessionsActive.Inc()
	case action == "leave":
		sessionsActive.Dec()
	}
}

// RecordCooldownSuppressed records an action dropped by the switch cooldown.
func RecordCooldownSuppressed() {
	cooldownSuppressionsTotal.Inc()
}

// RecordHealthCleanup records a dead session found by the health check. The
// active-session gauge is adjusted by the forced cleanup that follows.
func RecordHealthCleanup() {
	healthCleanupsTotal.Inc()
}

// RecordForcedCleanup records a session dropped by forced cleanup (dead
// transport, invalid session, rejoin repair) and keeps the active-session
// gauge in step.
func RecordForcedCleanup() {
	connectionOutcomesTotal.WithLabelValues("cleanup", "forced").Inc()
	sessionsActive.Dec()
}

// RecordSynthesis records a speech synthesis call.
func RecordSynthesis(provider, status string, durationSeconds float64) {
	synthesisDuration.WithLabelValues(provider).Observe(durationSeconds)
	synthesisTotal.WithLabelValues(provider, status).Inc()
}

// RecordCacheLookup records a speech cache lookup result.
func RecordCacheLookup(result string) {
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordCacheEviction records evicted cache entries.
func RecordCacheEviction(count int) {
	cacheEvictionsTotal.Add(float64(count))
}

// SetCacheEntries sets the current cache entry count.
func SetCacheEntries(n int) {
	cacheEntries.Set(float64(n))
}

// RecordPlayback records a notification playback outcome.
func RecordPlayback(status string) {
	playbacksTotal.WithLabelValues(status).Inc()
}
