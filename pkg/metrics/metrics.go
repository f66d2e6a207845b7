// Package metrics exposes Prometheus counters for daemon calls and the
// profile/session lifecycle.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Label values used across the client.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultError   = "error"

	SessionAttached = "attached"
	SessionReused   = "reused"
	SessionReleased = "released"
	SessionStale    = "stale"
)

// Metrics holds the client collectors. A nil *Metrics records nothing.
type Metrics struct {
	// DaemonRequests counts daemon API calls by operation and result
	// (success envelope, failure envelope, transport error)
	DaemonRequests *prometheus.CounterVec

	// Sessions counts session cache events
	Sessions *prometheus.CounterVec

	// Outcomes counts finished lifecycle runs by result
	Outcomes *prometheus.CounterVec

	// CleanupErrors counts suppressed teardown failures by step
	CleanupErrors *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
// A nil reg leaves them unregistered, which is handy in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DaemonRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adspower_daemon_requests_total",
				Help: "Total daemon API requests by operation and result",
			},
			[]string{"op", "result"},
		),
		Sessions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adspower_sessions_total",
				Help: "Session cache events (attached, reused, released, stale)",
			},
			[]string{"event"},
		),
		Outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adspower_lifecycle_outcomes_total",
				Help: "Finished profile lifecycle runs by result",
			},
			[]string{"result"},
		),
		CleanupErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adspower_cleanup_errors_total",
				Help: "Suppressed teardown failures by lifecycle step",
			},
			[]string{"step"},
		),
	}

	if reg != nil {
		reg.MustRegister(m.DaemonRequests, m.Sessions, m.Outcomes, m.CleanupErrors)
	}
	return m
}

// RecordRequest counts a daemon call.
func (m *Metrics) RecordRequest(op, result string) {
	if m == nil {
		return
	}
	m.DaemonRequests.WithLabelValues(op, result).Inc()
}

// RecordSession counts a session cache event.
func (m *Metrics) RecordSession(event string) {
	if m == nil {
		return
	}
	m.Sessions.WithLabelValues(event).Inc()
}

// RecordOutcome counts a finished lifecycle run.
func (m *Metrics) RecordOutcome(ok bool) {
	if m == nil {
		return
	}
	result := ResultSuccess
	if !ok {
		result = ResultFailure
	}
	m.Outcomes.WithLabelValues(result).Inc()
}

// RecordCleanupError counts a suppressed teardown failure.
func (m *Metrics) RecordCleanupError(step string) {
	if m == nil {
		return
	}
	m.CleanupErrors.WithLabelValues(step).Inc()
}
