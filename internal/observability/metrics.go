// Package observability holds the service-wide Prometheus collectors.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	transitionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "transporter",
		Subsystem: "movers",
		Name:      "transitions_total",
		Help:      "Number of committed mover state transitions, labeled by activity type.",
	}, []string{"type"})

	rejectedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "transporter",
		Subsystem: "movers",
		Name:      "transitions_rejected_total",
		Help:      "Number of mover transitions refused by business rules, labeled by type and reason.",
	}, []string{"type", "reason"})

	conflictCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "transporter",
		Subsystem: "movers",
		Name:      "version_conflicts_total",
		Help:      "Number of lost compare-and-swap attempts on mover records.",
	}, []string{"type"})

	activityLogFailureCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "transporter",
		Subsystem: "activity_log",
		Name:      "append_failures_total",
		Help:      "Number of committed transitions whose activity log entry could not be appended.",
	}, []string{"type"})

	activityLoggedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "transporter",
		Subsystem: "activity_log",
		Name:      "last_entry_appended_timestamp_seconds",
		Help:      "Unix timestamp of the most recent activity log entry appended.",
	})
)

func init() {
	prometheus.MustRegister(transitionCounter, rejectedCounter, conflictCounter, activityLogFailureCounter, activityLoggedGauge)
}

// RecordTransition counts a committed transition.
func RecordTransition(activityType string) {
	transitionCounter.WithLabelValues(activityType).Inc()
}

// RecordTransitionRejected counts a transition refused before commit.
func RecordTransitionRejected(activityType, reason string) {
	rejectedCounter.WithLabelValues(activityType, reason).Inc()
}

// RecordVersionConflict counts a lost optimistic-concurrency race.
func RecordVersionConflict(activityType string) {
	conflictCounter.WithLabelValues(activityType).Inc()
}

// RecordActivityLogFailure counts a failed post-commit log append.
func RecordActivityLogFailure(activityType string) {
	activityLogFailureCounter.WithLabelValues(activityType).Inc()
}

// RecordActivityLogged updates the append watermark gauge.
func RecordActivityLogged(ts time.Time) {
	if ts.IsZero() {
		return
	}
	activityLoggedGauge.Set(float64(ts.Unix()))
}

// ActivityLogFailures exposes the append failure counter for activityType.
func ActivityLogFailures(activityType string) prometheus.Counter {
	return activityLogFailureCounter.WithLabelValues(activityType)
}
