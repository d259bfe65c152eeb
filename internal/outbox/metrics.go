package outbox

import (
	"encoding/json"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	deliveredCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "transporter",
		Subsystem: "outbox",
		Name:      "events_delivered_total",
		Help:      "Number of activity log events published to Kafka, by event type.",
	}, []string{"event_type"})

	failedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "transporter",
		Subsystem: "outbox",
		Name:      "events_failed_total",
		Help:      "Number of activity log events that failed to publish and were routed to the DLQ.",
	}, []string{"event_type"})

	activitiesExportedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "transporter",
		Subsystem: "outbox",
		Name:      "activities_exported_total",
		Help:      "Number of mover activity log entries exported, by activity type.",
	}, []string{"activity_type"})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "transporter",
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Time spent fetching, delivering, and marking outbox batches.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	dlqCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "transporter",
		Subsystem: "outbox",
		Name:      "events_dlq_total",
		Help:      "Number of activity log events routed to the dead-letter queue.",
	}, []string{"topic", "event_type"})
)

func init() {
	prometheus.MustRegister(deliveredCounter, failedCounter, activitiesExportedCounter, batchDuration, dlqCounter)
}

func recordDelivered(messages []Message) {
	for _, msg := range messages {
		deliveredCounter.WithLabelValues(msg.EventType).Inc()
		activitiesExportedCounter.WithLabelValues(activityType(msg)).Inc()
	}
}

func recordFailed(messages []Message) {
	for _, msg := range messages {
		failedCounter.WithLabelValues(msg.EventType).Inc()
	}
}

// activityType reads the mover activity type from an exported payload.
func activityType(msg Message) string {
	var payload struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.Type == "" {
		return "unknown"
	}
	return payload.Type
}
