package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// dispatchOutcomesTotal counts finalized message dispatches.
	// Labels:
	// - path:  preview | immediate | queued
	// - state: preview | sent | partial | failed | queued | queue_failed
	dispatchOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "courier",
			Subsystem: "dispatch",
			Name:      "outcomes_total",
			Help:      "Message dispatch outcomes by path and final state.",
		},
		[]string{"path", "state"},
	)

	// recipientSendsTotal counts per-recipient transport attempts.
	// Labels:
	// - result: success | failure
	recipientSendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "courier",
			Subsystem: "dispatch",
			Name:      "recipient_sends_total",
			Help:      "Per-recipient transport send attempts by result.",
		},
		[]string{"result"},
	)

	// queuePublishesTotal counts jobs pushed to the dispatch queue.
	// Labels:
	// - result: success | failure
	queuePublishesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "courier",
			Subsystem: "queue",
			Name:      "publishes_total",
			Help:      "Per-recipient jobs published to the work queue by result.",
		},
		[]string{"result"},
	)

	// quotaRejectionsTotal counts sends rejected by the quota enforcer.
	// Labels:
	// - window: day | month
	quotaRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "courier",
			Subsystem: "quota",
			Name:      "rejections_total",
			Help:      "Number of sends rejected due to an exhausted quota window (HTTP 429).",
		},
		[]string{"window"},
	)

	// trackingEventsTotal counts engagement events by type and whether the
	// event was recorded or suppressed by the dedup gate.
	// Labels:
	// - type:   opened | clicked | unsubscribed
	// - result: recorded | duplicate | unknown_token | error
	trackingEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "courier",
			Subsystem: "tracking",
			Name:      "events_total",
			Help:      "Engagement tracking callbacks by event type and result.",
		},
		[]string{"type", "result"},
	)
)

// IncDispatchOutcome increments the dispatch outcome counter.
func IncDispatchOutcome(path, state string) {
	if path == "" {
		path = "unknown"
	}
	if state == "" {
		state = "unknown"
	}
	dispatchOutcomesTotal.WithLabelValues(path, state).Inc()
}

// IncRecipientSend increments the per-recipient transport attempt counter.
func IncRecipientSend(ok bool) {
	result := "failure"
	if ok {
		result = "success"
	}
	recipientSendsTotal.WithLabelValues(result).Inc()
}

// IncQueuePublish increments the queue publish counter.
func IncQueuePublish(ok bool) {
	result := "failure"
	if ok {
		result = "success"
	}
	queuePublishesTotal.WithLabelValues(result).Inc()
}

// IncQuotaRejection increments the quota rejection counter.
func IncQuotaRejection(window string) {
	if window == "" {
		window = "unknown"
	}
	quotaRejectionsTotal.WithLabelValues(window).Inc()
}

// IncTrackingEvent increments the tracking event counter.
func IncTrackingEvent(eventType, result string) {
	if eventType == "" {
		eventType = "unknown"
	}
	if result == "" {
		result = "unknown"
	}
	trackingEventsTotal.WithLabelValues(eventType, result).Inc()
}
