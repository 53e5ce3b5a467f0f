package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	holds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slotbook_holds_total",
			Help: "Slot hold attempts by result",
		},
		[]string{"result"},
	)

	webhooks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slotbook_webhook_notifications_total",
			Help: "Gateway webhook notifications by state and outcome",
		},
		[]string{"state", "outcome"},
	)

	payments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slotbook_payment_transitions_total",
			Help: "Applied payment status transitions",
		},
		[]string{"status"},
	)

	slotsGenerated = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "slotbook_slots_generated",
			Help:    "Slots returned per availability query",
			Buckets: prometheus.LinearBuckets(0, 5, 10),
		},
	)
)

func RecordHold(result string) {
	holds.WithLabelValues(result).Inc()
}

// RecordWebhook outcome is "applied", "ignored" or "error".
func RecordWebhook(state, outcome string) {
	webhooks.WithLabelValues(state, outcome).Inc()
}

func RecordPaymentTransition(status string) {
	payments.WithLabelValues(status).Inc()
}

func RecordSlotsGenerated(count int) {
	slotsGenerated.Observe(float64(count))
}
