// Package metrics holds the Prometheus collectors of the fallback service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FallbackRuns counts dispatcher invocations by outcome
	// (completed, quiet_hours, fallback_disabled, error).
	FallbackRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sms_fallback_runs_total",
			Help: "Total number of SMS fallback dispatcher runs",
		},
		[]string{"outcome"},
	)

	// FallbackMessages counts per-message results, partitioned by message
	// type and result.
	FallbackMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sms_fallback_messages_total",
			Help: "Total number of failed SMS messages examined by the fallback dispatcher",
		},
		[]string{"type", "result"},
	)

	FallbackRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sms_fallback_run_duration_seconds",
			Help:    "Duration of SMS fallback dispatcher runs in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120},
		},
	)

	WhatsAppSendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "whatsapp_send_duration_seconds",
			Help:    "Latency of send-whatsapp calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"template", "status"},
	)
)
