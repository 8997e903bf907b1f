package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ScanOutcomes counts scan attempts by code kind and result status
	ScanOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scan_outcomes_total",
			Help: "Scan attempts by code kind and result status",
		},
		[]string{"kind", "status"},
	)

	// BackendCallDuration tracks the latency of loyalty platform calls
	BackendCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "backend_call_duration_seconds",
			Help: "Duration of loyalty platform API calls in seconds",
			Buckets: []float64{
				0.01,  // 10ms
				0.025, // 25ms
				0.05,  // 50ms
				0.1,   // 100ms
				0.25,  // 250ms
				0.5,   // 500ms
				1.0,   // 1s
				2.5,   // 2.5s
				5.0,   // 5s
				15.0,  // 15s
			},
		},
		[]string{"operation", "status"}, // success or failure
	)

	// WashesRecorded counts washes confirmed by the backend
	WashesRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "washes_recorded_total",
		Help: "Washes recorded through the scan terminal",
	})

	// RewardsRedeemed counts rewards claimed through the terminal
	RewardsRedeemed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rewards_redeemed_total",
		Help: "Rewards redeemed through the scan terminal",
	})
)

// RecordScanOutcome records the result variant of one scan attempt
func RecordScanOutcome(kind, status string) {
	ScanOutcomes.WithLabelValues(kind, status).Inc()
}

// RecordBackendCall records the duration of a backend call
func RecordBackendCall(operation, status string, duration float64) {
	BackendCallDuration.WithLabelValues(operation, status).Observe(duration)
}
