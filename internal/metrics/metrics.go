package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StakeAttempts counts finished stake attempts by outcome ("success" or an error code)
	StakeAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stakeflow_stake_attempts_total",
			Help: "Total number of finished stake attempts",
		},
		[]string{"network", "token", "outcome"},
	)

	// ConfirmationAttempts counts receipt polling attempts for stake transactions
	ConfirmationAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stakeflow_confirmation_attempts_total",
			Help: "Total number of bounded receipt polling attempts",
		},
		[]string{"network", "kind"}, // kind: bounded | final
	)

	// SinkFailures counts records the client could not deliver to the sink
	SinkFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stakeflow_sink_failures_total",
			Help: "Total number of transaction records not delivered to the sink",
		},
		[]string{"network", "reason"}, // reason: timeout | error
	)

	// RecordsSaved counts records persisted by the sink service
	RecordsSaved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stakeflow_records_saved_total",
			Help: "Total number of transaction records persisted",
		},
		[]string{"network", "token"},
	)

	// Verifications counts server-side record verifications by result
	Verifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stakeflow_verifications_total",
			Help: "Total number of record verifications against the chain",
		},
		[]string{"result"},
	)

	// PendingVerifications tracks records waiting for verification
	PendingVerifications = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stakeflow_pending_verifications",
			Help: "Number of records waiting for verification",
		},
	)
)
