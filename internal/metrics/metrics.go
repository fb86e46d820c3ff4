package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ============================================
	// Intake metrics
	// ============================================
	IntakeRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayer_intake_requests_total",
			Help: "Total number of transfer intake requests received",
		},
		[]string{"outcome"},
	)

	ComplianceDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayer_compliance_decisions_total",
			Help: "Total number of compliance gate decisions",
		},
		[]string{"decision"},
	)

	// ============================================
	// Submission worker metrics
	// ============================================
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "relayer_queue_depth",
			Help: "Number of transfer records awaiting submission, by status",
		},
		[]string{"blockchain_status"},
	)

	ClaimBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "relayer_claim_batch_size",
		Help:    "Number of rows claimed per worker poll cycle",
		Buckets: prometheus.LinearBuckets(0, 2, 10),
	})

	ClaimLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "relayer_claim_latency_seconds",
		Help:    "Latency of the atomic claim round trip",
		Buckets: prometheus.DefBuckets,
	})

	SubmissionOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayer_submission_outcomes_total",
			Help: "Total number of submission attempts by outcome",
		},
		[]string{"outcome"},
	)

	RetryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayer_retries_total",
			Help: "Total number of scheduled retries by error type",
		},
		[]string{"last_error_type"},
	)

	// ============================================
	// Reconciliation crank metrics
	// ============================================
	CrankRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relayer_crank_runs_total",
		Help: "Total number of reconciliation crank ticks",
	})

	CrankResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayer_crank_resolutions_total",
			Help: "Total number of records resolved by the reconciliation crank, by outcome",
		},
		[]string{"outcome"},
	)

	// ============================================
	// Webhook ingestor metrics
	// ============================================
	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayer_webhook_events_total",
			Help: "Total number of webhook deliveries received",
		},
		[]string{"provider", "outcome"},
	)

	// ============================================
	// Database connection metrics
	// ============================================
	DBConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relayer_db_connection_status",
		Help: "Database connection status (1=healthy, 0=unhealthy)",
	})

	NATSConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relayer_nats_connection_status",
		Help: "NATS connection status (1=connected, 0=disconnected)",
	})
)
