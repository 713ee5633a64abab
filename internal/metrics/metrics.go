package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CandidatesTotal counts candidate identifiers entering the ingestion
	// path, by detection source.
	CandidatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_candidates_total",
			Help: "Candidate request identifiers observed",
		},
		[]string{"source"},
	)

	// AdmittedTotal counts requests admitted by the dedup tracker.
	AdmittedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "oracle_admitted_total",
			Help: "Requests admitted for fulfillment",
		},
	)

	// DuplicatesTotal counts candidates rejected as already seen.
	DuplicatesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "oracle_duplicates_total",
			Help: "Candidates rejected by the dedup tracker",
		},
	)

	// DecodeErrorsTotal counts malformed or foreign account data discarded
	// during ingestion.
	DecodeErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "oracle_decode_errors_total",
			Help: "Account decode failures",
		},
	)

	// FulfillmentsTotal counts finished fulfillment attempts by result.
	FulfillmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_fulfillments_total",
			Help: "Fulfillment attempts by terminal result",
		},
		[]string{"result"},
	)

	// InflightFulfillments tracks fulfillment attempts currently running.
	InflightFulfillments = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "oracle_inflight_fulfillments",
			Help: "Fulfillment attempts in flight",
		},
	)

	// RPCRetriesTotal counts rate-limit retries performed by the guard.
	RPCRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_rpc_retries_total",
			Help: "RPC retries after rate limiting",
		},
		[]string{"op"},
	)

	// ReconnectsTotal counts subscription channel reconnect attempts.
	ReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "oracle_subscription_reconnects_total",
			Help: "WebSocket subscription reconnect attempts",
		},
	)

	// ScansTotal counts backup scans by outcome.
	ScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_scans_total",
			Help: "Backup scans by outcome",
		},
		[]string{"outcome"},
	)

	// ProofLatency observes VRF proof computation latency.
	ProofLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "oracle_proof_latency_seconds",
			Help:    "VRF proof computation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// BatchSubmissionsTotal counts batched submissions drained per tick.
	BatchSubmissionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "oracle_batch_submissions_total",
			Help: "Batched fulfillment submissions",
		},
	)
)
