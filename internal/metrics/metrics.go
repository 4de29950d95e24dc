package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "x402_requests_total",
			Help: "Total number of crawl requests by final outcome",
		},
		[]string{"namespace", "route_name", "outcome"},
	)

	ProofFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "x402_proof_failures_total",
			Help: "Proof parse and verification failures by reason code",
		},
		[]string{"reason"},
	)

	PaymentAmountTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "x402_payment_amount_total",
			Help: "Accepted payment amounts in the asset's smallest unit",
		},
		[]string{"network", "asset"},
	)

	PaymentVerificationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "x402_payment_verification_duration_seconds",
			Help:    "Duration of proof verification",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"verifier"},
	)

	UpstreamFetchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "x402_upstream_fetch_duration_seconds",
			Help:    "Duration of upstream content fetches",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReplayClaimsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "x402_replay_claims_total",
			Help: "Settlement reference claims by result",
		},
		[]string{"result"},
	)

	LicenseChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "x402_license_checks_total",
			Help: "License gate decisions by status",
		},
		[]string{"status"},
	)

	AuditQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "x402_audit_queue_depth",
			Help: "Audit records waiting for a worker",
		},
	)

	AuditDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "x402_audit_dropped_total",
			Help: "Audit records dropped because the queue was full",
		},
	)

	AuditSinkFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "x402_audit_sink_failures_total",
			Help: "Audit sink write failures",
		},
		[]string{"sink"},
	)

	LedgerBatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "x402_ledger_batches_total",
			Help: "Reconciliation batches appended to the ledger by result",
		},
		[]string{"result"},
	)

	ActiveRoutes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "x402_active_routes",
			Help: "Number of active X402Route resources",
		},
	)

	RouteStoreUpdatesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "x402_route_store_updates_total",
			Help: "Total number of route store updates",
		},
	)
)

func init() {
	metrics.Registry.MustRegister(
		RequestsTotal,
		ProofFailuresTotal,
		PaymentAmountTotal,
		PaymentVerificationDuration,
		UpstreamFetchDuration,
		ReplayClaimsTotal,
		LicenseChecksTotal,
		AuditQueueDepth,
		AuditDroppedTotal,
		AuditSinkFailuresTotal,
		LedgerBatchesTotal,
		ActiveRoutes,
		RouteStoreUpdatesTotal,
	)
}
